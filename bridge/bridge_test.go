// go-otaboot
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-otaboot.
//
// go-otaboot is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-otaboot is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-otaboot; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/ZaparooProject/go-otaboot/flash"
	"github.com/ZaparooProject/go-otaboot/internal/mocks"
	"github.com/ZaparooProject/go-otaboot/polling"
	"github.com/ZaparooProject/go-otaboot/protocol"
	"github.com/ZaparooProject/go-otaboot/radio"
	"github.com/ZaparooProject/go-otaboot/radio/sim"
)

const testID = 0x42

func newLinked(t *testing.T, opts ...Option) (*Bridge, *sim.Endpoint) {
	t.Helper()
	link := sim.NewLink("bridge", "remote")
	b, err := New(link.A(), opts...)
	require.NoError(t, err)
	return b, link.B()
}

func commandReport(t *testing.T, d protocol.Dialect, c protocol.Command) []byte {
	t.Helper()
	report, err := d.EncodeCommandReport(testID, c)
	require.NoError(t, err)
	return report
}

func reply(t *testing.T, b *Bridge) protocol.Reply {
	t.Helper()
	buf, err := b.GetReport(protocol.ReportRemote)
	require.NoError(t, err)
	r, err := protocol.DecodeReply(buf)
	require.NoError(t, err)
	return r
}

func TestNew_StartingRole(t *testing.T) {
	t.Parallel()

	tests := []struct {
		dialect protocol.Dialect
		role    Role
	}{
		{dialect: protocol.Canonical, role: RoleRX},
		{dialect: protocol.Legacy, role: RoleTX},
	}
	for _, tt := range tests {
		t.Run(tt.dialect.Name(), func(t *testing.T) {
			t.Parallel()
			b, _ := newLinked(t, WithDialect(tt.dialect))
			assert.Equal(t, tt.role, b.Role())
			assert.False(t, reply(t, b).Acked())
		})
	}
}

func TestBridge_DataReportReassembly(t *testing.T) {
	t.Parallel()
	b, remote := newLinked(t)
	require.NoError(t, b.SetReport(commandReport(t, protocol.Canonical, protocol.CmdTxMode)))
	require.NoError(t, remote.SetAckPayload([]byte{testID, protocol.StatusTypeBoot, protocol.StatusBootReady, 0x10, 0, 0}))

	block := make([]byte, protocol.BlockSize)
	for i := range block {
		block[i] = byte(i)
	}
	report, err := protocol.EncodeRemoteDataReport(0x000100, block)
	require.NoError(t, err)

	assert.False(t, b.Write(report[:protocol.ReportChunkSize]), "first chunk must not complete the report")
	assert.Zero(t, remote.Pending())
	assert.True(t, b.Write(report[protocol.ReportChunkSize:]))

	buf := make([]byte, radio.MaxPayload)
	n, err := remote.Receive(buf)
	require.NoError(t, err)
	assert.Equal(t, report[1:], buf[:n])

	r := reply(t, b)
	assert.True(t, r.Acked())
	ack, err := protocol.Canonical.DecodeAck(r.Payload)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusPayload(testID, 0x10), ack)
	assert.Equal(t, int64(1), b.GetMetrics().FramesSent)
}

func TestBridge_SetReportChunks(t *testing.T) {
	t.Parallel()
	b, remote := newLinked(t)
	require.NoError(t, b.SetReport(commandReport(t, protocol.Canonical, protocol.CmdTxMode)))

	report, err := protocol.EncodeRemoteDataReport(0, make([]byte, protocol.BlockSize))
	require.NoError(t, err)
	require.NoError(t, b.SetReport(report))
	assert.Equal(t, 1, remote.Pending())

	err = b.SetReport(report[:10])
	require.ErrorIs(t, err, ErrIncompleteReport)
	assert.Equal(t, 1, remote.Pending())

	// A fresh report starts over after an incomplete one.
	require.NoError(t, b.SetReport(report))
	assert.Equal(t, 2, remote.Pending())
}

func TestBridge_NoAckReply(t *testing.T) {
	t.Parallel()
	b, remote := newLinked(t)
	require.NoError(t, b.SetReport(commandReport(t, protocol.Canonical, protocol.CmdTxMode)))
	require.NoError(t, remote.SetMode(radio.ModeTX))

	require.NoError(t, b.SetReport(commandReport(t, protocol.Canonical, protocol.CmdStop)))
	r := reply(t, b)
	assert.Equal(t, protocol.TxNoAck, r.TxStatus)
	assert.Equal(t, int64(1), b.GetMetrics().FramesUnacked)
}

func TestBridge_ModeCommandsStayLocal(t *testing.T) {
	t.Parallel()
	b, remote := newLinked(t)

	require.NoError(t, b.SetReport(commandReport(t, protocol.Canonical, protocol.CmdTxMode)))
	assert.Equal(t, RoleTX, b.Role())
	require.NoError(t, b.SetReport(commandReport(t, protocol.Canonical, protocol.CmdEnd)))
	assert.Equal(t, RoleRX, b.Role())

	assert.Zero(t, remote.Pending())
	assert.Zero(t, b.GetMetrics().FramesSent)
}

func TestBridge_StartInTxRoleIsTransmitted(t *testing.T) {
	t.Parallel()
	b, remote := newLinked(t)
	require.NoError(t, b.SetReport(commandReport(t, protocol.Canonical, protocol.CmdTxMode)))

	require.NoError(t, b.SetReport(commandReport(t, protocol.Canonical, protocol.CmdStart)))
	buf := make([]byte, radio.MaxPayload)
	n, err := remote.Receive(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{testID, protocol.OpStart}, buf[:n])
	assert.False(t, b.Armed())
}

func TestBridge_BeaconCaptureAndBootAck(t *testing.T) {
	t.Parallel()
	b, remote := newLinked(t)
	require.NoError(t, remote.SetMode(radio.ModeTX))

	beacon := func(status byte) []byte {
		var buf [8]byte
		n, err := protocol.Canonical.EncodeAck(buf[:], protocol.DeviceInfoPayload(testID, status, 128, 30*1024))
		require.NoError(t, err)
		return buf[:n]
	}

	ack, err := remote.Transmit(beacon(protocol.StatusBootReq))
	require.NoError(t, err)
	assert.Empty(t, ack)

	active, err := b.Poll()
	require.NoError(t, err)
	assert.True(t, active)

	r := reply(t, b)
	info, err := protocol.Canonical.DecodeAck(r.Payload)
	require.NoError(t, err)
	assert.Equal(t, byte(testID), info.DeviceID)
	assert.Equal(t, protocol.StatusBootReq, info.BootStatus)
	assert.Equal(t, 30*1024, info.FlashSize())

	require.NoError(t, b.SetReport(commandReport(t, protocol.Canonical, protocol.CmdStart)))
	assert.True(t, b.Armed())
	assert.Zero(t, reply(t, b).Payload[0], "start clears the stale device id")

	for i := 0; i < 2; i++ {
		ack, err = remote.Transmit(beacon(protocol.StatusBootReady))
		require.NoError(t, err)
		assert.Equal(t, []byte{testID, protocol.OpStart}, ack, "boot ack must be re-queued after each beacon")
		_, err = b.Poll()
		require.NoError(t, err)
	}
	info, err = protocol.Canonical.DecodeAck(reply(t, b).Payload)
	require.NoError(t, err)
	assert.True(t, info.Ready())
	assert.Equal(t, int64(3), b.GetMetrics().BeaconsCaught)

	require.NoError(t, b.SetReport(commandReport(t, protocol.Canonical, protocol.CmdEnd)))
	assert.False(t, b.Armed())
}

func TestBridge_IgnoresNonBeaconTraffic(t *testing.T) {
	t.Parallel()
	b, remote := newLinked(t)
	require.NoError(t, remote.SetMode(radio.ModeTX))

	_, err := remote.Transmit([]byte{0x01, 0x02})
	require.NoError(t, err)
	active, err := b.Poll()
	require.NoError(t, err)
	assert.True(t, active)
	assert.Zero(t, b.GetMetrics().BeaconsCaught)

	active, err = b.Poll()
	require.NoError(t, err)
	assert.False(t, active)
}

func TestBridge_LegacyCommandFrame(t *testing.T) {
	t.Parallel()
	b, remote := newLinked(t, WithDialect(protocol.Legacy))
	require.NoError(t, remote.SetAckPayload([]byte{protocol.LegacyTagDevInfo, 32, 8}))

	require.NoError(t, b.SetReport(commandReport(t, protocol.Legacy, protocol.CmdStart)))

	buf := make([]byte, radio.MaxPayload)
	n, err := remote.Receive(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{protocol.LegacyOpStart, 0, 0, 0}, buf[:n])

	info, err := protocol.Legacy.DecodeAck(reply(t, b).Payload)
	require.NoError(t, err)
	assert.Equal(t, 64, info.PageSize())
}

func TestBridge_UnknownReports(t *testing.T) {
	t.Parallel()
	b, _ := newLinked(t)

	require.ErrorIs(t, b.SetReport([]byte{0x09, 1, 2}), ErrUnknownReport)
	_, err := b.GetReport(0x09)
	require.ErrorIs(t, err, ErrUnknownReport)

	require.ErrorIs(t, b.SetReport([]byte{protocol.ReportRemote, testID, 0x55, 0}), protocol.ErrUnknownCommand)
	assert.Equal(t, int64(2), b.GetMetrics().ReportsIgnored)
}

func TestBridge_LocalMode(t *testing.T) {
	t.Parallel()

	mem, err := flash.NewMemory(128, 8192)
	require.NoError(t, err)
	launched := 0
	b, _ := newLinked(t,
		WithLocalFlash(flash.NewProgrammer(mem)),
		WithLauncher(launcherFunc(func() error { launched++; return nil })),
	)

	info, err := b.GetReport(protocol.ReportLocalInfo)
	require.NoError(t, err)
	page, size, err := protocol.DecodeLocalInfo(info)
	require.NoError(t, err)
	assert.Equal(t, 128, page)
	assert.Equal(t, 8192, size)

	block := make([]byte, protocol.LocalBlockSize)
	for i := range block {
		block[i] = byte(0x80 + i)
	}
	for _, addr := range []uint32{0, 128} {
		report, err := protocol.EncodeLocalDataReport(addr, block)
		require.NoError(t, err)
		require.NoError(t, b.SetReport(report))
	}
	assert.Equal(t, int64(2), b.GetMetrics().LocalBlocks)
	assert.Equal(t, 1, mem.Erases(0))
	assert.Equal(t, 1, mem.Writes(128))

	got := make([]byte, protocol.LocalBlockSize)
	_, err = mem.ReadAt(got, 128)
	require.NoError(t, err)
	assert.Equal(t, block, got)

	report, err := protocol.EncodeLocalDataReport(uint32(8192-protocol.BootloaderReserved), block)
	require.NoError(t, err)
	require.ErrorIs(t, b.SetReport(report), protocol.ErrAddressRange)

	require.NoError(t, b.SetReport(protocol.LeaveReport()))
	_, err = b.Poll()
	require.ErrorIs(t, err, ErrLeftBootloader)
	assert.Equal(t, 1, launched)
}

func TestBridge_LocalModeDisabled(t *testing.T) {
	t.Parallel()
	b, _ := newLinked(t)

	_, err := b.GetReport(protocol.ReportLocalInfo)
	require.ErrorIs(t, err, ErrNoLocalFlash)
	report, err := protocol.EncodeLocalDataReport(0, make([]byte, protocol.LocalBlockSize))
	require.NoError(t, err)
	require.ErrorIs(t, b.SetReport(report), ErrNoLocalFlash)
}

func TestBridge_TransmitFault(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	r := mocks.NewMockRadio(ctrl)
	fault := errors.New("spi fault")

	r.EXPECT().SetMode(radio.ModeRX).Return(nil)
	r.EXPECT().SetMode(radio.ModeTX).Return(nil)
	r.EXPECT().Transmit([]byte{testID, protocol.OpStop}).Return(nil, fault)

	b, err := New(r)
	require.NoError(t, err)
	require.NoError(t, b.SetReport(commandReport(t, protocol.Canonical, protocol.CmdTxMode)))

	err = b.SetReport(commandReport(t, protocol.Canonical, protocol.CmdStop))
	require.ErrorIs(t, err, fault)
	assert.Equal(t, protocol.TxFailed, reply(t, b).TxStatus)
}

type launcherFunc func() error

func (f launcherFunc) Launch() error { return f() }

type scriptedPort struct {
	bridge  *Bridge
	reports [][]byte
}

func (p *scriptedPort) Service() (bool, error) {
	if len(p.reports) == 0 {
		return false, nil
	}
	report := p.reports[0]
	p.reports = p.reports[1:]
	return true, p.bridge.SetReport(report)
}

func TestBridge_RunStopsWhenLeaving(t *testing.T) {
	t.Parallel()
	mem, err := flash.NewMemory(128, 8192)
	require.NoError(t, err)
	b, _ := newLinked(t, WithLocalFlash(flash.NewProgrammer(mem)))

	port := &scriptedPort{bridge: b, reports: [][]byte{protocol.LeaveReport()}}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, b.Run(ctx, port, &polling.Config{PollInterval: time.Millisecond}))
}
