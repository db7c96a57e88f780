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

package remote

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/ZaparooProject/go-otaboot/flash"
	"github.com/ZaparooProject/go-otaboot/internal/mocks"
	"github.com/ZaparooProject/go-otaboot/protocol"
	"github.com/ZaparooProject/go-otaboot/radio"
	"github.com/ZaparooProject/go-otaboot/radio/sim"
)

const (
	testPageSize  = 64
	testFlashSize = 8192
	testEEPROM    = 512
	testID        = 0x42
)

type fixture struct {
	remote   *Remote
	bridge   *sim.Endpoint
	mem      *flash.Memory
	eeprom   *flash.MemoryEEPROM
	launches int
}

func newFixture(t *testing.T, valid bool, opts ...Option) *fixture {
	t.Helper()

	mem, err := flash.NewMemory(testPageSize, testFlashSize)
	require.NoError(t, err)
	eeprom := flash.NewMemoryEEPROM(testEEPROM)
	if valid {
		require.NoError(t, flash.SetValidity(eeprom, flash.Valid))
	}

	link := sim.NewLink("bridge", "remote")
	require.NoError(t, link.A().SetMode(radio.ModeTX))

	f := &fixture{bridge: link.A(), mem: mem, eeprom: eeprom}
	opts = append([]Option{WithDeviceID(testID)}, opts...)
	f.remote, err = New(link.B(), flash.NewProgrammer(mem), eeprom, LauncherFunc(func() error {
		f.launches++
		return nil
	}), opts...)
	require.NoError(t, err)
	return f
}

// exchange transmits p, lets the remote process it and returns the ack the
// bridge received.
func (f *fixture) exchange(t *testing.T, p []byte) protocol.AckPayload {
	t.Helper()
	return f.exchangeWith(t, protocol.Canonical, p)
}

func (f *fixture) exchangeWith(t *testing.T, d protocol.Dialect, p []byte) protocol.AckPayload {
	t.Helper()
	ack, err := f.bridge.Transmit(p)
	require.NoError(t, err)
	active, err := f.remote.Poll()
	if !errors.Is(err, ErrBooted) {
		require.NoError(t, err)
	}
	assert.True(t, active)
	if len(ack) == 0 {
		return protocol.AckPayload{}
	}
	payload, err := d.DecodeAck(ack)
	require.NoError(t, err)
	return payload
}

func command(t *testing.T, c protocol.Command) []byte {
	t.Helper()
	var fr protocol.Frame
	require.NoError(t, protocol.Canonical.EncodeCommandFrame(&fr, testID, c))
	return append([]byte(nil), fr.Bytes()...)
}

func dataFrame(t *testing.T, addr uint32, block []byte) []byte {
	t.Helper()
	var fr protocol.Frame
	require.NoError(t, protocol.EncodeDataFrame(&fr, addr, block))
	return append([]byte(nil), fr.Bytes()...)
}

func pattern(addr uint32) []byte {
	block := make([]byte, protocol.BlockSize)
	for i := range block {
		block[i] = byte(addr) + byte(i)
	}
	return block
}

func TestNew_QueuesDeviceInfoRequest(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	ack := f.exchange(t, command(t, protocol.CmdStart))
	assert.Equal(t, protocol.AckDeviceInfo, ack.Kind)
	assert.Equal(t, protocol.StatusBootReq, ack.BootStatus)
	assert.Equal(t, byte(testID), ack.DeviceID)
	assert.Equal(t, testPageSize, ack.PageSize())
	assert.Equal(t, testFlashSize, ack.FlashSize())

	ack = f.exchange(t, command(t, protocol.CmdStart))
	assert.True(t, ack.Ready())
	assert.Equal(t, StateArmed, f.remote.State())
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, nil, nil, nil)
	require.Error(t, err)

	mem, err := flash.NewMemory(testPageSize, testFlashSize)
	require.NoError(t, err)
	link := sim.NewLink("a", "b")
	_, err = New(link.B(), flash.NewProgrammer(mem), flash.NewMemoryEEPROM(8), nil, WithDeviceID(0))
	require.Error(t, err)
}

func TestRemote_FullSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)

	f.exchange(t, command(t, protocol.CmdStart))
	f.exchange(t, command(t, protocol.CmdStart))

	const total = 3 * testPageSize
	for addr := uint32(0); addr < total; addr += protocol.BlockSize {
		frame := dataFrame(t, addr, pattern(addr))

		stale := f.exchange(t, frame)
		assert.NotEqual(t, protocol.StatusPayload(testID, addr+protocol.BlockSize), stale)

		if addr == 0 {
			valid, err := flash.IsValid(f.eeprom)
			require.NoError(t, err)
			assert.False(t, valid, "image must be marked invalid while programming")
		}

		ack := f.exchange(t, frame)
		assert.Equal(t, protocol.StatusPayload(testID, addr+protocol.BlockSize), ack)
	}
	assert.Equal(t, uint32(total), f.remote.Cursor())

	for page := uint32(0); page < total; page += testPageSize {
		assert.Equal(t, 1, f.mem.Erases(page), "page 0x%X", page)
		assert.Equal(t, 1, f.mem.Writes(page), "page 0x%X", page)
	}
	assert.Equal(t, 3, f.mem.TotalErases())

	got := make([]byte, total)
	_, err := f.mem.ReadAt(got, 0)
	require.NoError(t, err)
	for addr := uint32(0); addr < total; addr += protocol.BlockSize {
		assert.Equal(t, pattern(addr), got[addr:addr+protocol.BlockSize])
	}

	f.exchange(t, command(t, protocol.CmdStop))
	ack := f.exchange(t, command(t, protocol.CmdStop))
	assert.True(t, ack.Finished)
	assert.Equal(t, StateFinishing, f.remote.State())

	f.exchange(t, command(t, protocol.CmdBoot))
	assert.Equal(t, StateBooted, f.remote.State())
	assert.Equal(t, 1, f.launches)

	valid, err := flash.IsValid(f.eeprom)
	require.NoError(t, err)
	assert.True(t, valid)

	_, err = f.remote.Poll()
	require.ErrorIs(t, err, ErrBooted)
}

func TestRemote_OutOfOrderBlockIgnored(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	f.exchange(t, command(t, protocol.CmdStart))

	f.exchange(t, dataFrame(t, protocol.BlockSize, pattern(16)))
	assert.Equal(t, uint32(0), f.remote.Cursor())
	assert.Zero(t, f.mem.TotalErases())

	ack := f.exchange(t, dataFrame(t, 0, pattern(0)))
	assert.True(t, ack.Ready(), "ignored block re-queues the previous payload")
	assert.Equal(t, uint32(protocol.BlockSize), f.remote.Cursor())
}

func TestRemote_RedeliveryDoesNotReprogram(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	f.exchange(t, command(t, protocol.CmdStart))

	frame := dataFrame(t, 0, pattern(0))
	for i := 0; i < 4; i++ {
		f.exchange(t, frame)
	}
	assert.Equal(t, 1, f.mem.Erases(0))
	assert.Equal(t, uint32(protocol.BlockSize), f.remote.Cursor())
}

func TestRemote_DataBeforeStartIgnored(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	f.exchange(t, dataFrame(t, 0, pattern(0)))
	assert.Equal(t, StateIdle, f.remote.State())
	assert.Zero(t, f.mem.TotalErases())
}

func TestRemote_IgnoresOtherDevice(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	var fr protocol.Frame
	require.NoError(t, protocol.Canonical.EncodeCommandFrame(&fr, testID+1, protocol.CmdStart))
	f.exchange(t, fr.Bytes())
	assert.Equal(t, StateIdle, f.remote.State())
	assert.Equal(t, protocol.StatusBootReq, f.remote.Payload().BootStatus)
}

func TestRemote_BootWhenAlreadyValidSkipsEEPROMWrite(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	writes := f.eeprom.WriteCount()

	f.exchange(t, command(t, protocol.CmdBoot))
	assert.Equal(t, writes, f.eeprom.WriteCount())
	assert.Equal(t, 1, f.launches)
}

func TestRemote_AutoBoot(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		valid  bool
		start  bool
		block0 bool
		ticks  int
		launch bool
		booted bool
	}{
		{name: "valid image after 61s", valid: true, ticks: 61, launch: true, booted: true},
		{name: "valid image at 60s", valid: true, ticks: 60},
		{name: "no valid image", valid: false, ticks: 120},
		{name: "armed host gone", valid: true, start: true, ticks: 61, launch: true, booted: true},
		{name: "armed at 60s", valid: true, start: true, ticks: 60},
		{name: "first block written", valid: true, start: true, block0: true, ticks: 120},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, tt.valid)
			if tt.start {
				f.exchange(t, command(t, protocol.CmdStart))
			}
			if tt.block0 {
				f.exchange(t, dataFrame(t, 0, pattern(0)))
			}
			for i := 0; i < tt.ticks; i++ {
				f.remote.Tick()
			}

			_, err := f.remote.Poll()
			if tt.booted {
				require.ErrorIs(t, err, ErrBooted)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.launch, f.launches == 1)
		})
	}
}

func TestRemote_ActivityPostponesAutoBoot(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)

	for i := 0; i < 50; i++ {
		f.remote.Tick()
	}
	f.exchange(t, []byte{0x00})
	for i := 0; i < 50; i++ {
		f.remote.Tick()
	}
	_, err := f.remote.Poll()
	require.NoError(t, err)
	assert.Zero(t, f.launches)
}

func TestRemote_Indicator(t *testing.T) {
	t.Parallel()

	assert.Equal(t, IndicatorBlink, newFixture(t, true).remote.Indicator())
	assert.Equal(t, IndicatorSteady, newFixture(t, false).remote.Indicator())

	f := newFixture(t, true)
	f.exchange(t, command(t, protocol.CmdStart))
	assert.Equal(t, IndicatorBlink, f.remote.Indicator(), "armed with a bootable image")
	f.exchange(t, dataFrame(t, 0, pattern(0)))
	assert.Equal(t, IndicatorSteady, f.remote.Indicator())
}

func TestShouldEnter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		held   bool
		valid  bool
		expect bool
	}{
		{name: "button held with valid image", held: true, valid: true, expect: true},
		{name: "no valid image", expect: true},
		{name: "valid image", valid: true, expect: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			eeprom := flash.NewMemoryEEPROM(16)
			if tt.valid {
				require.NoError(t, flash.SetValidity(eeprom, flash.Valid))
			}
			got, err := ShouldEnter(tt.held, eeprom)
			require.NoError(t, err)
			assert.Equal(t, tt.expect, got)
		})
	}
}

func TestRemote_AnnounceClaimedByBridge(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	require.NoError(t, f.bridge.SetMode(radio.ModeRX))

	buf := make([]byte, radio.MaxPayload)
	readBeacon := func() protocol.AckPayload {
		n, err := f.bridge.Receive(buf)
		require.NoError(t, err)
		require.NotZero(t, n)
		p, err := protocol.Canonical.DecodeAck(buf[:n])
		require.NoError(t, err)
		return p
	}

	claimed, err := f.remote.Announce()
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, protocol.StatusBootReq, readBeacon().BootStatus)

	require.NoError(t, f.bridge.SetAckPayload(command(t, protocol.CmdStart)))
	claimed, err = f.remote.Announce()
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, StateArmed, f.remote.State())
	readBeacon()

	claimed, err = f.remote.Announce()
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.True(t, readBeacon().Ready())
	assert.Equal(t, radio.ModeRX, f.remote.radio.Mode())
}

func TestRemote_AnnounceSilentOnceHeard(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	r := mocks.NewMockRadio(ctrl)

	r.EXPECT().SetMode(radio.ModeRX).Return(nil)
	r.EXPECT().SetAckPayload(gomock.Any()).Return(nil).Times(2)
	r.EXPECT().Receive(gomock.Any()).DoAndReturn(func(buf []byte) (int, error) {
		return copy(buf, []byte{testID, protocol.OpStart}), nil
	})

	mem, err := flash.NewMemory(testPageSize, testFlashSize)
	require.NoError(t, err)
	rm, err := New(r, flash.NewProgrammer(mem), flash.NewMemoryEEPROM(16), nil, WithDeviceID(testID))
	require.NoError(t, err)

	active, err := rm.Poll()
	require.NoError(t, err)
	assert.True(t, active)

	claimed, err := rm.Announce()
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestRemote_AnnounceRequeuesReply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		txErr   error
		wantErr error
		name    string
		ack     []byte
	}{
		{name: "unanswered beacon", txErr: radio.ErrNoAck},
		{name: "radio fault", txErr: errors.New("spi fault"), wantErr: errors.New("spi fault")},
		{name: "plain ack", ack: []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			r := mocks.NewMockRadio(ctrl)

			var queued [][]byte
			r.EXPECT().SetMode(radio.ModeRX).Return(nil).Times(2)
			r.EXPECT().SetMode(radio.ModeTX).Return(nil)
			r.EXPECT().SetAckPayload(gomock.Any()).DoAndReturn(func(p []byte) error {
				queued = append(queued, append([]byte(nil), p...))
				return nil
			}).Times(2)
			r.EXPECT().Transmit(gomock.Any()).Return(tt.ack, tt.txErr)

			mem, err := flash.NewMemory(testPageSize, testFlashSize)
			require.NoError(t, err)
			rm, err := New(r, flash.NewProgrammer(mem), flash.NewMemoryEEPROM(16), nil, WithDeviceID(testID))
			require.NoError(t, err)

			claimed, err := rm.Announce()
			assert.False(t, claimed)
			if tt.wantErr != nil {
				require.ErrorContains(t, err, tt.wantErr.Error())
			} else {
				require.NoError(t, err)
			}
			require.Len(t, queued, 2)
			assert.Equal(t, queued[0], queued[1], "the same reply is queued again")
		})
	}
}

func TestRemote_ReceiveErrorPropagates(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	r := mocks.NewMockRadio(ctrl)
	fault := errors.New("spi fault")

	r.EXPECT().SetMode(radio.ModeRX).Return(nil)
	r.EXPECT().SetAckPayload(gomock.Any()).Return(nil)
	r.EXPECT().Receive(gomock.Any()).Return(0, fault)

	mem, err := flash.NewMemory(testPageSize, testFlashSize)
	require.NoError(t, err)
	rm, err := New(r, flash.NewProgrammer(mem), flash.NewMemoryEEPROM(16), nil)
	require.NoError(t, err)

	_, err = rm.Poll()
	require.ErrorIs(t, err, fault)
}

func TestRemote_LegacySession(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false, WithDialect(protocol.Legacy))
	d := protocol.Legacy

	legacyCommand := func(c protocol.Command) []byte {
		var fr protocol.Frame
		require.NoError(t, d.EncodeCommandFrame(&fr, 0, c))
		return append([]byte(nil), fr.Bytes()...)
	}

	ack := f.exchangeWith(t, d, legacyCommand(protocol.CmdStart))
	assert.Equal(t, protocol.AckDeviceInfo, ack.Kind)
	assert.Equal(t, testPageSize, ack.PageSize())

	frame := dataFrame(t, 0, pattern(0))
	f.exchangeWith(t, d, frame)
	ack = f.exchangeWith(t, d, frame)
	assert.Equal(t, uint32(protocol.BlockSize), ack.Address)

	f.exchangeWith(t, d, legacyCommand(protocol.CmdStop))
	ack = f.exchangeWith(t, d, legacyCommand(protocol.CmdStop))
	assert.True(t, ack.Finished)

	claimed, err := f.remote.Announce()
	require.NoError(t, err)
	assert.False(t, claimed)

	f.exchangeWith(t, d, legacyCommand(protocol.CmdBoot))
	assert.Equal(t, 1, f.launches)

	got := make([]byte, protocol.BlockSize)
	_, err = f.mem.ReadAt(got, 0)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(pattern(0), got))
}
