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

package uart

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	otaboot "github.com/ZaparooProject/go-otaboot"
	"github.com/ZaparooProject/go-otaboot/bridge"
	"github.com/ZaparooProject/go-otaboot/internal/frame"
	"github.com/ZaparooProject/go-otaboot/protocol"
	radiosim "github.com/ZaparooProject/go-otaboot/radio/sim"
)

// pipePort is one end of an in-memory serial line
type pipePort struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (p pipePort) Read(b []byte) (int, error)        { return p.r.Read(b) }
func (p pipePort) Write(b []byte) (int, error)       { return p.w.Write(b) }
func (pipePort) SetReadTimeout(time.Duration) error { return nil }

func (p pipePort) Close() error {
	_ = p.w.Close()
	return p.r.Close()
}

func serialLine() (host, node pipePort) {
	hr, nw := io.Pipe()
	nr, hw := io.Pipe()
	return pipePort{r: hr, w: hw}, pipePort{r: nr, w: nw}
}

// scriptedPort answers reads from a fixed byte stream and times out once
// it is drained
type scriptedPort struct {
	in     *bytes.Buffer
	writes [][]byte
}

func (p *scriptedPort) Read(b []byte) (int, error) {
	if p.in.Len() == 0 {
		return 0, nil
	}
	return p.in.Read(b)
}

func (p *scriptedPort) Write(b []byte) (int, error) {
	p.writes = append(p.writes, append([]byte(nil), b...))
	return len(b), nil
}

func (*scriptedPort) SetReadTimeout(time.Duration) error { return nil }
func (*scriptedPort) Close() error                       { return nil }

type fakeHandler struct {
	setErr error
	mu     sync.Mutex
	sets   [][]byte
}

func (h *fakeHandler) SetReport(report []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sets = append(h.sets, append([]byte(nil), report...))
	return h.setErr
}

func (*fakeHandler) GetReport(id byte) ([]byte, error) {
	if id != protocol.ReportRemote {
		return nil, errors.New("no such report")
	}
	return []byte{protocol.ReportRemote, protocol.TxOK, 0x42, 0xB0, 0xC1, 0x10, 0x00, 0x00}, nil
}

func (h *fakeHandler) reports() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sets
}

func serve(t *testing.T, handler ReportHandler) *Transport {
	t.Helper()
	host, node := serialLine()
	srv, err := NewServer(node, handler)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, err := srv.Service(); err != nil {
				return
			}
		}
	}()

	tr, err := NewWithPort(host, "pipe")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = tr.Close()
		_ = node.Close()
		<-done
	})
	return tr
}

func reply(t *testing.T, op byte, payload ...byte) []byte {
	t.Helper()
	buf, err := frame.Encode(op|frame.ReplyFlag, payload)
	require.NoError(t, err)
	return buf
}

func TestTransportCreation(t *testing.T) {
	t.Parallel()

	tr, err := NewWithPort(&scriptedPort{in: &bytes.Buffer{}}, "/dev/ttyUSB0")
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", tr.portName)
	assert.Equal(t, time.Second, tr.timeout)
	assert.Equal(t, otaboot.TransportUART, tr.Type())
	assert.True(t, tr.IsConnected())
	assert.True(t, tr.HasCapability(otaboot.CapabilityRemoteRelay))

	require.NoError(t, tr.Close())
	assert.False(t, tr.IsConnected())
	require.NoError(t, tr.Close())
	require.ErrorIs(t, tr.SetReport([]byte{3}), otaboot.ErrTransportClosed)
	require.ErrorIs(t, tr.SetTimeout(time.Second), otaboot.ErrTransportClosed)
}

func TestTransport_ExchangeWithServer(t *testing.T) {
	t.Parallel()

	handler := &fakeHandler{}
	tr := serve(t, handler)

	report := []byte{protocol.ReportRemote, 0x42, protocol.OpStart, 0, 0, 0, 0, 0}
	require.NoError(t, tr.SetReport(report))
	assert.Equal(t, [][]byte{report}, handler.reports())

	got, err := tr.GetReport(protocol.ReportRemote)
	require.NoError(t, err)
	assert.Len(t, got, protocol.ReplySize)
	assert.Equal(t, byte(0x42), got[2])

	_, err = tr.GetReport(0x09)
	require.ErrorIs(t, err, otaboot.ErrCommunicationFailed)
	assert.False(t, otaboot.IsRetryable(err))
	assert.Contains(t, err.Error(), "no such report")
}

func TestTransport_HandlerError(t *testing.T) {
	t.Parallel()

	tr := serve(t, &fakeHandler{setErr: bridge.ErrIncompleteReport})
	err := tr.SetReport([]byte{protocol.ReportRemoteData, 0})
	require.ErrorIs(t, err, otaboot.ErrCommunicationFailed)
	assert.Contains(t, err.Error(), "last chunk")
}

func TestTransport_BridgeOverSerial(t *testing.T) {
	t.Parallel()

	link := radiosim.NewLink("bridge", "remote")
	b, err := bridge.New(link.A())
	require.NoError(t, err)
	tr := serve(t, b)

	got, err := tr.GetReport(protocol.ReportRemote)
	require.NoError(t, err)
	assert.Equal(t, protocol.TxNoAck, got[1])

	report, err := protocol.Canonical.EncodeCommandReport(0x42, protocol.CmdTxMode)
	require.NoError(t, err)
	require.NoError(t, tr.SetReport(report))
	assert.Equal(t, bridge.RoleTX, b.Role())
}

func TestTransport_CorruptReplyIsResent(t *testing.T) {
	t.Parallel()

	good := reply(t, frame.OpGet, frame.StatusOK, 0x03, 0x00)
	corrupt := append([]byte(nil), good...)
	corrupt[4] ^= 0xFF

	port := &scriptedPort{in: bytes.NewBuffer(append(corrupt, good...))}
	tr, err := NewWithPort(port, "scripted")
	require.NoError(t, err)

	got, err := tr.GetReport(protocol.ReportRemote)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x03, 0x00}, got)
	assert.Len(t, port.writes, 2)
}

func TestTransport_ReadErrors(t *testing.T) {
	t.Parallel()

	good := reply(t, frame.OpGet, frame.StatusOK, 0x03)
	corrupt := append([]byte(nil), good...)
	corrupt[len(corrupt)-1]++

	tests := []struct {
		name      string
		stream    []byte
		wantErr   error
		retryable bool
		writes    int
	}{
		{name: "silent bridge", wantErr: otaboot.ErrTransportTimeout, retryable: true, writes: 1},
		{
			name:    "corrupt every time",
			stream:  bytes.Repeat(corrupt, exchangeRetries+1),
			wantErr: otaboot.ErrCommunicationFailed, retryable: true, writes: exchangeRetries + 1,
		},
		{
			name:    "reply to another op",
			stream:  reply(t, frame.OpSet, frame.StatusOK),
			wantErr: otaboot.ErrCommunicationFailed, writes: 1,
		},
		{
			name:    "empty reply",
			stream:  reply(t, frame.OpGet),
			wantErr: otaboot.ErrCommunicationFailed, writes: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			port := &scriptedPort{in: bytes.NewBuffer(tt.stream)}
			tr, err := NewWithPort(port, "scripted")
			require.NoError(t, err)

			_, err = tr.GetReport(protocol.ReportRemote)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.retryable, otaboot.IsRetryable(err))
			assert.Len(t, port.writes, tt.writes)
		})
	}
}

func TestServer_ResyncAfterNoise(t *testing.T) {
	t.Parallel()

	request, err := frame.Encode(frame.OpGet, []byte{protocol.ReportRemote})
	require.NoError(t, err)
	bad := append([]byte(nil), request...)
	bad[len(bad)-1]++

	stream := append([]byte{0x00, 0x11}, bad...)
	stream = append(stream, request...)
	port := &scriptedPort{in: bytes.NewBuffer(stream)}
	srv, err := NewServer(port, &fakeHandler{})
	require.NoError(t, err)

	active, err := srv.Service()
	require.NoError(t, err)
	assert.True(t, active)
	require.Len(t, port.writes, 1)

	op, payload, _, err := frame.Decode(port.writes[0])
	require.NoError(t, err)
	assert.Equal(t, byte(frame.OpGet|frame.ReplyFlag), op)
	assert.Equal(t, byte(frame.StatusOK), payload[0])

	active, err = srv.Service()
	require.NoError(t, err)
	assert.False(t, active)
}

func TestServer_PartialFrame(t *testing.T) {
	t.Parallel()

	request, err := frame.Encode(frame.OpSet, []byte{protocol.ReportRemote, 0x42, protocol.OpEnd})
	require.NoError(t, err)

	port := &scriptedPort{in: bytes.NewBuffer(request[:3])}
	handler := &fakeHandler{}
	srv, err := NewServer(port, handler)
	require.NoError(t, err)

	active, err := srv.Service()
	require.NoError(t, err)
	assert.False(t, active)

	port.in.Write(request[3:])
	active, err = srv.Service()
	require.NoError(t, err)
	assert.True(t, active)
	assert.Len(t, handler.reports(), 1)
}

func TestNewServer_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewServer(nil, &fakeHandler{})
	require.Error(t, err)
	_, err = NewServer(&scriptedPort{in: &bytes.Buffer{}}, nil)
	require.Error(t, err)
}
