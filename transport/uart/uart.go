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

// Package uart carries bridge feature reports over a serial line. The host
// side is a Transport; the bridge side is a Server that feeds the same
// reports into a bridge.
package uart

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/golang/glog"
	"go.bug.st/serial"

	otaboot "github.com/ZaparooProject/go-otaboot"
	"github.com/ZaparooProject/go-otaboot/internal/frame"
	"github.com/ZaparooProject/go-otaboot/internal/retry"
)

// DefaultBaudRate is the line speed of bridges with a serial interface
const DefaultBaudRate = 115200

const exchangeRetries = 2

// Port is the part of serial.Port the transport needs
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

var _ Port = serial.Port(nil)

// Transport implements otaboot.Transport over a serial port
type Transport struct {
	port     Port
	portName string
	timeout  time.Duration
	mu       sync.Mutex
}

// New opens portName at DefaultBaudRate
func New(portName string) (*Transport, error) {
	mode := &serial.Mode{
		BaudRate: DefaultBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	t, err := NewWithPort(port, portName)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return t, nil
}

// NewWithPort wraps an already open port
func NewWithPort(port Port, portName string) (*Transport, error) {
	t := &Transport{port: port, portName: portName}
	if err := t.SetTimeout(time.Second); err != nil {
		return nil, err
	}
	return t, nil
}

// SetReport writes a feature report and waits for the bridge to accept it
func (t *Transport) SetReport(report []byte) error {
	_, err := t.exchange("SetReport", frame.OpSet, report)
	return err
}

// GetReport reads feature report id
func (t *Transport) GetReport(id byte) ([]byte, error) {
	return t.exchange("GetReport", frame.OpGet, []byte{id})
}

func (t *Transport) exchange(op string, code byte, payload []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil, otaboot.ErrTransportClosed
	}

	request, err := frame.Encode(code, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", otaboot.ErrInvalidParameter, err)
	}

	reply, err := retry.Do(retry.Config{MaxRetries: exchangeRetries}, func() ([]byte, bool, error) {
		if _, err := t.port.Write(request); err != nil {
			return nil, false, otaboot.NewTransportError(op, t.portName,
				fmt.Errorf("%w: %w", otaboot.ErrTransportWrite, err), otaboot.ErrorTypeTransient)
		}
		got, body, err := frame.Read(timeoutReader{t.port})
		switch {
		case errors.Is(err, frame.ErrChecksum):
			glog.V(2).Infof("uart %s: corrupt reply, resending", t.portName)
			return nil, true, nil
		case errors.Is(err, otaboot.ErrTransportTimeout):
			return nil, false, otaboot.NewTimeoutError(op, t.portName)
		case err != nil:
			return nil, false, otaboot.NewTransportError(op, t.portName,
				fmt.Errorf("%w: %w", otaboot.ErrTransportRead, err), otaboot.ErrorTypeTransient)
		case got != code|frame.ReplyFlag:
			return nil, false, otaboot.NewTransportError(op, t.portName,
				fmt.Errorf("%w: reply op 0x%02X", otaboot.ErrCommunicationFailed, got), otaboot.ErrorTypePermanent)
		}
		return body, false, nil
	})
	if errors.Is(err, retry.ErrExhausted) {
		return nil, otaboot.NewTransportError(op, t.portName, otaboot.ErrCommunicationFailed, otaboot.ErrorTypeTransient)
	}
	if err != nil {
		return nil, err
	}

	if len(reply) == 0 {
		return nil, otaboot.NewTransportError(op, t.portName, otaboot.ErrCommunicationFailed, otaboot.ErrorTypePermanent)
	}
	if reply[0] != frame.StatusOK {
		return nil, otaboot.NewTransportError(op, t.portName,
			fmt.Errorf("%w: bridge: %s", otaboot.ErrCommunicationFailed, reply[1:]), otaboot.ErrorTypePermanent)
	}
	return reply[1:], nil
}

// SetTimeout sets the read timeout for the transport
func (t *Transport) SetTimeout(timeout time.Duration) error {
	if t.port == nil {
		return otaboot.ErrTransportClosed
	}
	if err := t.port.SetReadTimeout(timeout); err != nil {
		return fmt.Errorf("failed to set read timeout: %w", err)
	}
	t.timeout = timeout
	return nil
}

// Close closes the serial port
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	if err != nil {
		return fmt.Errorf("failed to close serial port: %w", err)
	}
	return nil
}

// IsConnected returns true if the port is open
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil
}

// Type returns the transport type
func (*Transport) Type() otaboot.TransportType {
	return otaboot.TransportUART
}

// HasCapability implements otaboot.TransportCapabilityChecker. A serial
// bridge always relays; local flashing is decided by the bridge's report 1
// answer.
func (*Transport) HasCapability(capability otaboot.TransportCapability) bool {
	switch capability {
	case otaboot.CapabilityRemoteRelay, otaboot.CapabilityLocalFlash:
		return true
	default:
		return false
	}
}

// timeoutReader turns the (0, nil) a serial port returns on read timeout
// into ErrTransportTimeout
type timeoutReader struct {
	r io.Reader
}

func (tr timeoutReader) Read(p []byte) (int, error) {
	n, err := tr.r.Read(p)
	if n == 0 && err == nil {
		return 0, otaboot.ErrTransportTimeout
	}
	return n, err
}

var _ otaboot.Transport = (*Transport)(nil)
