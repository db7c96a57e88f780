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

package sim

import (
	"errors"
	"sync"
	"time"

	otaboot "github.com/ZaparooProject/go-otaboot"
	"github.com/ZaparooProject/go-otaboot/bridge"
)

// Transport is the host side of the harness
type Transport struct {
	h       *Harness
	timeout time.Duration
	mu      sync.Mutex
	closed  bool
}

var _ otaboot.Transport = (*Transport)(nil)

// Transport returns a host transport on the harness bridge
func (h *Harness) Transport() *Transport {
	return &Transport{h: h, timeout: time.Second}
}

// SetReport hands report to the bridge and then lets both devices run
func (t *Transport) SetReport(report []byte) error {
	if err := t.check(); err != nil {
		return err
	}
	err := t.h.Bridge.SetReport(report)
	// Device side faults reach the host only as missing replies
	_ = t.h.Step()
	if err != nil {
		return otaboot.NewTransportError("SetReport", "sim", err, classify(err))
	}
	return nil
}

// GetReport lets both devices run and then reads report id
func (t *Transport) GetReport(id byte) ([]byte, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	_ = t.h.Step()
	report, err := t.h.Bridge.GetReport(id)
	if err != nil {
		return nil, otaboot.NewTransportError("GetReport", "sim", err, classify(err))
	}
	return report, nil
}

func classify(err error) otaboot.ErrorType {
	if errors.Is(err, bridge.ErrIncompleteReport) {
		return otaboot.ErrorTypeTransient
	}
	return otaboot.ErrorTypePermanent
}

func (t *Transport) check() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return otaboot.ErrTransportClosed
	}
	return nil
}

// HasCapability reports local flashing only when the bridge has flash
func (t *Transport) HasCapability(capability otaboot.TransportCapability) bool {
	switch capability {
	case otaboot.CapabilityLocalFlash:
		return t.h.BridgeFlash != nil
	case otaboot.CapabilityRemoteRelay:
		return true
	default:
		return false
	}
}

// Close disconnects the host; the devices keep running
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// SetTimeout records the timeout; simulated requests never block
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = timeout
	return nil
}

// IsConnected reports whether Close has not been called
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

// Type returns TransportSim
func (*Transport) Type() otaboot.TransportType {
	return otaboot.TransportSim
}
