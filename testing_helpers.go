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

package otaboot

import (
	"sync"
	"time"
)

// MockTransport is a scripted transport for tests. Every SetReport is
// recorded; GetReport answers from GetFunc, then from a queue of replies,
// then from the fixed Reply.
type MockTransport struct {
	SetFunc      func(report []byte) error
	GetFunc      func(id byte) ([]byte, error)
	Reply        []byte
	capabilities map[TransportCapability]bool
	sets         [][]byte
	gets         []byte
	queue        [][]byte
	timeout      time.Duration
	mu           sync.Mutex
	closed       bool
}

// NewMockTransport creates a connected mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{timeout: time.Second}
}

// NewMockTransportWithReply creates a mock transport answering every GET
// with reply
func NewMockTransportWithReply(reply []byte) *MockTransport {
	m := NewMockTransport()
	m.Reply = reply
	return m
}

// SetReport records report and passes it to SetFunc
func (m *MockTransport) SetReport(report []byte) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrTransportClosed
	}
	m.sets = append(m.sets, append([]byte(nil), report...))
	fn := m.SetFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(report)
	}
	return nil
}

// GetReport returns the next scripted reply for id
func (m *MockTransport) GetReport(id byte) ([]byte, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrTransportClosed
	}
	m.gets = append(m.gets, id)
	fn := m.GetFunc
	if fn == nil && len(m.queue) > 0 {
		reply := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		return reply, nil
	}
	reply := m.Reply
	m.mu.Unlock()

	if fn != nil {
		return fn(id)
	}
	if reply == nil {
		return nil, NewTimeoutError("GetReport", "mock")
	}
	return append([]byte(nil), reply...), nil
}

// QueueReply appends replies served before the fixed Reply
func (m *MockTransport) QueueReply(replies ...[]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range replies {
		m.queue = append(m.queue, append([]byte(nil), r...))
	}
}

// SetCapability declares what the mocked bridge supports. Undeclared
// capabilities are reported as supported.
func (m *MockTransport) SetCapability(capability TransportCapability, supported bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.capabilities == nil {
		m.capabilities = make(map[TransportCapability]bool)
	}
	m.capabilities[capability] = supported
}

// HasCapability implements TransportCapabilityChecker
func (m *MockTransport) HasCapability(capability TransportCapability) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	supported, ok := m.capabilities[capability]
	return !ok || supported
}

// Sets returns a copy of every report written so far
func (m *MockTransport) Sets() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.sets...)
}

// Gets returns the report ids read so far
func (m *MockTransport) Gets() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.gets...)
}

// Close marks the transport closed
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// SetTimeout records the timeout
func (m *MockTransport) SetTimeout(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = timeout
	return nil
}

// IsConnected reports whether Close has not been called
func (m *MockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}

// Type returns TransportMock
func (*MockTransport) Type() TransportType {
	return TransportMock
}
