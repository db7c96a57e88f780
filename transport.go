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
	"context"
	"fmt"
	"time"
)

// Transport carries feature reports between the host and a bridge. It can be
// implemented by USB HID, a serial line or the in-process simulator.
type Transport interface {
	// SetReport writes a feature report; report[0] is the report id
	SetReport(report []byte) error

	// GetReport reads the feature report with the given id
	GetReport(id byte) ([]byte, error)

	// Close closes the transport connection
	Close() error

	// SetTimeout sets the read timeout for the transport
	SetTimeout(timeout time.Duration) error

	// IsConnected returns true if the transport is connected
	IsConnected() bool

	// Type returns the transport type
	Type() TransportType
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportHID represents USB HID feature reports.
	TransportHID TransportType = "hid"
	// TransportUART represents feature reports framed over a serial line.
	TransportUART TransportType = "uart"
	// TransportSim represents the in-process simulator.
	TransportSim TransportType = "sim"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// TransportCapability names what the bridge behind a transport can do
type TransportCapability string

const (
	// CapabilityLocalFlash indicates the bridge is in its own bootloader and
	// accepts reports 1 and 2
	CapabilityLocalFlash TransportCapability = "local_flash"

	// CapabilityRemoteRelay indicates the bridge relays reports 3 and 4 over
	// the radio
	CapabilityRemoteRelay TransportCapability = "remote_relay"
)

// TransportCapabilityChecker is implemented by transports that know which
// bridge firmware they opened
type TransportCapabilityChecker interface {
	HasCapability(capability TransportCapability) bool
}

// hasCapability reports true when t does not say otherwise
func hasCapability(t Transport, capability TransportCapability) bool {
	if checker, ok := t.(TransportCapabilityChecker); ok {
		return checker.HasCapability(capability)
	}
	return true
}

// TransportWithRetry repeats report transfers that fail with a retryable
// transport error. Protocol level retries stay with the phase policies.
type TransportWithRetry struct {
	transport Transport
	config    *RetryConfig
}

// NewTransportWithRetry wraps transport; a nil config uses DefaultRetryConfig
func NewTransportWithRetry(transport Transport, config *RetryConfig) *TransportWithRetry {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &TransportWithRetry{transport: transport, config: config}
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, Err: err, Type: GetErrorType(err), Retryable: IsRetryable(err)}
}

// SetReport writes report, retrying transient failures
func (t *TransportWithRetry) SetReport(report []byte) error {
	return RetryWithConfig(context.Background(), t.config, func() error {
		return classify("SetReport", t.transport.SetReport(report))
	})
}

// GetReport reads report id, retrying transient failures
func (t *TransportWithRetry) GetReport(id byte) ([]byte, error) {
	var reply []byte
	err := RetryWithConfig(context.Background(), t.config, func() error {
		var err error
		reply, err = t.transport.GetReport(id)
		return classify("GetReport", err)
	})
	return reply, err
}

// Close closes the wrapped transport
func (t *TransportWithRetry) Close() error {
	if err := t.transport.Close(); err != nil {
		return fmt.Errorf("close bridge transport: %w", err)
	}
	return nil
}

func (t *TransportWithRetry) SetTimeout(timeout time.Duration) error {
	if err := t.transport.SetTimeout(timeout); err != nil {
		return fmt.Errorf("set bridge timeout: %w", err)
	}
	return nil
}

func (t *TransportWithRetry) IsConnected() bool { return t.transport.IsConnected() }

func (t *TransportWithRetry) Type() TransportType { return t.transport.Type() }

// HasCapability asks the wrapped transport
func (t *TransportWithRetry) HasCapability(capability TransportCapability) bool {
	return hasCapability(t.transport, capability)
}

// SetRetryConfig replaces the retry configuration
func (t *TransportWithRetry) SetRetryConfig(config *RetryConfig) {
	t.config = config
}
