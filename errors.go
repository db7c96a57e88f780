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
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-otaboot/ihex"
)

// Transport errors
var (
	ErrTransportTimeout    = errors.New("transport timeout")
	ErrTransportRead       = errors.New("transport read failed")
	ErrTransportWrite      = errors.New("transport write failed")
	ErrTransportClosed     = errors.New("transport closed")
	ErrCommunicationFailed = errors.New("communication failed")
)

// Session errors
var (
	ErrDeviceNotFound    = errors.New("device not found")
	ErrNoBeacon          = errors.New("device info not yet received from a remote device")
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrShortReply        = errors.New("reply too short")
	ErrImageTooLarge     = errors.New("image exceeds available flash")
	ErrProgrammingFailed = errors.New("programming failed")
	ErrProtocolTimeout   = errors.New("protocol retry budget exhausted")
)

// ErrorType classifies errors for retry decisions
type ErrorType int

const (
	// ErrorTypePermanent errors are not worth retrying
	ErrorTypePermanent ErrorType = iota
	// ErrorTypeTransient errors may clear on retry
	ErrorTypeTransient
	// ErrorTypeTimeout errors are timeouts
	ErrorTypeTimeout
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeTimeout:
		return "timeout"
	default:
		return "permanent"
	}
}

// TransportError is an open, read or write failure on the host link
type TransportError struct {
	Err       error
	Op        string
	Port      string
	Type      ErrorType
	Retryable bool
}

func (e *TransportError) Error() string {
	if e.Port == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a transport error. Anything but a permanent
// error is retryable.
func NewTransportError(op, port string, err error, errType ErrorType) *TransportError {
	return &TransportError{
		Op:        op,
		Port:      port,
		Err:       err,
		Type:      errType,
		Retryable: errType != ErrorTypePermanent,
	}
}

// NewTimeoutError creates a retryable timeout error
func NewTimeoutError(op, port string) *TransportError {
	return &TransportError{
		Op:        op,
		Port:      port,
		Err:       ErrTransportTimeout,
		Type:      ErrorTypeTimeout,
		Retryable: true,
	}
}

// IsRetryable reports whether err is worth retrying at the transport level
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}
	switch {
	case errors.Is(err, ErrTransportTimeout),
		errors.Is(err, ErrTransportRead),
		errors.Is(err, ErrTransportWrite),
		errors.Is(err, ErrCommunicationFailed):
		return true
	default:
		return false
	}
}

// GetErrorType returns the classification of err
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ErrorTypePermanent
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Type
	}
	switch {
	case errors.Is(err, ErrTransportTimeout):
		return ErrorTypeTimeout
	case errors.Is(err, ErrTransportRead),
		errors.Is(err, ErrTransportWrite),
		errors.Is(err, ErrCommunicationFailed):
		return ErrorTypeTransient
	default:
		return ErrorTypePermanent
	}
}

// IsFatal reports whether err must abort a session. Checksum warnings from
// the hex decoder never do.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var cw *ihex.ChecksumWarning
	return !errors.As(err, &cw)
}

// Phase names a step of a programming session
type Phase string

const (
	PhaseDiscovery  Phase = "discovery"
	PhaseHandshake  Phase = "handshake"
	PhaseBlock      Phase = "block transfer"
	PhaseSessionEnd Phase = "session end"
	PhaseReboot     Phase = "reboot"
)

// ProtocolTimeoutError reports a phase whose retry budget ran out
type ProtocolTimeoutError struct {
	Err      error
	Phase    Phase
	Attempts int
}

func (e *ProtocolTimeoutError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: no valid reply after %d attempts: %v", e.Phase, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s: no valid reply after %d attempts", e.Phase, e.Attempts)
}

func (e *ProtocolTimeoutError) Unwrap() error {
	return e.Err
}

// Is matches ErrProtocolTimeout.
func (*ProtocolTimeoutError) Is(target error) bool {
	return target == ErrProtocolTimeout
}

// ImageTooLargeError is raised by planning, before any radio traffic
type ImageTooLargeError struct {
	End   uint32
	Limit uint32
}

func (e *ImageTooLargeError) Error() string {
	return fmt.Sprintf("data (%d bytes) exceeds remaining flash size (%d bytes)", e.End, e.Limit)
}

// Is matches ErrImageTooLarge.
func (*ImageTooLargeError) Is(target error) bool {
	return target == ErrImageTooLarge
}

// ProgrammingFailedError reports a block that was never confirmed
type ProgrammingFailedError struct {
	Last    error
	Address uint32
}

func (e *ProgrammingFailedError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("programming failed at address 0x%05x: %v", e.Address, e.Last)
	}
	return fmt.Sprintf("programming failed at address 0x%05x", e.Address)
}

func (e *ProgrammingFailedError) Unwrap() error {
	return e.Last
}

// Is matches ErrProgrammingFailed.
func (*ProgrammingFailedError) Is(target error) bool {
	return target == ErrProgrammingFailed
}

// ShortReplyError reports a feature report shorter than its structure
type ShortReplyError struct {
	Report byte
	Got    int
	Want   int
}

func (e *ShortReplyError) Error() string {
	return fmt.Sprintf("not enough bytes in report %d (%d instead of %d)", e.Report, e.Got, e.Want)
}

// Is matches ErrShortReply.
func (*ShortReplyError) Is(target error) bool {
	return target == ErrShortReply
}
