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

// Package radio describes the packet radio capability the bridge and the
// remote are built on: half-duplex frames with hardware auto-acknowledgement
// that can carry a reply queued by the receiver ahead of time.
package radio

import (
	"errors"
	"fmt"
)

// MaxPayload is the largest frame or ack payload the radio carries.
const MaxPayload = 32

// Radio errors
var (
	ErrNoAck           = errors.New("frame not acknowledged")
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrClosed          = errors.New("radio closed")
)

// Mode is the radio role.
type Mode uint8

const (
	// ModeRX is the primary receiver role: listening, answering with acks.
	ModeRX Mode = iota
	// ModeTX is the primary transmitter role: actively relaying frames.
	ModeTX
)

func (m Mode) String() string {
	switch m {
	case ModeRX:
		return "rx"
	case ModeTX:
		return "tx"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// Radio is a packet transceiver with auto-ack payloads.
type Radio interface {
	// Transmit sends p and waits for the acknowledgement. The returned slice
	// is the ack payload the receiver had queued, possibly empty. ErrNoAck is
	// returned when no acknowledgement arrived.
	Transmit(p []byte) ([]byte, error)

	// Receive copies one pending frame into buf and returns its length. It
	// never blocks; zero with a nil error means nothing was pending.
	Receive(buf []byte) (int, error)

	// SetAckPayload queues p as the reply attached to the acknowledgement of
	// the next received frame, replacing whatever was queued before.
	SetAckPayload(p []byte) error

	// SetMode switches the radio role.
	SetMode(m Mode) error

	// Mode returns the current role.
	Mode() Mode
}
