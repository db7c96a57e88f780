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

// Package frame provides the serial framing used to carry feature reports
// over a UART link between the host and the bridge
package frame

import (
	"errors"
	"fmt"
	"io"
)

// Frame markers and operations
const (
	Start     = 0x7E // Start of frame
	OpSet     = 0x01 // Host writes a feature report
	OpGet     = 0x02 // Host reads a feature report
	ReplyFlag = 0x80 // Set on every bridge reply
	StatusOK  = 0x00 // First payload byte of a successful reply
	StatusErr = 0x01 // First payload byte of a failed reply
)

// Frame size limits
const (
	HeaderLength     = 3   // start + op + len
	MaxPayloadLength = 255 // len is one byte
	MinFrameLength   = HeaderLength + 1
)

var (
	ErrNoStart      = errors.New("frame: missing start byte")
	ErrChecksum     = errors.New("frame: checksum mismatch")
	ErrTooLong      = errors.New("frame: payload too long")
	ErrShortPayload = errors.New("frame: truncated")
)

// CalculateChecksum returns the byte sum of data
func CalculateChecksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

// TrailerChecksum returns the byte that makes the sum of data and itself zero
func TrailerChecksum(data []byte) byte {
	return ^CalculateChecksum(data) + 1
}

// ValidateChecksum returns true if the checksum is invalid (should be
// rejected)
func ValidateChecksum(data []byte) bool {
	return CalculateChecksum(data) != 0
}

// Encode builds a frame [Start, op, len, payload..., checksum]
func Encode(op byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLong, len(payload))
	}
	buf := make([]byte, 0, HeaderLength+len(payload)+1)
	buf = append(buf, Start, op, byte(len(payload)))
	buf = append(buf, payload...)
	return append(buf, TrailerChecksum(buf)), nil
}

// Decode parses one frame at the beginning of buf and returns the number of
// bytes it used
func Decode(buf []byte) (op byte, payload []byte, n int, err error) {
	if len(buf) < MinFrameLength {
		return 0, nil, 0, ErrShortPayload
	}
	if buf[0] != Start {
		return 0, nil, 0, ErrNoStart
	}
	n = HeaderLength + int(buf[2]) + 1
	if len(buf) < n {
		return 0, nil, 0, ErrShortPayload
	}
	if ValidateChecksum(buf[:n]) {
		return 0, nil, n, ErrChecksum
	}
	return buf[1], buf[HeaderLength : n-1], n, nil
}

// Read reads one frame from r, skipping any bytes before a start byte
func Read(r io.Reader) (op byte, payload []byte, err error) {
	var one [1]byte
	for {
		if _, err := io.ReadFull(r, one[:]); err != nil {
			return 0, nil, err
		}
		if one[0] == Start {
			break
		}
	}

	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, fmt.Errorf("%w: %w", ErrShortPayload, err)
	}
	buf := make([]byte, HeaderLength+int(hdr[1])+1)
	buf[0], buf[1], buf[2] = Start, hdr[0], hdr[1]
	if _, err := io.ReadFull(r, buf[HeaderLength:]); err != nil {
		return 0, nil, fmt.Errorf("%w: %w", ErrShortPayload, err)
	}

	op, payload, _, err = Decode(buf)
	return op, payload, err
}
