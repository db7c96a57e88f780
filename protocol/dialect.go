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

package protocol

import "fmt"

// Command is a dialect independent programming command.
type Command uint8

const (
	CmdNone Command = iota
	CmdStart
	CmdBoot
	CmdStop
	CmdEnd
	CmdTxMode
	CmdUpdate
)

func (c Command) String() string {
	switch c {
	case CmdNone:
		return "none"
	case CmdStart:
		return "start"
	case CmdBoot:
		return "boot"
	case CmdStop:
		return "stop"
	case CmdEnd:
		return "end"
	case CmdTxMode:
		return "txmode"
	case CmdUpdate:
		return "update"
	default:
		return fmt.Sprintf("Command(%d)", uint8(c))
	}
}

// Dialect encodes and decodes one of the two opcode sets.
type Dialect interface {
	// Name identifies the dialect in logs and flags.
	Name() string

	// Opcode maps a command to its wire byte. ok is false when the dialect
	// has no such command.
	Opcode(c Command) (op byte, ok bool)

	// Command maps a wire byte back to a command.
	Command(op byte) (Command, bool)

	// BridgeLocal reports whether the bridge consumes c itself instead of
	// relaying it over the radio.
	BridgeLocal(c Command) bool

	// EncodeCommandReport builds the report 3 SET payload for c.
	EncodeCommandReport(id byte, c Command) ([]byte, error)

	// DecodeCommandReport parses a report 3 SET payload.
	DecodeCommandReport(report []byte) (id byte, c Command, err error)

	// EncodeCommandFrame builds the radio frame for c.
	EncodeCommandFrame(dst *Frame, id byte, c Command) error

	// DecodeCommandFrame parses a radio command frame. ok is false when p is
	// not a command frame of this dialect.
	DecodeCommandFrame(p []byte) (id byte, c Command, ok bool)

	// EncodeAck serialises p into dst and returns the used length.
	EncodeAck(dst []byte, p AckPayload) (int, error)

	// DecodeAck parses an ack payload.
	DecodeAck(p []byte) (AckPayload, error)
}

// DialectByName returns the dialect registered under name.
func DialectByName(name string) (Dialect, error) {
	switch name {
	case "", Canonical.Name():
		return Canonical, nil
	case Legacy.Name():
		return Legacy, nil
	default:
		return nil, fmt.Errorf("unknown protocol dialect %q", name)
	}
}
