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

// Legacy is the tagged-payload dialect of the first RFM70 based nodes. It has
// no device ids and no bridge role switching; End and TxMode do not exist.
var Legacy Dialect = legacy{}

type legacy struct{}

func (legacy) Name() string { return "legacy" }

func (legacy) Opcode(c Command) (byte, bool) {
	switch c {
	case CmdStart:
		return LegacyOpStart, true
	case CmdBoot:
		return LegacyOpBoot, true
	case CmdStop:
		return LegacyOpStop, true
	default:
		return 0, false
	}
}

func (legacy) Command(op byte) (Command, bool) {
	switch op {
	case LegacyOpStart:
		return CmdStart, true
	case LegacyOpBoot:
		return CmdBoot, true
	case LegacyOpStop:
		return CmdStop, true
	default:
		return CmdNone, false
	}
}

func (legacy) BridgeLocal(Command) bool { return false }

func (d legacy) EncodeCommandReport(_ byte, c Command) ([]byte, error) {
	op, ok := d.Opcode(c)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, c)
	}
	report := make([]byte, CommandReportSize)
	report[0] = ReportRemote
	report[1] = op
	return report, nil
}

func (d legacy) DecodeCommandReport(report []byte) (byte, Command, error) {
	if len(report) < 2 {
		return 0, CmdNone, fmt.Errorf("%w: command report is %d bytes", ErrShortFrame, len(report))
	}
	if report[0] != ReportRemote {
		return 0, CmdNone, fmt.Errorf("%w: 0x%02X", ErrWrongReport, report[0])
	}
	c, ok := d.Command(report[1])
	if !ok {
		return 0, CmdNone, fmt.Errorf("%w: 0x%02X", ErrUnknownCommand, report[1])
	}
	return 0, c, nil
}

func (d legacy) EncodeCommandFrame(dst *Frame, _ byte, c Command) error {
	op, ok := d.Opcode(c)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupported, c)
	}
	dst.Reset()
	dst.Append([]byte{op, 0, 0, 0})
	return nil
}

func (d legacy) DecodeCommandFrame(p []byte) (byte, Command, bool) {
	if len(p) != LegacyCommandFrameSize {
		return 0, CmdNone, false
	}
	c, ok := d.Command(p[0])
	return 0, c, ok
}

func (legacy) EncodeAck(dst []byte, p AckPayload) (int, error) {
	if p.Kind == AckNone {
		return 0, nil
	}
	if len(dst) < LegacyAckSize {
		return 0, ErrPayloadTooLarge
	}
	switch p.Kind {
	case AckDeviceInfo:
		dst[0] = LegacyTagDevInfo
		dst[1] = p.PageSizeHalf
		dst[2] = p.FlashSizeKB
	case AckStatus:
		dst[0] = LegacyTagStatus
		dst[1] = byte(p.Address)
		dst[2] = byte(p.Address >> 8)
		if p.Finished {
			dst[1] = LegacyFinished
		}
	}
	return LegacyAckSize, nil
}

// DecodeAck parses a legacy ack. Status addresses are 16 bit and always even,
// so a low byte of 0xBB can only mean Finished.
func (legacy) DecodeAck(p []byte) (AckPayload, error) {
	if len(p) < LegacyAckSize {
		return AckPayload{}, fmt.Errorf("%w: %d bytes", ErrMalformedAck, len(p))
	}
	switch p[0] {
	case LegacyTagDevInfo:
		return AckPayload{
			Kind:         AckDeviceInfo,
			BootStatus:   StatusBootReady,
			PageSizeHalf: p[1],
			FlashSizeKB:  p[2],
		}, nil
	case LegacyTagStatus:
		return AckPayload{
			Kind:     AckStatus,
			Address:  uint32(p[1]) | uint32(p[2])<<8,
			Finished: p[1] == LegacyFinished,
		}, nil
	default:
		return AckPayload{}, fmt.Errorf("%w: tag 0x%02X", ErrMalformedAck, p[0])
	}
}
