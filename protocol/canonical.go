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

// Canonical is the device-id addressed dialect spoken by RF24 based nodes.
var Canonical Dialect = canonical{}

type canonical struct{}

func (canonical) Name() string { return "canonical" }

func (canonical) Opcode(c Command) (byte, bool) {
	switch c {
	case CmdStart:
		return OpStart, true
	case CmdBoot:
		return OpReset, true
	case CmdStop:
		return OpStop, true
	case CmdEnd:
		return OpEnd, true
	case CmdTxMode:
		return OpTxMode, true
	case CmdUpdate:
		return OpUpdate, true
	default:
		return 0, false
	}
}

func (canonical) Command(op byte) (Command, bool) {
	switch op {
	case OpStart:
		return CmdStart, true
	case OpReset:
		return CmdBoot, true
	case OpStop:
		return CmdStop, true
	case OpEnd:
		return CmdEnd, true
	case OpTxMode:
		return CmdTxMode, true
	case OpUpdate:
		return CmdUpdate, true
	default:
		return CmdNone, false
	}
}

func (canonical) BridgeLocal(c Command) bool {
	return c == CmdEnd || c == CmdTxMode
}

func (d canonical) EncodeCommandReport(id byte, c Command) ([]byte, error) {
	op, ok := d.Opcode(c)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, c)
	}
	report := make([]byte, CommandReportSize)
	report[0] = ReportRemote
	report[1] = id
	report[2] = op
	return report, nil
}

func (d canonical) DecodeCommandReport(report []byte) (byte, Command, error) {
	if len(report) < 3 {
		return 0, CmdNone, fmt.Errorf("%w: command report is %d bytes", ErrShortFrame, len(report))
	}
	if report[0] != ReportRemote {
		return 0, CmdNone, fmt.Errorf("%w: 0x%02X", ErrWrongReport, report[0])
	}
	c, ok := d.Command(report[2])
	if !ok {
		return report[1], CmdNone, fmt.Errorf("%w: 0x%02X", ErrUnknownCommand, report[2])
	}
	return report[1], c, nil
}

func (d canonical) EncodeCommandFrame(dst *Frame, id byte, c Command) error {
	op, ok := d.Opcode(c)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupported, c)
	}
	dst.Reset()
	dst.Append([]byte{id, op})
	return nil
}

func (d canonical) DecodeCommandFrame(p []byte) (byte, Command, bool) {
	if len(p) != CanonicalCommandFrameSize {
		return 0, CmdNone, false
	}
	c, ok := d.Command(p[1])
	return p[0], c, ok
}

func (canonical) EncodeAck(dst []byte, p AckPayload) (int, error) {
	switch p.Kind {
	case AckDeviceInfo:
		if len(dst) < 5 {
			return 0, ErrPayloadTooLarge
		}
		dst[0] = p.DeviceID
		dst[1] = StatusTypeDevInfo
		dst[2] = p.BootStatus
		dst[3] = p.PageSizeHalf
		dst[4] = p.FlashSizeKB
		return 5, nil
	case AckStatus:
		if len(dst) < 6 {
			return 0, ErrPayloadTooLarge
		}
		dst[0] = p.DeviceID
		dst[1] = StatusTypeBoot
		dst[2] = StatusBootReady
		if p.Finished {
			dst[2] = StatusBootOK
		}
		if err := PutAddress(dst[3:6], p.Address); err != nil {
			return 0, err
		}
		return 6, nil
	default:
		return 0, nil
	}
}

func (canonical) DecodeAck(p []byte) (AckPayload, error) {
	if len(p) < 3 {
		return AckPayload{}, fmt.Errorf("%w: %d bytes", ErrMalformedAck, len(p))
	}
	switch p[1] {
	case StatusTypeDevInfo:
		if len(p) < 5 {
			return AckPayload{}, fmt.Errorf("%w: device info is %d bytes", ErrMalformedAck, len(p))
		}
		return AckPayload{
			Kind:         AckDeviceInfo,
			DeviceID:     p[0],
			BootStatus:   p[2],
			PageSizeHalf: p[3],
			FlashSizeKB:  p[4],
		}, nil
	case StatusTypeBoot:
		if len(p) < 6 {
			return AckPayload{}, fmt.Errorf("%w: status is %d bytes", ErrMalformedAck, len(p))
		}
		return AckPayload{
			Kind:     AckStatus,
			DeviceID: p[0],
			Address:  Address(p[3:6]),
			Finished: p[2] == StatusBootOK,
		}, nil
	default:
		return AckPayload{}, fmt.Errorf("%w: status type 0x%02X", ErrMalformedAck, p[1])
	}
}
