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

package bridge

import (
	"errors"
	"fmt"

	"github.com/golang/glog"

	"github.com/ZaparooProject/go-otaboot/protocol"
	"github.com/ZaparooProject/go-otaboot/radio"
)

// Write is the USB write callback. It consumes one chunk of a feature report
// and returns true once the chunk completing the report has been handled.
func (b *Bridge) Write(chunk []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.write(chunk)
}

// SetReport feeds a whole feature report through Write in chunks of at most
// protocol.ReportChunkSize bytes, the way the USB stack delivers it.
func (b *Bridge) SetReport(report []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.offset = 0
	b.lastErr = nil
	for i := 0; i < len(report); i += protocol.ReportChunkSize {
		end := min(i+protocol.ReportChunkSize, len(report))
		if b.write(report[i:end]) {
			return b.lastErr
		}
	}
	b.offset = 0
	return errors.Join(fmt.Errorf("%w: %d bytes", ErrIncompleteReport, len(report)), b.lastErr)
}

// GetReport answers a feature report read.
func (b *Bridge) GetReport(id byte) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch id {
	case protocol.ReportLocalInfo:
		if b.prog == nil {
			return nil, ErrNoLocalFlash
		}
		ctrl := b.prog.Controller()
		return protocol.EncodeLocalInfo(uint16(ctrl.PageSize()), uint32(ctrl.Size())), nil
	case protocol.ReportRemote:
		reply := make([]byte, len(b.reply))
		copy(reply, b.reply[:])
		return reply, nil
	default:
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownReport, id)
	}
}

func (b *Bridge) write(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	if b.offset == 0 {
		b.report = data[0]
		switch b.report {
		case protocol.ReportRemote:
			// Cleared so a reply left over from an earlier exchange can
			// never match the host's device id check.
			b.reply[2] = 0
			b.command(data)
			return true
		case protocol.ReportRemoteData:
			b.reply[2] = 0
			b.frame.Reset()
		case protocol.ReportLocalInfo:
			b.leaving = true
			return true
		case protocol.ReportLocalData:
		default:
			b.reportsIgnored.Add(1)
			b.lastErr = fmt.Errorf("%w: 0x%02X", ErrUnknownReport, b.report)
			return true
		}
		data = data[1:]
		b.offset = 1
	}

	switch b.report {
	case protocol.ReportRemoteData:
		b.offset += b.frame.Append(data)
		if b.frame.Full() {
			b.offset = 0
			b.transmit()
			return true
		}
	case protocol.ReportLocalData:
		b.offset += copy(b.local[b.offset-1:protocol.LocalDataSize-1], data)
		if b.offset == protocol.LocalDataSize {
			b.offset = 0
			b.programLocal()
			return true
		}
	}
	return false
}

func (b *Bridge) command(report []byte) {
	id, cmd, err := b.dialect.DecodeCommandReport(report)
	if err != nil {
		b.reportsIgnored.Add(1)
		b.lastErr = err
		return
	}
	glog.V(2).Infof("bridge: %s for 0x%02X in role %s", cmd, id, b.role)

	switch {
	case cmd == protocol.CmdStart && b.role == RoleRX:
		b.arm(id)
	case cmd == protocol.CmdEnd:
		b.armed = false
		b.lastErr = b.setRole(RoleRX)
	case cmd == protocol.CmdTxMode:
		b.lastErr = b.setRole(RoleTX)
	default:
		if err := b.dialect.EncodeCommandFrame(&b.frame, id, cmd); err != nil {
			b.lastErr = err
			return
		}
		b.transmit()
	}
}

// arm queues a Start command as the acknowledgement for the next beacon of
// device id.
func (b *Bridge) arm(id byte) {
	if err := b.dialect.EncodeCommandFrame(&b.bootAck, id, protocol.CmdStart); err != nil {
		b.lastErr = err
		return
	}
	if err := b.radio.SetAckPayload(b.bootAck.Bytes()); err != nil {
		b.lastErr = fmt.Errorf("bridge: queue boot ack: %w", err)
		return
	}
	b.armed = true
}

// transmit sends the frame buffer and captures the piggybacked reply.
func (b *Bridge) transmit() {
	ack, err := b.radio.Transmit(b.frame.Bytes())
	b.framesSent.Add(1)
	switch {
	case err == nil:
		protocol.EncodeReply(&b.reply, protocol.TxOK, ack)
	case errors.Is(err, radio.ErrNoAck):
		b.framesUnacked.Add(1)
		protocol.EncodeReply(&b.reply, protocol.TxNoAck, nil)
	default:
		protocol.EncodeReply(&b.reply, protocol.TxFailed, nil)
		b.lastErr = fmt.Errorf("bridge: transmit: %w", err)
	}
}

func (b *Bridge) programLocal() {
	if b.prog == nil {
		b.lastErr = ErrNoLocalFlash
		return
	}
	addr := protocol.Address(b.local[:protocol.AddressSize])
	limit := b.prog.Controller().Size() - protocol.BootloaderReserved
	if int(addr)+protocol.LocalBlockSize > limit {
		b.lastErr = fmt.Errorf("%w: 0x%05X", protocol.ErrAddressRange, addr)
		return
	}
	if _, err := b.prog.Program(addr, b.local[protocol.AddressSize:protocol.LocalDataSize-1]); err != nil {
		b.lastErr = fmt.Errorf("bridge: program 0x%05X: %w", addr, err)
		return
	}
	b.localBlocks.Add(1)
}
