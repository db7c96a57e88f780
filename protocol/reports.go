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

import (
	"encoding/binary"
	"fmt"
)

// Reply is a decoded report 3 GET: the transmit status of the last relayed
// frame and the ack payload bytes captured with it.
type Reply struct {
	Payload  []byte
	TxStatus byte
}

// Acked reports whether the last relayed frame was acknowledged.
func (r Reply) Acked() bool {
	return r.TxStatus == TxOK
}

// EncodeRemoteDataReport builds the report 4 SET payload for a 16 byte block.
func EncodeRemoteDataReport(addr uint32, block []byte) ([]byte, error) {
	if len(block) != BlockSize {
		return nil, fmt.Errorf("data block must be %d bytes, got %d", BlockSize, len(block))
	}
	report := make([]byte, RemoteDataSize)
	report[0] = ReportRemoteData
	if err := PutAddress(report[1:], addr); err != nil {
		return nil, err
	}
	copy(report[1+AddressSize:], block)
	return report, nil
}

// EncodeReply fills dst with a report 3 reply and returns its length.
func EncodeReply(dst *[ReplySize]byte, txStatus byte, payload []byte) int {
	*dst = [ReplySize]byte{}
	dst[0] = ReportRemote
	dst[1] = txStatus
	copy(dst[2:], payload)
	return ReplySize
}

// DecodeReply parses a report 3 reply. The payload aliases buf.
func DecodeReply(buf []byte) (Reply, error) {
	if len(buf) < ReplySize {
		return Reply{}, fmt.Errorf("%w: reply is %d bytes, want %d", ErrShortFrame, len(buf), ReplySize)
	}
	if buf[0] != ReportRemote {
		return Reply{}, fmt.Errorf("%w: 0x%02X", ErrWrongReport, buf[0])
	}
	return Reply{TxStatus: buf[1], Payload: buf[2:ReplySize]}, nil
}

// EncodeLocalInfo builds the report 1 GET reply of a bridge programming
// itself.
func EncodeLocalInfo(pageSize uint16, flashSize uint32) []byte {
	report := make([]byte, LocalInfoSize)
	report[0] = ReportLocalInfo
	binary.LittleEndian.PutUint16(report[1:3], pageSize)
	binary.LittleEndian.PutUint32(report[3:7], flashSize)
	return report
}

// DecodeLocalInfo parses a report 1 GET reply.
func DecodeLocalInfo(buf []byte) (pageSize, flashSize int, err error) {
	if len(buf) < LocalInfoSize {
		return 0, 0, fmt.Errorf("%w: device info is %d bytes, want %d", ErrShortFrame, len(buf), LocalInfoSize)
	}
	if buf[0] != ReportLocalInfo {
		return 0, 0, fmt.Errorf("%w: 0x%02X", ErrWrongReport, buf[0])
	}
	pageSize = int(binary.LittleEndian.Uint16(buf[1:3]))
	flashSize = int(binary.LittleEndian.Uint32(buf[3:7]))
	return pageSize, flashSize, nil
}

// EncodeLocalDataReport builds the report 2 SET payload for a 128 byte block.
func EncodeLocalDataReport(addr uint32, block []byte) ([]byte, error) {
	if len(block) != LocalBlockSize {
		return nil, fmt.Errorf("local block must be %d bytes, got %d", LocalBlockSize, len(block))
	}
	report := make([]byte, LocalDataSize)
	report[0] = ReportLocalData
	if err := PutAddress(report[1:], addr); err != nil {
		return nil, err
	}
	copy(report[1+AddressSize:], block)
	return report, nil
}

// LeaveReport is the report 1 SET that asks a local bridge to exit its
// bootloader.
func LeaveReport() []byte {
	report := make([]byte, LocalInfoSize)
	report[0] = ReportLocalInfo
	return report
}
