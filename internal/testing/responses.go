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

// Package testing builds the report bytes a bridge answers with, for tests
// that script a transport by hand.
package testing

import (
	"fmt"

	"github.com/ZaparooProject/go-otaboot/protocol"
)

// BuildReply creates a report 3 GET reply carrying ack encoded in dialect d
func BuildReply(d protocol.Dialect, txStatus byte, ack protocol.AckPayload) []byte {
	var payload [protocol.MaxAckPayload]byte
	n, err := d.EncodeAck(payload[:], ack)
	if err != nil {
		panic(fmt.Sprintf("testing: encode %s: %v", ack, err))
	}
	var buf [protocol.ReplySize]byte
	protocol.EncodeReply(&buf, txStatus, payload[:n])
	return buf[:]
}

// BuildLostAckReply creates a reply whose relay got no acknowledgement
func BuildLostAckReply() []byte {
	var buf [protocol.ReplySize]byte
	protocol.EncodeReply(&buf, protocol.TxNoAck, nil)
	return buf[:]
}

// BuildBeaconReply creates a reply holding a captured device info beacon
func BuildBeaconReply(id, status byte, pageSize, flashSize int) []byte {
	return BuildReply(protocol.Canonical, protocol.TxOK,
		protocol.DeviceInfoPayload(id, status, pageSize, flashSize))
}

// BuildStatusReply creates a reply holding the remote's next expected address
func BuildStatusReply(id byte, addr uint32) []byte {
	return BuildReply(protocol.Canonical, protocol.TxOK, protocol.StatusPayload(id, addr))
}

// BuildFinishedReply creates a reply confirming the end of a session
func BuildFinishedReply(id byte, addr uint32) []byte {
	return BuildReply(protocol.Canonical, protocol.TxOK, protocol.FinishedPayload(id, addr))
}

// BuildLocalInfoResponse creates a report 1 GET reply
func BuildLocalInfoResponse(pageSize uint16, flashSize uint32) []byte {
	return protocol.EncodeLocalInfo(pageSize, flashSize)
}
