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

import "time"

// Feature report ids.
const (
	ReportLocalInfo  byte = 0x01
	ReportLocalData  byte = 0x02
	ReportRemote     byte = 0x03
	ReportRemoteData byte = 0x04
)

// Frame and report sizes.
const (
	AddressSize       = 3
	BlockSize         = 16
	FrameSize         = AddressSize + BlockSize
	LocalBlockSize    = 128
	LocalInfoSize     = 7
	LocalDataSize     = 1 + AddressSize + LocalBlockSize
	RemoteDataSize    = 1 + FrameSize
	ReplySize         = 8
	MaxAckPayload     = ReplySize - 2
	CommandReportSize = 8
	ReportChunkSize   = 16
)

// Flash layout constants.
const (
	// BootloaderReserved is the top of flash kept for the bootloader itself.
	BootloaderReserved = 2048
	// MinPageAlign is the smallest rounding unit used when planning a transfer.
	MinPageAlign = 128
)

// Transmit status byte in a reply report.
const (
	TxOK     byte = 0x00
	TxNoAck  byte = 0x01
	TxFailed byte = 0x02
)

// Canonical opcodes.
const (
	OpStart  byte = 0xA0
	OpReset  byte = 0xA1
	OpStop   byte = 0xA2
	OpEnd    byte = 0xA3
	OpTxMode byte = 0xA4
	OpUpdate byte = 0xA5

	StatusTypeBoot    byte = 0xB0
	StatusTypeDevInfo byte = 0xB1

	StatusBootReq   byte = 0xC0
	StatusBootReady byte = 0xC1
	StatusBootOK    byte = 0xC2
)

// Legacy opcodes.
const (
	LegacyOpStart byte = 0xAA
	LegacyOpBoot  byte = 0xAB
	LegacyOpStop  byte = 0xAC

	LegacyTagDevInfo byte = 0xA1
	LegacyTagStatus  byte = 0xA2
	LegacyTagCommand byte = 0xA3
	LegacyTagData    byte = 0xA4

	LegacyFinished byte = 0xBB

	LegacyCommandFrameSize = 4
	LegacyAckSize          = 3
)

// Canonical frame sizes.
const (
	CanonicalCommandFrameSize = 2
)

// Retry budgets per request class. Each class has its own numbers so a
// failure points at the phase that broke.
const (
	DiscoveryAttempts = 5
	DiscoveryDelay    = 10 * time.Millisecond

	HandshakeAttempts = 50
	HandshakeDelay    = 200 * time.Millisecond

	BlockAttempts  = 5
	BlockSendDelay = 10 * time.Millisecond
	BlockReadDelay = 20 * time.Millisecond

	SessionEndAttempts  = 5
	SessionEndSendDelay = 10 * time.Millisecond
	SessionEndReadDelay = 20 * time.Millisecond

	RebootAttempts  = 5
	RebootPreDelay  = 200 * time.Millisecond
	RebootSendDelay = 10 * time.Millisecond
	RebootReadDelay = 10 * time.Millisecond

	RestoreDelay = 200 * time.Millisecond
)

// AutoBootTimeout is the number of idle seconds after which a remote with a
// valid image leaves the bootloader on its own.
const AutoBootTimeout = 60
