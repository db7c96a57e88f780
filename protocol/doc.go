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

// Package protocol defines the wire format shared by the host uploader, the
// bridge relay and the remote flash programmer.
//
// Two incompatible opcode sets exist. The canonical dialect addresses remotes
// by a one byte device id and lets the bridge switch between listening and
// relaying roles. The legacy dialect predates device ids and carries tagged
// three byte ack payloads. A session always speaks exactly one dialect.
//
// Host to bridge traffic uses feature reports:
//
//	id 1  local device info   [1, pageLo, pageHi, f0, f1, f2, f3]
//	id 2  local data block    [2, a0, a1, a2, data x128]
//	id 3  remote command      [3, id, cmd, pad...] / reply [3, txStatus, ack...]
//	id 4  remote data block   [4, a0, a1, a2, data x16]
//
// Bridge to remote traffic is a radio frame: either a short command frame or a
// 19 byte data frame of a little-endian 3 byte address and 16 payload bytes.
// Every frame is answered by whatever ack payload the receiver had queued
// before the frame arrived.
package protocol
