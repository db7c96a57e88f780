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

// AckKind tags the variant held by an AckPayload.
type AckKind uint8

const (
	AckNone AckKind = iota
	AckDeviceInfo
	AckStatus
)

func (k AckKind) String() string {
	switch k {
	case AckNone:
		return "none"
	case AckDeviceInfo:
		return "device-info"
	case AckStatus:
		return "status"
	default:
		return fmt.Sprintf("AckKind(%d)", uint8(k))
	}
}

// AckPayload is the reply a remote queues for the next frame it receives.
// It is either DeviceInfo or Status; the fields of the other variant are zero.
type AckPayload struct {
	Kind     AckKind
	DeviceID byte

	// DeviceInfo
	BootStatus   byte
	PageSizeHalf byte
	FlashSizeKB  byte

	// Status
	Address  uint32
	Finished bool
}

// DeviceInfoPayload returns a DeviceInfo ack.
func DeviceInfoPayload(id, status byte, pageSize, flashSize int) AckPayload {
	return AckPayload{
		Kind:         AckDeviceInfo,
		DeviceID:     id,
		BootStatus:   status,
		PageSizeHalf: byte(pageSize / 2),
		FlashSizeKB:  byte(flashSize / 1024),
	}
}

// StatusPayload returns a Status ack advertising the programming cursor.
func StatusPayload(id byte, addr uint32) AckPayload {
	return AckPayload{Kind: AckStatus, DeviceID: id, Address: addr}
}

// FinishedPayload returns the Status ack sent once Stop has been received.
func FinishedPayload(id byte, addr uint32) AckPayload {
	return AckPayload{Kind: AckStatus, DeviceID: id, Address: addr, Finished: true}
}

// PageSize decodes the page size carried as half its value.
func (p AckPayload) PageSize() int {
	return int(p.PageSizeHalf) * 2
}

// FlashSize decodes the flash size carried in KiB.
func (p AckPayload) FlashSize() int {
	return int(p.FlashSizeKB) * 1024
}

// Ready reports whether a DeviceInfo ack signals the remote is armed.
func (p AckPayload) Ready() bool {
	return p.Kind == AckDeviceInfo && p.BootStatus == StatusBootReady
}

func (p AckPayload) String() string {
	switch p.Kind {
	case AckDeviceInfo:
		return fmt.Sprintf("DeviceInfo{id=0x%02X status=0x%02X page=%d flash=%d}",
			p.DeviceID, p.BootStatus, p.PageSize(), p.FlashSize())
	case AckStatus:
		if p.Finished {
			return fmt.Sprintf("Status{id=0x%02X finished}", p.DeviceID)
		}
		return fmt.Sprintf("Status{id=0x%02X addr=0x%05X}", p.DeviceID, p.Address)
	default:
		return "Ack{}"
	}
}
