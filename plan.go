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

package otaboot

import (
	"fmt"

	"github.com/ZaparooProject/go-otaboot/protocol"
)

// DeviceInfo is what a bootloader reports about its flash
type DeviceInfo struct {
	DeviceID  byte
	PageSize  int
	FlashSize int
}

// Limit is the highest end address an image may reach, below the region the
// bootloader occupies.
func (d DeviceInfo) Limit() uint32 {
	if d.FlashSize <= protocol.BootloaderReserved {
		return 0
	}
	return uint32(d.FlashSize - protocol.BootloaderReserved)
}

func (d DeviceInfo) String() string {
	return fmt.Sprintf("page size %d (0x%x), device size %d (0x%x), %d bytes remaining",
		d.PageSize, d.PageSize, d.FlashSize, d.FlashSize, d.Limit())
}

// Block is one addressed slice of the image as sent on the wire
type Block struct {
	Data    []byte
	Address uint32
}

// Plan is the page aligned address range of a transfer
type Plan struct {
	image     *FirmwareImage
	Start     uint32
	End       uint32
	DataEnd   uint32
	PageSize  int
	FlashSize int
}

// PlanTransfer rounds the written range of image out to page boundaries and
// checks it fits below the bootloader. The rounding unit is the page size but
// never less than 128 bytes.
func PlanTransfer(image *FirmwareImage, info DeviceInfo) (Plan, error) {
	if image == nil || image.Empty() {
		return Plan{}, fmt.Errorf("%w: image is empty", ErrInvalidParameter)
	}
	if info.PageSize <= 0 || info.PageSize&(info.PageSize-1) != 0 {
		return Plan{}, fmt.Errorf("%w: page size %d is not a power of two", ErrInvalidParameter, info.PageSize)
	}

	mask := uint32(max(info.PageSize, protocol.MinPageAlign) - 1)
	start := image.Start() &^ mask
	end := (image.End() + mask) &^ mask

	if limit := info.Limit(); end > limit {
		return Plan{}, &ImageTooLargeError{End: end, Limit: limit}
	}

	return Plan{
		image:     image,
		Start:     start,
		End:       end,
		DataEnd:   image.End(),
		PageSize:  info.PageSize,
		FlashSize: info.FlashSize,
	}, nil
}

// Len is the number of bytes the plan transfers
func (p Plan) Len() int {
	return int(p.End - p.Start)
}

// Blocks splits [Start, End) into blocks of size bytes. Bytes past the image
// buffer read as erased flash.
func (p Plan) Blocks(size int) []Block {
	if size <= 0 || p.End <= p.Start {
		return nil
	}
	blocks := make([]Block, 0, (p.Len()+size-1)/size)
	for addr := p.Start; addr < p.End; addr += uint32(size) {
		blocks = append(blocks, Block{Address: addr, Data: p.slice(addr, size)})
	}
	return blocks
}

func (p Plan) slice(addr uint32, size int) []byte {
	var data []byte
	if p.image != nil {
		data = p.image.Bytes()
	}
	lo, hi := int(addr), int(addr)+size
	if hi <= len(data) {
		return data[lo:hi]
	}
	out := make([]byte, size)
	for i := range out {
		out[i] = 0xFF
	}
	if lo < len(data) {
		copy(out, data[lo:])
	}
	return out
}

// RemotePlan is the plan of a radio session. The remote always starts its
// cursor at zero, so the range is widened down to address 0.
func (p Plan) RemotePlan() Plan {
	p.Start = 0
	return p
}
