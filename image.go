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
	"io"
)

// DefaultImageSize covers a 64 KiB address space plus one spare record
const DefaultImageSize = 65536 + 256

// FirmwareImage is the target address space, filled with 0xFF and written
// sparsely by a hex decoder. It implements io.WriterAt.
type FirmwareImage struct {
	data  []byte
	start uint32
	end   uint32
}

// NewFirmwareImage returns an empty image of DefaultImageSize bytes
func NewFirmwareImage() *FirmwareImage {
	return NewFirmwareImageSize(DefaultImageSize)
}

// NewFirmwareImageSize returns an empty image of size bytes
func NewFirmwareImageSize(size int) *FirmwareImage {
	data := make([]byte, size)
	for i := range data {
		data[i] = 0xFF
	}
	return &FirmwareImage{data: data, start: uint32(size)}
}

// WriteAt stores p at off and widens [Start, End) to cover it
func (img *FirmwareImage) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(img.data)) {
		return 0, fmt.Errorf("%w: write of %d bytes at 0x%x outside %d byte image",
			io.ErrShortWrite, len(p), off, len(img.data))
	}
	if len(p) == 0 {
		return 0, nil
	}
	copy(img.data[off:], p)
	lo := uint32(off)
	hi := lo + uint32(len(p))
	img.start = min(img.start, lo)
	img.end = max(img.end, hi)
	return len(p), nil
}

// Start is the lowest written address
func (img *FirmwareImage) Start() uint32 { return img.start }

// End is one past the highest written address
func (img *FirmwareImage) End() uint32 { return img.end }

// Empty reports whether nothing was written
func (img *FirmwareImage) Empty() bool { return img.start >= img.end }

// Size is the capacity of the address space
func (img *FirmwareImage) Size() int { return len(img.data) }

// Bytes returns the whole address space. Unwritten bytes read 0xFF.
func (img *FirmwareImage) Bytes() []byte { return img.data }
