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

// MaxAddress is the highest address a 3 byte little-endian field can carry.
const MaxAddress = 1<<24 - 1

// Frame is a fixed capacity radio frame buffer. The zero value is an empty
// frame ready for use and never allocates.
type Frame struct {
	buf [FrameSize]byte
	n   int
}

// Reset empties the frame.
func (f *Frame) Reset() {
	f.n = 0
}

// Len returns the number of bytes currently held.
func (f *Frame) Len() int {
	return f.n
}

// Full reports whether the frame holds a complete data frame.
func (f *Frame) Full() bool {
	return f.n == FrameSize
}

// Bytes returns a view of the held bytes. The slice aliases the frame.
func (f *Frame) Bytes() []byte {
	return f.buf[:f.n]
}

// Append copies as many bytes of p as fit and returns how many were taken.
func (f *Frame) Append(p []byte) int {
	n := copy(f.buf[f.n:], p)
	f.n += n
	return n
}

// Set replaces the frame contents with p.
func (f *Frame) Set(p []byte) error {
	if len(p) > FrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameOverflow, len(p))
	}
	f.n = copy(f.buf[:], p)
	return nil
}

// PutAddress writes addr as a 3 byte little-endian value into dst.
func PutAddress(dst []byte, addr uint32) error {
	if addr > MaxAddress {
		return fmt.Errorf("%w: 0x%X", ErrAddressRange, addr)
	}
	if len(dst) < AddressSize {
		return ErrShortFrame
	}
	dst[0] = byte(addr)
	dst[1] = byte(addr >> 8)
	dst[2] = byte(addr >> 16)
	return nil
}

// Address reads a 3 byte little-endian value.
func Address(src []byte) uint32 {
	return uint32(src[0]) | uint32(src[1])<<8 | uint32(src[2])<<16
}

// EncodeDataFrame builds a 19 byte data frame for block at addr.
func EncodeDataFrame(dst *Frame, addr uint32, block []byte) error {
	if len(block) != BlockSize {
		return fmt.Errorf("data block must be %d bytes, got %d", BlockSize, len(block))
	}
	var hdr [AddressSize]byte
	if err := PutAddress(hdr[:], addr); err != nil {
		return err
	}
	dst.Reset()
	dst.Append(hdr[:])
	dst.Append(block)
	return nil
}

// DecodeDataFrame splits a data frame into its address and payload. The
// payload aliases p.
func DecodeDataFrame(p []byte) (addr uint32, block []byte, err error) {
	if len(p) != FrameSize {
		return 0, nil, fmt.Errorf("%w: data frame is %d bytes", ErrShortFrame, len(p))
	}
	return Address(p), p[AddressSize:], nil
}
