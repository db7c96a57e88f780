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

// Package flash models the self-programming flash controller and the EEPROM
// byte that records whether the application image is bootable.
package flash

import (
	"errors"
	"fmt"
)

// Flash errors
var (
	ErrOutOfRange  = errors.New("address out of range")
	ErrUnaligned   = errors.New("address not word aligned")
	ErrOddLength   = errors.New("data length must be a multiple of 2")
	ErrBadGeometry = errors.New("invalid flash geometry")
)

// Controller is the flash programming capability of a microcontroller. Words
// are staged into a page buffer with FillWord and committed with WritePage.
// A page must be erased before it is written.
type Controller interface {
	PageSize() int
	Size() int
	ErasePage(addr uint32) error
	FillWord(addr uint32, word uint16) error
	WritePage(addr uint32) error
}

// EEPROM is byte addressed non-volatile storage.
type EEPROM interface {
	Size() int
	LoadByte(offset int) (byte, error)
	StoreByte(offset int, v byte) error
}

// Validity is the persisted marker telling the bootloader an application
// image may be started.
type Validity byte

const (
	Valid   Validity = 0xAA
	Invalid Validity = 0xFF
)

// ValidityOffset returns the EEPROM offset of the validity byte: the last one.
func ValidityOffset(e EEPROM) int {
	return e.Size() - 1
}

// IsValid reads the validity byte. Anything but Valid counts as invalid.
func IsValid(e EEPROM) (bool, error) {
	v, err := e.LoadByte(ValidityOffset(e))
	if err != nil {
		return false, fmt.Errorf("failed to read validity flag: %w", err)
	}
	return Validity(v) == Valid, nil
}

// SetValidity persists v, skipping the write when the byte already holds it.
func SetValidity(e EEPROM, v Validity) error {
	off := ValidityOffset(e)
	cur, err := e.LoadByte(off)
	if err != nil {
		return fmt.Errorf("failed to read validity flag: %w", err)
	}
	if Validity(cur) == v {
		return nil
	}
	if err := e.StoreByte(off, byte(v)); err != nil {
		return fmt.Errorf("failed to write validity flag: %w", err)
	}
	return nil
}

func checkGeometry(pageSize, size int) error {
	if pageSize <= 0 || pageSize%2 != 0 || pageSize&(pageSize-1) != 0 {
		return fmt.Errorf("%w: page size %d", ErrBadGeometry, pageSize)
	}
	if size <= 0 || size%pageSize != 0 {
		return fmt.Errorf("%w: flash size %d is not a multiple of page size %d", ErrBadGeometry, size, pageSize)
	}
	return nil
}
