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

package flash

import (
	"bytes"
	"fmt"
	"sync"
)

// Memory is an in-memory flash controller. It keeps per page erase and write
// counters so callers can assert programming discipline. Writing a page
// without erasing it first only clears bits, as real NOR flash does.
type Memory struct {
	data     []byte
	pageBuf  []byte
	erases   map[uint32]int
	writes   map[uint32]int
	pageSize int
	mu       sync.Mutex
}

// NewMemory creates an erased flash of size bytes.
func NewMemory(pageSize, size int) (*Memory, error) {
	if err := checkGeometry(pageSize, size); err != nil {
		return nil, err
	}
	m := &Memory{
		data:     bytes.Repeat([]byte{0xFF}, size),
		pageBuf:  bytes.Repeat([]byte{0xFF}, pageSize),
		erases:   make(map[uint32]int),
		writes:   make(map[uint32]int),
		pageSize: pageSize,
	}
	return m, nil
}

// PageSize returns the page size in bytes.
func (m *Memory) PageSize() int { return m.pageSize }

// Size returns the flash size in bytes.
func (m *Memory) Size() int { return len(m.data) }

func (m *Memory) pageOf(addr uint32) uint32 {
	return addr &^ uint32(m.pageSize-1)
}

func (m *Memory) check(addr uint32) error {
	if int(addr) >= len(m.data) {
		return fmt.Errorf("%w: 0x%05X", ErrOutOfRange, addr)
	}
	return nil
}

// ErasePage sets every byte of the page containing addr to 0xFF.
func (m *Memory) ErasePage(addr uint32) error {
	if err := m.check(addr); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	page := m.pageOf(addr)
	for i := 0; i < m.pageSize; i++ {
		m.data[int(page)+i] = 0xFF
	}
	m.erases[page]++
	return nil
}

// FillWord stages a little-endian word in the page buffer.
func (m *Memory) FillWord(addr uint32, word uint16) error {
	if err := m.check(addr); err != nil {
		return err
	}
	if addr%2 != 0 {
		return fmt.Errorf("%w: 0x%05X", ErrUnaligned, addr)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	off := int(addr) & (m.pageSize - 1)
	m.pageBuf[off] = byte(word)
	m.pageBuf[off+1] = byte(word >> 8)
	return nil
}

// WritePage commits the page buffer into the page containing addr and resets
// the buffer.
func (m *Memory) WritePage(addr uint32) error {
	if err := m.check(addr); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	page := int(m.pageOf(addr))
	for i := 0; i < m.pageSize; i++ {
		m.data[page+i] &= m.pageBuf[i]
		m.pageBuf[i] = 0xFF
	}
	m.writes[uint32(page)]++
	return nil
}

// ReadAt implements io.ReaderAt over the flash contents.
func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if off < 0 || off >= int64(len(m.data)) {
		return 0, fmt.Errorf("%w: offset %d", ErrOutOfRange, off)
	}
	return copy(p, m.data[off:]), nil
}

// Erases returns how many times the page containing addr was erased.
func (m *Memory) Erases(addr uint32) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.erases[m.pageOf(addr)]
}

// Writes returns how many times the page containing addr was written.
func (m *Memory) Writes(addr uint32) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[m.pageOf(addr)]
}

// TotalErases returns the erase count across all pages.
func (m *Memory) TotalErases() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.erases {
		total += n
	}
	return total
}

// MemoryEEPROM is an in-memory EEPROM in its erased (0xFF) state.
type MemoryEEPROM struct {
	data   []byte
	writes int
	mu     sync.Mutex
}

// NewMemoryEEPROM creates an erased EEPROM of size bytes.
func NewMemoryEEPROM(size int) *MemoryEEPROM {
	return &MemoryEEPROM{data: bytes.Repeat([]byte{0xFF}, size)}
}

// Size returns the EEPROM size in bytes.
func (e *MemoryEEPROM) Size() int { return len(e.data) }

// LoadByte returns the byte at offset.
func (e *MemoryEEPROM) LoadByte(offset int) (byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if offset < 0 || offset >= len(e.data) {
		return 0, fmt.Errorf("%w: eeprom offset %d", ErrOutOfRange, offset)
	}
	return e.data[offset], nil
}

// StoreByte stores v at offset.
func (e *MemoryEEPROM) StoreByte(offset int, v byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if offset < 0 || offset >= len(e.data) {
		return fmt.Errorf("%w: eeprom offset %d", ErrOutOfRange, offset)
	}
	e.data[offset] = v
	e.writes++
	return nil
}

// WriteCount returns how many writes reached the EEPROM.
func (e *MemoryEEPROM) WriteCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.writes
}
