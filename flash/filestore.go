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
	"errors"
	"fmt"
	"os"
	"sync"
)

// ErrLocked is returned when another process holds the backing file.
var ErrLocked = errors.New("flash store is locked by another process")

// FileStore is a flash controller and EEPROM backed by a single file: the
// flash image followed by the EEPROM bytes. It lets a Linux node keep its
// programmed image and validity flag across restarts.
type FileStore struct {
	f          *os.File
	pageBuf    []byte
	pageSize   int
	size       int
	eepromSize int
	mu         sync.Mutex
}

// OpenFileStore opens or creates the backing file at path and takes an
// exclusive lock on it.
func OpenFileStore(path string, pageSize, size, eepromSize int) (*FileStore, error) {
	if err := checkGeometry(pageSize, size); err != nil {
		return nil, err
	}
	if eepromSize <= 0 {
		return nil, fmt.Errorf("%w: eeprom size %d", ErrBadGeometry, eepromSize)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open flash store %s: %w", path, err)
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		return nil, err
	}

	fs := &FileStore{
		f:          f,
		pageBuf:    bytes.Repeat([]byte{0xFF}, pageSize),
		pageSize:   pageSize,
		size:       size,
		eepromSize: eepromSize,
	}
	if err := fs.init(); err != nil {
		_ = fs.Close()
		return nil, err
	}
	return fs, nil
}

func (fs *FileStore) init() error {
	st, err := fs.f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat flash store: %w", err)
	}
	total := int64(fs.size + fs.eepromSize)
	switch st.Size() {
	case 0:
		if _, err := fs.f.WriteAt(bytes.Repeat([]byte{0xFF}, int(total)), 0); err != nil {
			return fmt.Errorf("failed to initialise flash store: %w", err)
		}
		return nil
	case total:
		return nil
	default:
		return fmt.Errorf("%w: store is %d bytes, want %d", ErrBadGeometry, st.Size(), total)
	}
}

// Close releases the lock and closes the file.
func (fs *FileStore) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_ = unlockFile(fs.f)
	if err := fs.f.Close(); err != nil {
		return fmt.Errorf("failed to close flash store: %w", err)
	}
	return nil
}

// PageSize returns the page size in bytes.
func (fs *FileStore) PageSize() int { return fs.pageSize }

// Size returns the flash size in bytes.
func (fs *FileStore) Size() int { return fs.size }

func (fs *FileStore) check(addr uint32) error {
	if int(addr) >= fs.size {
		return fmt.Errorf("%w: 0x%05X", ErrOutOfRange, addr)
	}
	return nil
}

func (fs *FileStore) pageOf(addr uint32) int64 {
	return int64(addr &^ uint32(fs.pageSize-1))
}

// ErasePage fills the page containing addr with 0xFF.
func (fs *FileStore) ErasePage(addr uint32) error {
	if err := fs.check(addr); err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, err := fs.f.WriteAt(bytes.Repeat([]byte{0xFF}, fs.pageSize), fs.pageOf(addr)); err != nil {
		return fmt.Errorf("failed to erase page: %w", err)
	}
	return nil
}

// FillWord stages a little-endian word in the page buffer.
func (fs *FileStore) FillWord(addr uint32, word uint16) error {
	if err := fs.check(addr); err != nil {
		return err
	}
	if addr%2 != 0 {
		return fmt.Errorf("%w: 0x%05X", ErrUnaligned, addr)
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	off := int(addr) & (fs.pageSize - 1)
	fs.pageBuf[off] = byte(word)
	fs.pageBuf[off+1] = byte(word >> 8)
	return nil
}

// WritePage commits the page buffer and syncs the file.
func (fs *FileStore) WritePage(addr uint32) error {
	if err := fs.check(addr); err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	page := fs.pageOf(addr)
	cur := make([]byte, fs.pageSize)
	if _, err := fs.f.ReadAt(cur, page); err != nil {
		return fmt.Errorf("failed to read page: %w", err)
	}
	for i := range cur {
		cur[i] &= fs.pageBuf[i]
		fs.pageBuf[i] = 0xFF
	}
	if _, err := fs.f.WriteAt(cur, page); err != nil {
		return fmt.Errorf("failed to write page: %w", err)
	}
	if err := fs.f.Sync(); err != nil {
		return fmt.Errorf("failed to sync flash store: %w", err)
	}
	return nil
}

// ReadAt reads flash contents.
func (fs *FileStore) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(fs.size) {
		return 0, fmt.Errorf("%w: offset %d", ErrOutOfRange, off)
	}
	if rem := int64(fs.size) - off; int64(len(p)) > rem {
		p = p[:rem]
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n, err := fs.f.ReadAt(p, off)
	if err != nil {
		return n, fmt.Errorf("failed to read flash store: %w", err)
	}
	return n, nil
}

// EEPROM returns the EEPROM view of the store.
func (fs *FileStore) EEPROM() EEPROM {
	return fileEEPROM{fs: fs}
}

type fileEEPROM struct {
	fs *FileStore
}

func (e fileEEPROM) Size() int { return e.fs.eepromSize }

func (e fileEEPROM) LoadByte(offset int) (byte, error) {
	if offset < 0 || offset >= e.fs.eepromSize {
		return 0, fmt.Errorf("%w: eeprom offset %d", ErrOutOfRange, offset)
	}
	e.fs.mu.Lock()
	defer e.fs.mu.Unlock()
	var b [1]byte
	if _, err := e.fs.f.ReadAt(b[:], int64(e.fs.size+offset)); err != nil {
		return 0, fmt.Errorf("failed to read eeprom: %w", err)
	}
	return b[0], nil
}

func (e fileEEPROM) StoreByte(offset int, v byte) error {
	if offset < 0 || offset >= e.fs.eepromSize {
		return fmt.Errorf("%w: eeprom offset %d", ErrOutOfRange, offset)
	}
	e.fs.mu.Lock()
	defer e.fs.mu.Unlock()
	if _, err := e.fs.f.WriteAt([]byte{v}, int64(e.fs.size+offset)); err != nil {
		return fmt.Errorf("failed to write eeprom: %w", err)
	}
	if err := e.fs.f.Sync(); err != nil {
		return fmt.Errorf("failed to sync eeprom: %w", err)
	}
	return nil
}
