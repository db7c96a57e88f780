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
	"encoding/binary"
	"fmt"
	"sync"
)

// Programmer runs the page erase/fill/write sequence shared by the remote and
// the bridge programming itself. All controller access happens under mu; on
// hardware this is the section that runs with interrupts disabled.
type Programmer struct {
	ctrl Controller
	mu   sync.Mutex
}

// NewProgrammer wraps a flash controller.
func NewProgrammer(ctrl Controller) *Programmer {
	return &Programmer{ctrl: ctrl}
}

// Controller returns the wrapped controller.
func (p *Programmer) Controller() Controller {
	return p.ctrl
}

// Program writes data starting at addr one half-word at a time and returns
// the address following the last byte written. A page is erased when addr
// sits on its first byte and committed as soon as addr crosses into the next
// page.
func (p *Programmer) Program(addr uint32, data []byte) (uint32, error) {
	if len(data)%2 != 0 {
		return addr, fmt.Errorf("%w: %d bytes", ErrOddLength, len(data))
	}
	if addr%2 != 0 {
		return addr, fmt.Errorf("%w: 0x%05X", ErrUnaligned, addr)
	}
	if int(addr)+len(data) > p.ctrl.Size() {
		return addr, fmt.Errorf("%w: 0x%05X+%d", ErrOutOfRange, addr, len(data))
	}

	mask := uint32(p.ctrl.PageSize() - 1)

	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < len(data); i += 2 {
		if addr&mask == 0 {
			if err := p.ctrl.ErasePage(addr); err != nil {
				return addr, fmt.Errorf("erase page 0x%05X: %w", addr, err)
			}
		}
		if err := p.ctrl.FillWord(addr, binary.LittleEndian.Uint16(data[i:])); err != nil {
			return addr, fmt.Errorf("fill word 0x%05X: %w", addr, err)
		}
		prev := addr
		addr += 2
		if addr&mask == 0 {
			if err := p.ctrl.WritePage(prev); err != nil {
				return addr, fmt.Errorf("write page 0x%05X: %w", prev, err)
			}
		}
	}
	return addr, nil
}
