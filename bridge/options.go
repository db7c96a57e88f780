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

package bridge

import (
	"errors"

	"github.com/ZaparooProject/go-otaboot/flash"
	"github.com/ZaparooProject/go-otaboot/protocol"
)

// Option configures a Bridge.
type Option func(*Bridge) error

// WithDialect selects the wire dialect.
func WithDialect(d protocol.Dialect) Option {
	return func(b *Bridge) error {
		if d == nil {
			return errors.New("bridge: nil dialect")
		}
		b.dialect = d
		return nil
	}
}

// WithLocalFlash enables local mode: reports 1 and 2 program the bridge's
// own flash through prog.
func WithLocalFlash(prog *flash.Programmer) Option {
	return func(b *Bridge) error {
		b.prog = prog
		return nil
	}
}

// WithLauncher sets what runs when the host asks the bridge to leave the
// bootloader.
func WithLauncher(l Launcher) Option {
	return func(b *Bridge) error {
		b.launcher = l
		return nil
	}
}
