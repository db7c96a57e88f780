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

package remote

import (
	"errors"

	"github.com/ZaparooProject/go-otaboot/protocol"
)

// DefaultDeviceID is used when no identifier is configured.
const DefaultDeviceID byte = 0x01

// Option configures a Remote.
type Option func(*Remote) error

// WithDeviceID sets the identifier the remote answers to. Zero is reserved
// for "no device".
func WithDeviceID(id byte) Option {
	return func(rm *Remote) error {
		if id == 0 {
			return errors.New("remote: device id 0 is reserved")
		}
		rm.id = id
		return nil
	}
}

// WithDialect selects the wire dialect.
func WithDialect(d protocol.Dialect) Option {
	return func(rm *Remote) error {
		if d == nil {
			return errors.New("remote: nil dialect")
		}
		rm.dialect = d
		return nil
	}
}
