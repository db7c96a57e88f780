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

package radio

import "fmt"

// Mailbox is a single-slot ack payload holder. Put replaces the held payload
// and Take hands it out exactly once.
type Mailbox struct {
	buf  [MaxPayload]byte
	n    int
	full bool
}

// Put stores p, replacing any payload already held.
func (m *Mailbox) Put(p []byte) error {
	if len(p) > MaxPayload {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(p))
	}
	m.n = copy(m.buf[:], p)
	m.full = true
	return nil
}

// Take copies the held payload into dst and empties the slot. ok is false
// when the slot was already empty.
func (m *Mailbox) Take(dst []byte) (n int, ok bool) {
	if !m.full {
		return 0, false
	}
	n = copy(dst, m.buf[:m.n])
	m.full = false
	m.n = 0
	return n, true
}

// Full reports whether a payload is queued.
func (m *Mailbox) Full() bool {
	return m.full
}

// Clear drops the queued payload.
func (m *Mailbox) Clear() {
	m.full = false
	m.n = 0
}
