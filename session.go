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

	"github.com/rs/xid"
)

// Mode selects between flashing the bridge itself and relaying to a remote
type Mode int

const (
	// ModeLocal programs the bridge through reports 1 and 2
	ModeLocal Mode = iota
	// ModeRemote relays through reports 3 and 4 over the radio
	ModeRemote
)

func (m Mode) String() string {
	switch m {
	case ModeLocal:
		return "local"
	case ModeRemote:
		return "remote"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Session is the host side bookkeeping of one programming run
type Session struct {
	ID          xid.ID
	Mode        Mode
	TargetID    byte
	PageSize    int
	FlashSize   int
	Cursor      uint32
	RetryBudget int
}

func newSession(mode Mode) *Session {
	return &Session{ID: xid.New(), Mode: mode}
}

func (s *Session) apply(info DeviceInfo) {
	if info.DeviceID != 0 {
		s.TargetID = info.DeviceID
	}
	s.PageSize = info.PageSize
	s.FlashSize = info.FlashSize
}

// Info returns the device geometry the session last learned
func (s *Session) Info() DeviceInfo {
	return DeviceInfo{DeviceID: s.TargetID, PageSize: s.PageSize, FlashSize: s.FlashSize}
}

func (s *Session) String() string {
	return fmt.Sprintf("session %s (%s, target 0x%02X)", s.ID, s.Mode, s.TargetID)
}
