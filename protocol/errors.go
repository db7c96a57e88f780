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

import "errors"

// Wire format errors
var (
	ErrShortFrame      = errors.New("frame too short")
	ErrFrameOverflow   = errors.New("frame capacity exceeded")
	ErrUnknownCommand  = errors.New("unknown command")
	ErrUnsupported     = errors.New("command not supported by dialect")
	ErrPayloadTooLarge = errors.New("ack payload too large")
	ErrAddressRange    = errors.New("address does not fit in 3 bytes")
	ErrWrongReport     = errors.New("unexpected report id")
	ErrMalformedAck    = errors.New("malformed ack payload")
)
