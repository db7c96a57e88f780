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

import "time"

// Progress describes how far an upload has come
type Progress struct {
	// Phase is the phase that produced the update
	Phase Phase

	// Address is the block just confirmed
	Address uint32

	// Block is the 1-based index of that block
	Block int

	// TotalBlocks is the number of blocks in the plan
	TotalBlocks int

	// BytesWritten counts confirmed bytes
	BytesWritten int

	// Elapsed is the time since the first block was sent
	Elapsed time.Duration
}

// Percentage is the completion percentage (0.0 to 100.0)
func (p Progress) Percentage() float64 {
	if p.TotalBlocks == 0 {
		return 0
	}
	return float64(p.Block) * 100 / float64(p.TotalBlocks)
}

// ProgressCallback is called after every confirmed block. It runs on the
// upload goroutine and should return quickly.
type ProgressCallback func(Progress)
