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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-otaboot/protocol"
)

func imageWith(t *testing.T, off int64, n int) *FirmwareImage {
	t.Helper()
	img := NewFirmwareImage()
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i)
	}
	_, err := img.WriteAt(data, off)
	require.NoError(t, err)
	return img
}

func TestPlanTransfer_Scenario(t *testing.T) {
	t.Parallel()

	img := imageWith(t, 0, 0x480)
	plan, err := PlanTransfer(img, DeviceInfo{PageSize: 128, FlashSize: 32768})
	require.NoError(t, err)

	assert.Equal(t, uint32(0x0000), plan.Start)
	assert.Equal(t, uint32(0x0500), plan.End)
	assert.Equal(t, uint32(0x0480), plan.DataEnd)

	local := plan.Blocks(protocol.LocalBlockSize)
	assert.Len(t, local, 10)
	for i, b := range local {
		assert.Equal(t, uint32(i*protocol.LocalBlockSize), b.Address)
		assert.Len(t, b.Data, protocol.LocalBlockSize)
	}

	remote := plan.RemotePlan().Blocks(protocol.BlockSize)
	withData := 0
	for _, b := range remote {
		if b.Address < plan.DataEnd {
			withData++
		}
	}
	assert.Equal(t, 72, withData)
	assert.Len(t, remote, 80)
	assert.Equal(t, []byte{0xFF, 0xFF}, remote[79].Data[:2])
}

func TestPlanTransfer_DeviceInfoScaling(t *testing.T) {
	t.Parallel()

	ack := protocol.AckPayload{Kind: protocol.AckDeviceInfo, PageSizeHalf: 64, FlashSizeKB: 30}
	info := DeviceInfo{PageSize: ack.PageSize(), FlashSize: ack.FlashSize()}

	assert.Equal(t, 128, info.PageSize)
	assert.Equal(t, 30720, info.FlashSize)
	assert.Equal(t, uint32(28672), info.Limit())

	_, err := PlanTransfer(imageWith(t, 28670, 2), info)
	require.NoError(t, err)

	_, err = PlanTransfer(imageWith(t, 28672, 1), info)
	var tooLarge *ImageTooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, uint32(28800), tooLarge.End)
	assert.Equal(t, uint32(28672), tooLarge.Limit)
	assert.ErrorIs(t, err, ErrImageTooLarge)
}

func TestPlanTransfer_Rounding(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		off       int64
		n         int
		pageSize  int
		wantStart uint32
		wantEnd   uint32
	}{
		{name: "small pages round to 128", off: 0x40, n: 0x10, pageSize: 64, wantStart: 0x00, wantEnd: 0x80},
		{name: "start rounds down", off: 0x130, n: 0x20, pageSize: 128, wantStart: 0x100, wantEnd: 0x180},
		{name: "aligned range unchanged", off: 0x100, n: 0x100, pageSize: 128, wantStart: 0x100, wantEnd: 0x200},
		{name: "large pages", off: 0x10, n: 0x10, pageSize: 256, wantStart: 0x000, wantEnd: 0x100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			plan, err := PlanTransfer(imageWith(t, tt.off, tt.n), DeviceInfo{PageSize: tt.pageSize, FlashSize: 32768})
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, plan.Start)
			assert.Equal(t, tt.wantEnd, plan.End)
			assert.Equal(t, uint32(0), plan.RemotePlan().Start)
		})
	}
}

func TestPlanTransfer_Invalid(t *testing.T) {
	t.Parallel()

	_, err := PlanTransfer(NewFirmwareImage(), DeviceInfo{PageSize: 128, FlashSize: 32768})
	require.ErrorIs(t, err, ErrInvalidParameter)

	_, err = PlanTransfer(imageWith(t, 0, 16), DeviceInfo{PageSize: 96, FlashSize: 32768})
	require.ErrorIs(t, err, ErrInvalidParameter)

	_, err = PlanTransfer(imageWith(t, 0, 16), DeviceInfo{PageSize: 128, FlashSize: 1024})
	require.ErrorIs(t, err, ErrImageTooLarge)
}

func TestFirmwareImage(t *testing.T) {
	t.Parallel()

	img := NewFirmwareImageSize(64)
	assert.True(t, img.Empty())
	assert.Equal(t, byte(0xFF), img.Bytes()[10])

	_, err := img.WriteAt([]byte{1, 2}, 20)
	require.NoError(t, err)
	_, err = img.WriteAt([]byte{3}, 4)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), img.Start())
	assert.Equal(t, uint32(22), img.End())
	assert.False(t, img.Empty())

	_, err = img.WriteAt([]byte{1, 2}, 63)
	require.Error(t, err)
}
