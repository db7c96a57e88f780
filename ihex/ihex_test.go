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

package ihex

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type buffer struct {
	data []byte
}

func newBuffer(size int) *buffer {
	return &buffer{data: bytes.Repeat([]byte{0xFF}, size)}
}

func (b *buffer) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || int(off)+len(p) > len(b.data) {
		return 0, errors.New("out of range")
	}
	return copy(b.data[off:], p), nil
}

func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		want     map[uint32][]byte
		start    uint32
		end      uint32
		warnings int
		wantErr  error
	}{
		{
			name: "data and eof",
			input: ":0400000001020304F2\n" +
				":0400100005060708D2\n" +
				":00000001FF\n",
			want:  map[uint32][]byte{0: {1, 2, 3, 4}, 0x10: {5, 6, 7, 8}},
			start: 0,
			end:   0x14,
		},
		{
			name: "records after eof ignored",
			input: ":0400000001020304F2\n" +
				":00000001FF\n" +
				":0400100005060708D2\n",
			want:  map[uint32][]byte{0: {1, 2, 3, 4}},
			start: 0,
			end:   4,
		},
		{
			name: "checksum mismatch is a warning",
			input: ":0400200001020304FF\n" +
				":00000001FF\n",
			want:     map[uint32][]byte{0x20: {1, 2, 3, 4}},
			start:    0x20,
			end:      0x24,
			warnings: 1,
		},
		{
			name: "extended segment address",
			input: ":020000021000EC\n" +
				":02000000AABB99\n",
			want:  map[uint32][]byte{0x10000: {0xAA, 0xBB}},
			start: 0x10000,
			end:   0x10002,
		},
		{
			name:  "lines without colon skipped",
			input: "garbage\n\n  :02000400ABCD82\n",
			want:  map[uint32][]byte{4: {0xAB, 0xCD}},
			start: 4,
			end:   6,
		},
		{
			name:    "bad hex",
			input:   ":0400000001020Z04F2\n",
			wantErr: ErrMalformedRecord,
		},
		{
			name:    "count mismatch",
			input:   ":0500000001020304F2\n",
			wantErr: ErrMalformedRecord,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			buf := newBuffer(0x10100)
			res, err := Decode(strings.NewReader(tt.input), buf)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.start, res.Start)
			assert.Equal(t, tt.end, res.End)
			assert.Len(t, res.Warnings, tt.warnings)
			for addr, data := range tt.want {
				assert.Equal(t, data, buf.data[addr:int(addr)+len(data)], "address 0x%x", addr)
			}
		})
	}
}

func TestDecode_WriteOutOfRange(t *testing.T) {
	t.Parallel()

	_, err := Decode(strings.NewReader(":0400000001020304F2\n"), newBuffer(2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestDecode_Empty(t *testing.T) {
	t.Parallel()

	res, err := Decode(strings.NewReader(":00000001FF\n"), newBuffer(16))
	require.NoError(t, err)
	assert.True(t, res.Empty())
}

func TestChecksumWarning_Error(t *testing.T) {
	t.Parallel()

	w := &ChecksumWarning{Line: 3, Start: 0x100, End: 0x110}
	assert.Equal(t, "checksum error between address 0x100 and 0x110 (line 3)", w.Error())
}

func TestDecodeFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "fw.hex")
	require.NoError(t, os.WriteFile(path, []byte(":0400000001020304F2\n:00000001FF\n"), 0o600))

	buf := newBuffer(16)
	res, err := DecodeFile(path, buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), res.End)

	_, err = DecodeFile(filepath.Join(t.TempDir(), "missing.hex"), buf)
	require.Error(t, err)
}
