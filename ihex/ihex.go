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

// Package ihex decodes Intel HEX firmware files into a byte-addressed sink.
//
// Data records are written through an io.WriterAt, so the caller decides how
// the image is stored. Extended segment and extended linear address records
// move the base address; start address records are ignored. A record whose
// checksum does not match is still applied and reported as a ChecksumWarning.
package ihex

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Record types.
const (
	RecordData                   = 0x00
	RecordEOF                    = 0x01
	RecordExtendedSegmentAddress = 0x02
	RecordStartSegmentAddress    = 0x03
	RecordExtendedLinearAddress  = 0x04
	RecordStartLinearAddress     = 0x05
)

// minRecordBytes is count + address + type + checksum.
const minRecordBytes = 5

// ErrMalformedRecord is returned for a record that is not valid hex or whose
// length disagrees with its byte count.
var ErrMalformedRecord = errors.New("malformed record")

// ChecksumWarning reports a record whose checksum did not add up. The data
// was applied anyway.
type ChecksumWarning struct {
	Line  int
	Start uint32
	End   uint32
}

func (w *ChecksumWarning) Error() string {
	return fmt.Sprintf("checksum error between address 0x%x and 0x%x (line %d)", w.Start, w.End, w.Line)
}

// Result summarises a decoded file.
type Result struct {
	Warnings []*ChecksumWarning
	// Start is the lowest written address, End one past the highest.
	Start   uint32
	End     uint32
	Records int
}

// Empty reports whether no data was written.
func (r Result) Empty() bool {
	return r.Start >= r.End
}

// DecodeFile decodes the file at path into dst.
func DecodeFile(path string, dst io.WriterAt) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Decode(f, dst)
}

// Decode reads records from r and writes data records into dst. Lines that
// do not start with a colon are skipped. Decoding stops at the end-of-file
// record.
func Decode(r io.Reader, dst io.WriterAt) (Result, error) {
	res := Result{Start: ^uint32(0)}
	scanner := bufio.NewScanner(r)

	var base uint32
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}

		rec, sumOK, err := parseRecord(line[idx+1:])
		if err != nil {
			return res, fmt.Errorf("line %d: %w", lineNum, err)
		}
		res.Records++

		switch rec.kind {
		case RecordData:
			start := base + uint32(rec.offset)
			end := start + uint32(len(rec.data))
			if _, err := dst.WriteAt(rec.data, int64(start)); err != nil {
				return res, fmt.Errorf("line %d: write 0x%x: %w", lineNum, start, err)
			}
			if !sumOK {
				res.Warnings = append(res.Warnings, &ChecksumWarning{Line: lineNum, Start: start, End: end})
			}
			res.Start = min(res.Start, start)
			res.End = max(res.End, end)
		case RecordEOF:
			return finish(res, scanner.Err())
		case RecordExtendedSegmentAddress:
			if len(rec.data) != 2 {
				return res, fmt.Errorf("line %d: %w: segment record length %d", lineNum, ErrMalformedRecord, len(rec.data))
			}
			base = (uint32(rec.data[0])<<8 | uint32(rec.data[1])) << 4
		case RecordExtendedLinearAddress:
			if len(rec.data) != 2 {
				return res, fmt.Errorf("line %d: %w: linear record length %d", lineNum, ErrMalformedRecord, len(rec.data))
			}
			base = (uint32(rec.data[0])<<8 | uint32(rec.data[1])) << 16
		}
	}
	return finish(res, scanner.Err())
}

func finish(res Result, scanErr error) (Result, error) {
	if scanErr != nil {
		return res, fmt.Errorf("failed to read file: %w", scanErr)
	}
	if res.Start == ^uint32(0) {
		res.Start = 0
	}
	return res, nil
}

type record struct {
	data   []byte
	offset uint16
	kind   byte
}

func parseRecord(text string) (record, bool, error) {
	raw, err := hex.DecodeString(text)
	if err != nil {
		return record{}, false, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}
	if len(raw) < minRecordBytes {
		return record{}, false, fmt.Errorf("%w: %d bytes", ErrMalformedRecord, len(raw))
	}
	count := int(raw[0])
	if len(raw) != count+minRecordBytes {
		return record{}, false, fmt.Errorf("%w: length %d does not match count %d", ErrMalformedRecord, len(raw), count)
	}

	var sum byte
	for _, b := range raw {
		sum += b
	}
	rec := record{
		offset: uint16(raw[1])<<8 | uint16(raw[2]),
		kind:   raw[3],
		data:   raw[4 : 4+count],
	}
	return rec, sum == 0, nil
}
