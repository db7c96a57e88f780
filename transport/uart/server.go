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

package uart

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/ZaparooProject/go-otaboot/internal/frame"
)

// serverPollTimeout bounds how long Service waits for host bytes
const serverPollTimeout = time.Millisecond

// ReportHandler is the bridge side of the report exchange
type ReportHandler interface {
	SetReport(report []byte) error
	GetReport(id byte) ([]byte, error)
}

// Server answers host frames arriving on a serial port. It implements
// bridge.Port.
type Server struct {
	port    Port
	handler ReportHandler
	buf     []byte
	read    [256]byte
}

// NewServer serves handler on port
func NewServer(port Port, handler ReportHandler) (*Server, error) {
	if port == nil || handler == nil {
		return nil, errors.New("uart: port and handler are required")
	}
	if err := port.SetReadTimeout(serverPollTimeout); err != nil {
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}
	return &Server{port: port, handler: handler}, nil
}

// Service reads whatever the host has sent and answers at most one complete
// frame. Partial frames are kept for the next call.
func (s *Server) Service() (active bool, err error) {
	if !s.complete() {
		n, err := s.port.Read(s.read[:])
		if err != nil {
			return false, fmt.Errorf("uart: read: %w", err)
		}
		s.buf = append(s.buf, s.read[:n]...)
	}

	for len(s.buf) > 0 {
		op, payload, n, err := frame.Decode(s.buf)
		switch {
		case errors.Is(err, frame.ErrShortPayload):
			return false, nil
		case errors.Is(err, frame.ErrNoStart):
			s.resync()
			continue
		case errors.Is(err, frame.ErrChecksum):
			glog.V(2).Infof("uart: dropping corrupt frame % X", s.buf[:n])
			s.buf = s.buf[n:]
			continue
		case err != nil:
			return false, err
		}

		reply := s.handle(op, payload)
		s.buf = s.buf[n:]
		if _, err := s.port.Write(reply); err != nil {
			return true, fmt.Errorf("uart: write reply: %w", err)
		}
		return true, nil
	}
	return false, nil
}

// complete reports whether a whole frame is already buffered
func (s *Server) complete() bool {
	_, _, _, err := frame.Decode(s.buf)
	return err == nil || errors.Is(err, frame.ErrChecksum)
}

// resync drops bytes up to the next start byte
func (s *Server) resync() {
	for i := 1; i < len(s.buf); i++ {
		if s.buf[i] == frame.Start {
			s.buf = s.buf[i:]
			return
		}
	}
	s.buf = s.buf[:0]
}

func (s *Server) handle(op byte, payload []byte) []byte {
	var (
		body []byte
		err  error
	)
	switch op {
	case frame.OpSet:
		err = s.handler.SetReport(payload)
	case frame.OpGet:
		if len(payload) != 1 {
			err = fmt.Errorf("get report needs one id byte, got %d", len(payload))
			break
		}
		body, err = s.handler.GetReport(payload[0])
	default:
		err = fmt.Errorf("unknown op 0x%02X", op)
	}

	status := []byte{frame.StatusOK}
	if err != nil {
		glog.V(1).Infof("uart: op 0x%02X: %v", op, err)
		status = []byte{frame.StatusErr}
		body = []byte(err.Error())
		if len(body) > frame.MaxPayloadLength-1 {
			body = body[:frame.MaxPayloadLength-1]
		}
	}
	reply, encErr := frame.Encode(op|frame.ReplyFlag, append(status, body...))
	if encErr != nil {
		reply, _ = frame.Encode(op|frame.ReplyFlag, []byte{frame.StatusErr})
	}
	return reply
}
