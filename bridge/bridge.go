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

// Package bridge implements the USB-attached relay. It turns feature report
// writes into radio frames, keeps the acknowledgement that came back for the
// next feature report read, and can program its own flash in local mode.
//
// Bridge state is limited to one reassembly offset, the frame and reply
// buffers and the radio role flag. Payload bytes are never interpreted; only
// command bytes are.
package bridge

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/ZaparooProject/go-otaboot/flash"
	"github.com/ZaparooProject/go-otaboot/protocol"
	"github.com/ZaparooProject/go-otaboot/radio"
)

// Bridge errors
var (
	ErrIncompleteReport = errors.New("report ended before its last chunk")
	ErrUnknownReport    = errors.New("unknown report id")
	ErrNoLocalFlash     = errors.New("local flash not configured")
	ErrLeftBootloader   = errors.New("bridge left the bootloader")
)

// Role is the bridge radio role.
type Role uint8

const (
	// RoleRX listens for remote beacons (passthrough).
	RoleRX Role = iota
	// RoleTX relays host traffic to the remote.
	RoleTX
)

func (r Role) String() string {
	if r == RoleTX {
		return "tx"
	}
	return "rx"
}

// Launcher hands control to the bridge application.
type Launcher interface {
	Launch() error
}

// Metrics counts relay activity.
type Metrics struct {
	FramesSent     int64
	FramesUnacked  int64
	BeaconsCaught  int64
	LocalBlocks    int64
	ReportsIgnored int64
}

// Bridge is the relay.
type Bridge struct {
	radio    radio.Radio
	dialect  protocol.Dialect
	prog     *flash.Programmer
	launcher Launcher

	frame   protocol.Frame
	reply   [protocol.ReplySize]byte
	local   [protocol.LocalDataSize]byte
	rx      [radio.MaxPayload]byte
	bootAck protocol.Frame
	lastErr error

	mu      sync.Mutex
	offset  int
	report  byte
	role    Role
	armed   bool
	leaving bool

	framesSent     atomic.Int64
	framesUnacked  atomic.Int64
	beaconsCaught  atomic.Int64
	localBlocks    atomic.Int64
	reportsIgnored atomic.Int64
}

// New creates a bridge on r. The canonical dialect starts listening for
// beacons; the legacy dialect has no listening phase and starts relaying.
func New(r radio.Radio, opts ...Option) (*Bridge, error) {
	if r == nil {
		return nil, errors.New("bridge: radio is required")
	}
	b := &Bridge{radio: r, dialect: protocol.Canonical}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}

	role := RoleRX
	if b.dialect != protocol.Canonical {
		role = RoleTX
	}
	if err := b.setRole(role); err != nil {
		return nil, err
	}
	protocol.EncodeReply(&b.reply, protocol.TxNoAck, nil)
	return b, nil
}

// Role returns the current radio role.
func (b *Bridge) Role() Role {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.role
}

// Armed reports whether a boot acknowledgement is queued for beaconing
// remotes.
func (b *Bridge) Armed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.armed
}

// GetMetrics returns the relay counters.
func (b *Bridge) GetMetrics() Metrics {
	return Metrics{
		FramesSent:     b.framesSent.Load(),
		FramesUnacked:  b.framesUnacked.Load(),
		BeaconsCaught:  b.beaconsCaught.Load(),
		LocalBlocks:    b.localBlocks.Load(),
		ReportsIgnored: b.reportsIgnored.Load(),
	}
}

func (b *Bridge) setRole(role Role) error {
	mode := radio.ModeRX
	if role == RoleTX {
		mode = radio.ModeTX
	}
	if err := b.radio.SetMode(mode); err != nil {
		return fmt.Errorf("bridge: switch to %s: %w", role, err)
	}
	b.role = role
	glog.V(2).Infof("bridge: radio role %s", role)
	return nil
}
