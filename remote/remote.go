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

// Package remote implements the flash-programmer that runs on the wireless
// node. It listens passively with one ack payload always queued, programs
// 16-byte blocks strictly in address order and hands control to the
// application once told to boot or after a period of silence.
package remote

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

// ErrBooted is returned once the application has been launched.
var ErrBooted = errors.New("remote has booted the application")

// State is the bootloader state.
type State uint8

const (
	StateIdle State = iota
	StateArmed
	StateProgramming
	StateFinishing
	StateBooted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateProgramming:
		return "programming"
	case StateFinishing:
		return "finishing"
	case StateBooted:
		return "booted"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Indicator is the status LED pattern.
type Indicator uint8

const (
	IndicatorSteady Indicator = iota
	IndicatorBlink
)

// Launcher starts the application image. On hardware it does not return.
type Launcher interface {
	Launch() error
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func() error

// Launch calls f.
func (f LauncherFunc) Launch() error { return f() }

// Remote is the remote flash-programmer.
type Remote struct {
	radio    radio.Radio
	dialect  protocol.Dialect
	prog     *flash.Programmer
	eeprom   flash.EEPROM
	launcher Launcher

	payload protocol.AckPayload
	rx      [radio.MaxPayload]byte
	ack     [radio.MaxPayload]byte

	mu           sync.Mutex
	ticks        atomic.Uint32
	lastActivity uint32
	cursor       uint32
	state        State
	id           byte
	canExit      bool
	heard        bool
}

// New creates a remote bound to r, programming through prog and keeping the
// validity flag in eeprom. The radio is put in receive mode with the initial
// device info payload queued.
func New(r radio.Radio, prog *flash.Programmer, eeprom flash.EEPROM, launcher Launcher, opts ...Option) (*Remote, error) {
	if r == nil || prog == nil || eeprom == nil {
		return nil, errors.New("remote: radio, programmer and eeprom are required")
	}
	rm := &Remote{
		radio:    r,
		dialect:  protocol.Canonical,
		prog:     prog,
		eeprom:   eeprom,
		launcher: launcher,
		id:       DefaultDeviceID,
	}
	for _, opt := range opts {
		if err := opt(rm); err != nil {
			return nil, err
		}
	}

	valid, err := flash.IsValid(eeprom)
	if err != nil {
		return nil, err
	}
	rm.canExit = valid

	if err := r.SetMode(radio.ModeRX); err != nil {
		return nil, fmt.Errorf("remote: listen: %w", err)
	}
	rm.payload = rm.deviceInfo(protocol.StatusBootReq)
	if err := rm.queue(); err != nil {
		return nil, err
	}
	glog.V(1).Infof("remote 0x%02X: %s dialect, page %d, flash %d, valid image %t",
		rm.id, rm.dialect.Name(), prog.Controller().PageSize(), prog.Controller().Size(), valid)
	return rm, nil
}

// ShouldEnter reports whether the bootloader should run instead of the
// application: when the button is held or no valid image is present.
func ShouldEnter(buttonHeld bool, eeprom flash.EEPROM) (bool, error) {
	if buttonHeld {
		return true, nil
	}
	valid, err := flash.IsValid(eeprom)
	if err != nil {
		return true, err
	}
	return !valid, nil
}

// DeviceID returns the identifier the remote answers to.
func (rm *Remote) DeviceID() byte { return rm.id }

// State returns the current state.
func (rm *Remote) State() State {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.state
}

// Cursor returns the next expected block address.
func (rm *Remote) Cursor() uint32 {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.cursor
}

// Payload returns the ack payload currently queued.
func (rm *Remote) Payload() protocol.AckPayload {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.payload
}

// Indicator returns the LED pattern for the current state.
func (rm *Remote) Indicator() Indicator {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.canExit && rm.state != StateProgramming {
		return IndicatorBlink
	}
	return IndicatorSteady
}

// Tick advances the seconds counter. It is the only thing the timer
// interrupt does and is safe to call from any goroutine.
func (rm *Remote) Tick() {
	rm.ticks.Add(1)
}

// Ticks returns the seconds counter.
func (rm *Remote) Ticks() uint32 {
	return rm.ticks.Load()
}

func (rm *Remote) deviceInfo(status byte) protocol.AckPayload {
	ctrl := rm.prog.Controller()
	return protocol.DeviceInfoPayload(rm.id, status, ctrl.PageSize(), ctrl.Size())
}

// queue re-arms the radio with the current payload.
func (rm *Remote) queue() error {
	n, err := rm.dialect.EncodeAck(rm.ack[:], rm.payload)
	if err != nil {
		return fmt.Errorf("remote: encode ack: %w", err)
	}
	if err := rm.radio.SetAckPayload(rm.ack[:n]); err != nil {
		return fmt.Errorf("remote: queue ack: %w", err)
	}
	return nil
}
