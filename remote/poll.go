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

package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/glog"

	"github.com/ZaparooProject/go-otaboot/flash"
	"github.com/ZaparooProject/go-otaboot/polling"
	"github.com/ZaparooProject/go-otaboot/protocol"
	"github.com/ZaparooProject/go-otaboot/radio"
)

// Poll processes at most one received frame and then checks the inactivity
// timeout. active reports whether a frame was handled.
func (rm *Remote) Poll() (active bool, err error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.state == StateBooted {
		return false, ErrBooted
	}

	n, err := rm.radio.Receive(rm.rx[:])
	if err != nil {
		return false, fmt.Errorf("remote: receive: %w", err)
	}
	if n == 0 {
		return false, rm.checkTimeout()
	}

	rm.lastActivity = rm.ticks.Load()
	rm.heard = true
	return true, rm.handle(rm.rx[:n])
}

// Announce transmits a device info beacon while the remote waits to be
// claimed. A listening bridge that has been told to start a session answers
// with a Start command in the acknowledgement. Announce is a no-op in the
// legacy dialect and once programming traffic has been heard.
func (rm *Remote) Announce() (claimed bool, err error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.dialect != protocol.Canonical || rm.heard {
		return false, nil
	}
	status := protocol.StatusBootReq
	switch rm.state {
	case StateIdle:
	case StateArmed:
		status = protocol.StatusBootReady
	default:
		return false, nil
	}

	var beacon [radio.MaxPayload]byte
	n, err := rm.dialect.EncodeAck(beacon[:], rm.deviceInfo(status))
	if err != nil {
		return false, fmt.Errorf("remote: encode beacon: %w", err)
	}

	if err := rm.radio.SetMode(radio.ModeTX); err != nil {
		return false, fmt.Errorf("remote: transmit mode: %w", err)
	}
	ack, txErr := rm.radio.Transmit(beacon[:n])
	// a failed send flushes the transmit FIFO on hardware, taking the queued
	// reply with it
	if err := rm.radio.SetMode(radio.ModeRX); err != nil {
		return false, errors.Join(fmt.Errorf("remote: receive mode: %w", err), rm.queue())
	}
	if txErr != nil {
		if errors.Is(txErr, radio.ErrNoAck) {
			return false, rm.queue()
		}
		return false, errors.Join(fmt.Errorf("remote: beacon: %w", txErr), rm.queue())
	}

	id, cmd, ok := rm.dialect.DecodeCommandFrame(ack)
	if !ok || cmd != protocol.CmdStart || id != rm.id {
		return false, rm.queue()
	}
	glog.V(2).Infof("remote 0x%02X: claimed by bridge", rm.id)
	rm.lastActivity = rm.ticks.Load()
	rm.start()
	return true, rm.queue()
}

// Run drives Poll and Announce from actor until ctx is done or the
// application has been launched.
func (rm *Remote) Run(ctx context.Context, config *polling.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var booted error
	actor := polling.NewActor(polling.PollerFunc(func() (bool, error) {
		active, err := rm.Poll()
		if errors.Is(err, ErrBooted) {
			booted = err
			cancel()
			return active, nil
		}
		if err != nil || active {
			return active, err
		}
		return rm.Announce()
	}), config, polling.Callbacks{OnError: func(err error) {
		glog.Warningf("remote 0x%02X: %v", rm.id, err)
	}})

	err := actor.Run(ctx)
	if booted != nil {
		return nil
	}
	return err
}

func (rm *Remote) handle(frame []byte) error {
	if len(frame) == protocol.FrameSize {
		return rm.handleData(frame)
	}

	id, cmd, ok := rm.dialect.DecodeCommandFrame(frame)
	if !ok || (rm.dialect == protocol.Canonical && id != rm.id) {
		glog.V(3).Infof("remote 0x%02X: ignoring frame % X", rm.id, frame)
		return rm.queue()
	}
	glog.V(2).Infof("remote 0x%02X: %s in state %s", rm.id, cmd, rm.state)

	switch cmd {
	case protocol.CmdStart:
		rm.start()
	case protocol.CmdStop:
		rm.payload = protocol.FinishedPayload(rm.id, rm.cursor)
		rm.state = StateFinishing
	case protocol.CmdBoot:
		return rm.boot()
	}
	return rm.queue()
}

func (rm *Remote) start() {
	rm.cursor = 0
	rm.state = StateArmed
	rm.payload = rm.deviceInfo(protocol.StatusBootReady)
}

func (rm *Remote) handleData(frame []byte) error {
	addr, block, err := protocol.DecodeDataFrame(frame)
	if err != nil {
		return errors.Join(err, rm.queue())
	}
	if (rm.state != StateArmed && rm.state != StateProgramming) || addr != rm.cursor {
		glog.V(3).Infof("remote 0x%02X: block 0x%05X ignored, expecting 0x%05X", rm.id, addr, rm.cursor)
		return rm.queue()
	}

	if addr == 0 {
		if err := flash.SetValidity(rm.eeprom, flash.Invalid); err != nil {
			return errors.Join(err, rm.queue())
		}
		rm.canExit = false
	}
	next, err := rm.prog.Program(addr, block)
	if err != nil {
		return errors.Join(fmt.Errorf("remote: program 0x%05X: %w", addr, err), rm.queue())
	}
	rm.cursor = next
	rm.state = StateProgramming
	rm.payload = protocol.StatusPayload(rm.id, rm.cursor)
	return rm.queue()
}

func (rm *Remote) boot() error {
	if err := flash.SetValidity(rm.eeprom, flash.Valid); err != nil {
		return err
	}
	return rm.launch("boot command")
}

func (rm *Remote) checkTimeout() error {
	if !rm.canExit || rm.state == StateProgramming {
		return nil
	}
	if rm.ticks.Load()-rm.lastActivity <= protocol.AutoBootTimeout {
		return nil
	}
	return rm.launch("inactivity timeout")
}

func (rm *Remote) launch(reason string) error {
	glog.Infof("remote 0x%02X: launching application (%s)", rm.id, reason)
	rm.state = StateBooted
	if rm.launcher == nil {
		return ErrBooted
	}
	if err := rm.launcher.Launch(); err != nil {
		return fmt.Errorf("remote: launch: %w", err)
	}
	return ErrBooted
}
