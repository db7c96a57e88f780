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

// Package sim runs a bridge and a remote in process, joined by a simulated
// radio link, and exposes the bridge to the host as an otaboot.Transport.
// Every host request advances the simulation by one step, so a whole
// programming session runs deterministically on one goroutine.
package sim

import (
	"errors"
	"fmt"
	"sync"

	"github.com/golang/glog"

	"github.com/ZaparooProject/go-otaboot/bridge"
	"github.com/ZaparooProject/go-otaboot/flash"
	"github.com/ZaparooProject/go-otaboot/protocol"
	radiosim "github.com/ZaparooProject/go-otaboot/radio/sim"
	"github.com/ZaparooProject/go-otaboot/remote"
)

// Config describes the simulated devices
type Config struct {
	// Dialect is the radio opcode set; nil means canonical
	Dialect protocol.Dialect
	// Loss drops frames or acks on the link
	Loss radiosim.LossFunc
	// DeviceID of the remote
	DeviceID byte
	// PageSize and FlashSize of the remote
	PageSize  int
	FlashSize int
	// EEPROMSize of the remote; the validity flag is its last byte
	EEPROMSize int
	// ValidImage marks the remote as already holding a bootable image
	ValidImage bool
	// BridgeFlash gives the bridge its own programmable flash of this size
	BridgeFlash int
	// BridgePageSize is the page size of that flash
	BridgePageSize int
}

// DefaultConfig returns an ATmega328-like remote and no bridge flash
func DefaultConfig() Config {
	return Config{
		Dialect:    protocol.Canonical,
		DeviceID:   0x42,
		PageSize:   128,
		FlashSize:  32768,
		EEPROMSize: 1024,
	}
}

// Harness owns both simulated devices and their link
type Harness struct {
	Link         *radiosim.Link
	Bridge       *bridge.Bridge
	Remote       *remote.Remote
	RemoteFlash  *flash.Memory
	RemoteEEPROM *flash.MemoryEEPROM
	BridgeFlash  *flash.Memory

	mu             sync.Mutex
	steps          int
	remoteLaunches int
	bridgeLaunches int
	remoteBooted   bool
	bridgeLeft     bool
}

// New builds a harness from cfg
func New(cfg Config) (*Harness, error) {
	if cfg.Dialect == nil {
		cfg.Dialect = protocol.Canonical
	}

	var linkOpts []radiosim.LinkOption
	if cfg.Loss != nil {
		linkOpts = append(linkOpts, radiosim.WithLoss(cfg.Loss))
	}
	h := &Harness{Link: radiosim.NewLink("bridge", "remote", linkOpts...)}

	mem, err := flash.NewMemory(cfg.PageSize, cfg.FlashSize)
	if err != nil {
		return nil, fmt.Errorf("remote flash: %w", err)
	}
	h.RemoteFlash = mem
	h.RemoteEEPROM = flash.NewMemoryEEPROM(cfg.EEPROMSize)
	if cfg.ValidImage {
		if err := flash.SetValidity(h.RemoteEEPROM, flash.Valid); err != nil {
			return nil, err
		}
	}

	bridgeOpts := []bridge.Option{
		bridge.WithDialect(cfg.Dialect),
		bridge.WithLauncher(launcher(func() { h.bridgeLaunches++ })),
	}
	if cfg.BridgeFlash > 0 {
		bmem, err := flash.NewMemory(cfg.BridgePageSize, cfg.BridgeFlash)
		if err != nil {
			return nil, fmt.Errorf("bridge flash: %w", err)
		}
		h.BridgeFlash = bmem
		bridgeOpts = append(bridgeOpts, bridge.WithLocalFlash(flash.NewProgrammer(bmem)))
	}
	h.Bridge, err = bridge.New(h.Link.A(), bridgeOpts...)
	if err != nil {
		return nil, err
	}

	remoteOpts := []remote.Option{remote.WithDialect(cfg.Dialect)}
	if cfg.DeviceID != 0 {
		remoteOpts = append(remoteOpts, remote.WithDeviceID(cfg.DeviceID))
	}
	h.Remote, err = remote.New(h.Link.B(), flash.NewProgrammer(mem), h.RemoteEEPROM,
		remote.LauncherFunc(func() error {
			h.remoteLaunches++
			return nil
		}), remoteOpts...)
	if err != nil {
		return nil, err
	}
	return h, nil
}

type launcher func()

func (l launcher) Launch() error {
	l()
	return nil
}

// Step runs one pass of both devices: the remote drains its receive FIFO,
// beacons if it heard nothing, and the bridge drains what it received.
func (h *Harness) Step() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.step()
}

func (h *Harness) step() error {
	h.steps++
	var errs []error

	if !h.remoteBooted {
		heard := false
		for {
			active, err := h.Remote.Poll()
			if errors.Is(err, remote.ErrBooted) {
				h.remoteBooted = true
				_ = h.Link.B().Close()
				break
			}
			if err != nil {
				errs = append(errs, err)
			}
			if !active {
				break
			}
			heard = true
		}
		if !heard && !h.remoteBooted {
			if _, err := h.Remote.Announce(); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if !h.bridgeLeft {
		for {
			active, err := h.Bridge.Poll()
			if errors.Is(err, bridge.ErrLeftBootloader) {
				h.bridgeLeft = true
				break
			}
			if err != nil {
				errs = append(errs, err)
			}
			if !active {
				break
			}
		}
	}

	if err := errors.Join(errs...); err != nil {
		glog.V(2).Infof("sim step %d: %v", h.steps, err)
		return err
	}
	return nil
}

// Advance lets seconds of wall time pass on the remote, stepping once per
// second.
func (h *Harness) Advance(seconds int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	var errs []error
	for range seconds {
		h.Remote.Tick()
		if err := h.step(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RemoteBooted reports whether the remote has started its application
func (h *Harness) RemoteBooted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.remoteBooted
}

// RemoteLaunches counts application launches on the remote
func (h *Harness) RemoteLaunches() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.remoteLaunches
}

// BridgeLeft reports whether the bridge left its bootloader
func (h *Harness) BridgeLeft() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bridgeLeft
}

// Steps counts simulation passes
func (h *Harness) Steps() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.steps
}

// RemoteImage returns the first n bytes of the remote's flash
func (h *Harness) RemoteImage(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := h.RemoteFlash.ReadAt(buf, 0); err != nil {
		return nil, err
	}
	return buf, nil
}
