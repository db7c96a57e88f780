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

package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/glog"

	"github.com/ZaparooProject/go-otaboot/polling"
	"github.com/ZaparooProject/go-otaboot/protocol"
)

// Port services host requests. Service handles at most one pending request
// and never blocks.
type Port interface {
	Service() (active bool, err error)
}

// Poll makes one non-blocking pass over the radio. While listening it keeps
// the latest device info beacon for the host and re-queues the boot
// acknowledgement when armed.
func (b *Bridge) Poll() (active bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.leaving {
		return false, b.leave()
	}
	if b.role != RoleRX {
		return false, nil
	}

	n, err := b.radio.Receive(b.rx[:])
	if err != nil {
		return false, fmt.Errorf("bridge: receive: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	beacon, err := b.dialect.DecodeAck(b.rx[:n])
	if err != nil || beacon.Kind != protocol.AckDeviceInfo {
		return true, nil
	}
	if beacon.BootStatus != protocol.StatusBootReq && beacon.BootStatus != protocol.StatusBootReady {
		return true, nil
	}
	protocol.EncodeReply(&b.reply, protocol.TxOK, b.rx[:n])
	b.beaconsCaught.Add(1)
	glog.V(3).Infof("bridge: beacon %s", beacon)

	if b.armed {
		if err := b.radio.SetAckPayload(b.bootAck.Bytes()); err != nil {
			return true, fmt.Errorf("bridge: re-queue boot ack: %w", err)
		}
	}
	return true, nil
}

// Run services port and polls the radio from one loop until ctx is done or
// the host asks the bridge to leave the bootloader.
func (b *Bridge) Run(ctx context.Context, port Port, config *polling.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var left bool
	actor := polling.NewActor(polling.PollerFunc(func() (bool, error) {
		served, err := port.Service()
		if err != nil {
			return served, err
		}
		polled, err := b.Poll()
		if errors.Is(err, ErrLeftBootloader) {
			left = true
			cancel()
			return served, nil
		}
		return served || polled, err
	}), config, polling.Callbacks{OnError: func(err error) {
		glog.Warningf("bridge: %v", err)
	}})

	err := actor.Run(ctx)
	if left {
		return nil
	}
	return err
}

func (b *Bridge) leave() error {
	glog.Info("bridge: leaving bootloader")
	b.leaving = false
	if b.launcher != nil {
		if err := b.launcher.Launch(); err != nil {
			return fmt.Errorf("bridge: launch: %w", err)
		}
	}
	return ErrLeftBootloader
}
