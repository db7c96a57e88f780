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

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-otaboot/flash"
	"github.com/ZaparooProject/go-otaboot/polling"
	"github.com/ZaparooProject/go-otaboot/remote"
	"github.com/golang/glog"
	"github.com/spf13/cobra"
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Announce over the radio and accept a new application image.",
	RunE:  runRemote,
}

func init() {
	rootCmd.AddCommand(remoteCmd)
	remoteCmd.Flags().Uint8("id", remote.DefaultDeviceID, "Device id this node answers to")
	remoteCmd.Flags().Bool("stay", false, "Enter the bootloader even with a valid image (button held)")
}

func runRemote(cmd *cobra.Command, _ []string) error {
	store, err := openFlash(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	launcher := newAppLauncher(cmd)
	stay, _ := cmd.Flags().GetBool("stay")
	enter, err := remote.ShouldEnter(stay, store.EEPROM())
	if err != nil {
		glog.Warningf("reading image validity: %v", err)
	}
	if !enter {
		glog.Info("valid image present, starting application")
		return launcher.Launch()
	}

	r, err := openRadio(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	id, _ := cmd.Flags().GetUint8("id")
	rm, err := remote.New(r, flash.NewProgrammer(store), store.EEPROM(), launcher,
		remote.WithDeviceID(id), remote.WithDialect(dialectFlag(cmd)))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go tick(ctx, rm)

	glog.Infof("remote 0x%02X waiting for an uploader", id)
	if err := rm.Run(ctx, polling.DefaultConfig()); err != nil {
		return fmt.Errorf("remote stopped: %w", err)
	}
	return nil
}

// tick feeds the one second timer the remote uses for its inactivity timeout.
func tick(ctx context.Context, rm *remote.Remote) {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			rm.Tick()
		}
	}
}
