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
	"fmt"

	"github.com/ZaparooProject/go-otaboot/bridge"
	"github.com/ZaparooProject/go-otaboot/flash"
	"github.com/ZaparooProject/go-otaboot/polling"
	"github.com/ZaparooProject/go-otaboot/transport/uart"
	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"go.bug.st/serial"
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Serve host reports on a serial port and relay them over the radio.",
	RunE:  runBridge,
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
	bridgeCmd.Flags().String("serial", "/dev/ttyGS0", "Serial port the host uploader talks to")
	bridgeCmd.Flags().Bool("local-flash", false, "Accept local programming into the flash file")
}

func runBridge(cmd *cobra.Command, _ []string) error {
	r, err := openRadio(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	opts := []bridge.Option{
		bridge.WithDialect(dialectFlag(cmd)),
		bridge.WithLauncher(newAppLauncher(cmd)),
	}
	if local, _ := cmd.Flags().GetBool("local-flash"); local {
		store, err := openFlash(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		opts = append(opts, bridge.WithLocalFlash(flash.NewProgrammer(store)))
	}

	b, err := bridge.New(r, opts...)
	if err != nil {
		return err
	}

	portName, _ := cmd.Flags().GetString("serial")
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: uart.DefaultBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	defer func() { _ = port.Close() }()

	server, err := uart.NewServer(port, b)
	if err != nil {
		return err
	}

	glog.Infof("bridge serving %s", portName)
	if err := b.Run(cmd.Context(), server, polling.DefaultConfig()); err != nil {
		return fmt.Errorf("bridge stopped: %w", err)
	}
	m := b.GetMetrics()
	glog.Infof("bridge done: %+v", m)
	return nil
}
