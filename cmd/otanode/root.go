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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"

	"github.com/ZaparooProject/go-otaboot/flash"
	"github.com/ZaparooProject/go-otaboot/protocol"
	"github.com/ZaparooProject/go-otaboot/radio/nrf24"
	"github.com/golang/glog"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const envPrefix = "OTANODE_"

var rootCmd = &cobra.Command{
	Use:   "otanode",
	Short: "Run a bootloader bridge or remote node on an nRF24 radio.",
	Long: `otanode runs one side of the over-the-air bootloader on Linux ` +
		`hardware: an nRF24L01+ on SPI and a file standing in for flash.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadEnvironment,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("env-file", ".env", "Environment file with OTANODE_* settings")
	pf.String("spi", "/dev/spidev0.0", "SPI port of the radio")
	pf.String("ce", "GPIO25", "GPIO wired to the radio CE pin")
	pf.Uint8("channel", 76, "Radio channel (0-124)")
	pf.String("flash", "otanode.flash", "File backing the program flash and EEPROM")
	pf.Int("page-size", 128, "Flash page size in bytes")
	pf.Int("flash-size", 32768, "Flash size in bytes")
	pf.Int("eeprom-size", 1024, "EEPROM size in bytes")
	pf.Bool("legacy", false, "Use the legacy radio opcodes")
	pf.String("app", "", "Command started when the bootloader is left")
}

// loadEnvironment reads the env file, then fills every flag the command
// line did not set from OTANODE_<FLAG> variables.
func loadEnvironment(cmd *cobra.Command, _ []string) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	var errs []error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			return
		}
		name := envPrefix + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		if v, ok := os.LookupEnv(name); ok {
			if err := f.Value.Set(v); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
		}
	})
	return errors.Join(errs...)
}

func dialectFlag(cmd *cobra.Command) protocol.Dialect {
	if legacy, _ := cmd.Flags().GetBool("legacy"); legacy {
		return protocol.Legacy
	}
	return protocol.Canonical
}

func openRadio(cmd *cobra.Command) (*nrf24.Radio, error) {
	flags := cmd.Flags()
	spiPort, _ := flags.GetString("spi")
	cePin, _ := flags.GetString("ce")
	channel, _ := flags.GetUint8("channel")
	r, err := nrf24.Open(nrf24.Config{SPIPort: spiPort, CEPin: cePin, Channel: channel})
	if err != nil {
		return nil, fmt.Errorf("failed to open radio: %w", err)
	}
	return r, nil
}

func openFlash(cmd *cobra.Command) (*flash.FileStore, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("flash")
	pageSize, _ := flags.GetInt("page-size")
	size, _ := flags.GetInt("flash-size")
	eepromSize, _ := flags.GetInt("eeprom-size")
	store, err := flash.OpenFileStore(path, pageSize, size, eepromSize)
	if err != nil {
		return nil, fmt.Errorf("failed to open flash store: %w", err)
	}
	return store, nil
}

// appLauncher starts the configured application command, or only logs when
// none is set.
type appLauncher struct {
	command string
}

func newAppLauncher(cmd *cobra.Command) appLauncher {
	app, _ := cmd.Flags().GetString("app")
	return appLauncher{command: app}
}

func (l appLauncher) Launch() error {
	fields := strings.Fields(l.command)
	if len(fields) == 0 {
		glog.Info("no application configured, exiting bootloader")
		return nil
	}
	c := exec.Command(fields[0], fields[1:]...) //nolint:gosec // operator supplied command
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", fields[0], err)
	}
	glog.Infof("started application %s (pid %d)", fields[0], c.Process.Pid)
	return c.Process.Release()
}
