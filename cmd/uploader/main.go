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

// Command uploader programs an Intel HEX image into a bootloader bridge or,
// through the bridge's radio, into a remote node.
//
//	uploader [remote] [-r] [<hexfile>]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	otaboot "github.com/ZaparooProject/go-otaboot"
	"github.com/ZaparooProject/go-otaboot/detection"
	// Import all detectors to register them
	_ "github.com/ZaparooProject/go-otaboot/detection/hid"
	_ "github.com/ZaparooProject/go-otaboot/detection/uart"
	"github.com/ZaparooProject/go-otaboot/ihex"
	"github.com/ZaparooProject/go-otaboot/protocol"
	"github.com/ZaparooProject/go-otaboot/transport/hid"
	"github.com/ZaparooProject/go-otaboot/transport/uart"
	"github.com/golang/glog"
	"github.com/tebeka/atexit"
)

type config struct {
	devicePath *string
	timeout    *time.Duration
	target     *uint
	retries    *int
	legacy     *bool
	debug      *bool
	reboot     *bool
	file       string
	remote     bool
}

func usage() {
	out := flag.CommandLine.Output()
	_, _ = fmt.Fprintf(out, "usage: %s [remote] [-r] [<hexfile>]\n\n", os.Args[0])
	_, _ = fmt.Fprintln(out, "  remote     program a remote node through the bridge radio")
	_, _ = fmt.Fprintln(out, "  -r         leave the bootloader after programming")
	_, _ = fmt.Fprintln(out, "  <hexfile>  Intel HEX image; omit to only leave the bootloader")
	_, _ = fmt.Fprintln(out)
	flag.PrintDefaults()
}

func usageError(err error) error {
	_, _ = fmt.Fprintf(flag.CommandLine.Output(), "%v\n\n", err)
	flag.Usage()
	return err
}

func parseArgs(args []string) (*config, error) {
	flag.CommandLine.Init(args[0], flag.ContinueOnError)
	flag.Usage = usage
	cfg := &config{
		devicePath: flag.String("device", "",
			"Bridge path (HID path or serial port). Leave empty for auto-detection."),
		timeout: flag.Duration("timeout", 2*time.Second, "Transport timeout"),
		target:  flag.Uint("target", 0, "Remote device id (default: first beacon seen)"),
		legacy:  flag.Bool("legacy", false, "Use the legacy radio opcodes"),
		debug:   flag.Bool("debug", false, "Enable debug output"),
		reboot:  flag.Bool("r", false, "Leave the bootloader after programming"),
		retries: flag.Int("retries", 3, "Attempts per report on transient transport errors (0 disables)"),
	}
	if len(args) < 2 {
		flag.Usage()
		return nil, flag.ErrHelp
	}
	// Parse reports its own errors and prints usage
	if err := flag.CommandLine.Parse(args[1:]); err != nil {
		return nil, err
	}

	// flag stops at the first positional, so "remote -r" arrives here
	for _, arg := range flag.Args() {
		switch {
		case arg == "remote":
			cfg.remote = true
		case arg == "-r":
			*cfg.reboot = true
		case cfg.file == "" && !strings.HasPrefix(arg, "-"):
			cfg.file = arg
		default:
			return nil, usageError(fmt.Errorf("unexpected argument %q", arg))
		}
	}
	if *cfg.target > 0xFF {
		return nil, usageError(fmt.Errorf("target id %d out of range", *cfg.target))
	}
	if *cfg.debug {
		otaboot.SetDebugEnabled(true)
	}
	return cfg, nil
}

// isSerialPath reports whether path names a serial port rather than a HID node.
func isSerialPath(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasPrefix(lower, "com") || strings.Contains(lower, "tty") ||
		strings.Contains(lower, "usbserial") || strings.Contains(lower, "usbmodem")
}

func newTransport(path string) (otaboot.Transport, error) {
	if isSerialPath(path) {
		transport, err := uart.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create UART transport: %w", err)
		}
		return transport, nil
	}
	transport, err := hid.OpenPath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create HID transport: %w", err)
	}
	return transport, nil
}

func newTransportFromDevice(device detection.DeviceInfo) (otaboot.Transport, error) {
	switch strings.ToLower(device.Transport) {
	case "hid":
		return newTransport(device.Path)
	case "uart":
		transport, err := uart.New(device.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create UART transport: %w", err)
		}
		return transport, nil
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", device.Transport)
	}
}

func uploaderOptions(cfg *config, ui *display) []otaboot.Option {
	mode := otaboot.ModeLocal
	if cfg.remote {
		mode = otaboot.ModeRemote
	}
	opts := []otaboot.Option{
		otaboot.WithMode(mode),
		otaboot.WithLeaveBootloader(*cfg.reboot),
		otaboot.WithProgressCallback(ui.progress),
	}
	if *cfg.legacy {
		opts = append(opts, otaboot.WithDialect(protocol.Legacy))
	}
	if *cfg.target != 0 {
		opts = append(opts, otaboot.WithTargetID(byte(*cfg.target)))
	}
	if *cfg.retries > 0 {
		retry := otaboot.DefaultRetryConfig()
		retry.MaxAttempts = *cfg.retries
		opts = append(opts, otaboot.WithRetryConfig(retry))
	}
	return opts
}

func connect(cfg *config, ui *display) (*otaboot.Uploader, error) {
	connectOpts := []otaboot.ConnectOption{
		otaboot.WithConnectTimeout(*cfg.timeout),
		otaboot.WithUploaderOptions(uploaderOptions(cfg, ui)...),
	}
	if *cfg.devicePath == "" {
		connectOpts = append(connectOpts,
			otaboot.WithAutoDetection(),
			otaboot.WithTransportFromDeviceFactory(newTransportFromDevice))
		ui.info("Auto-detecting bootloader bridges...")
	} else {
		connectOpts = append(connectOpts, otaboot.WithTransportFactory(newTransport))
		ui.info(fmt.Sprintf("Opening bridge: %s", *cfg.devicePath))
	}
	up, err := otaboot.ConnectUploader(*cfg.devicePath, connectOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to bridge: %w", err)
	}
	return up, nil
}

func loadImage(path string) (*otaboot.FirmwareImage, ihex.Result, error) {
	image := otaboot.NewFirmwareImage()
	res, err := ihex.DecodeFile(path, image)
	if err != nil {
		return nil, res, err
	}
	for _, w := range res.Warnings {
		glog.Warningf("%s: %v", path, w)
	}
	return image, res, nil
}

func run(ctx context.Context, cfg *config, ui *display) error {
	var image *otaboot.FirmwareImage
	if cfg.file != "" {
		var res ihex.Result
		var err error
		image, res, err = loadImage(cfg.file)
		if err != nil {
			return err
		}
		if res.Empty() {
			ui.info("No data in input file, exiting")
			return nil
		}
		ui.info(fmt.Sprintf("Read %d records, 0x%04x-0x%04x", res.Records, res.Start, res.End))
	}

	up, err := connect(cfg, ui)
	if err != nil {
		return err
	}
	defer func() { _ = up.Close() }()
	glog.Infof("%s", up.Session())

	if image == nil {
		if err := up.LeaveBootloader(ctx); err != nil {
			return fmt.Errorf("failed to leave bootloader: %w", err)
		}
		ui.success("Bootloader left")
		return nil
	}

	if err := up.Upload(ctx, image); err != nil {
		ui.abort()
		return fmt.Errorf("upload failed: %w", err)
	}
	ui.done()
	ui.success(fmt.Sprintf("Programmed %d bytes", image.End()-image.Start()))
	return nil
}

func main() {
	atexit.Register(glog.Flush)
	atexit.Register(func() { _ = hid.Exit() })

	cfg, err := parseArgs(os.Args)
	if err != nil {
		atexit.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ui := newDisplay(os.Stdout)
	if err := run(ctx, cfg, ui); err != nil {
		ui.failure(err)
		atexit.Exit(1)
	}
	atexit.Exit(0)
}
