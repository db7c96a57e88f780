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

// Command otasim runs a complete programming session against a simulated
// bridge and remote, optionally over a lossy link.
package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"time"

	otaboot "github.com/ZaparooProject/go-otaboot"
	"github.com/ZaparooProject/go-otaboot/ihex"
	"github.com/ZaparooProject/go-otaboot/protocol"
	radiosim "github.com/ZaparooProject/go-otaboot/radio/sim"
	"github.com/ZaparooProject/go-otaboot/sim"
	"github.com/alecthomas/kong"
	"github.com/golang/glog"
)

type cli struct {
	Hex            string  `arg:"" optional:"" type:"existingfile" help:"Intel HEX image to upload (random data when omitted)."`
	Size           int     `default:"4096" help:"Random image size in bytes when no HEX file is given."`
	Local          bool    `help:"Program the bridge itself instead of the remote."`
	Legacy         bool    `help:"Use the legacy radio opcodes."`
	Target         uint8   `default:"66" help:"Remote device id."`
	PageSize       int     `default:"128" help:"Remote flash page size."`
	FlashSize      int     `default:"32768" help:"Remote flash size."`
	DropAckEvery   uint64  `help:"Lose every nth acknowledgement."`
	DropFrameEvery uint64  `help:"Lose every nth frame."`
	LossRate       float64 `help:"Lose each exchange half with this probability."`
	Seed           uint64  `default:"1" help:"Seed for random loss."`
	Debug          bool    `help:"Enable library debug output."`
}

// anyLoss drops an exchange half when any of fns does.
func anyLoss(fns ...radiosim.LossFunc) radiosim.LossFunc {
	if len(fns) == 0 {
		return nil
	}
	return func(ev radiosim.LossEvent) bool {
		for _, fn := range fns {
			if fn(ev) {
				return true
			}
		}
		return false
	}
}

func (c *cli) harnessConfig() sim.Config {
	cfg := sim.DefaultConfig()
	cfg.DeviceID = c.Target
	cfg.PageSize = c.PageSize
	cfg.FlashSize = c.FlashSize
	if c.Legacy {
		cfg.Dialect = protocol.Legacy
	}
	if c.Local {
		cfg.BridgeFlash = c.FlashSize
		cfg.BridgePageSize = c.PageSize
	}
	var loss []radiosim.LossFunc
	if c.DropAckEvery > 0 {
		loss = append(loss, radiosim.DropEvery(c.DropAckEvery, radiosim.LossAck))
	}
	if c.DropFrameEvery > 0 {
		loss = append(loss, radiosim.DropEvery(c.DropFrameEvery, radiosim.LossFrame))
	}
	if c.LossRate > 0 {
		loss = append(loss, radiosim.DropRandom(c.LossRate, c.Seed))
	}
	cfg.Loss = anyLoss(loss...)
	return cfg
}

func (c *cli) image() (*otaboot.FirmwareImage, error) {
	image := otaboot.NewFirmwareImage()
	if c.Hex != "" {
		res, err := ihex.DecodeFile(c.Hex, image)
		if err != nil {
			return nil, err
		}
		for _, w := range res.Warnings {
			glog.Warningf("%s: %v", c.Hex, w)
		}
		return image, nil
	}
	data := make([]byte, c.Size)
	if _, err := rand.Read(data); err != nil {
		return nil, err
	}
	if _, err := image.WriteAt(data, 0); err != nil {
		return nil, err
	}
	return image, nil
}

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func (c *cli) Run(ctx context.Context) error {
	if c.Debug {
		otaboot.SetDebugEnabled(true)
	}
	image, err := c.image()
	if err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}
	h, err := sim.New(c.harnessConfig())
	if err != nil {
		return err
	}

	mode := otaboot.ModeRemote
	if c.Local {
		mode = otaboot.ModeLocal
	}
	up, err := otaboot.New(h.Transport(),
		otaboot.WithMode(mode),
		otaboot.WithSleeper(noSleep),
		otaboot.WithLeaveBootloader(true))
	if err != nil {
		return err
	}
	defer func() { _ = up.Close() }()

	started := time.Now()
	if err := up.Upload(ctx, image); err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}

	if !c.Local {
		want := image.Bytes()[:image.End()]
		got, err := h.RemoteImage(len(want))
		if err != nil {
			return err
		}
		if !bytes.Equal(got, want) {
			return errors.New("remote flash does not match the image")
		}
	}

	stats := h.Link.Stats()
	_, _ = fmt.Printf("%s: %d bytes in %d steps (%s)\n", up.Session(), image.End()-image.Start(), h.Steps(),
		time.Since(started).Round(time.Millisecond))
	_, _ = fmt.Printf("link: %d frames, %d acks, %d frames lost, %d acks lost\n",
		stats.Frames, stats.Acks, stats.DroppedFrames, stats.DroppedAcks)
	_, _ = fmt.Printf("remote booted: %t, bridge left: %t\n", h.RemoteBooted(), h.BridgeLeft())
	return nil
}

func main() {
	var c cli
	kctx := kong.Parse(&c,
		kong.Name("otasim"),
		kong.Description("Simulate an over-the-air programming session."),
		kong.UsageOnError(),
		kong.BindTo(context.Background(), (*context.Context)(nil)),
	)
	err := kctx.Run()
	glog.Flush()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "otasim: %v\n", err)
		os.Exit(1)
	}
}
