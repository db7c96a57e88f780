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
	"io"
	"os"

	otaboot "github.com/ZaparooProject/go-otaboot"
	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

var (
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#04B575"))
	failureStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5F87"))
)

// display renders status lines and, on a terminal, a block progress bar.
type display struct {
	out         io.Writer
	bar         *progressbar.ProgressBar
	interactive bool
}

func newDisplay(f *os.File) *display {
	return &display{out: f, interactive: term.IsTerminal(int(f.Fd()))}
}

func (d *display) info(msg string) {
	_, _ = fmt.Fprintln(d.out, infoStyle.Render(msg))
}

func (d *display) success(msg string) {
	_, _ = fmt.Fprintln(d.out, successStyle.Render(msg))
}

func (d *display) failure(err error) {
	_, _ = fmt.Fprintln(os.Stderr, failureStyle.Render(fmt.Sprintf("error: %v", err)))
}

func (d *display) progress(p otaboot.Progress) {
	if !d.interactive {
		if p.Block == p.TotalBlocks || p.Block%16 == 0 {
			_, _ = fmt.Fprintf(d.out, "block %d/%d (%.0f%%) at 0x%04x\n",
				p.Block, p.TotalBlocks, p.Percentage(), p.Address)
		}
		return
	}
	if d.bar == nil {
		d.bar = progressbar.NewOptions(p.TotalBlocks,
			progressbar.OptionSetWriter(d.out),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("Writing"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetElapsedTime(true),
		)
	}
	_ = d.bar.Set(p.Block)
}

func (d *display) done() {
	if d.bar != nil {
		_ = d.bar.Finish()
		_, _ = fmt.Fprintln(d.out)
	}
}

func (d *display) abort() {
	if d.bar != nil {
		_ = d.bar.Exit()
		_, _ = fmt.Fprintln(d.out)
	}
}
