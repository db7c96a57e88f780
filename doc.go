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

/*
Package otaboot drives over-the-air firmware updates of radio nodes that have
no USB connection of their own.

Three parties take part in a session:
  - the host uploader in this package, which owns the session state, the
    retry policy and the address bookkeeping
  - a USB-attached bridge (package bridge), which relays feature reports to
    the radio and hands back the acknowledgement payloads
  - the remote flash-programmer (package remote), which rewrites its own
    program memory page by page

The host talks to the bridge through a Transport: USB HID feature reports
(transport/hid), the same reports framed over a serial line (transport/uart),
or an in-process simulator (sim).

Basic Usage:

	import (
	    "github.com/ZaparooProject/go-otaboot"
	    "github.com/ZaparooProject/go-otaboot/ihex"
	    "github.com/ZaparooProject/go-otaboot/transport/hid"
	)

	image := otaboot.NewFirmwareImage()
	if _, err := ihex.DecodeFile("app.hex", image); err != nil {
	    log.Fatal(err)
	}

	transport, err := hid.Open(hid.RemoteProductNames...)
	if err != nil {
	    log.Fatal(err)
	}

	uploader, err := otaboot.New(transport, otaboot.WithMode(otaboot.ModeRemote))
	if err != nil {
	    log.Fatal(err)
	}
	defer uploader.Close()

	if err := uploader.Upload(ctx, image); err != nil {
	    log.Fatal(err)
	}

Local mode flashes the bridge itself with 128-byte blocks and no radio
traffic. Remote mode relays 16-byte blocks and validates each one against
the cursor the remote reports back, which makes block delivery idempotent
under acknowledgement loss.

Protocol Dialects:

Two incompatible opcode sets exist in deployed firmware. The canonical dialect
(protocol.Canonical) carries device ids and a listening phase in which the
bridge picks up remote beacons; the legacy dialect (protocol.Legacy) does not.
A session uses exactly one of them, selected with WithDialect.

Error Handling:

Phase failures are typed and can be inspected:

	var pf *otaboot.ProgrammingFailedError
	if errors.As(err, &pf) {
	    log.Printf("block at 0x%05X was never confirmed", pf.Address)
	}

Thread Safety:

Uploader is not thread-safe. A session is a strictly sequential exchange
and must be driven from one goroutine.
*/
package otaboot
