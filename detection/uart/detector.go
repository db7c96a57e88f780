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

// Package uart detects bridges attached through a USB serial adapter
package uart

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.bug.st/serial/enumerator"

	"github.com/ZaparooProject/go-otaboot/detection"
)

// serialPort is one enumerated port
type serialPort struct {
	Path         string
	Name         string
	VID          string
	PID          string
	SerialNumber string
	IsUSB        bool
}

// detector implements the Detector interface for serial bridges
type detector struct {
	list func() ([]serialPort, error)
}

// New creates a new UART detector
func New() detection.Detector {
	return &detector{list: listPorts}
}

// init registers the detector on package import
func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "uart"
}

// Detect lists USB serial ports that could carry a bridge. A serial bridge
// always relays, so every candidate has the remote role.
func (d *detector) Detect(ctx context.Context, _ *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := d.list()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	var devices []detection.DeviceInfo
	for _, port := range ports {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !isCandidate(port) {
			continue
		}
		metadata := map[string]string{"serial": port.SerialNumber}
		if port.VID != "" && port.PID != "" {
			metadata["vidpid"] = strings.ToUpper(port.VID + ":" + port.PID)
		}
		devices = append(devices, detection.DeviceInfo{
			Transport: "uart",
			Path:      port.Path,
			Name:      port.Name,
			Role:      detection.RoleRemote,
			Metadata:  metadata,
		})
	}
	return devices, nil
}

func listPorts() ([]serialPort, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}
	ports := make([]serialPort, 0, len(details))
	for _, p := range details {
		ports = append(ports, serialPort{
			Path:         p.Name,
			Name:         filepath.Base(p.Name),
			VID:          p.VID,
			PID:          p.PID,
			SerialNumber: p.SerialNumber,
			IsUSB:        p.IsUSB,
		})
	}
	return ports, nil
}

// isCandidate applies the name filtering for USB serial adapters
func isCandidate(port serialPort) bool {
	lowerName := strings.ToLower(port.Name)
	if strings.Contains(lowerName, "bluetooth") {
		return false
	}
	// macOS lists each adapter twice; the tty.* twin blocks on open
	if strings.HasPrefix(lowerName, "tty.") {
		return false
	}
	if port.IsUSB {
		return true
	}

	goodPatterns := []string{
		"ttyusb",         // Linux USB serial
		"ttyacm",         // Linux CDC ACM
		"usbserial",      // macOS FTDI and friends
		"usbmodem",       // Arduino and similar devices
		"slab_usbtouart", // Silicon Labs CP210x
		"wchusbserial",   // WinChipHead CH340/CH341
	}
	for _, pattern := range goodPatterns {
		if strings.Contains(lowerName, pattern) {
			return true
		}
	}
	return false
}
