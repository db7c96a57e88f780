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

// Package hid detects bootloader bridges on USB HID
package hid

import (
	"context"
	"fmt"
	"slices"

	"github.com/sstallion/go-hid"

	"github.com/ZaparooProject/go-otaboot/detection"
	hidtransport "github.com/ZaparooProject/go-otaboot/transport/hid"
)

// detector implements the Detector interface for HID bridges
type detector struct{}

// New creates a new HID detector
func New() detection.Detector {
	return &detector{}
}

// init registers the detector on package import
func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "hid"
}

// Detect lists bridges with the bootloader vendor and product id. HID
// enumeration only reads descriptors, so both detection modes behave the same.
func (*detector) Detect(ctx context.Context, _ *detection.Options) ([]detection.DeviceInfo, error) {
	if err := hid.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize hidapi: %w", err)
	}

	var devices []detection.DeviceInfo
	err := hid.Enumerate(hidtransport.VendorID, hidtransport.ProductID, func(info *hid.DeviceInfo) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if dev, ok := describe(info.Path, info.ProductStr, info.VendorID, info.ProductID, info.SerialNbr); ok {
			devices = append(devices, dev)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate HID devices: %w", err)
	}
	return devices, nil
}

// describe builds the detection record for one HID interface. Products that
// are not bootloader bridges are skipped.
func describe(path, product string, vid, pid uint16, serial string) (detection.DeviceInfo, bool) {
	role, ok := roleOf(product)
	if !ok {
		return detection.DeviceInfo{}, false
	}
	return detection.DeviceInfo{
		Transport: "hid",
		Path:      path,
		Name:      product,
		Role:      role,
		Metadata: map[string]string{
			"vidpid": detection.FormatVIDPID(vid, pid),
			"serial": serial,
		},
	}, true
}

func roleOf(product string) (detection.Role, bool) {
	switch {
	case slices.Contains(hidtransport.RemoteProductNames, product):
		return detection.RoleRemote, true
	case slices.Contains(hidtransport.LocalProductNames, product):
		return detection.RoleLocal, true
	default:
		return "", false
	}
}
