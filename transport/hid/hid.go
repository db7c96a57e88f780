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

// Package hid provides the USB HID feature report transport to a bridge
package hid

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/sstallion/go-hid"

	otaboot "github.com/ZaparooProject/go-otaboot"
	"github.com/ZaparooProject/go-otaboot/protocol"
)

// USB identity shared by every bridge firmware
const (
	VendorID  uint16 = 0x16C0
	ProductID uint16 = 1503
)

var (
	// RemoteProductNames are the product strings of a bridge relaying to
	// remote devices, in the order they are tried
	RemoteProductNames = []string{"usbXR Sensor", "HIDBoot Remote"}
	// LocalProductNames are the product strings of a bridge running its own
	// bootloader
	LocalProductNames = []string{"HIDBoot"}
)

// Device is the part of *hid.Device the transport needs
type Device interface {
	SendFeatureReport(p []byte) (int, error)
	GetFeatureReport(p []byte) (int, error)
	Close() error
}

var _ Device = (*hid.Device)(nil)

// Transport implements otaboot.Transport over USB HID feature reports
type Transport struct {
	dev     Device
	path    string
	product string
	timeout time.Duration
	mu      sync.Mutex
}

// Open opens the first bridge whose product string matches names, trying the
// names in order
func Open(names ...string) (*Transport, error) {
	if err := hid.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize hidapi: %w", err)
	}

	var found []*hid.DeviceInfo
	err := hid.Enumerate(VendorID, ProductID, func(info *hid.DeviceInfo) error {
		found = append(found, info)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate HID devices: %w", err)
	}

	for _, name := range names {
		for _, info := range found {
			if info.ProductStr != name {
				continue
			}
			t, err := OpenPath(info.Path)
			if err != nil {
				return nil, err
			}
			t.product = info.ProductStr
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: no device named %q", otaboot.ErrDeviceNotFound, names)
}

// OpenPath opens the HID device at path
func OpenPath(path string) (*Transport, error) {
	if err := hid.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize hidapi: %w", err)
	}
	dev, err := hid.OpenPath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open HID device %s: %w", path, err)
	}
	product, err := dev.GetProductStr()
	if err != nil {
		product = ""
	}
	return NewWithDevice(dev, path, product), nil
}

// NewWithDevice wraps an already open device
func NewWithDevice(dev Device, path, product string) *Transport {
	return &Transport{dev: dev, path: path, product: product, timeout: time.Second}
}

// Product returns the USB product string of the bridge
func (t *Transport) Product() string {
	return t.product
}

// SetReport sends a feature report; report[0] is the report id
func (t *Transport) SetReport(report []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dev == nil {
		return otaboot.ErrTransportClosed
	}
	if len(report) == 0 {
		return fmt.Errorf("%w: empty report", otaboot.ErrInvalidParameter)
	}

	n, err := t.dev.SendFeatureReport(report)
	if err != nil {
		return otaboot.NewTransportError("SetReport", t.path,
			fmt.Errorf("%w: %w", otaboot.ErrTransportWrite, err), otaboot.ErrorTypeTransient)
	}
	if n != len(report) {
		return otaboot.NewTransportError("SetReport", t.path,
			fmt.Errorf("%w: wrote %d of %d bytes", otaboot.ErrTransportWrite, n, len(report)), otaboot.ErrorTypeTransient)
	}
	return nil
}

// GetReport reads feature report id
func (t *Transport) GetReport(id byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dev == nil {
		return nil, otaboot.ErrTransportClosed
	}

	buf := make([]byte, reportSize(id))
	buf[0] = id
	n, err := t.dev.GetFeatureReport(buf)
	if err != nil {
		return nil, otaboot.NewTransportError("GetReport", t.path,
			fmt.Errorf("%w: %w", otaboot.ErrTransportRead, err), otaboot.ErrorTypeTransient)
	}
	return buf[:n], nil
}

func reportSize(id byte) int {
	switch id {
	case protocol.ReportLocalInfo:
		return protocol.LocalInfoSize
	case protocol.ReportRemote:
		return protocol.ReplySize
	default:
		return protocol.LocalDataSize
	}
}

// SetTimeout records the timeout; feature reports are answered by the USB
// stack and do not block on the bridge firmware
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = timeout
	return nil
}

// Close closes the device
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dev == nil {
		return nil
	}
	err := t.dev.Close()
	t.dev = nil
	if err != nil {
		return fmt.Errorf("failed to close HID device: %w", err)
	}
	return nil
}

// IsConnected returns true if the device is open
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dev != nil
}

// Type returns the transport type
func (*Transport) Type() otaboot.TransportType {
	return otaboot.TransportHID
}

// HasCapability implements otaboot.TransportCapabilityChecker from the
// product string. An unknown product is given the benefit of the doubt.
func (t *Transport) HasCapability(capability otaboot.TransportCapability) bool {
	switch capability {
	case otaboot.CapabilityLocalFlash:
		return t.product == "" || slices.Contains(LocalProductNames, t.product)
	case otaboot.CapabilityRemoteRelay:
		return t.product == "" || slices.Contains(RemoteProductNames, t.product)
	default:
		return false
	}
}

// Exit releases hidapi
func Exit() error {
	if err := hid.Exit(); err != nil {
		return fmt.Errorf("failed to release hidapi: %w", err)
	}
	return nil
}

var _ otaboot.Transport = (*Transport)(nil)
