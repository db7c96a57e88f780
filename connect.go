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

package otaboot

import (
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-otaboot/detection"
)

// TransportFactory creates a transport for an explicit device path
type TransportFactory func(path string) (Transport, error)

// TransportFromDeviceFactory creates a transport for a detected bridge
type TransportFromDeviceFactory func(device detection.DeviceInfo) (Transport, error)

// ConnectOption represents a functional option for ConnectUploader
type ConnectOption func(*connectConfig) error

type connectConfig struct {
	transportFactory       TransportFactory
	transportDeviceFactory TransportFromDeviceFactory
	detectionOptions       *detection.Options
	uploaderOptions        []Option
	timeout                time.Duration
	autoDetect             bool
}

// WithAutoDetection enables automatic device detection instead of using a specific path
func WithAutoDetection() ConnectOption {
	return func(c *connectConfig) error {
		c.autoDetect = true
		return nil
	}
}

// WithDetectionOptions overrides the detection blocklist, ignore paths and mode
func WithDetectionOptions(opts detection.Options) ConnectOption {
	return func(c *connectConfig) error {
		c.detectionOptions = &opts
		return nil
	}
}

// WithUploaderOptions adds uploader-level options
func WithUploaderOptions(opts ...Option) ConnectOption {
	return func(c *connectConfig) error {
		c.uploaderOptions = append(c.uploaderOptions, opts...)
		return nil
	}
}

// WithConnectTimeout sets the transport timeout applied after opening
func WithConnectTimeout(timeout time.Duration) ConnectOption {
	return func(c *connectConfig) error {
		if timeout < 0 {
			return fmt.Errorf("%w: negative timeout", ErrInvalidParameter)
		}
		c.timeout = timeout
		return nil
	}
}

// WithTransportFactory sets the transport factory function
func WithTransportFactory(factory TransportFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.transportFactory = factory
		return nil
	}
}

// WithTransportFromDeviceFactory sets the transport from device factory function
func WithTransportFromDeviceFactory(factory TransportFromDeviceFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.transportDeviceFactory = factory
		return nil
	}
}

func applyConnectOptions(opts []ConnectOption) (*connectConfig, error) {
	config := &connectConfig{timeout: 2 * time.Second}
	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, fmt.Errorf("failed to apply connect option: %w", err)
		}
	}
	return config, nil
}

// ConnectUploader opens a bridge and returns an uploader on it. With an
// empty path or WithAutoDetection the first detected bridge of the
// uploader's mode is used.
//
// Example usage:
//
//	// Open a specific serial bridge
//	up, err := otaboot.ConnectUploader("/dev/ttyACM0",
//	    otaboot.WithTransportFactory(uartFactory))
//
//	// Auto-detect a relaying bridge
//	up, err := otaboot.ConnectUploader("",
//	    otaboot.WithTransportFromDeviceFactory(hidFactory),
//	    otaboot.WithUploaderOptions(otaboot.WithMode(otaboot.ModeRemote)))
func ConnectUploader(path string, opts ...ConnectOption) (*Uploader, error) {
	config, err := applyConnectOptions(opts)
	if err != nil {
		return nil, err
	}

	var transport Transport
	if config.autoDetect || path == "" {
		transport, err = Discover(opts...)
	} else {
		transport, err = createManualTransport(path, config.transportFactory)
	}
	if err != nil {
		return nil, err
	}

	if config.timeout > 0 {
		if err := transport.SetTimeout(config.timeout); err != nil {
			_ = transport.Close()
			return nil, fmt.Errorf("failed to set timeout: %w", err)
		}
	}

	uploader, err := New(transport, config.uploaderOptions...)
	if err != nil {
		_ = transport.Close()
		return nil, fmt.Errorf("failed to create uploader: %w", err)
	}
	return uploader, nil
}

// Discover opens the first detected bridge whose role matches the mode set
// through WithUploaderOptions. Bridges are tried in detection order; the
// product name candidates are ordered by the detectors themselves.
func Discover(opts ...ConnectOption) (Transport, error) {
	config, err := applyConnectOptions(opts)
	if err != nil {
		return nil, err
	}
	if config.transportDeviceFactory == nil {
		return nil, errors.New("transport device factory not provided")
	}

	detectOpts := detection.DefaultOptions()
	if config.detectionOptions != nil {
		detectOpts = *config.detectionOptions
	}
	devices, err := detection.DetectAll(&detectOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceNotFound, err)
	}

	role := detection.RoleLocal
	if probe, err := New(nopTransport{}, config.uploaderOptions...); err == nil && probe.session.Mode == ModeRemote {
		role = detection.RoleRemote
	}

	var errs []error
	for _, device := range detection.Filter(devices, role) {
		transport, err := config.transportDeviceFactory(device)
		if err == nil {
			debugf("opened %s", device)
			return transport, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", device.Path, err))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrDeviceNotFound, errors.Join(errs...))
	}
	return nil, fmt.Errorf("%w: no %s bridge among %d detected devices", ErrDeviceNotFound, role, len(devices))
}

func createManualTransport(path string, factory TransportFactory) (Transport, error) {
	if factory == nil {
		return nil, errors.New("transport factory not provided")
	}
	transport, err := factory(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport for path %s: %w", path, err)
	}
	return transport, nil
}

// nopTransport lets Discover evaluate uploader options without a device
type nopTransport struct{}

func (nopTransport) SetReport([]byte) error { return ErrTransportClosed }
func (nopTransport) GetReport(byte) ([]byte, error) { return nil, ErrTransportClosed }
func (nopTransport) Close() error { return nil }
func (nopTransport) SetTimeout(time.Duration) error { return nil }
func (nopTransport) IsConnected() bool { return false }
func (nopTransport) Type() TransportType { return TransportMock }
