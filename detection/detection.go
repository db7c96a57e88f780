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

// Package detection finds bootloader bridges attached to the host. Transport
// specific detectors register themselves on import; DetectAll runs every
// registered detector and filters the results through the blocklist and the
// ignore paths.
package detection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Detection errors
var (
	ErrUnsupportedPlatform = errors.New("detection not supported on this platform")
	ErrNoDevicesFound      = errors.New("no bootloader bridges found")
)

// Mode controls how intrusive detection may be
type Mode int

const (
	// Passive only enumerates descriptors and never opens a device
	Passive Mode = iota
	// Safe may open a device to read its identity but sends no reports
	Safe
)

// Role is the bootloader a bridge is running
type Role string

const (
	// RoleLocal is a bridge in its own bootloader
	RoleLocal Role = "local"
	// RoleRemote is a bridge relaying to remote devices
	RoleRemote Role = "remote"
)

// DeviceInfo describes one detected bridge
type DeviceInfo struct {
	Metadata  map[string]string
	Transport string
	Path      string
	Name      string
	Role      Role
}

func (d DeviceInfo) String() string {
	return fmt.Sprintf("%s %s (%s, %s)", d.Transport, d.Path, d.Name, d.Role)
}

// Options configures detection
type Options struct {
	Blocklist   []string
	IgnorePaths []string
	Mode        Mode
	Timeout     time.Duration
}

// DefaultOptions returns safe detection with the default blocklist
func DefaultOptions() Options {
	return Options{
		Mode:      Safe,
		Timeout:   5 * time.Second,
		Blocklist: DefaultBlocklist(),
	}
}

// Detector finds bridges on one transport
type Detector interface {
	// Transport names the transport, e.g. "hid" or "uart"
	Transport() string

	// Detect lists the bridges it can see
	Detect(ctx context.Context, opts *Options) ([]DeviceInfo, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Detector{}
)

// RegisterDetector adds d to the registry, replacing any detector for the
// same transport
func RegisterDetector(d Detector) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[d.Transport()] = d
}

// Detectors returns the registered detectors sorted by transport name
func Detectors() []Detector {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Detector, 0, len(registry))
	for _, d := range registry {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Transport() < out[j].Transport() })
	return out
}

// DetectAll runs every registered detector
func DetectAll(opts *Options) ([]DeviceInfo, error) {
	if opts == nil {
		defaults := DefaultOptions()
		opts = &defaults
	}
	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	return DetectAllContext(ctx, opts)
}

// DetectAllContext runs every registered detector under ctx. Detectors that
// fail are skipped unless all of them fail.
func DetectAllContext(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	detectors := Detectors()
	if len(detectors) == 0 {
		return nil, ErrNoDevicesFound
	}

	var (
		found []DeviceInfo
		errs  []error
	)
	for _, d := range detectors {
		devices, err := d.Detect(ctx, opts)
		if err != nil {
			if !errors.Is(err, ErrUnsupportedPlatform) {
				errs = append(errs, fmt.Errorf("%s: %w", d.Transport(), err))
			}
			continue
		}
		for _, dev := range devices {
			if IsPathIgnored(dev.Path, opts.IgnorePaths) {
				continue
			}
			if vidpid := dev.Metadata["vidpid"]; vidpid != "" && IsBlocked(vidpid, opts.Blocklist) {
				continue
			}
			found = append(found, dev)
		}
	}

	if len(found) == 0 {
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return nil, ErrNoDevicesFound
	}
	return found, nil
}

// Filter returns the devices running role
func Filter(devices []DeviceInfo, role Role) []DeviceInfo {
	var out []DeviceInfo
	for _, d := range devices {
		if d.Role == role {
			out = append(out, d)
		}
	}
	return out
}
