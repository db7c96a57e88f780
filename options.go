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
	"context"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-otaboot/protocol"
)

// Option is a functional option for configuring an Uploader
type Option func(*Uploader) error

// Sleeper waits between protocol attempts. It returns early with the context
// error when ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// WithMode selects local or remote programming
func WithMode(mode Mode) Option {
	return func(u *Uploader) error {
		if mode != ModeLocal && mode != ModeRemote {
			return fmt.Errorf("%w: mode %d", ErrInvalidParameter, int(mode))
		}
		u.session.Mode = mode
		return nil
	}
}

// WithDialect selects the radio opcode set. Canonical is the default.
func WithDialect(d protocol.Dialect) Option {
	return func(u *Uploader) error {
		if d == nil {
			return fmt.Errorf("%w: nil dialect", ErrInvalidParameter)
		}
		u.dialect = d
		return nil
	}
}

// WithTargetID fixes the remote device id instead of taking it from the
// first beacon the bridge captured
func WithTargetID(id byte) Option {
	return func(u *Uploader) error {
		if id == 0 {
			return fmt.Errorf("%w: device id 0 is reserved", ErrInvalidParameter)
		}
		u.session.TargetID = id
		u.fixedTarget = true
		return nil
	}
}

// WithPolicies replaces the per phase retry budgets
func WithPolicies(p Policies) Option {
	return func(u *Uploader) error {
		if err := p.Validate(); err != nil {
			return err
		}
		u.policies = p
		return nil
	}
}

// WithRetryConfig wraps the transport in a TransportWithRetry using config
func WithRetryConfig(config *RetryConfig) Option {
	return func(u *Uploader) error {
		if tr, ok := u.transport.(*TransportWithRetry); ok {
			tr.SetRetryConfig(config)
			return nil
		}
		u.transport = NewTransportWithRetry(u.transport, config)
		return nil
	}
}

// WithTimeout sets the transport read timeout
func WithTimeout(timeout time.Duration) Option {
	return func(u *Uploader) error {
		if err := u.transport.SetTimeout(timeout); err != nil {
			return fmt.Errorf("failed to set timeout: %w", err)
		}
		return nil
	}
}

// WithProgressCallback registers a callback invoked as blocks are confirmed
func WithProgressCallback(cb ProgressCallback) Option {
	return func(u *Uploader) error {
		u.progress = cb
		return nil
	}
}

// WithSleeper replaces the wall clock delay between attempts
func WithSleeper(s Sleeper) Option {
	return func(u *Uploader) error {
		if s == nil {
			return fmt.Errorf("%w: nil sleeper", ErrInvalidParameter)
		}
		u.sleep = s
		return nil
	}
}

// WithLeaveBootloader asks Upload to leave the bootloader after programming.
// Remote sessions always reboot the remote after Stop.
func WithLeaveBootloader(leave bool) Option {
	return func(u *Uploader) error {
		u.leave = leave
		return nil
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
