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

// Package retry provides the bounded retry loops shared by the transports
package retry

import (
	"errors"
	"time"
)

// ErrExhausted is returned when an operation still asked to be retried after
// the last attempt
var ErrExhausted = errors.New("retries exhausted")

// ErrDeadline is returned by UntilDeadline when time runs out
var ErrDeadline = errors.New("deadline exceeded")

// Operation represents a function that can be retried
// Returns: data, shouldRetry, error
// - data: the result if successful
// - shouldRetry: true if the operation should be retried
// - error: any permanent error that should stop retries
type Operation[T any] func() (T, bool, error)

// Config configures retry behavior
type Config struct {
	OnRetry       func() error
	OnRetryFailed func() error
	Sleep         func(time.Duration)
	MaxRetries    int
	RetryDelay    time.Duration
}

// Do executes an operation, retrying up to MaxRetries times while it asks
// for it
func Do[T any](config Config, operation Operation[T]) (T, error) {
	var zero T
	sleep := config.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		result, shouldRetry, err := operation()
		if err != nil {
			return zero, err
		}
		if !shouldRetry {
			return result, nil
		}
		if attempt >= config.MaxRetries {
			break
		}

		if config.OnRetry != nil {
			if err := config.OnRetry(); err != nil {
				return zero, err
			}
		}
		if config.RetryDelay > 0 {
			sleep(config.RetryDelay)
		}
	}

	if config.OnRetryFailed != nil {
		if err := config.OnRetryFailed(); err != nil {
			return zero, err
		}
	}
	return zero, ErrExhausted
}

// UntilDeadline repeats operation every interval until it stops asking for a
// retry or timeout has passed
func UntilDeadline[T any](timeout, interval time.Duration, operation Operation[T]) (T, error) {
	var zero T
	deadline := time.Now().Add(timeout)

	for {
		result, shouldRetry, err := operation()
		if err != nil {
			return zero, err
		}
		if !shouldRetry {
			return result, nil
		}
		if !time.Now().Add(interval).Before(deadline) {
			return zero, ErrDeadline
		}
		time.Sleep(interval)
	}
}
