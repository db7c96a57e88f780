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

package polling

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrAlreadyRunning is returned by Start when the actor loop is active.
var ErrAlreadyRunning = errors.New("actor is already running")

// Poller performs one non-blocking pass of work. active reports whether the
// pass did anything, which keeps the actor at its fast interval.
type Poller interface {
	Poll() (active bool, err error)
}

// PollerFunc adapts a function to Poller.
type PollerFunc func() (bool, error)

// Poll calls f.
func (f PollerFunc) Poll() (bool, error) {
	return f()
}

// Config holds actor timing.
type Config struct {
	// PollInterval is the delay between passes while there is traffic.
	PollInterval time.Duration
	// IdleInterval is the delay used once nothing happened for IdleAfter.
	IdleInterval time.Duration
	IdleAfter    time.Duration
}

// DefaultConfig returns timing suited to a radio node.
func DefaultConfig() *Config {
	return &Config{
		PollInterval: time.Millisecond,
		IdleInterval: 10 * time.Millisecond,
		IdleAfter:    5 * time.Second,
	}
}

// Callbacks defines callback functions for actor events
type Callbacks struct {
	OnError func(err error)
}

// Metrics tracks operational metrics for Actor
type Metrics struct {
	PollCycles      int64         // Total number of passes
	PollErrors      int64         // Passes that returned an error
	ActiveCycles    int64         // Passes that did work
	LastPollLatency time.Duration // Duration of the last pass
}

// Actor drives a Poller from a single goroutine.
type Actor struct {
	poller    Poller
	config    *Config
	callbacks Callbacks
	cancel    context.CancelFunc
	done      chan struct{}
	mu        sync.Mutex
	running   atomic.Bool
	// Atomic counters for metrics
	pollCycles      atomic.Int64
	pollErrors      atomic.Int64
	activeCycles    atomic.Int64
	lastPollLatency atomic.Int64
	// Adaptive interval state
	currentInterval atomic.Int64
	lastActive      atomic.Int64
}

// NewActor creates an actor for p. A nil config selects DefaultConfig.
func NewActor(p Poller, config *Config, callbacks Callbacks) *Actor {
	if config == nil {
		config = DefaultConfig()
	}
	a := &Actor{
		poller:    p,
		config:    config,
		callbacks: callbacks,
	}
	a.currentInterval.Store(config.PollInterval.Nanoseconds())
	a.lastActive.Store(time.Now().UnixNano())
	return a
}

// Start runs the poll loop in a goroutine until Stop or ctx cancellation.
func (a *Actor) Start(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	a.mu.Lock()
	a.cancel = cancel
	a.done = done
	a.mu.Unlock()

	go func() {
		defer close(done)
		defer a.running.Store(false)
		_ = a.Run(loopCtx)
	}()
	return nil
}

// Stop cancels the loop and waits for it to exit or ctx to expire.
func (a *Actor) Stop(ctx context.Context) error {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run polls in the calling goroutine until ctx is done.
func (a *Actor) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		a.Step()
		timer.Reset(a.CurrentInterval())
	}
}

// Step performs a single pass and updates the metrics.
func (a *Actor) Step() {
	start := time.Now()
	active, err := a.poller.Poll()
	a.pollCycles.Add(1)
	a.lastPollLatency.Store(time.Since(start).Nanoseconds())

	if err != nil {
		a.pollErrors.Add(1)
		if a.callbacks.OnError != nil {
			a.callbacks.OnError(err)
		}
	}
	if active {
		a.activeCycles.Add(1)
		a.lastActive.Store(start.UnixNano())
	}
	a.adjustInterval()
}

func (a *Actor) adjustInterval() {
	idle := time.Duration(time.Now().UnixNano() - a.lastActive.Load())
	if a.config.IdleInterval > 0 && idle > a.config.IdleAfter {
		a.currentInterval.Store(a.config.IdleInterval.Nanoseconds())
		return
	}
	a.currentInterval.Store(a.config.PollInterval.Nanoseconds())
}

// GetMetrics returns current operational metrics
func (a *Actor) GetMetrics() Metrics {
	return Metrics{
		PollCycles:      a.pollCycles.Load(),
		PollErrors:      a.pollErrors.Load(),
		ActiveCycles:    a.activeCycles.Load(),
		LastPollLatency: time.Duration(a.lastPollLatency.Load()),
	}
}

// CurrentInterval returns the adaptive polling interval.
func (a *Actor) CurrentInterval() time.Duration {
	return time.Duration(a.currentInterval.Load())
}

// IsRunning reports whether a Start loop is active.
func (a *Actor) IsRunning() bool {
	return a.running.Load()
}
