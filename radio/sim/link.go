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

// Package sim provides an in-memory radio link with the exact auto-ack
// semantics of the hardware: a transmitted frame is answered with whatever
// payload the receiver had queued before the frame arrived.
package sim

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/ZaparooProject/go-otaboot/radio"
)

// rxFIFODepth matches the three entry receive FIFO of nRF24 class radios.
const rxFIFODepth = 3

// LossKind identifies which half of an exchange a loss decision applies to.
type LossKind uint8

const (
	// LossFrame drops the frame before the receiver sees it.
	LossFrame LossKind = iota
	// LossAck delivers the frame but drops its acknowledgement.
	LossAck
)

// LossEvent describes one loss decision.
type LossEvent struct {
	From string
	Seq  uint64
	Kind LossKind
}

// LossFunc decides whether the exchange half described by ev is lost.
type LossFunc func(ev LossEvent) bool

// Stats counts link activity.
type Stats struct {
	Frames        uint64
	Acks          uint64
	DroppedFrames uint64
	DroppedAcks   uint64
}

// LinkOption configures a Link.
type LinkOption func(*Link)

// WithLoss installs a loss decision function.
func WithLoss(fn LossFunc) LinkOption {
	return func(l *Link) {
		l.loss = fn
	}
}

// Link joins two endpoints.
type Link struct {
	a, b          *Endpoint
	loss          LossFunc
	seq           uint64
	frames        atomic.Uint64
	acks          atomic.Uint64
	droppedFrames atomic.Uint64
	droppedAcks   atomic.Uint64
	mu            sync.Mutex
}

// NewLink creates a link with two endpoints, both starting as receivers.
func NewLink(nameA, nameB string, opts ...LinkOption) *Link {
	l := &Link{}
	for _, opt := range opts {
		opt(l)
	}
	l.a = &Endpoint{link: l, name: nameA}
	l.b = &Endpoint{link: l, name: nameB}
	l.a.peer = l.b
	l.b.peer = l.a
	return l
}

// A returns the first endpoint.
func (l *Link) A() *Endpoint { return l.a }

// B returns the second endpoint.
func (l *Link) B() *Endpoint { return l.b }

// Stats returns a snapshot of the link counters.
func (l *Link) Stats() Stats {
	return Stats{
		Frames:        l.frames.Load(),
		Acks:          l.acks.Load(),
		DroppedFrames: l.droppedFrames.Load(),
		DroppedAcks:   l.droppedAcks.Load(),
	}
}

func (l *Link) lost(from string, kind LossKind) bool {
	if l.loss == nil {
		return false
	}
	return l.loss(LossEvent{From: from, Seq: l.seq, Kind: kind})
}

// Endpoint is one radio on a Link. It implements radio.Radio.
type Endpoint struct {
	link *Link
	peer *Endpoint
	name string
	rx   [rxFIFODepth]struct {
		buf [radio.MaxPayload]byte
		n   int
	}
	rxHead  int
	rxCount int
	ack     radio.Mailbox
	mode    radio.Mode
	closed  bool
}

var _ radio.Radio = (*Endpoint)(nil)

// Name returns the endpoint name.
func (e *Endpoint) Name() string { return e.name }

// Transmit delivers p to the peer and returns the peer's queued ack payload.
func (e *Endpoint) Transmit(p []byte) ([]byte, error) {
	if len(p) > radio.MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", radio.ErrPayloadTooLarge, len(p))
	}
	l := e.link
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.closed {
		return nil, radio.ErrClosed
	}
	l.seq++
	peer := e.peer
	if peer.closed || peer.mode != radio.ModeRX || peer.rxCount == rxFIFODepth {
		return nil, radio.ErrNoAck
	}
	if l.lost(e.name, LossFrame) {
		l.droppedFrames.Add(1)
		return nil, radio.ErrNoAck
	}

	slot := &peer.rx[(peer.rxHead+peer.rxCount)%rxFIFODepth]
	slot.n = copy(slot.buf[:], p)
	peer.rxCount++
	l.frames.Add(1)

	var ack [radio.MaxPayload]byte
	n, _ := peer.ack.Take(ack[:])

	if l.lost(e.name, LossAck) {
		l.droppedAcks.Add(1)
		return nil, radio.ErrNoAck
	}
	l.acks.Add(1)
	return append([]byte(nil), ack[:n]...), nil
}

// Receive pops one pending frame.
func (e *Endpoint) Receive(buf []byte) (int, error) {
	l := e.link
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.closed {
		return 0, radio.ErrClosed
	}
	if e.rxCount == 0 {
		return 0, nil
	}
	slot := &e.rx[e.rxHead]
	n := copy(buf, slot.buf[:slot.n])
	e.rxHead = (e.rxHead + 1) % rxFIFODepth
	e.rxCount--
	return n, nil
}

// SetAckPayload queues the reply for the next received frame.
func (e *Endpoint) SetAckPayload(p []byte) error {
	e.link.mu.Lock()
	defer e.link.mu.Unlock()
	if e.closed {
		return radio.ErrClosed
	}
	if err := e.ack.Put(p); err != nil {
		return fmt.Errorf("set ack payload: %w", err)
	}
	return nil
}

// SetMode switches the endpoint role.
func (e *Endpoint) SetMode(m radio.Mode) error {
	e.link.mu.Lock()
	defer e.link.mu.Unlock()
	e.mode = m
	return nil
}

// Mode returns the endpoint role.
func (e *Endpoint) Mode() radio.Mode {
	e.link.mu.Lock()
	defer e.link.mu.Unlock()
	return e.mode
}

// Pending returns the number of frames waiting in the receive FIFO.
func (e *Endpoint) Pending() int {
	e.link.mu.Lock()
	defer e.link.mu.Unlock()
	return e.rxCount
}

// Close takes the endpoint off the air.
func (e *Endpoint) Close() error {
	e.link.mu.Lock()
	defer e.link.mu.Unlock()
	e.closed = true
	return nil
}

// DropEvery loses the nth, 2nth, ... exchange half of the given kind.
func DropEvery(n uint64, kind LossKind) LossFunc {
	return func(ev LossEvent) bool {
		return ev.Kind == kind && n > 0 && ev.Seq%n == 0
	}
}

// DropRandom loses each exchange half with probability rate, reproducibly
// for a given seed.
func DropRandom(rate float64, seed uint64) LossFunc {
	rng := rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))
	return func(LossEvent) bool {
		return rng.Float64() < rate
	}
}
