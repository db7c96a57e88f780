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
	"errors"
	"fmt"
	"sync"

	"github.com/ZaparooProject/go-otaboot/protocol"
)

// Uploader drives one bridge through programming sessions. It owns the
// session state, the retry budgets and the address bookkeeping.
//
// Thread Safety: Uploader is NOT thread-safe. A bootloader session is a
// strict request/reply sequence and must be driven from a single goroutine.
type Uploader struct {
	transport   Transport
	dialect     protocol.Dialect
	session     *Session
	sleep       Sleeper
	progress    ProgressCallback
	policies    Policies
	closeOnce   sync.Once
	closeErr    error
	fixedTarget bool
	leave       bool
}

// New creates an uploader on an open transport
func New(transport Transport, opts ...Option) (*Uploader, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidParameter)
	}
	u := &Uploader{
		transport: transport,
		dialect:   protocol.Canonical,
		session:   newSession(ModeLocal),
		policies:  DefaultPolicies(),
		sleep:     sleepContext,
	}

	for _, opt := range opts {
		if err := opt(u); err != nil {
			return nil, err
		}
	}
	u.session.RetryBudget = u.policies.Block.Attempts

	return u, nil
}

// Session returns the current session state
func (u *Uploader) Session() *Session {
	return u.session
}

// Transport returns the underlying transport
func (u *Uploader) Transport() Transport {
	return u.transport
}

// Dialect returns the radio opcode set in use
func (u *Uploader) Dialect() protocol.Dialect {
	return u.dialect
}

// Close closes the transport. It is safe to call more than once.
func (u *Uploader) Close() error {
	u.closeOnce.Do(func() {
		if err := u.transport.Close(); err != nil {
			u.closeErr = fmt.Errorf("failed to close transport: %w", err)
		}
	})
	return u.closeErr
}

// Abort returns the bridge to passthrough listening, best effort, and
// closes the transport.
func (u *Uploader) Abort(ctx context.Context) error {
	if u.session.Mode == ModeRemote {
		if err := u.Restore(ctx); err != nil {
			debugf("%s: restore on abort: %v", u.session.ID, err)
		}
	}
	return u.Close()
}

func (u *Uploader) canonical() bool {
	return u.dialect == protocol.Canonical
}

func (u *Uploader) supports(c protocol.Command) bool {
	_, ok := u.dialect.Opcode(c)
	return ok
}

func (u *Uploader) sendCommand(c protocol.Command) error {
	report, err := u.dialect.EncodeCommandReport(u.session.TargetID, c)
	if err != nil {
		return fmt.Errorf("encode %s: %w", c, err)
	}
	if err := u.transport.SetReport(report); err != nil {
		return fmt.Errorf("send %s: %w", c, err)
	}
	return nil
}

// readReply fetches report 3 and splits it into transmit status and the
// decoded ack payload. A payload that does not decode yields the zero ack.
func (u *Uploader) readReply() (protocol.Reply, protocol.AckPayload, error) {
	buf, err := u.transport.GetReport(protocol.ReportRemote)
	if err != nil {
		return protocol.Reply{}, protocol.AckPayload{}, fmt.Errorf("get report %d: %w", protocol.ReportRemote, err)
	}
	if len(buf) < protocol.ReplySize {
		return protocol.Reply{}, protocol.AckPayload{}, &ShortReplyError{
			Report: protocol.ReportRemote,
			Got:    len(buf),
			Want:   protocol.ReplySize,
		}
	}
	reply, err := protocol.DecodeReply(buf)
	if err != nil {
		return protocol.Reply{}, protocol.AckPayload{}, fmt.Errorf("%w: %w", ErrCommunicationFailed, err)
	}
	ack, err := u.dialect.DecodeAck(reply.Payload)
	if err != nil {
		debugf("%s: reply % X does not decode: %v", u.session.ID, buf, err)
		return reply, protocol.AckPayload{}, nil
	}
	return reply, ack, nil
}

// replyLost reports whether a failed read is worth another attempt. A short
// reply means the bridge speaks another protocol; a closed transport will not
// recover.
func replyLost(err error) bool {
	return !errors.Is(err, ErrShortReply) && !errors.Is(err, ErrTransportClosed)
}

// fromTarget reports whether ack came from the session's remote. Legacy acks
// carry no device id.
func (u *Uploader) fromTarget(ack protocol.AckPayload) bool {
	return !u.canonical() || ack.DeviceID == u.session.TargetID
}

// sameAddress compares a reported cursor with an expected one. Legacy status
// acks only carry the low 16 bits.
func (u *Uploader) sameAddress(got, want uint32) bool {
	if !u.canonical() {
		return got&0xFFFF == want&0xFFFF
	}
	return got == want
}

// confirms checks a reply against the cursor the remote must have reached
// after a block. An older cursor means the block was not applied yet; the
// expected one means it was, whether by this attempt or an earlier one.
func (u *Uploader) confirms(reply protocol.Reply, ack protocol.AckPayload, want uint32) error {
	switch {
	case !reply.Acked():
		return fmt.Errorf("%w: transmit status %d", ErrCommunicationFailed, reply.TxStatus)
	case ack.Kind != protocol.AckStatus || ack.Finished:
		return fmt.Errorf("%w: unexpected reply %s", ErrCommunicationFailed, ack)
	case !u.fromTarget(ack):
		return fmt.Errorf("%w: reply from device 0x%02X", ErrCommunicationFailed, ack.DeviceID)
	case !u.sameAddress(ack.Address, want):
		return fmt.Errorf("%w: remote cursor at 0x%05X, want 0x%05X", ErrCommunicationFailed, ack.Address, want)
	default:
		return nil
	}
}
