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

	"github.com/golang/glog"

	"github.com/ZaparooProject/go-otaboot/protocol"
)

// FetchDeviceInfo asks the bridge for the target's page and flash size. In
// local mode that is the bridge itself; in remote mode it is the device info
// beacon the bridge captured, or for the legacy dialect the reply to Start.
func (u *Uploader) FetchDeviceInfo(ctx context.Context) (DeviceInfo, error) {
	var (
		info DeviceInfo
		err  error
	)
	switch {
	case u.session.Mode == ModeLocal:
		info, err = u.fetchLocalInfo()
	case !hasCapability(u.transport, CapabilityRemoteRelay):
		err = fmt.Errorf("%w: bridge does not relay to remote devices", ErrDeviceNotFound)
	case u.canonical():
		info, err = u.fetchBeacon(ctx)
	default:
		info, err = u.fetchLegacyInfo(ctx)
	}
	if err != nil {
		return DeviceInfo{}, err
	}

	u.session.apply(info)
	debugf("%s: %s", u.session, info)
	return u.session.Info(), nil
}

func (u *Uploader) fetchLocalInfo() (DeviceInfo, error) {
	if !hasCapability(u.transport, CapabilityLocalFlash) {
		return DeviceInfo{}, fmt.Errorf("%w: bridge is not in its own bootloader", ErrDeviceNotFound)
	}
	buf, err := u.transport.GetReport(protocol.ReportLocalInfo)
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("get report %d: %w", protocol.ReportLocalInfo, err)
	}
	if len(buf) < protocol.LocalInfoSize {
		return DeviceInfo{}, &ShortReplyError{
			Report: protocol.ReportLocalInfo,
			Got:    len(buf),
			Want:   protocol.LocalInfoSize,
		}
	}
	pageSize, flashSize, err := protocol.DecodeLocalInfo(buf)
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("%w: %w", ErrCommunicationFailed, err)
	}
	return DeviceInfo{PageSize: pageSize, FlashSize: flashSize}, nil
}

func (u *Uploader) fetchBeacon(ctx context.Context) (DeviceInfo, error) {
	pol := u.policies.Discovery
	lastErr := ErrNoBeacon
	for attempt := 1; attempt <= pol.Attempts; attempt++ {
		if attempt > 1 {
			if err := u.sleep(ctx, pol.Delay); err != nil {
				return DeviceInfo{}, fmt.Errorf("discovery: %w", err)
			}
		}
		_, ack, err := u.readReply()
		if err != nil {
			if !replyLost(err) {
				return DeviceInfo{}, fmt.Errorf("reading remote device info: %w", err)
			}
			lastErr = err
			continue
		}
		if u.isBeacon(ack) {
			return DeviceInfo{DeviceID: ack.DeviceID, PageSize: ack.PageSize(), FlashSize: ack.FlashSize()}, nil
		}
		debugf("%s: no beacon yet (%s)", u.session.ID, ack)
		lastErr = ErrNoBeacon
	}
	return DeviceInfo{}, &ProtocolTimeoutError{Phase: PhaseDiscovery, Attempts: pol.Attempts, Err: lastErr}
}

func (u *Uploader) isBeacon(ack protocol.AckPayload) bool {
	if ack.Kind != protocol.AckDeviceInfo || ack.DeviceID == 0 {
		return false
	}
	if ack.BootStatus != protocol.StatusBootReq && ack.BootStatus != protocol.StatusBootReady {
		return false
	}
	return !u.fixedTarget || ack.DeviceID == u.session.TargetID
}

// fetchLegacyInfo sends Start until the remote answers with its device info.
// The legacy remote arms on Start, so this doubles as the handshake.
func (u *Uploader) fetchLegacyInfo(ctx context.Context) (DeviceInfo, error) {
	pol := u.policies.Discovery
	var lastErr error
	for attempt := 1; attempt <= pol.Attempts; attempt++ {
		if err := u.sleep(ctx, pol.Delay); err != nil {
			return DeviceInfo{}, fmt.Errorf("discovery: %w", err)
		}
		if err := u.sendCommand(protocol.CmdStart); err != nil {
			lastErr = err
			continue
		}
		reply, ack, err := u.readReply()
		if err != nil {
			if !replyLost(err) {
				return DeviceInfo{}, fmt.Errorf("reading remote device info: %w", err)
			}
			lastErr = err
			continue
		}
		if reply.Acked() && ack.Kind == protocol.AckDeviceInfo {
			return DeviceInfo{PageSize: ack.PageSize(), FlashSize: ack.FlashSize()}, nil
		}
		lastErr = fmt.Errorf("%w: transmit status %d, %s", ErrNoBeacon, reply.TxStatus, ack)
	}
	return DeviceInfo{}, &ProtocolTimeoutError{Phase: PhaseDiscovery, Attempts: pol.Attempts, Err: lastErr}
}

// Handshake sends Start to the target once and polls the bridge until the
// remote reports Ready. The legacy dialect has no handshake beyond Start.
func (u *Uploader) Handshake(ctx context.Context) error {
	if u.session.Mode != ModeRemote || !u.canonical() {
		return nil
	}
	if u.session.TargetID == 0 {
		return fmt.Errorf("%w: no target device id", ErrInvalidParameter)
	}
	if err := u.sendCommand(protocol.CmdStart); err != nil {
		return err
	}

	pol := u.policies.Handshake
	var last protocol.AckPayload
	var lastErr error
	for attempt := 1; attempt <= pol.Attempts; attempt++ {
		if err := u.sleep(ctx, pol.Delay); err != nil {
			return fmt.Errorf("handshake: %w", err)
		}
		_, ack, err := u.readReply()
		if err != nil {
			if !replyLost(err) {
				return fmt.Errorf("waiting for remote device: %w", err)
			}
			lastErr = err
			continue
		}
		if ack.Kind == protocol.AckDeviceInfo && ack.DeviceID == u.session.TargetID && ack.Ready() {
			u.session.apply(DeviceInfo{DeviceID: ack.DeviceID, PageSize: ack.PageSize(), FlashSize: ack.FlashSize()})
			debugf("%s: remote ready after %d polls", u.session, attempt)
			return nil
		}
		last = ack
	}
	cause := fmt.Errorf("no response from device 0x%02X, last reply %s", u.session.TargetID, last)
	return &ProtocolTimeoutError{
		Phase:    PhaseHandshake,
		Attempts: pol.Attempts,
		Err:      errors.Join(cause, lastErr),
	}
}

// EnterTransmitMode switches the bridge radio to relay. No reply is needed.
func (u *Uploader) EnterTransmitMode(context.Context) error {
	if u.session.Mode != ModeRemote || !u.supports(protocol.CmdTxMode) {
		return nil
	}
	return u.sendCommand(protocol.CmdTxMode)
}

// SendBlock writes one block. Local blocks go straight to the bridge's flash
// and are not retried. Remote blocks are retried until the remote reports a
// cursor of addr+len(data), which also covers an earlier attempt having
// been applied with its acknowledgement lost.
func (u *Uploader) SendBlock(ctx context.Context, addr uint32, data []byte) error {
	if u.session.Mode == ModeLocal {
		return u.sendLocalBlock(addr, data)
	}

	report, err := protocol.EncodeRemoteDataReport(addr, data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}
	want := addr + uint32(len(data))

	pol := u.policies.Block
	var lastErr error
	for attempt := 1; attempt <= pol.Attempts; attempt++ {
		if err := u.sleep(ctx, pol.Delay); err != nil {
			return err
		}
		if err := u.transport.SetReport(report); err != nil {
			debugf("%s: block 0x%05X attempt %d: %v", u.session.ID, addr, attempt, err)
			lastErr = err
		}
		if err := u.sleep(ctx, pol.SettleDelay); err != nil {
			return err
		}
		reply, ack, err := u.readReply()
		if err != nil {
			if !replyLost(err) {
				return &ProgrammingFailedError{Address: addr, Last: err}
			}
			debugf("%s: block 0x%05X attempt %d: %v", u.session.ID, addr, attempt, err)
			lastErr = err
			continue
		}
		if err := u.confirms(reply, ack, want); err != nil {
			lastErr = err
			continue
		}
		u.session.Cursor = want
		return nil
	}
	return &ProgrammingFailedError{
		Address: addr,
		Last:    &ProtocolTimeoutError{Phase: PhaseBlock, Attempts: pol.Attempts, Err: lastErr},
	}
}

func (u *Uploader) sendLocalBlock(addr uint32, data []byte) error {
	report, err := protocol.EncodeLocalDataReport(addr, data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}
	if err := u.transport.SetReport(report); err != nil {
		return &ProgrammingFailedError{Address: addr, Last: err}
	}
	u.session.Cursor = addr + uint32(len(data))
	return nil
}

// Finish sends Stop and waits for the remote to report Finished. A remote
// that never confirms is only logged; it boots on its own timeout.
func (u *Uploader) Finish(ctx context.Context) error {
	if u.session.Mode != ModeRemote {
		return nil
	}

	pol := u.policies.SessionEnd
	var lastErr error
	for attempt := 1; attempt <= pol.Attempts; attempt++ {
		if err := u.sleep(ctx, pol.Delay); err != nil {
			return err
		}
		if err := u.sendCommand(protocol.CmdStop); err != nil {
			lastErr = err
		}
		if err := u.sleep(ctx, pol.SettleDelay); err != nil {
			return err
		}
		reply, ack, err := u.readReply()
		if err != nil {
			lastErr = err
			continue
		}
		if reply.Acked() && ack.Kind == protocol.AckStatus && ack.Finished && u.fromTarget(ack) {
			debugf("%s: remote finished", u.session)
			return nil
		}
		lastErr = fmt.Errorf("unexpected reply %s", ack)
	}

	timeout := &ProtocolTimeoutError{Phase: PhaseSessionEnd, Attempts: pol.Attempts, Err: lastErr}
	glog.Warningf("%s: ending communication failed: %v", u.session, timeout)
	return nil
}

// Reboot tells the remote to start its application. The remote drops off
// the link while it does so; transport errors are swallowed.
func (u *Uploader) Reboot(ctx context.Context) error {
	if u.session.Mode != ModeRemote {
		return u.leaveLocal()
	}

	pol := u.policies.Reboot
	if err := u.sleep(ctx, pol.PreDelay); err != nil {
		return err
	}
	for attempt := 1; attempt <= pol.Attempts; attempt++ {
		if err := u.sleep(ctx, pol.Delay); err != nil {
			return err
		}
		if err := u.sendCommand(protocol.CmdBoot); err != nil {
			debugf("%s: reboot attempt %d: %v", u.session.ID, attempt, err)
			continue
		}
		if err := u.sleep(ctx, pol.SettleDelay); err != nil {
			return err
		}
		reply, _, err := u.readReply()
		if err == nil && reply.Acked() {
			debugf("%s: reboot delivered", u.session)
			return nil
		}
	}
	debugf("%s: reboot not confirmed after %d attempts", u.session, pol.Attempts)
	return nil
}

// Restore sends End so the bridge drops back to passthrough listening. It is
// a no-op for the legacy dialect, which has no such command.
func (u *Uploader) Restore(ctx context.Context) error {
	if u.session.Mode != ModeRemote || !u.supports(protocol.CmdEnd) {
		return nil
	}
	if err := u.sleep(ctx, protocol.RestoreDelay); err != nil {
		return err
	}
	if err := u.sendCommand(protocol.CmdEnd); err != nil {
		debugf("%s: restore: %v", u.session.ID, err)
	}
	return nil
}

func (u *Uploader) leaveLocal() error {
	if err := u.transport.SetReport(protocol.LeaveReport()); err != nil {
		debugf("%s: leave bootloader: %v", u.session.ID, err)
	}
	return nil
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
