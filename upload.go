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

// Upload programs image in the configured mode. Any phase failure aborts the
// session, which restores the bridge and closes the transport.
func (u *Uploader) Upload(ctx context.Context, image *FirmwareImage) error {
	if image == nil || image.Empty() {
		return fmt.Errorf("%w: no data in image", ErrInvalidParameter)
	}

	var err error
	if u.session.Mode == ModeRemote {
		err = u.uploadRemote(ctx, image)
	} else {
		err = u.uploadLocal(ctx, image)
	}
	if err == nil {
		return nil
	}

	debugf("%s: aborting: %v", u.session, err)
	// Restore must still reach the bridge when ctx itself ended the session
	if abortErr := u.Abort(context.WithoutCancel(ctx)); abortErr != nil && !isCancellation(err) {
		debugf("%s: abort: %v", u.session.ID, abortErr)
	}
	return err
}

func (u *Uploader) uploadLocal(ctx context.Context, image *FirmwareImage) error {
	info, err := u.FetchDeviceInfo(ctx)
	if err != nil {
		return err
	}
	plan, err := PlanTransfer(image, info)
	if err != nil {
		return err
	}
	if err := u.sendBlocks(ctx, plan, protocol.LocalBlockSize); err != nil {
		return err
	}
	if u.leave {
		return u.leaveLocal()
	}
	return nil
}

func (u *Uploader) uploadRemote(ctx context.Context, image *FirmwareImage) error {
	info, err := u.FetchDeviceInfo(ctx)
	if err != nil {
		return err
	}
	// Checked before Start so an oversized image never reaches the radio
	if _, err := PlanTransfer(image, info); err != nil {
		return err
	}
	if err := u.Handshake(ctx); err != nil {
		return err
	}
	plan, err := PlanTransfer(image, u.session.Info())
	if err != nil {
		return err
	}
	if err := u.EnterTransmitMode(ctx); err != nil {
		return err
	}
	if err := u.sendBlocks(ctx, plan.RemotePlan(), protocol.BlockSize); err != nil {
		return err
	}
	if err := u.Finish(ctx); err != nil {
		return err
	}
	if err := u.Reboot(ctx); err != nil {
		return err
	}
	return u.Restore(ctx)
}

func (u *Uploader) sendBlocks(ctx context.Context, plan Plan, size int) error {
	blocks := plan.Blocks(size)
	debugf("%s: uploading %d (0x%x) bytes starting at 0x%x in %d blocks",
		u.session, plan.Len(), plan.Len(), plan.Start, len(blocks))

	u.session.Cursor = plan.Start
	started := time.Now()
	written := 0
	for i, b := range blocks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := u.SendBlock(ctx, b.Address, b.Data); err != nil {
			return err
		}
		written += len(b.Data)
		if u.progress != nil {
			u.progress(Progress{
				Phase:        PhaseBlock,
				Address:      b.Address,
				Block:        i + 1,
				TotalBlocks:  len(blocks),
				BytesWritten: written,
				Elapsed:      time.Since(started),
			})
		}
	}
	return nil
}

// LeaveBootloader asks the bridge or the remote to start its application
// without programming anything. For a remote this switches the bridge to
// relay, sends the boot command and restores the bridge afterwards.
func (u *Uploader) LeaveBootloader(ctx context.Context) error {
	if u.session.Mode == ModeLocal {
		return u.leaveLocal()
	}
	if err := u.EnterTransmitMode(ctx); err != nil {
		return err
	}
	if err := u.Reboot(ctx); err != nil {
		return err
	}
	return u.Restore(ctx)
}
