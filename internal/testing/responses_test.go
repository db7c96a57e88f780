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

package testing

import (
	"testing"

	"github.com/ZaparooProject/go-otaboot/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildReplies(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		reply    []byte
		wantKind protocol.AckKind
		wantAddr uint32
		finished bool
	}{
		{name: "beacon", reply: BuildBeaconReply(0x42, protocol.StatusBootReq, 128, 32768), wantKind: protocol.AckDeviceInfo},
		{name: "status", reply: BuildStatusReply(0x42, 0x120), wantKind: protocol.AckStatus, wantAddr: 0x120},
		{
			name: "finished", reply: BuildFinishedReply(0x42, 0x400),
			wantKind: protocol.AckStatus, wantAddr: 0x400, finished: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			reply, err := protocol.DecodeReply(tt.reply)
			require.NoError(t, err)
			assert.Equal(t, protocol.TxOK, reply.TxStatus)

			ack, err := protocol.Canonical.DecodeAck(reply.Payload)
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, ack.Kind)
			assert.Equal(t, byte(0x42), ack.DeviceID)
			assert.Equal(t, tt.wantAddr, ack.Address)
			assert.Equal(t, tt.finished, ack.Finished)
		})
	}
}

func TestBuildLostAckReply(t *testing.T) {
	t.Parallel()
	reply, err := protocol.DecodeReply(BuildLostAckReply())
	require.NoError(t, err)
	assert.Equal(t, protocol.TxNoAck, reply.TxStatus)
}
