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
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	otatest "github.com/ZaparooProject/go-otaboot/internal/testing"
	"github.com/ZaparooProject/go-otaboot/protocol"
)

const testTarget = 0x42

// fakeClock records requested delays instead of sleeping
type fakeClock struct {
	delays []time.Duration
	mu     sync.Mutex
}

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delays = append(c.delays, d)
	return ctx.Err()
}

func (c *fakeClock) total() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var sum time.Duration
	for _, d := range c.delays {
		sum += d
	}
	return sum
}

func newRemoteUploader(t *testing.T, mock *MockTransport, opts ...Option) (*Uploader, *fakeClock) {
	t.Helper()
	clock := &fakeClock{}
	opts = append([]Option{WithMode(ModeRemote), WithSleeper(clock.sleep)}, opts...)
	u, err := New(mock, opts...)
	require.NoError(t, err)
	return u, clock
}

func countReports(sets [][]byte, prefix ...byte) int {
	n := 0
	for _, s := range sets {
		if bytes.HasPrefix(s, prefix) {
			n++
		}
	}
	return n
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(nil)
	require.ErrorIs(t, err, ErrInvalidParameter)

	mock := NewMockTransport()
	_, err = New(mock, WithTargetID(0))
	require.ErrorIs(t, err, ErrInvalidParameter)

	_, err = New(mock, WithPolicies(Policies{}))
	require.ErrorIs(t, err, ErrInvalidParameter)

	_, err = New(mock, WithMode(Mode(7)))
	require.ErrorIs(t, err, ErrInvalidParameter)

	u, err := New(mock, WithRetryConfig(DefaultRetryConfig()))
	require.NoError(t, err)
	assert.IsType(t, &TransportWithRetry{}, u.Transport())
	assert.Equal(t, ModeLocal, u.Session().Mode)
	assert.Equal(t, protocol.BlockAttempts, u.Session().RetryBudget)
	assert.False(t, u.Session().ID.IsNil())
}

func TestUpload_HandshakeTimeoutRestoresBridge(t *testing.T) {
	t.Parallel()

	mock := NewMockTransportWithReply(otatest.BuildBeaconReply(testTarget, protocol.StatusBootReq, 128, 32768))
	u, clock := newRemoteUploader(t, mock)

	err := u.Upload(context.Background(), imageWith(t, 0, 64))

	var pte *ProtocolTimeoutError
	require.ErrorAs(t, err, &pte)
	assert.Equal(t, PhaseHandshake, pte.Phase)
	assert.Equal(t, protocol.HandshakeAttempts, pte.Attempts)
	assert.Equal(t, 10*time.Second+protocol.RestoreDelay, clock.total())

	sets := mock.Sets()
	require.Len(t, sets, 2)
	assert.Equal(t, []byte{protocol.ReportRemote, testTarget, protocol.OpStart}, sets[0][:3])
	assert.Equal(t, []byte{protocol.ReportRemote, testTarget, protocol.OpEnd}, sets[1][:3])
	assert.Len(t, mock.Gets(), 1+protocol.HandshakeAttempts)
	assert.False(t, mock.IsConnected())
}

func TestHandshake_ReadyRefreshesGeometry(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	mock.QueueReply(
		otatest.BuildBeaconReply(testTarget, protocol.StatusBootReq, 128, 32768),
		otatest.BuildBeaconReply(testTarget, protocol.StatusBootReq, 128, 32768),
		otatest.BuildBeaconReply(testTarget, protocol.StatusBootReady, 256, 65536),
	)
	u, _ := newRemoteUploader(t, mock)

	info, err := u.FetchDeviceInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DeviceInfo{DeviceID: testTarget, PageSize: 128, FlashSize: 32768}, info)

	require.NoError(t, u.Handshake(context.Background()))
	assert.Equal(t, 256, u.Session().PageSize)
	assert.Equal(t, 65536, u.Session().FlashSize)
}

func TestFetchDeviceInfo_Remote(t *testing.T) {
	t.Parallel()

	t.Run("no beacon", func(t *testing.T) {
		t.Parallel()
		var empty [protocol.ReplySize]byte
		protocol.EncodeReply(&empty, protocol.TxNoAck, nil)
		mock := NewMockTransportWithReply(empty[:])
		u, clock := newRemoteUploader(t, mock)

		_, err := u.FetchDeviceInfo(context.Background())
		var pte *ProtocolTimeoutError
		require.ErrorAs(t, err, &pte)
		assert.Equal(t, PhaseDiscovery, pte.Phase)
		require.ErrorIs(t, err, ErrNoBeacon)
		assert.Len(t, mock.Gets(), protocol.DiscoveryAttempts)
		assert.Equal(t, (protocol.DiscoveryAttempts-1)*protocol.DiscoveryDelay, clock.total())
	})

	t.Run("short reply", func(t *testing.T) {
		t.Parallel()
		mock := NewMockTransportWithReply([]byte{3, 0, testTarget, protocol.StatusTypeDevInfo})
		u, _ := newRemoteUploader(t, mock)

		_, err := u.FetchDeviceInfo(context.Background())
		var short *ShortReplyError
		require.ErrorAs(t, err, &short)
		assert.Equal(t, 4, short.Got)
		assert.Equal(t, protocol.ReplySize, short.Want)
	})

	t.Run("other target ignored", func(t *testing.T) {
		t.Parallel()
		mock := NewMockTransportWithReply(otatest.BuildBeaconReply(testTarget, protocol.StatusBootReq, 128, 32768))
		u, _ := newRemoteUploader(t, mock, WithTargetID(0x07))

		_, err := u.FetchDeviceInfo(context.Background())
		require.ErrorIs(t, err, ErrNoBeacon)
	})

	t.Run("bridge without relay", func(t *testing.T) {
		t.Parallel()
		mock := NewMockTransport()
		mock.SetCapability(CapabilityRemoteRelay, false)
		u, _ := newRemoteUploader(t, mock)

		_, err := u.FetchDeviceInfo(context.Background())
		require.ErrorIs(t, err, ErrDeviceNotFound)
	})
}

func TestHandshake_ReadErrorsAreRetried(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	reads := 0
	mock.GetFunc = func(byte) ([]byte, error) {
		reads++
		if reads <= 3 {
			return nil, ErrTransportTimeout
		}
		return otatest.BuildBeaconReply(testTarget, protocol.StatusBootReady, 128, 32768), nil
	}
	u, clock := newRemoteUploader(t, mock, WithTargetID(testTarget))

	require.NoError(t, u.Handshake(context.Background()))
	assert.Len(t, mock.Gets(), 4)
	assert.Equal(t, 4*protocol.HandshakeDelay, clock.total())
}

func TestFetchDeviceInfo_RemoteReadErrorsAreRetried(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	mock.GetFunc = func(byte) ([]byte, error) { return nil, ErrTransportRead }
	u, _ := newRemoteUploader(t, mock)

	_, err := u.FetchDeviceInfo(context.Background())
	var pte *ProtocolTimeoutError
	require.ErrorAs(t, err, &pte)
	assert.Equal(t, PhaseDiscovery, pte.Phase)
	require.ErrorIs(t, err, ErrTransportRead)
	assert.Len(t, mock.Gets(), protocol.DiscoveryAttempts)
}

func TestFetchDeviceInfo_Local(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	mock.GetFunc = func(id byte) ([]byte, error) {
		require.Equal(t, protocol.ReportLocalInfo, id)
		return otatest.BuildLocalInfoResponse(128, 32768), nil
	}
	u, err := New(mock)
	require.NoError(t, err)

	info, err := u.FetchDeviceInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 128, info.PageSize)
	assert.Equal(t, 32768, info.FlashSize)

	short := NewMockTransportWithReply([]byte{1, 0x80, 0})
	u, err = New(short)
	require.NoError(t, err)
	_, err = u.FetchDeviceInfo(context.Background())
	require.ErrorIs(t, err, ErrShortReply)
}

func TestSendBlock(t *testing.T) {
	t.Parallel()

	block := bytes.Repeat([]byte{0x5A}, protocol.BlockSize)

	tests := []struct {
		name      string
		setup     func(t *testing.T, m *MockTransport)
		wantErr   error
		wantCause error
		wantSets  int
		wantCalls int
	}{
		{
			name: "ack lost then cursor already advanced",
			setup: func(t *testing.T, m *MockTransport) {
				m.QueueReply(otatest.BuildLostAckReply(), otatest.BuildStatusReply(testTarget, 48))
			},
			wantSets: 2,
		},
		{
			name: "stale cursor then confirmed",
			setup: func(t *testing.T, m *MockTransport) {
				m.QueueReply(otatest.BuildStatusReply(testTarget, 32), otatest.BuildStatusReply(testTarget, 48))
			},
			wantSets: 2,
		},
		{
			name: "send error tolerated",
			setup: func(t *testing.T, m *MockTransport) {
				m.SetFunc = func([]byte) error { return ErrTransportWrite }
				m.Reply = otatest.BuildStatusReply(testTarget, 48)
			},
			wantSets: 1,
		},
		{
			name: "budget exhausted",
			setup: func(t *testing.T, m *MockTransport) {
				m.Reply = otatest.BuildStatusReply(testTarget, 32)
			},
			wantErr:  ErrProtocolTimeout,
			wantSets: protocol.BlockAttempts,
		},
		{
			name: "reply from another device",
			setup: func(t *testing.T, m *MockTransport) {
				m.Reply = otatest.BuildReply(protocol.Canonical, protocol.TxOK, protocol.StatusPayload(0x07, 48))
			},
			wantErr:  ErrProgrammingFailed,
			wantSets: protocol.BlockAttempts,
		},
		{
			name: "read error then confirmed",
			setup: func(_ *testing.T, m *MockTransport) {
				reads := 0
				m.GetFunc = func(byte) ([]byte, error) {
					reads++
					if reads == 1 {
						return nil, ErrTransportRead
					}
					return otatest.BuildStatusReply(testTarget, 48), nil
				}
			},
			wantSets: 2,
		},
		{
			name: "read errors use the budget",
			setup: func(_ *testing.T, m *MockTransport) {
				m.GetFunc = func(byte) ([]byte, error) { return nil, ErrTransportRead }
			},
			wantErr:   ErrProtocolTimeout,
			wantCause: ErrTransportRead,
			wantSets:  protocol.BlockAttempts,
		},
		{
			name: "short reply is fatal",
			setup: func(_ *testing.T, m *MockTransport) {
				m.Reply = []byte{protocol.ReportRemote, protocol.TxOK}
			},
			wantErr:  ErrShortReply,
			wantSets: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			mock := NewMockTransport()
			tt.setup(t, mock)
			u, clock := newRemoteUploader(t, mock, WithTargetID(testTarget))

			err := u.SendBlock(context.Background(), 32, block)

			assert.Len(t, mock.Sets(), tt.wantSets)
			if tt.wantErr != nil {
				var pfe *ProgrammingFailedError
				require.ErrorAs(t, err, &pfe)
				assert.Equal(t, uint32(32), pfe.Address)
				require.ErrorIs(t, err, tt.wantErr)
				if tt.wantCause != nil {
					require.ErrorIs(t, err, tt.wantCause)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, uint32(48), u.Session().Cursor)
			per := protocol.BlockSendDelay + protocol.BlockReadDelay
			assert.Equal(t, time.Duration(tt.wantSets)*per, clock.total())
		})
	}
}

func TestFinish_UnconfirmedIsNotFatal(t *testing.T) {
	t.Parallel()

	mock := NewMockTransportWithReply(otatest.BuildStatusReply(testTarget, 0x500))
	u, _ := newRemoteUploader(t, mock, WithTargetID(testTarget))

	require.NoError(t, u.Finish(context.Background()))
	stop := []byte{protocol.ReportRemote, testTarget, protocol.OpStop}
	assert.Equal(t, protocol.SessionEndAttempts, countReports(mock.Sets(), stop...))
}

func TestFinish_Confirmed(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	mock.QueueReply(otatest.BuildStatusReply(testTarget, 0x500), otatest.BuildFinishedReply(testTarget, 0x500))
	u, _ := newRemoteUploader(t, mock, WithTargetID(testTarget))

	require.NoError(t, u.Finish(context.Background()))
	assert.Len(t, mock.Sets(), 2)
}

func TestReboot_SwallowsErrors(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	mock.SetFunc = func([]byte) error { return errors.New("device vanished") }
	u, clock := newRemoteUploader(t, mock, WithTargetID(testTarget))

	require.NoError(t, u.Reboot(context.Background()))
	assert.Len(t, mock.Sets(), protocol.RebootAttempts)
	assert.Equal(t, protocol.RebootPreDelay, clock.delays[0])
	assert.Equal(t, []byte{protocol.ReportRemote, testTarget, protocol.OpReset}, mock.Sets()[0][:3])
}

func TestLeaveBootloader(t *testing.T) {
	t.Parallel()

	t.Run("local", func(t *testing.T) {
		t.Parallel()
		mock := NewMockTransport()
		mock.SetFunc = func([]byte) error { return ErrTransportWrite }
		u, err := New(mock)
		require.NoError(t, err)

		require.NoError(t, u.LeaveBootloader(context.Background()))
		assert.Equal(t, [][]byte{protocol.LeaveReport()}, mock.Sets())
	})

	t.Run("remote", func(t *testing.T) {
		t.Parallel()
		mock := NewMockTransportWithReply(otatest.BuildFinishedReply(testTarget, 0))
		u, _ := newRemoteUploader(t, mock, WithTargetID(testTarget))

		require.NoError(t, u.LeaveBootloader(context.Background()))
		sets := mock.Sets()
		require.Len(t, sets, 3)
		assert.Equal(t, protocol.OpTxMode, sets[0][2])
		assert.Equal(t, protocol.OpReset, sets[1][2])
		assert.Equal(t, protocol.OpEnd, sets[2][2])
	})
}

func TestUpload_Local(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	mock.GetFunc = func(byte) ([]byte, error) {
		return otatest.BuildLocalInfoResponse(128, 32768), nil
	}
	var progress []Progress
	u, err := New(mock, WithLeaveBootloader(true), WithProgressCallback(func(p Progress) {
		progress = append(progress, p)
	}))
	require.NoError(t, err)

	require.NoError(t, u.Upload(context.Background(), imageWith(t, 0x80, 200)))

	sets := mock.Sets()
	require.Len(t, sets, 3)
	assert.Len(t, sets[0], protocol.LocalDataSize)
	assert.Equal(t, []byte{protocol.ReportLocalData, 0x80, 0x00, 0x00}, sets[0][:4])
	assert.Equal(t, []byte{protocol.ReportLocalData, 0x00, 0x01, 0x00}, sets[1][:4])
	assert.Equal(t, protocol.LeaveReport(), sets[2])

	require.Len(t, progress, 2)
	assert.Equal(t, 2, progress[1].TotalBlocks)
	assert.InDelta(t, 100.0, progress[1].Percentage(), 0.001)
	assert.True(t, mock.IsConnected())
}

func TestUpload_LocalRequiresBootloader(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	mock.SetCapability(CapabilityLocalFlash, false)
	u, err := New(mock)
	require.NoError(t, err)

	err = u.Upload(context.Background(), imageWith(t, 0, 16))
	require.ErrorIs(t, err, ErrDeviceNotFound)
	assert.Empty(t, mock.Sets())
	assert.False(t, mock.IsConnected())
}

func TestUpload_ImageTooLargeBeforeRadioTraffic(t *testing.T) {
	t.Parallel()

	mock := NewMockTransportWithReply(otatest.BuildReply(protocol.Canonical, protocol.TxOK,
		protocol.DeviceInfoPayload(testTarget, protocol.StatusBootReq, 64, 4096)))
	u, _ := newRemoteUploader(t, mock)

	err := u.Upload(context.Background(), imageWith(t, 0, 3000))
	require.ErrorIs(t, err, ErrImageTooLarge)

	start := []byte{protocol.ReportRemote, testTarget, protocol.OpStart}
	assert.Zero(t, countReports(mock.Sets(), start...))
}

func TestUpload_EmptyImage(t *testing.T) {
	t.Parallel()

	u, err := New(NewMockTransport())
	require.NoError(t, err)
	require.ErrorIs(t, u.Upload(context.Background(), NewFirmwareImage()), ErrInvalidParameter)
}

func TestUpload_CancelledStillRestores(t *testing.T) {
	t.Parallel()

	mock := NewMockTransportWithReply(otatest.BuildBeaconReply(testTarget, protocol.StatusBootReq, 128, 32768))
	ctx, cancel := context.WithCancel(context.Background())
	polls := 0
	u, err := New(mock, WithMode(ModeRemote), WithSleeper(func(ctx context.Context, _ time.Duration) error {
		polls++
		if polls == 3 {
			cancel()
		}
		return ctx.Err()
	}))
	require.NoError(t, err)

	err = u.Upload(ctx, imageWith(t, 0, 64))
	require.ErrorIs(t, err, context.Canceled)

	sets := mock.Sets()
	require.NotEmpty(t, sets)
	assert.Equal(t, protocol.OpEnd, sets[len(sets)-1][2])
}
