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
	"fmt"
	"time"

	"github.com/ZaparooProject/go-otaboot/protocol"
)

// PhasePolicy is the retry budget of one request class. Delay is slept
// before each request and SettleDelay between a request and reading its
// reply. PreDelay is slept once before the first attempt.
type PhasePolicy struct {
	Attempts    int
	Delay       time.Duration
	SettleDelay time.Duration
	PreDelay    time.Duration
}

// Policies holds the budget of every request class. Each class keeps its own
// numbers so a timeout names the phase that failed.
type Policies struct {
	Discovery  PhasePolicy
	Handshake  PhasePolicy
	Block      PhasePolicy
	SessionEnd PhasePolicy
	Reboot     PhasePolicy
}

// DefaultPolicies returns the budgets the bootloader firmware expects
func DefaultPolicies() Policies {
	return Policies{
		Discovery: PhasePolicy{
			Attempts: protocol.DiscoveryAttempts,
			Delay:    protocol.DiscoveryDelay,
		},
		Handshake: PhasePolicy{
			Attempts: protocol.HandshakeAttempts,
			Delay:    protocol.HandshakeDelay,
		},
		Block: PhasePolicy{
			Attempts:    protocol.BlockAttempts,
			Delay:       protocol.BlockSendDelay,
			SettleDelay: protocol.BlockReadDelay,
		},
		SessionEnd: PhasePolicy{
			Attempts:    protocol.SessionEndAttempts,
			Delay:       protocol.SessionEndSendDelay,
			SettleDelay: protocol.SessionEndReadDelay,
		},
		Reboot: PhasePolicy{
			Attempts:    protocol.RebootAttempts,
			Delay:       protocol.RebootSendDelay,
			SettleDelay: protocol.RebootReadDelay,
			PreDelay:    protocol.RebootPreDelay,
		},
	}
}

// Policy returns the budget for phase
func (p Policies) Policy(phase Phase) PhasePolicy {
	switch phase {
	case PhaseDiscovery:
		return p.Discovery
	case PhaseHandshake:
		return p.Handshake
	case PhaseBlock:
		return p.Block
	case PhaseSessionEnd:
		return p.SessionEnd
	case PhaseReboot:
		return p.Reboot
	default:
		return PhasePolicy{Attempts: 1}
	}
}

// Validate rejects budgets that could never succeed
func (p Policies) Validate() error {
	for _, phase := range []Phase{PhaseDiscovery, PhaseHandshake, PhaseBlock, PhaseSessionEnd, PhaseReboot} {
		pol := p.Policy(phase)
		if pol.Attempts < 1 {
			return fmt.Errorf("%w: %s policy needs at least one attempt", ErrInvalidParameter, phase)
		}
		if pol.Delay < 0 || pol.SettleDelay < 0 || pol.PreDelay < 0 {
			return fmt.Errorf("%w: %s policy has a negative delay", ErrInvalidParameter, phase)
		}
	}
	return nil
}
