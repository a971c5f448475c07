/*
 * Copyright © 2026 FinMesh Network Contributors
 *
 * Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
 * the License. You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
 * an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
 * specific language governing permissions and limitations under the License.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

package components

import (
	"github.com/finmesh-network/finmesh/internal/events"
	"github.com/finmesh-network/finmesh/internal/persistence"
)

// ManagerLifecycle is implemented by every manager wired by the component
// manager. PostInit runs after all components are constructed, so managers
// can capture references to their collaborators. Nothing may be cached from
// the indirection table itself - collaborators must be resolved through
// AllComponents on every call so that a live component swap takes effect
// atomically for all subsequent calls.
type ManagerLifecycle interface {
	PostInit(c AllComponents) error
	Start() error
	Stop()
}

// Component names addressable through the administration surface for
// pause/unpause and live swap.
const (
	ComponentMessageStore    = "msgstore"
	ComponentRouter          = "router"
	ComponentProcessor       = "processor"
	ComponentSettlement      = "settlement"
	ComponentLiquidity       = "liquidity"
	ComponentTargetDirectory = "targets"
	ComponentFormatValidator = "formats"
	ComponentRelay           = "relay"
	ComponentOrchestrator    = "orchestrator"
)

// AllComponents is the indirection table for the node. Callers resolve their
// collaborators through these accessors on every call - the component
// manager guarantees each accessor returns the current wiring.
type AllComponents interface {
	Persistence() persistence.Persistence
	EventBroker() events.Broker
	Permissions() PermissionManager

	MessageStore() MessageStore
	TargetDirectory() TargetDirectory
	FormatValidator() FormatValidator
	LiquidityReserve() LiquidityReserve
	RelayClient() RelayClient
	Router() Router
	Processor() Processor
	SettlementCoordinator() SettlementCoordinator
	Orchestrator() Orchestrator

	// LocalNetworkName is the sentinel network for synchronous local delivery
	LocalNetworkName() string

	// CheckActive returns an error if the named component is paused
	CheckActive(name string) error
}
