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

// Package componentmocks provides a configurable stand-in for the component
// indirection table, so each manager's tests can wire just the
// collaborators they exercise.
package componentmocks

import (
	"github.com/finmesh-network/finmesh/internal/components"
	"github.com/finmesh-network/finmesh/internal/events"
	"github.com/finmesh-network/finmesh/internal/persistence"
)

type AllComponents struct {
	P            persistence.Persistence
	Broker       events.Broker
	Perms        components.PermissionManager
	MsgStore     components.MessageStore
	Targets      components.TargetDirectory
	Formats      components.FormatValidator
	Liquidity    components.LiquidityReserve
	Relay        components.RelayClient
	RouterImpl   components.Router
	Proc         components.Processor
	Settlements  components.SettlementCoordinator
	Orch         components.Orchestrator
	LocalNetwork string
	ActiveCheck  func(name string) error
}

func (c *AllComponents) Persistence() persistence.Persistence           { return c.P }
func (c *AllComponents) EventBroker() events.Broker                     { return c.Broker }
func (c *AllComponents) Permissions() components.PermissionManager      { return c.Perms }
func (c *AllComponents) MessageStore() components.MessageStore          { return c.MsgStore }
func (c *AllComponents) TargetDirectory() components.TargetDirectory    { return c.Targets }
func (c *AllComponents) FormatValidator() components.FormatValidator    { return c.Formats }
func (c *AllComponents) LiquidityReserve() components.LiquidityReserve  { return c.Liquidity }
func (c *AllComponents) RelayClient() components.RelayClient            { return c.Relay }
func (c *AllComponents) Router() components.Router                      { return c.RouterImpl }
func (c *AllComponents) Processor() components.Processor                { return c.Proc }
func (c *AllComponents) SettlementCoordinator() components.SettlementCoordinator {
	return c.Settlements
}
func (c *AllComponents) Orchestrator() components.Orchestrator { return c.Orch }

func (c *AllComponents) LocalNetworkName() string {
	if c.LocalNetwork == "" {
		return "local"
	}
	return c.LocalNetwork
}

func (c *AllComponents) CheckActive(name string) error {
	if c.ActiveCheck != nil {
		return c.ActiveCheck(name)
	}
	return nil
}
