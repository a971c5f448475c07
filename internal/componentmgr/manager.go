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

// Package componentmgr constructs, wires and runs the node. It owns the
// indirection table behind components.AllComponents: every component
// resolves its collaborators through the table on each call, which is what
// makes a live component swap take effect atomically for all in-flight
// callers without a restart.
package componentmgr

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/finmesh-network/finmesh/internal/components"
	"github.com/finmesh-network/finmesh/internal/events"
	"github.com/finmesh-network/finmesh/internal/formats"
	"github.com/finmesh-network/finmesh/internal/liquidity"
	"github.com/finmesh-network/finmesh/internal/msgs"
	"github.com/finmesh-network/finmesh/internal/msgstore"
	"github.com/finmesh-network/finmesh/internal/orchestrator"
	"github.com/finmesh-network/finmesh/internal/permissions"
	"github.com/finmesh-network/finmesh/internal/persistence"
	"github.com/finmesh-network/finmesh/internal/processor"
	"github.com/finmesh-network/finmesh/internal/registrymgr"
	"github.com/finmesh-network/finmesh/internal/relay"
	"github.com/finmesh-network/finmesh/internal/router"
	"github.com/finmesh-network/finmesh/internal/rpcserver"
	"github.com/finmesh-network/finmesh/internal/settlement"
	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
)

type ComponentManager interface {
	components.AllComponents
	Init() error
	Start() error
	Stop()
	RPCServer() rpcserver.Server

	// UpdateComponent swaps in a replacement implementation for a named
	// component. The replacement is wired and started before the table is
	// repointed, then the old implementation is stopped. Callers resolving
	// through AllComponents pick up the replacement on their next call.
	UpdateComponent(ctx context.Context, caller, name string, impl interface{}) error
	// SetComponentPaused pauses or resumes a named component. Operations
	// that gate on CheckActive fail with FM010202 while paused.
	SetComponentPaused(ctx context.Context, caller, name string, paused bool) error
}

// initOrder is also the start order - dependencies before dependents, with
// the orchestrator last as it drives all the others.
var initOrder = []string{
	components.ComponentMessageStore,
	components.ComponentTargetDirectory,
	components.ComponentFormatValidator,
	components.ComponentLiquidity,
	components.ComponentRelay,
	components.ComponentRouter,
	components.ComponentProcessor,
	components.ComponentSettlement,
	components.ComponentOrchestrator,
}

type componentManager struct {
	bgCtx context.Context
	conf  *Config

	p           persistence.Persistence
	broker      events.Broker
	permissions components.PermissionManager
	rpcServer   rpcserver.Server

	tableLock sync.RWMutex
	table     map[string]interface{}
	paused    map[string]bool

	// everything started, in start order, for reverse-order stop
	started []stoppable
}

type stoppable interface {
	Stop()
}

func NewComponentManager(bgCtx context.Context, conf *Config) ComponentManager {
	return &componentManager{
		bgCtx:  bgCtx,
		conf:   conf,
		paused: make(map[string]bool),
	}
}

func (cm *componentManager) Init() (err error) {

	if cm.conf.LocalNetwork == "" {
		return i18n.NewError(cm.bgCtx, msgs.MsgComponentMgrLocalNetworkName)
	}

	cm.p, err = persistence.NewPersistence(cm.bgCtx, &cm.conf.DB)
	if err != nil {
		return err
	}
	cm.broker = events.NewBroker(cm.bgCtx)
	cm.permissions = permissions.NewPermissionManager(cm.bgCtx, &cm.conf.Permissions)

	cm.table = map[string]interface{}{
		components.ComponentMessageStore:    msgstore.NewMessageStore(cm.bgCtx),
		components.ComponentTargetDirectory: registrymgr.NewRegistryManager(cm.bgCtx, &cm.conf.Targets),
		components.ComponentFormatValidator: formats.NewFormatManager(cm.bgCtx, &cm.conf.Formats),
		components.ComponentLiquidity:       liquidity.NewLiquidityManager(cm.bgCtx),
		components.ComponentRelay:           relay.NewRelayClient(cm.bgCtx, &cm.conf.Relay),
		components.ComponentRouter:          router.NewRouter(cm.bgCtx, &cm.conf.Router),
		components.ComponentProcessor:       processor.NewProcessor(cm.bgCtx),
		components.ComponentSettlement:      settlement.NewSettlementCoordinator(cm.bgCtx, &cm.conf.Settlement),
		components.ComponentOrchestrator:    orchestrator.NewOrchestrator(cm.bgCtx, &cm.conf.Orchestrator),
	}

	cm.rpcServer, err = rpcserver.NewServer(cm.bgCtx, &cm.conf.RPCServer)
	if err != nil {
		return err
	}

	// wire the permission manager first - everything else gates on it
	err = cm.permissions.PostInit(cm)
	for _, name := range initOrder {
		if err == nil {
			err = cm.table[name].(components.ManagerLifecycle).PostInit(cm)
		}
	}
	return err
}

func (cm *componentManager) Start() (err error) {

	err = cm.permissions.Start()
	cm.addIfStarted(cm.permissions, err)

	for _, name := range initOrder {
		if err == nil {
			m := cm.table[name].(components.ManagerLifecycle)
			err = m.Start()
			cm.addIfStarted(m, err)
		}
	}

	// the RPC surface opens last, once the node is fully assembled
	if err == nil {
		cm.registerRPCModules()
		err = cm.rpcServer.Start()
		cm.addIfStarted(cm.rpcServer, err)
	}

	if err == nil {
		log.L(cm.bgCtx).Infof("Node '%s' started (network=%s)", cm.conf.NodeName, cm.conf.LocalNetwork)
	}
	return err
}

func (cm *componentManager) addIfStarted(c stoppable, err error) {
	if err == nil {
		cm.started = append(cm.started, c)
	}
}

func (cm *componentManager) registerRPCModules() {
	cm.rpcServer.Register(cm.nodeRPCModule())
	cm.rpcServer.Register(cm.adminRPCModule())
}

func (cm *componentManager) Stop() {
	for i := len(cm.started) - 1; i >= 0; i-- {
		cm.started[i].Stop()
	}
	cm.started = nil
	if cm.p != nil {
		cm.p.Close()
	}
	log.L(cm.bgCtx).Infof("Node '%s' stopped", cm.conf.NodeName)
}

func (cm *componentManager) component(name string) interface{} {
	cm.tableLock.RLock()
	defer cm.tableLock.RUnlock()
	return cm.table[name]
}

func (cm *componentManager) Persistence() persistence.Persistence { return cm.p }

func (cm *componentManager) EventBroker() events.Broker { return cm.broker }

func (cm *componentManager) Permissions() components.PermissionManager { return cm.permissions }

func (cm *componentManager) MessageStore() components.MessageStore {
	return cm.component(components.ComponentMessageStore).(components.MessageStore)
}

func (cm *componentManager) TargetDirectory() components.TargetDirectory {
	return cm.component(components.ComponentTargetDirectory).(components.TargetDirectory)
}

func (cm *componentManager) FormatValidator() components.FormatValidator {
	return cm.component(components.ComponentFormatValidator).(components.FormatValidator)
}

func (cm *componentManager) LiquidityReserve() components.LiquidityReserve {
	return cm.component(components.ComponentLiquidity).(components.LiquidityReserve)
}

func (cm *componentManager) RelayClient() components.RelayClient {
	return cm.component(components.ComponentRelay).(components.RelayClient)
}

func (cm *componentManager) Router() components.Router {
	return cm.component(components.ComponentRouter).(components.Router)
}

func (cm *componentManager) Processor() components.Processor {
	return cm.component(components.ComponentProcessor).(components.Processor)
}

func (cm *componentManager) SettlementCoordinator() components.SettlementCoordinator {
	return cm.component(components.ComponentSettlement).(components.SettlementCoordinator)
}

func (cm *componentManager) Orchestrator() components.Orchestrator {
	return cm.component(components.ComponentOrchestrator).(components.Orchestrator)
}

func (cm *componentManager) RPCServer() rpcserver.Server { return cm.rpcServer }

func (cm *componentManager) LocalNetworkName() string { return cm.conf.LocalNetwork }

func (cm *componentManager) CheckActive(name string) error {
	cm.tableLock.RLock()
	defer cm.tableLock.RUnlock()
	if _, known := cm.table[name]; !known {
		return i18n.NewError(cm.bgCtx, msgs.MsgComponentMgrUnknownComponent, name)
	}
	if cm.paused[name] {
		return i18n.NewError(cm.bgCtx, msgs.MsgComponentMgrPaused, name)
	}
	return nil
}

func (cm *componentManager) SetComponentPaused(ctx context.Context, caller, name string, paused bool) error {
	if err := cm.permissions.Require(ctx, caller, components.PermissionAdmin); err != nil {
		return err
	}
	cm.tableLock.Lock()
	if _, known := cm.table[name]; !known {
		cm.tableLock.Unlock()
		return i18n.NewError(ctx, msgs.MsgComponentMgrUnknownComponent, name)
	}
	cm.paused[name] = paused
	cm.tableLock.Unlock()
	log.L(ctx).Infof("Component '%s' paused=%t by %s", name, paused, caller)
	eventData, _ := json.Marshal(map[string]any{"component": name, "paused": paused, "updatedBy": caller})
	cm.broker.Publish(ctx, events.TopicComponentPaused, eventData)
	return nil
}

// typeCheckComponent verifies a replacement implements both the lifecycle
// and the component interface of the slot it is destined for.
func typeCheckComponent(name string, impl interface{}) bool {
	if _, ok := impl.(components.ManagerLifecycle); !ok {
		return false
	}
	switch name {
	case components.ComponentMessageStore:
		_, ok := impl.(components.MessageStore)
		return ok
	case components.ComponentTargetDirectory:
		_, ok := impl.(components.TargetDirectory)
		return ok
	case components.ComponentFormatValidator:
		_, ok := impl.(components.FormatValidator)
		return ok
	case components.ComponentLiquidity:
		_, ok := impl.(components.LiquidityReserve)
		return ok
	case components.ComponentRelay:
		_, ok := impl.(components.RelayClient)
		return ok
	case components.ComponentRouter:
		_, ok := impl.(components.Router)
		return ok
	case components.ComponentProcessor:
		_, ok := impl.(components.Processor)
		return ok
	case components.ComponentSettlement:
		_, ok := impl.(components.SettlementCoordinator)
		return ok
	case components.ComponentOrchestrator:
		_, ok := impl.(components.Orchestrator)
		return ok
	}
	return false
}

func (cm *componentManager) UpdateComponent(ctx context.Context, caller, name string, impl interface{}) error {
	if err := cm.permissions.Require(ctx, caller, components.PermissionAdmin); err != nil {
		return err
	}
	cm.tableLock.RLock()
	_, known := cm.table[name]
	cm.tableLock.RUnlock()
	if !known {
		return i18n.NewError(ctx, msgs.MsgComponentMgrUnknownComponent, name)
	}
	if impl == nil || !typeCheckComponent(name, impl) {
		return i18n.NewError(ctx, msgs.MsgComponentMgrNilComponent, name)
	}

	// wire and start the replacement before repointing the table, so there
	// is no window where the slot resolves to an unstarted component
	replacement := impl.(components.ManagerLifecycle)
	if err := replacement.PostInit(cm); err != nil {
		return err
	}
	if err := replacement.Start(); err != nil {
		return err
	}

	cm.tableLock.Lock()
	old := cm.table[name]
	cm.table[name] = impl
	cm.tableLock.Unlock()

	old.(components.ManagerLifecycle).Stop()

	log.L(ctx).Infof("Component '%s' swapped by %s", name, caller)
	eventData, _ := json.Marshal(map[string]any{"component": name, "updatedBy": caller})
	cm.broker.Publish(ctx, events.TopicComponentSwapped, eventData)
	return nil
}
