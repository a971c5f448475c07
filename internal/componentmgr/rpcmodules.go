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

package componentmgr

import (
	"context"

	"github.com/finmesh-network/finmesh/internal/components"
	"github.com/finmesh-network/finmesh/internal/rpcserver"
	"github.com/finmesh-network/finmesh/pkg/types"
	"github.com/hyperledger/firefly-common/pkg/fftypes"
)

// nodeRPCModule is the fm_ group: the full message, settlement, liquidity
// and directory surface of the node. There is no transport-level identity,
// so every mutating method takes the caller identity as its first
// parameter and the permission checks happen in the components themselves.
func (cm *componentManager) nodeRPCModule() *rpcserver.RPCModule {
	return rpcserver.NewRPCModule("fm").

		// Orchestrator
		Add("fm_sendMessage", rpcserver.RPCMethod2(func(ctx context.Context, caller string, sub *components.Submission) (*components.SubmitResult, error) {
			return cm.Orchestrator().Submit(ctx, caller, sub)
		})).
		Add("fm_quoteFee", rpcserver.RPCMethod1(func(ctx context.Context, sub *components.Submission) (*components.FeeQuote, error) {
			return cm.Orchestrator().QuoteFee(ctx, sub)
		})).
		Add("fm_retryMessage", rpcserver.RPCMethod2(func(ctx context.Context, caller string, messageID types.Bytes32) (*components.SubmitResult, error) {
			return cm.Orchestrator().Retry(ctx, caller, messageID)
		})).
		Add("fm_cancelMessage", rpcserver.RPCMethod2(func(ctx context.Context, caller string, messageID types.Bytes32) (bool, error) {
			return true, cm.Orchestrator().Cancel(ctx, caller, messageID)
		})).
		Add("fm_emergencyCancel", rpcserver.RPCMethod2(func(ctx context.Context, caller string, messageID types.Bytes32) (bool, error) {
			return true, cm.Orchestrator().EmergencyCancel(ctx, caller, messageID)
		})).

		// Message record store
		Add("fm_getMessage", rpcserver.RPCMethod1(func(ctx context.Context, messageID types.Bytes32) (*components.Message, error) {
			return cm.MessageStore().GetMessage(ctx, nil, messageID)
		})).
		Add("fm_queryMessages", rpcserver.RPCMethod2(func(ctx context.Context, status *components.MessageStatus, limit int) ([]*components.Message, error) {
			return cm.MessageStore().QueryMessages(ctx, status, limit)
		})).

		// Router
		Add("fm_quoteDeliveryFee", rpcserver.RPCMethod2(func(ctx context.Context, destinationNetwork string, payloadSize int) (*fftypes.FFBigInt, error) {
			return cm.Router().QuoteDeliveryFee(ctx, destinationNetwork, payloadSize)
		})).
		Add("fm_deliveryCompleted", rpcserver.RPCMethod2(func(ctx context.Context, caller string, deliveryHash types.Bytes32) (bool, error) {
			return true, cm.Router().MarkDeliveryCompleted(ctx, caller, deliveryHash)
		})).
		Add("fm_getDelivery", rpcserver.RPCMethod1(func(ctx context.Context, deliveryHash types.Bytes32) (*components.Delivery, error) {
			return cm.Router().GetDelivery(ctx, deliveryHash)
		})).

		// Processor
		Add("fm_getProcessingResult", rpcserver.RPCMethod1(func(ctx context.Context, messageID types.Bytes32) (*components.ProcessingResult, error) {
			return cm.Processor().GetStatus(ctx, messageID)
		})).

		// Settlement coordinator
		Add("fm_getSettlement", rpcserver.RPCMethod1(func(ctx context.Context, settlementID types.Bytes32) (*components.Settlement, error) {
			return cm.SettlementCoordinator().GetSettlement(ctx, nil, settlementID)
		})).
		Add("fm_settlementConfirmed", rpcserver.RPCMethod2(func(ctx context.Context, caller string, settlementID types.Bytes32) (bool, error) {
			return true, cm.SettlementCoordinator().ConfirmOutgoing(ctx, caller, settlementID)
		})).
		Add("fm_settlementIncoming", rpcserver.RPCMethod2(func(ctx context.Context, caller string, notice *components.SettlementNotice) (bool, error) {
			return true, cm.SettlementCoordinator().CompleteIncoming(ctx, caller, notice)
		})).
		Add("fm_cancelSettlement", rpcserver.RPCMethod2(func(ctx context.Context, caller string, settlementID types.Bytes32) (bool, error) {
			return true, cm.SettlementCoordinator().Cancel(ctx, nil, caller, settlementID)
		})).

		// Target directory
		Add("fm_registerTarget", rpcserver.RPCMethod2(func(ctx context.Context, caller string, target *components.Target) (bool, error) {
			return true, cm.TargetDirectory().RegisterTarget(ctx, caller, target)
		})).
		Add("fm_setTargetActive", rpcserver.RPCMethod4(func(ctx context.Context, caller, address, network string, active bool) (bool, error) {
			return true, cm.TargetDirectory().SetTargetActive(ctx, caller, address, network, active)
		})).
		Add("fm_getTarget", rpcserver.RPCMethod2(func(ctx context.Context, address, network string) (*components.Target, error) {
			return cm.TargetDirectory().GetTarget(ctx, address, network)
		})).

		// Format validator
		Add("fm_registerSchema", rpcserver.RPCMethod3(func(ctx context.Context, caller, messageType string, schema types.RawJSON) (bool, error) {
			return true, cm.FormatValidator().RegisterSchema(ctx, caller, messageType, schema)
		})).
		Add("fm_listMessageTypes", rpcserver.RPCMethod0(func(ctx context.Context) ([]string, error) {
			return cm.FormatValidator().ListMessageTypes(ctx)
		})).

		// Liquidity reserve
		Add("fm_createPool", rpcserver.RPCMethod2(func(ctx context.Context, caller string, pool *components.LiquidityPool) (bool, error) {
			return true, cm.LiquidityReserve().CreatePool(ctx, caller, pool)
		})).
		Add("fm_setPoolActive", rpcserver.RPCMethod3(func(ctx context.Context, caller, asset string, active bool) (bool, error) {
			return true, cm.LiquidityReserve().SetPoolActive(ctx, caller, asset, active)
		})).
		Add("fm_getPool", rpcserver.RPCMethod1(func(ctx context.Context, asset string) (*components.LiquidityPool, error) {
			return cm.LiquidityReserve().GetPool(ctx, asset)
		})).
		Add("fm_addLiquidity", rpcserver.RPCMethod3(func(ctx context.Context, provider, asset string, amount *fftypes.FFBigInt) (*fftypes.FFBigInt, error) {
			return cm.LiquidityReserve().AddLiquidity(ctx, provider, asset, amount)
		})).
		Add("fm_removeLiquidity", rpcserver.RPCMethod3(func(ctx context.Context, provider, asset string, shares *fftypes.FFBigInt) (*fftypes.FFBigInt, error) {
			return cm.LiquidityReserve().RemoveLiquidity(ctx, provider, asset, shares)
		})).
		Add("fm_getProviderShares", rpcserver.RPCMethod2(func(ctx context.Context, asset, provider string) (*fftypes.FFBigInt, error) {
			return cm.LiquidityReserve().GetProviderShares(ctx, asset, provider)
		}))
}

// adminRPCModule is the admin_ group: permission grants and the node
// administration surface. Component swap is deliberately not exposed here -
// a replacement implementation is a compiled object, so UpdateComponent is
// only reachable programmatically by whatever embeds the node.
func (cm *componentManager) adminRPCModule() *rpcserver.RPCModule {
	return rpcserver.NewRPCModule("admin").
		Add("admin_grantPermission", rpcserver.RPCMethod3(func(ctx context.Context, caller, identity, tag string) (bool, error) {
			return true, cm.Permissions().Grant(ctx, caller, identity, tag)
		})).
		Add("admin_revokePermission", rpcserver.RPCMethod3(func(ctx context.Context, caller, identity, tag string) (bool, error) {
			return true, cm.Permissions().Revoke(ctx, caller, identity, tag)
		})).
		Add("admin_listPermissions", rpcserver.RPCMethod1(func(ctx context.Context, identity string) ([]string, error) {
			return cm.Permissions().List(ctx, identity)
		})).
		Add("admin_updateBaseFee", rpcserver.RPCMethod2(func(ctx context.Context, caller string, fee *fftypes.FFBigInt) (bool, error) {
			return true, cm.Orchestrator().UpdateBaseFee(ctx, caller, fee)
		})).
		Add("admin_pauseComponent", rpcserver.RPCMethod2(func(ctx context.Context, caller, name string) (bool, error) {
			return true, cm.SetComponentPaused(ctx, caller, name, true)
		})).
		Add("admin_resumeComponent", rpcserver.RPCMethod2(func(ctx context.Context, caller, name string) (bool, error) {
			return true, cm.SetComponentPaused(ctx, caller, name, false)
		}))
}
