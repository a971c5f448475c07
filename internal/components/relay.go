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
	"context"

	"github.com/finmesh-network/finmesh/pkg/types"
	"github.com/hyperledger/firefly-common/pkg/fftypes"
)

// RelayDelivery is a cross-network message hand-off to the external relay.
type RelayDelivery struct {
	DeliveryHash       types.Bytes32     `json:"deliveryHash"`
	MessageID          types.Bytes32     `json:"messageId"`
	MessageType        string            `json:"messageType"`
	Payload            types.RawJSON     `json:"payload"`
	Destination        string            `json:"destination"`
	DestinationNetwork string            `json:"destinationNetwork"`
	FeePayment         *fftypes.FFBigInt `json:"feePayment"`
}

// RelaySettlement is a cross-network value transfer hand-off.
type RelaySettlement struct {
	SettlementID       types.Bytes32     `json:"settlementId"`
	DestinationAsset   string            `json:"destinationAsset"`
	Amount             *fftypes.FFBigInt `json:"amount"`
	Recipient          string            `json:"recipient"`
	DestinationNetwork string            `json:"destinationNetwork"`
}

// RelayClient talks to the external relay subsystem over HTTP. Completion
// confirmations flow back asynchronously through the relay-gated RPC
// methods, not through this client.
type RelayClient interface {
	ManagerLifecycle
	QuoteDeliveryPrice(ctx context.Context, destinationNetwork string, payloadSize int) (*fftypes.FFBigInt, error)
	DispatchDelivery(ctx context.Context, d *RelayDelivery) error
	DispatchSettlement(ctx context.Context, s *RelaySettlement) error
}
