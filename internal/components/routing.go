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
	"gorm.io/gorm"
)

// RoutingRequest carries everything the router needs to deliver a message,
// after the orchestrator has registered it and collected the fee.
type RoutingRequest struct {
	MessageID          types.Bytes32
	MessageType        string
	Payload            types.RawJSON
	Sender             string
	Destination        string
	DestinationNetwork string
	// FeePayment is the delivery portion of the collected fee, forwarded to
	// the relay for cross-network deliveries.
	FeePayment *fftypes.FFBigInt
}

// DeliveryOutcome is the result of a routing attempt. Local deliveries
// complete synchronously; cross-network deliveries return the delivery hash
// the relay later confirms through MarkDeliveryCompleted.
type DeliveryOutcome struct {
	Completed    bool           `json:"completed"`
	DeliveryHash *types.Bytes32 `json:"deliveryHash,omitempty"`
}

// Delivery is the persisted record of a cross-network dispatch.
type Delivery struct {
	DeliveryHash       types.Bytes32    `json:"deliveryHash"`
	MessageID          types.Bytes32    `json:"messageId"`
	DestinationNetwork string           `json:"destinationNetwork"`
	DispatchTime       types.Timestamp  `json:"dispatchTime"`
	Completed          bool             `json:"completed"`
	CompleteTime       *types.Timestamp `json:"completeTime,omitempty"`
}

type Router interface {
	ManagerLifecycle
	QuoteDeliveryFee(ctx context.Context, destinationNetwork string, payloadSize int) (*fftypes.FFBigInt, error)
	Route(ctx context.Context, dbTX *gorm.DB, req *RoutingRequest) (*DeliveryOutcome, error)
	// MarkDeliveryCompleted is invoked by the relay once a cross-network
	// delivery lands. It is idempotent - confirming an already completed
	// delivery is a no-op.
	MarkDeliveryCompleted(ctx context.Context, caller string, deliveryHash types.Bytes32) error
	GetDelivery(ctx context.Context, deliveryHash types.Bytes32) (*Delivery, error)
}

// Target is an addressable delivery endpoint in the directory. A target is
// identified by (address, network) and can be registered at most once.
type Target struct {
	Address        string          `json:"address"`
	Network        string          `json:"network"`
	Active         bool            `json:"active"`
	RegisteredTime types.Timestamp `json:"registeredTime"`
}

type TargetDirectory interface {
	ManagerLifecycle
	// IsValidTarget participates in the caller's transaction when a dbTX is
	// supplied, so routing checks inside a multi-step operation never need a
	// second database connection.
	IsValidTarget(ctx context.Context, dbTX *gorm.DB, address, network string) (bool, error)
	RegisterTarget(ctx context.Context, caller string, target *Target) error
	SetTargetActive(ctx context.Context, caller string, address, network string, active bool) error
	GetTarget(ctx context.Context, address, network string) (*Target, error)
}

type FormatValidator interface {
	ManagerLifecycle
	Validate(ctx context.Context, messageType string, payload types.RawJSON) error
	RegisterSchema(ctx context.Context, caller string, messageType string, schema types.RawJSON) error
	ListMessageTypes(ctx context.Context) ([]string, error)
}
