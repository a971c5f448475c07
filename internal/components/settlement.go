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
	"strconv"

	"github.com/finmesh-network/finmesh/pkg/types"
	"github.com/hyperledger/firefly-common/pkg/fftypes"
	"gorm.io/gorm"
)

type SettlementStatus string

const (
	SettlementStatusPending    SettlementStatus = "pending"
	SettlementStatusInProgress SettlementStatus = "in_progress"
	SettlementStatusCompleted  SettlementStatus = "completed"
	SettlementStatusFailed     SettlementStatus = "failed"
	SettlementStatusCancelled  SettlementStatus = "cancelled"
)

func (ss SettlementStatus) Options() []string {
	return []string{
		string(SettlementStatusPending),
		string(SettlementStatusInProgress),
		string(SettlementStatusCompleted),
		string(SettlementStatusFailed),
		string(SettlementStatusCancelled),
	}
}

func (ss SettlementStatus) Default() string {
	return string(SettlementStatusPending)
}

func (ss SettlementStatus) Enum() types.Enum[SettlementStatus] {
	return types.Enum[SettlementStatus](ss)
}

// Settlement is one value-transfer attempt for a message. The id is derived
// from the settlement parameters plus a monotonic per-message attempt
// counter, so a retry after a cancelled attempt produces a fresh id while
// a duplicate initiation of the same attempt is caught by the idempotency
// registry.
type Settlement struct {
	ID                 types.Bytes32                `json:"id"`
	MessageID          types.Bytes32                `json:"messageId"`
	Attempt            int64                        `json:"attempt"`
	SourceAsset        string                       `json:"sourceAsset"`
	DestinationAsset   string                       `json:"destinationAsset"`
	Amount             *fftypes.FFBigInt            `json:"amount"`
	Recipient          string                       `json:"recipient"`
	DestinationNetwork string                       `json:"destinationNetwork"`
	Initiator          string                       `json:"initiator"`
	Status             types.Enum[SettlementStatus] `json:"status"`
	InitiateTime       types.Timestamp              `json:"initiateTime"`
	CompleteTime       *types.Timestamp             `json:"completeTime,omitempty"`
}

// SettlementID derives the deterministic settlement id for one attempt.
func SettlementID(messageID types.Bytes32, sourceAsset, destinationAsset string, amount *fftypes.FFBigInt, destinationNetwork, recipient string, attempt int64) types.Bytes32 {
	return types.HashConcat(
		messageID.Bytes(),
		[]byte(sourceAsset),
		[]byte(destinationAsset),
		amount.Int().Bytes(),
		[]byte(destinationNetwork),
		[]byte(recipient),
		[]byte(strconv.FormatInt(attempt, 10)),
	)
}

// SettlementNotice is the relay's notification of an incoming settlement
// completed on another network.
type SettlementNotice struct {
	SettlementID     types.Bytes32     `json:"settlementId"`
	DestinationAsset string            `json:"destinationAsset"`
	Amount           *fftypes.FFBigInt `json:"amount"`
	Recipient        string            `json:"recipient"`
}

type SettlementCoordinator interface {
	ManagerLifecycle
	Quote(ctx context.Context, instr *SettlementInstruction) (*fftypes.FFBigInt, error)
	Initiate(ctx context.Context, dbTX *gorm.DB, caller string, messageID types.Bytes32, destinationNetwork string, instr *SettlementInstruction) (*Settlement, error)
	// Cancel invoked with no transaction authorizes the caller itself: only
	// the initiator, or an identity holding the emergency permission, may
	// cancel. Inside a caller's transaction the caller has already
	// authorized the identity against its own records.
	Cancel(ctx context.Context, dbTX *gorm.DB, caller string, settlementID types.Bytes32) error
	// ConfirmOutgoing records the relay's confirmation that one of this
	// node's in-progress settlements landed on the destination network.
	ConfirmOutgoing(ctx context.Context, caller string, settlementID types.Bytes32) error
	// CompleteIncoming credits an inbound settlement confirmed by the relay.
	CompleteIncoming(ctx context.Context, caller string, notice *SettlementNotice) error
	GetSettlement(ctx context.Context, dbTX *gorm.DB, settlementID types.Bytes32) (*Settlement, error)
}
