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
	"math/big"

	"github.com/finmesh-network/finmesh/pkg/types"
	"github.com/hyperledger/firefly-common/pkg/fftypes"
	"gorm.io/gorm"
)

type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "pending"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusProcessed MessageStatus = "processed"
	MessageStatusSettled   MessageStatus = "settled"
	MessageStatusFailed    MessageStatus = "failed"
	MessageStatusCancelled MessageStatus = "cancelled"
)

func (ms MessageStatus) Options() []string {
	return []string{
		string(MessageStatusPending),
		string(MessageStatusDelivered),
		string(MessageStatusProcessed),
		string(MessageStatusSettled),
		string(MessageStatusFailed),
		string(MessageStatusCancelled),
	}
}

func (ms MessageStatus) Default() string {
	return string(MessageStatusPending)
}

func (ms MessageStatus) Enum() types.Enum[MessageStatus] {
	return types.Enum[MessageStatus](ms)
}

// Message is the system-of-record view of a submitted financial message.
// The id is derived deterministically from the submission, and the payload
// is immutable once registered - only the status ever changes, through the
// permitted transition edges enforced by the message store.
type Message struct {
	ID                 types.Bytes32             `json:"id"`
	MessageType        string                    `json:"messageType"`
	ContentHash        types.Bytes32             `json:"contentHash"`
	Sender             string                    `json:"sender"`
	Destination        string                    `json:"destination"`
	DestinationNetwork string                    `json:"destinationNetwork"`
	SubmitTime         types.Timestamp           `json:"submitTime"`
	Payload            types.RawJSON             `json:"payload"`
	Status             types.Enum[MessageStatus] `json:"status"`
}

// MessageID derives the deterministic message id from the identifying
// fields of a submission.
func MessageID(messageType string, contentHash types.Bytes32, sender, destination, destinationNetwork string) types.Bytes32 {
	return types.HashConcat(
		[]byte(messageType),
		contentHash.Bytes(),
		[]byte(sender),
		[]byte(destination),
		[]byte(destinationNetwork),
	)
}

// SettlementInstruction is the optional value-transfer leg of a submission.
type SettlementInstruction struct {
	SourceAsset      string            `json:"sourceAsset"`
	DestinationAsset string            `json:"destinationAsset"`
	Amount           *fftypes.FFBigInt `json:"amount"`
	Recipient        string            `json:"recipient"`
}

func (si *SettlementInstruction) Required() bool {
	return si != nil && si.Amount != nil && si.Amount.Int().Sign() > 0
}

// Submission is the inbound request to the orchestrator.
type Submission struct {
	MessageType        string                 `json:"messageType"`
	Payload            types.RawJSON          `json:"payload"`
	Destination        string                 `json:"destination"`
	DestinationNetwork string                 `json:"destinationNetwork"`
	Settlement         *SettlementInstruction `json:"settlement,omitempty"`
	// Value is the fee payment attached to the submission, in the native
	// value unit. It must cover the quoted fee total.
	Value *fftypes.FFBigInt `json:"value"`
}

// FeeQuote is the three-part fee for a submission. Quoting is pure - two
// quotes with no intervening fee change return identical values.
type FeeQuote struct {
	Base       *fftypes.FFBigInt `json:"base"`
	Delivery   *fftypes.FFBigInt `json:"delivery"`
	Settlement *fftypes.FFBigInt `json:"settlement"`
}

func (fq *FeeQuote) Total() *big.Int {
	total := new(big.Int)
	if fq.Base != nil {
		total.Add(total, fq.Base.Int())
	}
	if fq.Delivery != nil {
		total.Add(total, fq.Delivery.Int())
	}
	if fq.Settlement != nil {
		total.Add(total, fq.Settlement.Int())
	}
	return total
}

// SubmitResult reports the registered message id, the delivery outcome of
// the initial routing attempt, and any refund of excess payment (local
// delivery only - cross-network excess is consumed by the relay leg).
type SubmitResult struct {
	MessageID    types.Bytes32     `json:"messageId"`
	Delivery     *DeliveryOutcome  `json:"delivery"`
	SettlementID *types.Bytes32    `json:"settlementId,omitempty"`
	Refund       *fftypes.FFBigInt `json:"refund,omitempty"`
}

// MessageStore is the append-only record of every submitted message. The
// dbTX forms of the mutators participate in the caller's transaction, so a
// failure anywhere in a multi-step operation rolls back the whole step.
type MessageStore interface {
	ManagerLifecycle
	Register(ctx context.Context, dbTX *gorm.DB, msg *Message) error
	GetMessage(ctx context.Context, dbTX *gorm.DB, id types.Bytes32) (*Message, error)
	UpdateStatus(ctx context.Context, dbTX *gorm.DB, id types.Bytes32, newStatus MessageStatus) error
	QueryMessages(ctx context.Context, status *MessageStatus, limit int) ([]*Message, error)
}

type Orchestrator interface {
	ManagerLifecycle
	Submit(ctx context.Context, caller string, sub *Submission) (*SubmitResult, error)
	QuoteFee(ctx context.Context, sub *Submission) (*FeeQuote, error)
	Retry(ctx context.Context, caller string, messageID types.Bytes32) (*SubmitResult, error)
	Cancel(ctx context.Context, caller string, messageID types.Bytes32) error
	EmergencyCancel(ctx context.Context, caller string, messageID types.Bytes32) error
	UpdateBaseFee(ctx context.Context, caller string, fee *fftypes.FFBigInt) error
}
