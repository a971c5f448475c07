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

// Package settlement coordinates the value-transfer leg of messages.
// Each attempt gets a deterministic id derived from the settlement
// parameters plus a per-message attempt counter, and earmarks reserve
// liquidity under that id before any funds move. Initiation is idempotent:
// re-initiating the same attempt hits the settlement registry and cannot
// double-lock funds.
package settlement

import (
	"context"
	"encoding/json"
	"math/big"

	"github.com/finmesh-network/finmesh/internal/components"
	"github.com/finmesh-network/finmesh/internal/confutil"
	"github.com/finmesh-network/finmesh/internal/events"
	"github.com/finmesh-network/finmesh/internal/msgs"
	"github.com/finmesh-network/finmesh/internal/persistence"
	"github.com/finmesh-network/finmesh/pkg/types"
	"github.com/hyperledger/firefly-common/pkg/fftypes"
	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"gorm.io/gorm"
)

type Config struct {
	// Flat fee charged per settlement
	FlatFee *string `json:"flatFee"`
	// Proportional fee in basis points of the settlement amount
	FeeBasisPoints *int `json:"feeBasisPoints"`
}

var ConfigDefaults = &Config{
	FlatFee:        confutil.P("20"),
	FeeBasisPoints: confutil.P(10),
}

type persistedSettlement struct {
	ID                 types.Bytes32                            `gorm:"column:id;primaryKey"`
	MessageID          types.Bytes32                            `gorm:"column:message_id"`
	Attempt            int64                                    `gorm:"column:attempt"`
	SourceAsset        string                                   `gorm:"column:source_asset"`
	DestinationAsset   string                                   `gorm:"column:destination_asset"`
	Amount             *fftypes.FFBigInt                        `gorm:"column:amount"`
	Recipient          string                                   `gorm:"column:recipient"`
	DestinationNetwork string                                   `gorm:"column:destination_network"`
	Initiator          string                                   `gorm:"column:initiator"`
	Status             types.Enum[components.SettlementStatus]  `gorm:"column:status"`
	InitiateTime       types.Timestamp                          `gorm:"column:initiate_time"`
	CompleteTime       *types.Timestamp                         `gorm:"column:complete_time"`
}

func (persistedSettlement) TableName() string {
	return "settlements"
}

// incomingSettlement is the idempotency registry for inbound completion
// notices - one credit per settlement id, ever.
type incomingSettlement struct {
	ID           types.Bytes32   `gorm:"column:id;primaryKey"`
	ReceivedTime types.Timestamp `gorm:"column:received_time"`
}

func (incomingSettlement) TableName() string {
	return "incoming_settlements"
}

type settlementManager struct {
	bgCtx        context.Context
	conf         *Config
	p            persistence.Persistence
	c            components.AllComponents
	localNetwork string
}

func NewSettlementCoordinator(bgCtx context.Context, conf *Config) components.SettlementCoordinator {
	return &settlementManager{
		bgCtx: bgCtx,
		conf:  conf,
	}
}

func (sm *settlementManager) PostInit(c components.AllComponents) error {
	sm.p = c.Persistence()
	sm.c = c
	sm.localNetwork = c.LocalNetworkName()
	return nil
}

func (sm *settlementManager) Start() error { return nil }

func (sm *settlementManager) Stop() {}

func (sm *settlementManager) Quote(ctx context.Context, instr *components.SettlementInstruction) (*fftypes.FFBigInt, error) {
	if !instr.Required() {
		return fftypes.NewFFBigInt(0), nil
	}
	fee := confutil.BigInt(sm.conf.FlatFee, 20)
	bps := big.NewInt(int64(confutil.IntMin(sm.conf.FeeBasisPoints, 0, 10)))
	proportional := new(big.Int).Mul(instr.Amount.Int(), bps)
	proportional.Div(proportional, big.NewInt(10000))
	fee.Add(fee, proportional)
	return (*fftypes.FFBigInt)(fee), nil
}

// attemptNumber is the count of terminally failed attempts for the
// message. Rows are never deleted, so it can only grow - a fresh attempt
// id becomes derivable exactly when the previous one is cancelled or
// failed.
func attemptNumber(ctx context.Context, dbTX *gorm.DB, messageID types.Bytes32) (int64, error) {
	var attempts int64
	err := dbTX.
		Model(&persistedSettlement{}).
		Where("message_id = ?", messageID).
		Where("status IN (?)", []components.SettlementStatus{
			components.SettlementStatusCancelled,
			components.SettlementStatusFailed,
		}).
		Count(&attempts).
		Error
	return attempts, err
}

func (sm *settlementManager) Initiate(ctx context.Context, dbTX *gorm.DB, caller string, messageID types.Bytes32, destinationNetwork string, instr *components.SettlementInstruction) (*components.Settlement, error) {
	if !instr.Required() {
		return nil, i18n.NewError(ctx, msgs.MsgSettlementZeroAmount)
	}
	var settlement *persistedSettlement
	err := sm.inTransaction(ctx, dbTX, func(dbTX *gorm.DB) error {
		attempt, err := attemptNumber(ctx, dbTX, messageID)
		if err != nil {
			return err
		}
		id := components.SettlementID(messageID, instr.SourceAsset, instr.DestinationAsset, instr.Amount, destinationNetwork, instr.Recipient, attempt)

		var existing int64
		err = dbTX.
			Model(&persistedSettlement{}).
			Where("id = ?", id).
			Count(&existing).
			Error
		if err != nil {
			return err
		}
		if existing > 0 {
			return i18n.NewError(ctx, msgs.MsgSettlementAlreadyProcessed, id)
		}

		local := destinationNetwork == "" || destinationNetwork == sm.localNetwork
		settlement = &persistedSettlement{
			ID:                 id,
			MessageID:          messageID,
			Attempt:            attempt,
			SourceAsset:        instr.SourceAsset,
			DestinationAsset:   instr.DestinationAsset,
			Amount:             instr.Amount,
			Recipient:          instr.Recipient,
			DestinationNetwork: destinationNetwork,
			Initiator:          caller,
			InitiateTime:       types.TimestampNow(),
			Status:             components.SettlementStatusInProgress.Enum(),
		}
		if err := dbTX.Create(settlement).Error; err != nil {
			return err
		}

		// funds are earmarked under the settlement id before anything moves
		if err := sm.c.LiquidityReserve().Lock(ctx, dbTX, id, instr.SourceAsset, instr.Amount); err != nil {
			return err
		}

		if local {
			// local transfer completes synchronously - the locked funds pay
			// out to the recipient in one step
			if err := sm.c.LiquidityReserve().ConsumeLock(ctx, dbTX, id); err != nil {
				return err
			}
			now := types.TimestampNow()
			settlement.Status = components.SettlementStatusCompleted.Enum()
			settlement.CompleteTime = &now
			err = dbTX.
				Model(&persistedSettlement{}).
				Where("id = ?", id).
				Updates(map[string]any{
					"status":        settlement.Status,
					"complete_time": &now,
				}).
				Error
			if err != nil {
				return err
			}
			log.L(ctx).Infof("Settlement %s completed locally: %s %s to %s", id, instr.Amount.Int(), instr.SourceAsset, instr.Recipient)
			return nil
		}

		// cross-network settlement hands off to the relay and stays
		// IN_PROGRESS until confirmed
		return sm.c.RelayClient().DispatchSettlement(ctx, &components.RelaySettlement{
			SettlementID:       id,
			DestinationAsset:   instr.DestinationAsset,
			Amount:             instr.Amount,
			Recipient:          instr.Recipient,
			DestinationNetwork: destinationNetwork,
		})
	})
	if err != nil {
		return nil, err
	}
	eventData, _ := json.Marshal(map[string]any{
		"settlementId": settlement.ID,
		"messageId":    messageID,
		"status":       settlement.Status,
	})
	sm.c.EventBroker().Publish(ctx, events.TopicSettlementInitiated, eventData)
	if settlement.Status.V() == components.SettlementStatusCompleted {
		sm.c.EventBroker().Publish(ctx, events.TopicSettlementCompleted, eventData)
	}
	return settlement.toSettlement(), nil
}

// Cancel aborts a settlement that has not completed, releasing the
// liquidity lock of its IN_PROGRESS attempt. With no caller transaction the
// identity is authorized here, before the transaction opens - the
// permission lookup must not run while the transaction holds the pool's
// only connection. Inside a caller's transaction the identity was already
// authorized upstream against the submission record.
func (sm *settlementManager) Cancel(ctx context.Context, dbTX *gorm.DB, caller string, settlementID types.Bytes32) error {
	if dbTX != nil {
		return sm.cancelInTX(ctx, dbTX, caller, settlementID)
	}
	settlement, err := getSettlement(ctx, sm.p.DB().WithContext(ctx), settlementID)
	if err != nil {
		return err
	}
	if settlement.Initiator != caller {
		// emergency operators may cancel on anyone's behalf
		if permErr := sm.c.Permissions().Require(ctx, caller, components.PermissionEmergency); permErr != nil {
			return i18n.NewError(ctx, msgs.MsgSettlementNotInitiator, settlementID)
		}
	}
	return sm.p.Transaction(ctx, func(dbTX *gorm.DB) error {
		return sm.cancelInTX(ctx, dbTX, caller, settlementID)
	})
}

func (sm *settlementManager) cancelInTX(ctx context.Context, dbTX *gorm.DB, caller string, settlementID types.Bytes32) error {
	settlement, err := getSettlement(ctx, dbTX, settlementID)
	if err != nil {
		return err
	}
	if settlement.Status.V() != components.SettlementStatusInProgress {
		return i18n.NewError(ctx, msgs.MsgSettlementCancelStatus, settlementID, settlement.Status)
	}
	if err := sm.c.LiquidityReserve().Release(ctx, dbTX, settlementID); err != nil {
		return err
	}
	err = dbTX.
		Model(&persistedSettlement{}).
		Where("id = ?", settlementID).
		Update("status", components.SettlementStatusCancelled.Enum()).
		Error
	if err == nil {
		log.L(ctx).Infof("Settlement %s cancelled by %s", settlementID, caller)
	}
	return err
}

// ConfirmOutgoing is invoked by the relay when one of this node's
// cross-network settlements lands. The locked funds leave the pool for
// good, and the message moves to SETTLED if its processing is done.
func (sm *settlementManager) ConfirmOutgoing(ctx context.Context, caller string, settlementID types.Bytes32) error {
	if err := sm.c.Permissions().Require(ctx, caller, components.PermissionRelay); err != nil {
		return err
	}
	var messageID types.Bytes32
	err := sm.p.Transaction(ctx, func(dbTX *gorm.DB) error {
		settlement, err := getSettlement(ctx, dbTX, settlementID)
		if err != nil {
			return err
		}
		if settlement.Status.V() != components.SettlementStatusInProgress {
			return i18n.NewError(ctx, msgs.MsgSettlementNotInProgress, settlementID, settlement.Status)
		}
		messageID = settlement.MessageID
		if err := sm.c.LiquidityReserve().ConsumeLock(ctx, dbTX, settlementID); err != nil {
			return err
		}
		now := types.TimestampNow()
		err = dbTX.
			Model(&persistedSettlement{}).
			Where("id = ?", settlementID).
			Updates(map[string]any{
				"status":        components.SettlementStatusCompleted.Enum(),
				"complete_time": &now,
			}).
			Error
		if err != nil {
			return err
		}

		// the message reaches SETTLED only through the PROCESSED edge - if
		// it is still in flight the settlement record alone carries the
		// completion
		msg, err := sm.c.MessageStore().GetMessage(ctx, dbTX, messageID)
		if err == nil && msg.Status.V() == components.MessageStatusProcessed {
			return sm.c.MessageStore().UpdateStatus(ctx, dbTX, messageID, components.MessageStatusSettled)
		}
		return nil
	})
	if err != nil {
		return err
	}
	eventData, _ := json.Marshal(map[string]any{
		"settlementId": settlementID,
		"messageId":    messageID,
	})
	sm.c.EventBroker().Publish(ctx, events.TopicSettlementCompleted, eventData)
	return nil
}

// CompleteIncoming credits a settlement that completed on another network
// with this node as its destination. Exactly one credit per settlement id
// is ever applied, however many times the relay redelivers the notice.
func (sm *settlementManager) CompleteIncoming(ctx context.Context, caller string, notice *components.SettlementNotice) error {
	if err := sm.c.Permissions().Require(ctx, caller, components.PermissionRelay); err != nil {
		return err
	}
	if notice == nil || notice.Recipient == "" {
		return i18n.NewError(ctx, msgs.MsgSettlementBadNotice, "missing recipient")
	}
	if notice.Amount == nil || notice.Amount.Int().Sign() <= 0 {
		return i18n.NewError(ctx, msgs.MsgSettlementBadNotice, "amount must be positive")
	}
	err := sm.p.Transaction(ctx, func(dbTX *gorm.DB) error {
		var existing int64
		err := dbTX.
			Model(&incomingSettlement{}).
			Where("id = ?", notice.SettlementID).
			Count(&existing).
			Error
		if err != nil {
			return err
		}
		if existing > 0 {
			return i18n.NewError(ctx, msgs.MsgSettlementAlreadyProcessed, notice.SettlementID)
		}
		err = dbTX.Create(&incomingSettlement{
			ID:           notice.SettlementID,
			ReceivedTime: types.TimestampNow(),
		}).Error
		if err != nil {
			return err
		}

		// the payout to the recipient comes out of the destination asset
		// pool - lock and consume in one step so the invariant holds
		lr := sm.c.LiquidityReserve()
		if err := lr.Lock(ctx, dbTX, notice.SettlementID, notice.DestinationAsset, notice.Amount); err != nil {
			return err
		}
		return lr.ConsumeLock(ctx, dbTX, notice.SettlementID)
	})
	if err != nil {
		return err
	}
	log.L(ctx).Infof("Credited incoming settlement %s: %s %s to %s", notice.SettlementID, notice.Amount.Int(), notice.DestinationAsset, notice.Recipient)
	eventData, _ := json.Marshal(map[string]any{
		"settlementId": notice.SettlementID,
		"recipient":    notice.Recipient,
		"incoming":     true,
	})
	sm.c.EventBroker().Publish(ctx, events.TopicSettlementCompleted, eventData)
	return nil
}

func (sm *settlementManager) GetSettlement(ctx context.Context, dbTX *gorm.DB, settlementID types.Bytes32) (*components.Settlement, error) {
	db := dbTX
	if db == nil {
		db = sm.p.DB().WithContext(ctx)
	}
	settlement, err := getSettlement(ctx, db, settlementID)
	if err != nil {
		return nil, err
	}
	return settlement.toSettlement(), nil
}

func getSettlement(ctx context.Context, db *gorm.DB, settlementID types.Bytes32) (*persistedSettlement, error) {
	var settlements []*persistedSettlement
	err := db.
		Where("id = ?", settlementID).
		Limit(1).
		Find(&settlements).
		Error
	if err != nil {
		return nil, err
	}
	if len(settlements) == 0 {
		return nil, i18n.NewError(ctx, msgs.MsgSettlementNotFound, settlementID)
	}
	return settlements[0], nil
}

func (sm *settlementManager) inTransaction(ctx context.Context, dbTX *gorm.DB, fn func(dbTX *gorm.DB) error) error {
	if dbTX != nil {
		return fn(dbTX)
	}
	return sm.p.Transaction(ctx, fn)
}

func (ps *persistedSettlement) toSettlement() *components.Settlement {
	return &components.Settlement{
		ID:                 ps.ID,
		MessageID:          ps.MessageID,
		Attempt:            ps.Attempt,
		SourceAsset:        ps.SourceAsset,
		DestinationAsset:   ps.DestinationAsset,
		Amount:             ps.Amount,
		Recipient:          ps.Recipient,
		DestinationNetwork: ps.DestinationNetwork,
		Initiator:          ps.Initiator,
		Status:             ps.Status,
		InitiateTime:       ps.InitiateTime,
		CompleteTime:       ps.CompleteTime,
	}
}
