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

// Package orchestrator drives the full lifecycle of a submitted message:
// fee collection, registration, delivery, processing and settlement. A
// per-message execution lock serialises the mutating operations, and every
// multi-step state change runs in one database transaction so a failure
// at any step rolls the whole step back.
package orchestrator

import (
	"context"
	"encoding/json"
	"math/big"
	"sync"

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
	// Flat protocol fee charged on every submission. Mutable at runtime
	// through UpdateBaseFee.
	BaseFee *string `json:"baseFee"`
	// Maximum accepted payload size in bytes
	MaxPayloadSize *int `json:"maxPayloadSize"`
}

var ConfigDefaults = &Config{
	BaseFee:        confutil.P("5"),
	MaxPayloadSize: confutil.P(1024 * 1024),
}

// persistedSubmission is the node-private record of who submitted a
// message and what they paid, including the original request so a retry
// can rebuild the pipeline inputs.
type persistedSubmission struct {
	MessageID     types.Bytes32     `gorm:"column:message_id;primaryKey"`
	Submitter     string            `gorm:"column:submitter"`
	Value         *fftypes.FFBigInt `gorm:"column:value"`
	BaseFee       *fftypes.FFBigInt `gorm:"column:base_fee"`
	DeliveryFee   *fftypes.FFBigInt `gorm:"column:delivery_fee"`
	SettlementFee *fftypes.FFBigInt `gorm:"column:settlement_fee"`
	SettlementID  *types.Bytes32    `gorm:"column:settlement_id"`
	Refund        *fftypes.FFBigInt `gorm:"column:refund"`
	Request       types.RawJSON     `gorm:"column:request"`
	SubmitTime    types.Timestamp   `gorm:"column:submit_time"`
}

func (persistedSubmission) TableName() string {
	return "submissions"
}

type orchestrator struct {
	bgCtx        context.Context
	conf         *Config
	p            persistence.Persistence
	c            components.AllComponents
	localNetwork string

	feeLock sync.RWMutex
	baseFee *big.Int

	inflightLock sync.Mutex
	inflight     map[types.Bytes32]bool
}

func NewOrchestrator(bgCtx context.Context, conf *Config) components.Orchestrator {
	return &orchestrator{
		bgCtx:    bgCtx,
		conf:     conf,
		baseFee:  confutil.BigInt(conf.BaseFee, 5),
		inflight: make(map[types.Bytes32]bool),
	}
}

func (om *orchestrator) PostInit(c components.AllComponents) error {
	om.p = c.Persistence()
	om.c = c
	om.localNetwork = c.LocalNetworkName()
	return nil
}

func (om *orchestrator) Start() error { return nil }

func (om *orchestrator) Stop() {}

// lockMessage serialises operations per message id. A second operation
// arriving while one is in flight fails fast rather than queueing.
func (om *orchestrator) lockMessage(ctx context.Context, messageID types.Bytes32) (func(), error) {
	om.inflightLock.Lock()
	defer om.inflightLock.Unlock()
	if om.inflight[messageID] {
		return nil, i18n.NewError(ctx, msgs.MsgOrchestratorBusy, messageID)
	}
	om.inflight[messageID] = true
	return func() {
		om.inflightLock.Lock()
		delete(om.inflight, messageID)
		om.inflightLock.Unlock()
	}, nil
}

func (om *orchestrator) currentBaseFee() *big.Int {
	om.feeLock.RLock()
	defer om.feeLock.RUnlock()
	return new(big.Int).Set(om.baseFee)
}

func (om *orchestrator) UpdateBaseFee(ctx context.Context, caller string, fee *fftypes.FFBigInt) error {
	if err := om.c.Permissions().Require(ctx, caller, components.PermissionAdmin); err != nil {
		return err
	}
	if fee == nil || fee.Int().Sign() < 0 {
		return i18n.NewError(ctx, msgs.MsgTypesAmountMustBePositive)
	}
	om.feeLock.Lock()
	om.baseFee = new(big.Int).Set(fee.Int())
	om.feeLock.Unlock()
	log.L(ctx).Infof("Base fee updated to %s by %s", fee.Int(), caller)
	eventData, _ := json.Marshal(map[string]any{"baseFee": fee, "updatedBy": caller})
	om.c.EventBroker().Publish(ctx, events.TopicFeeUpdated, eventData)
	return nil
}

func (om *orchestrator) networkOf(sub *components.Submission) string {
	if sub.DestinationNetwork == "" {
		return om.localNetwork
	}
	return sub.DestinationNetwork
}

func (om *orchestrator) validate(ctx context.Context, sub *components.Submission) error {
	if len(sub.Payload) == 0 {
		return i18n.NewError(ctx, msgs.MsgOrchestratorEmptyPayload)
	}
	maxSize := confutil.IntMin(om.conf.MaxPayloadSize, 1, 1024*1024)
	if len(sub.Payload) > maxSize {
		return i18n.NewError(ctx, msgs.MsgOrchestratorPayloadTooLarge, len(sub.Payload), maxSize)
	}
	if sub.Destination == "" {
		return i18n.NewError(ctx, msgs.MsgOrchestratorNoDestination)
	}
	return om.c.FormatValidator().Validate(ctx, sub.MessageType, sub.Payload)
}

// QuoteFee prices a submission without any side effects. Two quotes with
// no intervening fee update return identical values.
func (om *orchestrator) QuoteFee(ctx context.Context, sub *components.Submission) (*components.FeeQuote, error) {
	if err := om.validate(ctx, sub); err != nil {
		return nil, err
	}
	deliveryFee, err := om.c.Router().QuoteDeliveryFee(ctx, om.networkOf(sub), len(sub.Payload))
	if err != nil {
		return nil, err
	}
	settlementFee, err := om.c.SettlementCoordinator().Quote(ctx, sub.Settlement)
	if err != nil {
		return nil, err
	}
	return &components.FeeQuote{
		Base:       (*fftypes.FFBigInt)(om.currentBaseFee()),
		Delivery:   deliveryFee,
		Settlement: settlementFee,
	}, nil
}

func (om *orchestrator) Submit(ctx context.Context, caller string, sub *components.Submission) (*components.SubmitResult, error) {
	if err := om.c.CheckActive(components.ComponentOrchestrator); err != nil {
		return nil, err
	}
	if caller == "" {
		return nil, i18n.NewError(ctx, msgs.MsgPermissionNoIdentity)
	}
	quote, err := om.QuoteFee(ctx, sub)
	if err != nil {
		return nil, err
	}
	value := big.NewInt(0)
	if sub.Value != nil {
		value = sub.Value.Int()
	}
	total := quote.Total()
	if value.Cmp(total) < 0 {
		return nil, i18n.NewError(ctx, msgs.MsgOrchestratorInsufficientFee, value, total)
	}

	network := om.networkOf(sub)
	contentHash := types.Bytes32Keccak(sub.Payload)
	messageID := components.MessageID(sub.MessageType, contentHash, caller, sub.Destination, network)

	release, err := om.lockMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	defer release()

	msg := &components.Message{
		ID:                 messageID,
		MessageType:        sub.MessageType,
		ContentHash:        contentHash,
		Sender:             caller,
		Destination:        sub.Destination,
		DestinationNetwork: network,
		Payload:            sub.Payload,
	}
	result := &components.SubmitResult{MessageID: messageID}

	err = om.p.Transaction(ctx, func(dbTX *gorm.DB) error {
		if err := om.c.MessageStore().Register(ctx, dbTX, msg); err != nil {
			return err
		}
		request, _ := json.Marshal(sub)
		submission := &persistedSubmission{
			MessageID:     messageID,
			Submitter:     caller,
			Value:         sub.Value,
			BaseFee:       quote.Base,
			DeliveryFee:   quote.Delivery,
			SettlementFee: quote.Settlement,
			Request:       request,
			SubmitTime:    types.TimestampNow(),
		}
		if err := dbTX.Create(submission).Error; err != nil {
			return err
		}
		return om.drivePipeline(ctx, dbTX, caller, msg, sub, quote, result)
	})
	if err != nil {
		return nil, err
	}

	eventData, _ := json.Marshal(map[string]any{"messageId": messageID, "sender": caller})
	om.c.EventBroker().Publish(ctx, events.TopicMessageSubmitted, eventData)
	om.publishStatus(ctx, messageID)
	return result, nil
}

// drivePipeline runs delivery, processing and settlement for a message as
// far as they can go synchronously. Handler failures mark the message
// FAILED rather than aborting the transaction - the registration and the
// recorded failure both survive.
func (om *orchestrator) drivePipeline(ctx context.Context, dbTX *gorm.DB, caller string, msg *components.Message, sub *components.Submission, quote *components.FeeQuote, result *components.SubmitResult) error {
	outcome, err := om.c.Router().Route(ctx, dbTX, &components.RoutingRequest{
		MessageID:          msg.ID,
		MessageType:        msg.MessageType,
		Payload:            msg.Payload,
		Sender:             caller,
		Destination:        msg.Destination,
		DestinationNetwork: msg.DestinationNetwork,
		FeePayment:         quote.Delivery,
	})
	if err != nil {
		return err
	}
	result.Delivery = outcome

	if msg.DestinationNetwork != om.localNetwork {
		// cross-network: the message stays PENDING until the relay confirms
		// delivery, and any settlement leg runs IN_PROGRESS alongside
		if sub.Settlement.Required() {
			s, err := om.c.SettlementCoordinator().Initiate(ctx, dbTX, caller, msg.ID, msg.DestinationNetwork, sub.Settlement)
			if err != nil {
				return err
			}
			result.SettlementID = &s.ID
			if err := om.recordSettlementID(dbTX, msg.ID, s.ID); err != nil {
				return err
			}
		}
		return nil
	}

	// local delivery completed synchronously
	if err := om.c.MessageStore().UpdateStatus(ctx, dbTX, msg.ID, components.MessageStatusDelivered); err != nil {
		return err
	}
	msg.Status = components.MessageStatusDelivered.Enum()
	processed, err := om.c.Processor().Process(ctx, dbTX, msg)
	if err != nil || !processed.Success {
		if err != nil {
			log.L(ctx).Warnf("Processing failed for message %s: %s", msg.ID, err)
		}
		return om.c.MessageStore().UpdateStatus(ctx, dbTX, msg.ID, components.MessageStatusFailed)
	}
	if err := om.c.MessageStore().UpdateStatus(ctx, dbTX, msg.ID, components.MessageStatusProcessed); err != nil {
		return err
	}

	if sub.Settlement.Required() {
		s, err := om.c.SettlementCoordinator().Initiate(ctx, dbTX, caller, msg.ID, msg.DestinationNetwork, sub.Settlement)
		if err != nil {
			return err
		}
		result.SettlementID = &s.ID
		if err := om.recordSettlementID(dbTX, msg.ID, s.ID); err != nil {
			return err
		}
		if s.Status.V() == components.SettlementStatusCompleted {
			if err := om.c.MessageStore().UpdateStatus(ctx, dbTX, msg.ID, components.MessageStatusSettled); err != nil {
				return err
			}
		}
	}

	// excess payment on a fully local submission refunds to the sender
	value := big.NewInt(0)
	if sub.Value != nil {
		value = sub.Value.Int()
	}
	excess := new(big.Int).Sub(value, quote.Total())
	if excess.Sign() > 0 {
		result.Refund = (*fftypes.FFBigInt)(excess)
		err = dbTX.
			Model(&persistedSubmission{}).
			Where("message_id = ?", msg.ID).
			Update("refund", result.Refund).
			Error
		if err != nil {
			return err
		}
		log.L(ctx).Infof("Refunding %s excess payment for message %s to %s", excess, msg.ID, caller)
	}
	return nil
}

func (om *orchestrator) recordSettlementID(dbTX *gorm.DB, messageID, settlementID types.Bytes32) error {
	return dbTX.
		Model(&persistedSubmission{}).
		Where("message_id = ?", messageID).
		Update("settlement_id", &settlementID).
		Error
}

func (om *orchestrator) getSubmission(ctx context.Context, messageID types.Bytes32) (*persistedSubmission, error) {
	var submissions []*persistedSubmission
	err := om.p.DB().
		WithContext(ctx).
		Where("message_id = ?", messageID).
		Limit(1).
		Find(&submissions).
		Error
	if err != nil {
		return nil, err
	}
	if len(submissions) == 0 {
		return nil, i18n.NewError(ctx, msgs.MsgOrchestratorSubmissionLost, messageID)
	}
	return submissions[0], nil
}

// Retry re-drives the pipeline for a message still PENDING - typically a
// cross-network delivery that has not been confirmed. Routing re-dispatches
// under the same delivery hash, but any settlement attempt still in flight
// is cancelled and a fresh one initiated: the attempt counter moves the new
// settlement onto a fresh id, so a late completion of the old attempt can
// never double-pay.
func (om *orchestrator) Retry(ctx context.Context, caller string, messageID types.Bytes32) (*components.SubmitResult, error) {
	if err := om.c.CheckActive(components.ComponentOrchestrator); err != nil {
		return nil, err
	}
	submission, err := om.getSubmission(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if submission.Submitter != caller {
		return nil, i18n.NewError(ctx, msgs.MsgOrchestratorNotSubmitter, messageID)
	}
	release, err := om.lockMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	defer release()

	msg, err := om.c.MessageStore().GetMessage(ctx, nil, messageID)
	if err != nil {
		return nil, err
	}
	if msg.Status.V() != components.MessageStatusPending {
		return nil, i18n.NewError(ctx, msgs.MsgOrchestratorRetryStatus, messageID, msg.Status)
	}
	var sub components.Submission
	if err := json.Unmarshal(submission.Request, &sub); err != nil {
		return nil, i18n.WrapError(ctx, err, msgs.MsgTypesInvalidJSON)
	}

	result := &components.SubmitResult{MessageID: messageID}
	quote := &components.FeeQuote{
		Base:       submission.BaseFee,
		Delivery:   submission.DeliveryFee,
		Settlement: submission.SettlementFee,
	}
	err = om.p.Transaction(ctx, func(dbTX *gorm.DB) error {
		outcome, err := om.c.Router().Route(ctx, dbTX, &components.RoutingRequest{
			MessageID:          messageID,
			MessageType:        msg.MessageType,
			Payload:            msg.Payload,
			Sender:             caller,
			Destination:        msg.Destination,
			DestinationNetwork: msg.DestinationNetwork,
			FeePayment:         quote.Delivery,
		})
		if err != nil {
			return err
		}
		result.Delivery = outcome

		if !sub.Settlement.Required() {
			return nil
		}
		sc := om.c.SettlementCoordinator()
		if submission.SettlementID != nil {
			s, err := sc.GetSettlement(ctx, dbTX, *submission.SettlementID)
			if err != nil {
				return err
			}
			if s.Status.V() == components.SettlementStatusCompleted {
				// the value leg already landed, only delivery was re-driven
				return nil
			}
			if s.Status.V() == components.SettlementStatusInProgress {
				if err := sc.Cancel(ctx, dbTX, caller, *submission.SettlementID); err != nil {
					return err
				}
			}
		}
		s, err := sc.Initiate(ctx, dbTX, caller, messageID, msg.DestinationNetwork, sub.Settlement)
		if err != nil {
			return err
		}
		result.SettlementID = &s.ID
		return om.recordSettlementID(dbTX, messageID, s.ID)
	})
	if err != nil {
		return nil, err
	}
	om.publishStatus(ctx, messageID)
	return result, nil
}

// Cancel aborts a message still in PENDING or FAILED, on behalf of its
// original submitter. An in-progress settlement for the message is
// cancelled first so its liquidity lock releases.
func (om *orchestrator) Cancel(ctx context.Context, caller string, messageID types.Bytes32) error {
	submission, err := om.getSubmission(ctx, messageID)
	if err != nil {
		return err
	}
	if submission.Submitter != caller {
		return i18n.NewError(ctx, msgs.MsgOrchestratorNotSubmitter, messageID)
	}
	return om.cancel(ctx, caller, messageID, submission)
}

// EmergencyCancel is the same operation gated by the emergency permission
// instead of submitter identity.
func (om *orchestrator) EmergencyCancel(ctx context.Context, caller string, messageID types.Bytes32) error {
	if err := om.c.Permissions().Require(ctx, caller, components.PermissionEmergency); err != nil {
		return err
	}
	submission, err := om.getSubmission(ctx, messageID)
	if err != nil {
		return err
	}
	return om.cancel(ctx, caller, messageID, submission)
}

func (om *orchestrator) cancel(ctx context.Context, caller string, messageID types.Bytes32, submission *persistedSubmission) error {
	release, err := om.lockMessage(ctx, messageID)
	if err != nil {
		return err
	}
	defer release()

	msg, err := om.c.MessageStore().GetMessage(ctx, nil, messageID)
	if err != nil {
		return err
	}
	switch msg.Status.V() {
	case components.MessageStatusPending, components.MessageStatusFailed:
	default:
		return i18n.NewError(ctx, msgs.MsgOrchestratorCancelStatus, messageID, msg.Status)
	}

	// settlement cancellation, the status flip, and the purge of the private
	// submission record land or roll back together
	err = om.p.Transaction(ctx, func(dbTX *gorm.DB) error {
		if submission.SettlementID != nil {
			s, err := om.c.SettlementCoordinator().GetSettlement(ctx, dbTX, *submission.SettlementID)
			if err != nil {
				return err
			}
			if s.Status.V() == components.SettlementStatusInProgress {
				if err := om.c.SettlementCoordinator().Cancel(ctx, dbTX, caller, *submission.SettlementID); err != nil {
					return err
				}
			}
		}
		if err := om.c.MessageStore().UpdateStatus(ctx, dbTX, messageID, components.MessageStatusCancelled); err != nil {
			return err
		}
		return dbTX.
			Where("message_id = ?", messageID).
			Delete(&persistedSubmission{}).
			Error
	})
	if err != nil {
		return err
	}
	log.L(ctx).Infof("Message %s cancelled by %s", messageID, caller)
	om.publishStatus(ctx, messageID)
	return nil
}

func (om *orchestrator) publishStatus(ctx context.Context, messageID types.Bytes32) {
	msg, err := om.c.MessageStore().GetMessage(ctx, nil, messageID)
	if err != nil {
		log.L(ctx).Warnf("Unable to publish status for message %s: %s", messageID, err)
		return
	}
	eventData, _ := json.Marshal(map[string]any{"messageId": messageID, "status": msg.Status})
	om.c.EventBroker().Publish(ctx, events.TopicMessageStatus, eventData)
}
