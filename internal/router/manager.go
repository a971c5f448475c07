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

// Package router delivers registered messages to their destination.
// Delivery to a target on the local network completes synchronously.
// Cross-network delivery is asynchronous: the message is handed to the
// external relay under a deterministic delivery hash, and the relay
// confirms completion later through MarkDeliveryCompleted.
package router

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
	// Flat fee for synchronous delivery on the local network
	LocalDeliveryFee *string `json:"localDeliveryFee"`
	// Per-byte fee added to local deliveries
	LocalFeePerByte *string `json:"localFeePerByte"`
	// Fixed node fee added on top of the relay's quoted price for
	// cross-network delivery
	CrossNetworkFee *string `json:"crossNetworkFee"`
	// Per-byte processing fee added to cross-network deliveries
	CrossNetworkFeePerByte *string `json:"crossNetworkFeePerByte"`
}

var ConfigDefaults = &Config{
	LocalDeliveryFee:       confutil.P("10"),
	LocalFeePerByte:        confutil.P("0"),
	CrossNetworkFee:        confutil.P("50"),
	CrossNetworkFeePerByte: confutil.P("0"),
}

type persistedDelivery struct {
	DeliveryHash       types.Bytes32    `gorm:"column:delivery_hash;primaryKey"`
	MessageID          types.Bytes32    `gorm:"column:message_id"`
	DestinationNetwork string           `gorm:"column:destination_network"`
	DispatchTime       types.Timestamp  `gorm:"column:dispatch_time"`
	Completed          bool             `gorm:"column:completed"`
	CompleteTime       *types.Timestamp `gorm:"column:complete_time"`
}

func (persistedDelivery) TableName() string {
	return "deliveries"
}

type routerManager struct {
	bgCtx context.Context
	conf  *Config

	p            persistence.Persistence
	c            components.AllComponents
	localNetwork string
}

func NewRouter(bgCtx context.Context, conf *Config) components.Router {
	return &routerManager{
		bgCtx: bgCtx,
		conf:  conf,
	}
}

func (rm *routerManager) PostInit(c components.AllComponents) error {
	rm.p = c.Persistence()
	rm.c = c
	rm.localNetwork = c.LocalNetworkName()
	return nil
}

func (rm *routerManager) Start() error { return nil }

func (rm *routerManager) Stop() {}

// QuoteDeliveryFee prices a delivery as flat-plus-per-byte on either tier.
// Cross-network quotes add the relay's own price for the destination
// network and payload size on top of the node's processing fee.
func (rm *routerManager) QuoteDeliveryFee(ctx context.Context, destinationNetwork string, payloadSize int) (*fftypes.FFBigInt, error) {
	size := big.NewInt(int64(payloadSize))
	if destinationNetwork == "" || destinationNetwork == rm.localNetwork {
		fee := confutil.BigInt(rm.conf.LocalDeliveryFee, 10)
		fee.Add(fee, new(big.Int).Mul(confutil.BigInt(rm.conf.LocalFeePerByte, 0), size))
		return (*fftypes.FFBigInt)(fee), nil
	}
	relayPrice, err := rm.c.RelayClient().QuoteDeliveryPrice(ctx, destinationNetwork, payloadSize)
	if err != nil {
		return nil, err
	}
	fee := confutil.BigInt(rm.conf.CrossNetworkFee, 50)
	fee.Add(fee, new(big.Int).Mul(confutil.BigInt(rm.conf.CrossNetworkFeePerByte, 0), size))
	fee.Add(fee, relayPrice.Int())
	return (*fftypes.FFBigInt)(fee), nil
}

// DeliveryHashFor derives the correlation hash the relay uses to confirm a
// cross-network delivery.
func DeliveryHashFor(messageID types.Bytes32, destinationNetwork string) types.Bytes32 {
	return types.HashConcat(messageID.Bytes(), []byte(destinationNetwork))
}

func (rm *routerManager) Route(ctx context.Context, dbTX *gorm.DB, req *components.RoutingRequest) (*components.DeliveryOutcome, error) {
	if len(req.Payload) == 0 {
		return nil, i18n.NewError(ctx, msgs.MsgRouterEmptyPayload)
	}
	valid, err := rm.c.TargetDirectory().IsValidTarget(ctx, dbTX, req.Destination, req.DestinationNetwork)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, i18n.NewError(ctx, msgs.MsgRouterInvalidTarget, req.Destination, req.DestinationNetwork)
	}

	quoted, err := rm.QuoteDeliveryFee(ctx, req.DestinationNetwork, len(req.Payload))
	if err != nil {
		return nil, err
	}
	payment := big.NewInt(0)
	if req.FeePayment != nil {
		payment = req.FeePayment.Int()
	}
	if payment.Cmp(quoted.Int()) < 0 {
		return nil, i18n.NewError(ctx, msgs.MsgRouterFeeBelowQuote, payment, quoted.Int())
	}

	if req.DestinationNetwork == rm.localNetwork {
		// synchronous local delivery - the target is on this node's network
		log.L(ctx).Infof("Delivered message %s to %s locally", req.MessageID, req.Destination)
		return &components.DeliveryOutcome{Completed: true}, nil
	}
	return rm.routeCrossNetwork(ctx, dbTX, req)
}

func (rm *routerManager) routeCrossNetwork(ctx context.Context, dbTX *gorm.DB, req *components.RoutingRequest) (*components.DeliveryOutcome, error) {
	deliveryHash := DeliveryHashFor(req.MessageID, req.DestinationNetwork)
	delivery := &persistedDelivery{
		DeliveryHash:       deliveryHash,
		MessageID:          req.MessageID,
		DestinationNetwork: req.DestinationNetwork,
		DispatchTime:       types.TimestampNow(),
	}

	var existing []*persistedDelivery
	db := rm.db(ctx, dbTX)
	err := db.
		Where("delivery_hash = ?", deliveryHash).
		Limit(1).
		Find(&existing).
		Error
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		err = db.Create(delivery).Error
	} else if !existing[0].Completed {
		// re-dispatch of an in-flight delivery (a retry) refreshes the
		// dispatch time on the same hash
		err = db.
			Model(&persistedDelivery{}).
			Where("delivery_hash = ?", deliveryHash).
			Update("dispatch_time", delivery.DispatchTime).
			Error
	} else {
		// already confirmed delivered
		return &components.DeliveryOutcome{Completed: true, DeliveryHash: &deliveryHash}, nil
	}
	if err != nil {
		return nil, err
	}

	err = rm.c.RelayClient().DispatchDelivery(ctx, &components.RelayDelivery{
		DeliveryHash:       deliveryHash,
		MessageID:          req.MessageID,
		MessageType:        req.MessageType,
		Payload:            req.Payload,
		Destination:        req.Destination,
		DestinationNetwork: req.DestinationNetwork,
		FeePayment:         req.FeePayment,
	})
	if err != nil {
		return nil, err
	}
	return &components.DeliveryOutcome{Completed: false, DeliveryHash: &deliveryHash}, nil
}

// MarkDeliveryCompleted records the relay's confirmation that a
// cross-network delivery landed. Confirming an already completed delivery
// is a no-op, so relay redeliveries of the confirmation are harmless.
func (rm *routerManager) MarkDeliveryCompleted(ctx context.Context, caller string, deliveryHash types.Bytes32) error {
	if err := rm.c.Permissions().Require(ctx, caller, components.PermissionRelay); err != nil {
		return err
	}
	return rm.p.Transaction(ctx, func(dbTX *gorm.DB) error {
		var deliveries []*persistedDelivery
		err := dbTX.
			Where("delivery_hash = ?", deliveryHash).
			Limit(1).
			Find(&deliveries).
			Error
		if err != nil {
			return err
		}
		if len(deliveries) == 0 {
			return i18n.NewError(ctx, msgs.MsgRouterDeliveryNotFound, deliveryHash)
		}
		if deliveries[0].Completed {
			log.L(ctx).Debugf("Delivery %s already completed", deliveryHash)
			return nil
		}
		now := types.TimestampNow()
		err = dbTX.
			Model(&persistedDelivery{}).
			Where("delivery_hash = ?", deliveryHash).
			Updates(map[string]any{
				"completed":     true,
				"complete_time": &now,
			}).
			Error
		if err != nil {
			return err
		}
		if err := rm.c.MessageStore().UpdateStatus(ctx, dbTX, deliveries[0].MessageID, components.MessageStatusDelivered); err != nil {
			return err
		}
		eventData, _ := json.Marshal(map[string]any{
			"deliveryHash": deliveryHash,
			"messageId":    deliveries[0].MessageID,
		})
		rm.c.EventBroker().Publish(ctx, events.TopicDeliveryCompleted, eventData)
		return nil
	})
}

func (rm *routerManager) GetDelivery(ctx context.Context, deliveryHash types.Bytes32) (*components.Delivery, error) {
	var deliveries []*persistedDelivery
	err := rm.p.DB().
		WithContext(ctx).
		Where("delivery_hash = ?", deliveryHash).
		Limit(1).
		Find(&deliveries).
		Error
	if err != nil {
		return nil, err
	}
	if len(deliveries) == 0 {
		return nil, i18n.NewError(ctx, msgs.MsgRouterDeliveryNotFound, deliveryHash)
	}
	d := deliveries[0]
	return &components.Delivery{
		DeliveryHash:       d.DeliveryHash,
		MessageID:          d.MessageID,
		DestinationNetwork: d.DestinationNetwork,
		DispatchTime:       d.DispatchTime,
		Completed:          d.Completed,
		CompleteTime:       d.CompleteTime,
	}, nil
}

func (rm *routerManager) db(ctx context.Context, dbTX *gorm.DB) *gorm.DB {
	if dbTX != nil {
		return dbTX
	}
	return rm.p.DB().WithContext(ctx)
}
