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

// Package msgstore is the system of record for submitted messages. Records
// are append-only - a message is never deleted, and only its status moves,
// along the permitted transition edges. Everything else about a registered
// message is immutable.
package msgstore

import (
	"context"

	"github.com/finmesh-network/finmesh/internal/components"
	"github.com/finmesh-network/finmesh/internal/msgs"
	"github.com/finmesh-network/finmesh/internal/persistence"
	"github.com/finmesh-network/finmesh/pkg/types"
	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"gorm.io/gorm"
)

type persistedMessage struct {
	ID                 types.Bytes32                        `gorm:"column:id;primaryKey"`
	MessageType        string                               `gorm:"column:message_type"`
	ContentHash        types.Bytes32                        `gorm:"column:content_hash"`
	Sender             string                               `gorm:"column:sender"`
	Destination        string                               `gorm:"column:destination"`
	DestinationNetwork string                               `gorm:"column:destination_network"`
	SubmitTime         types.Timestamp                      `gorm:"column:submit_time"`
	Payload            types.RawJSON                        `gorm:"column:payload"`
	Status             types.Enum[components.MessageStatus] `gorm:"column:status"`
}

func (persistedMessage) TableName() string {
	return "messages"
}

// statusEdges maps each target status to the statuses it may be reached
// from. PENDING is the origin and is never a target.
var statusEdges = map[components.MessageStatus][]components.MessageStatus{
	components.MessageStatusDelivered: {components.MessageStatusPending},
	components.MessageStatusProcessed: {components.MessageStatusDelivered},
	components.MessageStatusSettled:   {components.MessageStatusProcessed},
	components.MessageStatusFailed:    {components.MessageStatusPending},
	components.MessageStatusCancelled: {components.MessageStatusPending, components.MessageStatusFailed},
}

type messageStore struct {
	bgCtx context.Context
	p     persistence.Persistence
}

func NewMessageStore(bgCtx context.Context) components.MessageStore {
	return &messageStore{bgCtx: bgCtx}
}

func (ms *messageStore) PostInit(c components.AllComponents) error {
	ms.p = c.Persistence()
	return nil
}

func (ms *messageStore) Start() error { return nil }

func (ms *messageStore) Stop() {}

func (ms *messageStore) db(ctx context.Context, dbTX *gorm.DB) *gorm.DB {
	if dbTX != nil {
		return dbTX
	}
	return ms.p.DB().WithContext(ctx)
}

func (ms *messageStore) Register(ctx context.Context, dbTX *gorm.DB, msg *components.Message) error {
	db := ms.db(ctx, dbTX)
	var existing int64
	err := db.
		Model(&persistedMessage{}).
		Where("id = ?", msg.ID).
		Count(&existing).
		Error
	if err != nil {
		return err
	}
	if existing > 0 {
		return i18n.NewError(ctx, msgs.MsgStoreDuplicateMessage, msg.ID)
	}
	if msg.SubmitTime == 0 {
		msg.SubmitTime = types.TimestampNow()
	}
	msg.Status = components.MessageStatusPending.Enum()
	err = db.Create(&persistedMessage{
		ID:                 msg.ID,
		MessageType:        msg.MessageType,
		ContentHash:        msg.ContentHash,
		Sender:             msg.Sender,
		Destination:        msg.Destination,
		DestinationNetwork: msg.DestinationNetwork,
		SubmitTime:         msg.SubmitTime,
		Payload:            msg.Payload,
		Status:             msg.Status,
	}).Error
	if err == nil {
		log.L(ctx).Infof("Registered message %s type=%s dest=%s@%s", msg.ID, msg.MessageType, msg.Destination, msg.DestinationNetwork)
	}
	return err
}

func (ms *messageStore) GetMessage(ctx context.Context, dbTX *gorm.DB, id types.Bytes32) (*components.Message, error) {
	var pms []*persistedMessage
	err := ms.db(ctx, dbTX).
		Where("id = ?", id).
		Limit(1).
		Find(&pms).
		Error
	if err != nil {
		return nil, err
	}
	if len(pms) == 0 {
		return nil, i18n.NewError(ctx, msgs.MsgStoreMessageNotFound, id)
	}
	return pms[0].toMessage(), nil
}

// UpdateStatus moves the message along one permitted edge of the status
// state machine. The check and the update are a single conditional UPDATE,
// so a concurrent transition cannot slip an invalid edge through.
func (ms *messageStore) UpdateStatus(ctx context.Context, dbTX *gorm.DB, id types.Bytes32, newStatus components.MessageStatus) error {
	allowedFrom := statusEdges[newStatus]
	if len(allowedFrom) == 0 {
		current, err := ms.GetMessage(ctx, dbTX, id)
		if err != nil {
			return err
		}
		return i18n.NewError(ctx, msgs.MsgStoreInvalidTransition, id, current.Status, newStatus)
	}
	res := ms.db(ctx, dbTX).
		Model(&persistedMessage{}).
		Where("id = ?", id).
		Where("status IN (?)", allowedFrom).
		Update("status", newStatus.Enum())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		current, err := ms.GetMessage(ctx, dbTX, id)
		if err != nil {
			return err
		}
		return i18n.NewError(ctx, msgs.MsgStoreInvalidTransition, id, current.Status, newStatus)
	}
	log.L(ctx).Infof("Message %s -> %s", id, newStatus)
	return nil
}

func (ms *messageStore) QueryMessages(ctx context.Context, status *components.MessageStatus, limit int) ([]*components.Message, error) {
	q := ms.p.DB().WithContext(ctx).Order("submit_time DESC")
	if status != nil {
		q = q.Where("status = ?", status.Enum())
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var pms []*persistedMessage
	if err := q.Find(&pms).Error; err != nil {
		return nil, err
	}
	messages := make([]*components.Message, len(pms))
	for i, pm := range pms {
		messages[i] = pm.toMessage()
	}
	return messages, nil
}

func (pm *persistedMessage) toMessage() *components.Message {
	return &components.Message{
		ID:                 pm.ID,
		MessageType:        pm.MessageType,
		ContentHash:        pm.ContentHash,
		Sender:             pm.Sender,
		Destination:        pm.Destination,
		DestinationNetwork: pm.DestinationNetwork,
		SubmitTime:         pm.SubmitTime,
		Payload:            pm.Payload,
		Status:             pm.Status,
	}
}
