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

// Package processor executes the registered business-logic handler for
// each delivered message, at most once per message id. Handler failures
// are recorded as results rather than dropped, so a message can never be
// re-processed by submitting it again.
package processor

import (
	"context"
	"sync"

	"github.com/finmesh-network/finmesh/internal/components"
	"github.com/finmesh-network/finmesh/internal/msgs"
	"github.com/finmesh-network/finmesh/internal/persistence"
	"github.com/finmesh-network/finmesh/pkg/types"
	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"gorm.io/gorm"
)

type persistedResult struct {
	MessageID    types.Bytes32   `gorm:"column:message_id;primaryKey"`
	Success      bool            `gorm:"column:success"`
	Result       types.RawJSON   `gorm:"column:result"`
	ErrorMessage string          `gorm:"column:error_message"`
	ProcessTime  types.Timestamp `gorm:"column:process_time"`
}

func (persistedResult) TableName() string {
	return "processing_results"
}

type processorManager struct {
	bgCtx       context.Context
	p           persistence.Persistence
	permissions func() components.PermissionManager

	lock     sync.RWMutex
	handlers map[string]components.MessageHandler
}

func NewProcessor(bgCtx context.Context) components.Processor {
	return &processorManager{
		bgCtx:    bgCtx,
		handlers: make(map[string]components.MessageHandler),
	}
}

func (pm *processorManager) PostInit(c components.AllComponents) error {
	pm.p = c.Persistence()
	pm.permissions = c.Permissions
	return nil
}

func (pm *processorManager) Start() error { return nil }

func (pm *processorManager) Stop() {}

func (pm *processorManager) RegisterHandler(ctx context.Context, caller string, messageType string, handler components.MessageHandler) error {
	if err := pm.permissions().Require(ctx, caller, components.PermissionHandlerAdmin); err != nil {
		return err
	}
	pm.lock.Lock()
	defer pm.lock.Unlock()
	if _, exists := pm.handlers[messageType]; exists {
		return i18n.NewError(ctx, msgs.MsgProcessorHandlerExists, messageType)
	}
	pm.handlers[messageType] = handler
	log.L(ctx).Infof("Registered handler for message type %s", messageType)
	return nil
}

// DeregisterHandler removes a handler so a replacement can be registered.
// Removal is deliberate and gated - there is no in-place overwrite.
func (pm *processorManager) DeregisterHandler(ctx context.Context, caller string, messageType string) error {
	if err := pm.permissions().Require(ctx, caller, components.PermissionHandlerAdmin); err != nil {
		return err
	}
	pm.lock.Lock()
	defer pm.lock.Unlock()
	if _, exists := pm.handlers[messageType]; !exists {
		return i18n.NewError(ctx, msgs.MsgProcessorNoHandler, messageType)
	}
	delete(pm.handlers, messageType)
	log.L(ctx).Infof("Deregistered handler for message type %s", messageType)
	return nil
}

func (pm *processorManager) Process(ctx context.Context, dbTX *gorm.DB, msg *components.Message) (*components.ProcessingResult, error) {
	pm.lock.RLock()
	handler := pm.handlers[msg.MessageType]
	pm.lock.RUnlock()
	if handler == nil {
		return nil, i18n.NewError(ctx, msgs.MsgProcessorNoHandler, msg.MessageType)
	}

	db := pm.db(ctx, dbTX)
	var existing int64
	err := db.
		Model(&persistedResult{}).
		Where("message_id = ?", msg.ID).
		Count(&existing).
		Error
	if err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, i18n.NewError(ctx, msgs.MsgProcessorAlreadyProcessed, msg.ID)
	}

	result := &persistedResult{
		MessageID:   msg.ID,
		ProcessTime: types.TimestampNow(),
	}
	handlerResult, handlerErr := handler(ctx, msg)
	if handlerErr != nil {
		result.ErrorMessage = handlerErr.Error()
		log.L(ctx).Warnf("Handler for message %s (type=%s) failed: %s", msg.ID, msg.MessageType, handlerErr)
	} else {
		result.Success = true
		result.Result = handlerResult
	}
	if err := db.Create(result).Error; err != nil {
		return nil, err
	}
	return result.toResult(), nil
}

// GetStatus returns the recorded processing result, or an empty default
// for a message that has never been processed.
func (pm *processorManager) GetStatus(ctx context.Context, messageID types.Bytes32) (*components.ProcessingResult, error) {
	var results []*persistedResult
	err := pm.p.DB().
		WithContext(ctx).
		Where("message_id = ?", messageID).
		Limit(1).
		Find(&results).
		Error
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return &components.ProcessingResult{MessageID: messageID}, nil
	}
	return results[0].toResult(), nil
}

func (pr *persistedResult) toResult() *components.ProcessingResult {
	return &components.ProcessingResult{
		MessageID:    pr.MessageID,
		Success:      pr.Success,
		Result:       pr.Result,
		ErrorMessage: pr.ErrorMessage,
		ProcessTime:  pr.ProcessTime,
	}
}

func (pm *processorManager) db(ctx context.Context, dbTX *gorm.DB) *gorm.DB {
	if dbTX != nil {
		return dbTX
	}
	return pm.p.DB().WithContext(ctx)
}
