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

// Package formats validates message payloads against the JSON Schema
// registered for each message type. Schemas are persisted so they survive
// restart, and compiled once into an in-memory registry on load.
package formats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/finmesh-network/finmesh/internal/components"
	"github.com/finmesh-network/finmesh/internal/msgs"
	"github.com/finmesh-network/finmesh/internal/persistence"
	"github.com/finmesh-network/finmesh/pkg/types"
	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

type Config struct {
	// Schemas seeded at startup, keyed by message type. Seeding an already
	// registered type is a no-op so restarts are clean.
	Schemas map[string]json.RawMessage `json:"schemas"`
}

type persistedSchema struct {
	MessageType string          `gorm:"column:message_type;primaryKey"`
	Schema      string          `gorm:"column:schema"`
	CreatedTime types.Timestamp `gorm:"column:created_time"`
}

func (persistedSchema) TableName() string {
	return "format_schemas"
}

type formatManager struct {
	bgCtx       context.Context
	conf        *Config
	p           persistence.Persistence
	permissions func() components.PermissionManager

	lock     sync.RWMutex
	compiled map[string]*jsonschema.Schema
}

func NewFormatManager(bgCtx context.Context, conf *Config) components.FormatValidator {
	return &formatManager{
		bgCtx:    bgCtx,
		conf:     conf,
		compiled: make(map[string]*jsonschema.Schema),
	}
}

func (fm *formatManager) PostInit(c components.AllComponents) error {
	fm.p = c.Persistence()
	fm.permissions = c.Permissions
	if err := fm.loadSchemas(fm.bgCtx); err != nil {
		return err
	}
	return fm.seedSchemas(fm.bgCtx)
}

func (fm *formatManager) Start() error { return nil }

func (fm *formatManager) Stop() {}

func (fm *formatManager) loadSchemas(ctx context.Context) error {
	var rows []*persistedSchema
	err := fm.p.DB().WithContext(ctx).Find(&rows).Error
	if err != nil {
		return err
	}
	for _, row := range rows {
		sch, err := compileSchema(ctx, row.MessageType, []byte(row.Schema))
		if err != nil {
			return err
		}
		fm.compiled[row.MessageType] = sch
	}
	log.L(ctx).Infof("Loaded %d format schemas", len(rows))
	return nil
}

func (fm *formatManager) seedSchemas(ctx context.Context) error {
	for messageType, schemaJSON := range fm.conf.Schemas {
		if _, exists := fm.compiled[messageType]; exists {
			continue
		}
		if err := fm.registerSchema(ctx, messageType, types.RawJSON(schemaJSON)); err != nil {
			return err
		}
	}
	return nil
}

func compileSchema(ctx context.Context, messageType string, schemaJSON []byte) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	url := fmt.Sprintf("finmesh://formats/%s.json", messageType)
	if err := c.AddResource(url, strings.NewReader(string(schemaJSON))); err != nil {
		return nil, i18n.WrapError(ctx, err, msgs.MsgFormatSchemaInvalid, messageType)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, i18n.WrapError(ctx, err, msgs.MsgFormatSchemaInvalid, messageType)
	}
	return sch, nil
}

func (fm *formatManager) RegisterSchema(ctx context.Context, caller string, messageType string, schema types.RawJSON) error {
	if err := fm.permissions().Require(ctx, caller, components.PermissionOperator); err != nil {
		return err
	}
	return fm.registerSchema(ctx, messageType, schema)
}

func (fm *formatManager) registerSchema(ctx context.Context, messageType string, schema types.RawJSON) error {
	sch, err := compileSchema(ctx, messageType, schema)
	if err != nil {
		return err
	}
	fm.lock.Lock()
	defer fm.lock.Unlock()
	if _, exists := fm.compiled[messageType]; exists {
		return i18n.NewError(ctx, msgs.MsgFormatSchemaExists, messageType)
	}
	err = fm.p.DB().
		WithContext(ctx).
		Create(&persistedSchema{
			MessageType: messageType,
			Schema:      schema.String(),
			CreatedTime: types.TimestampNow(),
		}).
		Error
	if err != nil {
		return err
	}
	fm.compiled[messageType] = sch
	log.L(ctx).Infof("Registered format schema for message type %s", messageType)
	return nil
}

func (fm *formatManager) Validate(ctx context.Context, messageType string, payload types.RawJSON) error {
	fm.lock.RLock()
	sch := fm.compiled[messageType]
	fm.lock.RUnlock()
	if sch == nil {
		return i18n.NewError(ctx, msgs.MsgFormatUnknownMessageType, messageType)
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return i18n.WrapError(ctx, err, msgs.MsgFormatPayloadNotJSON)
	}
	if err := sch.Validate(decoded); err != nil {
		return i18n.WrapError(ctx, err, msgs.MsgFormatPayloadInvalid, messageType)
	}
	return nil
}

func (fm *formatManager) ListMessageTypes(ctx context.Context) ([]string, error) {
	var rows []*persistedSchema
	err := fm.p.DB().
		WithContext(ctx).
		Order("message_type").
		Find(&rows).
		Error
	if err != nil {
		return nil, err
	}
	messageTypes := make([]string, len(rows))
	for i, row := range rows {
		messageTypes[i] = row.MessageType
	}
	return messageTypes, nil
}
