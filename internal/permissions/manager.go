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

// Package permissions holds the per-identity permission grants that gate
// every privileged operation on the node. Grants are persisted rows keyed
// by (identity, tag); granting and revoking is itself admin-gated, and the
// last admin grant can never be revoked.
package permissions

import (
	"context"

	"github.com/finmesh-network/finmesh/internal/components"
	"github.com/finmesh-network/finmesh/internal/msgs"
	"github.com/finmesh-network/finmesh/internal/persistence"
	"github.com/finmesh-network/finmesh/pkg/types"
	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GrantConfig struct {
	Identity    string   `json:"identity"`
	Permissions []string `json:"permissions"`
}

type Config struct {
	// Grants are seeded idempotently at startup, so a fresh node comes up
	// with its genesis admin already in place.
	Grants []GrantConfig `json:"grants"`
}

type permissionGrant struct {
	Identity  string          `gorm:"column:identity;primaryKey"`
	Tag       string          `gorm:"column:tag;primaryKey"`
	GrantTime types.Timestamp `gorm:"column:grant_time"`
}

func (permissionGrant) TableName() string {
	return "permissions"
}

type permissionManager struct {
	bgCtx context.Context
	conf  *Config
	p     persistence.Persistence
}

func NewPermissionManager(bgCtx context.Context, conf *Config) components.PermissionManager {
	return &permissionManager{
		bgCtx: bgCtx,
		conf:  conf,
	}
}

func (pm *permissionManager) PostInit(c components.AllComponents) error {
	pm.p = c.Persistence()
	return pm.seedGrants(pm.bgCtx)
}

func (pm *permissionManager) Start() error { return nil }

func (pm *permissionManager) Stop() {}

func (pm *permissionManager) seedGrants(ctx context.Context) error {
	for _, g := range pm.conf.Grants {
		for _, tag := range g.Permissions {
			if err := validateTag(ctx, tag); err != nil {
				return err
			}
			err := pm.p.DB().
				WithContext(ctx).
				Clauses(clause.OnConflict{DoNothing: true}).
				Create(&permissionGrant{
					Identity:  g.Identity,
					Tag:       tag,
					GrantTime: types.TimestampNow(),
				}).
				Error
			if err != nil {
				return err
			}
			log.L(ctx).Infof("Seeded permission grant %s -> %s", g.Identity, tag)
		}
	}
	return nil
}

func validateTag(ctx context.Context, tag string) error {
	for _, known := range components.AllPermissionTags() {
		if tag == known {
			return nil
		}
	}
	return i18n.NewError(ctx, msgs.MsgPermissionUnknownTag, tag)
}

func (pm *permissionManager) Require(ctx context.Context, identity, tag string) error {
	if identity == "" {
		return i18n.NewError(ctx, msgs.MsgPermissionNoIdentity)
	}
	if err := validateTag(ctx, tag); err != nil {
		return err
	}
	var count int64
	err := pm.p.DB().
		WithContext(ctx).
		Model(&permissionGrant{}).
		Where("identity = ?", identity).
		Where("tag = ?", tag).
		Count(&count).
		Error
	if err != nil {
		return err
	}
	if count == 0 {
		return i18n.NewError(ctx, msgs.MsgPermissionDenied, identity, tag)
	}
	return nil
}

func (pm *permissionManager) Grant(ctx context.Context, caller, identity, tag string) error {
	if err := pm.Require(ctx, caller, components.PermissionAdmin); err != nil {
		return err
	}
	if identity == "" {
		return i18n.NewError(ctx, msgs.MsgPermissionNoIdentity)
	}
	if err := validateTag(ctx, tag); err != nil {
		return err
	}
	err := pm.p.DB().
		WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&permissionGrant{
			Identity:  identity,
			Tag:       tag,
			GrantTime: types.TimestampNow(),
		}).
		Error
	if err == nil {
		log.L(ctx).Infof("Permission %s granted to %s by %s", tag, identity, caller)
	}
	return err
}

func (pm *permissionManager) Revoke(ctx context.Context, caller, identity, tag string) error {
	if err := pm.Require(ctx, caller, components.PermissionAdmin); err != nil {
		return err
	}
	if err := validateTag(ctx, tag); err != nil {
		return err
	}
	return pm.p.Transaction(ctx, func(dbTX *gorm.DB) error {
		if tag == components.PermissionAdmin {
			var admins int64
			err := dbTX.
				Model(&permissionGrant{}).
				Where("tag = ?", components.PermissionAdmin).
				Count(&admins).
				Error
			if err != nil {
				return err
			}
			if admins <= 1 {
				return i18n.NewError(ctx, msgs.MsgPermissionLastAdmin)
			}
		}
		err := dbTX.
			Where("identity = ?", identity).
			Where("tag = ?", tag).
			Delete(&permissionGrant{}).
			Error
		if err == nil {
			log.L(ctx).Infof("Permission %s revoked from %s by %s", tag, identity, caller)
		}
		return err
	})
}

func (pm *permissionManager) List(ctx context.Context, identity string) ([]string, error) {
	var grants []*permissionGrant
	err := pm.p.DB().
		WithContext(ctx).
		Where("identity = ?", identity).
		Order("tag").
		Find(&grants).
		Error
	if err != nil {
		return nil, err
	}
	tags := make([]string, len(grants))
	for i, g := range grants {
		tags[i] = g.Tag
	}
	return tags, nil
}
