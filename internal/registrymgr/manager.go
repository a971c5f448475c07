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

// Package registrymgr implements the target directory: the registry of
// addressable delivery endpoints per network. A target is keyed by
// (address, network) and can be registered at most once; only registered
// and active targets are valid delivery destinations.
package registrymgr

import (
	"context"

	"github.com/finmesh-network/finmesh/internal/cache"
	"github.com/finmesh-network/finmesh/internal/components"
	"github.com/finmesh-network/finmesh/internal/confutil"
	"github.com/finmesh-network/finmesh/internal/msgs"
	"github.com/finmesh-network/finmesh/internal/persistence"
	"github.com/finmesh-network/finmesh/pkg/types"
	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"gorm.io/gorm"
)

type Config struct {
	Cache cache.Config `json:"cache"`
}

var CacheDefaults = &cache.Config{
	Capacity: confutil.P(1000),
}

type persistedTarget struct {
	Address        string          `gorm:"column:address;primaryKey"`
	Network        string          `gorm:"column:network;primaryKey"`
	Active         bool            `gorm:"column:active"`
	RegisteredTime types.Timestamp `gorm:"column:registered_time"`
}

func (persistedTarget) TableName() string {
	return "targets"
}

type targetKey struct {
	address string
	network string
}

type registryManager struct {
	bgCtx       context.Context
	conf        *Config
	p           persistence.Persistence
	permissions func() components.PermissionManager
	targetCache cache.Cache[targetKey, *components.Target]
}

func NewRegistryManager(bgCtx context.Context, conf *Config) components.TargetDirectory {
	return &registryManager{
		bgCtx:       bgCtx,
		conf:        conf,
		targetCache: cache.NewCache[targetKey, *components.Target](&conf.Cache, CacheDefaults),
	}
}

func (rm *registryManager) PostInit(c components.AllComponents) error {
	rm.p = c.Persistence()
	rm.permissions = c.Permissions
	return nil
}

func (rm *registryManager) Start() error { return nil }

func (rm *registryManager) Stop() {}

func (rm *registryManager) RegisterTarget(ctx context.Context, caller string, target *components.Target) error {
	if err := rm.permissions().Require(ctx, caller, components.PermissionOperator); err != nil {
		return err
	}
	if target == nil || target.Address == "" || target.Network == "" {
		return i18n.NewError(ctx, msgs.MsgTargetInvalid)
	}
	pt := &persistedTarget{
		Address:        target.Address,
		Network:        target.Network,
		Active:         target.Active,
		RegisteredTime: types.TimestampNow(),
	}
	err := rm.p.Transaction(ctx, func(dbTX *gorm.DB) error {
		var existing int64
		err := dbTX.
			Model(&persistedTarget{}).
			Where("address = ?", target.Address).
			Where("network = ?", target.Network).
			Count(&existing).
			Error
		if err != nil {
			return err
		}
		if existing > 0 {
			return i18n.NewError(ctx, msgs.MsgTargetAlreadyExists, target.Address, target.Network)
		}
		return dbTX.Create(pt).Error
	})
	if err == nil {
		target.RegisteredTime = pt.RegisteredTime
		log.L(ctx).Infof("Registered target %s on network %s (active=%t)", target.Address, target.Network, target.Active)
	}
	return err
}

func (rm *registryManager) SetTargetActive(ctx context.Context, caller string, address, network string, active bool) error {
	if err := rm.permissions().Require(ctx, caller, components.PermissionOperator); err != nil {
		return err
	}
	res := rm.p.DB().
		WithContext(ctx).
		Model(&persistedTarget{}).
		Where("address = ?", address).
		Where("network = ?", network).
		Update("active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return i18n.NewError(ctx, msgs.MsgTargetNotFound, address, network)
	}
	rm.targetCache.Delete(targetKey{address: address, network: network})
	return nil
}

// getTarget returns nil (no error) for an unregistered target. A non-nil
// dbTX keeps the lookup on the caller's transaction - on SQLite the pool
// holds a single connection, so a fresh query while a transaction is open
// would block.
func (rm *registryManager) getTarget(ctx context.Context, dbTX *gorm.DB, address, network string) (*components.Target, error) {
	key := targetKey{address: address, network: network}
	if t, ok := rm.targetCache.Get(key); ok {
		return t, nil
	}
	db := dbTX
	if db == nil {
		db = rm.p.DB().WithContext(ctx)
	}
	var pts []*persistedTarget
	err := db.
		Where("address = ?", address).
		Where("network = ?", network).
		Limit(1).
		Find(&pts).
		Error
	if err != nil || len(pts) == 0 {
		return nil, err
	}
	t := &components.Target{
		Address:        pts[0].Address,
		Network:        pts[0].Network,
		Active:         pts[0].Active,
		RegisteredTime: pts[0].RegisteredTime,
	}
	rm.targetCache.Set(key, t)
	return t, nil
}

func (rm *registryManager) GetTarget(ctx context.Context, address, network string) (*components.Target, error) {
	t, err := rm.getTarget(ctx, nil, address, network)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, i18n.NewError(ctx, msgs.MsgTargetNotFound, address, network)
	}
	return t, nil
}

// IsValidTarget reports whether (address, network) is a registered, active
// delivery destination. An unregistered target is not an error here - the
// caller decides whether that fails the operation.
func (rm *registryManager) IsValidTarget(ctx context.Context, dbTX *gorm.DB, address, network string) (bool, error) {
	t, err := rm.getTarget(ctx, dbTX, address, network)
	if err != nil {
		return false, err
	}
	return t != nil && t.Active, nil
}
