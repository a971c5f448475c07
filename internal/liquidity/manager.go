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

// Package liquidity manages the per-asset reserve pools that fund
// settlements. Providers hold pro-rata shares of a pool; settlements
// earmark funds with locks keyed by settlement id. Every balance mutation
// is all-or-nothing and preserves available + locked == total.
package liquidity

import (
	"context"
	"math/big"

	"github.com/finmesh-network/finmesh/internal/components"
	"github.com/finmesh-network/finmesh/internal/msgs"
	"github.com/finmesh-network/finmesh/internal/persistence"
	"github.com/finmesh-network/finmesh/pkg/types"
	"github.com/hyperledger/firefly-common/pkg/fftypes"
	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"gorm.io/gorm"
)

type persistedPool struct {
	Asset        string            `gorm:"column:asset;primaryKey"`
	Total        *fftypes.FFBigInt `gorm:"column:total"`
	Available    *fftypes.FFBigInt `gorm:"column:available"`
	Locked       *fftypes.FFBigInt `gorm:"column:locked"`
	TotalShares  *fftypes.FFBigInt `gorm:"column:total_shares"`
	MinLiquidity *fftypes.FFBigInt `gorm:"column:min_liquidity"`
	MaxLiquidity *fftypes.FFBigInt `gorm:"column:max_liquidity"`
	Active       bool              `gorm:"column:active"`
	CreatedTime  types.Timestamp   `gorm:"column:created_time"`
}

func (persistedPool) TableName() string {
	return "liquidity_pools"
}

type providerShare struct {
	Asset    string            `gorm:"column:asset;primaryKey"`
	Provider string            `gorm:"column:provider;primaryKey"`
	Shares   *fftypes.FFBigInt `gorm:"column:shares"`
}

func (providerShare) TableName() string {
	return "provider_shares"
}

type persistedLock struct {
	SettlementID types.Bytes32     `gorm:"column:settlement_id;primaryKey"`
	Asset        string            `gorm:"column:asset"`
	Amount       *fftypes.FFBigInt `gorm:"column:amount"`
	LockTime     types.Timestamp   `gorm:"column:lock_time"`
}

func (persistedLock) TableName() string {
	return "liquidity_locks"
}

type liquidityManager struct {
	bgCtx       context.Context
	p           persistence.Persistence
	permissions func() components.PermissionManager
}

func NewLiquidityManager(bgCtx context.Context) components.LiquidityReserve {
	return &liquidityManager{bgCtx: bgCtx}
}

func (lm *liquidityManager) PostInit(c components.AllComponents) error {
	lm.p = c.Persistence()
	lm.permissions = c.Permissions
	return nil
}

func (lm *liquidityManager) Start() error { return nil }

func (lm *liquidityManager) Stop() {}

func (lm *liquidityManager) CreatePool(ctx context.Context, caller string, pool *components.LiquidityPool) error {
	if err := lm.permissions().Require(ctx, caller, components.PermissionAdmin); err != nil {
		return err
	}
	return lm.p.Transaction(ctx, func(dbTX *gorm.DB) error {
		var existing int64
		err := dbTX.
			Model(&persistedPool{}).
			Where("asset = ?", pool.Asset).
			Count(&existing).
			Error
		if err != nil {
			return err
		}
		if existing > 0 {
			return i18n.NewError(ctx, msgs.MsgLiquidityPoolExists, pool.Asset)
		}
		pp := &persistedPool{
			Asset:        pool.Asset,
			Total:        fftypes.NewFFBigInt(0),
			Available:    fftypes.NewFFBigInt(0),
			Locked:       fftypes.NewFFBigInt(0),
			TotalShares:  fftypes.NewFFBigInt(0),
			MinLiquidity: orZero(pool.MinLiquidity),
			MaxLiquidity: orZero(pool.MaxLiquidity),
			Active:       pool.Active,
			CreatedTime:  types.TimestampNow(),
		}
		if err := dbTX.Create(pp).Error; err != nil {
			return err
		}
		log.L(ctx).Infof("Created liquidity pool for asset %s (min=%s max=%s)", pool.Asset, pp.MinLiquidity.Int(), pp.MaxLiquidity.Int())
		return nil
	})
}

func (lm *liquidityManager) SetPoolActive(ctx context.Context, caller string, asset string, active bool) error {
	if err := lm.permissions().Require(ctx, caller, components.PermissionAdmin); err != nil {
		return err
	}
	res := lm.p.DB().
		WithContext(ctx).
		Model(&persistedPool{}).
		Where("asset = ?", asset).
		Update("active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return i18n.NewError(ctx, msgs.MsgLiquidityPoolNotFound, asset)
	}
	return nil
}

func (lm *liquidityManager) GetPool(ctx context.Context, asset string) (*components.LiquidityPool, error) {
	pp, err := getPool(ctx, lm.p.DB().WithContext(ctx), asset)
	if err != nil {
		return nil, err
	}
	return &components.LiquidityPool{
		Asset:        pp.Asset,
		Total:        pp.Total,
		Available:    pp.Available,
		Locked:       pp.Locked,
		TotalShares:  pp.TotalShares,
		MinLiquidity: pp.MinLiquidity,
		MaxLiquidity: pp.MaxLiquidity,
		Active:       pp.Active,
		CreatedTime:  pp.CreatedTime,
	}, nil
}

func getPool(ctx context.Context, db *gorm.DB, asset string) (*persistedPool, error) {
	var pools []*persistedPool
	err := db.
		Where("asset = ?", asset).
		Limit(1).
		Find(&pools).
		Error
	if err != nil {
		return nil, err
	}
	if len(pools) == 0 {
		return nil, i18n.NewError(ctx, msgs.MsgLiquidityPoolNotFound, asset)
	}
	return pools[0], nil
}

func (lm *liquidityManager) AddLiquidity(ctx context.Context, provider string, asset string, amount *fftypes.FFBigInt) (*fftypes.FFBigInt, error) {
	if err := requirePositive(ctx, amount); err != nil {
		return nil, err
	}
	var shares *big.Int
	err := lm.p.Transaction(ctx, func(dbTX *gorm.DB) error {
		pool, err := getPool(ctx, dbTX, asset)
		if err != nil {
			return err
		}
		if !pool.Active {
			return i18n.NewError(ctx, msgs.MsgLiquidityPoolInactive, asset)
		}
		newTotal := new(big.Int).Add(pool.Total.Int(), amount.Int())
		if pool.MaxLiquidity.Int().Sign() > 0 && newTotal.Cmp(pool.MaxLiquidity.Int()) > 0 {
			return i18n.NewError(ctx, msgs.MsgLiquidityMaxExceeded, asset, pool.MaxLiquidity.Int())
		}

		// first deposit mints shares 1:1, later deposits pro-rata. A pool
		// whose total has been fully paid out by settlements also mints 1:1:
		// the surviving shares are claims on nothing, so the fresh deposit
		// cannot be priced against them.
		if pool.TotalShares.Int().Sign() == 0 || pool.Total.Int().Sign() == 0 {
			shares = new(big.Int).Set(amount.Int())
		} else {
			shares = new(big.Int).Mul(amount.Int(), pool.TotalShares.Int())
			shares.Div(shares, pool.Total.Int())
		}

		err = updatePool(dbTX, asset, map[string]any{
			"total":        bi(newTotal),
			"available":    bi(new(big.Int).Add(pool.Available.Int(), amount.Int())),
			"total_shares": bi(new(big.Int).Add(pool.TotalShares.Int(), shares)),
		})
		if err != nil {
			return err
		}
		return adjustShares(ctx, dbTX, asset, provider, shares)
	})
	if err != nil {
		return nil, err
	}
	log.L(ctx).Infof("Provider %s deposited %s into pool %s for %s shares", provider, amount.Int(), asset, shares)
	return bi(shares), nil
}

func (lm *liquidityManager) RemoveLiquidity(ctx context.Context, provider string, asset string, sharesToBurn *fftypes.FFBigInt) (*fftypes.FFBigInt, error) {
	if err := requirePositive(ctx, sharesToBurn); err != nil {
		return nil, err
	}
	var amount *big.Int
	err := lm.p.Transaction(ctx, func(dbTX *gorm.DB) error {
		pool, err := getPool(ctx, dbTX, asset)
		if err != nil {
			return err
		}
		held, err := getShares(ctx, dbTX, asset, provider)
		if err != nil {
			return err
		}
		if held.Cmp(sharesToBurn.Int()) < 0 {
			return i18n.NewError(ctx, msgs.MsgLiquidityInsufficientShares, held, sharesToBurn.Int())
		}

		amount = new(big.Int).Mul(sharesToBurn.Int(), pool.Total.Int())
		amount.Div(amount, pool.TotalShares.Int())

		if amount.Cmp(pool.Available.Int()) > 0 {
			return i18n.NewError(ctx, msgs.MsgLiquidityInsufficient, asset, pool.Available.Int(), amount)
		}
		// the configured minimum binds on every removal, a full burn included
		newTotal := new(big.Int).Sub(pool.Total.Int(), amount)
		if pool.MinLiquidity.Int().Sign() > 0 && newTotal.Cmp(pool.MinLiquidity.Int()) < 0 {
			return i18n.NewError(ctx, msgs.MsgLiquidityBelowMinimum, asset, pool.MinLiquidity.Int())
		}

		err = updatePool(dbTX, asset, map[string]any{
			"total":        bi(newTotal),
			"available":    bi(new(big.Int).Sub(pool.Available.Int(), amount)),
			"total_shares": bi(new(big.Int).Sub(pool.TotalShares.Int(), sharesToBurn.Int())),
		})
		if err != nil {
			return err
		}
		return adjustShares(ctx, dbTX, asset, provider, new(big.Int).Neg(sharesToBurn.Int()))
	})
	if err != nil {
		return nil, err
	}
	log.L(ctx).Infof("Provider %s burned %s shares of pool %s for %s", provider, sharesToBurn.Int(), asset, amount)
	return bi(amount), nil
}

func (lm *liquidityManager) GetProviderShares(ctx context.Context, asset, provider string) (*fftypes.FFBigInt, error) {
	held, err := getShares(ctx, lm.p.DB().WithContext(ctx), asset, provider)
	if err != nil {
		return nil, err
	}
	return bi(held), nil
}

// Lock earmarks available liquidity for one settlement. At most one lock
// may exist per settlement id, so a duplicated initiation cannot
// double-reserve funds.
func (lm *liquidityManager) Lock(ctx context.Context, dbTX *gorm.DB, settlementID types.Bytes32, asset string, amount *fftypes.FFBigInt) error {
	if err := requirePositive(ctx, amount); err != nil {
		return err
	}
	return lm.inTransaction(ctx, dbTX, func(dbTX *gorm.DB) error {
		pool, err := getPool(ctx, dbTX, asset)
		if err != nil {
			return err
		}
		if !pool.Active {
			return i18n.NewError(ctx, msgs.MsgLiquidityPoolInactive, asset)
		}
		var existing int64
		err = dbTX.
			Model(&persistedLock{}).
			Where("settlement_id = ?", settlementID).
			Count(&existing).
			Error
		if err != nil {
			return err
		}
		if existing > 0 {
			return i18n.NewError(ctx, msgs.MsgLiquidityLockExists, settlementID)
		}
		if pool.Available.Int().Cmp(amount.Int()) < 0 {
			return i18n.NewError(ctx, msgs.MsgLiquidityInsufficient, asset, pool.Available.Int(), amount.Int())
		}
		err = dbTX.Create(&persistedLock{
			SettlementID: settlementID,
			Asset:        asset,
			Amount:       amount,
			LockTime:     types.TimestampNow(),
		}).Error
		if err != nil {
			return err
		}
		return updatePool(dbTX, asset, map[string]any{
			"available": bi(new(big.Int).Sub(pool.Available.Int(), amount.Int())),
			"locked":    bi(new(big.Int).Add(pool.Locked.Int(), amount.Int())),
		})
	})
}

// Release returns a lock's funds to available, for a settlement that was
// cancelled or failed before payout.
func (lm *liquidityManager) Release(ctx context.Context, dbTX *gorm.DB, settlementID types.Bytes32) error {
	return lm.inTransaction(ctx, dbTX, func(dbTX *gorm.DB) error {
		lock, pool, err := takeLock(ctx, dbTX, settlementID)
		if err != nil {
			return err
		}
		return updatePool(dbTX, pool.Asset, map[string]any{
			"available": bi(new(big.Int).Add(pool.Available.Int(), lock.Amount.Int())),
			"locked":    bi(new(big.Int).Sub(pool.Locked.Int(), lock.Amount.Int())),
		})
	})
}

// ConsumeLock pays the locked funds out of the pool entirely, reducing
// locked and total together so available + locked == total still holds.
func (lm *liquidityManager) ConsumeLock(ctx context.Context, dbTX *gorm.DB, settlementID types.Bytes32) error {
	return lm.inTransaction(ctx, dbTX, func(dbTX *gorm.DB) error {
		lock, pool, err := takeLock(ctx, dbTX, settlementID)
		if err != nil {
			return err
		}
		return updatePool(dbTX, pool.Asset, map[string]any{
			"locked": bi(new(big.Int).Sub(pool.Locked.Int(), lock.Amount.Int())),
			"total":  bi(new(big.Int).Sub(pool.Total.Int(), lock.Amount.Int())),
		})
	})
}

// takeLock loads and deletes the lock row for a settlement, returning it
// with its pool.
func takeLock(ctx context.Context, dbTX *gorm.DB, settlementID types.Bytes32) (*persistedLock, *persistedPool, error) {
	var locks []*persistedLock
	err := dbTX.
		Where("settlement_id = ?", settlementID).
		Limit(1).
		Find(&locks).
		Error
	if err != nil {
		return nil, nil, err
	}
	if len(locks) == 0 {
		return nil, nil, i18n.NewError(ctx, msgs.MsgLiquidityNoLock, settlementID)
	}
	pool, err := getPool(ctx, dbTX, locks[0].Asset)
	if err != nil {
		return nil, nil, err
	}
	err = dbTX.
		Where("settlement_id = ?", settlementID).
		Delete(&persistedLock{}).
		Error
	if err != nil {
		return nil, nil, err
	}
	return locks[0], pool, nil
}

func (lm *liquidityManager) inTransaction(ctx context.Context, dbTX *gorm.DB, fn func(dbTX *gorm.DB) error) error {
	if dbTX != nil {
		return fn(dbTX)
	}
	return lm.p.Transaction(ctx, fn)
}

func updatePool(dbTX *gorm.DB, asset string, updates map[string]any) error {
	return dbTX.
		Model(&persistedPool{}).
		Where("asset = ?", asset).
		Updates(updates).
		Error
}

func getShares(ctx context.Context, db *gorm.DB, asset, provider string) (*big.Int, error) {
	var rows []*providerShare
	err := db.
		Where("asset = ?", asset).
		Where("provider = ?", provider).
		Limit(1).
		Find(&rows).
		Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return new(big.Int), nil
	}
	return rows[0].Shares.Int(), nil
}

func adjustShares(ctx context.Context, dbTX *gorm.DB, asset, provider string, delta *big.Int) error {
	held, err := getShares(ctx, dbTX, asset, provider)
	if err != nil {
		return err
	}
	newShares := new(big.Int).Add(held, delta)
	if held.Sign() == 0 {
		return dbTX.Create(&providerShare{
			Asset:    asset,
			Provider: provider,
			Shares:   bi(newShares),
		}).Error
	}
	return dbTX.
		Model(&providerShare{}).
		Where("asset = ?", asset).
		Where("provider = ?", provider).
		Update("shares", bi(newShares)).
		Error
}

func requirePositive(ctx context.Context, amount *fftypes.FFBigInt) error {
	if amount == nil || amount.Int().Sign() <= 0 {
		return i18n.NewError(ctx, msgs.MsgLiquidityZeroAmount)
	}
	return nil
}

func orZero(v *fftypes.FFBigInt) *fftypes.FFBigInt {
	if v == nil {
		return fftypes.NewFFBigInt(0)
	}
	return v
}

func bi(v *big.Int) *fftypes.FFBigInt {
	return (*fftypes.FFBigInt)(v)
}
