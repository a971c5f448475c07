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

	"github.com/finmesh-network/finmesh/pkg/types"
	"github.com/hyperledger/firefly-common/pkg/fftypes"
	"gorm.io/gorm"
)

// LiquidityPool is the reserve for one asset. The balances always satisfy
// available + locked == total, and every mutation is all-or-nothing.
type LiquidityPool struct {
	Asset        string            `json:"asset"`
	Total        *fftypes.FFBigInt `json:"total"`
	Available    *fftypes.FFBigInt `json:"available"`
	Locked       *fftypes.FFBigInt `json:"locked"`
	TotalShares  *fftypes.FFBigInt `json:"totalShares"`
	MinLiquidity *fftypes.FFBigInt `json:"minLiquidity"`
	MaxLiquidity *fftypes.FFBigInt `json:"maxLiquidity"`
	Active       bool              `json:"active"`
	CreatedTime  types.Timestamp   `json:"createdTime"`
}

// LiquidityLock earmarks part of a pool for one settlement. At most one
// lock exists per settlement id.
type LiquidityLock struct {
	SettlementID types.Bytes32     `json:"settlementId"`
	Asset        string            `json:"asset"`
	Amount       *fftypes.FFBigInt `json:"amount"`
	LockTime     types.Timestamp   `json:"lockTime"`
}

type LiquidityReserve interface {
	ManagerLifecycle
	CreatePool(ctx context.Context, caller string, pool *LiquidityPool) error
	SetPoolActive(ctx context.Context, caller string, asset string, active bool) error
	GetPool(ctx context.Context, asset string) (*LiquidityPool, error)

	// AddLiquidity deposits into the pool and returns the shares minted for
	// the provider, pro-rata against the pool total.
	AddLiquidity(ctx context.Context, provider string, asset string, amount *fftypes.FFBigInt) (shares *fftypes.FFBigInt, err error)
	// RemoveLiquidity burns provider shares and returns the amount paid
	// out. Only available (unlocked) liquidity can be withdrawn.
	RemoveLiquidity(ctx context.Context, provider string, asset string, shares *fftypes.FFBigInt) (amount *fftypes.FFBigInt, err error)
	GetProviderShares(ctx context.Context, asset, provider string) (*fftypes.FFBigInt, error)

	// Lock moves amount from available to locked, keyed by settlement id.
	Lock(ctx context.Context, dbTX *gorm.DB, settlementID types.Bytes32, asset string, amount *fftypes.FFBigInt) error
	// Release returns a lock's amount to available (settlement cancelled or
	// failed before payout).
	Release(ctx context.Context, dbTX *gorm.DB, settlementID types.Bytes32) error
	// ConsumeLock pays the locked amount out of the pool entirely, reducing
	// locked and total together.
	ConsumeLock(ctx context.Context, dbTX *gorm.DB, settlementID types.Bytes32) error
}
