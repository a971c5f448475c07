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

package liquidity

import (
	"context"
	"math/big"
	"testing"

	"github.com/finmesh-network/finmesh/internal/components"
	"github.com/finmesh-network/finmesh/internal/mocks/componentmocks"
	"github.com/finmesh-network/finmesh/internal/permissions"
	"github.com/finmesh-network/finmesh/internal/persistence"
	"github.com/finmesh-network/finmesh/pkg/types"
	"github.com/hyperledger/firefly-common/pkg/fftypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLiquidityManager(t *testing.T) (context.Context, components.LiquidityReserve, func()) {
	ctx := context.Background()
	p, pDone, err := persistence.NewUnitTestPersistence(ctx)
	require.NoError(t, err)

	pm := permissions.NewPermissionManager(ctx, &permissions.Config{
		Grants: []permissions.GrantConfig{
			{Identity: "admin1", Permissions: []string{components.PermissionAdmin}},
		},
	})
	c := &componentmocks.AllComponents{P: p, Perms: pm}
	require.NoError(t, pm.PostInit(c))

	lm := NewLiquidityManager(ctx)
	require.NoError(t, lm.PostInit(c))
	require.NoError(t, lm.Start())

	return ctx, lm, func() {
		lm.Stop()
		pDone()
	}
}

func newUSDPool(t *testing.T, ctx context.Context, lm components.LiquidityReserve, min, max int64) {
	require.NoError(t, lm.CreatePool(ctx, "admin1", &components.LiquidityPool{
		Asset:        "USD",
		MinLiquidity: fftypes.NewFFBigInt(min),
		MaxLiquidity: fftypes.NewFFBigInt(max),
		Active:       true,
	}))
}

func checkInvariant(t *testing.T, ctx context.Context, lm components.LiquidityReserve, asset string) *components.LiquidityPool {
	pool, err := lm.GetPool(ctx, asset)
	require.NoError(t, err)
	sum := new(big.Int).Add(pool.Available.Int(), pool.Locked.Int())
	assert.Zero(t, sum.Cmp(pool.Total.Int()), "available+locked != total")
	return pool
}

func TestCreatePool(t *testing.T) {
	ctx, lm, done := newTestLiquidityManager(t)
	defer done()

	newUSDPool(t, ctx, lm, 0, 0)

	err := lm.CreatePool(ctx, "admin1", &components.LiquidityPool{Asset: "USD"})
	assert.Regexp(t, "FM010701", err)

	err = lm.CreatePool(ctx, "rando", &components.LiquidityPool{Asset: "EUR"})
	assert.Regexp(t, "FM010300", err)

	_, err = lm.GetPool(ctx, "EUR")
	assert.Regexp(t, "FM010700", err)
}

func TestAddRemoveLiquidityShares(t *testing.T) {
	ctx, lm, done := newTestLiquidityManager(t)
	defer done()
	newUSDPool(t, ctx, lm, 0, 0)

	// first deposit mints 1:1
	shares, err := lm.AddLiquidity(ctx, "lp1", "USD", fftypes.NewFFBigInt(1000))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), shares.Int().Int64())

	// second provider gets pro-rata shares
	shares, err = lm.AddLiquidity(ctx, "lp2", "USD", fftypes.NewFFBigInt(500))
	require.NoError(t, err)
	assert.Equal(t, int64(500), shares.Int().Int64())

	pool := checkInvariant(t, ctx, lm, "USD")
	assert.Equal(t, int64(1500), pool.Total.Int().Int64())
	assert.Equal(t, int64(1500), pool.TotalShares.Int().Int64())

	held, err := lm.GetProviderShares(ctx, "USD", "lp1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), held.Int().Int64())

	// withdraw half of lp1's shares
	amount, err := lm.RemoveLiquidity(ctx, "lp1", "USD", fftypes.NewFFBigInt(500))
	require.NoError(t, err)
	assert.Equal(t, int64(500), amount.Int().Int64())

	pool = checkInvariant(t, ctx, lm, "USD")
	assert.Equal(t, int64(1000), pool.Total.Int().Int64())
	assert.Equal(t, int64(1000), pool.TotalShares.Int().Int64())

	// cannot burn more shares than held
	_, err = lm.RemoveLiquidity(ctx, "lp1", "USD", fftypes.NewFFBigInt(501))
	assert.Regexp(t, "FM010708", err)

	// zero amounts rejected everywhere
	_, err = lm.AddLiquidity(ctx, "lp1", "USD", fftypes.NewFFBigInt(0))
	assert.Regexp(t, "FM010709", err)
	_, err = lm.RemoveLiquidity(ctx, "lp1", "USD", nil)
	assert.Regexp(t, "FM010709", err)
}

func TestPoolBounds(t *testing.T) {
	ctx, lm, done := newTestLiquidityManager(t)
	defer done()
	newUSDPool(t, ctx, lm, 100, 1000)

	_, err := lm.AddLiquidity(ctx, "lp1", "USD", fftypes.NewFFBigInt(1001))
	assert.Regexp(t, "FM010704", err)

	_, err = lm.AddLiquidity(ctx, "lp1", "USD", fftypes.NewFFBigInt(1000))
	require.NoError(t, err)

	// withdrawal below the minimum is rejected
	_, err = lm.RemoveLiquidity(ctx, "lp1", "USD", fftypes.NewFFBigInt(950))
	assert.Regexp(t, "FM010705", err)

	// the minimum binds on a full burn too
	_, err = lm.RemoveLiquidity(ctx, "lp1", "USD", fftypes.NewFFBigInt(1000))
	assert.Regexp(t, "FM010705", err)
	pool := checkInvariant(t, ctx, lm, "USD")
	assert.Equal(t, int64(1000), pool.Total.Int().Int64())

	// withdrawal down to exactly the minimum is allowed
	amount, err := lm.RemoveLiquidity(ctx, "lp1", "USD", fftypes.NewFFBigInt(900))
	require.NoError(t, err)
	assert.Equal(t, int64(900), amount.Int().Int64())
	checkInvariant(t, ctx, lm, "USD")
}

func TestDepositIntoDrainedPool(t *testing.T) {
	ctx, lm, done := newTestLiquidityManager(t)
	defer done()
	newUSDPool(t, ctx, lm, 0, 0)

	_, err := lm.AddLiquidity(ctx, "lp1", "USD", fftypes.NewFFBigInt(500))
	require.NoError(t, err)

	// settlements pay the whole pool out, leaving lp1's shares as claims
	// on nothing
	s := types.RandBytes32()
	require.NoError(t, lm.Lock(ctx, nil, s, "USD", fftypes.NewFFBigInt(500)))
	require.NoError(t, lm.ConsumeLock(ctx, nil, s))
	pool := checkInvariant(t, ctx, lm, "USD")
	assert.Equal(t, int64(0), pool.Total.Int().Int64())
	assert.Equal(t, int64(500), pool.TotalShares.Int().Int64())

	// a fresh deposit into the drained pool mints 1:1
	shares, err := lm.AddLiquidity(ctx, "lp2", "USD", fftypes.NewFFBigInt(300))
	require.NoError(t, err)
	assert.Equal(t, int64(300), shares.Int().Int64())
	pool = checkInvariant(t, ctx, lm, "USD")
	assert.Equal(t, int64(300), pool.Total.Int().Int64())
	assert.Equal(t, int64(800), pool.TotalShares.Int().Int64())
}

func TestInactivePool(t *testing.T) {
	ctx, lm, done := newTestLiquidityManager(t)
	defer done()
	newUSDPool(t, ctx, lm, 0, 0)

	_, err := lm.AddLiquidity(ctx, "lp1", "USD", fftypes.NewFFBigInt(100))
	require.NoError(t, err)

	require.NoError(t, lm.SetPoolActive(ctx, "admin1", "USD", false))

	_, err = lm.AddLiquidity(ctx, "lp1", "USD", fftypes.NewFFBigInt(100))
	assert.Regexp(t, "FM010702", err)

	err = lm.Lock(ctx, nil, types.RandBytes32(), "USD", fftypes.NewFFBigInt(10))
	assert.Regexp(t, "FM010702", err)

	// providers can still exit an inactive pool
	_, err = lm.RemoveLiquidity(ctx, "lp1", "USD", fftypes.NewFFBigInt(100))
	require.NoError(t, err)

	err = lm.SetPoolActive(ctx, "admin1", "GBP", true)
	assert.Regexp(t, "FM010700", err)
}

func TestLockReleaseConsume(t *testing.T) {
	ctx, lm, done := newTestLiquidityManager(t)
	defer done()
	newUSDPool(t, ctx, lm, 0, 0)
	_, err := lm.AddLiquidity(ctx, "lp1", "USD", fftypes.NewFFBigInt(1000))
	require.NoError(t, err)

	s1 := types.RandBytes32()
	require.NoError(t, lm.Lock(ctx, nil, s1, "USD", fftypes.NewFFBigInt(400)))

	pool := checkInvariant(t, ctx, lm, "USD")
	assert.Equal(t, int64(600), pool.Available.Int().Int64())
	assert.Equal(t, int64(400), pool.Locked.Int().Int64())

	// a second lock for the same settlement is rejected without moving funds
	err = lm.Lock(ctx, nil, s1, "USD", fftypes.NewFFBigInt(100))
	assert.Regexp(t, "FM010706", err)
	pool = checkInvariant(t, ctx, lm, "USD")
	assert.Equal(t, int64(400), pool.Locked.Int().Int64())

	// locked funds cannot be withdrawn
	_, err = lm.RemoveLiquidity(ctx, "lp1", "USD", fftypes.NewFFBigInt(700))
	assert.Regexp(t, "FM010703", err)

	// release returns the funds to available
	require.NoError(t, lm.Release(ctx, nil, s1))
	pool = checkInvariant(t, ctx, lm, "USD")
	assert.Equal(t, int64(1000), pool.Available.Int().Int64())
	assert.Equal(t, int64(0), pool.Locked.Int().Int64())

	// a released lock is gone
	err = lm.Release(ctx, nil, s1)
	assert.Regexp(t, "FM010710", err)

	// consume pays the funds out of the pool entirely
	s2 := types.RandBytes32()
	require.NoError(t, lm.Lock(ctx, nil, s2, "USD", fftypes.NewFFBigInt(250)))
	require.NoError(t, lm.ConsumeLock(ctx, nil, s2))
	pool = checkInvariant(t, ctx, lm, "USD")
	assert.Equal(t, int64(750), pool.Total.Int().Int64())
	assert.Equal(t, int64(750), pool.Available.Int().Int64())
	assert.Equal(t, int64(0), pool.Locked.Int().Int64())

	err = lm.ConsumeLock(ctx, nil, s2)
	assert.Regexp(t, "FM010710", err)
}

func TestLockInsufficientAvailable(t *testing.T) {
	ctx, lm, done := newTestLiquidityManager(t)
	defer done()
	newUSDPool(t, ctx, lm, 0, 0)
	_, err := lm.AddLiquidity(ctx, "lp1", "USD", fftypes.NewFFBigInt(100))
	require.NoError(t, err)

	err = lm.Lock(ctx, nil, types.RandBytes32(), "USD", fftypes.NewFFBigInt(101))
	assert.Regexp(t, "FM010703", err)
	pool := checkInvariant(t, ctx, lm, "USD")
	assert.Equal(t, int64(100), pool.Available.Int().Int64())
}
