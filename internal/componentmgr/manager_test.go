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

package componentmgr

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/finmesh-network/finmesh/internal/components"
	"github.com/finmesh-network/finmesh/internal/confutil"
	"github.com/finmesh-network/finmesh/internal/formats"
	"github.com/finmesh-network/finmesh/internal/httpserver"
	"github.com/finmesh-network/finmesh/internal/permissions"
	"github.com/finmesh-network/finmesh/internal/persistence"
	"github.com/finmesh-network/finmesh/internal/processor"
	"github.com/finmesh-network/finmesh/internal/rpcserver"
	"github.com/finmesh-network/finmesh/pkg/types"
	"github.com/go-resty/resty/v2"
	"github.com/hyperledger/firefly-common/pkg/fftypes"
	"github.com/hyperledger/firefly-signer/pkg/rpcbackend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPaymentSchema = `{
	"type": "object",
	"required": ["amount", "currency"],
	"properties": {
		"amount":   {"type": "integer", "minimum": 1},
		"currency": {"type": "string"}
	}
}`

func newTestNode(t *testing.T) (ComponentManager, string, func()) {
	conf := &Config{
		NodeName:     "node1",
		LocalNetwork: "local",
		DB: persistence.Config{
			Type: persistence.TypeSQLite,
			SQLite: persistence.SQLiteConfig{
				SQLDBConfig: persistence.SQLDBConfig{
					URI:           ":memory:",
					AutoMigrate:   confutil.P(true),
					MigrationsDir: "../../db/migrations/sqlite",
				},
			},
		},
		RPCServer: rpcserver.Config{
			HTTP: rpcserver.HTTPEndpointConfig{
				Config: httpserver.Config{
					Address: confutil.P("127.0.0.1"),
					Port:    confutil.P(0),
				},
			},
			WS: rpcserver.WSEndpointConfig{Disabled: true},
		},
		Permissions: permissions.Config{
			Grants: []permissions.GrantConfig{
				{Identity: "admin1", Permissions: []string{components.PermissionAdmin}},
				{Identity: "op1", Permissions: []string{components.PermissionOperator}},
				{Identity: "handler1", Permissions: []string{components.PermissionHandlerAdmin}},
			},
		},
		Formats: formats.Config{
			Schemas: map[string]json.RawMessage{
				"payment.v1": json.RawMessage(testPaymentSchema),
			},
		},
	}

	cm := NewComponentManager(context.Background(), conf)
	require.NoError(t, cm.Init())
	require.NoError(t, cm.Start())

	require.NoError(t, cm.Processor().RegisterHandler(context.Background(), "handler1", "payment.v1",
		func(ctx context.Context, msg *components.Message) (types.RawJSON, error) {
			return types.RawJSON(`{"ok":true}`), nil
		}))

	url := fmt.Sprintf("http://%s", cm.RPCServer().HTTPAddr())
	return cm, url, cm.Stop
}

func rpcCall(t *testing.T, url string, result interface{}, method string, params ...interface{}) *rpcbackend.RPCError {
	if params == nil {
		params = []interface{}{}
	}
	var rpcRes rpcbackend.RPCResponse
	res, err := resty.New().R().
		SetBody(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      "1",
			"method":  method,
			"params":  params,
		}).
		SetResult(&rpcRes).
		SetError(&rpcRes).
		Post(url)
	require.NoError(t, err)
	if rpcRes.Error != nil {
		assert.False(t, res.IsSuccess())
		return rpcRes.Error
	}
	require.True(t, res.IsSuccess())
	if result != nil {
		require.NoError(t, json.Unmarshal(rpcRes.Result.Bytes(), result))
	}
	return nil
}

func TestNodeMessageLifecycleOverRPC(t *testing.T) {
	_, url, done := newTestNode(t)
	defer done()

	var ok bool
	rpcErr := rpcCall(t, url, &ok, "fm_registerTarget", "op1",
		&components.Target{Address: "carol", Network: "local", Active: true})
	require.Nil(t, rpcErr)

	var messageTypes []string
	rpcErr = rpcCall(t, url, &messageTypes, "fm_listMessageTypes")
	require.Nil(t, rpcErr)
	assert.Equal(t, []string{"payment.v1"}, messageTypes)

	sub := &components.Submission{
		MessageType:        "payment.v1",
		Payload:            types.RawJSON(`{"amount":400,"currency":"USD"}`),
		Destination:        "carol",
		DestinationNetwork: "local",
		Value:              fftypes.NewFFBigInt(100),
	}

	var quote components.FeeQuote
	rpcErr = rpcCall(t, url, &quote, "fm_quoteFee", sub)
	require.Nil(t, rpcErr)
	assert.Equal(t, "15", quote.Total().String()) // base 5 + local delivery 10

	var submitRes components.SubmitResult
	rpcErr = rpcCall(t, url, &submitRes, "fm_sendMessage", "alice", sub)
	require.Nil(t, rpcErr)
	assert.True(t, submitRes.Delivery.Completed)
	assert.Equal(t, "85", submitRes.Refund.Int().String())

	var msg components.Message
	rpcErr = rpcCall(t, url, &msg, "fm_getMessage", submitRes.MessageID)
	require.Nil(t, rpcErr)
	assert.Equal(t, components.MessageStatusProcessed, msg.Status.V())

	var procRes components.ProcessingResult
	rpcErr = rpcCall(t, url, &procRes, "fm_getProcessingResult", submitRes.MessageID)
	require.Nil(t, rpcErr)
	assert.True(t, procRes.Success)

	// no identity at the transport layer, so bad callers surface as
	// permission errors from the components
	rpcErr = rpcCall(t, url, nil, "fm_registerTarget", "mallory",
		&components.Target{Address: "eve", Network: "local", Active: true})
	require.NotNil(t, rpcErr)
	assert.Regexp(t, "FM010300", rpcErr.Message)
}

func TestNodeLiquidityAndPermissionsOverRPC(t *testing.T) {
	_, url, done := newTestNode(t)
	defer done()

	var ok bool
	rpcErr := rpcCall(t, url, &ok, "fm_createPool", "admin1",
		&components.LiquidityPool{Asset: "USD", Active: true})
	require.Nil(t, rpcErr)

	var shares fftypes.FFBigInt
	rpcErr = rpcCall(t, url, &shares, "fm_addLiquidity", "lp1", "USD", fftypes.NewFFBigInt(1000))
	require.Nil(t, rpcErr)
	assert.Equal(t, "1000", shares.Int().String())

	var pool components.LiquidityPool
	rpcErr = rpcCall(t, url, &pool, "fm_getPool", "USD")
	require.Nil(t, rpcErr)
	assert.Equal(t, "1000", pool.Available.Int().String())

	var amount fftypes.FFBigInt
	rpcErr = rpcCall(t, url, &amount, "fm_removeLiquidity", "lp1", "USD", fftypes.NewFFBigInt(400))
	require.Nil(t, rpcErr)
	assert.Equal(t, "400", amount.Int().String())

	rpcErr = rpcCall(t, url, &ok, "admin_grantPermission", "admin1", "op2", components.PermissionOperator)
	require.Nil(t, rpcErr)
	var tags []string
	rpcErr = rpcCall(t, url, &tags, "admin_listPermissions", "op2")
	require.Nil(t, rpcErr)
	assert.Equal(t, []string{components.PermissionOperator}, tags)

	rpcErr = rpcCall(t, url, &ok, "admin_revokePermission", "admin1", "op2", components.PermissionOperator)
	require.Nil(t, rpcErr)

	rpcErr = rpcCall(t, url, nil, "fm_getPool", "EUR")
	require.NotNil(t, rpcErr)
	assert.Regexp(t, "FM010700", rpcErr.Message)
}

func TestNodePauseResumeOverRPC(t *testing.T) {
	_, url, done := newTestNode(t)
	defer done()

	var ok bool
	rpcErr := rpcCall(t, url, &ok, "fm_registerTarget", "op1",
		&components.Target{Address: "carol", Network: "local", Active: true})
	require.Nil(t, rpcErr)

	rpcErr = rpcCall(t, url, &ok, "admin_pauseComponent", "admin1", components.ComponentOrchestrator)
	require.Nil(t, rpcErr)

	sub := &components.Submission{
		MessageType:        "payment.v1",
		Payload:            types.RawJSON(`{"amount":400,"currency":"USD"}`),
		Destination:        "carol",
		DestinationNetwork: "local",
		Value:              fftypes.NewFFBigInt(100),
	}
	rpcErr = rpcCall(t, url, nil, "fm_sendMessage", "alice", sub)
	require.NotNil(t, rpcErr)
	assert.Regexp(t, "FM010202", rpcErr.Message)

	rpcErr = rpcCall(t, url, &ok, "admin_resumeComponent", "admin1", components.ComponentOrchestrator)
	require.Nil(t, rpcErr)

	var submitRes components.SubmitResult
	rpcErr = rpcCall(t, url, &submitRes, "fm_sendMessage", "alice", sub)
	require.Nil(t, rpcErr)
	assert.True(t, submitRes.Delivery.Completed)

	// pause gating is admin-only, and the component must exist
	rpcErr = rpcCall(t, url, nil, "admin_pauseComponent", "op1", components.ComponentRouter)
	require.NotNil(t, rpcErr)
	assert.Regexp(t, "FM010300", rpcErr.Message)
	rpcErr = rpcCall(t, url, nil, "admin_pauseComponent", "admin1", "sidecar")
	require.NotNil(t, rpcErr)
	assert.Regexp(t, "FM010200", rpcErr.Message)
}

func TestUpdateComponentLiveSwap(t *testing.T) {
	cm, url, done := newTestNode(t)
	defer done()

	ctx := context.Background()

	// a replacement processor with no handlers takes over for new calls
	replacement := processor.NewProcessor(ctx)
	require.NoError(t, cm.UpdateComponent(ctx, "admin1", components.ComponentProcessor, replacement))

	var ok bool
	rpcErr := rpcCall(t, url, &ok, "fm_registerTarget", "op1",
		&components.Target{Address: "carol", Network: "local", Active: true})
	require.Nil(t, rpcErr)

	sub := &components.Submission{
		MessageType:        "payment.v1",
		Payload:            types.RawJSON(`{"amount":400,"currency":"USD"}`),
		Destination:        "carol",
		DestinationNetwork: "local",
		Value:              fftypes.NewFFBigInt(100),
	}
	var submitRes components.SubmitResult
	rpcErr = rpcCall(t, url, &submitRes, "fm_sendMessage", "alice", sub)
	require.Nil(t, rpcErr)

	// handler registry went with the old processor, so the message failed
	var msg components.Message
	rpcErr = rpcCall(t, url, &msg, "fm_getMessage", submitRes.MessageID)
	require.Nil(t, rpcErr)
	assert.Equal(t, components.MessageStatusFailed, msg.Status.V())

	// swap validation
	err := cm.UpdateComponent(ctx, "admin1", components.ComponentProcessor, nil)
	assert.Regexp(t, "FM010201", err)
	err = cm.UpdateComponent(ctx, "admin1", components.ComponentRouter, replacement)
	assert.Regexp(t, "FM010201", err)
	err = cm.UpdateComponent(ctx, "admin1", "sidecar", replacement)
	assert.Regexp(t, "FM010200", err)
	err = cm.UpdateComponent(ctx, "mallory", components.ComponentProcessor, replacement)
	assert.Regexp(t, "FM010300", err)
}

func TestInitConfigValidation(t *testing.T) {
	cm := NewComponentManager(context.Background(), &Config{})
	assert.Regexp(t, "FM010205", cm.Init())

	cm = NewComponentManager(context.Background(), &Config{
		LocalNetwork: "local",
		DB:           persistence.Config{Type: "wrong"},
	})
	assert.Regexp(t, "FM010100", cm.Init())
}
