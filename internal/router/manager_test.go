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

package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/finmesh-network/finmesh/internal/components"
	"github.com/finmesh-network/finmesh/internal/confutil"
	"github.com/finmesh-network/finmesh/internal/events"
	"github.com/finmesh-network/finmesh/internal/mocks/componentmocks"
	"github.com/finmesh-network/finmesh/internal/msgstore"
	"github.com/finmesh-network/finmesh/internal/permissions"
	"github.com/finmesh-network/finmesh/internal/persistence"
	"github.com/finmesh-network/finmesh/internal/registrymgr"
	"github.com/finmesh-network/finmesh/internal/relay"
	"github.com/finmesh-network/finmesh/pkg/types"
	"github.com/hyperledger/firefly-common/pkg/fftypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type routerTestbed struct {
	ctx          context.Context
	router       components.Router
	c            *componentmocks.AllComponents
	relayServer  *httptest.Server
	relayCalls   atomic.Int32
	done         func()
}

func newTestRouter(t *testing.T) *routerTestbed {
	tb := &routerTestbed{ctx: context.Background()}
	p, pDone, err := persistence.NewUnitTestPersistence(tb.ctx)
	require.NoError(t, err)

	tb.relayServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/quote":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"price":"100"}`))
		case "/deliveries":
			tb.relayCalls.Add(1)
			w.WriteHeader(http.StatusAccepted)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	pm := permissions.NewPermissionManager(tb.ctx, &permissions.Config{
		Grants: []permissions.GrantConfig{
			{Identity: "op1", Permissions: []string{components.PermissionOperator}},
			{Identity: "relay1", Permissions: []string{components.PermissionRelay}},
		},
	})
	tb.c = &componentmocks.AllComponents{
		P:            p,
		Broker:       events.NewBroker(tb.ctx),
		Perms:        pm,
		MsgStore:     msgstore.NewMessageStore(tb.ctx),
		Targets:      registrymgr.NewRegistryManager(tb.ctx, &registrymgr.Config{}),
		Relay:        relay.NewRelayClient(tb.ctx, &relay.Config{URL: tb.relayServer.URL}),
		LocalNetwork: "local",
	}
	require.NoError(t, pm.PostInit(tb.c))
	require.NoError(t, tb.c.MsgStore.PostInit(tb.c))
	require.NoError(t, tb.c.Targets.PostInit(tb.c))
	require.NoError(t, tb.c.Relay.PostInit(tb.c))

	require.NoError(t, tb.c.Targets.RegisterTarget(tb.ctx, "op1", &components.Target{Address: "bob", Network: "local", Active: true}))
	require.NoError(t, tb.c.Targets.RegisterTarget(tb.ctx, "op1", &components.Target{Address: "carol", Network: "othernet", Active: true}))

	tb.router = NewRouter(tb.ctx, &Config{})
	require.NoError(t, tb.router.PostInit(tb.c))
	require.NoError(t, tb.router.Start())

	tb.done = func() {
		tb.router.Stop()
		tb.relayServer.Close()
		pDone()
	}
	return tb
}

func registeredMessage(t *testing.T, tb *routerTestbed, dest, network string) *components.Message {
	contentHash := types.Bytes32Keccak([]byte(`{"pay":1}`))
	msg := &components.Message{
		ID:                 components.MessageID("payment.v1", contentHash, "alice", dest, network),
		MessageType:        "payment.v1",
		ContentHash:        contentHash,
		Sender:             "alice",
		Destination:        dest,
		DestinationNetwork: network,
		Payload:            types.RawJSON(`{"pay":1}`),
	}
	require.NoError(t, tb.c.MsgStore.Register(tb.ctx, nil, msg))
	return msg
}

func routingRequest(msg *components.Message, fee int64) *components.RoutingRequest {
	return &components.RoutingRequest{
		MessageID:          msg.ID,
		MessageType:        msg.MessageType,
		Payload:            msg.Payload,
		Sender:             msg.Sender,
		Destination:        msg.Destination,
		DestinationNetwork: msg.DestinationNetwork,
		FeePayment:         fftypes.NewFFBigInt(fee),
	}
}

func TestQuoteDeliveryFeeTwoTier(t *testing.T) {
	tb := newTestRouter(t)
	defer tb.done()

	local, err := tb.router.QuoteDeliveryFee(tb.ctx, "local", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(10), local.Int().Int64())

	// cross-network fee is the node's fixed fee plus the relay quote
	cross, err := tb.router.QuoteDeliveryFee(tb.ctx, "othernet", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(150), cross.Int().Int64())
}

func TestQuoteDeliveryFeePerByte(t *testing.T) {
	tb := newTestRouter(t)
	defer tb.done()

	r := NewRouter(tb.ctx, &Config{
		LocalFeePerByte:        confutil.P("2"),
		CrossNetworkFeePerByte: confutil.P("3"),
	})
	require.NoError(t, r.PostInit(tb.c))
	require.NoError(t, r.Start())
	defer r.Stop()

	// flat 10 + 2/byte over 100 bytes
	local, err := r.QuoteDeliveryFee(tb.ctx, "local", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(210), local.Int().Int64())

	// flat 50 + 3/byte over 100 bytes + relay quote of 100
	cross, err := r.QuoteDeliveryFee(tb.ctx, "othernet", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(450), cross.Int().Int64())

	// an empty payload pays the flat fee only
	local, err = r.QuoteDeliveryFee(tb.ctx, "local", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(10), local.Int().Int64())
}

func TestRouteLocalSynchronous(t *testing.T) {
	tb := newTestRouter(t)
	defer tb.done()
	msg := registeredMessage(t, tb, "bob", "local")

	outcome, err := tb.router.Route(tb.ctx, nil, routingRequest(msg, 10))
	require.NoError(t, err)
	assert.True(t, outcome.Completed)
	assert.Nil(t, outcome.DeliveryHash)
	assert.Zero(t, tb.relayCalls.Load())
}

func TestRouteCrossNetworkAsync(t *testing.T) {
	tb := newTestRouter(t)
	defer tb.done()
	msg := registeredMessage(t, tb, "carol", "othernet")

	outcome, err := tb.router.Route(tb.ctx, nil, routingRequest(msg, 150))
	require.NoError(t, err)
	assert.False(t, outcome.Completed)
	require.NotNil(t, outcome.DeliveryHash)
	assert.Equal(t, DeliveryHashFor(msg.ID, "othernet"), *outcome.DeliveryHash)
	assert.Equal(t, int32(1), tb.relayCalls.Load())

	d, err := tb.router.GetDelivery(tb.ctx, *outcome.DeliveryHash)
	require.NoError(t, err)
	assert.False(t, d.Completed)
	assert.Equal(t, msg.ID, d.MessageID)
}

func TestRouteValidation(t *testing.T) {
	tb := newTestRouter(t)
	defer tb.done()
	msg := registeredMessage(t, tb, "bob", "local")

	req := routingRequest(msg, 10)
	req.Payload = nil
	_, err := tb.router.Route(tb.ctx, nil, req)
	assert.Regexp(t, "FM010900", err)

	// unregistered destination
	req = routingRequest(msg, 10)
	req.Destination = "mallory"
	_, err = tb.router.Route(tb.ctx, nil, req)
	assert.Regexp(t, "FM010901", err)

	// underpaid delivery fee
	_, err = tb.router.Route(tb.ctx, nil, routingRequest(msg, 9))
	assert.Regexp(t, "FM010903", err)

	// deactivated target is no longer valid
	require.NoError(t, tb.c.Targets.SetTargetActive(tb.ctx, "op1", "bob", "local", false))
	_, err = tb.router.Route(tb.ctx, nil, routingRequest(msg, 10))
	assert.Regexp(t, "FM010901", err)
}

func TestMarkDeliveryCompleted(t *testing.T) {
	tb := newTestRouter(t)
	defer tb.done()
	msg := registeredMessage(t, tb, "carol", "othernet")

	sub := tb.c.Broker.Subscribe(tb.ctx, "test", events.TopicDeliveryCompleted)

	outcome, err := tb.router.Route(tb.ctx, nil, routingRequest(msg, 150))
	require.NoError(t, err)
	hash := *outcome.DeliveryHash

	// only the relay role may confirm
	err = tb.router.MarkDeliveryCompleted(tb.ctx, "op1", hash)
	assert.Regexp(t, "FM010300", err)

	require.NoError(t, tb.router.MarkDeliveryCompleted(tb.ctx, "relay1", hash))

	d, err := tb.router.GetDelivery(tb.ctx, hash)
	require.NoError(t, err)
	assert.True(t, d.Completed)
	require.NotNil(t, d.CompleteTime)

	got, err := tb.c.MsgStore.GetMessage(tb.ctx, nil, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, components.MessageStatusDelivered, got.Status.V())

	ev := <-sub.Channel
	assert.Equal(t, events.TopicDeliveryCompleted, ev.Topic)

	// idempotent - a duplicate confirmation changes nothing
	require.NoError(t, tb.router.MarkDeliveryCompleted(tb.ctx, "relay1", hash))
	got, err = tb.c.MsgStore.GetMessage(tb.ctx, nil, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, components.MessageStatusDelivered, got.Status.V())

	// unknown hash
	err = tb.router.MarkDeliveryCompleted(tb.ctx, "relay1", types.RandBytes32())
	assert.Regexp(t, "FM010902", err)
}

func TestRouteRetryReusesDeliveryHash(t *testing.T) {
	tb := newTestRouter(t)
	defer tb.done()
	msg := registeredMessage(t, tb, "carol", "othernet")

	first, err := tb.router.Route(tb.ctx, nil, routingRequest(msg, 150))
	require.NoError(t, err)
	second, err := tb.router.Route(tb.ctx, nil, routingRequest(msg, 150))
	require.NoError(t, err)
	assert.Equal(t, *first.DeliveryHash, *second.DeliveryHash)
	assert.Equal(t, int32(2), tb.relayCalls.Load())

	// once completed, routing again reports completed without re-dispatch
	require.NoError(t, tb.router.MarkDeliveryCompleted(tb.ctx, "relay1", *first.DeliveryHash))
	third, err := tb.router.Route(tb.ctx, nil, routingRequest(msg, 150))
	require.NoError(t, err)
	assert.True(t, third.Completed)
	assert.Equal(t, int32(2), tb.relayCalls.Load())
}

func TestGetDeliveryNotFound(t *testing.T) {
	tb := newTestRouter(t)
	defer tb.done()

	_, err := tb.router.GetDelivery(tb.ctx, types.RandBytes32())
	assert.Regexp(t, "FM010902", err)
}
