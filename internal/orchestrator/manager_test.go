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

package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/finmesh-network/finmesh/internal/components"
	"github.com/finmesh-network/finmesh/internal/confutil"
	"github.com/finmesh-network/finmesh/internal/events"
	"github.com/finmesh-network/finmesh/internal/formats"
	"github.com/finmesh-network/finmesh/internal/liquidity"
	"github.com/finmesh-network/finmesh/internal/mocks/componentmocks"
	"github.com/finmesh-network/finmesh/internal/msgstore"
	"github.com/finmesh-network/finmesh/internal/permissions"
	"github.com/finmesh-network/finmesh/internal/persistence"
	"github.com/finmesh-network/finmesh/internal/processor"
	"github.com/finmesh-network/finmesh/internal/registrymgr"
	"github.com/finmesh-network/finmesh/internal/relay"
	"github.com/finmesh-network/finmesh/internal/router"
	"github.com/finmesh-network/finmesh/internal/settlement"
	"github.com/finmesh-network/finmesh/pkg/types"
	"github.com/hyperledger/firefly-common/pkg/fftypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const paymentSchema = `{
	"type": "object",
	"required": ["amount", "currency"],
	"properties": {
		"amount":   {"type": "integer", "minimum": 1},
		"currency": {"type": "string"}
	}
}`

// orchestratorTestbed wires the whole pipeline over one in-memory database,
// with an httptest server standing in for the external relay.
type orchestratorTestbed struct {
	ctx         context.Context
	orch        components.Orchestrator
	c           *componentmocks.AllComponents
	relayServer *httptest.Server
	done        func()
}

func newTestOrchestrator(t *testing.T, conf *Config) *orchestratorTestbed {
	tb := &orchestratorTestbed{ctx: context.Background()}
	p, pDone, err := persistence.NewUnitTestPersistence(tb.ctx)
	require.NoError(t, err)

	tb.relayServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/quote":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{"price": "100"})
		case "/deliveries", "/settlements":
			w.WriteHeader(http.StatusAccepted)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	pm := permissions.NewPermissionManager(tb.ctx, &permissions.Config{
		Grants: []permissions.GrantConfig{
			{Identity: "admin1", Permissions: []string{components.PermissionAdmin}},
			{Identity: "op1", Permissions: []string{components.PermissionOperator}},
			{Identity: "handler1", Permissions: []string{components.PermissionHandlerAdmin}},
			{Identity: "relay1", Permissions: []string{components.PermissionRelay}},
			{Identity: "emer1", Permissions: []string{components.PermissionEmergency}},
		},
	})
	tb.c = &componentmocks.AllComponents{
		P:            p,
		Broker:       events.NewBroker(tb.ctx),
		Perms:        pm,
		MsgStore:     msgstore.NewMessageStore(tb.ctx),
		Targets:      registrymgr.NewRegistryManager(tb.ctx, &registrymgr.Config{}),
		Formats:      formats.NewFormatManager(tb.ctx, &formats.Config{Schemas: map[string]json.RawMessage{"payment.v1": json.RawMessage(paymentSchema)}}),
		Liquidity:    liquidity.NewLiquidityManager(tb.ctx),
		Relay:        relay.NewRelayClient(tb.ctx, &relay.Config{URL: tb.relayServer.URL}),
		RouterImpl:   router.NewRouter(tb.ctx, &router.Config{}),
		Proc:         processor.NewProcessor(tb.ctx),
		Settlements:  settlement.NewSettlementCoordinator(tb.ctx, &settlement.Config{}),
		LocalNetwork: "local",
	}
	for _, m := range []components.ManagerLifecycle{
		pm, tb.c.MsgStore, tb.c.Targets, tb.c.Formats, tb.c.Liquidity,
		tb.c.Relay, tb.c.RouterImpl, tb.c.Proc, tb.c.Settlements,
	} {
		require.NoError(t, m.PostInit(tb.c))
	}

	require.NoError(t, tb.c.Targets.RegisterTarget(tb.ctx, "op1", &components.Target{Address: "carol", Network: "local", Active: true}))
	require.NoError(t, tb.c.Targets.RegisterTarget(tb.ctx, "op1", &components.Target{Address: "dave", Network: "othernet", Active: true}))

	require.NoError(t, tb.c.Proc.RegisterHandler(tb.ctx, "handler1", "payment.v1", func(ctx context.Context, msg *components.Message) (types.RawJSON, error) {
		return types.RawJSON(`{"ok":true}`), nil
	}))

	require.NoError(t, tb.c.Liquidity.CreatePool(tb.ctx, "admin1", &components.LiquidityPool{Asset: "USD", Active: true}))
	_, err = tb.c.Liquidity.AddLiquidity(tb.ctx, "lp1", "USD", fftypes.NewFFBigInt(1000))
	require.NoError(t, err)

	if conf == nil {
		conf = &Config{}
	}
	tb.orch = NewOrchestrator(tb.ctx, conf)
	tb.c.Orch = tb.orch
	require.NoError(t, tb.orch.PostInit(tb.c))
	require.NoError(t, tb.orch.Start())

	tb.done = func() {
		tb.orch.Stop()
		tb.relayServer.Close()
		pDone()
	}
	return tb
}

func paymentSubmission(destination, network string, value int64) *components.Submission {
	return &components.Submission{
		MessageType:        "payment.v1",
		Payload:            types.RawJSON(`{"amount":400,"currency":"USD"}`),
		Destination:        destination,
		DestinationNetwork: network,
		Value:              fftypes.NewFFBigInt(value),
	}
}

func withSettlement(sub *components.Submission, amount int64) *components.Submission {
	sub.Settlement = &components.SettlementInstruction{
		SourceAsset:      "USD",
		DestinationAsset: "USD",
		Amount:           fftypes.NewFFBigInt(amount),
		Recipient:        "bob",
	}
	return sub
}

func messageStatus(t *testing.T, tb *orchestratorTestbed, id types.Bytes32) components.MessageStatus {
	msg, err := tb.c.MsgStore.GetMessage(tb.ctx, nil, id)
	require.NoError(t, err)
	return msg.Status.V()
}

func TestQuoteFeeDeterministic(t *testing.T) {
	tb := newTestOrchestrator(t, nil)
	defer tb.done()

	// base 5 + local delivery 10, no settlement leg
	quote, err := tb.orch.QuoteFee(tb.ctx, paymentSubmission("carol", "local", 0))
	require.NoError(t, err)
	assert.Equal(t, int64(15), quote.Total().Int64())

	again, err := tb.orch.QuoteFee(tb.ctx, paymentSubmission("carol", "local", 0))
	require.NoError(t, err)
	assert.Equal(t, quote.Total(), again.Total())

	// settlement of 400 adds the flat 20 (10bps of 400 rounds to zero)
	quote, err = tb.orch.QuoteFee(tb.ctx, withSettlement(paymentSubmission("carol", "local", 0), 400))
	require.NoError(t, err)
	assert.Equal(t, int64(35), quote.Total().Int64())

	// cross-network delivery is node fee 50 + relay price 100
	quote, err = tb.orch.QuoteFee(tb.ctx, paymentSubmission("dave", "othernet", 0))
	require.NoError(t, err)
	assert.Equal(t, int64(155), quote.Total().Int64())
}

func TestSubmitLocalEndToEnd(t *testing.T) {
	tb := newTestOrchestrator(t, nil)
	defer tb.done()

	result, err := tb.orch.Submit(tb.ctx, "alice", withSettlement(paymentSubmission("carol", "local", 100), 400))
	require.NoError(t, err)
	require.NotNil(t, result.Delivery)
	assert.True(t, result.Delivery.Completed)
	require.NotNil(t, result.SettlementID)

	// quoted total is 35, so 65 of the 100 refunds
	require.NotNil(t, result.Refund)
	assert.Equal(t, int64(65), result.Refund.Int().Int64())

	assert.Equal(t, components.MessageStatusSettled, messageStatus(t, tb, result.MessageID))

	s, err := tb.c.Settlements.GetSettlement(tb.ctx, nil, *result.SettlementID)
	require.NoError(t, err)
	assert.Equal(t, components.SettlementStatusCompleted, s.Status.V())

	// local settlement paid straight out of the pool
	pool, err := tb.c.Liquidity.GetPool(tb.ctx, "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(600), pool.Total.Int().Int64())
	assert.Equal(t, int64(0), pool.Locked.Int().Int64())

	// the identical submission derives the same id and is rejected
	_, err = tb.orch.Submit(tb.ctx, "alice", withSettlement(paymentSubmission("carol", "local", 100), 400))
	assert.Regexp(t, "FM010601", err)
}

func TestSubmitValidation(t *testing.T) {
	tb := newTestOrchestrator(t, &Config{MaxPayloadSize: confutil.P(64)})
	defer tb.done()

	_, err := tb.orch.Submit(tb.ctx, "", paymentSubmission("carol", "local", 100))
	assert.Regexp(t, "FM010302", err)

	sub := paymentSubmission("carol", "local", 100)
	sub.Payload = nil
	_, err = tb.orch.Submit(tb.ctx, "alice", sub)
	assert.Regexp(t, "FM011200", err)

	sub = paymentSubmission("carol", "local", 100)
	sub.Payload = types.RawJSON(`{"amount":400,"currency":"USD","note":"` + string(make([]byte, 64)) + `"}`)
	_, err = tb.orch.Submit(tb.ctx, "alice", sub)
	assert.Regexp(t, "FM011201", err)

	_, err = tb.orch.Submit(tb.ctx, "alice", paymentSubmission("", "local", 100))
	assert.Regexp(t, "FM011202", err)

	sub = paymentSubmission("carol", "local", 100)
	sub.MessageType = "unknown.v1"
	_, err = tb.orch.Submit(tb.ctx, "alice", sub)
	assert.Regexp(t, "FM010500", err)

	// schema violation
	sub = paymentSubmission("carol", "local", 100)
	sub.Payload = types.RawJSON(`{"amount":400}`)
	_, err = tb.orch.Submit(tb.ctx, "alice", sub)
	assert.Regexp(t, "FM010503", err)

	// quoted total is 15, 10 is not enough
	_, err = tb.orch.Submit(tb.ctx, "alice", paymentSubmission("carol", "local", 10))
	assert.Regexp(t, "FM011203", err)

	// unregistered target fails inside the transaction, nothing registers
	_, err = tb.orch.Submit(tb.ctx, "alice", paymentSubmission("nobody", "local", 100))
	assert.Regexp(t, "FM010901", err)
	msgs, err := tb.c.MsgStore.QueryMessages(tb.ctx, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestSubmitHandlerFailureMarksFailed(t *testing.T) {
	tb := newTestOrchestrator(t, nil)
	defer tb.done()

	// no handler for this type, so local processing fails after delivery
	require.NoError(t, tb.c.Formats.RegisterSchema(tb.ctx, "op1", "unhandled.v1", types.RawJSON(`{"type":"object"}`)))
	sub := paymentSubmission("carol", "local", 100)
	sub.MessageType = "unhandled.v1"

	result, err := tb.orch.Submit(tb.ctx, "alice", sub)
	require.NoError(t, err)
	assert.True(t, result.Delivery.Completed)
	assert.Equal(t, components.MessageStatusFailed, messageStatus(t, tb, result.MessageID))

	// a FAILED message can be cancelled by its submitter
	require.NoError(t, tb.orch.Cancel(tb.ctx, "alice", result.MessageID))
	assert.Equal(t, components.MessageStatusCancelled, messageStatus(t, tb, result.MessageID))
}

func TestSubmitCrossNetwork(t *testing.T) {
	tb := newTestOrchestrator(t, nil)
	defer tb.done()

	// quoted total is 5 + 150 + 20 = 175
	result, err := tb.orch.Submit(tb.ctx, "alice", withSettlement(paymentSubmission("dave", "othernet", 200), 400))
	require.NoError(t, err)
	require.NotNil(t, result.Delivery)
	assert.False(t, result.Delivery.Completed)
	require.NotNil(t, result.Delivery.DeliveryHash)
	require.NotNil(t, result.SettlementID)
	assert.Nil(t, result.Refund)

	// the message waits on the relay, with the settlement funds locked
	assert.Equal(t, components.MessageStatusPending, messageStatus(t, tb, result.MessageID))
	pool, err := tb.c.Liquidity.GetPool(tb.ctx, "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(400), pool.Locked.Int().Int64())

	// only the submitter may retry
	_, err = tb.orch.Retry(tb.ctx, "mallory", result.MessageID)
	assert.Regexp(t, "FM011205", err)

	// retry re-dispatches with the same delivery hash
	retried, err := tb.orch.Retry(tb.ctx, "alice", result.MessageID)
	require.NoError(t, err)
	assert.Equal(t, result.Delivery.DeliveryHash, retried.Delivery.DeliveryHash)

	// relay confirms delivery, after which a retry has nothing to do
	require.NoError(t, tb.c.RouterImpl.MarkDeliveryCompleted(tb.ctx, "relay1", *result.Delivery.DeliveryHash))
	assert.Equal(t, components.MessageStatusDelivered, messageStatus(t, tb, result.MessageID))
	_, err = tb.orch.Retry(tb.ctx, "alice", result.MessageID)
	assert.Regexp(t, "FM011208", err)

	_, err = tb.orch.Retry(tb.ctx, "alice", types.RandBytes32())
	assert.Regexp(t, "FM011204", err)
}

func TestRetryRecreatesSettlement(t *testing.T) {
	tb := newTestOrchestrator(t, nil)
	defer tb.done()

	result, err := tb.orch.Submit(tb.ctx, "alice", withSettlement(paymentSubmission("dave", "othernet", 200), 400))
	require.NoError(t, err)
	require.NotNil(t, result.SettlementID)

	retried, err := tb.orch.Retry(tb.ctx, "alice", result.MessageID)
	require.NoError(t, err)
	require.NotNil(t, retried.SettlementID)

	// the in-flight attempt is cancelled and the replacement derives a
	// fresh id from the bumped attempt counter
	assert.NotEqual(t, *result.SettlementID, *retried.SettlementID)
	old, err := tb.c.Settlements.GetSettlement(tb.ctx, nil, *result.SettlementID)
	require.NoError(t, err)
	assert.Equal(t, components.SettlementStatusCancelled, old.Status.V())
	fresh, err := tb.c.Settlements.GetSettlement(tb.ctx, nil, *retried.SettlementID)
	require.NoError(t, err)
	assert.Equal(t, components.SettlementStatusInProgress, fresh.Status.V())
	assert.Equal(t, int64(1), fresh.Attempt)

	// exactly one attempt's funds stay locked
	pool, err := tb.c.Liquidity.GetPool(tb.ctx, "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(400), pool.Locked.Int().Int64())
	assert.Equal(t, int64(600), pool.Available.Int().Int64())

	// once the value leg lands, a further retry re-drives delivery only
	require.NoError(t, tb.c.Settlements.ConfirmOutgoing(tb.ctx, "relay1", *retried.SettlementID))
	again, err := tb.orch.Retry(tb.ctx, "alice", result.MessageID)
	require.NoError(t, err)
	assert.Nil(t, again.SettlementID)
	still, err := tb.c.Settlements.GetSettlement(tb.ctx, nil, *retried.SettlementID)
	require.NoError(t, err)
	assert.Equal(t, components.SettlementStatusCompleted, still.Status.V())
}

func TestCancelReleasesSettlement(t *testing.T) {
	tb := newTestOrchestrator(t, nil)
	defer tb.done()

	result, err := tb.orch.Submit(tb.ctx, "alice", withSettlement(paymentSubmission("dave", "othernet", 200), 400))
	require.NoError(t, err)

	err = tb.orch.Cancel(tb.ctx, "mallory", result.MessageID)
	assert.Regexp(t, "FM011205", err)

	require.NoError(t, tb.orch.Cancel(tb.ctx, "alice", result.MessageID))
	assert.Equal(t, components.MessageStatusCancelled, messageStatus(t, tb, result.MessageID))

	// the in-progress settlement cancelled with it, releasing the lock
	s, err := tb.c.Settlements.GetSettlement(tb.ctx, nil, *result.SettlementID)
	require.NoError(t, err)
	assert.Equal(t, components.SettlementStatusCancelled, s.Status.V())
	pool, err := tb.c.Liquidity.GetPool(tb.ctx, "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(0), pool.Locked.Int().Int64())
	assert.Equal(t, int64(1000), pool.Available.Int().Int64())

	// the private submission record purged with the cancel, so neither a
	// second cancel nor a retry can find it
	err = tb.orch.Cancel(tb.ctx, "alice", result.MessageID)
	assert.Regexp(t, "FM011204", err)
	_, err = tb.orch.Retry(tb.ctx, "alice", result.MessageID)
	assert.Regexp(t, "FM011204", err)
}

func TestEmergencyCancel(t *testing.T) {
	tb := newTestOrchestrator(t, nil)
	defer tb.done()

	result, err := tb.orch.Submit(tb.ctx, "alice", withSettlement(paymentSubmission("dave", "othernet", 200), 400))
	require.NoError(t, err)

	// the emergency permission is required, submitter identity is not enough
	err = tb.orch.EmergencyCancel(tb.ctx, "alice", result.MessageID)
	assert.Regexp(t, "FM010300", err)

	require.NoError(t, tb.orch.EmergencyCancel(tb.ctx, "emer1", result.MessageID))
	assert.Equal(t, components.MessageStatusCancelled, messageStatus(t, tb, result.MessageID))
	s, err := tb.c.Settlements.GetSettlement(tb.ctx, nil, *result.SettlementID)
	require.NoError(t, err)
	assert.Equal(t, components.SettlementStatusCancelled, s.Status.V())
}

func TestUpdateBaseFee(t *testing.T) {
	tb := newTestOrchestrator(t, nil)
	defer tb.done()

	err := tb.orch.UpdateBaseFee(tb.ctx, "alice", fftypes.NewFFBigInt(50))
	assert.Regexp(t, "FM010300", err)

	// the operator role is not enough - fee changes are admin-only
	err = tb.orch.UpdateBaseFee(tb.ctx, "op1", fftypes.NewFFBigInt(50))
	assert.Regexp(t, "FM010300", err)

	err = tb.orch.UpdateBaseFee(tb.ctx, "admin1", nil)
	assert.Regexp(t, "FM010006", err)

	require.NoError(t, tb.orch.UpdateBaseFee(tb.ctx, "admin1", fftypes.NewFFBigInt(50)))
	quote, err := tb.orch.QuoteFee(tb.ctx, paymentSubmission("carol", "local", 0))
	require.NoError(t, err)
	assert.Equal(t, int64(60), quote.Total().Int64())
}

func TestSubmitPaused(t *testing.T) {
	tb := newTestOrchestrator(t, nil)
	defer tb.done()

	tb.c.ActiveCheck = func(name string) error {
		return assert.AnError
	}
	_, err := tb.orch.Submit(tb.ctx, "alice", paymentSubmission("carol", "local", 100))
	assert.Equal(t, assert.AnError, err)
}
