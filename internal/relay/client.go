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

// Package relay is the HTTP client for the external relay subsystem that
// carries deliveries and settlements to other networks. The relay is
// fire-and-forget from the node's perspective: completion confirmations
// come back later through the relay-gated RPC methods.
package relay

import (
	"context"
	"math/big"
	"time"

	"github.com/finmesh-network/finmesh/internal/components"
	"github.com/finmesh-network/finmesh/internal/confutil"
	"github.com/finmesh-network/finmesh/internal/msgs"
	"github.com/finmesh-network/finmesh/internal/retry"
	"github.com/go-resty/resty/v2"
	"github.com/hyperledger/firefly-common/pkg/fftypes"
	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
)

type Config struct {
	// URL of the relay endpoint. Empty means no relay is configured and
	// every cross-network operation fails with FM010800.
	URL            string              `json:"url"`
	RequestTimeout *string             `json:"requestTimeout"`
	Retry          retry.ConfigWithMax `json:"retry"`
}

type relayClient struct {
	bgCtx  context.Context
	conf   *Config
	client *resty.Client
	retry  *retry.Retry
}

func NewRelayClient(bgCtx context.Context, conf *Config) components.RelayClient {
	rc := &relayClient{
		bgCtx: bgCtx,
		conf:  conf,
		retry: retry.NewRetryLimited(&conf.Retry),
	}
	if conf.URL != "" {
		rc.client = resty.New().
			SetBaseURL(conf.URL).
			SetTimeout(confutil.Duration(conf.RequestTimeout, 30*time.Second))
	}
	return rc
}

func (rc *relayClient) PostInit(c components.AllComponents) error { return nil }

func (rc *relayClient) Start() error { return nil }

func (rc *relayClient) Stop() {}

type quoteRequest struct {
	DestinationNetwork string `json:"destinationNetwork"`
	PayloadSize        int    `json:"payloadSize"`
}

type quoteResponse struct {
	Price string `json:"price"`
}

func (rc *relayClient) QuoteDeliveryPrice(ctx context.Context, destinationNetwork string, payloadSize int) (*fftypes.FFBigInt, error) {
	if rc.client == nil {
		return nil, i18n.NewError(ctx, msgs.MsgRelayNotConfigured)
	}
	var price *big.Int
	err := rc.retry.Do(ctx, "relay quote", func(attempt int) (bool, error) {
		var quote quoteResponse
		res, err := rc.client.R().
			SetContext(ctx).
			SetBody(&quoteRequest{DestinationNetwork: destinationNetwork, PayloadSize: payloadSize}).
			SetResult(&quote).
			Post("/quote")
		if err != nil {
			return true, i18n.WrapError(ctx, err, msgs.MsgRelayQuoteFailed, destinationNetwork)
		}
		if res.IsError() {
			return true, i18n.NewError(ctx, msgs.MsgRelayQuoteFailed, destinationNetwork)
		}
		var ok bool
		price, ok = new(big.Int).SetString(quote.Price, 10)
		if !ok {
			return false, i18n.NewError(ctx, msgs.MsgRelayBadResponse, quote.Price)
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return (*fftypes.FFBigInt)(price), nil
}

func (rc *relayClient) DispatchDelivery(ctx context.Context, d *components.RelayDelivery) error {
	if rc.client == nil {
		return i18n.NewError(ctx, msgs.MsgRelayNotConfigured)
	}
	return rc.retry.Do(ctx, "relay delivery dispatch", func(attempt int) (bool, error) {
		res, err := rc.client.R().
			SetContext(ctx).
			SetBody(d).
			Post("/deliveries")
		if err != nil {
			return true, i18n.WrapError(ctx, err, msgs.MsgRelayDispatchFail, d.DestinationNetwork)
		}
		if res.IsError() {
			return true, i18n.NewError(ctx, msgs.MsgRelayDispatchFail, d.DestinationNetwork)
		}
		log.L(ctx).Infof("Dispatched delivery %s for message %s to network %s", d.DeliveryHash, d.MessageID, d.DestinationNetwork)
		return false, nil
	})
}

func (rc *relayClient) DispatchSettlement(ctx context.Context, s *components.RelaySettlement) error {
	if rc.client == nil {
		return i18n.NewError(ctx, msgs.MsgRelayNotConfigured)
	}
	return rc.retry.Do(ctx, "relay settlement dispatch", func(attempt int) (bool, error) {
		res, err := rc.client.R().
			SetContext(ctx).
			SetBody(s).
			Post("/settlements")
		if err != nil {
			return true, i18n.WrapError(ctx, err, msgs.MsgRelayDispatchFail, s.DestinationNetwork)
		}
		if res.IsError() {
			return true, i18n.NewError(ctx, msgs.MsgRelayDispatchFail, s.DestinationNetwork)
		}
		log.L(ctx).Infof("Dispatched settlement %s to network %s", s.SettlementID, s.DestinationNetwork)
		return false, nil
	})
}
