// Copyright © 2026 FinMesh Network Contributors
//
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package events provides the in-process broker that carries audit and
// notification events between node components and any listening surfaces.
// Events have a topic and a JSON body, and are broadcast to every
// subscriber whose subscription includes that topic.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/finmesh-network/finmesh/internal/msgs"
	"github.com/finmesh-network/finmesh/pkg/types"
	"github.com/google/uuid"
	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
)

const (
	TopicMessageSubmitted    = "message.submitted"
	TopicMessageStatus       = "message.status"
	TopicDeliveryCompleted   = "delivery.completed"
	TopicSettlementInitiated = "settlement.initiated"
	TopicSettlementCompleted = "settlement.completed"
	TopicComponentSwapped    = "admin.component.swapped"
	TopicComponentPaused     = "admin.component.paused"
	TopicFeeUpdated          = "admin.fee.updated"
)

type Event struct {
	ID    uuid.UUID       `json:"id"`
	Topic string          `json:"topic"`
	Time  types.Timestamp `json:"time"`
	Data  types.RawJSON   `json:"data"`
}

type Subscription struct {
	Destination string
	Channel     chan Event
}

type Broker interface {
	Publish(ctx context.Context, topic string, data types.RawJSON)
	Subscribe(ctx context.Context, destination string, topics ...string) *Subscription
	Unsubscribe(ctx context.Context, destination string) error
}

type subscriber struct {
	sub    *Subscription
	topics map[string]bool // empty means all topics
}

type broker struct {
	mux         sync.Mutex
	subscribers map[string]*subscriber
}

func NewBroker(ctx context.Context) Broker {
	return &broker{
		subscribers: make(map[string]*subscriber),
	}
}

func (b *broker) Subscribe(ctx context.Context, destination string, topics ...string) *Subscription {
	topicSet := make(map[string]bool)
	for _, t := range topics {
		topicSet[t] = true
	}
	s := &subscriber{
		sub: &Subscription{
			Destination: destination,
			Channel:     make(chan Event, 16),
		},
		topics: topicSet,
	}
	b.mux.Lock()
	b.subscribers[destination] = s
	b.mux.Unlock()
	return s.sub
}

func (b *broker) Unsubscribe(ctx context.Context, destination string) error {
	b.mux.Lock()
	defer b.mux.Unlock()
	if _, ok := b.subscribers[destination]; !ok {
		return i18n.NewError(ctx, msgs.MsgEventsDestinationNotFound, destination)
	}
	delete(b.subscribers, destination)
	return nil
}

// Publish never blocks the calling operation on a slow subscriber - an
// event that cannot be delivered within the grace period is dropped with a
// warning, as events are advisory rather than the system of record.
func (b *broker) Publish(ctx context.Context, topic string, data types.RawJSON) {
	ev := Event{
		ID:    uuid.New(),
		Topic: topic,
		Time:  types.TimestampNow(),
		Data:  data,
	}
	b.mux.Lock()
	targets := make([]*subscriber, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		if len(s.topics) == 0 || s.topics[topic] {
			targets = append(targets, s)
		}
	}
	b.mux.Unlock()
	for _, s := range targets {
		select {
		case s.sub.Channel <- ev:
		case <-time.After(50 * time.Millisecond):
			log.L(ctx).Warnf("Dropped event %s (topic=%s) for slow subscriber %s", ev.ID, topic, s.sub.Destination)
		}
	}
}
