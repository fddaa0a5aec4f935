/*
 * Copyright 2026 The DataProvider Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package pubsub provides an in-memory broker that fans applied changes out
// to watch streams, used for single server.
package pubsub

import (
	"context"
	"fmt"
	gosync "sync"
	gotime "time"

	"go.uber.org/zap"

	"github.com/MelbourneDeveloper/DataProvider-sub005/api/types"
	"github.com/MelbourneDeveloper/DataProvider-sub005/pkg/cjson"
	"github.com/MelbourneDeveloper/DataProvider-sub005/pkg/errors"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/logging"
)

const (
	// publishWindow is the interval on which batched events are flushed to
	// subscribers.
	publishWindow = 100 * gotime.Millisecond
)

// ErrTooManySubscribers is returned when the subscription limit is exceeded.
var ErrTooManySubscribers = errors.ResourceExhausted("subscription limit exceeded").WithCode("ErrTooManySubscribers")

// PubSub is the memory implementation of the watch broker, used for a single
// hub process.
type PubSub struct {
	mu   gosync.Mutex
	subs *Subscriptions
}

// New creates an instance of PubSub.
func New() *PubSub {
	return &PubSub{
		subs: NewSubscriptions(publishWindow),
	}
}

// Subscribe registers the given watcher and returns its subscription. The
// filter is validated and its pk value canonicalized up front, so a bad
// filter fails the subscribe instead of silently matching nothing.
func (m *PubSub) Subscribe(
	ctx context.Context,
	subscriber string,
	filter types.WatchFilter,
	limit int,
) (*Subscription, error) {
	if logging.Enabled(zap.DebugLevel) {
		logging.From(ctx).Debugf(
			`Subscribe(%s) Start`,
			subscriber,
		)
	}

	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if len(filter.PkValue) > 0 {
		pk, err := cjson.Canonicalize(filter.PkValue)
		if err != nil {
			return nil, fmt.Errorf("watch filter pk: %v: %w", err, types.ErrInvalidInput)
		}
		filter.PkValue = pk
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if limit > 0 && m.subs.Len() >= limit {
		return nil, fmt.Errorf(
			"%d watchers allowed per hub: %w",
			limit,
			ErrTooManySubscribers,
		)
	}

	sub := NewSubscription(subscriber, filter)
	m.subs.Set(sub)

	if logging.Enabled(zap.DebugLevel) {
		logging.From(ctx).Debugf(
			`Subscribe(%s) End`,
			subscriber,
		)
	}
	return sub, nil
}

// Unsubscribe removes the given subscription and closes its event channel.
func (m *PubSub) Unsubscribe(ctx context.Context, sub *Subscription) {
	if logging.Enabled(zap.DebugLevel) {
		logging.From(ctx).Debugf(
			`Unsubscribe(%s) Start`,
			sub.Subscriber(),
		)
	}

	sub.Close()
	m.subs.Delete(sub.ID())

	if logging.Enabled(zap.DebugLevel) {
		logging.From(ctx).Debugf(
			`Unsubscribe(%s) End`,
			sub.Subscriber(),
		)
	}
}

// Publish enqueues the given event for delivery to every matching watcher.
func (m *PubSub) Publish(ctx context.Context, event types.ChangeEvent) {
	if logging.Enabled(zap.DebugLevel) {
		logging.From(ctx).Debugf(`Publish(%s) Start`, event.Type)
	}

	m.subs.Publish(event)

	if logging.Enabled(zap.DebugLevel) {
		logging.From(ctx).Debugf(`Publish(%s) End`, event.Type)
	}
}

// CloseSubscriber closes and removes every subscription owned by the given
// watcher. Housekeeping calls this after deactivating a stale client so its
// watch streams do not outlive the registration.
func (m *PubSub) CloseSubscriber(originID string) {
	for _, sub := range m.subs.Values() {
		if sub.Subscriber() == originID {
			m.subs.Delete(sub.ID())
		}
	}
}

// Subscribers returns the origin ids of the currently connected watchers.
func (m *PubSub) Subscribers() []string {
	var ids []string
	for _, sub := range m.subs.Values() {
		ids = append(ids, sub.Subscriber())
	}
	return ids
}

// Close closes every subscription and stops the publisher loop.
func (m *PubSub) Close() {
	for _, sub := range m.subs.Values() {
		m.subs.Delete(sub.ID())
	}
	m.subs.Close()
}
