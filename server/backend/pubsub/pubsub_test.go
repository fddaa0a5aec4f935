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

package pubsub_test

import (
	"context"
	"encoding/json"
	"fmt"
	gosync "sync"
	"sync/atomic"
	"testing"
	gotime "time"

	"github.com/stretchr/testify/assert"

	"github.com/MelbourneDeveloper/DataProvider-sub005/api/types"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/backend/pubsub"
)

const (
	watcherA = "7d3f2a18-9b4c-4e5d-8a6f-1c2b3d4e5f60"
	watcherB = "91e8c7b6-5a4d-4f3e-9210-fedcba987654"
	watcherC = "2c5e8d0a-1f3b-4a6c-8e9d-7b5a3c1f0e2d"
)

func changeEvent(version int64, table, pk, payload, origin string) types.ChangeEvent {
	return types.ChangeEvent{
		Type: types.EventChange,
		Entry: &types.SyncLogEntry{
			Version:   version,
			TableName: table,
			PkValue:   json.RawMessage(pk),
			Operation: types.OpInsert,
			Payload:   json.RawMessage(payload),
			Origin:    origin,
			Timestamp: 1_700_000_000_000 + version,
		},
	}
}

func TestPubSub(t *testing.T) {
	t.Run("publish subscribe test", func(t *testing.T) {
		pubSub := pubsub.New()
		defer pubSub.Close()
		event := changeEvent(1, "tasks", `{"id":1}`, `{"id":1,"title":"a"}`, watcherB)

		ctx := context.Background()
		subA, err := pubSub.Subscribe(ctx, watcherA, types.WatchFilter{}, 0)
		assert.NoError(t, err)
		defer func() {
			pubSub.Unsubscribe(ctx, subA)
		}()

		var wg gosync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			e := <-subA.Events()
			assert.Equal(t, e, event)
		}()

		pubSub.Publish(ctx, event)
		wg.Wait()

		assert.Equal(t, []string{watcherA}, pubSub.Subscribers())
	})

	t.Run("publisher does not hear its own changes test", func(t *testing.T) {
		subs := pubsub.NewSubscriptions(gotime.Hour)
		sub := pubsub.NewSubscription(watcherA, types.WatchFilter{})
		subs.Set(sub)

		subs.Publish(changeEvent(1, "tasks", `{"id":1}`, `{"id":1}`, watcherA))
		subs.Publish(changeEvent(2, "tasks", `{"id":2}`, `{"id":2}`, watcherB))
		subs.Close()

		e := <-sub.Events()
		assert.Equal(t, int64(2), e.Entry.Version)
		assert.Equal(t, watcherB, e.Entry.Origin)
		assert.Equal(t, 0, len(sub.Events()))
	})

	t.Run("table filter is case insensitive test", func(t *testing.T) {
		subs := pubsub.NewSubscriptions(gotime.Hour)
		sub := pubsub.NewSubscription(watcherA, types.WatchFilter{
			Tables: []string{"Orders"},
		})
		subs.Set(sub)

		subs.Publish(changeEvent(1, "invoices", `{"id":1}`, `{"id":1}`, watcherB))
		subs.Publish(changeEvent(2, "orders", `{"id":7}`, `{"id":7}`, watcherB))
		subs.Close()

		e := <-sub.Events()
		assert.Equal(t, "orders", e.Entry.TableName)
		assert.Equal(t, 0, len(sub.Events()))
	})

	t.Run("star filter matches every table test", func(t *testing.T) {
		subs := pubsub.NewSubscriptions(gotime.Hour)
		sub := pubsub.NewSubscription(watcherA, types.WatchFilter{
			Tables: []string{"*"},
		})
		subs.Set(sub)

		subs.Publish(changeEvent(1, "invoices", `{"id":1}`, `{"id":1}`, watcherB))
		subs.Close()

		e := <-sub.Events()
		assert.Equal(t, "invoices", e.Entry.TableName)
	})

	t.Run("row filter matches by pk subset test", func(t *testing.T) {
		subs := pubsub.NewSubscriptions(gotime.Hour)
		sub := pubsub.NewSubscription(watcherA, types.WatchFilter{
			PkValue: json.RawMessage(`{"tenant":7}`),
		})
		subs.Set(sub)

		subs.Publish(changeEvent(1, "tasks", `{"tenant":9,"id":1}`, `{"id":1}`, watcherB))
		subs.Publish(changeEvent(2, "tasks", `{"id":4,"tenant":7}`, `{"id":4}`, watcherB))
		subs.Close()

		e := <-sub.Events()
		assert.Equal(t, int64(2), e.Entry.Version)
		assert.Equal(t, 0, len(sub.Events()))
	})

	t.Run("same row events coalesce within a window test", func(t *testing.T) {
		subs := pubsub.NewSubscriptions(gotime.Hour)
		sub := pubsub.NewSubscription(watcherA, types.WatchFilter{})
		subs.Set(sub)

		subs.Publish(changeEvent(1, "tasks", `{"id":1}`, `{"id":1,"state":"draft"}`, watcherB))
		subs.Publish(changeEvent(2, "tasks", `{"id":1}`, `{"id":1,"state":"done"}`, watcherB))
		subs.Publish(changeEvent(3, "notes", `{"id":5}`, `{"id":5}`, watcherB))
		subs.Close()

		first := <-sub.Events()
		assert.Equal(t, int64(2), first.Entry.Version)
		second := <-sub.Events()
		assert.Equal(t, int64(3), second.Entry.Version)
		assert.Equal(t, 0, len(sub.Events()))
	})

	t.Run("slow consumer drops oldest events test", func(t *testing.T) {
		sub := pubsub.NewSubscription(watcherA, types.WatchFilter{})
		for i := 1; i <= 12; i++ {
			ok := sub.Publish(changeEvent(int64(i), "tasks", fmt.Sprintf(`{"id":%d}`, i), `{}`, watcherB))
			assert.True(t, ok)
		}

		// The queue holds eight events, so 1..4 were dropped.
		e := <-sub.Events()
		assert.Equal(t, int64(5), e.Entry.Version)

		sub.Close()
		assert.False(t, sub.Publish(changeEvent(13, "tasks", `{"id":13}`, `{}`, watcherB)))
	})

	t.Run("close subscriber drops its streams test", func(t *testing.T) {
		pubSub := pubsub.New()
		defer pubSub.Close()
		ctx := context.Background()

		subA, err := pubSub.Subscribe(ctx, watcherA, types.WatchFilter{}, 0)
		assert.NoError(t, err)
		_, err = pubSub.Subscribe(ctx, watcherB, types.WatchFilter{}, 0)
		assert.NoError(t, err)

		pubSub.CloseSubscriber(watcherA)
		assert.Equal(t, []string{watcherB}, pubSub.Subscribers())

		// The closed channel ends the watcher's receive loop.
		_, ok := <-subA.Events()
		assert.False(t, ok)
	})

	t.Run("rejects malformed filters test", func(t *testing.T) {
		pubSub := pubsub.New()
		defer pubSub.Close()
		ctx := context.Background()

		_, err := pubSub.Subscribe(ctx, watcherA, types.WatchFilter{
			PkValue: json.RawMessage(`[1,2]`),
		}, 0)
		assert.ErrorIs(t, err, types.ErrInvalidInput)

		_, err = pubSub.Subscribe(ctx, watcherA, types.WatchFilter{
			Tables: []string{"tasks", ""},
		}, 0)
		assert.ErrorIs(t, err, types.ErrInvalidInput)
	})

	t.Run("watcher limit exceeded test", func(t *testing.T) {
		pubSub := pubsub.New()
		defer pubSub.Close()
		ctx := context.Background()
		limit := 2

		subA, err := pubSub.Subscribe(ctx, watcherA, types.WatchFilter{}, limit)
		assert.NoError(t, err)
		defer func() {
			pubSub.Unsubscribe(ctx, subA)
		}()

		subB, err := pubSub.Subscribe(ctx, watcherB, types.WatchFilter{}, limit)
		assert.NoError(t, err)

		// third subscription should fail due to limit
		_, err = pubSub.Subscribe(ctx, watcherC, types.WatchFilter{}, limit)
		assert.Error(t, err)
		assert.ErrorIs(t, err, pubsub.ErrTooManySubscribers)
		assert.Equal(t, err.Error(), fmt.Sprintf("%d watchers allowed per hub: subscription limit exceeded", limit))

		// unsubscribing frees a slot
		pubSub.Unsubscribe(ctx, subB)
		subC, err := pubSub.Subscribe(ctx, watcherC, types.WatchFilter{}, limit)
		assert.NoError(t, err)
		defer func() {
			pubSub.Unsubscribe(ctx, subC)
		}()
	})

	t.Run("watcher limit exceeded concurrent test", func(t *testing.T) {
		pubSub := pubsub.New()
		defer pubSub.Close()
		ctx := context.Background()
		var successCount, failCount atomic.Int32
		limitCount := 500
		concurrency := limitCount * 2

		var wg gosync.WaitGroup
		subscriptions := make([]*pubsub.Subscription, concurrency)
		for i := 0; i < concurrency; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				sub, err := pubSub.Subscribe(ctx, fmt.Sprintf("watcher-%04d", idx), types.WatchFilter{}, limitCount)
				if err == nil {
					successCount.Add(1)
					subscriptions[idx] = sub
				} else {
					failCount.Add(1)
					assert.ErrorIs(t, err, pubsub.ErrTooManySubscribers)
				}
			}(i)
		}
		wg.Wait()
		defer func() {
			for _, sub := range subscriptions {
				if sub != nil {
					pubSub.Unsubscribe(ctx, sub)
				}
			}
		}()

		successLen := int(successCount.Load())
		failLen := int(failCount.Load())

		// We expect exactly limitCount successful subscriptions
		assert.Equal(t, limitCount, successLen)
		assert.Equal(t, concurrency-limitCount, failLen)
		assert.Equal(t, concurrency, successLen+failLen)
	})
}
