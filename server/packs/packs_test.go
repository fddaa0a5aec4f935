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

package packs_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MelbourneDeveloper/DataProvider-sub005/api/types"
	"github.com/MelbourneDeveloper/DataProvider-sub005/pkg/sync"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/backend"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/backend/housekeeping"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/packs"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/profiling/prometheus"
)

const (
	originA = "3f2504e0-4f89-41d3-9a0c-0305e82c3301"
	originB = "aa8f2e76-1d9b-4b5e-93c1-7f40398ab702"
)

func newTestBackend(t *testing.T) *backend.Backend {
	met, err := prometheus.NewMetrics()
	assert.NoError(t, err)

	be, err := backend.New(&backend.Config{
		PullBatchSize:    100,
		PullMaxBatchSize: 1000,
		Hostname:         "test",
	}, nil, &housekeeping.Config{
		Interval:            "1m",
		InactivityThreshold: "2160h",
		CandidatesLimit:     100,
	}, met, nil)
	assert.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, be.Shutdown())
	})

	return be
}

// registerClient registers the pushing replica. Pushes of unknown origins are
// rejected, so every test that pushes needs one.
func registerClient(t *testing.T, be *backend.Backend, origin string) {
	_, err := be.DB.EnsureClient(context.Background(), origin)
	assert.NoError(t, err)
}

func insertEntry(version int64, table, pk, payload, origin string) types.SyncLogEntry {
	return types.SyncLogEntry{
		Version:   version,
		TableName: table,
		PkValue:   json.RawMessage(pk),
		Operation: types.OpInsert,
		Payload:   json.RawMessage(payload),
		Origin:    origin,
		Timestamp: 1_700_000_000_000 + version,
	}
}

func deleteEntry(version int64, table, pk, origin string) types.SyncLogEntry {
	return types.SyncLogEntry{
		Version:   version,
		TableName: table,
		PkValue:   json.RawMessage(pk),
		Operation: types.OpDelete,
		Payload:   json.RawMessage("null"),
		Origin:    origin,
		Timestamp: 1_700_000_000_000 + version,
	}
}

func TestPacks(t *testing.T) {
	ctx := context.Background()

	t.Run("push pull round trip test", func(t *testing.T) {
		be := newTestBackend(t)
		registerClient(t, be, originA)

		res, err := packs.Push(ctx, be, originA, []types.SyncLogEntry{
			insertEntry(1, "person", `{"id":1}`, `{"id":1,"name":"Alice"}`, originA),
			insertEntry(2, "person", `{"id":2}`, `{"id":2,"name":"Bob"}`, originA),
			insertEntry(3, "orders", `{"id":10}`, `{"id":10,"total":5}`, originA),
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, res.Applied)
		assert.Len(t, res.Failed, 0)

		batch, err := packs.Pull(ctx, be, originB, 0, 10)
		assert.NoError(t, err)
		assert.Len(t, batch.Changes, 3)
		assert.Equal(t, int64(0), batch.FromVersion)
		assert.Equal(t, int64(3), batch.ToVersion)
		assert.False(t, batch.HasMore)
		assert.NoError(t, sync.VerifyBatchHash(batch))

		// Hub versions replace the replica-local ones in arrival order.
		assert.Equal(t, int64(1), batch.Changes[0].Version)
		assert.Equal(t, "person", batch.Changes[0].TableName)
		assert.Equal(t, originA, batch.Changes[0].Origin)

		empty, err := packs.Pull(ctx, be, originB, 3, 10)
		assert.NoError(t, err)
		assert.Len(t, empty.Changes, 0)
		assert.Equal(t, int64(3), empty.ToVersion)
		assert.False(t, empty.HasMore)
	})

	t.Run("pull pages through the log test", func(t *testing.T) {
		be := newTestBackend(t)
		registerClient(t, be, originA)

		entries := make([]types.SyncLogEntry, 0, 25)
		for version := int64(1); version <= 25; version++ {
			entries = append(entries, insertEntry(
				version,
				"tasks",
				fmt.Sprintf(`{"id":%d}`, version),
				fmt.Sprintf(`{"id":%d,"done":false}`, version),
				originA,
			))
		}
		res, err := packs.Push(ctx, be, originA, entries)
		assert.NoError(t, err)
		assert.Equal(t, 25, res.Applied)

		var got int
		cursor := int64(0)
		sizes := []int{10, 10, 5}
		more := []bool{true, true, false}
		for i := 0; i < 3; i++ {
			batch, err := packs.Pull(ctx, be, originB, cursor, 10)
			assert.NoError(t, err)
			assert.Len(t, batch.Changes, sizes[i])
			assert.Equal(t, more[i], batch.HasMore)
			assert.NoError(t, sync.VerifyBatchHash(batch))
			cursor = batch.ToVersion
			got += len(batch.Changes)
		}
		assert.Equal(t, 25, got)
		assert.Equal(t, int64(25), cursor)
	})

	t.Run("push replay is skipped test", func(t *testing.T) {
		be := newTestBackend(t)
		registerClient(t, be, originA)

		entries := []types.SyncLogEntry{
			insertEntry(1, "person", `{"id":1}`, `{"id":1,"name":"Alice"}`, originA),
			insertEntry(2, "person", `{"id":2}`, `{"id":2,"name":"Bob"}`, originA),
		}
		res, err := packs.Push(ctx, be, originA, entries)
		assert.NoError(t, err)
		assert.Equal(t, 2, res.Applied)

		// The response was lost; the replica pushes the same batch again.
		res, err = packs.Push(ctx, be, originA, entries)
		assert.NoError(t, err)
		assert.Equal(t, 0, res.Applied)
		assert.Len(t, res.Failed, 0)

		max, err := be.DB.MaxVersion(ctx)
		assert.NoError(t, err)
		assert.Equal(t, int64(2), max)
	})

	t.Run("push rejects malformed entries by ref test", func(t *testing.T) {
		be := newTestBackend(t)
		registerClient(t, be, originA)

		noTable := insertEntry(2, "", `{"id":2}`, `{"id":2}`, originA)
		foreign := insertEntry(3, "person", `{"id":3}`, `{"id":3}`, originB)
		res, err := packs.Push(ctx, be, originA, []types.SyncLogEntry{
			insertEntry(1, "person", `{"id":1}`, `{"id":1,"name":"Alice"}`, originA),
			noTable,
			foreign,
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, res.Applied)
		assert.Equal(t, []string{noTable.Ref(), foreign.Ref()}, res.Failed)
	})

	t.Run("pull below retained history needs full resync test", func(t *testing.T) {
		be := newTestBackend(t)
		registerClient(t, be, originA)

		entries := make([]types.SyncLogEntry, 0, 10)
		for version := int64(1); version <= 10; version++ {
			entries = append(entries, insertEntry(
				version,
				"tasks",
				fmt.Sprintf(`{"id":%d}`, version),
				fmt.Sprintf(`{"id":%d}`, version),
				originA,
			))
		}
		_, err := packs.Push(ctx, be, originA, entries)
		assert.NoError(t, err)

		purged, err := be.DB.PurgeChanges(ctx, 6)
		assert.NoError(t, err)
		assert.Equal(t, int64(6), purged)

		// A replica parked at version 2 can no longer be served.
		_, err = packs.Pull(ctx, be, originB, 2, 10)
		assert.ErrorIs(t, err, types.ErrFullResyncRequired)

		info, err := be.DB.FindClient(ctx, originB)
		assert.NoError(t, err)
		assert.True(t, info.ResyncRequired)

		// A replica exactly at the purge boundary still is: its next needed
		// version is the oldest retained one.
		batch, err := packs.Pull(ctx, be, originA, 6, 10)
		assert.NoError(t, err)
		assert.Len(t, batch.Changes, 4)
	})

	t.Run("snapshot folds the log test", func(t *testing.T) {
		be := newTestBackend(t)
		registerClient(t, be, originA)

		res, err := packs.Push(ctx, be, originA, []types.SyncLogEntry{
			insertEntry(1, "person", `{"id":1}`, `{"id":1,"name":"Alice"}`, originA),
			insertEntry(2, "person", `{"id":2}`, `{"id":2,"name":"Bob"}`, originA),
			insertEntry(3, "person", `{"id":1}`, `{"id":1,"name":"Alice Cooper"}`, originA),
			deleteEntry(4, "person", `{"id":2}`, originA),
			insertEntry(5, "orders", `{"id":7}`, `{"id":7,"total":3}`, originA),
		})
		assert.NoError(t, err)
		assert.Equal(t, 5, res.Applied)

		snapshot, err := packs.Snapshot(ctx, be, nil)
		assert.NoError(t, err)
		assert.Equal(t, int64(5), snapshot.Version)
		assert.NotEmpty(t, snapshot.Hash)

		// Bob was deleted; Alice carries her latest payload.
		assert.Len(t, snapshot.Rows, 2)
		byTable := map[string]types.RowSnapshot{}
		for _, row := range snapshot.Rows {
			byTable[row.TableName] = row
		}
		assert.JSONEq(t, `{"id":1,"name":"Alice Cooper"}`, string(byTable["person"].Payload))
		assert.Equal(t, int64(3), byTable["person"].Version)
		assert.JSONEq(t, `{"id":7,"total":3}`, string(byTable["orders"].Payload))

		scoped, err := packs.Snapshot(ctx, be, []string{"orders"})
		assert.NoError(t, err)
		assert.Len(t, scoped.Rows, 1)
		assert.Equal(t, "orders", scoped.Rows[0].TableName)
		assert.NotEqual(t, snapshot.Hash, scoped.Hash)
	})

	t.Run("snapshot of an empty hub test", func(t *testing.T) {
		be := newTestBackend(t)

		snapshot, err := packs.Snapshot(ctx, be, nil)
		assert.NoError(t, err)
		assert.Equal(t, int64(0), snapshot.Version)
		assert.Len(t, snapshot.Rows, 0)
		assert.NotEmpty(t, snapshot.Hash)
	})

	t.Run("push publishes to watchers test", func(t *testing.T) {
		be := newTestBackend(t)
		registerClient(t, be, originA)

		sub, err := be.PubSub.Subscribe(ctx, originB, types.WatchFilter{}, 0)
		assert.NoError(t, err)
		defer be.PubSub.Unsubscribe(ctx, sub)

		_, err = packs.Push(ctx, be, originA, []types.SyncLogEntry{
			insertEntry(1, "person", `{"id":1}`, `{"id":1,"name":"Alice"}`, originA),
		})
		assert.NoError(t, err)

		event := <-sub.Events()
		assert.Equal(t, types.EventChange, event.Type)
		assert.Equal(t, "person", event.Entry.TableName)
		assert.Equal(t, int64(1), event.Entry.Version)
		assert.Equal(t, originA, event.Entry.Origin)
	})
}
