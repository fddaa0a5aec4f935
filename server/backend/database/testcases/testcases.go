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

// Package testcases contains testcases for database. It is used by database
// implementations to test their own implementations with the same testcases.
package testcases

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/MelbourneDeveloper/DataProvider-sub005/api/types"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/backend/database"
)

const tsBase = int64(1_700_000_000_000)

// originFor derives a stable origin id from the test name so cases stay
// independent while sharing one database.
func originFor(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

func logEntry(
	version int64,
	table, pk string,
	op types.Operation,
	payload, origin string,
) types.SyncLogEntry {
	var raw json.RawMessage
	if payload != "" {
		raw = json.RawMessage(payload)
	}
	return types.SyncLogEntry{
		Version:   version,
		TableName: table,
		PkValue:   json.RawMessage(pk),
		Operation: op,
		Payload:   raw,
		Origin:    origin,
		Timestamp: tsBase + version,
	}
}

// RunEnsureClientTest runs the EnsureClient test for the given db.
func RunEnsureClientTest(t *testing.T, db database.Database) {
	t.Run("register client test", func(t *testing.T) {
		ctx := context.Background()
		origin := originFor(t.Name())

		info, err := db.EnsureClient(ctx, origin)
		assert.NoError(t, err)
		assert.Equal(t, origin, info.OriginID)
		assert.Equal(t, types.ClientActivated, info.Status)
		assert.Equal(t, int64(0), info.ServerVersion)
		assert.Equal(t, int64(0), info.PushedVersion)
		assert.False(t, info.CreatedAt.IsZero())
		assert.False(t, info.LastSyncedAt.IsZero())

		again, err := db.EnsureClient(ctx, origin)
		assert.NoError(t, err)
		assert.Equal(t, info.CreatedAt, again.CreatedAt)

		clients, err := db.ListClients(ctx)
		assert.NoError(t, err)
		var ids []string
		for _, c := range clients {
			ids = append(ids, c.OriginID)
		}
		assert.Contains(t, ids, origin)
	})

	t.Run("reactivation keeps cursors test", func(t *testing.T) {
		ctx := context.Background()
		origin := originFor(t.Name())

		_, err := db.EnsureClient(ctx, origin)
		assert.NoError(t, err)
		_, err = db.UpdateCheckpoint(ctx, origin, types.NewCheckpoint(7, 4))
		assert.NoError(t, err)
		_, err = db.DeactivateClient(ctx, origin)
		assert.NoError(t, err)

		info, err := db.EnsureClient(ctx, origin)
		assert.NoError(t, err)
		assert.Equal(t, types.ClientActivated, info.Status)
		assert.Equal(t, int64(7), info.ServerVersion)
		assert.Equal(t, int64(4), info.PushedVersion)
	})
}

// RunFindClientTest runs the FindClient test for the given db.
func RunFindClientTest(t *testing.T, db database.Database) {
	t.Run("find client test", func(t *testing.T) {
		ctx := context.Background()
		origin := originFor(t.Name())

		_, err := db.FindClient(ctx, origin)
		assert.ErrorIs(t, err, types.ErrClientNotFound)

		_, err = db.EnsureClient(ctx, origin)
		assert.NoError(t, err)

		found, err := db.FindClient(ctx, origin)
		assert.NoError(t, err)
		assert.Equal(t, origin, found.OriginID)

		// The returned copy is detached from the stored record.
		found.ServerVersion = 99
		fresh, err := db.FindClient(ctx, origin)
		assert.NoError(t, err)
		assert.Equal(t, int64(0), fresh.ServerVersion)
	})
}

// RunAppendChangesTest runs the AppendChanges test for the given db.
func RunAppendChangesTest(t *testing.T, db database.Database) {
	t.Run("assigns hub versions test", func(t *testing.T) {
		ctx := context.Background()
		origin := originFor(t.Name())
		_, err := db.EnsureClient(ctx, origin)
		assert.NoError(t, err)

		base, err := db.MaxVersion(ctx)
		assert.NoError(t, err)

		entries := []types.SyncLogEntry{
			logEntry(1, "append_items", `{"id":"a"}`, types.OpInsert, `{"id":"a","qty":1}`, origin),
			logEntry(2, "append_items", `{"id":"b"}`, types.OpInsert, `{"id":"b","qty":2}`, origin),
			logEntry(3, "append_items", `{"id":"a"}`, types.OpUpdate, `{"id":"a","qty":5}`, origin),
		}
		appended, err := db.AppendChanges(ctx, origin, entries)
		assert.NoError(t, err)
		assert.Len(t, appended, 3)
		for i, info := range appended {
			assert.Equal(t, base+int64(i)+1, info.Version)
			assert.Equal(t, entries[i].Version, info.LocalVersion)
			assert.Equal(t, entries[i].Timestamp, info.Timestamp)
			assert.Equal(t, origin, info.Origin)
		}

		maxVersion, err := db.MaxVersion(ctx)
		assert.NoError(t, err)
		assert.Equal(t, base+3, maxVersion)

		info, err := db.FindClient(ctx, origin)
		assert.NoError(t, err)
		assert.Equal(t, int64(3), info.PushedVersion)
	})

	t.Run("replayed push is deduplicated test", func(t *testing.T) {
		ctx := context.Background()
		origin := originFor(t.Name())
		_, err := db.EnsureClient(ctx, origin)
		assert.NoError(t, err)

		first := []types.SyncLogEntry{
			logEntry(1, "append_replay", `{"id":1}`, types.OpInsert, `{"id":1}`, origin),
			logEntry(2, "append_replay", `{"id":2}`, types.OpInsert, `{"id":2}`, origin),
			logEntry(3, "append_replay", `{"id":3}`, types.OpInsert, `{"id":3}`, origin),
		}
		appended, err := db.AppendChanges(ctx, origin, first)
		assert.NoError(t, err)
		assert.Len(t, appended, 3)

		base, err := db.MaxVersion(ctx)
		assert.NoError(t, err)

		// A full replay of an already acknowledged push appends nothing.
		appended, err = db.AppendChanges(ctx, origin, first)
		assert.NoError(t, err)
		assert.Len(t, appended, 0)
		maxVersion, err := db.MaxVersion(ctx)
		assert.NoError(t, err)
		assert.Equal(t, base, maxVersion)

		// A half-replayed push appends only the entries above the watermark.
		mixed := append([]types.SyncLogEntry{}, first[1:]...)
		mixed = append(mixed,
			logEntry(4, "append_replay", `{"id":4}`, types.OpInsert, `{"id":4}`, origin),
			logEntry(5, "append_replay", `{"id":5}`, types.OpInsert, `{"id":5}`, origin),
		)
		appended, err = db.AppendChanges(ctx, origin, mixed)
		assert.NoError(t, err)
		assert.Len(t, appended, 2)
		assert.Equal(t, base+1, appended[0].Version)
		assert.Equal(t, base+2, appended[1].Version)

		info, err := db.FindClient(ctx, origin)
		assert.NoError(t, err)
		assert.Equal(t, int64(5), info.PushedVersion)
	})

	t.Run("rejects unknown and deactivated clients test", func(t *testing.T) {
		ctx := context.Background()

		ghost := originFor(t.Name() + "/ghost")
		_, err := db.AppendChanges(ctx, ghost, []types.SyncLogEntry{
			logEntry(1, "append_ghost", `{"id":1}`, types.OpInsert, `{"id":1}`, ghost),
		})
		assert.ErrorIs(t, err, types.ErrClientNotFound)

		origin := originFor(t.Name())
		_, err = db.EnsureClient(ctx, origin)
		assert.NoError(t, err)
		_, err = db.DeactivateClient(ctx, origin)
		assert.NoError(t, err)
		_, err = db.AppendChanges(ctx, origin, []types.SyncLogEntry{
			logEntry(1, "append_ghost", `{"id":1}`, types.OpInsert, `{"id":1}`, origin),
		})
		assert.ErrorIs(t, err, types.ErrClientDeactivated)
	})

	t.Run("malformed entry aborts the whole push test", func(t *testing.T) {
		ctx := context.Background()
		origin := originFor(t.Name())
		_, err := db.EnsureClient(ctx, origin)
		assert.NoError(t, err)

		base, err := db.MaxVersion(ctx)
		assert.NoError(t, err)

		_, err = db.AppendChanges(ctx, origin, []types.SyncLogEntry{
			logEntry(1, "append_atomic", `{"id":"a"}`, types.OpInsert, `{"id":"a"}`, origin),
			logEntry(2, "append_atomic", `{"id":"b"}`, types.OpInsert, `[]`, origin),
		})
		assert.True(t, types.IsInvalidInput(err))

		// Nothing of the rejected push is visible.
		maxVersion, err := db.MaxVersion(ctx)
		assert.NoError(t, err)
		assert.Equal(t, base, maxVersion)
		info, err := db.FindClient(ctx, origin)
		assert.NoError(t, err)
		assert.Equal(t, int64(0), info.PushedVersion)
	})
}

// RunFindChangesSinceTest runs the FindChangesSince test for the given db.
func RunFindChangesSinceTest(t *testing.T, db database.Database) {
	t.Run("windows over the log test", func(t *testing.T) {
		ctx := context.Background()
		origin := originFor(t.Name())
		_, err := db.EnsureClient(ctx, origin)
		assert.NoError(t, err)

		base, err := db.MaxVersion(ctx)
		assert.NoError(t, err)

		var entries []types.SyncLogEntry
		for i := int64(1); i <= 10; i++ {
			entries = append(entries, logEntry(
				i,
				"pull_windows",
				fmt.Sprintf(`{"id":%d}`, i),
				types.OpInsert,
				fmt.Sprintf(`{"id":%d,"value":%d}`, i, i*10),
				origin,
			))
		}
		_, err = db.AppendChanges(ctx, origin, entries)
		assert.NoError(t, err)

		infos, err := db.FindChangesSince(ctx, base, 4)
		assert.NoError(t, err)
		assert.Len(t, infos, 4)
		for i, info := range infos {
			assert.Equal(t, base+int64(i)+1, info.Version)
		}

		infos, err = db.FindChangesSince(ctx, base+4, 4)
		assert.NoError(t, err)
		assert.Len(t, infos, 4)
		assert.Equal(t, base+5, infos[0].Version)
		assert.Equal(t, base+8, infos[3].Version)

		infos, err = db.FindChangesSince(ctx, base+8, 4)
		assert.NoError(t, err)
		assert.Len(t, infos, 2)

		infos, err = db.FindChangesSince(ctx, base+10, 4)
		assert.NoError(t, err)
		assert.Len(t, infos, 0)

		infos, err = db.FindChangesSince(ctx, base, 0)
		assert.NoError(t, err)
		assert.Len(t, infos, 10)

		// The wire entry carries the hub version, not the pushed one.
		entry := infos[0].ToEntry()
		assert.Equal(t, base+1, entry.Version)
		assert.Equal(t, "pull_windows", entry.TableName)
		assert.Equal(t, types.OpInsert, entry.Operation)
		assert.Equal(t, origin, entry.Origin)
	})
}

// RunRowFoldingTest runs the materialized row folding test for the given db.
func RunRowFoldingTest(t *testing.T, db database.Database) {
	t.Run("insert update delete folding test", func(t *testing.T) {
		ctx := context.Background()
		origin := originFor(t.Name())
		_, err := db.EnsureClient(ctx, origin)
		assert.NoError(t, err)

		appended, err := db.AppendChanges(ctx, origin, []types.SyncLogEntry{
			logEntry(1, "folding", `{"id":"x"}`, types.OpInsert, `{"id":"x","name":"first"}`, origin),
		})
		assert.NoError(t, err)
		rows, err := db.ListRows(ctx, []string{"folding"})
		assert.NoError(t, err)
		assert.Len(t, rows, 1)
		assert.Equal(t, `{"id":"x","name":"first"}`, string(rows[0].Payload))
		assert.Equal(t, appended[0].Version, rows[0].Version)

		appended, err = db.AppendChanges(ctx, origin, []types.SyncLogEntry{
			logEntry(2, "folding", `{"id":"x"}`, types.OpUpdate, `{"id":"x","name":"second"}`, origin),
		})
		assert.NoError(t, err)
		rows, err = db.ListRows(ctx, []string{"folding"})
		assert.NoError(t, err)
		assert.Len(t, rows, 1)
		assert.Equal(t, `{"id":"x","name":"second"}`, string(rows[0].Payload))
		assert.Equal(t, appended[0].Version, rows[0].Version)

		_, err = db.AppendChanges(ctx, origin, []types.SyncLogEntry{
			logEntry(3, "folding", `{"id":"x"}`, types.OpDelete, "", origin),
		})
		assert.NoError(t, err)
		rows, err = db.ListRows(ctx, []string{"folding"})
		assert.NoError(t, err)
		assert.Len(t, rows, 0)
	})

	t.Run("pk key order does not split rows test", func(t *testing.T) {
		ctx := context.Background()
		origin := originFor(t.Name())
		_, err := db.EnsureClient(ctx, origin)
		assert.NoError(t, err)

		_, err = db.AppendChanges(ctx, origin, []types.SyncLogEntry{
			logEntry(1, "folding_pk", `{"b":1,"a":2}`, types.OpInsert, `{"v":1}`, origin),
			logEntry(2, "folding_pk", `{"a":2,"b":1}`, types.OpUpdate, `{"v":2}`, origin),
		})
		assert.NoError(t, err)

		rows, err := db.ListRows(ctx, []string{"folding_pk"})
		assert.NoError(t, err)
		assert.Len(t, rows, 1)
		assert.Equal(t, `{"a":2,"b":1}`, string(rows[0].PkValue))
		assert.Equal(t, `{"v":2}`, string(rows[0].Payload))
	})
}

// RunListRowsTest runs the ListRows test for the given db.
func RunListRowsTest(t *testing.T, db database.Database) {
	t.Run("filter and order test", func(t *testing.T) {
		ctx := context.Background()
		origin := originFor(t.Name())
		_, err := db.EnsureClient(ctx, origin)
		assert.NoError(t, err)

		_, err = db.AppendChanges(ctx, origin, []types.SyncLogEntry{
			logEntry(1, "snap_b", `{"id":"b1"}`, types.OpInsert, `{"id":"b1"}`, origin),
			logEntry(2, "Snap_A", `{"id":"a2"}`, types.OpInsert, `{"id":"a2"}`, origin),
			logEntry(3, "Snap_A", `{"id":"a1"}`, types.OpInsert, `{"id":"a1"}`, origin),
		})
		assert.NoError(t, err)

		// Duplicate and differently cased filters collapse; rows come back
		// by table, then primary key.
		rows, err := db.ListRows(ctx, []string{"snap_b", "SNAP_A", "snap_a"})
		assert.NoError(t, err)
		assert.Len(t, rows, 3)
		assert.Equal(t, `{"id":"a1"}`, string(rows[0].PkValue))
		assert.Equal(t, `{"id":"a2"}`, string(rows[1].PkValue))
		assert.Equal(t, `{"id":"b1"}`, string(rows[2].PkValue))
		assert.Equal(t, "Snap_A", rows[0].TableName)

		rows, err = db.ListRows(ctx, []string{"snap_b"})
		assert.NoError(t, err)
		assert.Len(t, rows, 1)

		all, err := db.ListRows(ctx, nil)
		assert.NoError(t, err)
		keys := make(map[string]bool)
		for _, row := range all {
			keys[row.ID] = true
		}
		assert.True(t, keys[database.RowKey("Snap_A", `{"id":"a1"}`)])
		assert.True(t, keys[database.RowKey("snap_b", `{"id":"b1"}`)])
	})
}

// RunRetentionTest runs the purge and retention boundary tests for the
// given db.
func RunRetentionTest(t *testing.T, db database.Database) {
	t.Run("purge trims the log but not the rows test", func(t *testing.T) {
		ctx := context.Background()
		origin := originFor(t.Name())
		_, err := db.EnsureClient(ctx, origin)
		assert.NoError(t, err)

		base, err := db.MaxVersion(ctx)
		assert.NoError(t, err)

		_, err = db.AppendChanges(ctx, origin, []types.SyncLogEntry{
			logEntry(1, "retention_rows", `{"id":"a"}`, types.OpInsert, `{"id":"a","v":1}`, origin),
			logEntry(2, "retention_rows", `{"id":"b"}`, types.OpInsert, `{"id":"b","v":1}`, origin),
			logEntry(3, "retention_rows", `{"id":"a"}`, types.OpUpdate, `{"id":"a","v":2}`, origin),
			logEntry(4, "retention_rows", `{"id":"c"}`, types.OpInsert, `{"id":"c","v":1}`, origin),
			logEntry(5, "retention_rows", `{"id":"b"}`, types.OpDelete, "", origin),
		})
		assert.NoError(t, err)

		oldest, err := db.OldestAvailableVersion(ctx)
		assert.NoError(t, err)

		through := base + 3
		purged, err := db.PurgeChanges(ctx, through)
		assert.NoError(t, err)
		assert.Equal(t, through-oldest+1, purged)

		oldest, err = db.OldestAvailableVersion(ctx)
		assert.NoError(t, err)
		assert.Equal(t, through+1, oldest)

		infos, err := db.FindChangesSince(ctx, base, 0)
		assert.NoError(t, err)
		assert.Len(t, infos, 2)
		assert.Equal(t, base+4, infos[0].Version)
		deleted := infos[1].ToEntry()
		assert.Equal(t, types.OpDelete, deleted.Operation)
		assert.True(t, types.IsNullJSON(deleted.Payload))

		// Rows fold ahead of the purge boundary and survive it: "a" keeps
		// its purged latest change, "b" stays deleted.
		rows, err := db.ListRows(ctx, []string{"retention_rows"})
		assert.NoError(t, err)
		assert.Len(t, rows, 2)
		assert.Equal(t, `{"id":"a","v":2}`, string(rows[0].Payload))
		assert.Equal(t, base+3, rows[0].Version)
		assert.Equal(t, `{"id":"c","v":1}`, string(rows[1].Payload))

		maxVersion, err := db.MaxVersion(ctx)
		assert.NoError(t, err)
		assert.Equal(t, base+5, maxVersion)
	})

	t.Run("purge to the tip empties the log test", func(t *testing.T) {
		ctx := context.Background()

		maxVersion, err := db.MaxVersion(ctx)
		assert.NoError(t, err)

		_, err = db.PurgeChanges(ctx, maxVersion)
		assert.NoError(t, err)

		oldest, err := db.OldestAvailableVersion(ctx)
		assert.NoError(t, err)
		assert.Equal(t, maxVersion+1, oldest)

		infos, err := db.FindChangesSince(ctx, 0, 0)
		assert.NoError(t, err)
		assert.Len(t, infos, 0)

		purged, err := db.PurgeChanges(ctx, maxVersion)
		assert.NoError(t, err)
		assert.Equal(t, int64(0), purged)
	})
}

// RunUpdateCheckpointTest runs the UpdateCheckpoint test for the given db.
func RunUpdateCheckpointTest(t *testing.T, db database.Database) {
	t.Run("forwards cursors componentwise test", func(t *testing.T) {
		ctx := context.Background()
		origin := originFor(t.Name())
		_, err := db.EnsureClient(ctx, origin)
		assert.NoError(t, err)

		info, err := db.UpdateCheckpoint(ctx, origin, types.NewCheckpoint(5, 3))
		assert.NoError(t, err)
		assert.Equal(t, int64(5), info.ServerVersion)
		assert.Equal(t, int64(3), info.PushedVersion)

		// A stale cursor never moves the stored one backwards.
		info, err = db.UpdateCheckpoint(ctx, origin, types.NewCheckpoint(2, 9))
		assert.NoError(t, err)
		assert.Equal(t, int64(5), info.ServerVersion)
		assert.Equal(t, int64(9), info.PushedVersion)

		_, err = db.UpdateCheckpoint(ctx, originFor(t.Name()+"/missing"), types.InitialCheckpoint)
		assert.ErrorIs(t, err, types.ErrClientNotFound)
	})

	t.Run("resync flag lifts when the cursor catches up test", func(t *testing.T) {
		ctx := context.Background()
		origin := originFor(t.Name())
		_, err := db.EnsureClient(ctx, origin)
		assert.NoError(t, err)

		base, err := db.MaxVersion(ctx)
		assert.NoError(t, err)
		_, err = db.AppendChanges(ctx, origin, []types.SyncLogEntry{
			logEntry(1, "resync_gap", `{"id":1}`, types.OpInsert, `{"id":1}`, origin),
			logEntry(2, "resync_gap", `{"id":2}`, types.OpInsert, `{"id":2}`, origin),
			logEntry(3, "resync_gap", `{"id":3}`, types.OpInsert, `{"id":3}`, origin),
			logEntry(4, "resync_gap", `{"id":4}`, types.OpInsert, `{"id":4}`, origin),
		})
		assert.NoError(t, err)
		_, err = db.PurgeChanges(ctx, base+2)
		assert.NoError(t, err)

		err = db.MarkResyncRequired(ctx, origin)
		assert.NoError(t, err)
		info, err := db.FindClient(ctx, origin)
		assert.NoError(t, err)
		assert.True(t, info.ResyncRequired)

		// Oldest retained is base+3; a cursor before base+2 still misses
		// purged history.
		info, err = db.UpdateCheckpoint(ctx, origin, types.NewCheckpoint(base, 4))
		assert.NoError(t, err)
		assert.True(t, info.ResyncRequired)

		info, err = db.UpdateCheckpoint(ctx, origin, types.NewCheckpoint(base+2, 4))
		assert.NoError(t, err)
		assert.False(t, info.ResyncRequired)
	})

	t.Run("mark resync of unknown client test", func(t *testing.T) {
		ctx := context.Background()
		err := db.MarkResyncRequired(ctx, originFor(t.Name()))
		assert.ErrorIs(t, err, types.ErrClientNotFound)
	})
}

// RunDeactivateClientTest runs the DeactivateClient test for the given db.
func RunDeactivateClientTest(t *testing.T, db database.Database) {
	t.Run("deactivate client test", func(t *testing.T) {
		ctx := context.Background()
		origin := originFor(t.Name())
		_, err := db.EnsureClient(ctx, origin)
		assert.NoError(t, err)

		info, err := db.DeactivateClient(ctx, origin)
		assert.NoError(t, err)
		assert.Equal(t, types.ClientDeactivated, info.Status)

		_, err = db.DeactivateClient(ctx, originFor(t.Name()+"/missing"))
		assert.ErrorIs(t, err, types.ErrClientNotFound)
	})
}
