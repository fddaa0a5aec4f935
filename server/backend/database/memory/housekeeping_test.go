//go:build amd64

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

package memory_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"testing"
	gotime "time"

	"github.com/stretchr/testify/assert"
	monkey "github.com/undefinedlabs/go-mpatch"

	"github.com/MelbourneDeveloper/DataProvider-sub005/api/types"
	"github.com/MelbourneDeveloper/DataProvider-sub005/pkg/sync"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/backend/database/memory"
)

const (
	staleOriginA = "0a4fb4ae-63df-4bde-9c77-4726ebc1f2a1"
	staleOriginB = "6b2cde19-8f05-4b07-92c4-0d3a5f8e61b2"
	freshOrigin  = "c91d2e7f-3a46-4858-8d10-5e6f7a8b9c0d"
)

func TestHousekeeping(t *testing.T) {
	memdb, err := memory.New()
	assert.NoError(t, err)

	t.Run("housekeeping test", func(t *testing.T) {
		ctx := context.Background()

		longAgo := gotime.Now().Add(-100 * 24 * gotime.Hour)
		patch, err := monkey.PatchMethod(gotime.Now, func() gotime.Time { return longAgo })
		if err != nil {
			log.Fatal(err)
		}
		_, err = memdb.EnsureClient(ctx, staleOriginA)
		assert.NoError(t, err)
		_, err = memdb.EnsureClient(ctx, staleOriginB)
		assert.NoError(t, err)
		_, err = memdb.UpdateCheckpoint(ctx, staleOriginB, types.NewCheckpoint(3, 0))
		assert.NoError(t, err)
		err = patch.Unpatch()
		if err != nil {
			log.Fatal(err)
		}

		_, err = memdb.EnsureClient(ctx, freshOrigin)
		assert.NoError(t, err)

		var entries []types.SyncLogEntry
		for i := int64(1); i <= 10; i++ {
			entries = append(entries, types.SyncLogEntry{
				Version:   i,
				TableName: "readings",
				PkValue:   json.RawMessage(fmt.Sprintf(`{"id":%d}`, i)),
				Operation: types.OpInsert,
				Payload:   json.RawMessage(fmt.Sprintf(`{"id":%d,"value":%d}`, i, i)),
				Origin:    freshOrigin,
				Timestamp: types.Millis(gotime.Now()),
			})
		}
		_, err = memdb.AppendChanges(ctx, freshOrigin, entries)
		assert.NoError(t, err)
		_, err = memdb.UpdateCheckpoint(ctx, freshOrigin, types.NewCheckpoint(10, 10))
		assert.NoError(t, err)

		replicas := listReplicas(t, memdb)

		stale := sync.FindStaleClients(replicas, gotime.Now(), 0)
		var staleIDs []string
		for _, candidate := range stale {
			staleIDs = append(staleIDs, candidate.OriginID)
		}
		assert.ElementsMatch(t, []string{staleOriginA, staleOriginB}, staleIDs)

		// The silent replicas hold the purge floor down.
		floor, ok := sync.CalculateSafePurgeVersion(replicas)
		assert.True(t, ok)
		assert.Equal(t, int64(0), floor)

		for _, candidate := range stale {
			_, err = memdb.DeactivateClient(ctx, candidate.OriginID)
			assert.NoError(t, err)
		}

		floor, ok = sync.CalculateSafePurgeVersion(listReplicas(t, memdb))
		assert.True(t, ok)
		assert.Equal(t, int64(10), floor)

		purged, err := memdb.PurgeChanges(ctx, floor)
		assert.NoError(t, err)
		assert.Equal(t, int64(10), purged)
		oldest, err := memdb.OldestAvailableVersion(ctx)
		assert.NoError(t, err)
		assert.Equal(t, int64(11), oldest)
	})
}

func listReplicas(t *testing.T, memdb *memory.DB) []types.SyncClient {
	infos, err := memdb.ListClients(context.Background())
	assert.NoError(t, err)

	var replicas []types.SyncClient
	for _, info := range infos {
		replicas = append(replicas, info.ToSyncClient())
	}
	return replicas
}
