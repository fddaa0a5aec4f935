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

package sync_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MelbourneDeveloper/DataProvider-sub005/api/types"
	"github.com/MelbourneDeveloper/DataProvider-sub005/pkg/errors"
	"github.com/MelbourneDeveloper/DataProvider-sub005/pkg/sync"
)

func TestIsConflict(t *testing.T) {
	base := entry(1, "Person", "p1", originLocal, types.OpUpdate, `{"name":"a"}`, 1000)

	t.Run("same row different origin test", func(t *testing.T) {
		other := entry(9, "Person", "p1", originRemote, types.OpUpdate, `{"name":"b"}`, 2000)
		assert.True(t, sync.IsConflict(base, other))
		assert.True(t, sync.IsConflict(other, base))
	})

	t.Run("same origin test", func(t *testing.T) {
		other := entry(9, "Person", "p1", originLocal, types.OpUpdate, `{"name":"b"}`, 2000)
		assert.False(t, sync.IsConflict(base, other))
	})

	t.Run("different table test", func(t *testing.T) {
		other := entry(9, "Order", "p1", originRemote, types.OpUpdate, `{"name":"b"}`, 2000)
		assert.False(t, sync.IsConflict(base, other))
	})

	t.Run("different row test", func(t *testing.T) {
		other := entry(9, "Person", "p2", originRemote, types.OpUpdate, `{"name":"b"}`, 2000)
		assert.False(t, sync.IsConflict(base, other))
	})

	t.Run("table name case test", func(t *testing.T) {
		other := entry(9, "person", "p1", originRemote, types.OpUpdate, `{"name":"b"}`, 2000)
		assert.True(t, sync.IsConflict(base, other))
	})

	t.Run("composite key order test", func(t *testing.T) {
		a := base
		a.PkValue = json.RawMessage(`{"orderId":7,"lineNo":2}`)
		b := entry(9, "Person", "x", originRemote, types.OpUpdate, `{"name":"b"}`, 2000)
		b.PkValue = json.RawMessage(`{"lineNo":2,"orderId":7}`)
		assert.True(t, sync.IsConflict(a, b))
	})
}

func TestResolveLastWriteWins(t *testing.T) {
	t.Run("later timestamp wins test", func(t *testing.T) {
		early := entry(9, "Person", "p1", originLocal, types.OpUpdate, `{"name":"early"}`, 1000)
		late := entry(2, "Person", "p1", originRemote, types.OpUpdate, `{"name":"late"}`, 2000)

		assert.Equal(t, late.Payload, sync.ResolveLastWriteWins(early, late).Payload)
		assert.Equal(t, late.Payload, sync.ResolveLastWriteWins(late, early).Payload)
	})

	t.Run("timestamp tie breaks toward higher version test", func(t *testing.T) {
		low := entry(3, "Person", "p1", originLocal, types.OpUpdate, `{"name":"low"}`, 5000)
		high := entry(8, "Person", "p1", originRemote, types.OpUpdate, `{"name":"high"}`, 5000)

		assert.Equal(t, high.Payload, sync.ResolveLastWriteWins(low, high).Payload)
		assert.Equal(t, high.Payload, sync.ResolveLastWriteWins(high, low).Payload)
	})

	t.Run("winner is detached test", func(t *testing.T) {
		a := entry(1, "Person", "p1", originLocal, types.OpUpdate, `{"name":"a"}`, 1000)
		b := entry(2, "Person", "p1", originRemote, types.OpUpdate, `{"name":"b"}`, 2000)

		winner := sync.ResolveLastWriteWins(a, b)
		winner.Payload[2] = 'X'
		assert.Equal(t, json.RawMessage(`{"name":"b"}`), b.Payload)
	})
}

func TestResolve(t *testing.T) {
	local := entry(4, "Person", "p1", originLocal, types.OpUpdate, `{"name":"local"}`, 1000)
	remote := entry(11, "Person", "p1", originRemote, types.OpUpdate, `{"name":"remote"}`, 2000)

	t.Run("last write wins test", func(t *testing.T) {
		res, err := sync.Resolve(local, remote, sync.LastWriteWins, nil)
		assert.NoError(t, err)
		assert.Equal(t, sync.LastWriteWins, res.Strategy)
		assert.True(t, res.RemoteWon)
		assert.False(t, res.Merged)
		assert.Equal(t, remote.Payload, res.Winner.Payload)

		// Swapping the roles cannot change the winning content.
		swapped, err := sync.Resolve(remote, local, sync.LastWriteWins, nil)
		assert.NoError(t, err)
		assert.False(t, swapped.RemoteWon)
		assert.Equal(t, res.Winner.Payload, swapped.Winner.Payload)
	})

	t.Run("server wins test", func(t *testing.T) {
		newerLocal := local
		newerLocal.Timestamp = 9000

		res, err := sync.Resolve(newerLocal, remote, sync.ServerWins, nil)
		assert.NoError(t, err)
		assert.Equal(t, sync.ServerWins, res.Strategy)
		assert.True(t, res.RemoteWon)
		assert.Equal(t, remote.Payload, res.Winner.Payload)
	})

	t.Run("client wins test", func(t *testing.T) {
		res, err := sync.Resolve(local, remote, sync.ClientWins, nil)
		assert.NoError(t, err)
		assert.Equal(t, sync.ClientWins, res.Strategy)
		assert.False(t, res.RemoteWon)
		assert.Equal(t, local.Payload, res.Winner.Payload)
	})

	t.Run("custom merge test", func(t *testing.T) {
		merge := func(l, r types.SyncLogEntry) (types.SyncLogEntry, error) {
			merged := r.DeepCopy()
			merged.Payload = json.RawMessage(`{"name":"local+remote"}`)
			return merged, nil
		}

		res, err := sync.Resolve(local, remote, sync.CustomMerge, merge)
		assert.NoError(t, err)
		assert.Equal(t, sync.CustomMerge, res.Strategy)
		assert.True(t, res.RemoteWon)
		assert.True(t, res.Merged)
		assert.Equal(t, json.RawMessage(`{"name":"local+remote"}`), res.Winner.Payload)
	})

	t.Run("custom merge without function test", func(t *testing.T) {
		_, err := sync.Resolve(local, remote, sync.CustomMerge, nil)
		assert.True(t, errors.IsCode(err, types.ErrUnknownStrategy.Code()))
	})

	t.Run("unknown strategy test", func(t *testing.T) {
		_, err := sync.Resolve(local, remote, sync.Strategy("Coalesce"), nil)
		assert.True(t, errors.IsCode(err, types.ErrUnknownStrategy.Code()))
	})

	t.Run("inputs never mutated test", func(t *testing.T) {
		res, err := sync.Resolve(local, remote, sync.LastWriteWins, nil)
		assert.NoError(t, err)
		res.Winner.Payload[2] = 'X'
		assert.Equal(t, json.RawMessage(`{"name":"remote"}`), remote.Payload)
		assert.Equal(t, json.RawMessage(`{"name":"local"}`), local.Payload)
	})
}
