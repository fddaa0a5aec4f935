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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	gotime "time"

	"github.com/stretchr/testify/assert"

	"github.com/MelbourneDeveloper/DataProvider-sub005/api/types"
	"github.com/MelbourneDeveloper/DataProvider-sub005/pkg/integrity"
	"github.com/MelbourneDeveloper/DataProvider-sub005/pkg/sync"
)

// fakeStore is an in-memory replica store with transactional rollback, used
// to drive the coordinator without a real database.
type fakeStore struct {
	origin     string
	cp         types.Checkpoint
	rows       map[string]map[string]json.RawMessage
	log        []types.SyncLogEntry
	nextLocal  int64
	superseded map[int64]bool

	// requires maps "table|pk" to a "table|pk" parent that must exist
	// before the row can be applied.
	requires map[string]string
}

func newFakeStore(origin string) *fakeStore {
	return &fakeStore{
		origin:     origin,
		rows:       map[string]map[string]json.RawMessage{},
		superseded: map[int64]bool{},
		requires:   map[string]string{},
	}
}

// capture simulates a local application write: the row mutates and the
// change log records it, as a trigger would.
func (f *fakeStore) capture(table, pk string, op types.Operation, payload string, ts int64) {
	e := entry(0, table, pk, f.origin, op, payload, ts)
	if err := f.apply(e); err != nil {
		panic(err)
	}
	f.nextLocal++
	e.Version = f.nextLocal
	f.log = append(f.log, e)
}

func (f *fakeStore) lookup(table, pk string) (string, bool) {
	payload, ok := f.rows[strings.ToLower(table)][fmt.Sprintf(`{"id":%q}`, pk)]
	return string(payload), ok
}

func (f *fakeStore) apply(e types.SyncLogEntry) error {
	key, err := e.CanonicalPk()
	if err != nil {
		return err
	}
	table := strings.ToLower(e.TableName)

	if e.Operation == types.OpDelete {
		delete(f.rows[table], key)
		return nil
	}
	if parent, ok := f.requires[table+"|"+key]; ok {
		part := strings.SplitN(parent, "|", 2)
		if _, exists := f.rows[part[0]][part[1]]; !exists {
			return fmt.Errorf("row %s waits for %s: %w", key, parent, types.ErrDependencyViolation)
		}
	}
	if f.rows[table] == nil {
		f.rows[table] = map[string]json.RawMessage{}
	}
	f.rows[table][key] = bytes.Clone(e.Payload)
	return nil
}

func (f *fakeStore) snapshot() *fakeStore {
	rows := map[string]map[string]json.RawMessage{}
	for table, byPk := range f.rows {
		rows[table] = map[string]json.RawMessage{}
		for pk, payload := range byPk {
			rows[table][pk] = bytes.Clone(payload)
		}
	}
	superseded := map[int64]bool{}
	for v, flagged := range f.superseded {
		superseded[v] = flagged
	}
	return &fakeStore{
		origin:     f.origin,
		cp:         f.cp,
		rows:       rows,
		log:        append([]types.SyncLogEntry(nil), f.log...),
		nextLocal:  f.nextLocal,
		superseded: superseded,
		requires:   f.requires,
	}
}

func (f *fakeStore) restore(snap *fakeStore) {
	f.cp = snap.cp
	f.rows = snap.rows
	f.log = snap.log
	f.nextLocal = snap.nextLocal
	f.superseded = snap.superseded
}

func (f *fakeStore) Checkpoint(_ context.Context) (types.Checkpoint, error) {
	return f.cp, nil
}

func (f *fakeStore) SetCheckpoint(_ context.Context, cp types.Checkpoint) error {
	f.cp = cp
	return nil
}

func (f *fakeStore) FetchChanges(_ context.Context, fromVersion int64, limit int) ([]types.SyncLogEntry, error) {
	var out []types.SyncLogEntry
	for _, e := range f.log {
		if e.Version <= fromVersion || f.superseded[e.Version] {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) RunSuppressed(_ context.Context, fn func(sync.Session) error) error {
	snap := f.snapshot()
	if err := fn(&fakeSession{store: f}); err != nil {
		f.restore(snap)
		return err
	}
	return nil
}

type fakeSession struct {
	store *fakeStore
}

func (s *fakeSession) ApplyChange(_ context.Context, e types.SyncLogEntry) error {
	return s.store.apply(e)
}

func (s *fakeSession) Checkpoint() (types.Checkpoint, error) {
	return s.store.cp, nil
}

func (s *fakeSession) SetCheckpoint(cp types.Checkpoint) error {
	s.store.cp = cp
	return nil
}

func (s *fakeSession) PendingForKey(_ context.Context, table, canonicalPk string) ([]types.SyncLogEntry, error) {
	var out []types.SyncLogEntry
	for _, e := range s.store.log {
		if e.Version <= s.store.cp.PushedVersion || s.store.superseded[e.Version] {
			continue
		}
		if !strings.EqualFold(e.TableName, table) {
			continue
		}
		pk, err := e.CanonicalPk()
		if err != nil {
			return nil, err
		}
		if pk == canonicalPk {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeSession) MarkSuperseded(_ context.Context, versions []int64) error {
	for _, v := range versions {
		s.store.superseded[v] = true
	}
	return nil
}

func (s *fakeSession) Recapture(_ context.Context, e types.SyncLogEntry) error {
	s.store.nextLocal++
	e.Version = s.store.nextLocal
	e.Origin = s.store.origin
	e.Timestamp = types.Millis(gotime.Now())
	s.store.log = append(s.store.log, e)
	return nil
}

// fakeRemote is an in-memory hub that assigns its own versions on push.
type fakeRemote struct {
	hub      []types.SyncLogEntry
	nextVer  int64
	pulls    int
	pushes   int
	lastPush []types.SyncLogEntry
	failRefs []string
	tamper   func(*types.SyncBatch)
}

func (r *fakeRemote) PullBatch(ctx context.Context, fromVersion int64, batchSize int) (*types.SyncBatch, error) {
	r.pulls++
	batch, err := sync.FetchBatch(ctx, fromVersion, batchSize, sliceFetcher(r.hub))
	if err != nil {
		return nil, err
	}
	if r.tamper != nil {
		r.tamper(batch)
	}
	return batch, nil
}

func (r *fakeRemote) PushChanges(_ context.Context, entries []types.SyncLogEntry) (*types.PushResponse, error) {
	r.pushes++
	r.lastPush = append([]types.SyncLogEntry(nil), entries...)
	if len(r.failRefs) > 0 {
		return &types.PushResponse{Failed: r.failRefs}, nil
	}
	if n := len(r.hub); n > 0 && r.hub[n-1].Version > r.nextVer {
		r.nextVer = r.hub[n-1].Version
	}
	for _, e := range entries {
		r.nextVer++
		e.Version = r.nextVer
		r.hub = append(r.hub, e)
	}
	return &types.PushResponse{Applied: len(entries)}, nil
}

func newCoordinator(t *testing.T, store *fakeStore, remote *fakeRemote, opts ...sync.Option) *sync.Coordinator {
	t.Helper()
	coord, err := sync.NewCoordinator(store.origin, store, remote, types.BatchConfig{}, opts...)
	assert.NoError(t, err)
	return coord
}

func TestNewCoordinator(t *testing.T) {
	store := newFakeStore(originLocal)
	remote := &fakeRemote{}

	t.Run("malformed origin test", func(t *testing.T) {
		_, err := sync.NewCoordinator("not-a-uuid", store, remote, types.BatchConfig{})
		assert.True(t, types.IsInvalidInput(err))
	})

	t.Run("unknown strategy test", func(t *testing.T) {
		_, err := sync.NewCoordinator(
			originLocal, store, remote, types.BatchConfig{},
			sync.WithStrategy(sync.Strategy("Coalesce")),
		)
		assert.Error(t, err)
	})

	t.Run("custom merge needs a function test", func(t *testing.T) {
		_, err := sync.NewCoordinator(
			originLocal, store, remote, types.BatchConfig{},
			sync.WithStrategy(sync.CustomMerge),
		)
		assert.Error(t, err)
	})
}

func TestCoordinatorPull(t *testing.T) {
	ctx := context.Background()

	t.Run("applies remote history test", func(t *testing.T) {
		store := newFakeStore(originLocal)
		remote := &fakeRemote{hub: []types.SyncLogEntry{
			entry(1, "Person", "p1", originRemote, types.OpInsert, `{"name":"Alice"}`, 2000),
			entry(2, "Person", "p1", originRemote, types.OpUpdate, `{"name":"Alice Updated"}`, 3000),
			entry(3, "Person", "p2", originRemote, types.OpInsert, `{"name":"Bob"}`, 4000),
		}}
		coord := newCoordinator(t, store, remote)

		res, err := coord.Pull(ctx)
		assert.NoError(t, err)
		assert.Equal(t, 3, res.Applied)
		assert.Equal(t, 0, res.Skipped)
		assert.Equal(t, int64(3), res.Checkpoint.ServerVersion)

		payload, ok := store.lookup("Person", "p1")
		assert.True(t, ok)
		assert.Equal(t, `{"name":"Alice Updated"}`, payload)
		payload, ok = store.lookup("Person", "p2")
		assert.True(t, ok)
		assert.Equal(t, `{"name":"Bob"}`, payload)
	})

	t.Run("tombstone removes the row test", func(t *testing.T) {
		store := newFakeStore(originLocal)
		remote := &fakeRemote{hub: []types.SyncLogEntry{
			entry(1, "Person", "p1", originRemote, types.OpInsert, `{"name":"Alice"}`, 2000),
			entry(2, "Person", "p1", originRemote, types.OpDelete, "", 3000),
		}}
		coord := newCoordinator(t, store, remote)

		res, err := coord.Pull(ctx)
		assert.NoError(t, err)
		assert.Equal(t, 2, res.Applied)

		_, ok := store.lookup("Person", "p1")
		assert.False(t, ok)
	})

	t.Run("echo prevention test", func(t *testing.T) {
		store := newFakeStore(originLocal)
		remote := &fakeRemote{hub: []types.SyncLogEntry{
			entry(1, "Person", "p1", originLocal, types.OpInsert, `{"name":"Mine"}`, 2000),
			entry(2, "Person", "p2", originRemote, types.OpInsert, `{"name":"Theirs"}`, 3000),
		}}
		coord := newCoordinator(t, store, remote)

		res, err := coord.Pull(ctx)
		assert.NoError(t, err)
		assert.Equal(t, 1, res.Applied)
		assert.Equal(t, 1, res.Skipped)

		// The echo is not applied, but the cursor still passes it.
		assert.Equal(t, int64(2), res.Checkpoint.ServerVersion)
		_, ok := store.lookup("Person", "p1")
		assert.False(t, ok)
		_, ok = store.lookup("Person", "p2")
		assert.True(t, ok)
	})

	t.Run("drains the window batch by batch test", func(t *testing.T) {
		store := newFakeStore(originLocal)
		remote := &fakeRemote{hub: numberedLog(25, "Item", originRemote)}
		coord, err := sync.NewCoordinator(
			originLocal, store, remote, types.BatchConfig{BatchSize: 10},
		)
		assert.NoError(t, err)

		res, err := coord.Pull(ctx)
		assert.NoError(t, err)
		assert.Equal(t, 25, res.Applied)
		assert.Equal(t, 3, res.Batches)
		assert.Equal(t, 3, remote.pulls)
		assert.Equal(t, int64(25), res.Checkpoint.ServerVersion)
	})

	t.Run("dependency deferred within batch test", func(t *testing.T) {
		store := newFakeStore(originLocal)
		store.requires[`order|{"id":"o1"}`] = `person|{"id":"p1"}`
		remote := &fakeRemote{hub: []types.SyncLogEntry{
			entry(1, "Order", "o1", originRemote, types.OpInsert, `{"total":10}`, 2000),
			entry(2, "Person", "p1", originRemote, types.OpInsert, `{"name":"Alice"}`, 3000),
		}}
		coord := newCoordinator(t, store, remote)

		res, err := coord.Pull(ctx)
		assert.NoError(t, err)
		assert.Equal(t, 2, res.Applied)

		_, ok := store.lookup("Order", "o1")
		assert.True(t, ok)
		_, ok = store.lookup("Person", "p1")
		assert.True(t, ok)
	})

	t.Run("dependency never satisfied test", func(t *testing.T) {
		store := newFakeStore(originLocal)
		store.requires[`order|{"id":"o1"}`] = `person|{"id":"missing"}`
		remote := &fakeRemote{hub: []types.SyncLogEntry{
			entry(1, "Order", "o1", originRemote, types.OpInsert, `{"total":10}`, 2000),
			entry(2, "Person", "p1", originRemote, types.OpInsert, `{"name":"Alice"}`, 3000),
		}}
		coord := newCoordinator(t, store, remote)

		_, err := coord.Pull(ctx)
		assert.Error(t, err)
		assert.True(t, types.IsDependencyViolation(err))

		var failed *sync.SyncFailedError
		assert.ErrorAs(t, err, &failed)
		assert.Equal(t, []string{"1:Order"}, failed.Refs)

		// The whole batch rolled back, cursor included.
		cp, _ := store.Checkpoint(ctx)
		assert.Equal(t, types.InitialCheckpoint, cp)
		_, ok := store.lookup("Person", "p1")
		assert.False(t, ok)
	})

	t.Run("hash mismatch rejects the batch test", func(t *testing.T) {
		store := newFakeStore(originLocal)
		remote := &fakeRemote{
			hub: numberedLog(3, "Item", originRemote),
			tamper: func(b *types.SyncBatch) {
				b.Changes[0].Payload = json.RawMessage(`{"n":666}`)
			},
		}
		coord := newCoordinator(t, store, remote)

		_, err := coord.Pull(ctx)
		assert.True(t, types.IsHashMismatch(err))

		cp, _ := store.Checkpoint(ctx)
		assert.Equal(t, types.InitialCheckpoint, cp)
		assert.Empty(t, store.rows)
	})

	t.Run("reordered batch rejected test", func(t *testing.T) {
		store := newFakeStore(originLocal)
		remote := &fakeRemote{
			hub: numberedLog(3, "Item", originRemote),
			tamper: func(b *types.SyncBatch) {
				b.Changes[0], b.Changes[2] = b.Changes[2], b.Changes[0]
				hash, err := integrity.ComputeBatchHash(b.Changes)
				if err != nil {
					panic(err)
				}
				b.Hash = hash
			},
		}
		coord := newCoordinator(t, store, remote)

		_, err := coord.Pull(ctx)
		assert.True(t, types.IsStorageError(err))
	})

	t.Run("replay converges test", func(t *testing.T) {
		store := newFakeStore(originLocal)
		remote := &fakeRemote{hub: []types.SyncLogEntry{
			entry(1, "Person", "p1", originRemote, types.OpInsert, `{"name":"Alice"}`, 2000),
			entry(2, "Person", "p2", originRemote, types.OpInsert, `{"name":"Bob"}`, 3000),
			entry(3, "Person", "p2", originRemote, types.OpDelete, "", 4000),
		}}
		coord := newCoordinator(t, store, remote)

		_, err := coord.Pull(ctx)
		assert.NoError(t, err)
		first := store.snapshot()

		// A lost cursor forces the same batch through again; at-least-once
		// delivery must not change the outcome.
		assert.NoError(t, store.SetCheckpoint(ctx, types.InitialCheckpoint))
		_, err = coord.Pull(ctx)
		assert.NoError(t, err)

		assert.Equal(t, first.rows, store.rows)
	})
}

func TestCoordinatorConflicts(t *testing.T) {
	ctx := context.Background()

	t.Run("remote newer wins test", func(t *testing.T) {
		store := newFakeStore(originLocal)
		store.capture("Person", "p1", types.OpInsert, `{"name":"Local"}`, 1000)
		remote := &fakeRemote{hub: []types.SyncLogEntry{
			entry(1, "Person", "p1", originRemote, types.OpUpdate, `{"name":"Remote"}`, 2000),
		}}
		coord := newCoordinator(t, store, remote)

		res, err := coord.Pull(ctx)
		assert.NoError(t, err)
		assert.Equal(t, 1, res.Resolved)
		assert.Equal(t, 1, res.Applied)

		payload, _ := store.lookup("Person", "p1")
		assert.Equal(t, `{"name":"Remote"}`, payload)

		// The losing local change must not be pushed.
		pending, err := store.FetchChanges(ctx, 0, 10)
		assert.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("local newer wins test", func(t *testing.T) {
		store := newFakeStore(originLocal)
		store.capture("Person", "p1", types.OpInsert, `{"name":"Local"}`, 5000)
		remote := &fakeRemote{hub: []types.SyncLogEntry{
			entry(1, "Person", "p1", originRemote, types.OpUpdate, `{"name":"Remote"}`, 2000),
		}}
		coord := newCoordinator(t, store, remote)

		res, err := coord.Pull(ctx)
		assert.NoError(t, err)
		assert.Equal(t, 1, res.Resolved)
		assert.Equal(t, 0, res.Applied)

		// The local row survives and the cursor still advances past the
		// losing remote entry.
		payload, _ := store.lookup("Person", "p1")
		assert.Equal(t, `{"name":"Local"}`, payload)
		assert.Equal(t, int64(1), res.Checkpoint.ServerVersion)

		// The winning local change still propagates on push.
		pushRes, err := coord.Push(ctx)
		assert.NoError(t, err)
		assert.Equal(t, 1, pushRes.Pushed)
		assert.Equal(t, `{"name":"Local"}`, string(remote.hub[len(remote.hub)-1].Payload))
	})

	t.Run("server wins strategy test", func(t *testing.T) {
		store := newFakeStore(originLocal)
		store.capture("Person", "p1", types.OpInsert, `{"name":"Local"}`, 9000)
		remote := &fakeRemote{hub: []types.SyncLogEntry{
			entry(1, "Person", "p1", originRemote, types.OpUpdate, `{"name":"Remote"}`, 2000),
		}}
		coord := newCoordinator(t, store, remote, sync.WithStrategy(sync.ServerWins))

		_, err := coord.Pull(ctx)
		assert.NoError(t, err)

		payload, _ := store.lookup("Person", "p1")
		assert.Equal(t, `{"name":"Remote"}`, payload)
	})

	t.Run("client wins strategy test", func(t *testing.T) {
		store := newFakeStore(originLocal)
		store.capture("Person", "p1", types.OpInsert, `{"name":"Local"}`, 1000)
		remote := &fakeRemote{hub: []types.SyncLogEntry{
			entry(1, "Person", "p1", originRemote, types.OpUpdate, `{"name":"Remote"}`, 9000),
		}}
		coord := newCoordinator(t, store, remote, sync.WithStrategy(sync.ClientWins))

		_, err := coord.Pull(ctx)
		assert.NoError(t, err)

		payload, _ := store.lookup("Person", "p1")
		assert.Equal(t, `{"name":"Local"}`, payload)
	})

	t.Run("timestamp tie falls to higher version test", func(t *testing.T) {
		store := newFakeStore(originLocal)
		store.capture("Person", "p1", types.OpInsert, `{"name":"Local"}`, 5000)
		remote := &fakeRemote{hub: []types.SyncLogEntry{
			entry(4, "Person", "p1", originRemote, types.OpUpdate, `{"name":"Remote"}`, 5000),
		}}
		coord := newCoordinator(t, store, remote)

		_, err := coord.Pull(ctx)
		assert.NoError(t, err)

		payload, _ := store.lookup("Person", "p1")
		assert.Equal(t, `{"name":"Remote"}`, payload)
	})

	t.Run("custom merge recaptured for push test", func(t *testing.T) {
		store := newFakeStore(originLocal)
		store.capture("Person", "p1", types.OpInsert, `{"name":"Local"}`, 1000)
		remote := &fakeRemote{hub: []types.SyncLogEntry{
			entry(1, "Person", "p1", originRemote, types.OpUpdate, `{"name":"Remote"}`, 2000),
		}}
		merge := func(local, r types.SyncLogEntry) (types.SyncLogEntry, error) {
			merged := r.DeepCopy()
			merged.Payload = json.RawMessage(`{"name":"Merged"}`)
			return merged, nil
		}
		coord := newCoordinator(t, store, remote,
			sync.WithStrategy(sync.CustomMerge), sync.WithMergeFunc(merge))

		res, err := coord.Pull(ctx)
		assert.NoError(t, err)
		assert.Equal(t, 1, res.Resolved)

		payload, _ := store.lookup("Person", "p1")
		assert.Equal(t, `{"name":"Merged"}`, payload)

		// The synthesized entry replaces the original pending change and
		// goes out on the next push.
		pending, err := store.FetchChanges(ctx, 0, 10)
		assert.NoError(t, err)
		assert.Len(t, pending, 1)
		assert.Equal(t, json.RawMessage(`{"name":"Merged"}`), pending[0].Payload)

		pushRes, err := coord.Push(ctx)
		assert.NoError(t, err)
		assert.Equal(t, 1, pushRes.Pushed)
	})
}

func TestCoordinatorPush(t *testing.T) {
	ctx := context.Background()

	t.Run("pushes pending changes test", func(t *testing.T) {
		store := newFakeStore(originLocal)
		store.capture("Person", "p1", types.OpInsert, `{"name":"Alice"}`, 1000)
		store.capture("Person", "p1", types.OpUpdate, `{"name":"Alice Updated"}`, 2000)
		store.capture("Person", "p2", types.OpInsert, `{"name":"Bob"}`, 3000)
		remote := &fakeRemote{}
		coord := newCoordinator(t, store, remote)

		res, err := coord.Push(ctx)
		assert.NoError(t, err)
		assert.Equal(t, 3, res.Pushed)
		assert.Equal(t, int64(3), res.Checkpoint.PushedVersion)
		assert.Len(t, remote.hub, 3)

		// The hub owns its version sequence.
		assert.Equal(t, int64(1), remote.hub[0].Version)
		assert.Equal(t, int64(3), remote.hub[2].Version)
	})

	t.Run("push batching test", func(t *testing.T) {
		store := newFakeStore(originLocal)
		for i := 1; i <= 25; i++ {
			store.capture("Item", fmt.Sprintf("row-%d", i), types.OpInsert,
				fmt.Sprintf(`{"n":%d}`, i), int64(1000+i))
		}
		remote := &fakeRemote{}
		coord, err := sync.NewCoordinator(
			originLocal, store, remote, types.BatchConfig{BatchSize: 10},
		)
		assert.NoError(t, err)

		res, err := coord.Push(ctx)
		assert.NoError(t, err)
		assert.Equal(t, 25, res.Pushed)
		assert.Equal(t, 3, res.Batches)
		assert.Equal(t, 3, remote.pushes)
		assert.Equal(t, int64(25), res.Checkpoint.PushedVersion)
	})

	t.Run("nothing pending test", func(t *testing.T) {
		store := newFakeStore(originLocal)
		remote := &fakeRemote{}
		coord := newCoordinator(t, store, remote)

		res, err := coord.Push(ctx)
		assert.NoError(t, err)
		assert.Equal(t, 0, res.Batches)
		assert.Equal(t, 0, res.Pushed)
		assert.Equal(t, 0, remote.pushes)
	})

	t.Run("watermark resume test", func(t *testing.T) {
		store := newFakeStore(originLocal)
		store.capture("Item", "a", types.OpInsert, `{"n":1}`, 1000)
		store.capture("Item", "b", types.OpInsert, `{"n":2}`, 2000)
		remote := &fakeRemote{}
		coord := newCoordinator(t, store, remote)

		_, err := coord.Push(ctx)
		assert.NoError(t, err)

		store.capture("Item", "c", types.OpInsert, `{"n":3}`, 3000)
		res, err := coord.Push(ctx)
		assert.NoError(t, err)
		assert.Equal(t, 1, res.Pushed)
		assert.Len(t, remote.lastPush, 1)
		assert.Equal(t, "Item", remote.lastPush[0].TableName)
		assert.Len(t, remote.hub, 3)
	})

	t.Run("rejected entries test", func(t *testing.T) {
		store := newFakeStore(originLocal)
		store.capture("Item", "a", types.OpInsert, `{"n":1}`, 1000)
		remote := &fakeRemote{failRefs: []string{"1:Item"}}
		coord := newCoordinator(t, store, remote)

		_, err := coord.Push(ctx)
		assert.Error(t, err)

		var failed *sync.SyncFailedError
		assert.ErrorAs(t, err, &failed)
		assert.Equal(t, []string{"1:Item"}, failed.Refs)

		// The watermark stays put so the batch is retried next cycle.
		cp, _ := store.Checkpoint(ctx)
		assert.Equal(t, int64(0), cp.PushedVersion)
	})
}

func TestCoordinatorSync(t *testing.T) {
	ctx := context.Background()

	t.Run("two replicas converge test", func(t *testing.T) {
		remote := &fakeRemote{}
		storeA := newFakeStore(originLocal)
		storeB := newFakeStore(originRemote)
		coordA := newCoordinator(t, storeA, remote)
		coordB := newCoordinator(t, storeB, remote)

		storeA.capture("Person", "p1", types.OpInsert, `{"name":"Alice"}`, 1000)
		_, err := coordA.Sync(ctx)
		assert.NoError(t, err)
		_, err = coordB.Sync(ctx)
		assert.NoError(t, err)

		storeB.capture("Person", "p2", types.OpInsert, `{"name":"Bob"}`, 2000)
		_, err = coordB.Sync(ctx)
		assert.NoError(t, err)
		res, err := coordA.Sync(ctx)
		assert.NoError(t, err)

		assert.Equal(t, storeA.rows, storeB.rows)
		payload, ok := storeA.lookup("Person", "p2")
		assert.True(t, ok)
		assert.Equal(t, `{"name":"Bob"}`, payload)

		// Another round moves nothing.
		res, err = coordA.Sync(ctx)
		assert.NoError(t, err)
		assert.Equal(t, 0, res.Pull.Applied)
		assert.Equal(t, 0, res.Push.Pushed)
	})

	t.Run("own changes come back as echoes test", func(t *testing.T) {
		remote := &fakeRemote{}
		store := newFakeStore(originLocal)
		coord := newCoordinator(t, store, remote)

		store.capture("Person", "p1", types.OpInsert, `{"name":"Alice"}`, 1000)
		res, err := coord.Sync(ctx)
		assert.NoError(t, err)
		assert.Equal(t, 1, res.Push.Pushed)
		assert.Equal(t, 0, res.Pull.Applied)

		// The next cycle pulls the pushed entry back and discards it.
		res, err = coord.Sync(ctx)
		assert.NoError(t, err)
		assert.Equal(t, 0, res.Push.Pushed)
		assert.Equal(t, 0, res.Pull.Applied)
		assert.Equal(t, 1, res.Pull.Skipped)

		// The row was written once by the local application; the pull did
		// not rewrite it.
		payload, _ := store.lookup("Person", "p1")
		assert.Equal(t, `{"name":"Alice"}`, payload)
	})

	t.Run("apply hook fires per applied entry test", func(t *testing.T) {
		remote := &fakeRemote{hub: numberedLog(3, "Item", originRemote)}
		store := newFakeStore(originLocal)

		var seen []string
		coord, err := sync.NewCoordinator(
			originLocal, store, remote, types.BatchConfig{},
			sync.WithApplyHook(func(e types.SyncLogEntry) {
				seen = append(seen, e.Ref())
			}),
		)
		assert.NoError(t, err)

		_, err = coord.Pull(ctx)
		assert.NoError(t, err)
		assert.Equal(t, []string{"1:Item", "2:Item", "3:Item"}, seen)
	})
}
