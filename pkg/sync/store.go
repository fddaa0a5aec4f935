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

package sync

import (
	"context"

	"github.com/MelbourneDeveloper/DataProvider-sub005/api/types"
)

// FetchFn reads up to limit change entries with version greater than
// fromVersion, in ascending version order. Implementations are provided by
// the local change log for push and by the hub transport for pull.
type FetchFn func(ctx context.Context, fromVersion int64, limit int) ([]types.SyncLogEntry, error)

// Applier applies a single change entry to a destination store. ApplyChange
// must be idempotent: inserts and updates are upserts keyed by primary key,
// deletes of absent rows succeed silently. A change referencing a missing
// parent row fails with ErrDependencyViolation so the caller can defer it.
type Applier interface {
	ApplyChange(ctx context.Context, entry types.SyncLogEntry) error
}

// Session is a single suppressed synchronization transaction on the local
// store. Everything done through a session, including the checkpoint write,
// commits atomically when the RunSuppressed callback returns nil and rolls
// back otherwise. Change capture stays disabled for the whole session so
// applied entries are not re-recorded as local changes.
type Session interface {
	Applier

	// Checkpoint returns the cursors as of the start of the session.
	Checkpoint() (types.Checkpoint, error)

	// SetCheckpoint stages the cursor advance. It becomes durable together
	// with the applied entries on commit.
	SetCheckpoint(cp types.Checkpoint) error

	// PendingForKey returns the local un-pushed, un-superseded entries for
	// the given row in ascending version order. The key is the canonical
	// primary key encoding of the row.
	PendingForKey(ctx context.Context, table, canonicalPk string) ([]types.SyncLogEntry, error)

	// MarkSuperseded flags local pending entries so that subsequent push
	// cycles skip them. Used when a remote change wins a conflict.
	MarkSuperseded(ctx context.Context, versions []int64) error

	// Recapture appends an entry to the local change log despite
	// suppression, assigning a fresh local version, the local origin and
	// the current timestamp. Used to propagate synthesized merge results.
	Recapture(ctx context.Context, entry types.SyncLogEntry) error
}

// Store is the local replica store surface the coordinator drives.
type Store interface {
	// Checkpoint returns the durable cursor state.
	Checkpoint(ctx context.Context) (types.Checkpoint, error)

	// SetCheckpoint persists the cursor state. Pull cycles advance cursors
	// through the session instead; this is the push-side advance.
	SetCheckpoint(ctx context.Context, cp types.Checkpoint) error

	// FetchChanges reads local captured changes for push, skipping
	// superseded entries. Satisfies FetchFn.
	FetchChanges(ctx context.Context, fromVersion int64, limit int) ([]types.SyncLogEntry, error)

	// RunSuppressed executes fn within one suppressed transaction. Capture
	// suppression is released when the transaction ends, whether it
	// commits or rolls back.
	RunSuppressed(ctx context.Context, fn func(Session) error) error
}

// Remote is the hub surface the coordinator drives.
type Remote interface {
	// PullBatch fetches one bounded batch of hub changes after
	// fromVersion, with its integrity hash.
	PullBatch(ctx context.Context, fromVersion int64, batchSize int) (*types.SyncBatch, error)

	// PushChanges submits locally captured entries. The hub assigns its
	// own versions; re-pushing previously acknowledged entries is safe.
	PushChanges(ctx context.Context, entries []types.SyncLogEntry) (*types.PushResponse, error)
}
