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

// Package sync implements the replication engine: bounded batch fetching
// with integrity hashes, idempotent change application with deferred retry
// on dependency violations, conflict resolution strategies, the pull/push
// coordinator and tombstone retention arithmetic. The engine is storage
// agnostic; it talks to the local store and the remote hub through the
// interfaces in store.go.
package sync

import (
	"fmt"
	"strings"

	"github.com/MelbourneDeveloper/DataProvider-sub005/api/types"
)

// SyncFailedError reports the entries that could not be processed after a
// cycle exhausted its options, so operators can diagnose cyclic or
// unresolvable dependencies instead of staring at a boolean.
type SyncFailedError struct {
	// Refs identifies the failing entries as "version:tableName".
	Refs []string

	// Kind is the underlying failure kind, e.g. ErrDependencyViolation.
	Kind error
}

// Error returns the error message.
func (e *SyncFailedError) Error() string {
	return fmt.Sprintf("%d entries failed: %s", len(e.Refs), strings.Join(e.Refs, ", "))
}

// Unwrap returns the failure kind, keeping the machine code reachable for
// errors.Is/As and the wire.
func (e *SyncFailedError) Unwrap() error {
	return e.Kind
}

// newSyncFailed builds a SyncFailedError from the given entries.
func newSyncFailed(entries []types.SyncLogEntry, kind error) *SyncFailedError {
	refs := make([]string, len(entries))
	for i := range entries {
		refs[i] = entries[i].Ref()
	}
	return &SyncFailedError{Refs: refs, Kind: kind}
}

// PullResult summarizes one pull cycle.
type PullResult struct {
	// Batches is the number of batches processed.
	Batches int

	// Applied is the number of entries applied to the local store.
	Applied int

	// Skipped is the number of echo entries discarded because they
	// originated here.
	Skipped int

	// Resolved is the number of conflicts resolved against local pending
	// changes.
	Resolved int

	// Checkpoint is the cursor state after the cycle.
	Checkpoint types.Checkpoint
}

// PushResult summarizes one push cycle.
type PushResult struct {
	// Batches is the number of batches sent.
	Batches int

	// Pushed is the number of entries the hub acknowledged appending.
	Pushed int

	// Checkpoint is the cursor state after the cycle.
	Checkpoint types.Checkpoint
}

// SyncResult summarizes one full pull-then-push cycle.
type SyncResult struct {
	Push *PushResult
	Pull *PullResult
}
