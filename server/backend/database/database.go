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

// Package database provides the storage interface for the hub: the client
// registry, the totally ordered change log, and the materialized rows the
// log folds into.
package database

import (
	"context"

	"github.com/MelbourneDeveloper/DataProvider-sub005/api/types"
)

// Database reads and saves the hub's sync data. Implementations must keep
// one invariant above all: change log versions form a single strictly
// increasing sequence, assigned at append time, never reused.
type Database interface {
	// Close closes all resources of this database.
	Close() error

	// EnsureClient finds the client of the given origin, registering or
	// reactivating it if needed.
	EnsureClient(ctx context.Context, originID string) (*ClientInfo, error)

	// FindClient finds the client of the given origin.
	FindClient(ctx context.Context, originID string) (*ClientInfo, error)

	// ListClients returns the whole client registry.
	ListClients(ctx context.Context) ([]*ClientInfo, error)

	// UpdateCheckpoint forwards the client's cursors and refreshes its
	// last-synced time. Cursors never move backwards.
	UpdateCheckpoint(ctx context.Context, originID string, cp types.Checkpoint) (*ClientInfo, error)

	// DeactivateClient releases the client's hold on the purge floor. The
	// client must re-register before syncing again.
	DeactivateClient(ctx context.Context, originID string) (*ClientInfo, error)

	// MarkResyncRequired flags that the client's next pull cannot be served
	// incrementally.
	MarkResyncRequired(ctx context.Context, originID string) error

	// AppendChanges appends the client's pushed entries to the change log,
	// assigning hub versions, and folds them into the materialized rows.
	// Entries at or below the client's pushed watermark are skipped, which
	// makes re-pushing after a crash idempotent. Returns the entries that
	// were actually appended, with their hub versions.
	AppendChanges(ctx context.Context, originID string, entries []types.SyncLogEntry) ([]*ChangeInfo, error)

	// FindChangesSince returns up to limit changes with version greater
	// than fromVersion in ascending version order.
	FindChangesSince(ctx context.Context, fromVersion int64, limit int) ([]*ChangeInfo, error)

	// MaxVersion returns the highest version in the change log, or 0 when
	// the log is empty.
	MaxVersion(ctx context.Context) (int64, error)

	// OldestAvailableVersion returns the lowest version the log still
	// retains, or purgedThrough+1 when the log is empty. A client whose
	// cursor is behind it by more than one entry needs a full resync.
	OldestAvailableVersion(ctx context.Context) (int64, error)

	// PurgeChanges removes log entries with version at or below through,
	// returning how many were removed. The materialized rows are not
	// touched; they carry the folded state onward.
	PurgeChanges(ctx context.Context, through int64) (int64, error)

	// ListRows returns the materialized rows of the given tables, or of all
	// tables when tables is empty, ordered by table then primary key.
	ListRows(ctx context.Context, tables []string) ([]*RowInfo, error)
}
