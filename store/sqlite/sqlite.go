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

// Package sqlite implements the replica-side change log store on an embedded
// SQLite database. Local writes to tracked tables are captured by AFTER
// triggers, and remote changes are applied through suppressed transactions
// so they are not re-captured as local changes.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/MelbourneDeveloper/DataProvider-sub005/api/types"
)

// Schema of the store's own tables. User tables are left untouched until
// Track installs capture triggers on them.
const schema = `
CREATE TABLE IF NOT EXISTS __sync_state (
	id             INTEGER PRIMARY KEY CHECK (id = 1),
	origin         TEXT    NOT NULL,
	suppress       INTEGER NOT NULL DEFAULT 0,
	server_version INTEGER NOT NULL DEFAULT 0,
	pushed_version INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS __sync_log (
	version    INTEGER PRIMARY KEY AUTOINCREMENT,
	table_name TEXT    NOT NULL,
	pk_value   TEXT    NOT NULL,
	op         TEXT    NOT NULL,
	payload    TEXT,
	origin     TEXT    NOT NULL,
	ts_ms      INTEGER NOT NULL,
	superseded INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS __sync_log_row_idx ON __sync_log (table_name, pk_value);

CREATE TABLE IF NOT EXISTS __sync_tables (
	table_name TEXT PRIMARY KEY
);
`

// Option configures a Store on open.
type Option func(*options)

type options struct {
	origin string
}

// WithOrigin sets the replica identity used when the database file does not
// carry one yet. An identity already stored in the file always wins, so a
// replica keeps its origin across reopens.
func WithOrigin(originID string) Option {
	return func(o *options) { o.origin = originID }
}

// Store is a replica-local change log backed by a SQLite database file. It
// implements the store contract the sync coordinator drives and feeds the
// client's integrity and re-baseline paths.
type Store struct {
	db     *sql.DB
	origin string
}

// Open opens or creates the database file, applies the store schema and
// seeds the replica identity. Journaling runs in WAL mode and foreign key
// enforcement is on for every connection.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is empty: %w", types.ErrInvalidInput)
	}

	opt := options{}
	for _, o := range opts {
		o(&opt)
	}
	if opt.origin == "" {
		opt.origin = uuid.NewString()
	} else if _, err := uuid.Parse(opt.origin); err != nil {
		return nil, fmt.Errorf("malformed origin %q: %w", opt.origin, types.ErrInvalidInput)
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %v: %w", path, err, types.ErrStorage)
	}

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply store schema: %v: %w", err, types.ErrStorage)
	}
	if _, err := db.ExecContext(
		ctx,
		`INSERT INTO __sync_state (id, origin) VALUES (1, ?) ON CONFLICT (id) DO NOTHING`,
		opt.origin,
	); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("seed sync state: %v: %w", err, types.ErrStorage)
	}

	store := &Store{db: db}
	if err := db.QueryRowContext(
		ctx,
		`SELECT origin FROM __sync_state WHERE id = 1`,
	).Scan(&store.origin); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("read origin: %v: %w", err, types.ErrStorage)
	}
	return store, nil
}

// dsn builds the connection string. Pragmas ride on the DSN so every pooled
// connection gets them, not only the one an Exec would land on.
func dsn(path string) string {
	return "file:" + path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)"
}

// Origin returns the durable replica identity.
func (s *Store) Origin() string {
	return s.origin
}

// DB exposes the underlying handle for application queries. Writes made
// through it to tracked tables are captured like any other local write.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Checkpoint returns the durable pull and push cursors.
func (s *Store) Checkpoint(ctx context.Context) (types.Checkpoint, error) {
	return readCheckpoint(ctx, s.db)
}

// SetCheckpoint persists the cursors outside a sync session. Pull sessions
// write theirs through the session instead so the advance commits together
// with the applied entries.
func (s *Store) SetCheckpoint(ctx context.Context, cp types.Checkpoint) error {
	return writeCheckpoint(ctx, s.db, cp)
}

// FetchChanges reads captured local changes after fromVersion in ascending
// version order for push, skipping superseded entries.
func (s *Store) FetchChanges(ctx context.Context, fromVersion int64, limit int) ([]types.SyncLogEntry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT version, table_name, pk_value, op, payload, origin, ts_ms
		   FROM __sync_log
		  WHERE version > ? AND superseded = 0
		  ORDER BY version ASC
		  LIMIT ?`,
		fromVersion,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query change log: %v: %w", err, types.ErrStorage)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// PurgeLog drops log entries at or below throughVersion. Callers pass the
// pushed cursor so un-pushed entries stay. Entry versions are never reused
// after a purge. Returns the number of purged entries.
func (s *Store) PurgeLog(ctx context.Context, throughVersion int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM __sync_log WHERE version <= ?`, throughVersion)
	if err != nil {
		return 0, fmt.Errorf("purge change log: %v: %w", err, types.ErrStorage)
	}
	purged, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge change log: %v: %w", err, types.ErrStorage)
	}
	return purged, nil
}

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readCheckpoint(ctx context.Context, q querier) (types.Checkpoint, error) {
	var serverVersion, pushedVersion int64
	if err := q.QueryRowContext(
		ctx,
		`SELECT server_version, pushed_version FROM __sync_state WHERE id = 1`,
	).Scan(&serverVersion, &pushedVersion); err != nil {
		return types.Checkpoint{}, fmt.Errorf("read checkpoint: %v: %w", err, types.ErrStorage)
	}
	return types.NewCheckpoint(serverVersion, pushedVersion), nil
}

func writeCheckpoint(ctx context.Context, q querier, cp types.Checkpoint) error {
	if _, err := q.ExecContext(
		ctx,
		`UPDATE __sync_state SET server_version = ?, pushed_version = ? WHERE id = 1`,
		cp.ServerVersion,
		cp.PushedVersion,
	); err != nil {
		return fmt.Errorf("write checkpoint: %v: %w", err, types.ErrStorage)
	}
	return nil
}

func scanEntries(rows *sql.Rows) ([]types.SyncLogEntry, error) {
	var entries []types.SyncLogEntry
	for rows.Next() {
		var (
			entry   types.SyncLogEntry
			op      string
			pk      string
			payload sql.NullString
		)
		if err := rows.Scan(
			&entry.Version,
			&entry.TableName,
			&pk,
			&op,
			&payload,
			&entry.Origin,
			&entry.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan change log entry: %v: %w", err, types.ErrStorage)
		}
		entry.Operation = types.Operation(op)
		entry.PkValue = json.RawMessage(pk)
		if payload.Valid {
			entry.Payload = json.RawMessage(payload.String)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate change log: %v: %w", err, types.ErrStorage)
	}
	return entries, nil
}
