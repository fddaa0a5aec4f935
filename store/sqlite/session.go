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

package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/MelbourneDeveloper/DataProvider-sub005/api/types"
	"github.com/MelbourneDeveloper/DataProvider-sub005/pkg/sync"
)

// RunSuppressed runs fn inside one transaction with change capture turned
// off. The suppress flag is flipped inside the transaction, so capture stays
// live for every other connection and the flag cannot outlive the session:
// commit restores it first and rollback unwinds it.
func (s *Store) RunSuppressed(ctx context.Context, fn func(sync.Session) error) error {
	return s.runSuppressed(ctx, func(sess *session) error {
		return fn(sess)
	})
}

func (s *Store) runSuppressed(ctx context.Context, fn func(*session) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sync session: %v: %w", err, types.ErrStorage)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE __sync_state SET suppress = 1 WHERE id = 1`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("suppress capture: %v: %w", err, types.ErrStorage)
	}

	sess := &session{ctx: ctx, tx: tx, columns: make(map[string][]column)}
	if err := fn(sess); err != nil {
		_ = tx.Rollback()
		return err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE __sync_state SET suppress = 0 WHERE id = 1`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("release capture suppression: %v: %w", err, types.ErrStorage)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sync session: %v: %w", err, types.ErrStorage)
	}
	return nil
}

// session is the Session implementation bound to one suppressed transaction.
// The column cache lives for the session so a batch touching one table
// inspects its schema once.
type session struct {
	ctx     context.Context
	tx      *sql.Tx
	columns map[string][]column
}

// ApplyChange applies one remote entry to its user table. Inserts and
// updates are upserts keyed by the primary key so replays converge, and
// deletes of absent rows succeed. A foreign key failure surfaces as a
// dependency violation so the caller can defer the entry behind its parent.
func (s *session) ApplyChange(ctx context.Context, entry types.SyncLogEntry) error {
	cols, err := s.tableColumns(ctx, entry.TableName)
	if err != nil {
		return err
	}

	switch entry.Operation {
	case types.OpInsert, types.OpUpdate:
		return s.upsertRow(ctx, cols, entry)
	case types.OpDelete:
		return s.deleteRow(ctx, cols, entry)
	default:
		return fmt.Errorf("entry %s has unknown operation %q: %w", entry.Ref(), entry.Operation, types.ErrInvalidInput)
	}
}

// Checkpoint returns the cursors as seen by this transaction.
func (s *session) Checkpoint() (types.Checkpoint, error) {
	return readCheckpoint(s.ctx, s.tx)
}

// SetCheckpoint stages the cursor advance. It becomes durable with the
// applied entries on commit.
func (s *session) SetCheckpoint(cp types.Checkpoint) error {
	return writeCheckpoint(s.ctx, s.tx, cp)
}

// PendingForKey returns the un-pushed, un-superseded local entries for one
// row in ascending version order. Stored keys are canonicalized before
// comparing so capture formatting differences cannot hide a pending entry.
func (s *session) PendingForKey(ctx context.Context, table, canonicalPk string) ([]types.SyncLogEntry, error) {
	rows, err := s.tx.QueryContext(
		ctx,
		`SELECT version, table_name, pk_value, op, payload, origin, ts_ms
		   FROM __sync_log
		  WHERE table_name = ? COLLATE NOCASE AND superseded = 0
		    AND version > (SELECT pushed_version FROM __sync_state WHERE id = 1)
		  ORDER BY version ASC`,
		table,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending entries: %v: %w", err, types.ErrStorage)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}

	var matched []types.SyncLogEntry
	for _, entry := range entries {
		pk, err := entry.CanonicalPk()
		if err != nil {
			return nil, err
		}
		if pk == canonicalPk {
			matched = append(matched, entry)
		}
	}
	return matched, nil
}

// MarkSuperseded flags local pending entries so subsequent pushes skip them.
func (s *session) MarkSuperseded(ctx context.Context, versions []int64) error {
	if len(versions) == 0 {
		return nil
	}

	placeholders := make([]string, len(versions))
	args := make([]any, len(versions))
	for i, v := range versions {
		placeholders[i] = "?"
		args[i] = v
	}
	if _, err := s.tx.ExecContext(
		ctx,
		`UPDATE __sync_log SET superseded = 1 WHERE version IN (`+strings.Join(placeholders, ", ")+`)`,
		args...,
	); err != nil {
		return fmt.Errorf("supersede entries: %v: %w", err, types.ErrStorage)
	}
	return nil
}

// Recapture appends a merge result to the local log even though capture is
// suppressed, with a fresh version, the local origin and the current
// timestamp. The synthesized row change rides the next push.
func (s *session) Recapture(ctx context.Context, entry types.SyncLogEntry) error {
	pk, err := entry.CanonicalPk()
	if err != nil {
		return err
	}
	var payload any
	if !types.IsNullJSON(entry.Payload) {
		payload = string(entry.Payload)
	}
	if _, err := s.tx.ExecContext(
		ctx,
		`INSERT INTO __sync_log (table_name, pk_value, op, payload, origin, ts_ms)
		 VALUES (?, ?, ?, ?, (SELECT origin FROM __sync_state WHERE id = 1), ?)`,
		entry.TableName,
		pk,
		string(entry.Operation),
		payload,
		types.Millis(time.Now()),
	); err != nil {
		return fmt.Errorf("recapture %s: %v: %w", entry.Ref(), err, types.ErrStorage)
	}
	return nil
}

func (s *session) tableColumns(ctx context.Context, table string) ([]column, error) {
	if cols, ok := s.columns[table]; ok {
		return cols, nil
	}
	cols, err := tableColumns(ctx, s.tx, table)
	if err != nil {
		return nil, err
	}
	s.columns[table] = cols
	return cols, nil
}

func (s *session) upsertRow(ctx context.Context, cols []column, entry types.SyncLogEntry) error {
	values, err := decodeObject(entry.Payload)
	if err != nil {
		return fmt.Errorf("entry %s payload: %v: %w", entry.Ref(), err, types.ErrInvalidInput)
	}
	pk, err := decodeObject(entry.PkValue)
	if err != nil {
		return fmt.Errorf("entry %s pkValue: %v: %w", entry.Ref(), err, types.ErrInvalidInput)
	}
	// The payload normally repeats the key columns; fill them in when it
	// does not so the conflict target is always bound.
	for name, v := range pk {
		if _, ok := values[name]; !ok {
			values[name] = v
		}
	}

	pks := pkColumns(cols)
	pkNames := make(map[string]bool, len(pks))
	var conflictCols []string
	for _, c := range pks {
		if _, ok := values[c.name]; !ok {
			return fmt.Errorf("entry %s misses key column %q: %w", entry.Ref(), c.name, types.ErrInvalidInput)
		}
		pkNames[c.name] = true
		conflictCols = append(conflictCols, quoteIdent(c.name))
	}

	var (
		names        []string
		placeholders []string
		args         []any
		updates      []string
	)
	for _, c := range cols {
		v, ok := values[c.name]
		if !ok {
			continue
		}
		names = append(names, quoteIdent(c.name))
		placeholders = append(placeholders, "?")
		args = append(args, sqlArg(v))
		if !pkNames[c.name] {
			updates = append(updates, quoteIdent(c.name)+" = excluded."+quoteIdent(c.name))
		}
	}

	resolution := "DO NOTHING"
	if len(updates) > 0 {
		resolution = "DO UPDATE SET " + strings.Join(updates, ", ")
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s",
		quoteIdent(entry.TableName),
		strings.Join(names, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(conflictCols, ", "),
		resolution,
	)
	if _, err := s.tx.ExecContext(ctx, query, args...); err != nil {
		return applyError(entry, err)
	}
	return nil
}

func (s *session) deleteRow(ctx context.Context, cols []column, entry types.SyncLogEntry) error {
	pk, err := decodeObject(entry.PkValue)
	if err != nil {
		return fmt.Errorf("entry %s pkValue: %v: %w", entry.Ref(), err, types.ErrInvalidInput)
	}

	var (
		conds []string
		args  []any
	)
	for _, c := range pkColumns(cols) {
		v, ok := pk[c.name]
		if !ok {
			return fmt.Errorf("entry %s misses key column %q: %w", entry.Ref(), c.name, types.ErrInvalidInput)
		}
		conds = append(conds, quoteIdent(c.name)+" = ?")
		args = append(args, sqlArg(v))
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s", quoteIdent(entry.TableName), strings.Join(conds, " AND "))
	if _, err := s.tx.ExecContext(ctx, query, args...); err != nil {
		return applyError(entry, err)
	}
	return nil
}

// resetTable wipes a user table and its accumulated log entries.
func (s *session) resetTable(ctx context.Context, table string) error {
	if _, err := s.tx.ExecContext(ctx, `DELETE FROM `+quoteIdent(table)); err != nil {
		return fmt.Errorf("reset table %q: %v: %w", table, err, types.ErrStorage)
	}
	if _, err := s.tx.ExecContext(
		ctx,
		`DELETE FROM __sync_log WHERE table_name = ? COLLATE NOCASE`,
		table,
	); err != nil {
		return fmt.Errorf("reset table %q log: %v: %w", table, err, types.ErrStorage)
	}
	return nil
}

// applyError classifies a user-table write failure. Foreign key violations
// become dependency violations so the caller can defer the entry until its
// parent row arrives; everything else is a storage fault.
func applyError(entry types.SyncLogEntry, err error) error {
	if isForeignKeyViolation(err) {
		return fmt.Errorf("apply %s: %v: %w", entry.Ref(), err, types.ErrDependencyViolation)
	}
	return fmt.Errorf("apply %s: %v: %w", entry.Ref(), err, types.ErrStorage)
}

func isForeignKeyViolation(err error) bool {
	var serr *sqlite.Error
	return errors.As(err, &serr) && serr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
}

// decodeObject decodes a JSON object preserving integer precision: numbers
// come out as json.Number so int64 keys survive the trip.
func decodeObject(raw json.RawMessage) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("expected a json object")
	}
	if obj == nil {
		return nil, fmt.Errorf("expected a json object, got null")
	}
	return obj, nil
}

// sqlArg converts a decoded JSON value to a driver-friendly argument.
// Booleans become 0/1 to match SQLite's integer storage and nested
// structures are stored as JSON text.
func sqlArg(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case bool:
		if val {
			return int64(1)
		}
		return int64(0)
	case nil, string:
		return val
	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(encoded)
	}
}
