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
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MelbourneDeveloper/DataProvider-sub005/api/types"
	"github.com/MelbourneDeveloper/DataProvider-sub005/internal/validation"
	"github.com/MelbourneDeveloper/DataProvider-sub005/pkg/integrity"
)

// Rows returns every row of a table with its key and full payload rendered
// as JSON objects with sorted keys. Ordering is left to the hash routine.
// Satisfies integrity.RowFetcher.
func (s *Store) Rows(ctx context.Context, table string) ([]integrity.Row, error) {
	return readRows(ctx, s.db, table)
}

// DatabaseHash computes the integrity hash over the given tables, or over
// all tracked tables when none are given.
func (s *Store) DatabaseHash(ctx context.Context, tables []string) (string, error) {
	if len(tables) == 0 {
		tracked, err := s.TrackedTables(ctx)
		if err != nil {
			return "", err
		}
		tables = tracked
	}
	return integrity.ComputeDatabaseHash(ctx, tables, s.Rows)
}

// ResetTable wipes one table and its accumulated log entries under
// suppression. Wiping a parent table whose children live elsewhere fails on
// the foreign key; re-baseline resets parent and child together through
// ApplySnapshot instead.
func (s *Store) ResetTable(ctx context.Context, table string) error {
	if !validation.IsValidTableName(table) {
		return fmt.Errorf("malformed table name %q: %w", table, types.ErrInvalidInput)
	}
	return s.runSuppressed(ctx, func(sess *session) error {
		return sess.resetTable(ctx, table)
	})
}

// ApplySnapshot replaces the content of the given tables with a hub snapshot
// inside one suppressed transaction: wipe, re-insert, verify the database
// hash against the hub's, then move the pull cursor to the snapshot version.
// A hash mismatch rolls everything back. Foreign key checks are deferred to
// commit so parent and child tables load in any order.
func (s *Store) ApplySnapshot(ctx context.Context, tables []string, rows []types.RowSnapshot, version int64, expectedHash string) error {
	for _, table := range tables {
		if !validation.IsValidTableName(table) {
			return fmt.Errorf("malformed table name %q: %w", table, types.ErrInvalidInput)
		}
	}

	return s.runSuppressed(ctx, func(sess *session) error {
		if _, err := sess.tx.ExecContext(ctx, `PRAGMA defer_foreign_keys = 1`); err != nil {
			return fmt.Errorf("defer foreign keys: %v: %w", err, types.ErrStorage)
		}

		for _, table := range tables {
			if err := sess.resetTable(ctx, table); err != nil {
				return err
			}
		}
		for _, row := range rows {
			entry := types.SyncLogEntry{
				TableName: row.TableName,
				PkValue:   row.PkValue,
				Operation: types.OpInsert,
				Payload:   row.Payload,
			}
			if err := sess.ApplyChange(ctx, entry); err != nil {
				return err
			}
		}

		// Hash through the transaction: it must see the rows staged above.
		// The hash spans the tables present in the snapshot, matching what
		// the hub hashed when it served it; a requested table the hub had
		// no rows for stays out on both sides.
		var hashTables []string
		seen := make(map[string]bool)
		for _, row := range rows {
			key := strings.ToLower(row.TableName)
			if !seen[key] {
				seen[key] = true
				hashTables = append(hashTables, row.TableName)
			}
		}
		hash, err := integrity.ComputeDatabaseHash(ctx, hashTables, func(ctx context.Context, table string) ([]integrity.Row, error) {
			return readRows(ctx, sess.tx, table)
		})
		if err != nil {
			return err
		}
		if expectedHash != "" && hash != expectedHash {
			return fmt.Errorf(
				"snapshot hash %s does not match rebuilt state %s: %w",
				expectedHash, hash, types.ErrHashMismatch,
			)
		}

		cp, err := sess.Checkpoint()
		if err != nil {
			return err
		}
		return sess.SetCheckpoint(cp.SyncServerVersion(version))
	})
}

func readRows(ctx context.Context, q querier, table string) ([]integrity.Row, error) {
	cols, err := tableColumns(ctx, q, table)
	if err != nil {
		return nil, err
	}
	pks := pkColumns(cols)
	if len(pks) == 0 {
		return nil, fmt.Errorf("table %q has no primary key: %w", table, types.ErrInvalidInput)
	}

	query := fmt.Sprintf(
		`SELECT %s, %s FROM %s`,
		jsonObjectExpr("", pks),
		jsonObjectExpr("", cols),
		quoteIdent(table),
	)
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("read rows of %q: %v: %w", table, err, types.ErrStorage)
	}
	defer rows.Close()

	var out []integrity.Row
	for rows.Next() {
		var pk, payload string
		if err := rows.Scan(&pk, &payload); err != nil {
			return nil, fmt.Errorf("scan row of %q: %v: %w", table, err, types.ErrStorage)
		}
		out = append(out, integrity.Row{
			PkValue: json.RawMessage(pk),
			Payload: json.RawMessage(payload),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read rows of %q: %v: %w", table, err, types.ErrStorage)
	}
	return out, nil
}
