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
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/MelbourneDeveloper/DataProvider-sub005/api/types"
	"github.com/MelbourneDeveloper/DataProvider-sub005/internal/validation"
)

// nowMillisExpr is the SQL expression capture triggers use for the entry
// timestamp: UTC epoch milliseconds.
const nowMillisExpr = `CAST(unixepoch('subsec') * 1000 AS INTEGER)`

// Track installs change capture on a user table: three AFTER triggers append
// every local row mutation to the change log unless the suppress flag is
// set. The table needs an explicit primary key. Composite keys are captured
// as a JSON object of all key columns. Track is idempotent and re-running it
// after a schema change refreshes the trigger bodies.
func (s *Store) Track(ctx context.Context, table string) error {
	if !validation.IsValidTableName(table) {
		return fmt.Errorf("malformed table name %q: %w", table, types.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin track %q: %v: %w", table, err, types.ErrStorage)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	cols, err := tableColumns(ctx, tx, table)
	if err != nil {
		return err
	}
	pks := pkColumns(cols)
	if len(pks) == 0 {
		return fmt.Errorf("table %q has no primary key: %w", table, types.ErrInvalidInput)
	}

	for _, stmt := range captureTriggers(table, cols, pks) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("install capture trigger on %q: %v: %w", table, err, types.ErrStorage)
		}
	}
	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO __sync_tables (table_name) VALUES (?) ON CONFLICT (table_name) DO NOTHING`,
		table,
	); err != nil {
		return fmt.Errorf("register tracked table %q: %v: %w", table, err, types.ErrStorage)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit track %q: %v: %w", table, err, types.ErrStorage)
	}
	return nil
}

// TrackedTables returns the tables with capture installed, sorted by name.
func (s *Store) TrackedTables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT table_name FROM __sync_tables ORDER BY table_name ASC`)
	if err != nil {
		return nil, fmt.Errorf("query tracked tables: %v: %w", err, types.ErrStorage)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var table string
		if err := rows.Scan(&table); err != nil {
			return nil, fmt.Errorf("scan tracked table: %v: %w", err, types.ErrStorage)
		}
		tables = append(tables, table)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracked tables: %v: %w", err, types.ErrStorage)
	}
	return tables, nil
}

// captureTriggers renders the drop and create statements for the three
// capture triggers of a table. The operation literals in the bodies are the
// wire operation names, and json_object keys are emitted in sorted order so
// captured keys and payloads line up with the canonical JSON encoding.
func captureTriggers(table string, cols, pks []column) []string {
	var (
		quoted   = quoteIdent(table)
		literal  = quoteText(table)
		newPk    = jsonObjectExpr("NEW", pks)
		oldPk    = jsonObjectExpr("OLD", pks)
		payload  = jsonObjectExpr("NEW", cols)
		origin   = `(SELECT origin FROM __sync_state WHERE id = 1)`
		suppress = `WHEN (SELECT suppress FROM __sync_state WHERE id = 1) = 0`
	)
	name := func(op string) string {
		return quoteIdent("__sync_" + strings.ToLower(table) + "_" + op)
	}

	capture := func(trigger, event, pk, op, body string) string {
		return fmt.Sprintf(`CREATE TRIGGER %s AFTER %s ON %s
%s
BEGIN
	INSERT INTO __sync_log (table_name, pk_value, op, payload, origin, ts_ms)
	VALUES (%s, %s, '%s', %s, %s, %s);
END`, trigger, event, quoted, suppress, literal, pk, op, body, origin, nowMillisExpr)
	}

	return []string{
		`DROP TRIGGER IF EXISTS ` + name("insert"),
		capture(name("insert"), "INSERT", newPk, string(types.OpInsert), payload),
		`DROP TRIGGER IF EXISTS ` + name("update"),
		capture(name("update"), "UPDATE", newPk, string(types.OpUpdate), payload),
		`DROP TRIGGER IF EXISTS ` + name("delete"),
		capture(name("delete"), "DELETE", oldPk, string(types.OpDelete), "NULL"),
	}
}

// column is one user-table column from PRAGMA table_info. pkIndex is zero
// for non-key columns and the 1-based key position otherwise.
type column struct {
	name    string
	pkIndex int
}

func tableColumns(ctx context.Context, q querier, table string) ([]column, error) {
	rows, err := q.QueryContext(ctx, `PRAGMA table_info(`+quoteIdent(table)+`)`)
	if err != nil {
		return nil, fmt.Errorf("inspect table %q: %v: %w", table, err, types.ErrStorage)
	}
	defer rows.Close()

	var cols []column
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, colType    string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("inspect table %q: %v: %w", table, err, types.ErrStorage)
		}
		cols = append(cols, column{name: name, pkIndex: pk})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("inspect table %q: %v: %w", table, err, types.ErrStorage)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %q does not exist: %w", table, types.ErrInvalidInput)
	}
	return cols, nil
}

func pkColumns(cols []column) []column {
	var pks []column
	for _, c := range cols {
		if c.pkIndex > 0 {
			pks = append(pks, c)
		}
	}
	sort.Slice(pks, func(i, j int) bool { return pks[i].pkIndex < pks[j].pkIndex })
	return pks
}

// jsonObjectExpr renders a json_object(...) call over the given columns.
// rowRef prefixes column references with NEW or OLD inside trigger bodies
// and is empty in plain selects.
func jsonObjectExpr(rowRef string, cols []column) string {
	sorted := make([]column, len(cols))
	copy(sorted, cols)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].name < sorted[j].name })

	parts := make([]string, 0, len(sorted))
	for _, c := range sorted {
		ref := quoteIdent(c.name)
		if rowRef != "" {
			ref = rowRef + "." + ref
		}
		parts = append(parts, quoteText(c.name)+", "+ref)
	}
	return "json_object(" + strings.Join(parts, ", ") + ")"
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteText(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}
