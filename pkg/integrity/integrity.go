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

// Package integrity computes the content hashes used to verify change
// batches and full datasets. All hashes are SHA-256 over canonical JSON,
// hex-encoded in lowercase, so any two replicas agree on the bytes being
// hashed regardless of platform or field order.
package integrity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/MelbourneDeveloper/DataProvider-sub005/api/types"
	"github.com/MelbourneDeveloper/DataProvider-sub005/pkg/cjson"
)

// ComputeBatchHash hashes the ordered entry list of a batch. The list is
// encoded as one canonical JSON array, so both the entry order and every
// entry field are covered. Pure function: identical input always yields
// identical output.
func ComputeBatchHash(entries []types.SyncLogEntry) (string, error) {
	if entries == nil {
		entries = []types.SyncLogEntry{}
	}

	canonical, err := cjson.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("encode batch: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Row is the hashable identity and content of one materialized row. Log
// versions and origins deliberately stay out: two replicas holding the same
// rows hash identically even though their logs differ.
type Row struct {
	PkValue json.RawMessage `json:"pkValue"`
	Payload json.RawMessage `json:"payload"`
}

// RowFetcher returns the current rows of one table.
type RowFetcher func(ctx context.Context, table string) ([]Row, error)

// ComputeDatabaseHash hashes the full dataset for out-of-band consistency
// audits and snapshot verification. Tables are processed in name order
// (case-insensitive) and each table's rows in canonical primary-key order,
// so the fetcher does not have to guarantee any ordering itself.
func ComputeDatabaseHash(ctx context.Context, tables []string, fetch RowFetcher) (string, error) {
	sorted := make([]string, len(tables))
	copy(sorted, tables)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := strings.ToLower(sorted[i]), strings.ToLower(sorted[j])
		if a == b {
			return sorted[i] < sorted[j]
		}
		return a < b
	})

	digest := sha256.New()
	for _, table := range sorted {
		rows, err := fetch(ctx, table)
		if err != nil {
			return "", fmt.Errorf("fetch rows of %s: %w", table, err)
		}

		ordered, err := sortRows(rows)
		if err != nil {
			return "", fmt.Errorf("order rows of %s: %w", table, err)
		}

		doc, err := cjson.Marshal(map[string]any{
			"table": table,
			"rows":  ordered,
		})
		if err != nil {
			return "", fmt.Errorf("encode rows of %s: %w", table, err)
		}
		digest.Write(doc)
	}

	return hex.EncodeToString(digest.Sum(nil)), nil
}

type keyedRow struct {
	key string
	row Row
}

func sortRows(rows []Row) ([]Row, error) {
	keyed := make([]keyedRow, 0, len(rows))
	for _, row := range rows {
		pk, err := cjson.Canonicalize(row.PkValue)
		if err != nil {
			return nil, fmt.Errorf("canonicalize pk: %w", err)
		}
		keyed = append(keyed, keyedRow{key: string(pk), row: row})
	}

	sort.Slice(keyed, func(i, j int) bool { return keyed[i].key < keyed[j].key })

	ordered := make([]Row, len(keyed))
	for i, kr := range keyed {
		ordered[i] = kr.row
	}
	return ordered, nil
}
