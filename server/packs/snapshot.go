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

package packs

import (
	"context"
	"strings"
	gotime "time"

	"github.com/MelbourneDeveloper/DataProvider-sub005/api/types"
	"github.com/MelbourneDeveloper/DataProvider-sub005/pkg/integrity"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/backend"
)

// Snapshot reads the hub's materialized rows of the given tables, or of all
// tables when none are named. Replicas that fell behind retained history
// re-baseline from it instead of pulling the log.
func Snapshot(
	ctx context.Context,
	be *backend.Backend,
	tables []string,
) (*types.SnapshotResponse, error) {
	start := gotime.Now()
	defer func() {
		be.Metrics.ObserveSnapshotDurationSeconds(gotime.Since(start).Seconds())
	}()

	// 01. Pin the version before reading the rows. A push landing between
	// the two reads makes the snapshot newer than the version it reports;
	// re-pulling those changes afterwards is an idempotent no-op. The other
	// order would report a version the rows never saw.
	version, err := be.DB.MaxVersion(ctx)
	if err != nil {
		return nil, err
	}

	infos, err := be.DB.ListRows(ctx, tables)
	if err != nil {
		return nil, err
	}

	rows := make([]types.RowSnapshot, 0, len(infos))
	for _, info := range infos {
		rows = append(rows, info.ToSnapshot())
	}
	be.Metrics.AddSnapshotRows(be.Config.Hostname, len(rows))

	// 02. Hash the dataset being served so the replica can verify what it
	// applied. The hash spans the tables present in the snapshot; a replica
	// re-baselining hashes the same tables after applying the rows.
	hash, err := hashRows(ctx, rows)
	if err != nil {
		return nil, err
	}

	return &types.SnapshotResponse{
		Rows:    rows,
		Version: version,
		Hash:    hash,
	}, nil
}

// hashRows computes the database hash over an already-materialized row set,
// grouped by table.
func hashRows(ctx context.Context, rows []types.RowSnapshot) (string, error) {
	grouped := make(map[string][]integrity.Row)
	var tables []string
	for _, row := range rows {
		key := strings.ToLower(row.TableName)
		if _, ok := grouped[key]; !ok {
			tables = append(tables, row.TableName)
		}
		grouped[key] = append(grouped[key], integrity.Row{
			PkValue: row.PkValue,
			Payload: row.Payload,
		})
	}

	return integrity.ComputeDatabaseHash(
		ctx,
		tables,
		func(_ context.Context, table string) ([]integrity.Row, error) {
			return grouped[strings.ToLower(table)], nil
		},
	)
}
