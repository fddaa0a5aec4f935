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

package database

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/MelbourneDeveloper/DataProvider-sub005/api/types"
)

// RowInfo is the hub's materialized view of one row, produced by folding the
// change log in version order. It serves snapshots for re-baselining and the
// database hash, and survives log purges: tombstoned rows are removed, so a
// purged Delete is still observable through the rows.
type RowInfo struct {
	// ID is "loweredTable|canonicalPk", see RowKey.
	ID string `bson:"_id"`

	// TableName is the table name as first pushed.
	TableName string `bson:"table_name"`

	// PkValue is the canonical JSON primary key.
	PkValue []byte `bson:"pk_value"`

	// Payload is the row content of the latest applied change.
	Payload []byte `bson:"payload"`

	// Version is the hub version of the latest applied change.
	Version int64 `bson:"version"`

	// Timestamp is the capture timestamp of the latest applied change.
	Timestamp int64 `bson:"timestamp"`

	// Origin is the origin of the latest applied change.
	Origin string `bson:"origin"`
}

// RowKey builds the row identity key from a table name and a canonical
// primary key. Table names fold to lower case so replicas with different
// casings address the same row.
func RowKey(tableName, canonicalPk string) string {
	return strings.ToLower(tableName) + "|" + canonicalPk
}

// ToSnapshot converts the record to its wire representation.
func (i *RowInfo) ToSnapshot() types.RowSnapshot {
	return types.RowSnapshot{
		TableName: i.TableName,
		PkValue:   json.RawMessage(bytes.Clone(i.PkValue)),
		Payload:   json.RawMessage(bytes.Clone(i.Payload)),
		Version:   i.Version,
		Timestamp: i.Timestamp,
		Origin:    i.Origin,
	}
}

// DeepCopy returns a deep copy of this row info.
func (i *RowInfo) DeepCopy() *RowInfo {
	if i == nil {
		return nil
	}
	copied := *i
	copied.PkValue = bytes.Clone(i.PkValue)
	copied.Payload = bytes.Clone(i.Payload)
	return &copied
}
