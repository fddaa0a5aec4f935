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
	"fmt"
	gotime "time"

	"github.com/MelbourneDeveloper/DataProvider-sub005/api/types"
)

// ChangeInfo is one entry of the hub's change log. Version is the hub-wide
// total order; LocalVersion is the version the pushing replica assigned,
// kept for push deduplication and auditing.
type ChangeInfo struct {
	ID           string      `bson:"_id"`
	Version      int64       `bson:"version"`
	TableName    string      `bson:"table_name"`
	PkValue      []byte      `bson:"pk_value"`
	Operation    string      `bson:"operation"`
	Payload      []byte      `bson:"payload"`
	Origin       string      `bson:"origin"`
	Timestamp    int64       `bson:"timestamp"`
	LocalVersion int64       `bson:"local_version"`
	CreatedAt    gotime.Time `bson:"created_at"`
}

// NewChangeInfoFromEntry builds a log record from a pushed entry. The entry
// keeps its capture timestamp and origin; the hub version is assigned later,
// at append time.
func NewChangeInfoFromEntry(entry types.SyncLogEntry) (*ChangeInfo, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	return &ChangeInfo{
		TableName:    entry.TableName,
		PkValue:      bytes.Clone(entry.PkValue),
		Operation:    string(entry.Operation),
		Payload:      bytes.Clone(entry.Payload),
		Origin:       entry.Origin,
		Timestamp:    entry.Timestamp,
		LocalVersion: entry.Version,
	}, nil
}

// ToEntry converts the record to its wire representation.
func (i *ChangeInfo) ToEntry() types.SyncLogEntry {
	payload := json.RawMessage(bytes.Clone(i.Payload))
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return types.SyncLogEntry{
		Version:   i.Version,
		TableName: i.TableName,
		PkValue:   json.RawMessage(bytes.Clone(i.PkValue)),
		Operation: types.Operation(i.Operation),
		Payload:   payload,
		Origin:    i.Origin,
		Timestamp: i.Timestamp,
	}
}

// RowKey returns the identity of the row this change touches, as
// "loweredTable|canonicalPk".
func (i *ChangeInfo) RowKey() (string, error) {
	entry := i.ToEntry()
	pk, err := entry.CanonicalPk()
	if err != nil {
		return "", fmt.Errorf("row key of change %d: %w", i.Version, err)
	}
	return RowKey(i.TableName, pk), nil
}

// DeepCopy returns a deep copy of this change info.
func (i *ChangeInfo) DeepCopy() *ChangeInfo {
	if i == nil {
		return nil
	}
	copied := *i
	copied.PkValue = bytes.Clone(i.PkValue)
	copied.Payload = bytes.Clone(i.Payload)
	return &copied
}
