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

// Package types provides the data model shared by the sync engine, the hub
// server and the replica client.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MelbourneDeveloper/DataProvider-sub005/pkg/cjson"
)

// Operation is the kind of row mutation a log entry describes.
type Operation string

const (
	// OpInsert records a newly created row.
	OpInsert Operation = "Insert"

	// OpUpdate records a modification of an existing row.
	OpUpdate Operation = "Update"

	// OpDelete records a row removal. Delete entries are tombstones: they
	// carry the row identity but no payload.
	OpDelete Operation = "Delete"
)

// IsValid returns true if the operation is one of the known kinds.
func (o Operation) IsValid() bool {
	switch o {
	case OpInsert, OpUpdate, OpDelete:
		return true
	default:
		return false
	}
}

// SyncLogEntry is the atomic unit of change exchanged between replicas.
// Version is assigned by the owning log on append and is the only ordering
// key. Timestamp is the UTC capture instant in milliseconds and is only used
// as the conflict-resolution tiebreaker.
type SyncLogEntry struct {
	Version   int64           `json:"version"`
	TableName string          `json:"tableName"`
	PkValue   json.RawMessage `json:"pkValue"`
	Operation Operation       `json:"operation"`
	Payload   json.RawMessage `json:"payload"`
	Origin    string          `json:"origin"`
	Timestamp int64           `json:"timestamp"`
}

// Ref returns the "version:tableName" identifier used to report failed
// entries on the wire.
func (e *SyncLogEntry) Ref() string {
	return fmt.Sprintf("%d:%s", e.Version, e.TableName)
}

// CanonicalPk returns the canonical JSON form of the primary key. Entries
// for the same row always yield the same string, so it doubles as the
// row identity key for conflict detection and routing.
func (e *SyncLogEntry) CanonicalPk() (string, error) {
	pk, err := cjson.Canonicalize(e.PkValue)
	if err != nil {
		return "", fmt.Errorf("canonicalize pk of %s: %w", e.Ref(), ErrInvalidInput)
	}
	return string(pk), nil
}

// Time returns the capture instant of the entry in UTC.
func (e *SyncLogEntry) Time() time.Time {
	return TimeFromMillis(e.Timestamp)
}

// DeepCopy returns a copy of the entry with its raw JSON detached.
func (e *SyncLogEntry) DeepCopy() SyncLogEntry {
	copied := *e
	copied.PkValue = bytes.Clone(e.PkValue)
	copied.Payload = bytes.Clone(e.Payload)
	return copied
}

// Validate checks the shape rules of the entry: a table name, a known
// operation, a UUID-shaped origin, a positive capture timestamp, a JSON
// object primary key, and a payload that is an object for Insert/Update and
// null for Delete.
func (e *SyncLogEntry) Validate() error {
	if e.TableName == "" {
		return fmt.Errorf("entry has no table name: %w", ErrInvalidInput)
	}
	if !e.Operation.IsValid() {
		return fmt.Errorf("entry %s has unknown operation %q: %w", e.Ref(), e.Operation, ErrInvalidInput)
	}
	if _, err := uuid.Parse(e.Origin); err != nil {
		return fmt.Errorf("entry %s has malformed origin %q: %w", e.Ref(), e.Origin, ErrInvalidInput)
	}
	if e.Timestamp <= 0 {
		return fmt.Errorf("entry %s has no capture timestamp: %w", e.Ref(), ErrInvalidInput)
	}

	if err := validateObject(e.PkValue); err != nil {
		return fmt.Errorf("entry %s pkValue: %v: %w", e.Ref(), err, ErrInvalidInput)
	}

	if e.Operation == OpDelete {
		if !IsNullJSON(e.Payload) {
			return fmt.Errorf("delete entry %s carries a payload: %w", e.Ref(), ErrInvalidInput)
		}
		return nil
	}
	if err := validateObject(e.Payload); err != nil {
		return fmt.Errorf("entry %s payload: %v: %w", e.Ref(), err, ErrInvalidInput)
	}
	return nil
}

// IsNullJSON returns true if the raw value is absent or the JSON null
// literal.
func IsNullJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func validateObject(raw json.RawMessage) error {
	if IsNullJSON(raw) {
		return fmt.Errorf("expected a json object, got null")
	}

	var object map[string]json.RawMessage
	if err := json.Unmarshal(raw, &object); err != nil {
		return fmt.Errorf("expected a json object")
	}
	if len(object) == 0 {
		return fmt.Errorf("expected a non-empty json object")
	}
	return nil
}

// Millis converts a time to UTC milliseconds since the epoch.
func Millis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

// TimeFromMillis converts UTC epoch milliseconds back to a time.
func TimeFromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
