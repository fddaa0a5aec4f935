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

package types

import (
	"encoding/json"
)

// RegisterRequest registers or refreshes a replica with the hub.
type RegisterRequest struct {
	OriginID        string `json:"originId" validate:"required,origin_id"`
	LastSyncVersion int64  `json:"lastSyncVersion" validate:"min=0"`
}

// PullRequest asks the hub for one batch of changes above FromVersion.
type PullRequest struct {
	OriginID    string `json:"originId" validate:"required,origin_id"`
	FromVersion int64  `json:"fromVersion" validate:"min=0"`
	BatchSize   int    `json:"batchSize" validate:"min=0,max=10000"`
}

// PushRequest submits locally captured changes to the hub.
type PushRequest struct {
	OriginID string         `json:"originId" validate:"required,origin_id"`
	Changes  []SyncLogEntry `json:"changes" validate:"required"`
}

// PushResponse reports how many pushed entries the hub appended and which
// entries it rejected, identified by "version:tableName".
type PushResponse struct {
	Applied int      `json:"applied"`
	Failed  []string `json:"failed"`
}

// RowSnapshot is one materialized row served by the snapshot endpoint.
type RowSnapshot struct {
	TableName string          `json:"tableName"`
	PkValue   json.RawMessage `json:"pkValue"`
	Payload   json.RawMessage `json:"payload"`
	Version   int64           `json:"version"`
	Timestamp int64           `json:"timestamp"`
	Origin    string          `json:"origin"`
}

// SnapshotResponse carries the hub's full materialized dataset for
// re-baselining, with the database hash over it for verification.
type SnapshotResponse struct {
	Rows    []RowSnapshot `json:"rows"`
	Version int64         `json:"version"`
	Hash    string        `json:"hash"`
}

// ClientListResponse is the admin view of the registry.
type ClientListResponse struct {
	Clients []SyncClient `json:"clients"`

	// SafePurgeVersion is the current tombstone purge floor, or 0 when no
	// activated client exists (purge disallowed).
	SafePurgeVersion int64 `json:"safePurgeVersion"`
}

// ErrorResponse is the JSON body of every non-2xx API response.
type ErrorResponse struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
