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
	"time"
)

// ClientStatus is the lifecycle status of a registered replica.
type ClientStatus string

const (
	// ClientActivated means the replica is registered and participating in
	// sync. Only activated clients hold the tombstone purge floor down.
	ClientActivated ClientStatus = "activated"

	// ClientDeactivated means the replica was pruned after prolonged
	// inactivity. It no longer blocks log purging and must re-register.
	ClientDeactivated ClientStatus = "deactivated"
)

// SyncClient is the hub-side bookkeeping record of one replica.
type SyncClient struct {
	// OriginID is the stable identifier of the replica.
	OriginID string `json:"originId"`

	// LastSyncVersion is the highest hub version the replica has confirmed
	// consuming. The tombstone purge floor is the minimum of these values
	// across activated clients.
	LastSyncVersion int64 `json:"lastSyncVersion"`

	// PushedVersion is the highest replica-local version the hub has
	// acknowledged (push dedupe watermark).
	PushedVersion int64 `json:"pushedVersion"`

	// LastSyncTimestamp is the time of the replica's last successful
	// registration, pull or push.
	LastSyncTimestamp time.Time `json:"lastSyncTimestamp"`

	// CreatedAt is the time the replica first registered.
	CreatedAt time.Time `json:"createdAt"`

	Status ClientStatus `json:"status"`

	// ResyncRequired is set when the replica's cursor fell behind retained
	// history and its next pull cannot be served incrementally.
	ResyncRequired bool `json:"resyncRequired"`
}

// Checkpoint returns the replica's cursors as a checkpoint value.
func (c *SyncClient) Checkpoint() Checkpoint {
	return NewCheckpoint(c.LastSyncVersion, c.PushedVersion)
}
