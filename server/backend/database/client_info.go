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
	"fmt"
	gotime "time"

	"github.com/MelbourneDeveloper/DataProvider-sub005/api/types"
)

// ClientInfo is the hub-side record of one registered replica.
type ClientInfo struct {
	// OriginID is the stable identifier of the replica and the primary key
	// of the record.
	OriginID string `bson:"_id"`

	// Status is the lifecycle status of the replica.
	Status types.ClientStatus `bson:"status"`

	// ServerVersion is the highest hub version the replica has confirmed
	// consuming. It holds the tombstone purge floor down while the replica
	// is activated.
	ServerVersion int64 `bson:"server_version"`

	// PushedVersion is the highest replica-local version the hub has
	// appended. Pushed entries at or below it are replays and are skipped.
	PushedVersion int64 `bson:"pushed_version"`

	// ResyncRequired is set when the replica fell behind retained history.
	ResyncRequired bool `bson:"resync_required"`

	// CreatedAt is the time the replica first registered.
	CreatedAt gotime.Time `bson:"created_at"`

	// LastSyncedAt is the time of the last successful registration, pull or
	// push.
	LastSyncedAt gotime.Time `bson:"last_synced_at"`
}

// EnsureActivated returns an error unless the client is activated.
func (i *ClientInfo) EnsureActivated() error {
	if i.Status != types.ClientActivated {
		return fmt.Errorf("client %s: %w", i.OriginID, types.ErrClientDeactivated)
	}
	return nil
}

// Activate sets the status of this client to activated.
func (i *ClientInfo) Activate(now gotime.Time) {
	i.Status = types.ClientActivated
	i.LastSyncedAt = now
}

// Deactivate sets the status of this client to deactivated, releasing its
// hold on the purge floor.
func (i *ClientInfo) Deactivate(now gotime.Time) {
	i.Status = types.ClientDeactivated
	i.LastSyncedAt = now
}

// Checkpoint returns the client's cursors as a checkpoint value.
func (i *ClientInfo) Checkpoint() types.Checkpoint {
	return types.NewCheckpoint(i.ServerVersion, i.PushedVersion)
}

// ForwardCheckpoint merges the given checkpoint into the client's cursors,
// keeping the greater value of each, and refreshes the last-synced time.
func (i *ClientInfo) ForwardCheckpoint(cp types.Checkpoint, now gotime.Time) {
	forwarded := i.Checkpoint().Forward(cp)
	i.ServerVersion = forwarded.ServerVersion
	i.PushedVersion = forwarded.PushedVersion
	i.LastSyncedAt = now
}

// ToSyncClient converts the record to its wire representation.
func (i *ClientInfo) ToSyncClient() types.SyncClient {
	return types.SyncClient{
		OriginID:          i.OriginID,
		LastSyncVersion:   i.ServerVersion,
		PushedVersion:     i.PushedVersion,
		LastSyncTimestamp: i.LastSyncedAt,
		CreatedAt:         i.CreatedAt,
		Status:            i.Status,
		ResyncRequired:    i.ResyncRequired,
	}
}

// DeepCopy returns a deep copy of this client info.
func (i *ClientInfo) DeepCopy() *ClientInfo {
	if i == nil {
		return nil
	}
	copied := *i
	return &copied
}
