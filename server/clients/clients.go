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

// Package clients provides the replica registry business logic.
package clients

import (
	"context"

	"github.com/MelbourneDeveloper/DataProvider-sub005/api/types"
	"github.com/MelbourneDeveloper/DataProvider-sub005/pkg/sync"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/backend"
)

// Register registers or reactivates the replica of the given origin. The
// cursor the replica reports is forwarded into its checkpoint so the purge
// floor reflects what the replica has really consumed. If retained history
// no longer reaches the replica's cursor, the replica is flagged for a full
// resync before the record is returned.
func Register(
	ctx context.Context,
	be *backend.Backend,
	originID string,
	lastSyncVersion int64,
) (types.SyncClient, error) {
	info, err := be.DB.EnsureClient(ctx, originID)
	if err != nil {
		return types.SyncClient{}, err
	}

	if lastSyncVersion > info.ServerVersion {
		info, err = be.DB.UpdateCheckpoint(
			ctx,
			originID,
			types.NewCheckpoint(lastSyncVersion, info.PushedVersion),
		)
		if err != nil {
			return types.SyncClient{}, err
		}
	}

	oldest, err := be.DB.OldestAvailableVersion(ctx)
	if err != nil {
		return types.SyncClient{}, err
	}
	if sync.RequiresFullResync(info.ServerVersion, oldest) && !info.ResyncRequired {
		if err := be.DB.MarkResyncRequired(ctx, originID); err != nil {
			return types.SyncClient{}, err
		}
		info.ResyncRequired = true
	}

	return info.ToSyncClient(), nil
}

// Deactivate deactivates the replica of the given origin and closes its
// watch streams. The replica stops holding the purge floor down and must
// register again before syncing.
func Deactivate(
	ctx context.Context,
	be *backend.Backend,
	originID string,
) (types.SyncClient, error) {
	info, err := be.DB.DeactivateClient(ctx, originID)
	if err != nil {
		return types.SyncClient{}, err
	}

	be.PubSub.CloseSubscriber(originID)

	return info.ToSyncClient(), nil
}

// List returns the whole registry along with the version through which the
// change log could be purged without stranding an activated replica.
func List(ctx context.Context, be *backend.Backend) (*types.ClientListResponse, error) {
	infos, err := be.DB.ListClients(ctx)
	if err != nil {
		return nil, err
	}

	replicas := make([]types.SyncClient, 0, len(infos))
	for _, info := range infos {
		replicas = append(replicas, info.ToSyncClient())
	}

	floor, ok := sync.CalculateSafePurgeVersion(replicas)
	if !ok {
		floor = 0
	}

	return &types.ClientListResponse{
		Clients:          replicas,
		SafePurgeVersion: floor,
	}, nil
}
