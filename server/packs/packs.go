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

// Package packs implements the hub side of the sync protocol: serving pull
// batches from the change log, appending pushed changes to it, and fanning
// applied changes out to watchers and the change feed.
package packs

import (
	"context"
	"fmt"
	gotime "time"

	"github.com/MelbourneDeveloper/DataProvider-sub005/api/types"
	"github.com/MelbourneDeveloper/DataProvider-sub005/pkg/sync"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/backend"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/backend/database"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/backend/messagebroker"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/logging"
)

// Pull serves one batch of changes above the replica's cursor.
func Pull(
	ctx context.Context,
	be *backend.Backend,
	originID string,
	fromVersion int64,
	batchSize int,
) (*types.SyncBatch, error) {
	start := gotime.Now()
	defer func() {
		be.Metrics.ObservePullResponseSeconds(gotime.Since(start).Seconds())
	}()

	// 01. Ensure the replica is registered and forward its consumed-version
	// cursor. The reported cursor is proof of consumption; it only ever
	// moves forward, so a crashed replica can never be purged past.
	info, err := be.DB.EnsureClient(ctx, originID)
	if err != nil {
		return nil, err
	}
	if fromVersion > info.ServerVersion {
		if _, err := be.DB.UpdateCheckpoint(
			ctx,
			originID,
			types.NewCheckpoint(fromVersion, info.PushedVersion),
		); err != nil {
			return nil, err
		}
	}

	// 02. Refuse to serve a cursor that fell below retained history. The
	// replica has to re-baseline from a snapshot before pulling again.
	oldest, err := be.DB.OldestAvailableVersion(ctx)
	if err != nil {
		return nil, err
	}
	if sync.RequiresFullResync(fromVersion, oldest) {
		if err := be.DB.MarkResyncRequired(ctx, originID); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf(
			"pull of %s from %d, oldest available is %d: %w",
			originID, fromVersion, oldest, types.ErrFullResyncRequired,
		)
	}

	// 03. Fetch one batch above the cursor with its integrity hash attached.
	batch, err := sync.FetchBatch(
		ctx,
		fromVersion,
		be.Config.ClampBatchSize(batchSize),
		func(ctx context.Context, from int64, limit int) ([]types.SyncLogEntry, error) {
			infos, err := be.DB.FindChangesSince(ctx, from, limit)
			if err != nil {
				return nil, err
			}
			entries := make([]types.SyncLogEntry, 0, len(infos))
			for _, info := range infos {
				entries = append(entries, info.ToEntry())
			}
			return entries, nil
		},
	)
	if err != nil {
		return nil, err
	}

	be.Metrics.AddPullSentEntries(be.Config.Hostname, len(batch.Changes))
	return batch, nil
}

// Push appends the replica's changes to the hub log. Entries that fail
// validation are rejected individually and reported back by ref; entries the
// hub has already appended are skipped silently, so re-pushing after a lost
// response is safe.
func Push(
	ctx context.Context,
	be *backend.Backend,
	originID string,
	entries []types.SyncLogEntry,
) (*types.PushResponse, error) {
	start := gotime.Now()
	defer func() {
		be.Metrics.ObservePushResponseSeconds(gotime.Since(start).Seconds())
	}()
	be.Metrics.AddPushReceivedEntries(be.Config.Hostname, len(entries))

	// 01. Validate the pushed entries. A rejected entry does not poison the
	// batch; its ref returns to the pusher in failed, and the pusher decides
	// what to do with it.
	valid := make([]types.SyncLogEntry, 0, len(entries))
	var failed []string
	for i := range entries {
		if err := validateEntry(&entries[i], originID); err != nil {
			logging.From(ctx).Warnf("reject pushed entry: %v", err)
			failed = append(failed, entries[i].Ref())
			continue
		}
		valid = append(valid, entries[i])
	}
	if len(failed) > 0 {
		be.Metrics.AddPushRejectedEntries(be.Config.Hostname, len(failed))
	}

	// 02. Append the surviving entries to the log and fold them into the
	// materialized rows. Versions are assigned here, inside the store
	// transaction, so concurrent pushes interleave without ever colliding.
	appended, err := be.DB.AppendChanges(ctx, originID, valid)
	if err != nil {
		return nil, err
	}
	be.Metrics.AddPushAppliedEntries(be.Config.Hostname, len(appended))

	// 03. Fan the appended changes out to watch streams and the change
	// feed. Delivery is best-effort and must never fail the push, so it
	// happens off the request goroutine.
	if len(appended) > 0 {
		first, last := versionOf(appended)
		logging.From(ctx).Debugf(
			"appended %d changes of %s: versions %d-%d",
			len(appended), originID, first, last,
		)

		events := make([]types.SyncLogEntry, 0, len(appended))
		for _, info := range appended {
			events = append(events, info.ToEntry())
		}
		be.Background.AttachGoroutine(func(ctx context.Context) {
			publishChanges(ctx, be, events)
		}, "publish")
	}

	return &types.PushResponse{
		Applied: len(appended),
		Failed:  failed,
	}, nil
}

// validateEntry applies the shape rules plus the push-specific ones: the
// entry must carry the pusher's own origin and a positive local version.
func validateEntry(entry *types.SyncLogEntry, originID string) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	if entry.Origin != originID {
		return fmt.Errorf(
			"entry %s pushed by %s carries origin %s: %w",
			entry.Ref(), originID, entry.Origin, types.ErrInvalidInput,
		)
	}
	if entry.Version <= 0 {
		return fmt.Errorf(
			"entry %s has no local version: %w",
			entry.Ref(), types.ErrInvalidInput,
		)
	}
	return nil
}

func publishChanges(
	ctx context.Context,
	be *backend.Backend,
	entries []types.SyncLogEntry,
) {
	for _, entry := range entries {
		be.PubSub.Publish(ctx, types.ChangeEvent{
			Type:  types.EventChange,
			Entry: &entry,
		})

		if err := be.MsgBroker.Produce(ctx, messagebroker.ChangeMessage{
			Entry:     entry,
			Timestamp: gotime.Now(),
		}); err != nil {
			be.Metrics.AddBrokerProduceFailures()
			logging.From(ctx).Warnf("produce change %d: %v", entry.Version, err)
		}
	}
}

// versionOf is a convenience for logging the window of a batch of appended
// changes.
func versionOf(infos []*database.ChangeInfo) (int64, int64) {
	if len(infos) == 0 {
		return 0, 0
	}
	return infos[0].Version, infos[len(infos)-1].Version
}
