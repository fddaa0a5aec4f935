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

package sync

import (
	"context"
	"fmt"

	"github.com/MelbourneDeveloper/DataProvider-sub005/api/types"
	"github.com/MelbourneDeveloper/DataProvider-sub005/internal/validation"
	"github.com/MelbourneDeveloper/DataProvider-sub005/pkg/errors"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/logging"
)

// Coordinator drives the pull and push cycles of one replica against its
// local store and the remote hub. A coordinator is safe for use by a single
// goroutine at a time; callers that sync concurrently must serialize.
type Coordinator struct {
	origin   string
	store    Store
	remote   Remote
	conf     types.BatchConfig
	strategy Strategy
	merge    MergeFunc
	onApply  func(types.SyncLogEntry)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithStrategy sets the conflict resolution strategy. Defaults to
// LastWriteWins.
func WithStrategy(strategy Strategy) Option {
	return func(c *Coordinator) {
		c.strategy = strategy
	}
}

// WithMergeFunc supplies the merge function used by the CustomMerge
// strategy.
func WithMergeFunc(merge MergeFunc) Option {
	return func(c *Coordinator) {
		c.merge = merge
	}
}

// WithApplyHook registers a callback invoked after each remote entry is
// applied, before the batch commits. Used by embedders to refresh local
// views; the hook must not write to the store.
func WithApplyHook(hook func(types.SyncLogEntry)) Option {
	return func(c *Coordinator) {
		c.onApply = hook
	}
}

// NewCoordinator creates a coordinator for the replica identified by origin.
func NewCoordinator(
	origin string,
	store Store,
	remote Remote,
	conf types.BatchConfig,
	opts ...Option,
) (*Coordinator, error) {
	if !validation.IsValidOriginID(origin) {
		return nil, errors.InvalidArgument(
			fmt.Sprintf("malformed origin id %q", origin),
		).WithCode(types.ErrInvalidInput.Code())
	}

	c := &Coordinator{
		origin:   origin,
		store:    store,
		remote:   remote,
		conf:     conf.Ensure(),
		strategy: LastWriteWins,
	}
	for _, opt := range opts {
		opt(c)
	}

	if !c.strategy.IsValid() {
		return nil, errors.InvalidArgument(
			fmt.Sprintf("unknown conflict resolution strategy %q", c.strategy),
		).WithCode(types.ErrUnknownStrategy.Code())
	}
	if c.strategy == CustomMerge && c.merge == nil {
		return nil, errors.InvalidArgument(
			"custom merge strategy without a merge function",
		).WithCode(types.ErrUnknownStrategy.Code())
	}
	return c, nil
}

// Sync runs one full cycle: pull first, then push. Pulling first is what
// makes conflict resolution work: hub changes meet the local pending entries
// for the same rows while those are still pending, so a losing local change
// is superseded before it can reach the hub and a winning one propagates on
// the push that follows.
func (c *Coordinator) Sync(ctx context.Context) (*SyncResult, error) {
	pulled, err := c.Pull(ctx)
	if err != nil {
		return nil, err
	}
	pushed, err := c.Push(ctx)
	if err != nil {
		return nil, err
	}
	return &SyncResult{Push: pushed, Pull: pulled}, nil
}

// Pull fetches hub changes above the server cursor batch by batch and
// applies them to the local store. Each batch is verified, applied and
// cursor-advanced inside a single suppressed transaction, so a crash can
// only lose whole batches, which a later pull re-fetches and the idempotent
// apply absorbs.
func (c *Coordinator) Pull(ctx context.Context) (*PullResult, error) {
	cp, err := c.store.Checkpoint(ctx)
	if err != nil {
		return nil, err
	}

	res := &PullResult{Checkpoint: cp}
	for {
		// 01. Fetch one batch after the server cursor.
		batch, err := c.remote.PullBatch(ctx, cp.ServerVersion, c.conf.BatchSize)
		if err != nil {
			return nil, err
		}

		// 02. Verify the batch before touching the store.
		if err := VerifyBatchHash(batch); err != nil {
			return nil, err
		}
		if err := checkAscending(batch.FromVersion, batch.Changes); err != nil {
			return nil, err
		}
		if batch.Len() == 0 {
			break
		}
		res.Batches++

		// 03. Apply the batch and stage the cursor advance in one
		// suppressed transaction.
		next := cp.SyncServerVersion(batch.ToVersion)
		stats := applyStats{}
		if err := c.store.RunSuppressed(ctx, func(s Session) error {
			var aerr error
			stats, aerr = c.applyBatch(ctx, s, batch)
			if aerr != nil {
				return aerr
			}
			return s.SetCheckpoint(next)
		}); err != nil {
			return nil, err
		}

		res.Applied += stats.applied
		res.Skipped += stats.skipped
		res.Resolved += stats.resolved

		// 04. Loop while the window is not drained. The cursor can only
		// move forward; a batch that fails to advance it ends the cycle.
		if next.Equals(cp) {
			break
		}
		cp = next
		res.Checkpoint = cp
		if !batch.HasMore {
			break
		}
	}

	logging.From(ctx).Debugf(
		"PULL: origin=%s applied=%d skipped=%d resolved=%d batches=%d, %s",
		c.origin, res.Applied, res.Skipped, res.Resolved, res.Batches, res.Checkpoint,
	)
	return res, nil
}

// Push sends locally captured changes above the push watermark to the hub
// batch by batch. The watermark advances only after the hub acknowledges a
// batch; a crash in between causes a re-push, which the hub deduplicates.
func (c *Coordinator) Push(ctx context.Context) (*PushResult, error) {
	cp, err := c.store.Checkpoint(ctx)
	if err != nil {
		return nil, err
	}

	res := &PushResult{Checkpoint: cp}
	for {
		// 01. Assemble one batch of pending local changes.
		batch, err := FetchBatch(ctx, cp.PushedVersion, c.conf.BatchSize, c.store.FetchChanges)
		if err != nil {
			return nil, err
		}
		if batch.Len() == 0 {
			break
		}
		res.Batches++

		// 02. Submit. The hub assigns its own versions and skips entries
		// it has already acknowledged.
		resp, err := c.remote.PushChanges(ctx, batch.Changes)
		if err != nil {
			return nil, err
		}
		if len(resp.Failed) > 0 {
			return nil, &SyncFailedError{Refs: resp.Failed, Kind: types.ErrInvalidInput}
		}
		res.Pushed += resp.Applied

		// 03. Advance the watermark now that the batch is acknowledged.
		cp = cp.SyncPushedVersion(batch.ToVersion)
		if err := c.store.SetCheckpoint(ctx, cp); err != nil {
			return nil, err
		}
		res.Checkpoint = cp

		if !batch.HasMore {
			break
		}
	}

	logging.From(ctx).Debugf(
		"PUSH: origin=%s pushed=%d batches=%d, %s",
		c.origin, res.Pushed, res.Batches, res.Checkpoint,
	)
	return res, nil
}

type applyStats struct {
	applied  int
	skipped  int
	resolved int
}

// applyBatch applies one verified batch inside the given session: first pass
// in ascending version order with echo skipping and conflict resolution,
// then retry passes over entries deferred on dependency violations.
func (c *Coordinator) applyBatch(
	ctx context.Context,
	s Session,
	batch *types.SyncBatch,
) (applyStats, error) {
	stats := applyStats{}

	// 01. First pass in ascending version order.
	var deferred []types.SyncLogEntry
	for _, entry := range batch.Changes {
		if entry.Origin == c.origin {
			stats.skipped++
			continue
		}

		winner, apply, err := c.resolveAgainstPending(ctx, s, entry, &stats)
		if err != nil {
			return stats, err
		}
		if !apply {
			continue
		}

		wait, err := c.applyEntry(ctx, s, winner, &stats)
		if err != nil {
			return stats, err
		}
		if wait {
			deferred = append(deferred, winner)
		}
	}

	// 02. Retry deferred entries, still in version order, until the pass
	// budget is spent or a pass stops making progress.
	for pass := 0; pass < c.conf.MaxRetryPasses && len(deferred) > 0; pass++ {
		var still []types.SyncLogEntry
		for _, entry := range deferred {
			wait, err := c.applyEntry(ctx, s, entry, &stats)
			if err != nil {
				return stats, err
			}
			if wait {
				still = append(still, entry)
			}
		}
		if len(still) == len(deferred) {
			deferred = still
			break
		}
		deferred = still
	}

	// 03. Whatever is still failing is a hard batch failure. Returning the
	// error rolls the whole transaction back, cursor included.
	if len(deferred) > 0 {
		return stats, newSyncFailed(deferred, types.ErrDependencyViolation)
	}
	return stats, nil
}

// resolveAgainstPending checks one remote entry against un-pushed local
// changes for the same row. It returns the entry to apply and whether to
// apply at all: a local win discards the remote entry, a remote win
// supersedes the local pending chain, and a merge additionally recaptures
// the synthesized entry so it propagates on the next push.
func (c *Coordinator) resolveAgainstPending(
	ctx context.Context,
	s Session,
	entry types.SyncLogEntry,
	stats *applyStats,
) (types.SyncLogEntry, bool, error) {
	pk, err := entry.CanonicalPk()
	if err != nil {
		return entry, false, err
	}
	pending, err := s.PendingForKey(ctx, entry.TableName, pk)
	if err != nil {
		return entry, false, err
	}
	if len(pending) == 0 {
		return entry, true, nil
	}

	local := pending[len(pending)-1]
	if !IsConflict(local, entry) {
		return entry, true, nil
	}

	resolution, err := Resolve(local, entry, c.strategy, c.merge)
	if err != nil {
		return entry, false, err
	}
	stats.resolved++
	logging.From(ctx).Debugf(
		"CONF: %s vs %s on %s, strategy=%s remoteWon=%t",
		local.Ref(), entry.Ref(), entry.TableName, resolution.Strategy, resolution.RemoteWon,
	)

	if !resolution.RemoteWon {
		return entry, false, nil
	}

	versions := make([]int64, len(pending))
	for i := range pending {
		versions[i] = pending[i].Version
	}
	if err := s.MarkSuperseded(ctx, versions); err != nil {
		return entry, false, err
	}
	if resolution.Merged {
		if err := s.Recapture(ctx, resolution.Winner); err != nil {
			return entry, false, err
		}
	}
	return resolution.Winner, true, nil
}

// applyEntry applies one entry, reporting dependency violations as a request
// to defer instead of an error.
func (c *Coordinator) applyEntry(
	ctx context.Context,
	s Session,
	entry types.SyncLogEntry,
	stats *applyStats,
) (bool, error) {
	if err := s.ApplyChange(ctx, entry); err != nil {
		if types.IsDependencyViolation(err) {
			return true, nil
		}
		return false, err
	}
	stats.applied++
	if c.onApply != nil {
		c.onApply(entry)
	}
	return false, nil
}
