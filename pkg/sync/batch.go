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
	"github.com/MelbourneDeveloper/DataProvider-sub005/pkg/errors"
	"github.com/MelbourneDeveloper/DataProvider-sub005/pkg/integrity"
)

// FetchBatch reads one bounded batch of changes after fromVersion using
// fetch, and stamps it with the window metadata and integrity hash:
//   - Changes hold at most batchSize entries in ascending version order.
//   - ToVersion is the version of the last entry, or fromVersion when the
//     batch is empty, so the cursor never moves backwards.
//   - HasMore is true exactly when the batch is full; a full batch means
//     another fetch is needed even if it turns out empty.
func FetchBatch(
	ctx context.Context,
	fromVersion int64,
	batchSize int,
	fetch FetchFn,
) (*types.SyncBatch, error) {
	if batchSize <= 0 {
		return nil, errors.InvalidArgument(
			fmt.Sprintf("invalid batch size: %d", batchSize),
		).WithCode(types.ErrInvalidInput.Code())
	}

	changes, err := fetch(ctx, fromVersion, batchSize)
	if err != nil {
		return nil, fmt.Errorf("fetch changes after %d: %w", fromVersion, err)
	}
	if err := checkAscending(fromVersion, changes); err != nil {
		return nil, err
	}

	batch := &types.SyncBatch{
		Changes:     changes,
		FromVersion: fromVersion,
		ToVersion:   fromVersion,
		HasMore:     len(changes) == batchSize,
	}
	if len(changes) > 0 {
		batch.ToVersion = changes[len(changes)-1].Version
	}

	hash, err := integrity.ComputeBatchHash(changes)
	if err != nil {
		return nil, err
	}
	batch.Hash = hash

	return batch, nil
}

// VerifyBatchHash recomputes the batch hash from the received entries and
// compares it with the transmitted one. A mismatch means the batch was
// corrupted or tampered with in transit and must not be applied.
func VerifyBatchHash(batch *types.SyncBatch) error {
	hash, err := integrity.ComputeBatchHash(batch.Changes)
	if err != nil {
		return err
	}
	if hash != batch.Hash {
		return errors.FailedPrecond(fmt.Sprintf(
			"batch hash mismatch: computed %s, received %s",
			hash,
			batch.Hash,
		)).WithCode(types.ErrHashMismatch.Code())
	}
	return nil
}

// checkAscending verifies that every change sits strictly above fromVersion
// in strictly ascending order. Both the local log and the hub promise this;
// a violation means a corrupt source, and applying would scramble the
// single total order replication depends on.
func checkAscending(fromVersion int64, changes []types.SyncLogEntry) error {
	prev := fromVersion
	for i := range changes {
		if changes[i].Version <= prev {
			return errors.Internal(fmt.Sprintf(
				"change log out of order: version %d after %d",
				changes[i].Version,
				prev,
			)).WithCode(types.ErrStorage.Code())
		}
		prev = changes[i].Version
	}
	return nil
}
