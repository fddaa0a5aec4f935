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
	"fmt"
	"strings"

	"github.com/MelbourneDeveloper/DataProvider-sub005/api/types"
	"github.com/MelbourneDeveloper/DataProvider-sub005/pkg/errors"
)

// Strategy selects how competing entries for the same row are resolved.
type Strategy string

const (
	// LastWriteWins picks the entry with the later capture timestamp,
	// breaking timestamp ties toward the higher version.
	LastWriteWins Strategy = "LastWriteWins"

	// ServerWins always picks the remote entry.
	ServerWins Strategy = "ServerWins"

	// ClientWins always picks the local entry.
	ClientWins Strategy = "ClientWins"

	// CustomMerge delegates to a caller-supplied merge function, which may
	// pick either entry or synthesize a merged one.
	CustomMerge Strategy = "CustomMerge"
)

// IsValid returns true if the strategy is one of the known kinds.
func (s Strategy) IsValid() bool {
	switch s {
	case LastWriteWins, ServerWins, ClientWins, CustomMerge:
		return true
	default:
		return false
	}
}

// MergeFunc synthesizes the entry to apply from two conflicting ones. The
// inputs must not be mutated; return a fresh entry, possibly a copy of one
// of the inputs.
type MergeFunc func(local, remote types.SyncLogEntry) (types.SyncLogEntry, error)

// Resolution is the audited outcome of resolving one conflict.
type Resolution struct {
	// Winner is the entry to apply. It is detached from both inputs.
	Winner types.SyncLogEntry

	// Strategy is the strategy that decided the outcome.
	Strategy Strategy

	// RemoteWon is true when the local pending change lost and must be
	// superseded. Merges count as remote wins: the merged entry replaces
	// the local pending one.
	RemoteWon bool

	// Merged is true when the winner was synthesized rather than selected.
	Merged bool
}

// IsConflict reports whether two entries compete: same row in the same
// table, captured by different origins. Table names compare
// case-insensitively, matching how stores resolve them. Entries whose
// primary keys cannot be canonicalized never conflict.
func IsConflict(a, b types.SyncLogEntry) bool {
	if !strings.EqualFold(a.TableName, b.TableName) || a.Origin == b.Origin {
		return false
	}
	pkA, err := a.CanonicalPk()
	if err != nil {
		return false
	}
	pkB, err := b.CanonicalPk()
	if err != nil {
		return false
	}
	return pkA == pkB
}

// ResolveLastWriteWins picks the winner of two competing entries: the
// strictly greater timestamp wins, equal timestamps break toward the higher
// version, and equal versions break toward the lexicographically greater
// origin so the outcome is total and order-independent.
func ResolveLastWriteWins(a, b types.SyncLogEntry) types.SyncLogEntry {
	if a.Timestamp != b.Timestamp {
		if a.Timestamp > b.Timestamp {
			return a.DeepCopy()
		}
		return b.DeepCopy()
	}
	if a.Version != b.Version {
		if a.Version > b.Version {
			return a.DeepCopy()
		}
		return b.DeepCopy()
	}
	if a.Origin > b.Origin {
		return a.DeepCopy()
	}
	return b.DeepCopy()
}

// Resolve decides between a local pending entry and a remote entry for the
// same row using the given strategy. merge is consulted only for
// CustomMerge. Neither input is mutated.
func Resolve(
	local, remote types.SyncLogEntry,
	strategy Strategy,
	merge MergeFunc,
) (*Resolution, error) {
	switch strategy {
	case LastWriteWins:
		winner := ResolveLastWriteWins(local, remote)
		return &Resolution{
			Winner:    winner,
			Strategy:  LastWriteWins,
			RemoteWon: winner.Origin == remote.Origin && winner.Version == remote.Version,
		}, nil
	case ServerWins:
		return &Resolution{
			Winner:    remote.DeepCopy(),
			Strategy:  ServerWins,
			RemoteWon: true,
		}, nil
	case ClientWins:
		return &Resolution{
			Winner:   local.DeepCopy(),
			Strategy: ClientWins,
		}, nil
	case CustomMerge:
		if merge == nil {
			return nil, errors.InvalidArgument(
				"custom merge strategy without a merge function",
			).WithCode(types.ErrUnknownStrategy.Code())
		}
		winner, err := merge(local, remote)
		if err != nil {
			return nil, fmt.Errorf("merge %s with %s: %w", local.Ref(), remote.Ref(), err)
		}
		return &Resolution{
			Winner:    winner,
			Strategy:  CustomMerge,
			RemoteWon: true,
			Merged:    true,
		}, nil
	default:
		return nil, errors.InvalidArgument(
			fmt.Sprintf("unknown conflict resolution strategy %q", strategy),
		).WithCode(types.ErrUnknownStrategy.Code())
	}
}
