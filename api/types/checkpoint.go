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
	"fmt"
	"math"
)

const (
	// InitialServerVersion is the cursor of a replica that has pulled
	// nothing yet.
	InitialServerVersion = int64(0)

	// InitialPushedVersion is the watermark of a replica that has pushed
	// nothing yet.
	InitialPushedVersion = int64(0)

	// MaxVersion is the maximum value a log version can take.
	MaxVersion = int64(math.MaxInt64)
)

// InitialCheckpoint is the checkpoint of a freshly registered replica.
var InitialCheckpoint = NewCheckpoint(InitialServerVersion, InitialPushedVersion)

// MaxCheckpoint is the maximum value of Checkpoint.
var MaxCheckpoint = NewCheckpoint(MaxVersion, MaxVersion)

// Checkpoint is the pair of sync cursors of one replica. It is an immutable
// value: the mutators below return new checkpoints.
type Checkpoint struct {
	// ServerVersion is the highest hub version the replica has pulled and
	// applied. The next pull starts just above it.
	ServerVersion int64

	// PushedVersion is the highest replica-local version the hub has
	// acknowledged. The hub skips pushed entries at or below it, which
	// makes re-pushing after a crash idempotent.
	PushedVersion int64
}

// NewCheckpoint creates a new instance of Checkpoint.
func NewCheckpoint(serverVersion, pushedVersion int64) Checkpoint {
	return Checkpoint{
		ServerVersion: serverVersion,
		PushedVersion: pushedVersion,
	}
}

// NextServerVersion creates a new instance with the given server version.
func (cp Checkpoint) NextServerVersion(serverVersion int64) Checkpoint {
	if cp.ServerVersion == serverVersion {
		return cp
	}
	return NewCheckpoint(serverVersion, cp.PushedVersion)
}

// SyncServerVersion updates the server version if the given value is greater
// than the internal value.
func (cp Checkpoint) SyncServerVersion(serverVersion int64) Checkpoint {
	if cp.ServerVersion < serverVersion {
		return NewCheckpoint(serverVersion, cp.PushedVersion)
	}
	return cp
}

// SyncPushedVersion updates the pushed version if the given value is greater
// than the internal value.
func (cp Checkpoint) SyncPushedVersion(pushedVersion int64) Checkpoint {
	if cp.PushedVersion < pushedVersion {
		return NewCheckpoint(cp.ServerVersion, pushedVersion)
	}
	return cp
}

// Forward merges the given checkpoint component-wise, keeping the greater
// value of each cursor.
func (cp Checkpoint) Forward(other Checkpoint) Checkpoint {
	if cp.Equals(other) {
		return cp
	}

	maxServerVersion := cp.ServerVersion
	if maxServerVersion < other.ServerVersion {
		maxServerVersion = other.ServerVersion
	}

	maxPushedVersion := cp.PushedVersion
	if maxPushedVersion < other.PushedVersion {
		maxPushedVersion = other.PushedVersion
	}

	return NewCheckpoint(maxServerVersion, maxPushedVersion)
}

// Equals returns whether the given checkpoint is equal to this checkpoint.
func (cp Checkpoint) Equals(other Checkpoint) bool {
	return cp.ServerVersion == other.ServerVersion &&
		cp.PushedVersion == other.PushedVersion
}

// String returns the string representation of this checkpoint.
func (cp Checkpoint) String() string {
	return fmt.Sprintf("serverVersion=%d, pushedVersion=%d", cp.ServerVersion, cp.PushedVersion)
}
