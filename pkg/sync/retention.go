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
	"time"

	"github.com/MelbourneDeveloper/DataProvider-sub005/api/types"
)

// DefaultInactivityThreshold is how long a replica may stay silent before it
// is reported stale.
const DefaultInactivityThreshold = 90 * 24 * time.Hour

// CalculateSafePurgeVersion returns the highest log version that every
// activated replica has already consumed; entries at or below it can be
// purged without any replica missing history. The second return is false
// when no activated replica exists: with nobody holding the floor down
// there is no safe floor, and purging is disallowed.
func CalculateSafePurgeVersion(clients []types.SyncClient) (int64, bool) {
	floor := int64(0)
	found := false
	for i := range clients {
		if clients[i].Status != types.ClientActivated {
			continue
		}
		if !found || clients[i].LastSyncVersion < floor {
			floor = clients[i].LastSyncVersion
			found = true
		}
	}
	return floor, found
}

// RequiresFullResync reports whether a replica's cursor fell behind retained
// history. The next pull reads entries after clientLastVersion, so the
// replica can still be served incrementally as long as version
// clientLastVersion+1 is retained; anything older means purged entries were
// skipped and the replica must re-baseline from a snapshot.
func RequiresFullResync(clientLastVersion, oldestAvailableVersion int64) bool {
	return clientLastVersion < oldestAvailableVersion-1
}

// FindStaleClients returns the activated replicas that have been silent for
// longer than the threshold and are candidates for administrative pruning.
// A replica that registered but never synced is judged by its registration
// time. A non-positive threshold means DefaultInactivityThreshold.
func FindStaleClients(
	clients []types.SyncClient,
	now time.Time,
	inactivityThreshold time.Duration,
) []types.SyncClient {
	if inactivityThreshold <= 0 {
		inactivityThreshold = DefaultInactivityThreshold
	}
	cutoff := now.Add(-inactivityThreshold)

	var stale []types.SyncClient
	for i := range clients {
		if clients[i].Status != types.ClientActivated {
			continue
		}
		lastSeen := clients[i].LastSyncTimestamp
		if clients[i].CreatedAt.After(lastSeen) {
			lastSeen = clients[i].CreatedAt
		}
		if lastSeen.Before(cutoff) {
			stale = append(stale, clients[i])
		}
	}
	return stale
}
