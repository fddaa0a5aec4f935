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
	"fmt"
)

// EventType is the kind of a watch-stream event.
type EventType string

const (
	// EventConnected is emitted once per stream before any change event and
	// carries the subscription id.
	EventConnected EventType = "connected"

	// EventChange carries one applied change entry.
	EventChange EventType = "change"
)

// ChangeEvent is one discrete event on a watch stream. Events are delivered
// in the order the hub observed the changes, best-effort: a full delivery
// queue drops its oldest pending event rather than blocking the publisher.
type ChangeEvent struct {
	Type           EventType     `json:"type"`
	SubscriptionID string        `json:"subscriptionId,omitempty"`
	Entry          *SyncLogEntry `json:"entry,omitempty"`
}

// WatchFilter narrows a watch stream. An empty filter matches every change.
// Tables restricts to the named tables (case insensitive, "*" matches all);
// PkValue additionally restricts to rows whose primary key contains the
// given fields.
type WatchFilter struct {
	Tables  []string        `json:"tables,omitempty"`
	PkValue json.RawMessage `json:"pkValue,omitempty"`
}

// Validate checks the shape rules of the filter: table names must be
// non-empty and the pk value, when present, must be a JSON object.
func (f *WatchFilter) Validate() error {
	for _, table := range f.Tables {
		if table == "" {
			return fmt.Errorf("watch filter has an empty table name: %w", ErrInvalidInput)
		}
	}
	if len(f.PkValue) > 0 {
		if err := validateObject(f.PkValue); err != nil {
			return fmt.Errorf("watch filter pkValue: %v: %w", err, ErrInvalidInput)
		}
	}
	return nil
}
