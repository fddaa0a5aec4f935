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

const (
	// DefaultBatchSize is the number of entries fetched per batch when the
	// caller does not configure one.
	DefaultBatchSize = 1000

	// DefaultMaxRetryPasses is the number of passes over deferred entries
	// within one batch before a dependency violation becomes terminal.
	DefaultMaxRetryPasses = 3

	// MaxBatchSize bounds the batch size a caller may request.
	MaxBatchSize = 10000
)

// SyncBatch is a bounded window over a change log. Batches are created fresh
// per fetch, never mutated, and consumed once.
type SyncBatch struct {
	// Changes holds the entries in ascending version order.
	Changes []SyncLogEntry `json:"changes"`

	// FromVersion is the exclusive lower bound the batch was fetched from.
	FromVersion int64 `json:"fromVersion"`

	// ToVersion is the version of the last entry, or FromVersion when the
	// batch is empty. It becomes the cursor once the batch is processed.
	ToVersion int64 `json:"toVersion"`

	// HasMore is true when the window was filled completely, meaning the
	// log may hold further entries beyond ToVersion.
	HasMore bool `json:"hasMore"`

	// Hash is the SHA-256 of the canonical JSON encoding of Changes.
	Hash string `json:"hash"`
}

// Len returns the number of entries in the batch.
func (b *SyncBatch) Len() int {
	return len(b.Changes)
}

// BatchConfig carries the immutable per-cycle sync settings.
type BatchConfig struct {
	// BatchSize is the maximum number of entries per fetched batch.
	BatchSize int `yaml:"BatchSize" json:"batchSize"`

	// MaxRetryPasses is the number of retry passes over entries deferred by
	// dependency violations within one batch.
	MaxRetryPasses int `yaml:"MaxRetryPasses" json:"maxRetryPasses"`
}

// Ensure returns a copy with unset values replaced by defaults.
func (c BatchConfig) Ensure() BatchConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxRetryPasses <= 0 {
		c.MaxRetryPasses = DefaultMaxRetryPasses
	}
	return c
}
