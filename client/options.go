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

package client

import (
	"net/http"

	"github.com/MelbourneDeveloper/DataProvider-sub005/pkg/sync"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/logging"
)

// Option configures Options.
type Option func(*Options)

// Options configures how we set up the client.
type Options struct {
	// Strategy is the conflict resolution strategy applied when a pulled
	// change collides with a pending local one. Defaults to LastWriteWins.
	Strategy sync.Strategy

	// MergeFunc is the merge function of the CustomMerge strategy.
	MergeFunc sync.MergeFunc

	// BatchSize is the maximum number of entries per push or pull batch.
	BatchSize int

	// MaxRetryPasses is the number of retry passes over entries deferred
	// within one batch by dependency violations.
	MaxRetryPasses int

	// HTTPClient is the HTTP client used for hub requests. Defaults to a
	// dedicated client without timeout, since the watch stream is
	// long-lived.
	HTTPClient *http.Client

	// Logger is the Logger of the client.
	Logger logging.Logger
}

// WithStrategy configures the conflict resolution strategy of the client.
func WithStrategy(strategy sync.Strategy) Option {
	return func(o *Options) { o.Strategy = strategy }
}

// WithMergeFunc configures the merge function of the client and selects the
// CustomMerge strategy.
func WithMergeFunc(merge sync.MergeFunc) Option {
	return func(o *Options) {
		o.Strategy = sync.CustomMerge
		o.MergeFunc = merge
	}
}

// WithBatchSize configures the sync batch size of the client.
func WithBatchSize(batchSize int) Option {
	return func(o *Options) { o.BatchSize = batchSize }
}

// WithMaxRetryPasses configures the deferred retry passes of the client.
func WithMaxRetryPasses(passes int) Option {
	return func(o *Options) { o.MaxRetryPasses = passes }
}

// WithHTTPClient configures the HTTP client used for hub requests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *Options) { o.HTTPClient = httpClient }
}

// WithLogger configures the Logger of the client.
func WithLogger(logger logging.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}
