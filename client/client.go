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

// Package client provides the replica-side handle to the sync hub. A client
// binds a local change-capture store to the hub's JSON API and drives push
// and pull cycles, the change stream and snapshot re-baselining.
package client

import (
	"context"
	"net/http"
	"strings"

	"github.com/MelbourneDeveloper/DataProvider-sub005/api/types"
	"github.com/MelbourneDeveloper/DataProvider-sub005/pkg/sync"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/logging"
)

// Store is the local replica store the client drives. Beyond the
// coordinator's store contract it exposes the replica identity and the
// re-baseline surface. The SQLite store implements it.
type Store interface {
	sync.Store

	// Origin returns the durable replica identity.
	Origin() string

	// TrackedTables returns the tables with change capture installed.
	TrackedTables(ctx context.Context) ([]string, error)

	// ApplySnapshot replaces the given tables with a hub snapshot after
	// verifying its hash, and moves the pull cursor to the snapshot
	// version.
	ApplySnapshot(ctx context.Context, tables []string, rows []types.RowSnapshot, version int64, expectedHash string) error
}

// Client is a replica-side client of the sync hub. It pushes locally
// captured changes, pulls and applies the changes of other replicas, and
// keeps the two sync cursors moving.
type Client struct {
	store       Store
	rpc         *rpcClient
	coordinator *sync.Coordinator
	logger      logging.Logger
}

// Dial creates a client bound to the given hub address and local store. The
// address may omit the scheme; plain host:port dials http.
func Dial(rpcAddr string, store Store, opts ...Option) (*Client, error) {
	options := Options{}
	for _, opt := range opts {
		opt(&options)
	}
	if options.HTTPClient == nil {
		options.HTTPClient = &http.Client{}
	}
	if options.Logger == nil {
		options.Logger = logging.New("client")
	}

	rpc := &rpcClient{
		baseURL: baseURL(rpcAddr),
		origin:  store.Origin(),
		client:  options.HTTPClient,
	}

	var coordOpts []sync.Option
	if options.Strategy != "" {
		coordOpts = append(coordOpts, sync.WithStrategy(options.Strategy))
	}
	if options.MergeFunc != nil {
		coordOpts = append(coordOpts, sync.WithMergeFunc(options.MergeFunc))
	}
	coordinator, err := sync.NewCoordinator(
		store.Origin(),
		store,
		rpc,
		types.BatchConfig{
			BatchSize:      options.BatchSize,
			MaxRetryPasses: options.MaxRetryPasses,
		},
		coordOpts...,
	)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:       store,
		rpc:         rpc,
		coordinator: coordinator,
		logger:      options.Logger,
	}, nil
}

// Origin returns the replica identity this client syncs as.
func (c *Client) Origin() string {
	return c.store.Origin()
}

// Register registers this replica with the hub, reporting the local pull
// cursor so the hub knows which versions this replica has consumed. Pushing
// requires prior registration; re-registering is how a deactivated replica
// comes back.
func (c *Client) Register(ctx context.Context) (*types.SyncClient, error) {
	cp, err := c.store.Checkpoint(ctx)
	if err != nil {
		return nil, err
	}

	registered, err := c.rpc.register(ctx, cp.ServerVersion)
	if err != nil {
		return nil, err
	}
	c.logger.Debugf("registered %s at hub version %d", registered.OriginID, cp.ServerVersion)
	return registered, nil
}

// Push sends locally captured changes to the hub in batches and advances
// the push cursor past what the hub acknowledged.
func (c *Client) Push(ctx context.Context) (*sync.PushResult, error) {
	return c.coordinator.Push(ctx)
}

// Pull fetches hub changes above the pull cursor, verifies each batch hash
// and applies the entries in suppressed transactions. A pull that fails
// with IsFullResyncRequired means the hub purged history this replica never
// consumed; Rebaseline is the recovery.
func (c *Client) Pull(ctx context.Context) (*sync.PullResult, error) {
	return c.coordinator.Pull(ctx)
}

// Sync runs one full cycle: pull first so hub changes are resolved against
// the local pending entries, then push what survived.
func (c *Client) Sync(ctx context.Context) (*sync.SyncResult, error) {
	result, err := c.coordinator.Sync(ctx)
	if err != nil {
		return nil, err
	}
	c.logger.Debugf(
		"synced: pushed %d, applied %d, skipped %d, resolved %d",
		result.Push.Pushed, result.Pull.Applied, result.Pull.Skipped, result.Pull.Resolved,
	)
	return result, nil
}

// Rebaseline rebuilds the given tables, or all tracked tables when none are
// given, from a hub snapshot. The local rows and captured history of those
// tables are discarded, the snapshot hash is verified, and the pull cursor
// moves to the snapshot version so the next pull resumes incrementally.
func (c *Client) Rebaseline(ctx context.Context, tables []string) error {
	if len(tables) == 0 {
		tracked, err := c.store.TrackedTables(ctx)
		if err != nil {
			return err
		}
		tables = tracked
	}

	snapshot, err := c.rpc.snapshot(ctx, tables)
	if err != nil {
		return err
	}
	if err := c.store.ApplySnapshot(ctx, tables, snapshot.Rows, snapshot.Version, snapshot.Hash); err != nil {
		return err
	}

	c.logger.Infof(
		"re-baselined %d tables from hub version %d (%d rows)",
		len(tables), snapshot.Version, len(snapshot.Rows),
	)
	return nil
}

// Clients lists the replicas known to the hub together with the current
// safe purge floor.
func (c *Client) Clients(ctx context.Context) (*types.ClientListResponse, error) {
	return c.rpc.clients(ctx)
}

// Close releases the connections of this client. Watch streams stop through
// their own contexts.
func (c *Client) Close() error {
	c.rpc.client.CloseIdleConnections()
	return nil
}

// ListClients fetches the hub's replica registry. It needs no local store,
// so administrative tooling can call it without opening one.
func ListClients(ctx context.Context, rpcAddr string) (*types.ClientListResponse, error) {
	rpc := &rpcClient{
		baseURL: baseURL(rpcAddr),
		client:  &http.Client{},
	}
	defer rpc.client.CloseIdleConnections()
	return rpc.clients(ctx)
}

// baseURL normalizes a hub address into a base URL. A plain host:port dials
// http.
func baseURL(rpcAddr string) string {
	addr := rpcAddr
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return strings.TrimSuffix(addr, "/")
}
