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

// Package server provides the sync hub which is the main entry point of the
// system. The server is responsible for starting the RPC server and the
// profiling server.
package server

import (
	"context"
	gosync "sync"

	"github.com/MelbourneDeveloper/DataProvider-sub005/api/types"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/backend"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/clients"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/profiling"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/profiling/prometheus"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/rpc"
)

// Hub is a server of DataProvider Sync. It receives changes pushed by
// replicas, stores them in the change log, and propagates them to replicas
// watching the affected tables.
type Hub struct {
	lock gosync.Mutex

	conf            *Config
	backend         *backend.Backend
	rpcServer       *rpc.Server
	profilingServer *profiling.Server

	shutdown   bool
	shutdownCh chan struct{}
}

// New creates a new instance of Hub.
func New(conf *Config) (*Hub, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	metrics, err := prometheus.NewMetrics()
	if err != nil {
		return nil, err
	}

	be, err := backend.New(
		conf.Backend,
		conf.Mongo,
		conf.Housekeeping,
		metrics,
		conf.Kafka,
	)
	if err != nil {
		return nil, err
	}

	rpcServer, err := rpc.NewServer(conf.RPC, be)
	if err != nil {
		return nil, err
	}

	var profilingServer *profiling.Server
	if conf.Profiling != nil {
		profilingServer = profiling.NewServer(conf.Profiling, metrics)
	}

	return &Hub{
		conf:            conf,
		backend:         be,
		rpcServer:       rpcServer,
		profilingServer: profilingServer,
		shutdownCh:      make(chan struct{}),
	}, nil
}

// Start starts the server by opening the rpc port.
func (r *Hub) Start() error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if err := r.backend.Start(); err != nil {
		return err
	}

	if r.profilingServer != nil {
		if err := r.profilingServer.Start(); err != nil {
			return err
		}
	}

	return r.rpcServer.Start()
}

// Shutdown shuts down this hub server.
func (r *Hub) Shutdown(graceful bool) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.shutdown {
		return nil
	}

	r.rpcServer.Shutdown(graceful)
	if r.profilingServer != nil {
		r.profilingServer.Shutdown(graceful)
	}

	if err := r.backend.Shutdown(); err != nil {
		return err
	}

	close(r.shutdownCh)
	r.shutdown = true
	return nil
}

// ShutdownCh returns the shutdown channel.
func (r *Hub) ShutdownCh() <-chan struct{} {
	return r.shutdownCh
}

// RPCAddr returns the address of the RPC.
func (r *Hub) RPCAddr() string {
	return r.conf.RPCAddr()
}

// DeactivateClient deactivates the replica of the given origin. It is used
// for testing.
func (r *Hub) DeactivateClient(ctx context.Context, originID string) (types.SyncClient, error) {
	return clients.Deactivate(ctx, r.backend, originID)
}
