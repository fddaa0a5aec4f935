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

// Package housekeeping provides the housekeeping service. The housekeeping
// service is responsible for deactivating replicas that have not synced for
// a long time and for trimming the change log below the safe purge floor.
package housekeeping

import (
	"context"
	"time"

	"github.com/MelbourneDeveloper/DataProvider-sub005/api/types"
	"github.com/MelbourneDeveloper/DataProvider-sub005/pkg/sync"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/backend/database"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/backend/pubsub"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/logging"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/profiling/prometheus"
)

// Housekeeping is the housekeeping service. It periodically deactivates
// stale replicas and purges log entries every activated replica has already
// consumed.
type Housekeeping struct {
	database database.Database
	pubSub   *pubsub.PubSub
	metrics  *prometheus.Metrics

	interval            time.Duration
	inactivityThreshold time.Duration
	candidatesLimit     int
	purgeDisabled       bool

	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Start starts the housekeeping service.
func Start(
	conf *Config,
	database database.Database,
	pubSub *pubsub.PubSub,
	metrics *prometheus.Metrics,
) (*Housekeeping, error) {
	h, err := New(conf, database, pubSub, metrics)
	if err != nil {
		return nil, err
	}
	if err := h.Start(); err != nil {
		return nil, err
	}

	return h, nil
}

// New creates a new housekeeping instance.
func New(
	conf *Config,
	database database.Database,
	pubSub *pubsub.PubSub,
	metrics *prometheus.Metrics,
) (*Housekeeping, error) {
	interval, err := conf.ParseInterval()
	if err != nil {
		return nil, err
	}

	threshold, err := conf.ParseInactivityThreshold()
	if err != nil {
		return nil, err
	}

	ctx, cancelFunc := context.WithCancel(context.Background())

	return &Housekeeping{
		database: database,
		pubSub:   pubSub,
		metrics:  metrics,

		interval:            interval,
		inactivityThreshold: threshold,
		candidatesLimit:     conf.CandidatesLimit,
		purgeDisabled:       conf.PurgeDisabled,

		ctx:        ctx,
		cancelFunc: cancelFunc,
	}, nil
}

// Start starts the housekeeping service.
func (h *Housekeeping) Start() error {
	go h.run()
	return nil
}

// Stop stops the housekeeping service.
func (h *Housekeeping) Stop() error {
	h.cancelFunc()

	return nil
}

// run is the housekeeping loop.
func (h *Housekeeping) run() {
	for {
		ctx := context.Background()
		if err := h.sweep(ctx); err != nil {
			logging.From(ctx).Error(err)
		}

		select {
		case <-time.After(h.interval):
		case <-h.ctx.Done():
			return
		}
	}
}

// sweep runs one housekeeping pass: deactivate stale replicas, then purge
// the log below the safe floor.
func (h *Housekeeping) sweep(ctx context.Context) error {
	start := time.Now()

	deactivated, err := h.deactivateStaleClients(ctx)
	if err != nil {
		return err
	}

	purged := int64(0)
	if !h.purgeDisabled {
		purged, err = h.purgeConsumedChanges(ctx)
		if err != nil {
			return err
		}
	}

	if deactivated > 0 || purged > 0 {
		logging.From(ctx).Infof(
			"HSKP: deactivated %d, purged %d, %s",
			deactivated,
			purged,
			time.Since(start),
		)
	}

	return nil
}

// deactivateStaleClients deactivates replicas that have been silent longer
// than the inactivity threshold and severs their watch streams. A
// deactivated replica no longer holds the purge floor down; it re-registers
// on its next sync.
func (h *Housekeeping) deactivateStaleClients(ctx context.Context) (int, error) {
	replicas, err := h.listReplicas(ctx)
	if err != nil {
		return 0, err
	}

	stale := sync.FindStaleClients(replicas, time.Now(), h.inactivityThreshold)
	if h.candidatesLimit > 0 && len(stale) > h.candidatesLimit {
		stale = stale[:h.candidatesLimit]
	}

	deactivated := 0
	for _, replica := range stale {
		if _, err := h.database.DeactivateClient(ctx, replica.OriginID); err != nil {
			return deactivated, err
		}
		h.pubSub.CloseSubscriber(replica.OriginID)
		deactivated++
	}

	if deactivated > 0 {
		h.metrics.AddDeactivatedClients(deactivated)
	}

	return deactivated, nil
}

// purgeConsumedChanges trims the log up to the highest version every
// activated replica has confirmed consuming. With no activated replicas
// there is no safe floor, and the log is left alone.
func (h *Housekeeping) purgeConsumedChanges(ctx context.Context) (int64, error) {
	replicas, err := h.listReplicas(ctx)
	if err != nil {
		return 0, err
	}

	floor, ok := sync.CalculateSafePurgeVersion(replicas)
	if !ok || floor == 0 {
		return 0, nil
	}

	purged, err := h.database.PurgeChanges(ctx, floor)
	if err != nil {
		return 0, err
	}

	if purged > 0 {
		h.metrics.AddPurgedChanges(purged)
	}

	return purged, nil
}

func (h *Housekeeping) listReplicas(ctx context.Context) ([]types.SyncClient, error) {
	infos, err := h.database.ListClients(ctx)
	if err != nil {
		return nil, err
	}

	replicas := make([]types.SyncClient, 0, len(infos))
	for _, info := range infos {
		replicas = append(replicas, info.ToSyncClient())
	}
	return replicas, nil
}
