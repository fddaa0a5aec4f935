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

// Package backend provides the backend implementation of the hub. This
// package is responsible for managing the database and other resources
// required to serve replicas.
package backend

import (
	"errors"
	"fmt"
	"os"

	"github.com/MelbourneDeveloper/DataProvider-sub005/server/backend/background"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/backend/database"
	memdb "github.com/MelbourneDeveloper/DataProvider-sub005/server/backend/database/memory"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/backend/database/mongo"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/backend/housekeeping"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/backend/messagebroker"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/backend/pubsub"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/logging"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/profiling/prometheus"
)

// Backend manages the hub's resources: the database holding the change log
// and client registry, the subscription hub fanning changes out to watch
// streams, and the background services around them.
type Backend struct {
	Config *Config

	// PubSub is used to publish/subscribe change events to/from replicas.
	PubSub *pubsub.PubSub
	// Background is used to manage background tasks.
	Background *background.Background
	// Housekeeping is used to manage background batch tasks.
	Housekeeping *housekeeping.Housekeeping

	// Metrics is used to expose metrics.
	Metrics *prometheus.Metrics
	// DB is the database instance.
	DB database.Database
	// MsgBroker is the message producer instance.
	MsgBroker messagebroker.Broker
}

// New creates a new instance of Backend.
func New(
	conf *Config,
	mongoConf *mongo.Config,
	housekeepingConf *housekeeping.Config,
	metrics *prometheus.Metrics,
	kafkaConf *messagebroker.Config,
) (*Backend, error) {
	// 01. Build the server info with the given hostname or the hostname of
	// the current machine.
	if conf.Hostname == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("os.Hostname: %w", err)
		}
		conf.Hostname = hostname
	}

	// 02. Create the subscription hub and the background task manager.
	pubSub := pubsub.New()
	bg := background.New(metrics)

	// 03. Create the database instance. If the MongoDB configuration is
	// given, create a MongoDB instance. Otherwise, create a memory database
	// instance.
	var db database.Database
	var err error
	if mongoConf != nil {
		db, err = mongo.Dial(mongoConf)
		if err != nil {
			return nil, err
		}
	} else {
		db, err = memdb.New()
		if err != nil {
			return nil, err
		}
	}

	// 04. Create the housekeeping instance. It deactivates stale replicas
	// and purges consumed changes in the background.
	housekeeper, err := housekeeping.New(housekeepingConf, db, pubSub, metrics)
	if err != nil {
		return nil, err
	}

	// 05. Create the message broker instance.
	broker := messagebroker.Ensure(kafkaConf)

	dbInfo := "memory"
	if mongoConf != nil {
		dbInfo = mongoConf.ConnectionURI
	}
	logging.DefaultLogger().Infof("backend created: db: %s", dbInfo)

	return &Backend{
		Config: conf,

		PubSub:       pubSub,
		Background:   bg,
		Housekeeping: housekeeper,

		Metrics:   metrics,
		DB:        db,
		MsgBroker: broker,
	}, nil
}

// Start starts the backend.
func (b *Backend) Start() error {
	if err := b.Housekeeping.Start(); err != nil {
		return err
	}

	logging.DefaultLogger().Infof("backend started")
	return nil
}

// Shutdown closes all resources of this instance.
func (b *Backend) Shutdown() error {
	var errs []error

	if err := b.Housekeeping.Stop(); err != nil {
		errs = append(errs, err)
	}

	b.Background.Close()
	b.PubSub.Close()

	if err := b.MsgBroker.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := b.DB.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	logging.DefaultLogger().Infof("backend stopped")
	return nil
}
