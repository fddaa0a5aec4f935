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

package server

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MelbourneDeveloper/DataProvider-sub005/pkg/sync"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/backend"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/backend/database/mongo"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/backend/housekeeping"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/backend/messagebroker"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/profiling"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/rpc"
)

// Below are the default values of the hub config.
const (
	DefaultRPCPort       = 8080
	DefaultProfilingPort = 8081

	DefaultHousekeepingInterval            = 30 * time.Second
	DefaultHousekeepingCandidatesLimit     = 500
	DefaultHousekeepingInactivityThreshold = sync.DefaultInactivityThreshold

	DefaultMongoConnectionURI                = "mongodb://localhost:27017"
	DefaultMongoConnectionTimeout            = 5 * time.Second
	DefaultMongoPingTimeout                  = 5 * time.Second
	DefaultMongoDatabase                     = "dpsync"
	DefaultMongoMonitoringSlowQueryThreshold = 100 * time.Millisecond

	DefaultKafkaTopic        = "sync-changes"
	DefaultKafkaWriteTimeout = 5 * time.Second

	DefaultPullBatchSize    = 100
	DefaultPullMaxBatchSize = 1000

	DefaultHostname = ""
)

// Config is the configuration for creating a hub instance.
type Config struct {
	RPC          *rpc.Config           `yaml:"RPC"`
	Profiling    *profiling.Config     `yaml:"Profiling"`
	Housekeeping *housekeeping.Config  `yaml:"Housekeeping"`
	Backend      *backend.Config       `yaml:"Backend"`
	Mongo        *mongo.Config         `yaml:"Mongo"`
	Kafka        *messagebroker.Config `yaml:"Kafka"`
}

// NewConfig returns a Config struct that contains reasonable defaults
// for most of the configurations.
func NewConfig() *Config {
	return newConfig(DefaultRPCPort, DefaultProfilingPort)
}

// NewConfigFromFile returns a Config struct for the given conf file.
func NewConfigFromFile(path string) (*Config, error) {
	conf := &Config{}
	bytes, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err = yaml.Unmarshal(bytes, conf); err != nil {
		return nil, fmt.Errorf("unmarshal config file: %w", err)
	}

	conf.ensureDefaultValue()
	return conf, nil
}

// RPCAddr returns the RPC address.
func (c *Config) RPCAddr() string {
	return fmt.Sprintf("localhost:%d", c.RPC.Port)
}

// Validate returns an error if the provided Config is invalidated.
func (c *Config) Validate() error {
	if err := c.RPC.Validate(); err != nil {
		return err
	}

	if err := c.Profiling.Validate(); err != nil {
		return err
	}

	if err := c.Housekeeping.Validate(); err != nil {
		return err
	}

	if err := c.Backend.Validate(); err != nil {
		return err
	}

	if c.Mongo != nil {
		if err := c.Mongo.Validate(); err != nil {
			return err
		}
	}

	if c.Kafka != nil {
		if err := c.Kafka.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// ensureDefaultValue sets the value of the option to which the default value
// should be applied when the user does not input it. Sections the file omits
// entirely are materialized first so a partial config file stays usable.
func (c *Config) ensureDefaultValue() {
	if c.RPC == nil {
		c.RPC = &rpc.Config{}
	}
	if c.Profiling == nil {
		c.Profiling = &profiling.Config{}
	}
	if c.Housekeeping == nil {
		c.Housekeeping = &housekeeping.Config{}
	}
	if c.Backend == nil {
		c.Backend = &backend.Config{}
	}

	if c.RPC.Port == 0 {
		c.RPC.Port = DefaultRPCPort
	}
	if c.RPC.WatchHeartbeatInterval == "" {
		c.RPC.WatchHeartbeatInterval = rpc.DefaultWatchHeartbeatInterval.String()
	}

	if c.Profiling.Port == 0 {
		c.Profiling.Port = DefaultProfilingPort
	}

	if c.Housekeeping.Interval == "" {
		c.Housekeeping.Interval = DefaultHousekeepingInterval.String()
	}
	if c.Housekeeping.InactivityThreshold == "" {
		c.Housekeeping.InactivityThreshold = DefaultHousekeepingInactivityThreshold.String()
	}
	if c.Housekeeping.CandidatesLimit == 0 {
		c.Housekeeping.CandidatesLimit = DefaultHousekeepingCandidatesLimit
	}

	if c.Backend.PullBatchSize == 0 {
		c.Backend.PullBatchSize = DefaultPullBatchSize
	}
	if c.Backend.PullMaxBatchSize == 0 {
		c.Backend.PullMaxBatchSize = DefaultPullMaxBatchSize
	}

	if c.Mongo != nil {
		if c.Mongo.ConnectionURI == "" {
			c.Mongo.ConnectionURI = DefaultMongoConnectionURI
		}

		if c.Mongo.ConnectionTimeout == "" {
			c.Mongo.ConnectionTimeout = DefaultMongoConnectionTimeout.String()
		}

		if c.Mongo.Database == "" {
			c.Mongo.Database = DefaultMongoDatabase
		}

		if c.Mongo.PingTimeout == "" {
			c.Mongo.PingTimeout = DefaultMongoPingTimeout.String()
		}

		if c.Mongo.MonitoringEnabled {
			if c.Mongo.MonitoringSlowQueryThreshold == "" {
				c.Mongo.MonitoringSlowQueryThreshold = DefaultMongoMonitoringSlowQueryThreshold.String()
			}
		}
	}
	if c.Kafka != nil && c.Kafka.Addresses != "" {
		if c.Kafka.Topic == "" {
			c.Kafka.Topic = DefaultKafkaTopic
		}
		if c.Kafka.WriteTimeout == "" {
			c.Kafka.WriteTimeout = DefaultKafkaWriteTimeout.String()
		}
	}
}

func newConfig(port int, profilingPort int) *Config {
	return &Config{
		RPC: &rpc.Config{
			Port: port,
		},
		Profiling: &profiling.Config{
			Port: profilingPort,
		},
		Housekeeping: &housekeeping.Config{
			Interval:            DefaultHousekeepingInterval.String(),
			InactivityThreshold: DefaultHousekeepingInactivityThreshold.String(),
			CandidatesLimit:     DefaultHousekeepingCandidatesLimit,
		},
		Backend: &backend.Config{
			PullBatchSize:    DefaultPullBatchSize,
			PullMaxBatchSize: DefaultPullMaxBatchSize,
		},
	}
}
