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

// Package messagebroker provides the change-feed integration of the hub.
// Every entry the hub appends is produced to the broker so downstream
// consumers (audit, ETL) can follow the log without polling.
package messagebroker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/MelbourneDeveloper/DataProvider-sub005/api/types"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/logging"
)

// Message represents a message that can be sent to the message broker.
type Message interface {
	Key() []byte
	Marshal() ([]byte, error)
}

// ChangeMessage represents one appended log entry.
type ChangeMessage struct {
	Entry     types.SyncLogEntry `json:"entry"`
	Timestamp time.Time          `json:"timestamp"`
}

// Key returns the partition key of the message. Changes are keyed by the
// lowered table name so consumers see each table's changes in order.
func (m ChangeMessage) Key() []byte {
	return []byte(strings.ToLower(m.Entry.TableName))
}

// Marshal marshals the change message to JSON.
func (m ChangeMessage) Marshal() ([]byte, error) {
	encoded, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	return encoded, nil
}

// Broker is an interface for the message broker.
type Broker interface {
	Produce(ctx context.Context, msg Message) error
	Close() error
}

// Ensure creates a message broker based on the given configuration. If the
// configuration is nil or invalid, it returns a DummyBroker, allowing
// callers to use the broker without nil checks.
func Ensure(kafkaConf *Config) Broker {
	if kafkaConf == nil {
		return &DummyBroker{}
	}

	if err := kafkaConf.Validate(); err != nil {
		logging.DefaultLogger().Warnf("invalid kafka configuration: %v", err)
		return &DummyBroker{}
	}

	logging.DefaultLogger().Infof(
		"connecting to kafka: %s, topic: %s",
		kafkaConf.Addresses,
		kafkaConf.Topic,
	)

	return newKafkaBroker(kafkaConf.SplitAddresses(), kafkaConf.Topic, kafkaConf.MustParseWriteTimeout())
}
