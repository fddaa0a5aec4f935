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

package pubsub

import (
	"strconv"
	"strings"
	gosync "sync"
	"sync/atomic"
	gotime "time"

	"go.uber.org/zap"

	"github.com/MelbourneDeveloper/DataProvider-sub005/api/types"
	"github.com/MelbourneDeveloper/DataProvider-sub005/pkg/cjson"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/logging"
)

var publisherID loggerID

type loggerID int32

func (c *loggerID) next() string {
	next := atomic.AddInt32((*int32)(c), 1)
	return "p" + strconv.Itoa(int(next))
}

// BatchPublisher batches change events and publishes them to subscribers at a
// fixed time interval.
type BatchPublisher struct {
	logger    *zap.SugaredLogger
	mutex     gosync.Mutex
	events    []types.ChangeEvent
	window    gotime.Duration
	closeChan chan struct{}
	subs      *Subscriptions
}

// NewBatchPublisher creates a new instance of BatchPublisher.
func NewBatchPublisher(subs *Subscriptions, window gotime.Duration) *BatchPublisher {
	bp := &BatchPublisher{
		logger:    logging.New(publisherID.next()),
		window:    window,
		closeChan: make(chan struct{}),
		subs:      subs,
	}

	go bp.processLoop()
	return bp
}

// Publish adds the given event to the batch. A change event for a row that
// already has one queued replaces the queued event in place, so watchers see
// the newest state of the row instead of replaying intermediate writes.
func (bp *BatchPublisher) Publish(event types.ChangeEvent) {
	bp.mutex.Lock()
	defer bp.mutex.Unlock()

	if event.Type == types.EventChange {
		for i, queued := range bp.events {
			if queued.Type == types.EventChange && sameRow(queued.Entry, event.Entry) {
				bp.events[i] = event
				return
			}
		}
	}

	bp.events = append(bp.events, event)
}

func (bp *BatchPublisher) processLoop() {
	ticker := gotime.NewTicker(bp.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			bp.publish()
		case <-bp.closeChan:
			bp.publish()
			return
		}
	}
}

func (bp *BatchPublisher) publish() {
	bp.mutex.Lock()

	if len(bp.events) == 0 {
		bp.mutex.Unlock()
		return
	}

	pending := bp.events
	bp.events = nil

	bp.mutex.Unlock()

	if logging.Enabled(zap.DebugLevel) {
		bp.logger.Infof("Publishing batch of %d events", len(pending))
	}

	for _, sub := range bp.subs.Values() {
		for _, event := range pending {
			// Skip echoing changes back to the replica that pushed them.
			if event.Entry != nil && event.Entry.Origin == sub.Subscriber() {
				continue
			}

			if !sub.Matches(event) {
				continue
			}

			if ok := sub.Publish(event); !ok {
				bp.logger.Infof(
					"Publish to %s closed",
					sub.Subscriber(),
				)
			}
		}
	}
}

// sameRow reports whether both entries address the same logical row.
func sameRow(a, b *types.SyncLogEntry) bool {
	if a == nil || b == nil {
		return false
	}
	if !strings.EqualFold(a.TableName, b.TableName) {
		return false
	}
	same, err := cjson.Equal(a.PkValue, b.PkValue)
	return err == nil && same
}

// Close stops the batch publisher.
func (bp *BatchPublisher) Close() {
	close(bp.closeChan)
}
