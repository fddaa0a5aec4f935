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
	"encoding/json"
	"strings"
	"sync"
	gotime "time"

	"github.com/rs/xid"

	"github.com/MelbourneDeveloper/DataProvider-sub005/api/types"
	"github.com/MelbourneDeveloper/DataProvider-sub005/pkg/cjson"
	"github.com/MelbourneDeveloper/DataProvider-sub005/pkg/cmap"
)

const (
	// changeQueueSize is the delivery queue capacity of a single subscription.
	changeQueueSize = 8
)

// Subscription represents a single watcher's registration and its delivery
// queue.
type Subscription struct {
	id         string
	subscriber string
	filter     types.WatchFilter
	mu         sync.Mutex
	closed     bool
	events     chan types.ChangeEvent
}

// NewSubscription creates a new instance of Subscription.
func NewSubscription(subscriber string, filter types.WatchFilter) *Subscription {
	return &Subscription{
		id:         xid.New().String(),
		subscriber: subscriber,
		filter:     filter,
		events:     make(chan types.ChangeEvent, changeQueueSize),
		closed:     false,
	}
}

// ID returns the id of this subscription.
func (s *Subscription) ID() string {
	return s.id
}

// Events returns the event channel of this subscription.
func (s *Subscription) Events() chan types.ChangeEvent {
	return s.events
}

// Subscriber returns the origin id of the watcher behind this subscription.
func (s *Subscription) Subscriber() string {
	return s.subscriber
}

// Close closes all resources of this Subscription.
func (s *Subscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.events)
	}
}

// Publish delivers the given event to the subscriber. When the queue is full
// the oldest pending event is dropped so a slow consumer never blocks the
// publisher.
func (s *Subscription) Publish(event types.ChangeEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	select {
	case s.events <- event:
		return true
	default:
	}

	select {
	case <-s.events:
	default:
	}

	select {
	case s.events <- event:
		return true
	default:
		return false
	}
}

// Matches reports whether the given event passes this subscription's filter.
// Events without an entry, such as the connected handshake, always pass.
func (s *Subscription) Matches(event types.ChangeEvent) bool {
	if event.Entry == nil {
		return true
	}

	if len(s.filter.Tables) > 0 {
		matched := false
		for _, table := range s.filter.Tables {
			if table == "*" || strings.EqualFold(table, event.Entry.TableName) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if len(s.filter.PkValue) > 0 && !pkSubset(s.filter.PkValue, event.Entry.PkValue) {
		return false
	}

	return true
}

// pkSubset reports whether every field of the filter appears in the pk with
// an equal value. A filter carrying a prefix of a composite key watches all
// rows sharing that prefix.
func pkSubset(filter, pk json.RawMessage) bool {
	var want, have map[string]json.RawMessage
	if err := json.Unmarshal(filter, &want); err != nil {
		return false
	}
	if err := json.Unmarshal(pk, &have); err != nil {
		return false
	}

	for field, value := range want {
		other, ok := have[field]
		if !ok {
			return false
		}
		same, err := cjson.Equal(value, other)
		if err != nil || !same {
			return false
		}
	}
	return true
}

// Subscriptions is a collection of Subscription with an associated
// BatchPublisher.
type Subscriptions struct {
	internalMap *cmap.Map[string, *Subscription]
	publisher   *BatchPublisher
}

// NewSubscriptions creates a new Subscriptions collection that flushes
// batched events on the given window.
func NewSubscriptions(window gotime.Duration) *Subscriptions {
	s := &Subscriptions{
		internalMap: cmap.New[string, *Subscription](),
	}
	s.publisher = NewBatchPublisher(s, window)
	return s
}

// Set adds the given subscription.
func (s *Subscriptions) Set(sub *Subscription) {
	s.internalMap.Set(sub.ID(), sub)
}

// Values returns the values of these subscriptions.
func (s *Subscriptions) Values() []*Subscription {
	return s.internalMap.Values()
}

// Publish publishes the given event.
func (s *Subscriptions) Publish(event types.ChangeEvent) {
	s.publisher.Publish(event)
}

// Delete deletes the subscription of the given id.
func (s *Subscriptions) Delete(id string) {
	s.internalMap.Delete(id, func(sub *Subscription, exists bool) bool {
		if exists {
			sub.Close()
		}
		return exists
	})
}

// Len returns the length of these subscriptions.
func (s *Subscriptions) Len() int {
	return s.internalMap.Len()
}

// Close closes the subscriptions.
func (s *Subscriptions) Close() {
	s.publisher.Close()
}
