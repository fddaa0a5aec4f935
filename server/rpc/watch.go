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

package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	gotime "time"

	"github.com/MelbourneDeveloper/DataProvider-sub005/api/types"
	"github.com/MelbourneDeveloper/DataProvider-sub005/internal/validation"
	"github.com/MelbourneDeveloper/DataProvider-sub005/pkg/errors"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/logging"
)

// handleWatch serves the change stream over server-sent events. The first
// event is the connected event carrying the subscription id; afterwards the
// replica receives every matching change except its own, interleaved with
// keep-alive comments.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) error {
	query := r.URL.Query()

	originID := query.Get("origin")
	if !validation.IsValidOriginID(originID) {
		return fmt.Errorf("watch origin %q: %w", originID, types.ErrInvalidInput)
	}
	filter, err := watchFilter(query.Get("table"), query.Get("pk"))
	if err != nil {
		return err
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		return errors.Internal("streaming unsupported").WithCode("ErrStreamingUnsupported")
	}

	sub, err := s.backend.PubSub.Subscribe(
		r.Context(),
		originID,
		filter,
		s.backend.Config.MaxSubscribersPerHub,
	)
	if err != nil {
		return err
	}

	hostname := s.backend.Config.Hostname
	s.backend.Metrics.AddWatchConnections(hostname)
	defer func() {
		s.backend.PubSub.Unsubscribe(r.Context(), sub)
		s.backend.Metrics.RemoveWatchConnections(hostname)
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeSSE(w, flusher, types.ChangeEvent{
		Type:           types.EventConnected,
		SubscriptionID: sub.ID(),
	}); err != nil {
		return nil
	}
	s.backend.Metrics.AddWatchEvents(hostname, types.EventConnected)

	heartbeat := gotime.NewTicker(s.conf.ParseWatchHeartbeatInterval())
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return nil
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return nil
			}
			flusher.Flush()
		case event, open := <-sub.Events():
			if !open {
				// The subscription was closed hub-side, e.g. when the
				// replica was deactivated.
				return nil
			}
			if err := writeSSE(w, flusher, event); err != nil {
				logging.From(r.Context()).Debugf("watch stream of %s closed: %v", originID, err)
				return nil
			}
			s.backend.Metrics.AddWatchEvents(hostname, event.Type)
		}
	}
}

// watchFilter builds the subscription filter from the table and pk query
// parameters. An empty table parameter, like "*", matches every table.
func watchFilter(tableParam, pkParam string) (types.WatchFilter, error) {
	var filter types.WatchFilter

	if tableParam != "" {
		for _, name := range strings.Split(tableParam, ",") {
			name = strings.TrimSpace(name)
			if name != "*" && !validation.IsValidTableName(name) {
				return filter, fmt.Errorf("watch table %q: %w", name, types.ErrInvalidInput)
			}
			filter.Tables = append(filter.Tables, name)
		}
	}

	if pkParam != "" {
		filter.PkValue = json.RawMessage(pkParam)
	}

	return filter, nil
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event types.ChangeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	flusher.Flush()
	return nil
}
