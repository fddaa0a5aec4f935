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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/MelbourneDeveloper/DataProvider-sub005/api/types"
)

// Watch subscribes to the hub's change stream. The table parameter narrows
// the stream to the named tables, comma separated, with "" and "*" matching
// all; pkFilter, when non-nil, must be a JSON object and further narrows to
// rows whose primary key contains its fields. The replica's own changes are
// never delivered.
//
// The first event on the channel is the connected event carrying the
// subscription id; by the time Watch returns, the subscription is live on
// the hub. The channel is closed when the stream ends or ctx is canceled.
func (c *Client) Watch(ctx context.Context, table string, pkFilter json.RawMessage) (<-chan types.ChangeEvent, error) {
	params := url.Values{}
	params.Set("origin", c.store.Origin())
	if table != "" {
		params.Set("table", table)
	}
	if len(pkFilter) > 0 {
		params.Set("pk", string(pkFilter))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.rpc.baseURL+"/v1/watch?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build watch request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.rpc.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hub /v1/watch: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer func() {
			_ = resp.Body.Close()
		}()
		return nil, errorFromResponse(resp)
	}

	// Read the connected event before returning so the subscription is
	// guaranteed live: changes applied after Watch returns will be seen.
	reader := bufio.NewReader(resp.Body)
	first, err := readEvent(reader)
	if err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("hub /v1/watch: %w", err)
	}
	if first.Type != types.EventConnected {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("watch stream opened with %q event", first.Type)
	}

	events := make(chan types.ChangeEvent)
	go func() {
		defer close(events)
		defer func() {
			_ = resp.Body.Close()
		}()

		event := first
		for {
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}

			// Canceling ctx aborts this read, ending the stream.
			event, err = readEvent(reader)
			if err != nil {
				c.logger.Debugf("watch stream of %s closed: %v", c.store.Origin(), err)
				return
			}
		}
	}()
	return events, nil
}

// readEvent reads frames until the next data frame, skipping keep-alive
// comments and blank separators.
func readEvent(reader *bufio.Reader) (types.ChangeEvent, error) {
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return types.ChangeEvent{}, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}

		var event types.ChangeEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			return types.ChangeEvent{}, fmt.Errorf("decode event: %w", err)
		}
		return event, nil
	}
}
