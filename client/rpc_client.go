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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/MelbourneDeveloper/DataProvider-sub005/api/types"
	"github.com/MelbourneDeveloper/DataProvider-sub005/pkg/errors"
)

// maxErrorBody caps how much of an error response is read back.
const maxErrorBody = 64 << 10

// rpcClient speaks the hub's JSON API. It implements the coordinator's
// remote contract and carries the registration, snapshot and admin calls on
// top of the same plumbing.
type rpcClient struct {
	baseURL string
	origin  string
	client  *http.Client
}

// PullBatch fetches one batch of hub changes above fromVersion.
func (r *rpcClient) PullBatch(ctx context.Context, fromVersion int64, batchSize int) (*types.SyncBatch, error) {
	batch := &types.SyncBatch{}
	if err := r.post(ctx, "/v1/pull", types.PullRequest{
		OriginID:    r.origin,
		FromVersion: fromVersion,
		BatchSize:   batchSize,
	}, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// PushChanges submits locally captured changes to the hub.
func (r *rpcClient) PushChanges(ctx context.Context, entries []types.SyncLogEntry) (*types.PushResponse, error) {
	resp := &types.PushResponse{}
	if err := r.post(ctx, "/v1/push", types.PushRequest{
		OriginID: r.origin,
		Changes:  entries,
	}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *rpcClient) register(ctx context.Context, lastSyncVersion int64) (*types.SyncClient, error) {
	registered := &types.SyncClient{}
	if err := r.post(ctx, "/v1/clients/register", types.RegisterRequest{
		OriginID:        r.origin,
		LastSyncVersion: lastSyncVersion,
	}, registered); err != nil {
		return nil, err
	}
	return registered, nil
}

func (r *rpcClient) snapshot(ctx context.Context, tables []string) (*types.SnapshotResponse, error) {
	path := "/v1/snapshot"
	if len(tables) > 0 {
		path += "?tables=" + url.QueryEscape(strings.Join(tables, ","))
	}
	resp := &types.SnapshotResponse{}
	if err := r.get(ctx, path, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *rpcClient) clients(ctx context.Context) (*types.ClientListResponse, error) {
	resp := &types.ClientListResponse{}
	if err := r.get(ctx, "/v1/clients", resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *rpcClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return r.do(req, out)
}

func (r *rpcClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	return r.do(req, out)
}

func (r *rpcClient) do(req *http.Request, out any) error {
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("hub %s: %w", req.URL.Path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		return errorFromResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("hub %s: decode response: %w", req.URL.Path, err)
	}
	return nil
}

// wireErrors maps the machine codes of error responses back to the sentinel
// errors they left the hub as, so errors.Is and the Is* predicates work
// across the wire.
var wireErrors = map[string]error{
	types.ErrStorage.Code():             types.ErrStorage,
	types.ErrDependencyViolation.Code(): types.ErrDependencyViolation,
	types.ErrHashMismatch.Code():        types.ErrHashMismatch,
	types.ErrFullResyncRequired.Code():  types.ErrFullResyncRequired,
	types.ErrUnknownStrategy.Code():     types.ErrUnknownStrategy,
	types.ErrInvalidInput.Code():        types.ErrInvalidInput,
	types.ErrClientNotFound.Code():      types.ErrClientNotFound,
	types.ErrClientDeactivated.Code():   types.ErrClientDeactivated,
}

func errorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var wire types.ErrorResponse
	if err := json.Unmarshal(body, &wire); err != nil || wire.Message == "" {
		wire = types.ErrorResponse{Message: fmt.Sprintf("hub returned %s", resp.Status)}
	}

	if sentinel, ok := wireErrors[wire.Code]; ok {
		// The hub's message already ends with the sentinel text. Trim it so
		// re-wrapping rebuilds the error exactly as the hub produced it.
		prefix := strings.TrimSuffix(wire.Message, sentinel.Error())
		prefix = strings.TrimSuffix(prefix, ": ")
		if prefix == "" {
			return sentinel
		}
		return fmt.Errorf("%s: %w", prefix, sentinel)
	}
	return statusError(resp.StatusCode, wire.Code, wire.Message)
}

// statusError converts an unrecognized error response into a status error
// with the nearest status, keeping the wire code when the hub sent one.
func statusError(status int, code, message string) error {
	var err errors.StatusError
	switch status {
	case http.StatusNotFound:
		err = errors.NotFound(message)
	case http.StatusConflict:
		err = errors.AlreadyExists(message)
	case http.StatusForbidden:
		err = errors.PermissionDenied(message)
	case http.StatusTooManyRequests:
		err = errors.ResourceExhausted(message)
	case http.StatusPreconditionFailed:
		err = errors.FailedPrecond(message)
	case http.StatusUnauthorized:
		err = errors.Unauthenticated(message)
	case http.StatusServiceUnavailable:
		err = errors.Unavailable(message)
	default:
		if status >= 400 && status < 500 {
			err = errors.InvalidArgument(message)
		} else {
			err = errors.Internal(message)
		}
	}
	if code != "" {
		err = err.WithCode(code)
	}
	return err
}
