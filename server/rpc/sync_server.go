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
	"fmt"
	"net/http"
	"strings"

	"github.com/MelbourneDeveloper/DataProvider-sub005/api/types"
	"github.com/MelbourneDeveloper/DataProvider-sub005/internal/validation"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/clients"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/packs"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) error {
	var req types.RegisterRequest
	if err := decodeRequest(r, &req); err != nil {
		return err
	}
	if err := validation.ToStatusError(validation.ValidateStruct(&req)); err != nil {
		return err
	}

	client, err := clients.Register(r.Context(), s.backend, req.OriginID, req.LastSyncVersion)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, client)
	return nil
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) error {
	var req types.PullRequest
	if err := decodeRequest(r, &req); err != nil {
		return err
	}
	if err := validation.ToStatusError(validation.ValidateStruct(&req)); err != nil {
		return err
	}

	batch, err := packs.Pull(r.Context(), s.backend, req.OriginID, req.FromVersion, req.BatchSize)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, batch)
	return nil
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) error {
	var req types.PushRequest
	if err := decodeRequest(r, &req); err != nil {
		return err
	}
	if err := validation.ToStatusError(validation.ValidateStruct(&req)); err != nil {
		return err
	}

	res, err := packs.Push(r.Context(), s.backend, req.OriginID, req.Changes)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, res)
	return nil
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) error {
	tables, err := tablesParam(r.URL.Query().Get("tables"))
	if err != nil {
		return err
	}

	snapshot, err := packs.Snapshot(r.Context(), s.backend, tables)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, snapshot)
	return nil
}

func (s *Server) handleClients(w http.ResponseWriter, r *http.Request) error {
	list, err := clients.List(r.Context(), s.backend)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, list)
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) error {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	return nil
}

// tablesParam parses the comma-separated tables query parameter. An empty
// parameter selects every table.
func tablesParam(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}

	var tables []string
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if !validation.IsValidTableName(name) {
			return nil, fmt.Errorf("table name %q: %w", name, types.ErrInvalidInput)
		}
		tables = append(tables, name)
	}
	return tables, nil
}
