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

// Package rpc provides the HTTP API of the hub: registration, pull, push,
// snapshot, the watch stream and the registry listing.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	gotime "time"

	"github.com/MelbourneDeveloper/DataProvider-sub005/api/types"
	"github.com/MelbourneDeveloper/DataProvider-sub005/pkg/errors"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/backend"
	"github.com/MelbourneDeveloper/DataProvider-sub005/server/logging"
)

// Server handles the sync API requested by replicas.
type Server struct {
	conf       *Config
	backend    *backend.Backend
	serveMux   *http.ServeMux
	httpServer *http.Server
	logger     logging.Logger
}

// NewServer creates a new instance of Server.
func NewServer(conf *Config, be *backend.Backend) (*Server, error) {
	server := &Server{
		conf:     conf,
		backend:  be,
		serveMux: http.NewServeMux(),
		logger:   logging.New("rpc"),
	}
	server.httpServer = &http.Server{
		Handler: server.serveMux,
	}

	server.serveMux.Handle("POST /v1/clients/register", server.handler("register", server.handleRegister))
	server.serveMux.Handle("POST /v1/pull", server.handler("pull", server.handlePull))
	server.serveMux.Handle("POST /v1/push", server.handler("push", server.handlePush))
	server.serveMux.Handle("GET /v1/snapshot", server.handler("snapshot", server.handleSnapshot))
	server.serveMux.Handle("GET /v1/watch", server.streamHandler("watch", server.handleWatch))
	server.serveMux.Handle("GET /v1/clients", server.handler("clients", server.handleClients))
	server.serveMux.Handle("GET /healthz", server.handler("health", server.handleHealth))

	return server, nil
}

// Handler returns the root handler of this server for serving through an
// outside listener, such as a test server.
func (s *Server) Handler() http.Handler {
	return s.serveMux
}

// Start starts this server by opening the rpc port.
func (s *Server) Start() error {
	return s.listenAndServe()
}

// Shutdown shuts down this server.
func (s *Server) Shutdown(graceful bool) {
	if graceful {
		if err := s.httpServer.Shutdown(context.Background()); err != nil {
			logging.DefaultLogger().Errorf("HTTP server Shutdown: %v", err)
		}
		return
	}

	if err := s.httpServer.Close(); err != nil {
		logging.DefaultLogger().Errorf("HTTP server Close: %v", err)
	}
}

func (s *Server) listenAndServe() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.conf.Port))
	if err != nil {
		return fmt.Errorf("listen on %d: %w", s.conf.Port, err)
	}

	go func() {
		logging.DefaultLogger().Infof("serving RPC on %d", s.conf.Port)

		var err error
		if s.conf.CertFile != "" && s.conf.KeyFile != "" {
			err = s.httpServer.ServeTLS(lis, s.conf.CertFile, s.conf.KeyFile)
		} else {
			err = s.httpServer.Serve(lis)
		}
		if err != http.ErrServerClosed {
			logging.DefaultLogger().Error(err)
		}
	}()

	return nil
}

// handlerFunc is a sync API handler. A returned error becomes the JSON
// error response; handlers that already wrote (the watch stream) return nil.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// handler wraps an API handler with request logging, metrics and error
// rendering.
func (s *Server) handler(procedure string, fn handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := gotime.Now()
		r = r.WithContext(logging.With(r.Context(), s.logger))
		if s.conf.MaxRequestBytes > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, int64(s.conf.MaxRequestBytes))
		}

		err := fn(w, r)
		s.backend.Metrics.AddServerHandledCounter(procedure, handledCode(err))
		if err != nil {
			writeError(w, err)
			logging.LogRPCError(s.logger, procedure, gotime.Since(start), err)
			return
		}
		logging.LogRPCSuccess(s.logger, procedure, gotime.Since(start))
	})
}

// streamHandler wraps a streaming handler. Errors only render as JSON when
// they happen before the stream starts; a started stream ends by returning
// nil.
func (s *Server) streamHandler(procedure string, fn handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := gotime.Now()
		r = r.WithContext(logging.With(r.Context(), s.logger))

		err := fn(w, r)
		s.backend.Metrics.AddServerHandledCounter(procedure, handledCode(err))
		if err != nil {
			writeError(w, err)
			logging.LogRPCStreamError(s.logger, procedure, gotime.Since(start), err)
			return
		}
		logging.LogRPCStreamSuccess(s.logger, procedure, gotime.Since(start))
	})
}

func handledCode(err error) string {
	if err == nil {
		return "ok"
	}
	if status := errors.StatusOf(err); status != 0 {
		return status.String()
	}
	return "unknown"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.DefaultLogger().Warnf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errors.StatusOf(err).HTTPStatus(), types.ErrorResponse{
		Code:    errors.CodeOf(err),
		Message: err.Error(),
	})
}

func decodeRequest(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("decode request: %v: %w", err, types.ErrInvalidInput)
	}
	return nil
}
