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
	"errors"
	"fmt"
	"os"
	"time"
)

// DefaultWatchHeartbeatInterval is the keep-alive interval watch streams
// fall back to when the config does not name one.
const DefaultWatchHeartbeatInterval = 10 * time.Second

var (
	// ErrInvalidRPCPort occurs when the port in the config is invalid.
	ErrInvalidRPCPort = errors.New("invalid port number for RPC server")
	// ErrInvalidCertFile occurs when the certificate file is invalid.
	ErrInvalidCertFile = errors.New("invalid cert file for RPC server")
	// ErrInvalidKeyFile occurs when the key file is invalid.
	ErrInvalidKeyFile = errors.New("invalid key file for RPC server")
)

// Config is the configuration for creating a Server instance.
type Config struct {
	// Port is the port number for the RPC server.
	Port int `yaml:"Port"`

	// CertFile is the path to the certificate file.
	CertFile string `yaml:"CertFile"`

	// KeyFile is the path to the key file.
	KeyFile string `yaml:"KeyFile"`

	// MaxRequestBytes is the maximum client request size in bytes the
	// server will accept.
	MaxRequestBytes uint64 `yaml:"MaxRequestBytes"`

	// WatchHeartbeatInterval is the interval between keep-alive comments on
	// watch streams.
	WatchHeartbeatInterval string `yaml:"WatchHeartbeatInterval"`
}

// Validate validates the port number and the files for certification.
func (c *Config) Validate() error {
	if c.Port < 1 || 65535 < c.Port {
		return fmt.Errorf("must be between 1 and 65535, given %d: %w", c.Port, ErrInvalidRPCPort)
	}

	// when specific cert or key file are configured
	if c.CertFile != "" {
		if _, err := os.Stat(c.CertFile); err != nil {
			return fmt.Errorf("%s: %w", c.CertFile, ErrInvalidCertFile)
		}
	}

	if c.KeyFile != "" {
		if _, err := os.Stat(c.KeyFile); err != nil {
			return fmt.Errorf("%s: %w", c.KeyFile, ErrInvalidKeyFile)
		}
	}

	if c.WatchHeartbeatInterval != "" {
		if _, err := time.ParseDuration(c.WatchHeartbeatInterval); err != nil {
			return fmt.Errorf(
				`invalid argument %s for "--watch-heartbeat-interval" flag: %w`,
				c.WatchHeartbeatInterval,
				err,
			)
		}
	}

	return nil
}

// ParseWatchHeartbeatInterval returns the heartbeat interval, or the default
// when unset.
func (c *Config) ParseWatchHeartbeatInterval() time.Duration {
	if c.WatchHeartbeatInterval == "" {
		return DefaultWatchHeartbeatInterval
	}
	interval, err := time.ParseDuration(c.WatchHeartbeatInterval)
	if err != nil {
		return DefaultWatchHeartbeatInterval
	}
	return interval
}
