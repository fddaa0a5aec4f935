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

package backend

import (
	"fmt"
)

// Config is the configuration for creating a Backend instance.
type Config struct {
	// PullBatchSize is the batch size used when a pull request does not
	// name one.
	PullBatchSize int `yaml:"PullBatchSize"`

	// PullMaxBatchSize caps the batch size a pull request may ask for.
	PullMaxBatchSize int `yaml:"PullMaxBatchSize"`

	// MaxSubscribersPerHub is the maximum number of concurrent watch
	// streams. Zero means no limit.
	MaxSubscribersPerHub int `yaml:"MaxSubscribersPerHub"`

	// Hostname is the dpsync server hostname. hostname is used by metrics.
	Hostname string `yaml:"Hostname"`
}

// Validate validates this config.
func (c *Config) Validate() error {
	if c.PullBatchSize <= 0 {
		return fmt.Errorf(
			`invalid argument %d for "--pull-batch-size" flag`,
			c.PullBatchSize,
		)
	}

	if c.PullMaxBatchSize < c.PullBatchSize {
		return fmt.Errorf(
			`invalid argument %d for "--pull-max-batch-size" flag`,
			c.PullMaxBatchSize,
		)
	}

	if c.MaxSubscribersPerHub < 0 {
		return fmt.Errorf(
			`invalid argument %d for "--max-subscribers-per-hub" flag`,
			c.MaxSubscribersPerHub,
		)
	}

	return nil
}

// ClampBatchSize applies the configured default and ceiling to the batch
// size a pull request asked for.
func (c *Config) ClampBatchSize(requested int) int {
	if requested <= 0 {
		return c.PullBatchSize
	}
	if requested > c.PullMaxBatchSize {
		return c.PullMaxBatchSize
	}

	return requested
}
