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

package housekeeping

import (
	"fmt"
	"time"
)

// Config is the configuration for the housekeeping service.
type Config struct {
	// Interval is the time between housekeeping runs.
	Interval string `yaml:"Interval"`

	// InactivityThreshold is how long a replica may stay silent before it
	// is deactivated.
	InactivityThreshold string `yaml:"InactivityThreshold"`

	// CandidatesLimit is the maximum number of replicas deactivated in one
	// run. Zero means no limit.
	CandidatesLimit int `yaml:"CandidatesLimit"`

	// PurgeDisabled turns off log purging; stale replicas are still
	// deactivated.
	PurgeDisabled bool `yaml:"PurgeDisabled"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := time.ParseDuration(c.Interval); err != nil {
		return fmt.Errorf(
			`invalid argument %s for "--housekeeping-interval" flag: %w`,
			c.Interval,
			err,
		)
	}

	if _, err := time.ParseDuration(c.InactivityThreshold); err != nil {
		return fmt.Errorf(
			`invalid argument %s for "--housekeeping-inactivity-threshold" flag: %w`,
			c.InactivityThreshold,
			err,
		)
	}

	if c.CandidatesLimit < 0 {
		return fmt.Errorf(
			`invalid argument %d for "--housekeeping-candidates-limit" flag`,
			c.CandidatesLimit,
		)
	}

	return nil
}

// ParseInterval parses the interval.
func (c *Config) ParseInterval() (time.Duration, error) {
	interval, err := time.ParseDuration(c.Interval)
	if err != nil {
		return 0, fmt.Errorf("parse interval %s: %w", c.Interval, err)
	}

	return interval, nil
}

// ParseInactivityThreshold parses the inactivity threshold.
func (c *Config) ParseInactivityThreshold() (time.Duration, error) {
	threshold, err := time.ParseDuration(c.InactivityThreshold)
	if err != nil {
		return 0, fmt.Errorf("parse inactivity threshold %s: %w", c.InactivityThreshold, err)
	}

	return threshold, nil
}
