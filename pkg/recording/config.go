/*
 * Copyright 2025 Carver Automation Corporation.
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

package recording

import (
	"time"

	"github.com/carverauto/guardian/pkg/models"
)

const (
	defaultCompanionTimeout = 5 * time.Second
	defaultFixedDuration    = 10 * time.Second
	defaultStopTimeout      = 30 * time.Second
)

// Config controls target selection and session limits.
type Config struct {
	// CompanionTimeout bounds the companion start command before falling back.
	CompanionTimeout models.Duration `json:"companion_timeout"`
	// DefaultDuration applies to fixed-duration companion sessions started without a limit.
	DefaultDuration models.Duration `json:"default_duration"`
	// MaxDuration caps any requested limit. Zero means uncapped.
	MaxDuration models.Duration `json:"max_duration,omitempty"`
	// StopTimeout bounds an automatic stop.
	StopTimeout models.Duration `json:"stop_timeout"`
}

// Validate fills defaults.
func (c *Config) Validate() error {
	c.CompanionTimeout = c.CompanionTimeout.OrDefault(defaultCompanionTimeout)
	c.DefaultDuration = c.DefaultDuration.OrDefault(defaultFixedDuration)
	c.StopTimeout = c.StopTimeout.OrDefault(defaultStopTimeout)

	return nil
}

func (c *Config) clamp(limit time.Duration) time.Duration {
	if limit < 0 {
		return 0
	}

	if ceiling := c.MaxDuration.Std(); ceiling > 0 && (limit == 0 || limit > ceiling) {
		return ceiling
	}

	return limit
}
