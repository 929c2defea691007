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

package health

import (
	"time"

	"github.com/carverauto/guardian/pkg/models"
)

const (
	defaultInterval = 5 * time.Second
	defaultTimeout  = 5 * time.Second
)

// Config controls the monitor.
type Config struct {
	Interval models.Duration `json:"interval"`
	Timeout  models.Duration `json:"timeout"`
	UserID   string          `json:"user_id,omitempty"`
	DeviceID string          `json:"device_id,omitempty"`
}

// Validate fills the default interval and timeout.
func (c *Config) Validate() error {
	c.Interval = c.Interval.OrDefault(defaultInterval)
	c.Timeout = c.Timeout.OrDefault(defaultTimeout)

	return nil
}
