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

package catalog

import (
	"time"

	"github.com/carverauto/guardian/pkg/models"
)

const (
	defaultReloadTimeout  = 30 * time.Second
	defaultResubscribeGap = 5 * time.Second
)

// Config tunes the synchronizer.
type Config struct {
	// ReloadTimeout bounds one union reload across every source.
	ReloadTimeout models.Duration `json:"reload_timeout,omitempty"`
	// ResubscribeDelay is the wait before reopening a dropped change feed.
	ResubscribeDelay models.Duration `json:"resubscribe_delay,omitempty"`
}

// Validate fills defaults.
func (c *Config) Validate() error {
	c.ReloadTimeout = c.ReloadTimeout.OrDefault(defaultReloadTimeout)
	c.ResubscribeDelay = c.ResubscribeDelay.OrDefault(defaultResubscribeGap)

	return nil
}
