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

package location

import (
	"fmt"
	"time"

	"github.com/carverauto/guardian/pkg/models"
)

// Mode selects where location samples come from.
type Mode string

const (
	// ModePoll queries the source chain on a fixed interval.
	ModePoll Mode = "poll"
	// ModeGeolocation accepts coordinates pushed by the client.
	ModeGeolocation Mode = "geolocation"
	// ModeStream follows the cloud location change stream.
	ModeStream Mode = "stream"
)

const (
	defaultInterval       = 5 * time.Second
	defaultGeocodeTimeout = 10 * time.Second
)

// Config controls the location synchronizer.
type Config struct {
	Mode           Mode            `json:"mode,omitempty"`
	Interval       models.Duration `json:"interval,omitempty"`
	GeocodeTimeout models.Duration `json:"geocode_timeout,omitempty"`
}

// Validate fills defaults.
func (c *Config) Validate() error {
	switch c.Mode {
	case "":
		c.Mode = ModePoll
	case ModePoll, ModeGeolocation, ModeStream:
	default:
		return fmt.Errorf("%w: %w %q", models.ErrConfiguration, errUnknownMode, c.Mode)
	}

	c.Interval = c.Interval.OrDefault(defaultInterval)
	c.GeocodeTimeout = c.GeocodeTimeout.OrDefault(defaultGeocodeTimeout)

	return nil
}
