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

package guardian

import (
	"fmt"
	"net"
	"time"

	"github.com/carverauto/guardian/pkg/capture"
	"github.com/carverauto/guardian/pkg/catalog"
	"github.com/carverauto/guardian/pkg/cloud"
	"github.com/carverauto/guardian/pkg/companion"
	"github.com/carverauto/guardian/pkg/geocode"
	"github.com/carverauto/guardian/pkg/health"
	"github.com/carverauto/guardian/pkg/location"
	"github.com/carverauto/guardian/pkg/logger"
	"github.com/carverauto/guardian/pkg/models"
	"github.com/carverauto/guardian/pkg/recording"
	"github.com/carverauto/guardian/pkg/transcode"
)

const (
	defaultListenAddr  = ":8090"
	defaultStoragePath = "/var/lib/guardian"
	defaultDeviceTTL   = 30 * time.Second
)

// Config is the guardian service configuration.
type Config struct {
	ListenAddr string            `json:"listen_addr"`
	CORS       models.CORSConfig `json:"cors"`
	Logging    *logger.Config    `json:"logging,omitempty"`

	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id"`
	// Device seeds the companion endpoint before the cloud record is read,
	// and replaces it when no cloud is configured.
	Device *models.Device `json:"device,omitempty"`

	Companion CompanionConfig  `json:"companion"`
	Health    health.Config    `json:"health"`
	Location  location.Config  `json:"location"`
	Catalog   catalog.Config   `json:"catalog"`
	Recording recording.Config `json:"recording"`
	Storage   StorageConfig    `json:"storage"`

	Capture   *capture.Config   `json:"capture,omitempty"`
	Transcode *transcode.Config `json:"transcode,omitempty"`
	Geocode   *geocode.Config   `json:"geocode,omitempty"`
	GeoIP     *GeoIPConfig      `json:"geoip,omitempty"`
	Cloud     *cloud.Config     `json:"cloud,omitempty"`
}

// CompanionConfig tunes the companion control client.
type CompanionConfig struct {
	RecordMode companion.RecordMode `json:"record_mode,omitempty"`
	// DeviceTTL is how long a cloud device record is trusted before it is
	// read again.
	DeviceTTL models.Duration `json:"device_ttl,omitempty"`
}

// StorageConfig locates the local blob store.
type StorageConfig struct {
	Path         string `json:"path"`
	ReserveBytes uint64 `json:"reserve_bytes,omitempty"`
}

// GeoIPConfig enables coarse location estimates.
type GeoIPConfig struct {
	Database string `json:"database"`
	// PublicIP pins the address to locate. Empty uses the device record.
	PublicIP string `json:"public_ip,omitempty"`
}

// Validate checks required fields and fills defaults in every section.
func (c *Config) Validate() error {
	if c.UserID == "" {
		return fmt.Errorf("%w: %w", models.ErrConfiguration, errMissingUserID)
	}

	if c.DeviceID == "" {
		return fmt.Errorf("%w: %w", models.ErrConfiguration, errMissingDeviceID)
	}

	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}

	if c.Storage.Path == "" {
		c.Storage.Path = defaultStoragePath
	}

	if !c.Companion.RecordMode.Valid() {
		return fmt.Errorf("%w: unknown companion record_mode %q", models.ErrConfiguration, c.Companion.RecordMode)
	}

	c.Companion.DeviceTTL = c.Companion.DeviceTTL.OrDefault(defaultDeviceTTL)

	if c.Device != nil {
		c.Device.UserID = c.UserID
		c.Device.DeviceID = c.DeviceID
	}

	c.Health.UserID = c.UserID
	c.Health.DeviceID = c.DeviceID

	validators := []interface{ Validate() error }{&c.Health, &c.Location, &c.Catalog, &c.Recording}

	if c.Capture != nil {
		validators = append(validators, c.Capture)
	}

	if c.Transcode != nil {
		validators = append(validators, c.Transcode)
	}

	if c.Geocode != nil {
		validators = append(validators, c.Geocode)
	}

	if c.Cloud != nil {
		validators = append(validators, c.Cloud)
	}

	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}

	if c.Location.Mode == location.ModeStream && (c.Cloud == nil || c.Cloud.NATS == nil) {
		return fmt.Errorf("%w: %w", models.ErrConfiguration, errStreamNeedsNATS)
	}

	if c.GeoIP != nil && c.GeoIP.PublicIP != "" && net.ParseIP(c.GeoIP.PublicIP) == nil {
		return fmt.Errorf("%w: %w %q", models.ErrConfiguration, errInvalidPublicIP, c.GeoIP.PublicIP)
	}

	return nil
}
