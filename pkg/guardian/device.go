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
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/carverauto/guardian/pkg/cloud"
	"github.com/carverauto/guardian/pkg/logger"
	"github.com/carverauto/guardian/pkg/models"
)

// deviceCache is the view's read-through copy of the device record.
type deviceCache struct {
	userID   string
	deviceID string
	ttl      time.Duration
	backend  cloud.Backend
	logger   logger.Logger
	now      func() time.Time

	mu      sync.RWMutex
	device  *models.Device
	fetched time.Time
}

func newDeviceCache(cfg *Config, backend cloud.Backend, log logger.Logger) *deviceCache {
	c := &deviceCache{
		userID:   cfg.UserID,
		deviceID: cfg.DeviceID,
		ttl:      cfg.Companion.DeviceTTL.Std(),
		backend:  backend,
		logger:   log,
		now:      time.Now,
	}

	if cfg.Device != nil {
		d := *cfg.Device
		c.device = &d
	}

	return c
}

// Get returns the cached record, reading the cloud when the copy is stale.
// A failed read keeps serving the previous copy.
func (c *deviceCache) Get(ctx context.Context) (*models.Device, error) {
	c.mu.RLock()
	cached, fetched := c.device, c.fetched
	c.mu.RUnlock()

	if c.backend == nil || (cached != nil && !fetched.IsZero() && c.now().Sub(fetched) < c.ttl) {
		if cached == nil {
			return nil, fmt.Errorf("%w: %w", models.ErrConfiguration, errNoDevice)
		}

		d := *cached

		return &d, nil
	}

	return c.Refresh(ctx)
}

// Refresh reads the record from the cloud.
func (c *deviceCache) Refresh(ctx context.Context) (*models.Device, error) {
	if c.backend == nil {
		return c.Get(ctx)
	}

	d, err := c.backend.GetDevice(ctx, c.userID, c.deviceID)
	if err == nil && d != nil {
		c.Store(d)

		out := *d

		return &out, nil
	}

	c.mu.RLock()
	cached := c.device
	c.mu.RUnlock()

	if cached != nil {
		c.logger.Debug().Err(err).Msg("Using cached device record")

		out := *cached

		return &out, nil
	}

	if err == nil {
		err = errNoDevice
	}

	return nil, fmt.Errorf("%w: %w", models.ErrUnavailable, err)
}

// Store replaces the cached record.
func (c *deviceCache) Store(d *models.Device) {
	cp := *d

	c.mu.Lock()
	defer c.mu.Unlock()

	// last_seen only moves forward.
	if c.device != nil && c.device.LastSeen.After(cp.LastSeen) {
		cp.LastSeen = c.device.LastSeen
	}

	c.device = &cp
	c.fetched = c.now()
}

// Cached returns the current copy without reading the cloud.
func (c *deviceCache) Cached() *models.Device {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.device == nil {
		return nil
	}

	d := *c.device

	return &d
}

// BaseURL resolves the companion endpoint from the record.
func (c *deviceCache) BaseURL(ctx context.Context) (*url.URL, error) {
	d, err := c.Get(ctx)
	if err != nil {
		return nil, err
	}

	return d.BaseURL()
}

// PublicIP returns the record's address for GeoIP estimates.
func (c *deviceCache) PublicIP(ctx context.Context) (net.IP, error) {
	d, err := c.Get(ctx)
	if err != nil {
		return nil, err
	}

	ip := net.ParseIP(d.IPAddress)
	if ip == nil {
		return nil, fmt.Errorf("%w: device address %q is not an ip", models.ErrUnavailable, d.IPAddress)
	}

	return ip, nil
}
