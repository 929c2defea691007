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

// Package geocode resolves coordinates to postal addresses through a
// Nominatim compatible reverse geocoding service.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/carverauto/guardian/pkg/logger"
	"github.com/carverauto/guardian/pkg/models"
)

const (
	// DefaultBaseURL is the public OpenStreetMap instance.
	DefaultBaseURL = "https://nominatim.openstreetmap.org"

	defaultUserAgent = "guardian/1.0"
	defaultCacheTTL  = time.Hour
	defaultTimeout   = 10 * time.Second
	reversePath      = "/reverse"
	maxBodyBytes     = 1 << 20
)

// Config controls the reverse geocoder.
type Config struct {
	BaseURL   string          `json:"base_url,omitempty"`
	UserAgent string          `json:"user_agent,omitempty"`
	Timeout   models.Duration `json:"timeout,omitempty"`
	CacheTTL  models.Duration `json:"cache_ttl,omitempty"`
	// RequestsPerSecond defaults to 1, the public Nominatim usage limit.
	RequestsPerSecond float64 `json:"requests_per_second,omitempty"`
}

// Validate fills defaults and checks the base URL.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}

	if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
		return fmt.Errorf("%w: %w: %w", models.ErrConfiguration, errInvalidBaseURL, err)
	}

	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}

	c.Timeout = c.Timeout.OrDefault(defaultTimeout)
	c.CacheTTL = c.CacheTTL.OrDefault(defaultCacheTTL)

	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 1
	}

	return nil
}

// Client performs rate limited, cached reverse lookups.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	cache   *ttlcache.Cache[string, *models.Address]
	group   singleflight.Group
	logger  logger.Logger
}

// NewClient starts the cache janitor; Close stops it.
func NewClient(cfg Config, log logger.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cache := ttlcache.New[string, *models.Address](
		ttlcache.WithTTL[string, *models.Address](cfg.CacheTTL.Std()),
	)
	go cache.Start()

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout.Std()},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		cache:   cache,
		logger:  log,
	}, nil
}

// Close stops the cache janitor.
func (c *Client) Close() {
	c.cache.Stop()
}

// cacheKey rounds to five decimals, roughly one metre.
func cacheKey(lat, lng float64) string {
	return strconv.FormatFloat(lat, 'f', 5, 64) + "," + strconv.FormatFloat(lng, 'f', 5, 64)
}

// ReverseGeocode returns the address at lat,lng. A nil address with a nil
// error means the service had no result for the point.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lng float64) (*models.Address, error) {
	key := cacheKey(lat, lng)

	if item := c.cache.Get(key, ttlcache.WithDisableTouchOnHit[string, *models.Address]()); item != nil {
		return item.Value(), nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		addr, err := c.lookup(ctx, lat, lng)
		if err != nil {
			return nil, err
		}

		c.cache.Set(key, addr, ttlcache.DefaultTTL)

		return addr, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*models.Address), nil
}

type reverseResponse struct {
	DisplayName string                    `json:"display_name"`
	Address     *models.AddressComponents `json:"address"`
	Error       string                    `json:"error"`
}

func (c *Client) lookup(ctx context.Context, lat, lng float64) (*models.Address, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: geocode rate limit: %w", models.ErrUnavailable, err)
	}

	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidBaseURL, err)
	}

	u = u.JoinPath(reversePath)

	q := u.Query()
	q.Set("format", "json")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))
	q.Set("zoom", "18")
	q.Set("addressdetails", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create geocode request: %w", err)
	}

	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: reverse geocode: %w", models.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %w: %d", models.ErrUnavailable, errUnexpectedStatus, resp.StatusCode)
	}

	var payload reverseResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: failed to decode geocode response: %w", models.ErrUnavailable, err)
	}

	if payload.Error != "" || (payload.DisplayName == "" && payload.Address == nil) {
		c.logger.Debug().Str("reason", payload.Error).Float64("lat", lat).Float64("lng", lng).Msg("No address for point")

		return nil, nil
	}

	return &models.Address{DisplayName: payload.DisplayName, Components: payload.Address}, nil
}
