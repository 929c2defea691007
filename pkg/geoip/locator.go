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

// Package geoip estimates a location from a public IP address using a
// MaxMind City database.
package geoip

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/oschwald/maxminddb-golang"

	"github.com/carverauto/guardian/pkg/models"
)

var (
	errNoIP         = errors.New("no address to locate")
	errPrivateIP    = errors.New("address is not publicly routable")
	errNoLocation   = errors.New("address has no location in database")
	errDatabasePath = errors.New("geoip database path is required")
)

type cityRecord struct {
	Location struct {
		Latitude       *float64 `maxminddb:"latitude"`
		Longitude      *float64 `maxminddb:"longitude"`
		AccuracyRadius uint16   `maxminddb:"accuracy_radius"`
	} `maxminddb:"location"`
}

type lookuper interface {
	Lookup(ip net.IP, result any) error
	Close() error
}

// IPFunc returns the address to locate.
type IPFunc func(ctx context.Context) (net.IP, error)

// StaticIP always locates ip.
func StaticIP(ip net.IP) IPFunc {
	return func(context.Context) (net.IP, error) {
		return ip, nil
	}
}

// Locator answers location queries with coarse estimates.
type Locator struct {
	db  lookuper
	ip  IPFunc
	now func() time.Time
}

// Open loads the database at path.
func Open(path string, ip IPFunc) (*Locator, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: %w", models.ErrConfiguration, errDatabasePath)
	}

	reader, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open geoip database: %w", models.ErrConfiguration, err)
	}

	return &Locator{db: reader, ip: ip, now: time.Now}, nil
}

// Close releases the database.
func (l *Locator) Close() error {
	return l.db.Close()
}

// Locate resolves the configured address to a sample tagged ip-estimate.
func (l *Locator) Locate(ctx context.Context) (*models.LocationSample, error) {
	if l.ip == nil {
		return nil, fmt.Errorf("%w: %w", models.ErrUnavailable, errNoIP)
	}

	ip, err := l.ip(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrUnavailable, err)
	}

	return l.LocateIP(ip)
}

// LocateIP looks up a single address.
func (l *Locator) LocateIP(ip net.IP) (*models.LocationSample, error) {
	if ip == nil {
		return nil, fmt.Errorf("%w: %w", models.ErrUnavailable, errNoIP)
	}

	if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
		return nil, fmt.Errorf("%w: %w: %s", models.ErrUnavailable, errPrivateIP, ip)
	}

	var rec cityRecord
	if err := l.db.Lookup(ip, &rec); err != nil {
		return nil, fmt.Errorf("%w: geoip lookup: %w", models.ErrUnavailable, err)
	}

	if rec.Location.Latitude == nil || rec.Location.Longitude == nil {
		return nil, fmt.Errorf("%w: %w: %s", models.ErrUnavailable, errNoLocation, ip)
	}

	sample := &models.LocationSample{
		Latitude:  *rec.Location.Latitude,
		Longitude: *rec.Location.Longitude,
		Timestamp: l.now().UTC(),
		Method:    models.MethodIPEstimate,
	}

	if err := sample.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrUnavailable, err)
	}

	return sample, nil
}
