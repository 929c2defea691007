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

package models

import (
	"fmt"
	"strings"
	"time"
)

// LocationMethod records how a coordinate was obtained.
type LocationMethod string

const (
	MethodDeviceGPS          LocationMethod = "device-gps"
	MethodBrowserGeolocation LocationMethod = "browser-geolocation"
	MethodIPEstimate         LocationMethod = "ip-estimate"
)

// ParseLocationMethod maps the method names used by companion firmware and
// older clients onto the canonical set.
func ParseLocationMethod(raw string) LocationMethod {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(MethodBrowserGeolocation), "browser", "geolocation":
		return MethodBrowserGeolocation
	case string(MethodIPEstimate), "ip", "wifi", "fallback":
		return MethodIPEstimate
	default:
		return MethodDeviceGPS
	}
}

// LocationSample is one immutable location observation.
type LocationSample struct {
	UserID    string         `json:"user_id,omitempty"`
	DeviceID  string         `json:"device_id,omitempty"`
	Latitude  float64        `json:"latitude"`
	Longitude float64        `json:"longitude"`
	Timestamp time.Time      `json:"timestamp"`
	Method    LocationMethod `json:"method"`
}

// Validate checks the coordinate ranges.
func (s *LocationSample) Validate() error {
	if s.Latitude < -90 || s.Latitude > 90 || s.Longitude < -180 || s.Longitude > 180 {
		return fmt.Errorf("%w: %w (%f, %f)", ErrInvalidInput, errInvalidCoordinates, s.Latitude, s.Longitude)
	}

	return nil
}

// Newer reports whether s supersedes other.
func (s *LocationSample) Newer(other *LocationSample) bool {
	if other == nil {
		return true
	}

	return !s.Timestamp.Before(other.Timestamp)
}

// AddressComponents are the structured parts of a reverse geocode result.
type AddressComponents struct {
	HouseNumber string `json:"house_number,omitempty"`
	Road        string `json:"road,omitempty"`
	Suburb      string `json:"suburb,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	Postcode    string `json:"postcode,omitempty"`
	Country     string `json:"country,omitempty"`
}

// Address is derived from a LocationSample and never persisted.
type Address struct {
	DisplayName string             `json:"display_name"`
	Components  *AddressComponents `json:"address,omitempty"`
}

// AddressNotFound is shown when reverse geocoding yields nothing.
const AddressNotFound = "Address not found"

// Format renders the address as a single line, preferring the structured
// components and falling back to the display name.
func (a *Address) Format() string {
	if a == nil {
		return AddressNotFound
	}

	if a.Components == nil {
		return a.DisplayName
	}

	c := a.Components
	parts := make([]string, 0, 7)

	for _, p := range []string{c.HouseNumber, c.Road, c.Suburb, c.City, c.State, c.Postcode, c.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}

	if len(parts) == 0 {
		return a.DisplayName
	}

	return strings.Join(parts, ", ")
}
