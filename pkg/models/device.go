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
	"net"
	"net/url"
	"strconv"
	"time"
)

const (
	// DefaultDeviceType is assigned to devices that sync without a type.
	DefaultDeviceType = "rpi"
	// DefaultCompanionPort is the companion service port when a device
	// record carries an address but no port.
	DefaultCompanionPort = 8000
)

// SourceKind names one of the data providers a query can be answered from.
type SourceKind string

const (
	SourceCompanion SourceKind = "companion-device"
	SourceCloud     SourceKind = "cloud"
	SourceLocal     SourceKind = "local"
	SourceEstimate  SourceKind = "ip-estimate"
)

// Device is the cloud-owned record describing a companion device.
type Device struct {
	UserID    string    `json:"user_id"`
	DeviceID  string    `json:"device_id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	IPAddress string    `json:"ip_address,omitempty"`
	Port      int       `json:"port,omitempty"`
	IsOnline  bool      `json:"is_online"`
	LastSeen  time.Time `json:"last_seen"`
}

// ApplyDefaults fills the fields the sync endpoint treats as optional.
func (d *Device) ApplyDefaults() {
	if d.Name == "" {
		d.Name = fmt.Sprintf("Raspberry Pi (%s)", d.DeviceID)
	}

	if d.Type == "" {
		d.Type = DefaultDeviceType
	}
}

// Touch advances LastSeen. It never moves the timestamp backwards.
func (d *Device) Touch(at time.Time) {
	if at.After(d.LastSeen) {
		d.LastSeen = at
	}
}

// BaseURL resolves the companion control API endpoint from the record.
// There is no implicit fallback host: a device without an address is a
// configuration error for every companion query.
func (d *Device) BaseURL() (*url.URL, error) {
	if d == nil || d.IPAddress == "" {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, errMissingEndpoint)
	}

	port := d.Port
	if port == 0 {
		port = DefaultCompanionPort
	}

	return &url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(d.IPAddress, strconv.Itoa(port)),
	}, nil
}

// DeviceStatus is the resolved answer to a status query.
type DeviceStatus struct {
	DeviceID       string     `json:"device_id,omitempty"`
	Online         bool       `json:"online"`
	CameraRunning  bool       `json:"camera_running"`
	GPSRunning     bool       `json:"gps_running"`
	LocationMethod string     `json:"location_method,omitempty"`
	LastSeen       time.Time  `json:"last_seen,omitempty"`
	ObservedAt     time.Time  `json:"observed_at"`
	Source         SourceKind `json:"source"`
}
