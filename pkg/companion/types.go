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

package companion

import (
	"encoding/json"
	"time"

	"github.com/carverauto/guardian/pkg/models"
)

// RecordMode selects how recordings are started on the device.
type RecordMode string

const (
	// RecordAuto uses the session endpoints and falls back to the fixed
	// duration endpoint when the firmware does not expose them.
	RecordAuto RecordMode = "auto"
	// RecordSession always uses /record/start and /record/stop.
	RecordSession RecordMode = "session"
	// RecordFixed always uses /record, which captures for a fixed duration
	// and cannot be stopped early.
	RecordFixed RecordMode = "fixed"
)

// Valid reports whether m is a known mode. The empty mode is treated as auto.
func (m RecordMode) Valid() bool {
	switch m {
	case "", RecordAuto, RecordSession, RecordFixed:
		return true
	default:
		return false
	}
}

// StartResult describes how the device accepted a start request.
type StartResult struct {
	// Fixed is true when the device records for a set duration and has no
	// stop command.
	Fixed bool
}

// RecordingStatus is the device's view of its own recorder.
type RecordingStatus struct {
	Recording bool      `json:"recording"`
	Filename  string    `json:"filename,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

type statusPayload struct {
	DeviceID           string   `json:"device_id"`
	Online             *bool    `json:"online"`
	CameraRunning      bool     `json:"camera_running"`
	GPSRunning         bool     `json:"gps_running"`
	LocationMethod     string   `json:"location_method"`
	LastLocationUpdate *float64 `json:"last_location_update"`
}

type locationPayload struct {
	Lat       *float64 `json:"lat"`
	Lng       *float64 `json:"lng"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Timestamp *float64 `json:"timestamp"`
	Method    string   `json:"method"`
}

func (p *locationPayload) coordinates() (lat, lng float64, ok bool) {
	switch {
	case p.Lat != nil && p.Lng != nil:
		return *p.Lat, *p.Lng, true
	case p.Latitude != nil && p.Longitude != nil:
		return *p.Latitude, *p.Longitude, true
	default:
		return 0, 0, false
	}
}

// videoEntry accepts either a bare filename or an object.
type videoEntry struct {
	Filename  string
	Size      int64
	Timestamp time.Time
}

func (v *videoEntry) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		v.Filename = name
		return nil
	}

	var obj struct {
		Filename  string   `json:"filename"`
		Name      string   `json:"name"`
		Size      *float64 `json:"size"`
		Timestamp *float64 `json:"timestamp"`
	}

	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}

	v.Filename = obj.Filename
	if v.Filename == "" {
		v.Filename = obj.Name
	}

	if obj.Size != nil && *obj.Size > 0 {
		v.Size = int64(*obj.Size)
	}

	if obj.Timestamp != nil {
		v.Timestamp = models.ParseEpoch(*obj.Timestamp)
	}

	return nil
}
