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

import "time"

// SessionState is a RecordingSession state.
type SessionState string

const (
	SessionIdle     SessionState = "idle"
	SessionStarting SessionState = "starting"
	SessionActive   SessionState = "active"
	SessionStopping SessionState = "stopping"
	SessionFailed   SessionState = "failed"
)

// Busy reports whether a session in this state blocks a new start request.
func (s SessionState) Busy() bool {
	return s == SessionStarting || s == SessionActive || s == SessionStopping
}

// RecordingTarget is where a session captures video.
type RecordingTarget string

const (
	TargetCompanion RecordingTarget = "companion-device"
	TargetLocal     RecordingTarget = "local-capture"
)

// RecordingSession describes one user-initiated capture.
type RecordingSession struct {
	ID            string          `json:"id"`
	DeviceID      string          `json:"device_id,omitempty"`
	State         SessionState    `json:"state"`
	Target        RecordingTarget `json:"target,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	DurationLimit Duration        `json:"duration_limit,omitempty"`
	FixedDuration bool            `json:"fixed_duration,omitempty"`
	Error         string          `json:"error,omitempty"`
}
