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
	"time"

	"github.com/google/uuid"
)

const (
	cloudEventSpecVersion = "1.0"
	cloudEventSource      = "guardian/cloud"

	// VideoEventType is the CloudEvent type of catalog change notifications.
	VideoEventType = "com.carverauto.guardian.video.changed"
	// VideoSubjectPrefix prefixes the per-operation video subjects.
	VideoSubjectPrefix = "events.videos"
)

// CloudEvent represents a CloudEvents v1.0 compliant event.
type CloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	ID              string      `json:"id"`
	Source          string      `json:"source"`
	Type            string      `json:"type"`
	DataContentType string      `json:"datacontenttype"`
	Subject         string      `json:"subject,omitempty"`
	Time            *time.Time  `json:"time,omitempty"`
	Data            interface{} `json:"data,omitempty"`
}

// VideoSubject returns the subject a change with the given op is published on.
func VideoSubject(op ChangeOp) string {
	return VideoSubjectPrefix + "." + string(op)
}

// NewVideoCloudEvent wraps a catalog change in a CloudEvent envelope.
func NewVideoCloudEvent(change *VideoChangeEvent) CloudEvent {
	ts := change.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	return CloudEvent{
		SpecVersion:     cloudEventSpecVersion,
		ID:              uuid.New().String(),
		Source:          cloudEventSource,
		Type:            VideoEventType,
		DataContentType: "application/json",
		Subject:         VideoSubject(change.Op),
		Time:            &ts,
		Data:            change,
	}
}
