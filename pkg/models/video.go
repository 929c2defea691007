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
	"sort"
	"strings"
	"time"
)

// VideoOrigin identifies where a video record lives.
type VideoOrigin string

const (
	OriginCompanion VideoOrigin = "companion-device"
	OriginCloud     VideoOrigin = "cloud"
	OriginLocal     VideoOrigin = "local"
)

// VideoRecord is one catalog entry. Exactly one of URL and LocalID is set,
// chosen by Origin.
type VideoRecord struct {
	Filename  string      `json:"filename"`
	Size      int64       `json:"size"`
	Timestamp time.Time   `json:"timestamp"`
	Origin    VideoOrigin `json:"origin"`
	URL       string      `json:"url,omitempty"`
	LocalID   string      `json:"local_id,omitempty"`
	DeviceID  string      `json:"device_id,omitempty"`
}

// Validate enforces the url/local_id invariant.
func (v *VideoRecord) Validate() error {
	if v.Filename == "" {
		return fmt.Errorf("%w: %w", ErrInvalidInput, errMissingFilename)
	}

	switch v.Origin {
	case OriginLocal:
		if v.LocalID == "" {
			return fmt.Errorf("%w: %w", ErrInvalidInput, errMissingLocalID)
		}

		if v.URL != "" {
			return fmt.Errorf("%w: %w", ErrInvalidInput, errUnexpectedURL)
		}
	case OriginCompanion, OriginCloud:
		if v.URL == "" {
			return fmt.Errorf("%w: %w", ErrInvalidInput, errMissingURL)
		}

		if v.LocalID != "" {
			return fmt.Errorf("%w: %w", ErrInvalidInput, errUnexpectedLocalID)
		}
	default:
		return fmt.Errorf("%w: %w %q", ErrInvalidInput, errUnknownOrigin, v.Origin)
	}

	return nil
}

// LocalVideoFilename is the display name given to locally captured blobs.
func LocalVideoFilename(localID, ext string) string {
	if ext == "" {
		ext = "webm"
	}

	return fmt.Sprintf("local_%s.%s", localID, ext)
}

// VideoExtension maps a video content type onto a file extension. Unknown
// types are assumed to be browser WebM captures.
func VideoExtension(contentType string) string {
	mediaType, _, _ := strings.Cut(contentType, ";")

	switch strings.ToLower(strings.TrimSpace(mediaType)) {
	case "video/mp4":
		return "mp4"
	case "video/h264":
		return "h264"
	case "video/x-matroska":
		return "mkv"
	case "video/quicktime":
		return "mov"
	default:
		return "webm"
	}
}

// NewestFirst orders two records by capture time, newest first.
func NewestFirst(a, b VideoRecord) bool {
	return a.Timestamp.After(b.Timestamp)
}

// SortNewestFirst sorts in place, keeping the relative order of records with
// equal timestamps.
func SortNewestFirst(videos []VideoRecord) {
	sort.SliceStable(videos, func(i, j int) bool {
		return NewestFirst(videos[i], videos[j])
	})
}

// ChangeOp is the kind of mutation a VideoChangeEvent reports.
type ChangeOp string

const (
	ChangeInsert ChangeOp = "insert"
	ChangeUpdate ChangeOp = "update"
	ChangeDelete ChangeOp = "delete"
)

// VideoChangeEvent is delivered by the cloud backend's subscription channel.
type VideoChangeEvent struct {
	Op        ChangeOp    `json:"op"`
	Video     VideoRecord `json:"video"`
	Timestamp time.Time   `json:"timestamp"`
}
