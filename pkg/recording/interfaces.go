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

// Package recording drives user-initiated capture sessions, preferring the
// companion device and falling back to capture on this host.
package recording

import (
	"context"
	"time"

	"github.com/carverauto/guardian/pkg/blobstore"
	"github.com/carverauto/guardian/pkg/companion"
	"github.com/carverauto/guardian/pkg/models"
)

//go:generate mockgen -destination=mock_recording.go -package=recording github.com/carverauto/guardian/pkg/recording CompanionRecorder,BlobSaver

// CompanionRecorder is the companion device's recording surface.
type CompanionRecorder interface {
	StartRecording(ctx context.Context, limit time.Duration) (companion.StartResult, error)
	StopRecording(ctx context.Context) error
}

// LocalCapture begins buffering media on this host. ctx bounds only the
// start handshake; the capture runs until Stop.
type LocalCapture interface {
	Start(ctx context.Context) (Capture, error)
}

// Capture is a running local capture.
type Capture interface {
	// Stop ends the capture and returns everything buffered.
	Stop(ctx context.Context) (*Media, error)
}

// Media is a finished local capture.
type Media struct {
	Data        []byte
	ContentType string
}

// BlobSaver persists local captures.
type BlobSaver interface {
	Save(ctx context.Context, data []byte, contentType string) (blobstore.Entry, error)
}

// Transcoder converts local captures before they are saved.
type Transcoder interface {
	Transcode(ctx context.Context, data []byte, contentType string) ([]byte, string, error)
}

// CompleteFunc is called after a session has been persisted. video is nil
// for companion sessions, which the device uploads itself.
type CompleteFunc func(session models.RecordingSession, video *models.VideoRecord)
