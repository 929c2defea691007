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

// Package cloud is the guardian's view of the cloud backend: device
// records, location history, the cloud video catalog and its change feeds.
package cloud

import (
	"context"
	"io"
	"time"

	"github.com/carverauto/guardian/pkg/models"
	"github.com/carverauto/guardian/pkg/natsutil"
)

// Backend is consumed by the probes, the health monitor and the HTTP relay.
type Backend interface {
	ListDevices(ctx context.Context, userID string) ([]models.Device, error)
	GetDevice(ctx context.Context, userID, deviceID string) (*models.Device, error)
	SyncDevice(ctx context.Context, device *models.Device) (*models.Device, error)
	ReportHealth(ctx context.Context, userID, deviceID string, online bool, seen time.Time) error

	RecordLocation(ctx context.Context, sample *models.LocationSample) error
	RecentLocations(ctx context.Context, userID string, limit int) ([]models.LocationSample, error)
	LatestLocation(ctx context.Context, userID, deviceID string) (*models.LocationSample, error)
	WatchLocations(ctx context.Context, userID, deviceID string) (<-chan models.LocationSample, error)

	Videos(ctx context.Context) ([]models.VideoRecord, error)
	UploadVideo(ctx context.Context, upload *Upload) (*models.VideoRecord, error)
	OpenVideo(ctx context.Context, filename string) (io.ReadCloser, *natsutil.ObjectInfo, error)
	SubscribeVideos(ctx context.Context) (<-chan models.VideoChangeEvent, error)
}

// Upload is a finished recording handed to the cloud.
type Upload struct {
	Filename    string
	ContentType string
	DeviceID    string
	Timestamp   time.Time
	Body        io.Reader
}

// EventPublisher announces catalog changes.
type EventPublisher interface {
	PublishVideoChange(ctx context.Context, change *models.VideoChangeEvent) error
}

// ObjectStorer holds recording bytes.
type ObjectStorer interface {
	Put(ctx context.Context, name, contentType string, r io.Reader) (*natsutil.ObjectInfo, error)
	Get(ctx context.Context, name string) (io.ReadCloser, *natsutil.ObjectInfo, error)
	Delete(ctx context.Context, name string) error
	PublicURL(name string) string
}

// LocationFeed carries the latest sample per device.
type LocationFeed interface {
	Publish(ctx context.Context, sample *models.LocationSample) error
	Watch(ctx context.Context, userID, deviceID string) (<-chan models.LocationSample, error)
}

// SubscribeFunc opens the video change subscription.
type SubscribeFunc func(ctx context.Context) (<-chan models.VideoChangeEvent, error)
