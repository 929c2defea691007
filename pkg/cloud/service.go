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

package cloud

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/carverauto/guardian/pkg/db"
	"github.com/carverauto/guardian/pkg/logger"
	"github.com/carverauto/guardian/pkg/models"
	"github.com/carverauto/guardian/pkg/natsutil"
)

// Service implements Backend over the Postgres tables and the optional NATS
// components. Operations whose component is absent fail with ErrConfiguration.
type Service struct {
	store     db.Service
	events    EventPublisher
	objects   ObjectStorer
	locations LocationFeed
	subscribe SubscribeFunc
	logger    logger.Logger
	now       func() time.Time
	closers   []func()
}

var _ Backend = (*Service)(nil)

// Option configures a Service.
type Option func(*Service)

func WithEvents(p EventPublisher) Option { return func(s *Service) { s.events = p } }

func WithObjects(o ObjectStorer) Option { return func(s *Service) { s.objects = o } }

func WithLocationFeed(f LocationFeed) Option { return func(s *Service) { s.locations = f } }

func WithSubscriber(fn SubscribeFunc) Option { return func(s *Service) { s.subscribe = fn } }

// WithCloser registers a function run by Close, in reverse order.
func WithCloser(fn func()) Option {
	return func(s *Service) { s.closers = append(s.closers, fn) }
}

// NewService wires a backend around store.
func NewService(store db.Service, log logger.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: log,
		now:    func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Close releases every underlying connection.
func (s *Service) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}

	s.store.Close()
}

func (s *Service) ListDevices(ctx context.Context, userID string) ([]models.Device, error) {
	return s.store.ListDevices(ctx, userID)
}

func (s *Service) GetDevice(ctx context.Context, userID, deviceID string) (*models.Device, error) {
	return s.store.GetDevice(ctx, userID, deviceID)
}

// SyncDevice upserts a device, filling defaults and stamping last_seen.
func (s *Service) SyncDevice(ctx context.Context, device *models.Device) (*models.Device, error) {
	if device == nil || device.UserID == "" || device.DeviceID == "" {
		return nil, fmt.Errorf("%w: user_id and device_id are required", models.ErrInvalidInput)
	}

	d := *device
	d.ApplyDefaults()
	d.Touch(s.now())

	if err := s.store.UpsertDevice(ctx, &d); err != nil {
		return nil, err
	}

	return &d, nil
}

// ReportHealth records a health probe outcome on the device row.
func (s *Service) ReportHealth(ctx context.Context, userID, deviceID string, online bool, seen time.Time) error {
	return s.store.UpdateDeviceHealth(ctx, userID, deviceID, online, seen)
}

// RecordLocation appends to the history and replaces the streamed latest
// sample. A stream failure is logged only.
func (s *Service) RecordLocation(ctx context.Context, sample *models.LocationSample) error {
	if sample == nil {
		return fmt.Errorf("%w: location is required", models.ErrInvalidInput)
	}

	if sample.Method == "" {
		sample.Method = models.MethodIPEstimate
	}

	if err := s.store.InsertLocation(ctx, sample); err != nil {
		return err
	}

	if s.locations != nil {
		if err := s.locations.Publish(ctx, sample); err != nil {
			s.logger.Warn().Err(err).Str("device_id", sample.DeviceID).Msg("failed to publish location")
		}
	}

	return nil
}

func (s *Service) RecentLocations(ctx context.Context, userID string, limit int) ([]models.LocationSample, error) {
	return s.store.RecentLocations(ctx, userID, limit)
}

func (s *Service) LatestLocation(ctx context.Context, userID, deviceID string) (*models.LocationSample, error) {
	return s.store.LatestLocation(ctx, userID, deviceID)
}

func (s *Service) WatchLocations(ctx context.Context, userID, deviceID string) (<-chan models.LocationSample, error) {
	if s.locations == nil {
		return nil, fmt.Errorf("%w: %w", models.ErrConfiguration, errNoLocationFeed)
	}

	return s.locations.Watch(ctx, userID, deviceID)
}

// Videos lists the cloud catalog newest first.
func (s *Service) Videos(ctx context.Context) ([]models.VideoRecord, error) {
	return s.store.ListVideos(ctx, 0)
}

// UploadVideo stores the bytes, records the metadata and announces the
// insert. The object is removed again when the metadata insert fails.
func (s *Service) UploadVideo(ctx context.Context, upload *Upload) (*models.VideoRecord, error) {
	if s.objects == nil {
		return nil, fmt.Errorf("%w: %w", models.ErrConfiguration, errNoObjectStore)
	}

	if upload == nil || upload.Body == nil {
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidInput, errEmptyUpload)
	}

	if !strings.HasPrefix(upload.ContentType, "video/") {
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidInput, errNotVideo)
	}

	ts := upload.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	name := upload.Filename
	if name == "" {
		name = fmt.Sprintf("recording-%d.mp4", ts.UnixMilli())
	}

	info, err := s.objects.Put(ctx, name, upload.ContentType, upload.Body)
	if err != nil {
		return nil, err
	}

	record := &models.VideoRecord{
		Filename:  name,
		Size:      info.Size,
		Timestamp: ts,
		Origin:    models.OriginCloud,
		URL:       s.objects.PublicURL(name),
		DeviceID:  upload.DeviceID,
	}

	if err := s.store.InsertVideo(ctx, record); err != nil {
		if delErr := s.objects.Delete(ctx, name); delErr != nil {
			s.logger.Warn().Err(delErr).Str("filename", name).Msg("failed to remove orphaned object")
		}

		return nil, err
	}

	s.publish(ctx, &models.VideoChangeEvent{Op: models.ChangeInsert, Video: *record, Timestamp: s.now()})

	return record, nil
}

func (s *Service) publish(ctx context.Context, change *models.VideoChangeEvent) {
	if s.events == nil {
		return
	}

	if err := s.events.PublishVideoChange(ctx, change); err != nil {
		s.logger.Warn().Err(err).Str("filename", change.Video.Filename).Msg("failed to publish video change")
	}
}

// OpenVideo streams a stored recording.
func (s *Service) OpenVideo(ctx context.Context, filename string) (io.ReadCloser, *natsutil.ObjectInfo, error) {
	if s.objects == nil {
		return nil, nil, fmt.Errorf("%w: %w", models.ErrConfiguration, errNoObjectStore)
	}

	return s.objects.Get(ctx, filename)
}

// SubscribeVideos opens the video change feed.
func (s *Service) SubscribeVideos(ctx context.Context) (<-chan models.VideoChangeEvent, error) {
	if s.subscribe == nil {
		return nil, fmt.Errorf("%w: %w", models.ErrConfiguration, errNoChangeFeed)
	}

	return s.subscribe(ctx)
}
