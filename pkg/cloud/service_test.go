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
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/guardian/pkg/db"
	"github.com/carverauto/guardian/pkg/logger"
	"github.com/carverauto/guardian/pkg/models"
	"github.com/carverauto/guardian/pkg/natsutil"
)

var errInsert = errors.New("insert failed")

type memStore struct {
	mu        sync.Mutex
	devices   map[string]models.Device
	locations []models.LocationSample
	videos    []models.VideoRecord
	videoErr  error
	closed    bool
}

var _ db.Service = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{devices: make(map[string]models.Device)}
}

func (m *memStore) ListDevices(_ context.Context, userID string) ([]models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Device

	for _, d := range m.devices {
		if d.UserID == userID {
			out = append(out, d)
		}
	}

	return out, nil
}

func (m *memStore) GetDevice(_ context.Context, userID, deviceID string) (*models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.devices[userID+"/"+deviceID]
	if !ok {
		return nil, db.ErrDeviceNotFound
	}

	return &d, nil
}

func (m *memStore) UpsertDevice(_ context.Context, d *models.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.devices[d.UserID+"/"+d.DeviceID] = *d

	return nil
}

func (m *memStore) UpdateDeviceHealth(_ context.Context, userID, deviceID string, online bool, seen time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := userID + "/" + deviceID

	d, ok := m.devices[key]
	if !ok {
		return db.ErrDeviceNotFound
	}

	d.IsOnline = online
	if online {
		d.Touch(seen)
	}

	m.devices[key] = d

	return nil
}

func (m *memStore) InsertLocation(_ context.Context, s *models.LocationSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.locations = append(m.locations, *s)

	return nil
}

func (m *memStore) RecentLocations(context.Context, string, int) ([]models.LocationSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]models.LocationSample(nil), m.locations...), nil
}

func (m *memStore) LatestLocation(context.Context, string, string) (*models.LocationSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.locations) == 0 {
		return nil, db.ErrLocationNotFound
	}

	s := m.locations[len(m.locations)-1]

	return &s, nil
}

func (m *memStore) ListVideos(context.Context, int) ([]models.VideoRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]models.VideoRecord(nil), m.videos...), nil
}

func (m *memStore) InsertVideo(_ context.Context, v *models.VideoRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.videoErr != nil {
		return m.videoErr
	}

	m.videos = append(m.videos, *v)

	return nil
}

func (m *memStore) Close() { m.closed = true }

type mockObjects struct {
	mock.Mock
}

func (o *mockObjects) Put(ctx context.Context, name, contentType string, r io.Reader) (*natsutil.ObjectInfo, error) {
	data, _ := io.ReadAll(r)
	args := o.Called(ctx, name, contentType, data)

	info, _ := args.Get(0).(*natsutil.ObjectInfo)

	return info, args.Error(1)
}

func (o *mockObjects) Get(ctx context.Context, name string) (io.ReadCloser, *natsutil.ObjectInfo, error) {
	args := o.Called(ctx, name)

	rc, _ := args.Get(0).(io.ReadCloser)
	info, _ := args.Get(1).(*natsutil.ObjectInfo)

	return rc, info, args.Error(2)
}

func (o *mockObjects) Delete(ctx context.Context, name string) error {
	return o.Called(ctx, name).Error(0)
}

func (*mockObjects) PublicURL(name string) string {
	return "https://cdn.example/" + name
}

type recordingPublisher struct {
	mu      sync.Mutex
	changes []models.VideoChangeEvent
}

func (p *recordingPublisher) PublishVideoChange(_ context.Context, change *models.VideoChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.changes = append(p.changes, *change)

	return nil
}

type recordingFeed struct {
	published []models.LocationSample
}

func (f *recordingFeed) Publish(_ context.Context, s *models.LocationSample) error {
	f.published = append(f.published, *s)
	return nil
}

func (*recordingFeed) Watch(context.Context, string, string) (<-chan models.LocationSample, error) {
	ch := make(chan models.LocationSample)
	close(ch)

	return ch, nil
}

var fixedNow = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func newTestService(store *memStore, opts ...Option) *Service {
	s := NewService(store, logger.NewTestLogger(), opts...)
	s.now = func() time.Time { return fixedNow }

	return s
}

func TestSyncDeviceAppliesDefaults(t *testing.T) {
	store := newMemStore()
	s := newTestService(store)

	d, err := s.SyncDevice(t.Context(), &models.Device{UserID: "u1", DeviceID: "pi-1", IsOnline: true})
	require.NoError(t, err)

	assert.Equal(t, "Raspberry Pi (pi-1)", d.Name)
	assert.Equal(t, "rpi", d.Type)
	assert.Equal(t, fixedNow, d.LastSeen)

	stored, err := s.GetDevice(t.Context(), "u1", "pi-1")
	require.NoError(t, err)
	assert.Equal(t, *d, *stored)

	_, err = s.SyncDevice(t.Context(), &models.Device{DeviceID: "pi-1"})
	require.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestRecordLocationPublishesToFeed(t *testing.T) {
	store := newMemStore()
	feed := &recordingFeed{}
	s := newTestService(store, WithLocationFeed(feed))

	sample := &models.LocationSample{UserID: "u1", DeviceID: "pi-1", Latitude: 1, Longitude: 2}
	require.NoError(t, s.RecordLocation(t.Context(), sample))

	require.Len(t, store.locations, 1)
	assert.Equal(t, models.MethodIPEstimate, store.locations[0].Method)
	require.Len(t, feed.published, 1)

	ch, err := s.WatchLocations(t.Context(), "u1", "")
	require.NoError(t, err)

	_, open := <-ch
	assert.False(t, open)
}

func TestUploadVideoStoresRecordsAndAnnounces(t *testing.T) {
	store := newMemStore()
	objects := &mockObjects{}
	events := &recordingPublisher{}
	s := newTestService(store, WithObjects(objects), WithEvents(events))

	name := "recording-1748764800000.mp4"
	objects.On("Put", mock.Anything, name, "video/mp4", []byte("mp4")).
		Return(&natsutil.ObjectInfo{Name: name, Size: 3}, nil).Once()

	rec, err := s.UploadVideo(t.Context(), &Upload{ContentType: "video/mp4", Body: bytes.NewReader([]byte("mp4"))})
	require.NoError(t, err)

	assert.Equal(t, name, rec.Filename)
	assert.Equal(t, int64(3), rec.Size)
	assert.Equal(t, "https://cdn.example/"+name, rec.URL)
	assert.Equal(t, models.OriginCloud, rec.Origin)
	require.NoError(t, rec.Validate())

	require.Len(t, store.videos, 1)
	require.Len(t, events.changes, 1)
	assert.Equal(t, models.ChangeInsert, events.changes[0].Op)

	objects.AssertExpectations(t)
}

func TestUploadVideoRemovesObjectWhenInsertFails(t *testing.T) {
	store := newMemStore()
	store.videoErr = errInsert

	objects := &mockObjects{}
	events := &recordingPublisher{}
	s := newTestService(store, WithObjects(objects), WithEvents(events))

	objects.On("Put", mock.Anything, "clip.webm", "video/webm", mock.Anything).
		Return(&natsutil.ObjectInfo{Name: "clip.webm", Size: 1}, nil)
	objects.On("Delete", mock.Anything, "clip.webm").Return(nil).Once()

	_, err := s.UploadVideo(t.Context(), &Upload{
		Filename: "clip.webm", ContentType: "video/webm", Body: bytes.NewReader([]byte("x")),
	})
	require.ErrorIs(t, err, errInsert)

	assert.Empty(t, events.changes)
	objects.AssertExpectations(t)
}

func TestUploadVideoValidation(t *testing.T) {
	s := newTestService(newMemStore())

	_, err := s.UploadVideo(t.Context(), &Upload{ContentType: "video/mp4", Body: bytes.NewReader(nil)})
	require.ErrorIs(t, err, models.ErrConfiguration)

	s = newTestService(newMemStore(), WithObjects(&mockObjects{}))

	_, err = s.UploadVideo(t.Context(), &Upload{ContentType: "image/png", Body: bytes.NewReader(nil)})
	require.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = s.UploadVideo(t.Context(), &Upload{ContentType: "video/mp4"})
	require.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestOptionalFeedsReportConfiguration(t *testing.T) {
	s := newTestService(newMemStore())

	_, err := s.SubscribeVideos(t.Context())
	require.ErrorIs(t, err, models.ErrConfiguration)

	_, err = s.WatchLocations(t.Context(), "u1", "")
	require.ErrorIs(t, err, models.ErrConfiguration)

	_, _, err = s.OpenVideo(t.Context(), "x.mp4")
	require.ErrorIs(t, err, models.ErrConfiguration)
}

func TestReportHealthAndClose(t *testing.T) {
	store := newMemStore()
	closed := false
	s := newTestService(store, WithCloser(func() { closed = true }))

	err := s.ReportHealth(t.Context(), "u1", "missing", true, fixedNow)
	require.ErrorIs(t, err, db.ErrDeviceNotFound)

	_, err = s.SyncDevice(t.Context(), &models.Device{UserID: "u1", DeviceID: "pi-1"})
	require.NoError(t, err)

	later := fixedNow.Add(time.Minute)
	require.NoError(t, s.ReportHealth(t.Context(), "u1", "pi-1", true, later))
	require.NoError(t, s.ReportHealth(t.Context(), "u1", "pi-1", false, time.Time{}))

	d, err := s.GetDevice(t.Context(), "u1", "pi-1")
	require.NoError(t, err)
	assert.False(t, d.IsOnline)
	assert.Equal(t, later, d.LastSeen)

	s.Close()
	assert.True(t, closed)
	assert.True(t, store.closed)
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{}
	require.ErrorIs(t, cfg.Validate(), models.ErrConfiguration)

	cfg = &Config{
		Database: &models.DatabaseConfig{Host: "db", Database: "guardian"},
		NATS:     &models.NATSConfig{URL: "nats://localhost:4222"},
	}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultPublicPath, cfg.NATS.PublicURLBase)
	assert.Equal(t, "events", cfg.NATS.StreamName)
}
