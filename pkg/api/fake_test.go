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

package api

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/carverauto/guardian/pkg/blobstore"
	"github.com/carverauto/guardian/pkg/catalog"
	"github.com/carverauto/guardian/pkg/cloud"
	"github.com/carverauto/guardian/pkg/guardian"
	"github.com/carverauto/guardian/pkg/health"
	"github.com/carverauto/guardian/pkg/location"
	"github.com/carverauto/guardian/pkg/models"
	"github.com/carverauto/guardian/pkg/natsutil"
)

type fakeView struct {
	mu sync.Mutex

	status    guardian.StatusView
	statusErr error
	startErr  error
	pushErr   error
	session   models.RecordingSession
	pushed    []*models.LocationSample
	startedAt []time.Duration

	local      map[string][]byte
	localEntry map[string]blobstore.Entry

	snapshots int
	subs      []chan struct{}
}

func newFakeView() *fakeView {
	return &fakeView{
		local:      make(map[string][]byte),
		localEntry: make(map[string]blobstore.Entry),
	}
}

func (f *fakeView) Status(context.Context) (guardian.StatusView, error) {
	return f.status, f.statusErr
}

func (*fakeView) Health() health.Snapshot { return health.Snapshot{State: health.StateOnline} }

func (*fakeView) Device(context.Context) (*models.Device, error) {
	return &models.Device{UserID: "user-1", DeviceID: "cam-1"}, nil
}

func (*fakeView) Location() location.State { return location.State{} }

func (f *fakeView) PushLocation(_ context.Context, sample *models.LocationSample) (location.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pushErr != nil {
		return location.State{}, f.pushErr
	}

	f.pushed = append(f.pushed, sample)

	return location.State{Sample: sample, Available: true, Source: models.SourceLocal}, nil
}

func (*fakeView) Videos() catalog.Snapshot { return catalog.Snapshot{Videos: []models.VideoRecord{}} }

func (*fakeView) RefreshVideos(context.Context) (catalog.Snapshot, error) {
	return catalog.Snapshot{Videos: []models.VideoRecord{}, Available: true}, nil
}

func (f *fakeView) LocalVideo(_ context.Context, id string) ([]byte, blobstore.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.local[id]
	if !ok {
		return nil, blobstore.Entry{}, blobstore.ErrNotFound
	}

	return data, f.localEntry[id], nil
}

func (f *fakeView) DeleteLocalVideo(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.local[id]; !ok {
		return blobstore.ErrNotFound
	}

	delete(f.local, id)
	delete(f.localEntry, id)

	return nil
}

func (*fakeView) DeviceVideo(context.Context, string) (io.ReadCloser, string, error) {
	return io.NopCloser(bytes.NewReader([]byte("device-bytes"))), "video/mp4", nil
}

func (f *fakeView) StartRecording(_ context.Context, limit time.Duration) (models.RecordingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.startedAt = append(f.startedAt, limit)

	if f.startErr != nil {
		return models.RecordingSession{}, f.startErr
	}

	f.session = models.RecordingSession{ID: "s-1", State: models.SessionActive, Target: models.TargetCompanion}

	return f.session, nil
}

func (f *fakeView) StopRecording(context.Context) (models.RecordingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.session.State = models.SessionIdle

	return f.session, nil
}

func (f *fakeView) Session() models.RecordingSession {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.session
}

func (f *fakeView) Snapshot() guardian.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.snapshots++

	return guardian.Snapshot{Session: f.session}
}

func (f *fakeView) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()

	return ch, func() {}
}

func (f *fakeView) notify() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, ch := range f.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (f *fakeView) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.subs)
}

// fakeCloud implements the relay side of cloud.Backend. Methods the relay
// never calls fall through to the nil embedded interface.
type fakeCloud struct {
	cloud.Backend

	mu       sync.Mutex
	uploads  []cloud.Upload
	bodies   [][]byte
	recorded []*models.LocationSample
	objects  map[string][]byte
	devices  []models.Device
}

func (c *fakeCloud) ListDevices(_ context.Context, userID string) ([]models.Device, error) {
	var out []models.Device

	for _, d := range c.devices {
		if d.UserID == userID {
			out = append(out, d)
		}
	}

	return out, nil
}

func (c *fakeCloud) RecordLocation(_ context.Context, sample *models.LocationSample) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.recorded = append(c.recorded, sample)

	return nil
}

func (c *fakeCloud) UploadVideo(_ context.Context, upload *cloud.Upload) (*models.VideoRecord, error) {
	body, err := io.ReadAll(upload.Body)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.uploads = append(c.uploads, *upload)
	c.bodies = append(c.bodies, body)

	return &models.VideoRecord{
		Filename:  upload.Filename,
		Size:      int64(len(body)),
		Timestamp: upload.Timestamp,
		Origin:    models.OriginCloud,
		URL:       "https://cdn.example.com/" + upload.Filename,
		DeviceID:  upload.DeviceID,
	}, nil
}

func (c *fakeCloud) OpenVideo(_ context.Context, filename string) (io.ReadCloser, *natsutil.ObjectInfo, error) {
	data, ok := c.objects[filename]
	if !ok {
		return nil, nil, natsutil.ErrObjectNotFound
	}

	info := &natsutil.ObjectInfo{Name: filename, Size: int64(len(data)), ContentType: "video/mp4"}

	return io.NopCloser(bytes.NewReader(data)), info, nil
}

type prefixTranscoder struct{}

func (prefixTranscoder) Transcode(_ context.Context, data []byte, _ string) ([]byte, string, error) {
	return append([]byte("mp4:"), data...), "video/mp4", nil
}
