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

package guardian

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/carverauto/guardian/pkg/cloud"
	"github.com/carverauto/guardian/pkg/models"
	"github.com/carverauto/guardian/pkg/natsutil"
)

var errCloudDown = errors.New("cloud unreachable")

// fakeBackend is an in-memory cloud. With down set every call fails.
type fakeBackend struct {
	mu       sync.Mutex
	down     bool
	device   *models.Device
	videos   []models.VideoRecord
	latest   *models.LocationSample
	recorded []models.LocationSample
	reports  []bool

	// videosEntered is signalled on every Videos call; videosGate, when
	// set, holds the call until closed.
	videosEntered chan struct{}
	videosGate    chan struct{}
	videoCalls    int

	feed chan models.VideoChangeEvent
}

var _ cloud.Backend = (*fakeBackend)(nil)

func (f *fakeBackend) fail() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.down {
		return errCloudDown
	}

	return nil
}

func (f *fakeBackend) ListDevices(_ context.Context, _ string) ([]models.Device, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.device == nil {
		return nil, nil
	}

	return []models.Device{*f.device}, nil
}

func (f *fakeBackend) GetDevice(_ context.Context, _, _ string) (*models.Device, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.device == nil {
		return nil, errors.New("device not found")
	}

	d := *f.device

	return &d, nil
}

func (f *fakeBackend) SyncDevice(_ context.Context, device *models.Device) (*models.Device, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}

	d := *device

	f.mu.Lock()
	f.device = &d
	f.mu.Unlock()

	return &d, nil
}

func (f *fakeBackend) ReportHealth(_ context.Context, _, _ string, online bool, _ time.Time) error {
	f.mu.Lock()
	f.reports = append(f.reports, online)
	f.mu.Unlock()

	return f.fail()
}

func (f *fakeBackend) RecordLocation(_ context.Context, sample *models.LocationSample) error {
	if err := f.fail(); err != nil {
		return err
	}

	f.mu.Lock()
	f.recorded = append(f.recorded, *sample)
	f.mu.Unlock()

	return nil
}

func (f *fakeBackend) RecentLocations(_ context.Context, _ string, _ int) ([]models.LocationSample, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]models.LocationSample(nil), f.recorded...), nil
}

func (f *fakeBackend) LatestLocation(_ context.Context, _, _ string) (*models.LocationSample, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.latest == nil {
		return nil, errors.New("no location")
	}

	s := *f.latest

	return &s, nil
}

func (f *fakeBackend) WatchLocations(context.Context, string, string) (<-chan models.LocationSample, error) {
	return nil, errCloudDown
}

func (f *fakeBackend) Videos(ctx context.Context) ([]models.VideoRecord, error) {
	f.mu.Lock()
	f.videoCalls++
	entered, gate := f.videosEntered, f.videosGate
	f.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err := f.fail(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]models.VideoRecord(nil), f.videos...), nil
}

func (f *fakeBackend) UploadVideo(context.Context, *cloud.Upload) (*models.VideoRecord, error) {
	return nil, errCloudDown
}

func (f *fakeBackend) OpenVideo(context.Context, string) (io.ReadCloser, *natsutil.ObjectInfo, error) {
	return nil, nil, errCloudDown
}

func (f *fakeBackend) SubscribeVideos(ctx context.Context) (<-chan models.VideoChangeEvent, error) {
	if f.feed == nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	return f.feed, nil
}
