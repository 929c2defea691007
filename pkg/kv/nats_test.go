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

package kv

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/guardian/pkg/logger"
	"github.com/carverauto/guardian/pkg/models"
)

func newTestBucket(t *testing.T) *NatsStore {
	t.Helper()

	srv, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
	})
	require.NoError(t, err)

	go srv.Start()

	if !srv.ReadyForConnections(10 * time.Second) {
		srv.Shutdown()
		t.Fatalf("embedded NATS server not ready for connections")
	}

	t.Cleanup(srv.Shutdown)

	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	js, err := jetstream.New(nc)
	require.NoError(t, err)

	store, err := NewNatsStore(t.Context(), js, Config{Bucket: "locations"}, logger.NewTestLogger())
	require.NoError(t, err)

	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestLocationKey(t *testing.T) {
	key, err := LocationKey("user@example.com", "pi 1")
	require.NoError(t, err)
	assert.Equal(t, "user_example_com.pi_1", key)

	_, err = LocationKey("", "pi-1")
	require.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestNewNatsStoreRequiresBucket(t *testing.T) {
	_, err := NewNatsStore(t.Context(), nil, Config{}, logger.NewTestLogger())
	require.ErrorIs(t, err, models.ErrConfiguration)
}

func TestNatsStoreGetPutDelete(t *testing.T) {
	store := newTestBucket(t)
	ctx := t.Context()

	_, found, err := store.Get(ctx, "u1.pi-1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Put(ctx, "u1.pi-1", []byte("a"), 0))

	value, found, err := store.Get(ctx, "u1.pi-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("a"), value)

	require.NoError(t, store.Delete(ctx, "u1.pi-1"))

	_, found, err = store.Get(ctx, "u1.pi-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLocationFeedWatchDeliversExistingAndNewSamples(t *testing.T) {
	feed := NewLocationFeed(newTestBucket(t), logger.NewTestLogger())
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	first := models.LocationSample{
		UserID: "u1", DeviceID: "pi-1", Latitude: 1, Longitude: 2,
		Timestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Method: models.MethodDeviceGPS,
	}
	require.NoError(t, feed.Publish(ctx, &first))

	samples, err := feed.Watch(ctx, "u1", "")
	require.NoError(t, err)

	select {
	case got := <-samples:
		assert.InDelta(t, 1.0, got.Latitude, 1e-9)
	case <-time.After(5 * time.Second):
		t.Fatal("existing sample not delivered")
	}

	second := first
	second.DeviceID = "pi-2"
	second.Latitude = 3
	require.NoError(t, feed.Publish(ctx, &second))

	select {
	case got := <-samples:
		assert.Equal(t, "pi-2", got.DeviceID)
	case <-time.After(5 * time.Second):
		t.Fatal("new sample not delivered")
	}

	latest, err := feed.Latest(ctx, "u1", "pi-2")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.InDelta(t, 3.0, latest.Latitude, 1e-9)

	cancel()

	require.Eventually(t, func() bool {
		_, ok := <-samples
		return !ok
	}, 5*time.Second, 10*time.Millisecond)
}

func TestLocationFeedSkipsDeletesAndGarbage(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockKVStore(ctrl)

	raw := make(chan []byte, 3)
	good, err := json.Marshal(models.LocationSample{DeviceID: "pi-1", Latitude: 10})
	require.NoError(t, err)

	raw <- nil
	raw <- []byte("{not json")
	raw <- good
	close(raw)

	store.EXPECT().Watch(gomock.Any(), "u1.pi-1").Return((<-chan []byte)(raw), nil)

	samples, err := NewLocationFeed(store, logger.NewTestLogger()).Watch(t.Context(), "u1", "pi-1")
	require.NoError(t, err)

	var got []models.LocationSample
	for s := range samples {
		got = append(got, s)
	}

	require.Len(t, got, 1)
	assert.InDelta(t, 10.0, got[0].Latitude, 1e-9)
}

func TestLocationFeedLatestMissing(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockKVStore(ctrl)
	store.EXPECT().Get(gomock.Any(), "u1.pi-1").Return(nil, false, nil)

	sample, err := NewLocationFeed(store, logger.NewTestLogger()).Latest(t.Context(), "u1", "pi-1")
	require.NoError(t, err)
	assert.Nil(t, sample)
}
