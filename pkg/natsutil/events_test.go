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

package natsutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/guardian/pkg/logger"
	"github.com/carverauto/guardian/pkg/models"
)

var errTestFixture = errors.New("fixture")

func TestEnsureSubjectList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		subjects []string
		subject  string
		want     []string
	}{
		{
			name:     "adds subject when list empty",
			subjects: nil,
			subject:  "events.videos.>",
			want:     []string{"events.videos.>"},
		},
		{
			name:     "keeps list when greater wildcard matches",
			subjects: []string{"events.>"},
			subject:  "events.videos.>",
			want:     []string{"events.>"},
		},
		{
			name:     "appends when unmatched",
			subjects: []string{"events.devices.*"},
			subject:  "events.videos.>",
			want:     []string{"events.devices.*", "events.videos.>"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := ensureSubjectList(append([]string(nil), tc.subjects...), tc.subject)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMatchesSubject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		pattern  string
		subject  string
		expected bool
	}{
		{"exact match", "events.videos.insert", "events.videos.insert", true},
		{"single wildcard", "events.*.insert", "events.videos.insert", true},
		{"greater wildcard", "events.>", "events.videos.insert", true},
		{"no match length", "events.*", "events.videos.insert", false},
		{"no match tokens", "logs.videos.*", "events.videos.insert", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, matchesSubject(tc.pattern, tc.subject))
		})
	}
}

func TestIsStreamMissingErr(t *testing.T) {
	t.Parallel()

	assert.True(t, isStreamMissingErr(jetstream.ErrStreamNotFound))
	assert.True(t, isStreamMissingErr(nats.ErrNoResponders))
	assert.False(t, isStreamMissingErr(errTestFixture))
}

func TestDecodeVideoChangeRejectsForeignEvents(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(models.CloudEvent{Type: "com.example.other", Data: map[string]string{}})
	require.NoError(t, err)

	_, err = decodeVideoChange(raw)
	require.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = decodeVideoChange([]byte("{"))
	require.Error(t, err)
}

func runJetStreamServer(t *testing.T) *server.Server {
	t.Helper()

	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
	}

	srv, err := server.NewServer(opts)
	require.NoError(t, err)

	go srv.Start()

	if !srv.ReadyForConnections(10 * time.Second) {
		srv.Shutdown()
		t.Fatalf("embedded NATS server not ready for connections")
	}

	require.Eventually(t, func() bool {
		return srv.JetStreamEnabled()
	}, 5*time.Second, 50*time.Millisecond, "embedded NATS server not ready for JetStream")

	t.Cleanup(srv.Shutdown)

	return srv
}

func connectJetStream(t *testing.T) jetstream.JetStream {
	t.Helper()

	srv := runJetStreamServer(t)

	nc, err := Connect(&models.NATSConfig{URL: srv.ClientURL()}, logger.NewTestLogger())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	js, err := NewJetStream(nc, "")
	require.NoError(t, err)

	return js
}

func TestVideoChangeRoundTrip(t *testing.T) {
	js := connectJetStream(t)
	ctx := t.Context()
	log := logger.NewTestLogger()

	pub, err := CreateEventPublisher(ctx, js, "events", log)
	require.NoError(t, err)

	changes, err := SubscribeVideoChanges(ctx, js, pub.Stream(), log)
	require.NoError(t, err)

	ts := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
	require.NoError(t, pub.PublishVideoChange(ctx, &models.VideoChangeEvent{
		Op: models.ChangeInsert,
		Video: models.VideoRecord{
			Filename:  "recording-1.mp4",
			URL:       "https://cdn.example/recording-1.mp4",
			Origin:    models.OriginCloud,
			Timestamp: ts,
		},
		Timestamp: ts,
	}))

	select {
	case got := <-changes:
		assert.Equal(t, models.ChangeInsert, got.Op)
		assert.Equal(t, "recording-1.mp4", got.Video.Filename)
		assert.True(t, ts.Equal(got.Video.Timestamp))
	case <-time.After(5 * time.Second):
		t.Fatal("video change not delivered")
	}
}

func TestCreateEventPublisherWidensExistingStream(t *testing.T) {
	js := connectJetStream(t)
	ctx := t.Context()

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{Name: "events", Subjects: []string{"events.devices.*"}})
	require.NoError(t, err)

	_, err = CreateEventPublisher(ctx, js, "events", logger.NewTestLogger())
	require.NoError(t, err)

	stream, err := js.Stream(ctx, "events")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"events.devices.*", "events.videos.>"}, stream.CachedInfo().Config.Subjects)
}

func TestObjectStoreRoundTrip(t *testing.T) {
	js := connectJetStream(t)
	ctx := t.Context()

	store, err := NewObjectStore(ctx, js, "recordings", "https://cdn.example/recordings/")
	require.NoError(t, err)

	payload := bytes.Repeat([]byte("frame"), 1024)

	info, err := store.Put(ctx, "recording-1.mp4", "video/mp4", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), info.Size)

	rc, got, err := store.Get(ctx, "recording-1.mp4")
	require.NoError(t, err)

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	assert.Equal(t, payload, data)
	assert.Equal(t, "video/mp4", got.ContentType)
	assert.Equal(t, "https://cdn.example/recordings/recording-1.mp4", store.PublicURL("recording-1.mp4"))

	_, _, err = store.Get(ctx, "missing.mp4")
	require.ErrorIs(t, err, ErrObjectNotFound)

	require.NoError(t, store.Delete(ctx, "recording-1.mp4"))
	require.NoError(t, store.Delete(ctx, "recording-1.mp4"))

	_, err = store.Put(ctx, "", "video/mp4", bytes.NewReader(payload))
	require.ErrorIs(t, err, models.ErrInvalidInput)
}
