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

package db

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/guardian/pkg/logger"
	"github.com/carverauto/guardian/pkg/models"
)

var errBoom = errors.New("boom")

type execCall struct {
	sql  string
	args []any
}

type fakeQuerier struct {
	tag      pgconn.CommandTag
	execErr  error
	queryErr error
	rowErr   error
	calls    []execCall
}

func (f *fakeQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	return f.tag, f.execErr
}

func (f *fakeQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, f.queryErr
}

func (f *fakeQuerier) QueryRow(context.Context, string, ...any) pgx.Row {
	return errRow{err: f.rowErr}
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

func newTestStore(q querier) *Postgres {
	return &Postgres{db: q, logger: logger.NewTestLogger()}
}

func TestBuildUpsertDeviceArgs(t *testing.T) {
	seen := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	args, err := buildUpsertDeviceArgs(&models.Device{
		UserID:    "u1",
		DeviceID:  "pi-1",
		Name:      "Porch",
		Type:      "rpi",
		IPAddress: "10.0.0.5",
		Port:      8000,
		IsOnline:  true,
		LastSeen:  seen,
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"u1", "pi-1", "Porch", "rpi", "10.0.0.5", int32(8000), true, seen}, args)

	args, err = buildUpsertDeviceArgs(&models.Device{UserID: "u1", DeviceID: "pi-1"})
	require.NoError(t, err)
	assert.Nil(t, args[4], "empty address stored as NULL")
	assert.Nil(t, args[5], "zero port stored as NULL")
	assert.False(t, args[7].(time.Time).IsZero())

	_, err = buildUpsertDeviceArgs(&models.Device{DeviceID: "pi-1"})
	require.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestBuildHealthUpdate(t *testing.T) {
	seen := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	query, args := buildHealthUpdate("u1", "pi-1", true, seen)
	assert.Equal(t, markOnlineSQL, query)
	assert.Equal(t, []any{"u1", "pi-1", true, seen}, args)

	query, args = buildHealthUpdate("u1", "pi-1", false, seen)
	assert.Equal(t, markOfflineSQL, query, "offline never advances last_seen")
	assert.Len(t, args, 3)

	query, _ = buildHealthUpdate("u1", "pi-1", true, time.Time{})
	assert.Equal(t, markOfflineSQL, query)
}

func TestBuildInsertLocationArgs(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	args, err := buildInsertLocationArgs(&models.LocationSample{
		UserID: "u1", DeviceID: "pi-1", Latitude: 51.5, Longitude: -0.12, Timestamp: ts,
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"u1", "pi-1", 51.5, -0.12, ts, "ip-estimate"}, args)

	_, err = buildInsertLocationArgs(&models.LocationSample{UserID: "u1", DeviceID: "pi-1", Latitude: 91})
	require.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestBuildInsertVideoArgs(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	args, err := buildInsertVideoArgs(&models.VideoRecord{
		Filename:  "recording-1.mp4",
		URL:       "https://cdn.example/recording-1.mp4",
		Origin:    models.OriginCloud,
		Size:      42,
		Timestamp: ts,
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"recording-1.mp4", "https://cdn.example/recording-1.mp4", ts, int64(42), nil}, args)

	_, err = buildInsertVideoArgs(&models.VideoRecord{Filename: "x", LocalID: "abc", Origin: models.OriginLocal})
	require.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestUpdateDeviceHealthUnknownDevice(t *testing.T) {
	q := &fakeQuerier{tag: pgconn.NewCommandTag("UPDATE 0")}

	err := newTestStore(q).UpdateDeviceHealth(t.Context(), "u1", "missing", true, time.Now())

	require.ErrorIs(t, err, ErrDeviceNotFound)
	require.Len(t, q.calls, 1)
}

func TestUpdateDeviceHealthExecFailure(t *testing.T) {
	q := &fakeQuerier{execErr: errBoom}

	err := newTestStore(q).UpdateDeviceHealth(t.Context(), "u1", "pi-1", false, time.Time{})

	require.ErrorIs(t, err, models.ErrPersistenceFailure)
	require.ErrorIs(t, err, errBoom)
}

func TestUpsertDeviceExecutes(t *testing.T) {
	q := &fakeQuerier{tag: pgconn.NewCommandTag("INSERT 0 1")}

	require.NoError(t, newTestStore(q).UpsertDevice(t.Context(), &models.Device{UserID: "u1", DeviceID: "pi-1"}))
	require.Len(t, q.calls, 1)
	assert.Equal(t, upsertDeviceSQL, q.calls[0].sql)
	assert.Contains(t, q.calls[0].sql, "GREATEST(devices.last_seen, EXCLUDED.last_seen)")
}

func TestGetDeviceNotFound(t *testing.T) {
	_, err := newTestStore(&fakeQuerier{rowErr: pgx.ErrNoRows}).GetDevice(t.Context(), "u1", "pi-1")
	require.ErrorIs(t, err, ErrDeviceNotFound)

	_, err = newTestStore(&fakeQuerier{rowErr: pgx.ErrNoRows}).LatestLocation(t.Context(), "u1", "pi-1")
	require.ErrorIs(t, err, ErrLocationNotFound)
}

func TestListQueriesWrapUnavailable(t *testing.T) {
	s := newTestStore(&fakeQuerier{queryErr: errBoom})

	_, err := s.ListDevices(t.Context(), "u1")
	require.ErrorIs(t, err, models.ErrUnavailable)

	_, err = s.RecentLocations(t.Context(), "u1", 0)
	require.ErrorIs(t, err, models.ErrUnavailable)

	_, err = s.ListVideos(t.Context(), 0)
	require.ErrorIs(t, err, ErrFailedToQuery)
}

func TestPendingMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"m/00002_b.up.sql":   {Data: []byte("SELECT 2;")},
		"m/00001_a.up.sql":   {Data: []byte("SELECT 1;")},
		"m/00001_a.down.sql": {Data: []byte("SELECT 0;")},
		"m/README":           {Data: []byte("x")},
	}

	names, err := pendingMigrations(fsys, "m", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"00001_a.up.sql", "00002_b.up.sql"}, names)

	names, err = pendingMigrations(fsys, "m", map[string]struct{}{"00001": {}})
	require.NoError(t, err)
	assert.Equal(t, []string{"00002_b.up.sql"}, names)
}
