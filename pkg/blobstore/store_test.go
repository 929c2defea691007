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

package blobstore

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/guardian/pkg/models"
)

func plentyOfSpace(context.Context, string) (uint64, error) {
	return 1 << 40, nil
}

func newStore(t *testing.T, opts ...Option) *FileStore {
	t.Helper()

	opts = append([]Option{WithFreeSpaceFunc(plentyOfSpace)}, opts...)

	s, err := New(t.TempDir(), opts...)
	require.NoError(t, err)

	return s
}

func TestSaveGetRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for _, size := range []int{1, 17, 64 << 10} {
		data := bytes.Repeat([]byte{0xAB}, size)

		entry, err := s.Save(ctx, data, "video/webm")
		require.NoError(t, err)
		assert.Equal(t, int64(size), entry.Size)
		assert.Equal(t, "video/webm", entry.ContentType)

		got, meta, err := s.Get(ctx, entry.ID)
		require.NoError(t, err)
		assert.Equal(t, data, got)
		assert.Equal(t, entry.ID, meta.ID)
	}
}

func TestGetUnknownID(t *testing.T) {
	s := newStore(t)

	_, _, err := s.Get(context.Background(), "6f1c1d4e-8a8e-4c55-9b4a-1b2b3c4d5e6f")
	require.ErrorIs(t, err, ErrNotFound)

	_, _, err = s.Get(context.Background(), "../../etc/passwd")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListNewestFirst(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	tick := 0

	s := newStore(t)
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	ctx := context.Background()

	first, err := s.Save(ctx, []byte("a"), "")
	require.NoError(t, err)

	second, err := s.Save(ctx, []byte("b"), "")
	require.NoError(t, err)

	entries, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, second.ID, entries[0].ID)
	assert.Equal(t, first.ID, entries[1].ID)
}

func TestSaveFailsWhenDiskIsFull(t *testing.T) {
	s := newStore(t, WithFreeSpaceFunc(func(context.Context, string) (uint64, error) {
		return 1024, nil
	}), WithReserve(0))

	_, err := s.Save(context.Background(), make([]byte, 2048), "video/webm")
	require.ErrorIs(t, err, models.ErrPersistenceFailure)
	require.ErrorIs(t, err, errInsufficientDisk)

	entries, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSaveProceedsWhenFreeSpaceUnknown(t *testing.T) {
	s := newStore(t, WithFreeSpaceFunc(func(context.Context, string) (uint64, error) {
		return 0, errors.New("statfs unsupported")
	}))

	_, err := s.Save(context.Background(), []byte("clip"), "")
	require.NoError(t, err)
}

func TestSaveRejectsEmpty(t *testing.T) {
	_, err := newStore(t).Save(context.Background(), nil, "")
	require.ErrorIs(t, err, models.ErrPersistenceFailure)
}

func TestDeleteNotifies(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	var (
		mu  sync.Mutex
		ops []Op
	)

	s.OnChange(func(op Op, _ Entry) {
		mu.Lock()
		ops = append(ops, op)
		mu.Unlock()
	})

	entry, err := s.Save(ctx, []byte("clip"), "")
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, entry.ID))
	require.ErrorIs(t, s.Delete(ctx, entry.ID), ErrNotFound)

	_, _, err = s.Get(ctx, entry.ID)
	require.ErrorIs(t, err, ErrNotFound)

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, []Op{OpSaved, OpDeleted}, ops)
}

func TestGetDetectsCorruption(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	entry, err := s.Save(ctx, []byte("original"), "")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(s.root, blobDir, entry.ID), []byte("tampered"), filePerms))

	_, _, err = s.Get(ctx, entry.ID)
	require.ErrorIs(t, err, errChecksumMismatch)
}

func TestStateDocuments(t *testing.T) {
	s := newStore(t)

	type lastKnown struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}

	var out lastKnown
	require.ErrorIs(t, s.LoadJSON("location", &out), ErrNotFound)

	require.NoError(t, s.SaveJSON("location", lastKnown{Latitude: 1.5, Longitude: -2.5}))
	require.NoError(t, s.LoadJSON("location", &out))
	assert.InDelta(t, 1.5, out.Latitude, 1e-9)

	require.ErrorIs(t, s.SaveJSON("../escape", out), errInvalidKey)
}

func TestNewRequiresRoot(t *testing.T) {
	_, err := New("  ")
	require.ErrorIs(t, err, models.ErrConfiguration)
}
