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

package geoip

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/guardian/pkg/models"
)

type fakeDB struct {
	lat, lng *float64
	err      error
}

func (f *fakeDB) Lookup(_ net.IP, result any) error {
	if f.err != nil {
		return f.err
	}

	rec := result.(*cityRecord)
	rec.Location.Latitude = f.lat
	rec.Location.Longitude = f.lng

	return nil
}

func (*fakeDB) Close() error { return nil }

func ptr(v float64) *float64 { return &v }

func TestLocate(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		db      *fakeDB
		ip      net.IP
		wantErr error
	}{
		{name: "public address", db: &fakeDB{lat: ptr(37.75), lng: ptr(-97.82)}, ip: net.ParseIP("8.8.8.8")},
		{name: "private address", db: &fakeDB{}, ip: net.ParseIP("192.168.1.20"), wantErr: errPrivateIP},
		{name: "loopback", db: &fakeDB{}, ip: net.ParseIP("127.0.0.1"), wantErr: errPrivateIP},
		{name: "no location", db: &fakeDB{}, ip: net.ParseIP("1.1.1.1"), wantErr: errNoLocation},
		{name: "lookup failure", db: &fakeDB{err: errors.New("corrupt")}, ip: net.ParseIP("1.1.1.1"), wantErr: models.ErrUnavailable},
		{name: "nil address", db: &fakeDB{}, wantErr: errNoIP},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &Locator{db: tt.db, ip: StaticIP(tt.ip), now: func() time.Time { return fixed }}

			got, err := l.Locate(context.Background())
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.ErrorIs(t, err, models.ErrUnavailable)

				return
			}

			require.NoError(t, err)
			assert.InDelta(t, 37.75, got.Latitude, 1e-9)
			assert.InDelta(t, -97.82, got.Longitude, 1e-9)
			assert.Equal(t, models.MethodIPEstimate, got.Method)
			assert.Equal(t, fixed, got.Timestamp)
		})
	}
}

func TestOpenErrors(t *testing.T) {
	_, err := Open("", nil)
	require.ErrorIs(t, err, models.ErrConfiguration)

	_, err = Open(filepath.Join(t.TempDir(), "missing.mmdb"), nil)
	require.ErrorIs(t, err, models.ErrConfiguration)
}
