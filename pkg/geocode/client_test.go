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

package geocode

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/guardian/pkg/logger"
	"github.com/carverauto/guardian/pkg/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL, RequestsPerSecond: 1000}, logger.NewTestLogger())
	require.NoError(t, err)
	t.Cleanup(c.Close)

	return c
}

func TestReverseGeocode(t *testing.T) {
	var calls atomic.Int32

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		assert.Equal(t, "/reverse", r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "51.5", r.URL.Query().Get("lat"))
		assert.Equal(t, "-0.12", r.URL.Query().Get("lon"))
		assert.Equal(t, "guardian/1.0", r.Header.Get("User-Agent"))

		_, _ = w.Write([]byte(`{"display_name":"10 Downing St, London","address":{"house_number":"10","road":"Downing Street","city":"London","country":"United Kingdom"}}`))
	})

	addr, err := c.ReverseGeocode(t.Context(), 51.5, -0.12)
	require.NoError(t, err)
	require.NotNil(t, addr)
	assert.Equal(t, "10, Downing Street, London, United Kingdom", addr.Format())

	again, err := c.ReverseGeocode(t.Context(), 51.5, -0.12)
	require.NoError(t, err)
	assert.Equal(t, addr, again)
	assert.Equal(t, int32(1), calls.Load(), "second lookup is served from cache")
}

func TestReverseGeocodeNoResult(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":"Unable to geocode"}`))
	})

	addr, err := c.ReverseGeocode(t.Context(), 0, 0)
	require.NoError(t, err)
	assert.Nil(t, addr)
	assert.Equal(t, models.AddressNotFound, addr.Format())
}

func TestReverseGeocodeServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.ReverseGeocode(t.Context(), 1, 1)
	require.ErrorIs(t, err, models.ErrUnavailable)
	require.ErrorIs(t, err, errUnexpectedStatus)
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.InDelta(t, 1.0, cfg.RequestsPerSecond, 0)

	bad := Config{BaseURL: "not a url"}
	require.ErrorIs(t, bad.Validate(), models.ErrConfiguration)
}

func TestCacheKeyRounds(t *testing.T) {
	assert.Equal(t, cacheKey(1.000001, 2.000004), cacheKey(1.000002, 2.000001))
	assert.NotEqual(t, cacheKey(1.0001, 2), cacheKey(1.0002, 2))
}
