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

// Package companion talks to the control API of a companion device.
package companion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/carverauto/guardian/pkg/logger"
	"github.com/carverauto/guardian/pkg/models"
)

const (
	statusPath      = "/status"
	healthPath      = "/health"
	locationPath    = "/location"
	videosPath      = "/videos"
	recordPath      = "/record"
	recordStartPath = "/record/start"
	recordStopPath  = "/record/stop"
	recordStatePath = "/record/status"

	maxErrorBody = 2048
)

// Endpoint resolves the device's base URL for each request. Resolution is
// per call so that a device record update takes effect immediately.
type Endpoint interface {
	BaseURL(ctx context.Context) (*url.URL, error)
}

// EndpointFunc adapts a function to Endpoint.
type EndpointFunc func(ctx context.Context) (*url.URL, error)

func (f EndpointFunc) BaseURL(ctx context.Context) (*url.URL, error) {
	return f(ctx)
}

// StaticEndpoint always resolves to u.
func StaticEndpoint(u *url.URL) Endpoint {
	return EndpointFunc(func(context.Context) (*url.URL, error) {
		return u, nil
	})
}

// DeviceEndpoint resolves from a fixed device record.
func DeviceEndpoint(d *models.Device) Endpoint {
	return EndpointFunc(func(context.Context) (*url.URL, error) {
		return d.BaseURL()
	})
}

// Config controls the client.
type Config struct {
	RecordMode RecordMode
	HTTP       *http.Client
	Logger     logger.Logger
}

// Client issues control API requests. Timeouts come from the caller's
// context; the probe layer bounds status and location queries.
type Client struct {
	endpoint Endpoint
	mode     RecordMode
	http     *http.Client
	logger   logger.Logger
}

// NewClient constructs a Client.
func NewClient(endpoint Endpoint, cfg Config) (*Client, error) {
	if !cfg.RecordMode.Valid() {
		return nil, fmt.Errorf("%w: %w %q", models.ErrConfiguration, errUnknownRecordMode, cfg.RecordMode)
	}

	mode := cfg.RecordMode
	if mode == "" {
		mode = RecordAuto
	}

	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Client{
		endpoint: endpoint,
		mode:     mode,
		http:     httpClient,
		logger:   log,
	}, nil
}

// Mode returns the configured record mode.
func (c *Client) Mode() RecordMode {
	return c.mode
}

func (c *Client) resolve(ctx context.Context, p string) (*url.URL, error) {
	if c.endpoint == nil {
		return nil, fmt.Errorf("%w: companion endpoint not configured", models.ErrConfiguration)
	}

	base, err := c.endpoint.BaseURL(ctx)
	if err != nil {
		return nil, err
	}

	u := *base
	u.Path = path.Join("/", u.Path, p)

	return &u, nil
}

// do performs the request and returns the response when it is 2xx. The
// caller owns the body.
func (c *Client) do(ctx context.Context, method, p string, body any) (*http.Response, error) {
	u, err := c.resolve(ctx, p)
	if err != nil {
		return nil, err
	}

	var reader io.Reader = http.NoBody

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s body: %w", p, err)
		}

		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create companion request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: companion %s %s: %w", models.ErrUnavailable, method, p, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()

		statusErr := fmt.Errorf("%w: %d: %s", errUnexpectedStatusCode, resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusMethodNotAllowed {
			statusErr = fmt.Errorf("%w: %w", errNotSupported, statusErr)
		}

		return nil, fmt.Errorf("%w: companion %s %s: %w", models.ErrUnavailable, method, p, statusErr)
	}

	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, p string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, p, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode companion %s: %w", models.ErrUnavailable, p, err)
	}

	return nil
}

// Health checks the liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, healthPath, nil)
	if err != nil {
		return err
	}

	_ = resp.Body.Close()

	return nil
}

// Status queries /status. A device that answers is online unless the
// payload says otherwise.
func (c *Client) Status(ctx context.Context) (*models.DeviceStatus, error) {
	var payload statusPayload
	if err := c.getJSON(ctx, statusPath, &payload); err != nil {
		return nil, err
	}

	if payload.Online != nil && !*payload.Online {
		return nil, fmt.Errorf("%w: %w", models.ErrUnavailable, errDeviceOffline)
	}

	status := &models.DeviceStatus{
		DeviceID:       payload.DeviceID,
		Online:         true,
		CameraRunning:  payload.CameraRunning,
		GPSRunning:     payload.GPSRunning,
		LocationMethod: payload.LocationMethod,
		ObservedAt:     time.Now().UTC(),
		Source:         models.SourceCompanion,
	}

	if payload.LastLocationUpdate != nil {
		status.LastSeen = models.ParseEpoch(*payload.LastLocationUpdate)
	}

	return status, nil
}

// Location queries /location.
func (c *Client) Location(ctx context.Context) (*models.LocationSample, error) {
	var payload locationPayload
	if err := c.getJSON(ctx, locationPath, &payload); err != nil {
		return nil, err
	}

	lat, lng, ok := payload.coordinates()
	if !ok {
		return nil, fmt.Errorf("%w: %w", models.ErrUnavailable, errNoCoordinates)
	}

	sample := &models.LocationSample{
		Latitude:  lat,
		Longitude: lng,
		Method:    models.ParseLocationMethod(payload.Method),
	}

	if payload.Timestamp != nil {
		sample.Timestamp = models.ParseEpoch(*payload.Timestamp)
	}

	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now().UTC()
	}

	if err := sample.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrUnavailable, err)
	}

	return sample, nil
}

// Videos lists recordings stored on the device.
func (c *Client) Videos(ctx context.Context) ([]models.VideoRecord, error) {
	var entries []videoEntry
	if err := c.getJSON(ctx, videosPath, &entries); err != nil {
		return nil, err
	}

	out := make([]models.VideoRecord, 0, len(entries))

	for _, e := range entries {
		if e.Filename == "" {
			continue
		}

		u, err := c.resolve(ctx, videosPath+"/"+e.Filename)
		if err != nil {
			return nil, err
		}

		out = append(out, models.VideoRecord{
			Filename:  e.Filename,
			Size:      e.Size,
			Timestamp: e.Timestamp,
			Origin:    models.OriginCompanion,
			URL:       u.String(),
		})
	}

	return out, nil
}

// VideoURL returns the download URL of a device recording.
func (c *Client) VideoURL(ctx context.Context, filename string) (string, error) {
	if filename == "" {
		return "", fmt.Errorf("%w: %w", models.ErrInvalidInput, errEmptyFilename)
	}

	u, err := c.resolve(ctx, videosPath+"/"+filename)
	if err != nil {
		return "", err
	}

	return u.String(), nil
}

// FetchVideo streams one recording. The caller closes the body.
func (c *Client) FetchVideo(ctx context.Context, filename string) (io.ReadCloser, string, error) {
	if filename == "" || strings.ContainsAny(filename, "/\\") {
		return nil, "", fmt.Errorf("%w: %w", models.ErrInvalidInput, errEmptyFilename)
	}

	resp, err := c.do(ctx, http.MethodGet, videosPath+"/"+filename, nil)
	if err != nil {
		return nil, "", err
	}

	return resp.Body, resp.Header.Get("Content-Type"), nil
}

type startRequest struct {
	Duration float64 `json:"duration,omitempty"`
}

// StartRecording asks the device to start capturing. limit is forwarded to
// the device when positive.
func (c *Client) StartRecording(ctx context.Context, limit time.Duration) (StartResult, error) {
	body := &startRequest{Duration: limit.Seconds()}

	switch c.mode {
	case RecordFixed:
		return c.startFixed(ctx, body)
	case RecordSession:
		return c.startSession(ctx, body)
	default:
		res, err := c.startSession(ctx, body)
		if err == nil || !errors.Is(err, errNotSupported) {
			return res, err
		}

		c.logger.Debug().Msg("Device has no session recording endpoints, using fixed duration")

		return c.startFixed(ctx, body)
	}
}

func (c *Client) startSession(ctx context.Context, body *startRequest) (StartResult, error) {
	resp, err := c.do(ctx, http.MethodPost, recordStartPath, body)
	if err != nil {
		return StartResult{}, err
	}

	_ = resp.Body.Close()

	return StartResult{}, nil
}

func (c *Client) startFixed(ctx context.Context, body *startRequest) (StartResult, error) {
	resp, err := c.do(ctx, http.MethodPost, recordPath, body)
	if err != nil {
		return StartResult{}, err
	}

	_ = resp.Body.Close()

	return StartResult{Fixed: true}, nil
}

// StopRecording ends a session started through /record/start.
func (c *Client) StopRecording(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodPost, recordStopPath, nil)
	if err != nil {
		return err
	}

	_ = resp.Body.Close()

	return nil
}

// RecordingStatus reports the device recorder state.
func (c *Client) RecordingStatus(ctx context.Context) (*RecordingStatus, error) {
	var st RecordingStatus
	if err := c.getJSON(ctx, recordStatePath, &st); err != nil {
		return nil, err
	}

	return &st, nil
}
