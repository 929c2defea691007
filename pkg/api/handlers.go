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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/carverauto/guardian/pkg/models"
)

const maxJSONBody = 1 << 20

// @Summary Get device status
// @Description Resolves device status from the companion, the cloud or the last known copy.
// @Tags Device
// @Produce json
// @Success 200 {object} guardian.StatusView "Status; available is false when no source answered"
// @Failure 503 {object} models.ErrorResponse "No status source configured"
// @Router /api/status [get]
func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.view.Status(r.Context())
	if err != nil {
		s.writeErr(w, r, err, http.StatusBadRequest)
		return
	}

	s.encodeJSONResponse(w, http.StatusOK, st)
}

func (s *Server) getHealth(w http.ResponseWriter, _ *http.Request) {
	s.encodeJSONResponse(w, http.StatusOK, s.view.Health())
}

func (s *Server) getDevice(w http.ResponseWriter, r *http.Request) {
	d, err := s.view.Device(r.Context())
	if err != nil {
		s.writeErr(w, r, err, http.StatusBadRequest)
		return
	}

	s.encodeJSONResponse(w, http.StatusOK, d)
}

func (s *Server) getSnapshot(w http.ResponseWriter, _ *http.Request) {
	s.encodeJSONResponse(w, http.StatusOK, s.view.Snapshot())
}

func (s *Server) getLocation(w http.ResponseWriter, _ *http.Request) {
	s.encodeJSONResponse(w, http.StatusOK, s.view.Location())
}

// browserLocation is a fix from the client's geolocation API.
type browserLocation struct {
	Latitude  *float64        `json:"latitude"`
	Longitude *float64        `json:"longitude"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
}

// @Summary Push a browser location
// @Description Accepts a coordinate from the client when the view runs in geolocation mode.
// @Tags Location
// @Accept json
// @Produce json
// @Success 200 {object} location.State
// @Failure 400 {object} models.ErrorResponse "Malformed coordinate"
// @Failure 409 {object} models.ErrorResponse "View is not in geolocation mode"
// @Router /api/location/browser [post]
func (s *Server) pushLocation(w http.ResponseWriter, r *http.Request) {
	var body browserLocation
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if body.Latitude == nil || body.Longitude == nil {
		writeError(w, "latitude and longitude are required", http.StatusBadRequest)
		return
	}

	sample := &models.LocationSample{Latitude: *body.Latitude, Longitude: *body.Longitude}

	if len(body.Timestamp) > 0 {
		ts, err := parseTimestamp(body.Timestamp)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		sample.Timestamp = ts
	}

	if err := sample.Validate(); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	st, err := s.view.PushLocation(r.Context(), sample)
	if err != nil {
		s.writeErr(w, r, err, http.StatusConflict)
		return
	}

	s.encodeJSONResponse(w, http.StatusOK, st)
}

// @Summary List videos
// @Description Returns the merged catalog of companion, cloud and local recordings, newest first.
// @Tags Videos
// @Produce json
// @Success 200 {object} catalog.Snapshot
// @Router /api/videos [get]
func (s *Server) getVideos(w http.ResponseWriter, _ *http.Request) {
	s.encodeJSONResponse(w, http.StatusOK, s.view.Videos())
}

func (s *Server) refreshVideos(w http.ResponseWriter, r *http.Request) {
	snap, err := s.view.RefreshVideos(r.Context())
	if err != nil {
		s.writeErr(w, r, err, http.StatusBadRequest)
		return
	}

	s.encodeJSONResponse(w, http.StatusOK, snap)
}

func (s *Server) getLocalVideo(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	data, entry, err := s.view.LocalVideo(r.Context(), id)
	if err != nil {
		s.writeErr(w, r, err, http.StatusBadRequest)
		return
	}

	if entry.ContentType != "" {
		w.Header().Set("Content-Type", entry.ContentType)
	}

	name := models.LocalVideoFilename(entry.ID, models.VideoExtension(entry.ContentType))
	http.ServeContent(w, r, name, entry.Timestamp, bytes.NewReader(data))
}

func (s *Server) deleteLocalVideo(w http.ResponseWriter, r *http.Request) {
	if err := s.view.DeleteLocalVideo(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeErr(w, r, err, http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// getDeviceVideo proxies a recording stored on the companion device.
func (s *Server) getDeviceVideo(w http.ResponseWriter, r *http.Request) {
	body, contentType, err := s.view.DeviceVideo(r.Context(), mux.Vars(r)["filename"])
	if err != nil {
		s.writeErr(w, r, err, http.StatusBadRequest)
		return
	}
	defer func() { _ = body.Close() }()

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Content-Type", contentType)

	if _, err := io.Copy(w, body); err != nil {
		s.logger.Debug().Err(err).Msg("Device video stream interrupted")
	}
}

// startRequest accepts the limit either as a duration or as seconds.
type startRequest struct {
	DurationLimit models.Duration `json:"duration_limit,omitempty"`
	Duration      float64         `json:"duration,omitempty"`
}

func (b *startRequest) limit() time.Duration {
	if b.DurationLimit > 0 {
		return b.DurationLimit.Std()
	}

	return time.Duration(b.Duration * float64(time.Second))
}

// @Summary Start recording
// @Description Starts a session on the companion device, falling back to local capture.
// @Tags Recordings
// @Accept json
// @Produce json
// @Success 200 {object} models.RecordingSession
// @Failure 409 {object} models.ErrorResponse "A session is already in progress"
// @Failure 502 {object} models.ErrorResponse "No capture target reachable"
// @Router /api/recordings/start [post]
func (s *Server) startRecording(w http.ResponseWriter, r *http.Request) {
	var body startRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if body.Duration < 0 || body.DurationLimit < 0 {
		writeError(w, "duration must not be negative", http.StatusBadRequest)
		return
	}

	session, err := s.view.StartRecording(r.Context(), body.limit())
	if err != nil {
		s.writeErr(w, r, err, http.StatusConflict)
		return
	}

	s.encodeJSONResponse(w, http.StatusOK, session)
}

func (s *Server) stopRecording(w http.ResponseWriter, r *http.Request) {
	session, err := s.view.StopRecording(r.Context())
	if err != nil {
		s.writeErr(w, r, err, http.StatusConflict)
		return
	}

	s.encodeJSONResponse(w, http.StatusOK, session)
}

func (s *Server) getSession(w http.ResponseWriter, _ *http.Request) {
	s.encodeJSONResponse(w, http.StatusOK, s.view.Session())
}

// decodeJSON reads an optional JSON body. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody))
	if err != nil {
		return fmt.Errorf("failed to read request body: %w", err)
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}

	return nil
}

var errBadTimestamp = errors.New("timestamp must be an epoch number or RFC 3339 string")

// parseTimestamp accepts epoch seconds, epoch milliseconds or RFC 3339.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return models.ParseEpoch(num), nil
	}

	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return time.Time{}, errBadTimestamp
	}

	str = strings.TrimSpace(str)

	if t, err := time.Parse(time.RFC3339Nano, str); err == nil {
		return t.UTC(), nil
	}

	if n, err := strconv.ParseFloat(str, 64); err == nil && n > 0 {
		return models.ParseEpoch(n), nil
	}

	return time.Time{}, errBadTimestamp
}
