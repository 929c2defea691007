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

	"github.com/gorilla/mux"

	"github.com/carverauto/guardian/pkg/cloud"
	"github.com/carverauto/guardian/pkg/models"
)

const (
	recentLocationsLimit = 10
	maxUploadBytes       = 512 << 20
	uploadMemory         = 32 << 20
)

// setupRelayRoutes mounts the routes that front the cloud tables and the
// recordings bucket.
func (s *Server) setupRelayRoutes(r *mux.Router) {
	r.HandleFunc("/devices", s.listDevices).Methods(http.MethodGet)
	r.HandleFunc("/devices/sync", s.syncDevice).Methods(http.MethodPost)
	r.HandleFunc("/locations", s.recentLocations).Methods(http.MethodGet)
	r.HandleFunc("/location/sync", s.syncLocation).Methods(http.MethodPost)
	r.HandleFunc("/cloud/videos", s.cloudVideos).Methods(http.MethodGet)
	r.HandleFunc("/cloud/videos/{filename}", s.cloudVideo).Methods(http.MethodGet)
	r.HandleFunc("/recordings/upload", s.uploadRecording).Methods(http.MethodPost)
}

func (s *Server) userID(r *http.Request) string {
	if id := strings.TrimSpace(r.URL.Query().Get("user_id")); id != "" {
		return id
	}

	return s.cfg.DefaultUserID
}

// @Summary List devices
// @Description Devices registered by a user, most recently seen first.
// @Tags Relay
// @Produce json
// @Param user_id query string false "User ID"
// @Success 200 {array} models.Device
// @Router /api/devices [get]
func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) {
	userID := s.userID(r)
	if userID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	devices, err := s.cloud.ListDevices(r.Context(), userID)
	if err != nil {
		s.writeErr(w, r, err, http.StatusBadRequest)
		return
	}

	if devices == nil {
		devices = []models.Device{}
	}

	s.encodeJSONResponse(w, http.StatusOK, devices)
}

func (s *Server) syncDevice(w http.ResponseWriter, r *http.Request) {
	var d models.Device
	if err := decodeJSON(r, &d); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if d.UserID == "" || d.DeviceID == "" {
		writeError(w, "user_id and device_id are required", http.StatusBadRequest)
		return
	}

	// A device that syncs itself is reachable.
	d.IsOnline = true

	saved, err := s.cloud.SyncDevice(r.Context(), &d)
	if err != nil {
		s.writeErr(w, r, err, http.StatusBadRequest)
		return
	}

	s.encodeJSONResponse(w, http.StatusOK, map[string]any{"success": true, "device": saved})
}

func (s *Server) recentLocations(w http.ResponseWriter, r *http.Request) {
	userID := s.userID(r)
	if userID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	limit := recentLocationsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}

		limit = n
	}

	samples, err := s.cloud.RecentLocations(r.Context(), userID, limit)
	if err != nil {
		s.writeErr(w, r, err, http.StatusBadRequest)
		return
	}

	if samples == nil {
		samples = []models.LocationSample{}
	}

	s.encodeJSONResponse(w, http.StatusOK, samples)
}

// locationSync is posted by companion devices.
type locationSync struct {
	UserID    string          `json:"user_id"`
	DeviceID  string          `json:"device_id"`
	Latitude  *float64        `json:"latitude"`
	Longitude *float64        `json:"longitude"`
	Timestamp json.RawMessage `json:"timestamp"`
	Method    string          `json:"method"`
}

func (b *locationSync) sample() (*models.LocationSample, error) {
	if b.UserID == "" || b.DeviceID == "" || b.Latitude == nil || b.Longitude == nil || len(b.Timestamp) == 0 {
		return nil, errMissingFields
	}

	ts, err := parseTimestamp(b.Timestamp)
	if err != nil {
		return nil, err
	}

	if ts.IsZero() {
		return nil, errMissingFields
	}

	method := models.MethodIPEstimate
	if b.Method != "" {
		method = models.ParseLocationMethod(b.Method)
	}

	sample := &models.LocationSample{
		UserID:    b.UserID,
		DeviceID:  b.DeviceID,
		Latitude:  *b.Latitude,
		Longitude: *b.Longitude,
		Timestamp: ts,
		Method:    method,
	}

	return sample, sample.Validate()
}

func (s *Server) syncLocation(w http.ResponseWriter, r *http.Request) {
	var body locationSync
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	sample, err := body.sample()
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.cloud.RecordLocation(r.Context(), sample); err != nil {
		s.writeErr(w, r, err, http.StatusBadRequest)
		return
	}

	s.encodeJSONResponse(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) cloudVideos(w http.ResponseWriter, r *http.Request) {
	videos, err := s.cloud.Videos(r.Context())
	if err != nil {
		s.writeErr(w, r, err, http.StatusBadRequest)
		return
	}

	if videos == nil {
		videos = []models.VideoRecord{}
	}

	s.encodeJSONResponse(w, http.StatusOK, videos)
}

// cloudVideo serves an object from the recordings bucket. Public video URLs
// point here unless a CDN base is configured.
func (s *Server) cloudVideo(w http.ResponseWriter, r *http.Request) {
	body, info, err := s.cloud.OpenVideo(r.Context(), mux.Vars(r)["filename"])
	if err != nil {
		s.writeErr(w, r, err, http.StatusBadRequest)
		return
	}
	defer func() { _ = body.Close() }()

	contentType := "video/mp4"
	if info != nil && info.ContentType != "" {
		contentType = info.ContentType
	}

	w.Header().Set("Content-Type", contentType)

	if info != nil && info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}

	if _, err := io.Copy(w, body); err != nil {
		s.logger.Debug().Err(err).Msg("Cloud video stream interrupted")
	}
}

// @Summary Upload a recording
// @Description Accepts a multipart "file" field holding a video, converts it to MP4 and stores it in the cloud catalog.
// @Tags Relay
// @Accept multipart/form-data
// @Produce json
// @Success 200 {object} map[string]interface{} "success and the public url"
// @Failure 400 {object} models.ErrorResponse "Missing file or not a video"
// @Router /api/recordings/upload [post]
func (s *Server) uploadRecording(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(uploadMemory); err != nil {
		writeError(w, fmt.Sprintf("invalid upload: %v", err), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, errMissingFile.Error(), http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "video/") {
		writeError(w, errNotVideo.Error(), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, fmt.Sprintf("failed to read upload: %v", err), http.StatusBadRequest)
		return
	}

	if s.transcoder != nil {
		out, outType, err := s.transcoder.Transcode(r.Context(), data, contentType)
		if err != nil {
			s.writeErr(w, r, err, http.StatusBadRequest)
			return
		}

		data, contentType = out, outType
	}

	deviceID := r.FormValue("device_id")
	if deviceID == "" {
		deviceID = s.cfg.DefaultDeviceID
	}

	now := s.now().UTC()

	video, err := s.cloud.UploadVideo(r.Context(), &cloud.Upload{
		Filename:    fmt.Sprintf("recording-%d.%s", now.UnixMilli(), models.VideoExtension(contentType)),
		ContentType: contentType,
		DeviceID:    deviceID,
		Timestamp:   now,
		Body:        bytes.NewReader(data),
	})
	if err != nil {
		if errors.Is(err, models.ErrInvalidInput) {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		s.writeErr(w, r, err, http.StatusBadRequest)

		return
	}

	s.encodeJSONResponse(w, http.StatusOK, map[string]any{"success": true, "url": video.URL, "video": video})
}
