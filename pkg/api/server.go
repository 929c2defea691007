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

// Package api serves the guardian view and the cloud relay over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/carverauto/guardian/pkg/blobstore"
	"github.com/carverauto/guardian/pkg/catalog"
	"github.com/carverauto/guardian/pkg/cloud"
	"github.com/carverauto/guardian/pkg/guardian"
	"github.com/carverauto/guardian/pkg/health"
	srHttp "github.com/carverauto/guardian/pkg/http"
	"github.com/carverauto/guardian/pkg/location"
	"github.com/carverauto/guardian/pkg/logger"
	"github.com/carverauto/guardian/pkg/models"
	"github.com/carverauto/guardian/pkg/recording"
)

const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultIdleTimeout  = 60 * time.Second
)

// View is the part of the guardian view the API serves.
type View interface {
	Status(ctx context.Context) (guardian.StatusView, error)
	Health() health.Snapshot
	Device(ctx context.Context) (*models.Device, error)
	Location() location.State
	PushLocation(ctx context.Context, sample *models.LocationSample) (location.State, error)
	Videos() catalog.Snapshot
	RefreshVideos(ctx context.Context) (catalog.Snapshot, error)
	LocalVideo(ctx context.Context, id string) ([]byte, blobstore.Entry, error)
	DeleteLocalVideo(ctx context.Context, id string) error
	DeviceVideo(ctx context.Context, filename string) (io.ReadCloser, string, error)
	StartRecording(ctx context.Context, limit time.Duration) (models.RecordingSession, error)
	StopRecording(ctx context.Context) (models.RecordingSession, error)
	Session() models.RecordingSession
	Snapshot() guardian.Snapshot
	Subscribe() (<-chan struct{}, func())
}

var _ View = (*guardian.View)(nil)

// Config controls the listener.
type Config struct {
	ListenAddr string
	CORS       models.CORSConfig
	// DefaultUserID answers relay queries that omit user_id.
	DefaultUserID string
	// DefaultDeviceID tags uploads that omit device_id.
	DefaultDeviceID string
}

// Server is the guardian HTTP API.
type Server struct {
	cfg        Config
	view       View
	cloud      cloud.Backend
	transcoder recording.Transcoder
	logger     logger.Logger
	router     *mux.Router
	handler    http.Handler
	now        func() time.Time

	mu   sync.Mutex
	srv  *http.Server
	addr net.Addr
	errs chan error
}

// Option customizes a Server.
type Option func(*Server)

// WithCloud enables the cloud relay routes.
func WithCloud(b cloud.Backend) Option {
	return func(s *Server) {
		s.cloud = b
	}
}

// WithTranscoder converts uploads before they reach the cloud.
func WithTranscoder(t recording.Transcoder) Option {
	return func(s *Server) {
		s.transcoder = t
	}
}

// NewServer builds the router. Relay routes are only mounted with WithCloud.
func NewServer(cfg Config, view View, log logger.Logger, opts ...Option) *Server {
	if log == nil {
		log = logger.NewTestLogger()
	}

	s := &Server{
		cfg:    cfg,
		view:   view,
		logger: log,
		router: mux.NewRouter(),
		now:    time.Now,
		errs:   make(chan error, 1),
	}

	for _, o := range opts {
		o(s)
	}

	s.setupRoutes()
	s.handler = srHttp.CommonMiddleware(s.router, cfg.CORS, log)

	return s
}

func (s *Server) setupRoutes() {
	r := s.router.PathPrefix("/api").Subrouter()

	r.HandleFunc("/status", s.getStatus).Methods(http.MethodGet)
	r.HandleFunc("/health", s.getHealth).Methods(http.MethodGet)
	r.HandleFunc("/device", s.getDevice).Methods(http.MethodGet)
	r.HandleFunc("/snapshot", s.getSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/stream", s.handleStream).Methods(http.MethodGet)

	r.HandleFunc("/location", s.getLocation).Methods(http.MethodGet)
	r.HandleFunc("/location/browser", s.pushLocation).Methods(http.MethodPost)

	r.HandleFunc("/videos", s.getVideos).Methods(http.MethodGet)
	r.HandleFunc("/videos/refresh", s.refreshVideos).Methods(http.MethodPost)
	r.HandleFunc("/videos/local/{id}", s.getLocalVideo).Methods(http.MethodGet)
	r.HandleFunc("/videos/local/{id}", s.deleteLocalVideo).Methods(http.MethodDelete)
	r.HandleFunc("/videos/device/{filename}", s.getDeviceVideo).Methods(http.MethodGet)

	r.HandleFunc("/recordings/start", s.startRecording).Methods(http.MethodPost)
	r.HandleFunc("/recordings/stop", s.stopRecording).Methods(http.MethodPost)
	r.HandleFunc("/recordings/session", s.getSession).Methods(http.MethodGet)

	if s.cloud != nil {
		s.setupRelayRoutes(r)
	}
}

// Handler returns the router wrapped in the common middleware.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens and serves in the background. Serve failures are reported
// on Errors.
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv != nil {
		return errAlreadyStarted
	}

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}

	s.srv = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}
	s.addr = ln.Addr()

	srv := s.srv

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errs <- err
		}
	}()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("API server listening")

	return nil
}

// Stop drains in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	return srv.Shutdown(ctx)
}

// Addr returns the bound address once started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.addr
}

// Errors reports fatal serve errors.
func (s *Server) Errors() <-chan error {
	return s.errs
}

func (s *Server) encodeJSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errResponse := models.ErrorResponse{
		Message: message,
		Status:  statusCode,
	}

	if err := json.NewEncoder(w).Encode(errResponse); err != nil {
		http.Error(w, "Failed to encode error response", http.StatusInternalServerError)
	}
}

// writeErr serves err with the status its taxonomy maps to.
func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error, invalid int) {
	status := statusFor(err, invalid)
	if status >= http.StatusInternalServerError {
		s.logger.Warn().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("Request failed")
	}

	writeError(w, messageFor(err), status)
}
