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

// Package guardian assembles the telemetry and recording components into
// one view of a companion device.
package guardian

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/carverauto/guardian/pkg/blobstore"
	"github.com/carverauto/guardian/pkg/capture"
	"github.com/carverauto/guardian/pkg/catalog"
	"github.com/carverauto/guardian/pkg/cloud"
	"github.com/carverauto/guardian/pkg/companion"
	"github.com/carverauto/guardian/pkg/fallback"
	"github.com/carverauto/guardian/pkg/geocode"
	"github.com/carverauto/guardian/pkg/geoip"
	"github.com/carverauto/guardian/pkg/health"
	"github.com/carverauto/guardian/pkg/location"
	"github.com/carverauto/guardian/pkg/logger"
	"github.com/carverauto/guardian/pkg/models"
	"github.com/carverauto/guardian/pkg/probe"
	"github.com/carverauto/guardian/pkg/recording"
	"github.com/carverauto/guardian/pkg/transcode"
)

// View is the guardian's consistent picture of one companion device.
type View struct {
	cfg    Config
	logger logger.Logger

	backend    cloud.Backend
	store      *blobstore.FileStore
	devices    *deviceCache
	client     *companion.Client
	transcoder *transcode.FFmpeg

	monitor   *health.Monitor
	status    *fallback.Chain[*models.DeviceStatus]
	locations *location.Synchronizer
	catalog   *catalog.Synchronizer
	recorder  *recording.Orchestrator

	closers []func()

	lastStatus atomic.Pointer[StatusView]

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	subs    map[int]chan struct{}
	nextSub int
}

// Option customizes New.
type Option func(*options)

type options struct {
	backend    cloud.Backend
	capture    recording.LocalCapture
	geocoder   location.Geocoder
	locator    locator
	httpClient *http.Client
	freeSpace  blobstore.FreeSpaceFunc
}

// WithBackend uses b instead of connecting to the configured cloud.
func WithBackend(b cloud.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithLocalCapture replaces the RTSP recorder.
func WithLocalCapture(c recording.LocalCapture) Option {
	return func(o *options) { o.capture = c }
}

// WithGeocoder replaces the configured reverse geocoder.
func WithGeocoder(g location.Geocoder) Option {
	return func(o *options) { o.geocoder = g }
}

// WithHTTPClient sets the client used for companion requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithFreeSpaceFunc replaces the local store's disk usage probe.
func WithFreeSpaceFunc(fn blobstore.FreeSpaceFunc) Option {
	return func(o *options) { o.freeSpace = fn }
}

// New builds every component from cfg. Nothing runs until Start.
func New(ctx context.Context, cfg Config, log logger.Logger, opts ...Option) (*View, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if log == nil {
		log = logger.NewTestLogger()
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	v := &View{
		cfg:    cfg,
		logger: log,
		subs:   make(map[int]chan struct{}),
	}

	if err := v.build(ctx, &o); err != nil {
		v.close()
		return nil, err
	}

	return v, nil
}

func (v *View) build(ctx context.Context, o *options) error {
	if err := v.buildBackend(ctx, o); err != nil {
		return err
	}

	storeOpts := []blobstore.Option{blobstore.WithLogger(v.logger)}
	if v.cfg.Storage.ReserveBytes > 0 {
		storeOpts = append(storeOpts, blobstore.WithReserve(v.cfg.Storage.ReserveBytes))
	}

	if o.freeSpace != nil {
		storeOpts = append(storeOpts, blobstore.WithFreeSpaceFunc(o.freeSpace))
	}

	store, err := blobstore.New(v.cfg.Storage.Path, storeOpts...)
	if err != nil {
		return err
	}

	v.store = store
	v.devices = newDeviceCache(&v.cfg, v.backend, v.logger)

	client, err := companion.NewClient(v.devices, companion.Config{
		RecordMode: v.cfg.Companion.RecordMode,
		HTTP:       o.httpClient,
		Logger:     v.logger,
	})
	if err != nil {
		return err
	}

	v.client = client

	if err := v.buildHealth(); err != nil {
		return err
	}

	v.buildStatus()

	if err := v.buildLocation(o); err != nil {
		return err
	}

	if err := v.buildCatalog(); err != nil {
		return err
	}

	return v.buildRecorder(o)
}

func (v *View) buildBackend(ctx context.Context, o *options) error {
	switch {
	case o.backend != nil:
		v.backend = o.backend
	case v.cfg.Cloud != nil:
		svc, err := cloud.Connect(ctx, v.cfg.Cloud, v.logger)
		if err != nil {
			return err
		}

		v.backend = svc
		v.closers = append(v.closers, svc.Close)
	default:
		v.logger.Warn().Msg("Cloud backend not configured, using companion and local sources only")
	}

	return nil
}

func (v *View) buildHealth() error {
	var opts []health.Option
	if v.backend != nil {
		opts = append(opts, health.WithReporter(v.backend))
	}

	monitor, err := health.NewMonitor(v.cfg.Health, v.client, v.logger, opts...)
	if err != nil {
		return err
	}

	v.monitor = monitor

	return nil
}

func (v *View) buildStatus() {
	probes := []probe.Probe[*models.DeviceStatus]{companionStatus(v.client)}
	if v.backend != nil {
		probes = append(probes, cloudStatus(v.backend, v.cfg.UserID, v.cfg.DeviceID))
	}

	probes = append(probes, localStatus(v.store))

	v.status = fallback.NewChain("status", v.logger, probes...)
}

func (v *View) buildLocation(o *options) error {
	geocoder := o.geocoder
	if geocoder == nil && v.cfg.Geocode != nil {
		gc, err := geocode.NewClient(*v.cfg.Geocode, v.logger)
		if err != nil {
			return err
		}

		geocoder = gc
		v.closers = append(v.closers, gc.Close)
	}

	est := o.locator
	if est == nil && v.cfg.GeoIP != nil {
		ipFunc := geoip.IPFunc(v.devices.PublicIP)
		if v.cfg.GeoIP.PublicIP != "" {
			ipFunc = geoip.StaticIP(net.ParseIP(v.cfg.GeoIP.PublicIP))
		}

		l, err := geoip.Open(v.cfg.GeoIP.Database, ipFunc)
		if err != nil {
			return err
		}

		est = l
		v.closers = append(v.closers, func() { _ = l.Close() })
	}

	opts := []location.Option{location.WithStateStore(v.store)}
	if geocoder != nil {
		opts = append(opts, location.WithGeocoder(geocoder))
	}

	switch v.cfg.Location.Mode {
	case location.ModeStream:
		if v.backend == nil {
			return fmt.Errorf("%w: %w", models.ErrConfiguration, errNoCloud)
		}

		opts = append(opts, location.WithStream(func(ctx context.Context) (<-chan models.LocationSample, error) {
			return v.backend.WatchLocations(ctx, v.cfg.UserID, v.cfg.DeviceID)
		}))
	case location.ModePoll:
		probes := []probe.Probe[*models.LocationSample]{companionLocation(v.client)}
		if v.backend != nil {
			probes = append(probes, cloudLocation(v.backend, v.cfg.UserID, v.cfg.DeviceID))
		}

		probes = append(probes, location.LastKnownSource(v.store))

		if est != nil {
			probes = append(probes, estimatedLocation(est))
		}

		opts = append(opts, location.WithChain(fallback.NewChain("location", v.logger, probes...)))
	case location.ModeGeolocation:
	}

	syncer, err := location.NewSynchronizer(v.cfg.Location, v.logger, opts...)
	if err != nil {
		return err
	}

	v.locations = syncer

	return nil
}

func (v *View) buildCatalog() error {
	probes := []probe.Probe[[]models.VideoRecord]{catalog.RemoteSource(models.SourceCompanion, v.client)}
	if v.backend != nil {
		probes = append(probes, catalog.RemoteSource(models.SourceCloud, v.backend))
	}

	probes = append(probes, catalog.LocalSource(v.store))

	var opts []catalog.Option
	if v.backend != nil {
		opts = append(opts, catalog.WithChangeFeed(v.backend.SubscribeVideos))
	}

	syncer, err := catalog.NewSynchronizer(v.cfg.Catalog, v.logger, probes, opts...)
	if err != nil {
		return err
	}

	v.catalog = syncer
	v.store.OnChange(syncer.OnBlobChange)

	return nil
}

func (v *View) buildRecorder(o *options) error {
	opts := []recording.Option{recording.WithCompanion(v.client)}

	local := o.capture
	if local == nil && v.cfg.Capture != nil {
		rec, err := capture.NewRTSPRecorder(*v.cfg.Capture, v.logger)
		if err != nil {
			return err
		}

		local = rec
	}

	if local != nil {
		opts = append(opts, recording.WithLocalCapture(local))
	}

	if v.cfg.Transcode != nil {
		v.transcoder = transcode.New(*v.cfg.Transcode, v.logger)
		opts = append(opts, recording.WithTranscoder(v.transcoder))
	}

	rec, err := recording.NewOrchestrator(v.cfg.Recording, v.store, v.logger, opts...)
	if err != nil {
		return err
	}

	rec.OnComplete(v.catalog.OnRecordingComplete)
	rec.OnComplete(func(session models.RecordingSession, _ *models.VideoRecord) {
		v.logger.Info().Str("target", string(session.Target)).Msg("Recording session persisted")
		v.notify()
	})

	v.recorder = rec

	return nil
}

// Start launches the periodic tasks and change feeds. It does not block.
func (v *View) Start(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.started {
		return errAlreadyStarted
	}

	v.started = true

	runCtx, cancel := context.WithCancel(ctx)
	v.cancel = cancel

	v.run(runCtx, "health", v.monitor.Start)
	v.run(runCtx, "location", v.locations.Start)
	v.run(runCtx, "catalog", v.catalog.Start)
	v.run(runCtx, "forward", v.forward)

	v.logger.Info().
		Str("user_id", v.cfg.UserID).
		Str("device_id", v.cfg.DeviceID).
		Str("location_mode", string(v.locations.Mode())).
		Msg("Guardian view started")

	return nil
}

func (v *View) run(ctx context.Context, name string, fn func(context.Context) error) {
	v.wg.Add(1)

	go func() {
		defer v.wg.Done()

		if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			v.logger.Error().Err(err).Str("task", name).Msg("View task exited")
		}
	}()
}

// forward turns component changes into view notifications. A health change
// also re-resolves the device status.
func (v *View) forward(ctx context.Context) error {
	healthCh, stopHealth := v.monitor.Subscribe()
	defer stopHealth()

	locationCh, stopLocation := v.locations.Subscribe()
	defer stopLocation()

	catalogCh, stopCatalog := v.catalog.Subscribe()
	defer stopCatalog()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-healthCh:
			if !ok {
				return nil
			}

			v.run(ctx, "status", func(ctx context.Context) error {
				_, err := v.Status(ctx)
				return err
			})
			v.notify()
		case _, ok := <-locationCh:
			if !ok {
				return nil
			}

			v.notify()
		case _, ok := <-catalogCh:
			if !ok {
				return nil
			}

			v.notify()
		}
	}
}

// Stop cancels every task and its in-flight probes, persists an active
// recording and releases the cloud connections.
func (v *View) Stop(ctx context.Context) error {
	v.mu.Lock()
	cancel := v.cancel
	v.cancel = nil
	v.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var errs []error

	if session := v.recorder.Session(); session.State == models.SessionActive && !session.FixedDuration {
		if _, err := v.recorder.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop active recording: %w", err))
		}
	}

	errs = append(errs,
		v.monitor.Stop(ctx),
		v.locations.Stop(ctx),
		v.catalog.Stop(ctx),
	)

	waited := make(chan struct{})

	go func() {
		v.wg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	v.close()

	v.mu.Lock()
	for id, ch := range v.subs {
		delete(v.subs, id)
		close(ch)
	}
	v.mu.Unlock()

	return errors.Join(errs...)
}

func (v *View) close() {
	for i := len(v.closers) - 1; i >= 0; i-- {
		v.closers[i]()
	}

	v.closers = nil
}

// StatusView is the resolved device status with its provenance.
type StatusView struct {
	Status    *models.DeviceStatus `json:"status,omitempty"`
	Source    models.SourceKind    `json:"source,omitempty"`
	Available bool                 `json:"available"`
	Attempts  []AttemptView        `json:"attempts,omitempty"`
}

// AttemptView is a failed source in JSON form.
type AttemptView struct {
	Source models.SourceKind `json:"source"`
	Error  string            `json:"error"`
}

func attemptViews(attempts []fallback.Attempt) []AttemptView {
	out := make([]AttemptView, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, AttemptView{Source: a.Source, Error: a.Err.Error()})
	}

	return out
}

// Status resolves the device status through the companion, the cloud and
// the last known local copy, in that order.
func (v *View) Status(ctx context.Context) (StatusView, error) {
	res, err := v.status.First(ctx)
	if err != nil {
		return StatusView{}, err
	}

	sv := StatusView{
		Status:    res.Data,
		Source:    res.Source,
		Available: res.Available,
		Attempts:  attemptViews(res.Attempts),
	}

	if res.Available && res.Source != models.SourceLocal {
		if err := v.store.SaveJSON(LastStatusKey, res.Data); err != nil {
			v.logger.Warn().Err(err).Msg("Failed to save last known status")
		}
	}

	v.lastStatus.Store(&sv)

	return sv, nil
}

// Health returns the monitor state.
func (v *View) Health() health.Snapshot {
	return v.monitor.Snapshot()
}

// Device returns the device record.
func (v *View) Device(ctx context.Context) (*models.Device, error) {
	return v.devices.Get(ctx)
}

// Location returns the current location state.
func (v *View) Location() location.State {
	return v.locations.Snapshot()
}

// LocationMode reports how samples are obtained.
func (v *View) LocationMode() location.Mode {
	return v.locations.Mode()
}

// PushLocation accepts a browser geolocation sample. The sample is also
// recorded in the cloud history when a backend is configured.
func (v *View) PushLocation(ctx context.Context, sample *models.LocationSample) (location.State, error) {
	if sample != nil {
		cp := *sample
		cp.UserID = v.cfg.UserID
		cp.DeviceID = v.cfg.DeviceID
		sample = &cp
	}

	st, err := v.locations.Push(sample)
	if err != nil {
		return st, err
	}

	if v.backend != nil && st.Sample != nil {
		if err := v.backend.RecordLocation(ctx, st.Sample); err != nil {
			v.logger.Debug().Err(err).Msg("Failed to record browser location in cloud")
		}
	}

	return st, nil
}

// Videos returns the merged catalog.
func (v *View) Videos() catalog.Snapshot {
	return v.catalog.Snapshot()
}

// RefreshVideos reloads the catalog now.
func (v *View) RefreshVideos(ctx context.Context) (catalog.Snapshot, error) {
	return v.catalog.Reload(ctx)
}

// LocalVideo reads a locally captured recording.
func (v *View) LocalVideo(ctx context.Context, id string) ([]byte, blobstore.Entry, error) {
	return v.store.Get(ctx, id)
}

// DeleteLocalVideo removes a local recording; the catalog reloads through
// the store change hook.
func (v *View) DeleteLocalVideo(ctx context.Context, id string) error {
	return v.store.Delete(ctx, id)
}

// DeviceVideo streams a recording stored on the companion device.
func (v *View) DeviceVideo(ctx context.Context, filename string) (io.ReadCloser, string, error) {
	return v.client.FetchVideo(ctx, filename)
}

// StartRecording starts a session on the companion device or, failing
// that, on the local capture.
func (v *View) StartRecording(ctx context.Context, limit time.Duration) (models.RecordingSession, error) {
	session, err := v.recorder.Start(ctx, recording.StartRequest{
		DeviceID:      v.cfg.DeviceID,
		DurationLimit: limit,
	})
	if err == nil {
		v.notify()
	}

	return session, err
}

// StopRecording ends the current session.
func (v *View) StopRecording(ctx context.Context) (models.RecordingSession, error) {
	session, err := v.recorder.Stop(ctx)
	v.notify()

	return session, err
}

// Session returns the current recording session.
func (v *View) Session() models.RecordingSession {
	return v.recorder.Session()
}

// Backend returns the cloud backend, or nil when none is configured.
func (v *View) Backend() cloud.Backend {
	return v.backend
}

// Transcoder returns the configured transcoder, or nil.
func (v *View) Transcoder() *transcode.FFmpeg {
	return v.transcoder
}

// Snapshot is everything the view currently knows.
type Snapshot struct {
	Device   *models.Device          `json:"device,omitempty"`
	Health   health.Snapshot         `json:"health"`
	Status   *StatusView             `json:"status,omitempty"`
	Location location.State          `json:"location"`
	Videos   catalog.Snapshot        `json:"videos"`
	Session  models.RecordingSession `json:"session"`
}

// Snapshot returns a copy of the current view.
func (v *View) Snapshot() Snapshot {
	return Snapshot{
		Device:   v.devices.Cached(),
		Health:   v.monitor.Snapshot(),
		Status:   v.lastStatus.Load(),
		Location: v.locations.Snapshot(),
		Videos:   v.catalog.Snapshot(),
		Session:  v.recorder.Session(),
	}
}

// Subscribe returns a channel signalled after any change to the view, and
// a cancel function. Signals coalesce; read Snapshot after each one.
func (v *View) Subscribe() (<-chan struct{}, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := v.nextSub
	v.nextSub++

	ch := make(chan struct{}, 1)
	v.subs[id] = ch

	return ch, func() {
		v.mu.Lock()
		defer v.mu.Unlock()

		if c, ok := v.subs[id]; ok {
			delete(v.subs, id)
			close(c)
		}
	}
}

func (v *View) notify() {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, ch := range v.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
