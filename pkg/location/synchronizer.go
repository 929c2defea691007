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

// Package location keeps the latest device location and its address.
package location

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/carverauto/guardian/pkg/fallback"
	"github.com/carverauto/guardian/pkg/logger"
	"github.com/carverauto/guardian/pkg/models"
	"github.com/carverauto/guardian/pkg/poller"
)

// LastKnownKey is the state document holding the last resolved sample.
const LastKnownKey = "last_location"

// Geocoder resolves coordinates to an address. A nil address with a nil
// error means no result.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (*models.Address, error)
}

// StateStore persists small documents on the local device.
type StateStore interface {
	SaveJSON(key string, v any) error
	LoadJSON(key string, v any) error
}

// StreamFunc opens the cloud location stream.
type StreamFunc func(ctx context.Context) (<-chan models.LocationSample, error)

// State is a copy of the synchronizer's view.
type State struct {
	Sample         *models.LocationSample `json:"sample,omitempty"`
	Source         models.SourceKind      `json:"source,omitempty"`
	Available      bool                   `json:"available"`
	Address        string                 `json:"address,omitempty"`
	AddressPending bool                   `json:"address_pending"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// Synchronizer tracks the most recent location sample. Each accepted
// sample starts a reverse geocode; a lookup that finishes after a newer
// sample was accepted is discarded.
type Synchronizer struct {
	cfg      Config
	chain    *fallback.Chain[*models.LocationSample]
	stream   StreamFunc
	geocoder Geocoder
	store    StateStore
	clock    poller.Clock
	logger   logger.Logger

	// bg scopes geocode lookups; Stop cancels it.
	bg       context.Context
	cancelBg context.CancelFunc
	lookups  sync.WaitGroup

	started atomic.Bool
	done    chan struct{}
	stop    sync.Once
	loop    *poller.Loop

	mu         sync.RWMutex
	state      State
	generation uint64
	subs       map[int]chan State
	nextSub    int
}

// Option customizes a Synchronizer.
type Option func(*Synchronizer)

// WithChain sets the first-success chain used in poll mode.
func WithChain(c *fallback.Chain[*models.LocationSample]) Option {
	return func(s *Synchronizer) { s.chain = c }
}

// WithStream sets the change stream used in stream mode.
func WithStream(fn StreamFunc) Option {
	return func(s *Synchronizer) { s.stream = fn }
}

// WithGeocoder enables reverse geocoding.
func WithGeocoder(g Geocoder) Option {
	return func(s *Synchronizer) { s.geocoder = g }
}

// WithStateStore persists every accepted sample as the last known location.
func WithStateStore(st StateStore) Option {
	return func(s *Synchronizer) { s.store = st }
}

// WithClock substitutes the polling clock.
func WithClock(c poller.Clock) Option {
	return func(s *Synchronizer) { s.clock = c }
}

// NewSynchronizer validates the mode against the configured inputs.
func NewSynchronizer(cfg Config, log logger.Logger, opts ...Option) (*Synchronizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if log == nil {
		log = logger.NewTestLogger()
	}

	s := &Synchronizer{
		cfg:    cfg,
		clock:  poller.RealClock(),
		logger: log,
		done:   make(chan struct{}),
		subs:   make(map[int]chan State),
	}

	for _, opt := range opts {
		opt(s)
	}

	switch cfg.Mode {
	case ModePoll:
		if s.chain == nil {
			return nil, fmt.Errorf("%w: %w", models.ErrConfiguration, errNoChain)
		}

		loop, err := poller.NewLoop("location-poll", cfg.Interval.Std(), func(ctx context.Context) error {
			_, err := s.Poll(ctx)
			return err
		}, log, poller.WithClock(s.clock))
		if err != nil {
			return nil, err
		}

		s.loop = loop
	case ModeStream:
		if s.stream == nil {
			return nil, fmt.Errorf("%w: %w", models.ErrConfiguration, errNoStream)
		}
	case ModeGeolocation:
	}

	s.bg, s.cancelBg = context.WithCancel(context.Background())

	return s, nil
}

// Mode reports the configured mode.
func (s *Synchronizer) Mode() Mode {
	return s.cfg.Mode
}

// Start blocks until ctx ends or Stop is called.
func (s *Synchronizer) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errAlreadyStarted
	}

	switch s.cfg.Mode {
	case ModePoll:
		return s.loop.Start(ctx)
	case ModeStream:
		return s.follow(ctx)
	default:
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		}
	}
}

// Stop ends polling or streaming and waits for pending address lookups.
func (s *Synchronizer) Stop(ctx context.Context) error {
	s.stop.Do(func() {
		close(s.done)
		s.cancelBg()
	})

	if s.loop != nil {
		if err := s.loop.Stop(ctx); err != nil {
			return err
		}
	}

	waited := make(chan struct{})

	go func() {
		s.lookups.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Poll resolves the chain once. An exhausted chain marks the state
// unavailable and keeps the previous sample.
func (s *Synchronizer) Poll(ctx context.Context) (State, error) {
	if s.chain == nil {
		return s.Snapshot(), fmt.Errorf("%w: %w", models.ErrConfiguration, errNoChain)
	}

	res, err := s.chain.First(ctx)
	if err != nil {
		return s.Snapshot(), err
	}

	if ctx.Err() != nil {
		return s.Snapshot(), ctx.Err()
	}

	if !res.Available || res.Data == nil {
		s.markUnavailable()
		return s.Snapshot(), nil
	}

	s.accept(res.Data, res.Source)

	return s.Snapshot(), nil
}

// Push accepts a coordinate from the client's geolocation API.
func (s *Synchronizer) Push(sample *models.LocationSample) (State, error) {
	if s.cfg.Mode != ModeGeolocation {
		return s.Snapshot(), fmt.Errorf("%w: %w", models.ErrInvalidInput, errWrongMode)
	}

	if sample == nil {
		return s.Snapshot(), fmt.Errorf("%w: %w", models.ErrInvalidInput, errNilSample)
	}

	if err := sample.Validate(); err != nil {
		return s.Snapshot(), err
	}

	cp := *sample
	cp.Method = models.MethodBrowserGeolocation

	if cp.Timestamp.IsZero() {
		cp.Timestamp = s.clock.Now().UTC()
	}

	s.accept(&cp, models.SourceLocal)

	return s.Snapshot(), nil
}

func (s *Synchronizer) follow(ctx context.Context) error {
	for {
		samples, err := s.stream(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Location stream unavailable")
			s.markUnavailable()
		} else {
			s.drain(ctx, samples)
		}

		timer := time.NewTimer(s.cfg.Interval.Std())

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-s.done:
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (s *Synchronizer) drain(ctx context.Context, samples <-chan models.LocationSample) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case sample, ok := <-samples:
			if !ok {
				return
			}

			s.accept(&sample, models.SourceCloud)
		}
	}
}

func (s *Synchronizer) markUnavailable() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.Available && !s.state.UpdatedAt.IsZero() {
		return
	}

	s.state.Available = false
	s.state.UpdatedAt = s.clock.Now().UTC()
	s.broadcastLocked()
}

// accept applies sample unless it is older than the current one and
// starts its address lookup. Samples are ignored after Stop.
func (s *Synchronizer) accept(sample *models.LocationSample, source models.SourceKind) {
	s.mu.Lock()

	if s.bg.Err() != nil {
		s.mu.Unlock()
		return
	}

	current := s.state.Sample
	if current != nil && !sample.Newer(current) {
		// Same sample answered again: the source is reachable.
		if !s.state.Available {
			s.state.Available = true
			s.broadcastLocked()
		}

		s.mu.Unlock()

		return
	}

	unchanged := current != nil &&
		current.Latitude == sample.Latitude &&
		current.Longitude == sample.Longitude

	cp := *sample
	s.state.Sample = &cp
	s.state.Source = source
	s.state.Available = true
	s.state.UpdatedAt = s.clock.Now().UTC()

	var gen uint64

	if !unchanged {
		s.generation++
		gen = s.generation
		s.state.AddressPending = s.geocoder != nil

		if s.geocoder == nil {
			s.state.Address = ""
		}
	}

	s.broadcastLocked()
	s.mu.Unlock()

	s.saveLastKnown(&cp)

	if gen != 0 && s.geocoder != nil {
		s.lookups.Add(1)

		go s.resolveAddress(gen, cp)
	}
}

func (s *Synchronizer) saveLastKnown(sample *models.LocationSample) {
	if s.store == nil {
		return
	}

	if err := s.store.SaveJSON(LastKnownKey, sample); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to save last known location")
	}
}

func (s *Synchronizer) resolveAddress(gen uint64, sample models.LocationSample) {
	defer s.lookups.Done()

	ctx, cancel := context.WithTimeout(s.bg, s.cfg.GeocodeTimeout.Std())
	defer cancel()

	addr, err := s.geocoder.ReverseGeocode(ctx, sample.Latitude, sample.Longitude)

	text := addr.Format()
	if err != nil {
		s.logger.Debug().Err(err).Msg("Reverse geocode failed")

		text = models.AddressNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bg.Err() != nil {
		s.logger.Debug().Uint64("generation", gen).Msg("Discarding address lookup after stop")
		return
	}

	if gen != s.generation {
		s.logger.Debug().Uint64("generation", gen).Msg("Discarding address for superseded sample")
		return
	}

	s.state.Address = text
	s.state.AddressPending = false
	s.broadcastLocked()
}

// Snapshot returns a copy of the current state.
func (s *Synchronizer) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.copyLocked()
}

func (s *Synchronizer) copyLocked() State {
	out := s.state
	if s.state.Sample != nil {
		cp := *s.state.Sample
		out.Sample = &cp
	}

	return out
}

// Subscribe delivers state changes. Slow readers only see the latest.
func (s *Synchronizer) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++

	ch := make(chan State, 1)
	s.subs[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
}

func (s *Synchronizer) broadcastLocked() {
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}

		ch <- s.copyLocked()
	}
}
