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

// Package catalog keeps a merged view of the video catalog across the
// companion device, the cloud backend and local storage.
package catalog

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/carverauto/guardian/pkg/blobstore"
	"github.com/carverauto/guardian/pkg/fallback"
	"github.com/carverauto/guardian/pkg/logger"
	"github.com/carverauto/guardian/pkg/models"
	"github.com/carverauto/guardian/pkg/probe"
)

// Reason labels what asked for a reload.
type Reason string

const (
	ReasonMount     Reason = "mount"
	ReasonRefresh   Reason = "refresh"
	ReasonCloud     Reason = "cloud-change"
	ReasonLocal     Reason = "local-change"
	ReasonRecording Reason = "recording-complete"
)

// SubscribeFunc opens the cloud change feed. The channel closes when the
// feed ends.
type SubscribeFunc func(ctx context.Context) (<-chan models.VideoChangeEvent, error)

// Snapshot is an immutable copy of the merged catalog.
type Snapshot struct {
	Videos    []models.VideoRecord `json:"videos"`
	Sources   []models.SourceKind  `json:"sources"`
	Available bool                 `json:"available"`
	UpdatedAt time.Time            `json:"updated_at"`
	// Seq is the start sequence of the reload that produced the snapshot.
	Seq uint64 `json:"seq"`
}

// Synchronizer owns the merged catalog. Triggers are coalesced by a single
// worker: a trigger that arrives while a reload runs schedules exactly one
// more reload after it.
type Synchronizer struct {
	cfg    Config
	probes []probe.Probe[[]models.VideoRecord]
	feed   SubscribeFunc
	logger logger.Logger

	pending chan Reason
	started atomic.Bool
	done    chan struct{}
	stop    sync.Once
	wg      sync.WaitGroup

	runMu  sync.Mutex
	cancel context.CancelFunc

	startSeq atomic.Uint64
	reloads  atomic.Uint64

	mu      sync.RWMutex
	snap    Snapshot
	applied uint64
	subs    map[int]chan Snapshot
	nextSub int
}

// Option customizes a Synchronizer.
type Option func(*Synchronizer)

// WithChangeFeed subscribes to cloud change notifications while running.
func WithChangeFeed(fn SubscribeFunc) Option {
	return func(s *Synchronizer) {
		s.feed = fn
	}
}

// NewSynchronizer builds an idle synchronizer over the given sources. Probe
// order is the merge order for records with equal timestamps.
func NewSynchronizer(cfg Config, log logger.Logger, probes []probe.Probe[[]models.VideoRecord], opts ...Option) (*Synchronizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if len(probes) == 0 {
		return nil, fmt.Errorf("%w: %w", models.ErrConfiguration, errNoSources)
	}

	if log == nil {
		log = logger.NewTestLogger()
	}

	s := &Synchronizer{
		cfg:     cfg,
		probes:  probes,
		logger:  log,
		pending: make(chan Reason, 1),
		done:    make(chan struct{}),
		subs:    make(map[int]chan Snapshot),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Start performs the mount reload and then serves triggers until ctx ends
// or Stop is called. It blocks.
func (s *Synchronizer) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errAlreadyStarted
	}

	s.runMu.Lock()

	if s.stopped() {
		s.runMu.Unlock()
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	s.runMu.Unlock()

	defer s.wg.Done()
	defer cancel()

	if s.feed != nil {
		s.wg.Add(1)

		go func() {
			defer s.wg.Done()
			s.watchFeed(runCtx)
		}()
	}

	s.Trigger(ReasonMount)

	for {
		select {
		case <-s.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case reason := <-s.pending:
			if _, err := s.Reload(runCtx); err != nil {
				s.logger.Warn().Err(err).Str("reason", string(reason)).Msg("Catalog reload failed")
			}
		}
	}
}

// Stop ends the worker and the change feed, cancelling a reload in flight.
// Results that arrive afterwards are discarded.
func (s *Synchronizer) Stop(ctx context.Context) error {
	s.runMu.Lock()

	s.stop.Do(func() {
		close(s.done)
	})

	if s.cancel != nil {
		s.cancel()
	}

	s.runMu.Unlock()

	waited := make(chan struct{})

	go func() {
		s.wg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Synchronizer) stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Trigger schedules a reload without blocking. Triggers that arrive while
// one is already pending collapse into it.
func (s *Synchronizer) Trigger(reason Reason) {
	select {
	case s.pending <- reason:
		s.logger.Debug().Str("reason", string(reason)).Msg("Catalog reload scheduled")
	default:
	}
}

// OnBlobChange adapts local store mutations into triggers.
func (s *Synchronizer) OnBlobChange(op blobstore.Op, entry blobstore.Entry) {
	s.logger.Debug().Str("op", string(op)).Str("id", entry.ID).Msg("Local store changed")
	s.Trigger(ReasonLocal)
}

// OnRecordingComplete adapts orchestrator completions into triggers.
func (s *Synchronizer) OnRecordingComplete(session models.RecordingSession, _ *models.VideoRecord) {
	s.logger.Debug().Str("session_id", session.ID).Msg("Recording completed")
	s.Trigger(ReasonRecording)
}

// Reload runs every source concurrently and applies the merged result
// unless a reload that started later has already been applied. The
// returned snapshot is the current one after the attempt.
func (s *Synchronizer) Reload(ctx context.Context) (Snapshot, error) {
	seq := s.startSeq.Add(1)
	s.reloads.Add(1)

	rctx, cancel := context.WithTimeout(ctx, s.cfg.ReloadTimeout.Std())
	defer cancel()

	res, err := fallback.Union(rctx, "videos", s.logger, models.NewestFirst, s.probes...)
	if err != nil {
		return s.Snapshot(), err
	}

	if ctx.Err() != nil {
		return s.Snapshot(), ctx.Err()
	}

	s.apply(seq, res)

	return s.Snapshot(), nil
}

// Reloads reports how many reloads have started.
func (s *Synchronizer) Reloads() uint64 {
	return s.reloads.Load()
}

func (s *Synchronizer) apply(seq uint64, res fallback.UnionResult[models.VideoRecord]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped() {
		s.logger.Debug().Uint64("seq", seq).Msg("Discarding catalog reload after stop")
		return
	}

	if seq <= s.applied {
		s.logger.Debug().Uint64("seq", seq).Uint64("applied", s.applied).Msg("Discarding stale catalog reload")
		return
	}

	s.applied = seq

	next := Snapshot{
		Sources:   res.Sources,
		Available: len(res.Sources) > 0,
		UpdatedAt: time.Now().UTC(),
		Seq:       seq,
	}

	// With every source down the last known list is kept but flagged.
	if next.Available {
		next.Videos = res.Items
	} else {
		next.Videos = s.snap.Videos
	}

	if next.Videos == nil {
		next.Videos = []models.VideoRecord{}
	}

	s.snap = next

	s.logger.Debug().
		Uint64("seq", seq).
		Int("videos", len(next.Videos)).
		Int("sources", len(next.Sources)).
		Msg("Catalog updated")

	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}

		ch <- s.copyLocked()
	}
}

func (s *Synchronizer) copyLocked() Snapshot {
	out := s.snap
	out.Videos = slices.Clone(s.snap.Videos)
	out.Sources = slices.Clone(s.snap.Sources)

	return out
}

// Snapshot returns a copy of the merged catalog.
func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.copyLocked()
}

// Find returns the record with the given origin and filename.
func (s *Synchronizer) Find(origin models.VideoOrigin, filename string) (models.VideoRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, v := range s.snap.Videos {
		if v.Origin == origin && v.Filename == filename {
			return v, true
		}
	}

	return models.VideoRecord{}, false
}

// Subscribe delivers each applied snapshot. Slow readers only see the
// latest one.
func (s *Synchronizer) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++

	ch := make(chan Snapshot, 1)
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

func (s *Synchronizer) watchFeed(ctx context.Context) {
	for {
		events, err := s.feed(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Cloud change feed unavailable")
		} else {
			s.drain(ctx, events)
		}

		timer := time.NewTimer(s.cfg.ResubscribeDelay.Std())

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.done:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *Synchronizer) drain(ctx context.Context, events <-chan models.VideoChangeEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case ev, ok := <-events:
			if !ok {
				s.logger.Info().Msg("Cloud change feed closed")
				return
			}

			s.logger.Debug().
				Str("op", string(ev.Op)).
				Str("filename", ev.Video.Filename).
				Msg("Cloud catalog changed")

			s.Trigger(ReasonCloud)
		}
	}
}
