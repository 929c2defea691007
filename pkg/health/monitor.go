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

// Package health tracks whether the companion device is reachable.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/carverauto/guardian/pkg/logger"
	"github.com/carverauto/guardian/pkg/models"
	"github.com/carverauto/guardian/pkg/poller"
	"github.com/carverauto/guardian/pkg/probe"
)

// State is the tri-state online flag.
type State int

const (
	StateUnknown State = iota
	StateOnline
	StateOffline
)

func (s State) String() string {
	switch s {
	case StateOnline:
		return "online"
	case StateOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// MarshalText renders the state as its name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Checker performs the reachability probe.
type Checker interface {
	Health(ctx context.Context) error
}

// Reporter records probe outcomes on the device record.
type Reporter interface {
	ReportHealth(ctx context.Context, userID, deviceID string, online bool, seen time.Time) error
}

// Snapshot is the monitor state handed to consumers.
type Snapshot struct {
	State       State     `json:"state"`
	LastSeen    time.Time `json:"last_seen,omitempty"`
	LastChecked time.Time `json:"last_checked,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Online reports whether the last probe succeeded.
func (s Snapshot) Online() bool {
	return s.State == StateOnline
}

// Monitor probes the device on a fixed interval. One success sets Online and
// one failure sets Offline.
type Monitor struct {
	cfg      Config
	checker  Checker
	reporter Reporter
	clock    poller.Clock
	logger   logger.Logger
	loop     *poller.Loop

	mu      sync.RWMutex
	snap    Snapshot
	applied uint64
	seq     uint64
	subs    map[int]chan Snapshot
	nextSub int
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithClock substitutes the time source of the monitor and its loop.
func WithClock(c poller.Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

// WithReporter sends every probe outcome to r.
func WithReporter(r Reporter) Option {
	return func(m *Monitor) { m.reporter = r }
}

// NewMonitor validates cfg and builds an idle monitor.
func NewMonitor(cfg Config, checker Checker, log logger.Logger, opts ...Option) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if checker == nil {
		return nil, fmt.Errorf("%w: %w", models.ErrConfiguration, errNilChecker)
	}

	m := &Monitor{
		cfg:     cfg,
		checker: checker,
		clock:   poller.RealClock(),
		logger:  log,
		subs:    make(map[int]chan Snapshot),
	}

	for _, opt := range opts {
		opt(m)
	}

	loop, err := poller.NewLoop("device-health", cfg.Interval.Std(), func(ctx context.Context) error {
		_, err := m.Check(ctx)
		return err
	}, log, poller.WithClock(m.clock))
	if err != nil {
		return nil, err
	}

	m.loop = loop

	return m, nil
}

// Start runs the periodic probe until ctx ends or Stop is called.
func (m *Monitor) Start(ctx context.Context) error {
	return m.loop.Start(ctx)
}

// Stop ends the periodic probe.
func (m *Monitor) Stop(ctx context.Context) error {
	return m.loop.Stop(ctx)
}

// Snapshot returns a copy of the current state.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.snap
}

// Check runs one probe and applies its outcome. The returned error is the
// probe failure, if any. An outcome is dropped when ctx was cancelled or a
// later probe has already been applied.
func (m *Monitor) Check(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	m.seq++
	seq := m.seq
	m.mu.Unlock()

	p := probe.Probe[struct{}]{
		Source:  models.SourceCompanion,
		Timeout: m.cfg.Timeout.Std(),
		Fn: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, m.checker.Health(ctx)
		},
	}

	res := p.Run(ctx)

	if ctx.Err() != nil {
		return m.Snapshot(), ctx.Err()
	}

	now := m.clock.Now().UTC()
	snap, changed, applied := m.apply(seq, now, res.Err)

	if !applied {
		return snap, res.Err
	}

	if changed {
		m.logger.Info().Str("state", snap.State.String()).Err(res.Err).Msg("Device health changed")
	}

	m.report(ctx, res.OK(), now)

	return snap, res.Err
}

func (m *Monitor) apply(seq uint64, now time.Time, probeErr error) (Snapshot, bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if seq <= m.applied {
		return m.snap, false, false
	}

	m.applied = seq

	prev := m.snap.State
	m.snap.LastChecked = now

	if probeErr == nil {
		m.snap.State = StateOnline
		m.snap.Error = ""

		if now.After(m.snap.LastSeen) {
			m.snap.LastSeen = now
		}
	} else {
		m.snap.State = StateOffline
		m.snap.Error = probeErr.Error()
	}

	changed := prev != m.snap.State
	if changed {
		m.broadcastLocked()
	}

	return m.snap, changed, true
}

func (m *Monitor) report(ctx context.Context, online bool, now time.Time) {
	if m.reporter == nil || m.cfg.DeviceID == "" {
		return
	}

	seen := time.Time{}
	if online {
		seen = now
	}

	if err := m.reporter.ReportHealth(ctx, m.cfg.UserID, m.cfg.DeviceID, online, seen); err != nil {
		m.logger.Debug().Err(err).Bool("online", online).Msg("Failed to report device health")
	}
}

// Subscribe returns a channel receiving the snapshot after every state
// change, and a cancel function. A slow subscriber only sees the latest.
func (m *Monitor) Subscribe() (<-chan Snapshot, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++

	ch := make(chan Snapshot, 1)
	m.subs[id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
}

func (m *Monitor) broadcastLocked() {
	for _, ch := range m.subs {
		select {
		case ch <- m.snap:
			continue
		default:
		}

		select {
		case <-ch:
		default:
		}

		select {
		case ch <- m.snap:
		default:
		}
	}
}
