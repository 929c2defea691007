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

package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/guardian/pkg/logger"
	"github.com/carverauto/guardian/pkg/models"
	"github.com/carverauto/guardian/pkg/poller"
)

var errDown = errors.New("connection refused")

type scriptedChecker struct {
	mu      sync.Mutex
	results []error
	calls   int
}

func (s *scriptedChecker) Health(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.calls
	s.calls++

	if idx >= len(s.results) {
		return s.results[len(s.results)-1]
	}

	return s.results[idx]
}

func (s *scriptedChecker) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls
}

type report struct {
	online bool
	seen   time.Time
}

type fakeReporter struct {
	mu      sync.Mutex
	reports []report
}

func (f *fakeReporter) ReportHealth(_ context.Context, _, _ string, online bool, seen time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reports = append(f.reports, report{online: online, seen: seen})

	return nil
}

var baseTime = time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)

type steppingClock struct {
	poller.Clock
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(time.Second)

	return c.now
}

func newTestMonitor(t *testing.T, checker Checker, opts ...Option) *Monitor {
	t.Helper()

	opts = append([]Option{WithClock(&steppingClock{Clock: poller.RealClock(), now: baseTime})}, opts...)

	m, err := NewMonitor(Config{UserID: "u1", DeviceID: "pi-1"}, checker, logger.NewTestLogger(), opts...)
	require.NoError(t, err)

	return m
}

func TestMonitorStartsUnknown(t *testing.T) {
	m := newTestMonitor(t, &scriptedChecker{results: []error{nil}})

	assert.Equal(t, StateUnknown, m.Snapshot().State)
	assert.Equal(t, "unknown", m.Snapshot().State.String())
}

func TestMonitorFlagTracksLatestProbe(t *testing.T) {
	tests := []struct {
		name    string
		results []error
		want    State
	}{
		{"single success", []error{nil}, StateOnline},
		{"single failure", []error{errDown}, StateOffline},
		{"failure after success", []error{nil, errDown}, StateOffline},
		{"success after failures", []error{errDown, errDown, nil}, StateOnline},
		{"flapping", []error{nil, errDown, nil, errDown}, StateOffline},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestMonitor(t, &scriptedChecker{results: tc.results})

			for range tc.results {
				_, _ = m.Check(t.Context())
			}

			assert.Equal(t, tc.want, m.Snapshot().State)
		})
	}
}

func TestMonitorFailureKeepsLastSeen(t *testing.T) {
	reporter := &fakeReporter{}
	m := newTestMonitor(t, &scriptedChecker{results: []error{nil, errDown}}, WithReporter(reporter))

	online, err := m.Check(t.Context())
	require.NoError(t, err)
	require.True(t, online.Online())

	offline, err := m.Check(t.Context())
	require.ErrorIs(t, err, models.ErrUnavailable)
	require.ErrorIs(t, err, errDown)

	assert.Equal(t, online.LastSeen, offline.LastSeen)
	assert.True(t, offline.LastChecked.After(online.LastChecked))
	assert.Contains(t, offline.Error, "connection refused")

	require.Len(t, reporter.reports, 2)
	assert.True(t, reporter.reports[0].online)
	assert.Equal(t, online.LastSeen, reporter.reports[0].seen)
	assert.False(t, reporter.reports[1].online)
	assert.True(t, reporter.reports[1].seen.IsZero())
}

func TestMonitorSubscribersSeeChangesOnly(t *testing.T) {
	m := newTestMonitor(t, &scriptedChecker{results: []error{nil, nil, errDown}})

	updates, cancel := m.Subscribe()
	defer cancel()

	_, _ = m.Check(t.Context())
	require.Equal(t, StateOnline, (<-updates).State)

	_, _ = m.Check(t.Context())

	select {
	case s := <-updates:
		t.Fatalf("unexpected update %v", s.State)
	default:
	}

	_, _ = m.Check(t.Context())
	require.Equal(t, StateOffline, (<-updates).State)

	cancel()

	_, open := <-updates
	assert.False(t, open)
}

func TestMonitorDiscardsCancelledProbe(t *testing.T) {
	reporter := &fakeReporter{}
	m := newTestMonitor(t, &scriptedChecker{results: []error{nil}}, WithReporter(reporter))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := m.Check(ctx)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, StateUnknown, m.Snapshot().State)
	assert.Empty(t, reporter.reports)
}

type blockingChecker struct {
	entered chan struct{}
	once    sync.Once
}

func (b *blockingChecker) Health(ctx context.Context) error {
	b.once.Do(func() { close(b.entered) })

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(2 * time.Second):
		return nil
	}
}

func TestMonitorStopCancelsRunningProbe(t *testing.T) {
	reporter := &fakeReporter{}
	checker := &blockingChecker{entered: make(chan struct{})}
	m := newTestMonitor(t, checker, WithReporter(reporter))

	done := make(chan error, 1)

	go func() { done <- m.Start(context.Background()) }()

	<-checker.entered

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()

	require.NoError(t, m.Stop(ctx))
	assert.Less(t, time.Since(start), time.Second)
	require.NoError(t, <-done)

	assert.Equal(t, StateUnknown, m.Snapshot().State)

	reporter.mu.Lock()
	defer reporter.mu.Unlock()

	assert.Empty(t, reporter.reports)
}

func TestMonitorLoopProbesOnEveryTick(t *testing.T) {
	ctrl := gomock.NewController(t)
	clock := poller.NewMockClock(ctrl)
	ticker := poller.NewMockTicker(ctrl)
	tickCh := make(chan time.Time)

	clock.EXPECT().Ticker(defaultInterval).Return(ticker)
	clock.EXPECT().Now().Return(baseTime).AnyTimes()
	ticker.EXPECT().Chan().Return((<-chan time.Time)(tickCh)).AnyTimes()
	ticker.EXPECT().Stop()

	checker := &scriptedChecker{results: []error{nil, errDown}}

	m, err := NewMonitor(Config{}, checker, logger.NewTestLogger(), WithClock(clock))
	require.NoError(t, err)

	done := make(chan error, 1)

	go func() { done <- m.Start(context.Background()) }()

	require.Eventually(t, func() bool { return m.Snapshot().State == StateOnline }, time.Second, time.Millisecond)

	tickCh <- baseTime

	require.Eventually(t, func() bool { return m.Snapshot().State == StateOffline }, time.Second, time.Millisecond)
	assert.Equal(t, 2, checker.Calls())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, m.Stop(ctx))
	require.NoError(t, <-done)
}

func TestNewMonitorRequiresChecker(t *testing.T) {
	_, err := NewMonitor(Config{}, nil, logger.NewTestLogger())
	require.ErrorIs(t, err, models.ErrConfiguration)
}
