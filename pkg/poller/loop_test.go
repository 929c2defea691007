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

package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/guardian/pkg/logger"
)

func newMockedClock(t *testing.T) (*MockClock, chan time.Time) {
	t.Helper()

	ctrl := gomock.NewController(t)
	clock := NewMockClock(ctrl)
	ticker := NewMockTicker(ctrl)
	tickCh := make(chan time.Time)

	clock.EXPECT().Ticker(5 * time.Second).Return(ticker)
	ticker.EXPECT().Chan().Return((<-chan time.Time)(tickCh)).AnyTimes()
	ticker.EXPECT().Stop()

	return clock, tickCh
}

func TestLoopRunsImmediatelyAndOnEveryTick(t *testing.T) {
	clock, tickCh := newMockedClock(t)

	var calls atomic.Int32

	loop, err := NewLoop("health", 5*time.Second, func(context.Context) error {
		calls.Add(1)
		return nil
	}, logger.NewTestLogger(), WithClock(clock))
	require.NoError(t, err)

	done := make(chan error, 1)

	go func() { done <- loop.Start(context.Background()) }()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	tickCh <- time.Now()
	tickCh <- time.Now()

	require.Eventually(t, func() bool { return calls.Load() == 3 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, loop.Stop(ctx))
	require.NoError(t, <-done)
}

func TestLoopReturnsOnContextCancel(t *testing.T) {
	clock, _ := newMockedClock(t)

	loop, err := NewLoop("health", 5*time.Second, func(context.Context) error {
		return errors.New("probe failed")
	}, nil, WithClock(clock))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- loop.Start(ctx) }()

	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}

	assert.ErrorIs(t, loop.Start(context.Background()), errAlreadyStarted)
}

func TestNewLoopValidation(t *testing.T) {
	_, err := NewLoop("x", 0, func(context.Context) error { return nil }, nil)
	require.ErrorIs(t, err, errInvalidInterval)

	_, err = NewLoop("x", time.Second, nil, nil)
	require.ErrorIs(t, err, errNilTask)
}

func TestStopBeforeStart(t *testing.T) {
	loop, err := NewLoop("x", time.Second, func(context.Context) error { return nil }, nil)
	require.NoError(t, err)

	require.NoError(t, loop.Stop(context.Background()))
	require.NoError(t, loop.Stop(context.Background()))
}

func TestStopCancelsInFlightTask(t *testing.T) {
	clock, _ := newMockedClock(t)

	entered := make(chan struct{})

	var cancelled atomic.Bool

	loop, err := NewLoop("health", 5*time.Second, func(ctx context.Context) error {
		close(entered)

		select {
		case <-ctx.Done():
			cancelled.Store(true)
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	}, logger.NewTestLogger(), WithClock(clock))
	require.NoError(t, err)

	done := make(chan error, 1)

	go func() { done <- loop.Start(context.Background()) }()

	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()

	require.NoError(t, loop.Stop(ctx))
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, cancelled.Load())
	require.NoError(t, <-done)
}

func TestStartAfterStopReturnsImmediately(t *testing.T) {
	loop, err := NewLoop("x", time.Second, func(context.Context) error {
		t.Error("task ran after Stop")
		return nil
	}, nil)
	require.NoError(t, err)

	require.NoError(t, loop.Stop(context.Background()))
	require.NoError(t, loop.Start(context.Background()))
}
