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

package lifecycle

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/guardian/pkg/logger"
)

type fakeService struct {
	started  atomic.Bool
	stopped  atomic.Bool
	startErr error
	stopErr  error
}

func (f *fakeService) Start(context.Context) error {
	f.started.Store(true)
	return f.startErr
}

func (f *fakeService) Stop(context.Context) error {
	f.stopped.Store(true)
	return f.stopErr
}

func TestRunServiceStopsOnContextCancel(t *testing.T) {
	svc := &fakeService{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)

	go func() {
		done <- RunService(ctx, &ServiceOptions{Service: svc, Logger: logger.NewTestLogger()}, nil)
	}()

	require.Eventually(t, svc.started.Load, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("RunService did not return")
	}

	assert.True(t, svc.stopped.Load())
}

func TestRunServicePropagatesServiceError(t *testing.T) {
	svc := &fakeService{}
	errCh := make(chan error, 1)
	boom := errors.New("boom")
	errCh <- boom

	err := RunService(context.Background(), &ServiceOptions{Service: svc}, errCh)
	require.ErrorIs(t, err, boom)
	assert.True(t, svc.stopped.Load())
}

func TestRunServiceStartFailure(t *testing.T) {
	svc := &fakeService{startErr: errors.New("no port")}

	err := RunService(context.Background(), &ServiceOptions{Service: svc}, nil)
	require.Error(t, err)
	assert.False(t, svc.stopped.Load())

	require.ErrorIs(t, RunService(context.Background(), nil, nil), errServiceRequired)
}

func TestCreateComponentLogger(t *testing.T) {
	l, err := CreateComponentLogger("catalog", &logger.Config{Level: "info"})
	require.NoError(t, err)
	require.NotNil(t, l)

	_, err = CreateComponentLogger("catalog", &logger.Config{Level: "loud"})
	require.Error(t, err)
}

func TestProcessComponentLoggerFollowsInitializeLogger(t *testing.T) {
	require.NoError(t, InitializeLogger(&logger.Config{Level: "warn"}))

	l, ok := ProcessComponentLogger("view").(*LoggerImpl)
	require.True(t, ok)
	assert.Equal(t, zerolog.WarnLevel, l.logger.GetLevel())

	require.ErrorContains(t, InitializeLogger(&logger.Config{Level: "loud"}), "failed to initialize logger")
	require.NoError(t, InitializeLogger(nil))
}
