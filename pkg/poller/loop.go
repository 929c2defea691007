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

// Package poller runs cancellable periodic tasks.
package poller

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/carverauto/guardian/pkg/logger"
)

// Task is one iteration of a periodic loop.
type Task func(ctx context.Context) error

// Loop invokes a Task immediately and then once per interval until the
// context is cancelled or Stop is called. Iterations never overlap: ticks
// that fire while a task is still running are coalesced by the ticker.
type Loop struct {
	name     string
	interval time.Duration
	task     Task
	clock    Clock
	logger   logger.Logger

	started   atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu     sync.Mutex
	cancel context.CancelFunc
}

// LoopOption customizes a Loop.
type LoopOption func(*Loop)

// WithClock substitutes the time source.
func WithClock(c Clock) LoopOption {
	return func(l *Loop) {
		l.clock = c
	}
}

// NewLoop validates its arguments and returns an idle loop.
func NewLoop(name string, interval time.Duration, task Task, log logger.Logger, opts ...LoopOption) (*Loop, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%s: %w", name, errInvalidInterval)
	}

	if task == nil {
		return nil, fmt.Errorf("%s: %w", name, errNilTask)
	}

	l := &Loop{
		name:     name,
		interval: interval,
		task:     task,
		clock:    realClock{},
		logger:   log,
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.logger == nil {
		l.logger = logger.NewTestLogger()
	}

	return l, nil
}

// Start blocks running the loop. It returns ctx.Err() on cancellation and
// nil after Stop. Stop cancels the context handed to an in-flight task.
func (l *Loop) Start(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return errAlreadyStarted
	}

	l.mu.Lock()

	select {
	case <-l.done:
		l.mu.Unlock()
		return nil
	default:
	}

	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel

	l.wg.Add(1)
	l.mu.Unlock()

	defer l.wg.Done()
	defer cancel()

	ticker := l.clock.Ticker(l.interval)
	defer ticker.Stop()

	l.logger.Debug().Str("loop", l.name).Dur("interval", l.interval).Msg("Starting periodic task")

	l.run(runCtx)

	for {
		select {
		case <-l.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			l.run(runCtx)
		}
	}
}

func (l *Loop) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	select {
	case <-l.done:
		return
	default:
	}

	if err := l.task(ctx); err != nil {
		l.logger.Debug().Err(err).Str("loop", l.name).Msg("Periodic task failed")
	}
}

// Stop ends the loop, cancels an in-flight iteration and waits for it to
// return.
func (l *Loop) Stop(ctx context.Context) error {
	l.mu.Lock()

	l.closeOnce.Do(func() {
		close(l.done)
	})

	if l.cancel != nil {
		l.cancel()
	}

	l.mu.Unlock()

	waited := make(chan struct{})

	go func() {
		l.wg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Now reports the loop's clock time.
func (l *Loop) Now() time.Time {
	return l.clock.Now()
}
