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

// Package probe wraps a single bounded-time attempt to read from one source.
package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/carverauto/guardian/pkg/models"
)

// DefaultTimeout bounds status and location probes.
const DefaultTimeout = 5 * time.Second

var errPanic = errors.New("probe panicked")

// Func performs the actual source query. A Func that ignores ctx keeps
// running after Run has returned; its late result is dropped.
type Func[T any] func(ctx context.Context) (T, error)

// Probe is a named, time-bounded query against one source. A zero Timeout
// means the probe has no deadline of its own but still honors cancellation.
type Probe[T any] struct {
	Source  models.SourceKind
	Timeout time.Duration
	Fn      Func[T]
}

// Result is the outcome of one Probe run.
type Result[T any] struct {
	Source  models.SourceKind
	Data    T
	Err     error
	Elapsed time.Duration
}

// OK reports whether the probe produced data.
func (r *Result[T]) OK() bool {
	return r.Err == nil
}

// New builds a probe with the default timeout.
func New[T any](source models.SourceKind, fn Func[T]) Probe[T] {
	return Probe[T]{Source: source, Timeout: DefaultTimeout, Fn: fn}
}

// Run executes the probe. Every failure, including a panic inside Fn or a
// deadline, is reported as an error wrapping models.ErrUnavailable. Run
// returns once the deadline passes even when Fn does not honor ctx.
func (p Probe[T]) Run(ctx context.Context) (res Result[T]) {
	res.Source = p.Source
	start := time.Now()

	defer func() {
		res.Elapsed = time.Since(start)
	}()

	if p.Fn == nil {
		res.Err = fmt.Errorf("%w: %s: no query configured", models.ErrUnavailable, p.Source)
		return res
	}

	if p.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	// One slot: a Fn that outlives ctx sends without a reader.
	outcomes := make(chan outcome[T], 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				outcomes <- outcome[T]{err: fmt.Errorf("%w: %v", errPanic, r)}
			}
		}()

		data, err := p.Fn(ctx)
		outcomes <- outcome[T]{data: data, err: err}
	}()

	select {
	case <-ctx.Done():
		res.Err = wrapUnavailable(p.Source, ctx.Err())
	case out := <-outcomes:
		switch {
		case out.err != nil:
			res.Err = wrapUnavailable(p.Source, out.err)
		case ctx.Err() != nil:
			// Data that arrives after the deadline is discarded.
			res.Err = wrapUnavailable(p.Source, ctx.Err())
		default:
			res.Data = out.data
		}
	}

	return res
}

type outcome[T any] struct {
	data T
	err  error
}

func wrapUnavailable(source models.SourceKind, err error) error {
	if errors.Is(err, models.ErrUnavailable) {
		return err
	}

	return fmt.Errorf("%w: %s: %w", models.ErrUnavailable, source, err)
}
