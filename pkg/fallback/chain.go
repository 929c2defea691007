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

// Package fallback resolves a query against an ordered list of sources.
package fallback

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/carverauto/guardian/pkg/logger"
	"github.com/carverauto/guardian/pkg/models"
	"github.com/carverauto/guardian/pkg/probe"
)

// Resolution is the answer produced by a chain.
type Resolution[T any] struct {
	Data      T
	Source    models.SourceKind
	Available bool
	// Attempts lists the failed probes in the order they ran.
	Attempts []Attempt
}

// Attempt records one failed probe.
type Attempt struct {
	Source models.SourceKind
	Err    error
}

// Chain holds probes in fixed priority order.
type Chain[T any] struct {
	name   string
	probes []probe.Probe[T]
	logger logger.Logger
}

// NewChain builds a chain; the priority of probes is their argument order.
func NewChain[T any](name string, log logger.Logger, probes ...probe.Probe[T]) *Chain[T] {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Chain[T]{name: name, probes: probes, logger: log}
}

// Len returns the number of configured probes.
func (c *Chain[T]) Len() int {
	return len(c.probes)
}

// First tries probes sequentially and returns the first success. Later
// probes are not invoked. When every probe fails the resolution is
// returned with Available false and a nil error; only an empty chain is an
// error.
func (c *Chain[T]) First(ctx context.Context) (Resolution[T], error) {
	var res Resolution[T]

	if len(c.probes) == 0 {
		return res, fmt.Errorf("%w: %s: %w", models.ErrConfiguration, c.name, errEmptyChain)
	}

	for _, p := range c.probes {
		if err := ctx.Err(); err != nil {
			res.Attempts = append(res.Attempts, Attempt{Source: p.Source, Err: err})
			break
		}

		r := p.Run(ctx)
		if r.OK() {
			res.Data = r.Data
			res.Source = r.Source
			res.Available = true

			return res, nil
		}

		c.logger.Debug().
			Str("chain", c.name).
			Str("source", string(p.Source)).
			Err(r.Err).
			Msg("Source unavailable, falling back")

		res.Attempts = append(res.Attempts, Attempt{Source: p.Source, Err: r.Err})
	}

	c.logger.Debug().Str("chain", c.name).Int("attempts", len(res.Attempts)).Msg("All sources unavailable")

	return res, nil
}

// UnionResult is the merged output of Union.
type UnionResult[T any] struct {
	Items []T
	// Sources lists the probes that succeeded, in priority order.
	Sources  []models.SourceKind
	Attempts []Attempt
}

// Union runs every probe concurrently and concatenates the successful
// results in probe order before a stable sort with less. Failed probes are
// logged and skipped. Items are not deduplicated across sources.
func Union[T any](ctx context.Context, name string, log logger.Logger, less func(a, b T) bool, probes ...probe.Probe[[]T]) (UnionResult[T], error) {
	var out UnionResult[T]

	if len(probes) == 0 {
		return out, fmt.Errorf("%w: %s: %w", models.ErrConfiguration, name, errEmptyChain)
	}

	if log == nil {
		log = logger.NewTestLogger()
	}

	results := make([]probe.Result[[]T], len(probes))

	g, gctx := errgroup.WithContext(ctx)

	for i, p := range probes {
		g.Go(func() error {
			results[i] = p.Run(gctx)

			// Probe failures are folded into the result, never into the group.
			return nil
		})
	}

	_ = g.Wait()

	for _, r := range results {
		if !r.OK() {
			log.Warn().Str("union", name).Str("source", string(r.Source)).Err(r.Err).Msg("Source skipped in merge")

			out.Attempts = append(out.Attempts, Attempt{Source: r.Source, Err: r.Err})

			continue
		}

		out.Sources = append(out.Sources, r.Source)
		out.Items = append(out.Items, r.Data...)
	}

	if less != nil {
		sort.SliceStable(out.Items, func(i, j int) bool {
			return less(out.Items[i], out.Items[j])
		})
	}

	return out, nil
}
