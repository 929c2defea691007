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

package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carverauto/guardian/pkg/logger"
	"github.com/carverauto/guardian/pkg/models"
)

// DefaultLocationLimit caps RecentLocations when no limit is given.
const DefaultLocationLimit = 10

// Postgres implements Service on a pgx pool.
type Postgres struct {
	db     querier
	pool   *pgxpool.Pool
	logger logger.Logger
}

var _ Service = (*Postgres)(nil)

// New connects, migrates and returns the store.
func New(ctx context.Context, cfg *models.DatabaseConfig, log logger.Logger) (*Postgres, error) {
	pool, err := NewPool(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(ctx, pool, log); err != nil {
		pool.Close()
		return nil, err
	}

	return &Postgres{db: pool, pool: pool, logger: log}, nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func wrapQuery(op string, err error) error {
	return fmt.Errorf("%w: %w: %s: %w", models.ErrUnavailable, ErrFailedToQuery, op, err)
}

func wrapInsert(op string, err error) error {
	return fmt.Errorf("%w: %w: %s: %w", models.ErrPersistenceFailure, ErrFailedToInsert, op, err)
}
