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
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/carverauto/guardian/pkg/models"
)

const (
	locationColumns = `user_id, device_id, latitude, longitude, timestamp, method`

	insertLocationSQL = `INSERT INTO locations (` + locationColumns + `)
VALUES ($1, $2, $3, $4, $5, $6)`

	recentLocationsSQL = `SELECT ` + locationColumns + `
FROM locations
WHERE user_id = $1
ORDER BY timestamp DESC
LIMIT $2`

	latestLocationSQL = `SELECT ` + locationColumns + `
FROM locations
WHERE user_id = $1 AND device_id = $2
ORDER BY timestamp DESC
LIMIT 1`
)

func buildInsertLocationArgs(s *models.LocationSample) ([]any, error) {
	if s == nil || s.UserID == "" || s.DeviceID == "" {
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidInput, errMissingKeys)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	method := s.Method
	if method == "" {
		method = models.MethodIPEstimate
	}

	ts := s.Timestamp
	if ts.IsZero() {
		ts = nowUTC()
	}

	return []any{s.UserID, s.DeviceID, s.Latitude, s.Longitude, ts.UTC(), string(method)}, nil
}

func scanLocation(row pgx.Row) (*models.LocationSample, error) {
	var (
		s      models.LocationSample
		method string
	)

	if err := row.Scan(&s.UserID, &s.DeviceID, &s.Latitude, &s.Longitude, &s.Timestamp, &method); err != nil {
		return nil, err
	}

	s.Method = models.LocationMethod(method)
	s.Timestamp = s.Timestamp.UTC()

	return &s, nil
}

// InsertLocation appends a sample.
func (p *Postgres) InsertLocation(ctx context.Context, s *models.LocationSample) error {
	args, err := buildInsertLocationArgs(s)
	if err != nil {
		return err
	}

	if _, err := p.db.Exec(ctx, insertLocationSQL, args...); err != nil {
		return wrapInsert("insert location", err)
	}

	return nil
}

// RecentLocations returns the newest samples for a user.
func (p *Postgres) RecentLocations(ctx context.Context, userID string, limit int) ([]models.LocationSample, error) {
	if limit <= 0 {
		limit = DefaultLocationLimit
	}

	rows, err := p.db.Query(ctx, recentLocationsSQL, userID, limit)
	if err != nil {
		return nil, wrapQuery("recent locations", err)
	}
	defer rows.Close()

	var out []models.LocationSample

	for rows.Next() {
		s, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: location: %w", ErrFailedToScan, err)
		}

		out = append(out, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapQuery("recent locations", err)
	}

	return out, nil
}

// LatestLocation returns the newest sample for one device.
func (p *Postgres) LatestLocation(ctx context.Context, userID, deviceID string) (*models.LocationSample, error) {
	s, err := scanLocation(p.db.QueryRow(ctx, latestLocationSQL, userID, deviceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrLocationNotFound
	}

	if err != nil {
		return nil, wrapQuery("latest location", err)
	}

	return s, nil
}
