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

	"github.com/carverauto/guardian/pkg/models"
)

const (
	defaultVideoLimit = 500

	insertVideoSQL = `INSERT INTO videos (filename, url, timestamp, size, device_id)
VALUES ($1, $2, $3, $4, $5)`

	listVideosSQL = `SELECT filename, url, timestamp, size, COALESCE(device_id, '')
FROM videos
ORDER BY timestamp DESC
LIMIT $1`
)

func buildInsertVideoArgs(v *models.VideoRecord) ([]any, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: video is nil", models.ErrInvalidInput)
	}

	if v.Origin != models.OriginCloud {
		return nil, fmt.Errorf("%w: only cloud videos are stored, got %q", models.ErrInvalidInput, v.Origin)
	}

	if err := v.Validate(); err != nil {
		return nil, err
	}

	ts := v.Timestamp
	if ts.IsZero() {
		ts = nowUTC()
	}

	var deviceID any
	if v.DeviceID != "" {
		deviceID = v.DeviceID
	}

	return []any{v.Filename, v.URL, ts.UTC(), v.Size, deviceID}, nil
}

// InsertVideo appends cloud video metadata.
func (p *Postgres) InsertVideo(ctx context.Context, v *models.VideoRecord) error {
	args, err := buildInsertVideoArgs(v)
	if err != nil {
		return err
	}

	if _, err := p.db.Exec(ctx, insertVideoSQL, args...); err != nil {
		return wrapInsert("insert video", err)
	}

	return nil
}

// ListVideos returns cloud videos newest first.
func (p *Postgres) ListVideos(ctx context.Context, limit int) ([]models.VideoRecord, error) {
	if limit <= 0 {
		limit = defaultVideoLimit
	}

	rows, err := p.db.Query(ctx, listVideosSQL, limit)
	if err != nil {
		return nil, wrapQuery("list videos", err)
	}
	defer rows.Close()

	var out []models.VideoRecord

	for rows.Next() {
		v := models.VideoRecord{Origin: models.OriginCloud}

		if err := rows.Scan(&v.Filename, &v.URL, &v.Timestamp, &v.Size, &v.DeviceID); err != nil {
			return nil, fmt.Errorf("%w: video: %w", ErrFailedToScan, err)
		}

		v.Timestamp = v.Timestamp.UTC()
		out = append(out, v)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapQuery("list videos", err)
	}

	return out, nil
}
