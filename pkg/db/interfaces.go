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

// Package db stores the cloud tables: devices, locations and videos.
package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/carverauto/guardian/pkg/models"
)

// Service is the persistence surface the cloud backend relies on.
type Service interface {
	ListDevices(ctx context.Context, userID string) ([]models.Device, error)
	GetDevice(ctx context.Context, userID, deviceID string) (*models.Device, error)
	UpsertDevice(ctx context.Context, device *models.Device) error
	// UpdateDeviceHealth sets is_online. A non-zero seen advances last_seen;
	// a zero seen leaves it untouched.
	UpdateDeviceHealth(ctx context.Context, userID, deviceID string, online bool, seen time.Time) error

	InsertLocation(ctx context.Context, sample *models.LocationSample) error
	RecentLocations(ctx context.Context, userID string, limit int) ([]models.LocationSample, error)
	LatestLocation(ctx context.Context, userID, deviceID string) (*models.LocationSample, error)

	ListVideos(ctx context.Context, limit int) ([]models.VideoRecord, error)
	InsertVideo(ctx context.Context, video *models.VideoRecord) error

	Close()
}

// querier is the subset of pgxpool.Pool used by the store.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
