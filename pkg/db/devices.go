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
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/carverauto/guardian/pkg/models"
)

const (
	deviceColumns = `user_id, device_id, name, type, ip_address, port, is_online, last_seen`

	listDevicesSQL = `SELECT ` + deviceColumns + `
FROM devices
WHERE user_id = $1
ORDER BY last_seen DESC NULLS LAST`

	getDeviceSQL = `SELECT ` + deviceColumns + `
FROM devices
WHERE user_id = $1 AND device_id = $2`

	upsertDeviceSQL = `INSERT INTO devices (` + deviceColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (user_id, device_id) DO UPDATE SET
    name       = EXCLUDED.name,
    type       = EXCLUDED.type,
    ip_address = COALESCE(EXCLUDED.ip_address, devices.ip_address),
    port       = COALESCE(EXCLUDED.port, devices.port),
    is_online  = EXCLUDED.is_online,
    last_seen  = GREATEST(devices.last_seen, EXCLUDED.last_seen)`

	markOnlineSQL = `UPDATE devices
SET is_online = $3, last_seen = GREATEST(last_seen, $4)
WHERE user_id = $1 AND device_id = $2`

	markOfflineSQL = `UPDATE devices
SET is_online = $3
WHERE user_id = $1 AND device_id = $2`
)

func buildUpsertDeviceArgs(d *models.Device) ([]any, error) {
	if d == nil || d.UserID == "" || d.DeviceID == "" {
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidInput, errMissingKeys)
	}

	var ip, port any

	if d.IPAddress != "" {
		ip = d.IPAddress
	}

	if d.Port > 0 {
		port = int32(d.Port)
	}

	lastSeen := d.LastSeen
	if lastSeen.IsZero() {
		lastSeen = nowUTC()
	}

	return []any{
		d.UserID,
		d.DeviceID,
		d.Name,
		d.Type,
		ip,
		port,
		d.IsOnline,
		lastSeen.UTC(),
	}, nil
}

func scanDevice(row pgx.Row) (*models.Device, error) {
	var (
		d        models.Device
		ip       *string
		port     *int32
		lastSeen *time.Time
	)

	if err := row.Scan(&d.UserID, &d.DeviceID, &d.Name, &d.Type, &ip, &port, &d.IsOnline, &lastSeen); err != nil {
		return nil, err
	}

	if ip != nil {
		d.IPAddress = *ip
	}

	if port != nil {
		d.Port = int(*port)
	}

	if lastSeen != nil {
		d.LastSeen = lastSeen.UTC()
	}

	return &d, nil
}

// ListDevices returns a user's devices, most recently seen first.
func (p *Postgres) ListDevices(ctx context.Context, userID string) ([]models.Device, error) {
	rows, err := p.db.Query(ctx, listDevicesSQL, userID)
	if err != nil {
		return nil, wrapQuery("list devices", err)
	}
	defer rows.Close()

	var out []models.Device

	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: device: %w", ErrFailedToScan, err)
		}

		out = append(out, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapQuery("list devices", err)
	}

	return out, nil
}

// GetDevice loads one device or returns ErrDeviceNotFound.
func (p *Postgres) GetDevice(ctx context.Context, userID, deviceID string) (*models.Device, error) {
	d, err := scanDevice(p.db.QueryRow(ctx, getDeviceSQL, userID, deviceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}

	if err != nil {
		return nil, wrapQuery("get device", err)
	}

	return d, nil
}

// UpsertDevice inserts or updates on (user_id, device_id). last_seen never
// moves backwards.
func (p *Postgres) UpsertDevice(ctx context.Context, d *models.Device) error {
	args, err := buildUpsertDeviceArgs(d)
	if err != nil {
		return err
	}

	if _, err := p.db.Exec(ctx, upsertDeviceSQL, args...); err != nil {
		return wrapInsert("upsert device", err)
	}

	return nil
}

func buildHealthUpdate(userID, deviceID string, online bool, seen time.Time) (string, []any) {
	if online && !seen.IsZero() {
		return markOnlineSQL, []any{userID, deviceID, online, seen.UTC()}
	}

	return markOfflineSQL, []any{userID, deviceID, online}
}

// UpdateDeviceHealth records a probe outcome.
func (p *Postgres) UpdateDeviceHealth(ctx context.Context, userID, deviceID string, online bool, seen time.Time) error {
	query, args := buildHealthUpdate(userID, deviceID, online, seen)

	tag, err := p.db.Exec(ctx, query, args...)
	if err != nil {
		return wrapInsert("update device health", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrDeviceNotFound
	}

	return nil
}
