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

package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/carverauto/guardian/pkg/logger"
	"github.com/carverauto/guardian/pkg/models"
)

// SanitizeKey maps an identifier onto the NATS key alphabet. Disallowed
// characters become underscores.
func SanitizeKey(id string) string {
	var b strings.Builder

	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '=':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	return b.String()
}

// LocationKey is the key holding the latest sample of one device.
func LocationKey(userID, deviceID string) (string, error) {
	user, device := SanitizeKey(userID), SanitizeKey(deviceID)
	if user == "" || device == "" {
		return "", fmt.Errorf("%w: %w", models.ErrInvalidInput, errInvalidKey)
	}

	return user + "." + device, nil
}

// LocationFeed publishes and watches the latest location of each device.
type LocationFeed struct {
	store  KVStore
	logger logger.Logger
}

func NewLocationFeed(store KVStore, log logger.Logger) *LocationFeed {
	return &LocationFeed{store: store, logger: log}
}

// Publish replaces the device's latest sample.
func (f *LocationFeed) Publish(ctx context.Context, sample *models.LocationSample) error {
	key, err := LocationKey(sample.UserID, sample.DeviceID)
	if err != nil {
		return err
	}

	value, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("failed to encode location: %w", err)
	}

	return f.store.Put(ctx, key, value, 0)
}

// Latest returns the stored sample for a device, or nil when none exists.
func (f *LocationFeed) Latest(ctx context.Context, userID, deviceID string) (*models.LocationSample, error) {
	key, err := LocationKey(userID, deviceID)
	if err != nil {
		return nil, err
	}

	value, found, err := f.store.Get(ctx, key)
	if err != nil || !found {
		return nil, err
	}

	var sample models.LocationSample
	if err := json.Unmarshal(value, &sample); err != nil {
		return nil, fmt.Errorf("failed to decode location %s: %w", key, err)
	}

	return &sample, nil
}

// Watch streams samples for every device of userID, or for one device when
// deviceID is set. Deletions and undecodable values are skipped.
func (f *LocationFeed) Watch(ctx context.Context, userID, deviceID string) (<-chan models.LocationSample, error) {
	key := SanitizeKey(userID) + ".*"

	if deviceID != "" {
		var err error

		key, err = LocationKey(userID, deviceID)
		if err != nil {
			return nil, err
		}
	}

	raw, err := f.store.Watch(ctx, key)
	if err != nil {
		return nil, err
	}

	out := make(chan models.LocationSample, 1)

	go func() {
		defer close(out)

		for value := range raw {
			if value == nil {
				continue
			}

			var sample models.LocationSample
			if err := json.Unmarshal(value, &sample); err != nil {
				f.logger.Warn().Err(err).Str("key", key).Msg("skipping undecodable location")
				continue
			}

			select {
			case out <- sample:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}
