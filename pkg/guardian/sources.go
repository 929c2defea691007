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

package guardian

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/carverauto/guardian/pkg/blobstore"
	"github.com/carverauto/guardian/pkg/cloud"
	"github.com/carverauto/guardian/pkg/companion"
	"github.com/carverauto/guardian/pkg/models"
	"github.com/carverauto/guardian/pkg/probe"
)

// LastStatusKey holds the last resolved device status in the local store.
const LastStatusKey = "last_status"

func companionStatus(c *companion.Client) probe.Probe[*models.DeviceStatus] {
	return probe.New[*models.DeviceStatus](models.SourceCompanion, c.Status)
}

// cloudStatus answers from the device row the health monitor maintains.
func cloudStatus(b cloud.Backend, userID, deviceID string) probe.Probe[*models.DeviceStatus] {
	return probe.New[*models.DeviceStatus](models.SourceCloud, func(ctx context.Context) (*models.DeviceStatus, error) {
		d, err := b.GetDevice(ctx, userID, deviceID)
		if err != nil {
			return nil, err
		}

		if d == nil {
			return nil, fmt.Errorf("%w: %w", models.ErrUnavailable, errNoDevice)
		}

		return &models.DeviceStatus{
			DeviceID:   d.DeviceID,
			Online:     d.IsOnline,
			LastSeen:   d.LastSeen,
			ObservedAt: time.Now().UTC(),
			Source:     models.SourceCloud,
		}, nil
	})
}

// localStatus replays the last status resolved remotely. Reaching it means
// neither remote source answered, so the device is reported offline.
func localStatus(store *blobstore.FileStore) probe.Probe[*models.DeviceStatus] {
	return probe.New[*models.DeviceStatus](models.SourceLocal, func(context.Context) (*models.DeviceStatus, error) {
		var st models.DeviceStatus
		if err := store.LoadJSON(LastStatusKey, &st); err != nil {
			if errors.Is(err, blobstore.ErrNotFound) {
				return nil, fmt.Errorf("%w: no last known status", models.ErrUnavailable)
			}

			return nil, err
		}

		st.Online = false
		st.Source = models.SourceLocal

		return &st, nil
	})
}

func companionLocation(c *companion.Client) probe.Probe[*models.LocationSample] {
	return probe.New[*models.LocationSample](models.SourceCompanion, c.Location)
}

func cloudLocation(b cloud.Backend, userID, deviceID string) probe.Probe[*models.LocationSample] {
	return probe.New[*models.LocationSample](models.SourceCloud, func(ctx context.Context) (*models.LocationSample, error) {
		return b.LatestLocation(ctx, userID, deviceID)
	})
}

type locator interface {
	Locate(ctx context.Context) (*models.LocationSample, error)
}

func estimatedLocation(l locator) probe.Probe[*models.LocationSample] {
	return probe.New[*models.LocationSample](models.SourceEstimate, l.Locate)
}
