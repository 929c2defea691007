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

package location

import (
	"context"
	"errors"
	"fmt"

	"github.com/carverauto/guardian/pkg/models"
	"github.com/carverauto/guardian/pkg/probe"
)

var errNoLastKnown = errors.New("no last known location")

// LastKnownSource answers from the sample persisted by WithStateStore.
func LastKnownSource(store StateStore) probe.Probe[*models.LocationSample] {
	return probe.New[*models.LocationSample](models.SourceLocal, func(context.Context) (*models.LocationSample, error) {
		var sample models.LocationSample
		if err := store.LoadJSON(LastKnownKey, &sample); err != nil {
			return nil, fmt.Errorf("%w: %w", errNoLastKnown, err)
		}

		return &sample, nil
	})
}
