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

package models

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Duration is a time.Duration that unmarshals from either a Go duration
// string ("5s") or a number of nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		dur, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: %w", errInvalidDuration, err)
		}

		*d = Duration(dur)

		return nil
	default:
		return errInvalidDuration
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// OrDefault returns def when d is zero or negative.
func (d Duration) OrDefault(def time.Duration) Duration {
	if d <= 0 {
		return Duration(def)
	}

	return d
}

// epochMillisThreshold separates second-based epochs from millisecond-based
// ones. The companion reports file mtimes in seconds while the cloud stores
// Date.now() style milliseconds.
const epochMillisThreshold = 1e12

// ParseEpoch converts a numeric epoch into a time. Zero, negative and
// non-finite values map to the zero time, which means "unknown".
func ParseEpoch(v float64) time.Time {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return time.Time{}
	}

	if v >= epochMillisThreshold {
		return time.UnixMilli(int64(v)).UTC()
	}

	sec, frac := math.Modf(v)

	return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC()
}
