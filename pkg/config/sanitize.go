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

package config

import (
	"encoding/json"

	"github.com/carverauto/guardian/pkg/models"
)

// Redacted renders cfg as JSON with fields tagged sensitive removed.
func Redacted(cfg interface{}) ([]byte, error) {
	if cfg == nil {
		return []byte("{}"), nil
	}

	safe, err := models.RedactSensitive(cfg)
	if err != nil {
		return nil, err
	}

	return json.Marshal(safe)
}
