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
	"github.com/carverauto/guardian/pkg/models"
)

// Config describes the bucket backing a NatsStore.
type Config struct {
	Bucket         string          `json:"bucket"`
	BucketMaxBytes int64           `json:"bucket_max_bytes,omitempty"` // Hard cap for bucket size (bytes)
	BucketTTL      models.Duration `json:"bucket_ttl,omitempty"`       // TTL for entries (0 = no expiry)
	BucketHistory  uint8           `json:"bucket_history,omitempty"`   // History depth per key
}

const defaultBucketHistory = 1

func (c *Config) applyDefaults() {
	if c.BucketHistory == 0 {
		c.BucketHistory = defaultBucketHistory
	}
}
