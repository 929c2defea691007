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

//go:generate mockgen -destination=mock_kv.go -package=kv github.com/carverauto/guardian/pkg/kv KVStore

// Package kv holds the latest location per device in a JetStream key-value
// bucket and streams changes to watchers.
package kv

import (
	"context"
	"time"
)

// KVStore is a key-value store with change notification.
type KVStore interface {
	// Get returns the value, whether the key was found, and any error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put stores value under key. TTL is applied at the bucket level, so ttl is advisory.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	// Watch streams values for keys matching the (possibly wildcarded) key.
	// Current values are delivered first. A deleted key yields a nil value.
	// The channel is closed when ctx is cancelled or the store is closed.
	Watch(ctx context.Context, key string) (<-chan []byte, error)

	Close() error
}
