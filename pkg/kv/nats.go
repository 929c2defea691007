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
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/guardian/pkg/logger"
	"github.com/carverauto/guardian/pkg/models"
)

type NatsStore struct {
	kv     jetstream.KeyValue
	logger logger.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewNatsStore creates or binds the configured bucket on js.
func NewNatsStore(ctx context.Context, js jetstream.JetStream, cfg Config, log logger.Logger) (*NatsStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: %w", models.ErrConfiguration, errBucketRequired)
	}

	cfg.applyDefaults()

	config := jetstream.KeyValueConfig{
		Bucket:   cfg.Bucket,
		History:  cfg.BucketHistory,
		MaxBytes: cfg.BucketMaxBytes,
	}

	if ttl := cfg.BucketTTL.Std(); ttl > 0 {
		config.TTL = ttl
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create KV bucket: %w", err)
	}

	return &NatsStore{
		kv:     kv,
		logger: log,
		done:   make(chan struct{}),
	}, nil
}

func (n *NatsStore) Get(ctx context.Context, key string) (value []byte, found bool, err error) {
	var entry jetstream.KeyValueEntry

	entry, err = n.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("%w: failed to get key %s: %w", models.ErrUnavailable, key, err)
	}

	return entry.Value(), true, nil
}

func (n *NatsStore) Put(ctx context.Context, key string, value []byte, _ time.Duration) error {
	_, err := n.kv.Put(ctx, key, value) // No opts, TTL is bucket-level
	if err != nil {
		return fmt.Errorf("failed to put key %s: %w", key, err)
	}

	return nil
}

func (n *NatsStore) Delete(ctx context.Context, key string) error {
	err := n.kv.Delete(ctx, key)
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}

	return nil
}

func (n *NatsStore) Watch(ctx context.Context, key string) (<-chan []byte, error) {
	watcher, err := n.kv.Watch(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to watch key %s: %w", models.ErrUnavailable, key, err)
	}

	ch := make(chan []byte, 1)
	go n.handleWatchUpdates(ctx, key, watcher, ch)

	return ch, nil
}

// handleWatchUpdates forwards watcher entries until ctx ends or the watcher closes.
func (n *NatsStore) handleWatchUpdates(ctx context.Context, key string, watcher jetstream.KeyWatcher, ch chan<- []byte) {
	defer func() {
		if err := watcher.Stop(); err != nil {
			n.logger.Debug().Err(err).Str("key", key).Msg("failed to stop watcher")
		}

		close(ch)
	}()

	for {
		update, ok := n.waitForUpdate(ctx, watcher)
		if !ok {
			return
		}

		// nil marks the end of the initial values.
		if update == nil {
			continue
		}

		var value []byte
		if update.Operation() == jetstream.KeyValuePut {
			value = update.Value()
		}

		if !n.sendUpdate(ctx, ch, value) {
			return
		}
	}
}

func (n *NatsStore) waitForUpdate(ctx context.Context, watcher jetstream.KeyWatcher) (jetstream.KeyValueEntry, bool) {
	select {
	case <-ctx.Done():
		return nil, false
	case <-n.done:
		return nil, false
	case update, ok := <-watcher.Updates():
		return update, ok
	}
}

func (n *NatsStore) sendUpdate(ctx context.Context, ch chan<- []byte, value []byte) bool {
	select {
	case ch <- value:
		return true
	case <-ctx.Done():
		return false
	case <-n.done:
		return false
	}
}

// Close stops every active watch. The NATS connection is owned by the caller.
func (n *NatsStore) Close() error {
	n.closeOnce.Do(func() { close(n.done) })

	return nil
}

var _ KVStore = (*NatsStore)(nil)
