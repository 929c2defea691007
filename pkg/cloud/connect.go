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

package cloud

import (
	"context"
	"fmt"

	"github.com/carverauto/guardian/pkg/db"
	"github.com/carverauto/guardian/pkg/kv"
	"github.com/carverauto/guardian/pkg/logger"
	"github.com/carverauto/guardian/pkg/models"
	"github.com/carverauto/guardian/pkg/natsutil"
)

// DefaultPublicPath serves stored recordings when no public_url_base is set.
const DefaultPublicPath = "/api/cloud/videos"

// Config selects the cloud components. NATS is optional; without it the
// change feeds and uploads are unavailable.
type Config struct {
	Database *models.DatabaseConfig `json:"database"`
	NATS     *models.NATSConfig     `json:"nats,omitempty"`
}

// Validate checks both sections and fills defaults.
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("%w: %w", models.ErrConfiguration, db.ErrDatabaseNotConfigured)
	}

	if err := c.Database.Validate(); err != nil {
		return err
	}

	if c.NATS != nil {
		if err := c.NATS.Validate(); err != nil {
			return err
		}

		if c.NATS.PublicURLBase == "" {
			c.NATS.PublicURLBase = DefaultPublicPath
		}
	}

	return nil
}

// Connect dials every configured component.
func Connect(ctx context.Context, cfg *Config, log logger.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := db.New(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}

	if cfg.NATS == nil {
		log.Info().Msg("NATS not configured, cloud change feeds disabled")
		return NewService(store, log), nil
	}

	opts, err := natsOptions(ctx, cfg.NATS, log)
	if err != nil {
		store.Close()
		return nil, err
	}

	return NewService(store, log, opts...), nil
}

func natsOptions(ctx context.Context, cfg *models.NATSConfig, log logger.Logger) ([]Option, error) {
	nc, err := natsutil.Connect(cfg, log)
	if err != nil {
		return nil, err
	}

	fail := func(err error) ([]Option, error) {
		nc.Close()
		return nil, err
	}

	js, err := natsutil.NewJetStream(nc, cfg.Domain)
	if err != nil {
		return fail(err)
	}

	publisher, err := natsutil.CreateEventPublisher(ctx, js, cfg.StreamName, log)
	if err != nil {
		return fail(err)
	}

	objects, err := natsutil.NewObjectStore(ctx, js, cfg.ObjectBucket, cfg.PublicURLBase)
	if err != nil {
		return fail(err)
	}

	bucket, err := kv.NewNatsStore(ctx, js, kv.Config{Bucket: cfg.LocationBucket}, log)
	if err != nil {
		return fail(err)
	}

	subscribe := func(ctx context.Context) (<-chan models.VideoChangeEvent, error) {
		return natsutil.SubscribeVideoChanges(ctx, js, cfg.StreamName, log)
	}

	return []Option{
		WithEvents(publisher),
		WithObjects(objects),
		WithLocationFeed(kv.NewLocationFeed(bucket, log)),
		WithSubscriber(subscribe),
		WithCloser(nc.Close),
		WithCloser(func() { _ = bucket.Close() }),
	}, nil
}
