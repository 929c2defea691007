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

// Package natsutil carries the cloud change feed and recording object store
// over NATS JetStream.
package natsutil

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/guardian/pkg/logger"
	"github.com/carverauto/guardian/pkg/models"
)

// Connect dials NATS with the configured credentials and TLS material.
func Connect(cfg *models.NATSConfig, log logger.Logger, extraOpts ...nats.Option) (*nats.Conn, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("%w: nats url is required", models.ErrConfiguration)
	}

	opts := []nats.Option{nats.Name("guardian")}

	tlsConf, err := TLSConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build NATS TLS config: %w", err)
	}

	if tlsConf != nil {
		opts = append(opts, nats.Secure(tlsConf))
	}

	if cfg.CredsFile != "" {
		opts = append(opts, nats.UserCredentials(resolveCertPath(cfg.CertDir, cfg.CredsFile)))
	}

	opts = append(opts,
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)

	opts = append(opts, extraOpts...)

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to NATS: %w", models.ErrUnavailable, err)
	}

	log.Info().Str("url", nc.ConnectedUrl()).Msg("connected to NATS")

	return nc, nil
}

// NewJetStream returns a JetStream context, scoped to domain when set.
func NewJetStream(nc *nats.Conn, domain string) (jetstream.JetStream, error) {
	if domain != "" {
		js, err := jetstream.NewWithDomain(nc, domain)
		if err != nil {
			return nil, fmt.Errorf("failed to create JetStream context with domain %s: %w", domain, err)
		}

		return js, nil
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return js, nil
}
