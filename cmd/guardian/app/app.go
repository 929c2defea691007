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

// Package app wires the guardian view and its HTTP API into one service.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/carverauto/guardian/pkg/api"
	"github.com/carverauto/guardian/pkg/config"
	"github.com/carverauto/guardian/pkg/guardian"
	"github.com/carverauto/guardian/pkg/kv"
	"github.com/carverauto/guardian/pkg/lifecycle"
	"github.com/carverauto/guardian/pkg/logger"
	"github.com/carverauto/guardian/pkg/models"
	"github.com/carverauto/guardian/pkg/natsutil"
	"github.com/carverauto/guardian/pkg/version"
)

const (
	envConfigKVURL    = "CONFIG_KV_URL"
	envConfigKVBucket = "CONFIG_KV_BUCKET"
	envConfigKVCreds  = "CONFIG_KV_CREDS"

	defaultConfigBucket = "guardian-config"
)

var errConfigKVURL = errors.New(envConfigKVURL + " is required when CONFIG_SOURCE=kv")

// Options contains runtime configuration derived from CLI flags.
type Options struct {
	ConfigPath string
	EnvFile    string
}

// Run loads the config, builds the view and serves it until a shutdown
// signal arrives.
func Run(ctx context.Context, opts Options) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var envFiles []string
	if opts.EnvFile != "" {
		envFiles = append(envFiles, opts.EnvFile)
	}

	if err := config.LoadDotEnv(envFiles...); err != nil {
		return err
	}

	bootLogger, err := lifecycle.CreateComponentLogger("guardian-boot", logger.DefaultConfig())
	if err != nil {
		return err
	}

	cfg, closeKV, err := loadConfig(ctx, opts.ConfigPath, bootLogger)
	if err != nil {
		return err
	}
	defer closeKV()

	if err := lifecycle.InitializeLogger(cfg.Logging); err != nil {
		return err
	}

	mainLogger := lifecycle.ProcessComponentLogger("guardian")

	mainLogger.Info().
		Str("version", version.GetFullVersion()).
		Str("user_id", cfg.UserID).
		Str("device_id", cfg.DeviceID).
		Msg("Starting guardian")

	if redacted, err := config.Redacted(cfg); err == nil {
		mainLogger.Debug().RawJSON("config", redacted).Msg("Loaded configuration")
	}

	view, err := guardian.New(ctx, *cfg, lifecycle.Child(mainLogger, "view"))
	if err != nil {
		return err
	}

	var apiOpts []api.Option

	if backend := view.Backend(); backend != nil {
		apiOpts = append(apiOpts, api.WithCloud(backend))
	}

	if tc := view.Transcoder(); tc != nil {
		apiOpts = append(apiOpts, api.WithTranscoder(tc))
	}

	server := api.NewServer(api.Config{
		ListenAddr:      cfg.ListenAddr,
		CORS:            cfg.CORS,
		DefaultUserID:   cfg.UserID,
		DefaultDeviceID: cfg.DeviceID,
	}, view, lifecycle.Child(mainLogger, "api"), apiOpts...)

	return lifecycle.RunService(ctx, &lifecycle.ServiceOptions{
		Service: &service{view: view, server: server},
		Logger:  mainLogger,
	}, server.Errors())
}

// loadConfig reads the guardian config from CONFIG_SOURCE. The returned
// func releases the config bucket connection, if one was opened.
func loadConfig(ctx context.Context, path string, log logger.Logger) (*guardian.Config, func(), error) {
	loader := config.NewConfig(log)
	closeKV := func() {}

	if config.Source() == "kv" {
		store, closer, err := openConfigBucket(ctx, log)
		if err != nil {
			return nil, closeKV, err
		}

		loader.SetKVStore(store)
		closeKV = closer
	}

	var cfg guardian.Config
	if err := loader.LoadAndValidate(ctx, path, &cfg); err != nil {
		closeKV()
		return nil, func() {}, fmt.Errorf("failed to load config %s: %w", path, err)
	}

	return &cfg, closeKV, nil
}

func openConfigBucket(ctx context.Context, log logger.Logger) (*kv.NatsStore, func(), error) {
	url := os.Getenv(envConfigKVURL)
	if url == "" {
		return nil, nil, errConfigKVURL
	}

	bucket := os.Getenv(envConfigKVBucket)
	if bucket == "" {
		bucket = defaultConfigBucket
	}

	nc, err := natsutil.Connect(&models.NATSConfig{URL: url, CredsFile: os.Getenv(envConfigKVCreds)}, log)
	if err != nil {
		return nil, nil, err
	}

	js, err := natsutil.NewJetStream(nc, "")
	if err != nil {
		nc.Close()
		return nil, nil, err
	}

	store, err := kv.NewNatsStore(ctx, js, kv.Config{Bucket: bucket}, log)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}

	return store, func() {
		_ = store.Close()
		nc.Close()
	}, nil
}

// service starts the view before the API and stops them in reverse.
type service struct {
	view   *guardian.View
	server *api.Server
}

func (s *service) Start(ctx context.Context) error {
	if err := s.view.Start(ctx); err != nil {
		return err
	}

	if err := s.server.Start(ctx); err != nil {
		_ = s.view.Stop(context.Background())
		return err
	}

	return nil
}

func (s *service) Stop(ctx context.Context) error {
	return errors.Join(s.server.Stop(ctx), s.view.Stop(ctx))
}
