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

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carverauto/guardian/pkg/logger"
)

const defaultShutdownTimeout = 10 * time.Second

var errServiceRequired = errors.New("service is required")

// Service is a long-running component with explicit start and stop.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// ServiceOptions configures RunService.
type ServiceOptions struct {
	Service         Service
	Logger          logger.Logger
	ShutdownTimeout time.Duration
	// Signals overrides the default SIGINT/SIGTERM set.
	Signals []os.Signal
}

// RunService starts the service and blocks until a shutdown signal arrives,
// ctx is cancelled, or the service reports a fatal error on errCh. The
// service is then stopped within the shutdown timeout.
func RunService(ctx context.Context, opts *ServiceOptions, errCh <-chan error) error {
	if opts == nil || opts.Service == nil {
		return errServiceRequired
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewTestLogger()
	}

	timeout := opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	sigs := opts.Signals
	if len(sigs) == 0 {
		sigs = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := opts.Service.Start(runCtx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, sigs...)
	defer signal.Stop(sigCh)

	var runErr error

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case <-ctx.Done():
		log.Info().Msg("Context cancelled, shutting down")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("Service error, shutting down")

			runErr = err
		}
	}

	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), timeout)
	defer stopCancel()

	if err := opts.Service.Stop(stopCtx); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")

		return errors.Join(runErr, fmt.Errorf("failed to stop service: %w", err))
	}

	return runErr
}
