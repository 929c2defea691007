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

package db

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carverauto/guardian/pkg/logger"
	"github.com/carverauto/guardian/pkg/models"
)

const (
	defaultPort    = 5432
	sslModeDisable = "disable"
	sslModeVerify  = "verify-full"
)

// NewPool dials the configured Postgres cluster.
func NewPool(ctx context.Context, cfg *models.DatabaseConfig, log logger.Logger) (*pgxpool.Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: %w", models.ErrConfiguration, ErrDatabaseNotConfigured)
	}

	connURL, err := buildConnURL(cfg)
	if err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(connURL.String())
	if err != nil {
		return nil, fmt.Errorf("db: failed to parse connection string: %w", err)
	}

	applyPoolSettings(poolConfig, cfg)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("db: failed to initialize pool: %w", err)
	}

	if log != nil {
		log.Info().
			Str("host", cfg.Host).
			Str("database", cfg.Database).
			Int32("max_conns", poolConfig.MaxConns).
			Msg("connected to Postgres")
	}

	return pool, nil
}

func applyPoolSettings(poolConfig *pgxpool.Config, cfg *models.DatabaseConfig) {
	if cfg.MaxConnections > 0 {
		poolConfig.MaxConns = cfg.MaxConnections
	}

	if cfg.MinConnections > 0 {
		poolConfig.MinConns = cfg.MinConnections
	}

	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = time.Duration(cfg.MaxConnLifetime)
	}

	if cfg.HealthCheckPeriod > 0 {
		poolConfig.HealthCheckPeriod = time.Duration(cfg.HealthCheckPeriod)
	}

	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = make(map[string]string)
	}

	if cfg.StatementTimeout > 0 {
		ms := time.Duration(cfg.StatementTimeout) / time.Millisecond
		poolConfig.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(int64(ms), 10)
	}
}

// buildConnURL renders the libpq style URL. TLS material is passed through
// sslcert/sslkey/sslrootcert so pgx loads it.
func buildConnURL(cfg *models.DatabaseConfig) (*url.URL, error) {
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		Path:   "/" + cfg.Database,
	}

	if cfg.Username != "" {
		if cfg.Password != "" {
			u.User = url.UserPassword(cfg.Username, cfg.Password)
		} else {
			u.User = url.User(cfg.Username)
		}
	}

	q := u.Query()

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = sslModeDisable
		if cfg.TLS != nil {
			sslMode = sslModeVerify
		}
	}

	if cfg.TLS != nil {
		if sslMode == sslModeDisable {
			return nil, ErrTLSDisabled
		}

		resolve := func(p string) string {
			if p == "" || filepath.IsAbs(p) || cfg.CertDir == "" {
				return p
			}

			return filepath.Join(cfg.CertDir, p)
		}

		q.Set("sslcert", resolve(cfg.TLS.CertFile))
		q.Set("sslkey", resolve(cfg.TLS.KeyFile))
		q.Set("sslrootcert", resolve(cfg.TLS.CAFile))
	}

	q.Set("sslmode", sslMode)

	if cfg.ApplicationName != "" {
		q.Set("application_name", cfg.ApplicationName)
	}

	for k, v := range cfg.ExtraRuntimeParams {
		if k == "" {
			continue
		}

		q.Set(k, v)
	}

	u.RawQuery = q.Encode()

	return u, nil
}
