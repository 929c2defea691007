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

import "fmt"

// DatabaseConfig describes the Postgres cluster backing the cloud tables.
type DatabaseConfig struct {
	Host               string            `json:"host"`
	Port               int               `json:"port,omitempty"`
	Database           string            `json:"database"`
	Username           string            `json:"username,omitempty"`
	Password           string            `json:"password,omitempty" sensitive:"true"`
	ApplicationName    string            `json:"application_name,omitempty"`
	SSLMode            string            `json:"ssl_mode,omitempty"`
	CertDir            string            `json:"cert_dir,omitempty"`
	TLS                *TLSConfig        `json:"tls,omitempty"`
	MaxConnections     int32             `json:"max_connections,omitempty"`
	MinConnections     int32             `json:"min_connections,omitempty"`
	MaxConnLifetime    Duration          `json:"max_conn_lifetime,omitempty"`
	HealthCheckPeriod  Duration          `json:"health_check_period,omitempty"`
	StatementTimeout   Duration          `json:"statement_timeout,omitempty"`
	ExtraRuntimeParams map[string]string `json:"runtime_params,omitempty"`
}

// TLSConfig holds client certificate paths. Relative paths resolve against
// the owning config's CertDir.
type TLSConfig struct {
	CertFile string `json:"cert_file"`
	KeyFile  string `json:"key_file" sensitive:"true"`
	CAFile   string `json:"ca_file"`
}

// Validate ensures the database configuration is usable.
func (c *DatabaseConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: database host is required", ErrConfiguration)
	}

	if c.Database == "" {
		return fmt.Errorf("%w: database name is required", ErrConfiguration)
	}

	if c.Port == 0 {
		c.Port = 5432
	}

	return nil
}

// NATSConfig configures JetStream connectivity for the change feeds and the
// video object store.
type NATSConfig struct {
	URL            string     `json:"url"`
	Domain         string     `json:"domain,omitempty"`
	CredsFile      string     `json:"creds_file,omitempty" sensitive:"true"`
	CertDir        string     `json:"cert_dir,omitempty"`
	TLS            *TLSConfig `json:"tls,omitempty"`
	StreamName     string     `json:"stream_name,omitempty"`
	ObjectBucket   string     `json:"object_bucket,omitempty"`
	LocationBucket string     `json:"location_bucket,omitempty"`
	PublicURLBase  string     `json:"public_url_base,omitempty"`
}

const (
	defaultStreamName     = "events"
	defaultObjectBucket   = "recordings"
	defaultLocationBucket = "locations"
)

// Validate ensures the NATS configuration is valid and fills defaults.
func (c *NATSConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: nats url is required", ErrConfiguration)
	}

	if c.StreamName == "" {
		c.StreamName = defaultStreamName
	}

	if c.ObjectBucket == "" {
		c.ObjectBucket = defaultObjectBucket
	}

	if c.LocationBucket == "" {
		c.LocationBucket = defaultLocationBucket
	}

	return nil
}

// CORSConfig lists the origins allowed to call the HTTP API.
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins,omitempty"`
	AllowCredentials bool     `json:"allow_credentials,omitempty"`
}
