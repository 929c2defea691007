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

package natsutil

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"

	"github.com/carverauto/guardian/pkg/models"
)

func resolveCertPath(certDir, p string) string {
	if p == "" || filepath.IsAbs(p) || certDir == "" {
		return p
	}

	return filepath.Join(certDir, p)
}

// TLSConfig builds a tls.Config for connecting to NATS using mTLS.
func TLSConfig(cfg *models.NATSConfig) (*tls.Config, error) {
	if cfg == nil || cfg.TLS == nil {
		return nil, nil
	}

	certFile := resolveCertPath(cfg.CertDir, cfg.TLS.CertFile)
	keyFile := resolveCertPath(cfg.CertDir, cfg.TLS.KeyFile)
	caFile := resolveCertPath(cfg.CertDir, cfg.TLS.CAFile)

	if certFile == "" || keyFile == "" || caFile == "" {
		return nil, fmt.Errorf("%w: %w", models.ErrConfiguration, errTLSIncomplete)
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}

	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caCert) {
		return nil, ErrCAParsingFailed
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      caPool,
		MinVersion:   tls.VersionTLS13,
	}, nil
}
