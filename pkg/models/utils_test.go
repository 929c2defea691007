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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactSensitive(t *testing.T) {
	cfg := &DatabaseConfig{
		Host:     "db.internal",
		Port:     5432,
		Database: "guardian",
		Username: "guardian",
		Password: "hunter2",
		TLS: &TLSConfig{
			CertFile: "client.pem",
			KeyFile:  "client-key.pem",
			CAFile:   "ca.pem",
		},
		ExtraRuntimeParams: map[string]string{"search_path": "public"},
	}

	out, err := RedactSensitive(cfg)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", out["host"])
	assert.Equal(t, 5432, out["port"])
	assert.NotContains(t, out, "password")

	tlsOut, ok := out["tls"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "client.pem", tlsOut["cert_file"])
	assert.NotContains(t, tlsOut, "key_file")

	params, ok := out["runtime_params"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "public", params["search_path"])
}

func TestRedactSensitiveRejectsScalars(t *testing.T) {
	_, err := RedactSensitive("plain")
	require.ErrorIs(t, err, errNotStruct)

	out, err := RedactSensitive(nil)
	require.NoError(t, err)
	assert.Empty(t, out)

	var nilCfg *NATSConfig

	out, err = RedactSensitive(nilCfg)
	require.NoError(t, err)
	assert.Empty(t, out)
}
