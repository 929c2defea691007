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

package config

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/guardian/pkg/logger"
	"github.com/carverauto/guardian/pkg/models"
)

type testSection struct {
	URL      string          `json:"url"`
	Interval models.Duration `json:"interval,omitempty"`
	Secret   string          `json:"secret,omitempty" sensitive:"true"`
}

type testConfig struct {
	Name     string                 `json:"name"`
	Port     int                    `json:"port,omitempty"`
	Debug    bool                   `json:"debug,omitempty"`
	Ratio    float64                `json:"ratio,omitempty"`
	Origins  []string               `json:"origins,omitempty"`
	Labels   map[string]string      `json:"labels,omitempty"`
	Timeout  time.Duration          `json:"timeout,omitempty"`
	Section  testSection            `json:"section"`
	Optional *testSection           `json:"optional,omitempty"`
	Database *models.DatabaseConfig `json:"database,omitempty"`

	validated bool
}

func (c *testConfig) Validate() error {
	if c.Name == "" {
		return errors.New("name is required")
	}

	c.validated = true

	return nil
}

type fakeKV struct {
	values map[string][]byte
	err    error
}

func (f *fakeKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}

	v, ok := f.values[key]

	return v, ok, nil
}

func writeJSON(t *testing.T, v any) string {
	t.Helper()

	raw, err := json.Marshal(v)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "guardian.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	return path
}

func TestLoadAndValidateFromFile(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "")

	path := writeJSON(t, map[string]any{
		"name":    "guardian",
		"section": map[string]any{"url": "nats://localhost:4222", "interval": "7s"},
	})

	var cfg testConfig
	require.NoError(t, NewConfig(nil).LoadAndValidate(t.Context(), path, &cfg))

	assert.True(t, cfg.validated)
	assert.Equal(t, 7*time.Second, cfg.Section.Interval.Std())

	var empty testConfig
	err := NewConfig(nil).LoadAndValidate(t.Context(), writeJSON(t, map[string]any{}), &empty)
	require.Error(t, err)
}

func TestEnvLoader(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("GUARDIAN_NAME", "from-env")
	t.Setenv("GUARDIAN_PORT", "8090")
	t.Setenv("GUARDIAN_DEBUG", "true")
	t.Setenv("GUARDIAN_RATIO", "0.5")
	t.Setenv("GUARDIAN_ORIGINS", "http://a, http://b")
	t.Setenv("GUARDIAN_LABELS", `{"site":"home"}`)
	t.Setenv("GUARDIAN_TIMEOUT", "3s")
	t.Setenv("GUARDIAN_SECTION_URL", "nats://nats:4222")
	t.Setenv("GUARDIAN_SECTION_INTERVAL", "250ms")
	t.Setenv("GUARDIAN_DATABASE_HOST", "pg")
	t.Setenv("GUARDIAN_DATABASE_DATABASE", "guardian")

	var cfg testConfig
	require.NoError(t, NewConfig(logger.NewTestLogger()).LoadAndValidate(t.Context(), "", &cfg))

	assert.Equal(t, "from-env", cfg.Name)
	assert.Equal(t, 8090, cfg.Port)
	assert.True(t, cfg.Debug)
	assert.InDelta(t, 0.5, cfg.Ratio, 0)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.Origins)
	assert.Equal(t, map[string]string{"site": "home"}, cfg.Labels)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, "nats://nats:4222", cfg.Section.URL)
	assert.Equal(t, 250*time.Millisecond, cfg.Section.Interval.Std())
	assert.Nil(t, cfg.Optional, "unset optional sections stay nil")
	require.NotNil(t, cfg.Database)
	assert.Equal(t, "pg", cfg.Database.Host)
	assert.Nil(t, cfg.Database.TLS)
}

func TestEnvLoaderConfigJSONWins(t *testing.T) {
	t.Setenv("GUARDIAN_CONFIG_JSON", `{"name":"json","port":1}`)
	t.Setenv("GUARDIAN_NAME", "ignored")

	var cfg testConfig
	require.NoError(t, NewEnvConfigLoader(nil, DefaultEnvPrefix).Load(t.Context(), "", &cfg))
	assert.Equal(t, "json", cfg.Name)
	assert.Equal(t, 1, cfg.Port)
}

func TestEnvLoaderRejectsBadValues(t *testing.T) {
	t.Setenv("APP_PORT", "eighty")

	var cfg testConfig
	err := NewEnvConfigLoader(nil, "APP_").Load(t.Context(), "", &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APP_PORT")

	err = NewEnvConfigLoader(nil, "APP_").Load(t.Context(), "", cfg)
	require.ErrorIs(t, err, ErrDstMustBeNonNilPointer)
}

func TestKVSourceFallsBackToFile(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "kv")

	path := writeJSON(t, map[string]any{"name": "file"})

	c := NewConfig(nil)

	var cfg testConfig
	require.ErrorIs(t, c.LoadAndValidate(t.Context(), path, &cfg), errKVStoreNotSet)

	c.SetKVStore(&fakeKV{values: map[string][]byte{
		KVKey(path): []byte(`{"name":"kv"}`),
	}})
	require.NoError(t, c.LoadAndValidate(t.Context(), path, &cfg))
	assert.Equal(t, "kv", cfg.Name)

	c.SetKVStore(&fakeKV{err: errors.New("nats down")})

	var fallback testConfig
	require.NoError(t, c.LoadAndValidate(t.Context(), path, &fallback))
	assert.Equal(t, "file", fallback.Name)
}

func TestInvalidSource(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "consul")

	var cfg testConfig
	require.ErrorIs(t, NewConfig(nil).LoadAndValidate(t.Context(), "", &cfg), errInvalidConfigSource)
}

func TestRedacted(t *testing.T) {
	raw, err := Redacted(&testSection{URL: "nats://x", Secret: "hunter2"})
	require.NoError(t, err)
	assert.Contains(t, string(raw), "nats://x")
	assert.NotContains(t, string(raw), "hunter2")
}

func TestLoadDotEnv(t *testing.T) {
	const key = "GUARDIAN_DOTENV_PROBE"

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(key+"=loaded\n"), 0o600))

	t.Cleanup(func() { _ = os.Unsetenv(key) })

	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"), path))
	assert.Equal(t, "loaded", os.Getenv(key))
}

func TestFileLoaderExpandsEnvRefs(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "")
	t.Setenv("GUARDIAN_TEST_SECRET", `p"w`)
	t.Setenv("GUARDIAN_TEST_HOST", "")

	path := filepath.Join(t.TempDir(), "guardian.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"name": "guardian",
		"section": {"url": "nats://${GUARDIAN_TEST_HOST}:4222", "secret": "${GUARDIAN_TEST_SECRET}"}
	}`), 0o600))

	var cfg testConfig
	require.NoError(t, NewConfig(nil).LoadAndValidate(t.Context(), path, &cfg))

	assert.Equal(t, "nats://:4222", cfg.Section.URL)
	assert.Equal(t, `p"w`, cfg.Section.Secret)
}
