// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	batonerrors "github.com/tombee/baton/pkg/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen.Addr)
	assert.Equal(t, StoreSQLite, cfg.Store.Driver)
	assert.Equal(t, "~/.baton/baton.db", cfg.Store.Path)
	assert.Equal(t, ProviderMock, cfg.Provider.Type)
	assert.Equal(t, "success", cfg.Provider.MockMode)
	assert.Equal(t, 30, cfg.Provider.TimeoutSeconds)
	assert.Equal(t, "http://localhost:8080", cfg.Approvals.BaseURL)
	assert.Equal(t, "batond", cfg.Telemetry.ServiceName)
	assert.False(t, cfg.Workflows.Watch)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "baton.yaml")
	content := `
listen:
  addr: ":9090"
store:
  driver: memory
provider:
  type: openai
  model: gpt-4o-mini
  api_key_env: MY_KEY
workflows:
  dir: /srv/workflows
  watch: true
telemetry:
  enabled: true
  otlp_endpoint: localhost:4318
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen.Addr)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, ProviderOpenAI, cfg.Provider.Type)
	assert.Equal(t, "gpt-4o-mini", cfg.Provider.Model)
	assert.Equal(t, "MY_KEY", cfg.Provider.APIKeyEnv)
	assert.Equal(t, "/srv/workflows", cfg.Workflows.Dir)
	assert.True(t, cfg.Workflows.Watch)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "localhost:4318", cfg.Telemetry.OTLPEndpoint)

	// Unspecified fields keep their defaults.
	assert.Equal(t, 30, cfg.Provider.TimeoutSeconds)
	assert.Equal(t, "http://localhost:8080", cfg.Approvals.BaseURL)
}

func TestLoadMinimalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "baton.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: memory\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, ":8080", cfg.Listen.Addr)
	assert.Equal(t, ProviderMock, cfg.Provider.Type)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/baton.yaml")
	require.Error(t, err)

	var cfgErr *batonerrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "config_file", cfgErr.Key)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "baton.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [not a map"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, batonerrors.IsConfig(err))
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("BATON_LISTEN_ADDR", ":7070")
	t.Setenv("BATON_STORE_DRIVER", "memory")
	t.Setenv("BATON_PROVIDER_TYPE", "openai")
	t.Setenv("BATON_PROVIDER_MODEL", "gpt-4o")
	t.Setenv("BATON_PROVIDER_TIMEOUT_SECONDS", "60")
	t.Setenv("BATON_WORKFLOWS_DIR", "/tmp/wf")
	t.Setenv("BATON_WORKFLOWS_WATCH", "true")
	t.Setenv("BATON_TELEMETRY_ENABLED", "1")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Listen.Addr)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, ProviderOpenAI, cfg.Provider.Type)
	assert.Equal(t, "gpt-4o", cfg.Provider.Model)
	assert.Equal(t, 60, cfg.Provider.TimeoutSeconds)
	assert.Equal(t, "/tmp/wf", cfg.Workflows.Dir)
	assert.True(t, cfg.Workflows.Watch)
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "baton.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen:\n  addr: \":9090\"\n"), 0o644))

	t.Setenv("BATON_LISTEN_ADDR", ":7070")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Listen.Addr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantKey string
	}{
		{
			name:   "valid defaults",
			mutate: func(c *Config) {},
		},
		{
			name:    "empty listen addr",
			mutate:  func(c *Config) { c.Listen.Addr = "" },
			wantKey: "listen.addr",
		},
		{
			name:    "unknown store driver",
			mutate:  func(c *Config) { c.Store.Driver = "postgres" },
			wantKey: "store.driver",
		},
		{
			name: "sqlite without path",
			mutate: func(c *Config) {
				c.Store.Driver = StoreSQLite
				c.Store.Path = ""
			},
			wantKey: "store.path",
		},
		{
			name:    "unknown provider type",
			mutate:  func(c *Config) { c.Provider.Type = "anthropic" },
			wantKey: "provider.type",
		},
		{
			name:    "unknown mock mode",
			mutate:  func(c *Config) { c.Provider.MockMode = "explode" },
			wantKey: "provider.mock_mode",
		},
		{
			name: "openai without key env",
			mutate: func(c *Config) {
				c.Provider.Type = ProviderOpenAI
				c.Provider.APIKeyEnv = ""
			},
			wantKey: "provider.api_key_env",
		},
		{
			name:    "non-positive timeout",
			mutate:  func(c *Config) { c.Provider.TimeoutSeconds = 0 },
			wantKey: "provider.timeout_seconds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantKey == "" {
				assert.NoError(t, err)
				return
			}
			var cfgErr *batonerrors.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.wantKey, cfgErr.Key)
		})
	}
}

func TestStorePathExpansion(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Store.Path = filepath.Join(dir, "nested", "baton.db")

	path, err := cfg.StorePath()
	require.NoError(t, err)
	assert.Equal(t, cfg.Store.Path, path)

	// Parent directory is created.
	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
