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

// Package config loads and validates daemon configuration.
//
// Configuration is resolved in three layers: built-in defaults, an
// optional YAML file, and BATON_* environment variables. Command-line
// flags are applied last by the daemon entrypoint.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	batonerrors "github.com/tombee/baton/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the complete daemon configuration.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	Store     StoreConfig     `yaml:"store"`
	Provider  ProviderConfig  `yaml:"provider"`
	Approvals ApprovalsConfig `yaml:"approvals"`
	Workflows WorkflowsConfig `yaml:"workflows"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ListenConfig configures the HTTP listener.
type ListenConfig struct {
	// Addr is the TCP address the API server binds to.
	// Environment: BATON_LISTEN_ADDR
	// Default: :8080
	Addr string `yaml:"addr"`
}

// StoreConfig configures run and workflow persistence.
type StoreConfig struct {
	// Driver selects the storage backend: "sqlite" or "memory".
	// Environment: BATON_STORE_DRIVER
	// Default: sqlite
	Driver string `yaml:"driver"`

	// Path is the SQLite database file. Ignored for the memory driver.
	// Environment: BATON_STORE_PATH
	// Default: ~/.baton/baton.db
	Path string `yaml:"path"`
}

// ProviderConfig configures the LLM provider used by ai_generate steps.
type ProviderConfig struct {
	// Type selects the provider implementation: "mock" or "openai".
	// Environment: BATON_PROVIDER_TYPE
	// Default: mock
	Type string `yaml:"type"`

	// Model is the model identifier passed to the provider.
	// Environment: BATON_PROVIDER_MODEL
	Model string `yaml:"model,omitempty"`

	// BaseURL overrides the provider API endpoint. Useful for
	// OpenAI-compatible gateways and test servers.
	// Environment: BATON_PROVIDER_BASE_URL
	BaseURL string `yaml:"base_url,omitempty"`

	// APIKeyEnv names the environment variable holding the API key.
	// The key itself never appears in config files.
	// Default: OPENAI_API_KEY
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	// TimeoutSeconds bounds a single generation request.
	// Environment: BATON_PROVIDER_TIMEOUT_SECONDS
	// Default: 30
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty"`

	// MockMode selects the mock provider's behavior: "success",
	// "schema_violation", "timeout", or "transient_error".
	// Environment: BATON_PROVIDER_MOCK_MODE
	// Default: success
	MockMode string `yaml:"mock_mode,omitempty"`

	// MockSeed seeds the mock provider's deterministic output.
	// Environment: BATON_PROVIDER_MOCK_SEED
	MockSeed int64 `yaml:"mock_seed,omitempty"`
}

// ApprovalsConfig configures approval step notifications.
type ApprovalsConfig struct {
	// BaseURL is the externally reachable base URL embedded in
	// approval links, e.g. https://baton.example.com.
	// Environment: BATON_APPROVALS_BASE_URL
	// Default: http://localhost:8080
	BaseURL string `yaml:"base_url"`

	// WebhookURL is POSTed each approval request. Empty routes approval
	// notifications to the log instead.
	// Environment: BATON_APPROVALS_WEBHOOK_URL
	WebhookURL string `yaml:"webhook_url,omitempty"`
}

// WorkflowsConfig configures workflow definition loading.
type WorkflowsConfig struct {
	// Dir is scanned recursively for *.yaml/*.yml workflow files at
	// startup. Empty disables loading.
	// Environment: BATON_WORKFLOWS_DIR
	Dir string `yaml:"dir,omitempty"`

	// Watch re-loads workflow files when they change on disk.
	// Environment: BATON_WORKFLOWS_WATCH
	Watch bool `yaml:"watch,omitempty"`
}

// TelemetryConfig configures tracing and metrics export.
type TelemetryConfig struct {
	// Enabled turns on the OpenTelemetry providers. Metrics are always
	// gathered for /metrics; this gates span export.
	// Environment: BATON_TELEMETRY_ENABLED
	Enabled bool `yaml:"enabled"`

	// ServiceName identifies this process in exported telemetry.
	// Default: batond
	ServiceName string `yaml:"service_name,omitempty"`

	// OTLPEndpoint is the OTLP/HTTP trace collector, host:port.
	// Environment: BATON_TELEMETRY_OTLP_ENDPOINT
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`

	// StdoutTrace writes spans to stdout. Development only.
	// Environment: BATON_TELEMETRY_STDOUT_TRACE
	StdoutTrace bool `yaml:"stdout_trace,omitempty"`
}

// Store driver names.
const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Provider types.
const (
	ProviderMock   = "mock"
	ProviderOpenAI = "openai"
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{
			Addr: ":8080",
		},
		Store: StoreConfig{
			Driver: StoreSQLite,
			Path:   "~/.baton/baton.db",
		},
		Provider: ProviderConfig{
			Type:           ProviderMock,
			APIKeyEnv:      "OPENAI_API_KEY",
			TimeoutSeconds: 30,
			MockMode:       "success",
		},
		Approvals: ApprovalsConfig{
			BaseURL: "http://localhost:8080",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "batond",
		},
	}
}

// Load loads configuration from defaults, an optional YAML file, and
// environment variables, in that order of precedence (later wins).
// If path is empty, only defaults and environment variables are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, &batonerrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", path),
				Cause:  err,
			}
		}
	}

	// Fill zero values back in so minimal files work.
	cfg.applyDefaults()

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func (c *Config) loadFromFile(path string) error {
	// Expand home directory if present
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// applyDefaults fills zero values with defaults so a minimal YAML file
// (say, just a provider section) works without spelling out everything.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Listen.Addr == "" {
		c.Listen.Addr = defaults.Listen.Addr
	}
	if c.Store.Driver == "" {
		c.Store.Driver = defaults.Store.Driver
	}
	if c.Store.Path == "" {
		c.Store.Path = defaults.Store.Path
	}
	if c.Provider.Type == "" {
		c.Provider.Type = defaults.Provider.Type
	}
	if c.Provider.APIKeyEnv == "" {
		c.Provider.APIKeyEnv = defaults.Provider.APIKeyEnv
	}
	if c.Provider.TimeoutSeconds == 0 {
		c.Provider.TimeoutSeconds = defaults.Provider.TimeoutSeconds
	}
	if c.Provider.MockMode == "" {
		c.Provider.MockMode = defaults.Provider.MockMode
	}
	if c.Approvals.BaseURL == "" {
		c.Approvals.BaseURL = defaults.Approvals.BaseURL
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = defaults.Telemetry.ServiceName
	}
}

// loadFromEnv overrides configuration from environment variables.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("BATON_LISTEN_ADDR"); val != "" {
		c.Listen.Addr = val
	}

	if val := os.Getenv("BATON_STORE_DRIVER"); val != "" {
		c.Store.Driver = strings.ToLower(val)
	}
	if val := os.Getenv("BATON_STORE_PATH"); val != "" {
		c.Store.Path = val
	}

	if val := os.Getenv("BATON_PROVIDER_TYPE"); val != "" {
		c.Provider.Type = strings.ToLower(val)
	}
	if val := os.Getenv("BATON_PROVIDER_MODEL"); val != "" {
		c.Provider.Model = val
	}
	if val := os.Getenv("BATON_PROVIDER_BASE_URL"); val != "" {
		c.Provider.BaseURL = val
	}
	if val := os.Getenv("BATON_PROVIDER_API_KEY_ENV"); val != "" {
		c.Provider.APIKeyEnv = val
	}
	if val := os.Getenv("BATON_PROVIDER_TIMEOUT_SECONDS"); val != "" {
		if secs, err := strconv.Atoi(val); err == nil {
			c.Provider.TimeoutSeconds = secs
		}
	}
	if val := os.Getenv("BATON_PROVIDER_MOCK_MODE"); val != "" {
		c.Provider.MockMode = strings.ToLower(val)
	}
	if val := os.Getenv("BATON_PROVIDER_MOCK_SEED"); val != "" {
		if seed, err := strconv.ParseInt(val, 10, 64); err == nil {
			c.Provider.MockSeed = seed
		}
	}

	if val := os.Getenv("BATON_APPROVALS_BASE_URL"); val != "" {
		c.Approvals.BaseURL = val
	}
	if val := os.Getenv("BATON_APPROVALS_WEBHOOK_URL"); val != "" {
		c.Approvals.WebhookURL = val
	}

	if val := os.Getenv("BATON_WORKFLOWS_DIR"); val != "" {
		c.Workflows.Dir = val
	}
	if val := os.Getenv("BATON_WORKFLOWS_WATCH"); val != "" {
		c.Workflows.Watch = isTruthy(val)
	}

	if val := os.Getenv("BATON_TELEMETRY_ENABLED"); val != "" {
		c.Telemetry.Enabled = isTruthy(val)
	}
	if val := os.Getenv("BATON_TELEMETRY_OTLP_ENDPOINT"); val != "" {
		c.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("BATON_TELEMETRY_STDOUT_TRACE"); val != "" {
		c.Telemetry.StdoutTrace = isTruthy(val)
	}
}

func isTruthy(val string) bool {
	return val == "1" || strings.EqualFold(val, "true")
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Listen.Addr == "" {
		return &batonerrors.ConfigError{
			Key:    "listen.addr",
			Reason: "listen address must not be empty",
		}
	}

	switch c.Store.Driver {
	case StoreSQLite:
		if c.Store.Path == "" {
			return &batonerrors.ConfigError{
				Key:    "store.path",
				Reason: "sqlite driver requires a database path",
			}
		}
	case StoreMemory:
	default:
		return &batonerrors.ConfigError{
			Key:    "store.driver",
			Reason: fmt.Sprintf("unknown store driver %q (expected %q or %q)", c.Store.Driver, StoreSQLite, StoreMemory),
		}
	}

	switch c.Provider.Type {
	case ProviderMock:
		switch c.Provider.MockMode {
		case "success", "schema_violation", "timeout", "transient_error":
		default:
			return &batonerrors.ConfigError{
				Key:    "provider.mock_mode",
				Reason: fmt.Sprintf("unknown mock mode %q", c.Provider.MockMode),
			}
		}
	case ProviderOpenAI:
		if c.Provider.APIKeyEnv == "" {
			return &batonerrors.ConfigError{
				Key:    "provider.api_key_env",
				Reason: "openai provider requires api_key_env",
			}
		}
	default:
		return &batonerrors.ConfigError{
			Key:    "provider.type",
			Reason: fmt.Sprintf("unknown provider type %q (expected %q or %q)", c.Provider.Type, ProviderMock, ProviderOpenAI),
		}
	}

	if c.Provider.TimeoutSeconds <= 0 {
		return &batonerrors.ConfigError{
			Key:    "provider.timeout_seconds",
			Reason: "timeout must be positive",
		}
	}

	return nil
}

// StorePath returns the store path with ~ expanded. The parent
// directory is created if missing so a fresh install works without a
// manual mkdir.
func (c *Config) StorePath() (string, error) {
	path := c.Store.Path
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	return path, nil
}
