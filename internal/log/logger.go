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

// Package log builds the process-wide slog logger and declares the field
// keys every component logs under, so a run can be followed across the
// engine, the loader, and the API by grepping one set of names.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelTrace sits below slog.LevelDebug. Trace output includes payloads
// that debug deliberately omits: provider request and response bodies,
// expression namespaces.
const LevelTrace = slog.Level(-8)

// Field keys shared across components. Log call sites use these constants
// rather than string literals so correlation queries never miss a record
// to a typo.
const (
	// RunIDKey carries the run identifier.
	RunIDKey = "run_id"
	// StepIDKey carries the step identifier within a run.
	StepIDKey = "step_id"
	// WorkflowIDKey carries the workflow identifier.
	WorkflowIDKey = "workflow_id"
	// ProviderKey carries the AI provider name.
	ProviderKey = "provider"
	// DurationKey carries elapsed milliseconds.
	DurationKey = "duration_ms"
	// ComponentKey names the subsystem that emitted the record.
	ComponentKey = "component"
)

// Format selects the handler encoding.
type Format string

const (
	// FormatJSON emits one JSON object per record.
	FormatJSON Format = "json"
	// FormatText emits key=value text for reading in a terminal.
	FormatText Format = "text"
)

// Config controls logger construction.
type Config struct {
	// Level is the minimum level emitted: trace, debug, info, warn or
	// error. Defaults to info.
	Level string

	// Format selects json or text encoding. Defaults to json.
	Format Format

	// Output receives the records. Defaults to os.Stderr.
	Output io.Writer

	// AddSource appends the emitting file and line to each record.
	AddSource bool
}

// DefaultConfig returns the production defaults: info-level JSON on stderr.
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: FormatJSON,
		Output: os.Stderr,
	}
}

// FromEnv builds a Config from the environment:
//
//   - BATON_DEBUG: truthy enables debug level plus source locations and
//     overrides the level variables below
//   - BATON_LOG_LEVEL, LOG_LEVEL: trace, debug, info, warn, error;
//     the prefixed form wins
//   - BATON_LOG_FORMAT, LOG_FORMAT: json or text
//   - BATON_LOG_SOURCE: truthy, or LOG_SOURCE=1
func FromEnv() *Config {
	cfg := DefaultConfig()

	debug := isTruthy(os.Getenv("BATON_DEBUG"))
	if debug {
		cfg.Level = "debug"
		cfg.AddSource = true
	}

	if !debug {
		if level := firstEnv("BATON_LOG_LEVEL", "LOG_LEVEL"); level != "" {
			cfg.Level = strings.ToLower(level)
		}
	}

	if format := firstEnv("BATON_LOG_FORMAT", "LOG_FORMAT"); format != "" {
		cfg.Format = Format(strings.ToLower(format))
	}

	if isTruthy(os.Getenv("BATON_LOG_SOURCE")) || os.Getenv("LOG_SOURCE") == "1" {
		cfg.AddSource = true
	}

	return cfg
}

// firstEnv returns the first non-empty value among the named variables.
func firstEnv(names ...string) string {
	for _, name := range names {
		if val := os.Getenv(name); val != "" {
			return val
		}
	}
	return ""
}

func isTruthy(val string) bool {
	switch strings.ToLower(val) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// New constructs a logger from cfg. A nil cfg gets the defaults.
func New(cfg *Config) *slog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.Format == FormatText {
		handler = slog.NewTextHandler(cfg.Output, opts)
	} else {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}
	return slog.New(handler)
}

// parseLevel maps a level name to its slog.Level. Unknown names fall back
// to info rather than erroring; a typo in an env var should not silence a
// daemon.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent tags every record from the returned logger with the
// subsystem name.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(slog.String(ComponentKey, component))
}

// WithRunContext scopes a logger to one run.
func WithRunContext(logger *slog.Logger, runID, workflowID string) *slog.Logger {
	return logger.With(
		slog.String(RunIDKey, runID),
		slog.String(WorkflowIDKey, workflowID),
	)
}

// WithStepContext scopes a logger to one step of a run.
func WithStepContext(logger *slog.Logger, runID, stepID string) *slog.Logger {
	return logger.With(
		slog.String(RunIDKey, runID),
		slog.String(StepIDKey, stepID),
	)
}

// Error wraps an error as the conventional "error" attribute.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

// SanitizeAPIKey reduces a credential to its last four characters for
// logging. Keys too short to truncate are fully redacted.
func SanitizeAPIKey(key string) string {
	if len(key) <= 4 {
		return "[REDACTED]"
	}
	return "..." + key[len(key)-4:]
}
