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

// Package daemon assembles the batond process: store, LLM provider,
// approval notifier, telemetry, engine, workflow loader, and HTTP API.
package daemon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/tombee/baton/internal/api"
	"github.com/tombee/baton/internal/config"
	"github.com/tombee/baton/internal/engine"
	"github.com/tombee/baton/internal/loader"
	internallog "github.com/tombee/baton/internal/log"
	"github.com/tombee/baton/internal/notify"
	"github.com/tombee/baton/internal/store"
	"github.com/tombee/baton/internal/store/memory"
	"github.com/tombee/baton/internal/store/sqlite"
	"github.com/tombee/baton/internal/telemetry"
	"github.com/tombee/baton/pkg/llm"
)

const shutdownTimeout = 30 * time.Second

// Options carry build identification stamped in by the linker.
type Options struct {
	Version   string
	Commit    string
	BuildDate string
}

// Daemon is the main batond daemon.
type Daemon struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger

	store     store.Store
	provider  llm.Provider
	notifier  notify.Notifier
	telemetry *telemetry.Provider
	engine    *engine.Engine
	watcher   *loader.Watcher
	server    *api.Server

	mu      sync.Mutex
	started bool
}

// New creates a new daemon instance. The store, provider, and notifier are
// opened here so configuration problems surface before Start.
func New(cfg *config.Config, opts Options) (*Daemon, error) {
	logger := internallog.WithComponent(internallog.New(internallog.FromEnv()), "daemon")

	st, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	notifier, err := buildNotifier(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create notifier: %w", err)
	}

	return &Daemon{
		cfg:      cfg,
		opts:     opts,
		logger:   logger,
		store:    st,
		provider: provider,
		notifier: notifier,
	}, nil
}

// openStore opens the run store selected by config.
func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case config.StoreMemory:
		return memory.New(), nil
	default:
		path, err := cfg.StorePath()
		if err != nil {
			return nil, err
		}
		return sqlite.New(path)
	}
}

// buildProvider creates the LLM provider selected by config.
func buildProvider(cfg *config.Config) (llm.Provider, error) {
	switch cfg.Provider.Type {
	case config.ProviderOpenAI:
		return llm.NewOpenAIProvider(llm.OpenAIConfig{
			APIKey:  os.Getenv(cfg.Provider.APIKeyEnv),
			BaseURL: cfg.Provider.BaseURL,
			Model:   cfg.Provider.Model,
			Timeout: time.Duration(cfg.Provider.TimeoutSeconds) * time.Second,
		})
	default:
		return llm.NewMockProvider(llm.MockMode(cfg.Provider.MockMode), cfg.Provider.MockSeed), nil
	}
}

// buildNotifier creates the approval notifier selected by config.
func buildNotifier(cfg *config.Config, logger *slog.Logger) (notify.Notifier, error) {
	if cfg.Approvals.WebhookURL != "" {
		return notify.NewWebhookNotifier(cfg.Approvals.WebhookURL)
	}
	return notify.NewLogNotifier(internallog.WithComponent(logger, "notify")), nil
}

// Start brings up telemetry, the engine, the workflow loader, and the HTTP
// server, then blocks until ctx is cancelled or the server fails.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return fmt.Errorf("daemon already started")
	}
	d.started = true
	d.mu.Unlock()

	tp, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        d.cfg.Telemetry.Enabled,
		ServiceName:    d.cfg.Telemetry.ServiceName,
		ServiceVersion: d.opts.Version,
		OTLPEndpoint:   d.cfg.Telemetry.OTLPEndpoint,
		StdoutTrace:    d.cfg.Telemetry.StdoutTrace,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	d.telemetry = tp

	d.engine = engine.New(d.store, engine.Options{
		Provider:        d.provider,
		Notifier:        d.notifier,
		Logger:          internallog.WithComponent(d.logger, "engine"),
		Metrics:         tp.Metrics(),
		Tracer:          tp.Tracer("engine"),
		ApprovalBaseURL: d.cfg.Approvals.BaseURL,
		ProviderTimeout: time.Duration(d.cfg.Provider.TimeoutSeconds) * time.Second,
	})

	if d.cfg.Workflows.Dir != "" {
		ld := loader.New(d.store, d.logger)
		count, err := ld.LoadDir(ctx, d.cfg.Workflows.Dir)
		if err != nil {
			return fmt.Errorf("failed to load workflows from %s: %w", d.cfg.Workflows.Dir, err)
		}
		d.logger.Info("workflows loaded",
			slog.String("dir", d.cfg.Workflows.Dir),
			slog.Int("count", count))

		if d.cfg.Workflows.Watch {
			watcher, err := ld.NewWatcher(d.cfg.Workflows.Dir)
			if err != nil {
				return fmt.Errorf("failed to watch %s: %w", d.cfg.Workflows.Dir, err)
			}
			if err := watcher.Start(ctx); err != nil {
				return fmt.Errorf("failed to start workflow watcher: %w", err)
			}
			d.watcher = watcher
		}
	}

	router := api.NewRouter(d.logger)
	api.NewWorkflowsHandler(d.store).RegisterRoutes(router.Mux())
	api.NewExecutionsHandler(d.engine, d.store).RegisterRoutes(router.Mux())
	router.SetMetricsHandler(tp.MetricsHandler())

	server := api.NewServer(d.cfg.Listen.Addr, router, d.logger)
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	d.mu.Lock()
	d.server = server
	d.mu.Unlock()

	d.logger.Info("batond starting",
		slog.String("version", d.opts.Version),
		slog.String("listen_addr", server.Addr()),
		slog.String("store", d.cfg.Store.Driver),
		slog.String("provider", d.cfg.Provider.Type))

	select {
	case <-ctx.Done():
		return nil
	case err := <-server.Err():
		return err
	}
}

// Addr returns the bound listen address, or "" before the server is up.
func (d *Daemon) Addr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.server == nil {
		return ""
	}
	return d.server.Addr()
}

// Shutdown stops the watcher, drains the HTTP server, flushes telemetry,
// and closes the store, in that order. Later stages run even when earlier
// ones report errors.
func (d *Daemon) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return nil
	}

	d.logger.Info("graceful shutdown initiated")

	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			d.logger.Error("workflow watcher shutdown error", internallog.Error(err))
		}
	}

	if d.server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		if err := d.server.Shutdown(shutdownCtx); err != nil {
			d.logger.Error("HTTP server shutdown error", internallog.Error(err))
		}
	}

	if d.telemetry != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := d.telemetry.Shutdown(shutdownCtx); err != nil {
			d.logger.Error("telemetry shutdown error", internallog.Error(err))
		}
	}

	if closer, ok := d.store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			d.logger.Error("store close error", internallog.Error(err))
		}
	}

	d.logger.Info("shutdown complete")
	return nil
}
