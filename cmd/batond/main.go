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

// Command batond runs the workflow orchestration daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tombee/baton/internal/config"
	"github.com/tombee/baton/internal/daemon"
	"github.com/tombee/baton/internal/log"
)

// Build identification, stamped by the linker.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var (
		configPath   = flag.String("config", "", "Config file path")
		listenAddr   = flag.String("listen", "", "HTTP listen address (host:port)")
		storeDriver  = flag.String("store", "", "Run store driver (sqlite, memory)")
		dbPath       = flag.String("db", "", "SQLite database path")
		workflowsDir = flag.String("workflows-dir", "", "Directory of workflow YAML files to load")
		showVersion  = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("batond %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	logger := log.New(log.FromEnv())
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("cannot load config", log.Error(err))
		os.Exit(1)
	}

	// Flags beat file and environment; re-validate after they land.
	if *listenAddr != "" {
		cfg.Listen.Addr = *listenAddr
	}
	if *storeDriver != "" {
		cfg.Store.Driver = *storeDriver
	}
	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}
	if *workflowsDir != "" {
		cfg.Workflows.Dir = *workflowsDir
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", log.Error(err))
		os.Exit(1)
	}

	d, err := daemon.New(cfg, daemon.Options{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
	})
	if err != nil {
		logger.Error("cannot build daemon", log.Error(err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.Start(ctx)
	}()

	select {
	case sig := <-sigCh:
		logger.Info("signal received, shutting down", "signal", sig.String())
		cancel()
		if err := d.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown error", log.Error(err))
		}
	case err := <-errCh:
		if err != nil {
			logger.Error("daemon exited", log.Error(err))
			os.Exit(1)
		}
	}
}
