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

package loader

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
)

// Editors emit several fsnotify events per save. Reloads are paced rather
// than dropped so the last write always lands; redundant reloads are cheap
// because an unchanged definition never bumps the version.
const (
	reloadsPerSecond = 10
	reloadBurst      = 1
)

// Watcher re-loads workflow files when they change on disk.
type Watcher struct {
	loader       *Loader
	dir          string
	watcher      *fsnotify.Watcher
	eventCh      chan string
	limiter      *rate.Limiter
	logger       *slog.Logger
	stopCh       chan struct{}
	doneCh       chan struct{}
	reloadDoneCh chan struct{}
}

// NewWatcher creates a watcher over dir and its subdirectories.
// fsnotify does not recurse, so every directory is registered
// individually; directories created later are added as they appear.
func (l *Loader) NewWatcher(dir string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	err = filepath.WalkDir(absDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
	if err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch path: %w", err)
	}

	return &Watcher{
		loader:       l,
		dir:          absDir,
		watcher:      fsw,
		eventCh:      make(chan string, 100), // Buffered channel to prevent blocking
		limiter:      rate.NewLimiter(rate.Limit(reloadsPerSecond), reloadBurst),
		logger:       l.logger.With(slog.String("path", absDir)),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
		reloadDoneCh: make(chan struct{}),
	}, nil
}

// Start begins watching for file events.
func (w *Watcher) Start(ctx context.Context) error {
	go w.reloadLoop(ctx)
	go w.eventLoop(ctx)
	w.logger.Info("workflow watcher started")
	return nil
}

// Stop stops the watcher and releases resources. Queued reloads are
// discarded, not applied.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	<-w.doneCh
	<-w.reloadDoneCh
	return w.watcher.Close()
}

// eventLoop filters fsnotify events down to workflow file changes and
// feeds them to the reload loop without ever blocking on it.
func (w *Watcher) eventLoop(ctx context.Context) {
	defer close(w.doneCh)
	defer close(w.eventCh)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("workflow watcher stopped (context cancelled)")
			return
		case <-w.stopCh:
			w.logger.Info("workflow watcher stopped")
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				w.logger.Warn("workflow watcher event channel closed")
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				w.logger.Warn("workflow watcher error channel closed")
				return
			}
			w.logger.Error("workflow watcher error", slog.Any("error", err))
		}
	}
}

// handleEvent inspects a single fsnotify event.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		// Deletions and renames don't unload workflows: existing runs
		// still reference them. Chmod is noise.
		return
	}

	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		if event.Op&fsnotify.Create != 0 {
			if err := w.watcher.Add(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory",
					slog.String("path", event.Name),
					slog.Any("error", err),
				)
			}
		}
		return
	}

	rel, err := filepath.Rel(w.dir, event.Name)
	if err != nil {
		return
	}
	matched, err := doublestar.Match(filePattern, filepath.ToSlash(rel))
	if err != nil || !matched {
		return
	}

	// Send to reload channel (non-blocking)
	select {
	case w.eventCh <- event.Name:
	default:
		w.logger.Warn("event channel full, dropping event", slog.String("path", event.Name))
	}
}

// reloadLoop consumes file events and re-loads each changed file.
func (w *Watcher) reloadLoop(ctx context.Context) {
	defer close(w.reloadDoneCh)

	for path := range w.eventCh {
		select {
		case <-w.stopCh:
			continue // drain remaining events without reloading
		default:
		}
		if err := w.limiter.Wait(ctx); err != nil {
			continue
		}
		wf, err := w.loader.LoadFile(ctx, path)
		if err != nil {
			w.logger.Warn("failed to reload workflow file",
				slog.String("path", path),
				slog.Any("error", err),
			)
			continue
		}
		w.logger.Info("workflow reloaded",
			slog.String("path", path),
			slog.String("workflow_id", wf.ID),
			slog.String("name", wf.Name),
			slog.Int("version", wf.Version),
		)
	}
}
