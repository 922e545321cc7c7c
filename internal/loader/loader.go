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

// Package loader loads workflow definition files into the store.
//
// On daemon start the workflows directory is scanned for YAML files,
// each parsed, validated, and upserted by workflow name: unknown names
// create a workflow, known names produce a new version. With watch
// enabled, file changes re-load the changed file the same way.
package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"github.com/tombee/baton/internal/store"
	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
)

// filePattern matches workflow definition files at any depth.
const filePattern = "**/*.{yaml,yml}"

// Loader parses workflow files and upserts them into the store.
type Loader struct {
	store  store.Store
	logger *slog.Logger
}

// New creates a loader.
func New(st store.Store, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		store:  st,
		logger: logger.With(slog.String("component", "loader")),
	}
}

// LoadDir scans dir recursively for workflow files and loads each one.
// A file that fails to parse or validate is logged and skipped; the
// scan continues. Returns the number of workflows loaded.
func (l *Loader) LoadDir(ctx context.Context, dir string) (int, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve workflows dir: %w", err)
	}

	matches, err := doublestar.FilepathGlob(filepath.Join(absDir, filePattern))
	if err != nil {
		return 0, fmt.Errorf("failed to scan workflows dir: %w", err)
	}

	loaded := 0
	for _, path := range matches {
		wf, err := l.LoadFile(ctx, path)
		if err != nil {
			l.logger.Warn("skipping workflow file",
				slog.String("path", path),
				slog.Any("error", err),
			)
			continue
		}
		loaded++
		l.logger.Info("workflow loaded",
			slog.String("path", path),
			slog.String("workflow_id", wf.ID),
			slog.String("name", wf.Name),
			slog.Int("version", wf.Version),
		)
	}

	return loaded, nil
}

// LoadFile parses, validates, and upserts a single workflow file.
func (l *Loader) LoadFile(ctx context.Context, path string) (*store.Workflow, error) {
	def, err := workflow.ParseFile(path)
	if err != nil {
		return nil, err
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return l.upsert(ctx, def)
}

// upsert creates the workflow or, when the name is already known,
// replaces its definition under a bumped version. A definition
// identical to the stored one is left untouched so repeated watch
// events don't inflate the version counter.
func (l *Loader) upsert(ctx context.Context, def *workflow.Definition) (*store.Workflow, error) {
	existing, err := l.store.GetWorkflowByName(ctx, def.Name)
	if err == nil {
		if definitionsEqual(existing.Definition(), def) {
			return existing, nil
		}
		existing.StartStep = def.StartStep
		existing.Steps = def.Steps
		existing.Version++
		if err := l.store.UpdateWorkflow(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}
	if !errors.IsNotFound(err) {
		return nil, err
	}

	wf := &store.Workflow{
		ID:        uuid.NewString(),
		Version:   1,
		Name:      def.Name,
		StartStep: def.StartStep,
		Steps:     def.Steps,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.store.CreateWorkflow(ctx, wf); err != nil {
		return nil, err
	}
	return wf, nil
}

// definitionsEqual compares definitions through canonical JSON, which
// irons out YAML/JSON numeric type differences between a freshly
// parsed file and a stored round-trip. The informational version
// string is excluded.
func definitionsEqual(a, b *workflow.Definition) bool {
	aj, err := json.Marshal(&workflow.Definition{Name: a.Name, StartStep: a.StartStep, Steps: a.Steps})
	if err != nil {
		return false
	}
	bj, err := json.Marshal(&workflow.Definition{Name: b.Name, StartStep: b.StartStep, Steps: b.Steps})
	if err != nil {
		return false
	}
	return bytes.Equal(aj, bj)
}
