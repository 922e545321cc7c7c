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

// Package store defines the persistence contract for workflows, runs, and
// run history.
//
// # Interface Hierarchy
//
// The package uses interface segregation so components can state minimal
// requirements:
//
//   - WorkflowStore: workflow definitions and their step rows
//   - RunStore: run rows, including idempotency-key lookup
//   - RunStepStore: append-only execution history
//
// Store composes all of these plus transaction support. Tx exposes the same
// operations inside a transaction; the engine commits every run state
// transition through one.
//
// Implementations report missing rows as *errors.NotFoundError and unique
// idempotency-key collisions as *errors.ConflictError, so callers branch on
// the shared taxonomy rather than on driver-specific errors.
package store

import (
	"context"
	"io"
	"time"

	"github.com/tombee/baton/pkg/workflow"
)

// WorkflowStore persists workflow definitions.
type WorkflowStore interface {
	// CreateWorkflow stores a new workflow and its step rows.
	CreateWorkflow(ctx context.Context, wf *Workflow) error

	// GetWorkflow retrieves a workflow by ID, steps included.
	GetWorkflow(ctx context.Context, id string) (*Workflow, error)

	// GetWorkflowByName retrieves a workflow by its unique name.
	GetWorkflowByName(ctx context.Context, name string) (*Workflow, error)

	// ListWorkflows lists all workflows, steps included, ordered by name.
	ListWorkflows(ctx context.Context) ([]*Workflow, error)

	// UpdateWorkflow replaces a workflow's definition and step rows.
	// The caller is responsible for bumping Version.
	UpdateWorkflow(ctx context.Context, wf *Workflow) error

	// DeleteWorkflow removes a workflow and, by cascade, its steps, runs,
	// and history.
	DeleteWorkflow(ctx context.Context, id string) error

	// GetStep retrieves a single step of a workflow by its step ID.
	GetStep(ctx context.Context, workflowID, stepID string) (*Step, error)
}

// RunStore persists workflow runs.
type RunStore interface {
	// CreateRun stores a new run. A duplicate idempotency key is reported
	// as a *errors.ConflictError.
	CreateRun(ctx context.Context, run *Run) error

	// GetRun retrieves a run by ID.
	GetRun(ctx context.Context, id string) (*Run, error)

	// GetRunByIdempotencyKey retrieves the run created with the given key.
	GetRunByIdempotencyKey(ctx context.Context, key string) (*Run, error)

	// UpdateRun writes a run's current state.
	UpdateRun(ctx context.Context, run *Run) error

	// CountActiveRuns counts a workflow's runs in running or waiting state.
	CountActiveRuns(ctx context.Context, workflowID string) (int, error)
}

// RunStepStore persists the append-only execution history.
type RunStepStore interface {
	// AppendRunStep records one step execution.
	AppendRunStep(ctx context.Context, step *RunStep) error

	// ListRunSteps returns a run's history ordered by start time.
	ListRunSteps(ctx context.Context, runID string) ([]*RunStep, error)
}

// Tx is a transaction over the full store surface. Writes are invisible to
// other readers until Commit.
type Tx interface {
	WorkflowStore
	RunStore
	RunStepStore

	// Commit applies the transaction.
	Commit() error

	// Rollback discards the transaction. Safe to call after Commit.
	Rollback() error
}

// Store is the full persistence surface.
type Store interface {
	WorkflowStore
	RunStore
	RunStepStore

	// Begin opens a transaction.
	Begin(ctx context.Context) (Tx, error)

	// Ping verifies the backing storage is reachable.
	Ping(ctx context.Context) error

	io.Closer
}

// Workflow is the stored form of a workflow definition. Steps keep the
// definition's order and shape; the latest version is the only one retained.
type Workflow struct {
	ID        string             `json:"id"`
	Version   int                `json:"version"`
	Name      string             `json:"name"`
	StartStep string             `json:"start_step"`
	Steps     []workflow.StepDef `json:"steps"`
	CreatedAt time.Time          `json:"created_at"`
}

// Definition reconstructs the definition document for a stored workflow.
func (w *Workflow) Definition() *workflow.Definition {
	return &workflow.Definition{
		Name:      w.Name,
		StartStep: w.StartStep,
		Steps:     w.Steps,
	}
}

// Step is the stored row for one executable unit of a workflow. The engine
// resolves a run's current step through this shape.
type Step struct {
	ID         string            `json:"id"`
	WorkflowID string            `json:"workflow_id"`
	StepID     string            `json:"step_id"`
	Type       workflow.StepType `json:"type"`
	Name       string            `json:"name"`
	Next       string            `json:"next,omitempty"`
	Config     map[string]any    `json:"config"`
}

// Run is a single execution of a workflow.
type Run struct {
	ID              string             `json:"id"`
	WorkflowID      string             `json:"workflow_id"`
	WorkflowVersion int                `json:"workflow_version"`
	Status          workflow.RunStatus `json:"status"`
	CurrentStep     string             `json:"current_step,omitempty"`
	Context         *workflow.Context  `json:"context"`
	IdempotencyKey  string             `json:"idempotency_key,omitempty"`
	StartedAt       time.Time          `json:"started_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// RunStep is one recorded step execution. History rows are append-only and
// never updated.
type RunStep struct {
	ID        string              `json:"id"`
	RunID     string              `json:"run_id"`
	StepID    string              `json:"step_id"`
	Type      workflow.StepType   `json:"type"`
	Status    workflow.StepStatus `json:"status"`
	Output    map[string]any      `json:"output,omitempty"`
	Error     string              `json:"error,omitempty"`
	StartedAt time.Time           `json:"started_at"`
	EndedAt   time.Time           `json:"ended_at"`
}
