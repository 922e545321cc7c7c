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

// Package memory provides an in-memory store implementation for tests and
// development. A transaction holds the store's write lock for its whole
// lifetime, so writers are serialized the same way the SQLite store
// serializes them; store-level calls made while a transaction is open block
// until it commits or rolls back.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/tombee/baton/internal/store"
	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
)

// Compile-time interface assertions.
var (
	_ store.Store = (*Store)(nil)
	_ store.Tx    = (*Tx)(nil)
)

// Store is an in-memory store.
type Store struct {
	mu        sync.RWMutex
	closed    bool
	workflows map[string]*store.Workflow
	runs      map[string]*store.Run
	runKeys   map[string]string // idempotency key -> run ID
	runSteps  map[string][]*store.RunStep
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		workflows: make(map[string]*store.Workflow),
		runs:      make(map[string]*store.Run),
		runKeys:   make(map[string]string),
		runSteps:  make(map[string][]*store.RunStep),
	}
}

// Begin opens a transaction. The transaction owns the store's write lock
// until Commit or Rollback.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("store is closed")
	}
	return &Tx{s: s}, nil
}

// Ping reports whether the store is usable.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

// Close marks the store closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// CreateWorkflow stores a workflow.
func (s *Store) CreateWorkflow(ctx context.Context, wf *store.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createWorkflowLocked(wf)
}

// GetWorkflow retrieves a workflow by ID.
func (s *Store) GetWorkflow(ctx context.Context, id string) (*store.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getWorkflowLocked(id)
}

// GetWorkflowByName retrieves the oldest workflow with the given name.
func (s *Store) GetWorkflowByName(ctx context.Context, name string) (*store.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getWorkflowByNameLocked(name)
}

// ListWorkflows lists all workflows ordered by name.
func (s *Store) ListWorkflows(ctx context.Context) ([]*store.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listWorkflowsLocked()
}

// UpdateWorkflow replaces a stored workflow.
func (s *Store) UpdateWorkflow(ctx context.Context, wf *store.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.updateWorkflowLocked(wf)
	return err
}

// DeleteWorkflow removes a workflow and cascades to its runs and history.
func (s *Store) DeleteWorkflow(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.deleteWorkflowLocked(id)
	return err
}

// GetStep retrieves one step of a workflow by step ID.
func (s *Store) GetStep(ctx context.Context, workflowID, stepID string) (*store.Step, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getStepLocked(workflowID, stepID)
}

// CreateRun stores a new run.
func (s *Store) CreateRun(ctx context.Context, run *store.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createRunLocked(run)
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getRunLocked(id)
}

// GetRunByIdempotencyKey retrieves the run created with the given key.
func (s *Store) GetRunByIdempotencyKey(ctx context.Context, key string) (*store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getRunByIdempotencyKeyLocked(key)
}

// UpdateRun replaces a run's stored state.
func (s *Store) UpdateRun(ctx context.Context, run *store.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.updateRunLocked(run)
	return err
}

// CountActiveRuns counts a workflow's runs in running or waiting state.
func (s *Store) CountActiveRuns(ctx context.Context, workflowID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countActiveRunsLocked(workflowID)
}

// AppendRunStep records one step execution.
func (s *Store) AppendRunStep(ctx context.Context, step *store.RunStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendRunStepLocked(step)
	return nil
}

// ListRunSteps returns a run's history ordered by start time.
func (s *Store) ListRunSteps(ctx context.Context, runID string) ([]*store.RunStep, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listRunStepsLocked(runID)
}

// Locked variants implement the operations assuming the caller holds the
// appropriate lock. Transactions call these directly; the staged changes are
// recorded in their undo log instead of an overlay.

func (s *Store) createWorkflowLocked(wf *store.Workflow) error {
	if _, exists := s.workflows[wf.ID]; exists {
		return &errors.ConflictError{Resource: "workflow", ID: wf.ID, Reason: "already exists"}
	}
	s.workflows[wf.ID] = cloneWorkflow(wf)
	return nil
}

func (s *Store) getWorkflowLocked(id string) (*store.Workflow, error) {
	wf, exists := s.workflows[id]
	if !exists {
		return nil, &errors.NotFoundError{Resource: "workflow", ID: id}
	}
	return cloneWorkflow(wf), nil
}

func (s *Store) getWorkflowByNameLocked(name string) (*store.Workflow, error) {
	var found *store.Workflow
	for _, wf := range s.workflows {
		if wf.Name != name {
			continue
		}
		if found == nil || wf.CreatedAt.Before(found.CreatedAt) ||
			(wf.CreatedAt.Equal(found.CreatedAt) && wf.ID < found.ID) {
			found = wf
		}
	}
	if found == nil {
		return nil, &errors.NotFoundError{Resource: "workflow", ID: name}
	}
	return cloneWorkflow(found), nil
}

func (s *Store) listWorkflowsLocked() ([]*store.Workflow, error) {
	result := make([]*store.Workflow, 0, len(s.workflows))
	for _, wf := range s.workflows {
		result = append(result, cloneWorkflow(wf))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (s *Store) updateWorkflowLocked(wf *store.Workflow) (*store.Workflow, error) {
	prev, exists := s.workflows[wf.ID]
	if !exists {
		return nil, &errors.NotFoundError{Resource: "workflow", ID: wf.ID}
	}
	s.workflows[wf.ID] = cloneWorkflow(wf)
	return prev, nil
}

// deleteWorkflowLocked removes a workflow and everything hanging off it,
// returning the removed state so a transaction can restore it on rollback.
func (s *Store) deleteWorkflowLocked(id string) (*deletedWorkflow, error) {
	wf, exists := s.workflows[id]
	if !exists {
		return nil, &errors.NotFoundError{Resource: "workflow", ID: id}
	}

	removed := &deletedWorkflow{
		workflow: wf,
		runs:     make(map[string]*store.Run),
		runSteps: make(map[string][]*store.RunStep),
		runKeys:  make(map[string]string),
	}

	delete(s.workflows, id)
	for runID, run := range s.runs {
		if run.WorkflowID != id {
			continue
		}
		removed.runs[runID] = run
		delete(s.runs, runID)
		if steps, ok := s.runSteps[runID]; ok {
			removed.runSteps[runID] = steps
			delete(s.runSteps, runID)
		}
		if run.IdempotencyKey != "" {
			removed.runKeys[run.IdempotencyKey] = runID
			delete(s.runKeys, run.IdempotencyKey)
		}
	}

	return removed, nil
}

func (s *Store) getStepLocked(workflowID, stepID string) (*store.Step, error) {
	wf, exists := s.workflows[workflowID]
	if !exists {
		return nil, &errors.NotFoundError{Resource: "workflow", ID: workflowID}
	}
	for _, def := range wf.Steps {
		if def.ID != stepID {
			continue
		}
		return &store.Step{
			ID:         workflowID + "/" + def.ID,
			WorkflowID: workflowID,
			StepID:     def.ID,
			Type:       def.Type,
			Name:       def.Name,
			Next:       def.Next,
			Config:     cloneMap(def.Config),
		}, nil
	}
	return nil, &errors.NotFoundError{Resource: "step", ID: stepID}
}

func (s *Store) createRunLocked(run *store.Run) error {
	if _, exists := s.runs[run.ID]; exists {
		return &errors.ConflictError{Resource: "run", ID: run.ID, Reason: "already exists"}
	}
	if run.IdempotencyKey != "" {
		if _, taken := s.runKeys[run.IdempotencyKey]; taken {
			return &errors.ConflictError{Resource: "run", ID: run.ID, Reason: "idempotency key already exists"}
		}
		s.runKeys[run.IdempotencyKey] = run.ID
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

func (s *Store) getRunLocked(id string) (*store.Run, error) {
	run, exists := s.runs[id]
	if !exists {
		return nil, &errors.NotFoundError{Resource: "run", ID: id}
	}
	return cloneRun(run), nil
}

func (s *Store) getRunByIdempotencyKeyLocked(key string) (*store.Run, error) {
	id, exists := s.runKeys[key]
	if !exists {
		return nil, &errors.NotFoundError{Resource: "run", ID: key}
	}
	return s.getRunLocked(id)
}

func (s *Store) updateRunLocked(run *store.Run) (*store.Run, error) {
	prev, exists := s.runs[run.ID]
	if !exists {
		return nil, &errors.NotFoundError{Resource: "run", ID: run.ID}
	}
	updated := cloneRun(run)
	// Identity and start time never change on update.
	updated.WorkflowID = prev.WorkflowID
	updated.WorkflowVersion = prev.WorkflowVersion
	updated.IdempotencyKey = prev.IdempotencyKey
	updated.StartedAt = prev.StartedAt
	s.runs[run.ID] = updated
	return prev, nil
}

func (s *Store) countActiveRunsLocked(workflowID string) (int, error) {
	count := 0
	for _, run := range s.runs {
		if run.WorkflowID == workflowID && run.Status.IsActive() {
			count++
		}
	}
	return count, nil
}

func (s *Store) appendRunStepLocked(step *store.RunStep) {
	s.runSteps[step.RunID] = append(s.runSteps[step.RunID], cloneRunStep(step))
}

func (s *Store) listRunStepsLocked(runID string) ([]*store.RunStep, error) {
	stored := s.runSteps[runID]
	result := make([]*store.RunStep, 0, len(stored))
	for _, step := range stored {
		result = append(result, cloneRunStep(step))
	}
	// Appends happen in order; a stable sort keeps insertion order for
	// steps sharing a start time.
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].StartedAt.Before(result[j].StartedAt)
	})
	return result, nil
}

// deletedWorkflow captures the cascade of a workflow delete for rollback.
type deletedWorkflow struct {
	workflow *store.Workflow
	runs     map[string]*store.Run
	runSteps map[string][]*store.RunStep
	runKeys  map[string]string
}

// Tx is a transaction over the in-memory store. It applies writes directly
// and keeps an undo log; Rollback replays the log in reverse.
type Tx struct {
	s    *Store
	done bool
	undo []func()
}

// Commit applies the transaction.
func (t *Tx) Commit() error {
	if t.done {
		return fmt.Errorf("transaction already closed")
	}
	t.done = true
	t.undo = nil
	t.s.mu.Unlock()
	return nil
}

// Rollback discards the transaction. Calling it after Commit is a no-op.
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
	t.s.mu.Unlock()
	return nil
}

func (t *Tx) active() error {
	if t.done {
		return fmt.Errorf("transaction already closed")
	}
	return nil
}

// CreateWorkflow stores a workflow within the transaction.
func (t *Tx) CreateWorkflow(ctx context.Context, wf *store.Workflow) error {
	if err := t.active(); err != nil {
		return err
	}
	if err := t.s.createWorkflowLocked(wf); err != nil {
		return err
	}
	id := wf.ID
	t.undo = append(t.undo, func() { delete(t.s.workflows, id) })
	return nil
}

// GetWorkflow retrieves a workflow by ID within the transaction.
func (t *Tx) GetWorkflow(ctx context.Context, id string) (*store.Workflow, error) {
	if err := t.active(); err != nil {
		return nil, err
	}
	return t.s.getWorkflowLocked(id)
}

// GetWorkflowByName retrieves the oldest workflow with the given name.
func (t *Tx) GetWorkflowByName(ctx context.Context, name string) (*store.Workflow, error) {
	if err := t.active(); err != nil {
		return nil, err
	}
	return t.s.getWorkflowByNameLocked(name)
}

// ListWorkflows lists all workflows ordered by name.
func (t *Tx) ListWorkflows(ctx context.Context) ([]*store.Workflow, error) {
	if err := t.active(); err != nil {
		return nil, err
	}
	return t.s.listWorkflowsLocked()
}

// UpdateWorkflow replaces a stored workflow within the transaction.
func (t *Tx) UpdateWorkflow(ctx context.Context, wf *store.Workflow) error {
	if err := t.active(); err != nil {
		return err
	}
	prev, err := t.s.updateWorkflowLocked(wf)
	if err != nil {
		return err
	}
	id := wf.ID
	t.undo = append(t.undo, func() { t.s.workflows[id] = prev })
	return nil
}

// DeleteWorkflow removes a workflow and its runs within the transaction.
func (t *Tx) DeleteWorkflow(ctx context.Context, id string) error {
	if err := t.active(); err != nil {
		return err
	}
	removed, err := t.s.deleteWorkflowLocked(id)
	if err != nil {
		return err
	}
	t.undo = append(t.undo, func() {
		t.s.workflows[id] = removed.workflow
		for runID, run := range removed.runs {
			t.s.runs[runID] = run
		}
		for runID, steps := range removed.runSteps {
			t.s.runSteps[runID] = steps
		}
		for key, runID := range removed.runKeys {
			t.s.runKeys[key] = runID
		}
	})
	return nil
}

// GetStep retrieves one step of a workflow within the transaction.
func (t *Tx) GetStep(ctx context.Context, workflowID, stepID string) (*store.Step, error) {
	if err := t.active(); err != nil {
		return nil, err
	}
	return t.s.getStepLocked(workflowID, stepID)
}

// CreateRun stores a new run within the transaction.
func (t *Tx) CreateRun(ctx context.Context, run *store.Run) error {
	if err := t.active(); err != nil {
		return err
	}
	if err := t.s.createRunLocked(run); err != nil {
		return err
	}
	id, key := run.ID, run.IdempotencyKey
	t.undo = append(t.undo, func() {
		delete(t.s.runs, id)
		if key != "" {
			delete(t.s.runKeys, key)
		}
	})
	return nil
}

// GetRun retrieves a run by ID within the transaction.
func (t *Tx) GetRun(ctx context.Context, id string) (*store.Run, error) {
	if err := t.active(); err != nil {
		return nil, err
	}
	return t.s.getRunLocked(id)
}

// GetRunByIdempotencyKey retrieves the run created with the given key.
func (t *Tx) GetRunByIdempotencyKey(ctx context.Context, key string) (*store.Run, error) {
	if err := t.active(); err != nil {
		return nil, err
	}
	return t.s.getRunByIdempotencyKeyLocked(key)
}

// UpdateRun replaces a run's stored state within the transaction.
func (t *Tx) UpdateRun(ctx context.Context, run *store.Run) error {
	if err := t.active(); err != nil {
		return err
	}
	prev, err := t.s.updateRunLocked(run)
	if err != nil {
		return err
	}
	id := run.ID
	t.undo = append(t.undo, func() { t.s.runs[id] = prev })
	return nil
}

// CountActiveRuns counts a workflow's runs in running or waiting state.
func (t *Tx) CountActiveRuns(ctx context.Context, workflowID string) (int, error) {
	if err := t.active(); err != nil {
		return 0, err
	}
	return t.s.countActiveRunsLocked(workflowID)
}

// AppendRunStep records one step execution within the transaction.
func (t *Tx) AppendRunStep(ctx context.Context, step *store.RunStep) error {
	if err := t.active(); err != nil {
		return err
	}
	t.s.appendRunStepLocked(step)
	runID := step.RunID
	t.undo = append(t.undo, func() {
		steps := t.s.runSteps[runID]
		t.s.runSteps[runID] = steps[:len(steps)-1]
	})
	return nil
}

// ListRunSteps returns a run's history within the transaction.
func (t *Tx) ListRunSteps(ctx context.Context, runID string) ([]*store.RunStep, error) {
	if err := t.active(); err != nil {
		return nil, err
	}
	return t.s.listRunStepsLocked(runID)
}

// cloneMap deep-copies a JSON-shaped map. Values come from JSON/YAML
// decoding, so a marshal round-trip is a faithful copy.
func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{}
	}
	return out
}

func cloneWorkflow(wf *store.Workflow) *store.Workflow {
	out := *wf
	out.Steps = make([]workflow.StepDef, len(wf.Steps))
	for i, def := range wf.Steps {
		out.Steps[i] = def
		out.Steps[i].Config = cloneMap(def.Config)
	}
	return &out
}

func cloneRun(run *store.Run) *store.Run {
	out := *run
	if run.Context != nil {
		out.Context = run.Context.Clone()
	}
	return &out
}

func cloneRunStep(step *store.RunStep) *store.RunStep {
	out := *step
	out.Output = cloneMap(step.Output)
	return &out
}
