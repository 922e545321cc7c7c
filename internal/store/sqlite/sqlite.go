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

// Package sqlite provides the SQLite store implementation for single-node
// deployments. It backs file databases and :memory: alike; writes are
// serialized on a single connection, which SQLite requires anyway.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/tombee/baton/internal/store"
	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
)

// Compile-time interface assertions.
var (
	_ store.Store = (*Store)(nil)
	_ store.Tx    = (*Tx)(nil)
)

// Store is the SQLite-backed store.
type Store struct {
	queries
	db *sql.DB
}

// Tx is a SQLite transaction over the same operations.
type Tx struct {
	queries
	tx *sql.Tx
}

// New opens (creating if needed) the SQLite database at path and runs
// migrations. Use ":memory:" for an ephemeral database.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writes; a single connection also keeps :memory:
	// databases from silently resetting per connection.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{queries: queries{q: db}, db: db}

	if err := s.configurePragmas(ctx, path != ":memory:"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure pragmas: %w", err)
	}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// configurePragmas sets SQLite configuration options.
func (s *Store) configurePragmas(ctx context.Context, enableWAL bool) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",    // referential integrity for cascading deletes
		"PRAGMA busy_timeout=5000",  // wait out lock contention instead of failing
		"PRAGMA synchronous=NORMAL", // durability/performance balance
	}

	if enableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL") // concurrent readers on file databases
	}

	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	return nil
}

// migrate runs database migrations.
func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			version INTEGER NOT NULL,
			name TEXT NOT NULL,
			definition TEXT NOT NULL,
			start_step TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_workflows_name ON workflows(name)`,
		`CREATE TABLE IF NOT EXISTS steps (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
			step_id TEXT NOT NULL,
			type TEXT NOT NULL,
			name TEXT NOT NULL,
			next TEXT,
			config TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_steps_workflow_id ON steps(workflow_id)`,
		`CREATE INDEX IF NOT EXISTS idx_steps_step_id ON steps(step_id)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
			workflow_version INTEGER NOT NULL,
			status TEXT NOT NULL,
			current_step TEXT,
			context TEXT NOT NULL,
			idempotency_key TEXT UNIQUE,
			started_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_workflow_id ON runs(workflow_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status)`,
		`CREATE TABLE IF NOT EXISTS run_steps (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			step_id TEXT NOT NULL,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			output TEXT,
			error TEXT,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_run_steps_run_id ON run_steps(run_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}

	return nil
}

// Begin opens a transaction.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Tx{queries: queries{q: tx}, tx: tx}, nil
}

// CreateWorkflow stores a workflow and its step rows atomically.
func (s *Store) CreateWorkflow(ctx context.Context, wf *store.Workflow) error {
	return s.inTx(ctx, func(tx *Tx) error {
		return tx.CreateWorkflow(ctx, wf)
	})
}

// UpdateWorkflow replaces a workflow's definition and step rows atomically.
func (s *Store) UpdateWorkflow(ctx context.Context, wf *store.Workflow) error {
	return s.inTx(ctx, func(tx *Tx) error {
		return tx.UpdateWorkflow(ctx, wf)
	})
}

// inTx runs fn inside a transaction, committing on success.
func (s *Store) inTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	sqltx := tx.(*Tx)
	defer sqltx.Rollback()

	if err := fn(sqltx); err != nil {
		return err
	}
	return sqltx.Commit()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Commit applies the transaction.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback discards the transaction. Calling it after Commit is a no-op.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !stderrors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}

// dbtx is the querying surface shared by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements the store operations over either a database handle or
// an open transaction.
type queries struct {
	q dbtx
}

// CreateWorkflow stores a workflow and its step rows. Atomicity is the
// caller's concern; Store wraps this in a transaction, Tx already is one.
func (c queries) CreateWorkflow(ctx context.Context, wf *store.Workflow) error {
	definition, err := json.Marshal(wf.Definition())
	if err != nil {
		return fmt.Errorf("failed to marshal definition: %w", err)
	}

	_, err = c.q.ExecContext(ctx,
		`INSERT INTO workflows (id, version, name, definition, start_step, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		wf.ID, wf.Version, wf.Name, string(definition), wf.StartStep, formatTime(wf.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &errors.ConflictError{Resource: "workflow", ID: wf.ID, Reason: "already exists"}
		}
		return fmt.Errorf("failed to create workflow: %w", err)
	}

	return c.insertSteps(ctx, wf.ID, wf.Steps)
}

// GetWorkflow retrieves a workflow by ID.
func (c queries) GetWorkflow(ctx context.Context, id string) (*store.Workflow, error) {
	row := c.q.QueryRowContext(ctx,
		`SELECT id, version, name, definition, start_step, created_at
		 FROM workflows WHERE id = ?`, id)
	wf, err := scanWorkflow(row)
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "workflow", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}
	return wf, nil
}

// GetWorkflowByName retrieves a workflow by name. When multiple workflows
// share a name the oldest wins, matching the loader's upsert target.
func (c queries) GetWorkflowByName(ctx context.Context, name string) (*store.Workflow, error) {
	row := c.q.QueryRowContext(ctx,
		`SELECT id, version, name, definition, start_step, created_at
		 FROM workflows WHERE name = ? ORDER BY created_at ASC LIMIT 1`, name)
	wf, err := scanWorkflow(row)
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "workflow", ID: name}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow by name: %w", err)
	}
	return wf, nil
}

// ListWorkflows lists all workflows ordered by name.
func (c queries) ListWorkflows(ctx context.Context) ([]*store.Workflow, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT id, version, name, definition, start_step, created_at
		 FROM workflows ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*store.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		workflows = append(workflows, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate workflows: %w", err)
	}

	return workflows, nil
}

// UpdateWorkflow replaces a workflow's definition and step rows. Atomicity
// is the caller's concern, as with CreateWorkflow.
func (c queries) UpdateWorkflow(ctx context.Context, wf *store.Workflow) error {
	definition, err := json.Marshal(wf.Definition())
	if err != nil {
		return fmt.Errorf("failed to marshal definition: %w", err)
	}

	result, err := c.q.ExecContext(ctx,
		`UPDATE workflows SET version = ?, name = ?, definition = ?, start_step = ? WHERE id = ?`,
		wf.Version, wf.Name, string(definition), wf.StartStep, wf.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update workflow: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return &errors.NotFoundError{Resource: "workflow", ID: wf.ID}
	}

	if _, err := c.q.ExecContext(ctx, `DELETE FROM steps WHERE workflow_id = ?`, wf.ID); err != nil {
		return fmt.Errorf("failed to delete steps: %w", err)
	}
	return c.insertSteps(ctx, wf.ID, wf.Steps)
}

// DeleteWorkflow removes a workflow; steps, runs, and history cascade.
func (c queries) DeleteWorkflow(ctx context.Context, id string) error {
	result, err := c.q.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return &errors.NotFoundError{Resource: "workflow", ID: id}
	}
	return nil
}

// GetStep retrieves one step of a workflow by step ID.
func (c queries) GetStep(ctx context.Context, workflowID, stepID string) (*store.Step, error) {
	var step store.Step
	var next sql.NullString
	var configJSON string

	err := c.q.QueryRowContext(ctx,
		`SELECT id, workflow_id, step_id, type, name, next, config
		 FROM steps WHERE workflow_id = ? AND step_id = ?`,
		workflowID, stepID,
	).Scan(&step.ID, &step.WorkflowID, &step.StepID, &step.Type, &step.Name, &next, &configJSON)
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "step", ID: stepID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get step: %w", err)
	}

	if next.Valid {
		step.Next = next.String
	}
	if err := json.Unmarshal([]byte(configJSON), &step.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal step config: %w", err)
	}

	return &step, nil
}

// insertSteps writes step rows for a workflow.
func (c queries) insertSteps(ctx context.Context, workflowID string, steps []workflow.StepDef) error {
	for _, def := range steps {
		config, err := json.Marshal(def.Config)
		if err != nil {
			return fmt.Errorf("failed to marshal step config: %w", err)
		}

		var next any
		if def.Next != "" {
			next = def.Next
		}

		_, err = c.q.ExecContext(ctx,
			`INSERT INTO steps (id, workflow_id, step_id, type, name, next, config)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), workflowID, def.ID, string(def.Type), def.Name, next, string(config),
		)
		if err != nil {
			return fmt.Errorf("failed to insert step %s: %w", def.ID, err)
		}
	}
	return nil
}

// CreateRun stores a new run.
func (c queries) CreateRun(ctx context.Context, run *store.Run) error {
	contextJSON, err := json.Marshal(run.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal context: %w", err)
	}

	// Empty keys are stored as NULL so the UNIQUE constraint only binds
	// runs that actually carry a key.
	var key any
	if run.IdempotencyKey != "" {
		key = run.IdempotencyKey
	}
	var currentStep any
	if run.CurrentStep != "" {
		currentStep = run.CurrentStep
	}

	_, err = c.q.ExecContext(ctx,
		`INSERT INTO runs (id, workflow_id, workflow_version, status, current_step, context, idempotency_key, started_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.WorkflowID, run.WorkflowVersion, string(run.Status), currentStep,
		string(contextJSON), key, formatTime(run.StartedAt), formatTime(run.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &errors.ConflictError{Resource: "run", ID: run.ID, Reason: "idempotency key already exists"}
		}
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// GetRun retrieves a run by ID.
func (c queries) GetRun(ctx context.Context, id string) (*store.Run, error) {
	row := c.q.QueryRowContext(ctx,
		`SELECT id, workflow_id, workflow_version, status, current_step, context, idempotency_key, started_at, updated_at
		 FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "run", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// GetRunByIdempotencyKey retrieves the run created with the given key.
func (c queries) GetRunByIdempotencyKey(ctx context.Context, key string) (*store.Run, error) {
	row := c.q.QueryRowContext(ctx,
		`SELECT id, workflow_id, workflow_version, status, current_step, context, idempotency_key, started_at, updated_at
		 FROM runs WHERE idempotency_key = ?`, key)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "run", ID: key}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run by idempotency key: %w", err)
	}
	return run, nil
}

// UpdateRun writes a run's mutable state: status, current step, context,
// and updated_at. Identity and start time never change.
func (c queries) UpdateRun(ctx context.Context, run *store.Run) error {
	contextJSON, err := json.Marshal(run.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal context: %w", err)
	}

	var currentStep any
	if run.CurrentStep != "" {
		currentStep = run.CurrentStep
	}

	result, err := c.q.ExecContext(ctx,
		`UPDATE runs SET status = ?, current_step = ?, context = ?, updated_at = ? WHERE id = ?`,
		string(run.Status), currentStep, string(contextJSON), formatTime(run.UpdatedAt), run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return &errors.NotFoundError{Resource: "run", ID: run.ID}
	}

	return nil
}

// CountActiveRuns counts a workflow's runs in running or waiting state.
func (c queries) CountActiveRuns(ctx context.Context, workflowID string) (int, error) {
	var count int
	err := c.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM runs WHERE workflow_id = ? AND status IN (?, ?)`,
		workflowID, string(workflow.StatusRunning), string(workflow.StatusWaiting),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active runs: %w", err)
	}
	return count, nil
}

// AppendRunStep records one step execution.
func (c queries) AppendRunStep(ctx context.Context, step *store.RunStep) error {
	var output any
	if step.Output != nil {
		data, err := json.Marshal(step.Output)
		if err != nil {
			return fmt.Errorf("failed to marshal output: %w", err)
		}
		output = string(data)
	}

	var stepErr any
	if step.Error != "" {
		stepErr = step.Error
	}

	_, err := c.q.ExecContext(ctx,
		`INSERT INTO run_steps (id, run_id, step_id, type, status, output, error, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		step.ID, step.RunID, step.StepID, string(step.Type), string(step.Status),
		output, stepErr, formatTime(step.StartedAt), formatTime(step.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append run step: %w", err)
	}

	return nil
}

// ListRunSteps returns a run's history ordered by start time. Insertion
// order breaks ties.
func (c queries) ListRunSteps(ctx context.Context, runID string) ([]*store.RunStep, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT id, run_id, step_id, type, status, output, error, started_at, ended_at
		 FROM run_steps WHERE run_id = ? ORDER BY started_at ASC, rowid ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run steps: %w", err)
	}
	defer rows.Close()

	var steps []*store.RunStep
	for rows.Next() {
		var step store.RunStep
		var output, stepErr sql.NullString
		var startedAt, endedAt string

		if err := rows.Scan(
			&step.ID, &step.RunID, &step.StepID, &step.Type, &step.Status,
			&output, &stepErr, &startedAt, &endedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run step: %w", err)
		}

		if output.Valid && output.String != "" {
			if err := json.Unmarshal([]byte(output.String), &step.Output); err != nil {
				return nil, fmt.Errorf("failed to unmarshal output: %w", err)
			}
		}
		if stepErr.Valid {
			step.Error = stepErr.String
		}
		if step.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, fmt.Errorf("failed to parse started_at: %w", err)
		}
		if step.EndedAt, err = parseTime(endedAt); err != nil {
			return nil, fmt.Errorf("failed to parse ended_at: %w", err)
		}

		steps = append(steps, &step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate run steps: %w", err)
	}

	return steps, nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanWorkflow reads one workflows row. Steps come from the definition
// column, preserving the order they were defined in.
func scanWorkflow(row scanner) (*store.Workflow, error) {
	var wf store.Workflow
	var definitionJSON, createdAt string

	if err := row.Scan(&wf.ID, &wf.Version, &wf.Name, &definitionJSON, &wf.StartStep, &createdAt); err != nil {
		return nil, err
	}

	var def workflow.Definition
	if err := json.Unmarshal([]byte(definitionJSON), &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal definition: %w", err)
	}
	wf.Steps = def.Steps

	var err error
	if wf.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}

	return &wf, nil
}

// scanRun reads one runs row.
func scanRun(row scanner) (*store.Run, error) {
	var run store.Run
	var currentStep, idempotencyKey sql.NullString
	var contextJSON, startedAt, updatedAt string

	if err := row.Scan(
		&run.ID, &run.WorkflowID, &run.WorkflowVersion, &run.Status,
		&currentStep, &contextJSON, &idempotencyKey, &startedAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	if currentStep.Valid {
		run.CurrentStep = currentStep.String
	}
	if idempotencyKey.Valid {
		run.IdempotencyKey = idempotencyKey.String
	}
	if err := json.Unmarshal([]byte(contextJSON), &run.Context); err != nil {
		return nil, fmt.Errorf("failed to unmarshal context: %w", err)
	}

	var err error
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("failed to parse started_at: %w", err)
	}
	if run.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return &run, nil
}

// isUniqueViolation reports whether an error is a SQLite unique constraint
// failure. Matched on message; the driver does not export a typed error for
// extended result codes.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
