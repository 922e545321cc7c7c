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

// Package engine runs workflows: it creates runs, advances them step by step,
// pauses them when a step needs a human, and resumes them when the human
// answers.
//
// Every state transition is committed before the engine moves on, so a crash
// at any point leaves a run that can be inspected and, if it was waiting,
// resumed. The advance loop holds no transaction while a step executes;
// executors work on the in-memory run context and the engine persists the
// outcome afterwards, which keeps provider latency out of the database and
// keeps a failed step's partial work out of the committed context.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/tombee/baton/internal/engine/executor"
	"github.com/tombee/baton/internal/notify"
	"github.com/tombee/baton/internal/store"
	"github.com/tombee/baton/internal/telemetry"
	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/llm"
	"github.com/tombee/baton/pkg/workflow"
	"github.com/tombee/baton/pkg/workflow/expression"
	"github.com/tombee/baton/pkg/workflow/schema"
)

// Defaults for unset Options fields.
const (
	defaultApprovalBaseURL = "http://localhost:8080"
	defaultProviderTimeout = 30 * time.Second
	defaultMaxRetries      = 2
)

// Options configures an Engine. Zero values select working defaults: a
// deterministic mock provider, a log-backed notifier, the default logger, no
// metrics, and a noop tracer.
type Options struct {
	// Provider generates ai_generate step output.
	Provider llm.Provider

	// Notifier delivers approval requests.
	Notifier notify.Notifier

	// Logger receives run lifecycle events.
	Logger *slog.Logger

	// Metrics records run and step counters. Nil disables recording.
	Metrics *telemetry.EngineMetrics

	// Tracer creates engine spans.
	Tracer trace.Tracer

	// ApprovalBaseURL is the public prefix for approval links.
	ApprovalBaseURL string

	// ProviderTimeout bounds each generation attempt.
	ProviderTimeout time.Duration

	// MaxRetries is the retry budget after the first generation attempt.
	MaxRetries int
}

// Engine executes workflow runs against a store.
type Engine struct {
	store   store.Store
	logger  *slog.Logger
	metrics *telemetry.EngineMetrics
	tracer  trace.Tracer

	form        *executor.Form
	conditional *executor.Conditional
	aiGenerate  *executor.AIGenerate
	approval    *executor.Approval
}

// New creates an engine. Executors are constructed once and shared across
// runs; the conditional executor's expression cache in particular is only
// useful when it survives between steps.
func New(st store.Store, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	provider := opts.Provider
	if provider == nil {
		provider = llm.NewMockProvider(llm.MockSuccess, 42)
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("engine")
	}
	baseURL := opts.ApprovalBaseURL
	if baseURL == "" {
		baseURL = defaultApprovalBaseURL
	}
	timeout := opts.ProviderTimeout
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	return &Engine{
		store:       st,
		logger:      logger,
		metrics:     opts.Metrics,
		tracer:      tracer,
		form:        executor.NewForm(),
		conditional: executor.NewConditional(expression.New()),
		aiGenerate:  executor.NewAIGenerate(provider, schema.New(), timeout, maxRetries, logger),
		approval:    executor.NewApproval(notifier, baseURL, logger),
	}
}

// StartRun creates a run for the workflow and advances it until it pauses,
// completes, or fails. When the run fails, the persisted failed run is
// returned together with the error.
//
// A non-empty idempotencyKey makes the call safe to repeat: the run created
// by the first call is returned verbatim on every retry, with no side
// effects.
func (e *Engine) StartRun(ctx context.Context, workflowID string, inputs map[string]any, idempotencyKey string) (*store.Run, error) {
	ctx, span := e.tracer.Start(ctx, "engine.start_run",
		trace.WithAttributes(attribute.String("workflow_id", workflowID)))
	defer span.End()

	if idempotencyKey != "" {
		existing, err := e.store.GetRunByIdempotencyKey(ctx, idempotencyKey)
		if err == nil {
			return existing, nil
		}
		if !errors.IsNotFound(err) {
			return nil, err
		}
	}

	wf, err := e.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	run := &store.Run{
		ID:              uuid.NewString(),
		WorkflowID:      wf.ID,
		WorkflowVersion: wf.Version,
		Status:          workflow.StatusRunning,
		CurrentStep:     wf.StartStep,
		Context:         workflow.NewContext(inputs),
		IdempotencyKey:  idempotencyKey,
		StartedAt:       now,
		UpdatedAt:       now,
	}
	span.SetAttributes(attribute.String("run_id", run.ID))

	if err := e.store.CreateRun(ctx, run); err != nil {
		// Two starts with the same key can race past the pre-check; the
		// unique index picks a winner and the loser returns the winner's run.
		if idempotencyKey != "" && errors.IsConflict(err) {
			return e.store.GetRunByIdempotencyKey(ctx, idempotencyKey)
		}
		return nil, err
	}

	e.metrics.RecordRunStarted(ctx, wf.ID)
	e.logger.InfoContext(ctx, "run started",
		"run_id", run.ID,
		"workflow_id", wf.ID,
		"workflow", wf.Name,
		"start_step", wf.StartStep,
	)

	return e.advance(ctx, run)
}

// ResumeRun continues a waiting run. Non-empty inputs are dispatched on the
// paused step's type before execution continues:
//
//   - form: inputs are validated against the field schema; the validated
//     subset is merged and the run moves past the form. Invalid inputs fail
//     the run.
//   - approval: inputs must carry an approval decision; the pending approval
//     record is updated and the run moves past the approval step. A malformed
//     decision is rejected and the run stays waiting.
//   - ai_generate (manual fix): inputs are merged as an opaque context patch
//     and the step executes again.
//
// Empty inputs re-execute the paused step as-is.
func (e *Engine) ResumeRun(ctx context.Context, runID string, inputs map[string]any) (*store.Run, error) {
	ctx, span := e.tracer.Start(ctx, "engine.resume_run",
		trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != workflow.StatusWaiting {
		return nil, &errors.ConflictError{
			Resource: "run",
			ID:       runID,
			Reason:   fmt.Sprintf("cannot resume a run in status %q", run.Status),
		}
	}

	if len(inputs) > 0 && run.CurrentStep != "" {
		step, err := e.store.GetStep(ctx, run.WorkflowID, run.CurrentStep)
		if err != nil {
			return nil, err
		}

		switch step.Type {
		case workflow.StepTypeForm:
			validated, err := e.form.ValidateFields(step.Config, inputs)
			if err != nil {
				// A submission that fails the form's own schema is fatal:
				// record the failed attempt and fail the run.
				now := time.Now().UTC()
				return e.recordFailure(ctx, run, step.StepID, step.Type, now, now, err)
			}
			inputs = validated
			run.CurrentStep = step.Next
		case workflow.StepTypeApproval:
			decision, err := approvalDecision(inputs)
			if err != nil {
				// Malformed decision: reject the request, leave the run
				// waiting for a well-formed one.
				return nil, err
			}
			applyDecision(run.Context, step.StepID, decision)
			run.CurrentStep = step.Next
		default:
			// Manual fix: the patch is merged as-is below and the step
			// executes again against the repaired context.
		}
	}

	run.Context.MergeRuntime(inputs)
	run.Status = workflow.StatusRunning
	run.UpdatedAt = time.Now().UTC()
	if err := e.store.UpdateRun(ctx, run); err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "run resumed",
		"run_id", run.ID,
		"workflow_id", run.WorkflowID,
		"current_step", run.CurrentStep,
	)

	return e.advance(ctx, run)
}

// CancelRun cancels a running or waiting run. A run whose step is mid-flight
// keeps executing until the step's commit observes the cancellation; the
// in-flight step's history record is still written.
func (e *Engine) CancelRun(ctx context.Context, runID string) (*store.Run, error) {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !workflow.CanTransition(run.Status, workflow.StatusCanceled) {
		return nil, &errors.ConflictError{
			Resource: "run",
			ID:       runID,
			Reason:   fmt.Sprintf("cannot cancel a run in status %q", run.Status),
		}
	}

	run.Status = workflow.StatusCanceled
	run.UpdatedAt = time.Now().UTC()
	if err := e.store.UpdateRun(ctx, run); err != nil {
		return nil, err
	}

	e.metrics.RecordRunCompleted(ctx, run.WorkflowID, string(workflow.StatusCanceled))
	e.logger.InfoContext(ctx, "run canceled", "run_id", run.ID, "workflow_id", run.WorkflowID)
	return run, nil
}

// GetRun retrieves a run by ID.
func (e *Engine) GetRun(ctx context.Context, runID string) (*store.Run, error) {
	return e.store.GetRun(ctx, runID)
}

// GetHistory returns a run's step history ordered by start time.
func (e *Engine) GetHistory(ctx context.Context, runID string) ([]*store.RunStep, error) {
	if _, err := e.store.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return e.store.ListRunSteps(ctx, runID)
}

// GetContext returns a run's execution context.
func (e *Engine) GetContext(ctx context.Context, runID string) (*workflow.Context, error) {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return run.Context, nil
}

// decision is a validated approval submission.
type decision struct {
	approved bool
	comments string
}

// approvalDecision extracts and validates the approval object from resume
// inputs.
func approvalDecision(inputs map[string]any) (*decision, error) {
	raw, ok := inputs["approval"]
	if !ok {
		return nil, &errors.ValidationError{
			Field:   "approval",
			Message: "resume data for an approval step requires an 'approval' object",
		}
	}
	data, ok := raw.(map[string]any)
	if !ok {
		return nil, &errors.ValidationError{
			Field:   "approval",
			Message: "approval data must be an object",
		}
	}
	rawApproved, ok := data["approved"]
	if !ok {
		return nil, &errors.ValidationError{
			Field:   "approval.approved",
			Message: "approval data requires an 'approved' field",
		}
	}
	approved, ok := rawApproved.(bool)
	if !ok {
		return nil, &errors.ValidationError{
			Field:   "approval.approved",
			Message: "'approved' must be a boolean",
		}
	}
	comments, _ := data["comments"].(string)
	return &decision{approved: approved, comments: comments}, nil
}

// applyDecision writes the decision onto the step's pending approval record.
// A run resumed without a record (the step never wrote one) merges the raw
// decision only.
func applyDecision(runCtx *workflow.Context, stepID string, d *decision) {
	record, ok := runCtx.Runtime[stepID+"_approval"].(map[string]any)
	if !ok {
		return
	}
	status := "rejected"
	if d.approved {
		status = "approved"
	}
	record["status"] = status
	record["comments"] = d.comments
}
