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

package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/baton/internal/engine/executor"
	"github.com/tombee/baton/internal/store"
	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
)

// advance executes steps until the run pauses, completes, fails, or a
// concurrent cancel is observed. One transaction per step: the step executes
// against the in-memory context with no transaction held, then a single
// commit appends the history record and writes the run's next state.
//
// The workflow definition is re-read on every iteration so a definition
// updated mid-run takes effect at the next step boundary.
func (e *Engine) advance(ctx context.Context, run *store.Run) (*store.Run, error) {
	for run.CurrentStep != "" {
		wf, err := e.store.GetWorkflow(ctx, run.WorkflowID)
		if err != nil {
			return run, err
		}

		step := wf.Definition().Step(run.CurrentStep)
		if step == nil {
			// The definition changed underneath the run and its current
			// step no longer exists. There is no step to record; fail the
			// run so an operator can see where it stranded.
			run.Status = workflow.StatusFailed
			run.UpdatedAt = time.Now().UTC()
			if uerr := e.store.UpdateRun(ctx, run); uerr != nil {
				return run, uerr
			}
			e.metrics.RecordRunCompleted(ctx, run.WorkflowID, string(workflow.StatusFailed))
			e.logger.ErrorContext(ctx, "run failed on dangling step reference",
				"run_id", run.ID,
				"workflow_id", run.WorkflowID,
				"current_step", run.CurrentStep,
			)
			return run, &errors.ValidationError{
				Field:   "current_step",
				Message: fmt.Sprintf("step %q not found in workflow %q", run.CurrentStep, wf.Name),
			}
		}

		startedAt := time.Now().UTC()
		result, execErr := e.executeStep(ctx, run, step)
		endedAt := time.Now().UTC()

		stepStatus := workflow.StepCompleted
		if execErr != nil {
			stepStatus = workflow.StepFailed
		}
		e.metrics.RecordStep(ctx, run.WorkflowID, step.ID, string(step.Type), string(stepStatus), endedAt.Sub(startedAt))

		if execErr != nil {
			return e.recordFailure(ctx, run, step.ID, step.Type, startedAt, endedAt, execErr)
		}

		stop, err := e.commitStep(ctx, run, step, result, startedAt, endedAt)
		if err != nil {
			return run, err
		}
		if stop {
			return run, nil
		}
	}

	// A resume can move current_step past the final step before the loop is
	// entered; the run is complete even though nothing executed here.
	if run.Status == workflow.StatusRunning {
		run.Status = workflow.StatusCompleted
		run.CurrentStep = ""
		run.UpdatedAt = time.Now().UTC()
		if err := e.store.UpdateRun(ctx, run); err != nil {
			return run, err
		}
		e.metrics.RecordRunCompleted(ctx, run.WorkflowID, string(workflow.StatusCompleted))
		e.logger.InfoContext(ctx, "run completed", "run_id", run.ID, "workflow_id", run.WorkflowID)
	}
	return run, nil
}

// executeStep dispatches one step to its executor. The step works on the
// run's in-memory context; nothing is persisted here.
func (e *Engine) executeStep(ctx context.Context, run *store.Run, step *workflow.StepDef) (*executor.Result, error) {
	ctx, span := e.tracer.Start(ctx, "engine.step", trace.WithAttributes(
		attribute.String("run_id", run.ID),
		attribute.String("step_id", step.ID),
		attribute.String("type", string(step.Type)),
	))
	defer span.End()

	var (
		result *executor.Result
		err    error
	)
	switch step.Type {
	case workflow.StepTypeForm:
		result, err = e.form.Execute(ctx, run.Context, step.ID, step.Config)
	case workflow.StepTypeConditional:
		result, err = e.conditional.Execute(ctx, run.Context, step.ID, step.Config)
	case workflow.StepTypeAIGenerate:
		result, err = e.aiGenerate.Execute(ctx, run.Context, step.ID, step.Config)
	case workflow.StepTypeApproval:
		result, err = e.approval.Execute(ctx, run.Context, step.ID, step.Config)
	default:
		err = &errors.ValidationError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported step type: %s", step.Type),
		}
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("status", string(workflow.StepFailed)))
		return nil, err
	}
	span.SetAttributes(attribute.String("status", string(workflow.StepCompleted)))
	return result, nil
}

// commitStep persists one successful step execution: the history record and
// the run's next state, in a single transaction. The run row is re-read
// inside the transaction; a cancellation that landed while the step executed
// is observed here and wins, though the in-flight step's record is still
// written.
//
// Returns stop=true when the run paused, completed, or was canceled.
func (e *Engine) commitStep(ctx context.Context, run *store.Run, step *workflow.StepDef, result *executor.Result, startedAt, endedAt time.Time) (bool, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	current, err := tx.GetRun(ctx, run.ID)
	if err != nil {
		return false, err
	}
	canceled := current.Status == workflow.StatusCanceled

	if err := tx.AppendRunStep(ctx, &store.RunStep{
		ID:        uuid.NewString(),
		RunID:     run.ID,
		StepID:    step.ID,
		Type:      step.Type,
		Status:    workflow.StepCompleted,
		Output:    result.AsMap(),
		StartedAt: startedAt,
		EndedAt:   endedAt,
	}); err != nil {
		return false, err
	}

	completed := false
	switch {
	case canceled:
		// current_step stays put so the history shows where the run stopped.
		run.Status = workflow.StatusCanceled
	case result.Pause:
		run.Status = workflow.StatusWaiting
	default:
		run.CurrentStep = step.Next
		if run.CurrentStep == "" {
			run.Status = workflow.StatusCompleted
			completed = true
		}
	}
	run.UpdatedAt = time.Now().UTC()

	// The engine's copy carries the context mutations the executor made.
	if err := tx.UpdateRun(ctx, run); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}

	switch {
	case canceled:
		e.logger.InfoContext(ctx, "run canceled during step",
			"run_id", run.ID,
			"step_id", step.ID,
		)
	case result.Pause:
		e.logger.InfoContext(ctx, "run waiting",
			"run_id", run.ID,
			"step_id", step.ID,
			"waiting_for", result.WaitingFor,
		)
	case completed:
		e.metrics.RecordRunCompleted(ctx, run.WorkflowID, string(workflow.StatusCompleted))
		e.logger.InfoContext(ctx, "run completed",
			"run_id", run.ID,
			"workflow_id", run.WorkflowID,
		)
	}

	return canceled || result.Pause || completed, nil
}

// recordFailure writes the failed step's history record and fails the run in
// a fresh transaction, then returns the run together with the cause. Every
// failure leaves a history record behind.
func (e *Engine) recordFailure(ctx context.Context, run *store.Run, stepID string, stepType workflow.StepType, startedAt, endedAt time.Time, execErr error) (*store.Run, error) {
	run.Status = workflow.StatusFailed
	run.UpdatedAt = time.Now().UTC()

	if err := e.commitFailure(ctx, run, &store.RunStep{
		ID:        uuid.NewString(),
		RunID:     run.ID,
		StepID:    stepID,
		Type:      stepType,
		Status:    workflow.StepFailed,
		Error:     execErr.Error(),
		StartedAt: startedAt,
		EndedAt:   endedAt,
	}); err != nil {
		// The bookkeeping failed too; the original cause still matters more
		// to the caller.
		e.logger.ErrorContext(ctx, "failed to record step failure",
			"run_id", run.ID,
			"step_id", stepID,
			"error", err,
		)
		return run, execErr
	}

	e.metrics.RecordRunCompleted(ctx, run.WorkflowID, string(workflow.StatusFailed))
	e.logger.ErrorContext(ctx, "run failed",
		"run_id", run.ID,
		"workflow_id", run.WorkflowID,
		"step_id", stepID,
		"error", execErr,
	)
	return run, execErr
}

// commitFailure applies the failed-run transition and its history record.
func (e *Engine) commitFailure(ctx context.Context, run *store.Run, record *store.RunStep) error {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := tx.AppendRunStep(ctx, record); err != nil {
		return err
	}
	if err := tx.UpdateRun(ctx, run); err != nil {
		return err
	}
	return tx.Commit()
}
