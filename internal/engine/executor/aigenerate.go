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

package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/llm"
	"github.com/tombee/baton/pkg/workflow"
	"github.com/tombee/baton/pkg/workflow/schema"
)

// AIGenerate calls a model provider and validates the output against the
// step's JSON Schema, retrying on any failure up to its budget. Exhausting
// the budget pauses the run for a manual fix instead of failing it.
type AIGenerate struct {
	provider   llm.Provider
	validator  *schema.Validator
	timeout    time.Duration
	maxRetries int
	logger     *slog.Logger
}

// NewAIGenerate creates the ai_generate executor. The timeout bounds each
// provider attempt; maxRetries is the number of retries after the first
// attempt.
func NewAIGenerate(provider llm.Provider, validator *schema.Validator, timeout time.Duration, maxRetries int, logger *slog.Logger) *AIGenerate {
	if logger == nil {
		logger = slog.Default()
	}
	return &AIGenerate{
		provider:   provider,
		validator:  validator,
		timeout:    timeout,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// Execute resolves the step's variables, runs the attempt loop, and on
// success writes the generated object into the runtime context.
func (g *AIGenerate) Execute(ctx context.Context, runCtx *workflow.Context, stepID string, config map[string]any) (*Result, error) {
	cfg, err := workflow.ParseAIGenerateConfig(config)
	if err != nil {
		return nil, err
	}

	variables, err := resolveVariables(runCtx, cfg.Variables)
	if err != nil {
		return nil, err
	}

	req := llm.GenerateRequest{
		TemplateID: cfg.TemplateID,
		Variables:  variables,
		Schema:     cfg.JSONSchema,
	}

	var lastErr error
	attempts := 0
	for attempts <= g.maxRetries {
		output, err := g.generate(ctx, req)
		if err == nil {
			err = g.validator.Validate(cfg.JSONSchema, output)
			if err == nil {
				runCtx.SetRuntime(stepID+"_output", output)
				retries := attempts
				return &Result{
					Output:     output,
					RetryCount: &retries,
				}, nil
			}
		}

		lastErr = err
		attempts++
		g.logger.WarnContext(ctx, "generation attempt failed",
			"step_id", stepID,
			"template_id", cfg.TemplateID,
			"attempt", attempts,
			"error", err,
		)
	}

	// Budget exhausted: park the run for an operator instead of failing it.
	retries := attempts
	return &Result{
		Pause:      true,
		WaitingFor: WaitingForManualFix,
		Error:      lastErr.Error(),
		RetryCount: &retries,
	}, nil
}

// generate makes one provider attempt under the per-attempt timeout.
func (g *AIGenerate) generate(ctx context.Context, req llm.GenerateRequest) (map[string]any, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.provider.Generate(attemptCtx, req)
}

// resolveVariables extracts the step's template variables from the context,
// first hit wins across static, profile, runtime. A nil value counts as
// absent; a variable found nowhere is a validation error.
func resolveVariables(runCtx *workflow.Context, names []string) (map[string]any, error) {
	variables := make(map[string]any, len(names))
	for _, name := range names {
		value, ok := runCtx.Resolve(name)
		if !ok {
			return nil, &errors.ValidationError{
				Field:   "variables",
				Message: fmt.Sprintf("variable '%s' not found in context (checked static, profile, runtime)", name),
			}
		}
		variables[name] = value
	}
	return variables, nil
}
