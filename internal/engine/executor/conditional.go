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

	"github.com/tombee/baton/pkg/workflow"
	"github.com/tombee/baton/pkg/workflow/expression"
)

// Conditional evaluates a sandboxed boolean expression against the flattened
// run context. It never pauses; sandbox violations and undefined names are
// fatal to the run.
type Conditional struct {
	eval *expression.Evaluator
}

// NewConditional creates the conditional executor around a shared evaluator,
// so compiled expressions are cached across runs.
func NewConditional(eval *expression.Evaluator) *Conditional {
	return &Conditional{eval: eval}
}

// Execute evaluates the step's `when` expression and records its truthiness.
func (c *Conditional) Execute(ctx context.Context, runCtx *workflow.Context, stepID string, config map[string]any) (*Result, error) {
	cfg, err := workflow.ParseConditionalConfig(config)
	if err != nil {
		return nil, err
	}

	result, err := c.eval.Evaluate(cfg.When, runCtx.Flatten())
	if err != nil {
		return nil, err
	}

	return &Result{
		Result:     &result,
		Expression: cfg.When,
	}, nil
}
