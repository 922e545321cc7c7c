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

	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
)

// Form collects structured input from a human. Execution always pauses; the
// collected values arrive later through a resume, validated against the same
// field schema.
type Form struct{}

// NewForm creates the form executor.
func NewForm() *Form {
	return &Form{}
}

// Execute records the field schema in the runtime context and pauses the run.
func (f *Form) Execute(ctx context.Context, runCtx *workflow.Context, stepID string, config map[string]any) (*Result, error) {
	cfg, err := workflow.ParseFormConfig(config)
	if err != nil {
		return nil, err
	}

	// The schema lands in the context before the pause commits, so whoever
	// resumes the run can read what the step expects.
	runCtx.SetRuntime(stepID+"_schema", cfg.Fields)

	return &Result{
		Pause:        true,
		WaitingFor:   WaitingForForm,
		FieldsSchema: cfg.Fields,
	}, nil
}

// ValidateFields checks resume inputs against the step's field schema and
// returns the validated subset. Optional missing fields and unknown keys are
// dropped; everything else that is wrong is a validation error. Validation
// never mutates inputs, so it is idempotent.
func (f *Form) ValidateFields(config map[string]any, inputs map[string]any) (map[string]any, error) {
	cfg, err := workflow.ParseFormConfig(config)
	if err != nil {
		return nil, err
	}

	validated := make(map[string]any)
	for _, field := range cfg.Fields {
		value, ok := inputs[field.Key]
		if !ok {
			if field.Required {
				return nil, &errors.ValidationError{
					Field:   field.Key,
					Message: fmt.Sprintf("required field '%s' is missing", field.Key),
				}
			}
			continue
		}

		if field.Type != "text" && field.Type != "textarea" {
			return nil, &errors.ValidationError{
				Field:   field.Key,
				Message: fmt.Sprintf("field type '%s' not supported, only 'text' and 'textarea' are allowed", field.Type),
			}
		}

		s, ok := value.(string)
		if !ok {
			return nil, &errors.ValidationError{
				Field:   field.Key,
				Message: fmt.Sprintf("field '%s' must be a string", field.Key),
			}
		}

		validated[field.Key] = s
	}

	return validated, nil
}
