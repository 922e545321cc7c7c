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

package workflow

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/tombee/baton/pkg/errors"
)

// Validate checks if the workflow definition is valid.
// It returns the first problem found as a ValidationError, which the HTTP
// layer maps to a 400. Step configs are intentionally not inspected here;
// config decoding happens when the step executes.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return &errors.ValidationError{
			Field:   "name",
			Message: "workflow name is required",
		}
	}

	if len(d.Steps) == 0 {
		return &errors.ValidationError{
			Message: "Workflow must have at least one step",
		}
	}

	stepIDs := make(map[string]bool)
	for _, step := range d.Steps {
		if step.ID == "" {
			return &errors.ValidationError{
				Field:   "id",
				Message: "step ID is required",
			}
		}
		if stepIDs[step.ID] {
			return &errors.ValidationError{
				Message: fmt.Sprintf("Duplicate step ID: %s", step.ID),
			}
		}
		stepIDs[step.ID] = true

		if !step.Type.IsValid() {
			return &errors.ValidationError{
				Message: fmt.Sprintf("Step %s has invalid type: %s", step.ID, step.Type),
			}
		}
		if step.Name == "" {
			return &errors.ValidationError{
				Field:   "name",
				Message: fmt.Sprintf("step '%s' is missing a name", step.ID),
			}
		}
		if step.Config == nil {
			return &errors.ValidationError{
				Field:   "config",
				Message: fmt.Sprintf("step '%s' is missing config", step.ID),
			}
		}
	}

	if !stepIDs[d.StartStep] {
		return &errors.ValidationError{
			Message: fmt.Sprintf("Start step '%s' not found in workflow steps", d.StartStep),
		}
	}

	for _, step := range d.Steps {
		if step.Next != "" && !stepIDs[step.Next] {
			return &errors.ValidationError{
				Message: fmt.Sprintf("Step '%s' references non-existent next step '%s'", step.ID, step.Next),
			}
		}
	}

	return nil
}

// ValidateYAML structurally validates a raw YAML document and collects every
// problem rather than stopping at the first. It never returns a Go error;
// unparseable input is itself a validation finding. This backs the validate
// endpoint and the CLI's offline validate command.
func ValidateYAML(data []byte) []string {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return []string{fmt.Sprintf("Invalid YAML syntax: %s", err)}
	}
	if doc == nil {
		return []string{"Workflow definition must be a YAML object"}
	}
	return ValidateDocument(doc)
}

// ValidateDocument structurally validates an already-decoded definition
// document, returning all problems found. An empty slice means valid.
func ValidateDocument(doc map[string]any) []string {
	var errs []string

	for _, field := range []string{"name", "start_step", "steps"} {
		if _, ok := doc[field]; !ok {
			errs = append(errs, fmt.Sprintf("Missing required field: %s", field))
		}
	}
	if len(errs) > 0 {
		return errs
	}

	rawSteps, ok := doc["steps"].([]any)
	if !ok {
		return append(errs, "Steps must be a list")
	}
	if len(rawSteps) == 0 {
		return append(errs, "Workflow must have at least one step")
	}

	stepIDs := make(map[string]bool)
	for idx, rawStep := range rawSteps {
		step, ok := rawStep.(map[string]any)
		if !ok {
			errs = append(errs, fmt.Sprintf("Step %d must be an object", idx))
			continue
		}

		for _, field := range []string{"id", "type", "name", "config"} {
			if _, ok := step[field]; !ok {
				errs = append(errs, fmt.Sprintf("Step %d missing required field: %s", idx, field))
			}
		}

		id, hasID := step["id"].(string)
		if hasID {
			if stepIDs[id] {
				errs = append(errs, fmt.Sprintf("Duplicate step ID: %s", id))
			}
			stepIDs[id] = true
		}

		if rawType, ok := step["type"].(string); ok {
			if !StepType(rawType).IsValid() {
				label := id
				if !hasID {
					label = fmt.Sprintf("%d", idx)
				}
				errs = append(errs, fmt.Sprintf("Step %s has invalid type: %s", label, rawType))
			}
		}
	}

	if start, ok := doc["start_step"].(string); ok && !stepIDs[start] {
		errs = append(errs, fmt.Sprintf("Start step '%s' not found in steps", start))
	}

	for _, rawStep := range rawSteps {
		step, ok := rawStep.(map[string]any)
		if !ok {
			continue
		}
		next, _ := step["next"].(string)
		if next == "" || stepIDs[next] {
			continue
		}
		id, ok := step["id"].(string)
		if !ok {
			id = "?"
		}
		errs = append(errs, fmt.Sprintf("Step '%s' references non-existent next step '%s'", id, next))
	}

	return errs
}
