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

// Package workflow provides the workflow definition types shared by the
// engine, the HTTP API, and the CLI.
//
// Definitions follow a simple YAML format: a name, a start step, and a flat
// list of steps linked by `next` pointers. Each step carries a type-specific
// config map that is decoded lazily at execution time, so a definition with a
// malformed config is accepted at rest and fails only when the step runs.
// The version field is informational; updates replace the stored definition
// and bump the persisted version counter.
package workflow

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tombee/baton/pkg/errors"
)

// Definition represents a YAML-based workflow definition.
// It is the document shape accepted by the create endpoint, the validate
// endpoint, and workflow files loaded from disk.
type Definition struct {
	// Name is the human-readable workflow name
	Name string `yaml:"name" json:"name"`

	// Version is the document's declared version (e.g., "0.1.0").
	// Informational only; the store tracks its own integer version counter.
	Version string `yaml:"version,omitempty" json:"version,omitempty"`

	// StartStep is the ID of the first step to execute
	StartStep string `yaml:"start_step" json:"start_step"`

	// Steps are the executable units of the workflow, linked by Next
	Steps []StepDef `yaml:"steps" json:"steps"`
}

// StepDef represents a single step in a workflow definition.
type StepDef struct {
	// ID is the unique step identifier within this workflow
	ID string `yaml:"id" json:"id"`

	// Type specifies the step type (form, ai_generate, conditional, approval)
	Type StepType `yaml:"type" json:"type"`

	// Name is a human-readable step name
	Name string `yaml:"name" json:"name"`

	// Next is the ID of the step to execute after this one.
	// Empty means the workflow completes after this step.
	Next string `yaml:"next,omitempty" json:"next,omitempty"`

	// Config holds the type-specific configuration, decoded at execution
	// time by the Parse*Config helpers
	Config map[string]any `yaml:"config" json:"config"`
}

// StepType represents the type of workflow step.
type StepType string

const (
	// StepTypeForm collects structured input from a human and pauses the run
	StepTypeForm StepType = "form"

	// StepTypeAIGenerate calls a model provider and validates the output
	// against a JSON Schema, with bounded retries
	StepTypeAIGenerate StepType = "ai_generate"

	// StepTypeConditional evaluates a sandboxed boolean expression against
	// the run context and records the result
	StepTypeConditional StepType = "conditional"

	// StepTypeApproval issues an approval token, notifies approvers, and
	// pauses the run until a decision arrives
	StepTypeApproval StepType = "approval"
)

// validStepTypes is the closed set of executable step types.
var validStepTypes = map[StepType]bool{
	StepTypeForm:        true,
	StepTypeAIGenerate:  true,
	StepTypeConditional: true,
	StepTypeApproval:    true,
}

// IsValid checks if the step type is one of the executable types.
func (t StepType) IsValid() bool {
	return validStepTypes[t]
}

// FormField describes a single field a form step collects.
type FormField struct {
	// Key is the field identifier
	Key string `yaml:"key" json:"key"`

	// Type is the field type; only "text" and "textarea" are accepted
	Type string `yaml:"type" json:"type"`

	// Required marks the field as mandatory on resume
	Required bool `yaml:"required" json:"required"`

	// Pattern is an optional validation regex (recorded, not enforced)
	Pattern string `yaml:"pattern,omitempty" json:"pattern,omitempty"`
}

// FormConfig is the configuration for form steps.
type FormConfig struct {
	// Fields are the form fields to collect
	Fields []FormField `yaml:"fields" json:"fields"`
}

// AIGenerateConfig is the configuration for ai_generate steps.
type AIGenerateConfig struct {
	// TemplateID identifies the generation template for the provider
	TemplateID string `yaml:"template_id" json:"template_id"`

	// Variables are context variable names resolved before generation
	Variables []string `yaml:"variables" json:"variables"`

	// JSONSchema is the schema the generated output must satisfy
	JSONSchema map[string]any `yaml:"json_schema" json:"json_schema"`
}

// ConditionalConfig is the configuration for conditional steps.
type ConditionalConfig struct {
	// When is the boolean expression evaluated against the flattened context
	When string `yaml:"when" json:"when"`
}

// ApprovalConfig is the configuration for approval steps.
type ApprovalConfig struct {
	// Approvers are the recipients notified with the approval link
	Approvers []string `yaml:"approvers" json:"approvers"`
}

// ParseDefinition parses a workflow definition from YAML bytes
// and validates it. JSON input also parses, being a YAML subset.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse workflow definition: %w", err)
	}

	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workflow definition: %w", err)
	}

	return &def, nil
}

// ParseFile reads and parses a workflow definition from a file.
func ParseFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}
	return ParseDefinition(data)
}

// Step returns the step with the given ID, or nil if no such step exists.
func (d *Definition) Step(id string) *StepDef {
	for i := range d.Steps {
		if d.Steps[i].ID == id {
			return &d.Steps[i]
		}
	}
	return nil
}

// decodeConfig converts a raw config map into a typed config struct.
// The round-trip through JSON handles both YAML- and JSON-sourced maps.
func decodeConfig(config map[string]any, out any) error {
	data, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("encoding step config: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding step config: %w", err)
	}
	return nil
}

// ParseFormConfig decodes a form step's config map.
// Returns a validation error when the fields list is absent.
func ParseFormConfig(config map[string]any) (*FormConfig, error) {
	var cfg FormConfig
	if err := decodeConfig(config, &cfg); err != nil {
		return nil, &errors.ValidationError{Field: "config", Message: err.Error()}
	}
	if _, ok := config["fields"]; !ok {
		return nil, &errors.ValidationError{Field: "config.fields", Message: "form config requires a 'fields' list"}
	}
	return &cfg, nil
}

// ParseAIGenerateConfig decodes an ai_generate step's config map.
// template_id, variables, and json_schema are all required.
func ParseAIGenerateConfig(config map[string]any) (*AIGenerateConfig, error) {
	var cfg AIGenerateConfig
	if err := decodeConfig(config, &cfg); err != nil {
		return nil, &errors.ValidationError{Field: "config", Message: err.Error()}
	}
	if cfg.TemplateID == "" {
		return nil, &errors.ValidationError{Field: "config.template_id", Message: "ai_generate config requires a 'template_id'"}
	}
	if _, ok := config["variables"]; !ok {
		return nil, &errors.ValidationError{Field: "config.variables", Message: "ai_generate config requires a 'variables' list"}
	}
	if _, ok := config["json_schema"]; !ok {
		return nil, &errors.ValidationError{Field: "config.json_schema", Message: "ai_generate config requires a 'json_schema'"}
	}
	return &cfg, nil
}

// ParseConditionalConfig decodes a conditional step's config map.
func ParseConditionalConfig(config map[string]any) (*ConditionalConfig, error) {
	var cfg ConditionalConfig
	if err := decodeConfig(config, &cfg); err != nil {
		return nil, &errors.ValidationError{Field: "config", Message: err.Error()}
	}
	if _, ok := config["when"]; !ok {
		return nil, &errors.ValidationError{Field: "config.when", Message: "conditional config requires a 'when' expression"}
	}
	return &cfg, nil
}

// ParseApprovalConfig decodes an approval step's config map.
func ParseApprovalConfig(config map[string]any) (*ApprovalConfig, error) {
	var cfg ApprovalConfig
	if err := decodeConfig(config, &cfg); err != nil {
		return nil, &errors.ValidationError{Field: "config", Message: err.Error()}
	}
	if _, ok := config["approvers"]; !ok {
		return nil, &errors.ValidationError{Field: "config.approvers", Message: "approval config requires an 'approvers' list"}
	}
	return &cfg, nil
}
