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

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tombee/baton/pkg/workflow"
)

// validateResult is the JSON shape printed by baton validate: the daemon's
// POST /v1/workflows/validate response shape, plus the parsed name and step
// count when the file is valid.
type validateResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
	Name   string   `json:"name,omitempty"`
	Steps  int      `json:"steps,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a workflow YAML file",
		Long: `Validate checks that a workflow file parses as YAML and satisfies the
workflow rules: a name, a start_step that exists, steps with known types,
and next references that resolve. Validation is local and does not need a
running daemon.`,
		Example: `  # Validate a workflow file
  baton validate onboarding.yaml

  # Use the result in a script
  baton validate onboarding.yaml | jq -e '.valid'`,
		Args: cobra.ExactArgs(1),
		RunE: runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := args[0]

	data, err := os.ReadFile(path)
	if err != nil {
		return &ExitError{
			Code:    ExitInvalidWorkflow,
			Message: fmt.Sprintf("failed to read workflow file: %v", err),
		}
	}

	result := validateResult{Valid: true, Errors: []string{}}
	if errs := workflow.ValidateYAML(data); len(errs) > 0 {
		result.Valid = false
		result.Errors = errs
	} else if def, err := workflow.ParseDefinition(data); err == nil {
		result.Name = def.Name
		result.Steps = len(def.Steps)
	}

	if err := printJSON(cmd, result); err != nil {
		return err
	}

	if !result.Valid {
		return &ExitError{Code: ExitInvalidWorkflow, Message: ""}
	}
	return nil
}
