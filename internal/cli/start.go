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
	"github.com/spf13/cobra"

	"github.com/tombee/baton/internal/client"
)

// NewStartCommand creates the start command.
func NewStartCommand() *cobra.Command {
	var (
		inputArgs      []string
		inputsJSON     string
		idempotencyKey string
	)

	cmd := &cobra.Command{
		Use:   "start <workflow-id>",
		Short: "Start a workflow run",
		Long: `Start creates a run of the given workflow and advances it until it
completes, pauses for input or approval, or fails. The resulting run is
printed as JSON; a paused run shows status "waiting" and the step it is
waiting on.

Starting the same workflow with the same inputs returns the existing run
instead of creating a duplicate. Pass --idempotency-key to control the
deduplication key explicitly.`,
		Example: `  # Start a run with inline inputs
  baton start wf-123 --input name=Ada --input team=Research

  # Inputs as a JSON object
  baton start wf-123 --inputs-json '{"name": "Ada", "age": 36}'

  # Pin the idempotency key
  baton start wf-123 --idempotency-key deploy-2024-06-01`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd, args[0], inputArgs, inputsJSON, idempotencyKey)
		},
	}

	cmd.Flags().StringArrayVar(&inputArgs, "input", nil, "Run input as key=value (repeatable)")
	cmd.Flags().StringVar(&inputsJSON, "inputs-json", "", "Run inputs as a JSON object")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "Deduplication key (default: derived from workflow and inputs)")

	return cmd
}

func runStart(cmd *cobra.Command, workflowID string, inputArgs []string, inputsJSON, idempotencyKey string) error {
	inputs, err := parseInputs(inputArgs, inputsJSON)
	if err != nil {
		return err
	}

	c, err := apiClient()
	if err != nil {
		return err
	}

	run, err := c.StartRun(cmd.Context(), client.StartRunRequest{
		WorkflowID:     workflowID,
		Inputs:         inputs,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return err
	}

	return printJSON(cmd, run)
}
