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

	"github.com/spf13/cobra"

	"github.com/tombee/baton/internal/client"
)

// NewResumeCommand creates the resume command.
func NewResumeCommand() *cobra.Command {
	var (
		inputArgs  []string
		inputsJSON string
		approve    bool
		reject     bool
		comments   string
	)

	cmd := &cobra.Command{
		Use:   "resume <run-id>",
		Short: "Resume a paused run",
		Long: `Resume continues a run that is waiting for input. A run paused on a form
step takes inputs (--input/--inputs-json); a run paused on an approval step
takes a decision (--approve or --reject, optionally with --comments). The
two are mutually exclusive, matching what the paused step expects.`,
		Example: `  # Answer a form step
  baton resume run-42 --input name=Ada

  # Approve an approval step
  baton resume run-42 --approve --comments "ship it"

  # Reject it
  baton resume run-42 --reject --comments "needs a second reviewer"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResume(cmd, args[0], inputArgs, inputsJSON, approve, reject, comments)
		},
	}

	cmd.Flags().StringArrayVar(&inputArgs, "input", nil, "Step input as key=value (repeatable)")
	cmd.Flags().StringVar(&inputsJSON, "inputs-json", "", "Step inputs as a JSON object")
	cmd.Flags().BoolVar(&approve, "approve", false, "Approve the pending approval step")
	cmd.Flags().BoolVar(&reject, "reject", false, "Reject the pending approval step")
	cmd.Flags().StringVar(&comments, "comments", "", "Comments to record with the approval decision")

	return cmd
}

func runResume(cmd *cobra.Command, runID string, inputArgs []string, inputsJSON string, approve, reject bool, comments string) error {
	if approve && reject {
		return fmt.Errorf("cannot use --approve and --reject together")
	}

	decision := approve || reject
	if comments != "" && !decision {
		return fmt.Errorf("--comments requires --approve or --reject")
	}

	inputs, err := parseInputs(inputArgs, inputsJSON)
	if err != nil {
		return err
	}

	if len(inputs) > 0 && decision {
		return fmt.Errorf("cannot provide both inputs and an approval decision")
	}
	if len(inputs) == 0 && !decision {
		return fmt.Errorf("must provide inputs (--input/--inputs-json) or a decision (--approve/--reject)")
	}

	req := client.ResumeRunRequest{}
	switch {
	case approve:
		req.Approval = "approved"
		req.Comments = comments
	case reject:
		req.Approval = "rejected"
		req.Comments = comments
	default:
		req.Inputs = inputs
	}

	c, err := apiClient()
	if err != nil {
		return err
	}

	run, err := c.ResumeRun(cmd.Context(), runID, req)
	if err != nil {
		return err
	}

	return printJSON(cmd, run)
}
