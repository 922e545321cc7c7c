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

// Package executor implements the four step executors the engine routes to.
//
// Executors receive the run's context and the step's raw config map; configs
// are decoded at execution time, so a workflow with a malformed config is
// accepted at rest and fails only when the step runs. Executors write their
// results into the runtime context layer and signal the engine through a
// Result: either the run advances, or it pauses and waits for external input.
//
// Executors never touch the store. Persisting the context mutation and the
// history record is the engine's job, which keeps a failed step's work out
// of the database entirely.
package executor

import (
	"encoding/json"

	"github.com/tombee/baton/pkg/workflow"
)

// Waiting reasons reported on a pause.
const (
	// WaitingForForm marks a run paused on a form submission.
	WaitingForForm = "form"

	// WaitingForApproval marks a run paused on an approval decision.
	WaitingForApproval = "approval"

	// WaitingForManualFix marks a run paused after an ai_generate step
	// exhausted its retry budget.
	WaitingForManualFix = "manual_fix"
)

// Result is the outcome of one step execution. It is recorded verbatim as
// the step's history output, so the field layout is part of the API surface.
type Result struct {
	// Pause signals the engine to park the run in waiting state.
	Pause bool `json:"pause"`

	// WaitingFor names what a paused run is waiting on.
	WaitingFor string `json:"waiting_for,omitempty"`

	// Output is the generated object of a successful ai_generate step.
	Output map[string]any `json:"output,omitempty"`

	// Error carries the last attempt's failure when a step pauses for a
	// manual fix.
	Error string `json:"error,omitempty"`

	// RetryCount is the number of failed attempts an ai_generate step made
	// before this result.
	RetryCount *int `json:"retry_count,omitempty"`

	// FieldsSchema echoes the fields a form step collects.
	FieldsSchema []workflow.FormField `json:"fields_schema,omitempty"`

	// ApprovalToken is the token an approval decision must present.
	ApprovalToken string `json:"approval_token,omitempty"`

	// Approvers lists who was notified for an approval step.
	Approvers []string `json:"approvers,omitempty"`

	// Result is a conditional step's boolean outcome.
	Result *bool `json:"result,omitempty"`

	// Expression echoes the conditional expression that was evaluated.
	Expression string `json:"expression,omitempty"`
}

// AsMap renders the result as the JSON object recorded in run history.
// The round-trip normalizes typed fields into the shape they take after
// any store read, so history rows compare equal across backends.
func (r *Result) AsMap() map[string]any {
	data, err := json.Marshal(r)
	if err != nil {
		return map[string]any{"pause": r.Pause}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{"pause": r.Pause}
	}
	return out
}
