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

// RunStatus represents the lifecycle state of a workflow run.
type RunStatus string

// Run statuses
const (
	StatusRunning   RunStatus = "running"
	StatusWaiting   RunStatus = "waiting"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusCanceled  RunStatus = "canceled"
)

// Valid statuses for validation
var validStatuses = map[RunStatus]bool{
	StatusRunning:   true,
	StatusWaiting:   true,
	StatusCompleted: true,
	StatusFailed:    true,
	StatusCanceled:  true,
}

// IsValid checks if a status is valid.
func (s RunStatus) IsValid() bool {
	return validStatuses[s]
}

// IsTerminal returns true if the status is terminal (no further transitions).
func (s RunStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

// IsActive returns true for statuses that block workflow deletion and
// permit cancellation.
func (s RunStatus) IsActive() bool {
	return s == StatusRunning || s == StatusWaiting
}

// allowedTransitions maps each status to the statuses it may move to.
// Terminal statuses allow nothing.
var allowedTransitions = map[RunStatus]map[RunStatus]bool{
	StatusRunning: {
		StatusWaiting:   true,
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCanceled:  true,
	},
	StatusWaiting: {
		StatusRunning:  true,
		StatusFailed:   true,
		StatusCanceled: true,
	},
}

// CanTransition reports whether a run may move from one status to another.
func CanTransition(from, to RunStatus) bool {
	return allowedTransitions[from][to]
}

// StepStatus represents the recorded outcome of a single step execution.
// Step history is append-only; a step record never changes status.
type StepStatus string

// Step statuses
const (
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)
