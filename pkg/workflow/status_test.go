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

import "testing"

func TestRunStatus_IsValid(t *testing.T) {
	for _, s := range []RunStatus{StatusRunning, StatusWaiting, StatusCompleted, StatusFailed, StatusCanceled} {
		if !s.IsValid() {
			t.Errorf("expected %s to be valid", s)
		}
	}
	if RunStatus("queued").IsValid() {
		t.Error("queued is not a run status")
	}
}

func TestRunStatus_IsTerminal(t *testing.T) {
	terminal := map[RunStatus]bool{
		StatusRunning:   false,
		StatusWaiting:   false,
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCanceled:  true,
	}
	for s, want := range terminal {
		if got := s.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", s, got, want)
		}
	}
}

func TestRunStatus_IsActive(t *testing.T) {
	active := map[RunStatus]bool{
		StatusRunning:   true,
		StatusWaiting:   true,
		StatusCompleted: false,
		StatusFailed:    false,
		StatusCanceled:  false,
	}
	for s, want := range active {
		if got := s.IsActive(); got != want {
			t.Errorf("%s.IsActive() = %v, want %v", s, got, want)
		}
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to RunStatus
		want     bool
	}{
		{StatusRunning, StatusWaiting, true},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusCanceled, true},
		{StatusWaiting, StatusRunning, true},
		{StatusWaiting, StatusCanceled, true},
		{StatusWaiting, StatusFailed, true},
		{StatusWaiting, StatusCompleted, false},
		{StatusCompleted, StatusRunning, false},
		{StatusCompleted, StatusCanceled, false},
		{StatusFailed, StatusRunning, false},
		{StatusCanceled, StatusRunning, false},
		{StatusCanceled, StatusCanceled, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
