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

package errors_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	batonerrors "github.com/tombee/baton/pkg/errors"
)

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *batonerrors.ValidationError
		wantMsg string
	}{
		{
			name: "with field",
			err: &batonerrors.ValidationError{
				Field:   "email",
				Message: "required field is missing",
			},
			wantMsg: "validation failed on email: required field is missing",
		},
		{
			name: "without field",
			err: &batonerrors.ValidationError{
				Message: "Required field 'name' is missing",
			},
			wantMsg: "Required field 'name' is missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("ValidationError.Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestNotFoundError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *batonerrors.NotFoundError
		wantMsg string
	}{
		{
			name: "workflow not found",
			err: &batonerrors.NotFoundError{
				Resource: "workflow",
				ID:       "employee_onboarding",
			},
			wantMsg: "workflow not found: employee_onboarding",
		},
		{
			name: "run not found",
			err: &batonerrors.NotFoundError{
				Resource: "run",
				ID:       "0e8dc2b1",
			},
			wantMsg: "run not found: 0e8dc2b1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("NotFoundError.Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestConflictError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *batonerrors.ConflictError
		wantMsg string
	}{
		{
			name: "run not waiting",
			err: &batonerrors.ConflictError{
				Resource: "run",
				ID:       "abc-123",
				Reason:   "is not waiting for input (status: running)",
			},
			wantMsg: "run abc-123: is not waiting for input (status: running)",
		},
		{
			name: "no id",
			err: &batonerrors.ConflictError{
				Resource: "workflow",
				Reason:   "has active runs",
			},
			wantMsg: "workflow: has active runs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("ConflictError.Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestSecurityError_Error(t *testing.T) {
	err := &batonerrors.SecurityError{Message: "Attribute access not allowed in expressions"}
	if got := err.Error(); got != "Attribute access not allowed in expressions" {
		t.Errorf("SecurityError.Error() = %q", got)
	}
}

func TestUndefinedNameError_Error(t *testing.T) {
	err := &batonerrors.UndefinedNameError{Name: "tier"}
	want := `name "tier" is not defined`
	if got := err.Error(); got != want {
		t.Errorf("UndefinedNameError.Error() = %q, want %q", got, want)
	}
}

func TestProviderError_Error(t *testing.T) {
	full := &batonerrors.ProviderError{
		Provider:   "openai",
		StatusCode: 429,
		Message:    "rate limit exceeded",
		RequestID:  "req_123",
		Retryable:  true,
	}
	want := "provider openai error [HTTP 429]: rate limit exceeded (request-id: req_123)"
	if got := full.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	// Status and request id are omitted when unknown.
	minimal := &batonerrors.ProviderError{Provider: "mock", Message: "connection failed"}
	want = "provider mock error: connection failed"
	if got := minimal.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("connection reset")
	tests := []struct {
		name string
		err  error
	}{
		{"provider", &batonerrors.ProviderError{Provider: "openai", Message: "request failed", Cause: cause}},
		{"config", &batonerrors.ConfigError{Reason: "unreadable", Cause: cause}},
		{"timeout", &batonerrors.TimeoutError{Operation: "provider request", Duration: time.Second, Cause: cause}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, cause) {
				t.Errorf("errors.Is failed to reach the cause through %T", tt.err)
			}
		})
	}
}

func TestConfigError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *batonerrors.ConfigError
		wantMsg string
	}{
		{
			name: "with key",
			err: &batonerrors.ConfigError{
				Key:    "provider.api_key",
				Reason: "must not be empty",
			},
			wantMsg: "config error at provider.api_key: must not be empty",
		},
		{
			name: "without key",
			err: &batonerrors.ConfigError{
				Reason: "file not found",
			},
			wantMsg: "config error: file not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("ConfigError.Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestTimeoutError_Error(t *testing.T) {
	err := &batonerrors.TimeoutError{
		Operation: "expression evaluation",
		Duration:  100 * time.Millisecond,
	}

	got := err.Error()
	if !strings.Contains(got, "expression evaluation") {
		t.Errorf("TimeoutError.Error() = %q, should contain operation", got)
	}
	if !strings.Contains(got, "100ms") {
		t.Errorf("TimeoutError.Error() = %q, should contain duration", got)
	}
}

func TestErrorType_Classification(t *testing.T) {
	tests := []struct {
		err       batonerrors.ErrorClassifier
		wantType  string
		retryable bool
	}{
		{&batonerrors.ValidationError{Message: "x"}, "validation", false},
		{&batonerrors.NotFoundError{Resource: "run", ID: "x"}, "not_found", false},
		{&batonerrors.ConflictError{Resource: "run", Reason: "x"}, "conflict", false},
		{&batonerrors.SecurityError{Message: "x"}, "security", false},
		{&batonerrors.UndefinedNameError{Name: "x"}, "undefined_name", false},
		{&batonerrors.ProviderError{Provider: "mock", Message: "x", Retryable: true}, "provider", true},
		{&batonerrors.ProviderError{Provider: "mock", Message: "x"}, "provider", false},
		{&batonerrors.ConfigError{Reason: "x"}, "config", false},
		{&batonerrors.TimeoutError{Operation: "x", Duration: time.Second}, "timeout", true},
	}

	for _, tt := range tests {
		t.Run(tt.wantType, func(t *testing.T) {
			if got := tt.err.ErrorType(); got != tt.wantType {
				t.Errorf("ErrorType() = %q, want %q", got, tt.wantType)
			}
			if got := tt.err.IsRetryable(); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestClassification_ThroughWrapping(t *testing.T) {
	inner := &batonerrors.NotFoundError{Resource: "workflow", ID: "missing"}
	wrapped := fmt.Errorf("starting run: %w", inner)

	var nf *batonerrors.NotFoundError
	if !errors.As(wrapped, &nf) {
		t.Fatal("expected errors.As to find NotFoundError through wrapping")
	}
	if nf.ID != "missing" {
		t.Errorf("expected ID 'missing', got %q", nf.ID)
	}
}
