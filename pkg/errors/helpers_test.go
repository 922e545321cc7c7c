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
	"testing"
	"time"

	batonerrors "github.com/tombee/baton/pkg/errors"
)

func TestWrap(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
		wantNil bool
		wantMsg string
	}{
		{
			name:    "wraps error with context",
			err:     errors.New("original error"),
			message: "loading workflow",
			wantMsg: "loading workflow: original error",
		},
		{
			name:    "returns nil for nil error",
			err:     nil,
			message: "context",
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := batonerrors.Wrap(tt.err, tt.message)
			if tt.wantNil {
				if got != nil {
					t.Errorf("Wrap() = %v, want nil", got)
				}
				return
			}
			if got.Error() != tt.wantMsg {
				t.Errorf("Wrap() = %q, want %q", got.Error(), tt.wantMsg)
			}
		})
	}
}

func TestWrapf(t *testing.T) {
	err := errors.New("parse error")
	got := batonerrors.Wrapf(err, "loading file %s", "onboarding.yaml")
	want := "loading file onboarding.yaml: parse error"
	if got.Error() != want {
		t.Errorf("Wrapf() = %q, want %q", got.Error(), want)
	}

	if batonerrors.Wrapf(nil, "context %d", 1) != nil {
		t.Error("Wrapf(nil) should return nil")
	}
}

func TestWrap_PreservesErrorsIs(t *testing.T) {
	sentinel := errors.New("sentinel")
	wrapped := batonerrors.Wrap(sentinel, "context")

	if !errors.Is(wrapped, sentinel) {
		t.Error("wrapped error should match sentinel via errors.Is")
	}
}

func TestIsValidation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"validation error", &batonerrors.ValidationError{Message: "bad"}, true},
		{"security error", &batonerrors.SecurityError{Message: "rejected"}, true},
		{"undefined name error", &batonerrors.UndefinedNameError{Name: "x"}, true},
		{"wrapped validation error", batonerrors.Wrap(&batonerrors.ValidationError{Message: "bad"}, "resuming"), true},
		{"not found error", &batonerrors.NotFoundError{Resource: "run", ID: "x"}, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := batonerrors.IsValidation(tt.err); got != tt.want {
				t.Errorf("IsValidation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsNotFound(t *testing.T) {
	nf := &batonerrors.NotFoundError{Resource: "workflow", ID: "ghost"}

	if !batonerrors.IsNotFound(nf) {
		t.Error("IsNotFound should match NotFoundError")
	}
	if !batonerrors.IsNotFound(batonerrors.Wrap(nf, "starting run")) {
		t.Error("IsNotFound should match through wrapping")
	}
	if batonerrors.IsNotFound(errors.New("boom")) {
		t.Error("IsNotFound should not match plain errors")
	}
}

func TestIsConflict(t *testing.T) {
	ce := &batonerrors.ConflictError{Resource: "run", ID: "x", Reason: "already completed"}

	if !batonerrors.IsConflict(ce) {
		t.Error("IsConflict should match ConflictError")
	}
	if batonerrors.IsConflict(&batonerrors.ValidationError{Message: "x"}) {
		t.Error("IsConflict should not match ValidationError")
	}
}

func TestIsSecurity(t *testing.T) {
	if !batonerrors.IsSecurity(&batonerrors.SecurityError{Message: "x"}) {
		t.Error("IsSecurity should match SecurityError")
	}
	if batonerrors.IsSecurity(&batonerrors.UndefinedNameError{Name: "x"}) {
		t.Error("IsSecurity should not match UndefinedNameError")
	}
}

func TestIsUndefinedName(t *testing.T) {
	if !batonerrors.IsUndefinedName(&batonerrors.UndefinedNameError{Name: "x"}) {
		t.Error("IsUndefinedName should match UndefinedNameError")
	}
	if batonerrors.IsUndefinedName(&batonerrors.SecurityError{Message: "x"}) {
		t.Error("IsUndefinedName should not match SecurityError")
	}
}

func TestIsTimeout(t *testing.T) {
	te := &batonerrors.TimeoutError{Operation: "provider request", Duration: time.Second}

	if !batonerrors.IsTimeout(te) {
		t.Error("IsTimeout should match TimeoutError")
	}
	if !batonerrors.IsTimeout(batonerrors.Wrap(te, "executing step")) {
		t.Error("IsTimeout should match through wrapping")
	}
}

func TestIsConfig(t *testing.T) {
	ce := &batonerrors.ConfigError{Key: "api_key", Reason: "must not be empty"}

	if !batonerrors.IsConfig(ce) {
		t.Error("IsConfig should match ConfigError")
	}
	if batonerrors.IsConfig(errors.New("boom")) {
		t.Error("IsConfig should not match plain errors")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"retryable provider error", &batonerrors.ProviderError{Provider: "mock", Message: "x", Retryable: true}, true},
		{"non-retryable provider error", &batonerrors.ProviderError{Provider: "mock", Message: "x"}, false},
		{"timeout", &batonerrors.TimeoutError{Operation: "x", Duration: time.Second}, true},
		{"validation", &batonerrors.ValidationError{Message: "x"}, false},
		{"unclassified error defaults retryable", errors.New("connection reset"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := batonerrors.IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}
