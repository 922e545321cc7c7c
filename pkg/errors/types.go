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

package errors

import (
	"fmt"
	"time"
)

// ValidationError reports invalid input: malformed workflow definitions,
// bad resume payloads, or form fields that fail their declared checks.
type ValidationError struct {
	Field   string // offending field, empty when the whole input is bad
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return e.Message
}

// ErrorType returns the error category for classification.
func (e *ValidationError) ErrorType() string { return "validation" }

// IsRetryable returns false; invalid input does not fix itself.
func (e *ValidationError) IsRetryable() bool { return false }

// NotFoundError reports a lookup that matched nothing.
type NotFoundError struct {
	Resource string // "workflow", "run", "step"
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrorType returns the error category for classification.
func (e *NotFoundError) ErrorType() string { return "not_found" }

// IsRetryable returns false; missing resources do not appear on retry.
func (e *NotFoundError) IsRetryable() bool { return false }

// ConflictError reports an operation that is valid in form but cannot be
// applied to the resource in its current state: resuming a run that is not
// waiting, cancelling a completed run, deleting a workflow with active runs.
type ConflictError struct {
	Resource string // "workflow", "run"
	ID       string
	Reason   string
}

func (e *ConflictError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s: %s", e.Resource, e.ID, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Resource, e.Reason)
}

// ErrorType returns the error category for classification.
func (e *ConflictError) ErrorType() string { return "conflict" }

// IsRetryable returns false; the caller must change the request, not repeat it.
func (e *ConflictError) IsRetryable() bool { return false }

// SecurityError reports an expression or payload that attempted something
// the evaluation sandbox forbids, such as attribute access, dunder names,
// or import statements.
type SecurityError struct {
	Message string
}

func (e *SecurityError) Error() string {
	return e.Message
}

// ErrorType returns the error category for classification.
func (e *SecurityError) ErrorType() string { return "security" }

// IsRetryable returns false.
func (e *SecurityError) IsRetryable() bool { return false }

// UndefinedNameError indicates an expression referenced a variable that
// does not exist in any context layer. It is reported distinctly from
// security violations so callers can tell a typo from an attack.
type UndefinedNameError struct {
	Name string // the variable that could not be resolved
}

func (e *UndefinedNameError) Error() string {
	return fmt.Sprintf("name %q is not defined", e.Name)
}

// ErrorType returns the error category for classification.
func (e *UndefinedNameError) ErrorType() string { return "undefined_name" }

// IsRetryable returns false.
func (e *UndefinedNameError) IsRetryable() bool { return false }

// ProviderError reports a failed model provider call. Retryable marks
// transient failures (rate limits, 5xx, network errors) for the engine's
// attempt loop; permanent refusals leave it false.
type ProviderError struct {
	Provider   string // "anthropic", "openai", "mock"
	StatusCode int    // HTTP status when the provider returned one
	Message    string
	RequestID  string // provider-side correlation id
	Retryable  bool
	Cause      error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("provider %s error", e.Provider)

	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s [HTTP %d]", msg, e.StatusCode)
	}

	msg = fmt.Sprintf("%s: %s", msg, e.Message)

	if e.RequestID != "" {
		msg = fmt.Sprintf("%s (request-id: %s)", msg, e.RequestID)
	}

	return msg
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *ProviderError) Unwrap() error { return e.Cause }

// ErrorType returns the error category for classification.
func (e *ProviderError) ErrorType() string { return "provider" }

// IsRetryable reports whether the failure is transient.
func (e *ProviderError) IsRetryable() bool { return e.Retryable }

// ConfigError reports unusable configuration: unreadable files, missing
// required settings, or values that fail validation.
type ConfigError struct {
	Key    string // "api_key", "store.path"
	Reason string
	Cause  error
}

func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *ConfigError) Unwrap() error { return e.Cause }

// ErrorType returns the error category for classification.
func (e *ConfigError) ErrorType() string { return "config" }

// IsRetryable returns false; configuration must be corrected by an operator.
func (e *ConfigError) IsRetryable() bool { return false }

// TimeoutError reports an operation that exceeded its time budget.
type TimeoutError struct {
	Operation string // "provider request", "expression evaluation"
	Duration  time.Duration
	Cause     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %v", e.Operation, e.Duration)
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *TimeoutError) Unwrap() error { return e.Cause }

// ErrorType returns the error category for classification.
func (e *TimeoutError) ErrorType() string { return "timeout" }

// IsRetryable returns true; timeouts are transient by nature.
func (e *TimeoutError) IsRetryable() bool { return true }
