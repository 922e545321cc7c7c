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

// ErrorClassifier is implemented by every error type in this package.
// It drives retry decisions and the HTTP status mapping without callers
// type-switching over concrete types.
type ErrorClassifier interface {
	error

	// ErrorType names the error category: "validation", "not_found",
	// "conflict", "timeout", "provider", and so on.
	ErrorType() string

	// IsRetryable reports whether repeating the operation can succeed.
	IsRetryable() bool
}

// Compile-time checks that all error types classify themselves.
var (
	_ ErrorClassifier = (*ValidationError)(nil)
	_ ErrorClassifier = (*NotFoundError)(nil)
	_ ErrorClassifier = (*ConflictError)(nil)
	_ ErrorClassifier = (*SecurityError)(nil)
	_ ErrorClassifier = (*UndefinedNameError)(nil)
	_ ErrorClassifier = (*ProviderError)(nil)
	_ ErrorClassifier = (*ConfigError)(nil)
	_ ErrorClassifier = (*TimeoutError)(nil)
)
