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
	"errors"
	"fmt"
)

// Wrap annotates err with context, or returns nil when err is nil:
//
//	if err := store.SaveRun(ctx, run); err != nil {
//	    return errors.Wrap(err, "persisting run")
//	}
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is Wrap with a format string:
//
//	return errors.Wrapf(err, "loading workflow %s", id)
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is, As, Unwrap, and New re-export their standard library counterparts so
// importers of this package do not also need a renamed stdlib errors import.

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

func Unwrap(err error) error {
	return errors.Unwrap(err)
}

func New(message string) error {
	return errors.New(message)
}

// IsValidation reports whether err's tree contains a ValidationError,
// SecurityError, or UndefinedNameError. These all indicate a request
// that is wrong as written and map to HTTP 400.
func IsValidation(err error) bool {
	var ve *ValidationError
	var se *SecurityError
	var ue *UndefinedNameError
	return errors.As(err, &ve) || errors.As(err, &se) || errors.As(err, &ue)
}

// IsNotFound reports whether err's tree contains a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err's tree contains a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsSecurity reports whether err's tree contains a SecurityError.
func IsSecurity(err error) bool {
	var se *SecurityError
	return errors.As(err, &se)
}

// IsUndefinedName reports whether err's tree contains an UndefinedNameError.
func IsUndefinedName(err error) bool {
	var ue *UndefinedNameError
	return errors.As(err, &ue)
}

// IsTimeout reports whether err's tree contains a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsConfig reports whether err's tree contains a ConfigError.
func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsRetryable reports whether err's tree contains an error that
// classifies itself as retryable. Unclassified errors are treated
// as retryable so transient infrastructure failures get another shot.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var classifier ErrorClassifier
	if errors.As(err, &classifier) {
		return classifier.IsRetryable()
	}
	return true
}
