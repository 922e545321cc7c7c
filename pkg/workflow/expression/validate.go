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

package expression

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tombee/baton/pkg/errors"
)

// MaxExpressionLength caps expression size to bound parser and VM work.
const MaxExpressionLength = 256

// EvaluationTimeout bounds the wall-clock time of a single evaluation.
const EvaluationTimeout = 100 * time.Millisecond

var (
	// attributeAccessPattern matches attribute access on identifiers.
	// Dots inside numeric literals (3.14) do not match.
	attributeAccessPattern = regexp.MustCompile(`[a-zA-Z_]\.`)

	// importPattern matches the import keyword as a word, so identifiers
	// like "important_flag" pass.
	importPattern = regexp.MustCompile(`\bimport\b`)
)

// Validate checks an expression against the sandbox rules before it is
// compiled. Size and emptiness problems are validation errors; attribute
// access, dunder names, and imports are security errors.
func Validate(expression string) error {
	if strings.TrimSpace(expression) == "" {
		return &errors.ValidationError{Message: "Expression cannot be empty"}
	}

	if len(expression) > MaxExpressionLength {
		return &errors.ValidationError{
			Message: fmt.Sprintf("Expression exceeds maximum length of %d characters", MaxExpressionLength),
		}
	}

	if strings.Contains(expression, "__") {
		return &errors.SecurityError{Message: "Double underscore names not allowed in expressions"}
	}

	if attributeAccessPattern.MatchString(expression) {
		return &errors.SecurityError{Message: "Attribute access not allowed in expressions"}
	}

	if importPattern.MatchString(expression) {
		return &errors.SecurityError{Message: "Import not allowed in expressions"}
	}

	return nil
}
