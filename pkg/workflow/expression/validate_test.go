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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/baton/pkg/errors"
)

func TestValidate_Accepts(t *testing.T) {
	valid := []string{
		"engagement_score > 75",
		"engagement_score > 75 and intent == True",
		`tier in ["gold", "platinum"]`,
		"len(items) > 0",
		"price * 1.2 < budget",
		"3.14 < pi_estimate", // dot inside numeric literal
		"ready ? 1 : 0",
		"important_flag", // contains "import" as substring, not as word
		"not disabled",
	}

	for _, expr := range valid {
		t.Run(expr, func(t *testing.T) {
			assert.NoError(t, Validate(expr))
		})
	}
}

func TestValidate_EmptyExpression(t *testing.T) {
	for _, expr := range []string{"", "   ", "\t\n"} {
		err := Validate(expr)
		require.Error(t, err)
		assert.True(t, errors.IsValidation(err))
		assert.Contains(t, err.Error(), "Expression cannot be empty")
	}
}

func TestValidate_LengthLimit(t *testing.T) {
	// Exactly at the limit passes; one over fails.
	atLimit := "x == " + strings.Repeat("1", MaxExpressionLength-5)
	require.Len(t, atLimit, MaxExpressionLength)
	assert.NoError(t, Validate(atLimit))

	over := atLimit + "1"
	err := Validate(over)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Contains(t, err.Error(), "Expression exceeds maximum length of 256 characters")
}

func TestValidate_SecurityRejections(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want string
	}{
		{"attribute access", "user.name == 'x'", "Attribute access not allowed"},
		{"attribute access deep", "steps.check.result", "Attribute access not allowed"},
		{"dunder name", "__class__ == 1", "Double underscore"},
		{"dunder inside identifier", "a__b > 1", "Double underscore"},
		{"import statement", "import os", "Import not allowed"},
		{"import amid expression", "x and import y", "Import not allowed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.expr)
			require.Error(t, err)
			assert.True(t, errors.IsSecurity(err), "expected a security error, got %T", err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_NumericLiteralsPass(t *testing.T) {
	// The attribute-access pattern must not fire on decimals.
	assert.NoError(t, Validate("score > 99.5"))
	assert.NoError(t, Validate("0.5 < ratio and ratio < 1.5"))
}
