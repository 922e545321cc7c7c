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

func TestEvaluator_Comparisons(t *testing.T) {
	e := New()
	namespace := map[string]any{
		"engagement_score": 82,
		"tier":             "gold",
		"intent":           true,
		"items":            []any{"a", "b"},
		"empty":            []any{},
	}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"greater than true", "engagement_score > 75", true},
		{"greater than false", "engagement_score > 99", false},
		{"equality", `tier == "gold"`, true},
		{"inequality", `tier != "silver"`, true},
		{"python and with True literal", "engagement_score > 75 and intent == True", true},
		{"python or", "engagement_score > 99 or intent", true},
		{"not", "not intent", false},
		{"membership", `tier in ["gold", "platinum"]`, true},
		{"membership false", `tier in ["silver"]`, false},
		{"ternary", "engagement_score > 75 ? true : false", true},
		{"arithmetic", "engagement_score * 2 > 150", true},
		{"len function", "len(items) == 2", true},
		{"len of empty", "len(empty) == 0", true},
		{"min function", "min(engagement_score, 100) == 82", true},
		{"max function", "max(engagement_score, 100) == 100", true},
		{"abs function", "abs(0 - 5) == 5", true},
		{"int of string", `int("42") == 42`, true},
		{"float comparison", `float("0.5") < 1.0`, true},
		{"str conversion", `str(82) == "82"`, true},
		{"bool truthiness", "bool(items)", true},
		{"bool of empty", "bool(empty)", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Evaluate(tt.expr, namespace)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluator_TruthinessCoercion(t *testing.T) {
	e := New()
	namespace := map[string]any{
		"count":    3,
		"zero":     0,
		"name":     "Alice",
		"blank":    "",
		"items":    []any{1},
		"nothing":  nil,
		"settings": map[string]any{"a": 1},
	}

	tests := []struct {
		expr string
		want bool
	}{
		{"count", true},
		{"zero", false},
		{"name", true},
		{"blank", false},
		{"items", true},
		{"settings", true},
		{"None", false},
		{"count + 1", true},
		{"count - 3", false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := e.Evaluate(tt.expr, namespace)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got, "truthiness of %q", tt.expr)
		})
	}
}

func TestEvaluator_UndefinedName(t *testing.T) {
	e := New()

	_, err := e.Evaluate("missing_variable > 1", map[string]any{"present": 1})
	require.Error(t, err)

	var undefined *errors.UndefinedNameError
	require.ErrorAs(t, err, &undefined)
	assert.Equal(t, "missing_variable", undefined.Name)
	assert.Contains(t, err.Error(), "not defined")
}

func TestEvaluator_SandboxViolationsSurface(t *testing.T) {
	e := New()
	namespace := map[string]any{"x": 1}

	_, err := e.Evaluate("x.__class__", namespace)
	require.Error(t, err)
	assert.True(t, errors.IsSecurity(err))

	_, err = e.Evaluate(strings.Repeat("x", 300), namespace)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))

	_, err = e.Evaluate("", namespace)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expression cannot be empty")
}

func TestEvaluator_SyntaxError(t *testing.T) {
	e := New()

	_, err := e.Evaluate("x >>> 1", map[string]any{"x": 1})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Contains(t, err.Error(), "Invalid expression syntax")
}

func TestEvaluator_RuntimeTypeError(t *testing.T) {
	e := New()

	// Comparing a string with a number is a runtime failure, not a panic.
	_, err := e.Evaluate("tier > 5", map[string]any{"tier": "gold"})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestEvaluator_LiteralAliasesCannotBeShadowed(t *testing.T) {
	e := New()

	// A context variable named True does not override the literal.
	got, err := e.Evaluate("True", map[string]any{"True": false})
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEvaluator_ContextMayShadowFunctions(t *testing.T) {
	e := New()

	// Symbol-table semantics: a variable named len hides the function.
	got, err := e.Evaluate("len == 7", map[string]any{"len": 7})
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEvaluator_CacheKeyedByNamespaceShape(t *testing.T) {
	e := New()

	_, err := e.Evaluate("a > 1", map[string]any{"a": 2})
	require.NoError(t, err)
	assert.Equal(t, 1, e.CacheSize())

	// Same expression, same shape: cache hit.
	_, err = e.Evaluate("a > 1", map[string]any{"a": 5})
	require.NoError(t, err)
	assert.Equal(t, 1, e.CacheSize())

	// Same expression, different shape: separate entry, and the unknown
	// name is still caught.
	_, err = e.Evaluate("a > 1", map[string]any{"a": 2, "b": 3})
	require.NoError(t, err)
	assert.Equal(t, 2, e.CacheSize())

	_, err = e.Evaluate("a > 1", map[string]any{"b": 3})
	require.Error(t, err)
	assert.True(t, errors.IsUndefinedName(err))

	e.ClearCache()
	assert.Equal(t, 0, e.CacheSize())
}

func TestEvaluator_NilValuesEvaluate(t *testing.T) {
	e := New()

	got, err := e.Evaluate("approved == None", map[string]any{"approved": nil})
	require.NoError(t, err)
	assert.True(t, got)
}
