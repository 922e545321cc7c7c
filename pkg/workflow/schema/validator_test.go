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

package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/baton/pkg/errors"
)

func articleSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title":    map[string]any{"type": "string"},
			"body":     map[string]any{"type": "string"},
			"category": map[string]any{"type": "string", "enum": []any{"tech", "business"}},
			"words":    map[string]any{"type": "integer"},
		},
		"required": []any{"title", "body"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		schema  map[string]any
		data    any
		wantErr bool
		errPart string
	}{
		{
			name:   "conforming object",
			schema: articleSchema(),
			data: map[string]any{
				"title":    "Q3 Roadmap",
				"body":     "We plan to ship...",
				"category": "tech",
				"words":    float64(420),
			},
		},
		{
			name:    "missing required property",
			schema:  articleSchema(),
			data:    map[string]any{"title": "Q3 Roadmap"},
			wantErr: true,
			errPart: "body",
		},
		{
			name:    "wrong property type",
			schema:  articleSchema(),
			data:    map[string]any{"title": "Q3 Roadmap", "body": float64(7)},
			wantErr: true,
		},
		{
			name:    "enum violation",
			schema:  articleSchema(),
			data:    map[string]any{"title": "t", "body": "b", "category": "sports"},
			wantErr: true,
		},
		{
			name:    "non-object against object schema",
			schema:  articleSchema(),
			data:    "just a string",
			wantErr: true,
		},
		{
			name: "array items checked",
			schema: map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			data:    []any{"a", "b", float64(3)},
			wantErr: true,
		},
		{
			name:   "integer accepted for number",
			schema: map[string]any{"type": "number"},
			data:   float64(3),
		},
		{
			name:   "extra properties allowed by default",
			schema: articleSchema(),
			data: map[string]any{
				"title": "t",
				"body":  "b",
				"extra": "ignored",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			err := v.Validate(tt.schema, tt.data)

			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.True(t, errors.IsValidation(err), "expected a validation error, got %T", err)
			if tt.errPart != "" {
				assert.Contains(t, err.Error(), tt.errPart)
			}
		})
	}
}

func TestValidateGoShapedValues(t *testing.T) {
	// Values assembled in Go code carry ints and typed slices; they must
	// validate the same as their JSON-decoded equivalents.
	v := New()

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"count": map[string]any{"type": "integer"},
			"tags":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []any{"count"},
	}

	err := v.Validate(schema, map[string]any{
		"count": 12,
		"tags":  []string{"a", "b"},
	})
	assert.NoError(t, err)
}

func TestValidateMalformedSchema(t *testing.T) {
	v := New()

	err := v.Validate(map[string]any{"type": "not-a-real-type"}, map[string]any{})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Contains(t, err.Error(), "invalid schema")
}

func TestValidateCachesCompiledSchemas(t *testing.T) {
	v := New()
	schema := articleSchema()

	require.NoError(t, v.Validate(schema, map[string]any{"title": "t", "body": "b"}))
	require.NoError(t, v.Validate(schema, map[string]any{"title": "t2", "body": "b2"}))
	assert.Equal(t, 1, v.CacheSize())

	require.NoError(t, v.Validate(map[string]any{"type": "object"}, map[string]any{}))
	assert.Equal(t, 2, v.CacheSize())
}

func TestFlattenMessageSingleLine(t *testing.T) {
	v := New()

	err := v.Validate(articleSchema(), map[string]any{})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "\n")
}
