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

package llm

import (
	"reflect"
	"testing"
)

func TestExtractObject(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    map[string]any
		wantErr bool
	}{
		{
			name:  "bare object",
			input: `{"title": "Hello"}`,
			want:  map[string]any{"title": "Hello"},
		},
		{
			name:  "object with surrounding whitespace",
			input: "\n\t {\"a\": 1} \n",
			want:  map[string]any{"a": float64(1)},
		},
		{
			name:  "json fenced block",
			input: "Here you go:\n```json\n{\"title\": \"Hello\"}\n```\nLet me know!",
			want:  map[string]any{"title": "Hello"},
		},
		{
			name:  "plain fenced block",
			input: "```\n{\"title\": \"Hello\"}\n```",
			want:  map[string]any{"title": "Hello"},
		},
		{
			name:  "object embedded in prose",
			input: `The result is {"title": "Hello"} as requested.`,
			want:  map[string]any{"title": "Hello"},
		},
		{
			name:  "object with trailing prose",
			input: `{"title": "Hello"} — hope that helps`,
			want:  map[string]any{"title": "Hello"},
		},
		{
			name:  "braces inside string values",
			input: `Sure: {"text": "a { nested } brace", "n": 2} done`,
			want:  map[string]any{"text": "a { nested } brace", "n": float64(2)},
		},
		{
			name:  "nested arrays and objects",
			input: `{"a": [1, 2, {"b": "c"}]}`,
			want:  map[string]any{"a": []any{float64(1), float64(2), map[string]any{"b": "c"}}},
		},
		{
			name:    "top-level array rejected",
			input:   `[1, 2, 3]`,
			wantErr: true,
		},
		{
			name:    "no json at all",
			input:   "I am sorry, I cannot help with that.",
			wantErr: true,
		},
		{
			name:    "empty input",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractObject(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("failed to extract: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
