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

// Package schema validates AI-generated output against the JSON Schema a
// workflow step declares. Schemas are compiled once and cached, since the
// same step schema is checked on every generation attempt.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/tombee/baton/pkg/errors"
)

// Validator compiles JSON Schemas and validates values against them.
// Compiled schemas are cached keyed by their canonical JSON encoding.
// Safe for concurrent use.
type Validator struct {
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// New creates a schema validator with an empty compile cache.
func New() *Validator {
	return &Validator{
		cache: make(map[string]*jsonschema.Schema),
	}
}

// Validate checks that data conforms to the given JSON Schema document.
// A malformed schema and a nonconforming value both surface as a
// ValidationError; the two cases are distinguished by the Field.
func (v *Validator) Validate(schemaDoc map[string]any, data any) error {
	compiled, err := v.compile(schemaDoc)
	if err != nil {
		return &errors.ValidationError{
			Field:   "json_schema",
			Message: fmt.Sprintf("invalid schema: %v", err),
		}
	}

	if err := compiled.Validate(normalize(data)); err != nil {
		return &errors.ValidationError{
			Field:   "output",
			Message: flattenMessage(err),
		}
	}

	return nil
}

// compile returns the compiled schema for a document, compiling and caching
// it on first use.
func (v *Validator) compile(schemaDoc map[string]any) (*jsonschema.Schema, error) {
	key, err := json.Marshal(schemaDoc)
	if err != nil {
		return nil, fmt.Errorf("encoding schema: %w", err)
	}

	v.mu.RLock()
	compiled, ok := v.cache[string(key)]
	v.mu.RUnlock()
	if ok {
		return compiled, nil
	}

	// Round-trip through the library's decoder so numeric schema keywords
	// (multipleOf, minimum, ...) carry the precision the compiler expects.
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(key)))
	if err != nil {
		return nil, fmt.Errorf("decoding schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("adding schema resource: %w", err)
	}
	compiled, err = compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compiling schema: %w", err)
	}

	v.mu.Lock()
	v.cache[string(key)] = compiled
	v.mu.Unlock()

	return compiled, nil
}

// CacheSize returns the number of cached compiled schemas.
func (v *Validator) CacheSize() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.cache)
}

// normalize round-trips a value through JSON so the validator sees the
// decoded shape it expects. Provider output is usually map[string]any
// already, but values assembled in Go code may hold ints or typed slices.
func normalize(data any) any {
	raw, err := json.Marshal(data)
	if err != nil {
		return data
	}
	decoded, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return data
	}
	return decoded
}

// flattenMessage renders a validation failure on a single line so it can be
// stored in run-step history and returned in API error bodies.
func flattenMessage(err error) string {
	msg := err.Error()
	msg = strings.ReplaceAll(msg, "\n", "; ")
	return strings.Join(strings.Fields(msg), " ")
}
