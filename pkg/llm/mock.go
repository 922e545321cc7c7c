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
	"context"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/tombee/baton/pkg/errors"
)

// Compile-time interface assertion.
var _ Provider = (*MockProvider)(nil)

// MockMode selects how the mock provider behaves.
type MockMode string

const (
	// MockSuccess generates an object satisfying the request schema.
	MockSuccess MockMode = "success"

	// MockSchemaViolation returns an object missing the schema's required
	// fields.
	MockSchemaViolation MockMode = "schema_violation"

	// MockTimeout fails every call with a TimeoutError.
	MockTimeout MockMode = "timeout"

	// MockTransientError fails the first call with a retryable provider
	// error and succeeds afterwards.
	MockTransientError MockMode = "transient_error"
)

// MockProvider returns deterministic responses for testing. Generation is
// seeded and walks schema properties in sorted order, so a given seed and
// schema always produce the same object.
type MockProvider struct {
	mode MockMode

	mu        sync.Mutex
	rng       *rand.Rand
	callCount int
}

// NewMockProvider creates a mock provider in the given mode.
func NewMockProvider(mode MockMode, seed int64) *MockProvider {
	return &MockProvider{
		mode: mode,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// Name returns the provider identifier.
func (p *MockProvider) Name() string {
	return "mock"
}

// CallCount reports how many times Generate has been called.
func (p *MockProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.callCount
}

// Generate produces a response according to the configured mode.
func (p *MockProvider) Generate(ctx context.Context, req GenerateRequest) (map[string]any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.callCount++

	switch p.mode {
	case MockTimeout:
		return nil, &errors.TimeoutError{
			Operation: "mock generation",
			Duration:  contextBudget(ctx),
		}
	case MockTransientError:
		if p.callCount == 1 {
			return nil, &errors.ProviderError{
				Provider:   "mock",
				StatusCode: http.StatusServiceUnavailable,
				Message:    "transient error (will succeed on retry)",
				Retryable:  true,
			}
		}
	case MockSchemaViolation:
		return map[string]any{"invalid": "response"}, nil
	}

	return p.generateObject(req.Schema)
}

func (p *MockProvider) generateObject(schema map[string]any) (map[string]any, error) {
	if t, _ := schema["type"].(string); t != "object" {
		return nil, &errors.ProviderError{
			Provider: "mock",
			Message:  "only object schemas are supported",
		}
	}
	return p.objectValue(schema), nil
}

func (p *MockProvider) objectValue(schema map[string]any) map[string]any {
	properties, _ := schema["properties"].(map[string]any)
	required := stringSet(schema["required"])

	result := make(map[string]any, len(properties))
	for _, name := range sortedKeys(properties) {
		// Required properties always appear; optional ones usually do.
		if required[name] || p.rng.Float64() > 0.3 {
			propSchema, _ := properties[name].(map[string]any)
			result[name] = p.value(propSchema)
		}
	}
	return result
}

func (p *MockProvider) value(schema map[string]any) any {
	switch t, _ := schema["type"].(string); t {
	case "string":
		return fmt.Sprintf("mock_value_%d", p.rng.Intn(100)+1)
	case "integer":
		return p.rng.Intn(100) + 1
	case "number":
		return math.Round(p.rng.Float64()*100*100) / 100
	case "boolean":
		return p.rng.Intn(2) == 0
	case "array":
		items, _ := schema["items"].(map[string]any)
		values := make([]any, p.rng.Intn(3)+1)
		for i := range values {
			values[i] = p.value(items)
		}
		return values
	case "object":
		return p.objectValue(schema)
	default:
		return nil
	}
}

// contextBudget reports the context's unexpired budget, used to fill the
// timeout message the same way a real lapsed deadline would.
func contextBudget(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		return time.Until(deadline).Round(time.Millisecond)
	}
	return 0
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func stringSet(v any) map[string]bool {
	set := make(map[string]bool)
	switch list := v.(type) {
	case []any:
		for _, item := range list {
			if s, ok := item.(string); ok {
				set[s] = true
			}
		}
	case []string:
		for _, s := range list {
			set[s] = true
		}
	}
	return set
}
