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

// Package llm provides the model provider abstraction behind ai_generate
// steps. Providers produce JSON objects shaped by a caller-supplied JSON
// Schema; retry and schema enforcement are the engine's concern, so
// implementations surface one attempt's outcome and nothing more.
package llm

import "context"

// Provider defines the interface all model providers implement.
type Provider interface {
	// Name returns the unique identifier for this provider (e.g. "openai", "mock").
	Name() string

	// Generate produces a JSON object for the request. Implementations
	// return errors.TimeoutError when the context deadline lapses and
	// errors.ProviderError for API failures, with Retryable set when the
	// failure is worth another attempt.
	Generate(ctx context.Context, req GenerateRequest) (map[string]any, error)
}

// GenerateRequest contains everything a provider needs for one generation.
type GenerateRequest struct {
	// TemplateID names the prompt template to generate from.
	TemplateID string

	// Variables are listed in the prompt, one line per entry.
	Variables map[string]any

	// Schema is the JSON Schema the generated object must satisfy. It is
	// embedded in the prompt; enforcement happens after generation.
	Schema map[string]any
}
