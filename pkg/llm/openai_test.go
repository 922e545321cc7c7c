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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tombee/baton/pkg/errors"
)

// newOpenAITestProvider points a provider at a test server.
func newOpenAITestProvider(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := NewOpenAIProvider(OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "gpt-4o-mini",
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	return p
}

func chatReply(content string) string {
	reply := chatCompletionResponse{
		ID:    "chatcmpl-1",
		Model: "gpt-4o-mini",
		Choices: []chatChoice{
			{Message: chatMessage{Role: "assistant", Content: content}, FinishReason: "stop"},
		},
	}
	data, _ := json.Marshal(reply)
	return string(data)
}

func TestNewOpenAIProviderRequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{})
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
	var cfgErr *errors.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("expected config error, got %v", err)
	}
}

func TestOpenAIGenerate(t *testing.T) {
	var captured chatCompletionRequest
	var requestID string

	p := newOpenAITestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("expected /chat/completions, got %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("expected bearer auth, got %q", auth)
		}
		requestID = r.Header.Get("X-Request-ID")

		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chatReply(`{"title": "Hello", "body": "World"}`)))
	})

	output, err := p.Generate(context.Background(), GenerateRequest{
		TemplateID: "article-draft",
		Variables:  map[string]any{"topic": "go", "audience": "engineers"},
		Schema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"title": map[string]any{"type": "string"}},
			"required":   []any{"title"},
		},
	})
	if err != nil {
		t.Fatalf("failed to generate: %v", err)
	}

	if output["title"] != "Hello" || output["body"] != "World" {
		t.Errorf("unexpected output: %v", output)
	}
	if requestID == "" {
		t.Error("expected a request id header")
	}

	if captured.Model != "gpt-4o-mini" {
		t.Errorf("expected model gpt-4o-mini, got %s", captured.Model)
	}
	if captured.ResponseFormat == nil || captured.ResponseFormat.Type != "json_object" {
		t.Errorf("expected json_object response format, got %+v", captured.ResponseFormat)
	}
	if len(captured.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(captured.Messages))
	}

	system := captured.Messages[0]
	if system.Role != "system" {
		t.Errorf("expected system role, got %s", system.Role)
	}
	if !strings.Contains(system.Content, `"title"`) {
		t.Error("expected schema embedded in system prompt")
	}
	if !strings.Contains(system.Content, "All required fields must be present") {
		t.Error("expected requirements block in system prompt")
	}

	user := captured.Messages[1]
	if user.Role != "user" {
		t.Errorf("expected user role, got %s", user.Role)
	}
	if !strings.Contains(user.Content, "Template: article-draft") {
		t.Errorf("expected template name in user prompt, got %q", user.Content)
	}
	if !strings.Contains(user.Content, "- topic: go") {
		t.Errorf("expected variable line in user prompt, got %q", user.Content)
	}
}

func TestOpenAIGenerateFencedOutput(t *testing.T) {
	p := newOpenAITestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatReply("```json\n{\"title\": \"Hi\"}\n```")))
	})

	output, err := p.Generate(context.Background(), GenerateRequest{TemplateID: "t"})
	if err != nil {
		t.Fatalf("failed to generate: %v", err)
	}
	if output["title"] != "Hi" {
		t.Errorf("expected fenced JSON to be extracted, got %v", output)
	}
}

func TestOpenAIGenerateErrorStatuses(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusInternalServerError, true},
		{"service unavailable", http.StatusServiceUnavailable, true},
		{"bad request", http.StatusBadRequest, false},
		{"unauthorized", http.StatusUnauthorized, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newOpenAITestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error": {"type": "api_error", "message": "nope"}}`))
			})

			_, err := p.Generate(context.Background(), GenerateRequest{TemplateID: "t"})
			if err == nil {
				t.Fatal("expected error")
			}

			var provErr *errors.ProviderError
			if !errors.As(err, &provErr) {
				t.Fatalf("expected provider error, got %v", err)
			}
			if provErr.StatusCode != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, provErr.StatusCode)
			}
			if provErr.Message != "nope" {
				t.Errorf("expected API error message, got %q", provErr.Message)
			}
			if provErr.Retryable != tt.retryable {
				t.Errorf("expected retryable=%v, got %v", tt.retryable, provErr.Retryable)
			}
			if provErr.RequestID == "" {
				t.Error("expected a request id on the error")
			}
		})
	}
}

func TestOpenAIGenerateTimeout(t *testing.T) {
	p := newOpenAITestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(chatReply(`{}`)))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := p.Generate(ctx, GenerateRequest{TemplateID: "t"})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.IsTimeout(err) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	var timeoutErr *errors.TimeoutError
	if errors.As(err, &timeoutErr) && timeoutErr.Operation != "openai generation" {
		t.Errorf("expected openai generation operation, got %q", timeoutErr.Operation)
	}
}

func TestOpenAIGenerateEmptyChoices(t *testing.T) {
	p := newOpenAITestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "chatcmpl-1", "choices": []}`))
	})

	_, err := p.Generate(context.Background(), GenerateRequest{TemplateID: "t"})
	if err == nil {
		t.Fatal("expected error for empty choices")
	}
	if !strings.Contains(err.Error(), "empty response") {
		t.Errorf("expected empty response error, got %v", err)
	}
}

func TestOpenAIGenerateNonJSONOutput(t *testing.T) {
	p := newOpenAITestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatReply("I am sorry, I cannot help with that.")))
	})

	_, err := p.Generate(context.Background(), GenerateRequest{TemplateID: "t"})
	if err == nil {
		t.Fatal("expected error for non-JSON output")
	}
	if !strings.Contains(err.Error(), "failed to parse model output") {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestBuildUserPrompt(t *testing.T) {
	got := buildUserPrompt("tmpl", map[string]any{"b": "two", "a": 1})
	want := "Template: tmpl\n\nVariables:\n- a: 1\n- b: two\n\nGenerate a response matching the required JSON schema."
	if got != want {
		t.Errorf("unexpected prompt:\n%q\nwant:\n%q", got, want)
	}
}
