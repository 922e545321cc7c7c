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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/httpclient"
)

// Compile-time interface assertion.
var _ Provider = (*OpenAIProvider)(nil)

const (
	// defaultOpenAIBaseURL is the base URL for the OpenAI API.
	defaultOpenAIBaseURL = "https://api.openai.com/v1"

	// defaultOpenAIModel is used when the config names no model.
	defaultOpenAIModel = "gpt-4"

	// defaultOpenAITimeout bounds a single HTTP exchange. Generation can
	// take a while; callers apply their own per-attempt deadline on top.
	defaultOpenAITimeout = 120 * time.Second
)

// systemPromptFormat is the instruction block sent ahead of every
// generation request. The JSON Schema is embedded verbatim.
const systemPromptFormat = `You are a helpful assistant that generates structured JSON responses.
You must respond with valid JSON that exactly matches the following JSON Schema:

%s

Requirements:
- Your response must be valid JSON
- All required fields must be present
- Field types must match the schema
- Do not include any text outside the JSON object
`

// OpenAIConfig configures an OpenAIProvider.
type OpenAIConfig struct {
	// APIKey authenticates requests, sent as a bearer token.
	APIKey string

	// BaseURL overrides the API endpoint. Any server speaking the chat
	// completions wire format works (Ollama, vLLM, proxies). Defaults to
	// the public OpenAI API.
	BaseURL string

	// Model names the model to generate with. Defaults to gpt-4.
	Model string

	// Timeout bounds one HTTP exchange. Defaults to 120s.
	Timeout time.Duration
}

// OpenAIProvider generates JSON objects through the OpenAI chat completions
// API, or any API that speaks the same wire format.
type OpenAIProvider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOpenAIProvider creates a new OpenAI provider instance.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, &errors.ConfigError{
			Key:    "provider.api_key",
			Reason: "API key is required for the openai provider",
		}
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	httpCfg := httpclient.DefaultConfig()
	httpCfg.UserAgent = "baton-openai/1.0"
	httpCfg.Timeout = defaultOpenAITimeout
	if cfg.Timeout > 0 {
		httpCfg.Timeout = cfg.Timeout
	}
	// The engine retries whole generation attempts; transport-level
	// retries would stack underneath them.
	httpCfg.RetryAttempts = 0

	client, err := httpclient.New(httpCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	return &OpenAIProvider{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		model:      model,
		httpClient: client,
	}, nil
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Generate renders one chat completion constrained to a JSON object.
func (p *OpenAIProvider) Generate(ctx context.Context, req GenerateRequest) (map[string]any, error) {
	requestID := uuid.New().String()
	start := time.Now()

	schemaJSON, err := json.MarshalIndent(req.Schema, "", "  ")
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:  "openai",
			Message:   fmt.Sprintf("failed to encode schema: %v", err),
			RequestID: requestID,
		}
	}

	apiReq := chatCompletionRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf(systemPromptFormat, schemaJSON)},
			{Role: "user", Content: buildUserPrompt(req.TemplateID, req.Variables)},
		},
		ResponseFormat: &chatResponseFormat{Type: "json_object"},
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:  "openai",
			Message:   fmt.Sprintf("failed to marshal request: %v", err),
			RequestID: requestID,
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:  "openai",
			Message:   fmt.Sprintf("failed to create request: %v", err),
			RequestID: requestID,
		}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("X-Request-ID", requestID)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &errors.TimeoutError{
				Operation: "openai generation",
				Duration:  time.Since(start).Round(time.Millisecond),
				Cause:     err,
			}
		}
		return nil, &errors.ProviderError{
			Provider:  "openai",
			Message:   fmt.Sprintf("request failed: %v", err),
			RequestID: requestID,
			Retryable: true,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:   "openai",
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("failed to read response: %v", err),
			RequestID:  requestID,
			Retryable:  true,
		}
	}

	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500

		var errResp chatErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Message != "" {
			return nil, &errors.ProviderError{
				Provider:   "openai",
				StatusCode: resp.StatusCode,
				Message:    errResp.Error.Message,
				RequestID:  requestID,
				Retryable:  retryable,
			}
		}
		return nil, &errors.ProviderError{
			Provider:   "openai",
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("API request failed with status %d: %s", resp.StatusCode, string(respBody)),
			RequestID:  requestID,
			Retryable:  retryable,
		}
	}

	var apiResp chatCompletionResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, &errors.ProviderError{
			Provider:  "openai",
			Message:   fmt.Sprintf("failed to parse response: %v", err),
			RequestID: requestID,
		}
	}

	if len(apiResp.Choices) == 0 || apiResp.Choices[0].Message.Content == "" {
		return nil, &errors.ProviderError{
			Provider:  "openai",
			Message:   "empty response from provider",
			RequestID: requestID,
		}
	}

	object, err := ExtractObject(apiResp.Choices[0].Message.Content)
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:  "openai",
			Message:   fmt.Sprintf("failed to parse model output: %v", err),
			RequestID: requestID,
		}
	}

	return object, nil
}

// buildUserPrompt names the template and lists its variables, one line per
// entry in sorted order.
func buildUserPrompt(templateID string, variables map[string]any) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Template: %s\n\nVariables:\n", templateID)
	for _, k := range sortedKeys(variables) {
		fmt.Fprintf(&sb, "- %s: %v\n", k, variables[k])
	}
	sb.WriteString("\nGenerate a response matching the required JSON schema.")
	return sb.String()
}

// chatCompletionRequest is the request body for the chat completions API.
type chatCompletionRequest struct {
	Model          string              `json:"model"`
	Messages       []chatMessage       `json:"messages"`
	ResponseFormat *chatResponseFormat `json:"response_format,omitempty"`
}

// chatMessage is one message in the conversation.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponseFormat constrains the response shape.
type chatResponseFormat struct {
	Type string `json:"type"`
}

// chatCompletionResponse is the response body from the chat completions API.
type chatCompletionResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

// chatChoice is one completion choice.
type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// chatErrorResponse is an error response from the chat completions API.
type chatErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
