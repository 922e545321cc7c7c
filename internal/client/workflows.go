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

package client

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// Workflow is a stored workflow as returned by the daemon.
type Workflow struct {
	ID        string         `json:"id"`
	Version   int            `json:"version"`
	Name      string         `json:"name"`
	StartStep string         `json:"start_step"`
	Steps     []WorkflowStep `json:"steps"`
	CreatedAt time.Time      `json:"created_at"`
}

// WorkflowStep is one step of a workflow definition.
type WorkflowStep struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Name   string         `json:"name"`
	Next   string         `json:"next,omitempty"`
	Config map[string]any `json:"config"`
}

// ValidationResult is the daemon's verdict on a workflow definition.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// HealthResponse is the response from /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// Health returns the daemon health status.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var health HealthResponse
	if err := c.get(ctx, "/health", &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// CreateWorkflow registers a new workflow definition.
func (c *Client) CreateWorkflow(ctx context.Context, def map[string]any) (*Workflow, error) {
	var wf Workflow
	if err := c.post(ctx, "/v1/workflows", def, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

// ListWorkflows lists all workflows.
func (c *Client) ListWorkflows(ctx context.Context) ([]*Workflow, error) {
	var resp struct {
		Workflows []*Workflow `json:"workflows"`
	}
	if err := c.get(ctx, "/v1/workflows", &resp); err != nil {
		return nil, err
	}
	return resp.Workflows, nil
}

// GetWorkflow retrieves a workflow by ID.
func (c *Client) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	var wf Workflow
	if err := c.get(ctx, "/v1/workflows/"+url.PathEscape(id), &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

// DeleteWorkflow removes a workflow without active runs.
func (c *Client) DeleteWorkflow(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/workflows/"+url.PathEscape(id), nil, nil)
}

// ValidateYAML asks the daemon to validate a raw YAML definition.
func (c *Client) ValidateYAML(ctx context.Context, yamlText string) (*ValidationResult, error) {
	var result ValidationResult
	if err := c.post(ctx, "/v1/workflows/validate", map[string]any{"yaml": yamlText}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
