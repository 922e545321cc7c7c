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
	"net/url"
	"time"
)

// Run is a workflow execution as returned by the daemon.
type Run struct {
	ID              string         `json:"id"`
	WorkflowID      string         `json:"workflow_id"`
	WorkflowVersion int            `json:"workflow_version"`
	Status          string         `json:"status"`
	CurrentStep     string         `json:"current_step,omitempty"`
	Context         *RunContext    `json:"context"`
	IdempotencyKey  string         `json:"idempotency_key,omitempty"`
	StartedAt       time.Time      `json:"started_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// RunContext is the three-layer execution context of a run.
type RunContext struct {
	Static  map[string]any `json:"static"`
	Profile map[string]any `json:"profile"`
	Runtime map[string]any `json:"runtime"`
}

// RunStep is one recorded step execution.
type RunStep struct {
	ID        string         `json:"id"`
	RunID     string         `json:"run_id"`
	StepID    string         `json:"step_id"`
	Type      string         `json:"type"`
	Status    string         `json:"status"`
	Output    map[string]any `json:"output,omitempty"`
	Error     string         `json:"error,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at"`
}

// RunHistory is a run's execution timeline.
type RunHistory struct {
	RunID        string     `json:"run_id"`
	WorkflowName string     `json:"workflow_name"`
	Status       string     `json:"status"`
	Steps        []*RunStep `json:"steps"`
}

// StartRunRequest starts a workflow run.
type StartRunRequest struct {
	WorkflowID     string         `json:"workflow_id"`
	Inputs         map[string]any `json:"inputs,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

// ResumeRunRequest resumes a waiting run. Exactly one of Inputs or
// Approval ("approved" or "rejected") must be set.
type ResumeRunRequest struct {
	Inputs   map[string]any `json:"inputs,omitempty"`
	Approval string         `json:"approval,omitempty"`
	Comments string         `json:"comments,omitempty"`
}

// StartRun starts a new workflow run.
func (c *Client) StartRun(ctx context.Context, req StartRunRequest) (*Run, error) {
	var run Run
	if err := c.post(ctx, "/v1/executions", req, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRun retrieves a run by ID.
func (c *Client) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	if err := c.get(ctx, "/v1/executions/"+url.PathEscape(id), &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ResumeRun resumes a waiting run.
func (c *Client) ResumeRun(ctx context.Context, id string, req ResumeRunRequest) (*Run, error) {
	var run Run
	if err := c.post(ctx, "/v1/executions/"+url.PathEscape(id)+"/resume", req, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// CancelRun cancels a running or waiting run.
func (c *Client) CancelRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	if err := c.post(ctx, "/v1/executions/"+url.PathEscape(id)+"/cancel", nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// History retrieves a run's step execution history.
func (c *Client) History(ctx context.Context, id string) (*RunHistory, error) {
	var history RunHistory
	if err := c.get(ctx, "/v1/executions/"+url.PathEscape(id)+"/history", &history); err != nil {
		return nil, err
	}
	return &history, nil
}

// Context retrieves a run's current execution context.
func (c *Client) Context(ctx context.Context, id string) (*RunContext, error) {
	var resp struct {
		RunID   string      `json:"run_id"`
		Context *RunContext `json:"context"`
	}
	if err := c.get(ctx, "/v1/executions/"+url.PathEscape(id)+"/context", &resp); err != nil {
		return nil, err
	}
	return resp.Context, nil
}
