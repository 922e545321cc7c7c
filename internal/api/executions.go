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

package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tombee/baton/internal/engine"
	"github.com/tombee/baton/internal/store"
)

// ExecutionsHandler handles run lifecycle requests.
type ExecutionsHandler struct {
	engine *engine.Engine
	store  store.Store
}

// NewExecutionsHandler creates a new executions handler.
func NewExecutionsHandler(eng *engine.Engine, st store.Store) *ExecutionsHandler {
	return &ExecutionsHandler{engine: eng, store: st}
}

// RegisterRoutes registers execution API routes on the mux.
func (h *ExecutionsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/executions", h.handleStart)
	mux.HandleFunc("GET /v1/executions/{id}", h.handleGet)
	mux.HandleFunc("POST /v1/executions/{id}/resume", h.handleResume)
	mux.HandleFunc("POST /v1/executions/{id}/cancel", h.handleCancel)
	mux.HandleFunc("GET /v1/executions/{id}/history", h.handleHistory)
	mux.HandleFunc("GET /v1/executions/{id}/context", h.handleContext)
}

// StartExecutionRequest is the request body for starting a run.
type StartExecutionRequest struct {
	WorkflowID     string         `json:"workflow_id"`
	Inputs         map[string]any `json:"inputs,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

// deriveIdempotencyKey derives a stable key from the workflow and its
// inputs so identical start requests without an explicit key dedupe.
// encoding/json emits map keys in sorted order, making the digest
// canonical.
func deriveIdempotencyKey(workflowID string, inputs map[string]any) string {
	canonical, _ := json.Marshal(inputs)
	sum := sha256.Sum256([]byte(workflowID + ":" + string(canonical)))
	return hex.EncodeToString(sum[:])
}

// handleStart handles POST /v1/executions. The run advances until it
// pauses, completes, or fails before the response is written, so the
// body always reflects durable state.
func (h *ExecutionsHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	if req.WorkflowID == "" {
		writeError(w, http.StatusBadRequest, "workflow_id is required")
		return
	}

	if req.Inputs == nil {
		req.Inputs = map[string]any{}
	}
	key := req.IdempotencyKey
	if key == "" {
		key = deriveIdempotencyKey(req.WorkflowID, req.Inputs)
	}

	run, err := h.engine.StartRun(r.Context(), req.WorkflowID, req.Inputs, key)
	if run == nil && err != nil {
		writeEngineError(w, err)
		return
	}

	// A failed run is still an accepted request; the failure lives in
	// the run's status, not the HTTP status.
	writeJSON(w, http.StatusAccepted, run)
}

// handleGet handles GET /v1/executions/{id}.
func (h *ExecutionsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	run, err := h.engine.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// ResumeExecutionRequest is the request body for resuming a waiting
// run. Exactly one of Inputs or Approval must be provided.
type ResumeExecutionRequest struct {
	Inputs   map[string]any `json:"inputs,omitempty"`
	Approval string         `json:"approval,omitempty"`
	Comments string         `json:"comments,omitempty"`
}

// handleResume handles POST /v1/executions/{id}/resume.
func (h *ExecutionsHandler) handleResume(w http.ResponseWriter, r *http.Request) {
	var req ResumeExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	if len(req.Inputs) > 0 && req.Approval != "" {
		writeError(w, http.StatusBadRequest, "Cannot provide both inputs and approval in same request")
		return
	}
	if len(req.Inputs) == 0 && req.Approval == "" {
		writeError(w, http.StatusBadRequest, "Must provide either inputs or approval decision")
		return
	}

	inputs := req.Inputs
	if req.Approval != "" {
		if req.Approval != "approved" && req.Approval != "rejected" {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid approval decision %q (expected \"approved\" or \"rejected\")", req.Approval))
			return
		}
		// Approval shorthand expands to the approval executor's input
		// shape.
		inputs = map[string]any{
			"approval": map[string]any{
				"approved": req.Approval == "approved",
				"comments": req.Comments,
			},
		}
	}

	run, err := h.engine.ResumeRun(r.Context(), r.PathValue("id"), inputs)
	if run == nil && err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// handleCancel handles POST /v1/executions/{id}/cancel.
func (h *ExecutionsHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	run, err := h.engine.CancelRun(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// RunHistoryResponse is the response body for a run's step history.
type RunHistoryResponse struct {
	RunID        string           `json:"run_id"`
	WorkflowName string           `json:"workflow_name"`
	Status       string           `json:"status"`
	Steps        []*store.RunStep `json:"steps"`
}

// handleHistory handles GET /v1/executions/{id}/history.
func (h *ExecutionsHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")

	run, err := h.engine.GetRun(r.Context(), runID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	steps, err := h.engine.GetHistory(r.Context(), runID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if steps == nil {
		steps = []*store.RunStep{}
	}

	workflowName := "Unknown"
	if wf, err := h.store.GetWorkflow(r.Context(), run.WorkflowID); err == nil {
		workflowName = wf.Name
	}

	writeJSON(w, http.StatusOK, RunHistoryResponse{
		RunID:        run.ID,
		WorkflowName: workflowName,
		Status:       string(run.Status),
		Steps:        steps,
	})
}

// handleContext handles GET /v1/executions/{id}/context.
func (h *ExecutionsHandler) handleContext(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")

	runCtx, err := h.engine.GetContext(r.Context(), runID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":  runID,
		"context": runCtx,
	})
}
