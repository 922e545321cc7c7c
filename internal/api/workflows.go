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
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tombee/baton/internal/store"
	"github.com/tombee/baton/pkg/workflow"
)

// WorkflowsHandler handles workflow CRUD and validation requests.
type WorkflowsHandler struct {
	store store.Store
}

// NewWorkflowsHandler creates a new workflows handler.
func NewWorkflowsHandler(st store.Store) *WorkflowsHandler {
	return &WorkflowsHandler{store: st}
}

// RegisterRoutes registers workflow API routes on the mux.
func (h *WorkflowsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/workflows", h.handleCreate)
	mux.HandleFunc("GET /v1/workflows", h.handleList)
	mux.HandleFunc("GET /v1/workflows/{id}", h.handleGet)
	mux.HandleFunc("PUT /v1/workflows/{id}", h.handleUpdate)
	mux.HandleFunc("DELETE /v1/workflows/{id}", h.handleDelete)
	mux.HandleFunc("POST /v1/workflows/validate", h.handleValidate)
}

// handleCreate handles POST /v1/workflows.
func (h *WorkflowsHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var def workflow.Definition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	if err := def.Validate(); err != nil {
		writeEngineError(w, err)
		return
	}

	wf := &store.Workflow{
		ID:        uuid.NewString(),
		Version:   1,
		Name:      def.Name,
		StartStep: def.StartStep,
		Steps:     def.Steps,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.store.CreateWorkflow(r.Context(), wf); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, wf)
}

// handleList handles GET /v1/workflows.
func (h *WorkflowsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	workflows, err := h.store.ListWorkflows(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if workflows == nil {
		workflows = []*store.Workflow{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"workflows": workflows,
		"count":     len(workflows),
	})
}

// handleGet handles GET /v1/workflows/{id}.
func (h *WorkflowsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	wf, err := h.store.GetWorkflow(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, wf)
}

// UpdateWorkflowRequest is the request body for updating a workflow.
// All fields are optional; at least one must be present.
type UpdateWorkflowRequest struct {
	Name      *string             `json:"name,omitempty"`
	StartStep *string             `json:"start_step,omitempty"`
	Steps     *[]workflow.StepDef `json:"steps,omitempty"`
}

// handleUpdate handles PUT /v1/workflows/{id}. Updates are partial; any
// update produces a new version with the step set replaced.
func (h *WorkflowsHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req UpdateWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	if req.Name == nil && req.StartStep == nil && req.Steps == nil {
		writeError(w, http.StatusBadRequest, "No fields to update")
		return
	}

	wf, err := h.store.GetWorkflow(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if req.Name != nil {
		wf.Name = *req.Name
	}
	if req.StartStep != nil {
		wf.StartStep = *req.StartStep
	}
	if req.Steps != nil {
		wf.Steps = *req.Steps
	}

	// The merged result must still be a valid definition.
	if err := wf.Definition().Validate(); err != nil {
		writeEngineError(w, err)
		return
	}

	wf.Version++
	if err := h.store.UpdateWorkflow(r.Context(), wf); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, wf)
}

// handleDelete handles DELETE /v1/workflows/{id}. Deleting a workflow
// with active (running or waiting) runs is a conflict.
func (h *WorkflowsHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if _, err := h.store.GetWorkflow(r.Context(), id); err != nil {
		writeEngineError(w, err)
		return
	}

	active, err := h.store.CountActiveRuns(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if active > 0 {
		writeError(w, http.StatusConflict, fmt.Sprintf("Cannot delete workflow '%s' with active runs", id))
		return
	}

	if err := h.store.DeleteWorkflow(r.Context(), id); err != nil {
		writeEngineError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ValidationResponse is the response body for workflow validation.
type ValidationResponse struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// handleValidate handles POST /v1/workflows/validate. The body is
// either {"yaml": "<yaml text>"} or an inline definition object.
// Invalid definitions produce {"valid": false, "errors": [...]}, never
// a server error.
func (h *WorkflowsHandler) handleValidate(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	var errs []string
	switch raw := body["yaml"].(type) {
	case string:
		errs = workflow.ValidateYAML([]byte(raw))
	case map[string]any:
		errs = workflow.ValidateDocument(raw)
	default:
		errs = workflow.ValidateDocument(body)
	}

	if errs == nil {
		errs = []string{}
	}
	writeJSON(w, http.StatusOK, ValidationResponse{
		Valid:  len(errs) == 0,
		Errors: errs,
	})
}
