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
	"log/slog"
	"net/http"

	batonerrors "github.com/tombee/baton/pkg/errors"
)

// writeJSON writes data as a JSON body under the given status. The status
// line is already out when encoding fails, so the failure can only be logged.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("writing JSON response", slog.Any("error", err))
	}
}

// writeError writes the standard {"error": message} body.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeEngineError maps a typed engine or store error to its HTTP status
// and writes the error body.
func writeEngineError(w http.ResponseWriter, err error) {
	writeError(w, statusForError(err), err.Error())
}

// statusForError maps error classes to HTTP status codes. Validation
// covers security and undefined-name errors as well; anything
// unclassified is an internal error.
func statusForError(err error) int {
	switch {
	case batonerrors.IsNotFound(err):
		return http.StatusNotFound
	case batonerrors.IsConflict(err):
		return http.StatusConflict
	case batonerrors.IsValidation(err):
		return http.StatusBadRequest
	case batonerrors.IsTimeout(err):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
