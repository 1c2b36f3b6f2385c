package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/openutm/flightdeck/pkg/coordination/models"
	"github.com/openutm/flightdeck/pkg/orchestrator"
)

// decodeJSONBody decodes a JSON request body into the provided pointer.
// Returns true if successful, false if decoding fails (error response is
// written automatically).
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		BadRequest(w, "Invalid request body")
		return false
	}
	return true
}

// writeCoordinationError maps the orchestrator error taxonomy onto HTTP
// status codes.
func writeCoordinationError(w http.ResponseWriter, err error) {
	switch {
	case orchestrator.IsValidation(err):
		BadRequest(w, err.Error())
	case errors.Is(err, models.ErrDeclarationNotFound):
		NotFound(w, "Flight declaration not found")
	case orchestrator.KindOf(err) == orchestrator.KindConflictLocal,
		orchestrator.KindOf(err) == orchestrator.KindConflictDSS:
		Conflict(w, err.Error())
	default:
		InternalServerError(w, "Request failed")
	}
}
