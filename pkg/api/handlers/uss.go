package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openutm/flightdeck/pkg/dss"
	"github.com/openutm/flightdeck/pkg/orchestrator"
)

// USSHandler serves the inbound ASTM F3548-21 endpoints peer USSes call.
type USSHandler struct {
	coordinator *orchestrator.Orchestrator
}

// NewUSSHandler creates a peer USS handler.
func NewUSSHandler(coordinator *orchestrator.Orchestrator) *USSHandler {
	return &USSHandler{coordinator: coordinator}
}

// GetOperationalIntent handles GET /uss/v1/operational_intents/{id} and
// returns the full reference and details of an operational intent we manage.
func (h *USSHandler) GetOperationalIntent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "entityid")
	intent, err := h.coordinator.OperationalIntent(r.Context(), id)
	if err != nil {
		if errors.Is(err, dss.ErrSnapshotNotFound) {
			NotFound(w, "Operational intent not found")
			return
		}
		InternalServerError(w, "Failed to load operational intent")
		return
	}
	WriteJSONOK(w, map[string]any{"operational_intent": intent})
}

// Notify handles POST /uss/v1/operational_intents, the notification a peer
// USS sends when an operational intent in our subscribed area changes.
func (h *USSHandler) Notify(w http.ResponseWriter, r *http.Request) {
	var params dss.PutOperationalIntentDetailsParameters
	if !decodeJSONBody(w, r, &params) {
		return
	}

	if err := h.coordinator.HandleUSSNotification(r.Context(), &params); err != nil {
		writeCoordinationError(w, err)
		return
	}
	WriteNoContent(w)
}
