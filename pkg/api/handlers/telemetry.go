package handlers

import (
	"net/http"

	"github.com/openutm/flightdeck/pkg/conformance"
	"github.com/openutm/flightdeck/pkg/orchestrator"
)

// TelemetryHandler serves the telemetry ingress endpoint.
type TelemetryHandler struct {
	coordinator *orchestrator.Orchestrator
}

// NewTelemetryHandler creates a telemetry handler.
func NewTelemetryHandler(coordinator *orchestrator.Orchestrator) *TelemetryHandler {
	return &TelemetryHandler{coordinator: coordinator}
}

// ingestRequest is a batch of aircraft observations.
type ingestRequest struct {
	Observations []conformance.Observation `json:"observations"`
}

// Ingest handles PUT /api/v1/telemetry.
//
// Each observation is appended to the telemetry stream and evaluated against
// the active operation of its aircraft. Conformance failures change the
// operation state internally; the ingress always answers 201 unless the
// payload itself is invalid.
func (h *TelemetryHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if len(req.Observations) == 0 {
		BadRequest(w, "observations are required")
		return
	}

	for _, observation := range req.Observations {
		if err := h.coordinator.IngestTelemetry(r.Context(), observation); err != nil {
			writeCoordinationError(w, err)
			return
		}
	}
	WriteJSONCreated(w, map[string]any{"ingested": len(req.Observations)})
}
