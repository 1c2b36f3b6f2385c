package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openutm/flightdeck/pkg/coordination/models"
	"github.com/openutm/flightdeck/pkg/coordination/store"
	"github.com/openutm/flightdeck/pkg/geo"
	"github.com/openutm/flightdeck/pkg/orchestrator"
)

// FlightHandler serves the operator-facing flight declaration endpoints.
type FlightHandler struct {
	coordinator *orchestrator.Orchestrator
	store       store.Store
}

// NewFlightHandler creates a flight declaration handler.
func NewFlightHandler(coordinator *orchestrator.Orchestrator, st store.Store) *FlightHandler {
	return &FlightHandler{coordinator: coordinator, store: st}
}

// createDeclarationRequest is the operator submission payload.
type createDeclarationRequest struct {
	ID               string          `json:"id,omitempty"`
	OriginatingParty string          `json:"originating_party"`
	SubmittedBy      string          `json:"submitted_by"`
	AircraftID       string          `json:"aircraft_id"`
	TypeOfOperation  int             `json:"type_of_operation"`
	Priority         int             `json:"priority"`
	StartDatetime    time.Time       `json:"start_datetime"`
	EndDatetime      time.Time       `json:"end_datetime"`
	GeoJSON          json.RawMessage `json:"flight_declaration_geo_json"`
}

// Create handles POST /api/v1/flight_declarations.
//
// The declaration is validated, checked against existing operations and
// geofences, and recorded. The DSS submission continues asynchronously; the
// response reports the locally recorded state.
func (h *FlightHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createDeclarationRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if len(req.GeoJSON) == 0 {
		BadRequest(w, "flight_declaration_geo_json is required")
		return
	}

	result, err := h.coordinator.CreateDeclaration(r.Context(), orchestrator.SubmitRequest{
		ID:               req.ID,
		OriginatingParty: req.OriginatingParty,
		SubmittedBy:      req.SubmittedBy,
		AircraftID:       req.AircraftID,
		TypeOfOperation:  req.TypeOfOperation,
		Priority:         req.Priority,
		Start:            req.StartDatetime,
		End:              req.EndDatetime,
		GeoJSON:          req.GeoJSON,
	})
	if err != nil {
		writeCoordinationError(w, err)
		return
	}
	WriteJSONCreated(w, result)
}

// Get handles GET /api/v1/flight_declarations/{id}.
func (h *FlightHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	declaration, err := h.store.GetDeclaration(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrDeclarationNotFound) {
			NotFound(w, "Flight declaration not found")
			return
		}
		InternalServerError(w, "Failed to load flight declaration")
		return
	}
	// Attach the parsed intent so the response carries the volumes.
	if _, err := declaration.Intent(); err != nil {
		InternalServerError(w, "Failed to parse operational intent")
		return
	}
	WriteJSONOK(w, declaration)
}

// List handles GET /api/v1/flight_declarations.
//
// Query parameters:
//   - start_date, end_date: RFC 3339 window; declarations overlapping it match
//   - view: "minLng,minLat,maxLng,maxLat" viewport filter
//   - state: numeric state, repeatable
func (h *FlightHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, ok := declarationFilterFromQuery(w, r)
	if !ok {
		return
	}

	declarations, err := h.store.ListDeclarations(r.Context(), filter)
	if err != nil {
		InternalServerError(w, "Failed to list flight declarations")
		return
	}
	WriteJSONOK(w, map[string]any{
		"total":               len(declarations),
		"flight_declarations": declarations,
	})
}

// changeStateRequest is the operator state change payload.
type changeStateRequest struct {
	State       int    `json:"state"`
	SubmittedBy string `json:"submitted_by,omitempty"`
}

// ChangeState handles PUT /api/v1/flight_declarations/{id}/state.
//
// Only Activated (2), Contingent (4) and Ended (5) may be requested.
func (h *FlightHandler) ChangeState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req changeStateRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	newState, err := h.coordinator.ChangeState(r.Context(), id, req.State)
	if err != nil {
		writeCoordinationError(w, err)
		return
	}
	WriteJSONOK(w, map[string]any{"id": id, "state": newState})
}

// Tracking handles GET /api/v1/flight_declarations/{id}/tracking and returns
// the append-only state change history.
func (h *FlightHandler) Tracking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.store.GetDeclaration(r.Context(), id); err != nil {
		if errors.Is(err, models.ErrDeclarationNotFound) {
			NotFound(w, "Flight declaration not found")
			return
		}
		InternalServerError(w, "Failed to load flight declaration")
		return
	}

	entries, err := h.store.ListTracking(r.Context(), id)
	if err != nil {
		InternalServerError(w, "Failed to load tracking history")
		return
	}
	WriteJSONOK(w, map[string]any{"id": id, "tracking": entries})
}

// declarationFilterFromQuery parses the shared list query parameters. On a
// parse failure the error response is written and ok is false.
func declarationFilterFromQuery(w http.ResponseWriter, r *http.Request) (store.DeclarationFilter, bool) {
	var filter store.DeclarationFilter
	query := r.URL.Query()

	if raw := query.Get("start_date"); raw != "" {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			BadRequest(w, "start_date must be RFC 3339")
			return filter, false
		}
		filter.After = at
	}
	if raw := query.Get("end_date"); raw != "" {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			BadRequest(w, "end_date must be RFC 3339")
			return filter, false
		}
		filter.Before = at
	}
	if raw := query.Get("view"); raw != "" {
		bounds, err := geo.ParseBounds(raw)
		if err != nil {
			BadRequest(w, "view must be minLng,minLat,maxLng,maxLat")
			return filter, false
		}
		filter.Viewport = &bounds
	}
	for _, raw := range query["state"] {
		state, err := strconv.Atoi(raw)
		if err != nil {
			BadRequest(w, "state must be numeric")
			return filter, false
		}
		filter.States = append(filter.States, state)
	}
	return filter, true
}
