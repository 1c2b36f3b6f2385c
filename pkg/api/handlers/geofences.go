package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/openutm/flightdeck/pkg/coordination/models"
	"github.com/openutm/flightdeck/pkg/coordination/store"
	"github.com/openutm/flightdeck/pkg/geo"
)

// GeoFenceHandler serves geofence uploads and queries. Geofences are
// advisory: declarations intersecting one are created unapproved but are
// never blocked.
type GeoFenceHandler struct {
	store store.Store
}

// NewGeoFenceHandler creates a geofence handler.
func NewGeoFenceHandler(st store.Store) *GeoFenceHandler {
	return &GeoFenceHandler{store: st}
}

// createGeoFenceRequest is a geofence upload.
type createGeoFenceRequest struct {
	ID            string          `json:"id,omitempty"`
	Name          string          `json:"name"`
	GeoJSON       json.RawMessage `json:"raw_geo_fence"`
	UpperLimit    float64         `json:"upper_limit"`
	LowerLimit    float64         `json:"lower_limit"`
	StartDatetime time.Time       `json:"start_datetime"`
	EndDatetime   time.Time       `json:"end_datetime"`
}

// Create handles POST /api/v1/geo_fences.
func (h *GeoFenceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createGeoFenceRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if len(req.GeoJSON) == 0 {
		BadRequest(w, "raw_geo_fence is required")
		return
	}
	if req.StartDatetime.IsZero() || req.EndDatetime.IsZero() || !req.EndDatetime.After(req.StartDatetime) {
		BadRequest(w, "start_datetime and end_datetime must form a valid window")
		return
	}

	bounds, err := geo.BoundsFromGeoJSON(req.GeoJSON)
	if err != nil {
		BadRequest(w, "invalid geofence geometry: "+err.Error())
		return
	}

	fence := &models.GeoFence{
		ID:            req.ID,
		Name:          req.Name,
		RawGeoFence:   string(req.GeoJSON),
		Bounds:        bounds.String(),
		UpperLimit:    req.UpperLimit,
		LowerLimit:    req.LowerLimit,
		StartDatetime: req.StartDatetime.UTC(),
		EndDatetime:   req.EndDatetime.UTC(),
	}
	if fence.ID == "" {
		fence.ID = uuid.NewString()
	}

	if err := h.store.CreateGeoFence(r.Context(), fence); err != nil {
		InternalServerError(w, "Failed to persist geofence")
		return
	}
	WriteJSONCreated(w, map[string]any{"id": fence.ID, "bounds": fence.Bounds})
}

// List handles GET /api/v1/geo_fences with the same view / time-window query
// parameters as the declaration list.
func (h *GeoFenceHandler) List(w http.ResponseWriter, r *http.Request) {
	var viewport *geo.Bounds
	var after, before time.Time
	query := r.URL.Query()

	if raw := query.Get("view"); raw != "" {
		bounds, err := geo.ParseBounds(raw)
		if err != nil {
			BadRequest(w, "view must be minLng,minLat,maxLng,maxLat")
			return
		}
		viewport = &bounds
	}
	if raw := query.Get("start_date"); raw != "" {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			BadRequest(w, "start_date must be RFC 3339")
			return
		}
		after = at
	}
	if raw := query.Get("end_date"); raw != "" {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			BadRequest(w, "end_date must be RFC 3339")
			return
		}
		before = at
	}

	fences, err := h.store.ListGeoFences(r.Context(), viewport, after, before)
	if err != nil {
		InternalServerError(w, "Failed to list geofences")
		return
	}
	WriteJSONOK(w, map[string]any{"total": len(fences), "geo_fences": fences})
}
