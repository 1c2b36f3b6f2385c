package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/openutm/flightdeck/pkg/coordination/models"
	"github.com/openutm/flightdeck/pkg/coordination/store"
	"github.com/openutm/flightdeck/pkg/kv"
)

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	kv    kv.Store
	store store.Store
}

// NewHealthHandler creates a health handler. Either dependency may be nil;
// nil dependencies are skipped by the readiness probe.
func NewHealthHandler(kvStore kv.Store, st store.Store) *HealthHandler {
	return &HealthHandler{kv: kvStore, store: st}
}

// healthResponse is the payload of both probes.
type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Liveness handles GET /health. It answers 200 as long as the process can
// serve requests; dependencies are not consulted.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	WriteJSONOK(w, healthResponse{Status: "healthy", Timestamp: time.Now().UTC()})
}

// Readiness handles GET /health/ready and verifies the backing stores.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	healthy := true

	if h.kv != nil {
		if err := h.kv.Ping(r.Context()); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	}

	if h.store != nil {
		// Any answer from the database proves connectivity; the probe id
		// never exists.
		_, err := h.store.GetDeclaration(r.Context(), "00000000-0000-0000-0000-000000000000")
		if err != nil && !errors.Is(err, models.ErrDeclarationNotFound) {
			checks["database"] = err.Error()
			healthy = false
		} else {
			checks["database"] = "ok"
		}
	}

	status := http.StatusOK
	response := healthResponse{Status: "healthy", Timestamp: time.Now().UTC(), Checks: checks}
	if !healthy {
		status = http.StatusServiceUnavailable
		response.Status = "unhealthy"
	}
	WriteJSON(w, status, response)
}
