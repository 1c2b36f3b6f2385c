package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/openutm/flightdeck/internal/logger"
	"github.com/openutm/flightdeck/pkg/api/handlers"
	"github.com/openutm/flightdeck/pkg/api/middleware"
	"github.com/openutm/flightdeck/pkg/coordination/store"
	"github.com/openutm/flightdeck/pkg/kv"
	"github.com/openutm/flightdeck/pkg/metrics"
	"github.com/openutm/flightdeck/pkg/orchestrator"
)

// NewRouter creates and configures the chi router with all middleware and routes.
//
// The router is configured with:
//   - Request ID middleware for request tracking
//   - Real IP extraction for proper client identification
//   - Custom request logging using the internal logger
//   - Panic recovery to prevent server crashes
//   - Request timeout to prevent hung requests
//
// Operator routes live under /api/v1 and require the blender.* scopes; the
// inbound ASTM endpoints live under /uss/v1 and require
// utm.strategic_coordination. An empty JWT secret disables scope checks.
func NewRouter(config Config, coordinator *orchestrator.Orchestrator, st store.Store, kvStore kv.Store) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.RequestTimeout))

	flights := handlers.NewFlightHandler(coordinator, st)
	telemetry := handlers.NewTelemetryHandler(coordinator)
	geofences := handlers.NewGeoFenceHandler(st)
	uss := handlers.NewUSSHandler(coordinator)
	health := handlers.NewHealthHandler(kvStore, st)

	read := middleware.RequireScope(config.JWTSecret, middleware.ScopeRead)
	write := middleware.RequireScope(config.JWTSecret, middleware.ScopeWrite)
	strategic := middleware.RequireScope(config.JWTSecret, middleware.ScopeStrategicCoordination)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/flight_declarations", func(r chi.Router) {
			r.With(write).Post("/", flights.Create)
			r.With(read).Get("/", flights.List)
			r.With(read).Get("/{id}", flights.Get)
			r.With(read).Get("/{id}/tracking", flights.Tracking)
			r.With(write).Put("/{id}/state", flights.ChangeState)
		})
		r.With(write).Put("/telemetry", telemetry.Ingest)
		r.Route("/geo_fences", func(r chi.Router) {
			r.With(write).Post("/", geofences.Create)
			r.With(read).Get("/", geofences.List)
		})
	})

	r.Route("/uss/v1/operational_intents", func(r chi.Router) {
		r.Use(strategic)
		r.Get("/{entityid}", uss.GetOperationalIntent)
		r.Post("/", uss.Notify)
	})

	// Health routes - unauthenticated
	r.Route("/health", func(r chi.Router) {
		r.Get("/", health.Liveness)
		r.Get("/ready", health.Readiness)
	})

	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return r
}

// requestLogger is a custom middleware that logs requests using the internal logger.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (INFO level): method, path, status, duration
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := chimiddleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		// Wrap response writer to capture status code
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		logger.Info("API request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", duration.String(),
		)
	})
}
