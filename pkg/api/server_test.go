package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/openutm/flightdeck/pkg/conformance"
	"github.com/openutm/flightdeck/pkg/coordination/models"
	"github.com/openutm/flightdeck/pkg/coordination/store"
	"github.com/openutm/flightdeck/pkg/deconfliction"
	"github.com/openutm/flightdeck/pkg/dss"
	"github.com/openutm/flightdeck/pkg/kv"
	"github.com/openutm/flightdeck/pkg/orchestrator"
)

func newTestRouter(t *testing.T, secret string) (http.Handler, store.Store, *dss.SnapshotStore) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	kvStore := kv.NewRedisStoreFromClient(client)
	t.Cleanup(func() { _ = kvStore.Close() })
	snapshots := dss.NewSnapshotStore(kvStore)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	gormStore := store.NewFromDB(db)

	planner := deconfliction.NewPlanner(snapshots, gormStore)
	coordinator := orchestrator.New(orchestrator.Config{
		SelfBaseURL:          "https://uss.example.com",
		USSPNetworkEnabled:   false,
		MaxDeclarationWindow: 48 * time.Hour,
		StreamMaxLen:         100,
	}, gormStore, kvStore, snapshots, nil, nil, planner, conformance.NewEngine(), nil, nil)

	router := NewRouter(Config{RequestTimeout: 30 * time.Second, JWTSecret: secret}, coordinator, gormStore, kvStore)
	return router, gormStore, snapshots
}

// declarationBody builds a valid submission over Bern with the given window.
func declarationBody(t *testing.T, id string, start, end time.Time) []byte {
	t.Helper()
	body := map[string]any{
		"originating_party": "Bern Drone Ops",
		"aircraft_id":       "9A1B2C",
		"type_of_operation": 1,
		"start_datetime":    start.Format(time.RFC3339),
		"end_datetime":      end.Format(time.RFC3339),
		"flight_declaration_geo_json": map[string]any{
			"type": "FeatureCollection",
			"features": []map[string]any{{
				"type": "Feature",
				"properties": map[string]any{
					"min_altitude": map[string]any{"meters": 90, "datum": "w84"},
					"max_altitude": map[string]any{"meters": 100, "datum": "w84"},
				},
				"geometry": map[string]any{
					"type": "Polygon",
					"coordinates": [][][]float64{{
						{7.47, 46.98}, {7.49, 46.98}, {7.49, 46.99}, {7.47, 46.99}, {7.47, 46.98},
					}},
				},
			}},
		},
	}
	if id != "" {
		body["id"] = id
	}
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	return data
}

func doJSON(t *testing.T, router http.Handler, method, path string, body []byte, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestCreateAndFetchDeclaration(t *testing.T) {
	router, _, _ := newTestRouter(t, "")
	start := time.Now().UTC().Add(time.Hour)
	end := start.Add(time.Hour)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/flight_declarations", declarationBody(t, "", start, end), "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created orchestrator.SubmitResult
	decodeBody(t, rec, &created)
	if created.State != 1 {
		t.Fatalf("expected Accepted, got state %d", created.State)
	}
	if !created.IsApproved {
		t.Fatalf("expected approval with no geofences")
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/flight_declarations/"+created.ID, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var fetched models.FlightDeclaration
	decodeBody(t, rec, &fetched)
	if fetched.AircraftID != "9A1B2C" {
		t.Fatalf("unexpected aircraft id %q", fetched.AircraftID)
	}
	if fetched.ParsedIntent == nil || len(fetched.ParsedIntent.Volumes) != 1 {
		t.Fatalf("expected the parsed intent in the response")
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/flight_declarations/unknown-id", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown id, got %d", rec.Code)
	}
}

func TestCreateDeclarationValidation(t *testing.T) {
	router, _, _ := newTestRouter(t, "")
	now := time.Now().UTC()

	cases := []struct {
		name  string
		start time.Time
		end   time.Time
	}{
		{"past start", now.Add(-2 * time.Hour), now.Add(time.Hour)},
		{"inverted window", now.Add(2 * time.Hour), now.Add(time.Hour)},
		{"beyond horizon", now.Add(49 * time.Hour), now.Add(50 * time.Hour)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/api/v1/flight_declarations",
				declarationBody(t, "", tc.start, tc.end), "")
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}

	rec := doJSON(t, router, http.MethodPost, "/api/v1/flight_declarations", []byte(`{"start_datetime":"`+
		now.Add(time.Hour).Format(time.RFC3339)+`","end_datetime":"`+now.Add(2*time.Hour).Format(time.RFC3339)+`"}`), "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing geometry, got %d", rec.Code)
	}
}

func TestListDeclarations(t *testing.T) {
	router, _, _ := newTestRouter(t, "")
	start := time.Now().UTC().Add(time.Hour)
	end := start.Add(time.Hour)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/flight_declarations", declarationBody(t, "", start, end), "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var listing struct {
		Total int `json:"total"`
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/flight_declarations?view=7.4,46.9,7.5,47.0", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	decodeBody(t, rec, &listing)
	if listing.Total != 1 {
		t.Fatalf("expected 1 declaration in the Bern viewport, got %d", listing.Total)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/flight_declarations?view=8.5,47.3,8.6,47.4", nil, "")
	decodeBody(t, rec, &listing)
	if listing.Total != 0 {
		t.Fatalf("expected no declarations in the Zurich viewport, got %d", listing.Total)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/flight_declarations?view=bogus", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a malformed viewport, got %d", rec.Code)
	}
}

func TestOperatorStateChange(t *testing.T) {
	router, _, _ := newTestRouter(t, "")
	start := time.Now().UTC().Add(time.Hour)
	end := start.Add(time.Hour)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/flight_declarations", declarationBody(t, "", start, end), "")
	var created orchestrator.SubmitResult
	decodeBody(t, rec, &created)

	rec = doJSON(t, router, http.MethodPut, "/api/v1/flight_declarations/"+created.ID+"/state",
		[]byte(`{"state": 2}`), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var changed struct {
		State int `json:"state"`
	}
	decodeBody(t, rec, &changed)
	if changed.State != 2 {
		t.Fatalf("expected Activated, got %d", changed.State)
	}

	// Operators may not request Nonconforming directly.
	rec = doJSON(t, router, http.MethodPut, "/api/v1/flight_declarations/"+created.ID+"/state",
		[]byte(`{"state": 3}`), "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPut, "/api/v1/flight_declarations/missing/state",
		[]byte(`{"state": 2}`), "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/flight_declarations/"+created.ID+"/tracking", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var tracking struct {
		Tracking []models.FlightOperationTracking `json:"tracking"`
	}
	decodeBody(t, rec, &tracking)
	if len(tracking.Tracking) != 2 {
		t.Fatalf("expected 2 tracking entries (created, activated), got %d", len(tracking.Tracking))
	}
}

func TestTelemetryIngress(t *testing.T) {
	router, _, _ := newTestRouter(t, "")

	body := fmt.Sprintf(`{"observations": [{
		"icao_address": "9A1B2C", "lat_dd": 46.985, "lon_dd": 7.48, "altitude_mm": 95, "timestamp": %q,
		"operational_status": "Airborne", "track": 181.7, "speed": 4.91, "vertical_speed": 0.5,
		"speed_accuracy": "SA3mps", "accuracy_h": "HAUnknown", "accuracy_v": "VAUnknown",
		"height_agl": 50.0, "operator_details": "Example Operator"}]}`,
		time.Now().UTC().Format(time.RFC3339))
	rec := doJSON(t, router, http.MethodPut, "/api/v1/telemetry", []byte(body), "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPut, "/api/v1/telemetry", []byte(`{"observations": []}`), "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an empty batch, got %d", rec.Code)
	}
}

func TestUSSOperationalIntents(t *testing.T) {
	router, _, snapshots := newTestRouter(t, "")

	notify := map[string]any{
		"operational_intent_id": "peer-opint-1",
		"operational_intent": map[string]any{
			"reference": map[string]any{
				"id":           "peer-opint-1",
				"manager":      "uss-peer",
				"state":        "Accepted",
				"ovn":          "ovn-peer-1",
				"uss_base_url": "https://peer.example.com",
			},
			"details": map[string]any{
				"volumes":             []any{},
				"off_nominal_volumes": []any{},
				"priority":            0,
			},
		},
	}
	data, _ := json.Marshal(notify)
	rec := doJSON(t, router, http.MethodPost, "/uss/v1/operational_intents", data, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/uss/v1/operational_intents/peer-opint-1", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var response struct {
		OperationalIntent dss.OperationalIntent `json:"operational_intent"`
	}
	decodeBody(t, rec, &response)
	if response.OperationalIntent.Reference.Manager != "uss-peer" {
		t.Fatalf("unexpected manager %q", response.OperationalIntent.Reference.Manager)
	}

	rec = doJSON(t, router, http.MethodGet, "/uss/v1/operational_intents/unknown", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	// A nil intent removes the cached snapshot.
	data, _ = json.Marshal(map[string]any{"operational_intent_id": "peer-opint-1"})
	rec = doJSON(t, router, http.MethodPost, "/uss/v1/operational_intents", data, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if _, err := snapshots.GetByOperationalIntent(t.Context(), "peer-opint-1"); err == nil {
		t.Fatalf("expected the snapshot to be removed")
	}
}

func TestGeoFenceAdvisory(t *testing.T) {
	router, _, _ := newTestRouter(t, "")
	start := time.Now().UTC().Add(time.Hour)
	end := start.Add(time.Hour)

	fence := map[string]any{
		"name": "Bern restricted",
		"raw_geo_fence": map[string]any{
			"type": "FeatureCollection",
			"features": []map[string]any{{
				"type":       "Feature",
				"properties": map[string]any{},
				"geometry": map[string]any{
					"type": "Polygon",
					"coordinates": [][][]float64{{
						{7.46, 46.97}, {7.50, 46.97}, {7.50, 47.00}, {7.46, 47.00}, {7.46, 46.97},
					}},
				},
			}},
		},
		"upper_limit":    150,
		"lower_limit":    0,
		"start_datetime": start.Add(-time.Hour).Format(time.RFC3339),
		"end_datetime":   end.Add(time.Hour).Format(time.RFC3339),
	}
	data, _ := json.Marshal(fence)
	rec := doJSON(t, router, http.MethodPost, "/api/v1/geo_fences", data, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var listing struct {
		Total int `json:"total"`
	}
	rec = doJSON(t, router, http.MethodGet, "/api/v1/geo_fences?view=7.4,46.9,7.6,47.1", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	decodeBody(t, rec, &listing)
	if listing.Total != 1 {
		t.Fatalf("expected 1 geofence, got %d", listing.Total)
	}

	// A declaration intersecting the fence is accepted but unapproved.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/flight_declarations", declarationBody(t, "", start, end), "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created orchestrator.SubmitResult
	decodeBody(t, rec, &created)
	if created.State != 1 {
		t.Fatalf("expected Accepted, got state %d", created.State)
	}
	if created.IsApproved {
		t.Fatalf("expected the geofence hit to clear approval")
	}
}

func TestScopeEnforcement(t *testing.T) {
	const secret = "test-secret"
	router, _, _ := newTestRouter(t, secret)
	start := time.Now().UTC().Add(time.Hour)
	end := start.Add(time.Hour)
	body := declarationBody(t, "", start, end)

	mint := func(scope string) string {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"scope": scope,
			"exp":   time.Now().Add(time.Hour).Unix(),
		})
		signed, err := token.SignedString([]byte(secret))
		if err != nil {
			t.Fatalf("failed to sign token: %v", err)
		}
		return signed
	}

	rec := doJSON(t, router, http.MethodPost, "/api/v1/flight_declarations", body, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/flight_declarations", body, mint("blender.read"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with a read-only token, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/flight_declarations", body, mint("blender.read blender.write"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 with the write scope, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/uss/v1/operational_intents/some-id", nil, mint("blender.write"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without the strategic coordination scope, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/uss/v1/operational_intents/some-id", nil, mint("utm.strategic_coordination"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with the right scope, got %d", rec.Code)
	}

	// Health stays unauthenticated.
	rec = doJSON(t, router, http.MethodGet, "/health", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for the liveness probe, got %d", rec.Code)
	}
}

func TestReadinessProbe(t *testing.T) {
	router, _, _ := newTestRouter(t, "")

	rec := doJSON(t, router, http.MethodGet, "/health/ready", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var response struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decodeBody(t, rec, &response)
	if response.Status != "healthy" {
		t.Fatalf("expected healthy, got %q", response.Status)
	}
	if response.Checks["redis"] != "ok" || response.Checks["database"] != "ok" {
		t.Fatalf("unexpected checks: %v", response.Checks)
	}
}
