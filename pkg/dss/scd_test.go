package dss

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/openutm/flightdeck/pkg/geo"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store, _ := newTestKV(t)
	tokens := NewTokenProvider(AuthConfig{}, store)
	client, err := NewClient(Config{BaseURL: server.URL, Timeout: 5 * time.Second}, tokens)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return client
}

func testPutParams() *PutOperationalIntentReferenceParameters {
	start := time.Now().UTC().Add(time.Hour)
	return &PutOperationalIntentReferenceParameters{
		Extents: []geo.Volume4D{{
			Volume: geo.Volume3D{
				OutlineCircle: &geo.Circle{
					Center: geo.LatLngPoint{Lat: 46.97, Lng: 7.47},
					Radius: geo.Radius{Value: 100, Units: "M"},
				},
			},
			TimeStart: geo.NewTime(start),
			TimeEnd:   geo.NewTime(start.Add(time.Hour)),
		}},
		Key:        []string{},
		State:      IntentStateAccepted,
		USSBaseURL: "https://uss.example.com",
	}
}

func TestCreateOperationalIntentReference(t *testing.T) {
	var gotPath, gotAuth string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		var params PutOperationalIntentReferenceParameters
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		if params.State != IntentStateAccepted {
			t.Errorf("unexpected state %q", params.State)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(ChangeOperationalIntentReferenceResponse{
			OperationalIntentReference: OperationalIntentReference{
				ID:  "opint-1",
				OVN: "ovn-1",
			},
			Subscribers: []SubscriberToNotify{{USSBaseURL: "https://peer.example.com"}},
		})
	}))

	response, err := client.CreateOperationalIntentReference(context.Background(), "opint-1", testPutParams())
	if err != nil {
		t.Fatalf("failed to create: %v", err)
	}
	if gotPath != "/dss/v1/operational_intent_references/opint-1" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if !strings.HasPrefix(gotAuth, "Bearer ") {
		t.Errorf("missing bearer token, got %q", gotAuth)
	}
	if response.OperationalIntentReference.OVN != "ovn-1" {
		t.Errorf("unexpected ovn %q", response.OperationalIntentReference.OVN)
	}
	if len(response.Subscribers) != 1 {
		t.Errorf("expected 1 subscriber, got %d", len(response.Subscribers))
	}
}

func TestConflictCarriesMissingOVNs(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(AirspaceConflictResponse{
			Message: "missing airspace keys",
			MissingOperationalIntents: []OperationalIntentReference{
				{ID: "other-1", OVN: "ovn-x"},
				{ID: "other-2", OVN: "ovn-y"},
			},
		})
	}))

	_, err := client.CreateOperationalIntentReference(context.Background(), "opint-1", testPutParams())
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected *ConflictError, got %T", err)
	}
	ovns := conflict.MissingOVNs()
	if len(ovns) != 2 || ovns[0] != "ovn-x" || ovns[1] != "ovn-y" {
		t.Errorf("unexpected missing ovns %v", ovns)
	}
}

func TestUpdateAndDeleteUseOVNPath(t *testing.T) {
	var paths []string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ChangeOperationalIntentReferenceResponse{
			OperationalIntentReference: OperationalIntentReference{ID: "opint-1", OVN: "ovn-2"},
		})
	}))
	ctx := context.Background()

	if _, err := client.UpdateOperationalIntentReference(ctx, "opint-1", "ovn-1", testPutParams()); err != nil {
		t.Fatalf("failed to update: %v", err)
	}
	if _, err := client.DeleteOperationalIntentReference(ctx, "opint-1", "ovn-2"); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}

	want := []string{
		"PUT /dss/v1/operational_intent_references/opint-1/ovn-1",
		"DELETE /dss/v1/operational_intent_references/opint-1/ovn-2",
	}
	for i, path := range want {
		if paths[i] != path {
			t.Errorf("request %d = %q, want %q", i, paths[i], path)
		}
	}
}

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		status int
		target error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrUnauthorized},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusBadGateway, ErrUnavailable},
	}
	for _, tt := range tests {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		_, err := client.GetOperationalIntentReference(context.Background(), "opint-1")
		if !errors.Is(err, tt.target) {
			t.Errorf("status %d: expected %v, got %v", tt.status, tt.target, err)
		}
	}
}

func TestQueryOperationalIntentReferences(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/dss/v1/operational_intent_references/query" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(QueryOperationalIntentReferenceResponse{
			OperationalIntentReferences: []OperationalIntentReference{{ID: "a"}, {ID: "b"}},
		})
	}))

	start := time.Now().UTC()
	references, err := client.QueryOperationalIntentReferences(context.Background(), &QueryOperationalIntentReferenceParameters{
		AreaOfInterest: geo.Volume4D{TimeStart: geo.NewTime(start), TimeEnd: geo.NewTime(start.Add(time.Hour))},
	})
	if err != nil {
		t.Fatalf("failed to query: %v", err)
	}
	if len(references) != 2 {
		t.Errorf("expected 2 references, got %d", len(references))
	}
}
