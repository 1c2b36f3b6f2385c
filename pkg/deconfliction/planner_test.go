package deconfliction

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/openutm/flightdeck/pkg/coordination/models"
	"github.com/openutm/flightdeck/pkg/coordination/store"
	"github.com/openutm/flightdeck/pkg/dss"
	"github.com/openutm/flightdeck/pkg/geo"
	"github.com/openutm/flightdeck/pkg/kv"
)

func newTestPlanner(t *testing.T) (*Planner, *dss.SnapshotStore, store.Store) {
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

	return NewPlanner(snapshots, gormStore), snapshots, gormStore
}

// bernVolume is a rectangle over Bern with the given window.
func bernVolume(start, end time.Time) []geo.Volume4D {
	return []geo.Volume4D{{
		Volume: geo.Volume3D{
			OutlinePolygon: &geo.Polygon{Vertices: []geo.LatLngPoint{
				{Lat: 46.93, Lng: 7.40},
				{Lat: 46.93, Lng: 7.50},
				{Lat: 46.99, Lng: 7.50},
				{Lat: 46.99, Lng: 7.40},
			}},
		},
		TimeStart: geo.NewTime(start),
		TimeEnd:   geo.NewTime(end),
	}}
}

func writeSnapshot(t *testing.T, snapshots *dss.SnapshotStore, declarationID string, volumes []geo.Volume4D, priority int) {
	t.Helper()
	err := snapshots.Write(context.Background(), &dss.Snapshot{
		DeclarationID:       declarationID,
		OperationalIntentID: "opint-" + declarationID,
		Reference: dss.OperationalIntentReference{
			ID:      "opint-" + declarationID,
			Manager: "uss-self",
			State:   dss.IntentStateAccepted,
			OVN:     "ovn-" + declarationID,
		},
		Details: dss.OperationalIntentDetails{Volumes: volumes, Priority: priority},
	})
	if err != nil {
		t.Fatalf("failed to write snapshot: %v", err)
	}
}

func TestCheckClearAirspace(t *testing.T) {
	planner, _, _ := newTestPlanner(t)
	now := time.Now().UTC()

	result, err := planner.Check(context.Background(), Candidate{
		DeclarationID: "candidate",
		Bounds:        geo.Bounds{MinLng: 7.40, MinLat: 46.93, MaxLng: 7.50, MaxLat: 46.99},
		Start:         now.Add(time.Hour),
		End:           now.Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("failed to check: %v", err)
	}
	if !result.Clear {
		t.Errorf("expected clear airspace, got conflicts %v", result.ConflictingIDs)
	}
}

func TestCheckSpatialTemporalConflict(t *testing.T) {
	planner, snapshots, _ := newTestPlanner(t)
	now := time.Now().UTC()
	writeSnapshot(t, snapshots, "existing", bernVolume(now.Add(time.Hour), now.Add(2*time.Hour)), 0)

	t.Run("overlap in space and time conflicts", func(t *testing.T) {
		result, err := planner.Check(context.Background(), Candidate{
			DeclarationID: "candidate",
			Bounds:        geo.Bounds{MinLng: 7.45, MinLat: 46.95, MaxLng: 7.47, MaxLat: 46.97},
			Start:         now.Add(90 * time.Minute),
			End:           now.Add(3 * time.Hour),
		})
		if err != nil {
			t.Fatalf("failed to check: %v", err)
		}
		if result.Clear {
			t.Fatal("expected conflict")
		}
		if len(result.ConflictingIDs) != 1 || result.ConflictingIDs[0] != "existing" {
			t.Errorf("unexpected conflicts %v", result.ConflictingIDs)
		}
	})

	t.Run("spatial overlap with disjoint window passes", func(t *testing.T) {
		result, err := planner.Check(context.Background(), Candidate{
			DeclarationID: "candidate",
			Bounds:        geo.Bounds{MinLng: 7.45, MinLat: 46.95, MaxLng: 7.47, MaxLat: 46.97},
			Start:         now.Add(5 * time.Hour),
			End:           now.Add(6 * time.Hour),
		})
		if err != nil {
			t.Fatalf("failed to check: %v", err)
		}
		if !result.Clear {
			t.Errorf("expected clear, got conflicts %v", result.ConflictingIDs)
		}
	})

	t.Run("disjoint bounds pass", func(t *testing.T) {
		result, err := planner.Check(context.Background(), Candidate{
			DeclarationID: "candidate",
			Bounds:        geo.Bounds{MinLng: 8.48, MinLat: 47.32, MaxLng: 8.60, MaxLat: 47.43},
			Start:         now.Add(time.Hour),
			End:           now.Add(2 * time.Hour),
		})
		if err != nil {
			t.Fatalf("failed to check: %v", err)
		}
		if !result.Clear {
			t.Errorf("expected clear, got conflicts %v", result.ConflictingIDs)
		}
	})

	t.Run("own snapshot is ignored", func(t *testing.T) {
		result, err := planner.Check(context.Background(), Candidate{
			DeclarationID: "existing",
			Bounds:        geo.Bounds{MinLng: 7.45, MinLat: 46.95, MaxLng: 7.47, MaxLat: 46.97},
			Start:         now.Add(time.Hour),
			End:           now.Add(2 * time.Hour),
		})
		if err != nil {
			t.Fatalf("failed to check: %v", err)
		}
		if !result.Clear {
			t.Errorf("expected clear for own declaration, got %v", result.ConflictingIDs)
		}
	})
}

func TestCheckPriorityDominance(t *testing.T) {
	planner, snapshots, _ := newTestPlanner(t)
	now := time.Now().UTC()
	writeSnapshot(t, snapshots, "low-priority", bernVolume(now.Add(time.Hour), now.Add(2*time.Hour)), 0)

	t.Run("higher priority candidate dominates", func(t *testing.T) {
		result, err := planner.Check(context.Background(), Candidate{
			DeclarationID: "candidate",
			Bounds:        geo.Bounds{MinLng: 7.45, MinLat: 46.95, MaxLng: 7.47, MaxLat: 46.97},
			Start:         now.Add(time.Hour),
			End:           now.Add(2 * time.Hour),
			Priority:      100,
		})
		if err != nil {
			t.Fatalf("failed to check: %v", err)
		}
		if !result.Clear {
			t.Errorf("expected dominance to clear, got %v", result.ConflictingIDs)
		}
	})

	t.Run("equal priority conflicts", func(t *testing.T) {
		result, err := planner.Check(context.Background(), Candidate{
			DeclarationID: "candidate",
			Bounds:        geo.Bounds{MinLng: 7.45, MinLat: 46.95, MaxLng: 7.47, MaxLat: 46.97},
			Start:         now.Add(time.Hour),
			End:           now.Add(2 * time.Hour),
			Priority:      0,
		})
		if err != nil {
			t.Fatalf("failed to check: %v", err)
		}
		if result.Clear {
			t.Error("expected equal priority to conflict")
		}
	})
}

func TestCheckGeofenceAdvisory(t *testing.T) {
	planner, _, gormStore := newTestPlanner(t)
	now := time.Now().UTC()

	fence := &models.GeoFence{
		ID:            "fence-1",
		Name:          "Airport CTR",
		Bounds:        "7.40,46.93,7.50,46.99",
		StartDatetime: now,
		EndDatetime:   now.Add(3 * time.Hour),
	}
	if err := gormStore.CreateGeoFence(context.Background(), fence); err != nil {
		t.Fatalf("failed to create geofence: %v", err)
	}

	result, err := planner.Check(context.Background(), Candidate{
		DeclarationID: "candidate",
		Bounds:        geo.Bounds{MinLng: 7.45, MinLat: 46.95, MaxLng: 7.47, MaxLat: 46.97},
		Start:         now.Add(time.Hour),
		End:           now.Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("failed to check: %v", err)
	}
	// Geofence hits are advisory: the check still passes.
	if !result.Clear {
		t.Errorf("expected geofence hit not to block, got %v", result.ConflictingIDs)
	}
	if len(result.GeofenceIDs) != 1 || result.GeofenceIDs[0] != "fence-1" {
		t.Errorf("unexpected geofence hits %v", result.GeofenceIDs)
	}
}
