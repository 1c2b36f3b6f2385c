package spatial

import (
	"testing"
	"time"

	"github.com/openutm/flightdeck/pkg/geo"
)

func TestInsertQuery(t *testing.T) {
	idx := NewIndex()
	now := time.Now()

	bern := geo.Bounds{MinLng: 7.40, MinLat: 46.93, MaxLng: 7.50, MaxLat: 46.99}
	zurich := geo.Bounds{MinLng: 8.48, MinLat: 47.32, MaxLng: 8.60, MaxLat: 47.43}

	if err := idx.Insert("flight-a", bern, Metadata{StartTime: now, EndTime: now.Add(time.Hour), OwnerID: "uss-a", Priority: 0}); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}
	if err := idx.Insert("flight-b", zurich, Metadata{StartTime: now, EndTime: now.Add(time.Hour), OwnerID: "uss-b", Priority: 100}); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}

	t.Run("overlapping box returns only the overlapping entry", func(t *testing.T) {
		hits, err := idx.Query(geo.Bounds{MinLng: 7.45, MinLat: 46.95, MaxLng: 7.47, MaxLat: 46.97})
		if err != nil {
			t.Fatalf("failed to query: %v", err)
		}
		if len(hits) != 1 {
			t.Fatalf("expected 1 hit, got %d", len(hits))
		}
		if hits[0].ID != "flight-a" {
			t.Errorf("expected flight-a, got %s", hits[0].ID)
		}
		if hits[0].Metadata.OwnerID != "uss-a" {
			t.Errorf("metadata lost: %+v", hits[0].Metadata)
		}
	})

	t.Run("disjoint box returns nothing", func(t *testing.T) {
		hits, err := idx.Query(geo.Bounds{MinLng: 10, MinLat: 50, MaxLng: 11, MaxLat: 51})
		if err != nil {
			t.Fatalf("failed to query: %v", err)
		}
		if len(hits) != 0 {
			t.Errorf("expected no hits, got %d", len(hits))
		}
	})

	t.Run("box covering both returns both", func(t *testing.T) {
		hits, err := idx.Query(geo.Bounds{MinLng: 7, MinLat: 46, MaxLng: 9, MaxLat: 48})
		if err != nil {
			t.Fatalf("failed to query: %v", err)
		}
		if len(hits) != 2 {
			t.Errorf("expected 2 hits, got %d", len(hits))
		}
	})
}

func TestInsertReplaces(t *testing.T) {
	idx := NewIndex()

	first := geo.Bounds{MinLng: 7.40, MinLat: 46.93, MaxLng: 7.50, MaxLat: 46.99}
	second := geo.Bounds{MinLng: 8.48, MinLat: 47.32, MaxLng: 8.60, MaxLat: 47.43}

	if err := idx.Insert("flight-a", first, Metadata{}); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}
	if err := idx.Insert("flight-a", second, Metadata{}); err != nil {
		t.Fatalf("failed to re-insert: %v", err)
	}
	if idx.Size() != 1 {
		t.Fatalf("expected 1 entry, got %d", idx.Size())
	}

	hits, err := idx.Query(first)
	if err != nil {
		t.Fatalf("failed to query: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("old footprint still indexed")
	}
	hits, err = idx.Query(second)
	if err != nil {
		t.Fatalf("failed to query: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("new footprint not indexed")
	}
}

func TestDeleteAndClear(t *testing.T) {
	idx := NewIndex()
	bounds := geo.Bounds{MinLng: 7.40, MinLat: 46.93, MaxLng: 7.50, MaxLat: 46.99}

	if err := idx.Insert("flight-a", bounds, Metadata{}); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}
	idx.Delete("flight-a")
	idx.Delete("never-existed")
	if idx.Size() != 0 {
		t.Fatalf("expected empty index, got %d", idx.Size())
	}

	if err := idx.Insert("flight-a", bounds, Metadata{}); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}
	idx.Clear()
	if idx.Size() != 0 {
		t.Fatalf("expected cleared index, got %d", idx.Size())
	}
}

func TestHashIDStable(t *testing.T) {
	if hashID("abc") != hashID("abc") {
		t.Error("hash not stable")
	}
	if hashID("abc") == hashID("abd") {
		t.Error("distinct ids collided")
	}
}

func TestDegeneratePointBounds(t *testing.T) {
	idx := NewIndex()
	point := geo.Bounds{MinLng: 7.45, MinLat: 46.95, MaxLng: 7.45, MaxLat: 46.95}
	if err := idx.Insert("point", point, Metadata{}); err != nil {
		t.Fatalf("failed to insert point bounds: %v", err)
	}
	hits, err := idx.Query(geo.Bounds{MinLng: 7.44, MinLat: 46.94, MaxLng: 7.46, MaxLat: 46.96})
	if err != nil {
		t.Fatalf("failed to query: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("expected point entry hit, got %d", len(hits))
	}
}
