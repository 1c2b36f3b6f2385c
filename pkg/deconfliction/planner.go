// Package deconfliction implements the advisory self-deconfliction check run
// before an operational intent is submitted to the DSS. The DSS retains
// airspace authority; a local pass only means we found no known overlap.
package deconfliction

import (
	"context"
	"fmt"
	"time"

	"github.com/openutm/flightdeck/internal/logger"
	"github.com/openutm/flightdeck/pkg/coordination/store"
	"github.com/openutm/flightdeck/pkg/dss"
	"github.com/openutm/flightdeck/pkg/geo"
	"github.com/openutm/flightdeck/pkg/spatial"
)

// Candidate is the declaration being checked.
type Candidate struct {
	DeclarationID string
	Bounds        geo.Bounds
	Start         time.Time
	End           time.Time
	Priority      int
}

// Result is the outcome of a planner run.
type Result struct {
	// Clear is true when no known flight conflicts with the candidate.
	Clear bool

	// ConflictingIDs lists the declaration ids that overlap in space and
	// time and are not dominated in priority.
	ConflictingIDs []string

	// GeofenceIDs lists intersecting geofences. Geofence hits are advisory
	// and clear the approval flag without blocking submission.
	GeofenceIDs []string
}

// Planner rebuilds an ephemeral R-tree from the live KV snapshots for every
// query. The index never outlives the call, so it cannot go stale.
type Planner struct {
	snapshots *dss.SnapshotStore
	store     store.Store
}

// NewPlanner returns a planner over the snapshot and relational stores.
func NewPlanner(snapshots *dss.SnapshotStore, st store.Store) *Planner {
	return &Planner{snapshots: snapshots, store: st}
}

// Check runs self-deconfliction and the geofence query for the candidate.
func (p *Planner) Check(ctx context.Context, candidate Candidate) (*Result, error) {
	index := spatial.NewIndex()
	defer index.Clear()

	ids, err := p.snapshots.ListDeclarationIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list operation snapshots: %w", err)
	}
	for _, id := range ids {
		if id == candidate.DeclarationID {
			continue
		}
		snapshot, err := p.snapshots.GetByDeclaration(ctx, id)
		if err != nil {
			// Snapshot expired between scan and read.
			continue
		}
		bounds, err := geo.BoundsOf(snapshot.Details.Volumes)
		if err != nil {
			logger.WarnCtx(ctx, "Skipping snapshot without usable volumes",
				logger.FlightID(id), logger.Err(err))
			continue
		}
		start, end, err := geo.Window(snapshot.Details.Volumes)
		if err != nil {
			logger.WarnCtx(ctx, "Skipping snapshot without time window",
				logger.FlightID(id), logger.Err(err))
			continue
		}
		if err := index.Insert(id, bounds, spatial.Metadata{
			StartTime: start,
			EndTime:   end,
			OwnerID:   snapshot.Reference.Manager,
			Priority:  snapshot.Details.Priority,
		}); err != nil {
			return nil, err
		}
	}

	hits, err := index.Query(candidate.Bounds)
	if err != nil {
		return nil, err
	}

	result := &Result{Clear: true}
	for _, hit := range hits {
		if !overlaps(candidate.Start, candidate.End, hit.Metadata.StartTime, hit.Metadata.EndTime) {
			continue
		}
		// A temporally overlapping hit blocks unless the candidate strictly
		// dominates it in priority.
		if candidate.Priority > hit.Metadata.Priority {
			continue
		}
		result.Clear = false
		result.ConflictingIDs = append(result.ConflictingIDs, hit.ID)
	}

	fences, err := p.checkGeofences(ctx, candidate)
	if err != nil {
		return nil, err
	}
	result.GeofenceIDs = fences

	return result, nil
}

// checkGeofences queries time-windowed geofences through their own ephemeral
// index.
func (p *Planner) checkGeofences(ctx context.Context, candidate Candidate) ([]string, error) {
	fences, err := p.store.ListGeoFences(ctx, nil, candidate.Start, candidate.End)
	if err != nil {
		return nil, fmt.Errorf("failed to list geofences: %w", err)
	}
	if len(fences) == 0 {
		return nil, nil
	}

	index := spatial.NewIndex()
	defer index.Clear()
	for _, fence := range fences {
		bounds, err := geo.ParseBounds(fence.Bounds)
		if err != nil {
			continue
		}
		if err := index.Insert(fence.ID, bounds, spatial.Metadata{
			StartTime: fence.StartDatetime,
			EndTime:   fence.EndDatetime,
		}); err != nil {
			return nil, err
		}
	}

	hits, err := index.Query(candidate.Bounds)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(hits))
	for _, hit := range hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aStart.After(bEnd) && !bStart.After(aEnd)
}
