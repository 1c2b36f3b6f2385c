// Package store persists flight declarations, authorizations, tracking
// history and geofences.
package store

import (
	"context"
	"time"

	"github.com/openutm/flightdeck/pkg/coordination/models"
	"github.com/openutm/flightdeck/pkg/geo"
)

// DeclarationFilter narrows List queries. Zero fields are ignored.
type DeclarationFilter struct {
	// Window selects declarations whose [start, end] overlaps [After, Before].
	After  time.Time
	Before time.Time

	// Viewport selects declarations whose bounds intersect the box.
	Viewport *geo.Bounds

	// States limits results to the given numeric states.
	States []int
}

// Store is the persistence interface for flight coordination.
type Store interface {
	// Declarations
	CreateDeclaration(ctx context.Context, declaration *models.FlightDeclaration) error
	GetDeclaration(ctx context.Context, id string) (*models.FlightDeclaration, error)
	ListDeclarations(ctx context.Context, filter DeclarationFilter) ([]models.FlightDeclaration, error)
	DeleteDeclaration(ctx context.Context, id string) error
	SetApproved(ctx context.Context, id string, approved bool, approvedBy string) error
	SetLatestTelemetry(ctx context.Context, id string, at time.Time) error

	// TransitionState moves a declaration to newState and appends a tracking
	// entry in the same transaction. It returns the prior state.
	TransitionState(ctx context.Context, id string, newState int, notes string) (int, error)

	// Authorizations
	UpsertAuthorization(ctx context.Context, declarationID, dssOperationalIntentID string) error
	GetAuthorization(ctx context.Context, declarationID string) (*models.FlightAuthorization, error)

	// Tracking
	ListTracking(ctx context.Context, declarationID string) ([]models.FlightOperationTracking, error)

	// Geofences
	CreateGeoFence(ctx context.Context, fence *models.GeoFence) error
	ListGeoFences(ctx context.Context, viewport *geo.Bounds, after, before time.Time) ([]models.GeoFence, error)

	// Close releases the underlying database connection.
	Close() error
}
