package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openutm/flightdeck/pkg/coordination/models"
	"github.com/openutm/flightdeck/pkg/geo"
)

// CreateGeoFence stores a new geofence.
func (s *GORMStore) CreateGeoFence(ctx context.Context, fence *models.GeoFence) error {
	if fence.ID == "" {
		fence.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(fence).Error; err != nil {
		return fmt.Errorf("failed to create geofence: %w", err)
	}
	return nil
}

// ListGeoFences returns geofences whose time window overlaps [after, before]
// and, when a viewport is given, whose bounds intersect it.
func (s *GORMStore) ListGeoFences(ctx context.Context, viewport *geo.Bounds, after, before time.Time) ([]models.GeoFence, error) {
	query := s.db.WithContext(ctx).Order("created_at DESC")
	if !after.IsZero() {
		query = query.Where("end_datetime >= ?", after)
	}
	if !before.IsZero() {
		query = query.Where("start_datetime <= ?", before)
	}

	var fences []models.GeoFence
	if err := query.Find(&fences).Error; err != nil {
		return nil, fmt.Errorf("failed to list geofences: %w", err)
	}

	if viewport == nil {
		return fences, nil
	}
	filtered := fences[:0]
	for _, fence := range fences {
		bounds, err := geo.ParseBounds(fence.Bounds)
		if err != nil {
			continue
		}
		if bounds.Intersects(*viewport) {
			filtered = append(filtered, fence)
		}
	}
	return filtered, nil
}
