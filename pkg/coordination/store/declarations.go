package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openutm/flightdeck/pkg/coordination/models"
	"github.com/openutm/flightdeck/pkg/geo"
)

// CreateDeclaration stores a new declaration together with its (empty)
// authorization record in one transaction.
func (s *GORMStore) CreateDeclaration(ctx context.Context, declaration *models.FlightDeclaration) error {
	if declaration.ID == "" {
		declaration.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(declaration).Error; err != nil {
			if isUniqueConstraintError(err) {
				return models.ErrDuplicateDeclaration
			}
			return fmt.Errorf("failed to create declaration: %w", err)
		}
		authorization := &models.FlightAuthorization{
			ID:            uuid.NewString(),
			DeclarationID: declaration.ID,
		}
		if err := tx.Create(authorization).Error; err != nil {
			return fmt.Errorf("failed to create authorization: %w", err)
		}
		declaration.Authorization = authorization
		return nil
	})
}

// GetDeclaration returns the declaration with its authorization preloaded.
func (s *GORMStore) GetDeclaration(ctx context.Context, id string) (*models.FlightDeclaration, error) {
	var declaration models.FlightDeclaration
	err := s.db.WithContext(ctx).
		Preload("Authorization").
		First(&declaration, "id = ?", id).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrDeclarationNotFound)
	}
	return &declaration, nil
}

// ListDeclarations returns declarations matching the filter, newest first.
// Viewport filtering intersects the stored bounding boxes in memory since
// SQLite has no spatial operators.
func (s *GORMStore) ListDeclarations(ctx context.Context, filter DeclarationFilter) ([]models.FlightDeclaration, error) {
	query := s.db.WithContext(ctx).Preload("Authorization").Order("created_at DESC")
	if !filter.After.IsZero() {
		query = query.Where("end_datetime >= ?", filter.After)
	}
	if !filter.Before.IsZero() {
		query = query.Where("start_datetime <= ?", filter.Before)
	}
	if len(filter.States) > 0 {
		query = query.Where("state IN ?", filter.States)
	}

	var declarations []models.FlightDeclaration
	if err := query.Find(&declarations).Error; err != nil {
		return nil, fmt.Errorf("failed to list declarations: %w", err)
	}

	if filter.Viewport == nil {
		return declarations, nil
	}
	filtered := declarations[:0]
	for _, declaration := range declarations {
		bounds, err := geo.ParseBounds(declaration.Bounds)
		if err != nil {
			continue
		}
		if bounds.Intersects(*filter.Viewport) {
			filtered = append(filtered, declaration)
		}
	}
	return filtered, nil
}

// DeleteDeclaration removes the declaration and its dependents.
func (s *GORMStore) DeleteDeclaration(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&models.FlightDeclaration{}, "id = ?", id)
		if result.Error != nil {
			return fmt.Errorf("failed to delete declaration: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return models.ErrDeclarationNotFound
		}
		if err := tx.Delete(&models.FlightAuthorization{}, "declaration_id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to delete authorization: %w", err)
		}
		if err := tx.Delete(&models.FlightOperationTracking{}, "declaration_id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to delete tracking: %w", err)
		}
		return nil
	})
}

// SetApproved updates the advisory approval flag.
func (s *GORMStore) SetApproved(ctx context.Context, id string, approved bool, approvedBy string) error {
	result := s.db.WithContext(ctx).Model(&models.FlightDeclaration{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_approved": approved, "approved_by": approvedBy})
	if result.Error != nil {
		return fmt.Errorf("failed to update approval: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.ErrDeclarationNotFound
	}
	return nil
}

// SetLatestTelemetry records the time of the most recent telemetry for the
// declaration.
func (s *GORMStore) SetLatestTelemetry(ctx context.Context, id string, at time.Time) error {
	result := s.db.WithContext(ctx).Model(&models.FlightDeclaration{}).
		Where("id = ?", id).
		Update("latest_telemetry_datetime", at)
	if result.Error != nil {
		return fmt.Errorf("failed to update telemetry time: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.ErrDeclarationNotFound
	}
	return nil
}

// TransitionState moves the declaration to newState and appends a tracking
// entry in the same transaction. The write is atomic: either both the state
// and the history entry land, or neither does.
func (s *GORMStore) TransitionState(ctx context.Context, id string, newState int, notes string) (int, error) {
	var previous int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var declaration models.FlightDeclaration
		if err := tx.First(&declaration, "id = ?", id).Error; err != nil {
			return convertNotFoundError(err, models.ErrDeclarationNotFound)
		}
		previous = declaration.State

		if err := tx.Model(&declaration).Update("state", newState).Error; err != nil {
			return fmt.Errorf("failed to update state: %w", err)
		}
		entry := &models.FlightOperationTracking{
			ID:            uuid.NewString(),
			DeclarationID: id,
			OriginalState: previous,
			NewState:      newState,
			Notes:         notes,
		}
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("failed to append tracking entry: %w", err)
		}
		return nil
	})
	return previous, err
}

// UpsertAuthorization sets the DSS operational intent reference id on the
// declaration's authorization record.
func (s *GORMStore) UpsertAuthorization(ctx context.Context, declarationID, dssOperationalIntentID string) error {
	result := s.db.WithContext(ctx).Model(&models.FlightAuthorization{}).
		Where("declaration_id = ?", declarationID).
		Update("dss_operational_intent_id", dssOperationalIntentID)
	if result.Error != nil {
		return fmt.Errorf("failed to update authorization: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		authorization := &models.FlightAuthorization{
			ID:                     uuid.NewString(),
			DeclarationID:          declarationID,
			DSSOperationalIntentID: dssOperationalIntentID,
		}
		if err := s.db.WithContext(ctx).Create(authorization).Error; err != nil {
			return fmt.Errorf("failed to create authorization: %w", err)
		}
	}
	return nil
}

// GetAuthorization returns the authorization record for the declaration.
func (s *GORMStore) GetAuthorization(ctx context.Context, declarationID string) (*models.FlightAuthorization, error) {
	var authorization models.FlightAuthorization
	err := s.db.WithContext(ctx).First(&authorization, "declaration_id = ?", declarationID).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrAuthorizationNotFound)
	}
	return &authorization, nil
}

// ListTracking returns the state change history of the declaration, oldest
// first.
func (s *GORMStore) ListTracking(ctx context.Context, declarationID string) ([]models.FlightOperationTracking, error) {
	var entries []models.FlightOperationTracking
	err := s.db.WithContext(ctx).
		Where("declaration_id = ?", declarationID).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tracking: %w", err)
	}
	return entries, nil
}
