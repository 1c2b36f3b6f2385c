package orchestrator

import (
	"context"
	"errors"

	"github.com/openutm/flightdeck/internal/logger"
	"github.com/openutm/flightdeck/pkg/coordination/models"
	"github.com/openutm/flightdeck/pkg/dss"
)

// OperationalIntent serves the inbound details request from a peer USS:
// the cached reference and details for an operational intent id.
func (o *Orchestrator) OperationalIntent(ctx context.Context, operationalIntentID string) (*dss.OperationalIntent, error) {
	snapshot, err := o.snapshots.GetByOperationalIntent(ctx, operationalIntentID)
	if err != nil {
		return nil, err
	}
	return &dss.OperationalIntent{Reference: snapshot.Reference, Details: snapshot.Details}, nil
}

// HandleUSSNotification processes a peer-initiated operational intent change.
// Notifications about our own intents are ignored; we are authoritative for
// those. Peer intents are cached as snapshots so deconfliction and the
// details endpoint see them; a nil intent removes the cache entry.
func (o *Orchestrator) HandleUSSNotification(ctx context.Context, params *dss.PutOperationalIntentDetailsParameters) error {
	if params == nil || params.OperationalIntentID == "" {
		return newError(KindValidation, "notification has no operational intent id")
	}

	snapshot, err := o.snapshots.GetByOperationalIntent(ctx, params.OperationalIntentID)
	if err != nil && !errors.Is(err, dss.ErrSnapshotNotFound) {
		return err
	}
	if snapshot != nil {
		if _, derr := o.store.GetDeclaration(ctx, snapshot.DeclarationID); derr == nil {
			logger.DebugCtx(ctx, "Ignoring peer notification about our own intent",
				logger.OpIntentID(params.OperationalIntentID))
			return nil
		} else if !errors.Is(derr, models.ErrDeclarationNotFound) {
			return derr
		}
	}

	if params.OperationalIntent == nil {
		if snapshot != nil {
			logger.InfoCtx(ctx, "Peer operational intent removed",
				logger.OpIntentID(params.OperationalIntentID))
			return o.snapshots.Delete(ctx, snapshot.DeclarationID)
		}
		return nil
	}

	declarationID := params.OperationalIntentID
	if snapshot != nil {
		declarationID = snapshot.DeclarationID
	}
	logger.InfoCtx(ctx, "Caching peer operational intent",
		logger.OpIntentID(params.OperationalIntentID))
	return o.snapshots.Write(ctx, &dss.Snapshot{
		DeclarationID:       declarationID,
		OperationalIntentID: params.OperationalIntentID,
		Reference:           params.OperationalIntent.Reference,
		Details:             params.OperationalIntent.Details,
	})
}
