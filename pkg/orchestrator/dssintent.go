package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/openutm/flightdeck/internal/logger"
	"github.com/openutm/flightdeck/pkg/coordination/models"
	"github.com/openutm/flightdeck/pkg/dss"
	"github.com/openutm/flightdeck/pkg/geo"
	"github.com/openutm/flightdeck/pkg/metrics"
)

// updateDSSIntent moves the operational intent at the DSS to a new state,
// optionally attaching off-nominal volumes, then refreshes the snapshot and
// notifies peers. Declarations without a DSS-backed snapshot update the local
// snapshot only.
func (o *Orchestrator) updateDSSIntent(ctx context.Context, declaration *models.FlightDeclaration, intentState string, offNominal []geo.Volume4D) error {
	snapshot, err := o.snapshots.GetByDeclaration(ctx, declaration.ID)
	if errors.Is(err, dss.ErrSnapshotNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if !o.config.USSPNetworkEnabled || snapshot.Reference.OVN == "" {
		// Local-only operation; keep the snapshot honest for deconfliction
		// and the inbound details endpoint.
		snapshot.Reference.State = intentState
		snapshot.Details.OffNominalVolumes = offNominal
		return o.snapshots.Write(ctx, snapshot)
	}

	intent, err := declaration.Intent()
	if err != nil {
		return wrapError(KindInternal, err, "declaration %s has no parsable intent", declaration.ID)
	}

	params := &dss.PutOperationalIntentReferenceParameters{
		Extents:    intent.Volumes,
		Key:        []string{snapshot.Reference.OVN},
		State:      intentState,
		USSBaseURL: o.config.SelfBaseURL,
	}

	start := time.Now()
	response, err := o.dss.UpdateOperationalIntentReference(ctx, snapshot.OperationalIntentID, snapshot.Reference.OVN, params)
	var conflict *dss.ConflictError
	if errors.As(err, &conflict) && len(conflict.MissingOVNs()) > 0 {
		// Refresh the airspace key with the OVNs the DSS told us about.
		params.Key = append(conflict.MissingOVNs(), snapshot.Reference.OVN)
		response, err = o.dss.UpdateOperationalIntentReference(ctx, snapshot.OperationalIntentID, snapshot.Reference.OVN, params)
	}
	if err != nil {
		metrics.RecordDSSCall(o.metrics, "update", time.Since(start), dssOutcome(err))
		return err
	}
	metrics.RecordDSSCall(o.metrics, "update", time.Since(start), "ok")

	snapshot.Reference = response.OperationalIntentReference
	snapshot.Details.OffNominalVolumes = offNominal
	if err := o.snapshots.Write(ctx, snapshot); err != nil {
		return err
	}

	if o.notifier != nil {
		o.notifier.NotifySubscribers(ctx, response.Subscribers, &dss.PutOperationalIntentDetailsParameters{
			OperationalIntentID: snapshot.OperationalIntentID,
			OperationalIntent:   &dss.OperationalIntent{Reference: snapshot.Reference, Details: snapshot.Details},
		})
	}
	return nil
}

// endDSSIntent removes the operational intent from the DSS and drops the
// snapshot. Peers subscribed to the area get a deletion notification.
func (o *Orchestrator) endDSSIntent(ctx context.Context, declarationID string) {
	snapshot, err := o.snapshots.GetByDeclaration(ctx, declarationID)
	if errors.Is(err, dss.ErrSnapshotNotFound) {
		return
	}
	if err != nil {
		logger.WarnCtx(ctx, "Failed to read snapshot while ending operation",
			logger.FlightID(declarationID), logger.Err(err))
		return
	}

	if o.config.USSPNetworkEnabled && snapshot.Reference.OVN != "" {
		start := time.Now()
		response, err := o.dss.DeleteOperationalIntentReference(ctx, snapshot.OperationalIntentID, snapshot.Reference.OVN)
		if err != nil {
			metrics.RecordDSSCall(o.metrics, "delete", time.Since(start), dssOutcome(err))
			logger.WarnCtx(ctx, "Failed to delete operational intent at DSS",
				logger.FlightID(declarationID), logger.OpIntentID(snapshot.OperationalIntentID), logger.Err(err))
		} else {
			metrics.RecordDSSCall(o.metrics, "delete", time.Since(start), "ok")
			if o.notifier != nil {
				o.notifier.NotifySubscribers(ctx, response.Subscribers, &dss.PutOperationalIntentDetailsParameters{
					OperationalIntentID: snapshot.OperationalIntentID,
				})
			}
		}
	}

	if err := o.snapshots.Delete(ctx, declarationID); err != nil {
		logger.WarnCtx(ctx, "Failed to drop snapshot of ended operation",
			logger.FlightID(declarationID), logger.Err(err))
	}
}

func dssOutcome(err error) string {
	if errors.Is(err, dss.ErrConflict) {
		return "conflict"
	}
	return "error"
}
