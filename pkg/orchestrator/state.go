package orchestrator

import (
	"context"
	"fmt"

	"github.com/openutm/flightdeck/internal/logger"
	"github.com/openutm/flightdeck/pkg/coordination/fsm"
	"github.com/openutm/flightdeck/pkg/coordination/models"
	"github.com/openutm/flightdeck/pkg/dss"
	"github.com/openutm/flightdeck/pkg/metrics"
	"github.com/openutm/flightdeck/pkg/notification"
)

// ChangeState applies an operator-requested state change. Only Activated(2),
// Contingent(4) and Ended(5) may be requested; the implied event must be
// legal from the current state. Returns the new state.
func (o *Orchestrator) ChangeState(ctx context.Context, declarationID string, target int) (int, error) {
	targetState := fsm.FromInt(target)
	event, ok := fsm.OperatorEventForState(targetState)
	if !ok {
		return 0, newError(KindValidation, "operator may only set states 2, 4 or 5, got %d", target)
	}

	unlock := o.locks.lock(declarationID)
	defer unlock()

	declaration, err := o.store.GetDeclaration(ctx, declarationID)
	if err != nil {
		return 0, err
	}

	current := fsm.FromInt(declaration.State)
	if !fsm.CanTransition(current, event) {
		return 0, wrapError(KindValidation, models.ErrIllegalTransition,
			"cannot move from %s to %s", current, targetState)
	}
	next := fsm.Next(current, event)

	note := fmt.Sprintf("Operator changed state to %s", next)
	if _, err := o.store.TransitionState(ctx, declarationID, int(next), note); err != nil {
		return 0, wrapError(KindInternal, err, "failed to apply state change")
	}
	metrics.RecordTransition(o.metrics, current.String(), next.String(), string(event))
	logger.InfoCtx(ctx, "Operator state change applied",
		logger.FlightID(declarationID), logger.State(int(next)), logger.Event(string(event)))

	declaration.State = int(next)
	switch next {
	case fsm.StateActivated:
		if o.config.EnableConformanceMonitoring {
			if jobs := o.scheduler(); jobs != nil {
				jobs.StartMonitor(declarationID)
			}
		}
		if err := o.updateDSSIntent(ctx, declaration, dss.IntentStateActivated, nil); err != nil {
			logger.WarnCtx(ctx, "Failed to update DSS intent to Activated",
				logger.FlightID(declarationID), logger.Err(err))
		}
	case fsm.StateContingent:
		if err := o.updateDSSIntent(ctx, declaration, dss.IntentStateContingent, nil); err != nil {
			logger.WarnCtx(ctx, "Failed to update DSS intent to Contingent",
				logger.FlightID(declarationID), logger.Err(err))
		}
	case fsm.StateEnded:
		if jobs := o.scheduler(); jobs != nil {
			jobs.StopMonitor(declarationID)
		}
		o.endDSSIntent(ctx, declarationID)
	}

	o.SendOperationalUpdate(ctx, declarationID, note, notification.LevelInfo)
	return int(next), nil
}
