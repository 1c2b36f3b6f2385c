package orchestrator

import (
	"context"
	"fmt"

	"github.com/openutm/flightdeck/internal/logger"
	"github.com/openutm/flightdeck/pkg/conformance"
	"github.com/openutm/flightdeck/pkg/coordination/fsm"
	"github.com/openutm/flightdeck/pkg/dss"
	"github.com/openutm/flightdeck/pkg/geo"
	"github.com/openutm/flightdeck/pkg/metrics"
	"github.com/openutm/flightdeck/pkg/notification"
)

// HandleConformanceSignal applies the state change a failed check implies.
// The mapped event is verified against the state machine; when it does not
// apply at the current state, an activated operation degrades one step to
// Nonconforming so the following check can escalate it. OK never produces a
// transition.
func (o *Orchestrator) HandleConformanceSignal(ctx context.Context, declarationID string, code conformance.Code) error {
	outcome, ok := conformance.OutcomeForCode(code)
	if !ok {
		return nil
	}

	unlock := o.locks.lock(declarationID)
	defer unlock()

	declaration, err := o.store.GetDeclaration(ctx, declarationID)
	if err != nil {
		return err
	}

	current := fsm.FromInt(declaration.State)
	next := fsm.Next(current, outcome.Event)
	if next == current {
		if current == fsm.StateActivated && outcome.Target != fsm.StateActivated {
			next = fsm.StateNonconforming
		} else {
			// The signal carries no transition from here (already at or past
			// the target, or the operation is terminal).
			return nil
		}
	}

	note := fmt.Sprintf("Conformance check failed: %s", code)
	if _, err := o.store.TransitionState(ctx, declarationID, int(next), note); err != nil {
		return wrapError(KindInternal, err, "failed to apply conformance transition")
	}
	metrics.RecordTransition(o.metrics, current.String(), next.String(), string(outcome.Event))
	logger.InfoCtx(ctx, "Conformance transition applied",
		logger.FlightID(declarationID), logger.Check(string(code)),
		logger.State(int(next)), logger.Event(string(outcome.Event)))

	declaration.State = int(next)
	level := notification.LevelWarn
	switch next {
	case fsm.StateNonconforming:
		var offNominal []geo.Volume4D
		if code == conformance.CodeC7a || code == conformance.CodeC7b {
			// The aircraft left the declared volumes; peers need the volumes
			// flagged off-nominal.
			if intent, err := declaration.Intent(); err == nil {
				offNominal = intent.Volumes
			}
		}
		if err := o.updateDSSIntent(ctx, declaration, dss.IntentStateNonconforming, offNominal); err != nil {
			logger.WarnCtx(ctx, "Failed to update DSS intent to Nonconforming",
				logger.FlightID(declarationID), logger.Err(err))
		}
	case fsm.StateContingent:
		level = notification.LevelError
		if err := o.updateDSSIntent(ctx, declaration, dss.IntentStateContingent, nil); err != nil {
			logger.WarnCtx(ctx, "Failed to update DSS intent to Contingent",
				logger.FlightID(declarationID), logger.Err(err))
		}
	}

	o.SendOperationalUpdate(ctx, declarationID, note, level)
	return nil
}
