package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openutm/flightdeck/internal/logger"
	"github.com/openutm/flightdeck/pkg/conformance"
	"github.com/openutm/flightdeck/pkg/coordination/fsm"
	"github.com/openutm/flightdeck/pkg/coordination/models"
	"github.com/openutm/flightdeck/pkg/coordination/store"
	"github.com/openutm/flightdeck/pkg/kv"
	"github.com/openutm/flightdeck/pkg/metrics"
	"github.com/openutm/flightdeck/pkg/scheduler"
)

// IngestTelemetry appends an observation to the stream, stamps the owning
// declaration's latest-telemetry time and runs the telemetry conformance
// checks.
func (o *Orchestrator) IngestTelemetry(ctx context.Context, observation conformance.Observation) error {
	if observation.AircraftID == "" {
		return newError(KindValidation, "observation has no aircraft id")
	}
	if observation.Timestamp.IsZero() {
		observation.Timestamp = o.now().UTC()
	}

	values := map[string]any{
		"icao_address": observation.AircraftID,
		"lat_dd":       observation.Lat,
		"lon_dd":       observation.Lng,
		"altitude_mm":  observation.AltitudeM,
		"timestamp":    observation.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	// RID metadata rides along for display consumers; optional fields are
	// omitted rather than stored empty.
	if observation.OperationalStatus != "" {
		values["operational_status"] = observation.OperationalStatus
	}
	values["track"] = observation.TrackDeg
	values["speed"] = observation.SpeedMS
	values["vertical_speed"] = observation.VerticalSpeedMS
	if observation.SpeedAccuracy != "" {
		values["speed_accuracy"] = observation.SpeedAccuracy
	}
	if observation.HorizontalAccuracy != "" {
		values["accuracy_h"] = observation.HorizontalAccuracy
	}
	if observation.VerticalAccuracy != "" {
		values["accuracy_v"] = observation.VerticalAccuracy
	}
	if observation.HeightAGLM != nil {
		values["height_agl"] = *observation.HeightAGLM
	}
	if observation.OperatorDetails != "" {
		values["operator_details"] = observation.OperatorDetails
	}
	if _, err := o.kv.XAdd(ctx, telemetryStream, o.config.StreamMaxLen, values); err != nil {
		return fmt.Errorf("failed to append observation: %w", err)
	}

	declaration, err := o.activeDeclarationForAircraft(ctx, observation.AircraftID)
	if err != nil {
		return err
	}
	if declaration == nil {
		// Observations without a coordinated operation are kept in the
		// stream for display consumers only.
		return nil
	}

	if err := o.store.SetLatestTelemetry(ctx, declaration.ID, observation.Timestamp); err != nil {
		logger.WarnCtx(ctx, "Failed to stamp latest telemetry",
			logger.FlightID(declaration.ID), logger.Err(err))
	}
	declaration.LatestTelemetryDatetime = &observation.Timestamp

	code := o.engine.CheckTelemetry(declaration, observation)
	metrics.RecordConformanceCheck(o.metrics, string(code))
	if code == conformance.CodeOK {
		return nil
	}
	logger.InfoCtx(ctx, "Telemetry conformance check failed",
		logger.FlightID(declaration.ID), logger.Check(string(code)),
		logger.AircraftID(observation.AircraftID))
	return o.HandleConformanceSignal(ctx, declaration.ID, code)
}

// activeDeclarationForAircraft returns the non-terminal declaration for the
// aircraft, or nil when none exists.
func (o *Orchestrator) activeDeclarationForAircraft(ctx context.Context, aircraftID string) (*models.FlightDeclaration, error) {
	declarations, err := o.store.ListDeclarations(ctx, store.DeclarationFilter{
		States: []int{
			int(fsm.StateAccepted),
			int(fsm.StateActivated),
			int(fsm.StateNonconforming),
			int(fsm.StateContingent),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list active declarations: %w", err)
	}
	for i := range declarations {
		if declarations[i].AircraftID == aircraftID {
			return &declarations[i], nil
		}
	}
	return nil, nil
}

// CheckConformance runs one periodic authorization and telemetry-gap check.
// Implements the scheduler handler; at most one check per declaration runs at
// a time, enforced by a KV advisory lock with a watchdog TTL.
func (o *Orchestrator) CheckConformance(ctx context.Context, declarationID string) error {
	token, err := o.kv.AcquireLock(ctx, conformanceLockPrefix+declarationID, conformanceLockTTL)
	if errors.Is(err, kv.ErrLockNotAcquired) {
		// A previous check is still in flight.
		return nil
	}
	if err != nil {
		return err
	}
	defer func() { _ = o.kv.ReleaseLock(ctx, conformanceLockPrefix+declarationID, token) }()

	declaration, err := o.store.GetDeclaration(ctx, declarationID)
	if errors.Is(err, models.ErrDeclarationNotFound) {
		return scheduler.ErrStopMonitoring
	}
	if err != nil {
		return err
	}

	state := fsm.FromInt(declaration.State)
	switch state {
	case fsm.StateEnded, fsm.StateWithdrawn, fsm.StateCancelled, fsm.StateRejected, fsm.StateInvalid:
		return scheduler.ErrStopMonitoring
	}
	if o.now().After(declaration.EndDatetime) {
		logger.InfoCtx(ctx, "Operation window expired, stopping conformance checks",
			logger.FlightID(declarationID))
		return scheduler.ErrStopMonitoring
	}

	hasAuthorization := false
	if auth, err := o.store.GetAuthorization(ctx, declarationID); err == nil {
		// Local-only deployments never receive a DSS id; the local record
		// suffices there.
		hasAuthorization = auth.DSSOperationalIntentID != "" || !o.config.USSPNetworkEnabled
	}

	code := o.engine.CheckAuthorization(declaration, hasAuthorization)
	metrics.RecordConformanceCheck(o.metrics, string(code))
	if code == conformance.CodeOK {
		return nil
	}
	logger.InfoCtx(ctx, "Periodic conformance check failed",
		logger.FlightID(declarationID), logger.Check(string(code)))
	return o.HandleConformanceSignal(ctx, declarationID, code)
}
