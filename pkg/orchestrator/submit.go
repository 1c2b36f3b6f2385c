package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"

	"github.com/openutm/flightdeck/internal/logger"
	"github.com/openutm/flightdeck/pkg/coordination/fsm"
	"github.com/openutm/flightdeck/pkg/coordination/models"
	"github.com/openutm/flightdeck/pkg/deconfliction"
	"github.com/openutm/flightdeck/pkg/dss"
	"github.com/openutm/flightdeck/pkg/geo"
	"github.com/openutm/flightdeck/pkg/metrics"
	"github.com/openutm/flightdeck/pkg/notification"
	"github.com/openutm/flightdeck/pkg/scheduler"
)

// startGracePeriod tolerates clock skew between the operator and us when
// validating that an operation starts in the future.
const startGracePeriod = time.Minute

// SubmitRequest is an operator-submitted flight declaration.
type SubmitRequest struct {
	// ID is optional; a UUID is assigned when empty. Resubmitting an
	// existing id returns the current state without changes.
	ID string

	OriginatingParty string
	SubmittedBy      string
	AircraftID       string
	TypeOfOperation  int
	Priority         int

	Start time.Time
	End   time.Time

	// GeoJSON is a feature collection of polygons with min_altitude /
	// max_altitude properties in metres W84.
	GeoJSON []byte
}

// SubmitResult is returned to the operator immediately; the DSS submission
// continues asynchronously.
type SubmitResult struct {
	ID         string `json:"id"`
	State      int    `json:"state"`
	IsApproved bool   `json:"is_approved"`
}

// CreateDeclaration validates and persists an operator submission. The
// declaration is recorded at Accepted when priority-aware self-deconfliction
// passes, Rejected otherwise. Geofence hits clear the approval flag without
// blocking. The DSS submission is scheduled asynchronously.
func (o *Orchestrator) CreateDeclaration(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if err := o.validateWindow(req.Start, req.End); err != nil {
		return nil, err
	}

	if req.ID != "" {
		if existing, err := o.store.GetDeclaration(ctx, req.ID); err == nil {
			// Idempotent resubmission: report the current state.
			return &SubmitResult{ID: existing.ID, State: existing.State, IsApproved: existing.IsApproved}, nil
		} else if !errors.Is(err, models.ErrDeclarationNotFound) {
			return nil, wrapError(KindInternal, err, "failed to look up declaration %s", req.ID)
		}
	}

	volumes, bounds, err := geo.VolumesFromGeoJSON(req.GeoJSON, req.Start, req.End)
	if err != nil {
		return nil, wrapError(KindValidation, err, "invalid flight geometry")
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	check, err := o.planner.Check(ctx, deconfliction.Candidate{
		DeclarationID: id,
		Bounds:        bounds,
		Start:         req.Start,
		End:           req.End,
		Priority:      req.Priority,
	})
	if err != nil {
		return nil, wrapError(KindInternal, err, "self-deconfliction failed")
	}

	declaration := &models.FlightDeclaration{
		ID:               id,
		RawGeoJSON:       string(req.GeoJSON),
		TypeOfOperation:  req.TypeOfOperation,
		AircraftID:       req.AircraftID,
		State:            int(fsm.StateNotSubmitted),
		Bounds:           bounds.String(),
		OriginatingParty: req.OriginatingParty,
		SubmittedBy:      req.SubmittedBy,
		IsApproved:       len(check.GeofenceIDs) == 0,
		StartDatetime:    req.Start.UTC(),
		EndDatetime:      req.End.UTC(),
	}
	if err := declaration.SetIntent(&models.OperationalIntentDetail{
		Volumes:  volumes,
		Priority: req.Priority,
		State:    dss.IntentStateAccepted,
	}); err != nil {
		return nil, wrapError(KindInternal, err, "failed to encode operational intent")
	}

	if err := o.store.CreateDeclaration(ctx, declaration); err != nil {
		return nil, wrapError(KindInternal, err, "failed to persist declaration")
	}

	if !check.Clear {
		note := fmt.Sprintf("Self deconfliction failed: conflicts with %s",
			strings.Join(check.ConflictingIDs, ", "))
		if _, err := o.store.TransitionState(ctx, id, int(fsm.StateRejected), note); err != nil {
			return nil, wrapError(KindInternal, err, "failed to record rejection")
		}
		metrics.RecordDeclaration(o.metrics, "rejected")
		o.SendOperationalUpdate(ctx, id, note, notification.LevelError)
		logger.InfoCtx(ctx, "Flight declaration rejected by self-deconfliction",
			logger.FlightID(id), "conflicts", strings.Join(check.ConflictingIDs, ","))
		return &SubmitResult{ID: id, State: int(fsm.StateRejected), IsApproved: declaration.IsApproved}, nil
	}

	if _, err := o.store.TransitionState(ctx, id, int(fsm.StateAccepted), "Created Flight Declaration"); err != nil {
		return nil, wrapError(KindInternal, err, "failed to record acceptance")
	}
	metrics.RecordDeclaration(o.metrics, "accepted")

	// A local snapshot makes the operation visible to deconfliction right
	// away; the DSS job overwrites it with the authoritative reference.
	snapshot := &dss.Snapshot{
		DeclarationID:       id,
		OperationalIntentID: id,
		Reference: dss.OperationalIntentReference{
			ID:         id,
			State:      dss.IntentStateAccepted,
			TimeStart:  geo.NewTime(req.Start),
			TimeEnd:    geo.NewTime(req.End),
			USSBaseURL: o.config.SelfBaseURL,
		},
		Details: dss.OperationalIntentDetails{Volumes: volumes, Priority: req.Priority},
	}
	if err := o.snapshots.Write(ctx, snapshot); err != nil {
		logger.WarnCtx(ctx, "Failed to write local snapshot", logger.FlightID(id), logger.Err(err))
	}

	o.SendOperationalUpdate(ctx, id, "Created Flight Declaration", notification.LevelInfo)

	if len(check.GeofenceIDs) > 0 {
		o.SendOperationalUpdate(ctx, id,
			fmt.Sprintf("Flight declaration intersects geofence %s", strings.Join(check.GeofenceIDs, ", ")),
			notification.LevelWarn)
	}

	if o.config.USSPNetworkEnabled {
		if jobs := o.scheduler(); jobs != nil {
			jobs.Enqueue(scheduler.Job{Kind: scheduler.JobSubmitDeclaration, DeclarationID: id})
		}
	}

	return &SubmitResult{ID: id, State: int(fsm.StateAccepted), IsApproved: declaration.IsApproved}, nil
}

// validateWindow enforces that both start and end fall within
// [now, now + MaxDeclarationWindow].
func (o *Orchestrator) validateWindow(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return newError(KindValidation, "start and end times are required")
	}
	if !end.After(start) {
		return newError(KindValidation, "end time must be after start time")
	}
	now := o.now()
	horizon := now.Add(o.config.MaxDeclarationWindow)
	if start.Before(now.Add(-startGracePeriod)) {
		return newError(KindValidation, "operation must start in the future")
	}
	if start.After(horizon) || end.After(horizon) {
		return newError(KindValidation, "operation must fall within the next %s", o.config.MaxDeclarationWindow)
	}
	return nil
}

// SubmitDeclaration runs the asynchronous DSS submission for an accepted
// declaration. Implements the scheduler handler; idempotent on the id.
func (o *Orchestrator) SubmitDeclaration(ctx context.Context, declarationID string) error {
	unlock := o.locks.lock(declarationID)
	defer unlock()

	declaration, err := o.store.GetDeclaration(ctx, declarationID)
	if errors.Is(err, models.ErrDeclarationNotFound) {
		logger.WarnCtx(ctx, "Declaration vanished before DSS submission", logger.FlightID(declarationID))
		return nil
	}
	if err != nil {
		return err
	}
	if fsm.FromInt(declaration.State) != fsm.StateAccepted {
		// Already submitted or moved on.
		return nil
	}

	auth, err := o.store.GetAuthorization(ctx, declarationID)
	if err == nil && auth.DSSOperationalIntentID != "" {
		return nil
	}

	if err := o.validateWindow(declaration.StartDatetime, declaration.EndDatetime); err != nil {
		return o.rejectDeclaration(ctx, declarationID, "Time window no longer valid at submission")
	}

	intent, err := declaration.Intent()
	if err != nil {
		return wrapError(KindInternal, err, "declaration %s has no parsable intent", declarationID)
	}

	params := &dss.PutOperationalIntentReferenceParameters{
		Extents:    intent.Volumes,
		State:      dss.IntentStateAccepted,
		USSBaseURL: o.config.SelfBaseURL,
		NewSubscription: &dss.NewSubscription{
			USSBaseURL: o.config.SelfBaseURL,
		},
	}

	start := time.Now()
	response, err := o.createWithRetry(ctx, declarationID, params)
	if err != nil {
		var conflict *dss.ConflictError
		switch {
		case errors.As(err, &conflict):
			metrics.RecordDSSCall(o.metrics, "create", time.Since(start), "conflict")
			return o.rejectDeclaration(ctx, declarationID,
				"Airspace conflict at DSS, resubmit after updating the operation")
		case errors.Is(err, dss.ErrUnauthorized):
			metrics.RecordDSSCall(o.metrics, "create", time.Since(start), "error")
			logger.ErrorCtx(ctx, "DSS rejected our credentials",
				logger.FlightID(declarationID), logger.Err(err))
			return wrapError(KindAuth, err, "DSS submission aborted for %s", declarationID)
		default:
			metrics.RecordDSSCall(o.metrics, "create", time.Since(start), "error")
			return o.rejectDeclaration(ctx, declarationID, "DSS unreachable, submission abandoned")
		}
	}
	metrics.RecordDSSCall(o.metrics, "create", time.Since(start), "ok")

	reference := response.OperationalIntentReference
	if err := o.store.UpsertAuthorization(ctx, declarationID, reference.ID); err != nil {
		return wrapError(KindInternal, err, "failed to record authorization for %s", declarationID)
	}

	details := dss.OperationalIntentDetails{Volumes: intent.Volumes, Priority: intent.Priority}
	if err := o.snapshots.Write(ctx, &dss.Snapshot{
		DeclarationID:       declarationID,
		OperationalIntentID: reference.ID,
		Reference:           reference,
		Details:             details,
	}); err != nil {
		return wrapError(KindInternal, err, "failed to write snapshot for %s", declarationID)
	}

	if o.notifier != nil {
		notified := o.notifier.NotifySubscribers(ctx, response.Subscribers, &dss.PutOperationalIntentDetailsParameters{
			OperationalIntentID: reference.ID,
			OperationalIntent:   &dss.OperationalIntent{Reference: reference, Details: details},
		})
		logger.InfoCtx(ctx, "Operational intent accepted by DSS",
			logger.FlightID(declarationID), logger.OpIntentID(reference.ID),
			"peers_notified", notified)
	}

	o.SendOperationalUpdate(ctx, declarationID, "Flight declaration submitted to the DSS", notification.LevelInfo)
	return nil
}

// createWithRetry submits to the DSS, retrying transient failures and, on a
// 409 that lists missing OVNs, resubmitting once with those OVNs as the key.
func (o *Orchestrator) createWithRetry(ctx context.Context, id string, params *dss.PutOperationalIntentReferenceParameters) (*dss.ChangeOperationalIntentReferenceResponse, error) {
	var response *dss.ChangeOperationalIntentReferenceResponse
	err := retry.Do(
		func() error {
			var callErr error
			response, callErr = o.dss.CreateOperationalIntentReference(ctx, id, params)
			return callErr
		},
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, dss.ErrUnavailable)
		}),
	)

	var conflict *dss.ConflictError
	if errors.As(err, &conflict) && len(conflict.MissingOVNs()) > 0 {
		params.Key = conflict.MissingOVNs()
		response, err = o.dss.CreateOperationalIntentReference(ctx, id, params)
	}
	return response, err
}

// rejectDeclaration records a terminal rejection with the note.
func (o *Orchestrator) rejectDeclaration(ctx context.Context, declarationID, note string) error {
	previous, err := o.store.TransitionState(ctx, declarationID, int(fsm.StateRejected), note)
	if err != nil {
		return wrapError(KindInternal, err, "failed to reject declaration %s", declarationID)
	}
	metrics.RecordTransition(o.metrics,
		fsm.FromInt(previous).String(), fsm.StateRejected.String(), "rejected")
	o.SendOperationalUpdate(ctx, declarationID, note, notification.LevelError)
	if err := o.snapshots.Delete(ctx, declarationID); err != nil {
		logger.WarnCtx(ctx, "Failed to drop snapshot of rejected declaration",
			logger.FlightID(declarationID), logger.Err(err))
	}
	return nil
}
