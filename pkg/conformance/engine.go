package conformance

import (
	"time"

	"github.com/openutm/flightdeck/internal/logger"
	"github.com/openutm/flightdeck/pkg/coordination/fsm"
	"github.com/openutm/flightdeck/pkg/coordination/models"
)

// DefaultTelemetryTimeout is how long an active operation may go without
// telemetry before the C9a check fails.
const DefaultTelemetryTimeout = 15 * time.Second

// Observation is a single telemetry report for an aircraft. Position and
// timestamp drive the conformance checks; the remaining fields ride along
// for display and remote-id consumers of the stream.
type Observation struct {
	AircraftID string    `json:"icao_address"`
	Lat        float64   `json:"lat_dd"`
	Lng        float64   `json:"lon_dd"`
	AltitudeM  float64   `json:"altitude_mm"`
	Timestamp  time.Time `json:"timestamp"`

	OperationalStatus  string   `json:"operational_status,omitempty"`
	TrackDeg           float64  `json:"track,omitempty"`
	SpeedMS            float64  `json:"speed,omitempty"`
	VerticalSpeedMS    float64  `json:"vertical_speed,omitempty"`
	SpeedAccuracy      string   `json:"speed_accuracy,omitempty"`
	HorizontalAccuracy string   `json:"accuracy_h,omitempty"`
	VerticalAccuracy   string   `json:"accuracy_v,omitempty"`
	HeightAGLM         *float64 `json:"height_agl,omitempty"`
	OperatorDetails    string   `json:"operator_details,omitempty"`
}

// Engine runs the conformance checks.
type Engine struct {
	// TelemetryTimeout is the maximum telemetry gap for C9a. Zero disables
	// the gap check; C9b then covers operations that never reported. With a
	// non-zero timeout a silent flight always surfaces as C9a first, since
	// a nil latest-telemetry time is also a gap.
	TelemetryTimeout time.Duration

	now func() time.Time
}

// NewEngine returns an engine with the default telemetry timeout.
func NewEngine() *Engine {
	return &Engine{TelemetryTimeout: DefaultTelemetryTimeout, now: time.Now}
}

// CheckTelemetry evaluates one observation against the declaration. Checks
// run in code order; the first failure wins.
func (e *Engine) CheckTelemetry(declaration *models.FlightDeclaration, observation Observation) Code {
	if declaration.AircraftID != observation.AircraftID {
		return CodeC3
	}

	state := fsm.FromInt(declaration.State)
	switch state {
	case fsm.StateAccepted, fsm.StateActivated, fsm.StateNonconforming:
	default:
		return CodeC4
	}
	if state != fsm.StateActivated {
		return CodeC5
	}

	if observation.Timestamp.Before(declaration.StartDatetime) || observation.Timestamp.After(declaration.EndDatetime) {
		return CodeC6
	}

	intent, err := declaration.Intent()
	if err != nil {
		logger.Warn("Failed to parse operational intent for conformance check",
			logger.FlightID(declaration.ID), logger.Err(err))
		return CodeC7a
	}

	// C7a: the position must fall inside at least one declared volume.
	// C7b: the altitude band of the containing volume must hold the point.
	containing := -1
	for i, volume := range intent.Volumes {
		inside, err := volume.Volume.ContainsPosition(observation.Lat, observation.Lng)
		if err != nil {
			logger.Warn("Failed to evaluate volume outline",
				logger.FlightID(declaration.ID), logger.Err(err))
			continue
		}
		if inside {
			containing = i
			break
		}
	}
	if containing < 0 {
		return CodeC7a
	}
	if !intent.Volumes[containing].Volume.ContainsAltitude(observation.AltitudeM) {
		return CodeC7b
	}

	return CodeOK
}

// CheckAuthorization runs the periodic checks that do not need a fresh
// observation: authorization presence, state sanity and telemetry gaps.
func (e *Engine) CheckAuthorization(declaration *models.FlightDeclaration, hasAuthorization bool) Code {
	if !hasAuthorization {
		return CodeC11
	}

	state := fsm.FromInt(declaration.State)
	switch state {
	case fsm.StateActivated, fsm.StateNonconforming, fsm.StateContingent:
	default:
		return CodeC10
	}

	// Telemetry gap checks apply while the operation should be reporting.
	if state == fsm.StateActivated || state == fsm.StateNonconforming {
		if e.TelemetryTimeout > 0 {
			latest := declaration.LatestTelemetryDatetime
			if latest == nil || e.now().Sub(*latest) > e.TelemetryTimeout {
				return CodeC9a
			}
		} else if declaration.LatestTelemetryDatetime == nil {
			return CodeC9b
		}
	}

	return CodeOK
}
