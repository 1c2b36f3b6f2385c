package logger

import "log/slog"

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so flight operations
// can be correlated in log aggregation and querying.
const (
	// Distributed tracing
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// Flight operation
	KeyFlightID   = "flight_id"   // Flight declaration UUID
	KeyOpIntentID = "opint_id"    // DSS operational intent reference ID
	KeyAircraftID = "aircraft_id" // Aircraft / ICAO address
	KeyState      = "state"       // Operation state (numeric)
	KeyEvent      = "event"       // State machine event
	KeyCheck      = "check"       // Conformance check code (C3..C11)
	KeyPriority   = "priority"    // Operational intent priority

	// DSS / peer USS
	KeyAudience   = "audience"    // Token audience
	KeyTokenType  = "token_type"  // rid or scd
	KeyUSSBaseURL = "uss_base_url"
	KeyOVN        = "ovn"
	KeyStatusCode = "status_code" // HTTP status from DSS / peer

	// Client identification
	KeyClientIP  = "client_ip"
	KeyRequestID = "request_id"

	// Operation metadata
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyAttempt    = "attempt"
	KeyJob        = "job" // Worker job name
)

// FlightID returns a slog.Attr for a flight declaration ID
func FlightID(id string) slog.Attr {
	return slog.String(KeyFlightID, id)
}

// OpIntentID returns a slog.Attr for a DSS operational intent reference ID
func OpIntentID(id string) slog.Attr {
	return slog.String(KeyOpIntentID, id)
}

// AircraftID returns a slog.Attr for an aircraft identifier
func AircraftID(id string) slog.Attr {
	return slog.String(KeyAircraftID, id)
}

// State returns a slog.Attr for an operation state
func State(state int) slog.Attr {
	return slog.Int(KeyState, state)
}

// Event returns a slog.Attr for a state machine event
func Event(event string) slog.Attr {
	return slog.String(KeyEvent, event)
}

// Check returns a slog.Attr for a conformance check code
func Check(code string) slog.Attr {
	return slog.String(KeyCheck, code)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// DurationMs returns a slog.Attr for an operation duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}
