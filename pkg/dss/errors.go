package dss

import (
	"errors"
	"fmt"
)

// Sentinel errors for DSS interactions.
var (
	// ErrConflict is returned when the DSS rejects a change because the
	// submitted airspace keys were stale or missing.
	ErrConflict = errors.New("airspace conflict")

	// ErrUnauthorized is returned when the DSS or a peer rejects our token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound is returned when the referenced operational intent does
	// not exist at the DSS.
	ErrNotFound = errors.New("operational intent not found")

	// ErrUnavailable is returned when the DSS or a peer cannot be reached.
	ErrUnavailable = errors.New("peer unavailable")
)

// APIError is a non-2xx response from the DSS or a peer USS.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("dss request failed with status %d: %s", e.StatusCode, e.Message)
}

// Is maps status codes onto the sentinel errors.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == 401 || e.StatusCode == 403
	case ErrNotFound:
		return e.StatusCode == 404
	case ErrUnavailable:
		return e.StatusCode >= 500
	}
	return false
}

// ConflictError is the typed 409 from the DSS carrying the references whose
// OVNs must be included on retry.
type ConflictError struct {
	Message string
	Missing []OperationalIntentReference
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("airspace conflict: %s", e.Message)
	}
	return fmt.Sprintf("airspace conflict: %d missing operational intents", len(e.Missing))
}

// Is reports ErrConflict so callers can match with errors.Is.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// MissingOVNs returns the airspace keys the DSS reported as missing.
func (e *ConflictError) MissingOVNs() []string {
	ovns := make([]string, 0, len(e.Missing))
	for _, reference := range e.Missing {
		if reference.OVN != "" {
			ovns = append(ovns, reference.OVN)
		}
	}
	return ovns
}
