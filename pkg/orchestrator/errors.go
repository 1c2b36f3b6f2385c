package orchestrator

import (
	"errors"
	"fmt"

	"github.com/openutm/flightdeck/pkg/dss"
)

// Kind classifies a coordination failure for callers and tracking notes.
type Kind string

const (
	// KindValidation covers malformed declarations, illegal transitions and
	// out-of-range time windows. Reported synchronously, no state change.
	KindValidation Kind = "validation"

	// KindConflictLocal means self-deconfliction failed; the declaration was
	// recorded at Rejected.
	KindConflictLocal Kind = "conflict_local"

	// KindConflictDSS means the DSS rejected the submission with an airspace
	// key mismatch (409).
	KindConflictDSS Kind = "conflict_dss"

	// KindAuth means a token could not be obtained or was rejected. The
	// declaration stays in its prior state.
	KindAuth Kind = "auth"

	// KindUnreachable means the DSS or a peer could not be reached before
	// retries were exhausted.
	KindUnreachable Kind = "unreachable"

	// KindInternal is an invariant violation. The request is aborted, never
	// partially applied.
	KindInternal Kind = "internal"
)

// Error is a classified coordination failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// newError builds a classified error without a cause.
func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// wrapError builds a classified error around a cause.
func wrapError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf classifies any error into the taxonomy. Unclassified errors are
// internal.
func KindOf(err error) Kind {
	var coordErr *Error
	if errors.As(err, &coordErr) {
		return coordErr.Kind
	}
	switch {
	case errors.Is(err, dss.ErrConflict):
		return KindConflictDSS
	case errors.Is(err, dss.ErrUnauthorized):
		return KindAuth
	case errors.Is(err, dss.ErrUnavailable):
		return KindUnreachable
	default:
		return KindInternal
	}
}

// IsValidation reports whether the error is a validation failure.
func IsValidation(err error) bool {
	var coordErr *Error
	return errors.As(err, &coordErr) && coordErr.Kind == KindValidation
}
