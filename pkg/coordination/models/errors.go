package models

import "errors"

// Common errors for flight coordination persistence.
var (
	// Declaration errors
	ErrDeclarationNotFound  = errors.New("flight declaration not found")
	ErrDuplicateDeclaration = errors.New("flight declaration already exists")

	// Authorization errors
	ErrAuthorizationNotFound = errors.New("flight authorization not found")

	// Geofence errors
	ErrGeoFenceNotFound = errors.New("geofence not found")

	// Transition errors
	ErrIllegalTransition = errors.New("illegal state transition")
)
