package metrics

import "time"

// CoordinationMetrics provides observability for the flight coordination
// engine. Pass nil to disable collection with zero overhead.
type CoordinationMetrics interface {
	// RecordDeclaration counts a submitted declaration by its recorded
	// outcome state ("accepted", "rejected").
	RecordDeclaration(outcome string)

	// RecordTransition counts a state machine transition.
	RecordTransition(from, to, event string)

	// RecordConformanceCheck counts a conformance check by result code.
	RecordConformanceCheck(code string)

	// RecordDSSCall records a DSS request with its operation, duration and
	// outcome ("ok", "conflict", "error").
	RecordDSSCall(operation string, duration time.Duration, outcome string)

	// RecordPeerNotification counts a peer USS notification attempt by
	// outcome ("ok", "failed", "skipped").
	RecordPeerNotification(outcome string)
}

// NewCoordinationMetrics creates a Prometheus-backed CoordinationMetrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewCoordinationMetrics() CoordinationMetrics {
	if !IsEnabled() || newPrometheusCoordinationMetrics == nil {
		return nil
	}
	return newPrometheusCoordinationMetrics()
}

// newPrometheusCoordinationMetrics is implemented in
// pkg/metrics/prometheus/coordination.go. The indirection avoids an import
// cycle while keeping the API clean.
var newPrometheusCoordinationMetrics func() CoordinationMetrics

// RegisterCoordinationMetricsConstructor registers the Prometheus
// constructor. Called by pkg/metrics/prometheus during initialization.
func RegisterCoordinationMetricsConstructor(constructor func() CoordinationMetrics) {
	newPrometheusCoordinationMetrics = constructor
}

// RecordDeclaration is a nil-safe helper.
func RecordDeclaration(m CoordinationMetrics, outcome string) {
	if m != nil {
		m.RecordDeclaration(outcome)
	}
}

// RecordTransition is a nil-safe helper.
func RecordTransition(m CoordinationMetrics, from, to, event string) {
	if m != nil {
		m.RecordTransition(from, to, event)
	}
}

// RecordConformanceCheck is a nil-safe helper.
func RecordConformanceCheck(m CoordinationMetrics, code string) {
	if m != nil {
		m.RecordConformanceCheck(code)
	}
}

// RecordDSSCall is a nil-safe helper.
func RecordDSSCall(m CoordinationMetrics, operation string, duration time.Duration, outcome string) {
	if m != nil {
		m.RecordDSSCall(operation, duration, outcome)
	}
}

// RecordPeerNotification is a nil-safe helper.
func RecordPeerNotification(m CoordinationMetrics, outcome string) {
	if m != nil {
		m.RecordPeerNotification(outcome)
	}
}
