// Package prometheus provides the Prometheus implementations of the metrics
// interfaces.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/openutm/flightdeck/pkg/metrics"
)

// coordinationMetrics is the Prometheus implementation of
// metrics.CoordinationMetrics.
type coordinationMetrics struct {
	declarations      *prometheus.CounterVec
	transitions       *prometheus.CounterVec
	conformanceChecks *prometheus.CounterVec
	dssCalls          *prometheus.CounterVec
	dssDuration       *prometheus.HistogramVec
	peerNotifications *prometheus.CounterVec
}

// NewCoordinationMetrics creates a new Prometheus-backed
// CoordinationMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewCoordinationMetrics() metrics.CoordinationMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &coordinationMetrics{
		declarations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "flightdeck_declarations_total",
				Help: "Total number of submitted flight declarations by outcome",
			},
			[]string{"outcome"}, // "accepted", "rejected"
		),
		transitions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "flightdeck_state_transitions_total",
				Help: "Total number of flight operation state transitions",
			},
			[]string{"from", "to", "event"},
		),
		conformanceChecks: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "flightdeck_conformance_checks_total",
				Help: "Total number of conformance checks by result code",
			},
			[]string{"code"}, // "OK", "C3", ..., "C11"
		),
		dssCalls: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "flightdeck_dss_requests_total",
				Help: "Total number of DSS requests by operation and outcome",
			},
			[]string{"operation", "outcome"}, // outcome: "ok", "conflict", "error"
		),
		dssDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "flightdeck_dss_request_duration_milliseconds",
				Help: "Duration of DSS requests in milliseconds",
				Buckets: []float64{
					10,    // 10ms
					50,    // 50ms
					100,   // 100ms
					250,   // 250ms
					500,   // 500ms
					1000,  // 1s
					2500,  // 2.5s
					5000,  // 5s
					10000, // 10s - request deadline
				},
			},
			[]string{"operation"},
		),
		peerNotifications: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "flightdeck_peer_notifications_total",
				Help: "Total number of peer USS notification attempts by outcome",
			},
			[]string{"outcome"}, // "ok", "failed", "skipped"
		),
	}
}

func init() {
	metrics.RegisterCoordinationMetricsConstructor(NewCoordinationMetrics)
}

func (m *coordinationMetrics) RecordDeclaration(outcome string) {
	m.declarations.WithLabelValues(outcome).Inc()
}

func (m *coordinationMetrics) RecordTransition(from, to, event string) {
	m.transitions.WithLabelValues(from, to, event).Inc()
}

func (m *coordinationMetrics) RecordConformanceCheck(code string) {
	m.conformanceChecks.WithLabelValues(code).Inc()
}

func (m *coordinationMetrics) RecordDSSCall(operation string, duration time.Duration, outcome string) {
	m.dssCalls.WithLabelValues(operation, outcome).Inc()
	m.dssDuration.WithLabelValues(operation).Observe(float64(duration.Milliseconds()))
}

func (m *coordinationMetrics) RecordPeerNotification(outcome string) {
	m.peerNotifications.WithLabelValues(outcome).Inc()
}
