package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queueOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_operations_total",
			Help: "Total admission queue operations",
		},
		[]string{"operation", "event_id", "status"},
	)

	stateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acquisition_state_transitions_total",
			Help: "Acquisition state machine transitions",
		},
		[]string{"from", "to"},
	)

	paymentOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_outcomes_total",
			Help: "Normalized payment outcomes per provider",
		},
		[]string{"provider", "status"},
	)

	finalizeResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finalize_results_total",
			Help: "Purchase finalize results",
		},
		[]string{"result"},
	)

	admissionWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "admission_wait_seconds",
			Help:    "Time spent waiting for admission before readiness",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
)

// TrackQueueOperation records a join/check/rejoin/complete call.
func TrackQueueOperation(operation, eventID, status string) {
	queueOperations.WithLabelValues(operation, eventID, status).Inc()
}

// TrackStateTransition records one orchestrator transition.
func TrackStateTransition(from, to string) {
	stateTransitions.WithLabelValues(from, to).Inc()
}

// TrackPaymentOutcome records a normalized provider outcome.
func TrackPaymentOutcome(provider, status string) {
	paymentOutcomes.WithLabelValues(provider, status).Inc()
}

// TrackFinalize records a finalize result: success, error or reconciliation.
func TrackFinalize(result string) {
	finalizeResults.WithLabelValues(result).Inc()
}

// TrackAdmissionWait records how long a caller queued before readiness.
func TrackAdmissionWait(d time.Duration) {
	admissionWait.Observe(d.Seconds())
}
