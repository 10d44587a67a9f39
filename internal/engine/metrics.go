package engine

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/seantiz/courier/internal/invocation"
)

// Outcome labels of courier_invocations_total.
const (
	outcomeSucceeded = "succeeded"
	outcomeFailed    = "failed"
	outcomeSimulated = "simulated"
	outcomeError     = "error"
)

var (
	invocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_invocations_total",
			Help: "Total number of settled service invocations.",
		},
		[]string{"outcome"},
	)

	invocationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "courier_invocation_duration_seconds",
			Help:    "Service invocation duration in seconds, from start to settle.",
			Buckets: prometheus.DefBuckets,
		},
	)

	invocationsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "courier_invocations_in_flight",
			Help: "Number of service invocations that have not settled yet.",
		},
	)

	eventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "courier_events_dropped_total",
			Help: "Invocation events not delivered to a subscriber that fell behind.",
		},
	)
)

func init() {
	prometheus.MustRegister(invocationsTotal)
	prometheus.MustRegister(invocationDuration)
	prometheus.MustRegister(invocationsInFlight)
	prometheus.MustRegister(eventsDropped)
}

// outcomeOf classifies the error of a settled future.
func outcomeOf(err error) string {
	var fe *invocation.FailureError
	switch {
	case err == nil:
		return outcomeSucceeded
	case errors.As(err, &fe) && fe.Simulated:
		return outcomeSimulated
	case errors.As(err, &fe):
		return outcomeFailed
	default:
		return outcomeError
	}
}
