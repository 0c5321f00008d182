// Package report instruments protocol clients and poll operations with
// prometheus metrics and opentelemetry spans.
package report

import (
	"net/http"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gitlab.com/driverk/driverk"
)

// outcome label values
const (
	OutcomeOK     = "ok"
	OutcomeStale  = "stale"
	OutcomeClosed = "closed"
	OutcomeError  = "error"
)

var (
	ProtocolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "driverk",
			Name:      "protocol_calls_total",
			Help:      "Total number of protocol calls by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	ProtocolLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "driverk",
			Name:      "protocol_call_duration_seconds",
			Help:      "Protocol call latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method"},
	)

	PollAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "driverk",
			Name:      "poll_attempts_total",
			Help:      "Total number of poll attempts by operation",
		},
		[]string{"operation"},
	)

	PollFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "driverk",
			Name:      "poll_attempt_errors_total",
			Help:      "Poll attempts that ended in an error",
		},
		[]string{"operation"},
	)
)

// Outcome label for err
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case driverk.IsStale(err):
		return OutcomeStale
	case errors.Is(err, driverk.ErrSessionClosed):
		return OutcomeClosed
	default:
		return OutcomeError
	}
}

// Attempts counts every poll attempt it observes
func Attempts() driverk.Observer {
	return driverk.ObserverFunc(func(attempt *driverk.Attempt) {
		PollAttempts.WithLabelValues(attempt.Operation).Inc()
		if attempt.Err != "" {
			PollFailures.WithLabelValues(attempt.Operation).Inc()
		}
	})
}

// Handler serves the metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
