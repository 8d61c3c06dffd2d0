// Package metrics exposes booking engine counters to Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/tablesched/internal/reservation"
)

const promNamespace = "tablesched"

var (
	bookings = prom.NewCounterVec(prom.CounterOpts{
		Namespace: promNamespace,
		Subsystem: "booking",
		Name:      "attempts_total",
		Help:      "booking attempts by outcome",
	}, []string{"outcome"})
	bookingSeconds = prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: promNamespace,
		Subsystem: "booking",
		Name:      "seconds",
		Help:      "duration of booking and move operations",
		Buckets:   prom.DefBuckets,
	}, []string{"operation"})
	transitions = prom.NewCounterVec(prom.CounterOpts{
		Namespace: promNamespace,
		Subsystem: "lifecycle",
		Name:      "transitions_total",
		Help:      "status transitions by target status and outcome",
	}, []string{"to", "outcome"})
	availabilityQueries = prom.NewCounterVec(prom.CounterOpts{
		Namespace: promNamespace,
		Subsystem: "availability",
		Name:      "queries_total",
		Help:      "availability queries by source",
	}, []string{"source"})
	notifyErrors = prom.NewCounter(prom.CounterOpts{
		Namespace: promNamespace,
		Subsystem: "notify",
		Name:      "errors_total",
		Help:      "events that could not be delivered",
	})
)

func init() {
	prom.MustRegister(bookings)
	prom.MustRegister(bookingSeconds)
	prom.MustRegister(transitions)
	prom.MustRegister(availabilityQueries)
	prom.MustRegister(notifyErrors)
}

// Outcome classifies an engine error into a low-cardinality label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, reservation.ErrSchedulingConflict):
		return "conflict"
	case errors.Is(err, reservation.ErrNoTableAvailable):
		return "no_table"
	case errors.Is(err, reservation.ErrValidation):
		return "invalid"
	case errors.Is(err, reservation.ErrPolicyViolation):
		return "policy"
	case errors.Is(err, reservation.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, reservation.ErrForbidden):
		return "forbidden"
	case errors.Is(err, reservation.ErrNotFound):
		return "not_found"
	case errors.Is(err, reservation.ErrTransactionFailure):
		return "transaction_failure"
	}
	return "error"
}

// Time returns a func that observes the elapsed time on operation's histogram.
//
//	defer metrics.Time("book")()
func Time(operation string) func() {
	start := time.Now()
	return func() {
		bookingSeconds.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

func Booking(err error) {
	bookings.WithLabelValues(Outcome(err)).Inc()
}

func Transition(to reservation.Status, err error) {
	transitions.WithLabelValues(string(to), Outcome(err)).Inc()
}

func AvailabilityQuery(source string) {
	availabilityQueries.WithLabelValues(source).Inc()
}

func NotifyError() {
	notifyErrors.Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
