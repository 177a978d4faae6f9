package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Booking results.
const (
	ResultCreated     = "created"
	ResultUnavailable = "unavailable"
	ResultRaceLost    = "race_lost"
	ResultRejected    = "rejected"
	ResultError       = "error"
)

var (
	once sync.Once

	bookingAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taller",
			Name:      "booking_attempts_total",
			Help:      "Count of booking attempts by result.",
		},
		[]string{"result"},
	)

	statusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taller",
			Name:      "appointment_status_transitions_total",
			Help:      "Count of appointment status changes.",
		},
		[]string{"from", "to"},
	)

	availabilityQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taller",
			Name:      "availability_queries_total",
			Help:      "Count of day availability computations by cache outcome.",
		},
		[]string{"cache"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taller",
			Name:      "http_requests_total",
			Help:      "Count of HTTP requests by route and status code.",
		},
		[]string{"method", "route", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "taller",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(bookingAttempts, statusTransitions, availabilityQueries, httpRequests, httpDuration)
	})
}

func IncBooking(result string) {
	bookingAttempts.WithLabelValues(result).Inc()
}

func IncStatusTransition(from, to string) {
	statusTransitions.WithLabelValues(from, to).Inc()
}

func IncAvailabilityQuery(cacheHit bool) {
	label := "miss"
	if cacheHit {
		label = "hit"
	}
	availabilityQueries.WithLabelValues(label).Inc()
}

func ObserveHTTP(method, route, code string, seconds float64) {
	httpRequests.WithLabelValues(method, route, code).Inc()
	httpDuration.WithLabelValues(method, route).Observe(seconds)
}
