package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	Register()
	Register()

	before := testutil.ToFloat64(bookingAttempts.WithLabelValues(ResultRaceLost))
	IncBooking(ResultRaceLost)
	assert.Equal(t, before+1, testutil.ToFloat64(bookingAttempts.WithLabelValues(ResultRaceLost)))

	IncStatusTransition("pending", "in_progress")
	assert.Equal(t, float64(1), testutil.ToFloat64(statusTransitions.WithLabelValues("pending", "in_progress")))

	IncAvailabilityQuery(true)
	IncAvailabilityQuery(false)
	IncAvailabilityQuery(false)
	assert.Equal(t, float64(1), testutil.ToFloat64(availabilityQueries.WithLabelValues("hit")))
	assert.Equal(t, float64(2), testutil.ToFloat64(availabilityQueries.WithLabelValues("miss")))

	ObserveHTTP("GET", "/api/availability/{date}", "200", 0.01)
	assert.Equal(t, float64(1), testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/availability/{date}", "200")))
}
