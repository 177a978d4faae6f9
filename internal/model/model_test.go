package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func datetime(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, time.UTC)
}

func TestAppointment_End(t *testing.T) {
	a := Appointment{DateTime: datetime(2026, 3, 2, 9, 0), DurationMinutes: 90}
	assert.Equal(t, datetime(2026, 3, 2, 10, 30), a.End())
}

func TestAppointment_IsActive(t *testing.T) {
	for _, s := range []AppointmentStatus{StatusPending, StatusInProgress, StatusCompleted} {
		a := Appointment{Status: s}
		assert.True(t, a.IsActive(), s)
	}
	cancelled := Appointment{Status: StatusCancelled}
	assert.False(t, cancelled.IsActive())
}

func TestAppointment_OverlapsWith(t *testing.T) {
	a := Appointment{DateTime: datetime(2026, 3, 2, 10, 0), DurationMinutes: 60}

	assert.False(t, a.OverlapsWith(datetime(2026, 3, 2, 9, 0), datetime(2026, 3, 2, 10, 0)), "touching before")
	assert.False(t, a.OverlapsWith(datetime(2026, 3, 2, 11, 0), datetime(2026, 3, 2, 11, 30)), "touching after")
	assert.True(t, a.OverlapsWith(datetime(2026, 3, 2, 10, 30), datetime(2026, 3, 2, 11, 0)))
	assert.True(t, a.OverlapsWith(datetime(2026, 3, 2, 9, 30), datetime(2026, 3, 2, 12, 0)))
}

func TestAppointment_Date(t *testing.T) {
	a := Appointment{DateTime: datetime(2026, 12, 31, 17, 30)}
	assert.Equal(t, "2026-12-31", a.Date())
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		name        string
		from        AppointmentStatus
		to          AppointmentStatus
		shouldAllow bool
	}{
		{"pending to in progress", StatusPending, StatusInProgress, true},
		{"pending to cancelled", StatusPending, StatusCancelled, true},
		{"in progress to completed", StatusInProgress, StatusCompleted, true},
		{"in progress to cancelled", StatusInProgress, StatusCancelled, true},
		{"pending to completed", StatusPending, StatusCompleted, false},
		{"in progress back to pending", StatusInProgress, StatusPending, false},
		{"completed to cancelled", StatusCompleted, StatusCancelled, false},
		{"cancelled to pending", StatusCancelled, StatusPending, false},
		{"unknown from", AppointmentStatus("approved"), StatusCancelled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.shouldAllow, CanTransition(tt.from, tt.to))
		})
	}
}

func TestStatusHelpers(t *testing.T) {
	assert.True(t, StatusPending.Valid())
	assert.False(t, AppointmentStatus("done").Valid())

	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, AppointmentStatus("done").Terminal())

	next := NextStatuses(StatusPending)
	assert.ElementsMatch(t, []AppointmentStatus{StatusInProgress, StatusCancelled}, next)

	// callers must not be able to mutate the table
	next[0] = StatusCompleted
	assert.False(t, CanTransition(StatusPending, StatusCompleted))
}

func TestValidTurnDuration(t *testing.T) {
	valid := []int{15, 20, 30, 45, 60}
	invalid := []int{0, 10, 14, 17, 65, -30}

	for _, m := range valid {
		assert.True(t, ValidTurnDuration(m), m)
	}
	for _, m := range invalid {
		assert.False(t, ValidTurnDuration(m), m)
	}
}
