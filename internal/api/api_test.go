package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taller/internal/booking"
	"taller/internal/db"
	"taller/internal/events"
	"taller/internal/model"
	"taller/internal/report"
)

type testServer struct {
	handler http.Handler
	server  *Server
}

func setupTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	store, err := db.NewDB(filepath.Join(t.TempDir(), "taller.db"), time.UTC)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.EnsureDefaults(context.Background()))

	logger := zerolog.New(io.Discard)
	svc := booking.NewService(store, events.NewEventBus(), nil, booking.Rules{}, time.UTC, &logger)
	srv := NewServer(svc, report.NewBuilder(svc, &logger), opts, &logger)
	return &testServer{handler: srv.Handler(), server: srv}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// nextMonday is a Monday at least a week ahead, so bookings are never in the past.
func nextMonday() time.Time {
	d := time.Now().UTC().AddDate(0, 0, 7)
	for d.Weekday() != time.Monday {
		d = d.AddDate(0, 0, 1)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

type seeded struct {
	serviceID int64
	clientID  int64
	vehicleID int64
}

func (ts *testServer) seed(t *testing.T) seeded {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/services", map[string]any{
		"name": "Frenos", "estimated_duration_minutes": 45, "price": 32000,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	svc := decodeBody[model.Service](t, w)

	w = ts.do(t, http.MethodPost, "/api/clients", map[string]any{"name": "Martina Ruiz", "phone": "+54 351 555 0199"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	client := decodeBody[model.Client](t, w)

	w = ts.do(t, http.MethodPost, fmt.Sprintf("/api/clients/%d/vehicles", client.ID), map[string]any{
		"make": "Renault", "model": "Kangoo", "year": 2018, "plate": "ab123cd",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	vehicle := decodeBody[model.Vehicle](t, w)
	assert.Equal(t, "AB123CD", vehicle.Plate)

	return seeded{serviceID: svc.ID, clientID: client.ID, vehicleID: vehicle.ID}
}

func (s seeded) booking(date time.Time, at string) map[string]any {
	return map[string]any{
		"date":       date.Format("2006-01-02"),
		"time":       at,
		"service_id": s.serviceID,
		"client_id":  s.clientID,
		"vehicle_id": s.vehicleID,
	}
}

func TestBookingFlow(t *testing.T) {
	ts := setupTestServer(t, Options{})
	s := ts.seed(t)
	monday := nextMonday()
	day := monday.Format("2006-01-02")

	w := ts.do(t, http.MethodGet, fmt.Sprintf("/api/availability/%s?service_id=%d", day, s.serviceID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	view := decodeBody[booking.DayView](t, w)
	assert.Len(t, view.Slots, 18)
	assert.Len(t, view.BookableStarts, 17)
	assert.Equal(t, 45, view.ServiceMinutes)

	w = ts.do(t, http.MethodPost, "/api/appointments", s.booking(monday, "10:00"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	appt := decodeBody[model.Appointment](t, w)
	assert.Equal(t, model.StatusPending, appt.Status)
	assert.Equal(t, 45, appt.DurationMinutes)

	w = ts.do(t, http.MethodGet, "/api/appointments?date="+day, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeBody[struct {
		Appointments []model.Appointment `json:"appointments"`
	}](t, w)
	require.Len(t, list.Appointments, 1)
	assert.Equal(t, "Frenos", list.Appointments[0].ServiceName)

	w = ts.do(t, http.MethodGet, "/api/availability/"+day, nil)
	require.Equal(t, http.StatusOK, w.Code)
	view = decodeBody[booking.DayView](t, w)
	assert.Equal(t, 2, view.Slots[2].AvailableCapacity, "10:00")
	assert.Equal(t, 2, view.Slots[3].AvailableCapacity, "10:30")
	assert.Equal(t, 3, view.Slots[4].AvailableCapacity, "11:00")

	w = ts.do(t, http.MethodPatch, "/api/appointments/"+appt.ID+"/status", map[string]string{"status": "in_progress"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, model.StatusInProgress, decodeBody[model.Appointment](t, w).Status)

	w = ts.do(t, http.MethodPatch, "/api/appointments/"+appt.ID+"/status", map[string]string{"status": "pending"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, msgInvalidTransition, decodeBody[errorResponse](t, w).Error)

	w = ts.do(t, http.MethodGet, "/api/appointments/"+appt.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeBody[struct {
		model.Appointment
		NextStatuses []model.AppointmentStatus `json:"next_statuses"`
	}](t, w)
	assert.Equal(t, model.StatusInProgress, got.Status)
	assert.Equal(t, []model.AppointmentStatus{model.StatusCompleted, model.StatusCancelled}, got.NextStatuses)

	w = ts.do(t, http.MethodPatch, "/api/appointments/"+appt.ID+"/status", map[string]string{"status": "completed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"next_statuses":[]`)
}

func TestBook_SlotUnavailable(t *testing.T) {
	ts := setupTestServer(t, Options{})
	s := ts.seed(t)
	monday := nextMonday()

	w := ts.do(t, http.MethodPut, "/api/operating-hours/1", map[string]any{
		"is_working_day": true, "open_time": "08:00", "close_time": "12:00", "max_simultaneous_services": 1,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodPost, "/api/appointments", s.booking(monday, "09:00"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// 09:30 overlaps the 45 minute service booked at 09:00
	for _, at := range []string{"09:00", "09:30", "11:30", "07:30", "09:15"} {
		w = ts.do(t, http.MethodPost, "/api/appointments", s.booking(monday, at))
		assert.Equal(t, http.StatusConflict, w.Code, at)
		assert.Equal(t, msgSlotUnavailable, decodeBody[errorResponse](t, w).Error, at)
	}

	w = ts.do(t, http.MethodPost, "/api/appointments", s.booking(monday, "10:00"))
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestBook_ClosedAndPast(t *testing.T) {
	ts := setupTestServer(t, Options{})
	s := ts.seed(t)

	sunday := nextMonday().AddDate(0, 0, 6)
	w := ts.do(t, http.MethodPost, "/api/appointments", s.booking(sunday, "10:00"))
	assert.Equal(t, http.StatusConflict, w.Code)

	past := nextMonday().AddDate(0, 0, -28)
	w = ts.do(t, http.MethodPost, "/api/appointments", s.booking(past, "10:00"))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, msgOutsideWindow, decodeBody[errorResponse](t, w).Error)
}

func TestBook_Validation(t *testing.T) {
	ts := setupTestServer(t, Options{})

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantError  string
		wantDetail string
	}{
		{
			name:       "invalid JSON",
			body:       "not json",
			wantStatus: http.StatusBadRequest,
			wantError:  msgInvalidJSON,
		},
		{
			name:       "unknown field",
			body:       map[string]any{"date": "2030-01-07", "slot": "10:00"},
			wantStatus: http.StatusBadRequest,
			wantError:  msgInvalidJSON,
		},
		{
			name:       "missing fields",
			body:       map[string]any{},
			wantStatus: http.StatusBadRequest,
			wantError:  msgValidation,
			wantDetail: "date es obligatorio",
		},
		{
			name: "bad date",
			body: map[string]any{
				"date": "07/01/2030", "time": "10:00", "service_id": 1, "client_id": 1, "vehicle_id": 1,
			},
			wantStatus: http.StatusBadRequest,
			wantError:  msgValidation,
			wantDetail: "date debe tener formato AAAA-MM-DD",
		},
		{
			name: "bad time",
			body: map[string]any{
				"date": "2030-01-07", "time": "25:00", "service_id": 1, "client_id": 1, "vehicle_id": 1,
			},
			wantStatus: http.StatusBadRequest,
			wantError:  msgValidation,
			wantDetail: "time debe tener formato HH:MM",
		},
		{
			name: "unknown service",
			body: map[string]any{
				"date": "2030-01-07", "time": "10:00", "service_id": 99, "client_id": 1, "vehicle_id": 1,
			},
			wantStatus: http.StatusNotFound,
			wantError:  msgNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/api/appointments", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			resp := decodeBody[errorResponse](t, w)
			assert.Equal(t, tt.wantError, resp.Error)
			if tt.wantDetail != "" {
				assert.Contains(t, resp.Detail, tt.wantDetail)
			}
		})
	}
}

func TestBook_RateLimited(t *testing.T) {
	ts := setupTestServer(t, Options{BookingsPerMinute: 1})
	s := ts.seed(t)
	monday := nextMonday()

	w := ts.do(t, http.MethodPost, "/api/appointments", s.booking(monday, "09:00"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = ts.do(t, http.MethodPost, "/api/appointments", s.booking(monday, "11:00"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, msgRateLimited, decodeBody[errorResponse](t, w).Error)
}

func TestBlockedDates(t *testing.T) {
	ts := setupTestServer(t, Options{})
	day := nextMonday().Format("2006-01-02")

	tests := []struct {
		name       string
		body       map[string]any
		wantStatus int
	}{
		{"starts before opening", map[string]any{"date": day, "start_time": "08:00", "end_time": "10:00"}, http.StatusUnprocessableEntity},
		{"ends before it starts", map[string]any{"date": day, "start_time": "12:00", "end_time": "11:00"}, http.StatusUnprocessableEntity},
		{"missing times", map[string]any{"date": day}, http.StatusUnprocessableEntity},
		{"bad clock", map[string]any{"date": day, "start_time": "noon", "end_time": "13:00"}, http.StatusBadRequest},
		{"partial", map[string]any{"date": day, "reason": "Capacitación", "start_time": "14:00", "end_time": "16:00"}, http.StatusCreated},
		{"second block same day", map[string]any{"date": day, "is_full_day": true}, http.StatusUnprocessableEntity},
		{"closed sunday", map[string]any{"date": nextMonday().AddDate(0, 0, 6).Format("2006-01-02"), "is_full_day": true}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/api/blocked-dates", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}

	w := ts.do(t, http.MethodGet, "/api/blocked-dates?from="+day+"&to="+day, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeBody[struct {
		BlockedDates []model.BlockedDate `json:"blocked_dates"`
	}](t, w)
	require.Len(t, list.BlockedDates, 1)
	assert.Equal(t, "14:00", list.BlockedDates[0].StartTime)

	w = ts.do(t, http.MethodGet, "/api/availability/"+day, nil)
	view := decodeBody[booking.DayView](t, w)
	require.NotNil(t, view.Block)
	assert.True(t, view.Slots[10].Blocked, "14:00")
	assert.True(t, view.Slots[14].Blocked, "16:00")
	assert.False(t, view.Slots[15].Blocked, "16:30")

	w = ts.do(t, http.MethodDelete, "/api/blocked-dates/"+day, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = ts.do(t, http.MethodDelete, "/api/blocked-dates/"+day, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWorkshopConfig(t *testing.T) {
	ts := setupTestServer(t, Options{})

	w := ts.do(t, http.MethodGet, "/api/workshop/config", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 30, decodeBody[model.WorkshopConfig](t, w).TurnDurationMinutes)

	w = ts.do(t, http.MethodPut, "/api/workshop/config", map[string]int{"turn_duration_minutes": 17})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(t, http.MethodPut, "/api/workshop/config", map[string]int{"turn_duration_minutes": 90})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPut, "/api/workshop/config", map[string]int{"turn_duration_minutes": 15})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodGet, "/api/availability/"+nextMonday().Format("2006-01-02"), nil)
	assert.Len(t, decodeBody[booking.DayView](t, w).Slots, 36)

	w = ts.do(t, http.MethodGet, "/api/operating-hours", nil)
	require.Equal(t, http.StatusOK, w.Code)
	hours := decodeBody[struct {
		OperatingHours []model.OperatingHours `json:"operating_hours"`
	}](t, w)
	assert.Len(t, hours.OperatingHours, 7)

	w = ts.do(t, http.MethodPut, "/api/operating-hours/8", map[string]any{"is_working_day": false})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(t, http.MethodPut, "/api/operating-hours/2", map[string]any{
		"is_working_day": true, "open_time": "18:00", "close_time": "09:00", "max_simultaneous_services": 2,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCalendar(t *testing.T) {
	ts := setupTestServer(t, Options{})
	monday := nextMonday()

	path := fmt.Sprintf("/api/availability?from=%s&to=%s",
		monday.Format("2006-01-02"), monday.AddDate(0, 0, 6).Format("2006-01-02"))
	w := ts.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeBody[struct {
		Days []struct {
			Date       string `json:"date"`
			Status     string `json:"status"`
			TotalSlots int    `json:"total_slots"`
		} `json:"days"`
	}](t, w)
	require.Len(t, resp.Days, 7)
	assert.Equal(t, "high", resp.Days[0].Status)
	assert.Equal(t, 54, resp.Days[0].TotalSlots)
	assert.Equal(t, "blocked", resp.Days[6].Status)

	path = fmt.Sprintf("/api/availability?from=%s&to=%s",
		monday.Format("2006-01-02"), monday.AddDate(0, 6, 0).Format("2006-01-02"))
	w = ts.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/api/availability?from=manana", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNotFound(t *testing.T) {
	ts := setupTestServer(t, Options{})

	for _, path := range []string{"/api/appointments/nope", "/api/clients/999/vehicles"} {
		w := ts.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Equal(t, msgNotFound, decodeBody[errorResponse](t, w).Error, path)
	}

	w := ts.do(t, http.MethodGet, "/api/clients/abc/vehicles", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOccupancyReport(t *testing.T) {
	ts := setupTestServer(t, Options{})

	w := ts.do(t, http.MethodGet, "/api/reports/occupancy?month=2030-01", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "ocupacion_2030-01.xlsx")
	assert.NotZero(t, w.Body.Len())

	w = ts.do(t, http.MethodGet, "/api/reports/occupancy?month=enero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClientLimiter(t *testing.T) {
	l := newClientLimiter(2, time.Minute)
	now := time.Date(2030, 1, 7, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "buckets are per key")

	now = now.Add(30 * time.Second)
	assert.True(t, l.Allow("a"), "one token refills every 30s")

	now = now.Add(time.Hour)
	assert.Equal(t, 2, l.evict(time.Minute))
}
