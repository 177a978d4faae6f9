package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"taller/internal/booking"
	"taller/internal/model"
	"taller/internal/schedule"
)

type bookingRequest struct {
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Time      string `json:"time" validate:"required,clock"`
	ServiceID int64  `json:"service_id" validate:"required,gt=0"`
	ClientID  int64  `json:"client_id" validate:"required,gt=0"`
	VehicleID int64  `json:"vehicle_id" validate:"required,gt=0"`
	Notes     string `json:"notes" validate:"max=500"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending in_progress completed cancelled"`
}

// appointmentResponse adds the statuses the appointment can still move to.
type appointmentResponse struct {
	*model.Appointment
	NextStatuses []model.AppointmentStatus `json:"next_statuses"`
}

func withNextStatuses(a *model.Appointment) appointmentResponse {
	return appointmentResponse{Appointment: a, NextStatuses: nonNil(model.NextStatuses(a.Status))}
}

// GET /api/availability/{date}?service_id=N
func (s *Server) handleDayAvailability(w http.ResponseWriter, r *http.Request) {
	date, err := schedule.ParseDate(chi.URLParam(r, "date"), s.booking.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, "fecha inválida; usa AAAA-MM-DD")
		return
	}

	var serviceID int64
	if raw := r.URL.Query().Get("service_id"); raw != "" {
		serviceID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || serviceID <= 0 {
			writeError(w, http.StatusBadRequest, "service_id inválido")
			return
		}
	}

	view, err := s.booking.Availability(r.Context(), date, serviceID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GET /api/availability?from=YYYY-MM-DD&to=YYYY-MM-DD
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	loc := s.booking.Location()
	q := r.URL.Query()

	from := time.Now().In(loc)
	if raw := q.Get("from"); raw != "" {
		d, err := schedule.ParseDate(raw, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from inválido; usa AAAA-MM-DD")
			return
		}
		from = d
	}
	to := from.AddDate(0, 0, 30)
	if raw := q.Get("to"); raw != "" {
		d, err := schedule.ParseDate(raw, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "to inválido; usa AAAA-MM-DD")
			return
		}
		to = d
	}

	days, err := s.booking.Calendar(r.Context(), from, to)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": days})
}

// GET /api/appointments?date=&from=&to=&status=&client_id=
func (s *Server) handleListAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := model.AppointmentFilter{From: q.Get("from"), To: q.Get("to")}
	if d := q.Get("date"); d != "" {
		f.From, f.To = d, d
	}
	for _, d := range []string{f.From, f.To} {
		if d == "" {
			continue
		}
		if _, err := schedule.ParseDate(d, s.booking.Location()); err != nil {
			writeError(w, http.StatusBadRequest, "fecha inválida; usa AAAA-MM-DD")
			return
		}
	}
	if st := q.Get("status"); st != "" {
		f.Status = model.AppointmentStatus(st)
		if !f.Status.Valid() {
			writeError(w, http.StatusBadRequest, "status inválido")
			return
		}
	}
	if raw := q.Get("client_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "client_id inválido")
			return
		}
		f.ClientID = id
	}

	appts, err := s.booking.ListAppointments(r.Context(), f)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": nonNil(appts)})
}

// POST /api/appointments
func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if !s.decode(w, r, &req) {
		return
	}
	if !s.limiter.Allow("client:" + strconv.FormatInt(req.ClientID, 10)) {
		writeError(w, http.StatusTooManyRequests, msgRateLimited)
		return
	}

	date, err := schedule.ParseDate(req.Date, s.booking.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, "fecha inválida; usa AAAA-MM-DD")
		return
	}
	slot, err := schedule.ParseClock(req.Time)
	if err != nil {
		writeError(w, http.StatusBadRequest, "hora inválida; usa HH:MM")
		return
	}

	appt, err := s.booking.Book(r.Context(), booking.BookingContext{
		Date:      date,
		Slot:      slot,
		ServiceID: req.ServiceID,
		ClientID:  req.ClientID,
		VehicleID: req.VehicleID,
		Notes:     req.Notes,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, withNextStatuses(appt))
}

// GET /api/appointments/{id}
func (s *Server) handleGetAppointment(w http.ResponseWriter, r *http.Request) {
	appt, err := s.booking.GetAppointment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, withNextStatuses(appt))
}

// PATCH /api/appointments/{id}/status
func (s *Server) handleTransitionStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !s.decode(w, r, &req) {
		return
	}
	appt, err := s.booking.TransitionStatus(r.Context(), chi.URLParam(r, "id"), model.AppointmentStatus(req.Status))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, withNextStatuses(appt))
}
