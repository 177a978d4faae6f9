package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"taller/internal/model"
	"taller/internal/schedule"
)

type turnDurationRequest struct {
	TurnDurationMinutes int `json:"turn_duration_minutes" validate:"required,min=15,max=60"`
}

type operatingHoursRequest struct {
	IsWorkingDay            *bool  `json:"is_working_day" validate:"required"`
	OpenTime                string `json:"open_time" validate:"omitempty,clock"`
	CloseTime               string `json:"close_time" validate:"omitempty,clock"`
	MaxSimultaneousServices int    `json:"max_simultaneous_services" validate:"min=0,max=50"`
}

type blockedDateRequest struct {
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Reason    string `json:"reason" validate:"max=200"`
	IsFullDay bool   `json:"is_full_day"`
	StartTime string `json:"start_time" validate:"omitempty,clock"`
	EndTime   string `json:"end_time" validate:"omitempty,clock"`
}

// GET /api/workshop/config
func (s *Server) handleGetWorkshopConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.booking.WorkshopConfig(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// PUT /api/workshop/config
func (s *Server) handleUpdateWorkshopConfig(w http.ResponseWriter, r *http.Request) {
	var req turnDurationRequest
	if !s.decode(w, r, &req) {
		return
	}
	cfg, err := s.booking.UpdateTurnDuration(r.Context(), req.TurnDurationMinutes)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// GET /api/operating-hours
func (s *Server) handleListOperatingHours(w http.ResponseWriter, r *http.Request) {
	hours, err := s.booking.OperatingHours(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"operating_hours": nonNil(hours)})
}

// PUT /api/operating-hours/{weekday}
func (s *Server) handleSetOperatingHours(w http.ResponseWriter, r *http.Request) {
	weekday, err := strconv.Atoi(chi.URLParam(r, "weekday"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "weekday debe ser un número entre 1 y 7")
		return
	}
	var req operatingHoursRequest
	if !s.decode(w, r, &req) {
		return
	}

	h, err := s.booking.SetOperatingHours(r.Context(), model.OperatingHours{
		Weekday:                 weekday,
		IsWorkingDay:            *req.IsWorkingDay,
		OpenTime:                req.OpenTime,
		CloseTime:               req.CloseTime,
		MaxSimultaneousServices: req.MaxSimultaneousServices,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

// GET /api/blocked-dates?from=YYYY-MM-DD&to=YYYY-MM-DD
func (s *Server) handleListBlockedDates(w http.ResponseWriter, r *http.Request) {
	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	for _, d := range []string{from, to} {
		if d == "" {
			continue
		}
		if _, err := schedule.ParseDate(d, s.booking.Location()); err != nil {
			writeError(w, http.StatusBadRequest, "fecha inválida; usa AAAA-MM-DD")
			return
		}
	}

	blocked, err := s.booking.BlockedDates(r.Context(), from, to)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"blocked_dates": nonNil(blocked)})
}

// POST /api/blocked-dates
func (s *Server) handleAddBlockedDate(w http.ResponseWriter, r *http.Request) {
	var req blockedDateRequest
	if !s.decode(w, r, &req) {
		return
	}
	b, err := s.booking.AddBlockedDate(r.Context(), model.BlockedDate{
		Date:      req.Date,
		Reason:    req.Reason,
		IsFullDay: req.IsFullDay,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// DELETE /api/blocked-dates/{date}
func (s *Server) handleRemoveBlockedDate(w http.ResponseWriter, r *http.Request) {
	if err := s.booking.RemoveBlockedDate(r.Context(), chi.URLParam(r, "date")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// nonNil keeps empty listings as [] in JSON.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
