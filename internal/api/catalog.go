package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"taller/internal/model"
)

type serviceRequest struct {
	Name            string  `json:"name" validate:"required,max=120"`
	Description     string  `json:"description" validate:"max=500"`
	DurationMinutes int     `json:"estimated_duration_minutes" validate:"required,min=1,max=1440"`
	Price           float64 `json:"price" validate:"min=0"`
	IsActive        *bool   `json:"is_active"`
}

type clientRequest struct {
	Name  string `json:"name" validate:"required,max=120"`
	Phone string `json:"phone" validate:"required,min=6,max=30"`
	Email string `json:"email" validate:"omitempty,email"`
}

type vehicleRequest struct {
	Make  string `json:"make" validate:"required,max=60"`
	Model string `json:"model" validate:"required,max=60"`
	Year  int    `json:"year" validate:"omitempty,min=1900,max=2100"`
	Plate string `json:"plate" validate:"required,max=15"`
}

// GET /api/services?all=true
func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") != "true"
	services, err := s.booking.Services(r.Context(), activeOnly)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": nonNil(services)})
}

// POST /api/services
func (s *Server) handleCreateService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	if !s.decode(w, r, &req) {
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	svc, err := s.booking.CreateService(r.Context(), model.Service{
		Name:                     req.Name,
		Description:              req.Description,
		EstimatedDurationMinutes: req.DurationMinutes,
		Price:                    req.Price,
		IsActive:                 active,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, svc)
}

// GET /api/clients
func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.booking.Clients(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clients": nonNil(clients)})
}

// POST /api/clients
func (s *Server) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if !s.decode(w, r, &req) {
		return
	}
	c, err := s.booking.CreateClient(r.Context(), model.Client{Name: req.Name, Phone: req.Phone, Email: req.Email})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// GET /api/clients/{id}/vehicles
func (s *Server) handleListVehicles(w http.ResponseWriter, r *http.Request) {
	clientID, ok := pathID(w, r)
	if !ok {
		return
	}
	vehicles, err := s.booking.Vehicles(r.Context(), clientID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"vehicles": nonNil(vehicles)})
}

// POST /api/clients/{id}/vehicles
func (s *Server) handleCreateVehicle(w http.ResponseWriter, r *http.Request) {
	clientID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req vehicleRequest
	if !s.decode(w, r, &req) {
		return
	}
	v, err := s.booking.CreateVehicle(r.Context(), model.Vehicle{
		ClientID: clientID,
		Make:     req.Make,
		Model:    req.Model,
		Year:     req.Year,
		Plate:    req.Plate,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "id inválido")
		return 0, false
	}
	return id, true
}
