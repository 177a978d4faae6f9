// Package api exposes the workshop over HTTP/JSON.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"taller/internal/booking"
	"taller/internal/metrics"
	"taller/internal/report"
)

// Options tunes the HTTP layer.
type Options struct {
	AllowedOrigins    []string
	RequestsPerSecond int // per IP, all routes
	BookingsPerMinute int // per client, POST /api/appointments
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
}

type Server struct {
	booking  *booking.Service
	reports  *report.Builder
	limiter  *clientLimiter
	opts     Options
	logger   zerolog.Logger
	validate *requestValidator
}

func NewServer(svc *booking.Service, reports *report.Builder, opts Options, logger *zerolog.Logger) *Server {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "api").Logger()
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 20
	}
	if opts.BookingsPerMinute <= 0 {
		opts.BookingsPerMinute = 10
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{
		booking:  svc,
		reports:  reports,
		limiter:  newClientLimiter(opts.BookingsPerMinute, time.Minute),
		opts:     opts,
		logger:   l,
		validate: newRequestValidator(),
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))
	r.Use(httprate.LimitByIP(s.opts.RequestsPerSecond, time.Second))

	r.Route("/api", func(r chi.Router) {
		r.Get("/workshop/config", s.handleGetWorkshopConfig)
		r.Put("/workshop/config", s.handleUpdateWorkshopConfig)

		r.Get("/operating-hours", s.handleListOperatingHours)
		r.Put("/operating-hours/{weekday}", s.handleSetOperatingHours)

		r.Get("/blocked-dates", s.handleListBlockedDates)
		r.Post("/blocked-dates", s.handleAddBlockedDate)
		r.Delete("/blocked-dates/{date}", s.handleRemoveBlockedDate)

		r.Get("/services", s.handleListServices)
		r.Post("/services", s.handleCreateService)

		r.Get("/clients", s.handleListClients)
		r.Post("/clients", s.handleCreateClient)
		r.Get("/clients/{id}/vehicles", s.handleListVehicles)
		r.Post("/clients/{id}/vehicles", s.handleCreateVehicle)

		r.Get("/availability", s.handleCalendar)
		r.Get("/availability/{date}", s.handleDayAvailability)

		r.Get("/appointments", s.handleListAppointments)
		r.Post("/appointments", s.handleBook)
		r.Get("/appointments/{id}", s.handleGetAppointment)
		r.Patch("/appointments/{id}/status", s.handleTransitionStatus)

		r.Get("/reports/occupancy", s.handleOccupancyReport)
	})

	return r
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.opts.ReadTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
	}

	go s.limiter.sweep(ctx, 10*time.Minute)
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()

	s.logger.Info().Str("addr", addr).Msg("api server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		metrics.ObserveHTTP(r.Method, route, strconv.Itoa(status), elapsed.Seconds())

		ev := s.logger.Debug()
		if status >= http.StatusInternalServerError {
			ev = s.logger.Error()
		}
		ev.Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("elapsed", elapsed).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
