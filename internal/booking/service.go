package booking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"taller/internal/events"
	"taller/internal/metrics"
	"taller/internal/model"
	"taller/internal/schedule"
)

const (
	// DefaultTurnMinutes applies until a workshop config row exists.
	DefaultTurnMinutes = 30
	// MaxCalendarDays bounds a single calendar query.
	MaxCalendarDays = 92
)

// Store is the persistence contract shared by the SQLite and PostgreSQL stores.
type Store interface {
	GetWorkshopConfig(ctx context.Context) (*model.WorkshopConfig, error)
	SetTurnDuration(ctx context.Context, minutes int) error
	ListOperatingHours(ctx context.Context) ([]model.OperatingHours, error)
	UpsertOperatingHours(ctx context.Context, h *model.OperatingHours) error

	ListBlockedDates(ctx context.Context, from, to string) ([]model.BlockedDate, error)
	CreateBlockedDate(ctx context.Context, b *model.BlockedDate) error
	DeleteBlockedDate(ctx context.Context, date string) error

	ListServices(ctx context.Context, activeOnly bool) ([]model.Service, error)
	GetService(ctx context.Context, id int64) (*model.Service, error)
	CreateService(ctx context.Context, s *model.Service) error

	CreateClient(ctx context.Context, c *model.Client) error
	GetClient(ctx context.Context, id int64) (*model.Client, error)
	ListClients(ctx context.Context) ([]model.Client, error)
	CreateVehicle(ctx context.Context, v *model.Vehicle) error
	GetVehicle(ctx context.Context, id int64) (*model.Vehicle, error)
	ListVehiclesByClient(ctx context.Context, clientID int64) ([]model.Vehicle, error)

	ListAppointments(ctx context.Context, f model.AppointmentFilter) ([]model.Appointment, error)
	GetAppointment(ctx context.Context, id string) (*model.Appointment, error)
	// BookAppointment re-reads the turn, weekly hours, the day's block and
	// its active appointments inside a serialized transaction, calls check
	// on them and inserts a only when check returns nil.
	BookAppointment(ctx context.Context, a *model.Appointment, check func(model.DaySnapshot) error) error
	UpdateAppointmentStatus(ctx context.Context, id string, from, to model.AppointmentStatus) error
}

// EventPublisher is satisfied by *events.EventBus.
type EventPublisher interface {
	PublishJSON(eventType string, payload any) error
}

// DayCache is satisfied by *cache.AvailabilityCache.
type DayCache interface {
	Get(ctx context.Context, date, variant string, out any) (string, bool)
	Set(ctx context.Context, key string, val any)
}

// Rules bound how far ahead a booking may be placed.
type Rules struct {
	MinAdvance time.Duration
	MaxAdvance time.Duration
}

type Service struct {
	store  Store
	bus    EventPublisher
	cache  DayCache
	rules  Rules
	loc    *time.Location
	logger zerolog.Logger

	now   func() time.Time
	newID func() string
}

func NewService(store Store, bus EventPublisher, cache DayCache, rules Rules, loc *time.Location, logger *zerolog.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "booking").Logger()
	}
	return &Service{
		store:  store,
		bus:    bus,
		cache:  cache,
		rules:  rules,
		loc:    loc,
		logger: l,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Location is the workshop time zone.
func (s *Service) Location() *time.Location {
	return s.loc
}

// BookingContext carries everything a booking needs.
type BookingContext struct {
	Date      time.Time
	Slot      schedule.Clock
	ServiceID int64
	ClientID  int64
	VehicleID int64
	Notes     string
}

// DayView is the slot listing of one date for a given service.
type DayView struct {
	Date           string                   `json:"date"`
	Weekday        int                      `json:"weekday"`
	TurnMinutes    int                      `json:"turn_duration_minutes"`
	ServiceID      int64                    `json:"service_id,omitempty"`
	ServiceMinutes int                      `json:"service_duration_minutes,omitempty"`
	Schedule       schedule.Schedule        `json:"schedule"`
	Block          *schedule.Block          `json:"block,omitempty"`
	Slots          []schedule.TimeSlot      `json:"slots"`
	BookableStarts []schedule.Clock         `json:"bookable_starts"`
	Summary        schedule.DayAvailability `json:"summary"`
}

// midnight returns the start of date's calendar day in the workshop zone.
func (s *Service) midnight(date time.Time) time.Time {
	start, _ := schedule.DayBounds(date.In(s.loc))
	return start
}

func (s *Service) turnMinutes(ctx context.Context) (int, error) {
	cfg, err := s.store.GetWorkshopConfig(ctx)
	if errors.Is(err, model.ErrNotFound) {
		return DefaultTurnMinutes, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load workshop config: %w", err)
	}
	return cfg.TurnDurationMinutes, nil
}

// planDay reads everything needed to lay out date.
func (s *Service) planDay(ctx context.Context, date time.Time) (schedule.Day, []model.Appointment, int, error) {
	turn, err := s.turnMinutes(ctx)
	if err != nil {
		return schedule.Day{}, nil, 0, err
	}
	hours, err := s.store.ListOperatingHours(ctx)
	if err != nil {
		return schedule.Day{}, nil, 0, fmt.Errorf("load operating hours: %w", err)
	}
	key := schedule.DateKey(date)
	blocked, err := s.store.ListBlockedDates(ctx, key, key)
	if err != nil {
		return schedule.Day{}, nil, 0, fmt.Errorf("load blocked dates: %w", err)
	}
	appts, err := s.store.ListAppointments(ctx, model.AppointmentFilter{From: key, To: key, ActiveOnly: true})
	if err != nil {
		return schedule.Day{}, nil, 0, fmt.Errorf("load appointments: %w", err)
	}
	return schedule.PlanDay(date, hours, blocked, appts, turn), appts, turn, nil
}

// Availability lays out the slots of date and the starts at which the
// service fits. serviceID 0 asks for single-turn starts.
func (s *Service) Availability(ctx context.Context, date time.Time, serviceID int64) (*DayView, error) {
	date = s.midnight(date)
	key := schedule.DateKey(date)

	serviceMinutes := 0
	if serviceID > 0 {
		svc, err := s.store.GetService(ctx, serviceID)
		if err != nil {
			return nil, fmt.Errorf("service %d: %w", serviceID, err)
		}
		serviceMinutes = svc.EstimatedDurationMinutes
	}

	var view DayView
	cacheKey := ""
	if s.cache != nil {
		var hit bool
		cacheKey, hit = s.cache.Get(ctx, key, strconv.FormatInt(serviceID, 10), &view)
		metrics.IncAvailabilityQuery(hit)
		if hit {
			view.BookableStarts = s.bookableNow(date, view.BookableStarts)
			return &view, nil
		}
	}

	day, appts, turn, err := s.planDay(ctx, date)
	if err != nil {
		return nil, err
	}

	view = DayView{
		Date:           key,
		Weekday:        schedule.ISOWeekday(date),
		TurnMinutes:    turn,
		ServiceID:      serviceID,
		ServiceMinutes: serviceMinutes,
		Schedule:       day.Schedule,
		Block:          day.Block,
		Slots:          day.Slots,
		BookableStarts: schedule.BookableStarts(day.Slots, turn, serviceMinutes),
		Summary:        day.Availability(appts, turn),
	}
	if s.cache != nil {
		s.cache.Set(ctx, cacheKey, view)
	}
	view.BookableStarts = s.bookableNow(date, view.BookableStarts)
	return &view, nil
}

// bookableNow drops starts Book would reject as too soon or too far ahead.
// Cached views keep every start since the cut moves with the clock.
func (s *Service) bookableNow(date time.Time, starts []schedule.Clock) []schedule.Clock {
	kept := make([]schedule.Clock, 0, len(starts))
	for _, c := range starts {
		if s.checkWindow(c.On(date)) == nil {
			kept = append(kept, c)
		}
	}
	return kept
}

// Calendar aggregates occupancy for every date in [from, to].
func (s *Service) Calendar(ctx context.Context, from, to time.Time) ([]schedule.DayAvailability, error) {
	from, to = s.midnight(from), s.midnight(to)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range ends before it starts", ErrValidation)
	}
	days := int(to.Sub(from).Hours()/24+0.5) + 1
	if days > MaxCalendarDays {
		return nil, fmt.Errorf("%w: range longer than %d days", ErrValidation, MaxCalendarDays)
	}

	turn, err := s.turnMinutes(ctx)
	if err != nil {
		return nil, err
	}
	hours, err := s.store.ListOperatingHours(ctx)
	if err != nil {
		return nil, fmt.Errorf("load operating hours: %w", err)
	}
	fromKey, toKey := schedule.DateKey(from), schedule.DateKey(to)
	blocked, err := s.store.ListBlockedDates(ctx, fromKey, toKey)
	if err != nil {
		return nil, fmt.Errorf("load blocked dates: %w", err)
	}
	appts, err := s.store.ListAppointments(ctx, model.AppointmentFilter{From: fromKey, To: toKey, ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}

	byDate := make(map[string][]model.Appointment)
	for _, a := range appts {
		k := schedule.DateKey(a.DateTime.In(s.loc))
		byDate[k] = append(byDate[k], a)
	}

	result := make([]schedule.DayAvailability, 0, days)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		sched := schedule.ResolveSchedule(d, hours)
		block := schedule.ResolveBlock(d, blocked)
		result = append(result, schedule.CalculateDayAvailability(d, sched, block, byDate[schedule.DateKey(d)], turn))
	}
	return result, nil
}

// Book validates bc and stores a pending appointment. The slot check runs
// twice: on freshly read data, then again inside the store transaction.
// Losing the second check returns ErrSlotTaken.
func (s *Service) Book(ctx context.Context, bc BookingContext) (*model.Appointment, error) {
	if bc.ClientID <= 0 || bc.VehicleID <= 0 || bc.ServiceID <= 0 {
		metrics.IncBooking(metrics.ResultRejected)
		return nil, fmt.Errorf("%w: client, vehicle and service are required", ErrValidation)
	}

	date := s.midnight(bc.Date)
	start := bc.Slot.On(date)
	if err := s.checkWindow(start); err != nil {
		metrics.IncBooking(metrics.ResultRejected)
		return nil, err
	}

	svc, err := s.store.GetService(ctx, bc.ServiceID)
	if err != nil {
		metrics.IncBooking(metrics.ResultRejected)
		return nil, fmt.Errorf("service %d: %w", bc.ServiceID, err)
	}
	if !svc.IsActive {
		metrics.IncBooking(metrics.ResultRejected)
		return nil, fmt.Errorf("%w: service %q is not offered", ErrValidation, svc.Name)
	}
	vehicle, err := s.store.GetVehicle(ctx, bc.VehicleID)
	if err != nil {
		metrics.IncBooking(metrics.ResultRejected)
		return nil, fmt.Errorf("vehicle %d: %w", bc.VehicleID, err)
	}
	if vehicle.ClientID != bc.ClientID {
		metrics.IncBooking(metrics.ResultRejected)
		return nil, fmt.Errorf("%w: vehicle %d does not belong to client %d", ErrValidation, bc.VehicleID, bc.ClientID)
	}

	day, _, turn, err := s.planDay(ctx, date)
	if err != nil {
		metrics.IncBooking(metrics.ResultError)
		return nil, err
	}
	if !day.CanBook(bc.Slot, turn, svc.EstimatedDurationMinutes) {
		metrics.IncBooking(metrics.ResultUnavailable)
		return nil, fmt.Errorf("%w: %s %s", ErrSlotUnavailable, schedule.DateKey(date), bc.Slot)
	}

	appt := &model.Appointment{
		ID:              s.newID(),
		ClientID:        bc.ClientID,
		VehicleID:       bc.VehicleID,
		ServiceID:       svc.ID,
		ServiceName:     svc.Name,
		DurationMinutes: svc.EstimatedDurationMinutes,
		DateTime:        start,
		Status:          model.StatusPending,
		Notes:           bc.Notes,
	}

	err = s.store.BookAppointment(ctx, appt, func(snap model.DaySnapshot) error {
		current := snap.TurnMinutes
		if current <= 0 {
			current = DefaultTurnMinutes
		}
		latest := schedule.PlanDay(date, snap.Hours, snap.Blocked, snap.Active, current)
		if !latest.CanBook(bc.Slot, current, svc.EstimatedDurationMinutes) {
			return ErrSlotTaken
		}
		return nil
	})
	if errors.Is(err, ErrSlotTaken) {
		metrics.IncBooking(metrics.ResultRaceLost)
		s.logger.Info().Str("date", schedule.DateKey(date)).Stringer("slot", bc.Slot).Msg("booking lost race for slot")
		return nil, err
	}
	if err != nil {
		metrics.IncBooking(metrics.ResultError)
		return nil, fmt.Errorf("store appointment: %w", err)
	}

	metrics.IncBooking(metrics.ResultCreated)
	s.logger.Info().
		Str("appointment_id", appt.ID).
		Str("date", schedule.DateKey(date)).
		Stringer("slot", bc.Slot).
		Int64("service_id", svc.ID).
		Msg("appointment booked")
	s.publish(events.AppointmentCreated, events.AppointmentPayload{
		AppointmentID: appt.ID,
		Date:          schedule.DateKey(date),
		To:            string(appt.Status),
	})
	return appt, nil
}

func (s *Service) checkWindow(start time.Time) error {
	now := s.now()
	if start.Before(now.Add(s.rules.MinAdvance)) {
		return fmt.Errorf("%w: %s is too soon", ErrOutsideBookingWindow, start.Format(time.RFC3339))
	}
	if s.rules.MaxAdvance > 0 && start.After(now.Add(s.rules.MaxAdvance)) {
		return fmt.Errorf("%w: %s is too far ahead", ErrOutsideBookingWindow, start.Format(time.RFC3339))
	}
	return nil
}

// TransitionStatus moves an appointment along its lifecycle.
func (s *Service) TransitionStatus(ctx context.Context, id string, to model.AppointmentStatus) (*model.Appointment, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, to)
	}

	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("appointment %s: %w", id, err)
	}
	from := appt.Status
	if !model.CanTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	if err := s.store.UpdateAppointmentStatus(ctx, id, from, to); err != nil {
		return nil, fmt.Errorf("update appointment %s: %w", id, err)
	}
	appt.Status = to
	appt.UpdatedAt = s.now()

	metrics.IncStatusTransition(string(from), string(to))
	s.logger.Info().Str("appointment_id", id).Str("from", string(from)).Str("to", string(to)).Msg("appointment status changed")
	s.publish(events.AppointmentStatusChanged, events.AppointmentPayload{
		AppointmentID: id,
		Date:          schedule.DateKey(appt.DateTime.In(s.loc)),
		From:          string(from),
		To:            string(to),
	})
	return appt, nil
}

func (s *Service) GetAppointment(ctx context.Context, id string) (*model.Appointment, error) {
	return s.store.GetAppointment(ctx, id)
}

func (s *Service) ListAppointments(ctx context.Context, f model.AppointmentFilter) ([]model.Appointment, error) {
	return s.store.ListAppointments(ctx, f)
}

func (s *Service) publish(eventType string, payload any) {
	if s.bus == nil {
		return
	}
	if err := s.bus.PublishJSON(eventType, payload); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("event handler failed")
	}
}
