package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"taller/internal/events"
	"taller/internal/model"
	"taller/internal/schedule"
)

// WorkshopConfig returns the stored configuration, or the defaults when
// nothing has been stored yet.
func (s *Service) WorkshopConfig(ctx context.Context) (*model.WorkshopConfig, error) {
	cfg, err := s.store.GetWorkshopConfig(ctx)
	if errors.Is(err, model.ErrNotFound) {
		return &model.WorkshopConfig{TurnDurationMinutes: DefaultTurnMinutes}, nil
	}
	return cfg, err
}

func (s *Service) UpdateTurnDuration(ctx context.Context, minutes int) (*model.WorkshopConfig, error) {
	if !model.ValidTurnDuration(minutes) {
		return nil, fmt.Errorf("%w: turn duration must be %d-%d minutes in steps of %d", ErrValidation,
			model.MinTurnDurationMinutes, model.MaxTurnDurationMinutes, model.TurnDurationStepMinutes)
	}
	if err := s.store.SetTurnDuration(ctx, minutes); err != nil {
		return nil, fmt.Errorf("set turn duration: %w", err)
	}
	s.logger.Info().Int("minutes", minutes).Msg("turn duration updated")
	s.publish(events.CalendarChanged, events.CalendarPayload{Reason: "turn duration"})
	return s.store.GetWorkshopConfig(ctx)
}

func (s *Service) OperatingHours(ctx context.Context) ([]model.OperatingHours, error) {
	return s.store.ListOperatingHours(ctx)
}

// SetOperatingHours replaces the schedule of one weekday. Times are stored
// normalized to HH:MM.
func (s *Service) SetOperatingHours(ctx context.Context, h model.OperatingHours) (*model.OperatingHours, error) {
	if !schedule.ValidWeekday(h.Weekday) {
		return nil, fmt.Errorf("%w: weekday %d must be 1 (Monday) to 7 (Sunday)", ErrValidation, h.Weekday)
	}

	if h.IsWorkingDay {
		open, err := schedule.ParseClock(h.OpenTime)
		if err != nil {
			return nil, fmt.Errorf("%w: open time: %v", ErrValidation, err)
		}
		closing, err := schedule.ParseClock(h.CloseTime)
		if err != nil {
			return nil, fmt.Errorf("%w: close time: %v", ErrValidation, err)
		}
		if closing <= open {
			return nil, fmt.Errorf("%w: close time must be after open time", ErrValidation)
		}
		if h.MaxSimultaneousServices < 1 {
			return nil, fmt.Errorf("%w: at least one simultaneous service is required", ErrValidation)
		}
		h.OpenTime, h.CloseTime = open.String(), closing.String()
	} else {
		// keep whatever is parseable so reopening the day restores it
		if open, err := schedule.ParseClock(h.OpenTime); err == nil {
			h.OpenTime = open.String()
		}
		if closing, err := schedule.ParseClock(h.CloseTime); err == nil {
			h.CloseTime = closing.String()
		}
		if h.MaxSimultaneousServices < 1 {
			h.MaxSimultaneousServices = 1
		}
	}

	if err := s.store.UpsertOperatingHours(ctx, &h); err != nil {
		return nil, fmt.Errorf("save weekday %d: %w", h.Weekday, err)
	}
	s.logger.Info().Int("weekday", h.Weekday).Bool("working", h.IsWorkingDay).Msg("operating hours updated")
	s.publish(events.CalendarChanged, events.CalendarPayload{Reason: "operating hours"})
	return &h, nil
}

func (s *Service) BlockedDates(ctx context.Context, from, to string) ([]model.BlockedDate, error) {
	return s.store.ListBlockedDates(ctx, from, to)
}

// AddBlockedDate registers a closure on a working day. A partial block must
// have start before end and lie inside that day's working window. A date
// takes a single block. Holidays from workshop.yaml reach the store through
// the config sync and may fall on closed weekdays.
func (s *Service) AddBlockedDate(ctx context.Context, b model.BlockedDate) (*model.BlockedDate, error) {
	date, err := schedule.ParseDate(b.Date, s.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	b.Date = schedule.DateKey(date)
	b.Reason = strings.TrimSpace(b.Reason)

	var start, end schedule.Clock
	if !b.IsFullDay {
		if start, err = schedule.ParseClock(b.StartTime); err != nil {
			return nil, fmt.Errorf("%w: start time: %v", ErrInvalidBlockWindow, err)
		}
		if end, err = schedule.ParseClock(b.EndTime); err != nil {
			return nil, fmt.Errorf("%w: end time: %v", ErrInvalidBlockWindow, err)
		}
		if start >= end {
			return nil, fmt.Errorf("%w: start %s must be before end %s", ErrInvalidBlockWindow, start, end)
		}
	}

	hours, err := s.store.ListOperatingHours(ctx)
	if err != nil {
		return nil, fmt.Errorf("load operating hours: %w", err)
	}
	sched := schedule.ResolveSchedule(date, hours)
	if sched.Closed {
		return nil, fmt.Errorf("%w: %s is closed (%s)", ErrInvalidBlockWindow, b.Date, sched.Reason)
	}

	if b.IsFullDay {
		b.StartTime, b.EndTime = "", ""
	} else {
		if start < sched.Open || end > sched.Close {
			return nil, fmt.Errorf("%w: %s-%s is outside %s-%s", ErrInvalidBlockWindow, start, end, sched.Open, sched.Close)
		}
		b.StartTime, b.EndTime = start.String(), end.String()
	}

	if err := s.store.CreateBlockedDate(ctx, &b); err != nil {
		if errors.Is(err, model.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidBlockWindow, err)
		}
		return nil, fmt.Errorf("save blocked date: %w", err)
	}

	s.logger.Info().Str("date", b.Date).Bool("full_day", b.IsFullDay).Msg("date blocked")
	s.publish(events.CalendarChanged, events.CalendarPayload{Date: b.Date, Reason: "blocked date"})
	return &b, nil
}

func (s *Service) RemoveBlockedDate(ctx context.Context, date string) error {
	d, err := schedule.ParseDate(date, s.loc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	key := schedule.DateKey(d)
	if err := s.store.DeleteBlockedDate(ctx, key); err != nil {
		return fmt.Errorf("blocked date %s: %w", key, err)
	}
	s.logger.Info().Str("date", key).Msg("date unblocked")
	s.publish(events.CalendarChanged, events.CalendarPayload{Date: key, Reason: "blocked date removed"})
	return nil
}

func (s *Service) Services(ctx context.Context, activeOnly bool) ([]model.Service, error) {
	return s.store.ListServices(ctx, activeOnly)
}

func (s *Service) CreateService(ctx context.Context, svc model.Service) (*model.Service, error) {
	svc.Name = strings.TrimSpace(svc.Name)
	if svc.Name == "" {
		return nil, fmt.Errorf("%w: service name is required", ErrValidation)
	}
	if svc.EstimatedDurationMinutes <= 0 {
		return nil, fmt.Errorf("%w: estimated duration must be positive", ErrValidation)
	}
	if svc.Price < 0 {
		return nil, fmt.Errorf("%w: price cannot be negative", ErrValidation)
	}
	if err := s.store.CreateService(ctx, &svc); err != nil {
		return nil, err
	}
	return &svc, nil
}

func (s *Service) Clients(ctx context.Context) ([]model.Client, error) {
	return s.store.ListClients(ctx)
}

func (s *Service) CreateClient(ctx context.Context, c model.Client) (*model.Client, error) {
	c.Name, c.Phone = strings.TrimSpace(c.Name), strings.TrimSpace(c.Phone)
	if c.Name == "" || c.Phone == "" {
		return nil, fmt.Errorf("%w: client name and phone are required", ErrValidation)
	}
	if err := s.store.CreateClient(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Service) Vehicles(ctx context.Context, clientID int64) ([]model.Vehicle, error) {
	if _, err := s.store.GetClient(ctx, clientID); err != nil {
		return nil, fmt.Errorf("client %d: %w", clientID, err)
	}
	return s.store.ListVehiclesByClient(ctx, clientID)
}

func (s *Service) CreateVehicle(ctx context.Context, v model.Vehicle) (*model.Vehicle, error) {
	v.Plate = strings.ToUpper(strings.TrimSpace(v.Plate))
	if v.Make == "" || v.Model == "" || v.Plate == "" {
		return nil, fmt.Errorf("%w: make, model and plate are required", ErrValidation)
	}
	if err := s.store.CreateVehicle(ctx, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
