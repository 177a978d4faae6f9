package pgstore

import (
	"context"
	"fmt"
	"time"

	"taller/internal/config"
	"taller/internal/model"
	"taller/internal/schedule"
)

// SyncWorkshopFromConfig applies workshop.yaml: turn length, weekly hours,
// service catalog, and holidays on working days as full-day blocks.
func (s *Store) SyncWorkshopFromConfig(ctx context.Context, cfg *config.WorkshopConfig) error {
	if cfg == nil {
		return fmt.Errorf("workshop config is nil")
	}

	if cfg.TurnDurationMinutes > 0 {
		if err := s.SetTurnDuration(ctx, cfg.TurnDurationMinutes); err != nil {
			return fmt.Errorf("sync turn duration: %w", err)
		}
	}

	hours := cfg.OperatingHours()
	working := make(map[int]bool, len(hours))
	for i := range hours {
		working[hours[i].Weekday] = hours[i].IsWorkingDay
		if err := s.UpsertOperatingHours(ctx, &hours[i]); err != nil {
			return fmt.Errorf("sync weekday %d: %w", hours[i].Weekday, err)
		}
	}

	for _, sc := range cfg.Services {
		svc := model.Service{
			Name:                     sc.Name,
			Description:              sc.Description,
			EstimatedDurationMinutes: sc.DurationMinutes,
			Price:                    sc.Price,
			IsActive:                 !sc.Inactive,
		}
		if err := s.UpsertServiceByName(ctx, &svc); err != nil {
			return fmt.Errorf("sync service %q: %w", sc.Name, err)
		}
	}

	for _, h := range cfg.Holidays {
		dt, err := time.Parse(schedule.DateLayout, h.Date)
		if err != nil {
			return fmt.Errorf("parse holiday %s: %w", h.Date, err)
		}
		if !working[schedule.ISOWeekday(dt)] {
			continue
		}
		if _, err := s.pool.Exec(ctx, `
			INSERT INTO blocked_dates (date, reason, is_full_day)
			VALUES ($1::date, $2, TRUE)
			ON CONFLICT (date) DO NOTHING`,
			h.Date, h.Name,
		); err != nil {
			return fmt.Errorf("sync holiday %s: %w", h.Date, err)
		}
	}

	return nil
}
