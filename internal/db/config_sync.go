package db

import (
	"context"
	"fmt"
	"time"

	"taller/internal/config"
	"taller/internal/model"
	"taller/internal/schedule"
)

// SyncWorkshopFromConfig applies workshop.yaml to the database. It upserts the
// turn length, the weekly hours and the service catalog, and registers
// configured holidays as full-day blocks. Existing blocks are left untouched.
func (db *DB) SyncWorkshopFromConfig(ctx context.Context, cfg *config.WorkshopConfig) error {
	if cfg == nil {
		return fmt.Errorf("workshop config is nil")
	}

	if cfg.TurnDurationMinutes > 0 {
		if err := db.SetTurnDuration(ctx, cfg.TurnDurationMinutes); err != nil {
			return fmt.Errorf("sync turn duration: %w", err)
		}
	}

	hours := cfg.OperatingHours()
	working := make(map[int]bool, len(hours))
	for i := range hours {
		working[hours[i].Weekday] = hours[i].IsWorkingDay
		if err := db.UpsertOperatingHours(ctx, &hours[i]); err != nil {
			return fmt.Errorf("sync weekday %d: %w", hours[i].Weekday, err)
		}
	}

	for _, sc := range cfg.Services {
		s := model.Service{
			Name:                     sc.Name,
			Description:              sc.Description,
			EstimatedDurationMinutes: sc.DurationMinutes,
			Price:                    sc.Price,
			IsActive:                 !sc.Inactive,
		}
		if err := db.UpsertServiceByName(ctx, &s); err != nil {
			return fmt.Errorf("sync service %q: %w", sc.Name, err)
		}
	}

	now := time.Now()
	for _, h := range cfg.Holidays {
		dt, err := time.Parse(schedule.DateLayout, h.Date)
		if err != nil {
			return fmt.Errorf("parse holiday %s: %w", h.Date, err)
		}
		// already closed, a block would only clutter the listing
		if !working[schedule.ISOWeekday(dt)] {
			continue
		}
		if _, err := db.ExecContext(ctx, `
			INSERT OR IGNORE INTO blocked_dates (date, reason, is_full_day, created_at)
			VALUES (?, ?, 1, ?)`,
			h.Date, h.Name, now,
		); err != nil {
			return fmt.Errorf("sync holiday %s: %w", h.Date, err)
		}
	}

	return nil
}
