package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"taller/internal/model"
)

// DefaultScheduleConfig provides the values seeded into an empty database.
var DefaultScheduleConfig = struct {
	WorkshopID          string
	TurnDurationMinutes int
	OpenTime            string
	CloseTime           string
	MaxSimultaneous     int
	ClosedWeekdays      []int
}{
	WorkshopID:          "default",
	TurnDurationMinutes: 30,
	OpenTime:            "09:00",
	CloseTime:           "18:00",
	MaxSimultaneous:     3,
	ClosedWeekdays:      []int{7},
}

// EnsureDefaults seeds the workshop config row and any missing weekday rows.
func (db *DB) EnsureDefaults(ctx context.Context) error {
	now := time.Now()
	if _, err := db.ExecContext(ctx, `
		INSERT OR IGNORE INTO workshop_config (id, workshop_id, turn_duration_minutes, created_at, updated_at)
		VALUES (1, ?, ?, ?, ?)`,
		DefaultScheduleConfig.WorkshopID, DefaultScheduleConfig.TurnDurationMinutes, now, now,
	); err != nil {
		return fmt.Errorf("seed workshop config: %w", err)
	}

	closed := make(map[int]bool, len(DefaultScheduleConfig.ClosedWeekdays))
	for _, d := range DefaultScheduleConfig.ClosedWeekdays {
		closed[d] = true
	}

	for weekday := 1; weekday <= 7; weekday++ {
		if _, err := db.ExecContext(ctx, `
			INSERT OR IGNORE INTO operating_hours
				(weekday, is_working_day, open_time, close_time, max_simultaneous_services, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			weekday, !closed[weekday], DefaultScheduleConfig.OpenTime, DefaultScheduleConfig.CloseTime,
			DefaultScheduleConfig.MaxSimultaneous, now,
		); err != nil {
			return fmt.Errorf("seed operating hours for weekday %d: %w", weekday, err)
		}
	}
	return nil
}

// GetWorkshopConfig returns the single configuration row.
func (db *DB) GetWorkshopConfig(ctx context.Context) (*model.WorkshopConfig, error) {
	return getWorkshopConfig(ctx, db.DB)
}

func getWorkshopConfig(ctx context.Context, q querier) (*model.WorkshopConfig, error) {
	var c model.WorkshopConfig
	err := q.QueryRowContext(ctx, `
		SELECT id, workshop_id, turn_duration_minutes, created_at, updated_at
		FROM workshop_config WHERE id = 1`,
	).Scan(&c.ID, &c.WorkshopID, &c.TurnDurationMinutes, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SetTurnDuration updates the turn length, creating the config row if needed.
func (db *DB) SetTurnDuration(ctx context.Context, minutes int) error {
	now := time.Now()
	_, err := db.ExecContext(ctx, `
		INSERT INTO workshop_config (id, workshop_id, turn_duration_minutes, created_at, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			turn_duration_minutes = excluded.turn_duration_minutes,
			updated_at = excluded.updated_at`,
		DefaultScheduleConfig.WorkshopID, minutes, now, now,
	)
	return err
}

// ListOperatingHours returns the weekly schedule ordered by weekday.
func (db *DB) ListOperatingHours(ctx context.Context) ([]model.OperatingHours, error) {
	return listOperatingHours(ctx, db.DB)
}

func listOperatingHours(ctx context.Context, q querier) ([]model.OperatingHours, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, weekday, is_working_day, open_time, close_time, max_simultaneous_services, updated_at
		FROM operating_hours
		ORDER BY weekday`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hours []model.OperatingHours
	for rows.Next() {
		var h model.OperatingHours
		if err := rows.Scan(&h.ID, &h.Weekday, &h.IsWorkingDay, &h.OpenTime, &h.CloseTime,
			&h.MaxSimultaneousServices, &h.UpdatedAt); err != nil {
			return nil, err
		}
		hours = append(hours, h)
	}
	return hours, rows.Err()
}

// UpsertOperatingHours replaces the row for h.Weekday. Rows are never deleted.
func (db *DB) UpsertOperatingHours(ctx context.Context, h *model.OperatingHours) error {
	if h == nil {
		return fmt.Errorf("operating hours is nil")
	}

	now := time.Now()
	_, err := db.ExecContext(ctx, `
		INSERT INTO operating_hours
			(weekday, is_working_day, open_time, close_time, max_simultaneous_services, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(weekday) DO UPDATE SET
			is_working_day = excluded.is_working_day,
			open_time = excluded.open_time,
			close_time = excluded.close_time,
			max_simultaneous_services = excluded.max_simultaneous_services,
			updated_at = excluded.updated_at`,
		h.Weekday, h.IsWorkingDay, h.OpenTime, h.CloseTime, h.MaxSimultaneousServices, now,
	)
	if err != nil {
		return err
	}
	h.UpdatedAt = now
	return nil
}

// ListBlockedDates returns blocks between from and to inclusive. Empty bounds are open.
func (db *DB) ListBlockedDates(ctx context.Context, from, to string) ([]model.BlockedDate, error) {
	return listBlockedDates(ctx, db.DB, from, to)
}

func listBlockedDates(ctx context.Context, q querier, from, to string) ([]model.BlockedDate, error) {
	query := `
		SELECT id, date, reason, is_full_day, start_time, end_time, created_at
		FROM blocked_dates
		WHERE 1 = 1`
	var args []any
	if from != "" {
		query += " AND date >= ?"
		args = append(args, from)
	}
	if to != "" {
		query += " AND date <= ?"
		args = append(args, to)
	}
	query += " ORDER BY date, id"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocked []model.BlockedDate
	for rows.Next() {
		var b model.BlockedDate
		var startTime, endTime sql.NullString
		if err := rows.Scan(&b.ID, &b.Date, &b.Reason, &b.IsFullDay, &startTime, &endTime, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.StartTime = startTime.String
		b.EndTime = endTime.String
		blocked = append(blocked, b)
	}
	return blocked, rows.Err()
}

// CreateBlockedDate stores a block. A date holds at most one block.
func (db *DB) CreateBlockedDate(ctx context.Context, b *model.BlockedDate) error {
	if b == nil {
		return fmt.Errorf("blocked date is nil")
	}

	startTime, endTime := nullString(b.StartTime), nullString(b.EndTime)
	if b.IsFullDay {
		startTime, endTime = sql.NullString{}, sql.NullString{}
	}

	now := time.Now()
	res, err := db.ExecContext(ctx, `
		INSERT INTO blocked_dates (date, reason, is_full_day, start_time, end_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.Date, b.Reason, b.IsFullDay, startTime, endTime, now,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("blocked date %s: %w", b.Date, model.ErrAlreadyExists)
	}
	if err != nil {
		return err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = id
	b.CreatedAt = now
	return nil
}

// DeleteBlockedDate removes the block registered for date.
func (db *DB) DeleteBlockedDate(ctx context.Context, date string) error {
	res, err := db.ExecContext(ctx, "DELETE FROM blocked_dates WHERE date = ?", date)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}
