package pgstore

import (
	"context"
	"fmt"

	"taller/internal/model"
)

const (
	defaultWorkshopID  = "default"
	defaultTurnMinutes = 30
)

// EnsureDefaults seeds the workshop config row and a Monday-Saturday
// 09:00-18:00 week with three bays when rows are missing.
func (s *Store) EnsureDefaults(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO workshop_config (id, workshop_id, turn_duration_minutes)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO NOTHING`,
		defaultWorkshopID, defaultTurnMinutes,
	); err != nil {
		return fmt.Errorf("seed workshop config: %w", err)
	}

	for weekday := 1; weekday <= 7; weekday++ {
		if _, err := s.pool.Exec(ctx, `
			INSERT INTO operating_hours (weekday, is_working_day, open_time, close_time, max_simultaneous_services)
			VALUES ($1, $2, '09:00', '18:00', 3)
			ON CONFLICT (weekday) DO NOTHING`,
			weekday, weekday != 7,
		); err != nil {
			return fmt.Errorf("seed operating hours for weekday %d: %w", weekday, err)
		}
	}
	return nil
}

func (s *Store) GetWorkshopConfig(ctx context.Context) (*model.WorkshopConfig, error) {
	return getWorkshopConfig(ctx, s.pool)
}

func getWorkshopConfig(ctx context.Context, q querier) (*model.WorkshopConfig, error) {
	var c model.WorkshopConfig
	err := q.QueryRow(ctx, `
		SELECT id, workshop_id, turn_duration_minutes, created_at, updated_at
		FROM workshop_config WHERE id = 1`,
	).Scan(&c.ID, &c.WorkshopID, &c.TurnDurationMinutes, &c.CreatedAt, &c.UpdatedAt)
	if isNotFound(err) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) SetTurnDuration(ctx context.Context, minutes int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO workshop_config (id, workshop_id, turn_duration_minutes)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET
			turn_duration_minutes = EXCLUDED.turn_duration_minutes,
			updated_at = now()`,
		defaultWorkshopID, minutes,
	)
	return err
}

func (s *Store) ListOperatingHours(ctx context.Context) ([]model.OperatingHours, error) {
	return listOperatingHours(ctx, s.pool)
}

func listOperatingHours(ctx context.Context, q querier) ([]model.OperatingHours, error) {
	rows, err := q.Query(ctx, `
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

func (s *Store) UpsertOperatingHours(ctx context.Context, h *model.OperatingHours) error {
	if h == nil {
		return fmt.Errorf("operating hours is nil")
	}
	return s.pool.QueryRow(ctx, `
		INSERT INTO operating_hours (weekday, is_working_day, open_time, close_time, max_simultaneous_services)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (weekday) DO UPDATE SET
			is_working_day = EXCLUDED.is_working_day,
			open_time = EXCLUDED.open_time,
			close_time = EXCLUDED.close_time,
			max_simultaneous_services = EXCLUDED.max_simultaneous_services,
			updated_at = now()
		RETURNING id, updated_at`,
		h.Weekday, h.IsWorkingDay, h.OpenTime, h.CloseTime, h.MaxSimultaneousServices,
	).Scan(&h.ID, &h.UpdatedAt)
}

func (s *Store) ListBlockedDates(ctx context.Context, from, to string) ([]model.BlockedDate, error) {
	return listBlockedDates(ctx, s.pool, from, to)
}

func listBlockedDates(ctx context.Context, q querier, from, to string) ([]model.BlockedDate, error) {
	query := `
		SELECT id, to_char(date, 'YYYY-MM-DD'), reason, is_full_day,
			COALESCE(start_time, ''), COALESCE(end_time, ''), created_at
		FROM blocked_dates
		WHERE TRUE`
	var args []any
	if from != "" {
		args = append(args, from)
		query += fmt.Sprintf(" AND date >= $%d::date", len(args))
	}
	if to != "" {
		args = append(args, to)
		query += fmt.Sprintf(" AND date <= $%d::date", len(args))
	}
	query += " ORDER BY date, id"

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocked []model.BlockedDate
	for rows.Next() {
		var b model.BlockedDate
		if err := rows.Scan(&b.ID, &b.Date, &b.Reason, &b.IsFullDay, &b.StartTime, &b.EndTime, &b.CreatedAt); err != nil {
			return nil, err
		}
		blocked = append(blocked, b)
	}
	return blocked, rows.Err()
}

func (s *Store) CreateBlockedDate(ctx context.Context, b *model.BlockedDate) error {
	if b == nil {
		return fmt.Errorf("blocked date is nil")
	}
	var start, end *string
	if !b.IsFullDay {
		start, end = &b.StartTime, &b.EndTime
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO blocked_dates (date, reason, is_full_day, start_time, end_time)
		VALUES ($1::date, $2, $3, $4, $5)
		RETURNING id, created_at`,
		b.Date, b.Reason, b.IsFullDay, start, end,
	).Scan(&b.ID, &b.CreatedAt)
	if pgCode(err) == codeUniqueViolation {
		return fmt.Errorf("blocked date %s: %w", b.Date, model.ErrAlreadyExists)
	}
	return err
}

func (s *Store) DeleteBlockedDate(ctx context.Context, date string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM blocked_dates WHERE date = $1::date", date)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}
