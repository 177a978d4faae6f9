package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"taller/internal/model"
)

// querier is satisfied by both the database and a transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const appointmentColumns = `
	a.id, a.client_id, a.vehicle_id, a.service_id, COALESCE(s.name, ''), a.duration_minutes,
	a.date_time, a.status, a.notes, a.created_at, a.updated_at`

// ListAppointments returns appointments matching f ordered by start time.
func (db *DB) ListAppointments(ctx context.Context, f model.AppointmentFilter) ([]model.Appointment, error) {
	return db.queryAppointments(ctx, db.DB, f)
}

func (db *DB) queryAppointments(ctx context.Context, q querier, f model.AppointmentFilter) ([]model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments a
		LEFT JOIN services s ON s.id = a.service_id
		WHERE 1 = 1`
	var args []any
	if f.From != "" {
		query += " AND a.appt_date >= ?"
		args = append(args, f.From)
	}
	if f.To != "" {
		query += " AND a.appt_date <= ?"
		args = append(args, f.To)
	}
	if f.ActiveOnly {
		query += " AND a.status != ?"
		args = append(args, model.StatusCancelled)
	}
	if f.Status != "" {
		query += " AND a.status = ?"
		args = append(args, f.Status)
	}
	if f.ClientID > 0 {
		query += " AND a.client_id = ?"
		args = append(args, f.ClientID)
	}
	query += " ORDER BY a.date_time, a.created_at"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		a, err := db.scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, *a)
	}
	return appts, rows.Err()
}

func (db *DB) GetAppointment(ctx context.Context, id string) (*model.Appointment, error) {
	row := db.QueryRowContext(ctx, `SELECT `+appointmentColumns+`
		FROM appointments a
		LEFT JOIN services s ON s.id = a.service_id
		WHERE a.id = ?`, id)
	a, err := db.scanAppointment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	return a, err
}

// BookAppointment re-reads the turn, weekly hours, the day's block and its
// active appointments inside a write transaction, lets check veto the
// booking and inserts a. The transaction holds the database write lock from
// BEGIN, so concurrent bookings and admin changes are seen one after another.
func (db *DB) BookAppointment(ctx context.Context, a *model.Appointment, check func(model.DaySnapshot) error) error {
	if a == nil {
		return fmt.Errorf("appointment is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin booking tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	date := a.DateTime.In(db.loc).Format("2006-01-02")
	snap, err := db.readDay(ctx, tx, date)
	if err != nil {
		return err
	}
	if check != nil {
		if err := check(snap); err != nil {
			return err
		}
	}

	now := time.Now()
	if a.Status == "" {
		a.Status = model.StatusPending
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO appointments (
			id, client_id, vehicle_id, service_id, appt_date, date_time, duration_minutes,
			status, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ClientID, a.VehicleID, a.ServiceID, date, a.DateTime.UTC(), a.DurationMinutes,
		a.Status, nullString(a.Notes), now, now,
	)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("appointment references: %w", model.ErrNotFound)
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("appointment %s: %w", a.ID, model.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit booking: %w", err)
	}
	a.CreatedAt = now
	a.UpdatedAt = now
	return nil
}

func (db *DB) readDay(ctx context.Context, q querier, date string) (model.DaySnapshot, error) {
	var snap model.DaySnapshot
	cfg, err := getWorkshopConfig(ctx, q)
	switch {
	case err == nil:
		snap.TurnMinutes = cfg.TurnDurationMinutes
	case !errors.Is(err, model.ErrNotFound):
		return snap, fmt.Errorf("load workshop config: %w", err)
	}
	if snap.Hours, err = listOperatingHours(ctx, q); err != nil {
		return snap, fmt.Errorf("load operating hours: %w", err)
	}
	if snap.Blocked, err = listBlockedDates(ctx, q, date, date); err != nil {
		return snap, fmt.Errorf("load blocked dates for %s: %w", date, err)
	}
	snap.Active, err = db.queryAppointments(ctx, q, model.AppointmentFilter{From: date, To: date, ActiveOnly: true})
	if err != nil {
		return snap, fmt.Errorf("load appointments for %s: %w", date, err)
	}
	return snap, nil
}

// UpdateAppointmentStatus moves id from one status to another. It fails with
// ErrConcurrentModification when the stored status is no longer from.
func (db *DB) UpdateAppointmentStatus(ctx context.Context, id string, from, to model.AppointmentStatus) error {
	res, err := db.ExecContext(ctx, `
		UPDATE appointments SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		to, time.Now(), id, from,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	if _, err := db.GetAppointment(ctx, id); err != nil {
		return err
	}
	return model.ErrConcurrentModification
}

func (db *DB) scanAppointment(row rowScanner) (*model.Appointment, error) {
	var a model.Appointment
	var notes sql.NullString
	var status string
	if err := row.Scan(&a.ID, &a.ClientID, &a.VehicleID, &a.ServiceID, &a.ServiceName, &a.DurationMinutes,
		&a.DateTime, &status, &notes, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.DateTime = a.DateTime.In(db.loc)
	a.Status = model.AppointmentStatus(status)
	a.Notes = notes.String
	return &a, nil
}
