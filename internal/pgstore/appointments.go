package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"taller/internal/model"
)

const appointmentColumns = `
	a.id, a.client_id, a.vehicle_id, a.service_id, COALESCE(s.name, ''), a.duration_minutes,
	a.date_time, a.status, a.notes, a.created_at, a.updated_at`

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Store) ListAppointments(ctx context.Context, f model.AppointmentFilter) ([]model.Appointment, error) {
	return s.queryAppointments(ctx, s.pool, f)
}

func (s *Store) queryAppointments(ctx context.Context, q querier, f model.AppointmentFilter) ([]model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments a
		LEFT JOIN services s ON s.id = a.service_id
		WHERE TRUE`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.From != "" {
		query += " AND a.appt_date >= " + arg(f.From) + "::date"
	}
	if f.To != "" {
		query += " AND a.appt_date <= " + arg(f.To) + "::date"
	}
	if f.ActiveOnly {
		query += " AND a.status <> " + arg(string(model.StatusCancelled))
	}
	if f.Status != "" {
		query += " AND a.status = " + arg(string(f.Status))
	}
	if f.ClientID > 0 {
		query += " AND a.client_id = " + arg(f.ClientID)
	}
	query += " ORDER BY a.date_time, a.created_at"

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		a, err := s.scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, *a)
	}
	return appts, rows.Err()
}

func (s *Store) GetAppointment(ctx context.Context, id string) (*model.Appointment, error) {
	a, err := s.scanAppointment(s.pool.QueryRow(ctx, `SELECT `+appointmentColumns+`
		FROM appointments a
		LEFT JOIN services s ON s.id = a.service_id
		WHERE a.id = $1`, id))
	if isNotFound(err) {
		return nil, model.ErrNotFound
	}
	return a, err
}

// BookAppointment runs check and insert in a SERIALIZABLE transaction that
// first takes a transaction-scoped advisory lock on the appointment day.
// check sees the turn, weekly hours, block and active appointments as read
// inside that transaction.
// Serialization failures and deadlocks come back as ErrSlotTaken.
func (s *Store) BookAppointment(ctx context.Context, a *model.Appointment, check func(model.DaySnapshot) error) error {
	if a == nil {
		return fmt.Errorf("appointment is nil")
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin booking tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	date := a.DateTime.In(s.loc).Format("2006-01-02")
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", "appointments:"+date); err != nil {
		return bookingErr("lock day", err)
	}

	snap, err := s.readDay(ctx, tx, date)
	if err != nil {
		return err
	}
	if check != nil {
		if err := check(snap); err != nil {
			return err
		}
	}

	if a.Status == "" {
		a.Status = model.StatusPending
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO appointments (
			id, client_id, vehicle_id, service_id, appt_date, date_time, duration_minutes, status, notes)
		VALUES ($1, $2, $3, $4, $5::date, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		a.ID, a.ClientID, a.VehicleID, a.ServiceID, date, a.DateTime, a.DurationMinutes, string(a.Status), a.Notes,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return bookingErr("insert appointment", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return bookingErr("commit booking", err)
	}
	return nil
}

func (s *Store) readDay(ctx context.Context, q querier, date string) (model.DaySnapshot, error) {
	var snap model.DaySnapshot
	cfg, err := getWorkshopConfig(ctx, q)
	switch {
	case err == nil:
		snap.TurnMinutes = cfg.TurnDurationMinutes
	case !errors.Is(err, model.ErrNotFound):
		return snap, bookingErr("load workshop config", err)
	}
	if snap.Hours, err = listOperatingHours(ctx, q); err != nil {
		return snap, bookingErr("load operating hours", err)
	}
	if snap.Blocked, err = listBlockedDates(ctx, q, date, date); err != nil {
		return snap, bookingErr("load blocked dates", err)
	}
	snap.Active, err = s.queryAppointments(ctx, q, model.AppointmentFilter{From: date, To: date, ActiveOnly: true})
	if err != nil {
		return snap, bookingErr("load appointments", err)
	}
	return snap, nil
}

func bookingErr(step string, err error) error {
	switch pgCode(err) {
	case codeSerializationFailure, codeDeadlockDetected:
		return fmt.Errorf("%s: %w", step, model.ErrSlotTaken)
	case codeUniqueViolation:
		return fmt.Errorf("%s: %w", step, model.ErrAlreadyExists)
	case codeForeignKeyViolation:
		return fmt.Errorf("%s: %w", step, model.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", step, err)
}

func (s *Store) UpdateAppointmentStatus(ctx context.Context, id string, from, to model.AppointmentStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE appointments SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3`,
		string(to), id, string(from),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := s.GetAppointment(ctx, id); err != nil {
		return err
	}
	return model.ErrConcurrentModification
}

func (s *Store) scanAppointment(row pgx.Row) (*model.Appointment, error) {
	var a model.Appointment
	var status string
	if err := row.Scan(&a.ID, &a.ClientID, &a.VehicleID, &a.ServiceID, &a.ServiceName, &a.DurationMinutes,
		&a.DateTime, &status, &a.Notes, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.DateTime = a.DateTime.In(s.loc)
	a.Status = model.AppointmentStatus(status)
	return &a, nil
}
