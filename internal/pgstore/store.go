// Package pgstore is the PostgreSQL implementation of the workshop store.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
	loc  *time.Location
}

// Open connects to databaseURL, checks the connection and applies the schema.
func Open(ctx context.Context, databaseURL string, loc *time.Location) (*Store, error) {
	if loc == nil {
		loc = time.Local
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	s := &Store{pool: pool, loc: loc}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Location() *time.Location {
	return s.loc
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS workshop_config (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		workshop_id TEXT NOT NULL,
		turn_duration_minutes INTEGER NOT NULL
			CHECK (turn_duration_minutes BETWEEN 15 AND 60 AND turn_duration_minutes % 5 = 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS operating_hours (
		id BIGSERIAL PRIMARY KEY,
		weekday INTEGER NOT NULL UNIQUE CHECK (weekday BETWEEN 1 AND 7),
		is_working_day BOOLEAN NOT NULL DEFAULT TRUE,
		open_time TEXT NOT NULL,
		close_time TEXT NOT NULL,
		max_simultaneous_services INTEGER NOT NULL DEFAULT 1 CHECK (max_simultaneous_services >= 1),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS blocked_dates (
		id BIGSERIAL PRIMARY KEY,
		date DATE NOT NULL UNIQUE,
		reason TEXT NOT NULL DEFAULT '',
		is_full_day BOOLEAN NOT NULL DEFAULT TRUE,
		start_time TEXT,
		end_time TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS services (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		estimated_duration_minutes INTEGER NOT NULL CHECK (estimated_duration_minutes > 0),
		price DOUBLE PRECISION NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS clients (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS vehicles (
		id BIGSERIAL PRIMARY KEY,
		client_id BIGINT NOT NULL REFERENCES clients(id),
		make TEXT NOT NULL,
		model TEXT NOT NULL,
		year INTEGER NOT NULL DEFAULT 0,
		plate TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS appointments (
		id TEXT PRIMARY KEY,
		client_id BIGINT NOT NULL REFERENCES clients(id),
		vehicle_id BIGINT NOT NULL REFERENCES vehicles(id),
		service_id BIGINT NOT NULL REFERENCES services(id),
		appt_date DATE NOT NULL,
		date_time TIMESTAMPTZ NOT NULL,
		duration_minutes INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'in_progress', 'completed', 'cancelled')),
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_vehicles_client ON vehicles(client_id)`,
	`CREATE INDEX IF NOT EXISTS idx_appointments_date ON appointments(appt_date, status)`,
	`CREATE INDEX IF NOT EXISTS idx_appointments_client ON appointments(client_id)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for _, q := range schema {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// PostgreSQL error codes the store translates.
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
