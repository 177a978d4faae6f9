package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"taller/internal/model"
)

func (db *DB) ListServices(ctx context.Context, activeOnly bool) ([]model.Service, error) {
	query := `
		SELECT id, name, description, estimated_duration_minutes, price, is_active, created_at, updated_at
		FROM services`
	if activeOnly {
		query += " WHERE is_active = 1"
	}
	query += " ORDER BY name"

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []model.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		services = append(services, *s)
	}
	return services, rows.Err()
}

func (db *DB) GetService(ctx context.Context, id int64) (*model.Service, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, name, description, estimated_duration_minutes, price, is_active, created_at, updated_at
		FROM services WHERE id = ?`, id)
	s, err := scanService(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	return s, err
}

func (db *DB) CreateService(ctx context.Context, s *model.Service) error {
	if s == nil {
		return fmt.Errorf("service is nil")
	}

	now := time.Now()
	res, err := db.ExecContext(ctx, `
		INSERT INTO services (name, description, estimated_duration_minutes, price, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.Name, nullString(s.Description), s.EstimatedDurationMinutes, s.Price, s.IsActive, now, now,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("service %q: %w", s.Name, model.ErrAlreadyExists)
	}
	if err != nil {
		return err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = id
	s.CreatedAt = now
	s.UpdatedAt = now
	return nil
}

// UpsertServiceByName creates or refreshes a catalog entry keyed by name.
func (db *DB) UpsertServiceByName(ctx context.Context, s *model.Service) error {
	now := time.Now()
	_, err := db.ExecContext(ctx, `
		INSERT INTO services (name, description, estimated_duration_minutes, price, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			description = excluded.description,
			estimated_duration_minutes = excluded.estimated_duration_minutes,
			price = excluded.price,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		s.Name, nullString(s.Description), s.EstimatedDurationMinutes, s.Price, s.IsActive, now, now,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanService(row rowScanner) (*model.Service, error) {
	var s model.Service
	var description sql.NullString
	if err := row.Scan(&s.ID, &s.Name, &description, &s.EstimatedDurationMinutes, &s.Price,
		&s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Description = description.String
	return &s, nil
}

func (db *DB) CreateClient(ctx context.Context, c *model.Client) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}

	now := time.Now()
	res, err := db.ExecContext(ctx,
		"INSERT INTO clients (name, phone, email, created_at) VALUES (?, ?, ?, ?)",
		c.Name, c.Phone, nullString(c.Email), now,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = id
	c.CreatedAt = now
	return nil
}

func (db *DB) GetClient(ctx context.Context, id int64) (*model.Client, error) {
	var c model.Client
	var email sql.NullString
	err := db.QueryRowContext(ctx,
		"SELECT id, name, phone, email, created_at FROM clients WHERE id = ?", id,
	).Scan(&c.ID, &c.Name, &c.Phone, &email, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Email = email.String
	return &c, nil
}

func (db *DB) ListClients(ctx context.Context) ([]model.Client, error) {
	rows, err := db.QueryContext(ctx, "SELECT id, name, phone, email, created_at FROM clients ORDER BY name, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []model.Client
	for rows.Next() {
		var c model.Client
		var email sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &email, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Email = email.String
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func (db *DB) CreateVehicle(ctx context.Context, v *model.Vehicle) error {
	if v == nil {
		return fmt.Errorf("vehicle is nil")
	}

	now := time.Now()
	res, err := db.ExecContext(ctx, `
		INSERT INTO vehicles (client_id, make, model, year, plate, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		v.ClientID, v.Make, v.Model, v.Year, v.Plate, now,
	)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("client %d: %w", v.ClientID, model.ErrNotFound)
	}
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	v.ID = id
	v.CreatedAt = now
	return nil
}

func (db *DB) GetVehicle(ctx context.Context, id int64) (*model.Vehicle, error) {
	var v model.Vehicle
	var year sql.NullInt64
	err := db.QueryRowContext(ctx,
		"SELECT id, client_id, make, model, year, plate, created_at FROM vehicles WHERE id = ?", id,
	).Scan(&v.ID, &v.ClientID, &v.Make, &v.Model, &year, &v.Plate, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	v.Year = int(year.Int64)
	return &v, nil
}

func (db *DB) ListVehiclesByClient(ctx context.Context, clientID int64) ([]model.Vehicle, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, client_id, make, model, year, plate, created_at
		FROM vehicles WHERE client_id = ? ORDER BY id`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vehicles []model.Vehicle
	for rows.Next() {
		var v model.Vehicle
		var year sql.NullInt64
		if err := rows.Scan(&v.ID, &v.ClientID, &v.Make, &v.Model, &year, &v.Plate, &v.CreatedAt); err != nil {
			return nil, err
		}
		v.Year = int(year.Int64)
		vehicles = append(vehicles, v)
	}
	return vehicles, rows.Err()
}
