package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"taller/internal/model"
)

const serviceColumns = `id, name, description, estimated_duration_minutes, price, is_active, created_at, updated_at`

func (s *Store) ListServices(ctx context.Context, activeOnly bool) ([]model.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services`
	if activeOnly {
		query += " WHERE is_active"
	}
	query += " ORDER BY name"

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []model.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		services = append(services, *svc)
	}
	return services, rows.Err()
}

func (s *Store) GetService(ctx context.Context, id int64) (*model.Service, error) {
	svc, err := scanService(s.pool.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id))
	if isNotFound(err) {
		return nil, model.ErrNotFound
	}
	return svc, err
}

func (s *Store) CreateService(ctx context.Context, svc *model.Service) error {
	if svc == nil {
		return fmt.Errorf("service is nil")
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO services (name, description, estimated_duration_minutes, price, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		svc.Name, svc.Description, svc.EstimatedDurationMinutes, svc.Price, svc.IsActive,
	).Scan(&svc.ID, &svc.CreatedAt, &svc.UpdatedAt)
	if pgCode(err) == codeUniqueViolation {
		return fmt.Errorf("service %q: %w", svc.Name, model.ErrAlreadyExists)
	}
	return err
}

// UpsertServiceByName creates or refreshes a catalog entry keyed by name.
func (s *Store) UpsertServiceByName(ctx context.Context, svc *model.Service) error {
	return s.pool.QueryRow(ctx, `
		INSERT INTO services (name, description, estimated_duration_minutes, price, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE SET
			description = EXCLUDED.description,
			estimated_duration_minutes = EXCLUDED.estimated_duration_minutes,
			price = EXCLUDED.price,
			is_active = EXCLUDED.is_active,
			updated_at = now()
		RETURNING id, created_at, updated_at`,
		svc.Name, svc.Description, svc.EstimatedDurationMinutes, svc.Price, svc.IsActive,
	).Scan(&svc.ID, &svc.CreatedAt, &svc.UpdatedAt)
}

func scanService(row pgx.Row) (*model.Service, error) {
	var svc model.Service
	if err := row.Scan(&svc.ID, &svc.Name, &svc.Description, &svc.EstimatedDurationMinutes, &svc.Price,
		&svc.IsActive, &svc.CreatedAt, &svc.UpdatedAt); err != nil {
		return nil, err
	}
	return &svc, nil
}

func (s *Store) CreateClient(ctx context.Context, c *model.Client) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	return s.pool.QueryRow(ctx, `
		INSERT INTO clients (name, phone, email) VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		c.Name, c.Phone, c.Email,
	).Scan(&c.ID, &c.CreatedAt)
}

func (s *Store) GetClient(ctx context.Context, id int64) (*model.Client, error) {
	var c model.Client
	err := s.pool.QueryRow(ctx,
		"SELECT id, name, phone, email, created_at FROM clients WHERE id = $1", id,
	).Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.CreatedAt)
	if isNotFound(err) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListClients(ctx context.Context) ([]model.Client, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, name, phone, email, created_at FROM clients ORDER BY name, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []model.Client
	for rows.Next() {
		var c model.Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.CreatedAt); err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func (s *Store) CreateVehicle(ctx context.Context, v *model.Vehicle) error {
	if v == nil {
		return fmt.Errorf("vehicle is nil")
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO vehicles (client_id, make, model, year, plate)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		v.ClientID, v.Make, v.Model, v.Year, v.Plate,
	).Scan(&v.ID, &v.CreatedAt)
	if pgCode(err) == codeForeignKeyViolation {
		return fmt.Errorf("client %d: %w", v.ClientID, model.ErrNotFound)
	}
	return err
}

func (s *Store) GetVehicle(ctx context.Context, id int64) (*model.Vehicle, error) {
	var v model.Vehicle
	err := s.pool.QueryRow(ctx,
		"SELECT id, client_id, make, model, year, plate, created_at FROM vehicles WHERE id = $1", id,
	).Scan(&v.ID, &v.ClientID, &v.Make, &v.Model, &v.Year, &v.Plate, &v.CreatedAt)
	if isNotFound(err) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *Store) ListVehiclesByClient(ctx context.Context, clientID int64) ([]model.Vehicle, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, client_id, make, model, year, plate, created_at
		FROM vehicles WHERE client_id = $1 ORDER BY id`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vehicles []model.Vehicle
	for rows.Next() {
		var v model.Vehicle
		if err := rows.Scan(&v.ID, &v.ClientID, &v.Make, &v.Model, &v.Year, &v.Plate, &v.CreatedAt); err != nil {
			return nil, err
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, rows.Err()
}
