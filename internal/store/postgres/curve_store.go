package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kektech/marketd/internal/domain"
)

// CurveStore implements domain.CurveStore using PostgreSQL.
type CurveStore struct {
	pool *pgxpool.Pool
}

// NewCurveStore creates a new CurveStore backed by the given connection pool.
func NewCurveStore(pool *pgxpool.Pool) *CurveStore {
	return &CurveStore{pool: pool}
}

const curveCols = `id, name, version, active, registered_at`

// Create inserts a catalog entry. A duplicate id or name maps to
// ErrAlreadyExists.
func (s *CurveStore) Create(ctx context.Context, c domain.CurveRegistration) error {
	const query = `
		INSERT INTO curves (id, name, version, active, registered_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING`
	tag, err := s.pool.Exec(ctx, query,
		c.ID, c.Name, c.Version, c.Active, c.RegisteredAt)
	if err != nil {
		return fmt.Errorf("postgres: create curve %s: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

// SetActive flips the activation flag for a catalog entry.
func (s *CurveStore) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE curves SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("postgres: set curve %s active=%t: %w", id, active, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Get retrieves a catalog entry by id.
func (s *CurveStore) Get(ctx context.Context, id string) (domain.CurveRegistration, error) {
	var c domain.CurveRegistration
	err := s.pool.QueryRow(ctx,
		`SELECT `+curveCols+` FROM curves WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Version, &c.Active, &c.RegisteredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.CurveRegistration{}, domain.ErrNotFound
		}
		return domain.CurveRegistration{}, fmt.Errorf("postgres: get curve %s: %w", id, err)
	}
	return c, nil
}

// List returns the full catalog ordered by registration time.
func (s *CurveStore) List(ctx context.Context) ([]domain.CurveRegistration, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+curveCols+` FROM curves ORDER BY registered_at, id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list curves: %w", err)
	}
	defer rows.Close()

	var curves []domain.CurveRegistration
	for rows.Next() {
		var c domain.CurveRegistration
		if err := rows.Scan(&c.ID, &c.Name, &c.Version, &c.Active, &c.RegisteredAt); err != nil {
			return nil, fmt.Errorf("postgres: scan curve: %w", err)
		}
		curves = append(curves, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate curves: %w", err)
	}
	return curves, nil
}
