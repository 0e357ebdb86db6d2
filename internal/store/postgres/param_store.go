package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kektech/marketd/internal/domain"
)

// ParamStore implements domain.ParamStore over the params table. Keys absent
// from the table fall back to the seeded defaults, so a fresh deployment
// works before any operator has touched a tunable.
type ParamStore struct {
	pool     *pgxpool.Pool
	defaults map[string]string
}

// NewParamStore creates a ParamStore with the given fallback defaults.
func NewParamStore(pool *pgxpool.Pool, defaults map[string]string) *ParamStore {
	d := make(map[string]string, len(defaults))
	for k, v := range defaults {
		d[k] = v
	}
	return &ParamStore{pool: pool, defaults: d}
}

// DefaultParams are the launch tunables: wad amounts, basis points, seconds.
func DefaultParams() map[string]string {
	return map[string]string{
		domain.ParamMinimumBet:             "10000000000000000",     // 0.01 wad
		domain.ParamMaximumBet:             "100000000000000000000", // 100 wad
		domain.ParamPlatformFeePercent:     "500",
		domain.ParamMinCreatorBond:         "100000000000000000", // 0.1 wad
		domain.ParamDisputeWindow:          "172800",             // 48h
		domain.ParamMinDisputeBond:         "100000000000000000",
		domain.ParamAgreementThreshold:     "75",
		domain.ParamDisagreementThreshold:  "25",
		domain.ParamEscalationBondMultiple: "3",
		domain.ParamRequireApproval:        "false",
		domain.ParamMarketCreationActive:   "true",
		domain.ParamEmergencyPause:         "false",
	}
}

func (s *ParamStore) get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM params WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if def, ok := s.defaults[key]; ok {
				return def, nil
			}
			return "", fmt.Errorf("postgres: param %q: %w", key, domain.ErrNotFound)
		}
		return "", fmt.Errorf("postgres: get param %q: %w", key, err)
	}
	return value, nil
}

// GetAmount returns a wad-integer parameter.
func (s *ParamStore) GetAmount(ctx context.Context, key string) (*big.Int, error) {
	raw, err := s.get(ctx, key)
	if err != nil {
		return nil, err
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("postgres: param %q: malformed amount %q", key, raw)
	}
	return v, nil
}

// GetInt returns an integer parameter.
func (s *ParamStore) GetInt(ctx context.Context, key string) (int64, error) {
	raw, err := s.get(ctx, key)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("postgres: param %q: malformed integer %q", key, raw)
	}
	return v, nil
}

// GetDuration returns a seconds-valued parameter as a Duration.
func (s *ParamStore) GetDuration(ctx context.Context, key string) (time.Duration, error) {
	secs, err := s.GetInt(ctx, key)
	if err != nil {
		return 0, err
	}
	return time.Duration(secs) * time.Second, nil
}

// GetBool returns a boolean parameter.
func (s *ParamStore) GetBool(ctx context.Context, key string) (bool, error) {
	raw, err := s.get(ctx, key)
	if err != nil {
		return false, err
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("postgres: param %q: malformed boolean %q", key, raw)
	}
	return v, nil
}

// Set writes a parameter, inserting or overwriting.
func (s *ParamStore) Set(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO params (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value)
	if err != nil {
		return fmt.Errorf("postgres: set param %q: %w", key, err)
	}
	return nil
}

// All returns the effective parameter map: defaults overlaid with every
// stored override.
func (s *ParamStore) All(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string, len(s.defaults))
	for k, v := range s.defaults {
		out[k] = v
	}
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM params`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list params: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("postgres: scan param: %w", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate params: %w", err)
	}
	return out, nil
}
