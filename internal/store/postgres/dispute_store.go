package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kektech/marketd/internal/domain"
)

// DisputeStore implements domain.DisputeStore using PostgreSQL. A partial
// unique index on (market_id) WHERE status = 'active' enforces the
// one-active-dispute invariant at the storage layer.
type DisputeStore struct {
	pool *pgxpool.Pool
}

// NewDisputeStore creates a new DisputeStore backed by the given connection pool.
func NewDisputeStore(pool *pgxpool.Pool) *DisputeStore {
	return &DisputeStore{pool: pool}
}

const disputeCols = `id, market_id, disputer, bond::text, reason, status, filed_at, settled_at`

// Create inserts a new dispute record.
func (s *DisputeStore) Create(ctx context.Context, d domain.DisputeRecord) error {
	const query = `
		INSERT INTO disputes (id, market_id, disputer, bond, reason, status, filed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.pool.Exec(ctx, query,
		d.ID, d.MarketID, d.Disputer.Hex(), encodeBig(d.Bond),
		d.Reason, string(d.Status), d.FiledAt)
	if err != nil {
		return fmt.Errorf("postgres: create dispute %s: %w", d.ID, err)
	}
	return nil
}

// Settle moves a dispute out of the active status and stamps the settle time.
func (s *DisputeStore) Settle(ctx context.Context, id string, status domain.DisputeStatus, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE disputes SET status = $2, settled_at = $3
		WHERE id = $1 AND status = 'active'`,
		id, string(status), at)
	if err != nil {
		return fmt.Errorf("postgres: settle dispute %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetActive returns the market's active dispute, or ErrNotFound when there is
// none.
func (s *DisputeStore) GetActive(ctx context.Context, marketID string) (domain.DisputeRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+disputeCols+` FROM disputes
		 WHERE market_id = $1 AND status = 'active'`, marketID)
	d, err := scanDispute(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DisputeRecord{}, domain.ErrNotFound
		}
		return domain.DisputeRecord{}, fmt.Errorf("postgres: get active dispute for market %s: %w", marketID, err)
	}
	return d, nil
}

// ListByMarket returns a market's full dispute history, oldest first.
func (s *DisputeStore) ListByMarket(ctx context.Context, marketID string) ([]domain.DisputeRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+disputeCols+` FROM disputes
		 WHERE market_id = $1 ORDER BY filed_at`, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list disputes for market %s: %w", marketID, err)
	}
	defer rows.Close()

	var disputes []domain.DisputeRecord
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan dispute: %w", err)
		}
		disputes = append(disputes, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate disputes: %w", err)
	}
	return disputes, nil
}

// Aggregate returns the historical dispute count and cumulative bond for a
// market.
func (s *DisputeStore) Aggregate(ctx context.Context, marketID string) (int, *big.Int, error) {
	var (
		count int
		total string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(bond), 0)::text
		FROM disputes WHERE market_id = $1`, marketID).Scan(&count, &total)
	if err != nil {
		return 0, nil, fmt.Errorf("postgres: aggregate disputes for market %s: %w", marketID, err)
	}
	bond, err := decodeBig(total)
	if err != nil {
		return 0, nil, err
	}
	return count, bond, nil
}

func scanDispute(row pgx.Row) (domain.DisputeRecord, error) {
	var (
		d        domain.DisputeRecord
		disputer string
		bond     string
		status   string
	)
	err := row.Scan(&d.ID, &d.MarketID, &disputer, &bond,
		&d.Reason, &status, &d.FiledAt, &d.SettledAt)
	if err != nil {
		return domain.DisputeRecord{}, err
	}
	d.Disputer = common.HexToAddress(disputer)
	d.Status = domain.DisputeStatus(status)
	if d.Bond, err = decodeBig(bond); err != nil {
		return domain.DisputeRecord{}, err
	}
	return d, nil
}
