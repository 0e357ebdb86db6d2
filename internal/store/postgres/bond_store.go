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

// BondStore implements domain.BondStore using PostgreSQL.
type BondStore struct {
	pool *pgxpool.Pool
}

// NewBondStore creates a new BondStore backed by the given connection pool.
func NewBondStore(pool *pgxpool.Pool) *BondStore {
	return &BondStore{pool: pool}
}

const bondCols = `market_id, creator, held_amount::text, escrowed_at, refunded_at`

// Create inserts a new escrow record.
func (s *BondStore) Create(ctx context.Context, b domain.BondRecord) error {
	const query = `
		INSERT INTO creator_bonds (market_id, creator, held_amount, escrowed_at)
		VALUES ($1, $2, $3, $4)`
	_, err := s.pool.Exec(ctx, query,
		b.MarketID, b.Creator.Hex(), encodeBig(b.HeldAmount), b.EscrowedAt)
	if err != nil {
		return fmt.Errorf("postgres: create bond for market %s: %w", b.MarketID, err)
	}
	return nil
}

// Get retrieves the escrow record for a market.
func (s *BondStore) Get(ctx context.Context, marketID string) (domain.BondRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+bondCols+` FROM creator_bonds WHERE market_id = $1`, marketID)
	b, err := scanBond(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.BondRecord{}, domain.ErrNotFound
		}
		return domain.BondRecord{}, fmt.Errorf("postgres: get bond for market %s: %w", marketID, err)
	}
	return b, nil
}

// Release zeroes the held amount and stamps the refund time in one statement,
// returning the record with the amount that was released. The held_amount > 0
// guard makes a duplicate release miss the row, so the zero-once latch holds
// even under concurrent callers.
func (s *BondStore) Release(ctx context.Context, marketID string, at time.Time) (domain.BondRecord, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE creator_bonds b
		SET held_amount = 0, refunded_at = $2
		FROM (
			SELECT market_id, held_amount FROM creator_bonds
			WHERE market_id = $1 AND held_amount > 0
			FOR UPDATE
		) prior
		WHERE b.market_id = prior.market_id
		RETURNING b.market_id, b.creator, prior.held_amount::text,
			b.escrowed_at, b.refunded_at`,
		marketID, at)
	b, err := scanBond(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.BondRecord{}, domain.ErrNoBondHeld
		}
		return domain.BondRecord{}, fmt.Errorf("postgres: release bond for market %s: %w", marketID, err)
	}
	return b, nil
}

// TotalHeld returns the sum of all escrowed creator bonds.
func (s *BondStore) TotalHeld(ctx context.Context) (*big.Int, error) {
	var total string
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(held_amount), 0)::text FROM creator_bonds`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("postgres: total held bonds: %w", err)
	}
	return decodeBig(total)
}

func scanBond(row pgx.Row) (domain.BondRecord, error) {
	var (
		b       domain.BondRecord
		creator string
		held    string
	)
	err := row.Scan(&b.MarketID, &creator, &held, &b.EscrowedAt, &b.RefundedAt)
	if err != nil {
		return domain.BondRecord{}, err
	}
	b.Creator = common.HexToAddress(creator)
	if b.HeldAmount, err = decodeBig(held); err != nil {
		return domain.BondRecord{}, err
	}
	return b, nil
}
