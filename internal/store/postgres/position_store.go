package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kektech/marketd/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionCols = `market_id, account,
	shares_yes::text, shares_no::text, total_invested::text,
	claimed, updated_at`

// Upsert writes the full position row, replacing any existing row for the
// same market and account.
func (s *PositionStore) Upsert(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			market_id, account, shares_yes, shares_no,
			total_invested, claimed, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (market_id, account) DO UPDATE SET
			shares_yes = EXCLUDED.shares_yes,
			shares_no = EXCLUDED.shares_no,
			total_invested = EXCLUDED.total_invested,
			claimed = EXCLUDED.claimed,
			updated_at = EXCLUDED.updated_at`
	_, err := s.pool.Exec(ctx, query,
		p.MarketID, p.User.Hex(),
		encodeBig(p.SharesYes), encodeBig(p.SharesNo),
		encodeBig(p.TotalInvested), p.Claimed, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %s/%s: %w", p.MarketID, p.User.Hex(), err)
	}
	return nil
}

// MarkClaimed flips the claim latch in one statement. The NOT claimed guard
// makes a duplicate mark miss the row, so the pay-once latch holds even
// under concurrent callers.
func (s *PositionStore) MarkClaimed(ctx context.Context, marketID string, user common.Address, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE positions SET claimed = TRUE, updated_at = $3
		WHERE market_id = $1 AND account = $2 AND NOT claimed`,
		marketID, user.Hex(), at)
	if err != nil {
		return fmt.Errorf("postgres: mark claimed %s/%s: %w", marketID, user.Hex(), err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyClaimed
	}
	return nil
}

// Get retrieves one user's position in one market.
func (s *PositionStore) Get(ctx context.Context, marketID string, user common.Address) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionCols+` FROM positions
		 WHERE market_id = $1 AND account = $2`, marketID, user.Hex())
	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s/%s: %w", marketID, user.Hex(), err)
	}
	return p, nil
}

// ListByMarket returns every position held in a market.
func (s *PositionStore) ListByMarket(ctx context.Context, marketID string) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionCols+` FROM positions
		 WHERE market_id = $1 ORDER BY account`, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions for market %s: %w", marketID, err)
	}
	defer rows.Close()
	return collectPositions(rows)
}

// ListByUser returns a user's positions across markets, newest first.
func (s *PositionStore) ListByUser(ctx context.Context, user common.Address, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionCols + ` FROM positions
		WHERE account = $1 ORDER BY updated_at DESC`
	args := []any{user.Hex()}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions for user %s: %w", user.Hex(), err)
	}
	defer rows.Close()
	return collectPositions(rows)
}

func scanPosition(row pgx.Row) (domain.Position, error) {
	var (
		p                   domain.Position
		account             string
		sharesYes, sharesNo string
		invested            string
	)
	err := row.Scan(&p.MarketID, &account, &sharesYes, &sharesNo,
		&invested, &p.Claimed, &p.UpdatedAt)
	if err != nil {
		return domain.Position{}, err
	}
	p.User = common.HexToAddress(account)
	if p.SharesYes, err = decodeBig(sharesYes); err != nil {
		return domain.Position{}, err
	}
	if p.SharesNo, err = decodeBig(sharesNo); err != nil {
		return domain.Position{}, err
	}
	if p.TotalInvested, err = decodeBig(invested); err != nil {
		return domain.Position{}, err
	}
	return p, nil
}

func collectPositions(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate positions: %w", err)
	}
	return positions, nil
}
