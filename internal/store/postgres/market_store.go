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

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `id, question, description, category, yes_label, no_label,
	curve_id, curve_params, state, outcome,
	pool_yes::text, pool_no::text, shares_yes::text, shares_no::text,
	total_volume::text, fees_accrued::text,
	creator, end_time, resolution_time,
	proposed_outcome, proposed_by, proposal_at, escalated,
	winning_outcome, snap_total_pool::text, snap_win_pool::text,
	snap_win_shares::text, finalized_at,
	created_at, updated_at`

// Create inserts a new market row.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, question, description, category, yes_label, no_label,
			curve_id, curve_params, state, outcome,
			pool_yes, pool_no, shares_yes, shares_no,
			total_volume, fees_accrued,
			creator, end_time, resolution_time,
			proposed_outcome, proposed_by, proposal_at, escalated,
			winning_outcome, snap_total_pool, snap_win_pool,
			snap_win_shares, finalized_at,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14,
			$15, $16,
			$17, $18, $19,
			$20, $21, $22, $23,
			$24, $25, $26,
			$27, $28,
			$29, $30
		)`
	if _, err := s.pool.Exec(ctx, query, marketArgs(m)...); err != nil {
		return fmt.Errorf("postgres: create market %s: %w", m.ID, err)
	}
	return nil
}

// Update rewrites a market row in place.
func (s *MarketStore) Update(ctx context.Context, m domain.Market) error {
	const query = `
		UPDATE markets SET
			question = $2, description = $3, category = $4,
			yes_label = $5, no_label = $6,
			curve_id = $7, curve_params = $8, state = $9, outcome = $10,
			pool_yes = $11, pool_no = $12, shares_yes = $13, shares_no = $14,
			total_volume = $15, fees_accrued = $16,
			creator = $17, end_time = $18, resolution_time = $19,
			proposed_outcome = $20, proposed_by = $21, proposal_at = $22,
			escalated = $23,
			winning_outcome = $24, snap_total_pool = $25, snap_win_pool = $26,
			snap_win_shares = $27, finalized_at = $28,
			created_at = $29, updated_at = $30
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, marketArgs(m)...)
	if err != nil {
		return fmt.Errorf("postgres: update market %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID retrieves a market by its primary key.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// List returns markets ordered newest first, optionally filtered by state.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets`
	args := []any{}
	argIdx := 1

	if opts.State != "" {
		query += fmt.Sprintf(" WHERE state = $%d", argIdx)
		args = append(args, string(opts.State))
		argIdx++
	}
	query += " ORDER BY created_at DESC"
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
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()
	return collectMarkets(rows)
}

// ListExpiredResolving returns resolving markets whose proposal landed at or
// before the cutoff, for the auto-finalize sweep.
func (s *MarketStore) ListExpiredResolving(ctx context.Context, cutoff time.Time) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketCols+` FROM markets
		 WHERE state = 'resolving' AND proposal_at <= $1
		 ORDER BY proposal_at`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("postgres: list expired resolving: %w", err)
	}
	defer rows.Close()
	return collectMarkets(rows)
}

// Count returns the total number of markets.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM markets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return n, nil
}

func marketArgs(m domain.Market) []any {
	var (
		proposalAt  *time.Time
		winning     *string
		snapTotal   *string
		snapPool    *string
		snapShares  *string
		finalizedAt *time.Time
	)
	if !m.ProposalAt.IsZero() {
		t := m.ProposalAt
		proposalAt = &t
	}
	if m.Snapshot != nil {
		w := string(m.Snapshot.WinningOutcome)
		tp := encodeBig(m.Snapshot.TotalPool)
		wp := encodeBig(m.Snapshot.WinningPool)
		ws := encodeBig(m.Snapshot.WinningShares)
		ft := m.Snapshot.FinalizedAt
		winning, snapTotal, snapPool, snapShares, finalizedAt = &w, &tp, &wp, &ws, &ft
	}
	return []any{
		m.ID, m.Question, m.Description, m.Category, m.YesLabel, m.NoLabel,
		m.CurveID, []byte(m.CurveParams), string(m.State), string(m.Outcome),
		encodeBig(m.PoolYes), encodeBig(m.PoolNo),
		encodeBig(m.SharesYes), encodeBig(m.SharesNo),
		encodeBig(m.TotalVolume), encodeBig(m.FeesAccrued),
		m.Creator.Hex(), m.EndTime, m.ResolutionTime,
		string(m.ProposedOutcome), m.ProposedBy.Hex(), proposalAt, m.Escalated,
		winning, snapTotal, snapPool, snapShares, finalizedAt,
		m.CreatedAt, m.UpdatedAt,
	}
}

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m                   domain.Market
		state, outcome      string
		creator, proposedBy string
		proposedOutcome     string
		params              []byte
		poolYes, poolNo     string
		sharesYes, sharesNo string
		volume, fees        string
		proposalAt          *time.Time
		winning             *string
		snapTotal, snapPool *string
		snapShares          *string
		finalizedAt         *time.Time
	)
	err := row.Scan(
		&m.ID, &m.Question, &m.Description, &m.Category, &m.YesLabel, &m.NoLabel,
		&m.CurveID, &params, &state, &outcome,
		&poolYes, &poolNo, &sharesYes, &sharesNo,
		&volume, &fees,
		&creator, &m.EndTime, &m.ResolutionTime,
		&proposedOutcome, &proposedBy, &proposalAt, &m.Escalated,
		&winning, &snapTotal, &snapPool, &snapShares, &finalizedAt,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}

	m.CurveParams = domain.CurveParams(params)
	m.State = domain.MarketState(state)
	m.Outcome = domain.Outcome(outcome)
	m.ProposedOutcome = domain.Outcome(proposedOutcome)
	m.Creator = common.HexToAddress(creator)
	m.ProposedBy = common.HexToAddress(proposedBy)
	if proposalAt != nil {
		m.ProposalAt = *proposalAt
	}
	if m.PoolYes, err = decodeBig(poolYes); err != nil {
		return domain.Market{}, err
	}
	if m.PoolNo, err = decodeBig(poolNo); err != nil {
		return domain.Market{}, err
	}
	if m.SharesYes, err = decodeBig(sharesYes); err != nil {
		return domain.Market{}, err
	}
	if m.SharesNo, err = decodeBig(sharesNo); err != nil {
		return domain.Market{}, err
	}
	if m.TotalVolume, err = decodeBig(volume); err != nil {
		return domain.Market{}, err
	}
	if m.FeesAccrued, err = decodeBig(fees); err != nil {
		return domain.Market{}, err
	}

	if winning != nil && finalizedAt != nil {
		snap := &domain.PayoutSnapshot{
			WinningOutcome: domain.Outcome(*winning),
			FinalizedAt:    *finalizedAt,
		}
		if snap.TotalPool, err = decodeBig(deref(snapTotal)); err != nil {
			return domain.Market{}, err
		}
		if snap.WinningPool, err = decodeBig(deref(snapPool)); err != nil {
			return domain.Market{}, err
		}
		if snap.WinningShares, err = decodeBig(deref(snapShares)); err != nil {
			return domain.Market{}, err
		}
		m.Snapshot = snap
	}
	return m, nil
}

func collectMarkets(rows pgx.Rows) ([]domain.Market, error) {
	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate markets: %w", err)
	}
	return markets, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
