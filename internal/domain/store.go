package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	State  MarketState
}

// MarketStore persists markets.
type MarketStore interface {
	Create(ctx context.Context, m Market) error
	Update(ctx context.Context, m Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	List(ctx context.Context, opts ListOpts) ([]Market, error)
	// ListExpiredResolving returns markets in Resolving whose dispute window
	// closed at or before the cutoff, for the auto-finalize sweep.
	ListExpiredResolving(ctx context.Context, cutoff time.Time) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// PositionStore persists per-user market positions.
type PositionStore interface {
	Upsert(ctx context.Context, p Position) error
	// MarkClaimed flips the one-shot claim latch. It must be atomic: a
	// second mark for the same position returns ErrAlreadyClaimed, so a
	// claim pays at most once even across process restarts.
	MarkClaimed(ctx context.Context, marketID string, user common.Address, at time.Time) error
	Get(ctx context.Context, marketID string, user common.Address) (Position, error)
	ListByMarket(ctx context.Context, marketID string) ([]Position, error)
	ListByUser(ctx context.Context, user common.Address, opts ListOpts) ([]Position, error)
}

// BondStore persists creator-bond escrow records. The factory is the only
// writer.
type BondStore interface {
	Create(ctx context.Context, b BondRecord) error
	Get(ctx context.Context, marketID string) (BondRecord, error)
	// Release zeroes the held amount and stamps the refund time. It must be
	// atomic: a second Release for the same market returns ErrNoBondHeld.
	Release(ctx context.Context, marketID string, at time.Time) (BondRecord, error)
	TotalHeld(ctx context.Context) (*big.Int, error)
}

// DisputeStore persists dispute records. The resolution manager is the only
// writer.
type DisputeStore interface {
	Create(ctx context.Context, d DisputeRecord) error
	Settle(ctx context.Context, id string, status DisputeStatus, at time.Time) error
	GetActive(ctx context.Context, marketID string) (DisputeRecord, error)
	ListByMarket(ctx context.Context, marketID string) ([]DisputeRecord, error)
	// Aggregate returns the historical dispute count and cumulative bond for
	// a market, for the escalation policy.
	Aggregate(ctx context.Context, marketID string) (count int, totalBond *big.Int, err error)
}

// CurveStore persists the curve catalog.
type CurveStore interface {
	Create(ctx context.Context, c CurveRegistration) error
	SetActive(ctx context.Context, id string, active bool) error
	Get(ctx context.Context, id string) (CurveRegistration, error)
	List(ctx context.Context) ([]CurveRegistration, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log of privileged actions.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
