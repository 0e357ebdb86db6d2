package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Clock supplies the logical time for every time-sensitive engine call.
// Production wires the real clock at the outermost boundary; tests inject a
// fake so lifecycle timing is deterministic.
type Clock interface {
	Now() time.Time
}

// RoleDirectory answers "does caller X hold role R". It is an external
// collaborator; the engine only consumes it.
type RoleDirectory interface {
	HasRole(ctx context.Context, caller common.Address, role string) (bool, error)
}

// ParamStore is the external key-value store of protocol tunables. Reads are
// free; writes are admin-gated by the caller.
type ParamStore interface {
	GetAmount(ctx context.Context, key string) (*big.Int, error)
	GetInt(ctx context.Context, key string) (int64, error)
	GetDuration(ctx context.Context, key string) (time.Duration, error)
	GetBool(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key, value string) error
	All(ctx context.Context) (map[string]string, error)
}

// Ledger moves value between accounts. Engine state is always mutated before
// a Ledger call so a failed or reentrant transfer can never observe stale
// guard flags.
type Ledger interface {
	// Deposit credits amount to account.
	Deposit(ctx context.Context, account common.Address, amount *big.Int) error
	// Withdraw debits amount from account; fails with ErrInsufficientFunds.
	Withdraw(ctx context.Context, account common.Address, amount *big.Int) error
	// Balance returns the current balance of account.
	Balance(ctx context.Context, account common.Address) (*big.Int, error)
}

// MarketCache provides fast market lookups in front of the persistent store.
type MarketCache interface {
	Set(ctx context.Context, market Market) error
	Get(ctx context.Context, id string) (Market, error)
	Invalidate(ctx context.Context, id string) error
}

// OddsCache stores the latest quoted odds per market for cheap reads.
type OddsCache interface {
	SetOdds(ctx context.Context, marketID string, yesBps, noBps int64, ts time.Time) error
	GetOdds(ctx context.Context, marketID string) (yesBps, noBps int64, ts time.Time, err error)
}

// RateLimiter provides distributed rate limiting for the API surface.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking; one lock per market serializes
// logically-conflicting calls so the loser of a race fails instead of
// corrupting state.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage is a single entry read back from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus carries engine events: pub/sub for live consumers, durable
// streams for replay.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// BlobWriter uploads settlement artifacts to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
}
