package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kektech/marketd/internal/domain"
)

// OddsCache implements domain.OddsCache using Redis hashes. Each market's
// latest quote lives at "odds:{marketID}" with fields "yes", "no" and "ts"
// (Unix nanoseconds).
type OddsCache struct {
	rdb *redis.Client
}

// NewOddsCache creates an OddsCache backed by the given Client.
func NewOddsCache(c *Client) *OddsCache {
	return &OddsCache{rdb: c.Underlying()}
}

func oddsKey(marketID string) string {
	return "odds:" + marketID
}

// SetOdds stores the latest basis-point odds and quote time for a market.
func (oc *OddsCache) SetOdds(ctx context.Context, marketID string, yesBps, noBps int64, ts time.Time) error {
	fields := map[string]interface{}{
		"yes": strconv.FormatInt(yesBps, 10),
		"no":  strconv.FormatInt(noBps, 10),
		"ts":  strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := oc.rdb.HSet(ctx, oddsKey(marketID), fields).Err(); err != nil {
		return fmt.Errorf("redis: set odds %s: %w", marketID, err)
	}
	return nil
}

// GetOdds retrieves the latest quote for a market. It returns
// domain.ErrNotFound when no quote has been cached yet.
func (oc *OddsCache) GetOdds(ctx context.Context, marketID string) (int64, int64, time.Time, error) {
	vals, err := oc.rdb.HGetAll(ctx, oddsKey(marketID)).Result()
	if err != nil {
		return 0, 0, time.Time{}, fmt.Errorf("redis: get odds %s: %w", marketID, err)
	}
	if len(vals) == 0 {
		return 0, 0, time.Time{}, domain.ErrNotFound
	}

	yes, err := strconv.ParseInt(vals["yes"], 10, 64)
	if err != nil {
		return 0, 0, time.Time{}, fmt.Errorf("redis: parse yes odds %s: %w", marketID, err)
	}
	no, err := strconv.ParseInt(vals["no"], 10, 64)
	if err != nil {
		return 0, 0, time.Time{}, fmt.Errorf("redis: parse no odds %s: %w", marketID, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return 0, 0, time.Time{}, fmt.Errorf("redis: parse odds ts %s: %w", marketID, err)
	}

	return yes, no, time.Unix(0, tsNano), nil
}

// Compile-time interface check.
var _ domain.OddsCache = (*OddsCache)(nil)
