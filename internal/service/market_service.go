package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kektech/marketd/internal/domain"
	"github.com/kektech/marketd/internal/engine"
)

// MarketService executes trades and claims against persisted markets. Each
// mutation takes the market's distributed lock, loads fresh state, runs the
// engine, persists, then invalidates caches and publishes events.
type MarketService struct {
	engine    *engine.Engine
	markets   domain.MarketStore
	positions domain.PositionStore
	locks     domain.LockManager
	cache     domain.MarketCache
	odds      domain.OddsCache
	bus       domain.SignalBus
	clock     domain.Clock
	logger    *slog.Logger
}

// NewMarketService creates a MarketService with all required dependencies.
func NewMarketService(
	eng *engine.Engine,
	markets domain.MarketStore,
	positions domain.PositionStore,
	locks domain.LockManager,
	cache domain.MarketCache,
	odds domain.OddsCache,
	bus domain.SignalBus,
	clock domain.Clock,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		engine:    eng,
		markets:   markets,
		positions: positions,
		locks:     locks,
		cache:     cache,
		odds:      odds,
		bus:       bus,
		clock:     clock,
		logger:    logger.With(slog.String("component", "market_service")),
	}
}

func marketLockKey(id string) string { return "market:" + id }

// PlaceBet executes a bet and persists the resulting market and position.
func (s *MarketService) PlaceBet(ctx context.Context, marketID string, bettor common.Address, outcome domain.Outcome, amount *big.Int, minOddsBps int64) (*engine.BetResult, error) {
	unlock, err := s.locks.Acquire(ctx, marketLockKey(marketID), lockTTL)
	if err != nil {
		return nil, fmt.Errorf("market_service: place bet: %w", err)
	}
	defer unlock()

	now := s.clock.Now()
	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("market_service: place bet: %w", err)
	}
	pos, err := s.loadPosition(ctx, marketID, bettor)
	if err != nil {
		return nil, fmt.Errorf("market_service: place bet: %w", err)
	}

	result, err := s.engine.PlaceBet(ctx, now, &m, pos, bettor, outcome, amount, minOddsBps)
	if err != nil {
		return nil, err
	}

	if err := s.persistTrade(ctx, m, pos); err != nil {
		if uerr := s.engine.UnwindBet(ctx, bettor, result); uerr != nil {
			s.logger.ErrorContext(ctx, "stake return after failed persist",
				slog.String("market_id", marketID),
				slog.String("bettor", bettor.Hex()),
				slog.String("error", uerr.Error()),
			)
		}
		return nil, fmt.Errorf("market_service: place bet: %w", err)
	}
	s.recordOdds(ctx, marketID, result.PriceYesBps, result.PriceNoBps)

	publishEvent(ctx, s.bus, s.logger, domain.TopicBetPlaced, domain.BetPlacedEvent{
		MarketID:       marketID,
		Bettor:         bettor,
		Outcome:        outcome,
		Amount:         amount,
		SharesReceived: result.Shares,
		PriceYesBps:    result.PriceYesBps,
		PriceNoBps:     result.PriceNoBps,
		Timestamp:      now,
	})
	return result, nil
}

// SellShares sells shares back through the curve and persists the result.
func (s *MarketService) SellShares(ctx context.Context, marketID string, seller common.Address, outcome domain.Outcome, shares *big.Int) (*engine.SellResult, error) {
	unlock, err := s.locks.Acquire(ctx, marketLockKey(marketID), lockTTL)
	if err != nil {
		return nil, fmt.Errorf("market_service: sell shares: %w", err)
	}
	defer unlock()

	now := s.clock.Now()
	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("market_service: sell shares: %w", err)
	}
	pos, err := s.loadPosition(ctx, marketID, seller)
	if err != nil {
		return nil, fmt.Errorf("market_service: sell shares: %w", err)
	}

	result, err := s.engine.SellShares(ctx, now, &m, pos, seller, outcome, shares)
	if err != nil {
		return nil, err
	}

	if err := s.persistTrade(ctx, m, pos); err != nil {
		if uerr := s.engine.UnwindSell(ctx, seller, result); uerr != nil {
			s.logger.ErrorContext(ctx, "refund reclaim after failed persist",
				slog.String("market_id", marketID),
				slog.String("seller", seller.Hex()),
				slog.String("error", uerr.Error()),
			)
		}
		return nil, fmt.Errorf("market_service: sell shares: %w", err)
	}
	s.recordOdds(ctx, marketID, result.PriceYesBps, result.PriceNoBps)

	publishEvent(ctx, s.bus, s.logger, domain.TopicSharesSold, domain.SharesSoldEvent{
		MarketID:  marketID,
		Seller:    seller,
		Outcome:   outcome,
		Shares:    shares,
		Refund:    result.Refund,
		Timestamp: now,
	})
	return result, nil
}

// ClaimWinnings pays a finalized market's parimutuel payout to the claimer.
func (s *MarketService) ClaimWinnings(ctx context.Context, marketID string, claimer common.Address) (*big.Int, error) {
	return s.claim(ctx, marketID, claimer, false)
}

// ClaimRefund returns the claimer's principal from a cancelled market.
func (s *MarketService) ClaimRefund(ctx context.Context, marketID string, claimer common.Address) (*big.Int, error) {
	return s.claim(ctx, marketID, claimer, true)
}

func (s *MarketService) claim(ctx context.Context, marketID string, claimer common.Address, refund bool) (*big.Int, error) {
	unlock, err := s.locks.Acquire(ctx, marketLockKey(marketID), lockTTL)
	if err != nil {
		return nil, fmt.Errorf("market_service: claim: %w", err)
	}
	defer unlock()

	now := s.clock.Now()
	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("market_service: claim: %w", err)
	}
	pos, err := s.positions.Get(ctx, marketID, claimer)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNoWinnings
		}
		return nil, fmt.Errorf("market_service: claim: %w", err)
	}

	var amount *big.Int
	if refund {
		amount, err = s.engine.ClaimRefund(ctx, now, &m, &pos, claimer)
	} else {
		amount, err = s.engine.ClaimWinnings(ctx, now, &m, &pos, claimer)
	}
	if err != nil {
		return nil, err
	}

	// The latch goes durable before any value moves: a crash after this
	// point blocks the retry instead of paying twice.
	if err := s.positions.MarkClaimed(ctx, marketID, claimer, now); err != nil {
		return nil, fmt.Errorf("market_service: claim: %w", err)
	}
	if err := s.engine.Disburse(ctx, claimer, amount); err != nil {
		pos.Claimed = false
		if uerr := s.positions.Upsert(ctx, pos); uerr != nil {
			s.logger.ErrorContext(ctx, "claim latch stuck after failed payout",
				slog.String("market_id", marketID),
				slog.String("claimer", claimer.Hex()),
				slog.String("error", uerr.Error()),
			)
		}
		return nil, fmt.Errorf("market_service: claim: %w", err)
	}

	topic := domain.TopicWinningsClaimed
	if refund {
		topic = domain.TopicRefundClaimed
	}
	publishEvent(ctx, s.bus, s.logger, topic, domain.WinningsClaimedEvent{
		MarketID:  marketID,
		Claimer:   claimer,
		Amount:    amount,
		Refund:    refund,
		Timestamp: now,
	})
	return amount, nil
}

// GetMarket retrieves a market, checking the cache first and back-filling it
// on a miss.
func (s *MarketService) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	m, err := s.cache.Get(ctx, id)
	if err == nil {
		return m, nil
	}

	m, err = s.markets.GetByID(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get by id %q: %w", id, err)
	}

	if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
		s.logger.WarnContext(ctx, "cache set failed",
			slog.String("market_id", id),
			slog.String("error", cacheErr.Error()),
		)
	}
	return m, nil
}

// ListMarkets returns markets straight from the persistent store.
func (s *MarketService) ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.markets.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list: %w", err)
	}
	return markets, nil
}

// Count returns the total market count.
func (s *MarketService) Count(ctx context.Context) (int64, error) {
	n, err := s.markets.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("market_service: count: %w", err)
	}
	return n, nil
}

// Odds returns the current basis-point quote for a market, serving the odds
// cache when fresh and recomputing from the curve on a miss.
func (s *MarketService) Odds(ctx context.Context, marketID string) (int64, int64, error) {
	if yes, no, _, err := s.odds.GetOdds(ctx, marketID); err == nil {
		return yes, no, nil
	}

	m, err := s.GetMarket(ctx, marketID)
	if err != nil {
		return 0, 0, err
	}
	yes, no, err := s.engine.Odds(&m)
	if err != nil {
		return 0, 0, fmt.Errorf("market_service: odds %q: %w", marketID, err)
	}
	s.recordOdds(ctx, marketID, yes, no)
	return yes, no, nil
}

// Position returns the claimer's position in a market.
func (s *MarketService) Position(ctx context.Context, marketID string, user common.Address) (domain.Position, error) {
	pos, err := s.positions.Get(ctx, marketID, user)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return *domain.NewPosition(marketID, user), nil
		}
		return domain.Position{}, fmt.Errorf("market_service: position %q/%s: %w", marketID, user.Hex(), err)
	}
	return pos, nil
}

// Payout computes the claimer's payout from a finalized market's snapshot
// without mutating anything.
func (s *MarketService) Payout(ctx context.Context, marketID string, user common.Address) (*big.Int, error) {
	m, err := s.GetMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	pos, err := s.positions.Get(ctx, marketID, user)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return new(big.Int), nil
		}
		return nil, fmt.Errorf("market_service: payout %q/%s: %w", marketID, user.Hex(), err)
	}
	return engine.CalculatePayout(m.Snapshot, &pos), nil
}

func (s *MarketService) loadPosition(ctx context.Context, marketID string, user common.Address) (*domain.Position, error) {
	pos, err := s.positions.Get(ctx, marketID, user)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NewPosition(marketID, user), nil
		}
		return nil, err
	}
	return &pos, nil
}

// persistTrade writes the mutated market and position and drops the stale
// cache entry. Failures after the engine ran are surfaced to the caller; the
// lock is still held so no other writer has observed the stale state.
func (s *MarketService) persistTrade(ctx context.Context, m domain.Market, pos *domain.Position) error {
	if err := s.markets.Update(ctx, m); err != nil {
		return err
	}
	if err := s.positions.Upsert(ctx, *pos); err != nil {
		return err
	}
	if err := s.cache.Invalidate(ctx, m.ID); err != nil {
		s.logger.WarnContext(ctx, "cache invalidate failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

func (s *MarketService) recordOdds(ctx context.Context, marketID string, yes, no int64) {
	if err := s.odds.SetOdds(ctx, marketID, yes, no, s.clock.Now()); err != nil {
		s.logger.WarnContext(ctx, "odds cache set failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}
