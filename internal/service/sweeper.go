package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/kektech/marketd/internal/domain"
)

// Sweeper periodically finalizes resolving markets whose dispute window has
// elapsed, so settlement does not depend on anyone calling the finalize
// endpoint. Call Run in a goroutine.
type Sweeper struct {
	markets    domain.MarketStore
	resolution *ResolutionService
	params     domain.ParamStore
	clock      domain.Clock
	interval   time.Duration
	logger     *slog.Logger
}

// NewSweeper creates a Sweeper. interval defaults to one minute when zero or
// negative.
func NewSweeper(
	markets domain.MarketStore,
	resolution *ResolutionService,
	params domain.ParamStore,
	clock domain.Clock,
	interval time.Duration,
	logger *slog.Logger,
) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		markets:    markets,
		resolution: resolution,
		params:     params,
		clock:      clock,
		interval:   interval,
		logger:     logger.With(slog.String("component", "sweeper")),
	}
}

// Run sweeps on a fixed ticker until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.ErrorContext(ctx, "sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Sweep finalizes every resolving market whose dispute window closed. A
// failure on one market is logged and the sweep moves on; the market is
// retried next tick.
func (s *Sweeper) Sweep(ctx context.Context) error {
	window, err := s.params.GetDuration(ctx, domain.ParamDisputeWindow)
	if err != nil {
		return err
	}
	cutoff := s.clock.Now().Add(-window)

	expired, err := s.markets.ListExpiredResolving(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, m := range expired {
		if err := s.resolution.FinalizeExpired(ctx, m.ID); err != nil {
			s.logger.WarnContext(ctx, "auto-finalize failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.logger.InfoContext(ctx, "market auto-finalized",
			slog.String("market_id", m.ID),
		)
	}
	return nil
}
