package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kektech/marketd/internal/domain"
	"github.com/kektech/marketd/internal/engine"
	"github.com/kektech/marketd/internal/notify"
)

// SettlementArchiver uploads a finalized market's settlement record to
// long-term storage.
type SettlementArchiver interface {
	ArchiveSettlement(ctx context.Context, m domain.Market, positions []domain.Position, disputes []domain.DisputeRecord) error
}

// ResolutionService drives markets from proposal through disputes to
// finality, persisting every step and fanning out events. Finalization also
// archives the settlement record and pings the operator channels.
type ResolutionService struct {
	manager   *engine.ResolutionManager
	engine    *engine.Engine
	markets   domain.MarketStore
	positions domain.PositionStore
	disputes  domain.DisputeStore
	locks     domain.LockManager
	cache     domain.MarketCache
	bus       domain.SignalBus
	audit     domain.AuditStore
	archiver  SettlementArchiver
	notifier  *notify.Notifier
	clock     domain.Clock
	logger    *slog.Logger
}

// NewResolutionService creates a ResolutionService. archiver and notifier
// may be nil; archival and notifications are then skipped.
func NewResolutionService(
	manager *engine.ResolutionManager,
	eng *engine.Engine,
	markets domain.MarketStore,
	positions domain.PositionStore,
	disputes domain.DisputeStore,
	locks domain.LockManager,
	cache domain.MarketCache,
	bus domain.SignalBus,
	audit domain.AuditStore,
	archiver SettlementArchiver,
	notifier *notify.Notifier,
	clock domain.Clock,
	logger *slog.Logger,
) *ResolutionService {
	return &ResolutionService{
		manager:   manager,
		engine:    eng,
		markets:   markets,
		positions: positions,
		disputes:  disputes,
		locks:     locks,
		cache:     cache,
		bus:       bus,
		audit:     audit,
		archiver:  archiver,
		notifier:  notifier,
		clock:     clock,
		logger:    logger.With(slog.String("component", "resolution_service")),
	}
}

// Resolve proposes an outcome for a market past its resolution time.
// Resolver role only.
func (s *ResolutionService) Resolve(ctx context.Context, marketID string, caller common.Address, outcome domain.Outcome) error {
	unlock, err := s.locks.Acquire(ctx, marketLockKey(marketID), lockTTL)
	if err != nil {
		return fmt.Errorf("resolution_service: resolve: %w", err)
	}
	defer unlock()

	now := s.clock.Now()
	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return fmt.Errorf("resolution_service: resolve: %w", err)
	}
	if err := s.manager.ResolveMarket(ctx, now, &m, caller, outcome); err != nil {
		return err
	}
	if err := s.persist(ctx, m); err != nil {
		return fmt.Errorf("resolution_service: resolve: %w", err)
	}

	s.auditLog(ctx, "outcome_proposed", map[string]any{
		"market_id": marketID,
		"outcome":   string(outcome),
		"by":        caller.Hex(),
	})
	publishEvent(ctx, s.bus, s.logger, domain.TopicMarketResolved, domain.MarketResolvedEvent{
		MarketID:  marketID,
		Outcome:   outcome,
		Resolver:  caller,
		Final:     false,
		Timestamp: now,
	})
	return nil
}

// Dispute files a bonded challenge against a market's proposed outcome.
func (s *ResolutionService) Dispute(ctx context.Context, marketID string, disputer common.Address, bond *big.Int, reason string) (*domain.DisputeRecord, error) {
	unlock, err := s.locks.Acquire(ctx, marketLockKey(marketID), lockTTL)
	if err != nil {
		return nil, fmt.Errorf("resolution_service: dispute: %w", err)
	}
	defer unlock()

	now := s.clock.Now()
	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("resolution_service: dispute: %w", err)
	}
	record, escalated, err := s.manager.Dispute(ctx, now, &m, disputer, bond, reason)
	if err != nil {
		return nil, err
	}
	if err := s.persist(ctx, m); err != nil {
		return nil, fmt.Errorf("resolution_service: dispute: %w", err)
	}

	publishEvent(ctx, s.bus, s.logger, domain.TopicMarketDisputed, domain.MarketDisputedEvent{
		MarketID:  marketID,
		DisputeID: record.ID,
		Disputer:  disputer,
		Bond:      bond,
		Reason:    reason,
		Timestamp: now,
	})
	if escalated {
		s.announceEscalation(ctx, m)
	}
	return record, nil
}

// AdminResolve settles a disputed market with a final outcome. Admin only.
func (s *ResolutionService) AdminResolve(ctx context.Context, marketID string, caller common.Address, outcome domain.Outcome) error {
	unlock, err := s.locks.Acquire(ctx, marketLockKey(marketID), lockTTL)
	if err != nil {
		return fmt.Errorf("resolution_service: admin resolve: %w", err)
	}
	defer unlock()

	now := s.clock.Now()
	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return fmt.Errorf("resolution_service: admin resolve: %w", err)
	}
	if err := s.manager.Finalize(ctx, now, &m, caller, outcome); err != nil {
		return err
	}
	if err := s.persist(ctx, m); err != nil {
		return fmt.Errorf("resolution_service: admin resolve: %w", err)
	}

	s.auditLog(ctx, "market_finalized", map[string]any{
		"market_id": marketID,
		"outcome":   string(outcome),
		"by":        caller.Hex(),
	})
	s.announceFinal(ctx, m, caller)
	return nil
}

// FinalizeExpired finalizes a resolving market whose dispute window elapsed
// without challenge.
func (s *ResolutionService) FinalizeExpired(ctx context.Context, marketID string) error {
	unlock, err := s.locks.Acquire(ctx, marketLockKey(marketID), lockTTL)
	if err != nil {
		return fmt.Errorf("resolution_service: finalize expired: %w", err)
	}
	defer unlock()

	now := s.clock.Now()
	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return fmt.Errorf("resolution_service: finalize expired: %w", err)
	}
	if err := s.manager.FinalizeExpired(ctx, now, &m); err != nil {
		return err
	}
	if err := s.persist(ctx, m); err != nil {
		return fmt.Errorf("resolution_service: finalize expired: %w", err)
	}

	s.announceFinal(ctx, m, m.ProposedBy)
	return nil
}

// Cancel voids a market administratively; all positions become refundable at
// principal. Any active dispute is cancelled with its bond returned.
func (s *ResolutionService) Cancel(ctx context.Context, marketID string, caller common.Address) error {
	unlock, err := s.locks.Acquire(ctx, marketLockKey(marketID), lockTTL)
	if err != nil {
		return fmt.Errorf("resolution_service: cancel: %w", err)
	}
	defer unlock()

	now := s.clock.Now()
	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return fmt.Errorf("resolution_service: cancel: %w", err)
	}
	if err := s.engine.Cancel(ctx, now, &m, caller); err != nil {
		return err
	}
	if err := s.manager.CancelDispute(ctx, now, marketID); err != nil {
		return fmt.Errorf("resolution_service: cancel: %w", err)
	}
	if err := s.persist(ctx, m); err != nil {
		return fmt.Errorf("resolution_service: cancel: %w", err)
	}

	s.auditLog(ctx, "market_cancelled", map[string]any{
		"market_id": marketID,
		"by":        caller.Hex(),
	})
	publishEvent(ctx, s.bus, s.logger, domain.TopicMarketCancelled, domain.MarketCancelledEvent{
		MarketID:  marketID,
		By:        caller,
		Timestamp: now,
	})
	return nil
}

func (s *ResolutionService) persist(ctx context.Context, m domain.Market) error {
	if err := s.markets.Update(ctx, m); err != nil {
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

// announceFinal publishes the final resolution event, archives the
// settlement record and notifies operator channels. Archive and notify
// failures are logged only; the market is already finalized.
func (s *ResolutionService) announceFinal(ctx context.Context, m domain.Market, resolver common.Address) {
	now := s.clock.Now()
	publishEvent(ctx, s.bus, s.logger, domain.TopicMarketResolved, domain.MarketResolvedEvent{
		MarketID:  m.ID,
		Outcome:   m.Outcome,
		Resolver:  resolver,
		Final:     true,
		Timestamp: now,
	})

	if s.archiver != nil {
		positions, err := s.positions.ListByMarket(ctx, m.ID)
		if err == nil {
			var history []domain.DisputeRecord
			history, err = s.disputes.ListByMarket(ctx, m.ID)
			if err == nil {
				err = s.archiver.ArchiveSettlement(ctx, m, positions, history)
			}
		}
		if err != nil {
			s.logger.ErrorContext(ctx, "settlement archive failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.notifier != nil {
		msg := fmt.Sprintf("Market %s finalized with outcome %s", m.ID, m.Outcome)
		if err := s.notifier.Notify(ctx, domain.TopicMarketResolved, "Market finalized", msg); err != nil {
			s.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
		}
	}
}

func (s *ResolutionService) announceEscalation(ctx context.Context, m domain.Market) {
	now := s.clock.Now()
	count, totalBond, err := s.disputes.Aggregate(ctx, m.ID)
	if err != nil {
		s.logger.WarnContext(ctx, "dispute aggregate failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	publishEvent(ctx, s.bus, s.logger, domain.TopicDisputeEscalated, domain.DisputeEscalatedEvent{
		MarketID:     m.ID,
		DisputeCount: count,
		TotalBond:    totalBond,
		Timestamp:    now,
	})
	if s.notifier != nil {
		msg := fmt.Sprintf("Market %s crossed the dispute escalation threshold (%d disputes)", m.ID, count)
		if err := s.notifier.Notify(ctx, domain.TopicDisputeEscalated, "Dispute escalated", msg); err != nil {
			s.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
		}
	}
}

func (s *ResolutionService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
