package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kektech/marketd/internal/domain"
	"github.com/kektech/marketd/internal/engine"
)

// FactoryService wraps the market factory with persistence, audit logging
// and event publication.
type FactoryService struct {
	factory *engine.Factory
	engine  *engine.Engine
	markets domain.MarketStore
	locks   domain.LockManager
	cache   domain.MarketCache
	bus     domain.SignalBus
	audit   domain.AuditStore
	clock   domain.Clock
	logger  *slog.Logger
}

// NewFactoryService creates a FactoryService with all required dependencies.
func NewFactoryService(
	factory *engine.Factory,
	eng *engine.Engine,
	markets domain.MarketStore,
	locks domain.LockManager,
	cache domain.MarketCache,
	bus domain.SignalBus,
	audit domain.AuditStore,
	clock domain.Clock,
	logger *slog.Logger,
) *FactoryService {
	return &FactoryService{
		factory: factory,
		engine:  eng,
		markets: markets,
		locks:   locks,
		cache:   cache,
		bus:     bus,
		audit:   audit,
		clock:   clock,
		logger:  logger.With(slog.String("component", "factory_service")),
	}
}

// CreateMarket instantiates a market on the default curve and persists it.
func (s *FactoryService) CreateMarket(ctx context.Context, creator common.Address, cfg domain.MarketConfig, bond *big.Int) (*domain.Market, error) {
	now := s.clock.Now()
	m, _, err := s.factory.CreateMarket(ctx, now, creator, cfg, bond)
	if err != nil {
		return nil, err
	}
	return s.persistCreated(ctx, m)
}

// CreateMarketWithCurve instantiates a market on an explicitly chosen curve.
func (s *FactoryService) CreateMarketWithCurve(ctx context.Context, creator common.Address, cfg domain.MarketConfig, curveID string, params domain.CurveParams, bond *big.Int) (*domain.Market, error) {
	now := s.clock.Now()
	m, _, err := s.factory.CreateMarketWithCurve(ctx, now, creator, cfg, curveID, params, bond)
	if err != nil {
		return nil, err
	}
	return s.persistCreated(ctx, m)
}

func (s *FactoryService) persistCreated(ctx context.Context, m *domain.Market) (*domain.Market, error) {
	if err := s.markets.Create(ctx, *m); err != nil {
		return nil, fmt.Errorf("factory_service: persist market: %w", err)
	}

	publishEvent(ctx, s.bus, s.logger, domain.TopicMarketCreated, domain.MarketCreatedEvent{
		MarketID:       m.ID,
		Creator:        m.Creator,
		Question:       m.Question,
		CurveID:        m.CurveID,
		EndTime:        m.EndTime,
		ResolutionTime: m.ResolutionTime,
		Timestamp:      m.CreatedAt,
	})
	s.logger.InfoContext(ctx, "market created",
		slog.String("market_id", m.ID),
		slog.String("curve_id", m.CurveID),
		slog.String("state", string(m.State)),
	)
	return m, nil
}

// Approve moves a proposed market to Approved and persists it. Admin only.
func (s *FactoryService) Approve(ctx context.Context, marketID string, caller common.Address) error {
	return s.transition(ctx, marketID, "approve", func(ctx context.Context, m *domain.Market) error {
		return s.engine.Approve(ctx, s.clock.Now(), m, caller)
	})
}

// Activate opens an approved market for trading and persists it. Admin only.
func (s *FactoryService) Activate(ctx context.Context, marketID string, caller common.Address) error {
	return s.transition(ctx, marketID, "activate", func(ctx context.Context, m *domain.Market) error {
		return s.engine.Activate(ctx, s.clock.Now(), m, caller)
	})
}

// Pause halts market creation. Pauser only.
func (s *FactoryService) Pause(ctx context.Context, caller common.Address) error {
	if err := s.factory.Pause(ctx, caller); err != nil {
		return err
	}
	s.auditLog(ctx, "factory_paused", map[string]any{"by": caller.Hex()})
	publishEvent(ctx, s.bus, s.logger, domain.TopicFactoryPaused, domain.FactoryPausedEvent{
		Paused: true, By: caller, Timestamp: s.clock.Now(),
	})
	return nil
}

// Unpause resumes market creation. Pauser only.
func (s *FactoryService) Unpause(ctx context.Context, caller common.Address) error {
	if err := s.factory.Unpause(ctx, caller); err != nil {
		return err
	}
	s.auditLog(ctx, "factory_unpaused", map[string]any{"by": caller.Hex()})
	publishEvent(ctx, s.bus, s.logger, domain.TopicFactoryPaused, domain.FactoryPausedEvent{
		Paused: false, By: caller, Timestamp: s.clock.Now(),
	})
	return nil
}

// Paused reports the in-process pause flag.
func (s *FactoryService) Paused() bool { return s.factory.Paused() }

// RefundCreatorBond releases an escrowed creator bond. Operator only.
func (s *FactoryService) RefundCreatorBond(ctx context.Context, caller common.Address, marketID string) (*domain.BondRecord, error) {
	released, err := s.factory.RefundCreatorBond(ctx, s.clock.Now(), caller, marketID)
	if err != nil {
		return nil, err
	}
	s.auditLog(ctx, "bond_refunded", map[string]any{
		"market_id": marketID,
		"creator":   released.Creator.Hex(),
		"amount":    released.HeldAmount.String(),
	})
	publishEvent(ctx, s.bus, s.logger, domain.TopicBondRefunded, domain.BondRefundedEvent{
		MarketID:  marketID,
		Creator:   released.Creator,
		Amount:    released.HeldAmount,
		Timestamp: s.clock.Now(),
	})
	return released, nil
}

// HeldBond returns the escrow record for a market.
func (s *FactoryService) HeldBond(ctx context.Context, marketID string) (domain.BondRecord, error) {
	return s.factory.HeldBond(ctx, marketID)
}

// TotalHeldBonds returns the sum of all escrowed bonds.
func (s *FactoryService) TotalHeldBonds(ctx context.Context) (*big.Int, error) {
	return s.factory.TotalHeldBonds(ctx)
}

// transition loads a market under its lock, applies the mutation and
// persists the result.
func (s *FactoryService) transition(ctx context.Context, marketID, action string, mutate func(context.Context, *domain.Market) error) error {
	unlock, err := s.locks.Acquire(ctx, marketLockKey(marketID), lockTTL)
	if err != nil {
		return fmt.Errorf("factory_service: %s: %w", action, err)
	}
	defer unlock()

	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return fmt.Errorf("factory_service: %s: %w", action, err)
	}
	if err := mutate(ctx, &m); err != nil {
		return err
	}
	if err := s.markets.Update(ctx, m); err != nil {
		return fmt.Errorf("factory_service: %s: %w", action, err)
	}
	if err := s.cache.Invalidate(ctx, marketID); err != nil {
		s.logger.WarnContext(ctx, "cache invalidate failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
	s.auditLog(ctx, "market_"+action, map[string]any{"market_id": marketID})
	return nil
}

func (s *FactoryService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
