package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/kektech/marketd/internal/domain"
)

// ResolutionManager owns dispute records and shepherds proposed outcomes to
// finality: it files disputes, evaluates the escalation policy over a
// market's dispute history, and settles dispute bonds when an admin rules.
type ResolutionManager struct {
	engine   *Engine
	params   domain.ParamStore
	ledger   domain.Ledger
	disputes domain.DisputeStore
	policy   EscalationPolicy
	treasury common.Address
	log      *slog.Logger
}

func NewResolutionManager(engine *Engine, params domain.ParamStore, ledger domain.Ledger, disputes domain.DisputeStore, policy EscalationPolicy, treasury common.Address, log *slog.Logger) *ResolutionManager {
	return &ResolutionManager{
		engine:   engine,
		params:   params,
		ledger:   ledger,
		disputes: disputes,
		policy:   policy,
		treasury: treasury,
		log:      log.With("component", "resolution"),
	}
}

// ResolveMarket records a resolver's proposed outcome and opens the dispute
// window.
func (r *ResolutionManager) ResolveMarket(ctx context.Context, now time.Time, m *domain.Market, caller common.Address, outcome domain.Outcome) error {
	return r.engine.Propose(ctx, now, m, caller, outcome)
}

// Dispute challenges a proposed outcome. Any caller may dispute while the
// window is open by staking at least the minimum dispute bond; a market
// carries at most one active dispute. The returned flag reports whether the
// filing pushed the market over the escalation threshold.
func (r *ResolutionManager) Dispute(ctx context.Context, now time.Time, m *domain.Market, disputer common.Address, bond *big.Int, reason string) (*domain.DisputeRecord, bool, error) {
	if m.State != domain.MarketResolving {
		return nil, false, &domain.StateTransitionError{From: m.State, Action: "dispute"}
	}
	window, err := r.params.GetDuration(ctx, domain.ParamDisputeWindow)
	if err != nil {
		return nil, false, fmt.Errorf("resolution: dispute: %w", err)
	}
	if !now.Before(m.ProposalAt.Add(window)) {
		return nil, false, domain.ErrDisputeWindowOver
	}
	minBond, err := r.params.GetAmount(ctx, domain.ParamMinDisputeBond)
	if err != nil {
		return nil, false, fmt.Errorf("resolution: dispute: %w", err)
	}
	if bond == nil || bond.Cmp(minBond) < 0 {
		return nil, false, domain.ErrInsufficientBond
	}
	if _, err := r.disputes.GetActive(ctx, m.ID); err == nil {
		return nil, false, domain.ErrDisputeActive
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, fmt.Errorf("resolution: dispute: %w", err)
	}

	record := &domain.DisputeRecord{
		ID:       uuid.NewString(),
		MarketID: m.ID,
		Disputer: disputer,
		Bond:     domain.CloneAmount(bond),
		Reason:   reason,
		Status:   domain.DisputeActive,
		FiledAt:  now,
	}
	// Collect the bond before the record exists: an unfunded disputer must
	// not leave an active dispute row that blocks funded challengers. A
	// failed record write returns the bond.
	if err := r.ledger.Withdraw(ctx, disputer, bond); err != nil {
		return nil, false, fmt.Errorf("resolution: dispute: %w", err)
	}
	if err := r.disputes.Create(ctx, *record); err != nil {
		if depErr := r.ledger.Deposit(ctx, disputer, bond); depErr != nil {
			r.log.Error("bond return after failed dispute write",
				"market_id", m.ID,
				"disputer", disputer.Hex(),
				"error", depErr)
		}
		return nil, false, fmt.Errorf("resolution: dispute: %w", err)
	}

	m.State = domain.MarketDisputed
	m.UpdatedAt = now

	escalated, err := r.evaluateEscalation(ctx, m, minBond)
	if err != nil {
		return nil, false, err
	}
	r.log.Info("dispute filed",
		"market_id", m.ID,
		"dispute_id", record.ID,
		"disputer", disputer.Hex(),
		"bond", bond.String(),
		"escalated", escalated)
	return record, escalated, nil
}

// Finalize settles a disputed market with the admin's final outcome and
// settles the active dispute bond: refunded when the ruling overturns the
// proposal, forfeited to the treasury when it confirms it.
func (r *ResolutionManager) Finalize(ctx context.Context, now time.Time, m *domain.Market, caller common.Address, outcome domain.Outcome) error {
	proposed := m.ProposedOutcome
	if err := r.engine.AdminResolve(ctx, now, m, caller, outcome); err != nil {
		return err
	}

	active, err := r.disputes.GetActive(ctx, m.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("resolution: finalize: %w", err)
	}

	status := domain.DisputeRejected
	recipient := r.treasury
	if outcome != proposed {
		status = domain.DisputeUpheld
		recipient = active.Disputer
	}
	if err := r.disputes.Settle(ctx, active.ID, status, now); err != nil {
		return fmt.Errorf("resolution: settle dispute: %w", err)
	}
	if err := r.ledger.Deposit(ctx, recipient, active.Bond); err != nil {
		return fmt.Errorf("resolution: settle dispute: %w", err)
	}
	r.log.Info("dispute settled",
		"market_id", m.ID,
		"dispute_id", active.ID,
		"status", string(status),
		"bond", active.Bond.String())
	return nil
}

// FinalizeExpired finalizes a resolving market whose dispute window elapsed
// without challenge.
func (r *ResolutionManager) FinalizeExpired(ctx context.Context, now time.Time, m *domain.Market) error {
	return r.engine.FinalizeExpired(ctx, now, m)
}

// CancelDispute voids the active dispute when its market is cancelled,
// refunding the bond to the disputer.
func (r *ResolutionManager) CancelDispute(ctx context.Context, now time.Time, marketID string) error {
	active, err := r.disputes.GetActive(ctx, marketID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("resolution: cancel dispute: %w", err)
	}
	if err := r.disputes.Settle(ctx, active.ID, domain.DisputeCancelled, now); err != nil {
		return fmt.Errorf("resolution: cancel dispute: %w", err)
	}
	if err := r.ledger.Deposit(ctx, active.Disputer, active.Bond); err != nil {
		return fmt.Errorf("resolution: cancel dispute: %w", err)
	}
	return nil
}

func (r *ResolutionManager) evaluateEscalation(ctx context.Context, m *domain.Market, minBond *big.Int) (bool, error) {
	if m.Escalated || r.policy == nil {
		return m.Escalated, nil
	}
	count, totalBond, err := r.disputes.Aggregate(ctx, m.ID)
	if err != nil {
		return false, fmt.Errorf("resolution: aggregate disputes: %w", err)
	}
	if !r.policy.ShouldEscalate(count, totalBond, minBond) {
		return false, nil
	}
	m.Escalated = true
	r.log.Warn("market escalated for admin review", "market_id", m.ID, "disputes", count)
	return true, nil
}
