// Package engine implements the pricing and settlement core: the market
// state machine, the factory that instantiates markets, and the resolution
// manager that shepherds proposed outcomes through disputes to finality.
//
// Engine methods mutate the domain records they are handed and move value
// through the injected ledger; persistence, locking and event publication
// belong to the service layer above. Every time-sensitive method takes the
// logical time explicitly so lifecycle behavior is deterministic under test.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kektech/marketd/internal/curve"
	"github.com/kektech/marketd/internal/domain"
)

// CurveSource resolves curve ids to pricing strategies.
type CurveSource interface {
	// Resolve returns an active strategy for new market bindings.
	Resolve(ctx context.Context, id string) (curve.BondingCurve, domain.CurveRegistration, error)
	// Lookup returns the strategy for an existing binding regardless of
	// activation state.
	Lookup(id string) (curve.BondingCurve, error)
}

// Engine executes trades and drives the market lifecycle.
type Engine struct {
	curves   CurveSource
	roles    domain.RoleDirectory
	params   domain.ParamStore
	ledger   domain.Ledger
	treasury common.Address
	log      *slog.Logger
}

func New(curves CurveSource, roles domain.RoleDirectory, params domain.ParamStore, ledger domain.Ledger, treasury common.Address, log *slog.Logger) *Engine {
	return &Engine{
		curves:   curves,
		roles:    roles,
		params:   params,
		ledger:   ledger,
		treasury: treasury,
		log:      log.With("component", "engine"),
	}
}

// BetResult reports an executed bet.
type BetResult struct {
	Shares      *big.Int
	NetStake    *big.Int
	Fee         *big.Int
	PriceYesBps int64
	PriceNoBps  int64
}

// SellResult reports an executed sell.
type SellResult struct {
	Refund      *big.Int
	PriceYesBps int64
	PriceNoBps  int64
}

// PlaceBet executes a bet of amount on outcome. The platform fee is skimmed
// off the stake first; the net stake buys shares through the bound curve.
// minOddsBps guards slippage: the executed odds (shares per unit of net
// stake, in basis points) must not fall below it; zero disables the guard.
func (e *Engine) PlaceBet(ctx context.Context, now time.Time, m *domain.Market, pos *domain.Position, bettor common.Address, outcome domain.Outcome, amount *big.Int, minOddsBps int64) (*BetResult, error) {
	if m.State != domain.MarketActive {
		return nil, &domain.StateTransitionError{From: m.State, Action: "bet"}
	}
	if !now.Before(m.EndTime) {
		return nil, domain.ErrBettingClosed
	}
	if !outcome.Bettable() {
		return nil, domain.ErrUnknownOutcome
	}
	if !domain.IsPositive(amount) {
		return nil, domain.ErrBetTooSmall
	}

	minBet, err := e.params.GetAmount(ctx, domain.ParamMinimumBet)
	if err != nil {
		return nil, fmt.Errorf("engine: place bet: %w", err)
	}
	maxBet, err := e.params.GetAmount(ctx, domain.ParamMaximumBet)
	if err != nil {
		return nil, fmt.Errorf("engine: place bet: %w", err)
	}
	if amount.Cmp(minBet) < 0 {
		return nil, domain.ErrBetTooSmall
	}
	if amount.Cmp(maxBet) > 0 {
		return nil, domain.ErrBetTooLarge
	}

	feeBps, err := e.params.GetInt(ctx, domain.ParamPlatformFeePercent)
	if err != nil {
		return nil, fmt.Errorf("engine: place bet: %w", err)
	}
	fee := new(big.Int).Mul(amount, big.NewInt(feeBps))
	fee.Quo(fee, big.NewInt(domain.PriceScale))
	net := new(big.Int).Sub(amount, fee)

	impl, err := e.curves.Lookup(m.CurveID)
	if err != nil {
		return nil, fmt.Errorf("engine: place bet: %w", err)
	}
	shares, _, err := curve.SharesForCost(impl, m.CurveParams, m.SharesYes, m.SharesNo, outcome, net)
	if err != nil {
		return nil, err
	}

	if minOddsBps > 0 {
		odds := new(big.Int).Mul(shares, big.NewInt(domain.OddsScale))
		odds.Quo(odds, net)
		if odds.Cmp(big.NewInt(minOddsBps)) < 0 {
			return nil, domain.ErrSlippageTooHigh
		}
	}

	// Effects: pools and shares move together so the volume invariant holds
	// at every step.
	m.Pool(outcome).Add(m.Pool(outcome), net)
	m.Shares(outcome).Add(m.Shares(outcome), shares)
	m.TotalVolume.Add(m.TotalVolume, net)
	m.FeesAccrued.Add(m.FeesAccrued, fee)
	m.UpdatedAt = now

	pos.Shares(outcome).Add(pos.Shares(outcome), shares)
	pos.TotalInvested.Add(pos.TotalInvested, net)
	pos.UpdatedAt = now

	if err := e.ledger.Withdraw(ctx, bettor, amount); err != nil {
		return nil, fmt.Errorf("engine: place bet: %w", err)
	}
	if fee.Sign() > 0 {
		if err := e.ledger.Deposit(ctx, e.treasury, fee); err != nil {
			return nil, fmt.Errorf("engine: place bet: %w", err)
		}
	}

	yes, no, err := impl.Prices(m.CurveParams, m.SharesYes, m.SharesNo)
	if err != nil {
		return nil, fmt.Errorf("engine: place bet: %w", err)
	}
	return &BetResult{
		Shares:      shares,
		NetStake:    net,
		Fee:         fee,
		PriceYesBps: yes,
		PriceNoBps:  no,
	}, nil
}

// SellShares refunds shares back through the curve. The refund is clamped to
// the side pool so a sell can never drain value the pool does not hold.
func (e *Engine) SellShares(ctx context.Context, now time.Time, m *domain.Market, pos *domain.Position, seller common.Address, outcome domain.Outcome, shares *big.Int) (*SellResult, error) {
	if m.State != domain.MarketActive {
		return nil, &domain.StateTransitionError{From: m.State, Action: "sell"}
	}
	if !outcome.Bettable() {
		return nil, domain.ErrUnknownOutcome
	}
	if !domain.IsPositive(shares) {
		return nil, domain.ErrInvalidShareAmount
	}
	if pos.Shares(outcome).Cmp(shares) < 0 {
		return nil, domain.ErrInsufficientShares
	}

	impl, err := e.curves.Lookup(m.CurveID)
	if err != nil {
		return nil, fmt.Errorf("engine: sell shares: %w", err)
	}
	refund, err := impl.Refund(m.CurveParams, m.SharesYes, m.SharesNo, outcome, shares)
	if err != nil {
		return nil, err
	}
	if refund.Cmp(m.Pool(outcome)) > 0 {
		refund.Set(m.Pool(outcome))
	}

	m.Pool(outcome).Sub(m.Pool(outcome), refund)
	m.Shares(outcome).Sub(m.Shares(outcome), shares)
	m.TotalVolume.Sub(m.TotalVolume, refund)
	m.UpdatedAt = now

	pos.Shares(outcome).Sub(pos.Shares(outcome), shares)
	if pos.TotalInvested.Cmp(refund) <= 0 {
		pos.TotalInvested.SetInt64(0)
	} else {
		pos.TotalInvested.Sub(pos.TotalInvested, refund)
	}
	pos.UpdatedAt = now

	if refund.Sign() > 0 {
		if err := e.ledger.Deposit(ctx, seller, refund); err != nil {
			return nil, fmt.Errorf("engine: sell shares: %w", err)
		}
	}

	yes, no, err := impl.Prices(m.CurveParams, m.SharesYes, m.SharesNo)
	if err != nil {
		return nil, fmt.Errorf("engine: sell shares: %w", err)
	}
	return &SellResult{Refund: refund, PriceYesBps: yes, PriceNoBps: no}, nil
}

// Approve moves a proposed market into Approved. Admin only.
func (e *Engine) Approve(ctx context.Context, now time.Time, m *domain.Market, caller common.Address) error {
	if err := e.requireRole(ctx, caller, domain.RoleAdmin); err != nil {
		return err
	}
	if m.State != domain.MarketProposed {
		return &domain.StateTransitionError{From: m.State, Action: "approve"}
	}
	m.State = domain.MarketApproved
	m.UpdatedAt = now
	return nil
}

// Activate opens an approved market for trading. Admin only.
func (e *Engine) Activate(ctx context.Context, now time.Time, m *domain.Market, caller common.Address) error {
	if err := e.requireRole(ctx, caller, domain.RoleAdmin); err != nil {
		return err
	}
	if m.State != domain.MarketApproved {
		return &domain.StateTransitionError{From: m.State, Action: "activate"}
	}
	m.State = domain.MarketActive
	m.UpdatedAt = now
	return nil
}

// Propose records a resolver's proposed outcome and opens the dispute
// window.
func (e *Engine) Propose(ctx context.Context, now time.Time, m *domain.Market, caller common.Address, outcome domain.Outcome) error {
	if err := e.requireRole(ctx, caller, domain.RoleResolver); err != nil {
		return err
	}
	if m.State != domain.MarketActive {
		return &domain.StateTransitionError{From: m.State, Action: "propose resolution"}
	}
	if !outcome.Bettable() {
		return domain.ErrUnknownOutcome
	}
	if now.Before(m.ResolutionTime) {
		return domain.ErrResolutionTooEarly
	}
	m.State = domain.MarketResolving
	m.ProposedOutcome = outcome
	m.ProposedBy = caller
	m.ProposalAt = now
	m.UpdatedAt = now
	return nil
}

// FinalizeExpired finalizes a resolving market whose dispute window elapsed
// without challenge.
func (e *Engine) FinalizeExpired(ctx context.Context, now time.Time, m *domain.Market) error {
	if m.State != domain.MarketResolving {
		return &domain.StateTransitionError{From: m.State, Action: "finalize"}
	}
	window, err := e.params.GetDuration(ctx, domain.ParamDisputeWindow)
	if err != nil {
		return fmt.Errorf("engine: finalize: %w", err)
	}
	if now.Before(m.ProposalAt.Add(window)) {
		return domain.ErrDisputeWindowOpen
	}
	e.finalize(now, m, m.ProposedOutcome)
	return nil
}

// AdminResolve settles a disputed market with the admin's final outcome.
func (e *Engine) AdminResolve(ctx context.Context, now time.Time, m *domain.Market, caller common.Address, outcome domain.Outcome) error {
	if err := e.requireRole(ctx, caller, domain.RoleAdmin); err != nil {
		return err
	}
	if m.State != domain.MarketDisputed {
		return &domain.StateTransitionError{From: m.State, Action: "admin-resolve"}
	}
	if !outcome.Bettable() {
		return domain.ErrUnknownOutcome
	}
	e.finalize(now, m, outcome)
	return nil
}

// Cancel aborts a market; every bettor becomes entitled to a principal
// refund. Admin only.
func (e *Engine) Cancel(ctx context.Context, now time.Time, m *domain.Market, caller common.Address) error {
	if err := e.requireRole(ctx, caller, domain.RoleAdmin); err != nil {
		return err
	}
	if m.State != domain.MarketActive && m.State != domain.MarketResolving {
		return &domain.StateTransitionError{From: m.State, Action: "cancel"}
	}
	m.State = domain.MarketCancelled
	m.Outcome = domain.OutcomeCancelled
	m.Snapshot = &domain.PayoutSnapshot{
		WinningOutcome: domain.OutcomeCancelled,
		TotalPool:      new(big.Int).Add(m.PoolYes, m.PoolNo),
		WinningPool:    new(big.Int),
		WinningShares:  new(big.Int),
		FinalizedAt:    now,
	}
	m.UpdatedAt = now
	return nil
}

// finalize freezes the payout snapshot. The snapshot is immutable from here
// on; CalculatePayout reads only it.
func (e *Engine) finalize(now time.Time, m *domain.Market, outcome domain.Outcome) {
	m.State = domain.MarketFinalized
	m.Outcome = outcome
	m.Snapshot = &domain.PayoutSnapshot{
		WinningOutcome: outcome,
		TotalPool:      new(big.Int).Add(m.PoolYes, m.PoolNo),
		WinningPool:    domain.CloneAmount(m.Pool(outcome)),
		WinningShares:  domain.CloneAmount(m.Shares(outcome)),
		FinalizedAt:    now,
	}
	m.UpdatedAt = now
	e.log.Info("market finalized", "market_id", m.ID, "outcome", string(outcome))
}

// CalculatePayout is a pure function of the frozen snapshot and a position.
// Winners split the whole pool in proportion to their winning-side shares.
// When the winning side holds no shares at all, or the market was cancelled,
// the claimant recovers their invested principal instead.
func CalculatePayout(snap *domain.PayoutSnapshot, pos *domain.Position) *big.Int {
	if snap == nil || pos == nil {
		return new(big.Int)
	}
	if snap.WinningOutcome == domain.OutcomeCancelled {
		return domain.CloneAmount(pos.TotalInvested)
	}
	if snap.WinningShares.Sign() == 0 {
		return domain.CloneAmount(pos.TotalInvested)
	}
	held := pos.Shares(snap.WinningOutcome)
	if held.Sign() == 0 {
		return new(big.Int)
	}
	payout := new(big.Int).Mul(snap.TotalPool, held)
	return payout.Quo(payout, snap.WinningShares)
}

// ClaimWinnings validates a finalized-market claim and computes the payout.
// No value moves here: the caller persists the claim latch first and then
// pays the returned amount through Disburse, so a crash between the two can
// never pay twice.
func (e *Engine) ClaimWinnings(ctx context.Context, now time.Time, m *domain.Market, pos *domain.Position, claimer common.Address) (*big.Int, error) {
	if m.State != domain.MarketFinalized {
		return nil, &domain.StateTransitionError{From: m.State, Action: "claim winnings"}
	}
	if pos.Claimed {
		return nil, domain.ErrAlreadyClaimed
	}
	payout := CalculatePayout(m.Snapshot, pos)
	if payout.Sign() == 0 {
		return nil, domain.ErrNoWinnings
	}

	pos.Claimed = true
	pos.UpdatedAt = now
	return payout, nil
}

// ClaimRefund validates a cancellation refund and computes the principal to
// return, one shot per position. Value moves only through Disburse after the
// latch is durable.
func (e *Engine) ClaimRefund(ctx context.Context, now time.Time, m *domain.Market, pos *domain.Position, claimer common.Address) (*big.Int, error) {
	if m.State != domain.MarketCancelled {
		return nil, &domain.StateTransitionError{From: m.State, Action: "claim refund"}
	}
	if pos.Claimed {
		return nil, domain.ErrAlreadyClaimed
	}
	refund := domain.CloneAmount(pos.TotalInvested)
	if refund.Sign() == 0 {
		return nil, domain.ErrNoWinnings
	}

	pos.Claimed = true
	pos.UpdatedAt = now
	return refund, nil
}

// Disburse credits a computed claim amount to the claimer. Callers invoke it
// only after the claim latch has been persisted.
func (e *Engine) Disburse(ctx context.Context, claimer common.Address, amount *big.Int) error {
	if err := e.ledger.Deposit(ctx, claimer, amount); err != nil {
		return fmt.Errorf("engine: disburse: %w", err)
	}
	return nil
}

// UnwindBet returns a collected stake when the trade could not be recorded,
// pulling the fee back out of the treasury so the ledger matches the stores.
func (e *Engine) UnwindBet(ctx context.Context, bettor common.Address, res *BetResult) error {
	gross := new(big.Int).Add(res.NetStake, res.Fee)
	if err := e.ledger.Deposit(ctx, bettor, gross); err != nil {
		return fmt.Errorf("engine: unwind bet: %w", err)
	}
	if res.Fee.Sign() > 0 {
		if err := e.ledger.Withdraw(ctx, e.treasury, res.Fee); err != nil {
			return fmt.Errorf("engine: unwind bet: %w", err)
		}
	}
	return nil
}

// UnwindSell reclaims a sell refund when the trade could not be recorded.
func (e *Engine) UnwindSell(ctx context.Context, seller common.Address, res *SellResult) error {
	if res.Refund.Sign() == 0 {
		return nil
	}
	if err := e.ledger.Withdraw(ctx, seller, res.Refund); err != nil {
		return fmt.Errorf("engine: unwind sell: %w", err)
	}
	return nil
}

// Odds quotes the current (yes, no) prices for a market.
func (e *Engine) Odds(m *domain.Market) (int64, int64, error) {
	impl, err := e.curves.Lookup(m.CurveID)
	if err != nil {
		return 0, 0, fmt.Errorf("engine: odds: %w", err)
	}
	return impl.Prices(m.CurveParams, m.SharesYes, m.SharesNo)
}

func (e *Engine) requireRole(ctx context.Context, caller common.Address, role string) error {
	ok, err := e.roles.HasRole(ctx, caller, role)
	if err != nil {
		return fmt.Errorf("engine: role check: %w", err)
	}
	if !ok {
		return domain.ErrUnauthorized
	}
	return nil
}
