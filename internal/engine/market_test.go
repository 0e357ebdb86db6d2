package engine

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/kektech/marketd/internal/domain"
)

func TestPlaceBet(t *testing.T) {
	fx := newFixture(t)
	m := activeMarket(t)
	pos := domain.NewPosition(m.ID, aliceAddr)
	ctx := context.Background()

	amount := domain.Wad(10)
	res, err := fx.engine.PlaceBet(ctx, testStart, m, pos, aliceAddr, domain.OutcomeYes, amount, 0)
	if err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}

	// 5% fee on 10 units.
	wantFee := big.NewInt(500_000_000_000_000_000)
	if res.Fee.Cmp(wantFee) != 0 {
		t.Errorf("fee = %v, want %v", res.Fee, wantFee)
	}
	wantNet := new(big.Int).Sub(amount, wantFee)
	if res.NetStake.Cmp(wantNet) != 0 {
		t.Errorf("net stake = %v, want %v", res.NetStake, wantNet)
	}
	if res.Shares.Sign() <= 0 {
		t.Fatal("no shares received")
	}
	if m.PoolYes.Cmp(wantNet) != 0 {
		t.Errorf("poolYes = %v, want %v", m.PoolYes, wantNet)
	}
	if m.FeesAccrued.Cmp(wantFee) != 0 {
		t.Errorf("feesAccrued = %v, want %v", m.FeesAccrued, wantFee)
	}
	if pos.Shares(domain.OutcomeYes).Cmp(res.Shares) != 0 {
		t.Errorf("position shares = %v, want %v", pos.SharesYes, res.Shares)
	}
	if pos.TotalInvested.Cmp(wantNet) != 0 {
		t.Errorf("position invested = %v, want %v", pos.TotalInvested, wantNet)
	}
	checkVolumeInvariant(t, m)

	aliceBal, _ := fx.ledger.Balance(ctx, aliceAddr)
	wantBal := new(big.Int).Sub(domain.Wad(1000), amount)
	if aliceBal.Cmp(wantBal) != 0 {
		t.Errorf("bettor balance = %v, want %v", aliceBal, wantBal)
	}
	treasuryBal, _ := fx.ledger.Balance(ctx, treasuryAddr)
	if treasuryBal.Cmp(wantFee) != 0 {
		t.Errorf("treasury balance = %v, want %v", treasuryBal, wantFee)
	}
	if res.PriceYesBps+res.PriceNoBps != 10000 {
		t.Errorf("prices sum = %d, want 10000", res.PriceYesBps+res.PriceNoBps)
	}
	if res.PriceYesBps <= 5000 {
		t.Errorf("yes price after yes buy = %d, want > 5000", res.PriceYesBps)
	}
}

func TestPlaceBetGuards(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		prep    func(m *domain.Market)
		now     time.Time
		outcome domain.Outcome
		amount  *big.Int
		minOdds int64
		wantErr error
	}{
		{
			name:    "below minimum",
			now:     testStart,
			outcome: domain.OutcomeYes,
			amount:  big.NewInt(9_999_999_999_999_999),
			wantErr: domain.ErrBetTooSmall,
		},
		{
			name:    "above maximum",
			now:     testStart,
			outcome: domain.OutcomeYes,
			amount:  domain.Wad(101),
			wantErr: domain.ErrBetTooLarge,
		},
		{
			name:    "after end time",
			now:     testStart.Add(73 * time.Hour),
			outcome: domain.OutcomeYes,
			amount:  domain.Wad(1),
			wantErr: domain.ErrBettingClosed,
		},
		{
			name:    "bad outcome",
			now:     testStart,
			outcome: domain.OutcomeInvalid,
			amount:  domain.Wad(1),
			wantErr: domain.ErrUnknownOutcome,
		},
		{
			name:    "not active",
			prep:    func(m *domain.Market) { m.State = domain.MarketResolving },
			now:     testStart,
			outcome: domain.OutcomeYes,
			amount:  domain.Wad(1),
			wantErr: domain.ErrInvalidState,
		},
		{
			name:    "slippage guard",
			now:     testStart,
			outcome: domain.OutcomeYes,
			amount:  domain.Wad(10),
			minOdds: 30000,
			wantErr: domain.ErrSlippageTooHigh,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := activeMarket(t)
			if tt.prep != nil {
				tt.prep(m)
			}
			pos := domain.NewPosition(m.ID, aliceAddr)
			_, err := fx.engine.PlaceBet(ctx, tt.now, m, pos, aliceAddr, tt.outcome, tt.amount, tt.minOdds)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if m.TotalVolume.Sign() != 0 {
				t.Error("rejected bet mutated the market")
			}
		})
	}
}

func TestPlaceBetSlippageDisabledByZero(t *testing.T) {
	fx := newFixture(t)
	m := activeMarket(t)
	pos := domain.NewPosition(m.ID, aliceAddr)
	if _, err := fx.engine.PlaceBet(context.Background(), testStart, m, pos, aliceAddr, domain.OutcomeYes, domain.Wad(10), 0); err != nil {
		t.Fatalf("PlaceBet with minOdds 0: %v", err)
	}
}

func TestSellShares(t *testing.T) {
	fx := newFixture(t)
	m := activeMarket(t)
	pos := domain.NewPosition(m.ID, aliceAddr)
	ctx := context.Background()

	bet, err := fx.engine.PlaceBet(ctx, testStart, m, pos, aliceAddr, domain.OutcomeYes, domain.Wad(10), 0)
	if err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}

	half := new(big.Int).Rsh(bet.Shares, 1)
	sell, err := fx.engine.SellShares(ctx, testStart.Add(time.Hour), m, pos, aliceAddr, domain.OutcomeYes, half)
	if err != nil {
		t.Fatalf("SellShares: %v", err)
	}
	if sell.Refund.Sign() <= 0 {
		t.Fatal("no refund received")
	}
	if sell.Refund.Cmp(bet.NetStake) > 0 {
		t.Errorf("refund %v exceeds net stake %v", sell.Refund, bet.NetStake)
	}
	wantShares := new(big.Int).Sub(bet.Shares, half)
	if pos.SharesYes.Cmp(wantShares) != 0 {
		t.Errorf("position shares = %v, want %v", pos.SharesYes, wantShares)
	}
	if m.PoolYes.Sign() < 0 {
		t.Errorf("poolYes went negative: %v", m.PoolYes)
	}
	checkVolumeInvariant(t, m)

	// Overselling the remainder fails without mutation.
	tooMany := new(big.Int).Add(wantShares, big.NewInt(1))
	if _, err := fx.engine.SellShares(ctx, testStart.Add(time.Hour), m, pos, aliceAddr, domain.OutcomeYes, tooMany); !errors.Is(err, domain.ErrInsufficientShares) {
		t.Errorf("oversell error = %v, want ErrInsufficientShares", err)
	}
}

func TestSellSharesRequiresActive(t *testing.T) {
	fx := newFixture(t)
	m := activeMarket(t)
	m.State = domain.MarketFinalized
	pos := domain.NewPosition(m.ID, aliceAddr)
	_, err := fx.engine.SellShares(context.Background(), testStart, m, pos, aliceAddr, domain.OutcomeYes, domain.Wad(1))
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("error = %v, want ErrInvalidState", err)
	}
}

func TestProposeLifecycle(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	resolveAt := testStart.Add(96 * time.Hour)

	t.Run("resolver role required", func(t *testing.T) {
		m := activeMarket(t)
		err := fx.engine.Propose(ctx, resolveAt, m, aliceAddr, domain.OutcomeYes)
		if !errors.Is(err, domain.ErrUnauthorized) {
			t.Errorf("error = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("too early", func(t *testing.T) {
		m := activeMarket(t)
		err := fx.engine.Propose(ctx, resolveAt.Add(-time.Second), m, resolverAddr, domain.OutcomeYes)
		if !errors.Is(err, domain.ErrResolutionTooEarly) {
			t.Errorf("error = %v, want ErrResolutionTooEarly", err)
		}
	})

	t.Run("happy path", func(t *testing.T) {
		m := activeMarket(t)
		if err := fx.engine.Propose(ctx, resolveAt, m, resolverAddr, domain.OutcomeYes); err != nil {
			t.Fatalf("Propose: %v", err)
		}
		if m.State != domain.MarketResolving {
			t.Errorf("state = %s, want resolving", m.State)
		}
		if m.ProposedOutcome != domain.OutcomeYes || m.ProposedBy != resolverAddr {
			t.Errorf("proposal = (%s, %s)", m.ProposedOutcome, m.ProposedBy.Hex())
		}
		if !m.ProposalAt.Equal(resolveAt) {
			t.Errorf("proposalAt = %v, want %v", m.ProposalAt, resolveAt)
		}
	})

	t.Run("wrong state", func(t *testing.T) {
		m := activeMarket(t)
		m.State = domain.MarketFinalized
		err := fx.engine.Propose(ctx, resolveAt, m, resolverAddr, domain.OutcomeYes)
		if !errors.Is(err, domain.ErrInvalidState) {
			t.Errorf("error = %v, want ErrInvalidState", err)
		}
	})
}

func TestFinalizeExpired(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	m := activeMarket(t)
	resolveAt := testStart.Add(96 * time.Hour)
	if err := fx.engine.Propose(ctx, resolveAt, m, resolverAddr, domain.OutcomeNo); err != nil {
		t.Fatalf("Propose: %v", err)
	}

	if err := fx.engine.FinalizeExpired(ctx, resolveAt.Add(time.Hour), m); !errors.Is(err, domain.ErrDisputeWindowOpen) {
		t.Errorf("early finalize error = %v, want ErrDisputeWindowOpen", err)
	}

	doneAt := resolveAt.Add(48 * time.Hour)
	if err := fx.engine.FinalizeExpired(ctx, doneAt, m); err != nil {
		t.Fatalf("FinalizeExpired: %v", err)
	}
	if m.State != domain.MarketFinalized {
		t.Errorf("state = %s, want finalized", m.State)
	}
	if m.Outcome != domain.OutcomeNo {
		t.Errorf("outcome = %s, want no", m.Outcome)
	}
	if m.Snapshot == nil {
		t.Fatal("no payout snapshot")
	}
	if m.Snapshot.WinningOutcome != domain.OutcomeNo {
		t.Errorf("snapshot outcome = %s, want no", m.Snapshot.WinningOutcome)
	}
	if !m.Snapshot.FinalizedAt.Equal(doneAt) {
		t.Errorf("finalizedAt = %v, want %v", m.Snapshot.FinalizedAt, doneAt)
	}
}

func TestAdminResolveRequiresDisputed(t *testing.T) {
	fx := newFixture(t)
	m := activeMarket(t)
	err := fx.engine.AdminResolve(context.Background(), testStart, m, adminAddr, domain.OutcomeYes)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("error = %v, want ErrInvalidState", err)
	}
}

func TestCancelAndRefund(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	m := activeMarket(t)
	pos := domain.NewPosition(m.ID, aliceAddr)

	bet, err := fx.engine.PlaceBet(ctx, testStart, m, pos, aliceAddr, domain.OutcomeYes, domain.Wad(10), 0)
	if err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}

	if err := fx.engine.Cancel(ctx, testStart.Add(time.Hour), m, aliceAddr); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("non-admin cancel = %v, want ErrUnauthorized", err)
	}
	if err := fx.engine.Cancel(ctx, testStart.Add(time.Hour), m, adminAddr); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if m.State != domain.MarketCancelled || m.Outcome != domain.OutcomeCancelled {
		t.Errorf("state = %s outcome = %s after cancel", m.State, m.Outcome)
	}

	balBefore, _ := fx.ledger.Balance(ctx, aliceAddr)
	refund, err := fx.engine.ClaimRefund(ctx, testStart.Add(2*time.Hour), m, pos, aliceAddr)
	if err != nil {
		t.Fatalf("ClaimRefund: %v", err)
	}
	if refund.Cmp(bet.NetStake) != 0 {
		t.Errorf("refund = %v, want net stake %v", refund, bet.NetStake)
	}
	balMid, _ := fx.ledger.Balance(ctx, aliceAddr)
	if balMid.Cmp(balBefore) != 0 {
		t.Errorf("claim moved value before disburse: %v -> %v", balBefore, balMid)
	}
	if err := fx.engine.Disburse(ctx, aliceAddr, refund); err != nil {
		t.Fatalf("Disburse: %v", err)
	}
	balAfter, _ := fx.ledger.Balance(ctx, aliceAddr)
	if new(big.Int).Sub(balAfter, balBefore).Cmp(refund) != 0 {
		t.Errorf("balance delta != refund")
	}

	if _, err := fx.engine.ClaimRefund(ctx, testStart.Add(3*time.Hour), m, pos, aliceAddr); !errors.Is(err, domain.ErrAlreadyClaimed) {
		t.Errorf("second refund = %v, want ErrAlreadyClaimed", err)
	}
}

func TestCancelFromTerminalStateFails(t *testing.T) {
	fx := newFixture(t)
	m := activeMarket(t)
	m.State = domain.MarketFinalized
	err := fx.engine.Cancel(context.Background(), testStart, m, adminAddr)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("error = %v, want ErrInvalidState", err)
	}
}

// settle moves an active market with positions through proposal and window
// expiry to finality.
func settle(t *testing.T, fx *fixture, m *domain.Market, outcome domain.Outcome) {
	t.Helper()
	ctx := context.Background()
	resolveAt := m.ResolutionTime
	if err := fx.engine.Propose(ctx, resolveAt, m, resolverAddr, outcome); err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if err := fx.engine.FinalizeExpired(ctx, resolveAt.Add(49*time.Hour), m); err != nil {
		t.Fatalf("FinalizeExpired: %v", err)
	}
}

func TestClaimWinningsParimutuel(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	m := activeMarket(t)
	alice := domain.NewPosition(m.ID, aliceAddr)
	bob := domain.NewPosition(m.ID, bobAddr)

	if _, err := fx.engine.PlaceBet(ctx, testStart, m, alice, aliceAddr, domain.OutcomeYes, domain.Wad(10), 0); err != nil {
		t.Fatalf("alice bet: %v", err)
	}
	if _, err := fx.engine.PlaceBet(ctx, testStart, m, bob, bobAddr, domain.OutcomeNo, domain.Wad(30), 0); err != nil {
		t.Fatalf("bob bet: %v", err)
	}
	settle(t, fx, m, domain.OutcomeYes)

	// Sole winner takes the entire pool.
	payout, err := fx.engine.ClaimWinnings(ctx, m.Snapshot.FinalizedAt, m, alice, aliceAddr)
	if err != nil {
		t.Fatalf("ClaimWinnings: %v", err)
	}
	if payout.Cmp(m.Snapshot.TotalPool) != 0 {
		t.Errorf("sole winner payout = %v, want full pool %v", payout, m.Snapshot.TotalPool)
	}

	if _, err := fx.engine.ClaimWinnings(ctx, m.Snapshot.FinalizedAt, m, alice, aliceAddr); !errors.Is(err, domain.ErrAlreadyClaimed) {
		t.Errorf("double claim = %v, want ErrAlreadyClaimed", err)
	}
	if _, err := fx.engine.ClaimWinnings(ctx, m.Snapshot.FinalizedAt, m, bob, bobAddr); !errors.Is(err, domain.ErrNoWinnings) {
		t.Errorf("loser claim = %v, want ErrNoWinnings", err)
	}
}

func TestClaimWinningsSplitsByShares(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	m := activeMarket(t)
	alice := domain.NewPosition(m.ID, aliceAddr)
	bob := domain.NewPosition(m.ID, bobAddr)

	aliceBet, err := fx.engine.PlaceBet(ctx, testStart, m, alice, aliceAddr, domain.OutcomeYes, domain.Wad(10), 0)
	if err != nil {
		t.Fatalf("alice bet: %v", err)
	}
	bobBet, err := fx.engine.PlaceBet(ctx, testStart, m, bob, bobAddr, domain.OutcomeYes, domain.Wad(10), 0)
	if err != nil {
		t.Fatalf("bob bet: %v", err)
	}
	settle(t, fx, m, domain.OutcomeYes)

	alicePay, err := fx.engine.ClaimWinnings(ctx, m.Snapshot.FinalizedAt, m, alice, aliceAddr)
	if err != nil {
		t.Fatalf("alice claim: %v", err)
	}
	bobPay, err := fx.engine.ClaimWinnings(ctx, m.Snapshot.FinalizedAt, m, bob, bobAddr)
	if err != nil {
		t.Fatalf("bob claim: %v", err)
	}

	// Alice bought first at better odds, so she holds more shares and takes
	// the larger slice; together the slices cannot exceed the pool.
	if aliceBet.Shares.Cmp(bobBet.Shares) <= 0 {
		t.Errorf("first buyer shares %v not above second buyer %v", aliceBet.Shares, bobBet.Shares)
	}
	if alicePay.Cmp(bobPay) <= 0 {
		t.Errorf("alice payout %v not above bob payout %v", alicePay, bobPay)
	}
	total := new(big.Int).Add(alicePay, bobPay)
	if total.Cmp(m.Snapshot.TotalPool) > 0 {
		t.Errorf("payouts %v exceed pool %v", total, m.Snapshot.TotalPool)
	}
}

func TestZeroWinnerPoolRefundsPrincipal(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	m := activeMarket(t)
	bob := domain.NewPosition(m.ID, bobAddr)

	bet, err := fx.engine.PlaceBet(ctx, testStart, m, bob, bobAddr, domain.OutcomeNo, domain.Wad(20), 0)
	if err != nil {
		t.Fatalf("bet: %v", err)
	}
	// Nobody bet yes, but yes wins.
	settle(t, fx, m, domain.OutcomeYes)

	if m.Snapshot.WinningShares.Sign() != 0 {
		t.Fatalf("winning shares = %v, want 0", m.Snapshot.WinningShares)
	}
	payout, err := fx.engine.ClaimWinnings(ctx, m.Snapshot.FinalizedAt, m, bob, bobAddr)
	if err != nil {
		t.Fatalf("ClaimWinnings: %v", err)
	}
	if payout.Cmp(bet.NetStake) != 0 {
		t.Errorf("zero-winner payout = %v, want principal %v", payout, bet.NetStake)
	}
}

func TestCalculatePayout(t *testing.T) {
	snap := &domain.PayoutSnapshot{
		WinningOutcome: domain.OutcomeYes,
		TotalPool:      domain.Wad(100),
		WinningPool:    domain.Wad(40),
		WinningShares:  domain.Wad(50),
	}
	pos := domain.NewPosition("m", aliceAddr)
	pos.SharesYes = domain.Wad(25)
	pos.TotalInvested = domain.Wad(20)

	// Half the winning shares takes half the total pool.
	got := CalculatePayout(snap, pos)
	if got.Cmp(domain.Wad(50)) != 0 {
		t.Errorf("payout = %v, want %v", got, domain.Wad(50))
	}

	loser := domain.NewPosition("m", bobAddr)
	loser.SharesNo = domain.Wad(10)
	loser.TotalInvested = domain.Wad(10)
	if got := CalculatePayout(snap, loser); got.Sign() != 0 {
		t.Errorf("loser payout = %v, want 0", got)
	}

	if got := CalculatePayout(nil, pos); got.Sign() != 0 {
		t.Errorf("nil snapshot payout = %v, want 0", got)
	}
}

func TestApprovalFlow(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	m := activeMarket(t)
	m.State = domain.MarketProposed

	if err := fx.engine.Activate(ctx, testStart, m, adminAddr); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("activate before approval = %v, want ErrInvalidState", err)
	}
	if err := fx.engine.Approve(ctx, testStart, m, aliceAddr); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("non-admin approve = %v, want ErrUnauthorized", err)
	}
	if err := fx.engine.Approve(ctx, testStart, m, adminAddr); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if m.State != domain.MarketApproved {
		t.Errorf("state = %s, want approved", m.State)
	}
	if err := fx.engine.Activate(ctx, testStart, m, adminAddr); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if m.State != domain.MarketActive {
		t.Errorf("state = %s, want active", m.State)
	}
}

func TestOdds(t *testing.T) {
	fx := newFixture(t)
	m := activeMarket(t)
	yes, no, err := fx.engine.Odds(m)
	if err != nil {
		t.Fatalf("Odds: %v", err)
	}
	if yes != 5000 || no != 5000 {
		t.Errorf("empty market odds = (%d, %d), want (5000, 5000)", yes, no)
	}
}
