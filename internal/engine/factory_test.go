package engine

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kektech/marketd/internal/curve"
	"github.com/kektech/marketd/internal/domain"
)

func validConfig() domain.MarketConfig {
	return domain.MarketConfig{
		Question:       "Will the rollout finish before June?",
		Description:    "Resolved by the public status page.",
		Category:       "tech",
		YesLabel:       "Yes",
		NoLabel:        "No",
		EndTime:        testStart.Add(30 * 24 * time.Hour),
		ResolutionTime: testStart.Add(31 * 24 * time.Hour),
	}
}

func minBond() *big.Int { return big.NewInt(100_000_000_000_000_000) }

func TestCreateMarket(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	m, record, err := fx.factory.CreateMarket(ctx, testStart, aliceAddr, validConfig(), minBond())
	if err != nil {
		t.Fatalf("CreateMarket: %v", err)
	}
	if m.State != domain.MarketActive {
		t.Errorf("state = %s, want active", m.State)
	}
	if m.CurveID != curve.IDLMSR {
		t.Errorf("curve = %s, want default %s", m.CurveID, curve.IDLMSR)
	}
	if m.ID == "" {
		t.Error("no market id assigned")
	}
	if !record.Held() {
		t.Error("bond not escrowed")
	}
	if record.HeldAmount.Cmp(minBond()) != 0 {
		t.Errorf("bond = %v, want %v", record.HeldAmount, minBond())
	}

	bal, _ := fx.ledger.Balance(ctx, aliceAddr)
	want := new(big.Int).Sub(domain.Wad(1000), minBond())
	if bal.Cmp(want) != 0 {
		t.Errorf("creator balance = %v, want %v", bal, want)
	}

	total, err := fx.factory.TotalHeldBonds(ctx)
	if err != nil {
		t.Fatalf("TotalHeldBonds: %v", err)
	}
	if total.Cmp(minBond()) != 0 {
		t.Errorf("total held = %v, want %v", total, minBond())
	}
}

func TestCreateMarketValidation(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(*domain.MarketConfig)
		bond    *big.Int
		wantErr error
	}{
		{
			name:    "question at limit accepted",
			mutate:  func(c *domain.MarketConfig) { c.Question = strings.Repeat("q", 500) },
			wantErr: nil,
		},
		{
			name:    "question over limit",
			mutate:  func(c *domain.MarketConfig) { c.Question = strings.Repeat("q", 501) },
			wantErr: domain.ErrInvalidQuestion,
		},
		{
			name:    "empty question",
			mutate:  func(c *domain.MarketConfig) { c.Question = "" },
			wantErr: domain.ErrInvalidQuestion,
		},
		{
			name:    "description at limit accepted",
			mutate:  func(c *domain.MarketConfig) { c.Description = strings.Repeat("d", 2000) },
			wantErr: nil,
		},
		{
			name:    "description over limit",
			mutate:  func(c *domain.MarketConfig) { c.Description = strings.Repeat("d", 2001) },
			wantErr: domain.ErrInvalidDescription,
		},
		{
			name:    "identical labels",
			mutate:  func(c *domain.MarketConfig) { c.NoLabel = c.YesLabel },
			wantErr: domain.ErrInvalidOutcomeLabels,
		},
		{
			name:    "labels differing only by case accepted",
			mutate:  func(c *domain.MarketConfig) { c.YesLabel, c.NoLabel = "Yes", "yes" },
			wantErr: nil,
		},
		{
			name:    "label over limit",
			mutate:  func(c *domain.MarketConfig) { c.YesLabel = strings.Repeat("y", 101) },
			wantErr: domain.ErrInvalidOutcomeLabels,
		},
		{
			name:    "empty label",
			mutate:  func(c *domain.MarketConfig) { c.NoLabel = "" },
			wantErr: domain.ErrInvalidOutcomeLabels,
		},
		{
			name:    "end time in the past",
			mutate:  func(c *domain.MarketConfig) { c.EndTime = testStart.Add(-time.Hour) },
			wantErr: domain.ErrInvalidEndTime,
		},
		{
			name: "resolution before end",
			mutate: func(c *domain.MarketConfig) {
				c.ResolutionTime = c.EndTime.Add(-time.Minute)
			},
			wantErr: domain.ErrInvalidEndTime,
		},
		{
			name: "resolution at horizon accepted",
			mutate: func(c *domain.MarketConfig) {
				c.ResolutionTime = testStart.Add(365 * 24 * time.Hour)
			},
			wantErr: nil,
		},
		{
			name: "resolution past horizon",
			mutate: func(c *domain.MarketConfig) {
				c.ResolutionTime = testStart.Add(365*24*time.Hour + time.Second)
			},
			wantErr: domain.ErrInvalidResolutionTime,
		},
		{
			name:    "bond below minimum",
			bond:    new(big.Int).Sub(minBond(), big.NewInt(1)),
			wantErr: domain.ErrInsufficientBond,
		},
		{
			name:    "nil bond",
			bond:    nil,
			wantErr: domain.ErrInsufficientBond,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			bond := tt.bond
			if bond == nil && tt.wantErr != domain.ErrInsufficientBond {
				bond = minBond()
			}
			_, _, err := fx.factory.CreateMarket(ctx, testStart, aliceAddr, cfg, bond)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("CreateMarket: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateMarketWithCurve(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	params, err := curve.EncodeLinearParams(big.NewInt(10_000_000_000_000_000), big.NewInt(1_000_000_000_000_000))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	m, _, err := fx.factory.CreateMarketWithCurve(ctx, testStart, aliceAddr, validConfig(), curve.IDLinear, params, minBond())
	if err != nil {
		t.Fatalf("CreateMarketWithCurve: %v", err)
	}
	if m.CurveID != curve.IDLinear {
		t.Errorf("curve = %s, want linear", m.CurveID)
	}

	t.Run("unknown curve", func(t *testing.T) {
		_, _, err := fx.factory.CreateMarketWithCurve(ctx, testStart, aliceAddr, validConfig(), "parabolic", params, minBond())
		if !errors.Is(err, domain.ErrCurveNotFound) {
			t.Errorf("error = %v, want ErrCurveNotFound", err)
		}
	})

	t.Run("invalid params", func(t *testing.T) {
		bad, _ := curve.EncodeLinearParams(big.NewInt(0), big.NewInt(1))
		_, _, err := fx.factory.CreateMarketWithCurve(ctx, testStart, aliceAddr, validConfig(), curve.IDLinear, bad, minBond())
		if !errors.Is(err, domain.ErrInvalidCurveParams) {
			t.Errorf("error = %v, want ErrInvalidCurveParams", err)
		}
	})
}

func TestCreateMarketInactiveCurve(t *testing.T) {
	fx := newFixture(t)
	curves := &testCurves{inactive: map[string]bool{curve.IDSigmoid: true}}
	factory := NewFactory(curves, fx.roles, fx.params, fx.ledger, fx.bonds, slog.Default())

	minP := big.NewInt(10_000_000_000_000_000)
	maxP := big.NewInt(990_000_000_000_000_000)
	params, _ := curve.EncodeSigmoidParams(minP, maxP, 10, domain.Wad(100))
	_, _, err := factory.CreateMarketWithCurve(context.Background(), testStart, aliceAddr, validConfig(), curve.IDSigmoid, params, minBond())
	if !errors.Is(err, domain.ErrCurveInactive) {
		t.Errorf("error = %v, want ErrCurveInactive", err)
	}
}

func TestFactoryPause(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if err := fx.factory.Pause(ctx, aliceAddr); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("non-pauser pause = %v, want ErrUnauthorized", err)
	}
	if err := fx.factory.Pause(ctx, pauserAddr); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if !fx.factory.Paused() {
		t.Error("factory not paused")
	}

	// Both creation paths fail closed.
	if _, _, err := fx.factory.CreateMarket(ctx, testStart, aliceAddr, validConfig(), minBond()); !errors.Is(err, domain.ErrFactoryPaused) {
		t.Errorf("create while paused = %v, want ErrFactoryPaused", err)
	}
	params, _ := curve.EncodeLMSRParams(domain.Wad(100))
	if _, _, err := fx.factory.CreateMarketWithCurve(ctx, testStart, aliceAddr, validConfig(), curve.IDLMSR, params, minBond()); !errors.Is(err, domain.ErrFactoryPaused) {
		t.Errorf("curve create while paused = %v, want ErrFactoryPaused", err)
	}

	if err := fx.factory.Unpause(ctx, pauserAddr); err != nil {
		t.Fatalf("Unpause: %v", err)
	}
	if _, _, err := fx.factory.CreateMarket(ctx, testStart, aliceAddr, validConfig(), minBond()); err != nil {
		t.Errorf("create after unpause: %v", err)
	}
}

func TestFactoryCreationFlags(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.params.bools[domain.ParamMarketCreationActive] = false
	if _, _, err := fx.factory.CreateMarket(ctx, testStart, aliceAddr, validConfig(), minBond()); !errors.Is(err, domain.ErrCreationDisabled) {
		t.Errorf("creation disabled = %v, want ErrCreationDisabled", err)
	}
	fx.params.bools[domain.ParamMarketCreationActive] = true

	fx.params.bools[domain.ParamEmergencyPause] = true
	if _, _, err := fx.factory.CreateMarket(ctx, testStart, aliceAddr, validConfig(), minBond()); !errors.Is(err, domain.ErrFactoryPaused) {
		t.Errorf("emergency pause = %v, want ErrFactoryPaused", err)
	}
}

func TestFactoryRequireApproval(t *testing.T) {
	fx := newFixture(t)
	fx.params.bools[domain.ParamRequireApproval] = true

	m, _, err := fx.factory.CreateMarket(context.Background(), testStart, aliceAddr, validConfig(), minBond())
	if err != nil {
		t.Fatalf("CreateMarket: %v", err)
	}
	if m.State != domain.MarketProposed {
		t.Errorf("state = %s, want proposed", m.State)
	}
}

func TestRefundCreatorBond(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	m, _, err := fx.factory.CreateMarket(ctx, testStart, aliceAddr, validConfig(), minBond())
	if err != nil {
		t.Fatalf("CreateMarket: %v", err)
	}

	if _, err := fx.factory.RefundCreatorBond(ctx, testStart, aliceAddr, m.ID); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("non-operator refund = %v, want ErrUnauthorized", err)
	}

	balBefore, _ := fx.ledger.Balance(ctx, aliceAddr)
	released, err := fx.factory.RefundCreatorBond(ctx, testStart.Add(time.Hour), operatorAddr, m.ID)
	if err != nil {
		t.Fatalf("RefundCreatorBond: %v", err)
	}
	if released.HeldAmount.Cmp(minBond()) != 0 {
		t.Errorf("released = %v, want %v", released.HeldAmount, minBond())
	}
	balAfter, _ := fx.ledger.Balance(ctx, aliceAddr)
	if new(big.Int).Sub(balAfter, balBefore).Cmp(minBond()) != 0 {
		t.Error("creator not credited with bond")
	}

	if _, err := fx.factory.RefundCreatorBond(ctx, testStart.Add(2*time.Hour), operatorAddr, m.ID); !errors.Is(err, domain.ErrNoBondHeld) {
		t.Errorf("second refund = %v, want ErrNoBondHeld", err)
	}

	record, err := fx.factory.HeldBond(ctx, m.ID)
	if err != nil {
		t.Fatalf("HeldBond: %v", err)
	}
	if record.Held() {
		t.Error("bond still held after refund")
	}
	if record.RefundedAt == nil {
		t.Error("refund time not stamped")
	}
}

func TestCreateMarketUnfundedCreatorLeavesNoEscrow(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	pauper := common.HexToAddress("0x0000000000000000000000000000000000000b03")

	_, _, err := fx.factory.CreateMarket(ctx, testStart, pauper, validConfig(), minBond())
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("error = %v, want ErrInsufficientFunds", err)
	}

	total, err := fx.factory.TotalHeldBonds(ctx)
	if err != nil {
		t.Fatalf("TotalHeldBonds: %v", err)
	}
	if total.Sign() != 0 {
		t.Errorf("total held = %v after failed escrow, want 0", total)
	}
	if len(fx.bonds.rows) != 0 {
		t.Errorf("bond rows = %d after failed escrow, want none", len(fx.bonds.rows))
	}
}
