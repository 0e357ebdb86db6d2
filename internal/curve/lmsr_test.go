package curve

import (
	"errors"
	"math/big"
	"testing"

	"github.com/kektech/marketd/internal/domain"
)

func mustLMSRParams(t *testing.T, whole int64) domain.CurveParams {
	t.Helper()
	params, err := EncodeLMSRParams(new(big.Int).Mul(big.NewInt(whole), wad))
	if err != nil {
		t.Fatalf("EncodeLMSRParams(%d): %v", whole, err)
	}
	return params
}

func TestLMSRValidateParams(t *testing.T) {
	tests := []struct {
		name string
		b    *big.Int
		want bool
	}{
		{"minimum b accepted", new(big.Int).Set(lmsrMinB), true},
		{"below minimum rejected", new(big.Int).Sub(lmsrMinB, big.NewInt(1)), false},
		{"maximum b accepted", new(big.Int).Set(lmsrMaxB), true},
		{"above maximum rejected", new(big.Int).Add(lmsrMaxB, big.NewInt(1)), false},
		{"default b accepted", new(big.Int).Mul(big.NewInt(100), wad), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, err := EncodeLMSRParams(tt.b)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			ok, reason := LMSR{}.ValidateParams(params)
			if ok != tt.want {
				t.Errorf("ValidateParams = %v (%s), want %v", ok, reason, tt.want)
			}
		})
	}

	if ok, _ := (LMSR{}).ValidateParams(domain.CurveParams{0x01}); ok {
		t.Error("short blob should be rejected")
	}
}

func TestLMSRInitialPrices(t *testing.T) {
	params := mustLMSRParams(t, 100)
	yes, no, err := LMSR{}.Prices(params, big.NewInt(0), big.NewInt(0))
	if err != nil {
		t.Fatalf("Prices: %v", err)
	}
	if yes != 5000 || no != 5000 {
		t.Errorf("empty market prices = (%d, %d), want (5000, 5000)", yes, no)
	}
}

func TestLMSRPricesSumAndShift(t *testing.T) {
	params := mustLMSRParams(t, 100)
	c := LMSR{}

	states := []struct {
		name      string
		qYes, qNo int64
		yesOverNo bool
	}{
		{"balanced", 50, 50, false},
		{"yes heavy", 200, 50, true},
		{"no heavy", 10, 400, false},
		{"extreme yes", 5000, 0, true},
	}
	for _, st := range states {
		t.Run(st.name, func(t *testing.T) {
			yes, no, err := c.Prices(params,
				new(big.Int).Mul(big.NewInt(st.qYes), wad),
				new(big.Int).Mul(big.NewInt(st.qNo), wad))
			if err != nil {
				t.Fatalf("Prices: %v", err)
			}
			if yes+no != 10000 {
				t.Errorf("yes+no = %d, want 10000", yes+no)
			}
			if st.yesOverNo && yes <= no {
				t.Errorf("yes = %d should exceed no = %d", yes, no)
			}
			if st.qYes == st.qNo && yes != 5000 {
				t.Errorf("balanced market yes = %d, want 5000", yes)
			}
		})
	}
}

func TestLMSRBuyingMovesPrice(t *testing.T) {
	params := mustLMSRParams(t, 100)
	c := LMSR{}

	qYes, qNo := big.NewInt(0), big.NewInt(0)
	before, _, err := c.Prices(params, qYes, qNo)
	if err != nil {
		t.Fatalf("Prices: %v", err)
	}
	delta := new(big.Int).Mul(big.NewInt(30), wad)
	after, _, err := c.Prices(params, delta, qNo)
	if err != nil {
		t.Fatalf("Prices: %v", err)
	}
	if after <= before {
		t.Errorf("yes price after buy = %d, want > %d", after, before)
	}
}

func TestLMSRCostMonotoneInDelta(t *testing.T) {
	params := mustLMSRParams(t, 100)
	c := LMSR{}
	zero := big.NewInt(0)

	small, err := c.Cost(params, zero, zero, domain.OutcomeYes, new(big.Int).Mul(big.NewInt(10), wad))
	if err != nil {
		t.Fatalf("Cost small: %v", err)
	}
	large, err := c.Cost(params, zero, zero, domain.OutcomeYes, new(big.Int).Mul(big.NewInt(20), wad))
	if err != nil {
		t.Fatalf("Cost large: %v", err)
	}
	if large.Cmp(small) <= 0 {
		t.Errorf("cost(20) = %v not greater than cost(10) = %v", large, small)
	}
}

func TestLMSRCostConvex(t *testing.T) {
	// The marginal price rises as same-side supply grows, so the second
	// tranche costs more than the first.
	params := mustLMSRParams(t, 100)
	c := LMSR{}
	zero := big.NewInt(0)
	delta := new(big.Int).Mul(big.NewInt(50), wad)

	first, err := c.Cost(params, zero, zero, domain.OutcomeYes, delta)
	if err != nil {
		t.Fatalf("Cost first: %v", err)
	}
	second, err := c.Cost(params, delta, zero, domain.OutcomeYes, delta)
	if err != nil {
		t.Fatalf("Cost second: %v", err)
	}
	if second.Cmp(first) <= 0 {
		t.Errorf("second tranche %v not pricier than first %v", second, first)
	}
}

func TestLMSRDeeperLiquidityCostsLess(t *testing.T) {
	c := LMSR{}
	zero := big.NewInt(0)
	delta := new(big.Int).Mul(big.NewInt(50), wad)

	shallow, err := c.Cost(mustLMSRParams(t, 10), zero, zero, domain.OutcomeYes, delta)
	if err != nil {
		t.Fatalf("Cost shallow: %v", err)
	}
	deep, err := c.Cost(mustLMSRParams(t, 1000), zero, zero, domain.OutcomeYes, delta)
	if err != nil {
		t.Fatalf("Cost deep: %v", err)
	}
	if deep.Cmp(shallow) >= 0 {
		t.Errorf("deep-liquidity cost %v not below shallow cost %v", deep, shallow)
	}
}

func TestLMSRBoundedLoss(t *testing.T) {
	// Pushing the market arbitrarily one-sided never costs the subsidy more
	// than b*ln2: total charge >= final payout liability - b*ln2.
	b := new(big.Int).Mul(big.NewInt(100), wad)
	params := mustLMSRParams(t, 100)
	c := LMSR{}
	zero := big.NewInt(0)

	delta := new(big.Int).Mul(big.NewInt(100_000), wad)
	charged, err := c.Cost(params, zero, zero, domain.OutcomeYes, delta)
	if err != nil {
		t.Fatalf("Cost: %v", err)
	}
	liability := delta // one wad per share if yes wins
	loss := new(big.Int).Sub(liability, charged)
	maxLoss := mulWad(b, lnTwo)
	if loss.Cmp(maxLoss) > 0 {
		t.Errorf("protocol loss %v exceeds b*ln2 = %v", loss, maxLoss)
	}
	if loss.Sign() < 0 {
		t.Errorf("loss %v negative, trader overcharged beyond liability", loss)
	}
}

func TestLMSRRefundNeverExceedsCost(t *testing.T) {
	params := mustLMSRParams(t, 100)
	c := LMSR{}
	zero := big.NewInt(0)

	for _, n := range []int64{1, 10, 75, 300} {
		delta := new(big.Int).Mul(big.NewInt(n), wad)
		cost, err := c.Cost(params, zero, zero, domain.OutcomeYes, delta)
		if err != nil {
			t.Fatalf("Cost(%d): %v", n, err)
		}
		refund, err := c.Refund(params, delta, zero, domain.OutcomeYes, delta)
		if err != nil {
			t.Fatalf("Refund(%d): %v", n, err)
		}
		if refund.Cmp(cost) > 0 {
			t.Errorf("refund %v exceeds cost %v for delta %d", refund, cost, n)
		}
	}
}

func TestLMSRRefundRejectsOversell(t *testing.T) {
	params := mustLMSRParams(t, 100)
	held := new(big.Int).Mul(big.NewInt(5), wad)
	_, err := LMSR{}.Refund(params, held, big.NewInt(0), domain.OutcomeYes,
		new(big.Int).Mul(big.NewInt(6), wad))
	if !errors.Is(err, domain.ErrInsufficientShares) {
		t.Errorf("oversell error = %v, want ErrInsufficientShares", err)
	}
}

func TestLMSRRejectsBadInputs(t *testing.T) {
	params := mustLMSRParams(t, 100)
	zero := big.NewInt(0)
	one := new(big.Int).Set(wad)

	if _, err := (LMSR{}).Cost(params, zero, zero, domain.OutcomeInvalid, one); !errors.Is(err, domain.ErrUnknownOutcome) {
		t.Errorf("invalid outcome error = %v, want ErrUnknownOutcome", err)
	}
	if _, err := (LMSR{}).Cost(params, zero, zero, domain.OutcomeYes, zero); !errors.Is(err, domain.ErrInvalidShareAmount) {
		t.Errorf("zero delta error = %v, want ErrInvalidShareAmount", err)
	}
	if _, err := (LMSR{}).Cost(params, zero, zero, domain.OutcomeYes, big.NewInt(-1)); !errors.Is(err, domain.ErrInvalidShareAmount) {
		t.Errorf("negative delta error = %v, want ErrInvalidShareAmount", err)
	}
	if _, err := (LMSR{}).Cost(domain.CurveParams{0xff}, zero, zero, domain.OutcomeYes, one); !errors.Is(err, domain.ErrInvalidCurveParams) {
		t.Errorf("bad params error = %v, want ErrInvalidCurveParams", err)
	}
}

func TestSharesForCostLMSR(t *testing.T) {
	params := mustLMSRParams(t, 100)
	c := LMSR{}
	zero := big.NewInt(0)
	budget := new(big.Int).Mul(big.NewInt(10), wad)

	shares, cost, err := SharesForCost(c, params, zero, zero, domain.OutcomeYes, budget)
	if err != nil {
		t.Fatalf("SharesForCost: %v", err)
	}
	if cost.Cmp(budget) > 0 {
		t.Errorf("cost %v exceeds budget %v", cost, budget)
	}
	if shares.Sign() <= 0 {
		t.Fatalf("shares = %v, want > 0", shares)
	}
	// At even odds ~0.5 per share, 10 units buys slightly under 20 shares.
	lowBound := new(big.Int).Mul(big.NewInt(15), wad)
	highBound := new(big.Int).Mul(big.NewInt(21), wad)
	if shares.Cmp(lowBound) < 0 || shares.Cmp(highBound) > 0 {
		t.Errorf("shares = %v, want within [%v, %v]", shares, lowBound, highBound)
	}

	// A meaningfully larger fill must blow the budget.
	over, err := c.Cost(params, zero, zero, domain.OutcomeYes, new(big.Int).Add(shares, big.NewInt(1_000_000_000)))
	if err != nil {
		t.Fatalf("Cost over: %v", err)
	}
	if over.Cmp(budget) <= 0 {
		t.Errorf("cost %v of a larger fill still within budget %v, bisection stopped early", over, budget)
	}
}

func TestSharesForCostRejectsZeroBudget(t *testing.T) {
	params := mustLMSRParams(t, 100)
	if _, _, err := SharesForCost(LMSR{}, params, big.NewInt(0), big.NewInt(0), domain.OutcomeYes, big.NewInt(0)); !errors.Is(err, domain.ErrBetTooSmall) {
		t.Errorf("zero budget error = %v, want ErrBetTooSmall", err)
	}
}
