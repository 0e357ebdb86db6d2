package curve

import (
	"errors"
	"math/big"
	"testing"

	"github.com/kektech/marketd/internal/domain"
)

func wadOf(n int64) *big.Int { return new(big.Int).Mul(big.NewInt(n), wad) }

func TestLinearValidateParams(t *testing.T) {
	tests := []struct {
		name        string
		base, slope *big.Int
		want        bool
	}{
		{"positive base and slope", wadOf(1), wadOf(1), true},
		{"zero slope allowed", wadOf(1), big.NewInt(0), true},
		{"zero base rejected", big.NewInt(0), wadOf(1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, err := EncodeLinearParams(tt.base, tt.slope)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			ok, reason := Linear{}.ValidateParams(params)
			if ok != tt.want {
				t.Errorf("ValidateParams = %v (%s), want %v", ok, reason, tt.want)
			}
		})
	}
}

func TestLinearCostIsExactTrapezoid(t *testing.T) {
	// base 0.01, slope 0.001 per share: ten shares from empty cost
	// 10*base + 50*slope = 0.15.
	base := new(big.Int).Div(wad, big.NewInt(100))
	slope := new(big.Int).Div(wad, big.NewInt(1000))
	params, err := EncodeLinearParams(base, slope)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	cost, err := Linear{}.Cost(params, big.NewInt(0), big.NewInt(0), domain.OutcomeYes, wadOf(10))
	if err != nil {
		t.Fatalf("Cost: %v", err)
	}
	want := big.NewInt(150_000_000_000_000_000)
	if cost.Cmp(want) != 0 {
		t.Errorf("cost = %v, want %v", cost, want)
	}
}

func TestLinearRefundReversesCost(t *testing.T) {
	base := new(big.Int).Div(wad, big.NewInt(100))
	slope := new(big.Int).Div(wad, big.NewInt(1000))
	params, err := EncodeLinearParams(base, slope)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	c := Linear{}
	delta := wadOf(25)

	cost, err := c.Cost(params, big.NewInt(0), big.NewInt(0), domain.OutcomeNo, delta)
	if err != nil {
		t.Fatalf("Cost: %v", err)
	}
	refund, err := c.Refund(params, big.NewInt(0), delta, domain.OutcomeNo, delta)
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if refund.Cmp(cost) != 0 {
		t.Errorf("refund %v != cost %v, trapezoid should reverse exactly", refund, cost)
	}

	if _, err := c.Refund(params, big.NewInt(0), delta, domain.OutcomeNo, wadOf(26)); !errors.Is(err, domain.ErrInsufficientShares) {
		t.Errorf("oversell error = %v, want ErrInsufficientShares", err)
	}
}

func TestExponentialValidateParams(t *testing.T) {
	base := new(big.Int).Div(wad, big.NewInt(100))
	tests := []struct {
		name   string
		base   *big.Int
		growth int64
		scale  *big.Int
		want   bool
	}{
		{"typical", base, 1000, wadOf(100), true},
		{"max growth accepted", base, maxGrowthBps, wadOf(100), true},
		{"above max growth rejected", base, maxGrowthBps + 1, wadOf(100), false},
		{"zero growth rejected", base, 0, wadOf(100), false},
		{"zero base rejected", big.NewInt(0), 1000, wadOf(100), false},
		{"zero scale rejected", base, 1000, big.NewInt(0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, err := EncodeExponentialParams(tt.base, tt.growth, tt.scale)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			ok, reason := Exponential{}.ValidateParams(params)
			if ok != tt.want {
				t.Errorf("ValidateParams = %v (%s), want %v", ok, reason, tt.want)
			}
		})
	}
}

func TestExponentialCostGrowsWithSupply(t *testing.T) {
	base := new(big.Int).Div(wad, big.NewInt(100))
	params, err := EncodeExponentialParams(base, 1000, wadOf(100))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	c := Exponential{}
	delta := wadOf(100)

	first, err := c.Cost(params, big.NewInt(0), big.NewInt(0), domain.OutcomeYes, delta)
	if err != nil {
		t.Fatalf("Cost first: %v", err)
	}
	second, err := c.Cost(params, delta, big.NewInt(0), domain.OutcomeYes, delta)
	if err != nil {
		t.Fatalf("Cost second: %v", err)
	}
	if second.Cmp(first) <= 0 {
		t.Errorf("second tranche %v not pricier than first %v", second, first)
	}

	refund, err := c.Refund(params, delta, big.NewInt(0), domain.OutcomeYes, delta)
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if refund.Cmp(first) > 0 {
		t.Errorf("refund %v exceeds matching cost %v", refund, first)
	}
}

func TestExponentialRefund(t *testing.T) {
	base := new(big.Int).Div(wad, big.NewInt(100))
	params, err := EncodeExponentialParams(base, 1000, wadOf(100))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	c := Exponential{}
	delta := wadOf(100)

	cost, err := c.Cost(params, big.NewInt(0), big.NewInt(0), domain.OutcomeYes, delta)
	if err != nil {
		t.Fatalf("Cost: %v", err)
	}
	refund, err := c.Refund(params, delta, big.NewInt(0), domain.OutcomeYes, delta)
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if refund.Cmp(cost) > 0 {
		t.Errorf("refund %v exceeds cost %v", refund, cost)
	}
	if refund.Sign() <= 0 {
		t.Errorf("refund = %v, want > 0", refund)
	}

	if _, err := c.Refund(params, delta, big.NewInt(0), domain.OutcomeYes, wadOf(101)); !errors.Is(err, domain.ErrInsufficientShares) {
		t.Errorf("oversell error = %v, want ErrInsufficientShares", err)
	}
}

func TestExponentialRejectsOverflowingTrade(t *testing.T) {
	base := new(big.Int).Div(wad, big.NewInt(100))
	params, err := EncodeExponentialParams(base, 1000, wadOf(1))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	_, err = Exponential{}.Cost(params, big.NewInt(0), big.NewInt(0), domain.OutcomeYes, wadOf(1_000_000))
	if !errors.Is(err, domain.ErrTradeTooLarge) {
		t.Errorf("overflow error = %v, want ErrTradeTooLarge", err)
	}
}

func TestSigmoidValidateParams(t *testing.T) {
	minP := new(big.Int).Div(wad, big.NewInt(100))
	maxP := new(big.Int).Sub(wad, minP)
	tests := []struct {
		name       string
		minP, maxP *big.Int
		steep      int64
		inflection *big.Int
		want       bool
	}{
		{"typical", minP, maxP, 10, wadOf(100), true},
		{"steepness floor", minP, maxP, 1, wadOf(100), true},
		{"steepness ceiling", minP, maxP, 100, wadOf(100), true},
		{"steepness above ceiling", minP, maxP, 101, wadOf(100), false},
		{"zero steepness", minP, maxP, 0, wadOf(100), false},
		{"zero min price", big.NewInt(0), maxP, 10, wadOf(100), false},
		{"max below min", maxP, minP, 10, wadOf(100), false},
		{"max equals min", minP, minP, 10, wadOf(100), false},
		{"zero inflection", minP, maxP, 10, big.NewInt(0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, err := EncodeSigmoidParams(tt.minP, tt.maxP, tt.steep, tt.inflection)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			ok, reason := Sigmoid{}.ValidateParams(params)
			if ok != tt.want {
				t.Errorf("ValidateParams = %v (%s), want %v", ok, reason, tt.want)
			}
		})
	}
}

func TestSigmoidSymmetricSpanCost(t *testing.T) {
	// Integrating across a span symmetric around the inflection point
	// averages the floor and ceiling: cost(0 .. 2i) = (min+max)*i.
	minP := new(big.Int).Div(wad, big.NewInt(100))
	maxP := new(big.Int).Sub(wad, minP)
	inflection := wadOf(100)
	params, err := EncodeSigmoidParams(minP, maxP, 1, inflection)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	cost, err := Sigmoid{}.Cost(params, big.NewInt(0), big.NewInt(0), domain.OutcomeYes, wadOf(200))
	if err != nil {
		t.Fatalf("Cost: %v", err)
	}
	want := mulWad(new(big.Int).Add(minP, maxP), inflection)
	if !within(cost, want, 1_000_000) {
		t.Errorf("symmetric span cost = %v, want %v", cost, want)
	}
}

func TestSigmoidPriceRisesThroughInflection(t *testing.T) {
	minP := new(big.Int).Div(wad, big.NewInt(100))
	maxP := new(big.Int).Sub(wad, minP)
	inflection := wadOf(100)
	params, err := EncodeSigmoidParams(minP, maxP, 1, inflection)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	c := Sigmoid{}
	delta := wadOf(20)

	below, err := c.Cost(params, wadOf(50), big.NewInt(0), domain.OutcomeYes, delta)
	if err != nil {
		t.Fatalf("Cost below inflection: %v", err)
	}
	above, err := c.Cost(params, wadOf(120), big.NewInt(0), domain.OutcomeYes, delta)
	if err != nil {
		t.Fatalf("Cost above inflection: %v", err)
	}
	if above.Cmp(below) <= 0 {
		t.Errorf("cost above inflection %v not greater than below %v", above, below)
	}
}

func TestSigmoidRefund(t *testing.T) {
	minP := new(big.Int).Div(wad, big.NewInt(100))
	maxP := new(big.Int).Sub(wad, minP)
	params, err := EncodeSigmoidParams(minP, maxP, 5, wadOf(50))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	c := Sigmoid{}
	delta := wadOf(40)

	cost, err := c.Cost(params, big.NewInt(0), big.NewInt(0), domain.OutcomeYes, delta)
	if err != nil {
		t.Fatalf("Cost: %v", err)
	}
	refund, err := c.Refund(params, delta, big.NewInt(0), domain.OutcomeYes, delta)
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if refund.Cmp(cost) > 0 {
		t.Errorf("refund %v exceeds cost %v", refund, cost)
	}
	if refund.Sign() <= 0 {
		t.Errorf("refund = %v, want > 0", refund)
	}

	if _, err := c.Refund(params, delta, big.NewInt(0), domain.OutcomeYes, wadOf(41)); !errors.Is(err, domain.ErrInsufficientShares) {
		t.Errorf("oversell error = %v, want ErrInsufficientShares", err)
	}
}

func TestAllCurvesPriceSumInvariant(t *testing.T) {
	minP := new(big.Int).Div(wad, big.NewInt(100))
	maxP := new(big.Int).Sub(wad, minP)

	lmsrParams, _ := EncodeLMSRParams(wadOf(100))
	linParams, _ := EncodeLinearParams(minP, new(big.Int).Div(wad, big.NewInt(1000)))
	expParams, _ := EncodeExponentialParams(minP, 1000, wadOf(100))
	sigParams, _ := EncodeSigmoidParams(minP, maxP, 10, wadOf(100))

	curves := []struct {
		name   string
		impl   BondingCurve
		params domain.CurveParams
	}{
		{"lmsr", LMSR{}, lmsrParams},
		{"linear", Linear{}, linParams},
		{"exponential", Exponential{}, expParams},
		{"sigmoid", Sigmoid{}, sigParams},
	}
	states := [][2]int64{{0, 0}, {1, 0}, {0, 1}, {33, 67}, {500, 2}}

	for _, cv := range curves {
		t.Run(cv.name, func(t *testing.T) {
			for _, st := range states {
				yes, no, err := cv.impl.Prices(cv.params, wadOf(st[0]), wadOf(st[1]))
				if err != nil {
					t.Fatalf("Prices(%d, %d): %v", st[0], st[1], err)
				}
				if yes+no != 10000 {
					t.Errorf("state (%d, %d): yes+no = %d, want 10000", st[0], st[1], yes+no)
				}
				if yes < 0 || yes > 10000 {
					t.Errorf("state (%d, %d): yes = %d out of range", st[0], st[1], yes)
				}
			}
		})
	}
}
