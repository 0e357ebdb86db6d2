package curve

import (
	"math/big"

	"github.com/kektech/marketd/internal/domain"
)

// LMSR is the logarithmic market scoring rule, the default pricing strategy.
// Parameter b (liquidity depth) bounds the protocol's worst-case loss at
// b*ln(2) regardless of trade size: C(q) = b*ln(e^{qYes/b} + e^{qNo/b}),
// price_i = e^{q_i/b} / sum_j e^{q_j/b}.
type LMSR struct{}

var lmsrLayout = []uint{256}

// Liquidity-parameter bounds: 0.001 to 1,000,000 whole units.
var (
	lmsrMinB = new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil)
	lmsrMaxB = new(big.Int).Mul(big.NewInt(1_000_000), wad)
)

func (LMSR) Name() string { return "LMSR" }

// EncodeLMSRParams packs the liquidity parameter b into a parameter blob.
func EncodeLMSRParams(b *big.Int) (domain.CurveParams, error) {
	return packFields(lmsrLayout, b)
}

func (LMSR) decode(params domain.CurveParams) (*big.Int, bool) {
	fields, ok := unpackFields(params, lmsrLayout)
	if !ok {
		return nil, false
	}
	return fields[0], true
}

func (c LMSR) ValidateParams(params domain.CurveParams) (bool, string) {
	b, ok := c.decode(params)
	if !ok {
		return false, "malformed LMSR parameters"
	}
	if b.Cmp(lmsrMinB) < 0 || b.Cmp(lmsrMaxB) > 0 {
		return false, "liquidity parameter b out of range"
	}
	return true, ""
}

// costAt evaluates C(qYes, qNo) with the log-sum-exp trick so the
// exponential argument is never positive:
// C = max(q) + b*ln(1 + e^{-(max-min)/b}).
func (c LMSR) costAt(b, qYes, qNo *big.Int) (*big.Int, error) {
	hi, lo := qYes, qNo
	if hi.Cmp(lo) < 0 {
		hi, lo = lo, hi
	}
	d := divWad(new(big.Int).Sub(hi, lo), b)
	tail, err := wadLn(new(big.Int).Add(wad, wadExpNeg(d)))
	if err != nil {
		return nil, err
	}
	return new(big.Int).Add(hi, mulWad(b, tail)), nil
}

func (c LMSR) Cost(params domain.CurveParams, qYes, qNo *big.Int, outcome domain.Outcome, delta *big.Int) (*big.Int, error) {
	if err := checkOutcome(outcome); err != nil {
		return nil, err
	}
	if err := checkDelta(delta); err != nil {
		return nil, err
	}
	b, ok := c.decode(params)
	if !ok || b.Cmp(lmsrMinB) < 0 || b.Cmp(lmsrMaxB) > 0 {
		return nil, domain.ErrInvalidCurveParams
	}

	before, err := c.costAt(b, qYes, qNo)
	if err != nil {
		return nil, err
	}
	aYes, aNo := bump(qYes, qNo, outcome, delta)
	after, err := c.costAt(b, aYes, aNo)
	if err != nil {
		return nil, err
	}

	cost := after.Sub(after, before)
	if cost.Sign() <= 0 {
		// Rounding floor: a positive trade is never free.
		return big.NewInt(1), nil
	}
	return cost, nil
}

func (c LMSR) Refund(params domain.CurveParams, qYes, qNo *big.Int, outcome domain.Outcome, delta *big.Int) (*big.Int, error) {
	if err := checkOutcome(outcome); err != nil {
		return nil, err
	}
	if err := checkDelta(delta); err != nil {
		return nil, err
	}
	b, ok := c.decode(params)
	if !ok || b.Cmp(lmsrMinB) < 0 || b.Cmp(lmsrMaxB) > 0 {
		return nil, domain.ErrInvalidCurveParams
	}
	q, _ := sideSupply(qYes, qNo, outcome)
	if delta.Cmp(q) > 0 {
		return nil, domain.ErrInsufficientShares
	}

	before, err := c.costAt(b, qYes, qNo)
	if err != nil {
		return nil, err
	}
	aYes, aNo := bump(qYes, qNo, outcome, new(big.Int).Neg(delta))
	after, err := c.costAt(b, aYes, aNo)
	if err != nil {
		return nil, err
	}

	refund := before.Sub(before, after)
	if refund.Sign() < 0 {
		refund.SetInt64(0)
	}
	return refund, nil
}

func (c LMSR) Prices(params domain.CurveParams, qYes, qNo *big.Int) (int64, int64, error) {
	b, ok := c.decode(params)
	if !ok || b.Cmp(lmsrMinB) < 0 || b.Cmp(lmsrMaxB) > 0 {
		return 0, 0, domain.ErrInvalidCurveParams
	}
	// Normalise by max(q) so both numerators are e^{non-positive}.
	hi := qYes
	if qNo.Cmp(hi) > 0 {
		hi = qNo
	}
	nYes := wadExpNeg(divWad(new(big.Int).Sub(hi, qYes), b))
	nNo := wadExpNeg(divWad(new(big.Int).Sub(hi, qNo), b))
	yes, no := ratioBps(nYes, nNo)
	return yes, no, nil
}

// bump applies a signed share delta to the traded side.
func bump(qYes, qNo *big.Int, outcome domain.Outcome, delta *big.Int) (*big.Int, *big.Int) {
	if outcome == domain.OutcomeYes {
		return new(big.Int).Add(qYes, delta), new(big.Int).Set(qNo)
	}
	return new(big.Int).Set(qYes), new(big.Int).Add(qNo, delta)
}
