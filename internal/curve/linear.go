package curve

import (
	"math/big"

	"github.com/kektech/marketd/internal/domain"
)

// Linear prices shares along price(q) = basePrice + slope*q and charges the
// exact trapezoid integral over the traded interval, so a buy and its
// immediate reversal net to zero. Odds are the outstanding-share ratio.
type Linear struct{}

var linearLayout = []uint{128, 128}

func (Linear) Name() string { return "Linear" }

// EncodeLinearParams packs (basePrice, slope), both wad.
func EncodeLinearParams(basePrice, slope *big.Int) (domain.CurveParams, error) {
	return packFields(linearLayout, basePrice, slope)
}

func (Linear) decode(params domain.CurveParams) (base, slope *big.Int, ok bool) {
	fields, ok := unpackFields(params, linearLayout)
	if !ok {
		return nil, nil, false
	}
	return fields[0], fields[1], true
}

func (c Linear) ValidateParams(params domain.CurveParams) (bool, string) {
	base, _, ok := c.decode(params)
	if !ok {
		return false, "malformed linear parameters"
	}
	if base.Sign() <= 0 {
		return false, "base price must be > 0"
	}
	return true, ""
}

// segment integrates price over [q, q+delta] by the trapezoid rule, which is
// exact for a linear integrand.
func (c Linear) segment(base, slope, q, delta *big.Int) *big.Int {
	p0 := new(big.Int).Add(base, mulWad(slope, q))
	p1 := new(big.Int).Add(base, mulWad(slope, new(big.Int).Add(q, delta)))
	sum := p0.Add(p0, p1)
	out := new(big.Int).Mul(delta, sum)
	return out.Quo(out, new(big.Int).Lsh(wad, 1))
}

func (c Linear) Cost(params domain.CurveParams, qYes, qNo *big.Int, outcome domain.Outcome, delta *big.Int) (*big.Int, error) {
	if err := checkOutcome(outcome); err != nil {
		return nil, err
	}
	if err := checkDelta(delta); err != nil {
		return nil, err
	}
	base, slope, ok := c.decode(params)
	if !ok || base.Sign() <= 0 {
		return nil, domain.ErrInvalidCurveParams
	}
	q, _ := sideSupply(qYes, qNo, outcome)
	cost := c.segment(base, slope, q, delta)
	if cost.Sign() <= 0 {
		return big.NewInt(1), nil
	}
	return cost, nil
}

func (c Linear) Refund(params domain.CurveParams, qYes, qNo *big.Int, outcome domain.Outcome, delta *big.Int) (*big.Int, error) {
	if err := checkOutcome(outcome); err != nil {
		return nil, err
	}
	if err := checkDelta(delta); err != nil {
		return nil, err
	}
	base, slope, ok := c.decode(params)
	if !ok || base.Sign() <= 0 {
		return nil, domain.ErrInvalidCurveParams
	}
	q, _ := sideSupply(qYes, qNo, outcome)
	if delta.Cmp(q) > 0 {
		return nil, domain.ErrInsufficientShares
	}
	start := new(big.Int).Sub(q, delta)
	return c.segment(base, slope, start, delta), nil
}

func (c Linear) Prices(params domain.CurveParams, qYes, qNo *big.Int) (int64, int64, error) {
	base, _, ok := c.decode(params)
	if !ok || base.Sign() <= 0 {
		return 0, 0, domain.ErrInvalidCurveParams
	}
	yes, no := ratioBps(qYes, qNo)
	return yes, no, nil
}
