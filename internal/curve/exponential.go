package curve

import (
	"math/big"

	"github.com/kektech/marketd/internal/domain"
)

// Exponential prices shares along price(q) = basePrice * (1+g)^(q/scale),
// where g is the per-period growth rate in basis points and scale is the
// share count per period. The charge is the closed-form integral
// base*scale/ln(1+g) * ((1+g)^{(q+d)/s} - (1+g)^{q/s}).
type Exponential struct{}

var expLayout = []uint{128, 32, 96}

// maxGrowthBps caps growth at 500% per period.
const maxGrowthBps = 50000

func (Exponential) Name() string { return "Exponential" }

// EncodeExponentialParams packs (basePrice wad, growthRateBps, scale wad).
func EncodeExponentialParams(basePrice *big.Int, growthRateBps int64, scale *big.Int) (domain.CurveParams, error) {
	return packFields(expLayout, basePrice, big.NewInt(growthRateBps), scale)
}

func (Exponential) decode(params domain.CurveParams) (base, growthBps, scale *big.Int, ok bool) {
	fields, ok := unpackFields(params, expLayout)
	if !ok {
		return nil, nil, nil, false
	}
	return fields[0], fields[1], fields[2], true
}

func (c Exponential) ValidateParams(params domain.CurveParams) (bool, string) {
	base, growth, scale, ok := c.decode(params)
	if !ok {
		return false, "malformed exponential parameters"
	}
	if base.Sign() <= 0 {
		return false, "base price must be > 0"
	}
	if growth.Sign() <= 0 {
		return false, "growth rate must be > 0"
	}
	if growth.Cmp(big.NewInt(maxGrowthBps)) > 0 {
		return false, "growth rate too high"
	}
	if scale.Sign() <= 0 {
		return false, "scale must be > 0"
	}
	return true, ""
}

// growthFactor returns (1+g)^(q/scale) = e^{(q/scale)*ln(1+g)}.
func (c Exponential) growthFactor(growthBps, scale, q *big.Int) (*big.Int, error) {
	g := new(big.Int).Mul(growthBps, wad)
	g.Quo(g, bpsUnit)
	ln1pg, err := wadLn(new(big.Int).Add(wad, g))
	if err != nil {
		return nil, err
	}
	exponent := mulWad(divWad(q, scale), ln1pg)
	out, err := wadExp(exponent)
	if err != nil {
		return nil, domain.ErrTradeTooLarge
	}
	return out, nil
}

func (c Exponential) integral(base, growthBps, scale, from, delta *big.Int) (*big.Int, error) {
	g := new(big.Int).Mul(growthBps, wad)
	g.Quo(g, bpsUnit)
	ln1pg, err := wadLn(new(big.Int).Add(wad, g))
	if err != nil {
		return nil, err
	}
	f0, err := c.growthFactor(growthBps, scale, from)
	if err != nil {
		return nil, err
	}
	f1, err := c.growthFactor(growthBps, scale, new(big.Int).Add(from, delta))
	if err != nil {
		return nil, err
	}
	diff := f1.Sub(f1, f0)
	term := mulWad(divWad(scale, ln1pg), diff)
	return mulWad(base, term), nil
}

func (c Exponential) Cost(params domain.CurveParams, qYes, qNo *big.Int, outcome domain.Outcome, delta *big.Int) (*big.Int, error) {
	if err := checkOutcome(outcome); err != nil {
		return nil, err
	}
	if err := checkDelta(delta); err != nil {
		return nil, err
	}
	base, growth, scale, ok := c.decode(params)
	if !ok || base.Sign() <= 0 || growth.Sign() <= 0 || scale.Sign() <= 0 {
		return nil, domain.ErrInvalidCurveParams
	}
	q, _ := sideSupply(qYes, qNo, outcome)
	cost, err := c.integral(base, growth, scale, q, delta)
	if err != nil {
		return nil, err
	}
	if cost.Sign() <= 0 {
		return big.NewInt(1), nil
	}
	return cost, nil
}

func (c Exponential) Refund(params domain.CurveParams, qYes, qNo *big.Int, outcome domain.Outcome, delta *big.Int) (*big.Int, error) {
	if err := checkOutcome(outcome); err != nil {
		return nil, err
	}
	if err := checkDelta(delta); err != nil {
		return nil, err
	}
	base, growth, scale, ok := c.decode(params)
	if !ok || base.Sign() <= 0 || growth.Sign() <= 0 || scale.Sign() <= 0 {
		return nil, domain.ErrInvalidCurveParams
	}
	q, _ := sideSupply(qYes, qNo, outcome)
	if delta.Cmp(q) > 0 {
		return nil, domain.ErrInsufficientShares
	}
	start := new(big.Int).Sub(q, delta)
	refund, err := c.integral(base, growth, scale, start, delta)
	if err != nil {
		return nil, err
	}
	if refund.Sign() < 0 {
		refund.SetInt64(0)
	}
	return refund, nil
}

func (c Exponential) Prices(params domain.CurveParams, qYes, qNo *big.Int) (int64, int64, error) {
	base, growth, scale, ok := c.decode(params)
	if !ok || base.Sign() <= 0 || growth.Sign() <= 0 || scale.Sign() <= 0 {
		return 0, 0, domain.ErrInvalidCurveParams
	}
	yes, no := ratioBps(qYes, qNo)
	return yes, no, nil
}
