package curve

import (
	"math/big"

	"github.com/kektech/marketd/internal/domain"
)

// Sigmoid prices shares along a logistic curve between a floor and a
// ceiling: price(q) = minPrice + (maxPrice-minPrice) * sigma(k*(q-i)),
// where k is the steepness and i the inflection point. The charge is the
// closed-form softplus integral, exact up to wad rounding.
type Sigmoid struct{}

var sigmoidLayout = []uint{64, 64, 32, 96}

const (
	minSteepness = 1
	maxSteepness = 100
)

func (Sigmoid) Name() string { return "Sigmoid" }

// EncodeSigmoidParams packs (minPrice wad, maxPrice wad, steepness,
// inflection wad shares).
func EncodeSigmoidParams(minPrice, maxPrice *big.Int, steepness int64, inflection *big.Int) (domain.CurveParams, error) {
	return packFields(sigmoidLayout, minPrice, maxPrice, big.NewInt(steepness), inflection)
}

func (Sigmoid) decode(params domain.CurveParams) (minP, maxP, steep, inflection *big.Int, ok bool) {
	fields, ok := unpackFields(params, sigmoidLayout)
	if !ok {
		return nil, nil, nil, nil, false
	}
	return fields[0], fields[1], fields[2], fields[3], true
}

func (c Sigmoid) ValidateParams(params domain.CurveParams) (bool, string) {
	minP, maxP, steep, inflection, ok := c.decode(params)
	if !ok {
		return false, "malformed sigmoid parameters"
	}
	if minP.Sign() <= 0 {
		return false, "min price must be > 0"
	}
	if maxP.Cmp(minP) <= 0 {
		return false, "max price must exceed min price"
	}
	if steep.Cmp(big.NewInt(minSteepness)) < 0 || steep.Cmp(big.NewInt(maxSteepness)) > 0 {
		return false, "steepness out of range"
	}
	if inflection.Sign() <= 0 {
		return false, "inflection must be > 0"
	}
	return true, ""
}

// integral evaluates the antiderivative difference over [from, from+delta]:
// min*delta + (max-min)/k * (softplus(k*(q1-i)) - softplus(k*(q0-i))).
func (c Sigmoid) integral(minP, maxP, steep, inflection, from, delta *big.Int) (*big.Int, error) {
	s0 := new(big.Int).Sub(from, inflection)
	s0.Mul(s0, steep)
	s1 := new(big.Int).Add(from, delta)
	s1.Sub(s1, inflection)
	s1.Mul(s1, steep)

	sp0, err := wadSoftplus(s0)
	if err != nil {
		return nil, err
	}
	sp1, err := wadSoftplus(s1)
	if err != nil {
		return nil, err
	}
	diff := sp1.Sub(sp1, sp0)
	diff.Quo(diff, steep)

	span := new(big.Int).Sub(maxP, minP)
	out := mulWad(span, diff)
	return out.Add(out, mulWad(minP, delta)), nil
}

func (c Sigmoid) Cost(params domain.CurveParams, qYes, qNo *big.Int, outcome domain.Outcome, delta *big.Int) (*big.Int, error) {
	if err := checkOutcome(outcome); err != nil {
		return nil, err
	}
	if err := checkDelta(delta); err != nil {
		return nil, err
	}
	minP, maxP, steep, inflection, ok := c.decode(params)
	if !ok || minP.Sign() <= 0 || maxP.Cmp(minP) <= 0 {
		return nil, domain.ErrInvalidCurveParams
	}
	q, _ := sideSupply(qYes, qNo, outcome)
	cost, err := c.integral(minP, maxP, steep, inflection, q, delta)
	if err != nil {
		return nil, err
	}
	if cost.Sign() <= 0 {
		return big.NewInt(1), nil
	}
	return cost, nil
}

func (c Sigmoid) Refund(params domain.CurveParams, qYes, qNo *big.Int, outcome domain.Outcome, delta *big.Int) (*big.Int, error) {
	if err := checkOutcome(outcome); err != nil {
		return nil, err
	}
	if err := checkDelta(delta); err != nil {
		return nil, err
	}
	minP, maxP, steep, inflection, ok := c.decode(params)
	if !ok || minP.Sign() <= 0 || maxP.Cmp(minP) <= 0 {
		return nil, domain.ErrInvalidCurveParams
	}
	q, _ := sideSupply(qYes, qNo, outcome)
	if delta.Cmp(q) > 0 {
		return nil, domain.ErrInsufficientShares
	}
	start := new(big.Int).Sub(q, delta)
	refund, err := c.integral(minP, maxP, steep, inflection, start, delta)
	if err != nil {
		return nil, err
	}
	if refund.Sign() < 0 {
		refund.SetInt64(0)
	}
	return refund, nil
}

func (c Sigmoid) Prices(params domain.CurveParams, qYes, qNo *big.Int) (int64, int64, error) {
	minP, maxP, _, _, ok := c.decode(params)
	if !ok || minP.Sign() <= 0 || maxP.Cmp(minP) <= 0 {
		return 0, 0, domain.ErrInvalidCurveParams
	}
	yes, no := ratioBps(qYes, qNo)
	return yes, no, nil
}
