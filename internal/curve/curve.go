// Package curve implements the bonding-curve strategies that price binary
// prediction markets, plus the admin-controlled registry that catalogs them.
// All pricing is wad fixed point (1e18) over math/big; prices are basis
// points that always sum to exactly 10000.
package curve

import (
	"fmt"
	"math/big"

	"github.com/kektech/marketd/internal/domain"
)

// Curve identifiers for the built-in strategies.
const (
	IDLMSR        = "lmsr"
	IDLinear      = "linear"
	IDExponential = "exponential"
	IDSigmoid     = "sigmoid"

	// DefaultID is the curve bound when a creator does not pick one.
	DefaultID = IDLMSR
)

// BondingCurve is the pricing strategy contract. Implementations are pure:
// no state, no IO, deterministic integer math only.
type BondingCurve interface {
	// Name is the human-readable strategy name.
	Name() string

	// ValidateParams checks an encoded parameter blob, returning false and a
	// reason on rejection.
	ValidateParams(params domain.CurveParams) (bool, string)

	// Cost returns the charge for acquiring delta more shares of outcome at
	// the given pool state. It is > 0 for delta > 0 and strictly increasing
	// in the same-side share supply.
	Cost(params domain.CurveParams, qYes, qNo *big.Int, outcome domain.Outcome, delta *big.Int) (*big.Int, error)

	// Refund returns the proceeds of selling delta shares of outcome. It
	// never exceeds the cost of the reverse trade at the post-buy state and
	// fails with ErrInsufficientShares when delta exceeds the outstanding
	// supply.
	Refund(params domain.CurveParams, qYes, qNo *big.Int, outcome domain.Outcome, delta *big.Int) (*big.Int, error)

	// Prices returns the current (yes, no) prices in basis points, summing
	// to exactly 10000. An empty market quotes (5000, 5000).
	Prices(params domain.CurveParams, qYes, qNo *big.Int) (yesBps, noBps int64, err error)
}

// SharesForCost inverts Cost by integer bisection: it returns the largest
// share delta whose cost does not exceed budget, together with the exact
// charge. Cost is monotone in delta, so the search is well defined and
// deterministic.
func SharesForCost(c BondingCurve, params domain.CurveParams, qYes, qNo *big.Int, outcome domain.Outcome, budget *big.Int) (shares, cost *big.Int, err error) {
	if budget == nil || budget.Sign() <= 0 {
		return nil, nil, domain.ErrBetTooSmall
	}

	// Grow an upper bound first.
	hi := new(big.Int).Set(wad)
	for i := 0; i < 128; i++ {
		ch, cerr := c.Cost(params, qYes, qNo, outcome, hi)
		if cerr != nil {
			return nil, nil, cerr
		}
		if ch.Cmp(budget) >= 0 {
			break
		}
		hi.Lsh(hi, 1)
	}

	lo := new(big.Int) // cost(0) is rejected by curves; treated as zero here
	// Invariant: cost(lo) <= budget < cost(hi+1).
	for lo.Cmp(hi) < 0 {
		mid := new(big.Int).Add(lo, hi)
		mid.Add(mid, big.NewInt(1))
		mid.Rsh(mid, 1)
		cm, cerr := c.Cost(params, qYes, qNo, outcome, mid)
		if cerr != nil {
			return nil, nil, cerr
		}
		if cm.Cmp(budget) <= 0 {
			lo.Set(mid)
		} else {
			hi.Sub(mid, big.NewInt(1))
		}
	}

	if lo.Sign() == 0 {
		return nil, nil, domain.ErrBetTooSmall
	}
	final, err := c.Cost(params, qYes, qNo, outcome, lo)
	if err != nil {
		return nil, nil, err
	}
	return lo, final, nil
}

// --- fixed-width big-endian parameter packing -------------------------------

// packFields encodes values into adjacent big-endian fields of the given bit
// widths, mirroring the single-word packed layouts markets store on disk.
func packFields(widths []uint, values ...*big.Int) (domain.CurveParams, error) {
	if len(widths) != len(values) {
		return nil, fmt.Errorf("curve: pack arity mismatch")
	}
	var total uint
	for _, w := range widths {
		total += w
	}
	out := make([]byte, total/8)
	offset := uint(0)
	for i, v := range values {
		if v == nil || v.Sign() < 0 {
			return nil, fmt.Errorf("curve: pack field %d: negative or nil", i)
		}
		if uint(v.BitLen()) > widths[i] {
			return nil, fmt.Errorf("curve: pack field %d: value exceeds %d bits", i, widths[i])
		}
		fieldBytes := widths[i] / 8
		v.FillBytes(out[offset/8 : offset/8+fieldBytes])
		offset += widths[i]
	}
	return out, nil
}

// unpackFields decodes a blob produced by packFields. It returns false when
// the blob length does not match the layout.
func unpackFields(blob domain.CurveParams, widths []uint) ([]*big.Int, bool) {
	var total uint
	for _, w := range widths {
		total += w
	}
	if uint(len(blob))*8 != total {
		return nil, false
	}
	out := make([]*big.Int, len(widths))
	offset := uint(0)
	for i, w := range widths {
		out[i] = new(big.Int).SetBytes(blob[offset/8 : offset/8+w/8])
		offset += w
	}
	return out, true
}

func checkDelta(delta *big.Int) error {
	if delta == nil || delta.Sign() <= 0 {
		return domain.ErrInvalidShareAmount
	}
	return nil
}

func checkOutcome(o domain.Outcome) error {
	if !o.Bettable() {
		return domain.ErrUnknownOutcome
	}
	return nil
}

// sideSupply returns the supply of the traded side and the opposite side.
func sideSupply(qYes, qNo *big.Int, outcome domain.Outcome) (q, other *big.Int) {
	if outcome == domain.OutcomeYes {
		return qYes, qNo
	}
	return qNo, qYes
}
