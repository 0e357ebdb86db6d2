package curve

import (
	"errors"
	"math/big"
)

// Fixed-point helpers shared by every curve implementation. All values are
// wad integers (scaled by 1e18) over math/big so pricing is deterministic:
// the same integer inputs always produce the same integer outputs, and the
// series approximations below are monotone over the integer domain.

var (
	wad     = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	wadSq   = new(big.Int).Mul(wad, wad)
	twoWad  = new(big.Int).Lsh(wad, 1)
	lnTwo   = big.NewInt(693147180559945309) // ln(2) * 1e18
	bpsUnit = big.NewInt(10000)
)

// expNegCutoff is the point beyond which e^-x underflows wad precision.
var expNegCutoff = new(big.Int).Mul(big.NewInt(42), wad)

// maxExpShift caps the binary range reduction of wadExp; beyond it the
// result cannot participate in any meaningful wad computation.
const maxExpShift = 192

var errExpOverflow = errors.New("curve: exponent too large")

func mulWad(a, b *big.Int) *big.Int {
	return new(big.Int).Quo(new(big.Int).Mul(a, b), wad)
}

func divWad(a, b *big.Int) *big.Int {
	return new(big.Int).Quo(new(big.Int).Mul(a, wad), b)
}

// wadExp returns e^x for x >= 0 in wad fixed point. Range reduction writes
// x = n*ln2 + r with r in [0, ln2); e^r comes from a truncated Taylor series
// whose terms vanish below wad precision after ~20 iterations.
func wadExp(x *big.Int) (*big.Int, error) {
	if x.Sign() < 0 {
		return nil, errExpOverflow
	}
	n := new(big.Int).Quo(x, lnTwo)
	if !n.IsInt64() || n.Int64() > maxExpShift {
		return nil, errExpOverflow
	}
	r := new(big.Int).Rem(x, lnTwo)

	sum := new(big.Int).Set(wad)
	term := new(big.Int).Set(wad)
	for k := int64(1); k <= 24; k++ {
		// term *= r / k, in one division to minimise rounding drift.
		term.Mul(term, r)
		term.Quo(term, new(big.Int).Mul(wad, big.NewInt(k)))
		if term.Sign() == 0 {
			break
		}
		sum.Add(sum, term)
	}
	return sum.Lsh(sum, uint(n.Int64())), nil
}

// wadExpNeg returns e^-x for x >= 0, flushing to zero once the result would
// underflow a wad.
func wadExpNeg(x *big.Int) *big.Int {
	if x.Sign() <= 0 {
		return new(big.Int).Set(wad)
	}
	if x.Cmp(expNegCutoff) >= 0 {
		return new(big.Int)
	}
	ex, err := wadExp(x)
	if err != nil {
		return new(big.Int)
	}
	return new(big.Int).Quo(wadSq, ex)
}

// wadLn returns ln(x) for x > 0 in wad fixed point; the result is negative
// for x < 1e18. Normalisation writes x = m * 2^k with m in [1, 2), then
// ln(m) comes from the atanh series 2*(z + z^3/3 + ...), z = (m-1)/(m+1).
func wadLn(x *big.Int) (*big.Int, error) {
	if x.Sign() <= 0 {
		return nil, errors.New("curve: ln of non-positive value")
	}
	m := new(big.Int).Set(x)
	k := int64(0)
	for m.Cmp(wad) < 0 {
		m.Lsh(m, 1)
		k--
	}
	for m.Cmp(twoWad) >= 0 {
		m.Rsh(m, 1)
		k++
	}

	// z <= 1/3 on [1,2), so odd powers shrink by at least 1/9 per term.
	z := divWad(new(big.Int).Sub(m, wad), new(big.Int).Add(m, wad))
	zsq := mulWad(z, z)
	sum := new(big.Int).Set(z)
	term := new(big.Int).Set(z)
	for i := int64(3); i <= 31; i += 2 {
		term = mulWad(term, zsq)
		if term.Sign() == 0 {
			break
		}
		sum.Add(sum, new(big.Int).Quo(term, big.NewInt(i)))
	}
	sum.Lsh(sum, 1)

	return sum.Add(sum, new(big.Int).Mul(big.NewInt(k), lnTwo)), nil
}

// wadSoftplus returns ln(1 + e^x) for signed wad x, computed so the
// exponential argument is never positive.
func wadSoftplus(x *big.Int) (*big.Int, error) {
	if x.Sign() > 0 {
		// ln(1+e^x) = x + ln(1+e^-x)
		tail, err := wadLn(new(big.Int).Add(wad, wadExpNeg(x)))
		if err != nil {
			return nil, err
		}
		return tail.Add(tail, x), nil
	}
	return wadLn(new(big.Int).Add(wad, wadExpNeg(new(big.Int).Neg(x))))
}

// ratioBps splits 10000 basis points in proportion a : a+b, with the
// complement derived by subtraction so the pair always sums exactly.
func ratioBps(a, b *big.Int) (int64, int64) {
	total := new(big.Int).Add(a, b)
	if total.Sign() == 0 {
		return 5000, 5000
	}
	yes := new(big.Int).Mul(a, bpsUnit)
	yes.Quo(yes, total)
	y := yes.Int64()
	return y, 10000 - y
}
