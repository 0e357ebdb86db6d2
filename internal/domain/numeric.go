package domain

import (
	"fmt"
	"math/big"
)

// Monetary amounts are wad fixed point: integers scaled by 1e18. Prices and
// odds are basis points on a 0-10000 integer scale. No floating point touches
// settlement math anywhere in the engine.
const (
	// PriceScale is the basis-point denominator: 10000 == 100%.
	PriceScale int64 = 10000
	// OddsScale is the display scale for payout multipliers: 10000 == 1.00x.
	OddsScale int64 = 10000
)

// WadUnit is 1e18, the wad fixed-point scaling factor.
var WadUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Wad returns n whole units as a wad amount (n * 1e18).
func Wad(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), WadUnit)
}

// MustWad parses a decimal string of whole units into a wad amount and
// panics on malformed input. Intended for constants and tests.
func MustWad(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic(fmt.Sprintf("domain: bad wad literal %q", s))
	}
	return new(big.Int).Mul(v, WadUnit)
}

// CloneAmount copies a wad amount, treating nil as zero.
func CloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// IsPositive reports whether v is non-nil and > 0.
func IsPositive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}
