package postgres

import (
	"fmt"
	"math/big"
)

// Wad amounts are stored as NUMERIC(78,0) and travel as decimal strings so
// full 256-bit values round-trip without loss.

func encodeBig(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func decodeBig(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("postgres: malformed numeric %q", s)
	}
	return v, nil
}
