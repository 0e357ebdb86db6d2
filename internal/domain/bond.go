package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// BondRecord is the factory's escrow of a market creator's bond.
//
// HeldAmount transitions to exactly zero exactly once, on refund; the record
// is zeroed before any value moves so a duplicate refund deterministically
// fails with ErrNoBondHeld.
type BondRecord struct {
	MarketID   string
	Creator    common.Address
	HeldAmount *big.Int
	EscrowedAt time.Time
	RefundedAt *time.Time
}

// Held reports whether the bond is still escrowed.
func (b *BondRecord) Held() bool {
	return b.HeldAmount != nil && b.HeldAmount.Sign() > 0
}
