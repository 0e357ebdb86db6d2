package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Position is one user's holding in one market.
//
// Claimed is a one-way latch: it transitions false -> true exactly once, when
// winnings or a cancellation refund are paid out, and never back.
type Position struct {
	MarketID      string
	User          common.Address
	SharesYes     *big.Int
	SharesNo      *big.Int
	TotalInvested *big.Int
	Claimed       bool
	UpdatedAt     time.Time
}

// NewPosition returns an empty position for user in market.
func NewPosition(marketID string, user common.Address) *Position {
	return &Position{
		MarketID:      marketID,
		User:          user,
		SharesYes:     new(big.Int),
		SharesNo:      new(big.Int),
		TotalInvested: new(big.Int),
	}
}

// Shares returns the share balance for a bettable outcome.
func (p *Position) Shares(o Outcome) *big.Int {
	if o == OutcomeYes {
		return p.SharesYes
	}
	return p.SharesNo
}

// Empty reports whether the position holds no shares and no invested value.
func (p *Position) Empty() bool {
	return p.SharesYes.Sign() == 0 && p.SharesNo.Sign() == 0 && p.TotalInvested.Sign() == 0
}
