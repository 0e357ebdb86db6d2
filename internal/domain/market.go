package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MarketState is the lifecycle state of a market.
type MarketState string

const (
	MarketProposed  MarketState = "proposed"
	MarketApproved  MarketState = "approved"
	MarketActive    MarketState = "active"
	MarketResolving MarketState = "resolving"
	MarketDisputed  MarketState = "disputed"
	MarketFinalized MarketState = "finalized"
	MarketCancelled MarketState = "cancelled"
)

// Terminal reports whether the state admits no further transitions.
func (s MarketState) Terminal() bool {
	return s == MarketFinalized || s == MarketCancelled
}

// Outcome is the settled result of a binary market.
type Outcome string

const (
	OutcomeInvalid   Outcome = "invalid"
	OutcomeYes       Outcome = "yes"
	OutcomeNo        Outcome = "no"
	OutcomeCancelled Outcome = "cancelled"
)

// Bettable reports whether the outcome is a side a bet can take.
func (o Outcome) Bettable() bool {
	return o == OutcomeYes || o == OutcomeNo
}

// MarketConfig is the creator-supplied description of a new market.
type MarketConfig struct {
	Question    string
	Description string
	Category    string
	YesLabel    string
	NoLabel     string
	EndTime     time.Time
	// ResolutionTime is when the question can first be resolved; it must not
	// precede EndTime.
	ResolutionTime time.Time
}

// Market is the persistent record of a binary prediction market.
//
// Invariants: TotalVolume == PoolYes + PoolNo at all times, and the bound
// curve keeps priceYes + priceNo == 10000 bps for any pool state.
type Market struct {
	ID          string
	Question    string
	Description string
	Category    string
	YesLabel    string
	NoLabel     string

	CurveID     string
	CurveParams CurveParams

	State   MarketState
	Outcome Outcome

	// PoolYes/PoolNo are the wad value staked per side; SharesYes/SharesNo
	// are the outstanding share quantities the curve prices against.
	PoolYes     *big.Int
	PoolNo      *big.Int
	SharesYes   *big.Int
	SharesNo    *big.Int
	TotalVolume *big.Int
	FeesAccrued *big.Int

	Creator common.Address

	EndTime        time.Time
	ResolutionTime time.Time

	// Resolution bookkeeping, meaningful from Resolving onward.
	ProposedOutcome Outcome
	ProposedBy      common.Address
	ProposalAt      time.Time
	Escalated       bool

	Snapshot *PayoutSnapshot

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PayoutSnapshot freezes the settlement inputs at the instant a market
// finalizes. Every later payout computation is a pure function of this
// snapshot and a Position; nothing that happens afterwards can change it.
type PayoutSnapshot struct {
	WinningOutcome Outcome
	TotalPool      *big.Int
	WinningPool    *big.Int
	WinningShares  *big.Int
	FinalizedAt    time.Time
}

// Pool returns the staked value for a bettable outcome.
func (m *Market) Pool(o Outcome) *big.Int {
	if o == OutcomeYes {
		return m.PoolYes
	}
	return m.PoolNo
}

// Shares returns the outstanding share quantity for a bettable outcome.
func (m *Market) Shares(o Outcome) *big.Int {
	if o == OutcomeYes {
		return m.SharesYes
	}
	return m.SharesNo
}
