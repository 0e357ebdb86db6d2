package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Event topics published on the signal bus and broadcast by the ws hub.
const (
	TopicMarketCreated      = "market_created"
	TopicBetPlaced          = "bet_placed"
	TopicSharesSold         = "shares_sold"
	TopicMarketResolved     = "market_resolved"
	TopicMarketDisputed     = "market_disputed"
	TopicDisputeEscalated   = "dispute_escalated"
	TopicMarketCancelled    = "market_cancelled"
	TopicWinningsClaimed    = "winnings_claimed"
	TopicRefundClaimed      = "refund_claimed"
	TopicBondRefunded       = "bond_refunded"
	TopicFactoryPaused      = "factory_paused"
	TopicCurveRegistered    = "curve_registered"
	TopicCurveStatusChanged = "curve_status_changed"
)

// MarketCreatedEvent announces a newly instantiated market.
type MarketCreatedEvent struct {
	MarketID       string         `json:"market_id"`
	Creator        common.Address `json:"creator"`
	Question       string         `json:"question"`
	CurveID        string         `json:"curve_id"`
	EndTime        time.Time      `json:"end_time"`
	ResolutionTime time.Time      `json:"resolution_time"`
	Timestamp      time.Time      `json:"timestamp"`
}

// BetPlacedEvent records an executed bet.
type BetPlacedEvent struct {
	MarketID       string         `json:"market_id"`
	Bettor         common.Address `json:"bettor"`
	Outcome        Outcome        `json:"outcome"`
	Amount         *big.Int       `json:"amount"`
	SharesReceived *big.Int       `json:"shares_received"`
	PriceYesBps    int64          `json:"price_yes_bps"`
	PriceNoBps     int64          `json:"price_no_bps"`
	Timestamp      time.Time      `json:"timestamp"`
}

// SharesSoldEvent records an executed sell.
type SharesSoldEvent struct {
	MarketID  string         `json:"market_id"`
	Seller    common.Address `json:"seller"`
	Outcome   Outcome        `json:"outcome"`
	Shares    *big.Int       `json:"shares"`
	Refund    *big.Int       `json:"refund"`
	Timestamp time.Time      `json:"timestamp"`
}

// MarketResolvedEvent announces a proposed or final outcome.
type MarketResolvedEvent struct {
	MarketID  string         `json:"market_id"`
	Outcome   Outcome        `json:"outcome"`
	Resolver  common.Address `json:"resolver"`
	Final     bool           `json:"final"`
	Timestamp time.Time      `json:"timestamp"`
}

// MarketDisputedEvent announces a filed dispute.
type MarketDisputedEvent struct {
	MarketID  string         `json:"market_id"`
	DisputeID string         `json:"dispute_id"`
	Disputer  common.Address `json:"disputer"`
	Bond      *big.Int       `json:"bond"`
	Reason    string         `json:"reason"`
	Timestamp time.Time      `json:"timestamp"`
}

// WinningsClaimedEvent records a settled claim (winnings or refund).
type WinningsClaimedEvent struct {
	MarketID  string         `json:"market_id"`
	Claimer   common.Address `json:"claimer"`
	Amount    *big.Int       `json:"amount"`
	Refund    bool           `json:"refund"`
	Timestamp time.Time      `json:"timestamp"`
}

// BondRefundedEvent records the release of a creator bond.
type BondRefundedEvent struct {
	MarketID  string         `json:"market_id"`
	Creator   common.Address `json:"creator"`
	Amount    *big.Int       `json:"amount"`
	Timestamp time.Time      `json:"timestamp"`
}

// FactoryPausedEvent announces a pause toggle.
type FactoryPausedEvent struct {
	Paused    bool           `json:"paused"`
	By        common.Address `json:"by"`
	Timestamp time.Time      `json:"timestamp"`
}

// DisputeEscalatedEvent announces that a market's dispute history crossed
// the escalation policy threshold.
type DisputeEscalatedEvent struct {
	MarketID     string    `json:"market_id"`
	DisputeCount int       `json:"dispute_count"`
	TotalBond    *big.Int  `json:"total_bond"`
	Timestamp    time.Time `json:"timestamp"`
}

// MarketCancelledEvent announces an administrative cancellation.
type MarketCancelledEvent struct {
	MarketID  string         `json:"market_id"`
	By        common.Address `json:"by"`
	Timestamp time.Time      `json:"timestamp"`
}

// CurveStatusEvent announces a curve registration or activation change.
type CurveStatusEvent struct {
	CurveID   string    `json:"curve_id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	Timestamp time.Time `json:"timestamp"`
}
