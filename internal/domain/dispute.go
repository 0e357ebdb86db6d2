package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// DisputeStatus tracks a dispute from filing to settlement.
type DisputeStatus string

const (
	DisputeActive    DisputeStatus = "active"
	DisputeUpheld    DisputeStatus = "upheld"
	DisputeRejected  DisputeStatus = "rejected"
	DisputeCancelled DisputeStatus = "cancelled"
)

// DisputeRecord is one challenge against a proposed outcome. A market has at
// most one active dispute at a time; settled disputes are retained so the
// escalation policy can aggregate over the market's full dispute history.
type DisputeRecord struct {
	ID        string
	MarketID  string
	Disputer  common.Address
	Bond      *big.Int
	Reason    string
	Status    DisputeStatus
	FiledAt   time.Time
	SettledAt *time.Time
}
