package engine

import "math/big"

// EscalationPolicy decides when a market's dispute history warrants flagging
// it for admin review. Escalation never settles anything on its own; it only
// marks the market and triggers a notification.
type EscalationPolicy interface {
	ShouldEscalate(disputeCount int, totalBond, minBond *big.Int) bool
}

// BondWeightedPolicy escalates once the cumulative dispute bonds reach a
// multiple of the minimum dispute bond. This is the default: it weighs how
// much challengers are collectively willing to stake, not how many there
// are.
type BondWeightedPolicy struct {
	Multiple int64
}

func (p BondWeightedPolicy) ShouldEscalate(_ int, totalBond, minBond *big.Int) bool {
	if p.Multiple <= 0 || totalBond == nil || minBond == nil || minBond.Sign() <= 0 {
		return false
	}
	threshold := new(big.Int).Mul(minBond, big.NewInt(p.Multiple))
	return totalBond.Cmp(threshold) >= 0
}

// CountPolicy escalates after a fixed number of disputes regardless of bond
// size. The lifecycle admits one dispute per market (a disputed market never
// returns to Resolving), so only Threshold = 1 can fire today; higher
// thresholds wait on a re-proposal path.
type CountPolicy struct {
	Threshold int
}

func (p CountPolicy) ShouldEscalate(disputeCount int, _, _ *big.Int) bool {
	return p.Threshold > 0 && disputeCount >= p.Threshold
}
