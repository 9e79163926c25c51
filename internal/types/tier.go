package types

// Tier is a cost/quality level of inference.
type Tier string

const (
	TierNone      Tier = "none"
	TierCheap     Tier = "cheap"
	TierExpensive Tier = "expensive"
)

// CheaperTier returns the next tier down the fallback chain
// (expensive → cheap → none). TierNone maps to itself.
func CheaperTier(t Tier) Tier {
	switch t {
	case TierExpensive:
		return TierCheap
	case TierCheap:
		return TierNone
	default:
		return TierNone
	}
}

// EscalatedTier returns the next tier up, capped at expensive.
func EscalatedTier(t Tier) Tier {
	switch t {
	case TierNone:
		return TierCheap
	case TierCheap:
		return TierExpensive
	default:
		return TierExpensive
	}
}

// PaidTiers lists the tiers that spend budget.
func PaidTiers() []Tier {
	return []Tier{TierCheap, TierExpensive}
}
