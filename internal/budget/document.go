package budget

import (
	"sync"

	"github.com/yungbote/conceptgraph-backend/internal/platform/envutil"
	"github.com/yungbote/conceptgraph-backend/internal/types"
)

// DocBudget is the per-document hard ceiling on paid calls per tier. One
// instance lives inside each pipeline run; it is checked before every tier
// escalation and is independent of the shared tenant quota.
type DocBudget struct {
	mu        sync.Mutex
	remaining map[types.Tier]int
	cost      float64
}

func DocCapsFromEnv() map[types.Tier]int {
	return map[types.Tier]int{
		types.TierCheap:     envutil.Int("BUDGET_DOC_CAP_CHEAP", 40),
		types.TierExpensive: envutil.Int("BUDGET_DOC_CAP_EXPENSIVE", 8),
	}
}

func NewDocBudget(caps map[types.Tier]int) *DocBudget {
	remaining := map[types.Tier]int{}
	for tier, c := range caps {
		remaining[tier] = c
	}
	return &DocBudget{remaining: remaining}
}

// TryConsume reserves calls on the tier, returning false without consuming
// when fewer than calls remain.
func (b *DocBudget) TryConsume(tier types.Tier, calls int) bool {
	if tier == types.TierNone || calls <= 0 {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remaining[tier] < calls {
		return false
	}
	b.remaining[tier] -= calls
	return true
}

// Refund returns previously reserved calls to the tier.
func (b *DocBudget) Refund(tier types.Tier, calls int) {
	if tier == types.TierNone || calls <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remaining[tier] += calls
}

func (b *DocBudget) Remaining(tier types.Tier) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining[tier]
}

// AddCost accumulates the billed cost for the document.
func (b *DocBudget) AddCost(amount float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cost += amount
}

func (b *DocBudget) Cost() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cost
}
