package budget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yungbote/conceptgraph-backend/internal/clients/redis"
	"github.com/yungbote/conceptgraph-backend/internal/pkg/logger"
	"github.com/yungbote/conceptgraph-backend/internal/platform/envutil"
	"github.com/yungbote/conceptgraph-backend/internal/types"
)

// Decision is the outcome of a budget check.
type Decision struct {
	OK        bool   `json:"ok"`
	Remaining int64  `json:"remaining"`
	Reason    string `json:"reason,omitempty"`
}

// Config carries the tenant-daily call caps per paid tier. A cap of 0 means
// the tier is disabled for shared accounting (always allowed locally).
type Config struct {
	DailyCallCap map[types.Tier]int64
	DailyExpiry  time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		DailyCallCap: map[types.Tier]int64{
			types.TierCheap:     int64(envutil.Int("BUDGET_DAILY_CAP_CHEAP", 2000)),
			types.TierExpensive: int64(envutil.Int("BUDGET_DAILY_CAP_EXPENSIVE", 200)),
		},
		DailyExpiry: envutil.Duration("BUDGET_DAILY_EXPIRY", 24*time.Hour),
	}
}

// Ledger tracks per-tenant-per-day spend per tier against the shared counter
// store. All mutation goes through atomic increment/decrement; there is no
// read-then-write path. When the shared store fails the ledger degrades to an
// in-process counter and logs the degradation once: quota correctness is
// sacrificed for availability, local caps still hold.
type Ledger struct {
	log   *logger.Logger
	cfg   Config
	store redis.CounterStore

	mu       sync.Mutex
	local    map[string]int64
	degraded bool
}

func NewLedger(baseLog *logger.Logger, cfg Config, store redis.CounterStore) *Ledger {
	return &Ledger{
		log:   baseLog.With("service", "BudgetLedger"),
		cfg:   cfg,
		store: store,
		local: map[string]int64{},
	}
}

func dayKey(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}

func callsKey(tenant string, tier types.Tier, day string) string {
	return fmt.Sprintf("budget:%s:%s:%s:calls", tenant, tier, day)
}

func costKey(tenant string, tier types.Tier, day string) string {
	return fmt.Sprintf("budget:%s:%s:%s:cost", tenant, tier, day)
}

// CheckBudget reports whether the tenant could spend calls on the tier today.
// It is advisory: Consume re-checks atomically, so a positive answer here can
// still lose the race to a concurrent document.
func (l *Ledger) CheckBudget(ctx context.Context, tenant string, tier types.Tier, calls int64) Decision {
	if tier == types.TierNone {
		return Decision{OK: true, Remaining: -1}
	}
	cap := l.cfg.DailyCallCap[tier]
	if cap <= 0 {
		return Decision{OK: true, Remaining: -1}
	}
	used := l.currentCalls(ctx, tenant, tier)
	remaining := cap - used
	if remaining < calls {
		return Decision{OK: false, Remaining: remaining, Reason: "daily quota exhausted"}
	}
	return Decision{OK: true, Remaining: remaining - calls}
}

// Consume atomically charges calls and cost against the tenant's daily
// quota. When the increment lands above the cap, the charge is reversed and
// the remaining value is returned with ok=false; the caller falls back to a
// cheaper tier.
func (l *Ledger) Consume(ctx context.Context, tenant string, tier types.Tier, calls int64, cost float64) (remaining int64, ok bool) {
	if tier == types.TierNone || calls <= 0 {
		return -1, true
	}
	cap := l.cfg.DailyCallCap[tier]
	day := dayKey(time.Now())

	newVal, err := l.incr(ctx, callsKey(tenant, tier, day), calls)
	if err != nil {
		newVal = l.incrLocal(callsKey(tenant, tier, day), calls)
	}
	if cap > 0 && newVal > cap {
		// Over the cap: reverse the charge. The increment-then-reverse shape
		// keeps concurrent consumers from collectively exceeding the cap.
		l.reverse(ctx, tenant, tier, day, calls)
		over := newVal - cap
		rem := calls - over
		if rem < 0 {
			rem = 0
		}
		return rem, false
	}
	if cost > 0 {
		l.addCost(ctx, tenant, tier, day, cost)
	}
	if cap > 0 {
		return cap - newVal, true
	}
	return -1, true
}

// Refund reverses a consumed charge, used when a dispatched call ultimately
// fails after being counted. Consume(c) then Refund(c) restores the
// pre-consume remaining value exactly.
func (l *Ledger) Refund(ctx context.Context, tenant string, tier types.Tier, calls int64, cost float64) int64 {
	if tier == types.TierNone || calls <= 0 {
		return -1
	}
	day := dayKey(time.Now())
	newVal, err := l.incr(ctx, callsKey(tenant, tier, day), -calls)
	if err != nil {
		newVal = l.incrLocal(callsKey(tenant, tier, day), -calls)
	}
	if cost > 0 {
		l.addCost(ctx, tenant, tier, day, -cost)
	}
	cap := l.cfg.DailyCallCap[tier]
	if cap > 0 {
		return cap - newVal
	}
	return -1
}

// RecordCost adds billed cost to the tenant's daily tally without touching
// call counts. Used after a dispatched call reports its actual cost.
func (l *Ledger) RecordCost(ctx context.Context, tenant string, tier types.Tier, cost float64) {
	if tier == types.TierNone || cost <= 0 {
		return
	}
	l.addCost(ctx, tenant, tier, dayKey(time.Now()), cost)
}

// Degraded reports whether the ledger has fallen back to in-process counting.
func (l *Ledger) Degraded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.degraded
}

func (l *Ledger) currentCalls(ctx context.Context, tenant string, tier types.Tier) int64 {
	day := dayKey(time.Now())
	key := callsKey(tenant, tier, day)
	if l.store != nil && !l.Degraded() {
		if v, err := l.store.Get(ctx, key); err == nil {
			return v
		}
		l.markDegraded(fmt.Errorf("counter read failed"))
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.local[key]
}

func (l *Ledger) incr(ctx context.Context, key string, delta int64) (int64, error) {
	if l.store == nil {
		return 0, fmt.Errorf("no counter store")
	}
	if l.Degraded() {
		return 0, fmt.Errorf("counter store degraded")
	}
	v, err := l.store.IncrBy(ctx, key, delta, l.cfg.DailyExpiry)
	if err != nil {
		l.markDegraded(err)
		return 0, err
	}
	return v, nil
}

func (l *Ledger) reverse(ctx context.Context, tenant string, tier types.Tier, day string, calls int64) {
	key := callsKey(tenant, tier, day)
	if _, err := l.incr(ctx, key, -calls); err != nil {
		l.incrLocal(key, -calls)
	}
}

func (l *Ledger) addCost(ctx context.Context, tenant string, tier types.Tier, day string, cost float64) {
	if l.store == nil || l.Degraded() {
		return
	}
	if _, err := l.store.IncrByFloat(ctx, costKey(tenant, tier, day), cost, l.cfg.DailyExpiry); err != nil {
		l.markDegraded(err)
	}
}

func (l *Ledger) incrLocal(key string, delta int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.local[key] += delta
	if l.local[key] < 0 {
		l.local[key] = 0
	}
	return l.local[key]
}

func (l *Ledger) markDegraded(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.degraded {
		l.degraded = true
		l.log.Warn("budget ledger degraded to in-process counting", "error", err)
	}
}
