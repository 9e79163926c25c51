package dispatch

import (
	"context"
	"time"

	"github.com/yungbote/conceptgraph-backend/internal/observability"
)

// ReportMetrics publishes queue depth, in-flight counts and breaker state on
// an interval until ctx ends. No-op when metrics are disabled.
func (d *Dispatcher) ReportMetrics(ctx context.Context, m *observability.Metrics, interval time.Duration) {
	if m == nil {
		return
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for tier, stats := range d.QueueStats() {
					for prio, depth := range stats.QueueSizePerPriority {
						m.SetQueueDepth(string(tier), string(prio), depth)
					}
					m.SetInFlight(string(tier), stats.InFlight)
					m.SetBreakerState(string(tier), string(stats.BreakerState))
				}
			}
		}
	}()
}
