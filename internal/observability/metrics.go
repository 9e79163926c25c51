package observability

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/conceptgraph-backend/internal/pkg/logger"
)

// Metrics is the process-wide registry for the concept pipeline. All
// recorders are nil-safe so call sites never guard on METRICS_ENABLED.
type Metrics struct {
	pipelineRuns     *CounterVec
	pipelineRetries  *Counter
	stageDuration    *HistogramVec
	inferenceCalls   *CounterVec
	inferenceCost    *CounterVec
	queueDepth       *GaugeVec
	inFlight         *GaugeVec
	breakerState     *GaugeVec
	budgetDegraded   *Gauge
	entitiesPromoted *Counter
	entitiesLinked   *Counter
	relationsCreated *Counter
	relationsDropped *Counter
	candidatesGated  *CounterVec
	apiRequests      *CounterVec
	apiDuration      *HistogramVec
	apiInflight      *Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	if v == "" {
		return false
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func Current() *Metrics {
	return instance
}

func Init(log *logger.Logger) *Metrics {
	initOnce.Do(func() {
		if !Enabled() {
			log.Info("metrics disabled")
			return
		}
		instance = &Metrics{
			pipelineRuns: NewCounterVec("pipeline_runs_total",
				"Completed pipeline runs by final state.", []string{"final_state"}),
			pipelineRetries: NewCounter("pipeline_gate_retries_total",
				"Escalated extraction retries triggered by the gate floor."),
			stageDuration: NewHistogramVec("pipeline_stage_duration_seconds",
				"Wall-clock duration per pipeline stage.", []string{"stage"},
				[]float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 120}),
			inferenceCalls: NewCounterVec("inference_calls_total",
				"Dispatched inference calls by tier.", []string{"tier"}),
			inferenceCost: NewCounterVec("inference_cost_usd_total",
				"Billed inference cost by tier.", []string{"tier"}),
			queueDepth: NewGaugeVec("dispatch_queue_depth",
				"Pending dispatcher requests by tier and priority.", []string{"tier", "priority"}),
			inFlight: NewGaugeVec("dispatch_in_flight",
				"In-flight provider calls by tier.", []string{"tier"}),
			breakerState: NewGaugeVec("dispatch_breaker_state",
				"Circuit breaker state by tier: 0 closed, 1 half-open, 2 open.", []string{"tier"}),
			budgetDegraded: NewGauge("budget_ledger_degraded",
				"1 when the ledger fell back to in-process counting."),
			entitiesPromoted: NewCounter("entities_promoted_total",
				"Canonical entities newly published."),
			entitiesLinked: NewCounter("entities_linked_total",
				"Promotions deduplicated onto existing entities."),
			relationsCreated: NewCounter("relations_created_total",
				"Co-occurrence edges persisted."),
			relationsDropped: NewCounter("relations_dropped_total",
				"Relation proposals dropped for unpromoted endpoints."),
			candidatesGated: NewCounterVec("candidates_gated_total",
				"Gate decisions by outcome.", []string{"outcome"}),
			apiRequests: NewCounterVec("api_requests_total",
				"HTTP requests by method, route and status.", []string{"method", "route", "status"}),
			apiDuration: NewHistogramVec("api_request_duration_seconds",
				"HTTP request latency per route.", []string{"route"},
				[]float64{0.005, 0.025, 0.1, 0.5, 1, 5, 30, 120, 300}),
			apiInflight: NewGauge("api_requests_in_flight",
				"HTTP requests currently being served."),
		}
		log.Info("metrics enabled")
	})
	return instance
}

func (m *Metrics) RecordRun(finalState string) {
	if m == nil {
		return
	}
	m.pipelineRuns.Inc(finalState)
}

func (m *Metrics) RecordGateRetry() {
	if m == nil {
		return
	}
	m.pipelineRetries.Inc()
}

func (m *Metrics) ObserveStage(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.stageDuration.Observe(seconds, stage)
}

func (m *Metrics) RecordInference(tier string, calls int, cost float64) {
	if m == nil {
		return
	}
	m.inferenceCalls.Add(float64(calls), tier)
	m.inferenceCost.Add(cost, tier)
}

func (m *Metrics) SetQueueDepth(tier, priority string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth), tier, priority)
}

func (m *Metrics) SetInFlight(tier string, n int) {
	if m == nil {
		return
	}
	m.inFlight.Set(float64(n), tier)
}

func (m *Metrics) SetBreakerState(tier string, state string) {
	if m == nil {
		return
	}
	v := 0.0
	switch state {
	case "half_open":
		v = 1
	case "open":
		v = 2
	}
	m.breakerState.Set(v, tier)
}

func (m *Metrics) SetBudgetDegraded(degraded bool) {
	if m == nil {
		return
	}
	if degraded {
		m.budgetDegraded.Set(1)
	} else {
		m.budgetDegraded.Set(0)
	}
}

func (m *Metrics) RecordPromotion(created, linked, relations, dropped int) {
	if m == nil {
		return
	}
	m.entitiesPromoted.Add(float64(created))
	m.entitiesLinked.Add(float64(linked))
	m.relationsCreated.Add(float64(relations))
	m.relationsDropped.Add(float64(dropped))
}

func (m *Metrics) RecordGate(promoted, rejected int) {
	if m == nil {
		return
	}
	m.candidatesGated.Add(float64(promoted), "promoted")
	m.candidatesGated.Add(float64(rejected), "rejected")
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Add(1)
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Add(-1)
}

func (m *Metrics) ObserveAPI(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.Inc(method, route, status)
	m.apiDuration.Observe(d.Seconds(), route)
}

func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_ = m.WritePrometheus(w)
	})
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, wr := range []interface{ WritePrometheus(io.Writer) error }{
		m.pipelineRuns, m.pipelineRetries, m.stageDuration,
		m.inferenceCalls, m.inferenceCost,
		m.queueDepth, m.inFlight, m.breakerState, m.budgetDegraded,
		m.entitiesPromoted, m.entitiesLinked,
		m.relationsCreated, m.relationsDropped, m.candidatesGated,
	} {
		if err := wr.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

type Counter struct {
	name string
	help string
	mu   sync.RWMutex
	val  float64
}

func NewCounter(name, help string) *Counter {
	return &Counter{name: name, help: help}
}

func (c *Counter) Inc() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.val++
	c.mu.Unlock()
}

func (c *Counter) Add(v float64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.val += v
	c.mu.Unlock()
}

func (c *Counter) Value() float64 {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.val
}

func (c *Counter) WritePrometheus(w io.Writer) error {
	if c == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", c.name, c.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s counter\n", c.name); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, err := fmt.Fprintf(w, "%s %f\n", c.name, c.val)
	return err
}

type CounterVec struct {
	name       string
	help       string
	labelNames []string
	mu         sync.RWMutex
	values     map[string]float64
}

func NewCounterVec(name, help string, labels []string) *CounterVec {
	return &CounterVec{name: name, help: help, labelNames: labels, values: map[string]float64{}}
}

func (c *CounterVec) Inc(values ...string) {
	c.Add(1, values...)
}

func (c *CounterVec) Add(v float64, values ...string) {
	if c == nil {
		return
	}
	lbl := labelString(c.labelNames, values)
	c.mu.Lock()
	c.values[lbl] += v
	c.mu.Unlock()
}

func (c *CounterVec) WritePrometheus(w io.Writer) error {
	if c == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", c.name, c.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s counter\n", c.name); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for k, v := range c.values {
		if _, err := fmt.Fprintf(w, "%s%s %f\n", c.name, k, v); err != nil {
			return err
		}
	}
	return nil
}

type Gauge struct {
	name string
	help string
	mu   sync.RWMutex
	val  float64
}

func NewGauge(name, help string) *Gauge {
	return &Gauge{name: name, help: help}
}

func (g *Gauge) Set(v float64) {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.val = v
	g.mu.Unlock()
}

func (g *Gauge) Add(v float64) {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.val += v
	g.mu.Unlock()
}

func (g *Gauge) WritePrometheus(w io.Writer) error {
	if g == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", g.name, g.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s gauge\n", g.name); err != nil {
		return err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, err := fmt.Fprintf(w, "%s %f\n", g.name, g.val)
	return err
}

type GaugeVec struct {
	name       string
	help       string
	labelNames []string
	mu         sync.RWMutex
	values     map[string]float64
}

func NewGaugeVec(name, help string, labels []string) *GaugeVec {
	return &GaugeVec{name: name, help: help, labelNames: labels, values: map[string]float64{}}
}

func (g *GaugeVec) Set(v float64, values ...string) {
	if g == nil {
		return
	}
	lbl := labelString(g.labelNames, values)
	g.mu.Lock()
	g.values[lbl] = v
	g.mu.Unlock()
}

func (g *GaugeVec) WritePrometheus(w io.Writer) error {
	if g == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", g.name, g.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s gauge\n", g.name); err != nil {
		return err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	for k, v := range g.values {
		if _, err := fmt.Fprintf(w, "%s%s %f\n", g.name, k, v); err != nil {
			return err
		}
	}
	return nil
}

type HistogramVec struct {
	name       string
	help       string
	labelNames []string
	buckets    []float64
	mu         sync.RWMutex
	values     map[string]*histogram
}

type histogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	total   uint64
}

func NewHistogramVec(name, help string, labels []string, buckets []float64) *HistogramVec {
	if len(buckets) == 0 {
		buckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}
	}
	return &HistogramVec{name: name, help: help, labelNames: labels, buckets: buckets, values: map[string]*histogram{}}
}

func (h *HistogramVec) Observe(v float64, values ...string) {
	if h == nil {
		return
	}
	lbl := labelString(h.labelNames, values)
	h.mu.Lock()
	defer h.mu.Unlock()
	hist, ok := h.values[lbl]
	if !ok {
		hist = &histogram{
			buckets: h.buckets,
			counts:  make([]uint64, len(h.buckets)+1),
		}
		h.values[lbl] = hist
	}
	hist.sum += v
	hist.total++
	for i, b := range hist.buckets {
		if v <= b {
			hist.counts[i]++
		}
	}
	hist.counts[len(hist.counts)-1]++
}

func (h *HistogramVec) WritePrometheus(w io.Writer) error {
	if h == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", h.name, h.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s histogram\n", h.name); err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for k, v := range h.values {
		for i, b := range v.buckets {
			if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLe(k, fmt.Sprintf("%g", b)), v.counts[i]); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLe(k, "+Inf"), v.counts[len(v.counts)-1]); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s_sum%s %f\n", h.name, k, v.sum); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s_count%s %d\n", h.name, k, v.total); err != nil {
			return err
		}
	}
	return nil
}

func labelString(names []string, values []string) string {
	if len(names) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("{")
	for i, name := range names {
		if i > 0 {
			b.WriteString(",")
		}
		val := "unknown"
		if i < len(values) {
			val = values[i]
		}
		b.WriteString(name)
		b.WriteString(`="`)
		b.WriteString(val)
		b.WriteString(`"`)
	}
	b.WriteString("}")
	return b.String()
}

func withLe(labels string, le string) string {
	if labels == "" {
		return fmt.Sprintf(`{le="%s"}`, le)
	}
	return strings.TrimSuffix(labels, "}") + fmt.Sprintf(`,le="%s"}`, le)
}
