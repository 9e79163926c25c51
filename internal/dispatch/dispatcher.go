package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/conceptgraph-backend/internal/clients/openai"
	"github.com/yungbote/conceptgraph-backend/internal/pkg/logger"
	"github.com/yungbote/conceptgraph-backend/internal/platform/envutil"
	"github.com/yungbote/conceptgraph-backend/internal/repos"
	"github.com/yungbote/conceptgraph-backend/internal/types"
)

var (
	// ErrCircuitOpen rejects a call while the tier's breaker is open.
	ErrCircuitOpen = errors.New("circuit open")
	// ErrRateLimited rejects a call when the tier's pending queue is full.
	ErrRateLimited = errors.New("rate limited")
)

// ProviderError wraps a failure returned by the inference provider.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string { return "provider error: " + e.Err.Error() }
func (e *ProviderError) Unwrap() error { return e.Err }

// Request is one pending inference call.
type Request struct {
	TenantID   string
	DocumentID uuid.UUID
	System     string
	User       string
	MaxTokens  int
	Priority   Priority
}

// Result is the billed outcome of a dispatched call.
type Result struct {
	Text       string
	TokensUsed int
	Cost       float64
	Latency    time.Duration
}

// TierStats is the observability snapshot for one tier.
type TierStats struct {
	QueueSizePerPriority map[Priority]int `json:"queue_size_per_priority"`
	InFlight             int              `json:"in_flight"`
	ErrorRate            float64          `json:"error_rate"`
	BreakerState         BreakerState     `json:"breaker_state"`
}

// TierConfig sets the rate limits for one paid tier.
type TierConfig struct {
	Model       string
	RPM         int
	MaxInFlight int
	MaxQueue    int
}

func TierConfigsFromEnv() map[types.Tier]TierConfig {
	return map[types.Tier]TierConfig{
		types.TierCheap: {
			Model:       envutil.Str("DISPATCH_MODEL_CHEAP", "gpt-4o-mini"),
			RPM:         envutil.Int("DISPATCH_RPM_CHEAP", 120),
			MaxInFlight: envutil.Int("DISPATCH_INFLIGHT_CHEAP", 8),
			MaxQueue:    envutil.Int("DISPATCH_QUEUE_CHEAP", 256),
		},
		types.TierExpensive: {
			Model:       envutil.Str("DISPATCH_MODEL_EXPENSIVE", "gpt-4o"),
			RPM:         envutil.Int("DISPATCH_RPM_EXPENSIVE", 30),
			MaxInFlight: envutil.Int("DISPATCH_INFLIGHT_EXPENSIVE", 4),
			MaxQueue:    envutil.Int("DISPATCH_QUEUE_EXPENSIVE", 64),
		},
	}
}

func breakerFromEnv() *Breaker {
	return NewBreaker(
		envutil.Int("BREAKER_WINDOW", 100),
		envutil.Float("BREAKER_ERROR_THRESHOLD", 0.30),
		envutil.Int("BREAKER_MIN_SAMPLES", 10),
		envutil.Duration("BREAKER_COOLDOWN", 30*time.Second),
	)
}

// Dispatcher is the single point of contact with the inference provider. One
// worker goroutine per tier owns the token budget, in-flight counter, and
// pending queue; callers communicate over channels rather than shared
// counters.
type Dispatcher struct {
	log     *logger.Logger
	workers map[types.Tier]*tierWorker
	cancel  context.CancelFunc
}

func NewDispatcher(baseLog *logger.Logger, provider openai.Client, callLogs repos.InferenceCallLogRepo, cfgs map[types.Tier]TierConfig) *Dispatcher {
	log := baseLog.With("service", "Dispatcher")
	ctx, cancel := context.WithCancel(context.Background())

	workers := map[types.Tier]*tierWorker{}
	for tier, cfg := range cfgs {
		w := newTierWorker(log.With("tier", string(tier)), tier, cfg, provider, callLogs, breakerFromEnv())
		workers[tier] = w
		go w.run(ctx)
	}
	return &Dispatcher{log: log, workers: workers, cancel: cancel}
}

// Dispatch queues one call on the tier and blocks until it completes, the
// caller's context ends, or the tier rejects it.
func (d *Dispatcher) Dispatch(ctx context.Context, tier types.Tier, req Request) (Result, error) {
	w, ok := d.workers[tier]
	if !ok {
		return Result{}, fmt.Errorf("no dispatcher worker for tier %q", tier)
	}
	return w.dispatch(ctx, req)
}

// QueueStats snapshots every tier for observability.
func (d *Dispatcher) QueueStats() map[types.Tier]TierStats {
	out := map[types.Tier]TierStats{}
	for tier, w := range d.workers {
		out[tier] = w.stats()
	}
	return out
}

func (d *Dispatcher) Close() {
	d.cancel()
}

type pendingCall struct {
	req   Request
	ctx   context.Context
	reply chan callReply
	probe bool
}

type callReply struct {
	res Result
	err error
}

type callOutcome struct {
	call *pendingCall
	res  Result
	err  error
}

type tierWorker struct {
	log      *logger.Logger
	tier     types.Tier
	cfg      TierConfig
	provider openai.Client
	callLogs repos.InferenceCallLogRepo
	breaker  *Breaker

	enqueueCh chan *pendingCall
	doneCh    chan callOutcome
	statsCh   chan chan TierStats

	queue    *callQueue
	inFlight int
	tokens   float64
}

func newTierWorker(log *logger.Logger, tier types.Tier, cfg TierConfig, provider openai.Client, callLogs repos.InferenceCallLogRepo, breaker *Breaker) *tierWorker {
	if cfg.RPM <= 0 {
		cfg.RPM = 60
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 4
	}
	if cfg.MaxQueue <= 0 {
		cfg.MaxQueue = 128
	}
	return &tierWorker{
		log:       log,
		tier:      tier,
		cfg:       cfg,
		provider:  provider,
		callLogs:  callLogs,
		breaker:   breaker,
		enqueueCh: make(chan *pendingCall),
		doneCh:    make(chan callOutcome),
		statsCh:   make(chan chan TierStats),
		queue:     newCallQueue(),
		tokens:    float64(cfg.RPM),
	}
}

func (w *tierWorker) dispatch(ctx context.Context, req Request) (Result, error) {
	call := &pendingCall{req: req, ctx: ctx, reply: make(chan callReply, 1)}
	select {
	case w.enqueueCh <- call:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	select {
	case r := <-call.reply:
		return r.res, r.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (w *tierWorker) stats() TierStats {
	ch := make(chan TierStats, 1)
	select {
	case w.statsCh <- ch:
		return <-ch
	case <-time.After(time.Second):
		return TierStats{BreakerState: w.breaker.State()}
	}
}

func (w *tierWorker) run(ctx context.Context) {
	refill := time.NewTicker(time.Second)
	defer refill.Stop()

	for {
		select {
		case <-ctx.Done():
			w.drain()
			return

		case call := <-w.enqueueCh:
			if w.queue.Len() >= w.cfg.MaxQueue {
				call.reply <- callReply{err: ErrRateLimited}
				continue
			}
			admit, probe := w.breaker.Allow()
			if !admit {
				call.reply <- callReply{err: ErrCircuitOpen}
				continue
			}
			call.probe = probe
			w.queue.enqueue(call)

		case out := <-w.doneCh:
			w.inFlight--
			w.breaker.Record(out.err != nil, out.call.probe)
			w.logCall(out)
			out.call.reply <- callReply{res: out.res, err: out.err}

		case <-refill.C:
			w.tokens += float64(w.cfg.RPM) / 60.0
			if w.tokens > float64(w.cfg.RPM) {
				w.tokens = float64(w.cfg.RPM)
			}

		case ch := <-w.statsCh:
			ch <- TierStats{
				QueueSizePerPriority: w.queue.sizePerPriority(),
				InFlight:             w.inFlight,
				ErrorRate:            w.breaker.ErrorRate(),
				BreakerState:         w.breaker.State(),
			}
		}

		w.pump(ctx)
	}
}

func (w *tierWorker) pump(ctx context.Context) {
	for w.tokens >= 1 && w.inFlight < w.cfg.MaxInFlight && w.queue.Len() > 0 {
		call := w.queue.dequeue()
		if call.ctx.Err() != nil {
			if call.probe {
				w.breaker.ProbeAborted()
			}
			call.reply <- callReply{err: call.ctx.Err()}
			continue
		}
		w.tokens--
		w.inFlight++
		go w.execute(ctx, call)
	}
}

func (w *tierWorker) execute(ctx context.Context, call *pendingCall) {
	start := time.Now()
	res, err := w.provider.Infer(call.ctx, w.cfg.Model, call.req.System, call.req.User, call.req.MaxTokens)
	latency := time.Since(start)

	out := callOutcome{call: call}
	if err != nil {
		out.err = &ProviderError{Err: err}
	} else {
		out.res = Result{
			Text:       res.Text,
			TokensUsed: res.TokensUsed,
			Cost:       res.Cost,
			Latency:    latency,
		}
	}
	select {
	case w.doneCh <- out:
	case <-ctx.Done():
		// Worker shutting down; answer the caller directly.
		out.call.reply <- callReply{res: out.res, err: out.err}
	}
}

func (w *tierWorker) drain() {
	for w.queue.Len() > 0 {
		call := w.queue.dequeue()
		if call.probe {
			w.breaker.ProbeAborted()
		}
		call.reply <- callReply{err: context.Canceled}
	}
}

func (w *tierWorker) logCall(out callOutcome) {
	if w.callLogs == nil {
		return
	}
	status := "ok"
	errText := ""
	if out.err != nil {
		status = "provider_error"
		errText = out.err.Error()
	}
	entry := &types.InferenceCallLog{
		TenantID:   out.call.req.TenantID,
		DocumentID: out.call.req.DocumentID,
		Tier:       string(w.tier),
		Model:      w.cfg.Model,
		Priority:   string(out.call.req.Priority),
		TokensUsed: out.res.TokensUsed,
		Cost:       out.res.Cost,
		LatencyMS:  out.res.Latency.Milliseconds(),
		Status:     status,
		ErrorText:  errText,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := w.callLogs.Create(ctx, nil, []*types.InferenceCallLog{entry}); err != nil {
			w.log.Warn("call log write failed", "error", err)
		}
	}()
}
