package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/conceptgraph-backend/internal/budget"
	"github.com/yungbote/conceptgraph-backend/internal/extraction"
	"github.com/yungbote/conceptgraph-backend/internal/gatekeeper"
	"github.com/yungbote/conceptgraph-backend/internal/mining"
	"github.com/yungbote/conceptgraph-backend/internal/observability"
	"github.com/yungbote/conceptgraph-backend/internal/pkg/logger"
	"github.com/yungbote/conceptgraph-backend/internal/platform/envutil"
	"github.com/yungbote/conceptgraph-backend/internal/segment"
	"github.com/yungbote/conceptgraph-backend/internal/types"
)

// State is the orchestrator's tagged pipeline state.
type State string

const (
	StateInit         State = "INIT"
	StateBudgetCheck  State = "BUDGET_CHECK"
	StateSegment      State = "SEGMENT"
	StateExtract      State = "EXTRACT"
	StateMinePatterns State = "MINE_PATTERNS"
	StateGateCheck    State = "GATE_CHECK"
	StatePromote      State = "PROMOTE"
	StateFinalize     State = "FINALIZE"
	StateDone         State = "DONE"
	StateError        State = "ERROR"
)

// Event drives transitions. Fail is legal from any state; Retry only from
// the gate check.
type Event string

const (
	EventAdvance Event = "advance"
	EventRetry   Event = "retry"
	EventFail    Event = "fail"
)

// Transition is the explicit state table. Unknown pairs land in ERROR.
func Transition(s State, e Event) State {
	if e == EventFail {
		return StateError
	}
	switch s {
	case StateInit:
		return StateBudgetCheck
	case StateBudgetCheck:
		return StateSegment
	case StateSegment:
		return StateExtract
	case StateExtract:
		return StateMinePatterns
	case StateMinePatterns:
		return StateGateCheck
	case StateGateCheck:
		if e == EventRetry {
			return StateExtract
		}
		return StatePromote
	case StatePromote:
		return StateFinalize
	case StateFinalize:
		return StateDone
	case StateError:
		return StateDone
	default:
		return StateError
	}
}

// Request is one document to process.
type Request struct {
	DocumentID  uuid.UUID
	TenantID    string
	Text        string
	Language    string
	ProfileName string
	MatchCtx    gatekeeper.MatchContext
}

// Orchestrator sequences the pipeline per document. One run is sequential;
// many documents run as independent instances sharing only the ledger and
// dispatcher, which are built for concurrent access.
type Orchestrator struct {
	log        *logger.Logger
	ledger     *budget.Ledger
	segmenter  segment.Segmenter
	router     *extraction.Router
	miner      *mining.Miner
	gatekeeper *gatekeeper.Gatekeeper
	metrics    *observability.Metrics

	docCaps   map[types.Tier]int
	maxSteps  int
	wallClock time.Duration

	segmentParallelism int
}

func NewOrchestrator(baseLog *logger.Logger, ledger *budget.Ledger, segmenter segment.Segmenter, router *extraction.Router, miner *mining.Miner, gk *gatekeeper.Gatekeeper, metrics *observability.Metrics) *Orchestrator {
	return &Orchestrator{
		log:                baseLog.With("service", "Orchestrator"),
		ledger:             ledger,
		segmenter:          segmenter,
		router:             router,
		miner:              miner,
		gatekeeper:         gk,
		metrics:            metrics,
		docCaps:            budget.DocCapsFromEnv(),
		maxSteps:           envutil.Int("PIPELINE_MAX_STEPS", 20),
		wallClock:          envutil.Duration("PIPELINE_WALL_CLOCK", 300*time.Second),
		segmentParallelism: envutil.Int("PIPELINE_SEGMENT_PARALLELISM", 4),
	}
}

// run carries one document's mutable pipeline state between stages.
type run struct {
	req       Request
	state     State
	steps     int
	retries   int
	escalated bool
	started   time.Time

	docBudget  *budget.DocBudget
	segments   []segment.Segment
	candidates []types.Candidate
	proposals  []types.RelationProposal
	assessment *gatekeeper.Assessment

	result *types.ProcessResult
}

// Process runs one document start to finish and always returns a result:
// complete, complete-with-fewer-promotions, or ERROR with partial data.
func (o *Orchestrator) Process(ctx context.Context, req Request) *types.ProcessResult {
	if req.DocumentID == uuid.Nil {
		req.DocumentID = uuid.New()
	}
	r := &run{
		req:       req,
		state:     StateInit,
		started:   time.Now(),
		docBudget: budget.NewDocBudget(o.docCaps),
		result: &types.ProcessResult{
			DocumentID:   req.DocumentID,
			TenantID:     req.TenantID,
			CallsPerTier: map[types.Tier]int{},
		},
	}
	log := o.log.With("document", req.DocumentID, "tenant", req.TenantID)

	for r.state != StateDone {
		event := o.step(ctx, log, r)
		next := Transition(r.state, event)
		r.steps++

		// Bounds hold at every transition, not inside stages: a started
		// model call finishes and is billed even when the clock expires.
		if r.steps > o.maxSteps && next != StateDone && next != StateError {
			o.recordError(r, fmt.Errorf("step limit %d exceeded in %s", o.maxSteps, r.state))
			next = StateError
		}
		if time.Since(r.started) > o.wallClock && next != StateDone && next != StateError {
			o.recordError(r, fmt.Errorf("wall clock %s exceeded in %s", o.wallClock, r.state))
			next = StateError
		}
		r.state = next
	}

	r.result.StepsTaken = r.steps
	r.result.ElapsedMS = time.Since(r.started).Milliseconds()
	if r.result.FinalState == "" {
		r.result.FinalState = string(StateDone)
	}
	o.metrics.RecordRun(r.result.FinalState)
	log.Info("document processed",
		"final_state", r.result.FinalState,
		"steps", r.result.StepsTaken,
		"promoted", len(r.result.PromotedEntities),
		"cost", r.result.CostIncurred,
		"elapsed_ms", r.result.ElapsedMS,
	)
	return r.result
}

// step executes the current stage and returns the driving event. Panics in
// a stage degrade to a recorded error, never to a crashed document.
func (o *Orchestrator) step(ctx context.Context, log *logger.Logger, r *run) (event Event) {
	started := time.Now()
	defer func() {
		o.metrics.ObserveStage(string(r.state), time.Since(started).Seconds())
		if rec := recover(); rec != nil {
			o.recordError(r, fmt.Errorf("stage %s panicked: %v", r.state, rec))
			event = EventFail
		}
	}()

	switch r.state {
	case StateInit:
		if r.req.Text == "" {
			o.recordError(r, fmt.Errorf("empty document text"))
			return EventFail
		}
		return EventAdvance

	case StateBudgetCheck:
		return o.stageBudgetCheck(ctx, log, r)

	case StateSegment:
		segs, err := o.segmenter.Segment(ctx, r.req.Text, r.req.Language)
		if err != nil {
			o.recordError(r, fmt.Errorf("segmentation: %w", err))
			return EventFail
		}
		if len(segs) == 0 {
			o.recordError(r, fmt.Errorf("document produced no segments"))
			return EventFail
		}
		r.segments = segs
		return EventAdvance

	case StateExtract:
		return o.stageExtract(ctx, r)

	case StateMinePatterns:
		mined := o.miner.Mine(r.candidates, len(r.segments))
		r.candidates = mined.Candidates
		r.proposals = mined.Proposals
		return EventAdvance

	case StateGateCheck:
		return o.stageGateCheck(ctx, log, r)

	case StatePromote:
		return o.stagePromote(ctx, r)

	case StateFinalize:
		o.ledgerHealth(r)
		return EventAdvance

	case StateError:
		r.result.FinalState = string(StateError)
		return EventAdvance

	default:
		o.recordError(r, fmt.Errorf("unknown state %s", r.state))
		return EventFail
	}
}

func (o *Orchestrator) stageBudgetCheck(ctx context.Context, log *logger.Logger, r *run) Event {
	// Advisory: tier fallback inside extraction handles races and partial
	// exhaustion. A document only refuses to start when every paid tier is
	// gone AND the no-inference path is disabled.
	for _, tier := range types.PaidTiers() {
		d := o.ledger.CheckBudget(ctx, r.req.TenantID, tier, 1)
		if !d.OK {
			log.Info("tier exhausted before start", "tier", tier, "reason", d.Reason)
		}
	}
	return EventAdvance
}

func (o *Orchestrator) stageExtract(ctx context.Context, r *run) Event {
	results := make([]extraction.RouteResult, len(r.segments))

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(o.segmentParallelism)
	for i, seg := range r.segments {
		grp.Go(func() error {
			if r.escalated {
				results[i] = o.router.ExtractSegmentEscalated(gctx, r.req.DocumentID, r.req.TenantID, seg, r.docBudget)
			} else {
				results[i] = o.router.ExtractSegment(gctx, r.req.DocumentID, r.req.TenantID, seg, r.docBudget)
			}
			return nil
		})
	}
	_ = grp.Wait()

	r.candidates = r.candidates[:0]
	for _, res := range results {
		r.candidates = append(r.candidates, res.Candidates...)
		for tier, calls := range res.Calls {
			r.result.CallsPerTier[tier] += calls
			o.metrics.RecordInference(string(tier), calls, 0)
		}
		o.metrics.RecordInference(string(res.Tier), 0, res.Cost)
	}
	// DocBudget carries the billed total across both extraction passes.
	r.result.CostIncurred = r.docBudget.Cost()
	return EventAdvance
}

// stageGateCheck runs relevance and the quality gate without persisting.
// On a below-floor promotion rate the first extraction is discarded and
// rerun at the escalated tier, once; the second pass stands regardless
// of rate.
func (o *Orchestrator) stageGateCheck(ctx context.Context, log *logger.Logger, r *run) Event {
	assessed := o.gatekeeper.Assess(ctx, o.gateInput(r))
	if assessed.BelowFloor && r.retries == 0 {
		r.retries++
		r.escalated = true
		r.assessment = nil // the retry pass replaces the candidate set
		o.metrics.RecordGateRetry()
		log.Info("promotion rate below floor, retrying with escalated tier",
			"rate", assessed.PromotionRate,
		)
		return EventRetry
	}
	r.assessment = assessed
	return EventAdvance
}

func (o *Orchestrator) stagePromote(ctx context.Context, r *run) Event {
	out := o.gatekeeper.Process(ctx, o.gateInput(r), r.assessment)
	o.metrics.RecordGate(len(r.candidates)-out.RejectedCount, out.RejectedCount)

	for _, e := range out.Promoted {
		r.result.PromotedEntities = append(r.result.PromotedEntities, *e)
	}
	r.result.Relations = append(r.result.Relations, out.Relations...)
	r.result.Errors = append(r.result.Errors, out.Errors...)
	o.metrics.RecordPromotion(len(out.Promoted), out.LinkedExisting, len(out.Relations), out.DroppedRelations)
	return EventAdvance
}

func (o *Orchestrator) gateInput(r *run) gatekeeper.Input {
	return gatekeeper.Input{
		TenantID:     r.req.TenantID,
		DocumentID:   r.req.DocumentID,
		DocText:      r.req.Text,
		SegmentCount: len(r.segments),
		Candidates:   r.candidates,
		Proposals:    r.proposals,
		ProfileName:  r.req.ProfileName,
		MatchCtx:     r.req.MatchCtx,
	}
}

func (o *Orchestrator) ledgerHealth(r *run) {
	degraded := o.ledger.Degraded()
	o.metrics.SetBudgetDegraded(degraded)
	if degraded {
		r.result.Errors = append(r.result.Errors, "budget ledger degraded to local counting")
	}
}

func (o *Orchestrator) recordError(r *run, err error) {
	o.log.Error("pipeline stage failed",
		"document", r.req.DocumentID,
		"state", r.state,
		"error", err,
	)
	r.result.Errors = append(r.result.Errors, err.Error())
	r.result.FinalState = string(StateError)
}
