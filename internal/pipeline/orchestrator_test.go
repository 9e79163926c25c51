package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/conceptgraph-backend/internal/budget"
	"github.com/yungbote/conceptgraph-backend/internal/dispatch"
	"github.com/yungbote/conceptgraph-backend/internal/extraction"
	"github.com/yungbote/conceptgraph-backend/internal/gatekeeper"
	"github.com/yungbote/conceptgraph-backend/internal/graph"
	"github.com/yungbote/conceptgraph-backend/internal/mining"
	"github.com/yungbote/conceptgraph-backend/internal/pkg/logger"
	"github.com/yungbote/conceptgraph-backend/internal/segment"
	"github.com/yungbote/conceptgraph-backend/internal/types"
)

// tierCaller scripts one response per tier. Segments run in parallel, so
// state is mutex-guarded.
type tierCaller struct {
	mu        sync.Mutex
	responses map[types.Tier]string
	err       error
	tiers     []types.Tier
}

func (c *tierCaller) Dispatch(_ context.Context, tier types.Tier, _ dispatch.Request) (dispatch.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tiers = append(c.tiers, tier)
	if c.err != nil {
		return dispatch.Result{}, c.err
	}
	text, ok := c.responses[tier]
	if !ok {
		return dispatch.Result{}, errors.New("no scripted response for tier " + string(tier))
	}
	return dispatch.Result{Text: text, TokensUsed: 50, Cost: 0.002}, nil
}

func (c *tierCaller) tiersSeen() []types.Tier {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.Tier(nil), c.tiers...)
}

type fixedSegmenter struct {
	segments []segment.Segment
	err      error
}

func (s *fixedSegmenter) Segment(_ context.Context, _ string, _ string) ([]segment.Segment, error) {
	return s.segments, s.err
}

func newTestOrchestrator(t *testing.T, caller extraction.Caller, seg segment.Segmenter) *Orchestrator {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	ledger := budget.NewLedger(log, budget.Config{
		DailyCallCap: map[types.Tier]int64{types.TierCheap: 100, types.TierExpensive: 100},
		DailyExpiry:  24 * time.Hour,
	}, nil)
	router := extraction.NewRouter(log, extraction.DensityThresholds{Low: 1.5, High: 5.0}, ledger, caller, extraction.NewHeuristicExtractor())

	store := graph.NewMemoryStore()
	canon := gatekeeper.NewCanonicalizer(log, nil, nil, store, gatekeeper.NewThresholdSelector())
	persister := gatekeeper.NewPersister(log, store, nil)
	gk := gatekeeper.NewGatekeeper(log, nil, nil, canon, persister)

	return NewOrchestrator(log, ledger, seg, router, mining.NewMiner(), gk, nil)
}

// cheapSegment routes to the cheap tier: one capitalized run in forty words
// lands the density probe between the band edges.
func cheapSegment(index int) segment.Segment {
	filler := strings.Repeat("the report describes integration across widely deployed storage systems in several regions ", 3)
	return segment.Segment{Index: index, Text: "Acme Cloud " + filler}
}

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		name  string
		state State
		event Event
		want  State
	}{
		{name: "init_advances_to_budget", state: StateInit, event: EventAdvance, want: StateBudgetCheck},
		{name: "budget_advances_to_segment", state: StateBudgetCheck, event: EventAdvance, want: StateSegment},
		{name: "segment_advances_to_extract", state: StateSegment, event: EventAdvance, want: StateExtract},
		{name: "extract_advances_to_mine", state: StateExtract, event: EventAdvance, want: StateMinePatterns},
		{name: "mine_advances_to_gate", state: StateMinePatterns, event: EventAdvance, want: StateGateCheck},
		{name: "gate_advances_to_promote", state: StateGateCheck, event: EventAdvance, want: StatePromote},
		{name: "gate_retry_reenters_extract", state: StateGateCheck, event: EventRetry, want: StateExtract},
		{name: "promote_advances_to_finalize", state: StatePromote, event: EventAdvance, want: StateFinalize},
		{name: "finalize_advances_to_done", state: StateFinalize, event: EventAdvance, want: StateDone},
		{name: "error_drains_to_done", state: StateError, event: EventAdvance, want: StateDone},
		{name: "fail_from_extract_goes_error", state: StateExtract, event: EventFail, want: StateError},
		{name: "fail_from_init_goes_error", state: StateInit, event: EventFail, want: StateError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Transition(tc.state, tc.event); got != tc.want {
				t.Fatalf("Transition(%s, %s)=%s, want %s", tc.state, tc.event, got, tc.want)
			}
		})
	}
}

func TestProcessHappyPath(t *testing.T) {
	caller := &tierCaller{responses: map[types.Tier]string{
		types.TierCheap: `[{"name":"Acme Cloud","type":"product","confidence":0.9},{"name":"Globex","type":"organization","confidence":0.8}]`,
	}}
	segmenter := &fixedSegmenter{segments: []segment.Segment{cheapSegment(0)}}
	o := newTestOrchestrator(t, caller, segmenter)

	res := o.Process(context.Background(), Request{TenantID: "acme", Text: "Acme Cloud launch notes"})

	if res.FinalState != string(StateDone) {
		t.Fatalf("final state=%s (errors=%v), want DONE", res.FinalState, res.Errors)
	}
	if len(res.PromotedEntities) != 2 {
		t.Fatalf("promoted=%d, want 2", len(res.PromotedEntities))
	}
	if res.CallsPerTier[types.TierCheap] != 1 {
		t.Fatalf("cheap calls=%d, want 1", res.CallsPerTier[types.TierCheap])
	}
	if res.CostIncurred <= 0 {
		t.Fatalf("cost=%f, want billed cost carried into the result", res.CostIncurred)
	}
	if res.StepsTaken == 0 || res.StepsTaken > 20 {
		t.Fatalf("steps=%d, want a bounded positive count", res.StepsTaken)
	}
	if res.ElapsedMS < 0 {
		t.Fatalf("elapsed=%d, want non-negative", res.ElapsedMS)
	}
}

func TestProcessRetriesOnceWithEscalatedTier(t *testing.T) {
	// Cheap-tier extractions fall below the balanced promotion floor; the
	// single retry escalates to the expensive tier, which clears it.
	caller := &tierCaller{responses: map[types.Tier]string{
		types.TierCheap:     `[{"name":"Acme Cloud","type":"product","confidence":0.2}]`,
		types.TierExpensive: `[{"name":"Acme Cloud","type":"product","confidence":0.95}]`,
	}}
	segmenter := &fixedSegmenter{segments: []segment.Segment{cheapSegment(0)}}
	o := newTestOrchestrator(t, caller, segmenter)

	res := o.Process(context.Background(), Request{TenantID: "acme", Text: "Acme Cloud launch notes"})

	if res.FinalState != string(StateDone) {
		t.Fatalf("final state=%s (errors=%v), want DONE", res.FinalState, res.Errors)
	}
	tiers := caller.tiersSeen()
	if len(tiers) != 2 {
		t.Fatalf("dispatches=%d (%v), want 2 (first pass + escalated retry)", len(tiers), tiers)
	}
	if tiers[0] != types.TierCheap || tiers[1] != types.TierExpensive {
		t.Fatalf("tiers=%v, want cheap then expensive", tiers)
	}
	if len(res.PromotedEntities) != 1 {
		t.Fatalf("promoted=%d, want 1 from the escalated pass", len(res.PromotedEntities))
	}
	if res.CallsPerTier[types.TierCheap] != 1 || res.CallsPerTier[types.TierExpensive] != 1 {
		t.Fatalf("calls per tier=%v, want one call on each", res.CallsPerTier)
	}
}

func TestProcessRetryIsSingle(t *testing.T) {
	// Both passes stay below the floor: the pipeline must still finish,
	// with the second pass's (empty) promotion set standing.
	caller := &tierCaller{responses: map[types.Tier]string{
		types.TierCheap:     `[{"name":"Acme Cloud","type":"product","confidence":0.2}]`,
		types.TierExpensive: `[{"name":"Acme Cloud","type":"product","confidence":0.2}]`,
	}}
	segmenter := &fixedSegmenter{segments: []segment.Segment{cheapSegment(0)}}
	o := newTestOrchestrator(t, caller, segmenter)

	res := o.Process(context.Background(), Request{TenantID: "acme", Text: "Acme Cloud launch notes"})

	if res.FinalState != string(StateDone) {
		t.Fatalf("final state=%s, want DONE even when the floor is never cleared", res.FinalState)
	}
	if got := len(caller.tiersSeen()); got != 2 {
		t.Fatalf("dispatches=%d, want exactly 2: the retry happens once", got)
	}
	if len(res.PromotedEntities) != 0 {
		t.Fatalf("promoted=%d, want 0", len(res.PromotedEntities))
	}
}

func TestProcessSegmentationFailureYieldsPartialResult(t *testing.T) {
	segmenter := &fixedSegmenter{err: errors.New("segmentation service unreachable")}
	o := newTestOrchestrator(t, &tierCaller{}, segmenter)

	res := o.Process(context.Background(), Request{TenantID: "acme", Text: "Acme Cloud launch notes"})

	if res.FinalState != string(StateError) {
		t.Fatalf("final state=%s, want ERROR", res.FinalState)
	}
	if len(res.Errors) == 0 {
		t.Fatalf("expected the failure recorded in the result")
	}
	if res.TenantID != "acme" || res.DocumentID.String() == "" {
		t.Fatalf("partial result missing identity: %+v", res)
	}
}

func TestProcessEmptyDocumentFailsFast(t *testing.T) {
	o := newTestOrchestrator(t, &tierCaller{}, &fixedSegmenter{})

	res := o.Process(context.Background(), Request{TenantID: "acme", Text: ""})

	if res.FinalState != string(StateError) {
		t.Fatalf("final state=%s, want ERROR", res.FinalState)
	}
}

func TestProcessStepLimit(t *testing.T) {
	t.Setenv("PIPELINE_MAX_STEPS", "2")
	caller := &tierCaller{responses: map[types.Tier]string{
		types.TierCheap: `[{"name":"Acme Cloud","type":"product","confidence":0.9}]`,
	}}
	segmenter := &fixedSegmenter{segments: []segment.Segment{cheapSegment(0)}}
	o := newTestOrchestrator(t, caller, segmenter)

	res := o.Process(context.Background(), Request{TenantID: "acme", Text: "Acme Cloud launch notes"})

	if res.FinalState != string(StateError) {
		t.Fatalf("final state=%s, want ERROR when the step limit trips", res.FinalState)
	}
	found := false
	for _, e := range res.Errors {
		if strings.Contains(e, "step limit") {
			found = true
		}
	}
	if !found {
		t.Fatalf("errors=%v, want a step limit entry", res.Errors)
	}
}

func TestProcessWallClock(t *testing.T) {
	t.Setenv("PIPELINE_WALL_CLOCK", "1ns")
	caller := &tierCaller{responses: map[types.Tier]string{
		types.TierCheap: `[{"name":"Acme Cloud","type":"product","confidence":0.9}]`,
	}}
	segmenter := &fixedSegmenter{segments: []segment.Segment{cheapSegment(0)}}
	o := newTestOrchestrator(t, caller, segmenter)

	res := o.Process(context.Background(), Request{TenantID: "acme", Text: "Acme Cloud launch notes"})

	if res.FinalState != string(StateError) {
		t.Fatalf("final state=%s, want ERROR when the wall clock expires", res.FinalState)
	}
	found := false
	for _, e := range res.Errors {
		if strings.Contains(e, "wall clock") {
			found = true
		}
	}
	if !found {
		t.Fatalf("errors=%v, want a wall clock entry", res.Errors)
	}
}
