package gatekeeper

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/conceptgraph-backend/internal/graph"
	"github.com/yungbote/conceptgraph-backend/internal/types"
)

// countingEmbedder tallies Embed calls to show how often role classification
// actually reaches the provider.
type countingEmbedder struct {
	inner markerEmbedder
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	c.calls++
	return c.inner.Embed(ctx, inputs)
}

func TestProcessReusesAssessment(t *testing.T) {
	log := testLogger(t)
	embedder := &countingEmbedder{}
	store := graph.NewMemoryStore()
	canon := NewCanonicalizer(log, newFakeOntologyRepo(), nil, store, NewThresholdSelector())
	persister := NewPersister(log, store, nil)
	gk := NewGatekeeper(log, NewCentralityScorer(), NewRoleClassifier(log, embedder), canon, persister)

	in := Input{
		TenantID:     "acme",
		DocumentID:   uuid.New(),
		DocText:      roleDoc,
		SegmentCount: 3,
		Candidates: []types.Candidate{
			{RawText: "Acme Cloud", Norm: "acme cloud", Confidence: 0.75, TenantID: "acme"},
			{RawText: "Globex", Norm: "globex", Confidence: 0.75, TenantID: "acme"},
		},
		ProfileName: "balanced",
	}

	assessed := gk.Assess(context.Background(), in)
	afterAssess := embedder.calls
	if afterAssess == 0 {
		t.Fatalf("assess never reached the embedder")
	}

	out := gk.Process(context.Background(), in, assessed)
	if embedder.calls != afterAssess {
		t.Fatalf("embed calls=%d after promote, want %d (assessment reused, no re-embedding)",
			embedder.calls, afterAssess)
	}
	if out.PromotionRate != assessed.PromotionRate || out.RejectedCount != assessed.RejectedCount {
		t.Fatalf("promote outcome %+v diverged from assessment %+v", out, assessed)
	}
	if len(out.Promoted) == 0 {
		t.Fatalf("promote persisted nothing from the assessed set")
	}
}

func TestProcessWithoutPriorAssessmentStandsAlone(t *testing.T) {
	log := testLogger(t)
	embedder := &countingEmbedder{}
	store := graph.NewMemoryStore()
	canon := NewCanonicalizer(log, newFakeOntologyRepo(), nil, store, NewThresholdSelector())
	persister := NewPersister(log, store, nil)
	gk := NewGatekeeper(log, NewCentralityScorer(), NewRoleClassifier(log, embedder), canon, persister)

	in := Input{
		TenantID:     "acme",
		DocumentID:   uuid.New(),
		DocText:      roleDoc,
		SegmentCount: 3,
		Candidates: []types.Candidate{
			{RawText: "Acme Cloud", Norm: "acme cloud", Confidence: 0.75, TenantID: "acme"},
		},
		ProfileName: "balanced",
	}

	out := gk.Process(context.Background(), in, nil)
	if embedder.calls == 0 {
		t.Fatalf("nil prior must assess in place")
	}
	if len(out.Promoted) != 1 {
		t.Fatalf("promoted=%d, want 1", len(out.Promoted))
	}
}
