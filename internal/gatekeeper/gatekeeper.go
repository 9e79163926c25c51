package gatekeeper

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/conceptgraph-backend/internal/pkg/logger"
	"github.com/yungbote/conceptgraph-backend/internal/platform/envutil"
	"github.com/yungbote/conceptgraph-backend/internal/types"
)

// Input is one document's gate-and-promote request.
type Input struct {
	TenantID     string
	DocumentID   uuid.UUID
	DocText      string
	SegmentCount int
	Candidates   []types.Candidate
	Proposals    []types.RelationProposal
	ProfileName  string
	MatchCtx     MatchContext
}

// Outcome reports everything downstream of the gate for one document.
type Outcome struct {
	Promoted         []*types.CanonicalEntity
	Relations        []types.Relation
	PromotionRate    float64
	BelowFloor       bool
	RejectedCount    int
	LinkedExisting   int
	DroppedRelations int
	Errors           []string
}

// Gatekeeper runs the four ordered phases per document: contextual relevance,
// quality gate, canonicalization cascade, persistence.
type Gatekeeper struct {
	log        *logger.Logger
	centrality *CentralityScorer
	roles      *RoleClassifier
	profiles   map[string]Profile
	canon      *Canonicalizer
	persister  *Persister

	resolveParallelism int
}

func NewGatekeeper(baseLog *logger.Logger, centrality *CentralityScorer, roles *RoleClassifier, canon *Canonicalizer, persister *Persister) *Gatekeeper {
	log := baseLog.With("service", "Gatekeeper")
	return &Gatekeeper{
		log:                log,
		centrality:         centrality,
		roles:              roles,
		profiles:           LoadProfiles(log),
		canon:              canon,
		persister:          persister,
		resolveParallelism: envutil.Int("GATE_RESOLVE_PARALLELISM", 8),
	}
}

func (g *Gatekeeper) Profile(name string) Profile {
	if p, ok := g.profiles[name]; ok {
		return p
	}
	return g.profiles["balanced"]
}

// assess runs the relevance and quality phases. The relevance cascade is
// skip-safe: a missing document text or scorer leaves confidences untouched.
func (g *Gatekeeper) assess(ctx context.Context, in Input) GateResult {
	candidates := in.Candidates

	// Phase A: contextual relevance, only with full document text.
	if in.DocText != "" {
		if g.centrality != nil {
			candidates = g.centrality.Score(in.DocText, candidates, in.SegmentCount)
		}
		if g.roles != nil {
			candidates = g.roles.Classify(ctx, in.DocText, candidates)
		}
	}

	// Phase B: quality gate.
	gated := Gate(candidates, g.Profile(in.ProfileName))
	for _, rej := range gated.Rejected {
		g.log.Debug("candidate rejected", "candidate", rej.Candidate.Norm, "reason", rej.Reason)
	}
	return gated
}

// Assessment is the reusable output of the relevance and quality phases.
// The gate check computes it once per extraction pass; promotion consumes
// it without re-running relevance scoring, so role classification embeds
// each mention context exactly once per pass.
type Assessment struct {
	PromotionRate float64
	BelowFloor    bool
	RejectedCount int

	gated GateResult
}

// Assess runs the relevance and quality phases without canonicalizing or
// persisting anything. The returned Assessment feeds a later Process over
// the same candidate set.
func (g *Gatekeeper) Assess(ctx context.Context, in Input) *Assessment {
	gated := g.assess(ctx, in)
	return &Assessment{
		PromotionRate: gated.PromotionRate,
		BelowFloor:    gated.BelowFloor,
		RejectedCount: len(gated.Rejected),
		gated:         gated,
	}
}

// Process runs the cascade and persistence over a prior Assessment. A nil
// prior assesses in place, for callers outside the two-stage pipeline.
func (g *Gatekeeper) Process(ctx context.Context, in Input, prior *Assessment) Outcome {
	if prior == nil {
		prior = g.Assess(ctx, in)
	}
	gated := prior.gated
	out := Outcome{
		PromotionRate: gated.PromotionRate,
		BelowFloor:    gated.BelowFloor,
		RejectedCount: len(gated.Rejected),
	}
	if len(gated.Promoted) == 0 {
		return out
	}

	// Phase C: canonicalization cascade, parallel across candidates. The
	// strategies are read-only over shared state so this is safe.
	published := g.canon.PublishedNames(ctx, in.TenantID)
	resolved := make([]ResolvedCandidate, len(gated.Promoted))
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(g.resolveParallelism)
	for i, cand := range gated.Promoted {
		grp.Go(func() error {
			res, err := g.canon.Resolve(gctx, cand, in.MatchCtx, published)
			if err != nil {
				g.log.Warn("candidate unresolved", "candidate", cand.Norm, "error", err)
				return nil
			}
			resolved[i] = ResolvedCandidate{Candidate: cand, Resolution: res}
			return nil
		})
	}
	_ = grp.Wait()

	withResolution := resolved[:0]
	for _, rc := range resolved {
		if rc.Resolution.CanonicalName != "" {
			withResolution = append(withResolution, rc)
		}
	}

	// Phase D: persistence and relation resolution.
	promoted := g.persister.Promote(ctx, in.TenantID, withResolution, in.Proposals)
	out.Promoted = promoted.Entities
	out.Relations = promoted.Relations
	out.LinkedExisting = promoted.LinkedExisting
	out.DroppedRelations = promoted.DroppedRelations
	out.Errors = promoted.Errors
	return out
}
