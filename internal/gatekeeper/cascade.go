package gatekeeper

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/conceptgraph-backend/internal/graph"
	"github.com/yungbote/conceptgraph-backend/internal/pkg/logger"
	"github.com/yungbote/conceptgraph-backend/internal/repos"
	"github.com/yungbote/conceptgraph-backend/internal/types"
)

// Resolution is the cascade's final verdict for one candidate.
type Resolution struct {
	CanonicalName string
	Strategy      types.MatchStrategy
	Confidence    float64
	EntryID       *uuid.UUID
	EntityID      *uuid.UUID
	AutoLearn     bool
	Trace         types.DecisionTrace
}

// Canonicalizer runs the ordered strategy cascade, short-circuiting on first
// success and recording every attempt in the decision trace.
type Canonicalizer struct {
	log        *logger.Logger
	store      graph.Store
	selector   *ThresholdSelector
	strategies []Strategy
}

func NewCanonicalizer(baseLog *logger.Logger, repo repos.OntologyEntryRepo, db *gorm.DB, store graph.Store, selector *ThresholdSelector) *Canonicalizer {
	return &Canonicalizer{
		log:      baseLog.With("service", "Canonicalizer"),
		store:    store,
		selector: selector,
		strategies: []Strategy{
			&ontologyStrategy{repo: repo, db: db},
			&fuzzyStrategy{},
			&structuralStrategy{},
			&heuristicStrategy{},
		},
	}
}

// PublishedNames loads the tenant's name index once per document so the
// lexical strategies do not hit the store per candidate.
func (c *Canonicalizer) PublishedNames(ctx context.Context, tenantID string) []NameRef {
	if c.store == nil {
		return nil
	}
	records, err := c.store.ListNames(ctx, tenantID, 0)
	if err != nil {
		c.log.Warn("published name index unavailable, lexical matching degraded", "error", err)
		return nil
	}
	out := make([]NameRef, 0, len(records))
	for _, r := range records {
		out = append(out, NameRef{ID: r.ID, Name: r.Name})
	}
	return out
}

// Resolve runs the cascade for one candidate. The heuristic tail always
// succeeds, so a nil error implies a usable resolution.
func (c *Canonicalizer) Resolve(ctx context.Context, cand types.Candidate, matchCtx MatchContext, published []NameRef) (Resolution, error) {
	th := c.selector.Select(matchCtx)
	res := Resolution{}

	for _, strat := range c.strategies {
		match, err := strat.Attempt(ctx, cand, th, published)
		if err != nil {
			// Collaborator failure: record the attempt as failed and let the
			// cascade continue downward rather than losing the candidate.
			c.log.Warn("strategy errored, cascading past it",
				"strategy", strat.Name(),
				"candidate", cand.Norm,
				"error", err,
			)
			res.Trace.Append(types.StrategyAttempt{
				Strategy:  strat.Name(),
				Attempted: true,
				Metadata:  map[string]any{"error": err.Error()},
			})
			continue
		}

		res.Trace.Append(types.StrategyAttempt{
			Strategy:  strat.Name(),
			Attempted: true,
			Succeeded: match.Success,
			Score:     match.Score,
			Metadata:  match.Metadata,
		})

		if !match.Success {
			continue
		}

		res.CanonicalName = match.CanonicalName
		res.Strategy = strat.Name()
		res.Confidence = finalConfidence(cand, match, strat.Name())
		res.EntryID = match.EntryID
		res.EntityID = match.EntityID
		res.AutoLearn = match.AutoLearn
		res.Trace.Finalize(res.CanonicalName, res.Strategy, res.Confidence)
		return res, nil
	}

	return res, fmt.Errorf("no strategy resolved candidate %q", cand.Norm)
}

// finalConfidence blends the candidate's own confidence with the match
// strength. An ontology hit is catalog truth and pins confidence to 1.0.
func finalConfidence(cand types.Candidate, match MatchResult, strategy types.MatchStrategy) float64 {
	switch strategy {
	case types.StrategyOntology:
		return 1.0
	case types.StrategyHeuristic:
		return cand.Confidence
	default:
		conf := (cand.Confidence + match.Score) / 2
		if conf > 1 {
			conf = 1
		}
		return conf
	}
}
