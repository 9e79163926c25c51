package gatekeeper

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/conceptgraph-backend/internal/graph"
	pkgerrors "github.com/yungbote/conceptgraph-backend/internal/pkg/errors"
	"github.com/yungbote/conceptgraph-backend/internal/pkg/logger"
	"github.com/yungbote/conceptgraph-backend/internal/types"
	"github.com/yungbote/conceptgraph-backend/internal/vector"
)

// AutoLearner catalogs heuristic-resolved names for future validation.
// Implemented by the ontology service; nil disables auto-learning.
type AutoLearner interface {
	Learn(ctx context.Context, cand types.Candidate, canonicalName string) (*types.OntologyEntry, error)
}

// PromoteOutcome is the Phase D result: what was published, what was linked,
// and what was dropped on the floor.
type PromoteOutcome struct {
	Entities         []*types.CanonicalEntity
	Relations        []types.Relation
	LinkedExisting   int
	DroppedRelations int
	Errors           []string
}

// Persister publishes resolved candidates to the graph store, deduplicating
// on (tenant, canonical name), and translates relation proposals into edges.
// Every write is best-effort per candidate: one failure is logged and
// skipped, never fatal to the document.
type Persister struct {
	log      *logger.Logger
	store    graph.Store
	learner  AutoLearner
	vectors  vector.Store
	embedder Embedder
}

func NewPersister(baseLog *logger.Logger, store graph.Store, learner AutoLearner) *Persister {
	return &Persister{
		log:     baseLog.With("service", "GatekeeperPersist"),
		store:   store,
		learner: learner,
	}
}

// WithVectorIndex enables semantic indexing of newly published names.
// Both collaborators are optional; either one missing disables the index.
func (p *Persister) WithVectorIndex(vectors vector.Store, embedder Embedder) *Persister {
	p.vectors = vectors
	p.embedder = embedder
	return p
}

// Promote publishes one document's resolved candidates and relations.
func (p *Persister) Promote(ctx context.Context, tenantID string, resolved []ResolvedCandidate, proposals []types.RelationProposal) PromoteOutcome {
	out := PromoteOutcome{}
	idByNorm := map[string]uuid.UUID{}

	for _, rc := range resolved {
		entity, linked, err := p.promoteOne(ctx, tenantID, rc)
		if err != nil {
			msg := fmt.Sprintf("persist %q: %v", rc.Resolution.CanonicalName, err)
			p.log.Warn("candidate persistence skipped", "candidate", rc.Candidate.Norm, "error", err)
			out.Errors = append(out.Errors, msg)
			continue
		}
		if linked {
			out.LinkedExisting++
		} else {
			out.Entities = append(out.Entities, entity)
		}
		idByNorm[rc.Candidate.Norm] = entity.ID
	}

	for _, prop := range proposals {
		fromID, okA := idByNorm[prop.NameA]
		toID, okB := idByNorm[prop.NameB]
		if !okA || !okB {
			out.DroppedRelations++
			continue
		}
		rel := types.Relation{
			FromID:   fromID,
			ToID:     toID,
			Type:     "co_occurrence",
			Weight:   prop.Weight,
			TenantID: tenantID,
		}
		if err := p.store.CreateRelation(ctx, rel); err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("relation %s→%s: %v", prop.NameA, prop.NameB, err))
			continue
		}
		out.Relations = append(out.Relations, rel)
	}
	if out.DroppedRelations > 0 {
		p.log.Info("relations dropped for unpromoted endpoints", "dropped", out.DroppedRelations)
	}

	return out
}

// ResolvedCandidate pairs a gated candidate with its cascade resolution.
type ResolvedCandidate struct {
	Candidate  types.Candidate
	Resolution Resolution
}

func (p *Persister) promoteOne(ctx context.Context, tenantID string, rc ResolvedCandidate) (*types.CanonicalEntity, bool, error) {
	name := rc.Resolution.CanonicalName
	if name == "" {
		return nil, false, fmt.Errorf("empty canonical name")
	}

	if rc.Resolution.AutoLearn && p.learner != nil {
		if entry, err := p.learner.Learn(ctx, rc.Candidate, name); err != nil {
			p.log.Warn("auto-learn failed", "name", name, "error", err)
		} else if entry != nil && rc.Resolution.EntryID == nil {
			rc.Resolution.EntryID = &entry.ID
		}
	}

	existing, err := p.store.FindByName(ctx, tenantID, name)
	if err == nil {
		if lerr := p.store.LinkExisting(ctx, existing.ID, rc.Candidate.RawText, rc.Resolution.Confidence); lerr != nil {
			return nil, false, lerr
		}
		return existing, true, nil
	}
	if !errors.Is(err, pkgerrors.ErrNotFound) {
		return nil, false, err
	}

	trace := rc.Resolution.Trace
	entity := &types.CanonicalEntity{
		ID:            uuid.New(),
		TenantID:      tenantID,
		CanonicalName: name,
		SurfaceForms:  []string{rc.Candidate.RawText},
		EntityType:    rc.Candidate.EntityType,
		QualityScore:  rc.Resolution.Confidence,
		OntologyRefID: rc.Resolution.EntryID,
		Trace:         &trace,
		Metadata: map[string]any{
			"strategy":      string(rc.Resolution.Strategy),
			"document_id":   rc.Candidate.DocumentID.String(),
			"pattern_score": rc.Candidate.PatternScore,
		},
	}
	created, err := p.store.Create(ctx, entity)
	if err != nil {
		return nil, false, err
	}
	p.indexEntity(ctx, created)
	return created, false, nil
}

// indexEntity upserts the canonical name's embedding for semantic lookups.
// Best-effort: the graph write already succeeded, a missed index entry only
// weakens future neighbor queries.
func (p *Persister) indexEntity(ctx context.Context, entity *types.CanonicalEntity) {
	if p.vectors == nil || p.embedder == nil {
		return
	}
	vecs, err := p.embedder.Embed(ctx, []string{entity.CanonicalName})
	if err != nil || len(vecs) == 0 {
		p.log.Warn("entity embedding skipped", "name", entity.CanonicalName, "error", err)
		return
	}
	point := vector.Point{
		ID:     entity.ID.String(),
		Vector: vecs[0],
		Payload: map[string]any{
			"tenant_id":      entity.TenantID,
			"canonical_name": entity.CanonicalName,
			"entity_type":    entity.EntityType,
		},
	}
	if err := p.vectors.Upsert(ctx, []vector.Point{point}); err != nil {
		p.log.Warn("entity embedding upsert failed", "name", entity.CanonicalName, "error", err)
	}
}
