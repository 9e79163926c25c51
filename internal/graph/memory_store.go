package graph

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/yungbote/conceptgraph-backend/internal/pkg/errors"
	"github.com/yungbote/conceptgraph-backend/internal/types"
)

// MemoryStore is the degraded-mode graph store used when neo4j is not
// configured or unreachable. Duplicate creation across processes is possible
// in this mode; the pipeline accepts that in exchange for availability.
type MemoryStore struct {
	mu        sync.RWMutex
	byKey     map[string]*types.CanonicalEntity // tenant|name_key
	byID      map[uuid.UUID]*types.CanonicalEntity
	relations []types.Relation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byKey: map[string]*types.CanonicalEntity{},
		byID:  map[uuid.UUID]*types.CanonicalEntity{},
	}
}

func (s *MemoryStore) key(tenantID, name string) string {
	return tenantID + "|" + nameKey(name)
}

func (s *MemoryStore) FindByName(_ context.Context, tenantID, canonicalName string) (*types.CanonicalEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byKey[s.key(tenantID, canonicalName)]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *MemoryStore) Create(_ context.Context, entity *types.CanonicalEntity) (*types.CanonicalEntity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.key(entity.TenantID, entity.CanonicalName)
	if existing, ok := s.byKey[k]; ok {
		cp := *existing
		return &cp, nil
	}
	if entity.ID == uuid.Nil {
		entity.ID = uuid.New()
	}
	now := time.Now().UTC()
	entity.CreatedAt = now
	entity.UpdatedAt = now
	cp := *entity
	s.byKey[k] = &cp
	s.byID[cp.ID] = &cp
	return entity, nil
}

func (s *MemoryStore) LinkExisting(_ context.Context, id uuid.UUID, surfaceForm string, qualityScore float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return pkgerrors.ErrNotFound
	}
	seen := false
	for _, f := range e.SurfaceForms {
		if f == surfaceForm {
			seen = true
			break
		}
	}
	if !seen {
		e.SurfaceForms = append(e.SurfaceForms, surfaceForm)
	}
	if qualityScore > e.QualityScore {
		e.QualityScore = qualityScore
	}
	e.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) CreateRelation(_ context.Context, rel types.Relation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.relations {
		r := &s.relations[i]
		if r.FromID == rel.FromID && r.ToID == rel.ToID && r.Type == rel.Type {
			if rel.Weight > r.Weight {
				r.Weight = rel.Weight
			}
			return nil
		}
	}
	s.relations = append(s.relations, rel)
	return nil
}

func (s *MemoryStore) ListNames(_ context.Context, tenantID string, limit int) ([]NameRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []NameRecord
	for _, e := range s.byID {
		if e.TenantID != tenantID {
			continue
		}
		out = append(out, NameRecord{ID: e.ID, Name: e.CanonicalName})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) ListByOntologyRef(_ context.Context, entryID uuid.UUID) ([]*types.CanonicalEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.CanonicalEntity
	for _, e := range s.byID {
		if e.OntologyRefID != nil && *e.OntologyRefID == entryID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) Rename(_ context.Context, id uuid.UUID, newName string, newEntryID uuid.UUID, migration types.MigrationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return pkgerrors.ErrNotFound
	}
	delete(s.byKey, s.key(e.TenantID, e.CanonicalName))
	e.CanonicalName = newName
	e.OntologyRefID = &newEntryID
	e.Migrations = append(e.Migrations, migration)
	e.UpdatedAt = time.Now().UTC()
	s.byKey[s.key(e.TenantID, e.CanonicalName)] = e
	return nil
}

// EntityCount reports the number of published entities; used by tests and
// the healthcheck in degraded mode.
func (s *MemoryStore) EntityCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Relations returns a copy of the stored relation edges.
func (s *MemoryStore) Relations() []types.Relation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Relation, len(s.relations))
	copy(out, s.relations)
	return out
}
