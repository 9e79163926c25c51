package graph

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/conceptgraph-backend/internal/types"
)

// NameRecord is a light (id, name) projection of a published entity.
type NameRecord struct {
	ID   uuid.UUID
	Name string
}

// Store is the published-graph collaborator. Implementations must treat
// (tenant, canonical name) as unique: Create is only called after FindByName
// misses, and LinkExisting is the normal path for repeat promotions.
type Store interface {
	// FindByName returns pkgerrors.ErrNotFound when no entity exists.
	FindByName(ctx context.Context, tenantID, canonicalName string) (*types.CanonicalEntity, error)
	Create(ctx context.Context, entity *types.CanonicalEntity) (*types.CanonicalEntity, error)
	// LinkExisting records one more surface form on an already-published
	// entity and keeps the higher quality score.
	LinkExisting(ctx context.Context, id uuid.UUID, surfaceForm string, qualityScore float64) error
	CreateRelation(ctx context.Context, rel types.Relation) error
	// ListNames returns the tenant's published (id, canonical name) pairs
	// for lexical matching.
	ListNames(ctx context.Context, tenantID string, limit int) ([]NameRecord, error)
	// ListByOntologyRef returns entities that resolved through the given
	// ontology entry, for deprecation cascade migration.
	ListByOntologyRef(ctx context.Context, entryID uuid.UUID) ([]*types.CanonicalEntity, error)
	// Rename points an entity at a new canonical name and appends a
	// migration-history record. Used only by deprecation rollback.
	Rename(ctx context.Context, id uuid.UUID, newName string, newEntryID uuid.UUID, migration types.MigrationRecord) error
}
