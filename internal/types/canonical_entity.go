package types

import (
	"time"

	"github.com/google/uuid"
)

// CanonicalEntity is the deduplicated, published node representing one
// real-world concept per tenant. Stored in the graph store, not postgres.
// At most one exists per (tenant, canonical name).
type CanonicalEntity struct {
	ID            uuid.UUID      `json:"id"`
	TenantID      string         `json:"tenant_id"`
	CanonicalName string         `json:"canonical_name"`
	SurfaceForms  []string       `json:"surface_forms,omitempty"`
	EntityType    string         `json:"entity_type,omitempty"`
	QualityScore  float64        `json:"quality_score"`
	OntologyRefID *uuid.UUID     `json:"ontology_ref_id,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Trace         *DecisionTrace `json:"trace,omitempty"`

	Migrations []MigrationRecord `json:"migrations,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MigrationRecord documents one cascade migration applied to an entity
// during ontology deprecation rollback.
type MigrationRecord struct {
	FromName   string    `json:"from_name"`
	ToName     string    `json:"to_name"`
	OldEntryID uuid.UUID `json:"old_entry_id"`
	NewEntryID uuid.UUID `json:"new_entry_id"`
	Reason     string    `json:"reason,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	MigratedAt time.Time `json:"migrated_at"`
}
