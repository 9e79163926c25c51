package types

import "github.com/google/uuid"

// Relation is a directed, typed, weighted edge between two canonical
// entities.
type Relation struct {
	FromID   uuid.UUID `json:"from_id"`
	ToID     uuid.UUID `json:"to_id"`
	Type     string    `json:"type"` // co_occurrence
	Weight   float64   `json:"weight"`
	TenantID string    `json:"tenant_id"`
}

// RelationProposal is an untyped edge between two normalized names, produced
// by pattern mining before name→canonical-id resolution.
type RelationProposal struct {
	NameA  string  `json:"name_a"`
	NameB  string  `json:"name_b"`
	Weight float64 `json:"weight"`
}
