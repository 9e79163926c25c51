package types

import "github.com/google/uuid"

// CandidateRole is the contextual role assigned by embedding classification.
type CandidateRole string

const (
	RolePrimary    CandidateRole = "primary"
	RoleCompetitor CandidateRole = "competitor"
	RoleSecondary  CandidateRole = "secondary"
)

// Candidate is an extracted, not-yet-canonicalized entity mention. It lives
// in memory for the duration of one pipeline run and is never persisted
// directly; promotion goes through the canonicalization cascade first.
type Candidate struct {
	RawText      string        `json:"raw_text"`
	Norm         string        `json:"norm"`
	EntityType   string        `json:"entity_type,omitempty"`
	Confidence   float64       `json:"confidence"`
	SegmentIndex int           `json:"segment_index"`
	DocumentID   uuid.UUID     `json:"document_id"`
	TenantID     string        `json:"tenant_id"`
	Tier         Tier          `json:"tier"` // which tier produced this mention

	// Annotations added by later stages.
	Frequency    int           `json:"frequency,omitempty"`
	PatternScore float64       `json:"pattern_score,omitempty"`
	RelatedNames []string      `json:"related_names,omitempty"`
	Centrality   float64       `json:"centrality,omitempty"`
	Role         CandidateRole `json:"role,omitempty"`
	AutoLearn    bool          `json:"auto_learn,omitempty"`
}
