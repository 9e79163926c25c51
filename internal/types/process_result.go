package types

import "github.com/google/uuid"

// ProcessResult is the per-document outcome returned to the caller. A run
// either completes, completes with fewer promotions than ideal, or ends in
// error with whatever was salvaged; there is no silent total failure.
type ProcessResult struct {
	DocumentID       uuid.UUID         `json:"document_id"`
	TenantID         string            `json:"tenant_id"`
	PromotedEntities []CanonicalEntity `json:"promoted_entities"`
	Relations        []Relation        `json:"relations"`
	CostIncurred     float64           `json:"cost_incurred"`
	CallsPerTier     map[Tier]int      `json:"calls_per_tier"`
	StepsTaken       int               `json:"steps_taken"`
	ElapsedMS        int64             `json:"elapsed_ms"`
	FinalState       string            `json:"final_state"`
	Errors           []string          `json:"errors,omitempty"`
}
