package types

// MatchStrategy identifies one normalization strategy in the cascade.
type MatchStrategy string

const (
	StrategyOntology   MatchStrategy = "ontology_lookup"
	StrategyFuzzy      MatchStrategy = "fuzzy_match"
	StrategyStructural MatchStrategy = "structural_match"
	StrategyHeuristic  MatchStrategy = "heuristic_fallback"
)

// StrategyAttempt records one cascade step, whether it succeeded or not.
type StrategyAttempt struct {
	Strategy  MatchStrategy  `json:"strategy"`
	Attempted bool           `json:"attempted"`
	Succeeded bool           `json:"succeeded"`
	Score     float64        `json:"score"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// DecisionTrace is the audit record of every normalization strategy attempted
// for a candidate. Immutable once attached to a CanonicalEntity; one trace
// per promotion event.
type DecisionTrace struct {
	Attempts        []StrategyAttempt `json:"attempts"`
	FinalName       string            `json:"final_name"`
	FinalStrategy   MatchStrategy     `json:"final_strategy"`
	FinalConfidence float64           `json:"final_confidence"`
}

func (t *DecisionTrace) Append(a StrategyAttempt) {
	t.Attempts = append(t.Attempts, a)
}

func (t *DecisionTrace) Finalize(name string, strategy MatchStrategy, confidence float64) {
	t.FinalName = name
	t.FinalStrategy = strategy
	t.FinalConfidence = confidence
}
