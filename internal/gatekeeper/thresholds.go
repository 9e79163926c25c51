package gatekeeper

import (
	"strings"

	"github.com/yungbote/conceptgraph-backend/internal/platform/envutil"
)

// Thresholds are the active matching bars for one canonicalization run.
type Thresholds struct {
	Fuzzy          float64
	Structural     float64
	IncludePending bool
}

// MatchContext is the document/tenant context the adaptive selector keys on.
type MatchContext struct {
	Domain     string
	TrustLevel string
	Language   string
	EntityType string
}

// ThresholdSelector picks a Thresholds profile from context. Most specific
// registered combination wins; priority order is domain, then trust level,
// then language, then entity type, falling back to the default.
type ThresholdSelector struct {
	def      Thresholds
	profiles map[string]Thresholds
}

func NewThresholdSelector() *ThresholdSelector {
	s := &ThresholdSelector{
		def: Thresholds{
			Fuzzy:      envutil.Float("MATCH_FUZZY_THRESHOLD", 0.85),
			Structural: envutil.Float("MATCH_STRUCTURAL_THRESHOLD", 0.75),
		},
		profiles: map[string]Thresholds{},
	}
	// Trusted curated sources can match looser; unknown web sources match
	// stricter to protect the published graph.
	s.Register(MatchContext{TrustLevel: "curated"}, Thresholds{Fuzzy: 0.80, Structural: 0.70, IncludePending: true})
	s.Register(MatchContext{TrustLevel: "untrusted"}, Thresholds{Fuzzy: 0.92, Structural: 0.85})
	return s
}

// Register adds a profile for the given context combination. Empty fields
// are wildcards.
func (s *ThresholdSelector) Register(ctx MatchContext, th Thresholds) {
	s.profiles[contextKey(ctx)] = th
}

// Select walks from the most specific combination down to the default.
func (s *ThresholdSelector) Select(ctx MatchContext) Thresholds {
	for _, probe := range []MatchContext{
		ctx,
		{Domain: ctx.Domain, TrustLevel: ctx.TrustLevel, Language: ctx.Language},
		{Domain: ctx.Domain, TrustLevel: ctx.TrustLevel},
		{Domain: ctx.Domain},
		{TrustLevel: ctx.TrustLevel},
		{Language: ctx.Language},
		{EntityType: ctx.EntityType},
	} {
		if th, ok := s.profiles[contextKey(probe)]; ok {
			return th
		}
	}
	return s.def
}

func contextKey(ctx MatchContext) string {
	return strings.Join([]string{ctx.Domain, ctx.TrustLevel, ctx.Language, ctx.EntityType}, "|")
}
