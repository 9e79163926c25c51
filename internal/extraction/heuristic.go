package extraction

import (
	"context"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/yungbote/conceptgraph-backend/internal/platform/envutil"
	"github.com/yungbote/conceptgraph-backend/internal/segment"
	"github.com/yungbote/conceptgraph-backend/internal/types"
)

// Extractor turns one segment into candidate mentions. The paid tiers go
// through the dispatcher; this interface is the no-inference capability.
type Extractor interface {
	Extract(ctx context.Context, documentID uuid.UUID, tenantID string, seg segment.Segment) []types.Candidate
}

type heuristicExtractor struct {
	baseConfidence float64
}

// NewHeuristicExtractor builds the zero-cost extractor used on the
// no-inference path: capitalized runs and acronym tokens become candidates.
func NewHeuristicExtractor() Extractor {
	return &heuristicExtractor{
		baseConfidence: envutil.Float("EXTRACT_HEURISTIC_CONFIDENCE", 0.45),
	}
}

func (e *heuristicExtractor) Extract(_ context.Context, documentID uuid.UUID, tenantID string, seg segment.Segment) []types.Candidate {
	var out []types.Candidate
	seen := map[string]bool{}

	for _, run := range capitalizedRuns(seg.Text) {
		norm := strings.ToLower(strings.TrimSpace(run))
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, types.Candidate{
			RawText:      run,
			Norm:         norm,
			Confidence:   e.baseConfidence,
			SegmentIndex: seg.Index,
			DocumentID:   documentID,
			TenantID:     tenantID,
			Tier:         types.TierNone,
		})
	}
	return out
}

func capitalizedRuns(text string) []string {
	words := strings.Fields(text)
	var runs []string
	var current []string
	flush := func() {
		if len(current) > 0 {
			runs = append(runs, strings.Join(current, " "))
			current = nil
		}
	}
	for _, w := range words {
		trimmed := strings.Trim(w, ".,;:!?()[]{}\"'")
		if isCapitalizedToken(trimmed) {
			current = append(current, trimmed)
			// Sentence punctuation ends the run even mid-capitalization.
			if strings.ContainsAny(w, ".!?") {
				flush()
			}
			continue
		}
		flush()
	}
	flush()
	return runs
}

func isCapitalizedToken(w string) bool {
	if len(w) < 2 {
		return false
	}
	r := []rune(w)[0]
	return unicode.IsUpper(r) || unicode.IsDigit(r)
}
