package gatekeeper

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/yungbote/conceptgraph-backend/internal/pkg/errors"
	"github.com/yungbote/conceptgraph-backend/internal/repos"
	"github.com/yungbote/conceptgraph-backend/internal/types"
)

// MatchResult is one strategy's verdict on a candidate.
type MatchResult struct {
	Success       bool
	Score         float64
	CanonicalName string
	EntryID       *uuid.UUID
	EntityID      *uuid.UUID
	AutoLearn     bool
	Metadata      map[string]any
}

// NameRef is one published canonical name for fuzzy/structural comparison,
// loaded once per document.
type NameRef struct {
	ID   uuid.UUID
	Name string
}

// Strategy is one step of the canonicalization cascade. Attempt never
// treats a miss as an error: errors are reserved for collaborator failures.
type Strategy interface {
	Name() types.MatchStrategy
	Attempt(ctx context.Context, cand types.Candidate, th Thresholds, published []NameRef) (MatchResult, error)
}

// ontologyStrategy resolves against the curated catalog. Pending entries
// are sandboxed out unless the active thresholds opt in: auto-learned but
// unvalidated names must not silently become ground truth.
type ontologyStrategy struct {
	repo repos.OntologyEntryRepo
	db   *gorm.DB
}

func (s *ontologyStrategy) Name() types.MatchStrategy { return types.StrategyOntology }

func (s *ontologyStrategy) Attempt(ctx context.Context, cand types.Candidate, th Thresholds, _ []NameRef) (MatchResult, error) {
	if s.repo == nil {
		return MatchResult{}, nil
	}
	statuses := []types.OntologyStatus{types.OntologyValidated, types.OntologyManual}
	if th.IncludePending {
		statuses = append(statuses, types.OntologyPending)
	}
	entry, err := s.repo.FindByNormKey(ctx, s.db, cand.TenantID, types.NormKey(cand.RawText), statuses)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			return MatchResult{Metadata: map[string]any{"statuses": statusStrings(statuses)}}, nil
		}
		return MatchResult{}, err
	}
	return MatchResult{
		Success:       true,
		Score:         1.0,
		CanonicalName: entry.CanonicalName,
		EntryID:       &entry.ID,
		Metadata: map[string]any{
			"entry_status": string(entry.Status),
		},
	}, nil
}

func statusStrings(statuses []types.OntologyStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// fuzzyStrategy compares against already-published names with normalized
// edit-distance similarity.
type fuzzyStrategy struct{}

func (s *fuzzyStrategy) Name() types.MatchStrategy { return types.StrategyFuzzy }

func (s *fuzzyStrategy) Attempt(_ context.Context, cand types.Candidate, th Thresholds, published []NameRef) (MatchResult, error) {
	best := MatchResult{Metadata: map[string]any{"compared": len(published)}}
	for _, ref := range published {
		sim := editSimilarity(cand.Norm, strings.ToLower(ref.Name))
		if sim > best.Score {
			id := ref.ID
			best.Score = sim
			best.CanonicalName = ref.Name
			best.EntityID = &id
		}
	}
	best.Metadata["best_score"] = best.Score
	if best.Score >= th.Fuzzy {
		best.Success = true
	} else {
		best.CanonicalName = ""
		best.EntityID = nil
	}
	return best, nil
}

// structuralStrategy decomposes names into acronym forms and significant
// tokens, then blends four signals into one composite score.
type structuralStrategy struct{}

func (s *structuralStrategy) Name() types.MatchStrategy { return types.StrategyStructural }

func (s *structuralStrategy) Attempt(_ context.Context, cand types.Candidate, th Thresholds, published []NameRef) (MatchResult, error) {
	candTokens := significantTokens(cand.RawText)
	candAcros := AcronymForms(cand.RawText)

	best := MatchResult{Metadata: map[string]any{
		"acronyms": setToSlice(candAcros),
	}}
	for _, ref := range published {
		score := structuralScore(cand, candTokens, candAcros, ref.Name)
		if score > best.Score {
			id := ref.ID
			best.Score = score
			best.CanonicalName = ref.Name
			best.EntityID = &id
		}
	}
	best.Metadata["best_score"] = best.Score
	if best.Score >= th.Structural {
		best.Success = true
	} else {
		best.CanonicalName = ""
		best.EntityID = nil
	}
	return best, nil
}

func structuralScore(cand types.Candidate, candTokens map[string]bool, candAcros map[string]bool, refName string) float64 {
	refTokens := significantTokens(refName)
	refAcros := AcronymForms(refName)

	tokenOverlap := jaccard(candTokens, refTokens)
	acroOverlap := jaccard(candAcros, refAcros)
	editSim := editSimilarity(cand.Norm, strings.ToLower(refName))
	affix := affixAffinity(cand.Norm, strings.ToLower(refName))

	return 0.40*tokenOverlap + 0.30*acroOverlap + 0.20*editSim + 0.10*affix
}

// heuristicStrategy is the deterministic last resort. It always succeeds and
// marks the candidate for future auto-learning instead of claiming catalog
// truth.
type heuristicStrategy struct{}

func (s *heuristicStrategy) Name() types.MatchStrategy { return types.StrategyHeuristic }

func (s *heuristicStrategy) Attempt(_ context.Context, cand types.Candidate, _ Thresholds, _ []NameRef) (MatchResult, error) {
	return MatchResult{
		Success:       true,
		Score:         cand.Confidence,
		CanonicalName: HeuristicName(cand.RawText),
		AutoLearn:     true,
		Metadata:      map[string]any{"source": "surface_normalization"},
	}, nil
}

// HeuristicName normalizes a surface form: trimmed, title-cased, with
// all-caps runs preserved as acronyms.
func HeuristicName(raw string) string {
	fields := strings.Fields(strings.TrimSpace(raw))
	for i, f := range fields {
		if isAllUpper(f) {
			continue
		}
		r := []rune(strings.ToLower(f))
		r[0] = unicode.ToUpper(r[0])
		fields[i] = string(r)
	}
	return strings.Join(fields, " ")
}

func isAllUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}

// AcronymForms derives the acronym set of a name. "S/4HANA" yields
// {"S4HANA", "S/4HANA", "S4H", "S/4"}; multi-word names contribute their
// initialism.
func AcronymForms(name string) map[string]bool {
	out := map[string]bool{}
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return out
	}

	fields := strings.Fields(trimmed)

	for _, f := range fields {
		upper := strings.ToUpper(f)
		if !looksAcronymic(upper) {
			continue
		}
		out[upper] = true
		stripped := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return r
			}
			return -1
		}, upper)
		if stripped != upper && stripped != "" {
			out[stripped] = true
		}
		// Leading letter-digit stem: S/4HANA → S4H, S/4.
		if stem := acronymStem(stripped); stem != "" && stem != stripped {
			out[stem] = true
		}
		if i := strings.IndexFunc(upper, unicode.IsLetter); i == 0 {
			if j := strings.LastIndexFunc(upper, unicode.IsDigit); j > 0 && j < len(upper)-1 {
				out[upper[:j+1]] = true
			}
		}
	}

	// Initialism over significant words.
	if len(fields) >= 2 {
		var b strings.Builder
		for _, f := range fields {
			if stopWords[strings.ToLower(f)] {
				continue
			}
			r := []rune(f)
			if len(r) > 0 && unicode.IsLetter(r[0]) {
				b.WriteRune(unicode.ToUpper(r[0]))
			}
		}
		if b.Len() >= 2 {
			out[b.String()] = true
		}
	}
	return out
}

// looksAcronymic accepts compact tokens dominated by uppercase letters and
// digits, like "S/4HANA", "GPT-4", "K8S".
func looksAcronymic(upper string) bool {
	letters, uppers, digits := 0, 0, 0
	for _, r := range upper {
		switch {
		case unicode.IsLetter(r):
			letters++
			if unicode.IsUpper(r) {
				uppers++
			}
		case unicode.IsDigit(r):
			digits++
		}
	}
	if letters == 0 {
		return false
	}
	return uppers == letters && (letters+digits) >= 2 && (letters+digits) <= 8
}

// acronymStem shortens a stripped acronym to its leading letter-digit-letter
// prefix: S4HANA → S4H.
func acronymStem(stripped string) string {
	runes := []rune(stripped)
	if len(runes) < 3 {
		return ""
	}
	if unicode.IsLetter(runes[0]) && unicode.IsDigit(runes[1]) && unicode.IsLetter(runes[2]) {
		return string(runes[:3])
	}
	return ""
}

func significantTokens(name string) map[string]bool {
	out := map[string]bool{}
	for _, f := range strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(f) < 2 || stopWords[f] {
			continue
		}
		out[f] = true
	}
	return out
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if b[k] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// editSimilarity is 1 - levenshtein/maxLen over runes.
func editSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	dist := levenshtein(ra, rb)
	max := len(ra)
	if len(rb) > max {
		max = len(rb)
	}
	return 1 - float64(dist)/float64(max)
}

func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// affixAffinity rewards shared prefixes and suffixes relative to the shorter
// name's length.
func affixAffinity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	short := len(ra)
	if len(rb) < short {
		short = len(rb)
	}
	if short == 0 {
		return 0
	}
	prefix := 0
	for prefix < short && ra[prefix] == rb[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < short-prefix && ra[len(ra)-1-suffix] == rb[len(rb)-1-suffix] {
		suffix++
	}
	return float64(prefix+suffix) / float64(short)
}

func setToSlice(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
