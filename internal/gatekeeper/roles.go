package gatekeeper

import (
	"context"
	"math"
	"strings"
	"sync"

	"github.com/yungbote/conceptgraph-backend/internal/pkg/logger"
	"github.com/yungbote/conceptgraph-backend/internal/platform/envutil"
	"github.com/yungbote/conceptgraph-backend/internal/types"
)

// Embedder is the embedding surface the role classifier needs; satisfied by
// the openai client.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// Reference paraphrase sets per role. Multiple languages so that non-English
// documents still land near the right set.
var roleReferences = map[types.CandidateRole][]string{
	types.RolePrimary: {
		"the main subject of this document",
		"the product or concept this text is primarily about",
		"the central topic being described in detail",
		"das Hauptthema dieses Dokuments",
		"le sujet principal de ce document",
		"el tema principal de este documento",
	},
	types.RoleCompetitor: {
		"a competing product mentioned for comparison",
		"an alternative or rival to the main subject",
		"a competitor referenced in passing",
		"ein Konkurrenzprodukt, das zum Vergleich genannt wird",
		"un produit concurrent mentionné à titre de comparaison",
		"un producto competidor mencionado como alternativa",
	},
	types.RoleSecondary: {
		"a term mentioned in passing without being the focus",
		"background context that supports the main subject",
		"a peripheral detail in this document",
		"ein beiläufig erwähnter Begriff",
		"un terme mentionné en passant",
		"un término mencionado de pasada",
	},
}

// RoleClassifier assigns primary/competitor/secondary roles by aggregate
// semantic similarity of every mention context against the reference sets,
// then adjusts confidence per role. A nil embedder disables classification
// entirely; candidates pass through with unmodified confidence.
type RoleClassifier struct {
	log      *logger.Logger
	embedder Embedder

	primaryFloor  float64
	primaryBonus  float64
	competitorPen float64
	contextWords  int

	mu         sync.Mutex
	refVectors map[types.CandidateRole][][]float32
}

func NewRoleClassifier(baseLog *logger.Logger, embedder Embedder) *RoleClassifier {
	return &RoleClassifier{
		log:           baseLog.With("service", "RoleClassifier"),
		embedder:      embedder,
		primaryFloor:  envutil.Float("ROLE_PRIMARY_FLOOR", 0.30),
		primaryBonus:  envutil.Float("ROLE_PRIMARY_BONUS", 0.12),
		competitorPen: envutil.Float("ROLE_COMPETITOR_PENALTY", 0.15),
		contextWords:  envutil.Int("ROLE_CONTEXT_WORDS", 20),
	}
}

// Classify annotates roles and adjusts confidences. Any embedding failure
// skips the step for the whole batch; the cascade is never a hard failure.
func (rc *RoleClassifier) Classify(ctx context.Context, docText string, candidates []types.Candidate) []types.Candidate {
	if rc.embedder == nil || len(candidates) == 0 {
		return candidates
	}
	refs, err := rc.referenceVectors(ctx)
	if err != nil {
		rc.log.Warn("role classification skipped", "error", err)
		return candidates
	}

	words := strings.Fields(docText)

	out := make([]types.Candidate, len(candidates))
	copy(out, candidates)
	for i := range out {
		contexts := rc.mentionContexts(words, out[i].Norm)
		if len(contexts) == 0 {
			contexts = []string{out[i].RawText}
		}
		vecs, err := rc.embedder.Embed(ctx, contexts)
		if err != nil || len(vecs) == 0 {
			rc.log.Warn("mention embedding failed, unmodified confidence",
				"candidate", out[i].Norm,
				"error", err,
			)
			continue
		}

		role := rc.classifyVectors(vecs, refs)
		out[i].Role = role
		switch role {
		case types.RolePrimary:
			out[i].Confidence = math.Min(1.0, out[i].Confidence+rc.primaryBonus)
		case types.RoleCompetitor:
			out[i].Confidence = math.Max(0.0, out[i].Confidence-rc.competitorPen)
		}
	}
	return out
}

// mentionContexts returns one context window per mention of the name, so the
// aggregate covers all mentions rather than only the first.
func (rc *RoleClassifier) mentionContexts(words []string, name string) []string {
	lower := make([]string, len(words))
	for i, w := range words {
		lower[i] = strings.ToLower(strings.Trim(w, ".,;:!?()[]{}\"'"))
	}
	positions := mentionPositions(lower, name)

	var out []string
	for _, pos := range positions {
		lo := pos - rc.contextWords/2
		if lo < 0 {
			lo = 0
		}
		hi := pos + rc.contextWords/2
		if hi > len(words) {
			hi = len(words)
		}
		out = append(out, strings.Join(words[lo:hi], " "))
	}
	return out
}

func (rc *RoleClassifier) classifyVectors(mentionVecs [][]float32, refs map[types.CandidateRole][][]float32) types.CandidateRole {
	score := func(role types.CandidateRole) float64 {
		total := 0.0
		n := 0
		for _, mv := range mentionVecs {
			for _, rv := range refs[role] {
				total += cosine(mv, rv)
				n++
			}
		}
		if n == 0 {
			return 0
		}
		return total / float64(n)
	}

	primary := score(types.RolePrimary)
	competitor := score(types.RoleCompetitor)

	switch {
	case primary > rc.primaryFloor && primary > competitor:
		return types.RolePrimary
	case competitor > rc.primaryFloor && competitor > primary:
		return types.RoleCompetitor
	default:
		return types.RoleSecondary
	}
}

func (rc *RoleClassifier) referenceVectors(ctx context.Context) (map[types.CandidateRole][][]float32, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.refVectors != nil {
		return rc.refVectors, nil
	}

	refs := map[types.CandidateRole][][]float32{}
	for role, phrases := range roleReferences {
		vecs, err := rc.embedder.Embed(ctx, phrases)
		if err != nil {
			return nil, err
		}
		refs[role] = vecs
	}
	rc.refVectors = refs
	return refs, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
