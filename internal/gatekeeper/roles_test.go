package gatekeeper

import (
	"context"
	"strings"
	"testing"

	"github.com/yungbote/conceptgraph-backend/internal/types"
)

// markerEmbedder returns axis-aligned vectors keyed on marker phrases, so
// cosine similarity becomes exact set membership.
type markerEmbedder struct{}

func (markerEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		lower := strings.ToLower(in)
		switch {
		case strings.Contains(lower, "compet") ||
			strings.Contains(lower, "rival") ||
			strings.Contains(lower, "konkurrenz") ||
			strings.Contains(lower, "concurrent") ||
			strings.Contains(lower, "competidor"):
			out[i] = []float32{0, 1, 0}
		case strings.Contains(lower, "main subject") ||
			strings.Contains(lower, "primarily") ||
			strings.Contains(lower, "central topic") ||
			strings.Contains(lower, "hauptthema") ||
			strings.Contains(lower, "sujet principal") ||
			strings.Contains(lower, "tema principal"):
			out[i] = []float32{1, 0, 0}
		default:
			out[i] = []float32{0, 0, 1}
		}
	}
	return out, nil
}

const roleDoc = `Acme Cloud is the central topic of this report and primarily what we describe here in depth.
Globex is a competing product positioned as a rival alternative with similar features.
Initech gets mentioned briefly near the end without further detail.`

func TestClassifyAssignsRolesAndAdjustsConfidence(t *testing.T) {
	rc := NewRoleClassifier(testLogger(t), markerEmbedder{})

	cands := []types.Candidate{
		{RawText: "Acme Cloud", Norm: "acme cloud", Confidence: 0.75},
		{RawText: "Globex", Norm: "globex", Confidence: 0.75},
		{RawText: "Initech", Norm: "initech", Confidence: 0.75},
	}
	got := rc.Classify(context.Background(), roleDoc, cands)

	if got[0].Role != types.RolePrimary {
		t.Fatalf("acme role=%s, want primary", got[0].Role)
	}
	if got[0].Confidence != 0.87 {
		t.Fatalf("acme confidence=%f, want 0.75+0.12", got[0].Confidence)
	}
	if got[1].Role != types.RoleCompetitor {
		t.Fatalf("globex role=%s, want competitor", got[1].Role)
	}
	if got[1].Confidence != 0.60 {
		t.Fatalf("globex confidence=%f, want 0.75-0.15", got[1].Confidence)
	}
	if got[2].Role != types.RoleSecondary {
		t.Fatalf("initech role=%s, want secondary", got[2].Role)
	}
	if got[2].Confidence != 0.75 {
		t.Fatalf("initech confidence=%f, want unchanged", got[2].Confidence)
	}
}

func TestClassifyCompetitorSuppression(t *testing.T) {
	rc := NewRoleClassifier(testLogger(t), markerEmbedder{})

	doc := `Acme Cloud is the central topic and primarily the main subject of this evaluation report today.
Globex is a competing product offered as a rival alternative in the same market segment.
Hooli ships another competing product regarded as a rival alternative by most analysts.`

	cands := []types.Candidate{
		{RawText: "Acme Cloud", Norm: "acme cloud", Confidence: 0.80},
		{RawText: "Globex", Norm: "globex", Confidence: 0.78},
		{RawText: "Hooli", Norm: "hooli", Confidence: 0.76},
	}
	adjusted := rc.Classify(context.Background(), doc, cands)
	gated := Gate(adjusted, builtinProfiles["balanced"])

	if len(gated.Promoted) != 1 || gated.Promoted[0].Norm != "acme cloud" {
		t.Fatalf("promoted=%+v, want only the primary subject", gated.Promoted)
	}
	for _, rej := range gated.Rejected {
		if rej.Candidate.Role != types.RoleCompetitor {
			t.Fatalf("rejected=%+v, want competitor-role rejections only", rej)
		}
		if rej.Candidate.Confidence >= 0.70 {
			t.Fatalf("competitor confidence=%f, want pushed below 0.70", rej.Candidate.Confidence)
		}
	}
}

func TestClassifyNilEmbedderIsSkipSafe(t *testing.T) {
	rc := NewRoleClassifier(testLogger(t), nil)
	cands := []types.Candidate{{RawText: "Acme Cloud", Norm: "acme cloud", Confidence: 0.5}}
	got := rc.Classify(context.Background(), roleDoc, cands)
	if got[0].Confidence != 0.5 || got[0].Role != "" {
		t.Fatalf("got=%+v, want untouched candidate", got[0])
	}
}
