package gatekeeper

import (
	"strings"
	"testing"

	"github.com/yungbote/conceptgraph-backend/internal/types"
)

func TestHardRejections(t *testing.T) {
	cases := []struct {
		name   string
		input  string
		reject bool
	}{
		{name: "too_short", input: "AI", reject: true},
		{name: "too_long", input: strings.Repeat("x", 101), reject: true},
		{name: "stop_words_only", input: "the and of", reject: true},
		{name: "corporate_suffix_alone", input: "GmbH", reject: true},
		{name: "section_boilerplate", input: "Introduction", reject: true},
		{name: "email", input: "ops@example.com", reject: true},
		{name: "phone", input: "+49 170 1234567", reject: true},
		{name: "ssn_shape", input: "123-45-6789", reject: true},
		{name: "card_shape", input: "4111 1111 1111 1111", reject: true},
		{name: "ordinary_name", input: "Acme Cloud", reject: false},
		{name: "acronym_product", input: "S/4HANA", reject: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reason := hardReject(tc.input)
			if tc.reject && reason == "" {
				t.Fatalf("expected rejection for %q", tc.input)
			}
			if !tc.reject && reason != "" {
				t.Fatalf("unexpected rejection for %q: %s", tc.input, reason)
			}
		})
	}
}

func TestGateProfileConfidence(t *testing.T) {
	cands := []types.Candidate{
		{RawText: "Acme Cloud", Norm: "acme cloud", Confidence: 0.90},
		{RawText: "Globex Mesh", Norm: "globex mesh", Confidence: 0.65},
		{RawText: "Initech Hub", Norm: "initech hub", Confidence: 0.40},
	}
	res := Gate(cands, builtinProfiles["balanced"])

	if len(res.Promoted) != 1 || res.Promoted[0].Norm != "acme cloud" {
		t.Fatalf("promoted=%+v, want only acme cloud at balanced 0.70", res.Promoted)
	}
	if len(res.Rejected) != 2 {
		t.Fatalf("rejected=%d, want 2", len(res.Rejected))
	}
	if res.PromotionRate < 0.33 || res.PromotionRate > 0.34 {
		t.Fatalf("promotion rate=%f, want 1/3", res.PromotionRate)
	}
}

func TestGateSignalsBelowFloor(t *testing.T) {
	cands := []types.Candidate{
		{RawText: "Acme Cloud", Norm: "acme cloud", Confidence: 0.20},
		{RawText: "Globex Mesh", Norm: "globex mesh", Confidence: 0.25},
		{RawText: "Umbrella Vault", Norm: "umbrella vault", Confidence: 0.30},
		{RawText: "Initech Hub", Norm: "initech hub", Confidence: 0.95},
	}
	res := Gate(cands, builtinProfiles["balanced"])
	if !res.BelowFloor {
		t.Fatalf("promotion rate %f under floor %f must signal retry", res.PromotionRate, builtinProfiles["balanced"].MinPromotionRate)
	}
}

func TestGateRequiredFields(t *testing.T) {
	cands := []types.Candidate{
		{RawText: "Acme Cloud", Norm: "acme cloud", Confidence: 0.95},
		{RawText: "Globex Mesh", Norm: "globex mesh", EntityType: "product", Confidence: 0.95},
	}
	res := Gate(cands, builtinProfiles["strict"])
	if len(res.Promoted) != 1 || res.Promoted[0].Norm != "globex mesh" {
		t.Fatalf("promoted=%+v, strict requires entity_type", res.Promoted)
	}
}
