package gatekeeper

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/conceptgraph-backend/internal/types"
)

func TestAcronymForms(t *testing.T) {
	forms := AcronymForms("S/4HANA")
	for _, want := range []string{"S4HANA", "S/4HANA", "S4H", "S/4"} {
		if !forms[want] {
			t.Fatalf("forms=%v, missing %s", setToSlice(forms), want)
		}
	}

	multi := AcronymForms("Full Product Name Cloud")
	if !multi["FPNC"] {
		t.Fatalf("forms=%v, missing initialism FPNC", setToSlice(multi))
	}
}

func TestEditSimilarity(t *testing.T) {
	cases := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{a: "acme cloud", b: "acme cloud", min: 1.0, max: 1.0},
		{a: "acme cloud", b: "acme clout", min: 0.89, max: 0.91},
		{a: "acme", b: "globex", min: 0.0, max: 0.2},
	}
	for _, tc := range cases {
		got := editSimilarity(tc.a, tc.b)
		if got < tc.min || got > tc.max {
			t.Fatalf("editSimilarity(%q,%q)=%f, want in [%f,%f]", tc.a, tc.b, got, tc.min, tc.max)
		}
	}
}

func TestHeuristicNamePreservesAcronyms(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{in: "  acme cloud platform ", want: "Acme Cloud Platform"},
		{in: "IBM watson", want: "IBM Watson"},
		{in: "s4h cloud", want: "S4h Cloud"},
	}
	for _, tc := range cases {
		if got := HeuristicName(tc.in); got != tc.want {
			t.Fatalf("HeuristicName(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFuzzyStrategyThreshold(t *testing.T) {
	refID := uuid.New()
	published := []NameRef{{ID: refID, Name: "Acme Cloud"}}
	strat := &fuzzyStrategy{}

	match, err := strat.Attempt(context.Background(), types.Candidate{Norm: "acme clout"}, Thresholds{Fuzzy: 0.85}, published)
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if !match.Success || match.CanonicalName != "Acme Cloud" {
		t.Fatalf("match=%+v, want success against Acme Cloud at 0.90 similarity", match)
	}
	if match.EntityID == nil || *match.EntityID != refID {
		t.Fatalf("entity id not carried through")
	}

	miss, err := strat.Attempt(context.Background(), types.Candidate{Norm: "zzzzzz"}, Thresholds{Fuzzy: 0.85}, published)
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if miss.Success || miss.CanonicalName != "" {
		t.Fatalf("match=%+v, want miss below threshold", miss)
	}
}

func TestStructuralStrategyResolvesAcronym(t *testing.T) {
	published := []NameRef{
		{ID: uuid.New(), Name: "S/4HANA Cloud"},
		{ID: uuid.New(), Name: "Completely Unrelated Catalog"},
	}
	strat := &structuralStrategy{}

	match, err := strat.Attempt(context.Background(), types.Candidate{
		RawText: "S4H Cloud",
		Norm:    "s4h cloud",
	}, Thresholds{Structural: 0.40}, published)
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if !match.Success || match.CanonicalName != "S/4HANA Cloud" {
		t.Fatalf("match=%+v, want structural hit on S/4HANA Cloud", match)
	}
}
