package gatekeeper

import (
	"strings"
	"testing"

	"github.com/yungbote/conceptgraph-backend/internal/types"
)

func TestWindowForAdaptsToDocumentLength(t *testing.T) {
	s := NewCentralityScorer()
	if got := s.windowFor(200); got != s.minWindow {
		t.Fatalf("short doc window=%d, want %d", got, s.minWindow)
	}
	if got := s.windowFor(10000); got != s.maxWindow {
		t.Fatalf("long doc window=%d, want %d", got, s.maxWindow)
	}
	mid := s.windowFor(2750)
	if mid <= s.minWindow || mid >= s.maxWindow {
		t.Fatalf("mid doc window=%d, want strictly between %d and %d", mid, s.minWindow, s.maxWindow)
	}
}

func TestScoreRanksHubAboveIsolate(t *testing.T) {
	s := NewCentralityScorer()

	// Acme appears early and near every other term; Zeta appears once, far
	// from everything else.
	doc := "Acme connects with Globex in production. Acme also powers Initech workloads daily. " +
		"Globex consumes Acme events. Initech mirrors Acme data. " +
		strings.Repeat("filler words without any mentions here at all. ", 20) +
		"Zeta appears alone."

	cands := []types.Candidate{
		{RawText: "Acme", Norm: "acme", SegmentIndex: 0},
		{RawText: "Globex", Norm: "globex", SegmentIndex: 0},
		{RawText: "Initech", Norm: "initech", SegmentIndex: 1},
		{RawText: "Zeta", Norm: "zeta", SegmentIndex: 2},
	}
	scored := s.Score(doc, cands, 3)

	byName := map[string]float64{}
	for _, c := range scored {
		byName[c.Norm] = c.Centrality
	}
	if byName["acme"] <= byName["zeta"] {
		t.Fatalf("acme=%f zeta=%f, want the hub above the isolate", byName["acme"], byName["zeta"])
	}
	if byName["acme"] <= 0 || byName["acme"] > 1 {
		t.Fatalf("acme=%f, want a score in (0,1]", byName["acme"])
	}
}

func TestScoreSkipsWithoutDocumentText(t *testing.T) {
	s := NewCentralityScorer()
	cands := []types.Candidate{{RawText: "Acme", Norm: "acme", Confidence: 0.5}}
	got := s.Score("", cands, 1)
	if got[0].Centrality != 0 || got[0].Confidence != 0.5 {
		t.Fatalf("got=%+v, want untouched candidate", got[0])
	}
}

func TestSalienceBoostsEarlyMentions(t *testing.T) {
	early := salience([]int{2}, 1000)
	late := salience([]int{900}, 1000)
	if early <= late {
		t.Fatalf("early=%f late=%f, want early mentions boosted", early, late)
	}
	if got := salience(nil, 1000); got != 0 {
		t.Fatalf("no mentions salience=%f, want 0", got)
	}
}
