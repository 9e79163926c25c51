package segment

import (
	"context"
	"strings"
	"testing"

	"github.com/yungbote/conceptgraph-backend/internal/pkg/logger"
)

func testSegmenter(t *testing.T) Segmenter {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return NewLocalSegmenter(log)
}

func TestSegmentOrdersWindowsAndCarriesSections(t *testing.T) {
	s := testSegmenter(t)
	text := "Product Overview\n\nAcme Cloud ships today. It integrates broadly.\n\nPricing\n\nThe expensive tier costs more."

	segs, err := s.Segment(context.Background(), text, "")
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(segs) != 4 {
		t.Fatalf("segments=%d, want 4 paragraphs", len(segs))
	}
	for i, seg := range segs {
		if seg.Index != i {
			t.Fatalf("segment %d carries index %d, want ordinal order preserved", i, seg.Index)
		}
		if seg.Language != "en" {
			t.Fatalf("language=%q, want en default", seg.Language)
		}
	}
	if segs[1].Section != "Product Overview" {
		t.Fatalf("section=%q, want the preceding heading", segs[1].Section)
	}
	if segs[3].Section != "Pricing" {
		t.Fatalf("section=%q, want headings to advance", segs[3].Section)
	}
}

func TestSegmentSplitsLongParagraphs(t *testing.T) {
	t.Setenv("SEGMENT_MAX_WORDS", "10")
	s := testSegmenter(t)
	text := strings.Repeat("word ", 25)

	segs, err := s.Segment(context.Background(), text, "de")
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(segs) != 3 {
		t.Fatalf("segments=%d, want 3 windows of at most 10 words", len(segs))
	}
	if got := len(strings.Fields(segs[0].Text)); got != 10 {
		t.Fatalf("first window=%d words, want 10", got)
	}
	if got := len(strings.Fields(segs[2].Text)); got != 5 {
		t.Fatalf("last window=%d words, want the remainder", got)
	}
	if segs[0].Language != "de" {
		t.Fatalf("language=%q, want caller value kept", segs[0].Language)
	}
}

func TestSegmentEmptyDocument(t *testing.T) {
	s := testSegmenter(t)
	segs, err := s.Segment(context.Background(), "   \n\n  ", "en")
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(segs) != 0 {
		t.Fatalf("segments=%d, want none for whitespace-only input", len(segs))
	}
}
