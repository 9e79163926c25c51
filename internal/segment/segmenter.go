package segment

import (
	"context"
	"sort"
	"strings"

	"github.com/yungbote/conceptgraph-backend/internal/pkg/logger"
	"github.com/yungbote/conceptgraph-backend/internal/platform/envutil"
)

// Segment is one ordered text window produced from a raw document.
type Segment struct {
	Index    int      `json:"index"`
	Text     string   `json:"text"`
	Language string   `json:"language,omitempty"`
	Section  string   `json:"section,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
}

// Segmenter is the external segmentation collaborator. The local
// implementation below is window-based; deployments can swap in a remote one.
type Segmenter interface {
	Segment(ctx context.Context, text string, language string) ([]Segment, error)
}

type localSegmenter struct {
	log      *logger.Logger
	maxWords int
}

func NewLocalSegmenter(log *logger.Logger) Segmenter {
	return &localSegmenter{
		log:      log.With("service", "LocalSegmenter"),
		maxWords: envutil.Int("SEGMENT_MAX_WORDS", 200),
	}
}

func (s *localSegmenter) Segment(_ context.Context, text string, language string) ([]Segment, error) {
	if language == "" {
		language = "en"
	}
	paragraphs := splitParagraphs(text)

	var segments []Segment
	section := ""
	for _, p := range paragraphs {
		if looksLikeHeading(p) {
			section = p
		}
		for _, window := range splitWords(p, s.maxWords) {
			segments = append(segments, Segment{
				Index:    len(segments),
				Text:     window,
				Language: language,
				Section:  section,
				Keywords: keywords(window),
			})
		}
	}
	return segments, nil
}

func splitParagraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitWords(p string, maxWords int) []string {
	words := strings.Fields(p)
	if len(words) <= maxWords {
		return []string{p}
	}
	var out []string
	for start := 0; start < len(words); start += maxWords {
		end := start + maxWords
		if end > len(words) {
			end = len(words)
		}
		out = append(out, strings.Join(words[start:end], " "))
	}
	return out
}

var keywordStop = map[string]bool{
	"that": true, "this": true, "with": true, "from": true, "have": true,
	"been": true, "they": true, "their": true, "which": true, "will": true,
	"would": true, "there": true, "these": true, "those": true, "when": true,
	"where": true, "into": true, "also": true, "more": true, "most": true,
	"over": true, "such": true, "than": true, "then": true, "them": true,
}

const maxKeywords = 5

// keywords picks the most frequent informative words of a window, a cheap
// hint for downstream scoring.
func keywords(text string) []string {
	freq := map[string]int{}
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?()[]\"'")
		if len(w) < 4 || keywordStop[w] {
			continue
		}
		freq[w]++
	}
	words := make([]string, 0, len(freq))
	for w := range freq {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if freq[words[i]] != freq[words[j]] {
			return freq[words[i]] > freq[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > maxKeywords {
		words = words[:maxKeywords]
	}
	return words
}

func looksLikeHeading(p string) bool {
	if strings.Contains(p, "\n") {
		return false
	}
	words := strings.Fields(p)
	return len(words) > 0 && len(words) <= 8 && !strings.HasSuffix(p, ".")
}
