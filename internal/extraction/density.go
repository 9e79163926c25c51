package extraction

import (
	"strings"
	"unicode"

	"github.com/yungbote/conceptgraph-backend/internal/platform/envutil"
)

// DensityThresholds split segments into no-inference, cheap, and expensive
// routing bands by estimated entities per 100 words.
type DensityThresholds struct {
	Low  float64
	High float64
}

func ThresholdsFromEnv() DensityThresholds {
	return DensityThresholds{
		Low:  envutil.Float("EXTRACT_DENSITY_LOW", 1.5),
		High: envutil.Float("EXTRACT_DENSITY_HIGH", 5.0),
	}
}

// EstimateDensity is the zero-cost probe: it counts likely entity mentions
// (capitalized runs, acronyms, product-style tokens) per 100 words without
// any inference call.
func EstimateDensity(text string) float64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}

	mentions := 0
	inRun := false
	for _, w := range words {
		if looksLikeMention(w) {
			// A capitalized run (e.g. "Acme Cloud Platform") counts once.
			if !inRun {
				mentions++
				inRun = true
			}
			continue
		}
		inRun = false
	}
	return float64(mentions) / float64(len(words)) * 100.0
}

func looksLikeMention(w string) bool {
	w = strings.Trim(w, ".,;:!?()[]{}\"'")
	if len(w) < 2 {
		return false
	}
	runes := []rune(w)
	if !unicode.IsUpper(runes[0]) {
		return false
	}
	// All-upper short tokens are acronyms; mixed tokens with digits or
	// slashes are product names ("S/4HANA").
	upper := 0
	for _, r := range runes {
		if unicode.IsUpper(r) || unicode.IsDigit(r) || r == '/' || r == '-' {
			upper++
		}
	}
	if upper == len(runes) {
		return true
	}
	return unicode.IsLower(runes[len(runes)-1])
}
