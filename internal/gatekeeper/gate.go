package gatekeeper

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/conceptgraph-backend/internal/pkg/logger"
	"github.com/yungbote/conceptgraph-backend/internal/platform/envutil"
	"github.com/yungbote/conceptgraph-backend/internal/types"
)

// Profile is one named quality bar for promotion.
type Profile struct {
	Name             string   `yaml:"name"`
	MinConfidence    float64  `yaml:"min_confidence"`
	RequiredFields   []string `yaml:"required_fields"`
	MinPromotionRate float64  `yaml:"min_promotion_rate"`
}

var builtinProfiles = map[string]Profile{
	"strict": {
		Name:             "strict",
		MinConfidence:    0.85,
		RequiredFields:   []string{"norm", "entity_type"},
		MinPromotionRate: 0.20,
	},
	"balanced": {
		Name:             "balanced",
		MinConfidence:    0.70,
		RequiredFields:   []string{"norm"},
		MinPromotionRate: 0.30,
	},
	"permissive": {
		Name:             "permissive",
		MinConfidence:    0.50,
		RequiredFields:   []string{"norm"},
		MinPromotionRate: 0.40,
	},
}

// LoadProfiles returns the built-in profiles, overlaid with any entries from
// the YAML file at GATE_PROFILE_FILE when set.
func LoadProfiles(log *logger.Logger) map[string]Profile {
	out := map[string]Profile{}
	for k, v := range builtinProfiles {
		out[k] = v
	}
	path := envutil.Str("GATE_PROFILE_FILE", "")
	if path == "" {
		return out
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Warn("gate profile file unreadable, using built-ins", "path", path, "error", err)
		return out
	}
	var loaded []Profile
	if err := yaml.Unmarshal(raw, &loaded); err != nil {
		log.Warn("gate profile file malformed, using built-ins", "path", path, "error", err)
		return out
	}
	for _, p := range loaded {
		if p.Name != "" {
			out[p.Name] = p
		}
	}
	return out
}

// Hard rejections precede every profile check and are unconditional.
var (
	stopWords = map[string]bool{
		"the": true, "a": true, "an": true, "and": true, "or": true,
		"of": true, "in": true, "on": true, "for": true, "with": true,
		"to": true, "this": true, "that": true, "it": true, "is": true,
	}

	// Fragments that carry no standalone meaning: corporate suffixes and
	// boilerplate section names that extraction sometimes yields alone.
	lowInfoFragments = map[string]bool{
		"inc": true, "ltd": true, "llc": true, "gmbh": true, "corp": true,
		"co": true, "plc": true, "group": true, "solutions": true,
		"services": true, "platform": true, "system": true, "overview": true,
		"introduction": true, "summary": true, "conclusion": true,
	}

	// Email, phone, SSN shape, card-number shape, national-id shape.
	piiPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}`),
		regexp.MustCompile(`\+?\d[\d\s().-]{7,}\d`),
		regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`),
		regexp.MustCompile(`\b[A-Z]{2}\d{6,10}\b`),
	}
)

// Rejection records one gated-out candidate with its reason.
type Rejection struct {
	Candidate types.Candidate `json:"candidate"`
	Reason    string          `json:"reason"`
}

// GateResult is the Phase B outcome. BelowFloor signals the orchestrator's
// single escalated retry.
type GateResult struct {
	Promoted      []types.Candidate
	Rejected      []Rejection
	PromotionRate float64
	BelowFloor    bool
}

// Gate applies hard rejections then the profile checks to the candidate set.
func Gate(candidates []types.Candidate, profile Profile) GateResult {
	res := GateResult{}
	for _, c := range candidates {
		if reason := hardReject(c.RawText); reason != "" {
			res.Rejected = append(res.Rejected, Rejection{Candidate: c, Reason: reason})
			continue
		}
		if reason := profileReject(c, profile); reason != "" {
			res.Rejected = append(res.Rejected, Rejection{Candidate: c, Reason: reason})
			continue
		}
		res.Promoted = append(res.Promoted, c)
	}
	if len(candidates) > 0 {
		res.PromotionRate = float64(len(res.Promoted)) / float64(len(candidates))
		res.BelowFloor = res.PromotionRate < profile.MinPromotionRate
	}
	return res
}

func hardReject(name string) string {
	trimmed := strings.TrimSpace(name)
	length := utf8.RuneCountInString(trimmed)
	if length < 3 || length > 100 {
		return fmt.Sprintf("name length %d outside [3,100]", length)
	}

	allStop := true
	for _, w := range strings.Fields(strings.ToLower(trimmed)) {
		if !stopWords[w] {
			allStop = false
			break
		}
	}
	if allStop {
		return "stop-word-only name"
	}

	if lowInfoFragments[strings.ToLower(trimmed)] {
		return "low-information fragment"
	}

	for _, re := range piiPatterns {
		if re.MatchString(trimmed) {
			return "matches pii pattern"
		}
	}
	return ""
}

func profileReject(c types.Candidate, p Profile) string {
	if c.Confidence < p.MinConfidence {
		return fmt.Sprintf("confidence %.2f below profile %s minimum %.2f", c.Confidence, p.Name, p.MinConfidence)
	}
	for _, field := range p.RequiredFields {
		switch field {
		case "norm":
			if c.Norm == "" {
				return "missing required field norm"
			}
		case "entity_type":
			if c.EntityType == "" {
				return "missing required field entity_type"
			}
		case "role":
			if c.Role == "" {
				return "missing required field role"
			}
		}
	}
	return ""
}
