package mining

import (
	"sort"

	"github.com/yungbote/conceptgraph-backend/internal/platform/envutil"
	"github.com/yungbote/conceptgraph-backend/internal/types"
)

// Result carries the annotated candidate set and the untyped co-occurrence
// proposals awaiting name→canonical-id resolution.
type Result struct {
	Candidates []types.Candidate
	Proposals  []types.RelationProposal
}

type Miner struct {
	minFrequency int
}

func NewMiner() *Miner {
	return &Miner{
		minFrequency: envutil.Int("MINE_MIN_FREQUENCY", 2),
	}
}

// Mine runs frequency and co-occurrence analysis over a document's full
// candidate set. It is a pure function of its inputs: no storage, no
// inference, no side effects. Duplicate mentions of one normalized name
// collapse into a single annotated candidate carrying the highest observed
// confidence.
func (m *Miner) Mine(candidates []types.Candidate, segmentCount int) Result {
	if segmentCount < 1 {
		segmentCount = 1
	}

	freq := map[string]int{}
	segsByName := map[string]map[int]bool{}
	best := map[string]types.Candidate{}
	order := []string{}

	for _, c := range candidates {
		if c.Norm == "" {
			continue
		}
		if _, seen := freq[c.Norm]; !seen {
			order = append(order, c.Norm)
			segsByName[c.Norm] = map[int]bool{}
		}
		freq[c.Norm]++
		segsByName[c.Norm][c.SegmentIndex] = true
		if prev, ok := best[c.Norm]; !ok || c.Confidence > prev.Confidence {
			best[c.Norm] = c
		}
	}

	// Co-occurrence: two names sharing at least one segment, both above the
	// minimum frequency.
	related := map[string]map[string]bool{}
	pairWeight := map[[2]string]int{}
	for i := 0; i < len(order); i++ {
		for j := i + 1; j < len(order); j++ {
			a, b := order[i], order[j]
			if freq[a] < m.minFrequency || freq[b] < m.minFrequency {
				continue
			}
			shared := sharedSegments(segsByName[a], segsByName[b])
			if shared == 0 {
				continue
			}
			if related[a] == nil {
				related[a] = map[string]bool{}
			}
			if related[b] == nil {
				related[b] = map[string]bool{}
			}
			related[a][b] = true
			related[b][a] = true
			pairWeight[[2]string{a, b}] = shared
		}
	}

	out := make([]types.Candidate, 0, len(order))
	for _, name := range order {
		c := best[name]
		c.Frequency = freq[name]
		c.PatternScore = float64(freq[name]) / float64(segmentCount)
		c.RelatedNames = sortedKeys(related[name])
		out = append(out, c)
	}

	proposals := make([]types.RelationProposal, 0, len(pairWeight))
	for pair, shared := range pairWeight {
		proposals = append(proposals, types.RelationProposal{
			NameA:  pair[0],
			NameB:  pair[1],
			Weight: float64(shared) / float64(segmentCount),
		})
	}
	sort.Slice(proposals, func(i, j int) bool {
		if proposals[i].NameA != proposals[j].NameA {
			return proposals[i].NameA < proposals[j].NameA
		}
		return proposals[i].NameB < proposals[j].NameB
	})

	return Result{Candidates: out, Proposals: proposals}
}

func sharedSegments(a, b map[int]bool) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for seg := range a {
		if b[seg] {
			n++
		}
	}
	return n
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
