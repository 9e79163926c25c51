package gatekeeper

import (
	"math"
	"sort"
	"strings"

	"github.com/yungbote/conceptgraph-backend/internal/platform/envutil"
	"github.com/yungbote/conceptgraph-backend/internal/types"
)

// CentralityScorer ranks candidates by how structurally central they are to
// the document: a co-occurrence graph over mentions, weighted by tf-idf,
// combined with positional salience. Purely lexical, no inference cost.
type CentralityScorer struct {
	minWindow int
	maxWindow int

	weightPageRank    float64
	weightDegree      float64
	weightBetweenness float64
	weightSalience    float64
}

func NewCentralityScorer() *CentralityScorer {
	return &CentralityScorer{
		minWindow:         envutil.Int("CENTRALITY_WINDOW_MIN", 30),
		maxWindow:         envutil.Int("CENTRALITY_WINDOW_MAX", 100),
		weightPageRank:    envutil.Float("CENTRALITY_WEIGHT_PAGERANK", 0.5),
		weightDegree:      envutil.Float("CENTRALITY_WEIGHT_DEGREE", 0.3),
		weightBetweenness: envutil.Float("CENTRALITY_WEIGHT_BETWEENNESS", 0.2),
		weightSalience:    envutil.Float("CENTRALITY_WEIGHT_SALIENCE", 0.3),
	}
}

// windowFor picks the co-occurrence window from document length: short
// documents get tight windows, long ones get wide windows.
func (s *CentralityScorer) windowFor(wordCount int) int {
	const shortDoc, longDoc = 500, 5000
	switch {
	case wordCount <= shortDoc:
		return s.minWindow
	case wordCount >= longDoc:
		return s.maxWindow
	default:
		span := float64(s.maxWindow - s.minWindow)
		frac := float64(wordCount-shortDoc) / float64(longDoc-shortDoc)
		return s.minWindow + int(span*frac)
	}
}

// Score annotates each candidate with a 0-1 relevance score in
// Candidate.Centrality. Candidates whose names never appear in the text keep
// a zero score. segmentCount feeds the idf term.
func (s *CentralityScorer) Score(docText string, candidates []types.Candidate, segmentCount int) []types.Candidate {
	if docText == "" || len(candidates) == 0 {
		return candidates
	}
	if segmentCount < 1 {
		segmentCount = 1
	}

	words := strings.Fields(strings.ToLower(docText))
	window := s.windowFor(len(words))

	// Word positions per normalized name, matched against the word stream so
	// multi-word names land on their first token's position.
	positions := map[string][]int{}
	names := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c.Norm == "" {
			continue
		}
		if _, seen := positions[c.Norm]; seen {
			continue
		}
		names = append(names, c.Norm)
		positions[c.Norm] = mentionPositions(words, c.Norm)
	}
	sort.Strings(names)

	tfidf := map[string]float64{}
	for _, name := range names {
		tf := float64(len(positions[name]))
		segs := segmentsWithName(candidates, name)
		idf := math.Log(1 + float64(segmentCount)/float64(segs))
		tfidf[name] = tf * idf
	}

	edges := buildEdges(names, positions, tfidf, window)

	pr := pageRank(names, edges)
	deg := degreeCentrality(names, edges)
	btw := betweenness(names, edges)

	out := make([]types.Candidate, len(candidates))
	copy(out, candidates)
	for i := range out {
		name := out[i].Norm
		if name == "" {
			continue
		}
		graphScore := s.weightPageRank*pr[name] + s.weightDegree*deg[name] + s.weightBetweenness*btw[name]
		sal := salience(positions[name], len(words))
		rel := (1-s.weightSalience)*graphScore + s.weightSalience*sal
		if rel > 1 {
			rel = 1
		}
		out[i].Centrality = rel
	}
	return out
}

func segmentsWithName(candidates []types.Candidate, name string) int {
	segs := map[int]bool{}
	for _, c := range candidates {
		if c.Norm == name {
			segs[c.SegmentIndex] = true
		}
	}
	if len(segs) == 0 {
		return 1
	}
	return len(segs)
}

// mentionPositions returns the word index of each occurrence of name in the
// lowercased word stream.
func mentionPositions(words []string, name string) []int {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return nil
	}
	var out []int
	for i := 0; i+len(parts) <= len(words); i++ {
		match := true
		for j, p := range parts {
			if strings.Trim(words[i+j], ".,;:!?()[]{}\"'") != p {
				match = false
				break
			}
		}
		if match {
			out = append(out, i)
		}
	}
	return out
}

type edgeKey struct{ a, b string }

func buildEdges(names []string, positions map[string][]int, tfidf map[string]float64, window int) map[edgeKey]float64 {
	edges := map[edgeKey]float64{}
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			a, b := names[i], names[j]
			hits := pairsWithinWindow(positions[a], positions[b], window)
			if hits == 0 {
				continue
			}
			w := float64(hits) * math.Sqrt(tfidf[a]*tfidf[b])
			edges[edgeKey{a, b}] = w
		}
	}
	return edges
}

func pairsWithinWindow(pa, pb []int, window int) int {
	n := 0
	for _, x := range pa {
		for _, y := range pb {
			d := x - y
			if d < 0 {
				d = -d
			}
			if d <= window {
				n++
			}
		}
	}
	return n
}

func neighbors(name string, edges map[edgeKey]float64) map[string]float64 {
	out := map[string]float64{}
	for k, w := range edges {
		switch name {
		case k.a:
			out[k.b] = w
		case k.b:
			out[k.a] = w
		}
	}
	return out
}

// pageRank runs a short power iteration over the weighted undirected graph
// and normalizes the result so the top node scores 1.
func pageRank(names []string, edges map[edgeKey]float64) map[string]float64 {
	const damping, iterations = 0.85, 20
	n := len(names)
	if n == 0 {
		return map[string]float64{}
	}

	adj := map[string]map[string]float64{}
	outWeight := map[string]float64{}
	for _, name := range names {
		adj[name] = neighbors(name, edges)
		for _, w := range adj[name] {
			outWeight[name] += w
		}
	}

	rank := map[string]float64{}
	for _, name := range names {
		rank[name] = 1.0 / float64(n)
	}
	for it := 0; it < iterations; it++ {
		next := map[string]float64{}
		for _, name := range names {
			next[name] = (1 - damping) / float64(n)
		}
		for _, name := range names {
			if outWeight[name] == 0 {
				continue
			}
			for nb, w := range adj[name] {
				next[nb] += damping * rank[name] * (w / outWeight[name])
			}
		}
		rank = next
	}
	return normalizeToUnit(rank)
}

func degreeCentrality(names []string, edges map[edgeKey]float64) map[string]float64 {
	deg := map[string]float64{}
	for _, name := range names {
		for _, w := range neighbors(name, edges) {
			deg[name] += w
		}
	}
	return normalizeToUnit(deg)
}

// betweenness is Brandes' algorithm over the unweighted skeleton of the
// co-occurrence graph. Candidate graphs are small enough that the cubic
// worst case does not matter.
func betweenness(names []string, edges map[edgeKey]float64) map[string]float64 {
	bc := map[string]float64{}
	adj := map[string][]string{}
	for _, name := range names {
		for nb := range neighbors(name, edges) {
			adj[name] = append(adj[name], nb)
		}
		sort.Strings(adj[name])
	}

	for _, source := range names {
		stack := []string{}
		preds := map[string][]string{}
		sigma := map[string]float64{source: 1}
		dist := map[string]int{source: 0}
		queue := []string{source}

		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			stack = append(stack, v)
			for _, w := range adj[v] {
				if _, seen := dist[w]; !seen {
					dist[w] = dist[v] + 1
					queue = append(queue, w)
				}
				if dist[w] == dist[v]+1 {
					sigma[w] += sigma[v]
					preds[w] = append(preds[w], v)
				}
			}
		}

		delta := map[string]float64{}
		for i := len(stack) - 1; i >= 0; i-- {
			w := stack[i]
			for _, v := range preds[w] {
				delta[v] += (sigma[v] / sigma[w]) * (1 + delta[w])
			}
			if w != source {
				bc[w] += delta[w]
			}
		}
	}
	return normalizeToUnit(bc)
}

// salience boosts names first mentioned near the top of the document,
// where titles and abstracts live.
func salience(positions []int, wordCount int) float64 {
	if len(positions) == 0 || wordCount == 0 {
		return 0
	}
	first := float64(positions[0]) / float64(wordCount)
	switch {
	case first <= 0.05:
		return 1.0
	case first <= 0.15:
		return 0.8
	default:
		return 1 - first
	}
}

func normalizeToUnit(m map[string]float64) map[string]float64 {
	max := 0.0
	for _, v := range m {
		if v > max {
			max = v
		}
	}
	if max == 0 {
		return m
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v / max
	}
	return out
}
