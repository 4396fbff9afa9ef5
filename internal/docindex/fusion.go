package docindex

import (
	"sort"

	"github.com/quillindex/quill/internal/store"
)

// DefaultRRFConstant is the standard RRF smoothing parameter. k=60 is
// empirically validated across domains.
const DefaultRRFConstant = 60

// Weights balance the two retrieval legs during fusion.
type Weights struct {
	// Keyword is the weight for BM25 results.
	Keyword float64

	// Semantic is the weight for vector results.
	Semantic float64
}

// DefaultWeights returns weights tuned for mixed natural-language queries.
func DefaultWeights() Weights {
	return Weights{
		Keyword:  0.35,
		Semantic: 0.65,
	}
}

// FusedResult is a single result after RRF fusion.
type FusedResult struct {
	ChunkID      string
	RRFScore     float64 // combined score, normalized 0-1
	KeywordScore float64
	KeywordRank  int // 1-indexed, 0 if absent from keyword results
	VecScore     float64
	VecRank      int // 1-indexed, 0 if absent from vector results
	InBothLists  bool
	MatchedTerms []string
}

// RRFFusion combines keyword and vector results using Reciprocal Rank
// Fusion:
//
//	RRF_score(d) = Σ weight_i / (k + rank_i)
//
// A document missing from one list contributes that list's weight at
// missing_rank = max(len(keyword), len(vector)) + 1, so single-list hits
// are penalized but not erased.
type RRFFusion struct {
	K int
}

// NewRRFFusion creates an RRF fusion instance. k <= 0 selects the default.
func NewRRFFusion(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k}
}

// Fuse merges the two result lists. Output is sorted by RRFScore
// descending with deterministic tie-breaks, and normalized to 0-1.
func (f *RRFFusion) Fuse(keyword []*store.BM25Result, vec []*store.VectorResult, weights Weights) []*FusedResult {
	if len(keyword) == 0 && len(vec) == 0 {
		return []*FusedResult{}
	}

	scores := make(map[string]*FusedResult, len(keyword)+len(vec))

	for rank, r := range keyword {
		result := f.getOrCreate(scores, r.ChunkID)
		result.KeywordScore = r.Score
		result.KeywordRank = rank + 1
		result.MatchedTerms = r.MatchedTerms
		result.RRFScore += weights.Keyword / float64(f.K+rank+1)
	}

	for rank, r := range vec {
		result := f.getOrCreate(scores, r.ChunkID)
		result.VecScore = float64(r.Score)
		result.VecRank = rank + 1
		result.RRFScore += weights.Semantic / float64(f.K+rank+1)
		if result.KeywordRank > 0 {
			result.InBothLists = true
		}
	}

	missingRank := max(len(keyword), len(vec)) + 1
	for _, r := range scores {
		if r.KeywordRank == 0 && r.VecRank > 0 {
			r.RRFScore += weights.Keyword / float64(f.K+missingRank)
		}
		if r.VecRank == 0 && r.KeywordRank > 0 {
			r.RRFScore += weights.Semantic / float64(f.K+missingRank)
		}
	}

	results := make([]*FusedResult, 0, len(scores))
	for _, r := range scores {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		return f.less(results[i], results[j])
	})

	f.normalize(results)
	return results
}

func (f *RRFFusion) getOrCreate(m map[string]*FusedResult, id string) *FusedResult {
	if r, ok := m[id]; ok {
		return r
	}
	r := &FusedResult{ChunkID: id}
	m[id] = r
	return r
}

// less orders by RRF score, then presence in both lists, then keyword
// score, then chunk ID for determinism.
func (f *RRFFusion) less(a, b *FusedResult) bool {
	if a.RRFScore != b.RRFScore {
		return a.RRFScore > b.RRFScore
	}
	if a.InBothLists != b.InBothLists {
		return a.InBothLists
	}
	if a.KeywordScore != b.KeywordScore {
		return a.KeywordScore > b.KeywordScore
	}
	return a.ChunkID < b.ChunkID
}

// normalize scales scores so the top result is 1.0.
func (f *RRFFusion) normalize(results []*FusedResult) {
	if len(results) == 0 {
		return
	}
	maxScore := results[0].RRFScore
	if maxScore == 0 {
		return
	}
	for _, r := range results {
		r.RRFScore /= maxScore
	}
}
