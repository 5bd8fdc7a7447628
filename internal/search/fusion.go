package search

import "sort"

// DefaultRRFConstant is the standard RRF smoothing parameter. k=60 is
// empirically validated across domains (Azure AI Search, OpenSearch).
const DefaultRRFConstant = 60

// candidate is one entry in a ranked leg, keyed by the composite chunk
// id so the two legs agree on identity.
type candidate struct {
	ID    string
	Score float64
}

// fused is the per-candidate fusion state.
type fused struct {
	ID            string
	RRFScore      float64
	SemanticRank  int // 1-indexed, 0 if absent
	KeywordRank   int // 1-indexed, 0 if absent
	SemanticScore float64
	KeywordScore  float64
	InBothLists   bool
}

// fuseRRF combines the two ranked legs with reciprocal-rank fusion:
//
//	score(c) = 1/(k + semantic_rank) + 1/(k + keyword_rank)
//
// A candidate absent from a leg gets no contribution from it. Scores
// are then normalized so the best candidate is exactly 1. Ties break
// toward candidates in both lists, then by keyword score, then by id,
// so the ordering is deterministic.
func fuseRRF(semantic, keyword []candidate, k int) []*fused {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	if len(semantic) == 0 && len(keyword) == 0 {
		return []*fused{}
	}

	scores := make(map[string]*fused, len(semantic)+len(keyword))
	get := func(id string) *fused {
		if f, ok := scores[id]; ok {
			return f
		}
		f := &fused{ID: id}
		scores[id] = f
		return f
	}

	for rank, c := range semantic {
		f := get(c.ID)
		f.SemanticRank = rank + 1
		f.SemanticScore = c.Score
		f.RRFScore += 1.0 / float64(k+rank+1)
	}
	for rank, c := range keyword {
		f := get(c.ID)
		f.KeywordRank = rank + 1
		f.KeywordScore = c.Score
		f.RRFScore += 1.0 / float64(k+rank+1)
		if f.SemanticRank > 0 {
			f.InBothLists = true
		}
	}

	results := make([]*fused, 0, len(scores))
	for _, f := range scores {
		results = append(results, f)
	}
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.RRFScore != b.RRFScore {
			return a.RRFScore > b.RRFScore
		}
		if a.InBothLists != b.InBothLists {
			return a.InBothLists
		}
		if a.KeywordScore != b.KeywordScore {
			return a.KeywordScore > b.KeywordScore
		}
		return a.ID < b.ID
	})

	// Max-normalize; the sorted head carries the maximum.
	if max := results[0].RRFScore; max > 0 {
		for _, f := range results {
			f.RRFScore /= max
		}
	}
	return results
}
