package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuseRRF_BothLegsRankFirst(t *testing.T) {
	semantic := []candidate{
		{ID: "doc#1", Score: 0.9},
		{ID: "doc#2", Score: 0.8},
		{ID: "doc#3", Score: 0.7},
	}
	keyword := []candidate{
		{ID: "doc#2", Score: 1.0},
		{ID: "doc#7", Score: 0.0},
	}

	results := fuseRRF(semantic, keyword, 60)
	require.Len(t, results, 4)

	assert.Equal(t, "doc#2", results[0].ID, "chunk in both legs must rank first")
	assert.True(t, results[0].InBothLists)
	assert.Equal(t, 1.0, results[0].RRFScore, "best score normalizes to exactly 1")

	for _, r := range results {
		assert.Greater(t, r.RRFScore, 0.0)
		assert.LessOrEqual(t, r.RRFScore, 1.0)
	}
}

func TestFuseRRF_AbsentLegContributesNothing(t *testing.T) {
	// One candidate per leg at rank 1: identical raw scores 1/(k+1),
	// which only holds when the missing leg adds no penalty term.
	results := fuseRRF(
		[]candidate{{ID: "doc#1"}},
		[]candidate{{ID: "doc#2"}},
		60,
	)
	require.Len(t, results, 2)
	assert.Equal(t, results[0].RRFScore, results[1].RRFScore,
		"single-leg candidates at the same rank must tie")
}

func TestFuseRRF_RawScoreBounds(t *testing.T) {
	k := 60
	results := fuseRRF(
		[]candidate{{ID: "doc#1"}},
		[]candidate{{ID: "doc#1"}},
		k,
	)
	require.Len(t, results, 1)
	// Both legs at rank 1 give the maximum raw score 2/(k+1); after
	// normalization the single candidate is exactly 1.
	assert.Equal(t, 1.0, results[0].RRFScore)
	assert.True(t, results[0].InBothLists)
}

func TestFuseRRF_Deterministic(t *testing.T) {
	semantic := []candidate{{ID: "doc#b"}, {ID: "doc#a"}}
	keyword := []candidate{{ID: "doc#c"}, {ID: "doc#d"}}

	first := fuseRRF(semantic, keyword, 60)
	for i := 0; i < 10; i++ {
		again := fuseRRF(semantic, keyword, 60)
		require.Equal(t, len(first), len(again))
		for j := range first {
			assert.Equal(t, first[j].ID, again[j].ID, "ordering must be stable across runs")
		}
	}
	// Same rank, same leg count: ties break lexicographically.
	assert.Equal(t, "doc#b", first[0].ID)
	assert.Equal(t, "doc#c", first[1].ID)
}

func TestFuseRRF_Empty(t *testing.T) {
	results := fuseRRF(nil, nil, 60)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestFuseRRF_ZeroKDefaults(t *testing.T) {
	results := fuseRRF([]candidate{{ID: "doc#1"}}, nil, 0)
	require.Len(t, results, 1)
	assert.Equal(t, 1.0, results[0].RRFScore)
}
