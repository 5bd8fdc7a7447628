package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dircerrors "github.com/boletinlabs/dirc/internal/errors"
)

func TestStaticEmbedder_Deterministic(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	text := "DECRETO 123: se aprueba el presupuesto municipal"
	v1, err := e.Embed(context.Background(), text)
	require.NoError(t, err)
	v2, err := e.Embed(context.Background(), text)
	require.NoError(t, err)

	assert.Equal(t, v1, v2, "same text must produce identical vectors")
}

func TestStaticEmbedder_Dimensions(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	vec, err := e.Embed(context.Background(), "licitación pública")
	require.NoError(t, err)
	assert.Len(t, vec, StaticDimensions)
	assert.Equal(t, StaticDimensions, e.Dimensions())
	assert.Equal(t, "static", e.ModelName())
}

func TestStaticEmbedder_Normalized(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	vec, err := e.Embed(context.Background(), "resolución ministerial sobre subsidios")
	require.NoError(t, err)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestStaticEmbedder_EmptyText(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	vec, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	assert.Len(t, vec, StaticDimensions)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestStaticEmbedder_DifferentTextsDiffer(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	v1, err := e.Embed(context.Background(), "designación de personal administrativo")
	require.NoError(t, err)
	v2, err := e.Embed(context.Background(), "llamado a licitación de obra vial")
	require.NoError(t, err)

	assert.NotEqual(t, v1, v2)
}

func TestStaticEmbedder_EmbedBatch(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	texts := []string{"decreto uno", "decreto dos", "decreto tres"}
	vecs, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	single, err := e.Embed(context.Background(), texts[1])
	require.NoError(t, err)
	assert.Equal(t, single, vecs[1], "batch and single embeddings must match")
}

func TestStaticEmbedder_Cancelled(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Embed(ctx, "texto")
	require.Error(t, err)
	assert.Equal(t, dircerrors.ErrCodeCancelled, dircerrors.GetCode(err))
}

func TestStaticEmbedder_ClosedRejects(t *testing.T) {
	e := NewStaticEmbedder()
	require.NoError(t, e.Close())

	assert.False(t, e.Available(context.Background()))
	_, err := e.Embed(context.Background(), "texto")
	assert.Error(t, err)
}

func TestTokenize_DropsStopWords(t *testing.T) {
	tokens := tokenize("el decreto de la provincia y los subsidios")
	assert.Equal(t, []string{"decreto", "provincia", "subsidios"}, tokens)
}
