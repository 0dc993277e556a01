package hashing

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func TestEmbed_NormalizedAndDeterministic(t *testing.T) {
	e := NewEmbedder(256)
	first, err := e.Embed(context.Background(), []string{"Paris is the capital of France"})
	require.NoError(t, err)
	second, err := e.Embed(context.Background(), []string{"Paris is the capital of France"})
	require.NoError(t, err)

	require.Len(t, first, 1)
	assert.Len(t, first[0], 256)
	assert.Equal(t, first, second)
	assert.InDelta(t, 1.0, math.Sqrt(dot(first[0], first[0])), 1e-9)
}

func TestEmbed_RelatedTextsScoreHigher(t *testing.T) {
	e := NewEmbedder(0)
	vecs, err := e.Embed(context.Background(), []string{
		"What is the capital of France?",
		"Paris is the capital of France.",
		"Photosynthesis converts light into chemical energy.",
	})
	require.NoError(t, err)

	related := dot(vecs[0], vecs[1])
	unrelated := dot(vecs[0], vecs[2])
	assert.Greater(t, related, unrelated)
	assert.Equal(t, DefaultDimension, e.Dimension())
}

func TestEmbed_StopwordsOnlyIsZeroVector(t *testing.T) {
	e := NewEmbedder(64)
	vecs, err := e.Embed(context.Background(), []string{"the and of to", ""})
	require.NoError(t, err)
	for _, v := range vecs {
		assert.Equal(t, make([]float64, 64), v)
	}
}

func TestEmbed_HonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEmbedder(8).Embed(ctx, []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
}
