package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
)

type countingEmbedder struct {
	calls [][]string
	err   error
}

func (c *countingEmbedder) Name() string   { return "counting" }
func (c *countingEmbedder) Dimension() int { return 1 }
func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	c.calls = append(c.calls, append([]string(nil), texts...))
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = []float64{float64(len(t))}
	}
	return out, nil
}

func TestCached_ServesRepeatsFromCache(t *testing.T) {
	inner := &countingEmbedder{}
	c, err := NewCached(inner, 8)
	require.NoError(t, err)

	first, err := c.Embed(context.Background(), []string{"ab", "abc", "ab"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{2}, {3}, {2}}, first)

	second, err := c.Embed(context.Background(), []string{"abc", "abcd"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{3}, {4}}, second)

	require.Len(t, inner.calls, 2)
	assert.Equal(t, []string{"ab", "abc"}, inner.calls[0])
	assert.Equal(t, []string{"abcd"}, inner.calls[1])
	assert.Equal(t, "counting", c.Name())
}

func TestCached_ReturnsCopies(t *testing.T) {
	c, err := NewCached(&countingEmbedder{}, 2)
	require.NoError(t, err)

	v, err := c.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	v[0][0] = 42

	again, err := c.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1}}, again)
}

func TestCached_PropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	c, err := NewCached(&countingEmbedder{err: boom}, 2)
	require.NoError(t, err)

	_, err = c.Embed(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, boom)
}

func TestNewCached_RejectsZeroSize(t *testing.T) {
	_, err := NewCached(&countingEmbedder{}, 0)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
