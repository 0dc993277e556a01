package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
)

func newTestClient(t *testing.T, url string, dim, batch, retries int) *Client {
	t.Helper()
	t.Setenv("DOCQA_TEST_EMBED_KEY", "secret")
	c, err := NewClient(Config{BaseURL: url, APIKeyEnv: "DOCQA_TEST_EMBED_KEY", Model: "m", Dimension: dim, BatchSize: batch, MaxRetries: retries})
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresKeyAndDimension(t *testing.T) {
	t.Setenv("DOCQA_TEST_EMBED_KEY", "")
	_, err := NewClient(Config{APIKeyEnv: "DOCQA_TEST_EMBED_KEY", Dimension: 3})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	t.Setenv("DOCQA_TEST_EMBED_KEY", "secret")
	_, err = NewClient(Config{APIKeyEnv: "DOCQA_TEST_EMBED_KEY"})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestEmbed_BatchesAndOrdersByIndex(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var body struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Input, 2)
		// reversed order on the wire; client must sort by index
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2, 2, 0)
	vecs, err := c.Embed(context.Background(), []string{"a", "b", "c", "d"})
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, [][]float64{{1, 0}, {0, 1}, {1, 0}, {0, 1}}, vecs)
}

func TestEmbed_OllamaShapeForSingleText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body["prompt"])
		_, _ = w.Write([]byte(`{"embedding":[0.5,0.5,0.5]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 3, 8, 0)
	vecs, err := c.Embed(context.Background(), []string{"hello"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0.5, 0.5, 0.5}}, vecs)
}

func TestEmbed_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1,2]}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2, 8, 2)
	vecs, err := c.Embed(context.Background(), []string{"q"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 2}}, vecs)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEmbed_ClientErrorIsUpstreamAndNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2, 8, 3)
	_, err := c.Embed(context.Background(), []string{"q"})

	var upstream *domain.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "embeddings", upstream.Service)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEmbed_DimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1,2,3]}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2, 8, 0)
	_, err := c.Embed(context.Background(), []string{"q"})
	assert.ErrorContains(t, err, "dimension 3")
}
