package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
)

const keyEnv = "DOCQA_TEST_GENERATION_KEY"

func TestNewClient_MissingOrPlaceholderKey(t *testing.T) {
	t.Setenv(keyEnv, "")
	_, err := NewClient(Config{APIKeyEnv: keyEnv})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	t.Setenv(keyEnv, "your_groq_api_key_here")
	_, err = NewClient(Config{APIKeyEnv: keyEnv})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Empty(t, APIKey(keyEnv))
}

func TestComplete_SendsBothMessages(t *testing.T) {
	var body struct {
		Model       string  `json:"model"`
		Temperature float64 `json:"temperature"`
		MaxTokens   int     `json:"max_tokens"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":0,"model":"m",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"  {\"answer\":\"x\"}  "}}]}`))
	}))
	defer srv.Close()

	t.Setenv(keyEnv, "secret")
	c, err := NewClient(Config{BaseURL: srv.URL, APIKeyEnv: keyEnv, Model: "m"})
	require.NoError(t, err)

	got, err := c.Complete(context.Background(), "system", "user")
	require.NoError(t, err)

	assert.Equal(t, `{"answer":"x"}`, got)
	assert.Equal(t, "m", body.Model)
	assert.Equal(t, 1024, body.MaxTokens)
	require.Len(t, body.Messages, 2)
	assert.Equal(t, "system", body.Messages[0].Role)
	assert.Equal(t, "system", body.Messages[0].Content)
	assert.Equal(t, "user", body.Messages[1].Role)
	assert.Equal(t, "user", body.Messages[1].Content)
}

func TestComplete_ErrorsAreUpstream(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	t.Setenv(keyEnv, "secret")
	c, err := NewClient(Config{BaseURL: srv.URL, APIKeyEnv: keyEnv})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), "s", "u")
	var upstream *domain.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "generation", upstream.Service)
	assert.Equal(t, 1, calls, "the client must not retry")
}
