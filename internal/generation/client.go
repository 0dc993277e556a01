package generation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"docqa/internal/domain"
)

// placeholderKey ships in example .env files and counts as unset.
const placeholderKey = "your_groq_api_key_here"

// Config configures the OpenAI-compatible chat completion client.
type Config struct {
	BaseURL     string
	APIKeyEnv   string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Client calls an OpenAI-compatible chat completions endpoint (Groq by default).
type Client struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
}

// APIKey returns the configured key, or "" when it is missing or still the placeholder.
func APIKey(envName string) string {
	key := strings.TrimSpace(os.Getenv(envName))
	if key == placeholderKey {
		return ""
	}
	return key
}

// NewClient fails with domain.ErrConfiguration when no API key is available.
func NewClient(cfg Config) (*Client, error) {
	key := APIKey(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("%w: %s is not set", domain.ErrConfiguration, cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.groq.com/openai/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "llama-3.1-70b-versatile"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	client := openai.NewClient(
		option.WithAPIKey(key),
		option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"),
		// retries belong to the caller
		option.WithMaxRetries(0),
	)
	return &Client{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
	}, nil
}

// Complete sends the system and user messages and returns the first choice's text.
func (c *Client) Complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userMessage),
		},
		Model:       openai.ChatModel(c.model),
		Temperature: openai.Float(c.temperature),
		MaxTokens:   openai.Int(int64(c.maxTokens)),
	})
	if err != nil {
		return "", domain.Upstream("generation", err)
	}
	if len(resp.Choices) == 0 {
		return "", domain.Upstream("generation", errors.New("completion has no choices"))
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
