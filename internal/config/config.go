package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"docqa/internal/domain"
)

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host                string `yaml:"host"`
	Port                int    `yaml:"port"`
	MaxUploadMB         int    `yaml:"max_upload_mb"`
	ShutdownTimeoutSecs int    `yaml:"shutdown_timeout_secs"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ChunkerConfig configures how pages are split into chunks. Sizes are in characters.
type ChunkerConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// RetrievalConfig configures similarity search.
type RetrievalConfig struct {
	TopK           int `yaml:"top_k"`
	QueryCacheSize int `yaml:"query_cache_size"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	Dimension   int    `yaml:"dimension"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
	MaxRetries  int    `yaml:"max_retries"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string                `yaml:"type"`
	Dimension int                   `yaml:"dimension"`
	OpenAI    *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
	Redis  *RedisConfig  `yaml:"redis,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
// The API key is read from the environment variable named by APIKeyEnv.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// RedisConfig contains connection details for a Redis vector set.
type RedisConfig struct {
	URL string `yaml:"url"`
	Key string `yaml:"key"`
}

// GeneratorConfig configures the chat completion service.
type GeneratorConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

// IngestConfig bounds embedding work during ingestion.
type IngestConfig struct {
	EmbedBatchSize int `yaml:"embed_batch_size"`
	Concurrency    int `yaml:"concurrency"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type"`
	MaxSentences int    `yaml:"max_sentences"`
}

// LoaderConfig configures document text extraction.
type LoaderConfig struct {
	MaxSectionChars int `yaml:"max_section_chars"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Server      ServerConfig      `yaml:"server"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	Loader      LoaderConfig      `yaml:"loader"`
	Log         LogConfig         `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Environment overrides are applied and the result is validated.
func Load(path string) (*AppConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		applyConfigDefaults(cfg)
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/docqa/config.yaml.
// If neither exists, it writes defaults to ~/.config/docqa/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	if err := Save(userPath, Default()); err != nil {
		return nil, "", err
	}
	cfg, err := Load(userPath)
	return cfg, userPath, err
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "docqa", "config.yaml"), nil
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	cfg := &AppConfig{
		Server:      ServerConfig{Host: "0.0.0.0", Port: 8000},
		Chunker:     ChunkerConfig{ChunkSize: 500, ChunkOverlap: 50},
		Retrieval:   RetrievalConfig{TopK: 5, QueryCacheSize: 256},
		Embedder:    EmbedderConfig{Type: "hashing", Dimension: 512},
		VectorStore: VectorStoreConfig{Type: "memory"},
		Summarizer:  SummarizerConfig{Type: "frequency", MaxSentences: 3},
		Log:         LogConfig{Level: "info"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 50
	}
	if cfg.Server.ShutdownTimeoutSecs == 0 {
		cfg.Server.ShutdownTimeoutSecs = 10
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.Embedder.Type == "hashing" && cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = 512
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		o := cfg.Embedder.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "text-embedding-3-small"
		}
		if o.Dimension == 0 && o.Model == "text-embedding-3-small" {
			o.Dimension = 1536
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 30
		}
		if o.BatchSize == 0 {
			o.BatchSize = 32
		}
		if o.MaxRetries == 0 {
			o.MaxRetries = 5
		}
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if cfg.VectorStore.Type == "qdrant" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		q := cfg.VectorStore.Qdrant
		if q.URL == "" {
			q.URL = "http://localhost:6333"
		}
		if q.Collection == "" {
			q.Collection = "documents"
		}
		if q.TimeoutSecs == 0 {
			q.TimeoutSecs = 15
		}
	}
	if cfg.VectorStore.Type == "redis" {
		if cfg.VectorStore.Redis == nil {
			cfg.VectorStore.Redis = &RedisConfig{}
		}
		if cfg.VectorStore.Redis.URL == "" {
			cfg.VectorStore.Redis.URL = "redis://localhost:6379/0"
		}
		if cfg.VectorStore.Redis.Key == "" {
			cfg.VectorStore.Redis.Key = "docqa:chunks"
		}
	}
	if cfg.Generator.BaseURL == "" {
		cfg.Generator.BaseURL = "https://api.groq.com/openai/v1"
	}
	if cfg.Generator.APIKeyEnv == "" {
		cfg.Generator.APIKeyEnv = "GROQ_API_KEY"
	}
	if cfg.Generator.Model == "" {
		cfg.Generator.Model = "llama-3.1-70b-versatile"
	}
	if cfg.Generator.MaxTokens == 0 {
		cfg.Generator.MaxTokens = 1024
	}
	if cfg.Generator.TimeoutSecs == 0 {
		cfg.Generator.TimeoutSecs = 60
	}
	if cfg.Ingest.EmbedBatchSize == 0 {
		cfg.Ingest.EmbedBatchSize = 64
	}
	if cfg.Ingest.Concurrency == 0 {
		cfg.Ingest.Concurrency = 4
	}
	if cfg.Summarizer.Type == "" {
		cfg.Summarizer.Type = "frequency"
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 3
	}
	if cfg.Loader.MaxSectionChars == 0 {
		cfg.Loader.MaxSectionChars = 3000
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// envOverrides maps environment variables onto integer settings.
var envOverrides = []struct {
	name  string
	field func(*AppConfig) *int
}{
	{"DOCQA_CHUNK_SIZE", func(c *AppConfig) *int { return &c.Chunker.ChunkSize }},
	{"DOCQA_CHUNK_OVERLAP", func(c *AppConfig) *int { return &c.Chunker.ChunkOverlap }},
	{"DOCQA_TOP_K", func(c *AppConfig) *int { return &c.Retrieval.TopK }},
	{"DOCQA_PORT", func(c *AppConfig) *int { return &c.Server.Port }},
}

func applyEnvOverrides(cfg *AppConfig) error {
	for _, o := range envOverrides {
		raw, ok := os.LookupEnv(o.name)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", domain.ErrConfiguration, o.name, raw)
		}
		*o.field(cfg) = n
	}
	if host := strings.TrimSpace(os.Getenv("DOCQA_HOST")); host != "" {
		cfg.Server.Host = host
	}
	return nil
}

// Validate reports the first invalid setting as a domain.ErrConfiguration.
func (c *AppConfig) Validate() error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", domain.ErrConfiguration, fmt.Sprintf(format, args...))
	}
	if c.Chunker.ChunkSize <= 0 {
		return fail("chunker.chunk_size must be greater than zero")
	}
	if c.Chunker.ChunkOverlap < 0 || c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
		return fail("chunker.chunk_overlap must be in [0, chunk_size)")
	}
	if c.Retrieval.TopK < 1 || c.Retrieval.TopK > 20 {
		return fail("retrieval.top_k must be between 1 and 20")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fail("server.port %d is out of range", c.Server.Port)
	}
	switch c.Embedder.Type {
	case "hashing":
		if c.Embedder.Dimension <= 0 {
			return fail("embedder.dimension must be greater than zero")
		}
	case "openai":
		if c.Embedder.OpenAI == nil || c.Embedder.OpenAI.Dimension <= 0 {
			return fail("embedder.openai.dimension must be set for model")
		}
	default:
		return fail("unknown embedder type %q", c.Embedder.Type)
	}
	switch c.VectorStore.Type {
	case "memory", "qdrant", "redis":
	default:
		return fail("unknown vector_store type %q", c.VectorStore.Type)
	}
	if c.Summarizer.Type != "frequency" && c.Summarizer.Type != "none" {
		return fail("unknown summarizer type %q", c.Summarizer.Type)
	}
	return nil
}

// Timeout converts a seconds setting into a duration.
func Timeout(secs int) time.Duration {
	return time.Duration(secs) * time.Second
}
