package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Chunker.ChunkSize)
	assert.Equal(t, 50, cfg.Chunker.ChunkOverlap)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, "0.0.0.0:8000", cfg.Server.Addr())
	assert.Equal(t, "hashing", cfg.Embedder.Type)
	assert.Equal(t, "memory", cfg.VectorStore.Type)
	assert.Equal(t, "GROQ_API_KEY", cfg.Generator.APIKeyEnv)
	assert.Equal(t, "llama-3.1-70b-versatile", cfg.Generator.Model)
	assert.Equal(t, 1024, cfg.Generator.MaxTokens)
	assert.Zero(t, cfg.Generator.Temperature)
}

func TestLoad_FillsBackendDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
chunker:
  chunk_size: 800
  chunk_overlap: 100
embedder:
  type: openai
vector_store:
  type: qdrant
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 800, cfg.Chunker.ChunkSize)
	require.NotNil(t, cfg.Embedder.OpenAI)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Embedder.OpenAI.APIKeyEnv)
	assert.Equal(t, 1536, cfg.Embedder.OpenAI.Dimension)
	require.NotNil(t, cfg.VectorStore.Qdrant)
	assert.Equal(t, "http://localhost:6333", cfg.VectorStore.Qdrant.URL)
	assert.Equal(t, "documents", cfg.VectorStore.Qdrant.Collection)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DOCQA_CHUNK_SIZE", "300")
	t.Setenv("DOCQA_CHUNK_OVERLAP", "30")
	t.Setenv("DOCQA_TOP_K", "8")
	t.Setenv("DOCQA_PORT", "9090")
	t.Setenv("DOCQA_HOST", "127.0.0.1")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 300, cfg.Chunker.ChunkSize)
	assert.Equal(t, 30, cfg.Chunker.ChunkOverlap)
	assert.Equal(t, 8, cfg.Retrieval.TopK)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr())
}

func TestLoad_RejectsInvalidSettings(t *testing.T) {
	t.Setenv("DOCQA_TOP_K", "many")
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	t.Setenv("DOCQA_TOP_K", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunker:\n  chunk_size: 100\n  chunk_overlap: 100\n"), 0o600))
	_, err = Load(path)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*AppConfig){
		"top_k too large":     func(c *AppConfig) { c.Retrieval.TopK = 21 },
		"unknown embedder":    func(c *AppConfig) { c.Embedder.Type = "bert" },
		"unknown store":       func(c *AppConfig) { c.VectorStore.Type = "chroma" },
		"negative overlap":    func(c *AppConfig) { c.Chunker.ChunkOverlap = -1 },
		"openai without dims": func(c *AppConfig) { c.Embedder = EmbedderConfig{Type: "openai", OpenAI: &OpenAIEmbedderConfig{}} },
		"bad port":            func(c *AppConfig) { c.Server.Port = 70000 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), domain.ErrConfiguration)
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Retrieval.TopK = 7
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
