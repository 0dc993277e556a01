package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/config"
	"docqa/internal/domain"
	"docqa/internal/logger"
	"docqa/internal/service"
)

func TestNewApp_DefaultStack(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	ctx := context.Background()

	a, err := newApp(ctx, config.Default(), logger.Discard())
	require.NoError(t, err)
	defer a.Close()

	res, err := a.svc.Ingest(ctx, "facts.txt", []byte("The boiling point of water is 100 degrees Celsius at sea level."))
	require.NoError(t, err)
	assert.Equal(t, 1, res.ChunksCreated)

	_, err = a.svc.Query(ctx, service.QueryRequest{Question: "When does water boil?"})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	families, err := a.registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNewEmbedderAndStore_RejectUnknownTypes(t *testing.T) {
	_, err := newEmbedder(config.EmbedderConfig{Type: "word2vec"})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = newEmbedder(config.EmbedderConfig{Type: "openai"})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = newStore(context.Background(), config.VectorStoreConfig{Type: "chroma"})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = newStore(context.Background(), config.VectorStoreConfig{Type: "redis", Redis: &config.RedisConfig{URL: "not a url"}})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, config.Save(path, config.Default()))
	return path
}

func TestIngestCommand(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(doc, []byte("Grounded answers cite retrieved chunks. Citations are validated."), 0o600))

	var out bytes.Buffer
	root := RootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"--config", writeConfig(t), "--log-level", "error", "ingest", filepath.Join(dir, "*.txt")})
	require.NoError(t, root.Execute())

	assert.Contains(t, out.String(), "notes.txt: 1 pages, 1 chunks")
}

func TestQueryCommand_WithoutCredentials(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "your_groq_api_key_here")
	dir := t.TempDir()
	doc := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(doc, []byte("Grounded answers cite retrieved chunks."), 0o600))

	root := RootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--config", writeConfig(t), "--log-level", "error", "query", "--file", doc, "What", "do", "answers", "cite?"})
	err := root.Execute()
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestDocsListCommand(t *testing.T) {
	var out bytes.Buffer
	root := RootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"--config", writeConfig(t), "--log-level", "error", "docs", "list"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "total chunks: 0")
}
