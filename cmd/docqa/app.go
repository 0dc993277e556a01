package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"docqa/internal/answer"
	"docqa/internal/chunker"
	"docqa/internal/config"
	"docqa/internal/domain"
	"docqa/internal/embedding"
	"docqa/internal/embedding/hashing"
	"docqa/internal/embedding/openai"
	"docqa/internal/generation"
	"docqa/internal/loader"
	"docqa/internal/logger"
	"docqa/internal/metrics"
	"docqa/internal/retrieval"
	"docqa/internal/service"
	"docqa/internal/summarizer"
	"docqa/internal/vectorstore"
	"docqa/internal/vectorstore/memory"
	"docqa/internal/vectorstore/qdrant"
	"docqa/internal/vectorstore/redis"
)

// app holds the assembled components for one command invocation.
type app struct {
	cfg      *config.AppConfig
	log      logger.Logger
	registry *prometheus.Registry
	svc      *service.Service
}

func newEmbedder(cfg config.EmbedderConfig) (embedding.Embedder, error) {
	switch cfg.Type {
	case "hashing", "":
		return hashing.NewEmbedder(cfg.Dimension), nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, fmt.Errorf("%w: openai embedder config missing", domain.ErrConfiguration)
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:    cfg.OpenAI.BaseURL,
			APIKeyEnv:  cfg.OpenAI.APIKeyEnv,
			Model:      cfg.OpenAI.Model,
			Dimension:  cfg.OpenAI.Dimension,
			BatchSize:  cfg.OpenAI.BatchSize,
			MaxRetries: cfg.OpenAI.MaxRetries,
			Timeout:    config.Timeout(cfg.OpenAI.TimeoutSecs),
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("%w: unknown embedder %q", domain.ErrConfiguration, cfg.Type)
	}
}

func newStore(ctx context.Context, cfg config.VectorStoreConfig) (vectorstore.Storage, error) {
	switch cfg.Type {
	case "memory", "":
		return memory.NewStorage(), nil
	case "qdrant":
		if cfg.Qdrant == nil {
			return nil, fmt.Errorf("%w: qdrant config missing", domain.ErrConfiguration)
		}
		apiKey := ""
		if cfg.Qdrant.APIKeyEnv != "" {
			apiKey = strings.TrimSpace(os.Getenv(cfg.Qdrant.APIKeyEnv))
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        cfg.Qdrant.URL,
			APIKey:     apiKey,
			Collection: cfg.Qdrant.Collection,
			Timeout:    config.Timeout(cfg.Qdrant.TimeoutSecs),
		}), nil
	case "redis":
		if cfg.Redis == nil {
			return nil, fmt.Errorf("%w: redis config missing", domain.ErrConfiguration)
		}
		store, err := redis.NewStorage(ctx, redis.Config{URL: cfg.Redis.URL, Key: cfg.Redis.Key})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: unknown vector store %q", domain.ErrConfiguration, cfg.Type)
	}
}

// newGenerator returns nil when credentials are missing so the index can
// still be managed; answering then reports a configuration error.
func newGenerator(cfg config.GeneratorConfig, log logger.Logger) domain.Generator {
	client, err := generation.NewClient(generation.Config{
		BaseURL:     cfg.BaseURL,
		APIKeyEnv:   cfg.APIKeyEnv,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     config.Timeout(cfg.TimeoutSecs),
	})
	if err != nil {
		log.Warn("generation service unavailable, questions will be rejected", "err", err)
		return nil
	}
	return client
}

func newApp(ctx context.Context, cfg *config.AppConfig, log logger.Logger) (*app, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.New(registry)

	ch, err := chunker.New(cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	emb, err := newEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	queryEmb := emb
	if cfg.Retrieval.QueryCacheSize > 0 {
		cached, err := embedding.NewCached(emb, cfg.Retrieval.QueryCacheSize)
		if err != nil {
			return nil, err
		}
		queryEmb = cached
	}
	store, err := newStore(ctx, cfg.VectorStore)
	if err != nil {
		return nil, err
	}
	ret, err := retrieval.New(queryEmb, store, cfg.Retrieval.TopK, retrieval.WithMetrics(rec))
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}
	gen := newGenerator(cfg.Generator, log)

	var sum domain.Summarizer
	if cfg.Summarizer.Type == "frequency" {
		sum = summarizer.NewFrequencySummarizer()
	}

	svc, err := service.New(service.Deps{
		Loader:     loader.New(loader.WithMaxSectionChars(cfg.Loader.MaxSectionChars)),
		Chunker:    ch,
		Embedder:   emb,
		Store:      store,
		Retriever:  ret,
		Validator:  answer.New(gen, answer.WithMetrics(rec)),
		Summarizer: sum,
		Metrics:    rec,
	}, service.Options{
		SummaryMaxSentences: cfg.Summarizer.MaxSentences,
		EmbedBatchSize:      cfg.Ingest.EmbedBatchSize,
		Concurrency:         cfg.Ingest.Concurrency,
	})
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}
	if err := svc.Init(ctx); err != nil {
		return nil, errors.Join(err, store.Close())
	}
	log.Debug("components ready",
		"embedder", emb.Name(),
		"dimension", emb.Dimension(),
		"vector_store", cfg.VectorStore.Type,
		"generator", gen != nil,
	)
	return &app{cfg: cfg, log: log, registry: registry, svc: svc}, nil
}

func (a *app) Close() error {
	return a.svc.Close()
}
