package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"docqa/internal/domain"
	"docqa/internal/logger"
	"docqa/internal/metrics"
)

// Bounds for a caller-supplied top-k.
const (
	MinTopK = 1
	MaxTopK = 20
)

// Defaults applied to fields a store did not report.
const (
	UnknownDocument = "unknown"
	UnknownChunkID  = "unknown"
	MissingDistance = 1.0
)

// Retriever embeds a query, searches the index and normalizes the hits.
type Retriever struct {
	embedder    domain.Embedder
	store       domain.VectorStore
	defaultTopK int
	metrics     *metrics.Recorder
}

type Option func(*Retriever)

// WithMetrics records latency and result counts on m.
func WithMetrics(m *metrics.Recorder) Option {
	return func(r *Retriever) { r.metrics = m }
}

// New builds a Retriever. defaultTopK is used when a caller passes 0.
func New(embedder domain.Embedder, store domain.VectorStore, defaultTopK int, opts ...Option) (*Retriever, error) {
	if embedder == nil || store == nil {
		return nil, fmt.Errorf("%w: retriever needs an embedder and a vector store", domain.ErrConfiguration)
	}
	if defaultTopK < MinTopK || defaultTopK > MaxTopK {
		return nil, fmt.Errorf("%w: default top_k %d outside [%d, %d]", domain.ErrConfiguration, defaultTopK, MinTopK, MaxTopK)
	}
	r := &Retriever{embedder: embedder, store: store, defaultTopK: defaultTopK}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Retrieve returns up to topK chunks in the order the index reports them,
// best first. An empty filterDocument searches every document. No match is
// not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, filterDocument string) ([]domain.RetrievedChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", domain.ErrInvalidInput)
	}
	if topK == 0 {
		topK = r.defaultTopK
	}
	if topK < MinTopK || topK > MaxTopK {
		return nil, fmt.Errorf("%w: top_k must be between %d and %d, got %d", domain.ErrInvalidInput, MinTopK, MaxTopK, topK)
	}

	started := time.Now()
	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vectors))
	}
	matches, err := r.store.Search(ctx, vectors[0], topK, filterDocument)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	chunks := make([]domain.RetrievedChunk, 0, len(matches))
	for _, m := range matches {
		chunks = append(chunks, Normalize(m))
	}
	r.metrics.Retrieval(time.Since(started), len(chunks))
	logger.FromContext(ctx).Debug("retrieved chunks", "count", len(chunks), "top_k", topK, "filter", filterDocument)
	return chunks, nil
}

// Normalize fills every field a store left out with its default.
func Normalize(m domain.IndexMatch) domain.RetrievedChunk {
	out := domain.RetrievedChunk{
		TextChunk: domain.TextChunk{
			DocumentName: UnknownDocument,
			ChunkID:      UnknownChunkID,
		},
		Score: MissingDistance,
	}
	if m.ChunkID != nil {
		out.ChunkID = *m.ChunkID
	}
	if m.Text != nil {
		out.Text = *m.Text
	}
	if m.DocumentName != nil {
		out.DocumentName = *m.DocumentName
	}
	if m.PageNumber != nil {
		out.PageNumber = *m.PageNumber
	}
	if m.IsSection != nil {
		out.IsSection = *m.IsSection
	}
	if m.Distance != nil {
		out.Score = *m.Distance
	}
	return out
}
