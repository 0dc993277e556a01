package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"docqa/internal/answer"
	"docqa/internal/domain"
	"docqa/internal/loader"
	"docqa/internal/logger"
	"docqa/internal/metrics"
	"docqa/internal/retrieval"
)

// MaxQuestionRunes bounds the length of a question.
const MaxQuestionRunes = 2000

const (
	defaultEmbedBatchSize = 64
	defaultConcurrency    = 4
)

// Deps are the collaborators a Service orchestrates.
type Deps struct {
	Loader     domain.DocumentLoader
	Chunker    domain.Chunker
	Embedder   domain.Embedder
	Store      domain.VectorStore
	Retriever  *retrieval.Retriever
	Validator  *answer.Validator
	Summarizer domain.Summarizer
	Metrics    *metrics.Recorder
}

// Options tune ingestion.
type Options struct {
	SummaryMaxSentences int
	EmbedBatchSize      int
	Concurrency         int
}

// IngestResult describes one indexed document.
type IngestResult struct {
	DocumentName   string `json:"document_name"`
	PagesProcessed int    `json:"pages_processed"`
	ChunksCreated  int    `json:"chunks_created"`
	Summary        string `json:"summary"`
}

// QueryRequest is a question with optional retrieval settings.
type QueryRequest struct {
	Question       string
	TopK           int
	FilterDocument string
}

// QueryResult is a validated answer together with the chunks it was grounded on.
type QueryResult struct {
	domain.AnswerResult
	RetrievedChunks []domain.RetrievedChunk `json:"retrieved_chunks"`
}

// Health reports the state of the index.
type Health struct {
	Status          string `json:"status"`
	DocumentsLoaded int    `json:"documents_loaded"`
	TotalChunks     int    `json:"total_chunks"`
}

// Service ties loading, chunking, indexing and grounded answering together.
type Service struct {
	deps Deps
	opts Options

	// mu serializes writes so a re-ingest cannot interleave with a delete
	// of the same document.
	mu          sync.Mutex
	initialized bool
}

// New validates deps and returns a Service.
func New(deps Deps, opts Options) (*Service, error) {
	if deps.Loader == nil || deps.Chunker == nil || deps.Embedder == nil || deps.Store == nil {
		return nil, fmt.Errorf("%w: service needs a loader, chunker, embedder and vector store", domain.ErrConfiguration)
	}
	if deps.Retriever == nil {
		r, err := retrieval.New(deps.Embedder, deps.Store, 5, retrieval.WithMetrics(deps.Metrics))
		if err != nil {
			return nil, err
		}
		deps.Retriever = r
	}
	if deps.Validator == nil {
		deps.Validator = answer.New(nil)
	}
	if opts.EmbedBatchSize <= 0 {
		opts.EmbedBatchSize = defaultEmbedBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	return &Service{deps: deps, opts: opts}, nil
}

// Init prepares the vector store for the embedder's dimension. It is called
// lazily by Ingest and only runs once.
func (s *Service) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initLocked(ctx)
}

func (s *Service) initLocked(ctx context.Context) error {
	if s.initialized {
		return nil
	}
	if err := s.deps.Store.Init(ctx, s.deps.Embedder.Dimension()); err != nil {
		return fmt.Errorf("init vector store: %w", err)
	}
	s.initialized = true
	return nil
}

// Ingest loads, chunks, embeds and indexes one document. Chunks from an
// earlier upload under the same name are replaced.
func (s *Service) Ingest(ctx context.Context, name string, content []byte) (IngestResult, error) {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return IngestResult{}, fmt.Errorf("%w: document name is empty", domain.ErrInvalidInput)
	}
	if len(content) == 0 {
		return IngestResult{}, fmt.Errorf("%w: %s is empty", domain.ErrInvalidInput, name)
	}
	log := logger.FromContext(ctx).With("document", name)

	pages, err := s.deps.Loader.Load(ctx, name, content)
	if err != nil {
		return IngestResult{}, err
	}
	if len(pages) == 0 {
		return IngestResult{}, fmt.Errorf("%w: no text could be extracted from %s", domain.ErrInvalidInput, name)
	}
	chunks := s.deps.Chunker.Chunk(pages)
	if len(chunks) == 0 {
		return IngestResult{}, fmt.Errorf("%w: no chunks produced for %s", domain.ErrInvalidInput, name)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedAll(ctx, texts)
	if err != nil {
		return IngestResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.initLocked(ctx); err != nil {
		return IngestResult{}, err
	}
	removed, err := s.deps.Store.DeleteDocument(ctx, name)
	if err != nil {
		return IngestResult{}, fmt.Errorf("replace %s: %w", name, err)
	}
	if removed > 0 {
		log.Info("replacing previously indexed document", "removed_chunks", removed)
	}
	if err := s.deps.Store.Upsert(ctx, chunks, vectors); err != nil {
		return IngestResult{}, fmt.Errorf("index %s: %w", name, err)
	}
	s.deps.Metrics.Indexed(len(chunks))
	log.Info("document indexed", "pages", len(pages), "chunks", len(chunks))

	return IngestResult{
		DocumentName:   name,
		PagesProcessed: len(pages),
		ChunksCreated:  len(chunks),
		Summary:        s.summarize(ctx, pages),
	}, nil
}

// embedAll embeds texts in batches, running up to Concurrency batches at once.
func (s *Service) embedAll(ctx context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for start := 0; start < len(texts); start += s.opts.EmbedBatchSize {
		end := min(start+s.opts.EmbedBatchSize, len(texts))
		g.Go(func() error {
			out, err := s.deps.Embedder.Embed(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embed chunks %d-%d: %w", start, end, err)
			}
			if len(out) != end-start {
				return fmt.Errorf("embed chunks %d-%d: got %d vectors", start, end, len(out))
			}
			copy(vectors[start:end], out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (s *Service) summarize(ctx context.Context, pages []domain.DocumentPage) string {
	if s.deps.Summarizer == nil {
		return ""
	}
	texts := make([]string, len(pages))
	for i, p := range pages {
		texts[i] = p.Text
	}
	summary, err := s.deps.Summarizer.Summarize(strings.Join(texts, "\n"), s.opts.SummaryMaxSentences)
	if err != nil {
		logger.FromContext(ctx).Warn("summary failed", "err", err)
		return ""
	}
	return summary
}

// IngestFiles expands glob patterns and ingests every supported file.
// Unsupported files are skipped.
func (s *Service) IngestFiles(ctx context.Context, patterns []string) ([]IngestResult, error) {
	log := logger.FromContext(ctx)
	var paths []string
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("%w: bad pattern %q", domain.ErrInvalidInput, p)
		}
		if matches == nil {
			matches = []string{p}
		}
		for _, m := range matches {
			if !loader.Supported(m) {
				log.Warn("skipping unsupported file", "path", m)
				continue
			}
			paths = append(paths, m)
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no supported documents found (%s)", domain.ErrInvalidInput, strings.Join(loader.SupportedExtensions, ", "))
	}

	results := make([]IngestResult, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return results, err
		}
		res, err := s.Ingest(ctx, path, data)
		if err != nil {
			return results, fmt.Errorf("%s: %w", path, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// Query retrieves chunks for a question and returns the validated answer.
func (s *Service) Query(ctx context.Context, req QueryRequest) (QueryResult, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return QueryResult{}, fmt.Errorf("%w: question is empty", domain.ErrInvalidInput)
	}
	if utf8.RuneCountInString(question) > MaxQuestionRunes {
		return QueryResult{}, fmt.Errorf("%w: question exceeds %d characters", domain.ErrInvalidInput, MaxQuestionRunes)
	}

	chunks, err := s.deps.Retriever.Retrieve(ctx, question, req.TopK, strings.TrimSpace(req.FilterDocument))
	if err != nil {
		return QueryResult{}, err
	}
	result, err := s.deps.Validator.Answer(ctx, question, chunks)
	if err != nil {
		return QueryResult{}, err
	}
	return QueryResult{AnswerResult: result, RetrievedChunks: chunks}, nil
}

// Documents lists indexed documents and the total chunk count.
func (s *Service) Documents(ctx context.Context) ([]domain.DocumentStat, int, error) {
	docs, err := s.deps.Store.Documents(ctx)
	if err != nil {
		return nil, 0, err
	}
	total := 0
	for _, d := range docs {
		total += d.ChunkCount
	}
	if docs == nil {
		docs = []domain.DocumentStat{}
	}
	return docs, total, nil
}

// DeleteDocument removes every chunk of a document.
func (s *Service) DeleteDocument(ctx context.Context, name string) (int, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("%w: document name is empty", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.deps.Store.DeleteDocument(ctx, name)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: document %q", domain.ErrNotFound, name)
	}
	logger.FromContext(ctx).Info("document deleted", "document", name, "chunks", n)
	return n, nil
}

// Health reports "healthy" with index sizes, or "unhealthy" with zeros when
// the store cannot be read.
func (s *Service) Health(ctx context.Context) Health {
	docs, total, err := s.Documents(ctx)
	if err != nil {
		logger.FromContext(ctx).Warn("health check failed", "err", err)
		return Health{Status: "unhealthy"}
	}
	return Health{Status: "healthy", DocumentsLoaded: len(docs), TotalChunks: total}
}

// Close releases the vector store.
func (s *Service) Close() error {
	return s.deps.Store.Close()
}
