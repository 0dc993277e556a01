package domain

import "context"

// DocumentPage is one page of a PDF or one logical section of a DOCX/TXT document.
// IsSection is true when PageNumber is a synthetic section index rather than a real page.
type DocumentPage struct {
	DocumentName string `json:"document_name"`
	PageNumber   int    `json:"page_number"`
	Text         string `json:"text"`
	IsSection    bool   `json:"is_section"`
}

// TextChunk is a contiguous slice of a page, the unit of storage and retrieval.
type TextChunk struct {
	DocumentName string `json:"document_name"`
	PageNumber   int    `json:"page_number"`
	ChunkID      string `json:"chunk_id"`
	Text         string `json:"text"`
	IsSection    bool   `json:"is_section"`
}

// Metadata returns the fields persisted next to the chunk text in a vector store.
func (c TextChunk) Metadata() map[string]any {
	return map[string]any{
		"document_name": c.DocumentName,
		"page_number":   c.PageNumber,
		"chunk_id":      c.ChunkID,
		"is_section":    c.IsSection,
	}
}

// RetrievedChunk is a chunk returned for a query. Score is a distance: lower is more similar.
type RetrievedChunk struct {
	TextChunk
	Score float64 `json:"score"`
}

// SourceReference is a citation that points at a chunk retrieved for the current query.
type SourceReference struct {
	DocumentName string `json:"document_name"`
	Page         int    `json:"page"`
	ChunkID      string `json:"chunk_id"`
	IsSection    bool   `json:"is_section"`
}

// AnswerResult is the validated, source-attributed answer to a question.
type AnswerResult struct {
	Answer  string            `json:"answer"`
	Sources []SourceReference `json:"sources"`
}

// IndexMatch is a raw similarity search hit as reported by a vector store.
// Any field may be absent; defaults are applied by the retrieval layer.
type IndexMatch struct {
	ChunkID      *string
	Text         *string
	DocumentName *string
	PageNumber   *int
	IsSection    *bool
	Distance     *float64
}

// DocumentStat summarizes one indexed document.
type DocumentStat struct {
	DocumentName string `json:"document_name"`
	ChunkCount   int    `json:"chunk_count"`
}

// DocumentLoader extracts pages from raw file content.
type DocumentLoader interface {
	Load(ctx context.Context, name string, content []byte) ([]DocumentPage, error)
}

// Chunker splits document pages into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(pages []DocumentPage) []TextChunk
}

// Embedder converts free text into numeric vectors.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// VectorStore persists chunk vectors and supports similarity search.
// An empty filterDocument searches the whole index.
type VectorStore interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, chunks []TextChunk, vectors [][]float64) error
	Search(ctx context.Context, vector []float64, topK int, filterDocument string) ([]IndexMatch, error)
	DeleteDocument(ctx context.Context, documentName string) (int, error)
	Documents(ctx context.Context) ([]DocumentStat, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Generator is an opaque text-completion service.
type Generator interface {
	Complete(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
