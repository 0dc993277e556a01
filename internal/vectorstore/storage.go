package vectorstore

import (
	"fmt"
	"math"

	"docqa/internal/domain"
)

// Storage persists chunk vectors and supports similarity search.
type Storage = domain.VectorStore

// Match is a raw search hit; every field may be missing.
type Match = domain.IndexMatch

// Payload keys persisted next to each vector.
const (
	KeyChunkID      = "chunk_id"
	KeyText         = "text"
	KeyDocumentName = "document_name"
	KeyPageNumber   = "page_number"
	KeyIsSection    = "is_section"
)

// Payload returns the attributes stored for a chunk.
func Payload(c domain.TextChunk) map[string]any {
	p := c.Metadata()
	p[KeyText] = c.Text
	return p
}

// MatchFromPayload decodes a stored payload. Keys that are absent or of the
// wrong type stay nil.
func MatchFromPayload(payload map[string]any, distance *float64) Match {
	m := Match{Distance: distance}
	if v, ok := payload[KeyChunkID].(string); ok {
		m.ChunkID = &v
	}
	if v, ok := payload[KeyText].(string); ok {
		m.Text = &v
	}
	if v, ok := payload[KeyDocumentName].(string); ok {
		m.DocumentName = &v
	}
	switch v := payload[KeyPageNumber].(type) {
	case float64:
		n := int(v)
		m.PageNumber = &n
	case int:
		m.PageNumber = &v
	case int64:
		n := int(v)
		m.PageNumber = &n
	}
	if v, ok := payload[KeyIsSection].(bool); ok {
		m.IsSection = &v
	}
	return m
}

// Distance converts a cosine similarity into a distance: lower is closer.
func Distance(similarity float64) float64 {
	return 1 - similarity
}

// Cosine returns the cosine similarity of a and b, or 0 if either is a zero vector.
func Cosine(a, b []float64) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// CheckUpsert validates that chunks and vectors line up with the index dimension.
func CheckUpsert(chunks []domain.TextChunk, vectors [][]float64, dimension int) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d != %d", len(chunks), len(vectors))
	}
	for i, v := range vectors {
		if len(v) != dimension {
			return fmt.Errorf("vector dimension mismatch for %s: got %d, want %d", chunks[i].ChunkID, len(v), dimension)
		}
	}
	return nil
}
