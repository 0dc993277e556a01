package chunker

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"docqa/internal/domain"
	"docqa/internal/logger"
)

// boundaryWindow is how far (in runes) around a candidate cut the chunker
// looks for a sentence or word boundary.
const boundaryWindow = 50

// Chunker splits pages into overlapping, boundary-aware chunks.
// Sizes are measured in runes.
type Chunker struct {
	size    int
	overlap int
}

// New validates size and overlap. overlap must be in [0, size).
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be greater than zero, got %d", domain.ErrConfiguration, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: chunk overlap cannot be negative, got %d", domain.ErrConfiguration, overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d", domain.ErrConfiguration, overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// ChunkDocument chunks pages with a one-off chunker.
func ChunkDocument(pages []domain.DocumentPage, size, overlap int) ([]domain.TextChunk, error) {
	c, err := New(size, overlap)
	if err != nil {
		return nil, err
	}
	return c.Chunk(pages), nil
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits every page independently. Whitespace-only pages yield nothing.
func (c *Chunker) Chunk(pages []domain.DocumentPage) []domain.TextChunk {
	var chunks []domain.TextChunk
	for _, page := range pages {
		chunks = append(chunks, c.chunkPage(page)...)
	}
	logger.FromContext(context.Background()).Debug("chunked pages", "pages", len(pages), "chunks", len(chunks))
	return chunks
}

func (c *Chunker) chunkPage(page domain.DocumentPage) []domain.TextChunk {
	text := []rune(strings.TrimSpace(page.Text))
	if len(text) == 0 {
		return nil
	}
	if len(text) <= c.size {
		return []domain.TextChunk{newChunk(page, 0, string(text))}
	}

	var chunks []domain.TextChunk
	index := 0
	start := 0
	for start < len(text) {
		// end stays unclamped on the last window so the next start lands past the tail.
		end := start + c.size
		if end < len(text) {
			if boundary := findBoundary(text, end); boundary > start {
				end = boundary
			}
		}

		if piece := strings.TrimSpace(string(text[start:min(end, len(text))])); piece != "" {
			chunks = append(chunks, newChunk(page, index, piece))
			index++
		}

		next := end - c.overlap
		if next <= start {
			next = end
		}
		start = next
		if start >= len(text)-1 {
			break
		}
	}
	return chunks
}

// findBoundary returns the position just past the rightmost sentence end
// within boundaryWindow of pos. Without one, it returns the next whitespace
// at or after pos, or pos itself if none lies inside the window.
func findBoundary(text []rune, pos int) int {
	lo := max(0, pos-boundaryWindow)
	hi := min(len(text), pos+boundaryWindow)
	for i := hi - 2; i >= lo; i-- {
		if isSentenceEnd(text[i]) && (text[i+1] == ' ' || text[i+1] == '\n') {
			return i + 2
		}
	}

	limit := min(len(text), pos+boundaryWindow)
	for i := pos; i < limit; i++ {
		if unicode.IsSpace(text[i]) {
			return i
		}
	}
	if limit == len(text) {
		return len(text)
	}
	return pos
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func newChunk(page domain.DocumentPage, index int, text string) domain.TextChunk {
	return domain.TextChunk{
		DocumentName: page.DocumentName,
		PageNumber:   page.PageNumber,
		ChunkID:      ChunkID(page.DocumentName, page.PageNumber, index),
		Text:         text,
		IsSection:    page.IsSection,
	}
}
