package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"docqa/internal/chunker"
	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

// Storage is a simple in-memory vector store using brute-force cosine similarity.
// Upserting an existing chunk id replaces it.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	vectors   [][]float64
	chunks    []domain.TextChunk
	byID      map[string]int
}

func NewStorage() *Storage { return &Storage{byID: make(map[string]int)} }

func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	s.vectors = nil
	s.chunks = nil
	s.byID = make(map[string]int)
	return nil
}

func (s *Storage) Upsert(_ context.Context, chunks []domain.TextChunk, vectors [][]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := vectorstore.CheckUpsert(chunks, vectors, s.dimension); err != nil {
		return err
	}
	for i, c := range chunks {
		if j, ok := s.byID[c.ChunkID]; ok {
			s.chunks[j] = c
			s.vectors[j] = vectors[i]
			continue
		}
		s.byID[c.ChunkID] = len(s.chunks)
		s.chunks = append(s.chunks, c)
		s.vectors = append(s.vectors, vectors[i])
	}
	return nil
}

func (s *Storage) Search(_ context.Context, vector []float64, topK int, filterDocument string) ([]vectorstore.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 {
		topK = 5
	}
	idxs := make([]int, 0, len(s.vectors))
	scores := make([]float64, len(s.vectors))
	for i := range s.vectors {
		if filterDocument != "" && s.chunks[i].DocumentName != filterDocument {
			continue
		}
		scores[i] = vectorstore.Cosine(s.vectors[i], vector)
		idxs = append(idxs, i)
	}
	sort.SliceStable(idxs, func(a, b int) bool { return scores[idxs[a]] > scores[idxs[b]] })
	if topK > len(idxs) {
		topK = len(idxs)
	}
	results := make([]vectorstore.Match, 0, topK)
	for _, j := range idxs[:topK] {
		c := s.chunks[j]
		distance := vectorstore.Distance(scores[j])
		results = append(results, vectorstore.Match{
			ChunkID:      &c.ChunkID,
			Text:         &c.Text,
			DocumentName: &c.DocumentName,
			PageNumber:   &c.PageNumber,
			IsSection:    &c.IsSection,
			Distance:     &distance,
		})
	}
	return results, nil
}

// DeleteDocument removes every chunk belonging to documentName, matched by
// its stored name or by its id.
func (s *Storage) DeleteDocument(_ context.Context, documentName string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keptChunks := s.chunks[:0]
	keptVectors := s.vectors[:0]
	removed := 0
	for i, c := range s.chunks {
		if c.DocumentName == documentName || chunker.OwnedBy(c.ChunkID, documentName) {
			removed++
			continue
		}
		keptChunks = append(keptChunks, c)
		keptVectors = append(keptVectors, s.vectors[i])
	}
	s.chunks = keptChunks
	s.vectors = keptVectors
	s.byID = make(map[string]int, len(s.chunks))
	for i, c := range s.chunks {
		s.byID[c.ChunkID] = i
	}
	return removed, nil
}

func (s *Storage) Documents(_ context.Context) ([]domain.DocumentStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, c := range s.chunks {
		counts[c.DocumentName]++
	}
	stats := make([]domain.DocumentStat, 0, len(counts))
	for name, n := range counts {
		stats = append(stats, domain.DocumentStat{DocumentName: name, ChunkCount: n})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].DocumentName < stats[j].DocumentName })
	return stats, nil
}

func (s *Storage) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

func (s *Storage) Close() error { return nil }
