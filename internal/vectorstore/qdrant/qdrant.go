package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"docqa/internal/domain"
	"docqa/internal/logger"
	"docqa/internal/vectorstore"
)

// pointNamespace seeds the UUIDv5 point ids; Qdrant only accepts integers or
// UUIDs, so chunk ids are hashed into one.
var pointNamespace = uuid.MustParse("6f1c8a52-4d0e-5b7a-9c3e-2a4f6d8b0e11")

const scrollPageSize = 256

// Storage is a minimal REST client to Qdrant.
// It assumes cosine distance and creates the collection if missing.
type Storage struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// statusError is a non-2xx reply from Qdrant.
type statusError struct {
	Code   int
	Method string
	Path   string
	Detail string
}

func (e *statusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("qdrant %s %s failed (%d): %s", e.Method, e.Path, e.Code, e.Detail)
	}
	return fmt.Sprintf("qdrant %s %s failed (%d)", e.Method, e.Path, e.Code)
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "documents"
	}
	return &Storage{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// PointID maps a chunk id to its deterministic Qdrant point id.
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.dimension = dimension
	err := s.doRequest(ctx, http.MethodGet, s.collectionPath(""), nil, nil)
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return domain.Upstream("qdrant", err)
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	if err := s.doRequest(ctx, http.MethodPut, s.collectionPath(""), body, nil); err != nil {
		return domain.Upstream("qdrant", err)
	}
	// payload index speeds up the document filter; failure only costs speed
	index := map[string]any{"field_name": vectorstore.KeyDocumentName, "field_schema": "keyword"}
	if err := s.doRequest(ctx, http.MethodPut, s.collectionPath("/index?wait=true"), index, nil); err != nil {
		logger.FromContext(ctx).Debug("qdrant payload index not created", "collection", s.collection, "field", vectorstore.KeyDocumentName, "err", err)
	}
	return nil
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.TextChunk, vectors [][]float64) error {
	if err := vectorstore.CheckUpsert(chunks, vectors, s.dimension); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	points := make([]map[string]any, len(chunks))
	for i := range chunks {
		points[i] = map[string]any{
			"id":      PointID(chunks[i].ChunkID),
			"vector":  vectors[i],
			"payload": vectorstore.Payload(chunks[i]),
		}
	}
	body := map[string]any{"points": points}
	if err := s.doRequest(ctx, http.MethodPut, s.collectionPath("/points?wait=true"), body, nil); err != nil {
		return domain.Upstream("qdrant", err)
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float64, topK int, filterDocument string) ([]vectorstore.Match, error) {
	if topK <= 0 {
		topK = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if filter := documentFilter(filterDocument); filter != nil {
		req["filter"] = filter
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.doRequest(ctx, http.MethodPost, s.collectionPath("/points/search"), req, &resp); err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, domain.Upstream("qdrant", err)
	}
	results := make([]vectorstore.Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		distance := vectorstore.Distance(r.Score)
		results = append(results, vectorstore.MatchFromPayload(r.Payload, &distance))
	}
	return results, nil
}

func (s *Storage) DeleteDocument(ctx context.Context, documentName string) (int, error) {
	n, err := s.count(ctx, documentFilter(documentName))
	if err != nil || n == 0 {
		return 0, err
	}
	body := map[string]any{"filter": documentFilter(documentName)}
	if err := s.doRequest(ctx, http.MethodPost, s.collectionPath("/points/delete?wait=true"), body, nil); err != nil {
		return 0, domain.Upstream("qdrant", err)
	}
	return n, nil
}

// Documents scrolls through every point's document_name payload.
func (s *Storage) Documents(ctx context.Context) ([]domain.DocumentStat, error) {
	counts := make(map[string]int)
	var offset any
	for {
		req := map[string]any{
			"limit":        scrollPageSize,
			"with_payload": []string{vectorstore.KeyDocumentName},
			"with_vector":  false,
		}
		if offset != nil {
			req["offset"] = offset
		}
		var resp struct {
			Result struct {
				Points []struct {
					Payload map[string]any `json:"payload"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := s.doRequest(ctx, http.MethodPost, s.collectionPath("/points/scroll"), req, &resp); err != nil {
			if isNotFound(err) {
				return []domain.DocumentStat{}, nil
			}
			return nil, domain.Upstream("qdrant", err)
		}
		for _, p := range resp.Result.Points {
			name, _ := p.Payload[vectorstore.KeyDocumentName].(string)
			counts[name]++
		}
		if resp.Result.NextPageOffset == nil {
			break
		}
		offset = resp.Result.NextPageOffset
	}
	stats := make([]domain.DocumentStat, 0, len(counts))
	for name, n := range counts {
		stats = append(stats, domain.DocumentStat{DocumentName: name, ChunkCount: n})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].DocumentName < stats[j].DocumentName })
	return stats, nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	return s.count(ctx, nil)
}

func (s *Storage) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Storage) count(ctx context.Context, filter map[string]any) (int, error) {
	req := map[string]any{"exact": true}
	if filter != nil {
		req["filter"] = filter
	}
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := s.doRequest(ctx, http.MethodPost, s.collectionPath("/points/count"), req, &resp); err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, domain.Upstream("qdrant", err)
	}
	return resp.Result.Count, nil
}

func (s *Storage) collectionPath(suffix string) string {
	return fmt.Sprintf("/collections/%s%s", s.collection, suffix)
}

func documentFilter(documentName string) map[string]any {
	if documentName == "" {
		return nil
	}
	return map[string]any{
		"must": []any{
			map[string]any{
				"key":   vectorstore.KeyDocumentName,
				"match": map[string]any{"value": documentName},
			},
		},
	}
}

func isNotFound(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

func (s *Storage) doRequest(ctx context.Context, method, path string, body any, out any) error {
	var buf io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("qdrant: marshal request: %w", err)
		}
		buf = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.url+path, buf)
	if err != nil {
		return fmt.Errorf("qdrant: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant: request failed: %w", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("qdrant: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Status any `json:"status"`
		}
		detail := ""
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Status != nil {
			detail = fmt.Sprint(apiErr.Status)
		}
		return &statusError{Code: resp.StatusCode, Method: method, Path: path, Detail: detail}
	}
	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("qdrant: decode response: %w", err)
		}
	}
	return nil
}
