package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

const defaultKey = "docqa:chunks"

// Storage keeps chunk vectors in a Redis vector set (VADD/VSIM) with the
// chunk payload as JSON attributes. Per-document membership sets back
// listing and bulk deletion, which vector sets cannot do on their own.
type Storage struct {
	client    *redis.Client
	key       string
	dimension int
}

type Config struct {
	URL string
	Key string
}

// NewStorage connects to Redis and verifies the connection.
func NewStorage(ctx context.Context, cfg Config) (*Storage, error) {
	opt, err := redis.ParseURL(strings.TrimSpace(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid redis url: %v", domain.ErrConfiguration, err)
	}
	opt.Protocol = 3
	opt.UnstableResp3 = true
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, domain.Upstream("redis", fmt.Errorf("ping failed: %w", err))
	}
	return NewStorageWithClient(client, cfg.Key), nil
}

// NewStorageWithClient wraps an existing client.
func NewStorageWithClient(client *redis.Client, key string) *Storage {
	if strings.TrimSpace(key) == "" {
		key = defaultKey
	}
	return &Storage{client: client, key: key}
}

func (s *Storage) documentsKey() string { return s.key + ":documents" }

func (s *Storage) documentKey(name string) string { return s.key + ":doc:" + name }

// Init records the dimension; the vector set itself is created by the first VADD.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.dimension = dimension
	if err := s.client.Ping(ctx).Err(); err != nil {
		return domain.Upstream("redis", err)
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
	pipe := s.client.Pipeline()
	for i, c := range chunks {
		pipe.VAdd(ctx, s.key, c.ChunkID, &redis.VectorValues{Val: vectors[i]})
		pipe.VSetAttr(ctx, s.key, c.ChunkID, vectorstore.Payload(c))
		pipe.SAdd(ctx, s.documentKey(c.DocumentName), c.ChunkID)
		pipe.SAdd(ctx, s.documentsKey(), c.DocumentName)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.Upstream("redis", fmt.Errorf("upsert pipeline: %w", err))
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float64, topK int, filterDocument string) ([]vectorstore.Match, error) {
	if topK <= 0 {
		topK = 5
	}
	args := &redis.VSimArgs{Count: int64(topK)}
	if filter := documentFilter(filterDocument); filter != "" {
		args.Filter = filter
	}
	results, err := s.client.VSimWithArgsWithScores(ctx, s.key, &redis.VectorValues{Val: vector}, args).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, domain.Upstream("redis", fmt.Errorf("similarity search: %w", err))
	}
	if len(results) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	attrCmds := make([]*redis.StringCmd, len(results))
	for i := range results {
		attrCmds[i] = pipe.VGetAttr(ctx, s.key, results[i].Name)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, domain.Upstream("redis", fmt.Errorf("fetch attributes: %w", err))
	}

	matches := make([]vectorstore.Match, 0, len(results))
	for i, r := range results {
		raw, err := attrCmds[i].Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, domain.Upstream("redis", fmt.Errorf("read attributes for %q: %w", r.Name, err))
		}
		m, err := decodeMatch(r.Name, r.Score, raw)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func (s *Storage) DeleteDocument(ctx context.Context, documentName string) (int, error) {
	ids, err := s.client.SMembers(ctx, s.documentKey(documentName)).Result()
	if err != nil {
		return 0, domain.Upstream("redis", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	pipe := s.client.Pipeline()
	for _, id := range ids {
		pipe.VRem(ctx, s.key, id)
	}
	pipe.Del(ctx, s.documentKey(documentName))
	pipe.SRem(ctx, s.documentsKey(), documentName)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, domain.Upstream("redis", fmt.Errorf("delete vectors: %w", err))
	}
	return len(ids), nil
}

func (s *Storage) Documents(ctx context.Context) ([]domain.DocumentStat, error) {
	names, err := s.client.SMembers(ctx, s.documentsKey()).Result()
	if err != nil {
		return nil, domain.Upstream("redis", err)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return []domain.DocumentStat{}, nil
	}
	pipe := s.client.Pipeline()
	cards := make([]*redis.IntCmd, len(names))
	for i, name := range names {
		cards[i] = pipe.SCard(ctx, s.documentKey(name))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, domain.Upstream("redis", err)
	}
	stats := make([]domain.DocumentStat, 0, len(names))
	for i, name := range names {
		if n := cards[i].Val(); n > 0 {
			stats = append(stats, domain.DocumentStat{DocumentName: name, ChunkCount: int(n)})
		}
	}
	return stats, nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	n, err := s.client.VCard(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, domain.Upstream("redis", err)
	}
	return int(n), nil
}

func (s *Storage) Close() error { return s.client.Close() }

func documentFilter(documentName string) string {
	if documentName == "" {
		return ""
	}
	replacer := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return fmt.Sprintf(`.%s == "%s"`, vectorstore.KeyDocumentName, replacer.Replace(documentName))
}

// similarityDistance converts a VSIM score, which maps cosine similarity
// [-1, 1] onto [0, 1], into the shared 1 - cosine distance.
func similarityDistance(score float64) float64 {
	return vectorstore.Distance(2*score - 1)
}

func decodeMatch(id string, score float64, attrJSON string) (vectorstore.Match, error) {
	distance := similarityDistance(score)
	payload := map[string]any{}
	if strings.TrimSpace(attrJSON) != "" {
		if err := json.Unmarshal([]byte(attrJSON), &payload); err != nil {
			return vectorstore.Match{}, fmt.Errorf("redis: parse attributes for %q: %w", id, err)
		}
	}
	m := vectorstore.MatchFromPayload(payload, &distance)
	if m.ChunkID == nil {
		m.ChunkID = &id
	}
	return m, nil
}
