package answer

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"docqa/internal/domain"
	"docqa/internal/logger"
	"docqa/internal/metrics"
)

var fenceRe = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*\\s*(.*?)\\s*```")

// Validator turns a question and its retrieved chunks into a grounded,
// source-attributed answer.
type Validator struct {
	generator domain.Generator
	metrics   *metrics.Recorder
}

type Option func(*Validator)

func WithMetrics(m *metrics.Recorder) Option {
	return func(v *Validator) { v.metrics = m }
}

// New builds a Validator. A nil generator is accepted here and reported as
// a configuration error by Answer, so a server can start without credentials.
func New(generator domain.Generator, opts ...Option) *Validator {
	v := &Validator{generator: generator}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Refusal is the fixed answer for insufficient context.
func Refusal() domain.AnswerResult {
	return domain.AnswerResult{Answer: RefusalMessage, Sources: []domain.SourceReference{}}
}

// Answer asks the generation service and validates its completion against
// chunks. Generation failures are returned unchanged; malformed output
// becomes the refusal.
func (v *Validator) Answer(ctx context.Context, question string, chunks []domain.RetrievedChunk) (domain.AnswerResult, error) {
	if v == nil || v.generator == nil {
		return domain.AnswerResult{}, fmt.Errorf("%w: generation service is not configured", domain.ErrConfiguration)
	}
	log := logger.FromContext(ctx)

	if len(chunks) == 0 {
		log.Info("no chunks retrieved, refusing without generation")
		v.metrics.Answer(metrics.OutcomeNoContext)
		return Refusal(), nil
	}

	raw, err := v.generator.Complete(ctx, SystemPrompt, BuildUserMessage(question, chunks))
	if err != nil {
		return domain.AnswerResult{}, err
	}

	result, dropped, err := parse(raw, chunks)
	if err != nil {
		log.Error("completion is not valid JSON, refusing", "err", err)
		log.Debug("raw completion", "text", raw)
		v.metrics.Answer(metrics.OutcomeMalformed)
		return Refusal(), nil
	}
	if len(dropped) > 0 {
		log.Warn("dropped citations outside the retrieved set", "chunk_ids", dropped)
		v.metrics.DroppedSources(len(dropped))
	}

	if result.Answer == RefusalMessage {
		v.metrics.Answer(metrics.OutcomeRefused)
		return result, nil
	}
	if len(result.Sources) == 0 {
		log.Warn("answer has no valid sources", "question", question)
		v.metrics.UnsourcedAnswer()
	}
	v.metrics.Answer(metrics.OutcomeAnswered)
	return result, nil
}

// ParseCompletion validates a raw completion against the retrieved chunks.
// It fails with domain.ErrMalformedCompletion when no JSON object can be read.
func ParseCompletion(raw string, chunks []domain.RetrievedChunk) (domain.AnswerResult, error) {
	result, _, err := parse(raw, chunks)
	return result, err
}

// completion is decoded loosely: a citation of any shape is checked
// against the retrieved set instead of failing the whole answer.
type completion struct {
	Answer  *string `json:"answer"`
	Sources []any   `json:"sources"`
}

func parse(raw string, chunks []domain.RetrievedChunk) (domain.AnswerResult, []string, error) {
	var c completion
	if err := json.Unmarshal([]byte(StripFence(raw)), &c); err != nil {
		return domain.AnswerResult{}, nil, fmt.Errorf("%w: %v", domain.ErrMalformedCompletion, err)
	}

	answer := RefusalMessage
	if c.Answer != nil && strings.TrimSpace(*c.Answer) != "" {
		answer = *c.Answer
	}
	if answer == RefusalMessage {
		return Refusal(), nil, nil
	}

	retrieved := make(map[string]domain.RetrievedChunk, len(chunks))
	for _, ch := range chunks {
		if _, ok := retrieved[ch.ChunkID]; !ok {
			retrieved[ch.ChunkID] = ch
		}
	}

	sources := make([]domain.SourceReference, 0, len(c.Sources))
	var dropped []string
	seen := make(map[string]bool, len(c.Sources))
	for _, item := range c.Sources {
		src, _ := item.(map[string]any)
		id, _ := src["chunk_id"].(string)
		ch, ok := retrieved[id]
		if !ok || id == "" {
			dropped = append(dropped, fmt.Sprint(src["chunk_id"]))
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		page := ch.PageNumber
		if p, ok := pageNumber(src["page"]); ok {
			page = p
		}
		sources = append(sources, domain.SourceReference{
			DocumentName: ch.DocumentName,
			Page:         page,
			ChunkID:      ch.ChunkID,
			IsSection:    ch.IsSection,
		})
	}
	return domain.AnswerResult{Answer: answer, Sources: sources}, dropped, nil
}

// StripFence returns the body of the first fenced block in raw, or raw
// itself when it has none.
func StripFence(raw string) string {
	text := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

// pageNumber accepts integral JSON numbers only.
func pageNumber(v any) (int, bool) {
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}
