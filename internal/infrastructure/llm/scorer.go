package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"InsightFlow/internal/domain"
	"InsightFlow/internal/ports"
)

const (
	defaultBatchSize = 8
	maxTags          = 3
	fallbackTag      = "Other"
)

// ErrMalformed marks model output that could not be decoded as a score list.
var ErrMalformed = errors.New("malformed scoring response")

// ScorerOptions tunes batching and retries.
type ScorerOptions struct {
	BatchSize int
	Tags      []string
	Language  string
	// Pause is slept between consecutive batches.
	Pause time.Duration
	// NewBackOff builds the retry policy for one batch. Defaults to 5s, 15s, 45s.
	NewBackOff func() backoff.BackOff
}

// Scorer asks the model for relevance, a short summary and tags, in batches.
type Scorer struct {
	completer Completer
	opts      ScorerOptions
	validTags map[string]struct{}
	logger    *slog.Logger
}

var _ ports.Scorer = (*Scorer)(nil)

// NewScorer wires a completer; a nil completer makes Score a no-op.
func NewScorer(completer Completer, opts ScorerOptions, logger *slog.Logger) *Scorer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Language == "" {
		opts.Language = "English"
	}
	if opts.NewBackOff == nil {
		opts.NewBackOff = defaultBackOff
	}

	valid := make(map[string]struct{}, len(opts.Tags))
	for _, t := range opts.Tags {
		valid[t] = struct{}{}
	}

	return &Scorer{completer: completer, opts: opts, validTags: valid, logger: logger}
}

func defaultBackOff() backoff.BackOff {
	exp := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(5*time.Second),
		backoff.WithMultiplier(3),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxInterval(45*time.Second),
		backoff.WithMaxElapsedTime(0),
	)
	return backoff.WithMaxRetries(exp, 3)
}

type scoreEntry struct {
	Index     int     `json:"index"`
	Relevance float64 `json:"relevance"`
	Summary   string  `json:"summary"`
	Tags      any     `json:"tags"`
}

// Score mutates items in place and returns them. Newsletter items are batched
// apart from the rest because they get a different prompt. A batch that still
// fails after retries is left unscored.
func (s *Scorer) Score(ctx context.Context, items []domain.Item) []domain.Item {
	if len(items) == 0 {
		return items
	}
	if s.completer == nil {
		s.log(slog.LevelWarn, "llm not configured, skipping scoring", "items", len(items))
		return items
	}

	var regular, curated []int
	for i, it := range items {
		if it.Source == domain.SourceTLDRAI {
			curated = append(curated, i)
		} else {
			regular = append(regular, i)
		}
	}

	batches := append(s.split(regular, false), s.split(curated, true)...)
	for n, b := range batches {
		if n > 0 && !s.pause(ctx) {
			s.log(slog.LevelWarn, "scoring interrupted", "error", ctx.Err())
			break
		}
		s.scoreBatch(ctx, n+1, items, b)
	}

	return items
}

type batch struct {
	indices []int
	curated bool
}

func (s *Scorer) split(indices []int, curated bool) []batch {
	var out []batch
	for start := 0; start < len(indices); start += s.opts.BatchSize {
		end := min(start+s.opts.BatchSize, len(indices))
		out = append(out, batch{indices: indices[start:end], curated: curated})
	}
	return out
}

func (s *Scorer) pause(ctx context.Context) bool {
	if s.opts.Pause <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(s.opts.Pause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Scorer) scoreBatch(ctx context.Context, number int, items []domain.Item, b batch) {
	prompt := s.buildPrompt(items, b)

	attempt := 0
	var entries []scoreEntry
	op := func() error {
		attempt++
		raw, err := s.completer.Complete(ctx, prompt)
		if err != nil {
			if isRateLimited(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		parsed, err := parseScores(raw)
		if err != nil {
			return err
		}
		entries = parsed
		return nil
	}
	notify := func(err error, wait time.Duration) {
		s.log(slog.LevelWarn, "scoring batch retry", "batch", number, "attempt", attempt, "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(s.opts.NewBackOff(), ctx), notify); err != nil {
		s.log(slog.LevelError, "scoring batch failed, keeping items unscored", "batch", number, "attempts", attempt, "error", err)
		return
	}

	applied := 0
	for _, e := range entries {
		pos := e.Index - 1
		if pos < 0 || pos >= len(b.indices) {
			continue
		}
		it := &items[b.indices[pos]]
		it.AISummary = strings.TrimSpace(e.Summary)
		it.RelevanceScore = clamp(e.Relevance)
		it.Tags = s.filterTags(e.Tags)
		applied++
	}
	s.log(slog.LevelInfo, "scoring batch done", "batch", number, "items", len(b.indices), "scored", applied)
}

func (s *Scorer) buildPrompt(items []domain.Item, b batch) string {
	var list strings.Builder
	for n, idx := range b.indices {
		fmt.Fprintf(&list, "[%d] Title: %s\n    Summary: %s\n", n+1, items[idx].Title, items[idx].Summary)
	}

	task := fmt.Sprintf("2. A three-line summary of the key points, written in %s", s.opts.Language)
	if b.curated {
		task = fmt.Sprintf("2. Two or three key points in %s, extracted from the existing newsletter summary", s.opts.Language)
	}

	var p strings.Builder
	p.WriteString("Analyze the following tech articles. For each article provide:\n")
	p.WriteString("1. A developer relevance score between 0.0 and 1.0\n")
	p.WriteString(task + "\n")
	fmt.Fprintf(&p, "3. Up to %d tags chosen only from: %s\n\n", maxTags, strings.Join(s.opts.Tags, ", "))
	p.WriteString("Articles:\n")
	p.WriteString(list.String())
	p.WriteString("\nAnswer with a JSON array only:\n")
	p.WriteString(`[{"index": 1, "relevance": 0.85, "summary": "...", "tags": ["AI/ML", "Tool"]}, ...]`)
	return p.String()
}

func (s *Scorer) filterTags(raw any) []string {
	list, ok := raw.([]any)
	if !ok {
		return []string{fallbackTag}
	}
	tags := make([]string, 0, maxTags)
	for _, v := range list {
		tag, ok := v.(string)
		if !ok {
			continue
		}
		if _, valid := s.validTags[tag]; !valid {
			continue
		}
		tags = append(tags, tag)
		if len(tags) == maxTags {
			break
		}
	}
	if len(tags) == 0 {
		return []string{fallbackTag}
	}
	return tags
}

func (s *Scorer) log(level slog.Level, msg string, args ...any) {
	if s.logger != nil {
		s.logger.Log(context.Background(), level, msg, args...)
	}
}

// parseScores decodes a JSON array, tolerating a surrounding markdown code fence.
func parseScores(raw string) ([]scoreEntry, error) {
	var entries []scoreEntry
	if err := json.Unmarshal([]byte(raw), &entries); err == nil {
		return entries, nil
	}

	cleaned := stripCodeFence(raw)
	if err := json.Unmarshal([]byte(cleaned), &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return entries, nil
}

func stripCodeFence(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}
	if nl := strings.IndexByte(cleaned, '\n'); nl >= 0 {
		cleaned = cleaned[nl+1:]
	} else {
		return ""
	}
	if end := strings.LastIndex(cleaned, "```"); end >= 0 {
		cleaned = cleaned[:end]
	}
	return strings.TrimSpace(cleaned)
}

func isRateLimited(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "quota") || strings.Contains(msg, "rate limit")
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
