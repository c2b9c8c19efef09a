package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"InsightFlow/internal/domain"
	"InsightFlow/internal/scanner"
)

const (
	defaultHNTop         = 30
	hnFetchConcurrency   = 10
	hnDiscussionTemplate = "https://news.ycombinator.com/item?id=%d"
)

type hnItem struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title"`
	URL   string `json:"url"`
	Score int    `json:"score"`
	Time  int64  `json:"time"`
}

// HackerNewsScanner reads the top stories from the Firebase API.
type HackerNewsScanner struct {
	client *http.Client
	logger *slog.Logger
}

// NewHackerNewsScanner wires an HTTP client; a nil client gets a 15s timeout.
func NewHackerNewsScanner(client *http.Client, logger *slog.Logger) *HackerNewsScanner {
	return &HackerNewsScanner{
		client: defaultClient(client, 15*time.Second),
		logger: logger,
	}
}

// Name identifies the strategy inside the registry.
func (s *HackerNewsScanner) Name() string {
	return "hackernews"
}

// Scan fetches the top-N ids (option "top") and resolves them concurrently.
// Items that fail to load or are not stories are skipped; ranking order is kept.
func (s *HackerNewsScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Item, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("no url provided for source %s", req.Source)
	}
	base := strings.TrimSuffix(req.URL, "/") + "/"

	var ids []int64
	if err := s.getJSON(ctx, base+"topstories.json", &ids); err != nil {
		return nil, fmt.Errorf("top stories: %w", err)
	}
	if top := req.IntOption("top", defaultHNTop); len(ids) > top {
		ids = ids[:top]
	}

	slots := make([]*domain.Item, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hnFetchConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			var raw hnItem
			if err := s.getJSON(gctx, fmt.Sprintf("%sitem/%d.json", base, id), &raw); err != nil {
				s.warn("hn item fetch failed", "id", id, "error", err)
				return nil
			}
			if raw.Type != "story" {
				return nil
			}
			item := storyToItem(raw, req.Source)
			slots[i] = &item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := make([]domain.Item, 0, len(slots))
	for _, it := range slots {
		if it != nil {
			items = append(items, *it)
		}
	}

	if s.logger != nil {
		s.logger.Info("hacker news scanned", "source", req.Source, "ids", len(ids), "items", len(items))
	}
	return items, nil
}

func storyToItem(raw hnItem, source string) domain.Item {
	discussion := fmt.Sprintf(hnDiscussionTemplate, raw.ID)
	link := raw.URL
	if link == "" {
		link = discussion
	}
	return domain.Item{
		Source:        source,
		SourceID:      strconv.FormatInt(raw.ID, 10),
		Title:         raw.Title,
		URL:           link,
		DiscussionURL: discussion,
		Score:         raw.Score,
		PublishedAt:   time.Unix(raw.Time, 0).UTC().Format(time.RFC3339),
	}
}

func (s *HackerNewsScanner) getJSON(ctx context.Context, target string, v any) error {
	body, err := fetch(ctx, s.client, target)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", target, err)
	}
	return nil
}

func (s *HackerNewsScanner) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
