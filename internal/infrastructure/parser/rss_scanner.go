package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"InsightFlow/internal/domain"
	"InsightFlow/internal/scanner"
)

const defaultFeedWindow = 24 * time.Hour

// RSSScanner reads an RSS or Atom feed and keeps entries from the last day.
type RSSScanner struct {
	client *http.Client
	logger *slog.Logger
	window time.Duration
}

// NewRSSScanner wires an HTTP client; a nil client gets a 30s timeout.
func NewRSSScanner(client *http.Client, logger *slog.Logger) *RSSScanner {
	return &RSSScanner{
		client: defaultClient(client, 30*time.Second),
		logger: logger,
		window: defaultFeedWindow,
	}
}

// Name identifies the strategy inside the registry.
func (s *RSSScanner) Name() string {
	return "rss"
}

// Scan parses the feed at req.URL.
func (s *RSSScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Item, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("no url provided for source %s", req.Source)
	}

	body, err := fetch(ctx, s.client, req.URL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	feed, err := gofeed.NewParser().Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	cutoff := req.Now.Add(-s.window)
	items := make([]domain.Item, 0, len(feed.Items))
	for _, entry := range feed.Items {
		item, ok := feedEntryToItem(entry, req.Source, req.Now, cutoff)
		if ok {
			items = append(items, item)
		}
	}

	if s.logger != nil {
		s.logger.Info("feed scanned", "source", req.Source, "entries", len(feed.Items), "items", len(items))
	}
	return items, nil
}

func feedEntryToItem(entry *gofeed.Item, source string, now, cutoff time.Time) (domain.Item, bool) {
	published := now.UTC()
	if ts := entryTime(entry); ts != nil {
		if ts.Before(cutoff) {
			return domain.Item{}, false
		}
		published = ts.UTC()
	}

	discussion := entry.Link
	original := discussion
	summary := entry.Description
	if entry.Content != "" {
		if href := firstExternalLink(entry.Content); href != "" {
			original = href
		}
		summary = truncateRunes(htmlText(entry.Content), summaryLimit)
	}

	sourceID := entry.GUID
	if sourceID == "" {
		sourceID = discussion
	}

	return domain.Item{
		Source:        source,
		SourceID:      sourceID,
		Title:         strings.TrimSpace(entry.Title),
		URL:           original,
		DiscussionURL: discussion,
		Summary:       summary,
		PublishedAt:   published.Format(time.RFC3339),
	}, true
}

func entryTime(entry *gofeed.Item) *time.Time {
	if entry.PublishedParsed != nil {
		return entry.PublishedParsed
	}
	return entry.UpdatedParsed
}

// firstExternalLink returns the first anchor href when it is an absolute http(s) URL.
func firstExternalLink(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}
	href, ok := doc.Find("a[href]").First().Attr("href")
	if !ok {
		return ""
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return ""
}

func htmlText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	return strings.TrimSpace(doc.Text())
}
