package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"InsightFlow/internal/domain"
	"InsightFlow/internal/scanner"
)

const summaryLimit = 500

var defaultTLDRSections = []string{
	"Headlines & Launches",
	"Deep Dives & Analysis",
	"Engineering & Research",
	"Miscellaneous",
	"Quick Links",
}

// TLDRScanner extracts curated links from the latest TLDR newsletter page.
type TLDRScanner struct {
	client   *http.Client
	logger   *slog.Logger
	sections map[string]struct{}
}

// NewTLDRScanner wires an HTTP client; a nil client gets a 15s timeout.
func NewTLDRScanner(client *http.Client, logger *slog.Logger) *TLDRScanner {
	sections := make(map[string]struct{}, len(defaultTLDRSections))
	for _, s := range defaultTLDRSections {
		sections[s] = struct{}{}
	}
	return &TLDRScanner{
		client:   defaultClient(client, 15*time.Second),
		logger:   logger,
		sections: sections,
	}
}

// Name identifies the strategy inside the registry.
func (s *TLDRScanner) Name() string {
	return "tldr"
}

// Scan downloads the newsletter and returns one item per non-sponsored article.
func (s *TLDRScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Item, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("no url provided for source %s", req.Source)
	}

	body, err := fetch(ctx, s.client, req.URL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	items := s.extractItems(doc, req.Source, req.Now)
	if s.logger != nil {
		s.logger.Info("newsletter scanned", "source", req.Source, "items", len(items))
	}
	return items, nil
}

func (s *TLDRScanner) extractItems(doc *goquery.Document, source string, now time.Time) []domain.Item {
	published := now.UTC().Format(time.RFC3339)
	var items []domain.Item

	doc.Find("section").Each(func(_ int, section *goquery.Selection) {
		name := cleanText(section.Find("header").First().Find("h3").First().Text())
		if _, ok := s.sections[name]; !ok {
			return
		}

		section.Find("article").Each(func(_ int, article *goquery.Selection) {
			item, ok := parseNewsletterEntry(article, source, published)
			if ok {
				items = append(items, item)
			}
		})
	})

	return items
}

func parseNewsletterEntry(article *goquery.Selection, source, published string) (domain.Item, bool) {
	link := article.Find("a.font-bold").First()
	if link.Length() == 0 {
		return domain.Item{}, false
	}

	titleTag := link.Find("h3").First()
	if titleTag.Length() == 0 {
		return domain.Item{}, false
	}
	title := cleanText(titleTag.Text())
	if strings.Contains(title, "(Sponsor)") {
		return domain.Item{}, false
	}

	href, _ := link.Attr("href")
	if strings.TrimSpace(href) == "" {
		return domain.Item{}, false
	}
	clean := stripUTMParams(strings.TrimSpace(href))

	summary := truncateRunes(cleanText(article.Find("div.newsletter-html").First().Text()), summaryLimit)

	return domain.Item{
		Source:        source,
		SourceID:      clean,
		Title:         title,
		URL:           clean,
		DiscussionURL: clean,
		Summary:       summary,
		PublishedAt:   published,
	}, true
}

// stripUTMParams removes utm_* query parameters; unparsable URLs are returned unchanged.
func stripUTMParams(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	query := parsed.Query()
	for key := range query {
		if strings.HasPrefix(key, "utm_") {
			query.Del(key)
		}
	}
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
