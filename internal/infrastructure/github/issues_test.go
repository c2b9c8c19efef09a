package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"InsightFlow/internal/config"
	"InsightFlow/internal/domain"
	"InsightFlow/internal/logging"
)

func notableItems(n int) []domain.Item {
	items := make([]domain.Item, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, domain.Item{
			Source:         domain.SourceHackerNews,
			SourceID:       string(rune('a' + i)),
			Title:          "Story",
			URL:            "https://example.com",
			RelevanceScore: 0.9,
			Notable:        true,
			AISummary:      "summary",
		})
	}
	return items
}

func TestCreateIssuesCapsAndLabels(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		received []issueRequest
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/news/issues" || r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		var issue issueRequest
		_ = json.NewDecoder(r.Body).Decode(&issue)
		mu.Lock()
		received = append(received, issue)
		n := len(received)
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprintf(w, `{"number":%d}`, n)
	}))
	defer server.Close()

	tracker := NewIssueTracker(config.GitHubConfig{Token: "tok", Repository: "acme/news", BaseURL: server.URL}, 2, logging.Discard())
	created, err := tracker.CreateIssues(context.Background(), notableItems(4))
	if err != nil {
		t.Fatalf("CreateIssues: %v", err)
	}
	if created != 2 {
		t.Fatalf("expected 2 issues, got %d", created)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(received))
	}
	first := received[0]
	if first.Title != "[hackernews] Story" {
		t.Fatalf("unexpected title: %s", first.Title)
	}
	if len(first.Labels) != 2 || first.Labels[0] != "source:hackernews" || first.Labels[1] != "auto-collected" {
		t.Fatalf("unexpected labels: %v", first.Labels)
	}
	if !strings.Contains(first.Body, "summary") || !strings.Contains(first.Body, "0.90") {
		t.Fatalf("unexpected body: %s", first.Body)
	}
}

func TestCreateIssuesAllFailed(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	tracker := NewIssueTracker(config.GitHubConfig{Token: "tok", Repository: "acme/news", BaseURL: server.URL}, 5, nil)
	created, err := tracker.CreateIssues(context.Background(), notableItems(2))
	if err == nil || created != 0 {
		t.Fatalf("expected error when every issue failed, got %d %v", created, err)
	}
}

func TestCreateIssuesUnconfigured(t *testing.T) {
	t.Parallel()

	tracker := NewIssueTracker(config.GitHubConfig{}, 5, nil)
	created, err := tracker.CreateIssues(context.Background(), notableItems(1))
	if err != nil || created != 0 {
		t.Fatalf("expected silent skip, got %d %v", created, err)
	}
}
