package parser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"InsightFlow/internal/scanner"
)

func newHNServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/v0/topstories.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[3, 1, 2, 4, 5]`))
	})
	mux.HandleFunc("/v0/item/3.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":3,"type":"story","title":"Three","url":"https://three.example","score":120,"time":1767225600}`))
	})
	mux.HandleFunc("/v0/item/1.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":1,"type":"story","title":"Ask HN: one","score":5,"time":1767225600}`))
	})
	mux.HandleFunc("/v0/item/2.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":2,"type":"job","title":"Hiring"}`))
	})
	mux.HandleFunc("/v0/item/4.json", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/v0/item/5.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":5,"type":"story","title":"Five","url":"https://five.example"}`))
	})
	return httptest.NewServer(mux)
}

func TestHackerNewsScannerScan(t *testing.T) {
	t.Parallel()

	server := newHNServer(t)
	defer server.Close()

	sc := NewHackerNewsScanner(server.Client(), nil)
	items, err := sc.Scan(context.Background(), scanner.Request{
		Source:  "hackernews",
		URL:     server.URL + "/v0/",
		Options: map[string]string{"top": "4"},
	})
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("expected 2 stories, got %d: %+v", len(items), items)
	}
	if items[0].SourceID != "3" || items[1].SourceID != "1" {
		t.Fatalf("ranking order not kept: %s, %s", items[0].SourceID, items[1].SourceID)
	}
	if items[0].Score != 120 || items[0].URL != "https://three.example" {
		t.Fatalf("unexpected first item: %+v", items[0])
	}
	if items[0].PublishedAt != "2026-01-01T00:00:00Z" {
		t.Fatalf("unexpected published_at: %s", items[0].PublishedAt)
	}
	if items[1].URL != "https://news.ycombinator.com/item?id=1" || items[1].DiscussionURL != items[1].URL {
		t.Fatalf("self post should link to discussion: %+v", items[1])
	}
}

func TestHackerNewsScannerTopStoriesFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	sc := NewHackerNewsScanner(server.Client(), nil)
	if _, err := sc.Scan(context.Background(), scanner.Request{Source: "hackernews", URL: server.URL}); err == nil {
		t.Fatalf("expected error when top stories are unavailable")
	}
}
