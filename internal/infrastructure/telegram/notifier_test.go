package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"

	"InsightFlow/internal/config"
	"InsightFlow/internal/domain"
	"InsightFlow/internal/logging"
)

func TestEscape(t *testing.T) {
	t.Parallel()

	got := Escape("a_b*c[d](e)~f`g>h#i+j-k=l|m{n}o.p!q\\r")
	want := `a\_b\*c\[d\]\(e\)\~f\` + "`" + `g\>h\#i\+j\-k\=l\|m\{n\}o\.p\!q\\r`
	if got != want {
		t.Fatalf("Escape() = %q, want %q", got, want)
	}
}

func TestFormatDigestGroupsBySource(t *testing.T) {
	t.Parallel()

	d := domain.Digest{
		Date: "2026-03-10",
		Items: []domain.Item{
			{Source: domain.SourceHackerNews, Title: "HN story", Score: 321, URL: "https://x.example/a_(b)", DiscussionURL: "https://news.ycombinator.com/item?id=1", RelevanceScore: 0.9},
			{Source: domain.SourceGeekNews, Title: "GN 1.0", AISummary: "요약.", URL: "https://g.example", DiscussionURL: "https://news.hada.io/1", RelevanceScore: 0.75, Tags: []string{"LLM"}},
			{Source: "custom", Title: "Other", URL: "https://o.example", DiscussionURL: "https://o.example"},
		},
		Models: domain.ModelUpdates{
			NewModels:    []domain.NewModel{{Name: "Model.X", Creator: "Lab"}},
			RankChanges:  []domain.RankChange{{Name: "A", OldRank: 1, NewRank: 2, IntelligenceIndex: 70}},
			PriceChanges: []domain.PriceChange{{Name: "B", OldPrice: 5, NewPrice: 4, ChangePct: -0.2}},
		},
	}

	text := FormatDigest(d)

	for _, want := range []string{
		`InsightFlow Daily Digest \- 2026\-03\-10`,
		"🇰🇷 *GeekNews*",
		"🌍 *Hacker News*",
		"📌 *custom*",
		`1\. *GN 1\.0*`,
		`요약\.`,
		`\(⬆321\)`,
		`[Original](https://x.example/a_(b\))`,
		`⭐ Relevance: 0\.75 · LLM`,
		"🧠 *AI Model Updates*",
		`🆕 Model\.X \(Lab\)`,
		`📉 A \#1 → \#2`,
		`💲 B 5\.00 → 4\.00 \(\-20\.0%\)`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("digest missing %q:\n%s", want, text)
		}
	}

	if strings.Index(text, "GeekNews") > strings.Index(text, "Hacker News") {
		t.Fatalf("GeekNews section should come first")
	}
	if strings.Contains(text, "[Discussion](https://o.example)") {
		t.Fatalf("discussion link equal to url should be omitted")
	}
}

func TestChunkMessage(t *testing.T) {
	t.Parallel()

	if got := ChunkMessage("short", 4096); len(got) != 1 || got[0] != "short" {
		t.Fatalf("short text should be a single chunk: %v", got)
	}

	blocks := make([]string, 0, 30)
	for i := 0; i < 30; i++ {
		blocks = append(blocks, strings.Repeat("가", 90))
	}
	text := strings.Join(blocks, "\n\n")

	chunks := ChunkMessage(text, 500)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c); n > 500 {
			t.Fatalf("chunk %d has %d chars", i, n)
		}
		if !strings.HasSuffix(c, `/`+strconv.Itoa(len(chunks))+`\)`) {
			t.Fatalf("chunk %d missing counter: %q", i, c[len(c)-10:])
		}
	}

	oversized := ChunkMessage(strings.Repeat("x", 1200), 500)
	for i, c := range oversized {
		if n := utf8.RuneCountInString(c); n > 500 {
			t.Fatalf("oversized chunk %d has %d chars", i, n)
		}
	}
}

type recordedMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func newTestNotifier(url string) *Notifier {
	n := NewNotifier(config.TelegramConfig{BotToken: "tok", ChatID: "42", BaseURL: url}, logging.Discard())
	n.newBackOff = func() backoff.BackOff { return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2) }
	n.chunkPause = 0
	n.now = func() time.Time { return time.Date(2026, time.March, 10, 6, 0, 0, 0, time.UTC) }
	return n
}

func TestPublishDigestRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		calls    int
		received []recordedMessage
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if r.URL.Path != "/bottok/sendMessage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var msg recordedMessage
		_ = json.NewDecoder(r.Body).Decode(&msg)
		received = append(received, msg)
	}))
	defer server.Close()

	n := newTestNotifier(server.URL)
	err := n.PublishDigest(context.Background(), domain.Digest{Items: []domain.Item{{Source: domain.SourceGeekNews, Title: "t", URL: "https://u"}}})
	if err != nil {
		t.Fatalf("PublishDigest: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 2 || len(received) != 1 {
		t.Fatalf("expected one retry then success, calls=%d received=%d", calls, len(received))
	}
	if received[0].ChatID != "42" || received[0].ParseMode != "MarkdownV2" {
		t.Fatalf("unexpected payload: %+v", received[0])
	}
	if !strings.Contains(received[0].Text, `2026\-03\-10`) {
		t.Fatalf("digest date should default to now: %s", received[0].Text)
	}
}

func TestPublishDigestFailsAfterThreeAttempts(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		calls int
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	n := newTestNotifier(server.URL)
	err := n.PublishDigest(context.Background(), domain.Digest{Items: []domain.Item{{Title: "t"}}})
	if err == nil {
		t.Fatalf("expected error")
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestPublishFailureAndMisconfiguration(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		text string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg recordedMessage
		_ = json.NewDecoder(r.Body).Decode(&msg)
		mu.Lock()
		text = msg.Text
		mu.Unlock()
	}))
	defer server.Close()

	n := newTestNotifier(server.URL)
	if err := n.PublishFailure(context.Background(), "stage notify: boom."); err != nil {
		t.Fatalf("PublishFailure: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if !strings.Contains(text, `boom\.`) || !strings.Contains(text, `2026\-03\-10 06:00:00 UTC`) {
		t.Fatalf("unexpected failure text: %s", text)
	}

	empty := NewNotifier(config.TelegramConfig{}, nil)
	if err := empty.PublishFailure(context.Background(), "x"); err == nil {
		t.Fatalf("expected misconfiguration error")
	}
	if err := empty.PublishDigest(context.Background(), domain.Digest{}); err != nil {
		t.Fatalf("empty digest should be a no-op, got %v", err)
	}
}
