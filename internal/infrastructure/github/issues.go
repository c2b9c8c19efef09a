package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"InsightFlow/internal/config"
	"InsightFlow/internal/domain"
	"InsightFlow/internal/ports"
)

const defaultMaxIssues = 5

// IssueTracker opens one GitHub issue per notable item.
type IssueTracker struct {
	token      string
	repository string
	baseURL    string
	maxIssues  int
	client     *http.Client
	logger     *slog.Logger
}

var _ ports.IssueTracker = (*IssueTracker)(nil)

// NewIssueTracker targets cfg.Repository ("owner/name").
func NewIssueTracker(cfg config.GitHubConfig, maxIssues int, logger *slog.Logger) *IssueTracker {
	if maxIssues <= 0 {
		maxIssues = defaultMaxIssues
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	return &IssueTracker{
		token:      cfg.Token,
		repository: cfg.Repository,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		maxIssues:  maxIssues,
		client:     &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

type issueRequest struct {
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels"`
}

// CreateIssues files issues for at most maxIssues items. Individual failures are
// logged; an error is returned only when every attempt failed.
func (t *IssueTracker) CreateIssues(ctx context.Context, items []domain.Item) (int, error) {
	if t.token == "" || t.repository == "" {
		t.log(slog.LevelWarn, "github token or repository not set, skipping issues")
		return 0, nil
	}
	if len(items) == 0 {
		return 0, nil
	}
	if len(items) > t.maxIssues {
		items = items[:t.maxIssues]
	}

	endpoint := fmt.Sprintf("%s/repos/%s/issues", t.baseURL, t.repository)
	created := 0
	var errs []error
	for _, it := range items {
		number, err := t.create(ctx, endpoint, issueFor(it))
		if err != nil {
			t.log(slog.LevelError, "create issue failed", "item", it.IdentityKey(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", it.IdentityKey(), err))
			continue
		}
		created++
		t.log(slog.LevelInfo, "issue created", "number", number, "item", it.IdentityKey())
	}

	t.log(slog.LevelInfo, "issues done", "created", created, "attempted", len(items))
	if created == 0 && len(errs) > 0 {
		return 0, errors.Join(errs...)
	}
	return created, nil
}

func issueFor(it domain.Item) issueRequest {
	var body strings.Builder
	body.WriteString("## Article\n")
	fmt.Fprintf(&body, "- **URL**: %s\n", it.URL)
	fmt.Fprintf(&body, "- **Discussion**: %s\n", it.DiscussionURL)
	fmt.Fprintf(&body, "- **Source**: %s\n", it.Source)
	fmt.Fprintf(&body, "- **Relevance**: %.2f\n", it.RelevanceScore)
	if len(it.Tags) > 0 {
		fmt.Fprintf(&body, "- **Tags**: %s\n", strings.Join(it.Tags, ", "))
	}
	body.WriteString("\n## Summary\n")
	body.WriteString(it.DisplaySummary() + "\n")

	return issueRequest{
		Title:  fmt.Sprintf("[%s] %s", it.Source, it.Title),
		Body:   body.String(),
		Labels: []string{"source:" + it.Source, "auto-collected"},
	}
}

func (t *IssueTracker) create(ctx context.Context, endpoint string, issue issueRequest) (int, error) {
	payload, err := json.Marshal(issue)
	if err != nil {
		return 0, fmt.Errorf("marshal issue: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", config.UserAgent())

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("github error %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	var created struct {
		Number int `json:"number"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	return created.Number, nil
}

func (t *IssueTracker) log(level slog.Level, msg string, args ...any) {
	if t.logger != nil {
		t.logger.Log(context.Background(), level, msg, args...)
	}
}
