package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"InsightFlow/internal/config"
	"InsightFlow/internal/domain"
	"InsightFlow/internal/ports"
)

// Notifier sends digests to a Telegram chat via bot API.
type Notifier struct {
	botToken   string
	chatID     string
	baseURL    string
	client     *http.Client
	logger     *slog.Logger
	newBackOff func() backoff.BackOff
	chunkPause time.Duration
	now        func() time.Time
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(cfg config.TelegramConfig, logger *slog.Logger) *Notifier {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &Notifier{
		botToken:   cfg.BotToken,
		chatID:     cfg.ChatID,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		client:     &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
		newBackOff: defaultBackOff,
		chunkPause: time.Second,
		now:        time.Now,
	}
}

// 2s, 6s, 18s between three attempts.
func defaultBackOff() backoff.BackOff {
	exp := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(2*time.Second),
		backoff.WithMultiplier(3),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxElapsedTime(0),
	)
	return backoff.WithMaxRetries(exp, 2)
}

// PublishDigest formats, chunks and posts the digest. An empty digest is a no-op.
func (n *Notifier) PublishDigest(ctx context.Context, digest domain.Digest) error {
	if digest.Empty() {
		return nil
	}
	if digest.Date == "" {
		digest.Date = n.now().UTC().Format(domain.DateLayout)
	}

	chunks := ChunkMessage(FormatDigest(digest), maxMessageLength)
	n.info("sending digest", "items", len(digest.Items), "chunks", len(chunks))

	for i, chunk := range chunks {
		if i > 0 && n.chunkPause > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(n.chunkPause):
			}
		}
		if err := n.send(ctx, chunk); err != nil {
			return fmt.Errorf("send chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}
	return nil
}

// PublishFailure posts a run failure alert with a UTC timestamp.
func (n *Notifier) PublishFailure(ctx context.Context, message string) error {
	timestamp := n.now().UTC().Format("2006-01-02 15:04:05 UTC")
	return n.send(ctx, FormatFailure(message, timestamp))
}

func (n *Notifier) send(ctx context.Context, text string) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	body, err := json.Marshal(map[string]string{
		"chat_id":    n.chatID,
		"text":       text,
		"parse_mode": "MarkdownV2",
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)

	attempt := 0
	op := func() error {
		attempt++
		return n.post(ctx, endpoint, body)
	}
	notify := func(err error, wait time.Duration) {
		if n.logger != nil {
			n.logger.Warn("telegram send retry", "attempt", attempt, "wait", wait, "error", err)
		}
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(n.newBackOff(), ctx), notify); err != nil {
		return fmt.Errorf("telegram send failed after %d attempts: %w", attempt, err)
	}
	return nil
}

func (n *Notifier) post(ctx context.Context, endpoint string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram error %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}
	return nil
}

func (n *Notifier) info(msg string, args ...any) {
	if n.logger != nil {
		n.logger.Info(msg, args...)
	}
}
