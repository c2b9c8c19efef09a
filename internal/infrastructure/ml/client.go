package ml

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"InsightFlow/internal/config"
	"InsightFlow/internal/domain"
	"InsightFlow/internal/ports"
)

// Client reads the AI model catalog (Artificial Analysis compatible).
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	logger   *slog.Logger
}

var _ ports.CatalogSource = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(cfg config.CatalogConfig, logger *slog.Logger) *Client {
	return &Client{
		endpoint: cfg.URL,
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
	}
}

// FetchCatalog returns one snapshot row per catalog entry, without fetched_at.
// Without an API key it returns nothing.
func (c *Client) FetchCatalog(ctx context.Context) ([]domain.ModelSnapshot, error) {
	if c.apiKey == "" {
		if c.logger != nil {
			c.logger.Warn("catalog api key not set, skipping fetch")
		}
		return nil, nil
	}

	var payload any
	if err := c.get(ctx, &payload); err != nil {
		return nil, err
	}

	entries, err := catalogEntries(payload)
	if err != nil {
		return nil, err
	}

	rows := make([]domain.ModelSnapshot, 0, len(entries))
	for _, raw := range entries {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		rows = append(rows, toSnapshot(entry))
	}

	if c.logger != nil {
		c.logger.Info("catalog fetched", "models", len(rows))
	}
	return rows, nil
}

func (c *Client) get(ctx context.Context, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", config.UserAgent())
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			return fmt.Errorf("unexpected status %s, close body: %v", resp.Status, closeErr)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		_ = resp.Body.Close()
		return fmt.Errorf("decode response: %w", err)
	}

	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}

	return nil
}

// catalogEntries accepts a bare list or an object wrapping it in data, models or results.
func catalogEntries(payload any) ([]any, error) {
	switch v := payload.(type) {
	case []any:
		return v, nil
	case map[string]any:
		for _, key := range []string{"data", "models", "results"} {
			if list, ok := v[key].([]any); ok && len(list) > 0 {
				return list, nil
			}
		}
		return []any{}, nil
	default:
		return nil, fmt.Errorf("unexpected catalog response type %T", payload)
	}
}

func toSnapshot(m map[string]any) domain.ModelSnapshot {
	evals, _ := m["evaluations"].(map[string]any)
	pricing, _ := m["pricing"].(map[string]any)

	return domain.ModelSnapshot{
		ModelID:           firstString(m, "model_id", "id"),
		Name:              firstString(m, "name", "model_name"),
		Creator:           creator(m),
		IntelligenceIndex: firstNumber(m, evals, "intelligence_index", "artificial_analysis_intelligence_index"),
		CodingIndex:       firstNumber(m, evals, "coding_index", "artificial_analysis_coding_index"),
		MathIndex:         firstNumber(m, evals, "math_index", "artificial_analysis_math_index"),
		SpeedIndex:        firstNumber(m, evals, "speed_index", "speed_index"),
		PriceInput:        firstNumber(m, pricing, "price_input", "price_1m_input_tokens"),
		PriceOutput:       firstNumber(m, pricing, "price_output", "price_1m_output_tokens"),
		SpeedTokensPerSec: firstNumber(m, nil, "speed_tokens_per_sec", "median_output_tokens_per_second"),
		TTFTSeconds:       firstNumber(m, nil, "ttft_seconds", "median_time_to_first_token_seconds"),
	}
}

func creator(m map[string]any) *string {
	if s := firstString(m, "creator"); s != "" {
		return &s
	}
	if mc, ok := m["model_creator"].(map[string]any); ok {
		if s := firstString(mc, "name"); s != "" {
			return &s
		}
	}
	return nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// firstNumber prefers the flat key on the entry and falls back to nestedKey inside nested.
func firstNumber(m, nested map[string]any, flatKey, nestedKey string) *float64 {
	if v, ok := m[flatKey].(float64); ok {
		return &v
	}
	if v, ok := m[nestedKey].(float64); ok {
		return &v
	}
	if nested != nil {
		if v, ok := nested[nestedKey].(float64); ok {
			return &v
		}
	}
	return nil
}
