package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"InsightFlow/internal/config"
)

// Completer turns a prompt into raw model output.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Completion implements Completer against any OpenAI-compatible endpoint
// (Gemini's compatibility layer by default).
type Completion struct {
	model       llms.Model
	temperature float64
}

var _ Completer = (*Completion)(nil)

// NewCompletion builds a client from configuration.
func NewCompletion(cfg config.LLMConfig) (*Completion, error) {
	if cfg.APIKey == "" || cfg.Model == "" {
		return nil, fmt.Errorf("llm client misconfigured")
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
		openai.WithHTTPClient(&http.Client{Timeout: 90 * time.Second}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("init llm client: %w", err)
	}
	return &Completion{model: model, temperature: 0.2}, nil
}

// Complete sends a single user prompt and asks for a JSON answer.
func (c *Completion) Complete(ctx context.Context, prompt string) (string, error) {
	if c == nil || c.model == nil {
		return "", fmt.Errorf("llm client is nil")
	}

	out, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt,
		llms.WithJSONMode(),
		llms.WithTemperature(c.temperature),
	)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return out, nil
}
