package parser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"InsightFlow/internal/config"
	"InsightFlow/internal/domain"
	"InsightFlow/internal/ports"
	"InsightFlow/internal/scanner"
)

// StrategySource implements ItemSource via registered scanner strategies.
type StrategySource struct {
	registry *scanner.Registry
	sources  []config.SourceConfig
	logger   *slog.Logger
}

var _ ports.ItemSource = (*StrategySource)(nil)

// NewStrategySource wires scanner registry with config-defined sources.
func NewStrategySource(reg *scanner.Registry, sources []config.SourceConfig, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		sources:  sources,
		logger:   log,
	}
}

// FetchAll runs every configured source concurrently and concatenates the
// results in configuration order. A failing source is logged and contributes nothing.
func (s *StrategySource) FetchAll(ctx context.Context, now time.Time) ([]domain.Item, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}

	s.debug("fetch all", "sources", len(s.sources), "now", now.Format(time.RFC3339))

	results := make([][]domain.Item, len(s.sources))
	var wg sync.WaitGroup
	for i, src := range s.sources {
		strategy, err := s.registry.Resolve(src.Scanner)
		if err != nil {
			s.warn("source skipped", "source", src.Name, "error", err)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()

			req := scanner.Request{
				Now:     now,
				Source:  src.Name,
				URL:     src.URL,
				Options: src.Options,
			}
			items, err := strategy.Scan(ctx, req)
			if err != nil {
				s.warn("source failed", "source", src.Name, "scanner", src.Scanner, "error", err)
				return
			}
			for j := range items {
				if items[j].Source == "" {
					items[j].Source = src.Name
				}
			}
			s.debug("source produced items", "source", src.Name, "count", len(items))
			results[i] = items
		}()
	}
	wg.Wait()

	var aggregated []domain.Item
	for _, items := range results {
		aggregated = append(aggregated, items...)
	}

	s.debug("strategy source done", "total_items", len(aggregated))
	return aggregated, nil
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *StrategySource) warn(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
