package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"InsightFlow/internal/config"
	"InsightFlow/internal/delta"
	"InsightFlow/internal/domain"
	"InsightFlow/internal/infrastructure/github"
	"InsightFlow/internal/infrastructure/llm"
	"InsightFlow/internal/infrastructure/ml"
	"InsightFlow/internal/infrastructure/mongodb"
	"InsightFlow/internal/infrastructure/parser"
	"InsightFlow/internal/infrastructure/scheduler"
	"InsightFlow/internal/infrastructure/storage"
	"InsightFlow/internal/infrastructure/telegram"
	"InsightFlow/internal/logging"
	"InsightFlow/internal/relevance"
	"InsightFlow/internal/scanner"
	"InsightFlow/internal/usecase"
)

const seenFileName = "seen_ids.json"

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	pipeline  *usecase.Pipeline
	snapshots *storage.SnapshotRepository
	mongo     *mongo.Client
}

// New builds the application. It opens the snapshot database and, when a
// MongoDB URI is configured, the document store; Close releases both.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.NewWithFormat(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)
	}
	component := func(name string) *slog.Logger { return baseLogger.With("component", name) }

	registry := scanner.NewRegistry()
	registry.Register(parser.NewRSSScanner(nil, component("scanner.rss")))
	registry.Register(parser.NewHackerNewsScanner(nil, component("scanner.hackernews")))
	registry.Register(parser.NewTLDRScanner(nil, component("scanner.tldr")))
	source := parser.NewStrategySource(registry, cfg.Sources, component("source"))

	var completer llm.Completer
	if cfg.LLM.APIKey != "" {
		completion, err := llm.NewCompletion(cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("llm client: %w", err)
		}
		completer = completion
	} else {
		baseLogger.Warn("llm api key not set, items will not be scored")
	}
	scorer := llm.NewScorer(completer, llm.ScorerOptions{
		BatchSize: cfg.Pipeline.BatchSize,
		Tags:      cfg.Pipeline.Tags,
		Language:  cfg.LLM.Language,
		Pause:     cfg.LLM.BatchPause,
	}, component("scorer"))

	a := &Application{cfg: cfg, logger: baseLogger}

	var tracker usecase.CatalogTracker
	snapshots, err := storage.OpenSnapshotRepository(ctx, cfg.Snapshots.Driver, cfg.Snapshots.DSN)
	if err != nil {
		baseLogger.Warn("snapshot store unavailable, model tracking disabled", "driver", cfg.Snapshots.Driver, "error", err)
		tracker = unavailableTracker{err: fmt.Errorf("snapshot store: %w", err)}
	} else {
		a.snapshots = snapshots
		tracker = usecase.NewModelTracker(
			ml.NewClient(cfg.Catalog, component("catalog")),
			snapshots,
			delta.Options{TopN: cfg.Snapshots.TopN, PriceThreshold: cfg.Snapshots.Threshold()},
			component("models"),
		)
	}

	deps := usecase.PipelineDeps{
		Source:  source,
		Filter:  relevance.NewKeywordFilter(cfg.Pipeline.Keywords, cfg.Pipeline.BypassSources),
		Scorer:  scorer,
		Seen:    storage.NewSeenFile(filepath.Join(cfg.Storage.DataDir, seenFileName), component("seen")),
		Archive: storage.NewDailyArchive(cfg.Storage.DataDir, component("archive")),
		Issues:  github.NewIssueTracker(cfg.GitHub, cfg.Pipeline.MaxIssues, component("github")),
		Models:  tracker,
		Logger:  component("pipeline"),
	}

	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		deps.Notifier = telegram.NewNotifier(cfg.Telegram, component("telegram"))
	} else {
		baseLogger.Warn("telegram not configured, digests will not be sent")
	}

	if cfg.MongoDB.URI != "" {
		client, err := mongodb.Connect(ctx, cfg.MongoDB)
		if err != nil {
			_ = a.Close(context.Background())
			return nil, err
		}
		a.mongo = client
		store, err := mongodb.NewDocumentStore(ctx, client.Database(cfg.MongoDB.Database), cfg.Pipeline.MaxDocuments, component("mongodb"))
		if err != nil {
			_ = a.Close(context.Background())
			return nil, fmt.Errorf("document store: %w", err)
		}
		deps.Documents = store
	}

	a.pipeline = usecase.NewPipeline(deps)
	return a, nil
}

// RunConfig derives the per-run settings from configuration.
func (a *Application) RunConfig(now time.Time) usecase.RunConfig {
	return usecase.RunConfig{
		DryRun: a.cfg.DryRun,
		Now:    now,
		Thresholds: relevance.Thresholds{
			Keep:    a.cfg.Pipeline.RelevanceThreshold,
			Notable: a.cfg.Pipeline.NotableThreshold,
		},
	}
}

// Run performs a single pipeline execution.
func (a *Application) Run(ctx context.Context) (usecase.Report, error) {
	now := time.Now().In(a.cfg.Scheduler.Location())
	return a.pipeline.Run(ctx, a.RunConfig(now))
}

// Schedule runs the pipeline on the configured cron expression until ctx is done.
func (a *Application) Schedule(ctx context.Context) error {
	driver, err := scheduler.NewCronScheduler(
		a.cfg.Scheduler.CronExpression,
		a.cfg.Scheduler.Location(),
		a.logger.With("component", "scheduler"),
	)
	if err != nil {
		return err
	}

	s := usecase.NewScheduler(driver, a.pipeline, a.RunConfig(time.Time{}), a.logger)
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	return s.Stop(stopCtx)
}

// Close releases database connections.
func (a *Application) Close(ctx context.Context) error {
	var errs []error
	if a.mongo != nil {
		if err := a.mongo.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongodb disconnect: %w", err))
		}
	}
	if a.snapshots != nil {
		if err := a.snapshots.Close(); err != nil {
			errs = append(errs, fmt.Errorf("snapshot store close: %w", err))
		}
	}
	return errors.Join(errs...)
}

// unavailableTracker stands in when the snapshot store could not be opened.
// Each run reports the open error at the catalog stage, where it is isolated.
type unavailableTracker struct {
	err error
}

func (u unavailableTracker) Track(context.Context, string) (domain.ModelUpdates, error) {
	return domain.ModelUpdates{}, u.err
}
