package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"InsightFlow/internal/domain"
	"InsightFlow/internal/ports"
	"InsightFlow/internal/relevance"
	"InsightFlow/internal/seen"
)

// ItemFilter narrows fresh items before they are scored.
type ItemFilter interface {
	Filter(items []domain.Item) []domain.Item
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
// Issues, Documents, Notifier, Filter and Models are optional.
type PipelineDeps struct {
	Source    ports.ItemSource
	Filter    ItemFilter
	Scorer    ports.Scorer
	Seen      ports.SeenStore
	Archive   ports.Archive
	Issues    ports.IssueTracker
	Documents ports.DocumentStore
	Notifier  ports.Notifier
	Models    CatalogTracker
	Logger    *slog.Logger
}

// RunConfig carries everything that varies per run.
type RunConfig struct {
	DryRun     bool
	Now        time.Time
	Thresholds relevance.Thresholds
}

// Report summarizes one run.
type Report struct {
	RunID          string
	Date           string
	DryRun         bool
	Scraped        int
	New            int
	Kept           int
	Notable        int
	ArchivePath    string
	Issues         int
	Documents      int
	ModelDocuments int
	Models         domain.ModelUpdates
	Notified       bool
	Stages         []Stage
}

// Pipeline implements the daily collection workflow.
type Pipeline struct {
	source    ports.ItemSource
	filter    ItemFilter
	scorer    ports.Scorer
	seen      ports.SeenStore
	archive   ports.Archive
	issues    ports.IssueTracker
	documents ports.DocumentStore
	notifier  ports.Notifier
	models    CatalogTracker
	logger    *slog.Logger
	newRunID  func() string
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	return &Pipeline{
		source:    deps.Source,
		filter:    deps.Filter,
		scorer:    deps.Scorer,
		seen:      deps.Seen,
		archive:   deps.Archive,
		issues:    deps.Issues,
		documents: deps.Documents,
		notifier:  deps.Notifier,
		models:    deps.Models,
		logger:    deps.Logger,
		newRunID:  func() string { return uuid.NewString() },
	}
}

type run struct {
	*Pipeline
	cfg    RunConfig
	report Report
	log    *slog.Logger
}

// Run executes one pass: scrape, dedupe, score, persist, then side effects.
// The archive and seen-set are written before any outward call, so a failure
// in a later stage never causes the same items to be delivered twice.
func (p *Pipeline) Run(ctx context.Context, cfg RunConfig) (Report, error) {
	if p.source == nil || p.seen == nil || p.archive == nil {
		return Report{}, errors.New("pipeline: source, seen store and archive are required")
	}
	if cfg.Now.IsZero() {
		cfg.Now = time.Now()
	}

	r := &run{Pipeline: p, cfg: cfg}
	r.report = Report{
		RunID:  p.newRunID(),
		Date:   cfg.Now.Format(domain.DateLayout),
		DryRun: cfg.DryRun,
	}
	r.log = p.logger
	if r.log == nil {
		r.log = slog.New(slog.DiscardHandler)
	}
	r.log = r.log.With("run_id", r.report.RunID)
	r.log.Info("pipeline started", "date", r.report.Date, "dry_run", cfg.DryRun)

	if err := r.execute(ctx); err != nil {
		r.fail(ctx, err)
		return r.report, err
	}

	r.log.Info("pipeline finished",
		"new", r.report.New,
		"kept", r.report.Kept,
		"notable", r.report.Notable,
		"issues", r.report.Issues,
		"documents", r.report.Documents,
		"notified", r.report.Notified,
	)
	return r.report, nil
}

func (r *run) execute(ctx context.Context) error {
	// SCRAPE
	items, err := r.source.FetchAll(ctx, r.cfg.Now)
	if err != nil {
		// single sources fail softly inside FetchAll; an error here is a misconfiguration
		return r.stageFailed(StageScrape, KindFatal, err)
	}
	r.mark(StageScrape)
	r.report.Scraped = len(items)

	// DEDUPE
	prior := r.seen.Load(ctx)
	fresh, updated := seen.FilterNew(items, prior)
	r.mark(StageDedupe)
	r.report.New = len(fresh)
	r.log.Info("deduplicated", "scraped", len(items), "new", len(fresh), "seen", prior.Len())

	// SCORE_FILTER
	kept := r.scoreAndFilter(ctx, fresh)
	r.mark(StageScoreFilter)
	r.report.Kept = len(kept)
	notable := domain.NotableItems(kept)
	r.report.Notable = len(notable)

	// PERSIST_ARCHIVE and PERSIST_SEEN run whenever something new arrived,
	// even if nothing survived scoring.
	if len(fresh) > 0 {
		path, err := r.archive.Append(ctx, r.cfg.Now, kept)
		if err != nil {
			return r.stageFailed(StagePersistArchive, KindStorage, err)
		}
		r.report.ArchivePath = path
		r.mark(StagePersistArchive)

		if err := r.seen.Save(ctx, updated); err != nil {
			return r.stageFailed(StagePersistSeen, KindStorage, err)
		}
		r.mark(StagePersistSeen)
	}

	if len(fresh) == 0 {
		r.log.Info("no new items")
	}

	// ISSUES
	if r.sideEffects() && r.issues != nil && len(notable) > 0 {
		n, err := r.issues.CreateIssues(ctx, notable)
		if err != nil {
			return r.stageFailed(StageIssues, KindTransient, err)
		}
		r.report.Issues = n
		r.mark(StageIssues)
	}

	// DOCUMENTS
	if r.sideEffects() && r.documents != nil && len(notable) > 0 {
		n, err := r.documents.SyncItems(ctx, notable)
		if err != nil {
			return r.stageFailed(StageDocuments, KindTransient, err)
		}
		r.report.Documents = n
		r.mark(StageDocuments)
	}

	// CATALOG
	updates, err := r.trackCatalog(ctx)
	if err != nil {
		return err
	}
	r.report.Models = updates

	// MODEL_DOCUMENTS
	if r.sideEffects() && r.documents != nil && !updates.Empty() {
		n, err := r.documents.SyncModelUpdates(ctx, r.report.Date, updates)
		if err != nil {
			return r.stageFailed(StageModelDocuments, KindTransient, err)
		}
		r.report.ModelDocuments = n
		r.mark(StageModelDocuments)
	}

	// NOTIFY
	digest := domain.Digest{Date: r.report.Date, Items: kept, Models: updates}
	if r.sideEffects() && r.notifier != nil && !digest.Empty() {
		if err := r.notifier.PublishDigest(ctx, digest); err != nil {
			return r.stageFailed(StageNotify, KindTransient, err)
		}
		r.report.Notified = true
		r.mark(StageNotify)
	}
	if r.cfg.DryRun {
		r.log.Info("dry run: side effects skipped", "digest_items", len(digest.Items), "model_updates", !updates.Empty())
	}
	return nil
}

func (r *run) scoreAndFilter(ctx context.Context, fresh []domain.Item) []domain.Item {
	if len(fresh) == 0 {
		return nil
	}
	candidates := fresh
	if r.filter != nil {
		candidates = r.filter.Filter(fresh)
		r.log.Info("keyword filter applied", "in", len(fresh), "out", len(candidates))
	}
	if len(candidates) == 0 {
		return nil
	}
	if r.scorer != nil {
		candidates = r.scorer.Score(ctx, candidates)
	}
	return relevance.Classify(candidates, r.cfg.Thresholds)
}

// trackCatalog yields an empty delta when tracking fails; the failure is isolated.
func (r *run) trackCatalog(ctx context.Context) (domain.ModelUpdates, error) {
	if r.models == nil {
		return domain.ModelUpdates{}, nil
	}
	updates, err := r.models.Track(ctx, r.report.Date)
	r.mark(StageCatalog)
	if err != nil {
		return domain.ModelUpdates{}, r.stageFailed(StageCatalog, KindIsolated, err)
	}
	return updates, nil
}

// stageFailed wraps err for stage. Kinds that do not abort are logged and
// swallowed so the run continues.
func (r *run) stageFailed(stage Stage, kind ErrorKind, err error) error {
	se := &StageError{Stage: stage, Kind: kind, Err: err}
	if kind.Aborts() {
		return se
	}
	r.log.Warn("stage failed, continuing", "stage", stage, "kind", kind, "error", err)
	return nil
}

func (r *run) sideEffects() bool {
	return !r.cfg.DryRun
}

func (r *run) mark(stage Stage) {
	r.report.Stages = append(r.report.Stages, stage)
}

func (r *run) fail(ctx context.Context, err error) {
	stage := Stage("unknown")
	var se *StageError
	if errors.As(err, &se) {
		stage = se.Stage
	}
	r.log.Error("pipeline failed", "stage", stage, "error", err)

	if r.cfg.DryRun || r.notifier == nil {
		return
	}
	msg := fmt.Sprintf("Run %s failed at stage %s: %v", r.report.RunID, stage, err)
	if nErr := r.notifier.PublishFailure(ctx, msg); nErr != nil {
		r.log.Error("failure notification not delivered", "error", nErr)
	}
}
