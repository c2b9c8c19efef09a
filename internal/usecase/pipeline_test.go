package usecase

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"InsightFlow/internal/domain"
	"InsightFlow/internal/logging"
	"InsightFlow/internal/relevance"
	"InsightFlow/internal/seen"
)

type trace struct {
	mu    sync.Mutex
	calls []string
}

func (t *trace) add(call string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, call)
}

func (t *trace) list() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.calls...)
}

func (t *trace) count(call string) int {
	n := 0
	for _, c := range t.list() {
		if c == call {
			n++
		}
	}
	return n
}

type fakeSource struct {
	tr    *trace
	items []domain.Item
	err   error
}

func (f *fakeSource) FetchAll(context.Context, time.Time) ([]domain.Item, error) {
	f.tr.add("fetch")
	return append([]domain.Item(nil), f.items...), f.err
}

type fakeFilter struct{ tr *trace }

func (f *fakeFilter) Filter(items []domain.Item) []domain.Item {
	f.tr.add("filter")
	return items
}

type fakeScorer struct {
	tr     *trace
	scores map[string]float64
}

func (f *fakeScorer) Score(_ context.Context, items []domain.Item) []domain.Item {
	f.tr.add("score")
	for i := range items {
		items[i].RelevanceScore = f.scores[items[i].SourceID]
	}
	return items
}

type fakeSeen struct {
	tr    *trace
	set   seen.Set
	saves int
	err   error
}

func (f *fakeSeen) Load(context.Context) seen.Set {
	f.tr.add("seen.load")
	if f.set == nil {
		return seen.New()
	}
	return f.set.Clone()
}

func (f *fakeSeen) Save(_ context.Context, set seen.Set) error {
	f.tr.add("seen.save")
	if f.err != nil {
		return f.err
	}
	f.saves++
	f.set = set.Clone()
	return nil
}

type fakeArchive struct {
	tr    *trace
	items []domain.Item
	err   error
}

func (f *fakeArchive) Append(_ context.Context, _ time.Time, items []domain.Item) (string, error) {
	f.tr.add("archive")
	if f.err != nil {
		return "", f.err
	}
	f.items = append(f.items, items...)
	return "data/2026/03/10.json", nil
}

type fakeIssues struct {
	tr  *trace
	err error
}

func (f *fakeIssues) CreateIssues(_ context.Context, items []domain.Item) (int, error) {
	f.tr.add("issues")
	return len(items), f.err
}

type fakeDocuments struct{ tr *trace }

func (f *fakeDocuments) SyncItems(_ context.Context, items []domain.Item) (int, error) {
	f.tr.add("documents")
	return len(items), nil
}

func (f *fakeDocuments) SyncModelUpdates(_ context.Context, _ string, u domain.ModelUpdates) (int, error) {
	f.tr.add("model_documents")
	return len(u.NewModels) + len(u.RankChanges) + len(u.PriceChanges), nil
}

type fakeNotifier struct {
	tr       *trace
	err      error
	digests  []domain.Digest
	failures []string
}

func (f *fakeNotifier) PublishDigest(_ context.Context, d domain.Digest) error {
	f.tr.add("notify")
	f.digests = append(f.digests, d)
	return f.err
}

func (f *fakeNotifier) PublishFailure(_ context.Context, msg string) error {
	f.tr.add("failure")
	f.failures = append(f.failures, msg)
	return nil
}

type fakeTracker struct {
	tr      *trace
	updates domain.ModelUpdates
	err     error
}

func (f *fakeTracker) Track(context.Context, string) (domain.ModelUpdates, error) {
	f.tr.add("catalog")
	return f.updates, f.err
}

type fixture struct {
	tr       *trace
	source   *fakeSource
	seen     *fakeSeen
	archive  *fakeArchive
	issues   *fakeIssues
	docs     *fakeDocuments
	notifier *fakeNotifier
	tracker  *fakeTracker
	pipeline *Pipeline
}

func newFixture() *fixture {
	tr := &trace{}
	f := &fixture{
		tr: tr,
		source: &fakeSource{tr: tr, items: []domain.Item{
			{Source: domain.SourceHackerNews, SourceID: "a", Title: "A"},
			{Source: domain.SourceHackerNews, SourceID: "b", Title: "B"},
			{Source: domain.SourceGeekNews, SourceID: "c", Title: "C"},
		}},
		seen:     &fakeSeen{tr: tr},
		archive:  &fakeArchive{tr: tr},
		issues:   &fakeIssues{tr: tr},
		docs:     &fakeDocuments{tr: tr},
		notifier: &fakeNotifier{tr: tr},
		tracker: &fakeTracker{tr: tr, updates: domain.ModelUpdates{
			NewModels: []domain.NewModel{{ModelID: "m", Name: "M"}},
		}},
	}
	f.pipeline = NewPipeline(PipelineDeps{
		Source:    f.source,
		Filter:    &fakeFilter{tr: tr},
		Scorer:    &fakeScorer{tr: tr, scores: map[string]float64{"a": 0.9, "b": 0.7, "c": 0.3}},
		Seen:      f.seen,
		Archive:   f.archive,
		Issues:    f.issues,
		Documents: f.docs,
		Notifier:  f.notifier,
		Models:    f.tracker,
		Logger:    logging.Discard(),
	})
	f.pipeline.newRunID = func() string { return "run-1" }
	return f
}

func runConfig(dryRun bool) RunConfig {
	return RunConfig{
		DryRun:     dryRun,
		Now:        time.Date(2026, time.March, 10, 6, 0, 0, 0, time.UTC),
		Thresholds: relevance.Thresholds{Keep: 0.6, Notable: 0.8},
	}
}

func TestRunStageOrder(t *testing.T) {
	t.Parallel()

	f := newFixture()
	report, err := f.pipeline.Run(context.Background(), runConfig(false))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{
		"fetch", "seen.load", "filter", "score", "archive", "seen.save",
		"issues", "documents", "catalog", "model_documents", "notify",
	}
	if got := f.tr.list(); !reflect.DeepEqual(got, want) {
		t.Fatalf("call order = %v, want %v", got, want)
	}

	wantStages := []Stage{
		StageScrape, StageDedupe, StageScoreFilter, StagePersistArchive, StagePersistSeen,
		StageIssues, StageDocuments, StageCatalog, StageModelDocuments, StageNotify,
	}
	if !reflect.DeepEqual(report.Stages, wantStages) {
		t.Fatalf("stages = %v, want %v", report.Stages, wantStages)
	}

	if report.RunID != "run-1" || report.Date != "2026-03-10" {
		t.Fatalf("unexpected report identity: %+v", report)
	}
	if report.Scraped != 3 || report.New != 3 || report.Kept != 2 || report.Notable != 1 {
		t.Fatalf("unexpected counts: %+v", report)
	}
	if report.Issues != 1 || report.Documents != 1 || report.ModelDocuments != 1 || !report.Notified {
		t.Fatalf("unexpected side-effect counts: %+v", report)
	}

	if f.seen.set.Len() != 3 {
		t.Fatalf("every new key should be marked seen, got %v", f.seen.set.Sorted())
	}
	if len(f.archive.items) != 2 {
		t.Fatalf("archive should hold kept items, got %d", len(f.archive.items))
	}
	digest := f.notifier.digests[0]
	if len(digest.Items) != 2 || digest.Items[0].SourceID != "a" || !digest.Items[0].Notable || len(digest.Models.NewModels) != 1 {
		t.Fatalf("unexpected digest: %+v", digest)
	}
}

func TestRunIsIdempotentAcrossRuns(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.tracker.updates = domain.ModelUpdates{}
	if _, err := f.pipeline.Run(context.Background(), runConfig(false)); err != nil {
		t.Fatalf("first run: %v", err)
	}
	report, err := f.pipeline.Run(context.Background(), runConfig(false))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if report.New != 0 {
		t.Fatalf("second run should see nothing new, got %d", report.New)
	}
	if f.tr.count("issues") != 1 || f.tr.count("notify") != 1 {
		t.Fatalf("side effects repeated: %v", f.tr.list())
	}
}

func TestRunNotifyFailureKeepsSeenSet(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.notifier.err = errors.New("telegram down")

	report, err := f.pipeline.Run(context.Background(), runConfig(false))
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageNotify {
		t.Fatalf("expected notify stage error, got %v", err)
	}
	if !se.Kind.Aborts() {
		t.Fatalf("notify failure should abort")
	}
	if f.seen.saves != 1 || f.seen.set.Len() != 3 {
		t.Fatalf("seen-set should be persisted before notify")
	}
	if report.Notified {
		t.Fatalf("report should not claim delivery")
	}
	if len(f.notifier.failures) != 1 || !strings.Contains(f.notifier.failures[0], "run-1") || !strings.Contains(f.notifier.failures[0], "notify") {
		t.Fatalf("unexpected failure notifications: %v", f.notifier.failures)
	}
}

func TestRunSeenSaveFailureStopsBeforeSideEffects(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.seen.err = errors.New("disk full")

	_, err := f.pipeline.Run(context.Background(), runConfig(false))
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StagePersistSeen || se.Kind != KindStorage {
		t.Fatalf("expected storage error on seen-set, got %v", err)
	}
	for _, call := range []string{"issues", "documents", "catalog", "notify"} {
		if f.tr.count(call) != 0 {
			t.Fatalf("%s ran after a failed seen-set write: %v", call, f.tr.list())
		}
	}
	if f.tr.count("failure") != 1 {
		t.Fatalf("expected a failure notification")
	}
}

func TestRunArchiveFailureIsFatal(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.archive.err = errors.New("read-only fs")

	_, err := f.pipeline.Run(context.Background(), runConfig(false))
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StagePersistArchive {
		t.Fatalf("expected archive stage error, got %v", err)
	}
	if f.tr.count("seen.save") != 0 {
		t.Fatalf("seen-set must not be written when the archive failed")
	}
}

func TestRunDryRunSkipsSideEffects(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.notifier.err = errors.New("must not be called")

	report, err := f.pipeline.Run(context.Background(), runConfig(true))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, call := range []string{"issues", "documents", "model_documents", "notify", "failure"} {
		if f.tr.count(call) != 0 {
			t.Fatalf("dry run performed %s: %v", call, f.tr.list())
		}
	}
	if f.seen.saves != 1 || len(f.archive.items) != 2 {
		t.Fatalf("dry run should still persist seen-set and archive")
	}
	if f.tr.count("catalog") != 1 || len(report.Models.NewModels) != 1 {
		t.Fatalf("dry run should still track the catalog")
	}
	if !report.DryRun {
		t.Fatalf("report should record dry run")
	}
}

func TestRunDryRunFailureSendsNoAlert(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.seen.err = errors.New("disk full")

	if _, err := f.pipeline.Run(context.Background(), runConfig(true)); err == nil {
		t.Fatalf("expected error")
	}
	if f.tr.count("failure") != 0 {
		t.Fatalf("dry run must not send failure notifications")
	}
}

func TestRunCatalogFailureIsIsolated(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.tracker.err = errors.New("catalog db locked")

	report, err := f.pipeline.Run(context.Background(), runConfig(false))
	if err != nil {
		t.Fatalf("catalog failure should not fail the run: %v", err)
	}
	if !report.Models.Empty() || f.tr.count("model_documents") != 0 {
		t.Fatalf("expected no model updates after catalog failure")
	}
	if !report.Notified || len(f.notifier.digests[0].Items) != 2 {
		t.Fatalf("digest should still carry items")
	}
}

func TestRunNoNewItems(t *testing.T) {
	t.Parallel()

	t.Run("model updates still notify", func(t *testing.T) {
		t.Parallel()

		f := newFixture()
		f.seen.set = seen.New("hackernews:a", "hackernews:b", "geeknews:c")

		report, err := f.pipeline.Run(context.Background(), runConfig(false))
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if report.New != 0 {
			t.Fatalf("expected nothing new")
		}
		for _, call := range []string{"score", "archive", "seen.save", "issues", "documents"} {
			if f.tr.count(call) != 0 {
				t.Fatalf("%s ran without new items: %v", call, f.tr.list())
			}
		}
		if f.tr.count("catalog") != 1 || f.tr.count("notify") != 1 {
			t.Fatalf("catalog and model digest expected: %v", f.tr.list())
		}
		if d := f.notifier.digests[0]; len(d.Items) != 0 || len(d.Models.NewModels) != 1 {
			t.Fatalf("unexpected digest: %+v", d)
		}
	})

	t.Run("nothing to say", func(t *testing.T) {
		t.Parallel()

		f := newFixture()
		f.source.items = nil
		f.tracker.updates = domain.ModelUpdates{}

		if _, err := f.pipeline.Run(context.Background(), runConfig(false)); err != nil {
			t.Fatalf("Run: %v", err)
		}
		if f.tr.count("notify") != 0 {
			t.Fatalf("empty digest should not be sent")
		}
	})
}

func TestRunRequiresCoreDependencies(t *testing.T) {
	t.Parallel()

	p := NewPipeline(PipelineDeps{})
	if _, err := p.Run(context.Background(), RunConfig{}); err == nil {
		t.Fatalf("expected error for missing dependencies")
	}
}

func TestStageErrorFormatting(t *testing.T) {
	t.Parallel()

	base := errors.New("boom")
	err := error(&StageError{Stage: StageIssues, Kind: KindTransient, Err: base})
	if !errors.Is(err, base) {
		t.Fatalf("StageError should unwrap")
	}
	if err.Error() != "stage issues (transient): boom" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
	if KindIsolated.Aborts() || !KindStorage.Aborts() {
		t.Fatalf("unexpected abort policy")
	}
}

func TestRunArchivesWhenNothingIsKept(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.pipeline.scorer = &fakeScorer{tr: f.tr, scores: map[string]float64{}}
	f.tracker.updates = domain.ModelUpdates{}

	report, err := f.pipeline.Run(context.Background(), runConfig(true))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.New != 3 || report.Kept != 0 {
		t.Fatalf("unexpected counts: %+v", report)
	}
	if f.tr.count("archive") != 1 || f.seen.saves != 1 {
		t.Fatalf("archive and seen-set should both be written: %v", f.tr.list())
	}
	want := []Stage{StageScrape, StageDedupe, StageScoreFilter, StagePersistArchive, StagePersistSeen, StageCatalog}
	if !reflect.DeepEqual(report.Stages, want) {
		t.Fatalf("stages = %v, want %v", report.Stages, want)
	}
}

func TestRunScrapeFailureIsFatal(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.source.err = errors.New("no scanner registry")

	_, err := f.pipeline.Run(context.Background(), runConfig(false))
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageScrape || se.Kind != KindFatal {
		t.Fatalf("expected fatal scrape error, got %v", err)
	}
	if f.tr.count("seen.load") != 0 || f.tr.count("failure") != 1 {
		t.Fatalf("unexpected calls after scrape failure: %v", f.tr.list())
	}
}
