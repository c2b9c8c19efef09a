package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"InsightFlow/internal/delta"
	"InsightFlow/internal/domain"
	"InsightFlow/internal/ports"
)

// CatalogTracker records today's catalog and reports what changed since the prior snapshot.
type CatalogTracker interface {
	Track(ctx context.Context, date string) (domain.ModelUpdates, error)
}

// ModelTracker stores catalog snapshots and diffs them day over day.
type ModelTracker struct {
	catalog ports.CatalogSource
	store   ports.SnapshotStore
	opts    delta.Options
	logger  *slog.Logger
}

var _ CatalogTracker = (*ModelTracker)(nil)

// NewModelTracker combines a catalog source with its snapshot store.
func NewModelTracker(catalog ports.CatalogSource, store ports.SnapshotStore, opts delta.Options, logger *slog.Logger) *ModelTracker {
	return &ModelTracker{catalog: catalog, store: store, opts: opts, logger: logger}
}

// Track fetches the catalog, upserts it under date and computes the delta
// against the latest snapshot strictly before date. A failed fetch or a
// failed prior read counts as empty. A failed upsert writes nothing and the
// delta is taken from the fetched rows instead.
func (t *ModelTracker) Track(ctx context.Context, date string) (domain.ModelUpdates, error) {
	rows, err := t.catalog.FetchCatalog(ctx)
	if err != nil {
		t.log(slog.LevelWarn, "catalog fetch failed, treating as empty", "error", err)
		rows = nil
	}

	var today []domain.ModelSnapshot
	if len(rows) > 0 {
		n, err := t.store.UpsertRows(ctx, rows, date)
		if err != nil {
			t.log(slog.LevelWarn, "snapshot upsert failed, diffing the fetched catalog", "date", date, "error", err)
			today = fetchedSnapshot(rows, date)
		} else {
			t.log(slog.LevelInfo, "catalog snapshot stored", "date", date, "rows", n)
		}
	}

	if today == nil {
		today, err = t.store.SnapshotOn(ctx, date)
		if err != nil {
			return domain.ModelUpdates{}, fmt.Errorf("load snapshot %s: %w", date, err)
		}
	}

	prior, err := t.store.LatestSnapshotBefore(ctx, date)
	if err != nil {
		t.log(slog.LevelWarn, "prior snapshot unavailable, treating as empty", "error", err)
		prior = nil
	}
	if len(prior) == 0 {
		t.log(slog.LevelInfo, "no prior snapshot, skipping delta", "date", date)
	}

	updates := delta.Compute(today, prior, t.opts)
	t.log(slog.LevelInfo, "model delta computed",
		"new", len(updates.NewModels),
		"rank", len(updates.RankChanges),
		"price", len(updates.PriceChanges),
	)
	return updates, nil
}

// fetchedSnapshot shapes raw catalog rows like a stored snapshot: valid rows
// only, stamped with date, ordered by model id.
func fetchedSnapshot(rows []domain.ModelSnapshot, date string) []domain.ModelSnapshot {
	out := make([]domain.ModelSnapshot, 0, len(rows))
	for _, r := range rows {
		if !r.Valid() {
			continue
		}
		r.FetchedAt = date
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ModelID < out[j].ModelID })
	return out
}

func (t *ModelTracker) log(level slog.Level, msg string, args ...any) {
	if t.logger != nil {
		t.logger.Log(context.Background(), level, msg, args...)
	}
}
