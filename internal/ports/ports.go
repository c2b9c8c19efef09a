package ports

import (
	"context"
	"time"

	"InsightFlow/internal/domain"
	"InsightFlow/internal/seen"
)

// ItemSource pulls fresh items from every configured upstream.
type ItemSource interface {
	FetchAll(ctx context.Context, now time.Time) ([]domain.Item, error)
}

// Scorer assigns relevance, summaries and tags in place. It never fails;
// items it could not score keep their zero relevance.
type Scorer interface {
	Score(ctx context.Context, items []domain.Item) []domain.Item
}

// SeenStore persists the set of identity keys already delivered.
type SeenStore interface {
	Load(ctx context.Context) seen.Set
	Save(ctx context.Context, set seen.Set) error
}

// Archive appends processed items to the per-day history.
type Archive interface {
	Append(ctx context.Context, date time.Time, items []domain.Item) (string, error)
}

// SnapshotStore keeps the catalog time series keyed by (model_id, fetched_at).
type SnapshotStore interface {
	UpsertRows(ctx context.Context, rows []domain.ModelSnapshot, date string) (int, error)
	LatestSnapshotBefore(ctx context.Context, date string) ([]domain.ModelSnapshot, error)
	SnapshotOn(ctx context.Context, date string) ([]domain.ModelSnapshot, error)
}

// CatalogSource fetches the current AI model catalog.
type CatalogSource interface {
	FetchCatalog(ctx context.Context) ([]domain.ModelSnapshot, error)
}

// IssueTracker files issues for notable items.
type IssueTracker interface {
	CreateIssues(ctx context.Context, items []domain.Item) (int, error)
}

// DocumentStore mirrors items and model deltas into a browsable database.
type DocumentStore interface {
	SyncItems(ctx context.Context, items []domain.Item) (int, error)
	SyncModelUpdates(ctx context.Context, date string, updates domain.ModelUpdates) (int, error)
}

// Notifier streams digests and failure alerts to a chat channel.
type Notifier interface {
	PublishDigest(ctx context.Context, digest domain.Digest) error
	PublishFailure(ctx context.Context, message string) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
