package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"InsightFlow/internal/domain"
	"InsightFlow/internal/ports"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"

	snapshotTable = "model_snapshots"
)

const createSnapshotsSQL = `CREATE TABLE IF NOT EXISTS model_snapshots (
    model_id TEXT NOT NULL,
    name TEXT NOT NULL,
    creator TEXT,
    intelligence_index DOUBLE PRECISION,
    coding_index DOUBLE PRECISION,
    math_index DOUBLE PRECISION,
    speed_index DOUBLE PRECISION,
    price_input DOUBLE PRECISION,
    price_output DOUBLE PRECISION,
    speed_tokens_per_sec DOUBLE PRECISION,
    ttft_seconds DOUBLE PRECISION,
    fetched_at TEXT NOT NULL,
    PRIMARY KEY (model_id, fetched_at)
)`

var snapshotColumns = []string{
	"model_id", "name", "creator",
	"intelligence_index", "coding_index", "math_index", "speed_index",
	"price_input", "price_output", "speed_tokens_per_sec", "ttft_seconds",
	"fetched_at",
}

// SnapshotRepository persists catalog snapshots in SQLite or Postgres.
type SnapshotRepository struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

var _ ports.SnapshotStore = (*SnapshotRepository)(nil)

// NewSnapshotRepository wires a sql.DB opened with the given driver name.
func NewSnapshotRepository(db *sql.DB, driver string) *SnapshotRepository {
	var format sq.PlaceholderFormat = sq.Question
	if driver == DriverPostgres {
		format = sq.Dollar
	}
	return &SnapshotRepository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(format),
	}
}

// OpenSnapshotRepository opens the database, creates the schema and returns the repository.
// For SQLite the parent directory of a file DSN is created first.
func OpenSnapshotRepository(ctx context.Context, driver, dsn string) (*SnapshotRepository, error) {
	switch driver {
	case DriverSQLite:
		if dir := sqliteDir(dsn); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create snapshot dir: %w", err)
			}
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported snapshot driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	repo := NewSnapshotRepository(db, driver)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

func sqliteDir(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return ""
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return ""
	}
	return dir
}

// Close releases the underlying connection pool.
func (r *SnapshotRepository) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// EnsureSchema creates the snapshot table if it does not exist.
func (r *SnapshotRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createSnapshotsSQL); err != nil {
		return fmt.Errorf("create snapshot schema: %w", err)
	}
	return nil
}

// UpsertRows writes rows for date in one transaction, replacing rows that share
// (model_id, fetched_at). Rows without id or name are skipped. On any failure the
// transaction is rolled back and 0 is returned with the error.
func (r *SnapshotRepository) UpsertRows(ctx context.Context, rows []domain.ModelSnapshot, date string) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin snapshot tx: %w", err)
	}

	count := 0
	for _, row := range rows {
		if !row.Valid() {
			continue
		}

		query, args, err := r.upsertQuery(row, date)
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("build upsert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("upsert snapshot %s: %w", row.ModelID, err)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("commit snapshots: %w", err)
	}
	return count, nil
}

func (r *SnapshotRepository) upsertQuery(row domain.ModelSnapshot, date string) (string, []interface{}, error) {
	updates := make([]string, 0, len(snapshotColumns)-2)
	for _, col := range snapshotColumns {
		if col == "model_id" || col == "fetched_at" {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", col, col))
	}

	return r.builder.
		Insert(snapshotTable).
		Columns(snapshotColumns...).
		Values(
			row.ModelID, row.Name, row.Creator,
			row.IntelligenceIndex, row.CodingIndex, row.MathIndex, row.SpeedIndex,
			row.PriceInput, row.PriceOutput, row.SpeedTokensPerSec, row.TTFTSeconds,
			date,
		).
		Suffix("ON CONFLICT (model_id, fetched_at) DO UPDATE SET " + strings.Join(updates, ", ")).
		ToSql()
}

// LatestSnapshotBefore returns every row of the most recent date strictly before date.
// It returns an empty slice when no earlier date exists.
func (r *SnapshotRepository) LatestSnapshotBefore(ctx context.Context, date string) ([]domain.ModelSnapshot, error) {
	query, args, err := r.builder.
		Select("fetched_at").
		Distinct().
		From(snapshotTable).
		Where(sq.Lt{"fetched_at": date}).
		OrderBy("fetched_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build prior date query: %w", err)
	}

	var prior string
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&prior)
	if errors.Is(err, sql.ErrNoRows) {
		return []domain.ModelSnapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query prior date: %w", err)
	}

	return r.SnapshotOn(ctx, prior)
}

// SnapshotOn returns every row stored for date, ordered by model_id.
func (r *SnapshotRepository) SnapshotOn(ctx context.Context, date string) ([]domain.ModelSnapshot, error) {
	query, args, err := r.builder.
		Select(snapshotColumns...).
		From(snapshotTable).
		Where(sq.Eq{"fetched_at": date}).
		OrderBy("model_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build snapshot query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}

	result := make([]domain.ModelSnapshot, 0)
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		result = append(result, snap)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return result, nil
}

func scanSnapshot(rows *sql.Rows) (domain.ModelSnapshot, error) {
	var (
		snap    domain.ModelSnapshot
		creator sql.NullString
		metrics [8]sql.NullFloat64
	)
	err := rows.Scan(
		&snap.ModelID, &snap.Name, &creator,
		&metrics[0], &metrics[1], &metrics[2], &metrics[3],
		&metrics[4], &metrics[5], &metrics[6], &metrics[7],
		&snap.FetchedAt,
	)
	if err != nil {
		return domain.ModelSnapshot{}, err
	}

	if creator.Valid {
		snap.Creator = &creator.String
	}
	targets := []**float64{
		&snap.IntelligenceIndex, &snap.CodingIndex, &snap.MathIndex, &snap.SpeedIndex,
		&snap.PriceInput, &snap.PriceOutput, &snap.SpeedTokensPerSec, &snap.TTFTSeconds,
	}
	for i, m := range metrics {
		if m.Valid {
			v := m.Float64
			*targets[i] = &v
		}
	}
	return snap, nil
}
