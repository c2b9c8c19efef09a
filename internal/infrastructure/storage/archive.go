package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"

	"InsightFlow/internal/domain"
	"InsightFlow/internal/ports"
)

// DailyArchive appends processed items to <root>/YYYY/MM/DD.json.
type DailyArchive struct {
	root   string
	logger *slog.Logger
}

var _ ports.Archive = (*DailyArchive)(nil)

// NewDailyArchive roots the archive at dir.
func NewDailyArchive(dir string, logger *slog.Logger) *DailyArchive {
	return &DailyArchive{root: dir, logger: logger}
}

// PathFor returns the archive file for the given date.
func (a *DailyArchive) PathFor(date time.Time) string {
	return filepath.Join(a.root, date.Format("2006"), date.Format("01"), date.Format("02")+".json")
}

// Append merges items into the day file and returns its path.
// Existing records come first; an unreadable day file is replaced.
func (a *DailyArchive) Append(_ context.Context, date time.Time, items []domain.Item) (string, error) {
	path := a.PathFor(date)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	existing, err := readArchive(path)
	if err != nil {
		if a.logger != nil {
			a.logger.Warn("existing archive unreadable, overwriting", "path", path, "error", err)
		}
		existing = nil
	}

	combined := make([]json.RawMessage, 0, len(existing)+len(items))
	combined = append(combined, existing...)
	for _, it := range items {
		raw, err := json.Marshal(it)
		if err != nil {
			return "", fmt.Errorf("encode item %s: %w", it.IdentityKey(), err)
		}
		combined = append(combined, raw)
	}

	payload, err := json.MarshalIndent(combined, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode archive: %w", err)
	}
	if err := renameio.WriteFile(path, append(payload, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write archive: %w", err)
	}

	if a.logger != nil {
		a.logger.Info("archive updated", "path", path, "added", len(items), "total", len(combined))
	}
	return path, nil
}

// readArchive keeps foreign records verbatim so older item shapes survive a rewrite.
func readArchive(path string) ([]json.RawMessage, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, err
	}
	return records, nil
}
