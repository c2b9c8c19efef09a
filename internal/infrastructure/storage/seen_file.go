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

	"github.com/google/renameio/v2"

	"InsightFlow/internal/ports"
	"InsightFlow/internal/seen"
)

// SeenFile persists the seen-set as a sorted JSON array of identity keys.
type SeenFile struct {
	path   string
	logger *slog.Logger
}

var _ ports.SeenStore = (*SeenFile)(nil)

// NewSeenFile binds the store to a file path, e.g. data/seen_ids.json.
func NewSeenFile(path string, logger *slog.Logger) *SeenFile {
	return &SeenFile{path: path, logger: logger}
}

// Load returns the persisted set. A missing file yields an empty set;
// an unreadable or corrupt file is logged and also yields an empty set.
func (s *SeenFile) Load(_ context.Context) seen.Set {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return seen.New()
	}
	if err != nil {
		s.warn("read seen set, starting fresh", "path", s.path, "error", err)
		return seen.New()
	}

	var keys []string
	if err := json.Unmarshal(raw, &keys); err != nil {
		s.warn("decode seen set, starting fresh", "path", s.path, "error", err)
		return seen.New()
	}
	return seen.New(keys...)
}

// Save replaces the file with the full set. The previous content stays
// intact until the new file is complete.
func (s *SeenFile) Save(_ context.Context, set seen.Set) error {
	keys := set.Sorted()
	payload, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return fmt.Errorf("encode seen set: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create seen set dir: %w", err)
	}
	if err := renameio.WriteFile(s.path, append(payload, '\n'), 0o644); err != nil {
		return fmt.Errorf("write seen set: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("seen set saved", "path", s.path, "keys", len(keys))
	}
	return nil
}

func (s *SeenFile) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
