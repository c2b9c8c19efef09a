package scanner

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"InsightFlow/internal/domain"
)

// Request carries all parameters required to execute a scan.
type Request struct {
	Now     time.Time
	Source  string
	URL     string
	Options map[string]string
}

// IntOption reads a positive integer option, falling back to def.
func (r Request) IntOption(key string, def int) int {
	raw, ok := r.Options[key]
	if !ok {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// Scanner captures a single strategy implementation (RSS, Hacker News, newsletter).
type Scanner interface {
	Name() string
	Scan(ctx context.Context, req Request) ([]domain.Item, error)
}

// Registry keeps a mapping from scanner names to their implementations.
type Registry struct {
	scanners map[string]Scanner
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{scanners: map[string]Scanner{}}
}

// Register adds or replaces a scanner implementation.
func (r *Registry) Register(scanner Scanner) {
	if r.scanners == nil {
		r.scanners = map[string]Scanner{}
	}
	r.scanners[scanner.Name()] = scanner
}

// Resolve returns a scanner by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Scanner, error) {
	if scanner, ok := r.scanners[name]; ok {
		return scanner, nil
	}
	return nil, fmt.Errorf("scanner %s is not registered", name)
}
