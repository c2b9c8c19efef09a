package scanner

import (
	"context"
	"testing"

	"InsightFlow/internal/domain"
)

type stubScanner struct{ name string }

func (s stubScanner) Name() string { return s.name }

func (s stubScanner) Scan(context.Context, Request) ([]domain.Item, error) { return nil, nil }

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register(stubScanner{name: "rss"})

	if _, err := reg.Resolve("rss"); err != nil {
		t.Fatalf("Resolve(rss): %v", err)
	}
	if _, err := reg.Resolve("missing"); err == nil {
		t.Fatalf("expected error for unknown scanner")
	}
}

func TestRequestIntOption(t *testing.T) {
	t.Parallel()

	req := Request{Options: map[string]string{"top": "12", "bad": "x", "neg": "-1"}}
	if got := req.IntOption("top", 30); got != 12 {
		t.Fatalf("top = %d", got)
	}
	if got := req.IntOption("bad", 30); got != 30 {
		t.Fatalf("bad = %d", got)
	}
	if got := req.IntOption("neg", 30); got != 30 {
		t.Fatalf("neg = %d", got)
	}
	if got := req.IntOption("missing", 30); got != 30 {
		t.Fatalf("missing = %d", got)
	}
}
