package exercise

import (
	"context"
	"testing"

	"github.com/hammamikhairi/pianopractice/internal/domain"
	"github.com/hammamikhairi/pianopractice/internal/logger"
)

func TestMemorySourceListAndGet(t *testing.T) {
	src := NewMemorySource(logger.New(logger.LevelOff, nil))

	names, err := src.List(context.Background())
	if err != nil || len(names) == 0 {
		t.Fatalf("expected seeded exercises, got %v, err %v", names, err)
	}

	ex, err := src.Get(context.Background(), "c-major-scale")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ex.Groups) != 8 {
		t.Errorf("expected 8 groups, got %d", len(ex.Groups))
	}
}

func TestMemorySourceGetNotFound(t *testing.T) {
	src := NewMemorySource(logger.New(logger.LevelOff, nil))
	if _, err := src.Get(context.Background(), "missing"); err != domain.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetReturnsIndependentCopies(t *testing.T) {
	src := NewMemorySource(logger.New(logger.LevelOff, nil))

	a, _ := src.Get(context.Background(), "c-major-scale")
	a.Groups[0].Status = domain.GroupCorrect

	b, _ := src.Get(context.Background(), "c-major-scale")
	if b.Groups[0].Status != domain.GroupWaiting {
		t.Error("expected fresh copy unaffected by mutation of a prior copy")
	}
}
