package session

import (
	"context"
	"testing"

	"github.com/hammamikhairi/pianopractice/internal/domain"
	"github.com/hammamikhairi/pianopractice/internal/logger"
)

func TestRegistryRegisterLookup(t *testing.T) {
	r := NewMemoryRegistry(logger.New(logger.LevelOff, nil))
	ctx := context.Background()

	info := &domain.SessionInfo{ID: "s1", Status: domain.SessionActive}
	if err := r.Register(ctx, info); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := r.Lookup(ctx, "s1")
	if err != nil || got.ID != "s1" {
		t.Fatalf("lookup failed: %v, %+v", err, got)
	}
}

func TestRegistryDuplicateRegisterFails(t *testing.T) {
	r := NewMemoryRegistry(logger.New(logger.LevelOff, nil))
	ctx := context.Background()

	r.Register(ctx, &domain.SessionInfo{ID: "dup"})
	if err := r.Register(ctx, &domain.SessionInfo{ID: "dup"}); err != domain.ErrAlreadyExists {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestRegistryListActiveExcludesTornDown(t *testing.T) {
	r := NewMemoryRegistry(logger.New(logger.LevelOff, nil))
	ctx := context.Background()

	r.Register(ctx, &domain.SessionInfo{ID: "a", Status: domain.SessionActive})
	r.Register(ctx, &domain.SessionInfo{ID: "b", Status: domain.SessionTornDown})

	active, err := r.ListActive(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(active) != 1 || active[0].ID != "a" {
		t.Fatalf("expected only session 'a' active, got %+v", active)
	}
}

func TestRegistryUnregisterNotFound(t *testing.T) {
	r := NewMemoryRegistry(logger.New(logger.LevelOff, nil))
	if err := r.Unregister(context.Background(), "missing"); err != domain.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
