// Package session implements SessionRegistry (an in-memory store) and
// the SessionCoordinator that wires ingress, the arbiter, and a
// BeatScoreFollower together.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/hammamikhairi/pianopractice/internal/domain"
	"github.com/hammamikhairi/pianopractice/internal/logger"
)

var _ domain.SessionRegistry = (*MemoryRegistry)(nil)

// MemoryRegistry is an in-memory SessionRegistry. Safe for concurrent
// access.
type MemoryRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*domain.SessionInfo
	log      *logger.Logger
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry(log *logger.Logger) *MemoryRegistry {
	return &MemoryRegistry{
		sessions: make(map[string]*domain.SessionInfo),
		log:      log,
	}
}

// Register adds a new session. Returns domain.ErrAlreadyExists if the
// ID is already registered.
func (r *MemoryRegistry) Register(ctx context.Context, info *domain.SessionInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[info.ID]; exists {
		return domain.ErrAlreadyExists
	}
	r.sessions[info.ID] = info
	r.log.Debug("registered session %s (exercise=%s)", info.ID, info.ExerciseName)
	return nil
}

// Lookup retrieves a session by ID.
func (r *MemoryRegistry) Lookup(ctx context.Context, id string) (*domain.SessionInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return info, nil
}

// Update overwrites a session's stored info.
func (r *MemoryRegistry) Update(ctx context.Context, info *domain.SessionInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[info.ID]; !ok {
		return domain.ErrNotFound
	}
	info.UpdatedAt = time.Now()
	r.sessions[info.ID] = info
	return nil
}

// Unregister removes a session by ID.
func (r *MemoryRegistry) Unregister(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.sessions, id)
	r.log.Debug("unregistered session %s", id)
	return nil
}

// ListActive returns every session not in a torn-down or completed
// state.
func (r *MemoryRegistry) ListActive(ctx context.Context) ([]*domain.SessionInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.SessionInfo
	for _, info := range r.sessions {
		if info.Status == domain.SessionActive || info.Status == domain.SessionPaused {
			out = append(out, info)
		}
	}
	return out, nil
}
