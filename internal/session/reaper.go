package session

import (
	"context"
	"sync"
	"time"

	"github.com/hammamikhairi/pianopractice/internal/domain"
	"github.com/hammamikhairi/pianopractice/internal/logger"
)

// ReaperOption configures a Reaper.
type ReaperOption func(*Reaper)

// WithTickInterval sets how often the reaper scans the registry.
func WithTickInterval(d time.Duration) ReaperOption {
	return func(r *Reaper) { r.tickInterval = d }
}

// WithIdleTimeout sets how long a session may go without an
// UpdatedAt change before the reaper unregisters it.
func WithIdleTimeout(d time.Duration) ReaperOption {
	return func(r *Reaper) { r.idleTimeout = d }
}

// Reaper runs in the background and unregisters sessions that have
// stopped sending audio for longer than idleTimeout — a disconnected
// WebSocket client, a crashed debug dashboard, or a mic stream nobody
// closed cleanly.
type Reaper struct {
	registry     domain.SessionRegistry
	log          *logger.Logger
	tickInterval time.Duration
	idleTimeout  time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// NewReaper creates a reaper bound to the given registry.
func NewReaper(registry domain.SessionRegistry, log *logger.Logger, opts ...ReaperOption) *Reaper {
	r := &Reaper{
		registry:     registry,
		log:          log,
		tickInterval: 30 * time.Second,
		idleTimeout:  5 * time.Minute,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start begins the background sweep loop. Non-blocking.
func (r *Reaper) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		r.log.Warn("reaper already running")
		return
	}

	childCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	go r.loop(childCtx)
}

// Stop halts the sweep loop.
func (r *Reaper) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running && r.cancel != nil {
		r.cancel()
		r.running = false
	}
}

func (r *Reaper) loop(ctx context.Context) {
	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	sessions, err := r.registry.ListActive(ctx)
	if err != nil {
		r.log.Warn("reaper: list active failed: %v", err)
		return
	}

	now := time.Now()
	for _, info := range sessions {
		if now.Sub(info.UpdatedAt) < r.idleTimeout {
			continue
		}
		if err := r.registry.Unregister(ctx, info.ID); err != nil {
			r.log.Warn("reaper: unregister %s failed: %v", info.ID, err)
			continue
		}
		r.log.Info("reaper: reclaimed idle session %s (idle %s)", info.ID, now.Sub(info.UpdatedAt).Round(time.Second))
	}
}
