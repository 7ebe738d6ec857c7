package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hammamikhairi/pianopractice/internal/detect"
	"github.com/hammamikhairi/pianopractice/internal/domain"
	"github.com/hammamikhairi/pianopractice/internal/follower"
	"github.com/hammamikhairi/pianopractice/internal/harmonic"
	"github.com/hammamikhairi/pianopractice/internal/logger"
	"github.com/hammamikhairi/pianopractice/internal/onset"
	"github.com/hammamikhairi/pianopractice/internal/ring"
)

// Coordinator implements §4.9: for each incoming audio chunk it runs
// the fast path (onset) and slow path (arbiter) concurrently with
// respect to ingress — the slow path's completion need not precede the
// next chunk's arrival. The fast path runs on the caller's goroutine;
// each window's slow path runs on its own goroutine, at most
// SlowPathWorkers at once, and the merge-and-judge step that touches
// the session's merger and follower is serialised by slowMu.
type Coordinator struct {
	id       string
	log      *logger.Logger
	sink     domain.EventSink
	registry domain.SessionRegistry

	scheduler *ring.Scheduler
	onsetDet  *onset.Detector
	arbiter   *detect.Arbiter
	merger    *harmonic.Merger
	follower  *follower.Follower

	mode          detect.Mode
	expectedNames []string
	startedAt     time.Time

	countInOnce  sync.Once
	countInTimer *time.Timer

	slowPathSem chan struct{} // bounds concurrent transcriber invocations
	slowMu      sync.Mutex    // serialises merger + follower updates
}

// Deps bundles the constructed, shared-read-only components a
// coordinator needs — built once by cmd/pianoserver's PipelineContext
// and handed to every session, never constructed lazily per-session
// except for the per-session mutable pieces (scheduler, onset
// detector, follower).
type Deps struct {
	Log             *logger.Logger
	Sink            domain.EventSink
	Registry        domain.SessionRegistry
	Arbiter         *detect.Arbiter
	RingConfig      ring.Config
	OnsetConfig     onset.Config
	ConsensusConfig harmonic.ConsensusConfig
	SlowPathWorkers int
}

// New constructs a session's mutable pipeline state and registers it.
func New(ctx context.Context, id string, exercise *domain.BeatExercise, followerCfg follower.Config, mode detect.Mode, deps Deps) (*Coordinator, error) {
	workers := deps.SlowPathWorkers
	if workers <= 0 {
		workers = 1
	}

	c := &Coordinator{
		id:          id,
		log:         deps.Log.Named("session." + id),
		sink:        deps.Sink,
		registry:    deps.Registry,
		scheduler:   ring.New(deps.RingConfig, deps.Log.Named("ring")),
		onsetDet:    onset.New(deps.OnsetConfig, deps.Log.Named("onset")),
		arbiter:     deps.Arbiter,
		merger:      harmonic.NewMerger(deps.ConsensusConfig),
		mode:        mode,
		startedAt:   time.Now(),
		slowPathSem: make(chan struct{}, workers),
	}

	exerciseName := ""
	if exercise != nil {
		exerciseName = exercise.Name
		c.follower = follower.New(exercise, followerCfg)
		c.expectedNames = collectExpectedNames(exercise)
		c.armCountIn(followerCfg.CountInTimeoutS)
	}

	info := &domain.SessionInfo{
		ID:           id,
		Status:       domain.SessionActive,
		ExerciseName: exerciseName,
		StartedAt:    c.startedAt,
		UpdatedAt:    c.startedAt,
	}
	if err := deps.Registry.Register(ctx, info); err != nil {
		return nil, fmt.Errorf("session: register %s: %w", id, err)
	}
	return c, nil
}

func collectExpectedNames(ex *domain.BeatExercise) []string {
	seen := map[string]bool{}
	var out []string
	for _, g := range ex.Groups {
		for _, n := range g.Notes {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	return out
}

// IngestChunk feeds one PCM chunk through the fast path synchronously
// and dispatches any emitted windows to the slow path asynchronously.
func (c *Coordinator) IngestChunk(ctx context.Context, chunk []float32) error {
	for _, ev := range c.onsetDet.ProcessChunk(chunk) {
		c.emitOnset(ctx, ev)
	}

	windows := c.scheduler.AddChunk(chunk)
	for _, w := range windows {
		c.dispatchSlowPath(ctx, w)
	}

	if err := c.touchRegistry(ctx); err != nil {
		return err
	}
	return nil
}

func (c *Coordinator) touchRegistry(ctx context.Context) error {
	info, err := c.registry.Lookup(ctx, c.id)
	if err != nil {
		return err
	}
	info.WindowCount++
	return c.registry.Update(ctx, info)
}

// dispatchSlowPath runs the arbiter off the ingress goroutine, bounded
// by slowPathSem so a burst of windows can't unbound the worker count.
// The completion order relative to subsequent chunks is intentionally
// not guaranteed — see §4.9/§5.
func (c *Coordinator) dispatchSlowPath(ctx context.Context, window domain.Window) {
	select {
	case c.slowPathSem <- struct{}{}:
	case <-ctx.Done():
		return
	}

	go func() {
		defer func() { <-c.slowPathSem }()
		c.runSlowPath(ctx, window)
	}()
}

func (c *Coordinator) runSlowPath(ctx context.Context, window domain.Window) {
	result := c.arbiter.Detect(ctx, window, c.mode, c.expectedNames)

	// The arbiter already ran the harmonic filter over its raw
	// detections before returning; only cross-window consensus merging
	// remains as this package's responsibility.
	notes, _ := result.Raw.([]domain.NoteEvent)
	c.slowMu.Lock()
	defer c.slowMu.Unlock()
	fresh := c.merger.Merge(notes)

	for _, n := range fresh {
		c.emitNote(ctx, n, result.DetectorUsed)
		if c.follower != nil {
			j := c.follower.ProcessDetection(n.NoteName, domain.MIDIToFreq(n.Pitch), n.Confidence, n.Onset)
			c.emitJudgement(ctx, j)
		}
	}
}

func (c *Coordinator) emitOnset(ctx context.Context, ev domain.OnsetEvent) {
	c.emit(ctx, "onset_detected", ev)
}

func (c *Coordinator) emitNote(ctx context.Context, n domain.NoteEvent, detector domain.DetectorTag) {
	c.emit(ctx, "note_detected", struct {
		domain.NoteEvent
		Detector domain.DetectorTag
	}{n, detector})
}

func (c *Coordinator) emitJudgement(ctx context.Context, j follower.Judgement) {
	c.emit(ctx, "judgement", j)
}

func (c *Coordinator) emit(ctx context.Context, eventType string, payload any) {
	ev := domain.EventEnvelope{
		Type:      eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	}
	if err := c.sink.Emit(ctx, ev); err != nil {
		c.log.Warn("emit %s failed: %v", eventType, err)
	}
}

// Close tears the session down and removes it from the registry.
func (c *Coordinator) Close(ctx context.Context) error {
	if c.countInTimer != nil {
		c.countInTimer.Stop()
	}
	info, err := c.registry.Lookup(ctx, c.id)
	if err == nil {
		info.Status = domain.SessionTornDown
		_ = c.registry.Update(ctx, info)
	}
	return c.registry.Unregister(ctx, c.id)
}

// armCountIn schedules the 6s count-in fallback (§5): if the client
// never sends an explicit count_in_complete control message, the
// follower's clock auto-starts after timeoutS seconds so a forgotten
// or dropped signal can't leave the exercise stuck accepting nothing
// but expiries. timeoutS <= 0 falls back to the follower's own 6s
// default. A no-op if no exercise is attached.
func (c *Coordinator) armCountIn(timeoutS float64) {
	if c.follower == nil {
		return
	}
	if timeoutS <= 0 {
		timeoutS = 6
	}
	c.countInTimer = time.AfterFunc(time.Duration(timeoutS*float64(time.Second)), c.CountInComplete)
}

// CountInComplete starts the follower's clock, anchored at the
// session's current elapsed time so groups are judged relative to the
// moment counting-in actually finished, not the moment the session was
// constructed. Idempotent: only the first caller — whichever arrives
// first between the client's count_in_complete message and the 6s
// fallback timer — takes effect.
func (c *Coordinator) CountInComplete() {
	c.countInOnce.Do(func() {
		if c.countInTimer != nil {
			c.countInTimer.Stop()
		}
		if c.follower != nil {
			c.follower.Start(c.ElapsedS())
		}
	})
}

// ElapsedS returns the wall-clock seconds since this session started —
// the same clock basis the transport binding should use for control
// messages (replay, tempo change, test notes) that need a "now"
// timestamp but don't carry one of their own.
func (c *Coordinator) ElapsedS() float64 {
	return time.Since(c.startedAt).Seconds()
}

// ReplayLastBars re-anchors the follower to replay the last n bars, as
// of the caller's current session-clock reading. A no-op if no
// exercise is attached to this session.
func (c *Coordinator) ReplayLastBars(n int, nowS float64) {
	if c.follower != nil {
		c.follower.ReplayLastBars(n, nowS)
	}
}

// SetTempoMultiplier adjusts playback tempo and returns the clamped
// value actually applied. Returns 1.0 if no exercise is attached.
func (c *Coordinator) SetTempoMultiplier(m float64) float64 {
	if c.follower == nil {
		return 1.0
	}
	return c.follower.SetTempoMultiplier(m)
}

// Progress returns the current exercise progress, or the zero value if
// no exercise is attached.
func (c *Coordinator) Progress() follower.Progress {
	if c.follower == nil {
		return follower.Progress{}
	}
	return c.follower.GetProgress()
}

// InjectTestNote feeds a synthetic detection straight into the
// follower, bypassing onset/pitch detection entirely — the debug
// test_note control message exists for integration testing a client
// without a microphone.
func (c *Coordinator) InjectTestNote(ctx context.Context, noteName string, tsS float64) {
	if c.follower == nil {
		return
	}
	pitch, err := domain.NoteNameToMIDI(noteName)
	if err != nil {
		c.log.Warn("test_note: unknown note name %q", noteName)
		return
	}
	j := c.follower.ProcessDetection(noteName, domain.MIDIToFreq(pitch), 1.0, tsS)
	c.emitJudgement(ctx, j)
}
