// Package follower implements §4.7: the BeatScoreFollower state
// machine that compares live detections against an expected score,
// tracks timing, and adapts tempo to the player's accuracy.
package follower

import (
	"fmt"
	"sync"

	"github.com/hammamikhairi/pianopractice/internal/domain"
)

// Config tunes lookahead and tolerance defaults; the exercise's own
// per-group tolerances still take precedence once loaded.
type Config struct {
	LookaheadGroups     int
	FrequencyToleranceHz float64
	PracticeMode        bool // metronome off: timing gates disabled

	// CountInTimeoutS bounds how long a caller may wait before starting
	// the clock (Start) once a session has been constructed. The
	// follower itself doesn't enforce this — it only recomputes the
	// default so callers that arm their own count-in timer agree with
	// it — the session coordinator is what actually schedules Start.
	CountInTimeoutS float64
}

func (c Config) withDefaults() Config {
	if c.LookaheadGroups <= 0 {
		c.LookaheadGroups = 2
	}
	if c.FrequencyToleranceHz <= 0 {
		c.FrequencyToleranceHz = 15
	}
	if c.CountInTimeoutS <= 0 {
		c.CountInTimeoutS = 6
	}
	return c
}

// Action is the outcome of process_detection: accept, reject, or ignore.
type Action string

const (
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
	ActionIgnore Action = "ignore"
)

// TimingStatus classifies a detection's timing relative to its group's
// expected time.
type TimingStatus string

const (
	TimingOnTime TimingStatus = "on_time"
	TimingEarly  TimingStatus = "early"
	TimingLate   TimingStatus = "late"
)

// Judgement is the result of process_detection.
type Judgement struct {
	Matched            bool
	FeedbackString     string
	AdjustedConfidence float64
	Action             Action
	TimingStatus       TimingStatus
	TimingErrorMs      float64
	GroupPosition      int
	GroupTotal         int
	ExpectedNotes      []string
}

// decision is one historical attempt, kept for tempo adaptation.
type decision struct {
	barIndex     int
	accepted     bool
	onTime       bool
}

// snapshot captures the exercise's original timing vectors at
// construction, so tempo multipliers can always be recomputed from a
// stable baseline instead of compounding rounding error.
type snapshot struct {
	expectedTimeS    []float64
	timingToleranceS []float64
	timingMaxS       []float64
}

// Follower owns a mutable BeatExercise and the live session clock.
type Follower struct {
	mu sync.Mutex

	cfg      Config
	exercise *domain.BeatExercise
	orig     snapshot

	startTimeS      float64
	cursor          int
	tempoMultiplier float64

	history       []decision
	goodBarStreak int
}

// New constructs a follower over exercise, bound to the given config.
// The exercise is not started until Start is called.
func New(exercise *domain.BeatExercise, cfg Config) *Follower {
	f := &Follower{
		cfg:             cfg.withDefaults(),
		exercise:        exercise,
		tempoMultiplier: 1.0,
	}
	f.orig = snapshot{
		expectedTimeS:    make([]float64, len(exercise.Groups)),
		timingToleranceS: make([]float64, len(exercise.Groups)),
		timingMaxS:       make([]float64, len(exercise.Groups)),
	}
	for i, g := range exercise.Groups {
		f.orig.expectedTimeS[i] = g.ExpectedTimeS
		f.orig.timingToleranceS[i] = g.TimingToleranceS
		f.orig.timingMaxS[i] = g.TimingMaxS
	}
	return f
}

// Start anchors the session clock at startTimeS (the caller's absolute
// session-clock origin, typically 0).
func (f *Follower) Start(startTimeS float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startTimeS = startTimeS
	f.cursor = 0
	for _, g := range f.exercise.Groups {
		g.Status = domain.GroupWaiting
		g.MatchedNotes = make(domain.NoteMultiset)
		g.DetectedAtS = nil
		g.DetectedConfidence = nil
	}
	f.history = nil
	f.goodBarStreak = 0
}

// expireLocked runs automatic expiry for the earliest unresolved
// group, repeatedly, given the current elapsed time e. In practice
// mode nothing expires; only already-resolved groups are skipped.
// Caller must hold f.mu.
func (f *Follower) expireLocked(e float64) {
	for f.cursor < len(f.exercise.Groups) {
		g := f.exercise.Groups[f.cursor]
		if g.Status == domain.GroupCorrect || g.Status == domain.GroupMissed {
			f.cursor++
			continue
		}
		if !f.cfg.PracticeMode && e > g.ExpectedTimeS+g.TimingMaxS {
			g.Status = domain.GroupMissed
			f.history = append(f.history, decision{barIndex: g.BarIndex, accepted: false})
			f.cursor++
			continue
		}
		break
	}
}

// ProcessDetection implements process_detection. A completed exercise
// or a detection timestamped before the session clock started is a
// score-follower invariant violation (§7): it returns action=ignore
// and leaves all state untouched, rather than being clamped and fed
// into expiry/matching.
func (f *Follower) ProcessDetection(noteName string, freqHz, confidence float64, tsS float64) Judgement {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cursor >= len(f.exercise.Groups) {
		return Judgement{
			FeedbackString: "Exercise complete!",
			Action:         ActionIgnore,
		}
	}
	if tsS < f.startTimeS {
		return Judgement{
			FeedbackString: "ignored: detection precedes session start",
			Action:         ActionIgnore,
		}
	}

	e := tsS - f.startTimeS
	f.expireLocked(e)

	candidates := f.candidateGroupsLocked(noteName)
	if len(candidates) == 0 {
		return f.rejectLocked(confidence, 0)
	}

	for _, idx := range candidates {
		g := f.exercise.Groups[idx]
		pos := noteIndexInGroup(g, noteName)
		if pos < 0 {
			continue
		}

		if pos < len(g.Frequencies) && f.cfg.FrequencyToleranceHz > 0 && freqHz > 0 {
			if absF(freqHz-g.Frequencies[pos]) > f.cfg.FrequencyToleranceHz {
				continue
			}
		}

		delta := e - g.ExpectedTimeS
		if !f.cfg.PracticeMode {
			if absF(delta) > g.TimingMaxS {
				continue
			}
		}

		return f.acceptLocked(g, idx, noteName, confidence, e, delta)
	}

	return f.rejectLocked(confidence, 0)
}

// candidateGroupsLocked returns indices of the cursor group plus the
// next lookahead_groups groups, filtered to WAITING/PARTIAL groups
// that still need noteName.
func (f *Follower) candidateGroupsLocked(noteName string) []int {
	var out []int
	limit := f.cursor + f.cfg.LookaheadGroups
	for i := f.cursor; i <= limit && i < len(f.exercise.Groups); i++ {
		g := f.exercise.Groups[i]
		if g.Status != domain.GroupWaiting && g.Status != domain.GroupPartial {
			continue
		}
		want := g.NotesMultiset()
		if want.Count(noteName) > g.MatchedNotes.Count(noteName) {
			out = append(out, i)
		}
	}
	return out
}

func noteIndexInGroup(g *domain.ExpectedGroup, noteName string) int {
	for i, n := range g.Notes {
		if domain.NamesEqual(n, noteName) {
			return i
		}
	}
	return -1
}

func (f *Follower) acceptLocked(g *domain.ExpectedGroup, idx int, noteName string, confidence, e, delta float64) Judgement {
	g.MatchedNotes.Add(noteName)
	detectedAt := e
	g.DetectedAtS = &detectedAt
	g.DetectedConfidence = &confidence

	if g.IsFullyMatched() {
		g.Status = domain.GroupCorrect
		if idx == f.cursor {
			f.cursor++
		}
	} else {
		g.Status = domain.GroupPartial
	}

	timing := TimingOnTime
	onTime := true
	switch {
	case absF(delta) <= g.TimingToleranceS:
		timing = TimingOnTime
	case delta < 0:
		timing = TimingEarly
		onTime = false
	default:
		timing = TimingLate
		onTime = false
	}

	f.history = append(f.history, decision{barIndex: g.BarIndex, accepted: true, onTime: onTime})

	return Judgement{
		Matched:            true,
		FeedbackString:     fmt.Sprintf("matched %s (%s)", noteName, timing),
		AdjustedConfidence: confidence,
		Action:             ActionAccept,
		TimingStatus:       timing,
		TimingErrorMs:      delta * 1000,
		GroupPosition:      g.MatchedNotes.Total(),
		GroupTotal:         g.NotesMultiset().Total(),
		ExpectedNotes:      g.Notes,
	}
}

func (f *Follower) rejectLocked(confidence float64, groupTotal int) Judgement {
	var expected []string
	if f.cursor < len(f.exercise.Groups) {
		expected = f.exercise.Groups[f.cursor].Notes
	}
	return Judgement{
		Matched:            false,
		FeedbackString:     "no match",
		AdjustedConfidence: confidence * 0.3,
		Action:             ActionReject,
		ExpectedNotes:      expected,
	}
}

func absF(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
