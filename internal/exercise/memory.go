// Package exercise provides ExerciseSource implementations: an
// in-memory store preloaded with built-in practice exercises.
package exercise

import (
	"context"
	"sort"
	"sync"

	"github.com/hammamikhairi/pianopractice/internal/domain"
	"github.com/hammamikhairi/pianopractice/internal/fingers"
	"github.com/hammamikhairi/pianopractice/internal/logger"
)

var _ domain.ExerciseSource = (*MemorySource)(nil)

// MemorySource holds BeatExercises in memory. Safe for concurrent reads.
type MemorySource struct {
	mu        sync.RWMutex
	exercises map[string]*domain.BeatExercise
	log       *logger.Logger
}

// NewMemorySource creates an exercise source preloaded with built-in
// warm-up exercises.
func NewMemorySource(log *logger.Logger) *MemorySource {
	src := &MemorySource{
		exercises: make(map[string]*domain.BeatExercise),
		log:       log,
	}
	src.seed()
	return src
}

// List returns the names of all available exercises.
func (s *MemorySource) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.exercises))
	for name := range s.exercises {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// Get returns an exercise by name.
func (s *MemorySource) Get(ctx context.Context, name string) (*domain.BeatExercise, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ex, ok := s.exercises[name]
	if !ok {
		s.log.Debug("exercise not found: %s", name)
		return nil, domain.ErrNotFound
	}
	return cloneExercise(ex), nil
}

// Put registers or replaces an exercise, filling in default fingerings
// for groups that have none.
func (s *MemorySource) Put(ex *domain.BeatExercise) {
	fingers.Assign(ex.Groups)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exercises[ex.Name] = ex
}

// cloneExercise returns a deep-enough copy that the BeatScoreFollower
// can mutate group status without corrupting the source's template —
// each session needs its own live copy of the same exercise.
func cloneExercise(ex *domain.BeatExercise) *domain.BeatExercise {
	groups := make([]*domain.ExpectedGroup, len(ex.Groups))
	for i, g := range ex.Groups {
		cp := *g
		cp.Notes = append([]string(nil), g.Notes...)
		cp.Frequencies = append([]float64(nil), g.Frequencies...)
		cp.Fingers = append([]int(nil), g.Fingers...)
		cp.MatchedNotes = make(domain.NoteMultiset)
		cp.Status = domain.GroupWaiting
		cp.DetectedAtS = nil
		cp.DetectedConfidence = nil
		groups[i] = &cp
	}
	return &domain.BeatExercise{
		Name:          ex.Name,
		Groups:        groups,
		BPM:           ex.BPM,
		TimeSignature: ex.TimeSignature,
		BeatsPerBar:   ex.BeatsPerBar,
	}
}

func group(bar int, expectedS, toleranceS, maxS float64, notes ...string) *domain.ExpectedGroup {
	freqs := make([]float64, len(notes))
	for i, n := range notes {
		midi, err := domain.NoteNameToMIDI(n)
		if err != nil {
			continue
		}
		freqs[i] = domain.MIDIToFreq(midi)
	}
	return &domain.ExpectedGroup{
		Notes:            notes,
		Frequencies:      freqs,
		ExpectedTimeS:    expectedS,
		BarIndex:         bar,
		TimingToleranceS: toleranceS,
		TimingMaxS:       maxS,
		MatchedNotes:     make(domain.NoteMultiset),
	}
}

// seed populates the source with built-in exercises: a single-note
// C-major scale warm-up and a right-hand triad drill.
func (s *MemorySource) seed() {
	exercises := []*domain.BeatExercise{
		s.cMajorScale(),
		s.triadWarmup(),
	}
	for _, ex := range exercises {
		fingers.Assign(ex.Groups)
		s.exercises[ex.Name] = ex
	}
	s.log.Debug("seeded %d exercises", len(exercises))
}

func (s *MemorySource) cMajorScale() *domain.BeatExercise {
	const bpm = 80.0
	beatS := 60.0 / bpm
	notes := []string{"C4", "D4", "E4", "F4", "G4", "A4", "B4", "C5"}

	var groups []*domain.ExpectedGroup
	for i, n := range notes {
		expected := float64(i) * beatS
		groups = append(groups, group(i/4, expected, 0.08, 0.35, n))
	}
	return &domain.BeatExercise{
		Name:          "c-major-scale",
		Groups:        groups,
		BPM:           bpm,
		TimeSignature: domain.TimeSignature{Num: 4, Den: 4},
		BeatsPerBar:   4,
	}
}

func (s *MemorySource) triadWarmup() *domain.BeatExercise {
	const bpm = 60.0
	beatS := 60.0 / bpm

	groups := []*domain.ExpectedGroup{
		group(0, 0*beatS, 0.1, 0.4, "C4", "E4", "G4"),
		group(0, 1*beatS, 0.1, 0.4, "C4", "E4", "G4"),
		group(1, 2*beatS, 0.1, 0.4, "F4", "A4", "C5"),
		group(1, 3*beatS, 0.1, 0.4, "G4", "B4", "D5"),
	}
	return &domain.BeatExercise{
		Name:          "triad-warmup",
		Groups:        groups,
		BPM:           bpm,
		TimeSignature: domain.TimeSignature{Num: 4, Den: 4},
		BeatsPerBar:   2,
	}
}
