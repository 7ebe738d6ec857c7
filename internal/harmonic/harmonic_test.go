package harmonic

import (
	"testing"

	"github.com/hammamikhairi/pianopractice/internal/domain"
)

func note(pitch int, onset, offset, confidence, onsetStrength float64) domain.NoteEvent {
	return domain.NoteEvent{
		Pitch:         pitch,
		NoteName:      domain.MIDIToNoteName(pitch),
		Onset:         onset,
		Offset:        offset,
		Confidence:    confidence,
		OnsetStrength: onsetStrength,
		Velocity:      0.6,
	}
}

// TestFilterDropsOctaveGhost is testable property #2: a loud fundamental
// plus a much weaker octave-up ghost should collapse to one note.
func TestFilterDropsOctaveGhost(t *testing.T) {
	notes := []domain.NoteEvent{
		note(60, 1.0, 1.5, 0.8, 0.6),  // C4, strong
		note(72, 1.01, 1.4, 0.2, 0.1), // C5, weak harmonic ghost
	}
	out := Filter(notes, FilterConfig{})
	if len(out) != 1 {
		t.Fatalf("expected ghost dropped, got %d notes: %+v", len(out), out)
	}
	if out[0].Pitch != 60 {
		t.Errorf("expected fundamental kept, got pitch %d", out[0].Pitch)
	}
}

func TestFilterKeepsGenuineOctaveDoubling(t *testing.T) {
	notes := []domain.NoteEvent{
		note(60, 1.0, 1.5, 0.8, 0.6),
		note(72, 1.01, 1.5, 0.7, 0.6), // strong enough (>=0.7x) to be real doubling
	}
	out := Filter(notes, FilterConfig{})
	if len(out) != 2 {
		t.Fatalf("expected both notes kept as genuine doubling, got %d: %+v", len(out), out)
	}
}

func TestFilterPhantomSubharmonicRepair(t *testing.T) {
	notes := []domain.NoteEvent{
		note(48, 1.0, 1.5, 0.1, 0.1),  // weak "fundamental" — likely phantom
		note(60, 1.01, 1.5, 0.5, 0.5), // confident octave-up real note
	}
	out := Filter(notes, FilterConfig{})
	if len(out) != 1 || out[0].Pitch != 60 {
		t.Fatalf("expected phantom subharmonic repaired to keep 60 only, got %+v", out)
	}
}

func TestFilterNeverDropsProtectedExpected(t *testing.T) {
	notes := []domain.NoteEvent{
		note(60, 1.0, 1.5, 0.9, 0.6),
		note(72, 1.01, 1.5, 0.3, 0.2), // would normally be dropped as harmonic
	}
	out := Filter(notes, FilterConfig{ExpectedPitches: map[int]bool{72: true}})
	found := false
	for _, n := range out {
		if n.Pitch == 72 {
			found = true
		}
	}
	if !found {
		t.Error("expected protected expected pitch to survive filtering")
	}
}

// TestMergerDedupesOverlappingWindows is testable property #3: the same
// onset reported by consecutive overlapping windows should merge into one.
func TestMergerDedupesOverlappingWindows(t *testing.T) {
	m := NewMerger(ConsensusConfig{})

	first := m.Merge([]domain.NoteEvent{note(60, 2.0, 2.5, 0.5, 0.4)})
	if len(first) != 1 {
		t.Fatalf("expected first sighting to emit, got %d", len(first))
	}

	// A later overlapping window reports the same onset, slightly
	// refined, within the dedup window.
	second := m.Merge([]domain.NoteEvent{note(60, 2.01, 2.5, 0.7, 0.5)})
	if len(second) != 0 {
		t.Fatalf("expected duplicate onset to be suppressed, got %d", len(second))
	}
}

func TestMergerKeepsDistinctReArticulation(t *testing.T) {
	m := NewMerger(ConsensusConfig{})

	m.Merge([]domain.NoteEvent{note(60, 2.0, 2.2, 0.5, 0.4)})
	// A clearly later onset, past offset, is a genuine new strike.
	second := m.Merge([]domain.NoteEvent{note(60, 3.0, 3.3, 0.6, 0.5)})
	if len(second) != 1 {
		t.Fatalf("expected distinct re-articulation to emit as new, got %d", len(second))
	}
}

func TestMergerSuppressesWhileStillSounding(t *testing.T) {
	m := NewMerger(ConsensusConfig{})

	m.Merge([]domain.NoteEvent{note(60, 2.0, 2.8, 0.5, 0.4)})
	// Onset well outside the dedup window but the note is still
	// sounding per its offset — should be dropped, not a new onset.
	second := m.Merge([]domain.NoteEvent{note(60, 2.6, 2.9, 0.6, 0.5)})
	if len(second) != 0 {
		t.Fatalf("expected still-sounding note to suppress re-detection, got %d", len(second))
	}
}
