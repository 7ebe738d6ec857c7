package follower

import (
	"testing"

	"github.com/hammamikhairi/pianopractice/internal/domain"
)

func simpleExercise() *domain.BeatExercise {
	mk := func(idx, bar int, note string, expected float64) *domain.ExpectedGroup {
		return &domain.ExpectedGroup{
			Index:            idx,
			Notes:            []string{note},
			Frequencies:      []float64{domain.MIDIToFreq(mustMIDI(note))},
			ExpectedTimeS:    expected,
			BarIndex:         bar,
			TimingToleranceS: 0.05,
			TimingMaxS:       0.3,
			MatchedNotes:     make(domain.NoteMultiset),
		}
	}
	return &domain.BeatExercise{
		Name: "test",
		Groups: []*domain.ExpectedGroup{
			mk(0, 0, "C4", 0.0),
			mk(1, 0, "D4", 0.5),
			mk(2, 1, "E4", 1.0),
			mk(3, 1, "F4", 1.5),
		},
		BPM:           120,
		TimeSignature: domain.TimeSignature{Num: 4, Den: 4},
		BeatsPerBar:   2,
	}
}

func mustMIDI(name string) int {
	m, err := domain.NoteNameToMIDI(name)
	if err != nil {
		panic(err)
	}
	return m
}

// TestAcceptOnTimeMatch is testable property #5: an exact note at its
// expected time is accepted and classified on_time.
func TestAcceptOnTimeMatch(t *testing.T) {
	f := New(simpleExercise(), Config{})
	f.Start(0)

	j := f.ProcessDetection("C4", domain.MIDIToFreq(mustMIDI("C4")), 0.8, 0.01)
	if !j.Matched || j.Action != ActionAccept {
		t.Fatalf("expected accept, got %+v", j)
	}
	if j.TimingStatus != TimingOnTime {
		t.Errorf("timing = %v, want on_time", j.TimingStatus)
	}
}

// TestAutomaticExpiry is testable property #6: a group whose timing
// window lapses with nothing matched becomes MISSED and the cursor
// advances.
func TestAutomaticExpiry(t *testing.T) {
	f := New(simpleExercise(), Config{})
	f.Start(0)

	// Nothing played; jump far enough to expire group 0.
	f.GetCurrentExpectedNotes(1.0)

	if f.exercise.Groups[0].Status != domain.GroupMissed {
		t.Errorf("expected group 0 missed, got %v", f.exercise.Groups[0].Status)
	}
}

func TestFrequencyGateRejectsOutOfTolerance(t *testing.T) {
	f := New(simpleExercise(), Config{FrequencyToleranceHz: 5})
	f.Start(0)

	j := f.ProcessDetection("C4", domain.MIDIToFreq(mustMIDI("C4"))+50, 0.8, 0.01)
	if j.Matched {
		t.Errorf("expected frequency gate to reject, got %+v", j)
	}
}

func TestPracticeModeDisablesTimingGate(t *testing.T) {
	f := New(simpleExercise(), Config{PracticeMode: true})
	f.Start(0)

	// Way outside timing_max_s, but practice mode should still accept.
	j := f.ProcessDetection("C4", domain.MIDIToFreq(mustMIDI("C4")), 0.8, 5.0)
	if !j.Matched {
		t.Errorf("expected practice mode to accept regardless of timing, got %+v", j)
	}
}

// TestSetTempoMultiplierAnchorsCursorDelta is testable property #7:
// changing tempo must not change the cursor group's current delta.
func TestSetTempoMultiplierAnchorsCursorDelta(t *testing.T) {
	f := New(simpleExercise(), Config{})
	f.Start(0)

	before := f.exercise.Groups[f.cursor].ExpectedTimeS - 0 // e=0 at start
	_ = before

	f.SetTempoMultiplier(0.5)
	e := 0.0 - f.startTimeS
	delta := e - f.exercise.Groups[0].ExpectedTimeS
	if absF(delta) > 1e-9 {
		t.Errorf("expected cursor delta to remain ~0 after tempo change, got %v", delta)
	}
}

func TestAdjustTempoDecreasesOnPoorAccuracy(t *testing.T) {
	f := New(simpleExercise(), Config{})
	f.Start(0)

	f.history = []decision{
		{barIndex: 0, accepted: false},
		{barIndex: 0, accepted: false},
	}
	f.exercise.Groups[0].Status = domain.GroupMissed
	f.exercise.Groups[1].Status = domain.GroupMissed

	m, changed := f.AdjustTempo()
	if !changed {
		t.Fatal("expected tempo to change on poor accuracy")
	}
	if m >= 1.0 {
		t.Errorf("expected tempo to decrease, got %v", m)
	}
}

func TestReplayLastBarsResetsStatus(t *testing.T) {
	f := New(simpleExercise(), Config{})
	f.Start(0)
	f.exercise.Groups[2].Status = domain.GroupCorrect
	f.exercise.Groups[3].Status = domain.GroupMissed
	f.cursor = 4

	f.ReplayLastBars(1, 10.0)

	if f.exercise.Groups[2].Status != domain.GroupWaiting || f.exercise.Groups[3].Status != domain.GroupWaiting {
		t.Fatal("expected last bar's groups reset to waiting")
	}
	if f.cursor != 2 {
		t.Errorf("expected cursor rewound to 2, got %d", f.cursor)
	}
}

func TestGetBarStatsCleanFlag(t *testing.T) {
	f := New(simpleExercise(), Config{})
	f.Start(0)
	f.exercise.Groups[0].Status = domain.GroupCorrect
	f.exercise.Groups[1].Status = domain.GroupCorrect

	stats := f.GetBarStats(0)
	if !stats.Clean {
		t.Errorf("expected bar 0 clean, got %+v", stats)
	}
}

func TestGetProgressCompletionPercent(t *testing.T) {
	f := New(simpleExercise(), Config{})
	f.Start(0)
	f.exercise.Groups[0].Status = domain.GroupCorrect
	f.exercise.Groups[1].Status = domain.GroupPartial

	p := f.GetProgress()
	want := (1.0 + 0.6) / 4.0
	if absF(p.CompletionPercent-want) > 1e-9 {
		t.Errorf("completion percent = %v, want %v", p.CompletionPercent, want)
	}
}
