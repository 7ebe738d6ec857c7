package nuance

import (
	"testing"

	"github.com/hammamikhairi/pianopractice/internal/domain"
)

func TestAnalyzeEmpty(t *testing.T) {
	r := Analyze(nil, 120)
	if r.Summary != "no notes played" {
		t.Errorf("unexpected summary for empty input: %q", r.Summary)
	}
}

func TestClassifyDynamicBuckets(t *testing.T) {
	cases := map[float64]DynamicLabel{0.1: DynPP, 0.3: DynP, 0.5: DynMF, 0.7: DynF, 0.95: DynFF}
	for v, want := range cases {
		if got := classifyDynamic(v); got != want {
			t.Errorf("classifyDynamic(%v) = %v, want %v", v, got, want)
		}
	}
}

func TestAnalyzeOnBeatTiming(t *testing.T) {
	bpm := 120.0
	beatS := 60.0 / bpm
	notes := []domain.NoteEvent{
		{Onset: 0, Offset: 0.2, Velocity: 0.5},
		{Onset: beatS, Offset: beatS + 0.2, Velocity: 0.5},
	}
	r := Analyze(notes, bpm)
	for _, n := range r.Notes {
		if n.Timing != TimingOnTime {
			t.Errorf("expected on_time, got %v (err %v)", n.Timing, n.TimingErrorS)
		}
	}
}

func TestAnalyzeArticulation(t *testing.T) {
	notes := []domain.NoteEvent{
		{Onset: 0, Offset: 0.1, Velocity: 0.5},
		{Onset: 0.25, Offset: 0.35, Velocity: 0.5}, // gap 0.15s -> staccato
	}
	r := Analyze(notes, 120)
	if r.Notes[0].Articulation != ArticStaccato {
		t.Errorf("expected staccato gap classification, got %v", r.Notes[0].Articulation)
	}
}

func TestAnalyzeRangeClass(t *testing.T) {
	notes := []domain.NoteEvent{
		{Onset: 0, Offset: 0.1, Velocity: 0.1},
		{Onset: 0.5, Offset: 0.6, Velocity: 0.9},
	}
	r := Analyze(notes, 120)
	if r.RangeClass != RangeWide {
		t.Errorf("expected wide range, got %v", r.RangeClass)
	}
}
