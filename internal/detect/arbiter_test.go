package detect

import (
	"math"
	"testing"

	"github.com/hammamikhairi/pianopractice/internal/domain"
	"github.com/hammamikhairi/pianopractice/internal/mono"
)

func sine(sr, n int, freq float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		t := float64(i) / float64(sr)
		out[i] = float32(0.8 * math.Sin(2*math.Pi*freq*t))
	}
	return out
}

func TestArbiterSingleModeExactMatch(t *testing.T) {
	const sr = 44100
	a := New(mono.New(sr, mono.PresetV3), nil, nil, MatchConfig{})

	window := domain.Window{Pcm: domain.Pcm{Samples: sine(sr, 4096, 261.63), SampleRate: sr}}
	res := a.Detect(nil, window, ModeSingle, []string{"C4"})

	if !res.IsMatch {
		t.Fatalf("expected a match, got %+v", res)
	}
	if res.DetectorUsed != domain.DetectorMono {
		t.Errorf("detector used = %v, want mono", res.DetectorUsed)
	}
}

func TestArbiterFallsBackToCQTOnNoMonoMatch(t *testing.T) {
	const sr = 44100
	cqt := NewCQTFallback(4096, sr, 21, 108, 0.01)
	a := New(nil, nil, cqt, MatchConfig{})

	window := domain.Window{Pcm: domain.Pcm{Samples: sine(sr, 4096, 261.63), SampleRate: sr}}
	res := a.Detect(nil, window, ModeSingle, nil)

	if res.DetectorUsed != domain.DetectorCQT {
		t.Fatalf("expected CQT fallback to run, got %v", res.DetectorUsed)
	}
	if len(res.Notes) == 0 {
		t.Fatal("expected at least one candidate note")
	}
}

func TestMatchClassAttenuatesUnmatched(t *testing.T) {
	a := New(nil, nil, nil, MatchConfig{})
	class, matched := a.matchClass(60, []int{72})
	if matched {
		t.Errorf("expected no match for unrelated pitch, got class %q", class)
	}
}

func TestMatchClassSemitoneTolerance(t *testing.T) {
	a := New(nil, nil, nil, MatchConfig{SemitoneToleranceSemitones: 1})
	class, matched := a.matchClass(61, []int{60})
	if !matched || class != "semitone" {
		t.Errorf("expected semitone match, got class=%q matched=%v", class, matched)
	}
}

// TestArbiterScenarios replays a batch of recorded-style (tone, expected
// notes, expected match outcome) scenarios against the arbiter, the way
// a ground-truth comparison harness checks detector output against known
// answers rather than only synthetic single-case assertions.
func TestArbiterScenarios(t *testing.T) {
	const sr = 44100

	scenarios := []struct {
		name      string
		freq      float64
		expected  []string
		wantMatch bool
	}{
		{"in-tune C4 against C4", 261.63, []string{"C4"}, true},
		{"sharp C4 within tolerance", 262.5, []string{"C4"}, true},
		{"wrong note D4 against C4", 293.66, []string{"C4"}, false},
		{"octave-doubled C5 against C4 matches by pitch class", 523.25, []string{"C4"}, true},
	}

	for _, sc := range scenarios {
		t.Run(sc.name, func(t *testing.T) {
			a := New(mono.New(sr, mono.PresetV3), nil, nil, MatchConfig{})
			window := domain.Window{Pcm: domain.Pcm{Samples: sine(sr, 4096, sc.freq), SampleRate: sr}}
			res := a.Detect(nil, window, ModeSingle, sc.expected)
			if res.IsMatch != sc.wantMatch {
				t.Errorf("IsMatch = %v, want %v (freq=%.2f expected=%v)", res.IsMatch, sc.wantMatch, sc.freq, sc.expected)
			}
		})
	}
}
