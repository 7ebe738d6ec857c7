package mono

import (
	"math"
	"testing"
)

func synthesize(sampleRate, n int, partials map[float64]float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		t := float64(i) / float64(sampleRate)
		var v float64
		for mult, amp := range partials {
			v += amp * math.Sin(2*math.Pi*mult*t)
		}
		out[i] = float32(v)
	}
	return out
}

func TestEstimateC4PureTone(t *testing.T) {
	const sr = 44100
	f0 := 261.63 // C4
	samples := synthesize(sr, 4096, map[float64]float64{f0: 0.8})

	e := New(sr, PresetV3)
	est, ok := e.Estimate(samples, false)
	if !ok {
		t.Fatal("expected a pitch estimate")
	}
	if math.Abs(est.Frequency-f0) > f0*0.03 {
		t.Errorf("frequency = %.2f, want close to %.2f", est.Frequency, f0)
	}
	if est.NoteName != "C4" {
		t.Errorf("note name = %q, want C4", est.NoteName)
	}
	if est.Confidence < 0.3 || est.Confidence > 0.98 {
		t.Errorf("confidence %v out of bounds", est.Confidence)
	}
}

// TestOctaveDisambiguation is testable property #4: a waveform whose
// fundamental is weaker than its harmonics must still resolve to f0.
func TestOctaveDisambiguation(t *testing.T) {
	const sr = 44100
	f0 := 220.0 // A3
	samples := synthesize(sr, 4096, map[float64]float64{
		f0:       0.3,
		2 * f0:   0.5,
		3 * f0:   0.4,
	})

	e := New(sr, PresetV3)
	est, ok := e.Estimate(samples, false)
	if !ok {
		t.Fatal("expected a pitch estimate")
	}

	// within +/- 1 semitone of f0
	semitoneRatio := math.Pow(2, 1.0/12.0)
	if est.Frequency < f0/semitoneRatio || est.Frequency > f0*semitoneRatio {
		t.Errorf("frequency = %.2f, want within a semitone of %.2f", est.Frequency, f0)
	}
}

func TestEstimateRejectsSilence(t *testing.T) {
	e := New(44100, PresetV3)
	samples := make([]float32, 4096)
	if _, ok := e.Estimate(samples, false); ok {
		t.Error("expected silence to be rejected")
	}
}

func TestFreqPreferencePeaksInMiddle(t *testing.T) {
	if freqPreference(400) < freqPreference(50) {
		t.Error("expected middle register to score higher than deep bass")
	}
	if freqPreference(400) < freqPreference(4000) {
		t.Error("expected middle register to score higher than extreme treble")
	}
}
