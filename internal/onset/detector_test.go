package onset

import (
	"math"
	"testing"

	"github.com/hammamikhairi/pianopractice/internal/logger"
)

func sineBurst(freq float64, sampleRate, n int, amp float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return out
}

func silence(n int) []float32 {
	return make([]float32, n)
}

func TestDetectorSignalsOnsetAfterSilence(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	d := New(Config{FFTSize: 512, HopSamples: 256, SampleRate: 16000}, log)

	// Warm up the flux history during silence — should never fire.
	for i := 0; i < 15; i++ {
		if evs := d.ProcessChunk(silence(256)); len(evs) != 0 {
			t.Fatalf("unexpected onset during silence: %+v", evs)
		}
	}

	// A sudden loud tone should produce a spectral-flux spike.
	var fired bool
	for i := 0; i < 10; i++ {
		evs := d.ProcessChunk(sineBurst(440, 16000, 256, 0.8))
		if len(evs) > 0 {
			fired = true
			for _, ev := range evs {
				if ev.Strength <= 0 {
					t.Errorf("expected positive strength, got %v", ev.Strength)
				}
			}
			break
		}
	}
	if !fired {
		t.Fatal("expected an onset event after the silence-to-tone transition")
	}
}

func TestDetectorGatesOnLowEnergy(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	d := New(Config{FFTSize: 512, HopSamples: 256, SampleRate: 16000, EnergyThreshold: 0.01}, log)

	quiet := sineBurst(440, 16000, 256, 0.0005) // RMS well under threshold
	for i := 0; i < 10; i++ {
		if evs := d.ProcessChunk(quiet); len(evs) != 0 {
			t.Fatalf("expected no onsets below energy threshold, got %+v", evs)
		}
	}
}

func TestRegisterClassification(t *testing.T) {
	cases := []struct {
		hz   float64
		want string
	}{
		{100, "bass"},
		{500, "mid"},
		{1000, "mid"},
		{2000, "treble"},
	}
	for _, c := range cases {
		if got := registerFor(c.hz).String(); got != c.want {
			t.Errorf("registerFor(%v) = %q, want %q", c.hz, got, c.want)
		}
	}
}
