package detect

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/hammamikhairi/pianopractice/internal/domain"
)

// CQTFallback is a cheaper stand-in for a true constant-Q transform: a
// precomputed per-MIDI harmonic-sum scorer over a single FFT. More
// robust than YIN on noisy single notes, much cheaper than the neural
// transcriber — used as the hybrid mode's second-chance detector.
type CQTFallback struct {
	fft        *fourier.FFT
	fftSize    int
	sampleRate int
	minMIDI    int
	maxMIDI    int
	threshold  float64
	bins       [][]int // per MIDI, the FFT bin indices of its first 4 harmonics
}

// NewCQTFallback precomputes the harmonic bin table for MIDI
// [minMIDI, maxMIDI] against one FFT size/sample-rate pair.
func NewCQTFallback(fftSize, sampleRate, minMIDI, maxMIDI int, threshold float64) *CQTFallback {
	c := &CQTFallback{
		fft:        fourier.NewFFT(fftSize),
		fftSize:    fftSize,
		sampleRate: sampleRate,
		minMIDI:    minMIDI,
		maxMIDI:    maxMIDI,
		threshold:  threshold,
	}
	c.bins = make([][]int, maxMIDI-minMIDI+1)
	for midi := minMIDI; midi <= maxMIDI; midi++ {
		f0 := domain.MIDIToFreq(midi)
		var harmonics []int
		for h := 1; h <= 4; h++ {
			bin := int(math.Round(f0 * float64(h) * float64(fftSize) / float64(sampleRate)))
			if bin > 0 && bin < fftSize/2 {
				harmonics = append(harmonics, bin)
			}
		}
		c.bins[midi-minMIDI] = harmonics
	}
	return c
}

// Detect scores every candidate MIDI pitch by summing magnitude at its
// first four harmonic bins and returns the best-scoring pitch above
// threshold.
func (c *CQTFallback) Detect(window domain.Window) (domain.NoteEvent, bool) {
	samples := window.Samples
	if len(samples) > c.fftSize {
		samples = samples[:c.fftSize]
	}
	frame := make([]float64, c.fftSize)
	for i, s := range samples {
		frame[i] = float64(s)
	}

	spectrum := c.fft.Coefficients(nil, frame)
	mag := make([]float64, len(spectrum))
	var maxMag float64
	for i, v := range spectrum {
		mag[i] = math.Hypot(real(v), imag(v))
		if mag[i] > maxMag {
			maxMag = mag[i]
		}
	}
	if maxMag == 0 {
		return domain.NoteEvent{}, false
	}

	bestMIDI, bestScore := -1, 0.0
	for midi := c.minMIDI; midi <= c.maxMIDI; midi++ {
		harmonics := c.bins[midi-c.minMIDI]
		if len(harmonics) == 0 {
			continue
		}
		var score float64
		for i, bin := range harmonics {
			weight := 1.0 / float64(i+1) // fundamental weighted highest
			score += weight * mag[bin] / maxMag
		}
		score /= float64(len(harmonics))
		if score > bestScore {
			bestScore, bestMIDI = score, midi
		}
	}

	if bestMIDI < 0 || bestScore < c.threshold {
		return domain.NoteEvent{}, false
	}

	return domain.NoteEvent{
		Pitch:         bestMIDI,
		NoteName:      domain.MIDIToNoteName(bestMIDI),
		Onset:         window.AbsoluteStartS,
		Offset:        window.EndS(),
		Confidence:    clamp01(bestScore),
		OnsetStrength: clamp01(bestScore),
	}, true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
