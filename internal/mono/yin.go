// Package mono implements the YIN-family fundamental-frequency estimator:
// cumulative-mean-normalised-difference pitch detection with octave
// disambiguation tuned for the piano's C2-C7 range. Two coefficient
// sets are exposed as named presets rather than collapsing to a single
// "best" version — multiple YIN variants exist side by side, and the
// most recent ("v3") is the one wired into the live arbiter.
package mono

import (
	"math"

	"github.com/hammamikhairi/pianopractice/internal/domain"
)

// Preset holds the tunable coefficients that distinguish YIN variants.
type Preset struct {
	Name string

	PrimaryThreshold    float64 // 0.15 in v3
	FallbackStrict       float64 // 0.35
	FallbackRelaxed      float64 // 0.55
	OctaveCandidateMaxCMND float64 // 0.20

	// Octave-disambiguation scoring weights; must sum to roughly 1.0.
	WeightCMND      float64 // 0.4
	WeightFreqPref  float64 // 0.5
	WeightMultiplier float64 // 0.1
}

// PresetV3 is the coefficient set wired into the live arbiter by
// default — the most recently tuned variant in the original source.
var PresetV3 = Preset{
	Name:                   "v3",
	PrimaryThreshold:       0.15,
	FallbackStrict:         0.35,
	FallbackRelaxed:        0.55,
	OctaveCandidateMaxCMND: 0.20,
	WeightCMND:             0.4,
	WeightFreqPref:         0.5,
	WeightMultiplier:       0.1,
}

// PresetV2 is kept for offline comparison against v3, the way the
// original source's test suite pitted multiple YIN variants against
// each other. It leans more on the CMND term and less on octave
// register preference, and is slightly more permissive in its
// fallback acceptance.
var PresetV2 = Preset{
	Name:                   "v2",
	PrimaryThreshold:       0.18,
	FallbackStrict:         0.40,
	FallbackRelaxed:        0.60,
	OctaveCandidateMaxCMND: 0.25,
	WeightCMND:             0.55,
	WeightFreqPref:         0.35,
	WeightMultiplier:       0.1,
}

// Estimate is the result of a successful pitch estimation.
type Estimate struct {
	NoteName   string
	Frequency  float64
	Confidence float64
	RMS        float64
}

// Estimator runs the YIN algorithm over fixed-size windows using one
// coefficient preset.
type Estimator struct {
	preset     Preset
	sampleRate int
}

// New creates an estimator bound to a sample rate and a coefficient
// preset (defaults to PresetV3 if the zero value is passed).
func New(sampleRate int, preset Preset) *Estimator {
	if preset.Name == "" {
		preset = PresetV3
	}
	return &Estimator{preset: preset, sampleRate: sampleRate}
}

// Estimate runs YIN over one window. relaxed widens the fallback
// acceptance threshold for cases where the arbiter wants a best-effort
// guess (e.g. score-aware relaxation). Returns false if no usable
// pitch could be found or RMS is below the noise floor.
func (e *Estimator) Estimate(samples []float32, relaxed bool) (Estimate, bool) {
	rmsV := rms(samples)
	if rmsV < 0.003 {
		return Estimate{}, false
	}

	n := len(samples)
	tauMax := n / 2
	if byFreq := e.sampleRate / 50; byFreq < tauMax {
		tauMax = byFreq
	}
	if tauMax < 2 {
		return Estimate{}, false
	}

	x := make([]float64, n)
	for i, s := range samples {
		x[i] = float64(s)
	}

	d := differenceFunction(x, tauMax)
	dprime := cmnd(d, tauMax)

	tau, found := e.scanPrimary(dprime, tauMax)
	if !found {
		var ok bool
		tau, ok = e.scanFallback(dprime, tauMax, relaxed)
		if !ok {
			return Estimate{}, false
		}
	}

	tau = e.disambiguateOctave(dprime, tau, tauMax)
	refined := parabolicRefine(dprime, tau, tauMax)
	freq := float64(e.sampleRate) / refined

	conf := 1 - dprime[tau] + 0.3*math.Min(0.3, 20*rmsV)
	conf = clamp(conf, 0.3, 0.98)

	midi := int(math.Round(domain.FreqToMIDI(freq)))
	return Estimate{
		NoteName:   domain.MIDIToNoteName(midi),
		Frequency:  freq,
		Confidence: conf,
		RMS:        rmsV,
	}, true
}

// scanPrimary scans tau from 2 upward for the first value below the
// primary threshold that is also a local minimum.
func (e *Estimator) scanPrimary(dprime []float64, tauMax int) (int, bool) {
	for tau := 2; tau < tauMax; tau++ {
		if dprime[tau] >= e.preset.PrimaryThreshold {
			continue
		}
		if dprime[tau] <= dprime[tau-1] && dprime[tau] <= dprime[tau+1] {
			return tau, true
		}
	}
	return 0, false
}

// scanFallback picks the global minimum of dprime within the piano's
// audible range and accepts it if it clears a looser threshold.
func (e *Estimator) scanFallback(dprime []float64, tauMax int, relaxed bool) (int, bool) {
	lo := e.sampleRate / 2000
	if lo < 1 {
		lo = 1
	}
	hi := e.sampleRate / 50
	if hi > tauMax-1 {
		hi = tauMax - 1
	}
	if lo >= hi {
		return 0, false
	}

	best := lo
	for tau := lo + 1; tau <= hi; tau++ {
		if dprime[tau] < dprime[best] {
			best = tau
		}
	}

	threshold := e.preset.FallbackStrict
	if relaxed {
		threshold = e.preset.FallbackRelaxed
	}
	if dprime[best] < threshold {
		return best, true
	}
	return 0, false
}

type octaveCandidate struct {
	tau        int
	multiplier int
	freq       float64
	score      float64
}

// disambiguateOctave considers tau, tau/2, tau/4, tau/8 and picks the
// highest-scoring one, correcting the classic half-pitch error where a
// weak fundamental loses out to its strong first harmonic.
func (e *Estimator) disambiguateOctave(dprime []float64, tau, tauMax int) int {
	var candidates []octaveCandidate
	for _, mult := range []int{1, 2, 4, 8} {
		ct := tau / mult
		if ct < 1 || ct >= tauMax {
			continue
		}
		if dprime[ct] > e.preset.OctaveCandidateMaxCMND {
			continue
		}
		freq := float64(e.sampleRate) / float64(ct)
		score := e.preset.WeightCMND*(1-dprime[ct]) +
			e.preset.WeightFreqPref*freqPreference(freq) +
			e.preset.WeightMultiplier*log2(float64(mult))
		candidates = append(candidates, octaveCandidate{tau: ct, multiplier: mult, freq: freq, score: score})
	}
	if len(candidates) == 0 {
		return tau
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.score > best.score || (c.score == best.score && c.multiplier > best.multiplier) {
			best = c
		}
	}
	return best.tau
}

// freqPreference peaks on the piano's expressive middle register and
// tapers off at the extremes, biasing octave disambiguation toward
// musically plausible pitches.
func freqPreference(freqHz float64) float64 {
	const (
		c3  = 130.81
		lo  = 200.0
		hi  = 600.0
		c7  = 2093.0
		belowC3 = 0.6
		mid     = 1.0
		aboveC7 = 0.7
	)
	switch {
	case freqHz <= c3:
		return belowC3
	case freqHz < lo:
		return lerp(freqHz, c3, lo, belowC3, mid)
	case freqHz <= hi:
		return mid
	case freqHz < c7:
		return lerp(freqHz, hi, c7, mid, aboveC7)
	default:
		return aboveC7
	}
}

func lerp(x, x0, x1, y0, y1 float64) float64 {
	if x1 == x0 {
		return y0
	}
	t := (x - x0) / (x1 - x0)
	return y0 + t*(y1-y0)
}

func log2(x float64) float64 {
	if x <= 0 {
		return 0
	}
	return math.Log2(x)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// differenceFunction computes YIN's d(tau) for tau in [0, tauMax].
func differenceFunction(x []float64, tauMax int) []float64 {
	n := len(x)
	d := make([]float64, tauMax+2)
	for tau := 1; tau <= tauMax+1 && tau < n; tau++ {
		var sum float64
		for j := 0; j < n-tau; j++ {
			diff := x[j] - x[j+tau]
			sum += diff * diff
		}
		d[tau] = sum
	}
	return d
}

// cmnd computes the cumulative mean normalised difference, with
// d'(0) = 1 by definition.
func cmnd(d []float64, tauMax int) []float64 {
	dprime := make([]float64, len(d))
	dprime[0] = 1
	var runningSum float64
	for tau := 1; tau < len(d); tau++ {
		runningSum += d[tau]
		if runningSum == 0 {
			dprime[tau] = 1
			continue
		}
		dprime[tau] = d[tau] * float64(tau) / runningSum
	}
	_ = tauMax
	return dprime
}

// parabolicRefine refines an integer tau estimate using its neighbours.
func parabolicRefine(dprime []float64, tau, tauMax int) float64 {
	if tau <= 0 || tau >= tauMax {
		return float64(tau)
	}
	s0, s1, s2 := dprime[tau-1], dprime[tau], dprime[tau+1]
	denom := s0 - 2*s1 + s2
	if denom == 0 {
		return float64(tau)
	}
	shift := 0.5 * (s0 - s2) / denom
	return float64(tau) + shift
}

func rms(samples []float32) float64 {
	var sumSq float64
	for _, s := range samples {
		sumSq += float64(s) * float64(s)
	}
	if len(samples) == 0 {
		return 0
	}
	return math.Sqrt(sumSq / float64(len(samples)))
}
