// Package detect implements the §4.6 arbiter: mode-based selection
// between the mono estimator, the neural transcriber, and a CQT-style
// fallback, followed by score-aware match classification.
package detect

import (
	"context"
	"time"

	"github.com/hammamikhairi/pianopractice/internal/domain"
	"github.com/hammamikhairi/pianopractice/internal/harmonic"
	"github.com/hammamikhairi/pianopractice/internal/mono"
	"github.com/hammamikhairi/pianopractice/internal/poly"
)

// Mode selects which detector(s) the arbiter runs.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeChord  Mode = "chord"
	ModeHybrid Mode = "hybrid"
)

// Outcome is an explicit success/failure result, replacing the
// exception-driven fallback the source used when a detector failed —
// callers inspect Ok and Err rather than relying on a thrown error to
// signal "try the next detector".
type Outcome[T any] struct {
	Value T
	Ok    bool
	Err   error
}

func ok[T any](v T) Outcome[T]       { return Outcome[T]{Value: v, Ok: true} }
func fail[T any](err error) Outcome[T] { return Outcome[T]{Err: err} }

// MatchConfig tunes the score-aware acceptance classes.
type MatchConfig struct {
	SemitoneToleranceSemitones int // default 1
}

func (c MatchConfig) withDefaults() MatchConfig {
	if c.SemitoneToleranceSemitones <= 0 {
		c.SemitoneToleranceSemitones = 1
	}
	return c
}

// Arbiter selects and runs the appropriate detector(s) for a window.
type Arbiter struct {
	monoEstimator *mono.Estimator
	transcriber   *poly.Transcriber
	cqt           *CQTFallback
	matchCfg      MatchConfig
}

// New builds an arbiter over the three detectors. transcriber may be
// nil if polyphonic transcription isn't wired in this deployment, in
// which case chord/hybrid modes degrade to the mono+CQT path.
func New(monoEstimator *mono.Estimator, transcriber *poly.Transcriber, cqt *CQTFallback, matchCfg MatchConfig) *Arbiter {
	return &Arbiter{
		monoEstimator: monoEstimator,
		transcriber:   transcriber,
		cqt:           cqt,
		matchCfg:      matchCfg.withDefaults(),
	}
}

// Detect runs the public operation: window → DetectionResult.
func (a *Arbiter) Detect(ctx context.Context, window domain.Window, mode Mode, expectedNames []string) domain.DetectionResult {
	start := time.Now()

	expectedPitches := namesToPitches(expectedNames)
	effectiveMode := mode
	if mode == ModeHybrid && len(expectedPitches) >= 2 {
		effectiveMode = ModeChord
	}

	var notes []domain.NoteEvent
	var used domain.DetectorTag

	switch effectiveMode {
	case ModeChord:
		res := a.runPoly(ctx, window, expectedPitches, len(expectedPitches) > 0)
		if res.Ok {
			notes, used = res.Value, domain.DetectorPoly
		} else {
			notes, used = a.runMonoThenCQT(window)
		}
	default: // single, or hybrid with <2 expected notes
		notes, used = a.runMonoThenCQT(window)
	}

	filtered := harmonic.Filter(notes, harmonic.FilterConfig{
		ExpectedPitches: toPitchSet(expectedPitches),
		ChordOrSong:     effectiveMode == ModeChord,
	})

	return a.classify(filtered, expectedNames, used, time.Since(start))
}

func (a *Arbiter) runPoly(ctx context.Context, window domain.Window, expectedPitches []int, scoreAware bool) Outcome[[]domain.NoteEvent] {
	if a.transcriber == nil {
		return fail[[]domain.NoteEvent](domain.ErrModelAssetMissing)
	}
	notes, err := a.transcriber.Transcribe(ctx, window, expectedPitches, scoreAware)
	if err != nil {
		return fail[[]domain.NoteEvent](err)
	}
	return ok(notes)
}

// runMonoThenCQT implements the hybrid/single fallback chain: try YIN,
// and on no-match fall back to the CQT harmonic-sum scorer.
func (a *Arbiter) runMonoThenCQT(window domain.Window) ([]domain.NoteEvent, domain.DetectorTag) {
	if a.monoEstimator != nil {
		if est, found := a.monoEstimator.Estimate(window.Samples, false); found {
			return []domain.NoteEvent{monoToNoteEvent(est, window)}, domain.DetectorMono
		}
	}
	if a.cqt != nil {
		if note, found := a.cqt.Detect(window); found {
			return []domain.NoteEvent{note}, domain.DetectorCQT
		}
	}
	return nil, domain.DetectorMono
}

func monoToNoteEvent(est mono.Estimate, window domain.Window) domain.NoteEvent {
	pitch, _ := domain.NoteNameToMIDI(est.NoteName)
	return domain.NoteEvent{
		Pitch:         pitch,
		NoteName:      est.NoteName,
		Onset:         window.AbsoluteStartS,
		Offset:        window.EndS(),
		Confidence:    est.Confidence,
		OnsetStrength: est.Confidence,
	}
}

// classify implements the score-aware acceptance rules: exact/semitone
// match classes, confidence boosts, and attenuation of unmatched
// detections.
func (a *Arbiter) classify(notes []domain.NoteEvent, expectedNames []string, used domain.DetectorTag, latency time.Duration) domain.DetectionResult {
	expectedMIDI := namesToPitches(expectedNames)

	result := domain.DetectionResult{
		DetectorUsed: used,
		LatencyMs:    float64(latency.Microseconds()) / 1000.0,
		Raw:          notes,
	}

	for _, n := range notes {
		pitch := n.Pitch
		if pitch == 0 && n.NoteName != "" {
			if midi, err := domain.NoteNameToMIDI(n.NoteName); err == nil {
				pitch = midi
			}
		}

		class, matched := a.matchClass(pitch, expectedMIDI)
		conf := n.Confidence
		switch {
		case !matched:
			conf *= 0.3
		case class == "exact":
			conf = minF(conf*1.2, 0.99)
		case class == "semitone":
			conf = minF(conf*1.1, 0.95)
		}

		if matched {
			result.IsMatch = true
		}
		result.Notes = append(result.Notes, n.NoteName)
		result.Frequencies = append(result.Frequencies, domain.MIDIToFreq(pitch))
		result.Confidences = append(result.Confidences, conf)
	}
	return result
}

func (a *Arbiter) matchClass(pitch int, expected []int) (class string, matched bool) {
	for _, e := range expected {
		if pitch == e {
			return "exact", true
		}
	}
	for _, e := range expected {
		if absInt(pitch-e) <= a.matchCfg.SemitoneToleranceSemitones {
			return "semitone", true
		}
	}
	for _, e := range expected {
		if ((pitch%12)+12)%12 == ((e%12)+12)%12 {
			return "octave", true
		}
	}
	return "", false
}

func namesToPitches(names []string) []int {
	var out []int
	for _, n := range names {
		if midi, err := domain.NoteNameToMIDI(n); err == nil {
			out = append(out, midi)
		}
	}
	return out
}

func toPitchSet(pitches []int) map[int]bool {
	set := make(map[int]bool, len(pitches))
	for _, p := range pitches {
		set[p] = true
	}
	return set
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
