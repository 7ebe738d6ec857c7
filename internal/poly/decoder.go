package poly

import (
	"math"
	"sort"

	"github.com/hammamikhairi/pianopractice/internal/domain"
)

// DecodeConfig carries the adaptive-threshold starting point and the
// session RMS/expected-pitch context step 1 and step 4/6 need.
type DecodeConfig struct {
	SampleRMS       float64
	ExpectedPitches map[int]bool // MIDI -> in score, nil/empty means "free" mode
	ScoreAware      bool
	WindowStartS    float64
}

const (
	defaultOnsetThr = 0.3
	defaultFrameThr = 0.2
)

// rawNote is an intermediate decode artifact before the harmonic
// filter runs; Decode converts these into domain.NoteEvent.
type rawNote struct {
	pitch         int // MIDI
	onsetFrame    int
	offsetFrame   int
	velocity      float64
	confidence    float64
	onsetStrength float64
}

// Decode runs the seven-step pipeline from the transcriber's raw
// output arrays to a list of candidate NoteEvents. The harmonic filter
// and consensus merger (package harmonic) run afterward, outside this
// package — Decode only covers what's intrinsic to one window.
func Decode(out ModelOutput, cfg DecodeConfig) []domain.NoteEvent {
	frame := sigmoidIfNeeded(out.FrameProbs, out.Logits)
	onset := sigmoidIfNeeded(out.OnsetProbs, out.Logits)
	offset := sigmoidIfNeeded(out.OffsetProbs, out.Logits)

	onsetThr, frameThr := adaptiveThresholds(onset, cfg.SampleRMS)

	notes := pickOnsets(onset, frame, offset, out.Velocities, onsetThr, frameThr)
	notes = discardLowRegister(notes)

	detected := make(map[int]bool, len(notes))
	for _, n := range notes {
		detected[n.pitch] = true
	}

	notes = append(notes, anchorExpansion(notes, onset, frame, onsetThr, cfg)...)
	for _, n := range notes {
		detected[n.pitch] = true
	}

	notes = append(notes, frameFallback(detected, onset, frame, frameThr, cfg)...)
	for _, n := range notes {
		detected[n.pitch] = true
	}

	notes = append(notes, scoreAwareRescue(detected, onset, frame, cfg)...)

	notes = confidenceFloor(notes, cfg)

	events := make([]domain.NoteEvent, 0, len(notes))
	for _, n := range notes {
		events = append(events, toNoteEvent(n, cfg.WindowStartS))
	}
	return events
}

func sigmoidIfNeeded(arr [][]float64, logits bool) [][]float64 {
	if !logits {
		return arr
	}
	out := make([][]float64, len(arr))
	for t, row := range arr {
		nr := make([]float64, len(row))
		for p, v := range row {
			nr[p] = 1 / (1 + math.Exp(-v))
		}
		out[t] = nr
	}
	return out
}

// adaptiveThresholds implements step 1.
func adaptiveThresholds(onset [][]float64, sampleRMS float64) (onsetThr, frameThr float64) {
	onsetThr, frameThr = defaultOnsetThr, defaultFrameThr

	maxPerFrame := make([]float64, len(onset))
	for t, row := range onset {
		var m float64
		for _, v := range row {
			if v > m {
				m = v
			}
		}
		maxPerFrame[t] = m
	}

	if sampleRMS < 0.05 {
		onsetThr *= 0.85
		frameThr *= 0.85
	} else if sampleRMS > 0.3 {
		p90 := percentile(maxPerFrame, 0.90)
		med := percentile(maxPerFrame, 0.50)
		if med > 0 && p90/med < 2 {
			onsetThr *= 1.05
			frameThr *= 1.05
		}
	}

	onsetThr = clampF(onsetThr, 0.10, 0.50)
	frameThr = clampF(frameThr, 0.08, 0.35)
	return onsetThr, frameThr
}

func percentile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// nmsWindowFrames is ~100ms expressed in frames of FrameDurationS.
var nmsWindowFrames = int(math.Round(0.1 / FrameDurationS))

// pickOnsets implements step 2: per-pitch onset peak picking with NMS,
// offset-finding, duration capping/floor.
func pickOnsets(onset, frame, offsetP, velocities [][]float64, onsetThr, frameThr float64) []rawNote {
	var notes []rawNote
	maxFrames := 2 * int(math.Round(2.0/FrameDurationS)) // generous cap bound

	for p := 0; p < Pitches; p++ {
		var peaks []int
		for t := 0; t < len(onset); t++ {
			v := onset[t][p]
			if v < onsetThr {
				continue
			}
			if isLocalPeak(onset, t, p, nmsWindowFrames) {
				peaks = append(peaks, t)
			}
		}

		for _, onsetFrame := range peaks {
			offFrame := findOffset(frame, offsetP, onsetFrame, p, frameThr, maxFrames)
			durFrames := offFrame - onsetFrame
			if durFrames*1 < 1 {
				continue
			}
			durationS := float64(durFrames) * FrameDurationS
			if durationS < 0.03 {
				continue
			}
			if durationS > 2.0 {
				offFrame = onsetFrame + int(math.Round(2.0/FrameDurationS))
			}

			conf := meanFrameProb(frame, onsetFrame, offFrame, p)
			notes = append(notes, rawNote{
				pitch:         p + MinMIDI,
				onsetFrame:    onsetFrame,
				offsetFrame:   offFrame,
				velocity:      velocities[onsetFrame][p],
				confidence:    conf,
				onsetStrength: onset[onsetFrame][p],
			})
		}
	}
	return notes
}

func isLocalPeak(onset [][]float64, t, p, halfWindow int) bool {
	v := onset[t][p]
	lo := t - halfWindow
	if lo < 0 {
		lo = 0
	}
	hi := t + halfWindow
	if hi >= len(onset) {
		hi = len(onset) - 1
	}
	for i := lo; i <= hi; i++ {
		if i == t {
			continue
		}
		if onset[i][p] > v {
			return false
		}
	}
	return true
}

func findOffset(frame, offsetP [][]float64, onsetFrame, p int, frameThr float64, maxFrames int) int {
	limit := onsetFrame + maxFrames
	if limit > len(frame) {
		limit = len(frame)
	}
	for t := onsetFrame + 1; t < limit; t++ {
		if offsetP[t][p] > 0.5 {
			return t
		}
		if frame[t][p] < frameThr {
			return t
		}
	}
	return limit
}

func meanFrameProb(frame [][]float64, from, to, p int) float64 {
	if to <= from {
		return frame[from][p]
	}
	var sum float64
	n := 0
	for t := from; t < to && t < len(frame); t++ {
		sum += frame[t][p]
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// discardLowRegister implements step 3.
func discardLowRegister(notes []rawNote) []rawNote {
	out := notes[:0]
	for _, n := range notes {
		if n.pitch < 48 {
			continue
		}
		out = append(out, n)
	}
	return out
}

// harmonicRatioReject mirrors the tolerance rule used in steps 4 and 5:
// true if candidateFreq/anchorFreq lands within tolerance of an
// integer multiple N in 2..6 (0.08 for the octave, 0.15 above).
func harmonicRatioReject(candidateFreq, anchorFreq float64) bool {
	if anchorFreq <= 0 {
		return false
	}
	ratio := candidateFreq / anchorFreq
	for n := 2; n <= 6; n++ {
		tol := 0.15
		if n == 2 {
			tol = 0.08
		}
		if math.Abs(ratio-float64(n)) <= tol {
			return true
		}
	}
	return false
}

// anchorExpansion implements step 4.
func anchorExpansion(anchors []rawNote, onset, frame [][]float64, onsetThr float64, cfg DecodeConfig) []rawNote {
	var expanded []rawNote
	seen := map[int]bool{}
	for _, a := range anchors {
		seen[a.pitch] = true
	}

	for _, a := range anchors {
		if a.onsetStrength <= 0.3 {
			continue
		}
		anchorFreq := domain.MIDIToFreq(a.pitch)

		lo := a.pitch - 12 - MinMIDI
		hi := a.pitch + 12 - MinMIDI
		if lo < 0 {
			lo = 0
		}
		if hi >= Pitches {
			hi = Pitches - 1
		}

		for pIdx := lo; pIdx <= hi; pIdx++ {
			candidatePitch := pIdx + MinMIDI
			if seen[candidatePitch] {
				continue
			}
			t := a.onsetFrame
			fp := frame[t][pIdx]
			op := onset[t][pIdx]

			isExpected := cfg.ExpectedPitches[candidatePitch]
			var accept bool
			if cfg.ScoreAware {
				accept = isExpected && (fp > 0.3 || op > 0.25)
			} else {
				accept = fp > 0.5 || op > 0.25
			}
			if !accept {
				continue
			}

			candidateFreq := domain.MIDIToFreq(candidatePitch)
			if harmonicRatioReject(candidateFreq, anchorFreq) && !isExpected {
				continue
			}

			off := findOffset(frame, frame, t, pIdx, defaultFrameThr, 2*int(math.Round(2.0/FrameDurationS)))
			expanded = append(expanded, rawNote{
				pitch:         candidatePitch,
				onsetFrame:    t,
				offsetFrame:   off,
				velocity:      op,
				confidence:    meanFrameProb(frame, t, off, pIdx),
				onsetStrength: op,
			})
			seen[candidatePitch] = true
		}
	}
	return expanded
}

// frameFallback implements step 5.
func frameFallback(detected map[int]bool, onset, frame [][]float64, frameThr float64, cfg DecodeConfig) []rawNote {
	const effectiveFrameThr = 0.4

	candidateFundamentals := map[int]bool{} // MIDI
	for pIdx := 0; pIdx < Pitches; pIdx++ {
		var onsetMax, frameMax float64
		for t := 0; t < len(onset); t++ {
			if onset[t][pIdx] > onsetMax {
				onsetMax = onset[t][pIdx]
			}
			if frame[t][pIdx] > frameMax {
				frameMax = frame[t][pIdx]
			}
		}
		if onsetMax > 0.15 || frameMax > 0.5 {
			candidateFundamentals[pIdx+MinMIDI] = true
		}
	}

	var out []rawNote
	for pIdx := 0; pIdx < Pitches; pIdx++ {
		pitch := pIdx + MinMIDI
		if detected[pitch] {
			continue
		}

		runStart := -1
		for t := 0; t < len(frame); t++ {
			if frame[t][pIdx] > effectiveFrameThr {
				if runStart < 0 {
					runStart = t
				}
				break
			}
		}
		if runStart < 0 {
			continue
		}

		isHarmonic := false
		var frameMax float64
		for t := 0; t < len(frame); t++ {
			if frame[t][pIdx] > frameMax {
				frameMax = frame[t][pIdx]
			}
		}
		for fundamental := range candidateFundamentals {
			if fundamental == pitch {
				continue
			}
			if harmonicRatioReject(domain.MIDIToFreq(pitch), domain.MIDIToFreq(fundamental)) {
				isHarmonic = true
				break
			}
		}
		isExpected := cfg.ExpectedPitches[pitch]
		if isHarmonic && !(isExpected && frameMax > 0.5) {
			continue
		}

		off := findOffset(frame, frame, runStart, pIdx, frameThr, 2*int(math.Round(2.0/FrameDurationS)))
		out = append(out, rawNote{
			pitch:         pitch,
			onsetFrame:    runStart,
			offsetFrame:   off,
			velocity:      frame[runStart][pIdx],
			confidence:    meanFrameProb(frame, runStart, off, pIdx),
			onsetStrength: onset[runStart][pIdx],
		})
	}
	return out
}

// scoreAwareRescue implements step 6.
func scoreAwareRescue(detected map[int]bool, onset, frame [][]float64, cfg DecodeConfig) []rawNote {
	if !cfg.ScoreAware || len(cfg.ExpectedPitches) == 0 {
		return nil
	}

	var out []rawNote
	for pitch := range cfg.ExpectedPitches {
		if detected[pitch] {
			continue
		}
		pIdx := pitch - MinMIDI
		if pIdx < 0 || pIdx >= Pitches {
			continue
		}

		bestT, bestOnset := -1, -1.0
		for t := 0; t < len(onset); t++ {
			if onset[t][pIdx] > bestOnset {
				bestOnset = onset[t][pIdx]
				bestT = t
			}
		}
		if bestT < 0 {
			continue
		}

		pTarget := math.Max(onset[bestT][pIdx], frame[bestT][pIdx])

		var pOther float64
		for other := 0; other < Pitches; other++ {
			otherPitch := other + MinMIDI
			if withinOneSemitone(otherPitch, cfg.ExpectedPitches) {
				continue
			}
			v := math.Max(onset[bestT][other], frame[bestT][other])
			if v > pOther {
				pOther = v
			}
		}

		if pTarget >= 0.20 && pTarget/(pOther+0.01) >= 2.0 {
			off := findOffset(frame, frame, bestT, pIdx, defaultFrameThr, 2*int(math.Round(2.0/FrameDurationS)))
			out = append(out, rawNote{
				pitch:         pitch,
				onsetFrame:    bestT,
				offsetFrame:   off,
				velocity:      onset[bestT][pIdx],
				confidence:    pTarget,
				onsetStrength: onset[bestT][pIdx],
			})
		}
	}
	return out
}

func withinOneSemitone(pitch int, expected map[int]bool) bool {
	for e := range expected {
		if abs(pitch-e) <= 1 {
			return true
		}
	}
	return false
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// confidenceFloor implements step 7.
func confidenceFloor(notes []rawNote, cfg DecodeConfig) []rawNote {
	out := notes[:0]
	for _, n := range notes {
		floor := 0.10
		if cfg.ExpectedPitches[n.pitch] {
			floor = 0.08
		}
		if n.confidence < floor {
			continue
		}
		out = append(out, n)
	}
	return out
}

func toNoteEvent(n rawNote, windowStartS float64) domain.NoteEvent {
	onsetS := windowStartS + float64(n.onsetFrame)*FrameDurationS
	offsetS := windowStartS + float64(n.offsetFrame)*FrameDurationS
	return domain.NoteEvent{
		Pitch:         n.pitch,
		NoteName:      domain.MIDIToNoteName(n.pitch),
		Onset:         onsetS,
		Offset:        offsetS,
		Velocity:      n.velocity,
		Confidence:    n.confidence,
		OnsetStrength: n.onsetStrength,
	}
}
