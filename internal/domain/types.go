// Package domain defines the core types and interfaces for the piano
// practice engine. All other packages depend on domain; domain depends
// on nothing but the standard library.
package domain

// Pcm is an ordered sequence of mono float samples in [-1, 1], tagged
// with the sample rate they were captured at. Stereo input is downmixed
// to mono by channel averaging before it ever becomes a Pcm.
type Pcm struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the duration of the PCM buffer in seconds.
func (p Pcm) Duration() float64 {
	if p.SampleRate == 0 {
		return 0
	}
	return float64(len(p.Samples)) / float64(p.SampleRate)
}

// Window is an immutable slice of Pcm of fixed length, carrying the
// absolute session-clock offset of its first sample.
type Window struct {
	Pcm
	AbsoluteStartS float64
}

// EndS returns the absolute timestamp of the sample just past the
// window's end.
func (w Window) EndS() float64 {
	return w.AbsoluteStartS + w.Duration()
}

// MinNoteDuration is the shortest a NoteEvent's (offset - onset) may be.
const MinNoteDuration = 0.03

// NoteEvent is a single detected or transcribed note.
type NoteEvent struct {
	Pitch          int // MIDI number, 21 (A0) .. 108 (C8)
	NoteName       string
	Onset          float64 // seconds, absolute session clock
	Offset         float64
	Velocity       float64 // [0,1]
	Confidence     float64 // [0,1]
	OnsetStrength  float64 // [0,1]
}

// Register is the coarse pitch-register tag on an OnsetEvent, derived
// from the spectral centroid of the frame that triggered it.
type Register int

const (
	RegisterBass Register = iota
	RegisterMid
	RegisterTreble
)

func (r Register) String() string {
	switch r {
	case RegisterBass:
		return "bass"
	case RegisterMid:
		return "mid"
	case RegisterTreble:
		return "treble"
	default:
		return "unknown"
	}
}

// OnsetEvent is the fast-path "something started" signal emitted by the
// OnsetDetector, well before a pitch estimate is available.
type OnsetEvent struct {
	TimestampS float64
	Strength   float64
	Register   Register
}

// DetectorTag identifies which detector produced a DetectionResult, used
// both for client-visible diagnostics and for the fallback-degradation
// signal described in the error-handling design.
type DetectorTag string

const (
	DetectorMono     DetectorTag = "autocorr"
	DetectorPoly     DetectorTag = "transcriber"
	DetectorCQT      DetectorTag = "cqt_fallback"
	DetectorHybrid   DetectorTag = "hybrid"
)

// DetectionResult is the arbiter's normalised output for one analysis
// window. |Notes| == |Frequencies| == |Confidences| always holds.
type DetectionResult struct {
	Notes        []string
	Frequencies  []float64
	Confidences  []float64
	IsMatch      bool
	DetectorUsed DetectorTag
	LatencyMs    float64
	Raw          any // opaque: the decoder's NoteEvents, or nil
}
