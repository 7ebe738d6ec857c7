// Package poly implements the PolyTranscriber contract from §4.4: a
// neural black box mapped to `ModelOutput` arrays by a fixed-shape ONNX
// session (grounded on the same yalue/onnxruntime_go wiring the
// teacher's wakeword detector uses for its three cascaded models), plus
// the decoding pipeline applied to those arrays — which is core logic,
// independent of whatever weights back the model.
package poly

import "context"

// Frame geometry the decoder assumes, per §4.4.
const (
	InputSamples = 17920
	InputRateHz  = 16000
	Frames       = 32
	Pitches      = 88  // MIDI 21..108
	MinMIDI      = 21
	FrameDurationS = float64(InputSamples) / float64(InputRateHz) / float64(Frames)
)

// ModelOutput is the raw four-array output the transcriber produces for
// one window: frame/onset/offset activations and per-frame velocities,
// each shaped [Frames][Pitches]. Arrays may be raw logits or already
// sigmoided probabilities — Logits tells the decoder which.
type ModelOutput struct {
	FrameProbs  [][]float64
	OnsetProbs  [][]float64
	OffsetProbs [][]float64
	Velocities  [][]float64
	Logits      bool
}

// Model is the black-box contract the core depends on. Implementations
// may be a real ONNX session, a stub for tests, or a remote inference
// call — the decoder in this package never knows the difference.
type Model interface {
	Infer(ctx context.Context, pcm16k []float32) (ModelOutput, error)
}
