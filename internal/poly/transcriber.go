package poly

import (
	"context"
	"fmt"
	"math"

	"github.com/hammamikhairi/pianopractice/internal/domain"
)

// Transcriber wires a Model to the resample + decode steps, producing
// the public PolyTranscriber contract from a domain.Window.
type Transcriber struct {
	model Model
}

// NewTranscriber wraps any Model implementation (the real OnnxModel, or
// a stub for tests) behind the fixed window-in/notes-out contract.
func NewTranscriber(model Model) *Transcriber {
	return &Transcriber{model: model}
}

// Transcribe resamples window to 16kHz if needed, runs the model, and
// decodes its raw arrays into NoteEvents. expectedPitches and
// scoreAware together select "free" vs "score-aware" decode behavior
// in steps 4 and 6.
func (t *Transcriber) Transcribe(ctx context.Context, window domain.Window, expectedPitches []int, scoreAware bool) ([]domain.NoteEvent, error) {
	pcm16k, err := Resample(window.Samples, window.SampleRate, InputRateHz)
	if err != nil {
		return nil, fmt.Errorf("poly: %w", err)
	}
	if len(pcm16k) > InputSamples {
		pcm16k = pcm16k[:InputSamples]
	}

	out, err := t.model.Infer(ctx, pcm16k)
	if err != nil {
		return nil, fmt.Errorf("poly: infer: %w", err)
	}

	expected := make(map[int]bool, len(expectedPitches))
	for _, p := range expectedPitches {
		expected[p] = true
	}

	cfg := DecodeConfig{
		SampleRMS:       windowRMS(window.Samples),
		ExpectedPitches: expected,
		ScoreAware:      scoreAware,
		WindowStartS:    window.AbsoluteStartS,
	}
	return Decode(out, cfg), nil
}

func windowRMS(samples []float32) float64 {
	var sumSq float64
	for _, s := range samples {
		sumSq += float64(s) * float64(s)
	}
	if len(samples) == 0 {
		return 0
	}
	return math.Sqrt(sumSq / float64(len(samples)))
}
