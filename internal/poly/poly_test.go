package poly

import (
	"context"
	"testing"

	"github.com/hammamikhairi/pianopractice/internal/domain"
)

// stubModel returns a fixed ModelOutput regardless of input, letting
// the decoder logic be exercised without an ONNX runtime.
type stubModel struct {
	out ModelOutput
}

func (s stubModel) Infer(ctx context.Context, pcm16k []float32) (ModelOutput, error) {
	return s.out, nil
}

func zeroArrays() (frame, onset, offset, vel [][]float64) {
	frame = make([][]float64, Frames)
	onset = make([][]float64, Frames)
	offset = make([][]float64, Frames)
	vel = make([][]float64, Frames)
	for t := 0; t < Frames; t++ {
		frame[t] = make([]float64, Pitches)
		onset[t] = make([]float64, Pitches)
		offset[t] = make([]float64, Pitches)
		vel[t] = make([]float64, Pitches)
	}
	return
}

// sustainNote marks pitch (MIDI) as onset-then-sustained from frame
// `from` through `to` (exclusive) in the given arrays.
func sustainNote(frame, onset, vel [][]float64, pitch, from, to int, velocity float64) {
	pIdx := pitch - MinMIDI
	onset[from][pIdx] = 0.9
	for t := from; t < to && t < Frames; t++ {
		frame[t][pIdx] = 0.8
		vel[t][pIdx] = velocity
	}
}

func TestDecodeSingleNote(t *testing.T) {
	frame, onset, offset, vel := zeroArrays()
	sustainNote(frame, onset, vel, 60, 2, 20, 0.7) // C4

	notes := Decode(ModelOutput{FrameProbs: frame, OnsetProbs: onset, OffsetProbs: offset, Velocities: vel},
		DecodeConfig{SampleRMS: 0.1})

	if len(notes) != 1 {
		t.Fatalf("expected 1 note, got %d: %+v", len(notes), notes)
	}
	if notes[0].Pitch != 60 {
		t.Errorf("pitch = %d, want 60", notes[0].Pitch)
	}
	if notes[0].NoteName != "C4" {
		t.Errorf("note name = %q, want C4", notes[0].NoteName)
	}
}

func TestDecodeDiscardsShortNotes(t *testing.T) {
	frame, onset, offset, vel := zeroArrays()
	sustainNote(frame, onset, vel, 60, 2, 3, 0.5) // one frame is ~35ms, just above the 30ms cutoff

	notes := Decode(ModelOutput{FrameProbs: frame, OnsetProbs: onset, OffsetProbs: offset, Velocities: vel},
		DecodeConfig{SampleRMS: 0.1})

	for _, n := range notes {
		if n.Offset-n.Onset < domain.MinNoteDuration {
			t.Errorf("note shorter than MinNoteDuration survived: %+v", n)
		}
	}
}

func TestDecodeLowRegisterDiscarded(t *testing.T) {
	frame, onset, offset, vel := zeroArrays()
	sustainNote(frame, onset, vel, 40, 2, 20, 0.6) // below MIDI 48

	notes := Decode(ModelOutput{FrameProbs: frame, OnsetProbs: onset, OffsetProbs: offset, Velocities: vel},
		DecodeConfig{SampleRMS: 0.1})

	for _, n := range notes {
		if n.Pitch == 40 {
			t.Error("expected low-register pitch to be discarded")
		}
	}
}

func TestDecodeChordAnchorExpansion(t *testing.T) {
	frame, onset, offset, vel := zeroArrays()
	// C4 as the strong anchor, E4 (4 semitones up) as a weaker chord tone
	// that should be picked up by the anchor-expansion pass.
	sustainNote(frame, onset, vel, 60, 2, 20, 0.7)
	eIdx := 64 - MinMIDI
	onset[2][eIdx] = 0.1
	frame[2][eIdx] = 0.55
	for t := 2; t < 20; t++ {
		frame[t][eIdx] = 0.55
	}

	notes := Decode(ModelOutput{FrameProbs: frame, OnsetProbs: onset, OffsetProbs: offset, Velocities: vel},
		DecodeConfig{SampleRMS: 0.1})

	found := map[int]bool{}
	for _, n := range notes {
		found[n.Pitch] = true
	}
	if !found[60] {
		t.Error("expected anchor C4 present")
	}
	if !found[64] {
		t.Error("expected chord-expansion to surface E4")
	}
}

func TestDecodeScoreAwareRescue(t *testing.T) {
	frame, onset, offset, vel := zeroArrays()
	// C4 is expected but weak everywhere except a faint onset peak;
	// no other pitch competes at that frame.
	cIdx := 60 - MinMIDI
	onset[5][cIdx] = 0.25
	frame[5][cIdx] = 0.1

	notes := Decode(ModelOutput{FrameProbs: frame, OnsetProbs: onset, OffsetProbs: offset, Velocities: vel},
		DecodeConfig{SampleRMS: 0.1, ScoreAware: true, ExpectedPitches: map[int]bool{60: true}})

	found := false
	for _, n := range notes {
		if n.Pitch == 60 {
			found = true
		}
	}
	if !found {
		t.Error("expected score-aware rescue to surface expected pitch 60")
	}
}

func TestTranscribeRoundTrip(t *testing.T) {
	frame, onset, offset, vel := zeroArrays()
	sustainNote(frame, onset, vel, 67, 2, 20, 0.6) // G4

	model := stubModel{out: ModelOutput{FrameProbs: frame, OnsetProbs: onset, OffsetProbs: offset, Velocities: vel}}
	tr := NewTranscriber(model)

	window := domain.Window{
		Pcm:            domain.Pcm{Samples: make([]float32, InputSamples), SampleRate: InputRateHz},
		AbsoluteStartS: 1.5,
	}

	notes, err := tr.Transcribe(context.Background(), window, nil, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notes) != 1 || notes[0].Pitch != 67 {
		t.Fatalf("expected single G4 note, got %+v", notes)
	}
	if notes[0].Onset < window.AbsoluteStartS {
		t.Errorf("onset %v should be offset by window start %v", notes[0].Onset, window.AbsoluteStartS)
	}
}
