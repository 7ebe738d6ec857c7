package poly

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hammamikhairi/pianopractice/internal/logger"
)

// OnnxConfig points at the onnx runtime shared library and the
// transcriber graph. Both must be present at construction time —
// model assets never load lazily behind a hidden global, per the
// "lazy global singletons" design-notes flag. Construct one OnnxModel
// at process startup and share it read-only across sessions.
type OnnxConfig struct {
	SharedLibPath string
	ModelPath     string
	InputName     string
	FrameOutput   string
	OnsetOutput   string
	OffsetOutput  string
	VelocityOutput string
}

// OnnxModel is the real transcriber backend: a single fixed-shape ONNX
// session, wired up the same way the wakeword detector wires its
// melspectrogram/embedding/wakeword cascade — SetSharedLibraryPath,
// InitializeEnvironment, NewAdvancedSession with preallocated tensors.
type OnnxModel struct {
	log *logger.Logger

	mu      sync.Mutex // ort sessions are not safe for concurrent Run()
	session *ort.AdvancedSession

	input       *ort.Tensor[float32]
	frameOut    *ort.Tensor[float32]
	onsetOut    *ort.Tensor[float32]
	offsetOut   *ort.Tensor[float32]
	velocityOut *ort.Tensor[float32]
}

// NewOnnxModel initializes the ONNX runtime environment and loads the
// transcriber graph. Call Close when the process shuts down.
func NewOnnxModel(cfg OnnxConfig, log *logger.Logger) (*OnnxModel, error) {
	ort.SetSharedLibraryPath(cfg.SharedLibPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("poly: onnx init: %w", err)
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, InputSamples))
	if err != nil {
		return nil, fmt.Errorf("poly: input tensor: %w", err)
	}
	frameOut, err := ort.NewEmptyTensor[float32](ort.NewShape(1, Frames, Pitches))
	if err != nil {
		return nil, fmt.Errorf("poly: frame tensor: %w", err)
	}
	onsetOut, err := ort.NewEmptyTensor[float32](ort.NewShape(1, Frames, Pitches))
	if err != nil {
		return nil, fmt.Errorf("poly: onset tensor: %w", err)
	}
	offsetOut, err := ort.NewEmptyTensor[float32](ort.NewShape(1, Frames, Pitches))
	if err != nil {
		return nil, fmt.Errorf("poly: offset tensor: %w", err)
	}
	velOut, err := ort.NewEmptyTensor[float32](ort.NewShape(1, Frames, Pitches))
	if err != nil {
		return nil, fmt.Errorf("poly: velocity tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.FrameOutput, cfg.OnsetOutput, cfg.OffsetOutput, cfg.VelocityOutput},
		[]ort.Value{input},
		[]ort.Value{frameOut, onsetOut, offsetOut, velOut},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("poly: session init: %w", err)
	}

	log.Info("poly: transcriber model loaded from %s", cfg.ModelPath)
	return &OnnxModel{
		log:         log,
		session:     session,
		input:       input,
		frameOut:    frameOut,
		onsetOut:    onsetOut,
		offsetOut:   offsetOut,
		velocityOut: velOut,
	}, nil
}

// Infer runs the transcriber on exactly InputSamples of 16kHz PCM.
// Shorter input is zero-padded; longer input is truncated by the
// caller's resampling step, not here.
func (m *OnnxModel) Infer(ctx context.Context, pcm16k []float32) (ModelOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-ctx.Done():
		return ModelOutput{}, ctx.Err()
	default:
	}

	data := m.input.GetData()
	n := copy(data, pcm16k)
	for i := n; i < len(data); i++ {
		data[i] = 0
	}

	if err := m.session.Run(); err != nil {
		return ModelOutput{}, fmt.Errorf("poly: inference failed: %w", err)
	}

	return ModelOutput{
		FrameProbs:  reshape(m.frameOut.GetData()),
		OnsetProbs:  reshape(m.onsetOut.GetData()),
		OffsetProbs: reshape(m.offsetOut.GetData()),
		Velocities:  reshape(m.velocityOut.GetData()),
		Logits:      false,
	}, nil
}

func reshape(flat []float32) [][]float64 {
	out := make([][]float64, Frames)
	for t := 0; t < Frames; t++ {
		row := make([]float64, Pitches)
		for p := 0; p < Pitches; p++ {
			idx := t*Pitches + p
			if idx < len(flat) {
				row[p] = float64(flat[idx])
			}
		}
		out[t] = row
	}
	return out
}

// Close releases the session, tensors, and ONNX runtime environment.
// Safe to call once, at process shutdown.
func (m *OnnxModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.Destroy()
	m.input.Destroy()
	m.frameOut.Destroy()
	m.onsetOut.Destroy()
	m.offsetOut.Destroy()
	m.velocityOut.Destroy()
	ort.DestroyEnvironment()
	return nil
}
