// Package ingress provides a local-microphone domain.FrameSource via
// miniaudio (malgo), for running the pipeline against a live mic
// instead of a WebSocket client — useful for the debug dashboard and
// for manual testing without a browser.
package ingress

import (
	"context"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/hammamikhairi/pianopractice/internal/domain"
	"github.com/hammamikhairi/pianopractice/internal/logger"
)

const defaultQueueCap = 64

// MicSource captures mono float32 PCM from the default input device and
// exposes it as a domain.FrameSource. One device is opened per
// MicSource; Close releases it.
type MicSource struct {
	log   *logger.Logger
	ctx   *malgo.AllocatedContext
	dev   *malgo.Device
	rate  int
	out   chan domain.AudioFrame
	drops atomic.Int64
}

// NewMicSource opens the default capture device at sampleRate (must be
// one of the supported ingress rates: 16000, 22050, 44100, 48000).
func NewMicSource(sampleRate int, log *logger.Logger) (*MicSource, error) {
	mCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, err
	}

	m := &MicSource{
		log:  log,
		ctx:  mCtx,
		rate: sampleRate,
		out:  make(chan domain.AudioFrame, defaultQueueCap),
	}

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.SampleRate = uint32(sampleRate)
	devCfg.Capture.Format = malgo.FormatS16
	devCfg.Capture.Channels = 1
	devCfg.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_ []byte, raw []byte, _ uint32) {
			if len(raw) == 0 {
				return
			}
			frame := domain.AudioFrame{
				Samples:    pcm16ToFloat32(raw),
				Channels:   1,
				SampleRate: sampleRate,
			}
			select {
			case m.out <- frame:
			default:
				m.drops.Add(1)
			}
		},
	}

	dev, err := malgo.InitDevice(mCtx.Context, devCfg, callbacks)
	if err != nil {
		mCtx.Uninit()
		mCtx.Free()
		return nil, err
	}
	m.dev = dev

	if err := dev.Start(); err != nil {
		dev.Uninit()
		mCtx.Uninit()
		mCtx.Free()
		return nil, err
	}

	return m, nil
}

func pcm16ToFloat32(raw []byte) []float32 {
	n := len(raw) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(uint16(raw[i*2]) | uint16(raw[i*2+1])<<8)
		out[i] = float32(v) / 32768.0
	}
	return out
}

// Next implements domain.FrameSource.
func (m *MicSource) Next(ctx context.Context) (domain.AudioFrame, bool, error) {
	select {
	case <-ctx.Done():
		return domain.AudioFrame{}, false, ctx.Err()
	case f, ok := <-m.out:
		if !ok {
			return domain.AudioFrame{}, false, nil
		}
		return f, true, nil
	}
}

// DroppedChunks returns the number of audio chunks dropped because the
// consumer fell behind the capture callback.
func (m *MicSource) DroppedChunks() int64 {
	return m.drops.Load()
}

// Close stops capture and releases the device and audio context.
func (m *MicSource) Close() error {
	if m.dev != nil {
		m.dev.Uninit()
	}
	if m.ctx != nil {
		_ = m.ctx.Uninit()
		m.ctx.Free()
	}
	close(m.out)
	return nil
}
