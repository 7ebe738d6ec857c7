package ingress

import (
	"context"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"

	"github.com/hammamikhairi/pianopractice/internal/domain"
	"github.com/hammamikhairi/pianopractice/internal/logger"
)

// PortAudioSource is an alternative live-capture backend built on
// portaudio rather than malgo, for hosts where the miniaudio backend
// is unavailable or a different driver (ASIO, JACK) is preferred.
// It implements the same domain.FrameSource contract as MicSource.
type PortAudioSource struct {
	log    *logger.Logger
	stream *portaudio.Stream
	rate   int
	out    chan domain.AudioFrame
	drops  atomic.Int64
}

// NewPortAudioSource opens the default input device at sampleRate
// using portaudio's blocking-stream API and starts a pump goroutine
// that pushes fixed-size chunks into an internal channel.
func NewPortAudioSource(sampleRate int, framesPerChunk int, log *logger.Logger) (*PortAudioSource, error) {
	if framesPerChunk <= 0 {
		framesPerChunk = 1024
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}

	buf := make([]float32, framesPerChunk)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), framesPerChunk, buf)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, err
	}

	s := &PortAudioSource{
		log:    log,
		stream: stream,
		rate:   sampleRate,
		out:    make(chan domain.AudioFrame, defaultQueueCap),
	}

	go s.pump(buf)
	return s, nil
}

func (s *PortAudioSource) pump(buf []float32) {
	defer close(s.out)
	for {
		if err := s.stream.Read(); err != nil {
			return
		}
		chunk := make([]float32, len(buf))
		copy(chunk, buf)
		frame := domain.AudioFrame{Samples: chunk, SampleRate: s.rate, Channels: 1}
		select {
		case s.out <- frame:
		default:
			s.drops.Add(1)
		}
	}
}

// Next implements domain.FrameSource.
func (s *PortAudioSource) Next(ctx context.Context) (domain.AudioFrame, bool, error) {
	select {
	case <-ctx.Done():
		return domain.AudioFrame{}, false, ctx.Err()
	case f, ok := <-s.out:
		return f, ok, nil
	}
}

// DroppedChunks reports how many chunks were discarded because the
// consumer fell behind the capture callback.
func (s *PortAudioSource) DroppedChunks() int64 {
	return s.drops.Load()
}

// Close stops the stream and releases the portaudio runtime.
func (s *PortAudioSource) Close() error {
	err := s.stream.Stop()
	s.stream.Close()
	portaudio.Terminate()
	return err
}
