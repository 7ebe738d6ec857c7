// Package feedback provides audible practice feedback: a click-track
// metronome built on oto, synthesizing PCM clicks directly rather than
// decoding pre-recorded audio.
package feedback

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/hammamikhairi/pianopractice/internal/logger"
)

const (
	sampleRate   = 44100
	channelCount = 1
	clickDurS    = 0.03 // 30ms click
)

// Metronome plays a click on every beat, with a distinct accented click
// on beat one of each bar, at a tempo that can change between bars
// without rebuilding the player.
type Metronome struct {
	ctx      *oto.Context
	log      *logger.Logger
	downbeat []byte
	beat     []byte
	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
}

// New creates a metronome. Initializes its own audio context
// independent of any speech playback context, since the two may run at
// different sample rates.
func New(log *logger.Logger) (*Metronome, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channelCount,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-readyChan

	return &Metronome{
		ctx:      ctx,
		log:      log,
		downbeat: synthClick(1000),
		beat:     synthClick(700),
	}, nil
}

// synthClick renders a short exponentially-decaying sine burst as
// signed 16-bit PCM, matching the raw format oto.NewPlayer expects.
func synthClick(freqHz float64) []byte {
	n := int(clickDurS * sampleRate)
	buf := new(bytes.Buffer)
	buf.Grow(n * 2)
	for i := 0; i < n; i++ {
		t := float64(i) / sampleRate
		decay := math.Exp(-30 * t)
		sample := decay * math.Sin(2*math.Pi*freqHz*t)
		binary.Write(buf, binary.LittleEndian, int16(sample*20000))
	}
	return buf.Bytes()
}

// TempoFunc returns the current tempo multiplier in [0.5, 1.0], pulled
// fresh on every beat so the metronome tracks live tempo adaptation
// without the follower needing to push changes into this package.
type TempoFunc func() float64

// Run plays clicks at bpm*tempo() until ctx is cancelled or Stop is
// called. beatsPerBar controls which beat gets the accented downbeat
// click. Blocks the calling goroutine — callers should run it in its
// own goroutine.
func (m *Metronome) Run(ctx context.Context, bpm float64, beatsPerBar int, tempo TempoFunc) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	stopCh := m.stopCh
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	if beatsPerBar <= 0 {
		beatsPerBar = 4
	}

	beatIdx := 0
	for {
		mult := tempo()
		if mult <= 0 {
			mult = 1.0
		}
		interval := time.Duration(60.0 / (bpm * mult) * float64(time.Second))

		clip := m.beat
		if beatIdx%beatsPerBar == 0 {
			clip = m.downbeat
		}
		m.play(clip)
		beatIdx++

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-time.After(interval):
		}
	}
}

func (m *Metronome) play(pcm []byte) {
	player := m.ctx.NewPlayer(bytes.NewReader(pcm))
	player.Play()
	go func() {
		for player.IsPlaying() {
			time.Sleep(2 * time.Millisecond)
		}
		player.Close()
	}()
}

// Stop halts a running Run call.
func (m *Metronome) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running && m.stopCh != nil {
		close(m.stopCh)
	}
}
