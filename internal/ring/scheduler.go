// Package ring accumulates variable-size PCM chunks and yields fixed-size
// analysis windows with configurable overlap, matching §4.1 of the
// engine design. The compaction strategy — copy the unread tail to the
// front of a reused slice rather than repeatedly reslicing — mirrors the
// way the neural wakeword pipeline manages its own audio backlog.
package ring

import (
	"github.com/hammamikhairi/pianopractice/internal/domain"
	"github.com/hammamikhairi/pianopractice/internal/logger"
)

// Config configures a Scheduler.
type Config struct {
	WindowSamples int
	HopRatio      float64 // default 0.5
	SampleRate    int
}

func (c *Config) defaults() {
	if c.HopRatio <= 0 {
		c.HopRatio = 0.5
	}
}

// Scheduler turns a stream of PCM chunks into fixed-size, overlap-aware
// Windows carrying an absolute-timeline offset that survives internal
// buffer compaction.
type Scheduler struct {
	cfg         Config
	hopSamples  int
	log         *logger.Logger
	buf         []float32
	readPos     int   // next unread sample within buf
	compactedS  int64 // samples permanently discarded from the front
	emittedOne  bool
}

// New creates a window scheduler. windowSamples must be > 0.
func New(cfg Config, log *logger.Logger) *Scheduler {
	cfg.defaults()
	hop := int(float64(cfg.WindowSamples) * cfg.HopRatio)
	if hop <= 0 {
		hop = cfg.WindowSamples
	}
	return &Scheduler{cfg: cfg, hopSamples: hop, log: log}
}

// AddChunk appends samples to the tail of the buffer and returns every
// window that became available as a result, oldest first.
func (s *Scheduler) AddChunk(samples []float32) []domain.Window {
	s.buf = append(s.buf, samples...)

	var out []domain.Window
	for len(s.buf)-s.readPos >= s.cfg.WindowSamples {
		w := s.emit(s.buf[s.readPos : s.readPos+s.cfg.WindowSamples])
		out = append(out, w)

		advance := s.hopSamples
		if !s.emittedOne {
			advance = s.cfg.WindowSamples
			s.emittedOne = true
		}
		s.readPos += advance
		s.maybeCompact()
	}
	return out
}

// Flush produces a final, zero-padded window from any remaining tail
// that is at least 25% of WindowSamples, then resets internal state.
// Returns false if the tail was too short to flush.
func (s *Scheduler) Flush() (domain.Window, bool) {
	tail := s.buf[s.readPos:]
	minTail := s.cfg.WindowSamples / 4
	if len(tail) < minTail {
		s.Reset()
		return domain.Window{}, false
	}

	padded := make([]float32, s.cfg.WindowSamples)
	copy(padded, tail)
	w := s.emit(padded)
	s.Reset()
	return w, true
}

// Reset clears all internal state. The scheduler never drops samples
// on its own; only Reset does.
func (s *Scheduler) Reset() {
	s.buf = nil
	s.readPos = 0
	s.compactedS = 0
	s.emittedOne = false
}

func (s *Scheduler) emit(samples []float32) domain.Window {
	cp := make([]float32, len(samples))
	copy(cp, samples)
	startS := float64(s.compactedS+int64(s.readPos)) / float64(s.cfg.SampleRate)
	return domain.Window{
		Pcm:            domain.Pcm{Samples: cp, SampleRate: s.cfg.SampleRate},
		AbsoluteStartS: startS,
	}
}

// maybeCompact discards the consumed prefix once it exceeds 4x the
// window size, preserving last_window_start_s across the compaction by
// folding the discarded length into compactedS.
func (s *Scheduler) maybeCompact() {
	if s.readPos <= 4*s.cfg.WindowSamples {
		return
	}
	n := copy(s.buf, s.buf[s.readPos:])
	s.buf = s.buf[:n]
	s.compactedS += int64(s.readPos)
	s.readPos = 0
	if s.log != nil {
		s.log.Debug("compacted ring buffer, offset now %d samples", s.compactedS)
	}
}

// Pending returns the number of unconsumed samples currently buffered.
func (s *Scheduler) Pending() int {
	return len(s.buf) - s.readPos
}
