// Package onset implements the fast-path "something started" signal
// described in §4.2: a positive spectral-flux detector with an adaptive
// threshold, built on gonum's FFT the way the rest of the retrieval
// pack's realtime audio servers build their flux-based onset/BPM
// detectors.
package onset

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"

	"github.com/hammamikhairi/pianopractice/internal/domain"
	"github.com/hammamikhairi/pianopractice/internal/logger"
)

// Config tunes the onset detector.
type Config struct {
	FFTSize         int     // default 2048
	HopSamples      int     // default FFTSize/4
	EnergyThreshold float64 // default 0.01
	SampleRate      int
	HistorySize     int // default 10
}

func (c *Config) defaults() {
	if c.FFTSize <= 0 {
		c.FFTSize = 2048
	}
	if c.HopSamples <= 0 {
		c.HopSamples = c.FFTSize / 4
	}
	if c.EnergyThreshold <= 0 {
		c.EnergyThreshold = 0.01
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 10
	}
}

// Detector computes positive spectral flux per frame and signals
// low-latency onset events with a coarse register tag.
type Detector struct {
	cfg  Config
	fft  *fourier.FFT
	hann []float64
	log  *logger.Logger

	buf              []float32
	prevMag          []float64
	fluxHistory      []float64
	samplesProcessed int64
}

// New creates an onset detector. cfg.SampleRate must be set.
func New(cfg Config, log *logger.Logger) *Detector {
	cfg.defaults()
	d := &Detector{
		cfg:  cfg,
		fft:  fourier.NewFFT(cfg.FFTSize),
		hann: hannWindow(cfg.FFTSize),
		log:  log,
	}
	return d
}

func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// ProcessChunk feeds newly arrived samples through the rolling onset
// pipeline and returns every OnsetEvent that fired, oldest first.
func (d *Detector) ProcessChunk(samples []float32) []domain.OnsetEvent {
	d.buf = append(d.buf, samples...)

	var out []domain.OnsetEvent
	for len(d.buf) >= d.cfg.FFTSize {
		frame := d.buf[:d.cfg.FFTSize]
		if ev, ok := d.processFrame(frame); ok {
			out = append(out, ev)
		}
		d.samplesProcessed += int64(d.cfg.HopSamples)

		if d.cfg.HopSamples >= len(d.buf) {
			d.buf = d.buf[:0]
			break
		}
		n := copy(d.buf, d.buf[d.cfg.HopSamples:])
		d.buf = d.buf[:n]
	}
	return out
}

func (d *Detector) processFrame(frame []float32) (domain.OnsetEvent, bool) {
	if rms(frame) < d.cfg.EnergyThreshold {
		return domain.OnsetEvent{}, false
	}

	windowed := make([]float64, len(frame))
	for i, v := range frame {
		windowed[i] = float64(v) * d.hann[i]
	}

	coeffs := d.fft.Coefficients(nil, windowed)
	mag := make([]float64, len(coeffs))
	for i, c := range coeffs {
		mag[i] = cmplx.Abs(c)
	}

	var flux float64
	if d.prevMag != nil {
		for i := range mag {
			if diff := mag[i] - d.prevMag[i]; diff > 0 {
				flux += diff
			}
		}
	}
	d.prevMag = mag

	d.fluxHistory = append(d.fluxHistory, flux)
	if len(d.fluxHistory) > d.cfg.HistorySize {
		d.fluxHistory = d.fluxHistory[len(d.fluxHistory)-d.cfg.HistorySize:]
	}
	if len(d.fluxHistory) < 2 {
		return domain.OnsetEvent{}, false
	}

	mean := stat.Mean(d.fluxHistory, nil)
	sd := stat.StdDev(d.fluxHistory, nil)
	threshold := mean + 2*sd

	if flux <= threshold || flux <= 0 {
		return domain.OnsetEvent{}, false
	}

	centroid := spectralCentroid(mag, d.cfg.SampleRate, d.cfg.FFTSize)
	ev := domain.OnsetEvent{
		TimestampS: float64(d.samplesProcessed) / float64(d.cfg.SampleRate),
		Strength:   flux,
		Register:   registerFor(centroid),
	}
	if d.log != nil {
		d.log.Debug("onset at %.3fs strength=%.4f register=%s", ev.TimestampS, ev.Strength, ev.Register)
	}
	return ev, true
}

func registerFor(centroidHz float64) domain.Register {
	switch {
	case centroidHz < 250:
		return domain.RegisterBass
	case centroidHz <= 1000:
		return domain.RegisterMid
	default:
		return domain.RegisterTreble
	}
}

func spectralCentroid(mag []float64, sampleRate, fftSize int) float64 {
	var weighted, total float64
	for i, m := range mag {
		freq := float64(i) * float64(sampleRate) / float64(fftSize)
		weighted += freq * m
		total += m
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

func rms(samples []float32) float64 {
	var sumSq float64
	for _, s := range samples {
		sumSq += float64(s) * float64(s)
	}
	return math.Sqrt(sumSq / float64(len(samples)))
}

// Reset clears all rolling state (used on session teardown/replay).
func (d *Detector) Reset() {
	d.buf = nil
	d.prevMag = nil
	d.fluxHistory = nil
	d.samplesProcessed = 0
}
