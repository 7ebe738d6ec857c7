package poly

import (
	"fmt"
	"math"

	"github.com/hammamikhairi/pianopractice/internal/domain"
)

// Resample converts samples from srcRate to dstRate using a windowed
// sinc polyphase filter over an integer L/M ratio reduced by their gcd.
// Sessions may run audio capture at 44.1kHz or 48kHz; the transcriber
// only ever sees InputRateHz.
func Resample(samples []float32, srcRate, dstRate int) ([]float32, error) {
	if srcRate == dstRate {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out, nil
	}
	if srcRate <= 0 || dstRate <= 0 {
		return nil, fmt.Errorf("%w: rate %d -> %d", domain.ErrUnresolvableResample, srcRate, dstRate)
	}

	g := gcd(srcRate, dstRate)
	l := dstRate / g // upsample factor
	m := srcRate / g // downsample factor
	if l <= 0 || m <= 0 || l > 64 || m > 64 {
		return nil, fmt.Errorf("%w: rate %d -> %d reduces to %d/%d", domain.ErrUnresolvableResample, srcRate, dstRate, l, m)
	}

	taps := sincKernel(l, m, 16)
	upLen := len(samples) * l
	outLen := (upLen + l - 1) / m

	out := make([]float32, 0, outLen)
	half := len(taps) / 2
	for n := 0; n < outLen; n++ {
		center := n * m
		var acc float64
		for k, tap := range taps {
			srcIdx := center - half + k
			if srcIdx%l != 0 {
				continue
			}
			si := srcIdx / l
			if si < 0 || si >= len(samples) {
				continue
			}
			acc += float64(samples[si]) * tap
		}
		out = append(out, float32(acc))
	}
	return out, nil
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	if a < 0 {
		return -a
	}
	return a
}

// sincKernel builds a windowed-sinc lowpass kernel for polyphase
// resampling, cut off at min(1, 1/l, 1/m) of the upsampled rate and
// tapered with a Hann window across halfTaps samples each side.
func sincKernel(l, m, halfTaps int) []float64 {
	cutoff := 1.0 / math.Max(float64(l), float64(m))
	n := 2*halfTaps*l + 1
	taps := make([]float64, n)
	center := n / 2
	for i := range taps {
		x := float64(i - center)
		var s float64
		if x == 0 {
			s = cutoff
		} else {
			arg := math.Pi * cutoff * x
			s = cutoff * math.Sin(arg) / arg
		}
		window := 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
		taps[i] = s * window * float64(l)
	}
	return taps
}
