package feedback

import "testing"

func TestSynthClickLength(t *testing.T) {
	clip := synthClick(1000)
	wantSamples := int(clickDurS * sampleRate)
	if len(clip) != wantSamples*2 {
		t.Errorf("expected %d bytes, got %d", wantSamples*2, len(clip))
	}
}

func TestSynthClickDecaysTowardSilence(t *testing.T) {
	clip := synthClick(1000)
	n := len(clip) / 2
	firstHalfMax := maxAbsInt16(clip[:n])
	secondHalfMax := maxAbsInt16(clip[n:])
	if secondHalfMax >= firstHalfMax {
		t.Errorf("expected decay: first half max %d, second half max %d", firstHalfMax, secondHalfMax)
	}
}

func maxAbsInt16(buf []byte) int {
	max := 0
	for i := 0; i+1 < len(buf); i += 2 {
		v := int(int16(uint16(buf[i]) | uint16(buf[i+1])<<8))
		if v < 0 {
			v = -v
		}
		if v > max {
			max = v
		}
	}
	return max
}
