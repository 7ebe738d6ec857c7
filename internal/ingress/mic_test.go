package ingress

import "testing"

func TestPCM16ToFloat32FullScale(t *testing.T) {
	raw := []byte{0xFF, 0x7F, 0x00, 0x80} // int16 max, int16 min, little-endian
	out := pcm16ToFloat32(raw)
	if len(out) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(out))
	}
	if out[0] < 0.99 || out[0] > 1.0 {
		t.Errorf("expected near +1.0, got %v", out[0])
	}
	if out[1] != -1.0 {
		t.Errorf("expected exactly -1.0, got %v", out[1])
	}
}

func TestPCM16ToFloat32Silence(t *testing.T) {
	raw := []byte{0x00, 0x00, 0x00, 0x00}
	out := pcm16ToFloat32(raw)
	for _, s := range out {
		if s != 0 {
			t.Errorf("expected silence, got %v", s)
		}
	}
}
