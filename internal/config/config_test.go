package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultPassesValidation(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Ring.SampleRate != 44100 {
		t.Errorf("expected default sample rate 44100, got %d", cfg.Ring.SampleRate)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Onset.FFTSize != 2048 {
		t.Errorf("expected default fft size, got %d", cfg.Onset.FFTSize)
	}
}

func TestLoadOverridesSubsetOfFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preset.yaml")
	yamlBody := `
ring:
  window_samples: 49392
  hop_ratio: 0.5
  sample_rate: 48000
onset:
  fft_size: 4096
  energy_threshold: 0.01
  history_size: 10
mono:
  preset: v2
  primary_threshold: 0.15
  fallback_strict: 0.35
  fallback_relaxed: 0.55
harmonic:
  ratio_tolerance: 0.08
  ratio_tolerance_high: 0.15
  dedup_window_ms: 500
detect:
  frequency_tolerance_hz: 15
  semitone_tolerance: 1
follower:
  lookahead_groups: 2
  timing_tolerance_frac: 0.35
  timing_max_frac: 0.7
  tempo_multiplier_min: 0.5
  tempo_multiplier_max: 1.0
  count_in_timeout_s: 6
slow_path_workers: 2
`
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Ring.SampleRate != 48000 {
		t.Errorf("expected overridden sample rate 48000, got %d", cfg.Ring.SampleRate)
	}
	if cfg.Onset.FFTSize != 4096 {
		t.Errorf("expected overridden fft size 4096, got %d", cfg.Onset.FFTSize)
	}
	if cfg.Mono.Preset != "v2" {
		t.Errorf("expected overridden preset v2, got %q", cfg.Mono.Preset)
	}
}

func TestLoadRejectsInvalidSampleRate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("ring:\n  window_samples: 1024\n  hop_ratio: 0.5\n  sample_rate: 11025\n"), 0o644)

	if _, err := Load(path); err == nil {
		t.Error("expected validation error for unsupported sample rate")
	}
}

func TestTimingToleranceClamping(t *testing.T) {
	f := Default().Follower
	if got := f.TimingToleranceS(0.01); got != 0.12 {
		t.Errorf("expected floor 0.12, got %v", got)
	}
	if got := f.TimingMaxS(10); got != 0.8 {
		t.Errorf("expected ceiling 0.8, got %v", got)
	}
}
