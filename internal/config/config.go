// Package config loads and validates the tuning constants that govern
// every stage of the practice pipeline: window sizing, onset and pitch
// thresholds, harmonic-rejection tolerances, timing gates, and tempo
// bounds. Defaults match the values the pipeline ships with; a YAML
// file can replace any subset of them without recompiling.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"
)

// RingConfig tunes window scheduling.
type RingConfig struct {
	WindowSamples int     `yaml:"window_samples" validate:"required,gt=0"`
	HopRatio      float64 `yaml:"hop_ratio" validate:"gt=0,lte=1"`
	SampleRate    int     `yaml:"sample_rate" validate:"required,oneof=16000 22050 44100 48000"`
}

// OnsetConfig tunes the spectral-flux onset detector.
type OnsetConfig struct {
	FFTSize         int     `yaml:"fft_size" validate:"required,gt=0"`
	EnergyThreshold float64 `yaml:"energy_threshold" validate:"gt=0"`
	HistorySize     int     `yaml:"history_size" validate:"gt=0"`
}

// MonoConfig selects and tunes the YIN estimator.
type MonoConfig struct {
	Preset             string  `yaml:"preset" validate:"omitempty,oneof=v2 v3"`
	PrimaryThreshold   float64 `yaml:"primary_threshold" validate:"gt=0,lt=1"`
	FallbackStrict     float64 `yaml:"fallback_strict" validate:"gt=0,lt=1"`
	FallbackRelaxed    float64 `yaml:"fallback_relaxed" validate:"gt=0,lt=1"`
}

// HarmonicConfig tunes octave/harmonic rejection tolerances.
type HarmonicConfig struct {
	RatioTolerance     float64 `yaml:"ratio_tolerance" validate:"gt=0,lt=1"`
	RatioToleranceHigh float64 `yaml:"ratio_tolerance_high" validate:"gt=0,lt=1"`
	DedupWindowMs      int     `yaml:"dedup_window_ms" validate:"gt=0"`
}

// DetectConfig tunes the arbiter's match classification.
type DetectConfig struct {
	FrequencyToleranceHz       float64 `yaml:"frequency_tolerance_hz" validate:"gt=0"`
	SemitoneToleranceSemitones int     `yaml:"semitone_tolerance" validate:"gt=0"`
}

// FollowerConfig tunes the score follower's timing gates and tempo bounds.
type FollowerConfig struct {
	LookaheadGroups      int     `yaml:"lookahead_groups" validate:"gt=0"`
	TimingToleranceFrac  float64 `yaml:"timing_tolerance_frac" validate:"gt=0,lt=1"`
	TimingMaxFrac        float64 `yaml:"timing_max_frac" validate:"gt=0,lt=1"`
	TempoMultiplierMin   float64 `yaml:"tempo_multiplier_min" validate:"gt=0,lte=1"`
	TempoMultiplierMax   float64 `yaml:"tempo_multiplier_max" validate:"gt=0,lte=1"`
	CountInTimeoutS      float64 `yaml:"count_in_timeout_s" validate:"gt=0"`
}

// PipelineConfig is the full tuning surface for one server instance.
// It is constructed once at startup and shared read-only across every
// session's components, per the explicit-context redesign.
type PipelineConfig struct {
	Ring     RingConfig     `yaml:"ring" validate:"required"`
	Onset    OnsetConfig    `yaml:"onset" validate:"required"`
	Mono     MonoConfig     `yaml:"mono" validate:"required"`
	Harmonic HarmonicConfig `yaml:"harmonic" validate:"required"`
	Detect   DetectConfig   `yaml:"detect" validate:"required"`
	Follower FollowerConfig `yaml:"follower" validate:"required"`

	SlowPathWorkers int    `yaml:"slow_path_workers" validate:"gt=0"`
	ModelPath       string `yaml:"model_path"`
	ModelLibPath    string `yaml:"model_lib_path"`
}

// Default returns the tuning constants the pipeline ships with.
func Default() PipelineConfig {
	return PipelineConfig{
		Ring: RingConfig{
			WindowSamples: 49392,
			HopRatio:      0.5,
			SampleRate:    44100,
		},
		Onset: OnsetConfig{
			FFTSize:         2048,
			EnergyThreshold: 0.01,
			HistorySize:     10,
		},
		Mono: MonoConfig{
			Preset:           "v3",
			PrimaryThreshold: 0.15,
			FallbackStrict:   0.35,
			FallbackRelaxed:  0.55,
		},
		Harmonic: HarmonicConfig{
			RatioTolerance:     0.08,
			RatioToleranceHigh: 0.15,
			DedupWindowMs:      500,
		},
		Detect: DetectConfig{
			FrequencyToleranceHz:       15,
			SemitoneToleranceSemitones: 1,
		},
		Follower: FollowerConfig{
			LookaheadGroups:     2,
			TimingToleranceFrac: 0.35,
			TimingMaxFrac:       0.7,
			TempoMultiplierMin:  0.5,
			TempoMultiplierMax:  1.0,
			CountInTimeoutS:     6,
		},
		SlowPathWorkers: 4,
	}
}

// Load reads a YAML tuning-preset file, falling back to defaults for
// any section the file omits, then validates the merged result. A
// missing path is not an error — Default() is returned as-is.
func Load(path string) (PipelineConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("config: invalid tuning preset %s: %w", path, err)
	}
	return cfg, nil
}

// TimingToleranceS returns the clamp(0.35*beat, 0.12, 0.45) timing
// acceptance window for the given beat duration in seconds.
func (f FollowerConfig) TimingToleranceS(beatDurationS float64) float64 {
	return clamp(f.TimingToleranceFrac*beatDurationS, 0.12, 0.45)
}

// TimingMaxS returns the clamp(0.7*beat, 0.2, 0.8) expiry window for
// the given beat duration in seconds.
func (f FollowerConfig) TimingMaxS(beatDurationS float64) float64 {
	return clamp(f.TimingMaxFrac*beatDurationS, 0.2, 0.8)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
