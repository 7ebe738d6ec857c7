package ws

import (
	"github.com/hammamikhairi/pianopractice/internal/config"
	"github.com/hammamikhairi/pianopractice/internal/domain"
	"github.com/hammamikhairi/pianopractice/internal/follower"
)

// followerConfigFor derives follower tuning from the shared pipeline
// config; the exercise is not consulted. Every session runs in
// practice mode (no timing gate); no control message switches to
// metronome-strict grading.
func followerConfigFor(ex *domain.BeatExercise, cfg config.PipelineConfig) follower.Config {
	return follower.Config{
		LookaheadGroups:      cfg.Follower.LookaheadGroups,
		FrequencyToleranceHz: cfg.Detect.FrequencyToleranceHz,
		PracticeMode:         true,
		CountInTimeoutS:      cfg.Follower.CountInTimeoutS,
	}
}

type allNotesEntry struct {
	Notes   []string `json:"notes"`
	Hand    string   `json:"hand"`
	Bar     int      `json:"bar"`
	Fingers []int    `json:"fingers,omitempty"`
}

func exerciseStartedPayload(ex *domain.BeatExercise) map[string]any {
	allNotes := make([]allNotesEntry, len(ex.Groups))
	for i, g := range ex.Groups {
		allNotes[i] = allNotesEntry{
			Notes:   g.Notes,
			Hand:    g.Hand.String(),
			Bar:     g.BarIndex,
			Fingers: g.Fingers,
		}
	}

	return map[string]any{
		"name":         ex.Name,
		"total_groups": len(ex.Groups),
		"bpm":          ex.BPM,
		"time_signature": map[string]any{
			"num":       ex.TimeSignature.Num,
			"den":       ex.TimeSignature.Den,
			"beat_unit": ex.TimeSignature.BeatUnit(),
		},
		"beats_per_bar": ex.BeatsPerBar,
		"all_notes":     allNotes,
	}
}
