package follower

import "github.com/hammamikhairi/pianopractice/internal/domain"

// BarStats is the per-status tally for one bar.
type BarStats struct {
	BarIndex int
	Waiting  int
	Partial  int
	Correct  int
	Missed   int
	Total    int
	Clean    bool
}

// GetBarStats implements get_bar_stats(b).
func (f *Follower) GetBarStats(bar int) BarStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.barStatsLocked(bar)
}

func (f *Follower) barStatsLocked(bar int) BarStats {
	stats := BarStats{BarIndex: bar}
	for _, g := range f.exercise.Groups {
		if g.BarIndex != bar {
			continue
		}
		stats.Total++
		switch g.Status {
		case domain.GroupWaiting:
			stats.Waiting++
		case domain.GroupPartial:
			stats.Partial++
		case domain.GroupCorrect:
			stats.Correct++
		case domain.GroupMissed:
			stats.Missed++
		}
	}
	stats.Clean = stats.Missed == 0 && stats.Partial == 0 && stats.Correct == stats.Total && stats.Total > 0
	return stats
}

// Progress is the overall session-completion snapshot.
type Progress struct {
	TotalGroups        int
	CorrectGroups       int
	PartialGroups       int
	MissedGroups        int
	CompletionPercent   float64
	CurrentBar          int
	LastCompletedBar    *BarStats
}

// GetProgress implements get_progress().
func (f *Follower) GetProgress() Progress {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := Progress{TotalGroups: len(f.exercise.Groups)}
	for _, g := range f.exercise.Groups {
		switch g.Status {
		case domain.GroupCorrect:
			p.CorrectGroups++
		case domain.GroupPartial:
			p.PartialGroups++
		case domain.GroupMissed:
			p.MissedGroups++
		}
	}
	if p.TotalGroups > 0 {
		p.CompletionPercent = (float64(p.CorrectGroups) + 0.6*float64(p.PartialGroups)) / float64(p.TotalGroups)
	}

	if f.cursor < len(f.exercise.Groups) {
		p.CurrentBar = f.exercise.Groups[f.cursor].BarIndex
	} else if len(f.exercise.Groups) > 0 {
		p.CurrentBar = f.exercise.Groups[len(f.exercise.Groups)-1].BarIndex
	}

	if lastBar := f.lastCompletedBarLocked(); lastBar >= 0 {
		stats := f.barStatsLocked(lastBar)
		p.LastCompletedBar = &stats
	}
	return p
}

// GetCurrentExpectedNotes implements get_current_expected_notes: the
// note names the cursor group (after expiry) is still waiting on.
func (f *Follower) GetCurrentExpectedNotes(tsS float64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	e := tsS - f.startTimeS
	if e < 0 {
		e = 0
	}
	f.expireLocked(e)

	if f.cursor >= len(f.exercise.Groups) {
		return nil
	}
	return f.exercise.Groups[f.cursor].Notes
}
