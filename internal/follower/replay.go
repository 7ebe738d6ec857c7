package follower

import "github.com/hammamikhairi/pianopractice/internal/domain"

// ReplayLastBars implements replay_last_bars(n): resets every group
// from bar = current_bar - n onward back to WAITING, rewinds the
// cursor to the first of those groups, and re-anchors start_time so
// that elapsed time as of nowS (the caller's current session-clock
// reading) equals the replay target's expected_time_s. current_bar is
// the cursor group's bar, or one past the last bar if the exercise has
// already completed (cursor past the end) — testable property #8.
func (f *Follower) ReplayLastBars(n int, nowS float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if n <= 0 || len(f.exercise.Groups) == 0 {
		return
	}

	var currentBar int
	if f.cursor < len(f.exercise.Groups) {
		currentBar = f.exercise.Groups[f.cursor].BarIndex
	} else {
		currentBar = f.exercise.Groups[len(f.exercise.Groups)-1].BarIndex + 1
	}

	replayFromBar := currentBar - n
	if replayFromBar < f.exercise.Groups[0].BarIndex {
		replayFromBar = f.exercise.Groups[0].BarIndex
	}

	replayIdx := -1
	for i, g := range f.exercise.Groups {
		if g.BarIndex >= replayFromBar {
			if replayIdx < 0 {
				replayIdx = i
			}
			g.Status = domain.GroupWaiting
			g.MatchedNotes = make(domain.NoteMultiset)
			g.DetectedAtS = nil
			g.DetectedConfidence = nil
		}
	}
	if replayIdx < 0 {
		return
	}

	f.cursor = replayIdx
	target := f.exercise.Groups[replayIdx]
	f.startTimeS = nowS - target.ExpectedTimeS

	pruneHistoryAfter(f, replayFromBar)
}

func pruneHistoryAfter(f *Follower, bar int) {
	kept := f.history[:0]
	for _, d := range f.history {
		if d.barIndex < bar {
			kept = append(kept, d)
		}
	}
	f.history = kept
}
