package follower

import "github.com/hammamikhairi/pianopractice/internal/domain"

// SetTempoMultiplier implements set_tempo_multiplier: clamps m into
// [0.5, 1.0], rescales every group's timing vectors from the original
// snapshot by 1/m, and re-anchors start_time so the cursor group's
// delta is unaffected by the rescale.
func (f *Follower) SetTempoMultiplier(m float64) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.setTempoMultiplierLocked(m)
}

func (f *Follower) setTempoMultiplierLocked(m float64) float64 {
	if m < 0.5 {
		m = 0.5
	}
	if m > 1.0 {
		m = 1.0
	}

	var oldCursorExpected float64
	if f.cursor < len(f.exercise.Groups) {
		oldCursorExpected = f.exercise.Groups[f.cursor].ExpectedTimeS
	}

	scale := 1.0 / m
	for i, g := range f.exercise.Groups {
		g.ExpectedTimeS = f.orig.expectedTimeS[i] * scale
		g.TimingToleranceS = f.orig.timingToleranceS[i] * scale
		g.TimingMaxS = f.orig.timingMaxS[i] * scale
	}

	if f.cursor < len(f.exercise.Groups) {
		newCursorExpected := f.exercise.Groups[f.cursor].ExpectedTimeS
		f.startTimeS -= newCursorExpected - oldCursorExpected
	}

	f.tempoMultiplier = m
	return m
}

// AdjustTempo implements adjust_tempo: evaluates the bar that just
// completed and nudges the multiplier down on poor accuracy/timing, or
// up after two consecutive clean bars. Returns the new multiplier and
// true if a change was made.
func (f *Follower) AdjustTempo() (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	bar := f.lastCompletedBarLocked()
	if bar < 0 {
		return f.tempoMultiplier, false
	}

	var total, correct, timingErrors int
	for _, d := range f.history {
		if d.barIndex != bar {
			continue
		}
		total++
		if d.accepted {
			correct++
		}
		if d.accepted && !d.onTime {
			timingErrors++
		}
	}
	if total == 0 {
		return f.tempoMultiplier, false
	}

	acc := float64(correct) / float64(total)
	ter := float64(timingErrors) / float64(total)

	if acc < 0.6 || ter > 0.5 {
		f.goodBarStreak = 0
		newM := f.tempoMultiplier - 0.10
		if newM < 0.5 {
			newM = 0.5
		}
		f.setTempoMultiplierLocked(newM)
		return newM, true
	}

	if acc > 0.9 && ter < 0.1 {
		f.goodBarStreak++
		if f.goodBarStreak >= 2 {
			f.goodBarStreak = 0
			newM := f.tempoMultiplier + 0.05
			if newM > 1.0 {
				newM = 1.0
			}
			f.setTempoMultiplierLocked(newM)
			return newM, true
		}
		return f.tempoMultiplier, false
	}

	f.goodBarStreak = 0
	return f.tempoMultiplier, false
}

// lastCompletedBarLocked returns the bar index of the most recent bar
// all of whose groups have resolved to CORRECT or MISSED, or -1.
func (f *Follower) lastCompletedBarLocked() int {
	total := make(map[int]int)
	done := make(map[int]int)
	for _, g := range f.exercise.Groups {
		b := g.BarIndex
		total[b]++
		if g.Status == domain.GroupCorrect || g.Status == domain.GroupMissed {
			done[b]++
		}
	}

	best := -1
	for b, t := range total {
		if done[b] == t && b > best {
			best = b
		}
	}
	return best
}
