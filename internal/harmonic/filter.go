// Package harmonic implements §4.5: suppressing harmonic ghosts the
// decoder surfaces alongside a real fundamental, and merging the same
// physical onset reported by several overlapping analysis windows.
package harmonic

import (
	"math"
	"sort"

	"github.com/hammamikhairi/pianopractice/internal/domain"
)

// FilterConfig carries the expected-pitch and mode context the filter
// needs to decide which harmonic exceptions apply.
type FilterConfig struct {
	ExpectedPitches map[int]bool
	ChordOrSong     bool // skip octave (N=2) anchor rejection
}

const (
	groupGapS    = 0.5
	ratioTolOct  = 0.08
	ratioTolHigh = 0.15
)

// Filter drops notes the decoder reports that are harmonics of a
// stronger note already kept, with phantom-subharmonic repair and
// genuine-octave-doubling exceptions.
func Filter(notes []domain.NoteEvent, cfg FilterConfig) []domain.NoteEvent {
	if len(notes) == 0 {
		return notes
	}

	sorted := append([]domain.NoteEvent(nil), notes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Onset < sorted[j].Onset })

	var result []domain.NoteEvent
	i := 0
	for i < len(sorted) {
		j := i + 1
		for j < len(sorted) && sorted[j].Onset-sorted[i].Onset <= groupGapS {
			j++
		}
		result = append(result, filterGroup(sorted[i:j], cfg)...)
		i = j
	}
	return result
}

func filterGroup(group []domain.NoteEvent, cfg FilterConfig) []domain.NoteEvent {
	sort.Slice(group, func(i, j int) bool { return group[i].Pitch < group[j].Pitch })

	var kept []domain.NoteEvent
	anchors := anchorFrequencies(group)

	for _, cand := range group {
		if isProtectedExpected(cand, cfg) {
			kept = append(kept, cand)
			continue
		}

		candFreq := domain.MIDIToFreq(cand.Pitch)
		harmonicOf := -1
		for k, keptNote := range kept {
			n := harmonicMultiple(candFreq, domain.MIDIToFreq(keptNote.Pitch))
			if n == 0 {
				continue
			}
			if n == 2 && cfg.ChordOrSong {
				continue
			}
			harmonicOf = k
			break
		}

		if harmonicOf < 0 {
			// Not a harmonic of anything kept so far; check anchors.
			isAnchorHarmonic := false
			for _, af := range anchors {
				if af == candFreq {
					continue
				}
				n := harmonicMultiple(candFreq, af)
				if n == 0 {
					continue
				}
				if n == 2 && cfg.ChordOrSong {
					continue
				}
				isAnchorHarmonic = true
				break
			}
			if !isAnchorHarmonic {
				kept = append(kept, cand)
			}
			continue
		}

		fundamental := kept[harmonicOf]
		n := harmonicMultiple(candFreq, domain.MIDIToFreq(fundamental.Pitch))

		if fundamental.Confidence < 0.15 && cand.Confidence > 0.3 ||
			(cand.Confidence > 2*fundamental.Confidence && cand.Confidence > 0.5) {
			// Phantom-subharmonic repair: the "fundamental" was a ghost.
			kept[harmonicOf] = cand
			continue
		}

		if n == 2 && cand.Confidence >= 0.7*fundamental.Confidence {
			// Genuine octave doubling: keep both.
			kept = append(kept, cand)
			continue
		}

		if fundamental.Confidence < 0.5 {
			// Fundamental is shaky enough the candidate might be real,
			// but doesn't meet the repair bar above — keep both rather
			// than risk dropping a genuine note.
			kept = append(kept, cand)
			continue
		}
		// Otherwise cand is a harmonic ghost: drop it.
	}
	return kept
}

func isProtectedExpected(n domain.NoteEvent, cfg FilterConfig) bool {
	if !cfg.ExpectedPitches[n.Pitch] {
		return false
	}
	return n.OnsetStrength > 0.15 && n.Confidence >= 0.25
}

// anchorFrequencies are the frequencies of this group's notes whose
// onset strength exceeds 0.3; they seed harmonic rejection whether or
// not this pass keeps them.
func anchorFrequencies(group []domain.NoteEvent) []float64 {
	var out []float64
	for _, n := range group {
		if n.OnsetStrength > 0.3 {
			out = append(out, domain.MIDIToFreq(n.Pitch))
		}
	}
	return out
}

// harmonicMultiple returns N in 2..6 if candFreq/baseFreq is within
// tolerance of an integer multiple, else 0.
func harmonicMultiple(candFreq, baseFreq float64) int {
	if baseFreq <= 0 {
		return 0
	}
	ratio := candFreq / baseFreq
	for n := 2; n <= 6; n++ {
		tol := ratioTolHigh
		if n == 2 {
			tol = ratioTolOct
		}
		if math.Abs(ratio-float64(n)) <= tol {
			return n
		}
	}
	return 0
}
