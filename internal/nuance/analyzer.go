// Package nuance implements §4.8: a pure function turning a played
// phrase's NoteEvents into qualitative dynamics/timing/articulation
// feedback.
package nuance

import (
	"fmt"
	"math"

	"github.com/hammamikhairi/pianopractice/internal/domain"
)

// DynamicLabel is a qualitative velocity bucket.
type DynamicLabel string

const (
	DynPP DynamicLabel = "pp"
	DynP  DynamicLabel = "p"
	DynMF DynamicLabel = "mf"
	DynF  DynamicLabel = "f"
	DynFF DynamicLabel = "ff"
)

// RangeClass describes how wide the dynamic range of a phrase was.
type RangeClass string

const (
	RangeNarrow   RangeClass = "narrow"
	RangeModerate RangeClass = "moderate"
	RangeWide     RangeClass = "wide"
)

// TimingLabel classifies a note's deviation from the nearest beat.
type TimingLabel string

const (
	TimingOnTime TimingLabel = "on_time"
	TimingEarly  TimingLabel = "early"
	TimingLate   TimingLabel = "late"
)

// ArticulationLabel classifies the gap to the next note.
type ArticulationLabel string

const (
	ArticStaccato ArticulationLabel = "staccato"
	ArticLegato   ArticulationLabel = "legato"
	ArticNormal   ArticulationLabel = "normal"
)

// NoteNuance is the per-note breakdown.
type NoteNuance struct {
	Note         domain.NoteEvent
	Dynamic      DynamicLabel
	Timing       TimingLabel
	TimingErrorS float64
	Articulation ArticulationLabel
}

// Report is the full analysis over a phrase.
type Report struct {
	Notes       []NoteNuance
	Evenness    float64 // 1 - min(stdev(velocity)/0.5, 1)
	RangeClass  RangeClass
	Summary     string
}

// Analyze runs the full §4.8 pipeline over an ordered list of notes at
// the given tempo.
func Analyze(notes []domain.NoteEvent, bpm float64) Report {
	if len(notes) == 0 {
		return Report{Summary: "no notes played"}
	}

	beatS := 60.0 / bpm

	out := make([]NoteNuance, len(notes))
	var minV, maxV = notes[0].Velocity, notes[0].Velocity
	var sumV, sumSqV float64
	for i, n := range notes {
		if n.Velocity < minV {
			minV = n.Velocity
		}
		if n.Velocity > maxV {
			maxV = n.Velocity
		}
		sumV += n.Velocity

		timing, errS := classifyTiming(n.Onset, beatS)
		artic := ArticNormal
		if i+1 < len(notes) {
			gap := notes[i+1].Onset - n.Offset
			artic = classifyArticulation(gap)
		}

		out[i] = NoteNuance{
			Note:         n,
			Dynamic:      classifyDynamic(n.Velocity),
			Timing:       timing,
			TimingErrorS: errS,
			Articulation: artic,
		}
	}

	mean := sumV / float64(len(notes))
	for _, n := range notes {
		d := n.Velocity - mean
		sumSqV += d * d
	}
	stdev := math.Sqrt(sumSqV / float64(len(notes)))
	evenness := 1 - math.Min(stdev/0.5, 1)

	rangeSpan := maxV - minV
	var rangeClass RangeClass
	switch {
	case rangeSpan < 0.25:
		rangeClass = RangeNarrow
	case rangeSpan < 0.55:
		rangeClass = RangeModerate
	default:
		rangeClass = RangeWide
	}

	return Report{
		Notes:      out,
		Evenness:   evenness,
		RangeClass: rangeClass,
		Summary:    summarize(out, evenness, rangeClass),
	}
}

func classifyDynamic(velocity float64) DynamicLabel {
	switch {
	case velocity < 0.25:
		return DynPP
	case velocity < 0.45:
		return DynP
	case velocity < 0.65:
		return DynMF
	case velocity < 0.85:
		return DynF
	default:
		return DynFF
	}
}

func classifyTiming(onsetS, beatS float64) (TimingLabel, float64) {
	if beatS <= 0 {
		return TimingOnTime, 0
	}
	k := math.Round(onsetS / beatS)
	nearestBeat := k * beatS
	delta := onsetS - nearestBeat
	if math.Abs(delta) < 0.03 {
		return TimingOnTime, delta
	}
	if delta < 0 {
		return TimingEarly, delta
	}
	return TimingLate, delta
}

func classifyArticulation(gapS float64) ArticulationLabel {
	switch {
	case gapS > 0.1:
		return ArticStaccato
	case gapS < 0.05:
		return ArticLegato
	default:
		return ArticNormal
	}
}

func summarize(notes []NoteNuance, evenness float64, rangeClass RangeClass) string {
	staccato, legato, onTime := 0, 0, 0
	for _, n := range notes {
		switch n.Articulation {
		case ArticStaccato:
			staccato++
		case ArticLegato:
			legato++
		}
		if n.Timing == TimingOnTime {
			onTime++
		}
	}

	articDesc := "mixed articulation"
	if staccato > legato && staccato > len(notes)/2 {
		articDesc = "mostly staccato"
	} else if legato > staccato && legato > len(notes)/2 {
		articDesc = "mostly legato"
	}

	timingDesc := "timing varied"
	if onTime > len(notes)*3/4 {
		timingDesc = "mostly on time"
	}

	dynDesc := "even dynamics"
	if evenness < 0.6 {
		dynDesc = "uneven dynamics"
	}

	return fmt.Sprintf("%s, %s, %s (%s range)", timingDesc, dynDesc, articDesc, rangeClass)
}
