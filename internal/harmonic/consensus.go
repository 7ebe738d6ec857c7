package harmonic

import "github.com/hammamikhairi/pianopractice/internal/domain"

// ConsensusConfig tunes the dedup window and retention horizon.
// Defaults mirror §4.5: dedup_window = 0.5s, retention = 4x that (2.0s).
type ConsensusConfig struct {
	DedupWindowS     float64
	RetentionHorizonS float64
}

func (c ConsensusConfig) withDefaults() ConsensusConfig {
	if c.DedupWindowS <= 0 {
		c.DedupWindowS = 0.5
	}
	if c.RetentionHorizonS <= 0 {
		c.RetentionHorizonS = 4 * c.DedupWindowS
	}
	return c
}

// Merger deduplicates the same physical onset reported by overlapping
// windows, emitting each real onset once and improving it in place as
// later windows see more of it — it never waits for confirmation.
type Merger struct {
	cfg    ConsensusConfig
	recent []domain.NoteEvent // by pitch, most-recent-seen per entry
}

// NewMerger creates a merger with the given config (zero value uses
// the package defaults).
func NewMerger(cfg ConsensusConfig) *Merger {
	return &Merger{cfg: cfg.withDefaults()}
}

// Merge folds a new batch of NoteEvents (already on the absolute
// session timeline) into the recent-notes buffer, returning only the
// events that survive as genuinely new.
func (m *Merger) Merge(batch []domain.NoteEvent) []domain.NoteEvent {
	var fresh []domain.NoteEvent
	var latestOnset float64

	for _, n := range batch {
		if n.Onset > latestOnset {
			latestOnset = n.Onset
		}

		idx := m.findRecent(n)
		if idx < 0 {
			fresh = append(fresh, n)
			m.recent = append(m.recent, n)
			continue
		}

		r := m.recent[idx]
		switch {
		case absF(n.Onset-r.Onset) <= m.cfg.DedupWindowS:
			m.recent[idx] = maxMerge(r, n)
		case r.Offset >= n.Onset:
			// still sounding; drop, don't extend offset
		default:
			fresh = append(fresh, n)
			m.recent = append(m.recent, n)
		}
	}

	m.prune(latestOnset)
	return fresh
}

func (m *Merger) findRecent(n domain.NoteEvent) int {
	for i := len(m.recent) - 1; i >= 0; i-- {
		r := m.recent[i]
		if r.Pitch != n.Pitch {
			continue
		}
		if absF(n.Onset-r.Onset) <= m.cfg.DedupWindowS || r.Offset >= n.Onset {
			return i
		}
	}
	return -1
}

func (m *Merger) prune(latestOnset float64) {
	cutoff := latestOnset - m.cfg.RetentionHorizonS
	out := m.recent[:0]
	for _, r := range m.recent {
		if r.Onset >= cutoff {
			out = append(out, r)
		}
	}
	m.recent = out
}

func maxMerge(kept, incoming domain.NoteEvent) domain.NoteEvent {
	out := kept
	if incoming.Confidence > out.Confidence {
		out.Confidence = incoming.Confidence
	}
	if incoming.OnsetStrength > out.OnsetStrength {
		out.OnsetStrength = incoming.OnsetStrength
	}
	if incoming.Velocity > out.Velocity {
		out.Velocity = incoming.Velocity
	}
	return out
}

func absF(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// Reset clears the recent-notes buffer, e.g. on session restart.
func (m *Merger) Reset() {
	m.recent = nil
}
