package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

var letterSemitone = map[byte]int{
	'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11,
}

var sharpNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// MIDIToFreq converts a MIDI note number to frequency in Hz, A4 (69) = 440Hz.
func MIDIToFreq(midi int) float64 {
	return 440.0 * math.Pow(2, float64(midi-69)/12.0)
}

// FreqToMIDI converts a frequency to a fractional MIDI number (not rounded).
func FreqToMIDI(freqHz float64) float64 {
	if freqHz <= 0 {
		return 0
	}
	return 69.0 + 12.0*math.Log2(freqHz/440.0)
}

// MIDIToNoteName renders a MIDI number canonically using sharps only —
// never flats, and never Cb/Fb/B#/E# spellings. MIDI 59 is always "B3",
// never "Cb4"; MIDI 60 is always "C4", never "B#3".
func MIDIToNoteName(midi int) string {
	pitchClass := ((midi % 12) + 12) % 12
	octave := midi/12 - 1
	return fmt.Sprintf("%s%d", sharpNames[pitchClass], octave)
}

// NoteNameToMIDI parses "<letter>[#|b]<octave>" into a MIDI number.
// Flat and unusual spellings (Cb, Fb, B#, E#) resolve correctly via
// plain arithmetic: Cb4 lands on the same MIDI number as B3, and B#3
// lands on the same number as C4 — no special-casing needed, and no
// ambiguity is introduced by accepting them.
func NoteNameToMIDI(name string) (int, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("%w: empty note name", ErrUnknownNote)
	}

	letter := byte(name[0] &^ 0x20) // uppercase
	base, ok := letterSemitone[letter]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownNote, name)
	}

	rest := name[1:]
	accidental := 0
	if len(rest) > 0 && (rest[0] == '#' || rest[0] == 'b' || rest[0] == 'B') {
		switch rest[0] {
		case '#':
			accidental = 1
		default:
			accidental = -1
		}
		rest = rest[1:]
	}

	if rest == "" {
		return 0, fmt.Errorf("%w: missing octave in %q", ErrUnknownNote, name)
	}
	octave, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("%w: bad octave in %q", ErrUnknownNote, name)
	}

	return (octave+1)*12 + base + accidental, nil
}

// NamesEqual reports whether two note names refer to the same MIDI
// pitch once enharmonics are resolved — is_note_match("Db4","C#4")
// is true at every tolerance setting because both parse to MIDI 61.
func NamesEqual(a, b string) bool {
	ma, errA := NoteNameToMIDI(a)
	mb, errB := NoteNameToMIDI(b)
	if errA != nil || errB != nil {
		return false
	}
	return ma == mb
}
