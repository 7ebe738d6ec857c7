package fingers

import (
	"testing"

	"github.com/hammamikhairi/pianopractice/internal/domain"
)

func TestAssignFillsMissingFingers(t *testing.T) {
	groups := []*domain.ExpectedGroup{
		{Notes: []string{"C4"}, Hand: domain.HandRight},
		{Notes: []string{"D4"}, Hand: domain.HandRight},
		{Notes: []string{"E4"}, Hand: domain.HandRight},
	}
	Assign(groups)

	for _, g := range groups {
		if len(g.Fingers) != len(g.Notes) {
			t.Fatalf("group %v: expected %d fingers, got %d", g.Notes, len(g.Notes), len(g.Fingers))
		}
		if g.Fingers[0] < 1 || g.Fingers[0] > 5 {
			t.Fatalf("finger %d out of range 1..5", g.Fingers[0])
		}
	}
}

func TestAssignSkipsGroupsWithExistingFingers(t *testing.T) {
	groups := []*domain.ExpectedGroup{
		{Notes: []string{"C4"}, Fingers: []int{3}, Hand: domain.HandRight},
	}
	Assign(groups)

	if groups[0].Fingers[0] != 3 {
		t.Fatalf("expected existing fingering preserved, got %v", groups[0].Fingers)
	}
}

func TestAssignChordSpreadsAcrossFingers(t *testing.T) {
	groups := []*domain.ExpectedGroup{
		{Notes: []string{"C4", "E4", "G4"}, Hand: domain.HandRight},
	}
	Assign(groups)

	seen := map[int]bool{}
	for _, f := range groups[0].Fingers {
		if seen[f] {
			t.Fatalf("expected distinct fingers per note in chord, got %v", groups[0].Fingers)
		}
		seen[f] = true
	}
}
