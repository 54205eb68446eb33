package dag

import (
	"errors"
	"testing"
)

// TestGraphInit tests basic graph construction and initial phase selection
func TestGraphInit(t *testing.T) {
	phases := []*Phase{
		{ID: "exfil", Order: 2},
		{ID: "assault", Order: 1, Next: []Edge{{To: "exfil"}}},
		{ID: "infil", Order: 0, Requires: []string{"t1"}, Next: []Edge{{To: "assault"}}},
	}

	g, err := NewGraph(phases)
	if err != nil {
		t.Fatalf("NewGraph failed: %v", err)
	}
	if g.Initial != "infil" {
		t.Errorf("Expected initial phase infil, got %s", g.Initial)
	}
	if len(g.TopoOrder) != 3 || g.TopoOrder[0] != "infil" || g.TopoOrder[2] != "exfil" {
		t.Errorf("Unexpected topo order %v", g.TopoOrder)
	}
	if got := g.Incoming["assault"]; len(got) != 1 || got[0] != "infil" {
		t.Errorf("Expected assault to be entered from infil, got %v", got)
	}
	if !g.Reachable("infil", "exfil") || g.Reachable("exfil", "infil") {
		t.Error("Reachable gave wrong answer")
	}
	if !g.Phase("exfil").Terminal() {
		t.Error("exfil should be terminal")
	}
}

// TestGraphCycleDetection tests that cycles are detected, including through
// failure branches
func TestGraphCycleDetection(t *testing.T) {
	phases := []*Phase{
		{ID: "a", Order: 0, Next: []Edge{{To: "b"}}},
		{ID: "b", Order: 1, FailTo: "a", Next: []Edge{{To: "c"}}},
		{ID: "c", Order: 2},
	}
	_, err := NewGraph(phases)
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("Expected ErrCycleDetected, got %v", err)
	}
}

func TestGraphValidation(t *testing.T) {
	cases := []struct {
		name   string
		phases []*Phase
		want   error
	}{
		{"empty", nil, ErrEmptyGraph},
		{"missing target", []*Phase{{ID: "a", Next: []Edge{{To: "zz"}}}}, ErrPhaseNotFound},
		{"missing fail target", []*Phase{{ID: "a", FailTo: "zz"}}, ErrPhaseNotFound},
		{"duplicate", []*Phase{{ID: "a"}, {ID: "a"}}, ErrDuplicatePhase},
		{"self loop", []*Phase{{ID: "a", Next: []Edge{{To: "a"}}}}, ErrCycleDetected},
	}
	for _, tc := range cases {
		if _, err := NewGraph(tc.phases); !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestGraphOrderedTiesByID(t *testing.T) {
	g, err := NewGraph([]*Phase{{ID: "b"}, {ID: "a"}})
	if err != nil {
		t.Fatal(err)
	}
	if g.Initial != "a" {
		t.Errorf("Expected tie broken by id, got %s", g.Initial)
	}
}
