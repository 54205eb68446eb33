package core

import "testing"

func TestParseFaction(t *testing.T) {
	cases := map[string]Faction{
		"west":  FactionWest,
		"EAST":  FactionEast,
		" all ": FactionAny,
		"any":   FactionAny,
		"civ":   FactionCiv,
		"guer":  FactionGuer,
	}
	for in, want := range cases {
		got, err := ParseFaction(in)
		if err != nil {
			t.Fatalf("ParseFaction(%q) error: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseFaction(%q) = %s, expected %s", in, got, want)
		}
	}
	if _, err := ParseFaction("martians"); err == nil {
		t.Fatal("expected error for unknown faction")
	}
}

func TestFactionMatches(t *testing.T) {
	if !FactionAny.Matches(FactionEast) {
		t.Error("ANY should match every faction")
	}
	if FactionWest.Matches(FactionEast) {
		t.Error("WEST should not match EAST")
	}
	if !FactionWest.Matches(FactionWest) {
		t.Error("WEST should match WEST")
	}
}

func TestAreaContains(t *testing.T) {
	circle := Circle(Vec2{X: 100, Y: 100}, 50)
	if !circle.Contains(Vec2{X: 130, Y: 140}) {
		t.Error("expected point on the radius to be inside")
	}
	if circle.Contains(Vec2{X: 151, Y: 100}) {
		t.Error("expected point outside the radius")
	}

	box := Box(Vec2{X: 0, Y: 0}, 100, 20)
	if !box.Contains(Vec2{X: 49, Y: -9}) {
		t.Error("expected point inside box")
	}
	if box.Contains(Vec2{X: 10, Y: 11}) {
		t.Error("expected point outside box height")
	}
}

func TestAreaValid(t *testing.T) {
	if (Area{}).Valid() {
		t.Error("zero area should be invalid")
	}
	if !Circle(Vec2{}, 1).Valid() {
		t.Error("circle with radius should be valid")
	}
	if Box(Vec2{}, 10, 0).Valid() {
		t.Error("box with zero height should be invalid")
	}
}
