package core

import (
	"fmt"
	"math"
	"strings"
)

type Vec2 struct{ X, Y float64 }

func (a Vec2) Add(b Vec2) Vec2      { return Vec2{a.X + b.X, a.Y + b.Y} }
func (a Vec2) Sub(b Vec2) Vec2      { return Vec2{a.X - b.X, a.Y - b.Y} }
func (a Vec2) Dot(b Vec2) float64   { return a.X*b.X + a.Y*b.Y }
func (a Vec2) Len() float64         { return math.Hypot(a.X, a.Y) }
func (a Vec2) Scale(s float64) Vec2 { return Vec2{a.X * s, a.Y * s} }

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Faction groups entities and players for targeting and task assignment.
type Faction string

const (
	FactionAny  Faction = "ANY"
	FactionWest Faction = "WEST"
	FactionEast Faction = "EAST"
	FactionGuer Faction = "GUER"
	FactionCiv  Faction = "CIV"
)

// ParseFaction accepts the usual side names case-insensitively. "all" and
// "any" both map to FactionAny.
func ParseFaction(s string) (Faction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "ANY", "ALL":
		return FactionAny, nil
	case "WEST", "BLUFOR":
		return FactionWest, nil
	case "EAST", "OPFOR":
		return FactionEast, nil
	case "GUER", "INDEPENDENT", "RESISTANCE":
		return FactionGuer, nil
	case "CIV", "CIVILIAN":
		return FactionCiv, nil
	}
	return "", fmt.Errorf("unknown faction %q", s)
}

// Matches reports whether an entity of faction other satisfies f.
func (f Faction) Matches(other Faction) bool {
	if f == FactionAny || f == "" {
		return true
	}
	return f == other
}

// Shape selects how an Area's extent is interpreted.
type Shape int

const (
	ShapeRadial Shape = iota
	ShapeBox
)

// Area is a center position plus a radial or axis-aligned extent.
type Area struct {
	Center Vec2
	Shape  Shape
	Radius float64
	HalfW  float64
	HalfH  float64
}

// Circle returns a radial area.
func Circle(center Vec2, radius float64) Area {
	return Area{Center: center, Shape: ShapeRadial, Radius: radius}
}

// Box returns an axis-aligned area with the given full width and height.
func Box(center Vec2, w, h float64) Area {
	return Area{Center: center, Shape: ShapeBox, HalfW: w / 2, HalfH: h / 2}
}

func (a Area) Valid() bool {
	switch a.Shape {
	case ShapeRadial:
		return a.Radius > 0 && !math.IsNaN(a.Radius) && !math.IsInf(a.Radius, 0)
	case ShapeBox:
		return a.HalfW > 0 && a.HalfH > 0
	}
	return false
}

func (a Area) Contains(p Vec2) bool {
	d := p.Sub(a.Center)
	switch a.Shape {
	case ShapeRadial:
		return d.Dot(d) <= a.Radius*a.Radius
	case ShapeBox:
		return math.Abs(d.X) <= a.HalfW && math.Abs(d.Y) <= a.HalfH
	}
	return false
}
