package game

import (
	"math"
	"math/rand"

	"TaskForce/internal/core"
)

// WaypointGenerator creates patrol paths for spawned groups.
type WaypointGenerator interface {
	Generate(center core.Vec2, rng *rand.Rand) []core.Vec2
}

// CircularPathGenerator creates a circular patrol route.
type CircularPathGenerator struct {
	Radius     float64
	PointCount int
	Clockwise  bool
}

// Generate builds waypoints along a circle.
func (g CircularPathGenerator) Generate(center core.Vec2, _ *rand.Rand) []core.Vec2 {
	if g.PointCount <= 0 {
		return nil
	}
	waypoints := make([]core.Vec2, g.PointCount)
	angleStep := 2 * math.Pi / float64(g.PointCount)
	for i := 0; i < g.PointCount; i++ {
		angle := float64(i) * angleStep
		if !g.Clockwise {
			angle = -angle
		}
		waypoints[i] = core.Vec2{
			X: center.X + g.Radius*math.Cos(angle),
			Y: center.Y + g.Radius*math.Sin(angle),
		}
	}
	return waypoints
}

// RandomPathGenerator creates a random wander path around a center.
type RandomPathGenerator struct {
	PointCount int
	Radius     float64
}

// Generate builds random waypoints within the configured radius.
func (g RandomPathGenerator) Generate(center core.Vec2, rng *rand.Rand) []core.Vec2 {
	if g.PointCount <= 0 {
		return nil
	}
	waypoints := make([]core.Vec2, g.PointCount)
	for i := 0; i < g.PointCount; i++ {
		angle := rng.Float64() * 2 * math.Pi
		dist := rng.Float64() * g.Radius
		waypoints[i] = core.Vec2{
			X: center.X + dist*math.Cos(angle),
			Y: center.Y + dist*math.Sin(angle),
		}
	}
	return waypoints
}

// generateFormation lays out count units around center. spacing scales the
// formation; zero uses 10 map units.
func generateFormation(formation string, center core.Vec2, count int, spacing float64, rng *rand.Rand) []core.Vec2 {
	if count <= 0 {
		return nil
	}
	if spacing <= 0 {
		spacing = 10
	}
	positions := make([]core.Vec2, count)
	switch formation {
	case "ring":
		radius := spacing * 4
		angleStep := 2 * math.Pi / float64(count)
		for i := 0; i < count; i++ {
			angle := float64(i) * angleStep
			positions[i] = core.Vec2{
				X: center.X + radius*math.Cos(angle),
				Y: center.Y + radius*math.Sin(angle),
			}
		}
	case "cluster":
		clusterRadius := spacing * 1.5
		for i := 0; i < count; i++ {
			angle := rng.Float64() * 2 * math.Pi
			dist := rng.Float64() * clusterRadius
			positions[i] = core.Vec2{
				X: center.X + dist*math.Cos(angle),
				Y: center.Y + dist*math.Sin(angle),
			}
		}
	case "line", "column":
		angle := rng.Float64() * 2 * math.Pi
		for i := 0; i < count; i++ {
			offset := (float64(i) - float64(count-1)/2) * spacing
			positions[i] = core.Vec2{
				X: center.X + offset*math.Cos(angle),
				Y: center.Y + offset*math.Sin(angle),
			}
		}
	case "scattered":
		scatterRadius := spacing * 3
		for i := 0; i < count; i++ {
			angle := rng.Float64() * 2 * math.Pi
			dist := rng.Float64() * scatterRadius
			positions[i] = core.Vec2{
				X: center.X + dist*math.Cos(angle),
				Y: center.Y + dist*math.Sin(angle),
			}
		}
	default:
		for i := 0; i < count; i++ {
			positions[i] = center
		}
	}
	return positions
}

func clampVec(v core.Vec2, maxX, maxY float64) core.Vec2 {
	return core.Vec2{
		X: core.Clamp(v.X, 0, maxX),
		Y: core.Clamp(v.Y, 0, maxY),
	}
}
