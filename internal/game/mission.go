package game

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"TaskForce/internal/core"
)

// WorldSpawner is the built-in Spawner. It lays out the group on the worker
// goroutine and submits a mutation that adds the entities to the session
// world, so spawned groups count toward trigger presence.
type WorldSpawner struct {
	submit func(Mutation) bool
	seed   int64
}

func NewWorldSpawner(submit func(Mutation) bool, seed int64) *WorldSpawner {
	return &WorldSpawner{submit: submit, seed: seed}
}

func (w *WorldSpawner) Spawn(ctx context.Context, req SpawnRequest) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}
	count, formation := req.Count, req.Formation
	switch req.Kind {
	case SpawnPatrol:
		if count <= 0 {
			count = 4
		}
		if formation == "" {
			formation = "line"
		}
	case SpawnSmoke, SpawnCache:
		count = 1
		formation = ""
	default:
		return Handle{}, fmt.Errorf("%w: %q", ErrUnknownSpawnKind, req.Kind)
	}

	seed := req.Seed
	if seed == 0 {
		seed = w.seed
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	positions := generateFormation(formation, req.Pos, count, 0, rng)

	var route []core.Vec2
	if req.Kind == SpawnPatrol {
		radius := req.Radius
		if radius <= 0 {
			radius = DefaultPatrolRadius
		}
		var gen WaypointGenerator = CircularPathGenerator{Radius: radius, PointCount: 6}
		if req.Route == RouteWander {
			gen = RandomPathGenerator{Radius: radius, PointCount: 5}
		}
		route = waypointsOrDefault(gen, req.Pos, rng)
	}
	speed := req.Speed
	if speed <= 0 {
		speed = DefaultPatrolSpeed
	}

	tags := append([]string{string(req.Kind), req.ID}, req.Tags...)
	h := Handle{ID: req.ID, Kind: req.Kind, Token: uuid.NewString()}
	ok := w.submit(func(s *Session) {
		for _, pos := range positions {
			id := s.world.Spawn(clampVec(pos, WorldW, WorldH), req.Faction, tags...)
			s.world.SetComponent(id, CompGroup, &GroupComponent{ID: req.ID, Kind: string(req.Kind)})
			if len(route) == 0 {
				continue
			}
			offset := pos.Sub(req.Pos)
			wps := make([]core.Vec2, len(route))
			for i, wp := range route {
				wps[i] = clampVec(wp.Add(offset), WorldW, WorldH)
			}
			s.world.SetComponent(id, CompMovement, &Movement{MaxSpeed: speed})
			s.world.SetComponent(id, CompPatrol, &PatrolComponent{Waypoints: wps, Loop: true})
		}
	})
	if !ok {
		return Handle{}, ErrSessionStopped
	}
	return h, nil
}

func (w *WorldSpawner) Despawn(ctx context.Context, h Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ok := w.submit(func(s *Session) {
		for _, id := range s.world.GroupMembers(h.ID) {
			s.world.RemoveEntity(id)
		}
	})
	if !ok {
		return ErrSessionStopped
	}
	return nil
}

func waypointsOrDefault(generator WaypointGenerator, center core.Vec2, rng *rand.Rand) []core.Vec2 {
	if generator == nil {
		return []core.Vec2{center}
	}
	wps := generator.Generate(center, rng)
	if len(wps) == 0 {
		return []core.Vec2{center}
	}
	return wps
}
