package game

import (
	"fmt"
	"math"
	"reflect"

	"TaskForce/internal/actions"
	"TaskForce/internal/core"
	"TaskForce/internal/tasks"
	"TaskForce/internal/vars"
)

// ObjectiveEvaluator measures progress toward a world objective.
type ObjectiveEvaluator interface {
	// Evaluate returns (complete, progress) where progress is 0.0-1.0.
	Evaluate(s *Session) (bool, float64)
}

// DistanceEvaluator checks whether any living player of Faction is within
// Threshold of Target.
type DistanceEvaluator struct {
	Target    core.Vec2
	Threshold float64
	Faction   core.Faction
}

// Evaluate implements ObjectiveEvaluator.
func (e *DistanceEvaluator) Evaluate(s *Session) (bool, float64) {
	if s == nil || e.Threshold <= 0 {
		return false, 0
	}
	best := math.Inf(1)
	for _, p := range s.players {
		if !e.Faction.Matches(p.Faction) || !s.world.Alive(p.Entity) {
			continue
		}
		if tr := s.world.Transform(p.Entity); tr != nil {
			best = math.Min(best, tr.Pos.Sub(e.Target).Len())
		}
	}
	if best <= e.Threshold {
		return true, 1
	}
	if math.IsInf(best, 1) {
		return false, 0
	}
	maxDist := e.Threshold * 3
	progress := 1 - (best-e.Threshold)/(maxDist-e.Threshold)
	return false, core.Clamp(progress, 0, 1)
}

// KillCountEvaluator checks whether enough tagged entities are destroyed.
// RequiredKills <= 0 means every tagged entity, and at least one must exist.
type KillCountEvaluator struct {
	TargetTag     string
	RequiredKills int
}

// Evaluate implements ObjectiveEvaluator.
func (e *KillCountEvaluator) Evaluate(s *Session) (bool, float64) {
	if s == nil || e.TargetTag == "" {
		return false, 0
	}
	total, killed := s.world.CountTagged(e.TargetTag)
	required := e.RequiredKills
	if required <= 0 {
		required = total
	}
	if required <= 0 {
		return false, 0
	}
	if killed >= required {
		return true, 1
	}
	return false, float64(killed) / float64(required)
}

// TimerEvaluator checks whether session time since StartTime exceeds
// RequiredTime.
type TimerEvaluator struct {
	StartTime    float64
	RequiredTime float64
}

// Evaluate implements ObjectiveEvaluator.
func (e *TimerEvaluator) Evaluate(s *Session) (bool, float64) {
	if s == nil {
		return false, 0
	}
	if e.RequiredTime <= 0 {
		return true, 1
	}
	elapsed := s.now - e.StartTime
	if elapsed >= e.RequiredTime {
		return true, 1
	}
	return false, core.Clamp(elapsed/e.RequiredTime, 0, 1)
}

// TagAbsentEvaluator holds once every entity carrying TargetTag is
// destroyed. It never holds before one has been spawned.
type TagAbsentEvaluator struct {
	TargetTag string
}

// Evaluate implements ObjectiveEvaluator.
func (e *TagAbsentEvaluator) Evaluate(s *Session) (bool, float64) {
	if s == nil || e.TargetTag == "" {
		return false, 0
	}
	total, killed := s.world.CountTagged(e.TargetTag)
	if total == 0 {
		return false, 0
	}
	if total == killed {
		return true, 1
	}
	return false, float64(killed) / float64(total)
}

func evaluatorCondition(s *Session, build func(args actions.Args) (ObjectiveEvaluator, error)) actions.CondFunc {
	return func(args actions.Args) (bool, error) {
		ev, err := build(args)
		if err != nil {
			return false, err
		}
		done, _ := ev.Evaluate(s)
		return done, nil
	}
}

// registerConditions binds the built-in predicates.
func registerConditions(s *Session) {
	t := s.table

	t.RegisterCondition("var_true", func(args actions.Args) (bool, error) {
		key, err := args.String(0)
		if err != nil {
			return false, err
		}
		return s.store.Bool(key, false), nil
	})

	t.RegisterCondition("var_equals", func(args actions.Args) (bool, error) {
		key, err := args.String(0)
		if err != nil {
			return false, err
		}
		if args.Len() < 2 {
			return false, fmt.Errorf("%w: var_equals needs a value", actions.ErrBadArgs)
		}
		want, err := vars.Encode(args[1])
		if err != nil {
			return false, err
		}
		return reflect.DeepEqual(s.store.Get(key, nil), want.AsInterface()), nil
	})

	t.RegisterCondition("var_at_least", func(args actions.Args) (bool, error) {
		key, err := args.String(0)
		if err != nil {
			return false, err
		}
		n, err := args.Number(1)
		if err != nil {
			return false, err
		}
		return s.store.Number(key, 0) >= n, nil
	})

	t.RegisterCondition("task_state", func(args actions.Args) (bool, error) {
		id, err := args.String(0)
		if err != nil {
			return false, err
		}
		current := s.registry.State(id)
		for i := 1; i < args.Len(); i++ {
			name, err := args.String(i)
			if err != nil {
				return false, err
			}
			want, err := tasks.ParseState(name)
			if err != nil {
				return false, fmt.Errorf("%w: %v", actions.ErrBadArgs, err)
			}
			if current == want {
				return true, nil
			}
		}
		return false, nil
	})

	t.RegisterCondition("phase", func(args actions.Args) (bool, error) {
		id, err := args.String(0)
		if err != nil {
			return false, err
		}
		return s.nav != nil && string(s.nav.Current()) == id, nil
	})

	t.RegisterCondition("elapsed", evaluatorCondition(s, func(args actions.Args) (ObjectiveEvaluator, error) {
		secs, err := args.Number(0)
		if err != nil {
			return nil, err
		}
		start := 0.0
		if key := args.StringOr(1, ""); key != "" {
			start = s.store.Number(key, s.now)
		}
		return &TimerEvaluator{StartTime: start, RequiredTime: secs}, nil
	}))

	t.RegisterCondition("tag_destroyed", evaluatorCondition(s, func(args actions.Args) (ObjectiveEvaluator, error) {
		tag, err := args.String(0)
		if err != nil {
			return nil, err
		}
		return &KillCountEvaluator{TargetTag: tag, RequiredKills: int(args.NumberOr(1, 0))}, nil
	}))

	t.RegisterCondition("tag_absent", evaluatorCondition(s, func(args actions.Args) (ObjectiveEvaluator, error) {
		tag, err := args.String(0)
		if err != nil {
			return nil, err
		}
		return &TagAbsentEvaluator{TargetTag: tag}, nil
	}))

	t.RegisterCondition("player_near", evaluatorCondition(s, func(args actions.Args) (ObjectiveEvaluator, error) {
		target, err := args.Vec(0)
		if err != nil {
			return nil, err
		}
		radius, err := args.Number(1)
		if err != nil {
			return nil, err
		}
		faction, err := core.ParseFaction(args.StringOr(2, string(core.FactionAny)))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", actions.ErrBadArgs, err)
		}
		return &DistanceEvaluator{Target: target, Threshold: radius, Faction: faction}, nil
	}))

	t.RegisterCondition("not", func(args actions.Args) (bool, error) {
		if args.Len() == 0 {
			return false, fmt.Errorf("%w: not needs a condition", actions.ErrBadArgs)
		}
		c, err := actions.ParseCondition(args[0])
		if err != nil {
			return false, err
		}
		ok, err := t.Eval(c)
		return !ok, err
	})

	t.RegisterCondition("all", func(args actions.Args) (bool, error) {
		for _, raw := range args {
			c, err := actions.ParseCondition(raw)
			if err != nil {
				return false, err
			}
			if ok, err := t.Eval(c); err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	})

	t.RegisterCondition("any", func(args actions.Args) (bool, error) {
		for _, raw := range args {
			c, err := actions.ParseCondition(raw)
			if err != nil {
				return false, err
			}
			ok, err := t.Eval(c)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	})
}
