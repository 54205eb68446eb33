package game

import (
	"context"
	"fmt"
	"time"

	"TaskForce/internal/actions"
	"TaskForce/internal/core"
	"TaskForce/internal/tasks"
	"TaskForce/internal/triggers"
)

// ParseTaskDescriptor decodes a task from either a record
// {faction, id, title, description, position, state, category, assign_now,
// marker} or positional arguments in that order.
func ParseTaskDescriptor(v any) (tasks.Descriptor, error) {
	args, ok := v.(actions.Args)
	if !ok {
		args = actions.Args{v}
	}
	if args.Len() == 1 {
		if m, ok := args[0].(map[string]any); ok {
			args = actions.Args{
				m["faction"], m["id"], m["title"], m["description"], m["position"],
				m["state"], m["category"], m["assign_now"], m["marker"],
			}
		}
	}

	var d tasks.Descriptor
	faction, err := core.ParseFaction(args.StringOr(0, ""))
	if err != nil {
		return d, fmt.Errorf("%w: %v", tasks.ErrInvalidDescriptor, err)
	}
	id, err := args.String(1)
	if err != nil {
		return d, fmt.Errorf("%w: %v", tasks.ErrInvalidDescriptor, err)
	}
	d = tasks.Descriptor{
		ID:          id,
		Faction:     faction,
		Title:       args.StringOr(2, id),
		Description: args.StringOr(3, ""),
		Category:    args.StringOr(6, ""),
		AssignNow:   args.BoolOr(7, false),
		MarkerID:    args.StringOr(8, ""),
	}
	if args.Len() > 4 && args[4] != nil {
		pos, err := args.Vec(4)
		if err != nil {
			return d, fmt.Errorf("%w: %v", tasks.ErrInvalidDescriptor, err)
		}
		d.Position = &pos
	}
	if st := args.StringOr(5, ""); st != "" {
		if d.State, err = tasks.ParseState(st); err != nil {
			return d, fmt.Errorf("%w: %v", tasks.ErrInvalidDescriptor, err)
		}
	}
	return d, nil
}

// ParseTriggerDescriptor decodes a trigger from either a record {id, area,
// faction, presence, condition, action, repeatable, cooldown} or positional
// arguments in that order. cooldown is in seconds.
func ParseTriggerDescriptor(v any) (triggers.Descriptor, error) {
	args, ok := v.(actions.Args)
	if !ok {
		args = actions.Args{v}
	}
	if args.Len() == 1 {
		if m, ok := args[0].(map[string]any); ok {
			cond, hasCond := m["condition"]
			if !hasCond {
				cond = m["when"]
			}
			act, hasAct := m["action"]
			if !hasAct {
				act = m["on_activate"]
			}
			args = actions.Args{
				m["id"], m["area"], m["faction"], m["presence"], cond, act,
				m["repeatable"], m["cooldown"],
			}
		}
	}

	var d triggers.Descriptor
	id, err := args.String(0)
	if err != nil {
		return d, fmt.Errorf("%w: %v", triggers.ErrInvalidDescriptor, err)
	}
	area, err := args.Area(1)
	if err != nil {
		return d, fmt.Errorf("%w: %v", triggers.ErrInvalidDescriptor, err)
	}
	faction, err := core.ParseFaction(args.StringOr(2, ""))
	if err != nil {
		return d, fmt.Errorf("%w: %v", triggers.ErrInvalidDescriptor, err)
	}
	presence, err := triggers.ParsePresence(args.StringOr(3, ""))
	if err != nil {
		return d, err
	}
	var cond actions.Condition
	if args.Len() > 4 {
		if cond, err = actions.ParseCondition(args[4]); err != nil {
			return d, fmt.Errorf("%w: %v", triggers.ErrInvalidDescriptor, err)
		}
	}
	var act actions.Action
	if args.Len() > 5 && args[5] != nil {
		if act, err = actions.ParseAction(args[5]); err != nil {
			return d, fmt.Errorf("%w: %v", triggers.ErrInvalidDescriptor, err)
		}
	}
	return triggers.Descriptor{
		ID:         id,
		Area:       area,
		Faction:    faction,
		Presence:   presence,
		Condition:  cond,
		OnActivate: act,
		Repeatable: args.BoolOr(6, false),
		Cooldown:   time.Duration(args.NumberOr(7, 0) * float64(time.Second)),
	}, nil
}

// registerBuiltins binds the handler catalog mission data refers to.
func registerBuiltins(s *Session) {
	t := s.table

	t.Register("set_variable", func(_ context.Context, args actions.Args) error {
		key, err := args.String(0)
		if err != nil {
			return err
		}
		if args.Len() < 2 {
			return fmt.Errorf("%w: set_variable needs a value", actions.ErrBadArgs)
		}
		return s.SetVariable(key, args[1], args.BoolOr(2, true))
	})

	t.Register("update_task_state", func(_ context.Context, args actions.Args) error {
		id, err := args.String(0)
		if err != nil {
			return err
		}
		name, err := args.String(1)
		if err != nil {
			return err
		}
		st, err := tasks.ParseState(name)
		if err != nil {
			return fmt.Errorf("%w: %v", actions.ErrBadArgs, err)
		}
		_, err = s.UpdateTaskState(id, st)
		return err
	})

	t.Register("create_task", func(_ context.Context, args actions.Args) error {
		d, err := ParseTaskDescriptor(args)
		if err != nil {
			return err
		}
		_, err = s.CreateTask(d)
		return err
	})

	t.Register("create_trigger", func(_ context.Context, args actions.Args) error {
		d, err := ParseTriggerDescriptor(args)
		if err != nil {
			return err
		}
		_, err = s.CreateTrigger(d)
		return err
	})

	t.Register("delete_trigger", func(_ context.Context, args actions.Args) error {
		id, err := args.String(0)
		if err != nil {
			return err
		}
		s.DeleteTrigger(id)
		return nil
	})

	t.Register("navigator_advance", func(_ context.Context, args actions.Args) error {
		key, err := args.String(0)
		if err != nil {
			return err
		}
		return s.NavigatorAdvance(key, args.BoolOr(1, true))
	})

	t.Register("notify_side", func(_ context.Context, args actions.Args) error {
		name, err := args.String(0)
		if err != nil {
			return err
		}
		faction, err := core.ParseFaction(name)
		if err != nil {
			return fmt.Errorf("%w: %v", actions.ErrBadArgs, err)
		}
		text, err := args.String(1)
		if err != nil {
			return err
		}
		s.notifier.Notify(faction, text)
		return nil
	})

	t.Register("notify_global", func(_ context.Context, args actions.Args) error {
		text, err := args.String(0)
		if err != nil {
			return err
		}
		s.notifier.Broadcast(text)
		return nil
	})

	// spawn_patrol(id, faction, pos, count=4, formation="line", radius, speed, tags...)
	t.Register("spawn_patrol", func(_ context.Context, args actions.Args) error {
		req, err := patrolRequest(args, RouteCircle)
		if err != nil {
			return err
		}
		return s.spawn(req)
	})

	// spawn_sentries takes the spawn_patrol arguments but each group wanders
	// between random points inside radius instead of walking a loop.
	t.Register("spawn_sentries", func(_ context.Context, args actions.Args) error {
		req, err := patrolRequest(args, RouteWander)
		if err != nil {
			return err
		}
		return s.spawn(req)
	})

	// spawn_smoke(id, pos, radius=10)
	t.Register("spawn_smoke", func(_ context.Context, args actions.Args) error {
		id, err := args.String(0)
		if err != nil {
			return err
		}
		pos, err := args.Vec(1)
		if err != nil {
			return err
		}
		return s.spawn(SpawnRequest{ID: id, Kind: SpawnSmoke, Pos: pos, Radius: args.NumberOr(2, 10)})
	})

	t.Register("delete_smoke", func(_ context.Context, args actions.Args) error {
		id, err := args.String(0)
		if err != nil {
			return err
		}
		return s.despawn(id)
	})

	// spawn_cache(id, pos, faction=ANY, tags...)
	t.Register("spawn_cache", func(_ context.Context, args actions.Args) error {
		id, err := args.String(0)
		if err != nil {
			return err
		}
		pos, err := args.Vec(1)
		if err != nil {
			return err
		}
		faction, err := core.ParseFaction(args.StringOr(2, ""))
		if err != nil {
			return fmt.Errorf("%w: %v", actions.ErrBadArgs, err)
		}
		req := SpawnRequest{ID: id, Kind: SpawnCache, Pos: pos, Faction: faction}
		for i := 3; i < args.Len(); i++ {
			if tag, err := args.String(i); err == nil {
				req.Tags = append(req.Tags, tag)
			}
		}
		return s.spawn(req)
	})

	t.Register("delete_cache", func(_ context.Context, args actions.Args) error {
		id, err := args.String(0)
		if err != nil {
			return err
		}
		return s.despawn(id)
	})

	// create_lz(id, pos, faction=ANY)
	t.Register("create_lz", func(_ context.Context, args actions.Args) error {
		id, err := args.String(0)
		if err != nil {
			return err
		}
		pos, err := args.Vec(1)
		if err != nil {
			return err
		}
		faction, err := core.ParseFaction(args.StringOr(2, ""))
		if err != nil {
			return fmt.Errorf("%w: %v", actions.ErrBadArgs, err)
		}
		s.markers.Place("lz_"+id, pos, faction)
		return s.store.Set("lz:"+id, map[string]any{"pos": []any{pos.X, pos.Y}, "faction": string(faction)}, true)
	})

	// create_respawn(faction, pos)
	t.Register("create_respawn", func(_ context.Context, args actions.Args) error {
		name, err := args.String(0)
		if err != nil {
			return err
		}
		faction, err := core.ParseFaction(name)
		if err != nil {
			return fmt.Errorf("%w: %v", actions.ErrBadArgs, err)
		}
		pos, err := args.Vec(1)
		if err != nil {
			return err
		}
		s.markers.Place("respawn_"+string(faction), pos, faction)
		return s.store.Set(respawnKey(faction), []any{pos.X, pos.Y}, true)
	})

	// grant_reward(target, kind, amount=1, note)
	t.Register("grant_reward", func(_ context.Context, args actions.Args) error {
		target, err := args.String(0)
		if err != nil {
			return err
		}
		kind, err := args.String(1)
		if err != nil {
			return err
		}
		return s.rewarder.Grant(target, Reward{
			Kind:   kind,
			Amount: args.NumberOr(2, 1),
			Note:   args.StringOr(3, ""),
		})
	})

	// add_hold_action(id, label, pos, radius, seconds, action, faction=ANY)
	t.Register("add_hold_action", func(_ context.Context, args actions.Args) error {
		id, err := args.String(0)
		if err != nil {
			return err
		}
		pos, err := args.Vec(2)
		if err != nil {
			return err
		}
		var act actions.Action
		if args.Len() > 5 {
			if act, err = actions.ParseAction(args[5]); err != nil {
				return err
			}
		}
		faction, err := core.ParseFaction(args.StringOr(6, ""))
		if err != nil {
			return fmt.Errorf("%w: %v", actions.ErrBadArgs, err)
		}
		return s.AddHoldAction(HoldAction{
			ID:       id,
			Label:    args.StringOr(1, id),
			Pos:      pos,
			Radius:   args.NumberOr(3, DefaultHoldRadius),
			Duration: args.NumberOr(4, 0),
			Faction:  faction,
			Action:   act,
		})
	})

	t.Register("remove_hold_action", func(_ context.Context, args actions.Args) error {
		id, err := args.String(0)
		if err != nil {
			return err
		}
		s.RemoveHoldAction(id)
		return nil
	})

	// sequence(action...) runs each argument as an action, in order.
	t.Register("sequence", func(ctx context.Context, args actions.Args) error {
		list := make([]actions.Action, 0, args.Len())
		for i, raw := range args {
			a, err := actions.ParseAction(raw)
			if err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
			list = append(list, a)
		}
		return t.RunAll(ctx, list)
	})

	// place_marker(id, pos, faction=ANY)
	t.Register("place_marker", func(_ context.Context, args actions.Args) error {
		id, err := args.String(0)
		if err != nil {
			return err
		}
		pos, err := args.Vec(1)
		if err != nil {
			return err
		}
		faction, err := core.ParseFaction(args.StringOr(2, ""))
		if err != nil {
			return fmt.Errorf("%w: %v", actions.ErrBadArgs, err)
		}
		s.markers.Place(id, pos, faction)
		return nil
	})

	t.Register("remove_marker", func(_ context.Context, args actions.Args) error {
		id, err := args.String(0)
		if err != nil {
			return err
		}
		s.markers.Remove(id)
		return nil
	})

	// destroy_tagged(tag) marks every living entity carrying tag destroyed.
	t.Register("destroy_tagged", func(_ context.Context, args actions.Args) error {
		tag, err := args.String(0)
		if err != nil {
			return err
		}
		for _, id := range s.world.Tagged(tag) {
			s.DestroyEntity(id)
		}
		return nil
	})
}

// spawn hands req to the spawner on a worker. The outcome is published under
// spawn:<id> once the worker reports back.
func (s *Session) spawn(req SpawnRequest) error {
	if _, exists := s.spawned[req.ID]; exists {
		return fmt.Errorf("%w: %s already spawned", actions.ErrBadArgs, req.ID)
	}
	s.spawned[req.ID] = Handle{ID: req.ID, Kind: req.Kind}
	spawner := s.spawner
	ok := s.work.Enqueue("spawn "+req.ID, func(ctx context.Context) Mutation {
		h, err := spawner.Spawn(ctx, req)
		return func(s *Session) {
			if err != nil {
				s.log.Warn("spawn failed", "id", req.ID, "kind", req.Kind, "err", err)
				delete(s.spawned, req.ID)
				s.publishSpawn(req.ID, req.Kind, "failed")
				return
			}
			if _, live := s.spawned[req.ID]; !live {
				// removed before the spawn landed
				s.work.Enqueue("despawn "+req.ID, func(ctx context.Context) Mutation {
					if err := spawner.Despawn(ctx, h); err != nil {
						return func(s *Session) { s.log.Warn("despawn failed", "id", req.ID, "err", err) }
					}
					return nil
				})
				return
			}
			s.spawned[req.ID] = h
			s.publishSpawn(req.ID, req.Kind, "spawned")
		}
	})
	if !ok {
		delete(s.spawned, req.ID)
		return fmt.Errorf("spawn %s: work queue unavailable", req.ID)
	}
	s.publishSpawn(req.ID, req.Kind, "pending")
	return nil
}

func (s *Session) despawn(id string) error {
	h, ok := s.spawned[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSpawn, id)
	}
	delete(s.spawned, id)
	spawner := s.spawner
	if !s.work.Enqueue("despawn "+id, func(ctx context.Context) Mutation {
		if err := spawner.Despawn(ctx, h); err != nil {
			return func(s *Session) { s.log.Warn("despawn failed", "id", id, "err", err) }
		}
		return nil
	}) {
		return fmt.Errorf("despawn %s: work queue unavailable", id)
	}
	s.publishSpawn(id, h.Kind, "removed")
	return nil
}

func (s *Session) publishSpawn(id string, kind SpawnKind, state string) {
	if err := s.store.Set("spawn:"+id, map[string]any{"kind": string(kind), "state": state}, true); err != nil {
		s.log.Warn("spawn publish failed", "id", id, "err", err)
	}
}

func patrolRequest(args actions.Args, route string) (SpawnRequest, error) {
	id, err := args.String(0)
	if err != nil {
		return SpawnRequest{}, err
	}
	faction, err := core.ParseFaction(args.StringOr(1, ""))
	if err != nil {
		return SpawnRequest{}, fmt.Errorf("%w: %v", actions.ErrBadArgs, err)
	}
	pos, err := args.Vec(2)
	if err != nil {
		return SpawnRequest{}, err
	}
	req := SpawnRequest{
		ID:        id,
		Kind:      SpawnPatrol,
		Faction:   faction,
		Pos:       pos,
		Count:     int(args.NumberOr(3, 4)),
		Formation: args.StringOr(4, "line"),
		Route:     route,
		Radius:    args.NumberOr(5, DefaultPatrolRadius),
		Speed:     args.NumberOr(6, DefaultPatrolSpeed),
	}
	for i := 7; i < args.Len(); i++ {
		if tag, err := args.String(i); err == nil {
			req.Tags = append(req.Tags, tag)
		}
	}
	return req, nil
}
