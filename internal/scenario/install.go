package scenario

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"TaskForce/internal/actions"
	"TaskForce/internal/dag"
	"TaskForce/internal/game"
)

// BuildPhases converts the phase specs into graph phases.
func (m *Mission) BuildPhases() ([]*dag.Phase, error) {
	out := make([]*dag.Phase, 0, len(m.Phases))
	for _, ps := range m.Phases {
		p := &dag.Phase{
			ID:       dag.PhaseID(ps.ID),
			Order:    ps.Order,
			Label:    ps.Label,
			Requires: ps.Requires,
			FailTo:   dag.PhaseID(ps.FailTo),
		}
		var err error
		if p.OnEnter, err = actions.ParseActions(ps.OnEnter); err != nil {
			return nil, fmt.Errorf("phase %s on_enter: %w", ps.ID, err)
		}
		if p.OnComplete, err = actions.ParseActions(ps.OnComplete); err != nil {
			return nil, fmt.Errorf("phase %s on_complete: %w", ps.ID, err)
		}
		if p.OnFailure, err = actions.ParseActions(ps.OnFailure); err != nil {
			return nil, fmt.Errorf("phase %s on_failure: %w", ps.ID, err)
		}
		for _, e := range ps.Next {
			when, err := actions.ParseCondition(e.When)
			if err != nil {
				return nil, fmt.Errorf("phase %s edge to %s: %w", ps.ID, e.To, err)
			}
			p.Next = append(p.Next, dag.Edge{To: dag.PhaseID(e.To), When: when})
		}
		out = append(out, p)
	}
	return out, nil
}

// SetupActions returns every action Install runs before the phases load,
// in order: markers, respawns, tasks, templates, setup, triggers.
func (m *Mission) SetupActions() ([]actions.Action, error) {
	var raw []any
	for _, mk := range m.Markers {
		raw = append(raw, []any{"place_marker", mk.ID, toAny(mk.Pos), mk.Faction})
	}
	factions := make([]string, 0, len(m.Respawns))
	for f := range m.Respawns {
		factions = append(factions, f)
	}
	sort.Strings(factions)
	for _, f := range factions {
		raw = append(raw, []any{"create_respawn", f, toAny(m.Respawns[f])})
	}
	for _, t := range m.Tasks {
		raw = append(raw, []any{"create_task", t})
	}
	for _, t := range m.Templates {
		steps, err := t.Expand()
		if err != nil {
			return nil, err
		}
		raw = append(raw, steps...)
	}
	raw = append(raw, m.Setup...)
	for _, t := range m.Triggers {
		raw = append(raw, []any{"create_trigger", t})
	}

	out := make([]actions.Action, 0, len(raw))
	for i, r := range raw {
		a, err := actions.ParseAction(r)
		if err != nil {
			return nil, fmt.Errorf("setup step %d: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// Install loads m into s: initial variables, setup actions and the phase
// graph. It must run on the session's tick goroutine, before InitTasks.
func Install(ctx context.Context, s *game.Session, m *Mission) error {
	phases, err := m.BuildPhases()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMission, err)
	}
	setup, err := m.SetupActions()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMission, err)
	}
	if err := s.Table().Validate(setup, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMission, err)
	}
	if err := s.LoadPhases(phases); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMission, err)
	}

	var errs []error
	if err := s.SetVariable("mission:id", m.Meta.ID, true); err != nil {
		errs = append(errs, err)
	}
	if err := s.SetVariable("mission:name", m.Meta.Name, true); err != nil {
		errs = append(errs, err)
	}
	for _, v := range m.Variables {
		if err := s.SetVariable(v.Key, v.Value, v.Replicated()); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.Table().RunAll(ctx, setup); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", ErrInvalidMission, errors.Join(errs...))
	}
	return nil
}

// Start installs m and enters its first phase.
func Start(ctx context.Context, s *game.Session, m *Mission) error {
	if err := Install(ctx, s, m); err != nil {
		return err
	}
	return s.InitTasks()
}

func toAny(v []float64) []any {
	out := make([]any, len(v))
	for i, f := range v {
		out[i] = f
	}
	return out
}
