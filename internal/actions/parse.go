package actions

import (
	"fmt"

	"TaskForce/internal/core"
)

// ParseAction decodes an action from mission data. Accepted forms:
//
//	"name"
//	[name, arg1, arg2, ...]
//	{do: name, args: [...]}
func ParseAction(v any) (Action, error) {
	switch a := v.(type) {
	case Action:
		return a, nil
	case string:
		if a == "" {
			break
		}
		return Call(a), nil
	case []any:
		if len(a) == 0 {
			break
		}
		name, ok := a[0].(string)
		if !ok || name == "" {
			break
		}
		return Call(name, a[1:]...), nil
	case map[string]any:
		name := firstString(a, "do", "action", "call")
		if name == "" {
			break
		}
		args, _ := a["args"].([]any)
		return Call(name, args...), nil
	}
	return Action{}, fmt.Errorf("%w: cannot decode action from %T", ErrBadArgs, v)
}

// ParseActions decodes a single action or a list of actions.
func ParseActions(v any) ([]Action, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		a, err := ParseAction(v)
		if err != nil {
			return nil, err
		}
		return []Action{a}, nil
	}
	// [name, args...] is a single action, a list of lists/maps is many.
	if _, single := list[0].(string); single {
		a, err := ParseAction(list)
		if err != nil {
			return nil, err
		}
		return []Action{a}, nil
	}
	out := make([]Action, 0, len(list))
	for i, item := range list {
		a, err := ParseAction(item)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// ParseCondition decodes a condition. nil means Always; booleans map to
// always/never; otherwise the forms of ParseAction apply with the keys
// when/if and an optional not flag.
func ParseCondition(v any) (Condition, error) {
	switch c := v.(type) {
	case nil:
		return Always, nil
	case Condition:
		return c, nil
	case bool:
		if c {
			return When("always"), nil
		}
		return When("never"), nil
	case string:
		if c == "" {
			return Always, nil
		}
		return When(c), nil
	case []any:
		if len(c) == 0 {
			return Always, nil
		}
		name, ok := c[0].(string)
		if !ok || name == "" {
			break
		}
		return When(name, c[1:]...), nil
	case map[string]any:
		name := firstString(c, "when", "if", "condition")
		if name == "" {
			break
		}
		args, _ := c["args"].([]any)
		cond := When(name, args...)
		if neg, _ := c["not"].(bool); neg {
			cond = Not(cond)
		}
		return cond, nil
	}
	return Condition{}, fmt.Errorf("%w: cannot decode condition from %T", ErrBadArgs, v)
}

// ToArea decodes an area: {center: [x, y], radius: r}, {center, width,
// height} or [x, y, r].
func ToArea(v any) (core.Area, error) {
	switch a := v.(type) {
	case core.Area:
		return a, nil
	case []any:
		if len(a) == 3 {
			center, err := ToVec(a[:2])
			if err != nil {
				return core.Area{}, err
			}
			r, err := Args(a).Number(2)
			if err != nil {
				return core.Area{}, err
			}
			return core.Circle(center, r), nil
		}
	case map[string]any:
		raw, ok := a["center"]
		if !ok {
			raw = a["pos"]
		}
		center, err := ToVec(raw)
		if err != nil {
			return core.Area{}, err
		}
		if _, ok := a["width"]; ok {
			w, errW := Args{a["width"]}.Number(0)
			h, errH := Args{a["height"]}.Number(0)
			if errW != nil || errH != nil {
				return core.Area{}, fmt.Errorf("%w: box area needs width and height", ErrBadArgs)
			}
			return core.Box(center, w, h), nil
		}
		r, err := Args{a["radius"]}.Number(0)
		if err != nil {
			return core.Area{}, fmt.Errorf("%w: radial area needs radius", ErrBadArgs)
		}
		return core.Circle(center, r), nil
	}
	return core.Area{}, fmt.Errorf("%w: %T is not an area", ErrBadArgs, v)
}

// Area returns argument i as an area.
func (a Args) Area(i int) (core.Area, error) {
	v, err := a.at(i)
	if err != nil {
		return core.Area{}, err
	}
	return ToArea(v)
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
