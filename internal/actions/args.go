package actions

import (
	"fmt"
	"strconv"

	"TaskForce/internal/core"
)

// Args holds positional arguments of a named action or condition. Values
// decoded from mission files arrive as string, float64/int, bool, []any or
// map[string]any.
type Args []any

func (a Args) Len() int { return len(a) }

func (a Args) at(i int) (any, error) {
	if i < 0 || i >= len(a) {
		return nil, fmt.Errorf("%w: missing argument %d", ErrBadArgs, i)
	}
	return a[i], nil
}

// String returns argument i as a string.
func (a Args) String(i int) (string, error) {
	v, err := a.at(i)
	if err != nil {
		return "", err
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case fmt.Stringer:
		return s.String(), nil
	}
	return "", fmt.Errorf("%w: argument %d is %T, want string", ErrBadArgs, i, v)
}

// StringOr returns argument i as a string or def when absent.
func (a Args) StringOr(i int, def string) string {
	if i >= len(a) {
		return def
	}
	s, err := a.String(i)
	if err != nil {
		return def
	}
	return s
}

// Number returns argument i as a float64.
func (a Args) Number(i int) (float64, error) {
	v, err := a.at(i)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case string:
		f, perr := strconv.ParseFloat(n, 64)
		if perr == nil {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: argument %d is %T, want number", ErrBadArgs, i, v)
}

// NumberOr returns argument i as a float64 or def when absent.
func (a Args) NumberOr(i int, def float64) float64 {
	if i >= len(a) {
		return def
	}
	n, err := a.Number(i)
	if err != nil {
		return def
	}
	return n
}

// Bool returns argument i as a bool.
func (a Args) Bool(i int) (bool, error) {
	v, err := a.at(i)
	if err != nil {
		return false, err
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, perr := strconv.ParseBool(b)
		if perr == nil {
			return parsed, nil
		}
	}
	return false, fmt.Errorf("%w: argument %d is %T, want bool", ErrBadArgs, i, v)
}

// BoolOr returns argument i as a bool or def when absent.
func (a Args) BoolOr(i int, def bool) bool {
	if i >= len(a) {
		return def
	}
	b, err := a.Bool(i)
	if err != nil {
		return def
	}
	return b
}

// Vec returns argument i as a position. Accepts core.Vec2, [x, y] or
// [x, y, z] (z is dropped) and {x:, y:} maps.
func (a Args) Vec(i int) (core.Vec2, error) {
	v, err := a.at(i)
	if err != nil {
		return core.Vec2{}, err
	}
	return ToVec(v)
}

// ToVec converts a decoded value into a position.
func ToVec(v any) (core.Vec2, error) {
	switch p := v.(type) {
	case core.Vec2:
		return p, nil
	case *core.Vec2:
		if p != nil {
			return *p, nil
		}
	case []any:
		if len(p) >= 2 {
			x, errX := Args(p).Number(0)
			y, errY := Args(p).Number(1)
			if errX == nil && errY == nil {
				return core.Vec2{X: x, Y: y}, nil
			}
		}
	case []float64:
		if len(p) >= 2 {
			return core.Vec2{X: p[0], Y: p[1]}, nil
		}
	case map[string]any:
		x, errX := Args{p["x"]}.Number(0)
		y, errY := Args{p["y"]}.Number(0)
		if errX == nil && errY == nil {
			return core.Vec2{X: x, Y: y}, nil
		}
	}
	return core.Vec2{}, fmt.Errorf("%w: %T is not a position", ErrBadArgs, v)
}
