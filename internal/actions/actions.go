// Package actions implements the bound behaviour attached to triggers and
// mission phases. An Action or Condition is a tagged value: either a handler
// name looked up in a fixed Table together with positional arguments, or a
// captured Go function. Mission files use the first form, Go callers usually
// the second.
package actions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUnknownAction is returned when an action names an unregistered handler.
	ErrUnknownAction = errors.New("actions: unknown action")
	// ErrUnknownCondition is returned when a condition names an unregistered predicate.
	ErrUnknownCondition = errors.New("actions: unknown condition")
	// ErrBadArgs is returned by handlers when positional arguments are missing or mistyped.
	ErrBadArgs = errors.New("actions: bad arguments")
)

// Func is the signature of an action handler.
type Func func(ctx context.Context, args Args) error

// CondFunc is the signature of a condition predicate.
type CondFunc func(args Args) (bool, error)

// Action is either a named handler call or a captured function.
type Action struct {
	Name string
	Args Args
	Fn   Func
}

// Call builds a named action.
func Call(name string, args ...any) Action {
	return Action{Name: name, Args: Args(args)}
}

// Do wraps a function as an action.
func Do(fn Func) Action {
	return Action{Name: "func", Fn: fn}
}

// IsZero reports whether the action has neither a name nor a function.
func (a Action) IsZero() bool {
	return a.Fn == nil && a.Name == ""
}

func (a Action) String() string {
	if a.Fn != nil && (a.Name == "" || a.Name == "func") {
		return "func"
	}
	if len(a.Args) == 0 {
		return a.Name
	}
	parts := make([]string, len(a.Args))
	for i, arg := range a.Args {
		parts[i] = fmt.Sprint(arg)
	}
	return a.Name + "(" + strings.Join(parts, ", ") + ")"
}

// Condition is either a named predicate or a captured function. The zero
// Condition is always true.
type Condition struct {
	Name   string
	Args   Args
	Fn     CondFunc
	Negate bool
}

// When builds a named condition.
func When(name string, args ...any) Condition {
	return Condition{Name: name, Args: Args(args)}
}

// Check wraps a boolean function as a condition.
func Check(fn func() bool) Condition {
	return Condition{Name: "func", Fn: func(Args) (bool, error) { return fn(), nil }}
}

// Not negates c.
func Not(c Condition) Condition {
	c.Negate = !c.Negate
	return c
}

// Always is the condition that always holds.
var Always = Condition{}

func (c Condition) IsZero() bool {
	return c.Fn == nil && c.Name == "" && !c.Negate
}

// Table is the fixed registry of named handlers and predicates for one session.
type Table struct {
	handlers   map[string]Func
	conditions map[string]CondFunc
}

// NewTable returns an empty table with the "always" and "never" predicates.
func NewTable() *Table {
	t := &Table{
		handlers:   make(map[string]Func),
		conditions: make(map[string]CondFunc),
	}
	t.RegisterCondition("always", func(Args) (bool, error) { return true, nil })
	t.RegisterCondition("never", func(Args) (bool, error) { return false, nil })
	return t
}

// Register binds name to fn, replacing any previous handler.
func (t *Table) Register(name string, fn Func) {
	t.handlers[name] = fn
}

// RegisterCondition binds name to a predicate.
func (t *Table) RegisterCondition(name string, fn CondFunc) {
	t.conditions[name] = fn
}

// HasAction reports whether a handler is registered under name.
func (t *Table) HasAction(name string) bool {
	_, ok := t.handlers[name]
	return ok
}

// HasCondition reports whether a predicate is registered under name.
func (t *Table) HasCondition(name string) bool {
	_, ok := t.conditions[name]
	return ok
}

// Actions lists registered handler names in sorted order.
func (t *Table) Actions() []string {
	out := make([]string, 0, len(t.handlers))
	for name := range t.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Conditions lists registered predicate names in sorted order.
func (t *Table) Conditions() []string {
	out := make([]string, 0, len(t.conditions))
	for name := range t.conditions {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Run executes a. A captured function takes precedence over the name.
func (t *Table) Run(ctx context.Context, a Action) error {
	if a.Fn != nil {
		return a.Fn(ctx, a.Args)
	}
	fn, ok := t.handlers[a.Name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAction, a.Name)
	}
	if err := fn(ctx, a.Args); err != nil {
		return fmt.Errorf("%s: %w", a.Name, err)
	}
	return nil
}

// RunAll executes every action in order and joins the errors. A failing
// action does not stop the ones after it.
func (t *Table) RunAll(ctx context.Context, list []Action) error {
	var errs []error
	for _, a := range list {
		if err := t.Run(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Eval evaluates c.
func (t *Table) Eval(c Condition) (bool, error) {
	var (
		ok  bool
		err error
	)
	switch {
	case c.Fn != nil:
		ok, err = c.Fn(c.Args)
	case c.Name == "":
		ok = true
	default:
		fn, found := t.conditions[c.Name]
		if !found {
			return false, fmt.Errorf("%w: %q", ErrUnknownCondition, c.Name)
		}
		ok, err = fn(c.Args)
	}
	if err != nil {
		return false, err
	}
	if c.Negate {
		ok = !ok
	}
	return ok, nil
}

// Validate checks that every named action and condition is registered.
func (t *Table) Validate(list []Action, conds []Condition) error {
	var errs []error
	for _, a := range list {
		if a.Fn == nil && !t.HasAction(a.Name) {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownAction, a.Name))
		}
	}
	for _, c := range conds {
		if c.Fn == nil && c.Name != "" && !t.HasCondition(c.Name) {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownCondition, c.Name))
		}
	}
	return errors.Join(errs...)
}
