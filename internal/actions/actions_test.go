package actions

import (
	"context"
	"errors"
	"testing"

	"TaskForce/internal/core"
)

func TestRunNamedAction(t *testing.T) {
	table := NewTable()
	var got []string
	table.Register("say", func(_ context.Context, args Args) error {
		s, err := args.String(0)
		if err != nil {
			return err
		}
		got = append(got, s)
		return nil
	})

	if err := table.Run(context.Background(), Call("say", "hello")); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("expected handler to record hello, got %v", got)
	}
}

func TestRunCapturedFunctionWins(t *testing.T) {
	table := NewTable()
	called := false
	a := Do(func(context.Context, Args) error {
		called = true
		return nil
	})
	if err := table.Run(context.Background(), a); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !called {
		t.Fatal("captured function was not called")
	}
}

func TestRunUnknownAction(t *testing.T) {
	table := NewTable()
	err := table.Run(context.Background(), Call("missing"))
	if !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
}

func TestRunAllContinuesAfterFailure(t *testing.T) {
	table := NewTable()
	count := 0
	table.Register("count", func(context.Context, Args) error {
		count++
		return nil
	})
	err := table.RunAll(context.Background(), []Action{Call("count"), Call("missing"), Call("count")})
	if err == nil {
		t.Fatal("expected joined error")
	}
	if count != 2 {
		t.Fatalf("expected both count actions to run, got %d", count)
	}
}

func TestEvalConditions(t *testing.T) {
	table := NewTable()
	table.RegisterCondition("even", func(args Args) (bool, error) {
		n, err := args.Number(0)
		if err != nil {
			return false, err
		}
		return int(n)%2 == 0, nil
	})

	cases := []struct {
		name string
		cond Condition
		want bool
	}{
		{"zero value", Always, true},
		{"always", When("always"), true},
		{"never", When("never"), false},
		{"even 4", When("even", 4), true},
		{"even 3", When("even", 3), false},
		{"not even 3", Not(When("even", 3)), true},
		{"captured", Check(func() bool { return true }), true},
	}
	for _, tc := range cases {
		got, err := table.Eval(tc.cond)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if got != tc.want {
			t.Errorf("%s: got %v, expected %v", tc.name, got, tc.want)
		}
	}

	if _, err := table.Eval(When("nope")); !errors.Is(err, ErrUnknownCondition) {
		t.Fatalf("expected ErrUnknownCondition, got %v", err)
	}
	if _, err := table.Eval(When("even")); !errors.Is(err, ErrBadArgs) {
		t.Fatalf("expected ErrBadArgs for missing argument, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	table := NewTable()
	table.Register("known", func(context.Context, Args) error { return nil })
	if err := table.Validate([]Action{Call("known")}, []Condition{When("always")}); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	err := table.Validate([]Action{Call("unknown")}, []Condition{When("weird")})
	if !errors.Is(err, ErrUnknownAction) || !errors.Is(err, ErrUnknownCondition) {
		t.Fatalf("expected both unknown errors, got %v", err)
	}
}

func TestArgsAccessors(t *testing.T) {
	args := Args{"west", 3, true, []any{10.0, 20, 0}, map[string]any{"x": 1.5, "y": 2.5}, "7.5"}

	if s, err := args.String(0); err != nil || s != "west" {
		t.Errorf("String(0) = %q, %v", s, err)
	}
	if n, err := args.Number(1); err != nil || n != 3 {
		t.Errorf("Number(1) = %v, %v", n, err)
	}
	if b, err := args.Bool(2); err != nil || !b {
		t.Errorf("Bool(2) = %v, %v", b, err)
	}
	if v, err := args.Vec(3); err != nil || v != (core.Vec2{X: 10, Y: 20}) {
		t.Errorf("Vec(3) = %+v, %v", v, err)
	}
	if v, err := args.Vec(4); err != nil || v != (core.Vec2{X: 1.5, Y: 2.5}) {
		t.Errorf("Vec(4) = %+v, %v", v, err)
	}
	if n, err := args.Number(5); err != nil || n != 7.5 {
		t.Errorf("Number(5) = %v, %v", n, err)
	}
	if _, err := args.String(1); !errors.Is(err, ErrBadArgs) {
		t.Errorf("expected ErrBadArgs for String(1), got %v", err)
	}
	if got := args.StringOr(10, "fallback"); got != "fallback" {
		t.Errorf("StringOr = %q", got)
	}
	if got := args.NumberOr(10, 4); got != 4 {
		t.Errorf("NumberOr = %v", got)
	}
	if got := args.BoolOr(10, true); !got {
		t.Errorf("BoolOr = %v", got)
	}
}

func TestActionString(t *testing.T) {
	if s := Call("update_task_state", "t1", "SUCCEEDED").String(); s != "update_task_state(t1, SUCCEEDED)" {
		t.Errorf("unexpected String(): %s", s)
	}
	if s := Do(func(context.Context, Args) error { return nil }).String(); s != "func" {
		t.Errorf("unexpected String() for captured func: %s", s)
	}
}

func TestParseAction(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{"navigator_advance", "navigator_advance"},
		{[]any{"update_task_state", "t1", "SUCCEEDED"}, "update_task_state(t1, SUCCEEDED)"},
		{map[string]any{"do": "set_variable", "args": []any{"g1_done", true}}, "set_variable(g1_done, true)"},
	}
	for _, tc := range cases {
		a, err := ParseAction(tc.in)
		if err != nil {
			t.Fatalf("ParseAction(%v): %v", tc.in, err)
		}
		if a.String() != tc.want {
			t.Errorf("ParseAction(%v) = %s, expected %s", tc.in, a, tc.want)
		}
	}
	if _, err := ParseAction(42); !errors.Is(err, ErrBadArgs) {
		t.Fatalf("expected ErrBadArgs, got %v", err)
	}
}

func TestParseActionsList(t *testing.T) {
	list, err := ParseActions([]any{
		[]any{"notify_global", "go"},
		map[string]any{"do": "navigator_advance", "args": []any{"p0"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[1].Name != "navigator_advance" {
		t.Fatalf("unexpected list %v", list)
	}
	single, err := ParseActions([]any{"notify_global", "go"})
	if err != nil || len(single) != 1 || single[0].Args.StringOr(0, "") != "go" {
		t.Fatalf("expected one action, got %v, %v", single, err)
	}
}

func TestParseCondition(t *testing.T) {
	table := NewTable()
	cases := []struct {
		in   any
		want bool
	}{
		{nil, true},
		{true, true},
		{false, false},
		{"never", false},
		{map[string]any{"when": "never", "not": true}, true},
	}
	for _, tc := range cases {
		c, err := ParseCondition(tc.in)
		if err != nil {
			t.Fatalf("ParseCondition(%v): %v", tc.in, err)
		}
		got, err := table.Eval(c)
		if err != nil || got != tc.want {
			t.Errorf("ParseCondition(%v) evaluated to %v, %v", tc.in, got, err)
		}
	}
}

func TestToArea(t *testing.T) {
	a, err := ToArea(map[string]any{"center": []any{100.0, 200.0}, "radius": 50.0})
	if err != nil || a.Shape != core.ShapeRadial || a.Radius != 50 {
		t.Fatalf("radial area = %+v, %v", a, err)
	}
	b, err := ToArea(map[string]any{"center": map[string]any{"x": 0.0, "y": 0.0}, "width": 10.0, "height": 4.0})
	if err != nil || b.Shape != core.ShapeBox || b.HalfW != 5 || b.HalfH != 2 {
		t.Fatalf("box area = %+v, %v", b, err)
	}
	c, err := ToArea([]any{1.0, 2.0, 3.0})
	if err != nil || c.Center != (core.Vec2{X: 1, Y: 2}) || c.Radius != 3 {
		t.Fatalf("short area = %+v, %v", c, err)
	}
	if _, err := ToArea("nowhere"); !errors.Is(err, ErrBadArgs) {
		t.Fatalf("expected ErrBadArgs, got %v", err)
	}
}
