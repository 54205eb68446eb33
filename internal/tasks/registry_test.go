package tasks

import (
	"errors"
	"testing"

	"TaskForce/internal/core"
	"TaskForce/internal/vars"
)

type markerLog struct {
	placed  map[string]core.Vec2
	removed []string
}

func (m *markerLog) Place(id string, pos core.Vec2, _ core.Faction) {
	if m.placed == nil {
		m.placed = make(map[string]core.Vec2)
	}
	m.placed[id] = pos
}

func (m *markerLog) Remove(id string) { m.removed = append(m.removed, id) }

type auditLog []Transition

func (a *auditLog) TaskTransition(tr Transition) { *a = append(*a, tr) }

func newTestRegistry(opts ...Option) (*Registry, *vars.Store) {
	store := vars.NewStore()
	return NewRegistry(store, opts...), store
}

func TestTaskLifecycleScenario(t *testing.T) {
	r, _ := newTestRegistry()
	if _, err := r.Create(Descriptor{ID: "t1", Faction: core.FactionWest, Title: "Kill HVT"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	prev, err := r.UpdateState("t1", Assigned)
	if err != nil || prev != Created {
		t.Fatalf("CREATED->ASSIGNED: prev=%s err=%v", prev, err)
	}
	prev, err = r.UpdateState("t1", Succeeded)
	if err != nil || prev != Assigned {
		t.Fatalf("ASSIGNED->SUCCEEDED: prev=%s err=%v", prev, err)
	}
	_, err = r.UpdateState("t1", Assigned)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if st := r.State("t1"); st != Succeeded {
		t.Fatalf("state changed to %s", st)
	}
}

func TestIllegalTransitionsLeaveStateUnchanged(t *testing.T) {
	all := []State{Created, Assigned, Succeeded, Failed, Canceled}
	for _, from := range all {
		for _, to := range all {
			if from == to || CanTransition(from, to) {
				continue
			}
			r, store := newTestRegistry()
			id := "t"
			if _, err := r.Create(Descriptor{ID: id}); err != nil {
				t.Fatal(err)
			}
			driveTo(t, r, id, from)
			version := store.Version(Key(id))

			_, err := r.UpdateState(id, to)
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("%s->%s: expected ErrInvalidTransition, got %v", from, to, err)
			}
			if st := r.State(id); st != from {
				t.Errorf("%s->%s: state became %s", from, to, st)
			}
			if v := store.Version(Key(id)); v != version {
				t.Errorf("%s->%s: version moved %d -> %d", from, to, version, v)
			}
		}
	}
}

func driveTo(t *testing.T, r *Registry, id string, target State) {
	t.Helper()
	path := map[State][]State{
		Created:   nil,
		Assigned:  {Assigned},
		Succeeded: {Assigned, Succeeded},
		Failed:    {Assigned, Failed},
		Canceled:  {Canceled},
	}
	for _, st := range path[target] {
		if _, err := r.UpdateState(id, st); err != nil {
			t.Fatalf("drive %s: %v", st, err)
		}
	}
}

func TestSameStateIsIdempotent(t *testing.T) {
	var audit auditLog
	r, store := newTestRegistry(WithAuditor(&audit))
	r.Create(Descriptor{ID: "t1"})

	calls := 0
	r.OnTransition(func(Transition) { calls++ })

	for i := 0; i < 3; i++ {
		prev, err := r.UpdateState("t1", Assigned)
		if err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
		if i > 0 && prev != Assigned {
			t.Fatalf("repeat returned prev=%s", prev)
		}
	}
	if v := store.Version(Key("t1")); v != 2 {
		t.Fatalf("expected version 2 (create + one transition), got %d", v)
	}
	if calls != 1 || len(audit) != 1 {
		t.Fatalf("expected one notification, got listeners=%d audit=%d", calls, len(audit))
	}

	r.UpdateState("t1", Succeeded)
	if _, err := r.UpdateState("t1", Succeeded); err != nil {
		t.Fatalf("terminal re-apply should be a no-op: %v", err)
	}
}

func TestCreateExistingUpdatesInPlace(t *testing.T) {
	r, store := newTestRegistry()
	r.Create(Descriptor{ID: "t1", Title: "Old", Category: "recon"})
	r.UpdateState("t1", Assigned)
	r.Create(Descriptor{ID: "t1", Title: "New", Category: "assault"})

	if r.Len() != 1 {
		t.Fatalf("expected one task, got %d", r.Len())
	}
	task, _ := r.Get("t1")
	if task.Title != "New" || task.Category != "assault" || task.State != Assigned {
		t.Fatalf("unexpected task %+v", task)
	}
	rec := store.Get(Key("t1"), nil).(map[string]any)
	if rec["title"] != "New" || rec["state"] != "ASSIGNED" {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestCreateAssignNowOnExistingTask(t *testing.T) {
	var audit auditLog
	r, _ := newTestRegistry(WithAuditor(&audit))
	r.Create(Descriptor{ID: "t1"})
	r.Create(Descriptor{ID: "t1", AssignNow: true})
	if r.State("t1") != Assigned {
		t.Fatalf("expected ASSIGNED, got %s", r.State("t1"))
	}
	if len(audit) != 1 || audit[0].From != Created {
		t.Fatalf("expected audited transition, got %+v", audit)
	}
}

func TestCreateRejectsMalformedDescriptor(t *testing.T) {
	r, store := newTestRegistry()
	cases := []Descriptor{
		{ID: ""},
		{ID: "x", Faction: "martians"},
		{ID: "x", State: Succeeded},
	}
	for _, d := range cases {
		if _, err := r.Create(d); !errors.Is(err, ErrInvalidDescriptor) {
			t.Errorf("%+v: expected ErrInvalidDescriptor, got %v", d, err)
		}
	}
	if r.Len() != 0 || store.Len() != 0 {
		t.Fatal("malformed descriptors mutated state")
	}
}

func TestMarkersFollowLifecycle(t *testing.T) {
	markers := &markerLog{}
	r, _ := newTestRegistry(WithMarkers(markers))
	pos := core.Vec2{X: 100, Y: 200}
	r.Create(Descriptor{ID: "t1", Position: &pos, AssignNow: true})

	task, _ := r.Get("t1")
	if task.MarkerID != "marker_t1" {
		t.Fatalf("unexpected marker id %q", task.MarkerID)
	}
	if markers.placed["marker_t1"] != pos {
		t.Fatalf("marker not placed: %v", markers.placed)
	}
	r.UpdateState("t1", Canceled)
	if len(markers.removed) != 1 || markers.removed[0] != "marker_t1" {
		t.Fatalf("marker not removed: %v", markers.removed)
	}
}

func TestUnknownTask(t *testing.T) {
	r, _ := newTestRegistry()
	if _, err := r.UpdateState("nope", Assigned); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := r.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListKeepsCreationOrder(t *testing.T) {
	r, _ := newTestRegistry()
	for _, id := range []string{"c", "a", "b"} {
		r.Create(Descriptor{ID: id})
	}
	r.Create(Descriptor{ID: "a", Title: "again"})
	list := r.List()
	if len(list) != 3 || list[0].ID != "c" || list[1].ID != "a" || list[2].ID != "b" {
		t.Fatalf("unexpected order %+v", list)
	}
}

func TestParseState(t *testing.T) {
	if st, err := ParseState("cancelled"); err != nil || st != Canceled {
		t.Fatalf("ParseState(cancelled) = %s, %v", st, err)
	}
	if _, err := ParseState("done"); err == nil {
		t.Fatal("expected error for unknown state")
	}
}
