// Package tasks owns mission tasks and enforces their lifecycle. Every
// accepted change is republished as a replicated variable so clients can
// render objectives without touching the registry.
package tasks

import (
	"errors"
	"fmt"
	"strings"

	"TaskForce/internal/core"
	"TaskForce/internal/logging"
)

var (
	ErrNotFound          = errors.New("tasks: not found")
	ErrInvalidTransition = errors.New("tasks: invalid transition")
	ErrInvalidDescriptor = errors.New("tasks: invalid descriptor")
)

// KeyPrefix prefixes the variable key each task record is published under.
const KeyPrefix = "task:"

// Key returns the variable key for task id.
func Key(id string) string { return KeyPrefix + id }

// Task is one mission objective.
type Task struct {
	ID          string
	Faction     core.Faction
	Title       string
	Description string
	MarkerID    string
	Position    *core.Vec2
	State       State
	Category    string
	CreatedAt   uint64
	UpdatedAt   uint64
}

// Record is the replicated form of a task.
func (t Task) Record() map[string]any {
	rec := map[string]any{
		"id":          t.ID,
		"faction":     string(t.Faction),
		"title":       t.Title,
		"description": t.Description,
		"marker":      t.MarkerID,
		"state":       string(t.State),
		"category":    t.Category,
		"updated":     float64(t.UpdatedAt),
	}
	if t.Position != nil {
		rec["position"] = []any{t.Position.X, t.Position.Y}
	} else {
		rec["position"] = nil
	}
	return rec
}

// Descriptor describes a task to create or update.
type Descriptor struct {
	ID          string
	Faction     core.Faction
	Title       string
	Description string
	Position    *core.Vec2
	MarkerID    string
	State       State // CREATED (default) or ASSIGNED
	Category    string
	AssignNow   bool
}

// Transition records an accepted state change.
type Transition struct {
	TaskID string
	From   State
	To     State
	Tick   uint64
}

// Publisher receives the task records. *vars.Store satisfies it.
type Publisher interface {
	Set(key string, value any, replicate bool) error
}

// Markers places and removes map markers for tasks with a position.
type Markers interface {
	Place(id string, pos core.Vec2, faction core.Faction)
	Remove(id string)
}

// Auditor records accepted transitions.
type Auditor interface {
	TaskTransition(tr Transition)
}

// Option configures a Registry.
type Option func(*Registry)

func WithMarkers(m Markers) Option { return func(r *Registry) { r.markers = m } }
func WithAuditor(a Auditor) Option { return func(r *Registry) { r.auditor = a } }
func WithLogger(l *logging.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// WithClock sets the tick source used for CreatedAt/UpdatedAt.
func WithClock(now func() uint64) Option { return func(r *Registry) { r.now = now } }

// Registry owns the session's tasks. It is not safe for concurrent use.
type Registry struct {
	tasks     map[string]*Task
	order     []string
	pub       Publisher
	markers   Markers
	auditor   Auditor
	log       *logging.Logger
	now       func() uint64
	listeners []func(Transition)
}

func NewRegistry(pub Publisher, opts ...Option) *Registry {
	r := &Registry{
		tasks: make(map[string]*Task),
		pub:   pub,
		log:   logging.Discard(),
		now:   func() uint64 { return 0 },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnTransition registers fn to run after every accepted transition, once the
// new record has been published.
func (r *Registry) OnTransition(fn func(Transition)) {
	if fn != nil {
		r.listeners = append(r.listeners, fn)
	}
}

func validate(d *Descriptor) error {
	d.ID = strings.TrimSpace(d.ID)
	if d.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidDescriptor)
	}
	f, err := core.ParseFaction(string(d.Faction))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	d.Faction = f
	if d.State == "" {
		d.State = Created
	}
	if d.State != Created && d.State != Assigned {
		return fmt.Errorf("%w: initial state %s", ErrInvalidDescriptor, d.State)
	}
	if d.AssignNow {
		d.State = Assigned
	}
	return nil
}

// Create instantiates the task, or updates the display fields of an existing
// one with the same id. An existing CREATED task is moved to ASSIGNED when the
// descriptor asks for it; any other state is left alone. A malformed
// descriptor is rejected without touching the registry.
func (r *Registry) Create(d Descriptor) (string, error) {
	if err := validate(&d); err != nil {
		return "", err
	}
	now := r.now()

	t, exists := r.tasks[d.ID]
	if !exists {
		t = &Task{ID: d.ID, State: d.State, CreatedAt: now}
		r.tasks[d.ID] = t
		r.order = append(r.order, d.ID)
	}
	t.Faction = d.Faction
	t.Title = d.Title
	t.Description = d.Description
	t.Category = d.Category
	t.UpdatedAt = now
	if d.Position != nil {
		pos := *d.Position
		t.Position = &pos
	}
	if d.MarkerID != "" {
		t.MarkerID = d.MarkerID
	} else if t.Position != nil && t.MarkerID == "" {
		t.MarkerID = "marker_" + d.ID
	}
	if r.markers != nil && t.Position != nil && !t.State.Terminal() {
		r.markers.Place(t.MarkerID, *t.Position, t.Faction)
	}

	if exists && t.State == Created && d.State == Assigned {
		if _, err := r.UpdateState(d.ID, Assigned); err != nil {
			return d.ID, err
		}
		return d.ID, nil
	}
	if err := r.publish(t); err != nil {
		return d.ID, err
	}
	if !exists {
		r.log.Debug("task created", "task", d.ID, "state", t.State, "faction", t.Faction)
	}
	return d.ID, nil
}

// UpdateState applies the transition and returns the previous state.
// Re-applying the current state returns it with no side effects.
func (r *Registry) UpdateState(id string, to State) (State, error) {
	t, ok := r.tasks[id]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	from := t.State
	if to == from {
		return from, nil
	}
	if !CanTransition(from, to) {
		return from, fmt.Errorf("%w: %s -> %s for %q", ErrInvalidTransition, from, to, id)
	}

	t.State = to
	t.UpdatedAt = r.now()
	if err := r.publish(t); err != nil {
		r.log.Warn("task publish failed", "task", id, "err", err)
	}
	if to.Terminal() && t.MarkerID != "" && r.markers != nil {
		r.markers.Remove(t.MarkerID)
	}

	tr := Transition{TaskID: id, From: from, To: to, Tick: t.UpdatedAt}
	if r.auditor != nil {
		r.auditor.TaskTransition(tr)
	}
	r.log.Info("task state changed", "task", id, "from", from, "to", to)
	for _, fn := range r.listeners {
		fn(tr)
	}
	return from, nil
}

func (r *Registry) publish(t *Task) error {
	if r.pub == nil {
		return nil
	}
	if err := r.pub.Set(Key(t.ID), t.Record(), true); err != nil {
		return fmt.Errorf("publish task %q: %w", t.ID, err)
	}
	return nil
}

// Get returns a copy of the task.
func (r *Registry) Get(id string) (Task, error) {
	t, ok := r.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return *t, nil
}

// State returns the task state, or "" when unknown.
func (r *Registry) State(id string) State {
	if t, ok := r.tasks[id]; ok {
		return t.State
	}
	return ""
}

// List returns copies of all tasks in creation order.
func (r *Registry) List() []Task {
	out := make([]Task, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.tasks[id])
	}
	return out
}

func (r *Registry) Len() int { return len(r.order) }
