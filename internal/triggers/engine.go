// Package triggers evaluates area triggers once per tick. A trigger fires its
// bound action on the false to true edge of presence AND condition; one-shot
// triggers are then removed, repeatable ones wait for the predicate to drop
// before they can fire again.
package triggers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"TaskForce/internal/actions"
	"TaskForce/internal/core"
	"TaskForce/internal/logging"
)

var (
	ErrNotFound          = errors.New("triggers: not found")
	ErrInvalidDescriptor = errors.New("triggers: invalid descriptor")
)

// Presence selects whether the spatial predicate wants qualifying entities
// inside the area or none.
type Presence int

const (
	Present Presence = iota
	NotPresent
)

func (p Presence) String() string {
	if p == NotPresent {
		return "NOT_PRESENT"
	}
	return "PRESENT"
}

// ParsePresence accepts PRESENT / NOT_PRESENT in any case.
func ParsePresence(s string) (Presence, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "PRESENT":
		return Present, nil
	case "NOT_PRESENT", "NOTPRESENT", "ABSENT":
		return NotPresent, nil
	}
	return Present, fmt.Errorf("%w: unknown presence %q", ErrInvalidDescriptor, s)
}

// PresenceSource counts entities of a faction inside an area.
type PresenceSource interface {
	Occupants(area core.Area, faction core.Faction) int
}

// Runner executes bound actions and evaluates conditions. *actions.Table
// satisfies it.
type Runner interface {
	Run(ctx context.Context, a actions.Action) error
	Eval(c actions.Condition) (bool, error)
}

// Auditor records activations.
type Auditor interface {
	TriggerActivated(id string, tick uint64)
}

// Descriptor defines a trigger.
type Descriptor struct {
	ID         string
	Area       core.Area
	Faction    core.Faction
	Presence   Presence
	Condition  actions.Condition
	OnActivate actions.Action
	Repeatable bool
	// Cooldown is the minimum time between activations of a repeatable
	// trigger. An edge inside the cooldown is deferred, not dropped.
	Cooldown time.Duration
}

// Trigger is a registered trigger plus its evaluation state.
type Trigger struct {
	Descriptor
	LastCombined bool
	Activations  int
	LastFired    time.Time

	armed    bool
	since    uint64
	erroring bool
}

// Engine owns the session's triggers. It is not safe for concurrent use.
type Engine struct {
	triggers map[string]*Trigger
	order    []string
	fired    map[string]int
	runner   Runner
	auditor  Auditor
	log      *logging.Logger
	tick     uint64
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *logging.Logger) Option { return func(e *Engine) { e.log = l } }
func WithAuditor(a Auditor) Option        { return func(e *Engine) { e.auditor = a } }

func NewEngine(runner Runner, opts ...Option) *Engine {
	e := &Engine{
		triggers: make(map[string]*Trigger),
		fired:    make(map[string]int),
		runner:   runner,
		log:      logging.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Create registers d for evaluation starting with the next tick. An existing
// id is replaced in place and re-armed.
func (e *Engine) Create(d Descriptor) (string, error) {
	d.ID = strings.TrimSpace(d.ID)
	if d.ID == "" {
		return "", fmt.Errorf("%w: empty id", ErrInvalidDescriptor)
	}
	if !d.Area.Valid() {
		return "", fmt.Errorf("%w: invalid area for %q", ErrInvalidDescriptor, d.ID)
	}
	f, err := core.ParseFaction(string(d.Faction))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	d.Faction = f
	if d.OnActivate.IsZero() {
		return "", fmt.Errorf("%w: %q has no action", ErrInvalidDescriptor, d.ID)
	}
	if d.Cooldown < 0 {
		d.Cooldown = 0
	}

	t := &Trigger{Descriptor: d, armed: true, since: e.tick + 1}
	if old, ok := e.triggers[d.ID]; ok {
		t.Activations = old.Activations
		t.LastFired = old.LastFired
	} else {
		e.order = append(e.order, d.ID)
	}
	e.triggers[d.ID] = t
	return d.ID, nil
}

// Delete removes a trigger. Unknown ids are ignored.
func (e *Engine) Delete(id string) {
	if _, ok := e.triggers[id]; !ok {
		return
	}
	delete(e.triggers, id)
	for i, oid := range e.order {
		if oid == id {
			e.order = append(e.order[:i:i], e.order[i+1:]...)
			break
		}
	}
}

// Get returns a copy of a live trigger.
func (e *Engine) Get(id string) (Trigger, error) {
	t, ok := e.triggers[id]
	if !ok {
		return Trigger{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return *t, nil
}

// Activated reports whether id has fired at least once, including one-shot
// triggers that have since been removed.
func (e *Engine) Activated(id string) bool { return e.fired[id] > 0 }

// Activations returns how often id has fired over the session.
func (e *Engine) Activations(id string) int { return e.fired[id] }

func (e *Engine) Len() int { return len(e.order) }

// IDs lists live triggers in evaluation order.
func (e *Engine) IDs() []string {
	return append([]string(nil), e.order...)
}

// Tick evaluates every live trigger once in creation order. Actions run
// synchronously; their failures are logged and never stop the tick.
func (e *Engine) Tick(ctx context.Context, now time.Time, presence PresenceSource) {
	e.tick++
	ids := append([]string(nil), e.order...)
	for _, id := range ids {
		t, ok := e.triggers[id]
		if !ok || t.since > e.tick {
			continue
		}
		e.evaluate(ctx, t, now, presence)
	}
}

func (e *Engine) evaluate(ctx context.Context, t *Trigger, now time.Time, presence PresenceSource) {
	combined := e.presenceHolds(t, presence) && e.conditionHolds(t)
	t.LastCombined = combined
	if !combined {
		if t.Repeatable {
			t.armed = true
		}
		return
	}
	if !t.armed {
		return
	}
	if t.Repeatable && t.Cooldown > 0 && !t.LastFired.IsZero() && now.Sub(t.LastFired) < t.Cooldown {
		return
	}

	t.armed = false
	t.Activations++
	t.LastFired = now
	e.fired[t.ID]++
	if !t.Repeatable {
		e.Delete(t.ID)
	}
	e.audit(t.ID)
	e.log.Debug("trigger activated", "trigger", t.ID, "action", t.OnActivate.String())
	if err := e.run(ctx, t.OnActivate); err != nil {
		e.log.Warn("trigger action failed", "trigger", t.ID, "err", err)
	}
}

func (e *Engine) presenceHolds(t *Trigger, presence PresenceSource) bool {
	n := 0
	if presence != nil {
		n = presence.Occupants(t.Area, t.Faction)
	}
	if t.Presence == NotPresent {
		return n == 0
	}
	return n > 0
}

func (e *Engine) conditionHolds(t *Trigger) bool {
	ok, err := e.eval(t.Condition)
	if err != nil {
		if !t.erroring {
			e.log.Warn("trigger condition failed", "trigger", t.ID, "err", err)
		}
		t.erroring = true
		return false
	}
	t.erroring = false
	return ok
}

func (e *Engine) run(ctx context.Context, a actions.Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return e.runner.Run(ctx, a)
}

func (e *Engine) audit(id string) {
	if e.auditor == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("trigger audit failed", "trigger", id, "err", r)
		}
	}()
	e.auditor.TriggerActivated(id, e.tick)
}

func (e *Engine) eval(c actions.Condition) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("panic: %v", r)
		}
	}()
	return e.runner.Eval(c)
}
