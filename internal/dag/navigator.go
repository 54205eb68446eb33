package dag

import (
	"context"

	"TaskForce/internal/actions"
	"TaskForce/internal/logging"
	"TaskForce/internal/tasks"
)

// Replicated keys the Navigator publishes.
const (
	KeyPhase      = "mission:phase"
	KeyPhaseLabel = "mission:phase_label"
	KeyComplete   = "mission:complete"
)

// Runner executes phase actions and evaluates edge conditions.
// *actions.Table satisfies it.
type Runner interface {
	RunAll(ctx context.Context, list []actions.Action) error
	Eval(c actions.Condition) (bool, error)
}

// TaskStates looks up task states. *tasks.Registry satisfies it.
type TaskStates interface {
	State(id string) tasks.State
}

// Publisher receives the mission progress variables.
type Publisher interface {
	Set(key string, value any, replicate bool) error
}

// Auditor records phase changes. reason is "enter", "complete" or "fail".
type Auditor interface {
	PhaseChanged(phase PhaseID, reason string)
}

// Effects is an optional hook for phase events, called after the phase's
// own actions.
type Effects interface {
	OnEnter(p *Phase)
	OnComplete(p *Phase)
	OnFailure(p *Phase)
}

// NoOpEffects is a default implementation that does nothing.
type NoOpEffects struct{}

func (NoOpEffects) OnEnter(*Phase)    {}
func (NoOpEffects) OnComplete(*Phase) {}
func (NoOpEffects) OnFailure(*Phase)  {}

type request struct {
	key   string
	force bool
}

// Navigator owns the current phase cursor. It is not safe for concurrent use;
// calls made from inside phase actions are queued and handled after the
// current transition finishes.
type Navigator struct {
	graph   *Graph
	runner  Runner
	tasks   TaskStates
	pub     Publisher
	auditor Auditor
	effects Effects
	log     *logging.Logger

	current  PhaseID
	started  bool
	complete bool
	finished map[PhaseID]bool
	failed   map[PhaseID]bool
	visited  []PhaseID

	busy  bool
	queue []request
}

// Option configures a Navigator.
type Option func(*Navigator)

func WithLogger(l *logging.Logger) Option { return func(n *Navigator) { n.log = l } }
func WithAuditor(a Auditor) Option        { return func(n *Navigator) { n.auditor = a } }
func WithEffects(e Effects) Option        { return func(n *Navigator) { n.effects = e } }

func NewNavigator(g *Graph, runner Runner, states TaskStates, pub Publisher, opts ...Option) *Navigator {
	n := &Navigator{
		graph:    g,
		runner:   runner,
		tasks:    states,
		pub:      pub,
		effects:  NoOpEffects{},
		log:      logging.Discard(),
		finished: make(map[PhaseID]bool),
		failed:   make(map[PhaseID]bool),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Current returns the current phase, empty before InitTasks.
func (n *Navigator) Current() PhaseID { return n.current }

// Complete reports whether a terminal phase has completed.
func (n *Navigator) Complete() bool { return n.complete }

// Started reports whether InitTasks has run.
func (n *Navigator) Started() bool { return n.started }

// Visited returns the phases entered so far, in order.
func (n *Navigator) Visited() []PhaseID { return append([]PhaseID(nil), n.visited...) }

// Graph returns the phase graph.
func (n *Navigator) Graph() *Graph { return n.graph }

// InitTasks enters the initial phase. Only the first call has any effect.
func (n *Navigator) InitTasks(ctx context.Context) {
	if n.started {
		n.log.Info("navigator already initialized", "phase", n.current)
		return
	}
	n.started = true
	n.publish(KeyComplete, false)
	n.busy = true
	n.enter(ctx, n.graph.Initial)
	n.busy = false
	n.drain(ctx)
}

// Advance re-checks the current phase after completedTaskID reached a
// terminal state.
func (n *Navigator) Advance(ctx context.Context, completedTaskID string) {
	n.submit(ctx, request{key: completedTaskID})
}

// Signal is the explicit advance entry point. completed=false is ignored. A
// key naming the current phase force-completes it; any other key is treated
// as a completed task id.
func (n *Navigator) Signal(ctx context.Context, key string, completed bool) {
	if !completed {
		return
	}
	n.submit(ctx, request{key: key, force: true})
}

func (n *Navigator) submit(ctx context.Context, req request) {
	n.queue = append(n.queue, req)
	if n.busy {
		return
	}
	n.drain(ctx)
}

func (n *Navigator) drain(ctx context.Context) {
	n.busy = true
	defer func() { n.busy = false }()
	for len(n.queue) > 0 {
		req := n.queue[0]
		n.queue = n.queue[1:]
		n.handle(ctx, req)
	}
}

func (n *Navigator) handle(ctx context.Context, req request) {
	if !n.started || n.complete {
		n.log.Debug("navigator signal ignored", "key", req.key, "started", n.started, "complete", n.complete)
		return
	}
	p := n.graph.Phase(n.current)
	if req.force && req.key == string(p.ID) {
		n.completePhase(ctx, p)
		return
	}
	n.evaluate(ctx, p)
}

// evaluate completes p when its requirements are met and runs its failure
// branch when one of them can no longer succeed.
func (n *Navigator) evaluate(ctx context.Context, p *Phase) {
	if n.finished[p.ID] {
		// Completed earlier but no edge held; retry the edges.
		n.follow(ctx, p)
		return
	}
	if len(p.Requires) == 0 {
		if p.Terminal() {
			n.completePhase(ctx, p)
		}
		return
	}

	met := true
	for _, id := range p.Requires {
		st := n.tasks.State(id)
		switch {
		case st == tasks.Failed || st == tasks.Canceled:
			n.fail(ctx, p, id, st)
			return
		case st != tasks.Succeeded:
			met = false
		}
	}
	if met {
		n.completePhase(ctx, p)
	}
}

func (n *Navigator) fail(ctx context.Context, p *Phase, taskID string, st tasks.State) {
	if n.failed[p.ID] {
		return
	}
	n.failed[p.ID] = true
	n.log.Warn("phase requirement failed", "phase", p.ID, "task", taskID, "state", st)
	n.audit(p.ID, "fail")
	if err := n.runner.RunAll(ctx, p.OnFailure); err != nil {
		n.log.Warn("phase failure actions failed", "phase", p.ID, "err", err)
	}
	n.effects.OnFailure(p)
	if p.FailTo == "" {
		n.log.Warn("phase stalled", "phase", p.ID)
		return
	}
	n.enter(ctx, p.FailTo)
}

func (n *Navigator) completePhase(ctx context.Context, p *Phase) {
	if n.finished[p.ID] {
		n.follow(ctx, p)
		return
	}
	n.finished[p.ID] = true
	n.log.Info("phase complete", "phase", p.ID)
	n.audit(p.ID, "complete")
	if err := n.runner.RunAll(ctx, p.OnComplete); err != nil {
		n.log.Warn("phase completion actions failed", "phase", p.ID, "err", err)
	}
	n.effects.OnComplete(p)
	n.follow(ctx, p)
}

// follow takes the first satisfied edge out of a completed phase.
func (n *Navigator) follow(ctx context.Context, p *Phase) {
	if p.Terminal() {
		n.complete = true
		n.publish(KeyComplete, true)
		n.log.Info("mission complete", "phase", p.ID)
		return
	}
	for _, e := range p.Next {
		ok, err := n.runner.Eval(e.When)
		if err != nil {
			n.log.Warn("phase edge condition failed", "phase", p.ID, "to", e.To, "err", err)
			continue
		}
		if ok {
			n.enter(ctx, e.To)
			return
		}
	}
	n.log.Warn("no phase edge satisfied", "phase", p.ID)
}

func (n *Navigator) enter(ctx context.Context, id PhaseID) {
	p := n.graph.Phase(id)
	if p == nil {
		n.log.Error("phase not found", "phase", id)
		return
	}
	n.current = id
	n.visited = append(n.visited, id)
	n.publish(KeyPhase, string(id))
	n.publish(KeyPhaseLabel, p.Label)
	n.audit(id, "enter")
	n.log.Info("phase entered", "phase", id)
	if err := n.runner.RunAll(ctx, p.OnEnter); err != nil {
		n.log.Warn("phase entry actions failed", "phase", id, "err", err)
	}
	n.effects.OnEnter(p)
	n.evaluate(ctx, p)
}

func (n *Navigator) publish(key string, value any) {
	if n.pub == nil {
		return
	}
	if err := n.pub.Set(key, value, true); err != nil {
		n.log.Warn("navigator publish failed", "key", key, "err", err)
	}
}

func (n *Navigator) audit(id PhaseID, reason string) {
	if n.auditor != nil {
		n.auditor.PhaseChanged(id, reason)
	}
}
