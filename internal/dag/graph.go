// Package dag sequences mission phases over a validated, acyclic phase graph.
//
// The graph is server-authoritative and validated when the mission is
// installed. The Navigator walks it at runtime, reacting to task terminal
// states and explicit phase signals.
package dag

import (
	"errors"
	"fmt"
	"sort"

	"TaskForce/internal/actions"
)

// PhaseID uniquely identifies a phase in the graph.
type PhaseID string

// Edge is a conditional transition. The first edge whose When holds is taken.
type Edge struct {
	To   PhaseID
	When actions.Condition
}

// Phase is one stage of mission progression.
type Phase struct {
	ID    PhaseID
	Order int
	Label string
	// Requires lists task ids that must all be SUCCEEDED to complete the
	// phase. A phase without requirements completes only when signalled,
	// unless it is terminal.
	Requires   []string
	OnEnter    []actions.Action
	OnComplete []actions.Action
	// OnFailure runs once when a required task fails or is canceled.
	OnFailure []actions.Action
	Next      []Edge
	// FailTo is the phase entered after OnFailure. Empty means the phase
	// stalls until signalled.
	FailTo PhaseID
}

// Terminal reports whether the phase has no outgoing edge.
func (p *Phase) Terminal() bool { return len(p.Next) == 0 }

// Graph is the validated phase graph.
type Graph struct {
	Phases    map[PhaseID]*Phase
	Incoming  map[PhaseID][]PhaseID // reverse index of edges and failure branches
	TopoOrder []PhaseID
	Initial   PhaseID
}

var (
	// ErrCycleDetected is returned when the phase graph loops.
	ErrCycleDetected = errors.New("dag: cycle detected in graph")
	// ErrPhaseNotFound is returned when an edge names a missing phase.
	ErrPhaseNotFound = errors.New("dag: phase not found")
	// ErrDuplicatePhase is returned when two phases share an id.
	ErrDuplicatePhase = errors.New("dag: duplicate phase")
	// ErrEmptyGraph is returned for a mission without phases.
	ErrEmptyGraph = errors.New("dag: no phases")
)

// NewGraph indexes and validates phases. The initial phase is the one with
// the lowest Order, ties broken by id.
func NewGraph(phases []*Phase) (*Graph, error) {
	if len(phases) == 0 {
		return nil, ErrEmptyGraph
	}
	g := &Graph{
		Phases:   make(map[PhaseID]*Phase, len(phases)),
		Incoming: make(map[PhaseID][]PhaseID),
	}

	for _, p := range phases {
		if p == nil || p.ID == "" {
			return nil, fmt.Errorf("%w: phase without id", ErrPhaseNotFound)
		}
		if _, dup := g.Phases[p.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePhase, p.ID)
		}
		g.Phases[p.ID] = p
	}

	for _, p := range phases {
		for _, to := range p.successors() {
			if _, ok := g.Phases[to]; !ok {
				return nil, fmt.Errorf("%w: phase %s leads to missing phase %s", ErrPhaseNotFound, p.ID, to)
			}
			g.Incoming[to] = append(g.Incoming[to], p.ID)
		}
	}

	order, err := g.topoSort()
	if err != nil {
		return nil, err
	}
	g.TopoOrder = order
	g.Initial = g.Ordered()[0].ID
	return g, nil
}

func (p *Phase) successors() []PhaseID {
	out := make([]PhaseID, 0, len(p.Next)+1)
	for _, e := range p.Next {
		out = append(out, e.To)
	}
	if p.FailTo != "" {
		out = append(out, p.FailTo)
	}
	return out
}

// Phase returns a phase by id, or nil.
func (g *Graph) Phase(id PhaseID) *Phase {
	return g.Phases[id]
}

// Ordered returns the phases sorted by Order, then id.
func (g *Graph) Ordered() []*Phase {
	out := make([]*Phase, 0, len(g.Phases))
	for _, p := range g.Phases {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// topoSort performs topological sorting using Kahn's algorithm to detect cycles.
func (g *Graph) topoSort() ([]PhaseID, error) {
	inDegree := make(map[PhaseID]int, len(g.Phases))
	for id := range g.Phases {
		inDegree[id] = len(g.Incoming[id])
	}

	var queue []PhaseID
	for _, p := range g.Ordered() {
		if inDegree[p.ID] == 0 {
			queue = append(queue, p.ID)
		}
	}

	var order []PhaseID
	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		order = append(order, curr)

		for _, next := range g.Phases[curr].successors() {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(g.Phases) {
		return nil, ErrCycleDetected
	}
	return order, nil
}

// Reachable reports whether to can be reached from from.
func (g *Graph) Reachable(from, to PhaseID) bool {
	seen := map[PhaseID]bool{}
	stack := []PhaseID{from}
	for len(stack) > 0 {
		curr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if curr == to {
			return true
		}
		if seen[curr] {
			continue
		}
		seen[curr] = true
		if p := g.Phases[curr]; p != nil {
			stack = append(stack, p.successors()...)
		}
	}
	return false
}
