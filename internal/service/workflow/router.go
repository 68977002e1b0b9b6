package workflow

import (
	"fmt"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
)

// Guard is a pure predicate over the run state.
type Guard func(state *core.AgentState) bool

// Transition is one row of the router table.
type Transition struct {
	From  core.RouteState
	Guard Guard
	To    core.RouteState
}

// Always matches every state.
func Always(*core.AgentState) bool { return true }

// Sufficient matches when the evidence gate allowed the run to continue.
func Sufficient(state *core.AgentState) bool {
	return state.Aggregation != nil && state.Aggregation.Sufficient
}

// DefaultTransitions is the audit pipeline:
//
//	collect_evidence -> aggregate -> deliberate -> synthesize -> done
//	                              \-> aborted
func DefaultTransitions() []Transition {
	return []Transition{
		{From: core.RouteCollectEvidence, Guard: Always, To: core.RouteAggregate},
		{From: core.RouteAggregate, Guard: Sufficient, To: core.RouteDeliberate},
		{From: core.RouteAggregate, Guard: Always, To: core.RouteAborted},
		{From: core.RouteDeliberate, Guard: Always, To: core.RouteSynthesize},
		{From: core.RouteSynthesize, Guard: Always, To: core.RouteDone},
	}
}

// Router selects the next route state from a transition table. Rows are
// tried in order; the first matching guard wins.
type Router struct {
	table []Transition
}

// NewRouter creates a router. An empty table uses DefaultTransitions.
func NewRouter(table ...Transition) *Router {
	if len(table) == 0 {
		table = DefaultTransitions()
	}
	return &Router{table: table}
}

// Next returns the state that follows state.Route. Terminal states map to
// themselves.
func (r *Router) Next(state *core.AgentState) (core.RouteState, error) {
	from := state.Route
	if from.Terminal() {
		return from, nil
	}
	if !core.ValidRouteState(from) {
		return "", fmt.Errorf("routing: unknown state %q", from)
	}
	for _, t := range r.table {
		if t.From == from && t.Guard(state) {
			return t.To, nil
		}
	}
	return "", fmt.Errorf("routing: no transition from %s", from)
}
