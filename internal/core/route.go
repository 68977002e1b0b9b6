package core

import "fmt"

// RouteState is a state of the run router.
type RouteState string

const (
	// RouteCollectEvidence runs the evidence producers in parallel.
	RouteCollectEvidence RouteState = "collect_evidence"

	// RouteAggregate audits merged evidence and decides whether to continue.
	RouteAggregate RouteState = "aggregate"

	// RouteDeliberate runs the opinion producers (judges) in parallel.
	RouteDeliberate RouteState = "deliberate"

	// RouteSynthesize turns opinions and evidence into the verdict.
	RouteSynthesize RouteState = "synthesize"

	// RouteAborted is terminal; the run emits a partial report.
	RouteAborted RouteState = "aborted"

	// RouteDone is terminal; the run emitted a verdict.
	RouteDone RouteState = "done"
)

// AllRouteStates returns every state in nominal execution order.
func AllRouteStates() []RouteState {
	return []RouteState{
		RouteCollectEvidence, RouteAggregate, RouteDeliberate,
		RouteSynthesize, RouteAborted, RouteDone,
	}
}

// ValidRouteState checks if a state string is valid.
func ValidRouteState(s RouteState) bool {
	for _, v := range AllRouteStates() {
		if v == s {
			return true
		}
	}
	return false
}

// ParseRouteState converts a string to a RouteState with validation.
func ParseRouteState(s string) (RouteState, error) {
	r := RouteState(s)
	if !ValidRouteState(r) {
		return "", fmt.Errorf("invalid route state: %s", s)
	}
	return r, nil
}

// Terminal reports whether no transition leaves this state.
func (r RouteState) Terminal() bool {
	return r == RouteAborted || r == RouteDone
}

// String returns the string representation of the state.
func (r RouteState) String() string {
	return string(r)
}

// Description returns a human-readable description of the state.
func (r RouteState) Description() string {
	switch r {
	case RouteCollectEvidence:
		return "Collect evidence from independent producers"
	case RouteAggregate:
		return "Audit evidence completeness and gate the run"
	case RouteDeliberate:
		return "Collect judge opinions on every dimension"
	case RouteSynthesize:
		return "Synthesize the final verdict"
	case RouteAborted:
		return "Run aborted with a partial report"
	case RouteDone:
		return "Verdict produced"
	default:
		return "Unknown state"
	}
}
