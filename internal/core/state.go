package core

import "fmt"

// Target identifies what is being audited.
type Target struct {
	RepoURL    string `json:"repo_url"`
	ReportPath string `json:"report_path,omitempty"`
}

// GateDecision is the aggregator's verdict on the evidence stage.
type GateDecision string

const (
	GateProceed             GateDecision = "proceed"
	GateProceedWithWarnings GateDecision = "proceed_with_warnings"
	GateAbort               GateDecision = "abort"
)

// AggregationResult is the output of the evidence aggregator.
type AggregationResult struct {
	Sufficient           bool               `json:"sufficient"`
	Decision             GateDecision       `json:"decision"`
	Coverage             float64            `json:"coverage"`
	FailedFraction       float64            `json:"failed_fraction"`
	FailureCount         int                `json:"failure_count"`
	WorkerCount          int                `json:"worker_count"`
	Gaps                 []Gap              `json:"gaps"`
	NormalizedConfidence map[string]float64 `json:"normalized_confidence"`
	MeanConfidence       float64            `json:"mean_confidence"`
	FoundCount           int                `json:"found_count"`
	TotalCount           int                `json:"total_count"`
}

// AgentState is the single record threaded through a run. It is owned by the
// run driver and mutated only at stage join points.
type AgentState struct {
	RunID       string                  `json:"run_id"`
	Target      Target                  `json:"target"`
	Route       RouteState              `json:"route"`
	Evidence    map[Category][]Evidence `json:"evidence"`
	Opinions    map[string][]Opinion    `json:"opinions"`
	Failures    []WorkerFailure         `json:"failures"`
	Aggregation *AggregationResult      `json:"aggregation,omitempty"`
	Verdict     *VerdictReport          `json:"verdict,omitempty"`

	// EvidenceAborted is set when every evidence worker failed.
	EvidenceAborted bool `json:"evidence_aborted"`
}

// NewAgentState creates the empty state for a run.
func NewAgentState(runID string, target Target) *AgentState {
	return &AgentState{
		RunID:    runID,
		Target:   target,
		Route:    RouteCollectEvidence,
		Evidence: make(map[Category][]Evidence),
		Opinions: make(map[string][]Opinion),
	}
}

// EvidenceSnapshot returns a read-only view of the merged evidence.
func (s *AgentState) EvidenceSnapshot() EvidenceSnapshot {
	return NewEvidenceSnapshot(s.Evidence)
}

// FindingCount returns the number of evidence items that are not error records.
func (s *AgentState) FindingCount() int {
	n := 0
	for cat, items := range s.Evidence {
		if cat == CategoryError {
			continue
		}
		n += len(items)
	}
	return n
}

// FailuresIn returns the recorded failures of one stage.
func (s *AgentState) FailuresIn(stage string) []WorkerFailure {
	var out []WorkerFailure
	for _, f := range s.Failures {
		if f.Stage == stage {
			out = append(out, f)
		}
	}
	return out
}

// SetVerdict stores the terminal verdict. It may be called once.
func (s *AgentState) SetVerdict(v *VerdictReport) error {
	if s.Verdict != nil {
		return fmt.Errorf("verdict already set for run %s", s.RunID)
	}
	s.Verdict = v
	return nil
}
