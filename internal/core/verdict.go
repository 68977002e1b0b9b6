package core

import (
	"fmt"
	"time"
)

// Flags attached by the synthesis engine itself. Rule flags use their configured label.
const (
	FlagIncompleteDeliberation = "incomplete deliberation"
	FlagNoDeliberation         = "no deliberation"
	FlagHighVariance           = "high variance"
	FlagRuleOfReference        = "rule of reference"
)

// RuleOfReference names the penalty event recorded for discarded opinions.
const RuleOfReference = "rule_of_reference"

// PenaltyEvent records an opinion discarded during synthesis.
type PenaltyEvent struct {
	Rule        string `json:"rule"`
	Judge       string `json:"judge"`
	DimensionID string `json:"dimension_id"`
	Reason      string `json:"reason"`
}

// DimensionVerdict is the synthesized result for one dimension.
type DimensionVerdict struct {
	DimensionID      string         `json:"dimension_id"`
	Name             string         `json:"name"`
	Score            float64        `json:"score"`
	RawScore         float64        `json:"raw_score"`
	Scale            Scale          `json:"scale"`
	RationaleSummary string         `json:"rationale_summary"`
	Flags            []string       `json:"dissent_flags"`
	RulesFired       []string       `json:"rules_fired,omitempty"`
	Events           []PenaltyEvent `json:"events,omitempty"`
	AbsentJudges     []string       `json:"absent_judges,omitempty"`
	Opinions         []Opinion      `json:"opinions"`
}

// HasFlag reports whether the dimension carries the given flag.
func (d DimensionVerdict) HasFlag(flag string) bool {
	for _, f := range d.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// VerdictReport is the run's terminal artifact. It is produced once by the
// synthesis engine and treated as immutable afterwards.
type VerdictReport struct {
	RunID          string             `json:"run_id"`
	Target         Target             `json:"target"`
	Rubric         string             `json:"rubric"`
	Dimensions     []DimensionVerdict `json:"per_dimension"`
	OverallScore   float64            `json:"overall_score"`
	OverallPercent float64            `json:"overall_percent"`
	Remediation    []string           `json:"remediation"`
	Discarded      []PenaltyEvent     `json:"discarded,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

// Dimension returns the verdict for one dimension.
func (r *VerdictReport) Dimension(id string) (DimensionVerdict, bool) {
	for _, d := range r.Dimensions {
		if d.DimensionID == id {
			return d, true
		}
	}
	return DimensionVerdict{}, false
}

// PerDimension returns the verdicts keyed by dimension ID.
func (r *VerdictReport) PerDimension() map[string]DimensionVerdict {
	out := make(map[string]DimensionVerdict, len(r.Dimensions))
	for _, d := range r.Dimensions {
		out[d.DimensionID] = d
	}
	return out
}

// GapKind classifies an aggregator gap.
type GapKind string

const (
	GapMissingCategory      GapKind = "missing_category"
	GapUnsupportedDimension GapKind = "unsupported_dimension"
	GapWorkerFailure        GapKind = "worker_failure"
	GapStageAborted         GapKind = "stage_aborted"
)

// Gap is one entry in the aggregator's structured gap list.
type Gap struct {
	Kind    GapKind `json:"kind"`
	Subject string  `json:"subject"`
	Detail  string  `json:"detail"`
}

// String formats the gap.
func (g Gap) String() string {
	return fmt.Sprintf("%s %s: %s", g.Kind, g.Subject, g.Detail)
}

// PartialReport is emitted instead of a VerdictReport when the run aborts.
type PartialReport struct {
	RunID          string          `json:"run_id"`
	Target         Target          `json:"target"`
	Reason         string          `json:"reason"`
	Gaps           []Gap           `json:"gaps"`
	Failures       []WorkerFailure `json:"failures"`
	EvidenceCount  int             `json:"evidence_count"`
	Coverage       float64         `json:"coverage"`
	FailedFraction float64         `json:"failed_fraction"`
	CreatedAt      time.Time       `json:"created_at"`
}
