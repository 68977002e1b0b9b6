package events

import (
	"time"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
)

// Event type constants for run events.
const (
	TypeRunStarted           = "run_started"
	TypeStageStarted         = "stage_started"
	TypeStageJoined          = "stage_joined"
	TypeWorkerFailed         = "worker_failed"
	TypeAggregationGated     = "aggregation_gated"
	TypeDimensionSynthesized = "dimension_synthesized"
	TypeVerdictReady         = "verdict_ready"
	TypeRunAborted           = "run_aborted"
	TypeRunFailed            = "run_failed"
)

// RunStartedEvent is emitted when a run begins.
type RunStartedEvent struct {
	BaseEvent
	Target core.Target `json:"target"`
	Rubric string      `json:"rubric"`
}

// NewRunStartedEvent creates a new run started event.
func NewRunStartedEvent(runID string, target core.Target, rubric string) RunStartedEvent {
	return RunStartedEvent{
		BaseEvent: NewBaseEvent(TypeRunStarted, runID),
		Target:    target,
		Rubric:    rubric,
	}
}

// StageStartedEvent is emitted when a stage fans out to its workers.
type StageStartedEvent struct {
	BaseEvent
	Stage   string   `json:"stage"`
	Workers []string `json:"workers"`
}

// NewStageStartedEvent creates a new stage started event.
func NewStageStartedEvent(runID, stage string, workers []string) StageStartedEvent {
	return StageStartedEvent{
		BaseEvent: NewBaseEvent(TypeStageStarted, runID),
		Stage:     stage,
		Workers:   workers,
	}
}

// StageJoinedEvent is emitted after a stage's results are merged.
type StageJoinedEvent struct {
	BaseEvent
	Stage    string        `json:"stage"`
	Items    int           `json:"items"`
	Failures int           `json:"failures"`
	Aborted  bool          `json:"aborted"`
	Duration time.Duration `json:"duration"`
}

// NewStageJoinedEvent creates a new stage joined event.
func NewStageJoinedEvent(runID, stage string, items, failures int, aborted bool, duration time.Duration) StageJoinedEvent {
	return StageJoinedEvent{
		BaseEvent: NewBaseEvent(TypeStageJoined, runID),
		Stage:     stage,
		Items:     items,
		Failures:  failures,
		Aborted:   aborted,
		Duration:  duration,
	}
}

// WorkerFailedEvent is emitted when a worker exhausts its retry budget.
type WorkerFailedEvent struct {
	BaseEvent
	Failure core.WorkerFailure `json:"failure"`
}

// NewWorkerFailedEvent creates a new worker failed event.
func NewWorkerFailedEvent(runID string, failure core.WorkerFailure) WorkerFailedEvent {
	return WorkerFailedEvent{
		BaseEvent: NewBaseEvent(TypeWorkerFailed, runID),
		Failure:   failure,
	}
}

// AggregationGatedEvent carries the evidence gate decision.
type AggregationGatedEvent struct {
	BaseEvent
	Decision core.GateDecision `json:"decision"`
	Coverage float64           `json:"coverage"`
	Gaps     []core.Gap        `json:"gaps"`
}

// NewAggregationGatedEvent creates a new aggregation gated event.
func NewAggregationGatedEvent(runID string, result *core.AggregationResult) AggregationGatedEvent {
	return AggregationGatedEvent{
		BaseEvent: NewBaseEvent(TypeAggregationGated, runID),
		Decision:  result.Decision,
		Coverage:  result.Coverage,
		Gaps:      result.Gaps,
	}
}

// DimensionSynthesizedEvent is emitted once per synthesized dimension.
type DimensionSynthesizedEvent struct {
	BaseEvent
	DimensionID string   `json:"dimension_id"`
	Score       float64  `json:"score"`
	RawScore    float64  `json:"raw_score"`
	Flags       []string `json:"flags,omitempty"`
}

// NewDimensionSynthesizedEvent creates a new dimension synthesized event.
func NewDimensionSynthesizedEvent(runID string, d core.DimensionVerdict) DimensionSynthesizedEvent {
	return DimensionSynthesizedEvent{
		BaseEvent:   NewBaseEvent(TypeDimensionSynthesized, runID),
		DimensionID: d.DimensionID,
		Score:       d.Score,
		RawScore:    d.RawScore,
		Flags:       d.Flags,
	}
}

// VerdictReadyEvent is emitted when a run ends with a full verdict.
type VerdictReadyEvent struct {
	BaseEvent
	OverallScore   float64 `json:"overall_score"`
	OverallPercent float64 `json:"overall_percent"`
}

// NewVerdictReadyEvent creates a new verdict ready event.
func NewVerdictReadyEvent(runID string, v *core.VerdictReport) VerdictReadyEvent {
	return VerdictReadyEvent{
		BaseEvent:      NewBaseEvent(TypeVerdictReady, runID),
		OverallScore:   v.OverallScore,
		OverallPercent: v.OverallPercent,
	}
}

// RunAbortedEvent is emitted when the evidence gate aborts a run.
type RunAbortedEvent struct {
	BaseEvent
	Reason string     `json:"reason"`
	Gaps   []core.Gap `json:"gaps"`
}

// NewRunAbortedEvent creates a new run aborted event.
func NewRunAbortedEvent(runID string, p *core.PartialReport) RunAbortedEvent {
	return RunAbortedEvent{
		BaseEvent: NewBaseEvent(TypeRunAborted, runID),
		Reason:    p.Reason,
		Gaps:      p.Gaps,
	}
}

// RunFailedEvent is emitted when a run cannot start or terminate normally.
type RunFailedEvent struct {
	BaseEvent
	Error string `json:"error"`
}

// NewRunFailedEvent creates a new run failed event.
func NewRunFailedEvent(runID string, err error) RunFailedEvent {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return RunFailedEvent{
		BaseEvent: NewBaseEvent(TypeRunFailed, runID),
		Error:     msg,
	}
}
