package workflow

import (
	"fmt"
	"sort"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
)

// Aggregator audits the merged evidence and decides whether the run may
// proceed to deliberation.
type Aggregator struct {
	rubric *core.Rubric
	scales map[string]core.ConfidenceScale
}

// NewAggregator creates an aggregator. scales maps producer names to the
// confidence range they report in; unknown producers are assumed to use [0,1].
func NewAggregator(rubric *core.Rubric, scales map[string]core.ConfidenceScale) *Aggregator {
	if scales == nil {
		scales = make(map[string]core.ConfidenceScale)
	}
	return &Aggregator{rubric: rubric, scales: scales}
}

// Aggregate runs, in order, the completeness audit, cross-dimensional
// verification, confidence normalization and the global error summary, then
// applies the gate. workers is the number of evidence workers that ran.
func (a *Aggregator) Aggregate(state *core.AgentState, workers int) *core.AggregationResult {
	result := &core.AggregationResult{
		Gaps:                 []core.Gap{},
		NormalizedConfidence: make(map[string]float64),
		WorkerCount:          workers,
	}

	result.Coverage = a.auditCompleteness(state, result)
	a.verifyDimensions(state, result)
	a.normalize(state, result)
	a.summarizeErrors(state, result)

	result.Sufficient = !state.EvidenceAborted &&
		result.Coverage >= a.rubric.Gate.CompletenessThreshold &&
		result.FailedFraction <= a.rubric.Gate.FailureTolerance

	if state.EvidenceAborted {
		result.Gaps = append(result.Gaps, core.Gap{
			Kind:    core.GapStageAborted,
			Subject: StageEvidence,
			Detail:  "every evidence worker failed",
		})
	}

	switch {
	case !result.Sufficient:
		result.Decision = core.GateAbort
	case len(result.Gaps) > 0:
		result.Decision = core.GateProceedWithWarnings
	default:
		result.Decision = core.GateProceed
	}
	return result
}

// auditCompleteness records a gap for every required category without a
// single item and returns the covered fraction. Failure records never count
// as coverage.
func (a *Aggregator) auditCompleteness(state *core.AgentState, result *core.AggregationResult) float64 {
	required := a.rubric.RequiredCategories
	if len(required) == 0 {
		return 1
	}
	covered := 0
	for _, cat := range required {
		if cat != core.CategoryError && len(state.Evidence[cat]) > 0 {
			covered++
			continue
		}
		result.Gaps = append(result.Gaps, core.Gap{
			Kind:    core.GapMissingCategory,
			Subject: string(cat),
			Detail:  "no evidence collected for required category",
		})
	}
	return float64(covered) / float64(len(required))
}

// verifyDimensions checks that every dimension has at least one category of
// supporting evidence.
func (a *Aggregator) verifyDimensions(state *core.AgentState, result *core.AggregationResult) {
	for _, dim := range a.rubric.Dimensions {
		supported := false
		for _, cat := range dim.EvidenceCategories {
			if cat != core.CategoryError && len(state.Evidence[cat]) > 0 {
				supported = true
				break
			}
		}
		if supported {
			continue
		}
		result.Gaps = append(result.Gaps, core.Gap{
			Kind:    core.GapUnsupportedDimension,
			Subject: dim.ID,
			Detail:  fmt.Sprintf("none of %v has evidence", dim.EvidenceCategories),
		})
	}
}

// normalize rescales every finding's confidence into [0,1] using its
// producer's declared scale, and records the quality summary.
func (a *Aggregator) normalize(state *core.AgentState, result *core.AggregationResult) {
	cats := make([]core.Category, 0, len(state.Evidence))
	for cat := range state.Evidence {
		cats = append(cats, cat)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })

	sum := 0.0
	for _, cat := range cats {
		if cat == core.CategoryError {
			continue
		}
		for _, e := range state.Evidence[cat] {
			scale, ok := a.scales[e.Producer]
			if !ok {
				scale = core.UnitConfidence()
			}
			v := scale.Normalize(e.Confidence)
			result.NormalizedConfidence[e.ID] = v
			sum += v
			result.TotalCount++
			if e.Found {
				result.FoundCount++
			}
		}
	}
	if result.TotalCount > 0 {
		result.MeanConfidence = sum / float64(result.TotalCount)
	}
}

// summarizeErrors counts evidence-stage failures and adds one gap per failure.
func (a *Aggregator) summarizeErrors(state *core.AgentState, result *core.AggregationResult) {
	failures := state.FailuresIn(StageEvidence)
	result.FailureCount = len(failures)
	if result.WorkerCount > 0 {
		result.FailedFraction = float64(len(failures)) / float64(result.WorkerCount)
	}
	for _, f := range failures {
		result.Gaps = append(result.Gaps, core.Gap{
			Kind:    core.GapWorkerFailure,
			Subject: f.Worker,
			Detail:  f.Reason,
		})
	}
}
