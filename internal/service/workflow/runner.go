package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
	"github.com/hugo-lorenzo-mato/tribunal/internal/events"
	"github.com/hugo-lorenzo-mato/tribunal/internal/logging"
	"github.com/hugo-lorenzo-mato/tribunal/internal/service"
)

// SnapshotMaterializer prepares the read-only input of the evidence stage.
// The returned cleanup reclaims any scratch storage and must always be called.
type SnapshotMaterializer interface {
	Materialize(ctx context.Context, target core.Target, rubric *core.Rubric) (core.TargetSnapshot, func(), error)
}

// ReportWriter persists the run's terminal artifact and returns the written paths.
type ReportWriter interface {
	WriteVerdict(ctx context.Context, v *core.VerdictReport) ([]string, error)
	WritePartial(ctx context.Context, p *core.PartialReport) ([]string, error)
}

// Outcome is the result of one run: a verdict when the run reached done, a
// partial report when it was aborted.
type Outcome struct {
	RunID     string
	State     core.RouteState
	Verdict   *core.VerdictReport
	Partial   *core.PartialReport
	Agent     *core.AgentState
	Artifacts []string
}

// Exit codes returned by ExitCode.
const (
	ExitVerdict = 0
	ExitFailure = 1
	ExitPartial = 2
)

// ExitCode maps the outcome to a process exit status.
func (o *Outcome) ExitCode() int {
	switch {
	case o == nil:
		return ExitFailure
	case o.State == core.RouteDone:
		return ExitVerdict
	case o.State == core.RouteAborted:
		return ExitPartial
	default:
		return ExitFailure
	}
}

// Runner drives one audit run through the router.
type Runner struct {
	rubric        *core.Rubric
	producers     []core.EvidenceProducer
	producerRetry *service.RetryPolicy
	deliberator   *Deliberator
	aggregator    *Aggregator
	synthesizer   *service.Synthesizer
	router        *Router
	snapshots     SnapshotMaterializer
	reports       ReportWriter
	store         core.VerdictStore
	bus           *events.EventBus
	metrics       *service.MetricsCollector
	logger        *logging.Logger
	newID         func() string
	now           func() time.Time
}

// Rubric returns the rubric the runner was built with.
func (r *Runner) Rubric() *core.Rubric {
	return r.rubric
}

// Run audits a target. The returned error is non-nil only when the run could
// not start; producer and judge failures end up in the outcome instead.
func (r *Runner) Run(ctx context.Context, target core.Target) (*Outcome, error) {
	return r.RunWithID(ctx, r.newID(), target)
}

// RunWithID is Run with a caller-assigned run ID, for callers that hand the ID
// out before the run starts.
func (r *Runner) RunWithID(ctx context.Context, runID string, target core.Target) (*Outcome, error) {
	if target.RepoURL == "" {
		return nil, core.ErrValidation(core.CodeInvalidTarget, "a repository URL or path is required")
	}
	if runID == "" {
		runID = r.newID()
	}

	ctx = logging.ContextWithRunID(ctx, runID)
	logger := r.logger.WithRun(runID)
	state := core.NewAgentState(runID, target)

	r.publish(events.NewRunStartedEvent(runID, target, r.rubric.Name))
	r.metrics.StartRun()
	logger.Info("run started", "target", target.RepoURL, "rubric", r.rubric.Name)

	snapshot, cleanup, err := r.snapshots.Materialize(ctx, target, r.rubric)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		// Producers that need a checkout will record their own failures.
		logger.Warn("target snapshot incomplete", "error", err)
		snapshot = core.TargetSnapshot{RepoURL: target.RepoURL, ReportPath: target.ReportPath, Rubric: r.rubric}
	}

	for !state.Route.Terminal() {
		if err := r.step(ctx, logger, state, snapshot); err != nil {
			r.publish(events.NewRunFailedEvent(runID, err))
			r.metrics.EndRun("failed")
			return nil, err
		}
		next, err := r.router.Next(state)
		if err != nil {
			r.publish(events.NewRunFailedEvent(runID, err))
			r.metrics.EndRun("failed")
			return nil, err
		}
		logger.Debug("route", "from", state.Route, "to", next)
		state.Route = next
	}

	outcome := &Outcome{RunID: runID, State: state.Route, Agent: state}
	if state.Route == core.RouteDone {
		outcome.Verdict = state.Verdict
		r.finishVerdict(ctx, logger, outcome)
	} else {
		outcome.Partial = r.partialReport(state)
		r.finishPartial(ctx, logger, outcome)
	}
	r.metrics.EndRun(string(state.Route))
	return outcome, nil
}

// step executes the work of the current route state and mutates the state
// only at the join point.
func (r *Runner) step(ctx context.Context, logger *logging.Logger, state *core.AgentState, snapshot core.TargetSnapshot) error {
	switch state.Route {
	case core.RouteCollectEvidence:
		r.collectEvidence(ctx, logger, state, snapshot)
	case core.RouteAggregate:
		state.Aggregation = r.aggregator.Aggregate(state, len(r.producers))
		r.publish(events.NewAggregationGatedEvent(state.RunID, state.Aggregation))
		logger.Info("evidence gate",
			"decision", state.Aggregation.Decision,
			"coverage", state.Aggregation.Coverage,
			"failed_fraction", state.Aggregation.FailedFraction,
			"gaps", len(state.Aggregation.Gaps),
		)
	case core.RouteDeliberate:
		r.deliberate(ctx, logger, state)
	case core.RouteSynthesize:
		verdict := r.synthesizer.Synthesize(state)
		if err := state.SetVerdict(verdict); err != nil {
			return err
		}
		for _, d := range verdict.Dimensions {
			r.metrics.RecordDimension(d.DimensionID, d.Scale.Fraction(d.Score), d.Flags)
			r.publish(events.NewDimensionSynthesizedEvent(state.RunID, d))
			logger.WithDimension(d.DimensionID).Info("dimension synthesized",
				"score", d.Score,
				"raw_score", d.RawScore,
				"flags", d.Flags,
			)
		}
	default:
		return fmt.Errorf("no handler for route state %s", state.Route)
	}
	return nil
}

func (r *Runner) collectEvidence(ctx context.Context, logger *logging.Logger, state *core.AgentState, snapshot core.TargetSnapshot) {
	workers := make([]Worker[core.TargetSnapshot, core.Evidence], 0, len(r.producers))
	names := make([]string, 0, len(r.producers))
	for _, p := range r.producers {
		workers = append(workers, Worker[core.TargetSnapshot, core.Evidence]{
			Name:  p.Name(),
			Run:   p.Produce,
			Retry: r.producerRetry,
		})
		names = append(names, p.Name())
	}
	r.publish(events.NewStageStartedEvent(state.RunID, StageEvidence, names))

	res := RunStage(ctx, StageEvidence, snapshot, workers, r.stageOptions(logger, state.RunID)...)
	MergeEvidence(state, res.Partitions, res.Failures)
	state.EvidenceAborted = res.Aborted()

	r.metrics.RecordEvidence(state.FindingCount())
	r.publish(events.NewStageJoinedEvent(state.RunID, StageEvidence, res.Items(), len(res.Failures), res.Aborted(), res.Duration))
}

func (r *Runner) deliberate(ctx context.Context, logger *logging.Logger, state *core.AgentState) {
	workers := r.deliberator.Workers()
	r.publish(events.NewStageStartedEvent(state.RunID, StageOpinion, r.rubric.JudgeNames()))

	res := RunStage(ctx, StageOpinion, state.EvidenceSnapshot(), workers, r.stageOptions(logger, state.RunID)...)
	MergeOpinions(state, res.Partitions, res.Failures)

	r.publish(events.NewStageJoinedEvent(state.RunID, StageOpinion, res.Items(), len(res.Failures), res.Aborted(), res.Duration))
}

func (r *Runner) stageOptions(logger *logging.Logger, runID string) []StageOption {
	return []StageOption{
		WithStageLogger(logger),
		WithStageMetrics(r.metrics),
		WithFailureHook(func(f core.WorkerFailure) {
			r.publish(events.NewWorkerFailedEvent(runID, f))
		}),
	}
}

// partialReport builds the abort artifact from the gate's gap list.
func (r *Runner) partialReport(state *core.AgentState) *core.PartialReport {
	p := &core.PartialReport{
		RunID:         state.RunID,
		Target:        state.Target,
		Gaps:          []core.Gap{},
		Failures:      state.Failures,
		EvidenceCount: state.FindingCount(),
		CreatedAt:     r.now().UTC(),
	}
	if p.Failures == nil {
		p.Failures = []core.WorkerFailure{}
	}
	if agg := state.Aggregation; agg != nil {
		p.Gaps = agg.Gaps
		p.Coverage = agg.Coverage
		p.FailedFraction = agg.FailedFraction
	}
	p.Reason = core.ErrAggregationInsufficient(p.Gaps).Message
	return p
}

func (r *Runner) finishVerdict(ctx context.Context, logger *logging.Logger, o *Outcome) {
	v := o.Verdict
	if r.reports != nil {
		paths, err := r.reports.WriteVerdict(ctx, v)
		if err != nil {
			logger.Error("writing verdict report", "error", err)
		}
		o.Artifacts = paths
	}
	r.save(ctx, logger, &core.RunRecord{
		ID:           o.RunID,
		Target:       v.Target,
		Outcome:      core.RouteDone,
		OverallScore: v.OverallScore,
		Verdict:      v,
		CreatedAt:    v.CreatedAt,
	})
	r.publish(events.NewVerdictReadyEvent(o.RunID, v))
	logger.Info("verdict ready",
		"overall_score", v.OverallScore,
		"overall_percent", v.OverallPercent,
		"remediation", len(v.Remediation),
	)
}

func (r *Runner) finishPartial(ctx context.Context, logger *logging.Logger, o *Outcome) {
	p := o.Partial
	if r.reports != nil {
		paths, err := r.reports.WritePartial(ctx, p)
		if err != nil {
			logger.Error("writing partial report", "error", err)
		}
		o.Artifacts = paths
	}
	r.save(ctx, logger, &core.RunRecord{
		ID:        o.RunID,
		Target:    p.Target,
		Outcome:   core.RouteAborted,
		Partial:   p,
		CreatedAt: p.CreatedAt,
	})
	r.publish(events.NewRunAbortedEvent(o.RunID, p))
	logger.Warn("run aborted", "reason", p.Reason, "gaps", len(p.Gaps))
}

// save records the outcome in the history store. A store failure never
// changes the outcome of the run.
func (r *Runner) save(ctx context.Context, logger *logging.Logger, rec *core.RunRecord) {
	if r.store == nil {
		return
	}
	if err := r.store.Save(ctx, rec); err != nil {
		logger.Error("saving run record", "error", err)
	}
}

func (r *Runner) publish(e events.Event) {
	if r.bus != nil {
		r.bus.Publish(e)
	}
}

func newRunID() string {
	return uuid.NewString()
}
