package workflow

import (
	"context"
	"time"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
	"github.com/hugo-lorenzo-mato/tribunal/internal/events"
	"github.com/hugo-lorenzo-mato/tribunal/internal/logging"
	"github.com/hugo-lorenzo-mato/tribunal/internal/service"
)

// RunnerBuilder provides a fluent API for creating workflow Runners.
type RunnerBuilder struct {
	rubric        *core.Rubric
	producers     []core.EvidenceProducer
	providers     map[string]core.OpinionProvider
	producerRetry *service.RetryPolicy
	judgeRetry    *service.RetryPolicy
	judgeLimiter  *service.RateLimiter
	judgeLimits   *service.RateLimiterRegistry
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

// NewRunnerBuilder creates a new RunnerBuilder.
func NewRunnerBuilder() *RunnerBuilder {
	return &RunnerBuilder{providers: make(map[string]core.OpinionProvider)}
}

// WithRubric sets the resolved rubric.
func (b *RunnerBuilder) WithRubric(r *core.Rubric) *RunnerBuilder {
	b.rubric = r
	return b
}

// WithProducers appends evidence producers.
func (b *RunnerBuilder) WithProducers(p ...core.EvidenceProducer) *RunnerBuilder {
	b.producers = append(b.producers, p...)
	return b
}

// WithProvider registers an opinion provider under a name judges can refer to.
func (b *RunnerBuilder) WithProvider(name string, p core.OpinionProvider) *RunnerBuilder {
	b.providers[name] = p
	return b
}

// WithProducerRetry sets the timeout and retry bound of evidence workers.
func (b *RunnerBuilder) WithProducerRetry(p *service.RetryPolicy) *RunnerBuilder {
	b.producerRetry = p
	return b
}

// WithJudgeRetry sets the timeout and retry bound of judge workers.
func (b *RunnerBuilder) WithJudgeRetry(p *service.RetryPolicy) *RunnerBuilder {
	b.judgeRetry = p
	return b
}

// WithJudgeLimiters paces judge calls with one limiter per provider backend.
func (b *RunnerBuilder) WithJudgeLimiters(reg *service.RateLimiterRegistry) *RunnerBuilder {
	b.judgeLimits = reg
	return b
}

// WithJudgeLimiter paces judge calls.
func (b *RunnerBuilder) WithJudgeLimiter(l *service.RateLimiter) *RunnerBuilder {
	b.judgeLimiter = l
	return b
}

// WithRouter replaces the default transition table.
func (b *RunnerBuilder) WithRouter(r *Router) *RunnerBuilder {
	b.router = r
	return b
}

// WithSnapshots sets how targets are materialized.
func (b *RunnerBuilder) WithSnapshots(s SnapshotMaterializer) *RunnerBuilder {
	b.snapshots = s
	return b
}

// WithReports sets the report writer.
func (b *RunnerBuilder) WithReports(w ReportWriter) *RunnerBuilder {
	b.reports = w
	return b
}

// WithStore sets the verdict history store.
func (b *RunnerBuilder) WithStore(s core.VerdictStore) *RunnerBuilder {
	b.store = s
	return b
}

// WithEventBus sets the bus run progress is published on.
func (b *RunnerBuilder) WithEventBus(bus *events.EventBus) *RunnerBuilder {
	b.bus = bus
	return b
}

// WithMetrics sets the metrics collector.
func (b *RunnerBuilder) WithMetrics(m *service.MetricsCollector) *RunnerBuilder {
	b.metrics = m
	return b
}

// WithLogger sets the logger.
func (b *RunnerBuilder) WithLogger(l *logging.Logger) *RunnerBuilder {
	b.logger = l
	return b
}

// WithIDGenerator overrides run ID generation.
func (b *RunnerBuilder) WithIDGenerator(fn func() string) *RunnerBuilder {
	b.newID = fn
	return b
}

// WithClock overrides the clock used for report timestamps.
func (b *RunnerBuilder) WithClock(fn func() time.Time) *RunnerBuilder {
	b.now = fn
	return b
}

// Build validates the wiring and creates the Runner. Every problem found here
// is a configuration error: nothing has run yet.
func (b *RunnerBuilder) Build() (*Runner, error) {
	if b.rubric == nil {
		return nil, core.ErrConfiguration("rubric", "no rubric configured")
	}
	if len(b.producers) == 0 {
		return nil, core.ErrConfiguration("producers", "at least one evidence producer is required")
	}
	seen := make(map[string]bool, len(b.producers))
	scales := make(map[string]core.ConfidenceScale, len(b.producers))
	for _, p := range b.producers {
		if seen[p.Name()] {
			return nil, core.ErrConfiguration("producers", "duplicate producer "+p.Name())
		}
		seen[p.Name()] = true
		scales[p.Name()] = p.ConfidenceScale()
	}

	var dopts []DeliberatorOption
	if b.judgeRetry != nil {
		dopts = append(dopts, WithJudgeRetry(b.judgeRetry))
	}
	if b.judgeLimits != nil {
		dopts = append(dopts, WithJudgeLimiters(b.judgeLimits))
	}
	if b.judgeLimiter != nil {
		dopts = append(dopts, WithJudgeLimiter(b.judgeLimiter))
	}
	deliberator, err := NewDeliberator(b.rubric, b.providers, dopts...)
	if err != nil {
		return nil, err
	}

	r := &Runner{
		rubric:        b.rubric,
		producers:     b.producers,
		producerRetry: b.producerRetry,
		deliberator:   deliberator,
		aggregator:    NewAggregator(b.rubric, scales),
		router:        b.router,
		snapshots:     b.snapshots,
		reports:       b.reports,
		store:         b.store,
		bus:           b.bus,
		metrics:       b.metrics,
		logger:        b.logger,
		newID:         b.newID,
		now:           b.now,
	}
	if r.producerRetry == nil {
		r.producerRetry = service.DefaultRetryPolicy()
	}
	if r.router == nil {
		r.router = NewRouter()
	}
	if r.snapshots == nil {
		r.snapshots = PassthroughSnapshots{}
	}
	if r.metrics == nil {
		r.metrics = service.NewMetricsCollector()
	}
	if r.logger == nil {
		r.logger = logging.NewNop()
	}
	if r.newID == nil {
		r.newID = newRunID
	}
	if r.now == nil {
		r.now = time.Now
	}
	r.synthesizer = service.NewSynthesizer(b.rubric, service.WithClock(r.now))
	return r, nil
}

// PassthroughSnapshots uses the target's identifier as the local path. It
// suits targets that are already checked out on disk.
type PassthroughSnapshots struct{}

// Materialize implements SnapshotMaterializer.
func (PassthroughSnapshots) Materialize(_ context.Context, target core.Target, rubric *core.Rubric) (core.TargetSnapshot, func(), error) {
	return core.TargetSnapshot{
		RepoURL:    target.RepoURL,
		LocalPath:  target.RepoURL,
		ReportPath: target.ReportPath,
		Rubric:     rubric,
	}, func() {}, nil
}
