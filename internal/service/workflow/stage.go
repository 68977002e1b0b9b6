// Package workflow drives an audit run: it fans evidence producers and judges
// out through the stage controller, folds their partitions into the shared
// AgentState at each join point, gates the run on the evidence aggregator and
// walks the router until a verdict or a partial report is produced.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
	"github.com/hugo-lorenzo-mato/tribunal/internal/logging"
	"github.com/hugo-lorenzo-mato/tribunal/internal/service"
)

// Stage names.
const (
	StageEvidence = "evidence"
	StageOpinion  = "opinion"
)

// StageStatus is the state a stage ends in.
type StageStatus string

const (
	// StageJoined means every worker reported, successfully or with a recorded failure.
	StageJoined StageStatus = "joined"
	// StageAborted means every worker of the stage failed.
	StageAborted StageStatus = "aborted"
)

// Worker is one independent callable of a stage. It receives the same
// read-only snapshot as its siblings and returns its own partition.
type Worker[S, T any] struct {
	Name string
	Run  func(ctx context.Context, snapshot S) ([]T, error)
	// Retry bounds the call. Nil uses the default policy.
	Retry *service.RetryPolicy
}

// Partition is the private output of one successful worker.
type Partition[T any] struct {
	Worker   string
	Items    []T
	Attempts int
	Duration time.Duration
}

// StageResult is what the controller hands to the reducers at the join point.
type StageResult[T any] struct {
	Stage      string
	Status     StageStatus
	Workers    int
	Partitions []Partition[T]
	Failures   []core.WorkerFailure
	Duration   time.Duration
}

// Items returns the number of items across all partitions.
func (r StageResult[T]) Items() int {
	n := 0
	for _, p := range r.Partitions {
		n += len(p.Items)
	}
	return n
}

// Aborted reports whether every worker failed.
func (r StageResult[T]) Aborted() bool {
	return r.Status == StageAborted
}

type stageConfig struct {
	logger  *logging.Logger
	metrics *service.MetricsCollector
	onFail  func(core.WorkerFailure)
}

// StageOption configures a stage run.
type StageOption func(*stageConfig)

// WithStageLogger sets the logger used for worker outcomes.
func WithStageLogger(l *logging.Logger) StageOption {
	return func(c *stageConfig) {
		c.logger = l
	}
}

// WithStageMetrics records stage and worker metrics.
func WithStageMetrics(m *service.MetricsCollector) StageOption {
	return func(c *stageConfig) {
		c.metrics = m
	}
}

// WithFailureHook is called from the worker goroutine when a worker fails.
// The hook must be safe for concurrent use.
func WithFailureHook(fn func(core.WorkerFailure)) StageOption {
	return func(c *stageConfig) {
		c.onFail = fn
	}
}

// slot is the private partition a worker writes. Only its own goroutine
// touches it until the group is joined.
type slot[T any] struct {
	partition Partition[T]
	failure   *core.WorkerFailure
}

// RunStage invokes every worker concurrently against the same snapshot and
// waits for all of them. A failing worker never cancels its siblings: its
// failure is recorded and the stage still joins. The stage aborts only when
// every worker failed.
func RunStage[S, T any](ctx context.Context, stage string, snapshot S, workers []Worker[S, T], opts ...StageOption) StageResult[T] {
	cfg := stageConfig{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.logger.WithStage(stage)

	start := time.Now()
	if cfg.metrics != nil {
		cfg.metrics.StartStage(stage, len(workers))
	}

	slots := make([]slot[T], len(workers))
	g, gctx := errgroup.WithContext(ctx)
	for i, w := range workers {
		g.Go(func() error {
			slots[i] = runWorker(gctx, stage, snapshot, w)
			if f := slots[i].failure; f != nil {
				logger.WithWorker(w.Name).Warn("worker failed",
					"attempts", f.Attempts,
					"reason", f.Reason,
				)
				if cfg.onFail != nil {
					cfg.onFail(*f)
				}
			}
			if cfg.metrics != nil {
				var err error
				if f := slots[i].failure; f != nil {
					err = errors.New(f.Reason)
				}
				cfg.metrics.RecordWorker(stage, w.Name, slots[i].partition.Duration,
					slots[i].partition.Attempts, len(slots[i].partition.Items), err)
			}
			// Workers never fail the group; a non-nil error would cancel siblings.
			return nil
		})
	}
	_ = g.Wait()

	result := StageResult[T]{
		Stage:   stage,
		Status:  StageJoined,
		Workers: len(workers),
	}
	for _, s := range slots {
		if s.failure != nil {
			result.Failures = append(result.Failures, *s.failure)
			continue
		}
		result.Partitions = append(result.Partitions, s.partition)
	}
	if len(workers) > 0 && len(result.Failures) == len(workers) {
		result.Status = StageAborted
	}
	result.Duration = time.Since(start)

	if cfg.metrics != nil {
		cfg.metrics.EndStage(stage, result.Items(), len(result.Failures), result.Aborted())
	}
	logger.Info("stage joined",
		"status", result.Status,
		"workers", len(workers),
		"items", result.Items(),
		"failures", len(result.Failures),
		"duration", result.Duration,
	)
	return result
}

// runWorker calls one worker through the bounded retry combinator. Panics are
// recovered and recorded like any other failure, without retry.
func runWorker[S, T any](ctx context.Context, stage string, snapshot S, w Worker[S, T]) slot[T] {
	start := time.Now()
	res := service.Attempt(ctx, w.Retry, func(ctx context.Context) (items []T, err error) {
		defer func() {
			if r := recover(); r != nil {
				panicErr := core.ErrExecution(core.CodeWorkerPanic, fmt.Sprintf("worker panicked: %v", r))
				panicErr.Retryable = false
				items, err = nil, panicErr
			}
		}()
		items, err = w.Run(ctx, snapshot)
		if err != nil {
			return nil, core.ErrProducer(w.Name, err)
		}
		return items, nil
	})

	s := slot[T]{
		partition: Partition[T]{
			Worker:   w.Name,
			Attempts: res.Attempts,
			Duration: time.Since(start),
		},
	}
	if res.Err != nil {
		s.failure = &core.WorkerFailure{
			Stage:    stage,
			Worker:   w.Name,
			Reason:   failureReason(res.Err),
			Attempts: res.Attempts,
		}
		return s
	}
	s.partition.Items = res.Value
	return s
}

// failureReason strips the retry and producer wrappers so the recorded reason
// names the underlying problem.
func failureReason(err error) string {
	var exhausted *service.RetryExhaustedError
	if errors.As(err, &exhausted) && exhausted.LastErr != nil {
		err = exhausted.LastErr
	}
	var domErr *core.DomainError
	if errors.As(err, &domErr) && domErr.Code == core.CodeProducerFailed && domErr.Cause != nil {
		return domErr.Cause.Error()
	}
	return err.Error()
}
