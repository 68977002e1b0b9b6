package service

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tribunal_runs_total",
		Help: "Total audit runs by terminal outcome",
	}, []string{"outcome"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tribunal_stage_duration_seconds",
		Help:    "Wall time of a stage from fan-out to join",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 180, 600},
	}, []string{"stage"})

	workerResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tribunal_worker_results_total",
		Help: "Stage worker completions by stage, worker and result",
	}, []string{"stage", "worker", "result"})

	workerAttempts = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tribunal_worker_attempts",
		Help:    "Attempts used by a stage worker before success or failure",
		Buckets: []float64{1, 2, 3, 5, 10},
	}, []string{"stage"})

	dimensionScore = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tribunal_dimension_score_fraction",
		Help:    "Final dimension score normalized to its scale",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	}, []string{"dimension"})

	flagsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tribunal_dissent_flags_total",
		Help: "Flags attached to dimension verdicts",
	}, []string{"flag"})
)

// MetricsCollector collects per-run metrics and mirrors them to the process
// wide prometheus collectors.
type MetricsCollector struct {
	run     RunMetrics
	stages  map[string]*StageMetrics
	workers map[string]*WorkerMetrics
	mu      sync.RWMutex
}

// RunMetrics holds run-level metrics.
type RunMetrics struct {
	StartTime      time.Time     `json:"start_time"`
	EndTime        time.Time     `json:"end_time"`
	TotalDuration  time.Duration `json:"total_duration"`
	Outcome        string        `json:"outcome"`
	WorkersTotal   int           `json:"workers_total"`
	WorkersFailed  int           `json:"workers_failed"`
	AttemptsTotal  int           `json:"attempts_total"`
	DimensionsRun  int           `json:"dimensions"`
	FlagsAttached  int           `json:"flags_attached"`
	EvidenceMerged int           `json:"evidence_merged"`
}

// StageMetrics holds stage-level metrics.
type StageMetrics struct {
	Stage     string        `json:"stage"`
	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration"`
	Workers   int           `json:"workers"`
	Failures  int           `json:"failures"`
	Items     int           `json:"items"`
	Aborted   bool          `json:"aborted"`
}

// WorkerMetrics holds worker-level metrics.
type WorkerMetrics struct {
	Stage    string        `json:"stage"`
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Attempts int           `json:"attempts"`
	Items    int           `json:"items"`
	Success  bool          `json:"success"`
	ErrorMsg string        `json:"error,omitempty"`
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		stages:  make(map[string]*StageMetrics),
		workers: make(map[string]*WorkerMetrics),
	}
}

// StartRun marks run start.
func (m *MetricsCollector) StartRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.run.StartTime = time.Now()
}

// EndRun marks run end with its terminal outcome.
func (m *MetricsCollector) EndRun(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.run.EndTime = time.Now()
	m.run.TotalDuration = m.run.EndTime.Sub(m.run.StartTime)
	m.run.Outcome = outcome
	runsTotal.WithLabelValues(outcome).Inc()
}

// StartStage starts tracking a stage.
func (m *MetricsCollector) StartStage(stage string, workers int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages[stage] = &StageMetrics{
		Stage:     stage,
		StartTime: time.Now(),
		Workers:   workers,
	}
	m.run.WorkersTotal += workers
}

// EndStage records a stage join.
func (m *MetricsCollector) EndStage(stage string, items, failures int, aborted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sm, ok := m.stages[stage]
	if !ok {
		return
	}
	sm.Duration = time.Since(sm.StartTime)
	sm.Items = items
	sm.Failures = failures
	sm.Aborted = aborted
	stageDuration.WithLabelValues(stage).Observe(sm.Duration.Seconds())
}

// RecordWorker records one worker completion.
func (m *MetricsCollector) RecordWorker(stage, name string, duration time.Duration, attempts, items int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wm := &WorkerMetrics{
		Stage:    stage,
		Name:     name,
		Duration: duration,
		Attempts: attempts,
		Items:    items,
		Success:  err == nil,
	}
	result := "ok"
	if err != nil {
		wm.ErrorMsg = err.Error()
		m.run.WorkersFailed++
		result = "failed"
	}
	m.workers[stage+"/"+name] = wm
	m.run.AttemptsTotal += attempts

	workerResults.WithLabelValues(stage, name, result).Inc()
	workerAttempts.WithLabelValues(stage).Observe(float64(attempts))
}

// RecordEvidence records the merged evidence count.
func (m *MetricsCollector) RecordEvidence(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.run.EvidenceMerged = n
}

// RecordDimension records a synthesized dimension.
func (m *MetricsCollector) RecordDimension(id string, fraction float64, flags []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.run.DimensionsRun++
	m.run.FlagsAttached += len(flags)
	dimensionScore.WithLabelValues(id).Observe(fraction)
	for _, f := range flags {
		flagsTotal.WithLabelValues(f).Inc()
	}
}

// GetRunMetrics returns run-level metrics.
func (m *MetricsCollector) GetRunMetrics() RunMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.run
}

// GetStageMetrics returns a copy of the stage metrics, ordered by start time.
func (m *MetricsCollector) GetStageMetrics() []StageMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]StageMetrics, 0, len(m.stages))
	for _, s := range m.stages {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// GetWorkerMetrics returns a copy of the worker metrics keyed by "stage/worker".
func (m *MetricsCollector) GetWorkerMetrics() map[string]WorkerMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]WorkerMetrics, len(m.workers))
	for k, v := range m.workers {
		out[k] = *v
	}
	return out
}
