package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
)

// MockCall records a call to a mock.
type MockCall struct {
	Method    string
	Args      interface{}
	Timestamp time.Time
}

type callLog struct {
	calls []MockCall
	mu    sync.Mutex
}

func (l *callLog) record(method string, args interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, MockCall{
		Method:    method,
		Args:      args,
		Timestamp: time.Now(),
	})
}

// Calls returns recorded calls.
func (l *callLog) Calls() []MockCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]MockCall{}, l.calls...)
}

// CallCount returns number of calls to a method.
func (l *callLog) CallCount(method string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	count := 0
	for _, c := range l.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// Reset clears call history.
func (l *callLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = nil
}

// MockProducer implements core.EvidenceProducer for testing.
type MockProducer struct {
	callLog
	name        string
	scale       core.ConfidenceScale
	produceFunc func(context.Context, core.TargetSnapshot) ([]core.Evidence, error)
}

// NewMockProducer creates a producer that returns no evidence.
func NewMockProducer(name string) *MockProducer {
	return &MockProducer{
		name:  name,
		scale: core.UnitConfidence(),
	}
}

// Name returns the mock name.
func (m *MockProducer) Name() string {
	return m.name
}

// ConfidenceScale returns the configured scale.
func (m *MockProducer) ConfidenceScale() core.ConfidenceScale {
	return m.scale
}

// Produce mocks evidence collection.
func (m *MockProducer) Produce(ctx context.Context, target core.TargetSnapshot) ([]core.Evidence, error) {
	m.record("Produce", target)
	if m.produceFunc != nil {
		return m.produceFunc(ctx, target)
	}
	return nil, nil
}

// WithScale sets the declared confidence scale.
func (m *MockProducer) WithScale(scale core.ConfidenceScale) *MockProducer {
	m.scale = scale
	return m
}

// WithProduceFunc sets a custom produce function.
func (m *MockProducer) WithProduceFunc(fn func(context.Context, core.TargetSnapshot) ([]core.Evidence, error)) *MockProducer {
	m.produceFunc = fn
	return m
}

// WithEvidence configures a fixed evidence batch. Items without a producer
// are stamped with the mock's name.
func (m *MockProducer) WithEvidence(items ...core.Evidence) *MockProducer {
	batch := make([]core.Evidence, len(items))
	for i, e := range items {
		if e.Producer == "" {
			e.Producer = m.name
		}
		batch[i] = e
	}
	m.produceFunc = func(context.Context, core.TargetSnapshot) ([]core.Evidence, error) {
		out := make([]core.Evidence, len(batch))
		copy(out, batch)
		return out, nil
	}
	return m
}

// WithDelay wraps the current produce function with a delay, honoring ctx.
func (m *MockProducer) WithDelay(d time.Duration) *MockProducer {
	next := m.produceFunc
	m.produceFunc = func(ctx context.Context, target core.TargetSnapshot) ([]core.Evidence, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d):
		}
		if next == nil {
			return nil, nil
		}
		return next(ctx, target)
	}
	return m
}

// WithError configures the mock to fail.
func (m *MockProducer) WithError(err error) *MockProducer {
	m.produceFunc = func(context.Context, core.TargetSnapshot) ([]core.Evidence, error) {
		return nil, err
	}
	return m
}

// WithPanic configures the mock to panic.
func (m *MockProducer) WithPanic(v interface{}) *MockProducer {
	m.produceFunc = func(context.Context, core.TargetSnapshot) ([]core.Evidence, error) {
		panic(v)
	}
	return m
}

// MockProvider implements core.OpinionProvider for testing.
type MockProvider struct {
	callLog
	name           string
	deliberateFunc func(context.Context, core.EvidenceSnapshot, core.Persona) ([]core.Opinion, error)
}

// NewMockProvider creates a provider that returns no opinions.
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{name: name}
}

// Name returns the mock name.
func (m *MockProvider) Name() string {
	return m.name
}

// Deliberate mocks opinion production.
func (m *MockProvider) Deliberate(ctx context.Context, evidence core.EvidenceSnapshot, persona core.Persona) ([]core.Opinion, error) {
	m.record("Deliberate", persona.Judge)
	if m.deliberateFunc != nil {
		return m.deliberateFunc(ctx, evidence, persona)
	}
	return nil, nil
}

// WithDeliberateFunc sets a custom deliberate function.
func (m *MockProvider) WithDeliberateFunc(fn func(context.Context, core.EvidenceSnapshot, core.Persona) ([]core.Opinion, error)) *MockProvider {
	m.deliberateFunc = fn
	return m
}

// WithScores configures fixed scores per judge and dimension. Each opinion
// cites the given evidence IDs.
func (m *MockProvider) WithScores(scores map[string]map[string]int, cites ...string) *MockProvider {
	m.deliberateFunc = func(_ context.Context, _ core.EvidenceSnapshot, persona core.Persona) ([]core.Opinion, error) {
		var out []core.Opinion
		for _, d := range persona.Dimensions {
			score, ok := scores[persona.Judge][d.ID]
			if !ok {
				continue
			}
			out = append(out, core.Opinion{
				Judge:            persona.Judge,
				DimensionID:      d.ID,
				Score:            score,
				Rationale:        "mock",
				CitedEvidenceIDs: append([]string(nil), cites...),
			})
		}
		return out, nil
	}
	return m
}

// WithError configures the mock to fail.
func (m *MockProvider) WithError(err error) *MockProvider {
	m.deliberateFunc = func(context.Context, core.EvidenceSnapshot, core.Persona) ([]core.Opinion, error) {
		return nil, err
	}
	return m
}

// MockVerdictStore implements core.VerdictStore in memory.
type MockVerdictStore struct {
	callLog
	records map[string]*core.RunRecord
	saveErr error
	mu      sync.Mutex
}

// NewMockVerdictStore creates an empty store.
func NewMockVerdictStore() *MockVerdictStore {
	return &MockVerdictStore{records: make(map[string]*core.RunRecord)}
}

// WithSaveError makes Save fail.
func (m *MockVerdictStore) WithSaveError(err error) *MockVerdictStore {
	m.saveErr = err
	return m
}

// Save stores a copy of the record.
func (m *MockVerdictStore) Save(_ context.Context, rec *core.RunRecord) error {
	m.record("Save", rec.ID)
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

// Get returns a stored record.
func (m *MockVerdictStore) Get(_ context.Context, id string) (*core.RunRecord, error) {
	m.record("Get", id)
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, core.ErrNotFound("run", id)
	}
	cp := *rec
	return &cp, nil
}

// List returns stored records, newest first.
func (m *MockVerdictStore) List(_ context.Context, limit int) ([]*core.RunRecord, error) {
	m.record("List", limit)
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*core.RunRecord, 0, len(m.records))
	for _, rec := range m.records {
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListByTarget returns the stored records of one repository, newest first.
func (m *MockVerdictStore) ListByTarget(ctx context.Context, repoURL string, limit int) ([]*core.RunRecord, error) {
	all, err := m.List(ctx, 0)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, rec := range all {
		if rec.Target.RepoURL == repoURL {
			out = append(out, rec)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Delete removes a record.
func (m *MockVerdictStore) Delete(_ context.Context, id string) error {
	m.record("Delete", id)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

// Close is a no-op.
func (m *MockVerdictStore) Close() error {
	return nil
}
