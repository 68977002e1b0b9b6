package api

import (
	"sort"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
)

// Audit statuses beyond the terminal route states.
const (
	StatusQueued  = "queued"
	StatusRunning = "running"
	StatusFailed  = "failed"
)

// Audit is the API view of one audit, live or historical.
type Audit struct {
	ID           string              `json:"id"`
	Status       string              `json:"status"`
	Target       core.Target         `json:"target"`
	Rubric       string              `json:"rubric,omitempty"`
	Error        string              `json:"error,omitempty"`
	OverallScore *float64            `json:"overall_score,omitempty"`
	Artifacts    []string            `json:"artifacts,omitempty"`
	Verdict      *core.VerdictReport `json:"verdict,omitempty"`
	Partial      *core.PartialReport `json:"partial,omitempty"`
	SubmittedAt  time.Time           `json:"submitted_at"`
	FinishedAt   *time.Time          `json:"finished_at,omitempty"`
}

// Terminal reports whether the audit has finished.
func (a *Audit) Terminal() bool {
	switch a.Status {
	case string(core.RouteDone), string(core.RouteAborted), StatusFailed:
		return true
	default:
		return false
	}
}

// summary drops the report bodies for list responses.
func (a Audit) summary() Audit {
	a.Verdict = nil
	a.Partial = nil
	return a
}

// auditFromRecord converts a stored run.
func auditFromRecord(rec *core.RunRecord) Audit {
	a := Audit{
		ID:          rec.ID,
		Status:      string(rec.Outcome),
		Target:      rec.Target,
		Verdict:     rec.Verdict,
		Partial:     rec.Partial,
		SubmittedAt: rec.CreatedAt,
	}
	if rec.Verdict != nil {
		score := rec.OverallScore
		a.OverallScore = &score
		a.Rubric = rec.Verdict.Rubric
	}
	if rec.Partial != nil {
		a.Error = rec.Partial.Reason
	}
	finished := rec.CreatedAt
	a.FinishedAt = &finished
	return a
}

// jobTable tracks audits submitted to this process.
type jobTable struct {
	mu   sync.RWMutex
	jobs map[string]*Audit
}

func newJobTable() *jobTable {
	return &jobTable{jobs: make(map[string]*Audit)}
}

func (t *jobTable) add(a *Audit) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[a.ID] = a
}

func (t *jobTable) update(id string, fn func(*Audit)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if a, ok := t.jobs[id]; ok {
		fn(a)
	}
}

func (t *jobTable) remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.jobs, id)
}

func (t *jobTable) get(id string) (Audit, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	a, ok := t.jobs[id]
	if !ok {
		return Audit{}, false
	}
	return *a, true
}

// active returns audits that have not finished, oldest first.
func (t *jobTable) active() []Audit {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Audit
	for _, a := range t.jobs {
		if !a.Terminal() {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out
}

// finished returns audits that ended in this process, newest first.
func (t *jobTable) finished() []Audit {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Audit
	for _, a := range t.jobs {
		if a.Terminal() {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out
}
