package core

import (
	"fmt"
	"sort"
	"strings"
)

// Category groups evidence items produced for the same concern (e.g. "git", "security").
type Category string

// CategoryError marks synthetic evidence recording a failed evidence worker.
const CategoryError Category = "error"

// String returns the category name.
func (c Category) String() string {
	return string(c)
}

// Evidence is an atomic, immutable finding produced by one evidence producer.
type Evidence struct {
	ID         string   `json:"id"`
	Producer   string   `json:"producer"`
	Category   Category `json:"category"`
	Finding    string   `json:"finding"`
	Found      bool     `json:"found"`
	Content    string   `json:"content,omitempty"`
	Rationale  string   `json:"rationale,omitempty"`
	Confidence float64  `json:"confidence"`
	Locations  []string `json:"supporting_locations,omitempty"`
}

// IsError reports whether the item records a worker failure rather than a finding.
func (e Evidence) IsError() bool {
	return e.Category == CategoryError
}

// NewEvidenceID builds a producer-namespaced evidence ID.
func NewEvidenceID(producer, slug string) string {
	return producer + ":" + slugify(slug)
}

func slugify(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '/':
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash && b.Len() > 0 {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// ConfidenceScale is the range a producer reports confidence in.
type ConfidenceScale struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// UnitConfidence is the [0,1] scale.
func UnitConfidence() ConfidenceScale {
	return ConfidenceScale{Min: 0, Max: 1}
}

// Normalize rescales v into [0,1], clamping out-of-range values.
func (s ConfidenceScale) Normalize(v float64) float64 {
	if s.Max <= s.Min {
		return clamp01(v)
	}
	return clamp01((v - s.Min) / (s.Max - s.Min))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// WorkerFailure records a stage worker that failed after its retry budget.
type WorkerFailure struct {
	Stage    string `json:"stage"`
	Worker   string `json:"worker"`
	Reason   string `json:"reason"`
	Attempts int    `json:"attempts"`
}

// AsEvidence converts the failure into the synthetic "error" evidence item.
func (f WorkerFailure) AsEvidence() Evidence {
	return Evidence{
		ID:        "error:" + slugify(f.Worker),
		Producer:  f.Worker,
		Category:  CategoryError,
		Finding:   "worker-failed",
		Found:     false,
		Rationale: f.Reason,
	}
}

// String formats the failure for logs and reports.
func (f WorkerFailure) String() string {
	return fmt.Sprintf("%s/%s: %s", f.Stage, f.Worker, f.Reason)
}

// EvidenceSnapshot is a read-only view over merged evidence.
type EvidenceSnapshot struct {
	byID       map[string]Evidence
	byCategory map[Category][]Evidence
}

// NewEvidenceSnapshot copies the given mapping into a read-only snapshot.
func NewEvidenceSnapshot(evidence map[Category][]Evidence) EvidenceSnapshot {
	s := EvidenceSnapshot{
		byID:       make(map[string]Evidence),
		byCategory: make(map[Category][]Evidence, len(evidence)),
	}
	for cat, items := range evidence {
		cp := make([]Evidence, len(items))
		copy(cp, items)
		s.byCategory[cat] = cp
		for _, e := range items {
			s.byID[e.ID] = e
		}
	}
	return s
}

// Get returns the evidence with the given ID.
func (s EvidenceSnapshot) Get(id string) (Evidence, bool) {
	e, ok := s.byID[id]
	return e, ok
}

// Has reports whether an evidence ID exists.
func (s EvidenceSnapshot) Has(id string) bool {
	_, ok := s.byID[id]
	return ok
}

// Len returns the number of evidence items, including error items.
func (s EvidenceSnapshot) Len() int {
	return len(s.byID)
}

// Categories returns the categories present, sorted.
func (s EvidenceSnapshot) Categories() []Category {
	cats := make([]Category, 0, len(s.byCategory))
	for c := range s.byCategory {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
	return cats
}

// InCategory returns a copy of the items in a category.
func (s EvidenceSnapshot) InCategory(c Category) []Evidence {
	items := s.byCategory[c]
	cp := make([]Evidence, len(items))
	copy(cp, items)
	return cp
}

// All returns every item ordered by category then ID.
func (s EvidenceSnapshot) All() []Evidence {
	out := make([]Evidence, 0, len(s.byID))
	for _, c := range s.Categories() {
		out = append(out, s.byCategory[c]...)
	}
	return out
}
