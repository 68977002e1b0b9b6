package core

import (
	"context"
	"time"
)

// TargetSnapshot is the read-only input shared by every evidence producer.
type TargetSnapshot struct {
	// RepoURL is the identifier the run was started with.
	RepoURL string
	// LocalPath is a materialized checkout of the repository, empty if unavailable.
	LocalPath string
	// ReportPath is the optional report to analyze.
	ReportPath string
	// Rubric is the rubric driving the run.
	Rubric *Rubric
}

// EvidenceProducer collects evidence about a target.
// Producers must not touch shared state and must reclaim any scratch storage
// they create before returning, on success or failure.
type EvidenceProducer interface {
	// Name returns the producer identifier, used to namespace evidence IDs.
	Name() string

	// ConfidenceScale returns the range the producer reports confidence in.
	ConfidenceScale() ConfidenceScale

	// Produce runs the producer against the target snapshot.
	Produce(ctx context.Context, target TargetSnapshot) ([]Evidence, error)
}

// Persona configures one judge for deliberation.
type Persona struct {
	Judge       string
	Description string
	Dimensions  []Dimension
}

// OpinionProvider produces opinions from a read-only evidence snapshot.
type OpinionProvider interface {
	// Name returns the provider identifier.
	Name() string

	// Deliberate scores every dimension of the persona.
	Deliberate(ctx context.Context, evidence EvidenceSnapshot, persona Persona) ([]Opinion, error)
}

// RunRecord is a persisted run outcome.
type RunRecord struct {
	ID           string         `json:"id"`
	Target       Target         `json:"target"`
	Outcome      RouteState     `json:"outcome"`
	OverallScore float64        `json:"overall_score"`
	Verdict      *VerdictReport `json:"verdict,omitempty"`
	Partial      *PartialReport `json:"partial,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// VerdictStore persists run outcomes.
type VerdictStore interface {
	// Save stores or replaces a run record.
	Save(ctx context.Context, rec *RunRecord) error

	// Get returns a run by ID, or a not-found DomainError.
	Get(ctx context.Context, id string) (*RunRecord, error)

	// List returns the most recent runs, newest first.
	List(ctx context.Context, limit int) ([]*RunRecord, error)

	// ListByTarget returns the most recent runs of one repository, newest first.
	ListByTarget(ctx context.Context, repoURL string, limit int) ([]*RunRecord, error)

	// Delete removes a run. Deleting an unknown run is not an error.
	Delete(ctx context.Context, id string) error

	// Close releases the store.
	Close() error
}
