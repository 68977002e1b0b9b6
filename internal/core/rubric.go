package core

import (
	"fmt"
	"strings"
)

// Rubric is the resolved, validated rubric configuration. It is built by
// internal/rubric and never mutated afterwards.
type Rubric struct {
	Name               string
	Version            string
	Scale              Scale
	Judges             []Judge
	RequiredCategories []Category
	Gate               Gate
	DissentThreshold   float64
	Dimensions         []Dimension
}

// Gate holds the evidence aggregator thresholds.
type Gate struct {
	// CompletenessThreshold is the minimum fraction of required categories covered.
	CompletenessThreshold float64
	// FailureTolerance is the maximum fraction of failed evidence workers.
	FailureTolerance float64
}

// Judge is a persona that produces opinions.
type Judge struct {
	Name     string
	Persona  string
	Provider string
}

// JudgeNames returns the configured judge names in rubric order.
func (r *Rubric) JudgeNames() []string {
	names := make([]string, len(r.Judges))
	for i, j := range r.Judges {
		names[i] = j.Name
	}
	return names
}

// Dimension returns the dimension with the given ID.
func (r *Rubric) Dimension(id string) (Dimension, bool) {
	for _, d := range r.Dimensions {
		if d.ID == id {
			return d, true
		}
	}
	return Dimension{}, false
}

// Dimension is one scored rubric axis.
type Dimension struct {
	ID                 string
	Name               string
	Scale              Scale
	Weight             float64
	JudgeWeights       map[string]float64
	DissentThreshold   float64
	EvidenceCategories []Category
	TargetArtifact     string
	Instruction        string
	Levels             []int
	// Rules are sorted by ascending Priority at load time.
	Rules []SynthesisRule
}

// SynthesisRule is a priority-ordered predicate/consequence pair.
type SynthesisRule struct {
	ID          string
	Priority    int
	Description string
	When        Predicate
	Then        Consequence
}

// PredicateKind selects the predicate variant.
type PredicateKind string

const (
	PredEvidencePresent    PredicateKind = "evidence_present"
	PredEvidenceMissing    PredicateKind = "evidence_missing"
	PredJudgeScoreBelow    PredicateKind = "judge_score_below"
	PredJudgeScoreAbove    PredicateKind = "judge_score_above"
	PredConfidenceBelow    PredicateKind = "confidence_below"
	PredOpinionSpreadAbove PredicateKind = "opinion_spread_above"
	PredAll                PredicateKind = "all"
	PredAny                PredicateKind = "any"
	PredNot                PredicateKind = "not"
)

// ValidPredicateKind reports whether k is a known predicate kind.
func ValidPredicateKind(k PredicateKind) bool {
	switch k {
	case PredEvidencePresent, PredEvidenceMissing, PredJudgeScoreBelow, PredJudgeScoreAbove,
		PredConfidenceBelow, PredOpinionSpreadAbove, PredAll, PredAny, PredNot:
		return true
	default:
		return false
	}
}

// Predicate is a tagged variant over (evidence-set, opinion-set).
// Only the fields relevant to Kind are meaningful.
type Predicate struct {
	Kind     PredicateKind
	Category Category
	Finding  string
	Judge    string
	Value    float64
	Of       []Predicate
}

// String renders the predicate for logs and remediation lines.
func (p Predicate) String() string {
	switch p.Kind {
	case PredEvidencePresent, PredEvidenceMissing:
		if p.Finding != "" {
			return fmt.Sprintf("%s(%s:%s)", p.Kind, p.Category, p.Finding)
		}
		return fmt.Sprintf("%s(%s)", p.Kind, p.Category)
	case PredJudgeScoreBelow, PredJudgeScoreAbove:
		return fmt.Sprintf("%s(%s,%g)", p.Kind, p.Judge, p.Value)
	case PredConfidenceBelow:
		return fmt.Sprintf("%s(%s,%g)", p.Kind, p.Category, p.Value)
	case PredOpinionSpreadAbove:
		return fmt.Sprintf("%s(%g)", p.Kind, p.Value)
	default:
		parts := make([]string, len(p.Of))
		for i, sub := range p.Of {
			parts[i] = sub.String()
		}
		return fmt.Sprintf("%s(%s)", p.Kind, strings.Join(parts, ", "))
	}
}

// ConsequenceKind selects the consequence variant.
type ConsequenceKind string

const (
	ConsequenceCap      ConsequenceKind = "cap"
	ConsequencePenalize ConsequenceKind = "penalize"
	ConsequenceFlag     ConsequenceKind = "flag"
)

// Consequence is the tagged variant cap(value) | penalize(delta) | flag(label).
type Consequence struct {
	Kind  ConsequenceKind
	Value float64
	Label string
}

// Cap builds a cap-score consequence.
func Cap(v float64) Consequence { return Consequence{Kind: ConsequenceCap, Value: v} }

// Penalize builds a penalize consequence.
func Penalize(delta float64) Consequence { return Consequence{Kind: ConsequencePenalize, Value: delta} }

// Flag builds a flag consequence.
func Flag(label string) Consequence { return Consequence{Kind: ConsequenceFlag, Label: label} }

// String renders the consequence.
func (c Consequence) String() string {
	switch c.Kind {
	case ConsequenceFlag:
		return fmt.Sprintf("flag(%q)", c.Label)
	default:
		return fmt.Sprintf("%s(%g)", c.Kind, c.Value)
	}
}
