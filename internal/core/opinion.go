package core

import (
	"fmt"
	"slices"
	"strings"
)

// Opinion is one judge's scored judgment on one rubric dimension.
type Opinion struct {
	Judge            string   `json:"judge" validate:"required"`
	DimensionID      string   `json:"dimension_id" validate:"required"`
	Score            int      `json:"score"`
	Rationale        string   `json:"rationale"`
	CitedEvidenceIDs []string `json:"cited_evidence_ids"`
}

// Key returns a string that identifies the opinion's full content.
// Two opinions with the same key are duplicates.
func (o Opinion) Key() string {
	return fmt.Sprintf("%s\x00%s\x00%d\x00%s\x00%s",
		o.Judge, o.DimensionID, o.Score, o.Rationale, strings.Join(o.CitedEvidenceIDs, "\x01"))
}

// Less orders opinions by judge, score, rationale and citations.
func (o Opinion) Less(other Opinion) bool {
	if o.Judge != other.Judge {
		return o.Judge < other.Judge
	}
	if o.Score != other.Score {
		return o.Score < other.Score
	}
	if o.Rationale != other.Rationale {
		return o.Rationale < other.Rationale
	}
	return slices.Compare(o.CitedEvidenceIDs, other.CitedEvidenceIDs) < 0
}

// Scale is the discrete ordered score set {Min..Max}.
type Scale struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

// Contains reports whether score is a legal value on the scale.
func (s Scale) Contains(score int) bool {
	return score >= s.Min && score <= s.Max
}

// Valid reports whether the scale has at least two points.
func (s Scale) Valid() bool {
	return s.Max > s.Min
}

// Fraction maps a score on the scale to [0,1].
func (s Scale) Fraction(score float64) float64 {
	if !s.Valid() {
		return 0
	}
	return clamp01((score - float64(s.Min)) / float64(s.Max-s.Min))
}

// String formats the scale as "min..max".
func (s Scale) String() string {
	return fmt.Sprintf("%d..%d", s.Min, s.Max)
}
