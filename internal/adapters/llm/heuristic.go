package llm

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
)

// DefaultAdverseFindings are findings whose presence counts against the target.
var DefaultAdverseFindings = []string{"unsafe-call-detected", "path-hallucination"}

// HeuristicJudge scores each dimension from the share of favourable evidence
// in the dimension's categories, shifted by the persona's leaning: the
// prosecutor scores one point lower and the defense one point higher. It
// needs no network and is fully deterministic.
type HeuristicJudge struct {
	adverse map[string]bool
}

// HeuristicOption configures the heuristic judge.
type HeuristicOption func(*HeuristicJudge)

// WithAdverseFindings replaces the list of findings that count against the target.
func WithAdverseFindings(findings ...string) HeuristicOption {
	return func(h *HeuristicJudge) {
		h.adverse = make(map[string]bool, len(findings))
		for _, f := range findings {
			h.adverse[f] = true
		}
	}
}

// NewHeuristicJudge creates the offline opinion provider.
func NewHeuristicJudge(opts ...HeuristicOption) *HeuristicJudge {
	h := &HeuristicJudge{}
	WithAdverseFindings(DefaultAdverseFindings...)(h)
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name implements core.OpinionProvider.
func (h *HeuristicJudge) Name() string { return ProviderHeuristic }

// Deliberate implements core.OpinionProvider.
func (h *HeuristicJudge) Deliberate(ctx context.Context, evidence core.EvidenceSnapshot, persona core.Persona) ([]core.Opinion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bias := personaBias(persona)

	opinions := make([]core.Opinion, 0, len(persona.Dimensions))
	for _, d := range persona.Dimensions {
		var items []core.Evidence
		for _, cat := range d.EvidenceCategories {
			for _, e := range evidence.InCategory(cat) {
				if !e.IsError() {
					items = append(items, e)
				}
			}
		}
		sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

		var (
			favourable int
			concerns   []string
			cites      []string
		)
		for _, e := range items {
			cites = append(cites, e.ID)
			if e.Found != h.adverse[e.Finding] {
				favourable++
			} else {
				concerns = append(concerns, e.Finding)
			}
		}

		score := (d.Scale.Min + d.Scale.Max) / 2
		rationale := "No evidence was collected for this dimension."
		if len(items) > 0 {
			ratio := float64(favourable) / float64(len(items))
			score = d.Scale.Min + int(math.Round(ratio*float64(d.Scale.Max-d.Scale.Min)))
			rationale = fmt.Sprintf("%d of %d findings support the target.", favourable, len(items))
			if len(concerns) > 0 {
				rationale += " Concerns: " + strings.Join(concerns, ", ") + "."
			}
		}
		score = snapToLevel(clampScore(score+bias, d.Scale), d.Levels)

		opinions = append(opinions, core.Opinion{
			Judge:            persona.Judge,
			DimensionID:      d.ID,
			Score:            score,
			Rationale:        rationale,
			CitedEvidenceIDs: cites,
		})
	}
	return opinions, nil
}

func personaBias(p core.Persona) int {
	who := strings.ToLower(p.Judge + " " + p.Description)
	switch {
	case strings.Contains(who, "prosecut"):
		return -1
	case strings.Contains(who, "defen"):
		return 1
	default:
		return 0
	}
}

func clampScore(score int, scale core.Scale) int {
	return max(scale.Min, min(scale.Max, score))
}

// snapToLevel moves score to the nearest allowed level, preferring the lower
// level on ties.
func snapToLevel(score int, levels []int) int {
	if len(levels) == 0 {
		return score
	}
	best := levels[0]
	for _, l := range levels[1:] {
		dl, db := abs(l-score), abs(best-score)
		if dl < db || (dl == db && l < best) {
			best = l
		}
	}
	return best
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
