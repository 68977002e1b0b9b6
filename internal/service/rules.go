package service

import (
	"math"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
)

// ruleContext is the read-only view a synthesis rule is evaluated against:
// the full evidence set and the valid opinions of one dimension.
type ruleContext struct {
	evidence   core.EvidenceSnapshot
	normalized map[string]float64
	opinions   []core.Opinion
}

// eval interprets a predicate. Predicates are pure; an unknown kind never matches.
func (c ruleContext) eval(p core.Predicate) bool {
	switch p.Kind {
	case core.PredEvidencePresent:
		return c.present(p.Category, p.Finding)
	case core.PredEvidenceMissing:
		return !c.present(p.Category, p.Finding)
	case core.PredJudgeScoreBelow:
		mean, ok := c.judgeMean(p.Judge)
		return ok && mean < p.Value
	case core.PredJudgeScoreAbove:
		mean, ok := c.judgeMean(p.Judge)
		return ok && mean > p.Value
	case core.PredConfidenceBelow:
		return c.meanConfidence(p.Category) < p.Value
	case core.PredOpinionSpreadAbove:
		return spread(c.opinions) > p.Value
	case core.PredAll:
		for _, sub := range p.Of {
			if !c.eval(sub) {
				return false
			}
		}
		return true
	case core.PredAny:
		for _, sub := range p.Of {
			if c.eval(sub) {
				return true
			}
		}
		return false
	case core.PredNot:
		return len(p.Of) == 1 && !c.eval(p.Of[0])
	default:
		return false
	}
}

// present reports whether a found, non-error item exists in the category,
// optionally restricted to one finding.
func (c ruleContext) present(cat core.Category, finding string) bool {
	if cat == core.CategoryError {
		return false
	}
	for _, e := range c.evidence.InCategory(cat) {
		if !e.Found {
			continue
		}
		if finding == "" || e.Finding == finding {
			return true
		}
	}
	return false
}

func (c ruleContext) judgeMean(judge string) (float64, bool) {
	sum, n := 0.0, 0
	for _, o := range c.opinions {
		if o.Judge == judge {
			sum += float64(o.Score)
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// meanConfidence averages normalized confidence over the category's items.
// An empty category has zero confidence.
func (c ruleContext) meanConfidence(cat core.Category) float64 {
	items := c.evidence.InCategory(cat)
	if len(items) == 0 {
		return 0
	}
	sum := 0.0
	for _, e := range items {
		if v, ok := c.normalized[e.ID]; ok {
			sum += v
			continue
		}
		sum += core.UnitConfidence().Normalize(e.Confidence)
	}
	return sum / float64(len(items))
}

// spread is max-min over opinion scores, zero for fewer than two opinions.
func spread(opinions []core.Opinion) float64 {
	if len(opinions) < 2 {
		return 0
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, o := range opinions {
		s := float64(o.Score)
		lo = math.Min(lo, s)
		hi = math.Max(hi, s)
	}
	return hi - lo
}

// applyConsequence composes one consequence onto the running score. The
// result is never above the input score.
func applyConsequence(score float64, c core.Consequence, scaleMin float64) float64 {
	switch c.Kind {
	case core.ConsequenceCap:
		return math.Min(score, c.Value)
	case core.ConsequencePenalize:
		return math.Min(score, math.Max(score-c.Value, scaleMin))
	default:
		return score
	}
}

// snapDown returns the highest level not above score, or floor when no level qualifies.
func snapDown(score float64, levels []int, floor float64) float64 {
	best := math.Inf(-1)
	for _, l := range levels {
		if lv := float64(l); lv <= score && lv > best {
			best = lv
		}
	}
	if math.IsInf(best, -1) {
		return math.Min(score, floor)
	}
	return best
}
