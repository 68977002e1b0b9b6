package service

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
)

const maxRationaleRunes = 240

// Synthesizer turns the final AgentState into a VerdictReport. It is pure:
// the same state always yields the same report, apart from CreatedAt.
type Synthesizer struct {
	rubric *core.Rubric
	now    func() time.Time
}

// SynthesizerOption configures a synthesizer.
type SynthesizerOption func(*Synthesizer)

// WithClock overrides the clock used for CreatedAt.
func WithClock(now func() time.Time) SynthesizerOption {
	return func(s *Synthesizer) {
		s.now = now
	}
}

// NewSynthesizer creates a synthesizer for a resolved rubric.
func NewSynthesizer(rubric *core.Rubric, opts ...SynthesizerOption) *Synthesizer {
	s := &Synthesizer{
		rubric: rubric,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize produces the verdict for every rubric dimension, in rubric order.
func (s *Synthesizer) Synthesize(state *core.AgentState) *core.VerdictReport {
	snapshot := state.EvidenceSnapshot()
	var normalized map[string]float64
	if state.Aggregation != nil {
		normalized = state.Aggregation.NormalizedConfidence
	}

	report := &core.VerdictReport{
		RunID:       state.RunID,
		Target:      state.Target,
		Rubric:      s.rubric.Name,
		Dimensions:  make([]core.DimensionVerdict, 0, len(s.rubric.Dimensions)),
		Remediation: []string{},
		CreatedAt:   s.now().UTC(),
	}

	var totalWeight, weighted, weightedFraction float64
	for _, dim := range s.rubric.Dimensions {
		dv := s.SynthesizeDimension(dim, snapshot, normalized, state.Opinions[dim.ID])
		report.Dimensions = append(report.Dimensions, dv)
		report.Discarded = append(report.Discarded, dv.Events...)
		if line := remediationLine(dim, dv); line != "" {
			report.Remediation = append(report.Remediation, line)
		}

		w := dim.Weight
		if w <= 0 {
			w = 1
		}
		totalWeight += w
		weighted += w * dv.Score
		weightedFraction += w * dv.Scale.Fraction(dv.Score)
	}

	if totalWeight > 0 {
		report.OverallScore = weighted / totalWeight
		report.OverallPercent = 100 * weightedFraction / totalWeight
	}
	return report
}

// SynthesizeDimension scores one dimension from its opinions and the full
// evidence set.
func (s *Synthesizer) SynthesizeDimension(dim core.Dimension, evidence core.EvidenceSnapshot, normalized map[string]float64, opinions []core.Opinion) core.DimensionVerdict {
	scale := dim.Scale
	if !scale.Valid() {
		scale = s.rubric.Scale
	}
	scaleMin := float64(scale.Min)

	dv := core.DimensionVerdict{
		DimensionID: dim.ID,
		Name:        dim.Name,
		Scale:       scale,
		Flags:       []string{},
	}
	addFlag := func(flag string) {
		if !dv.HasFlag(flag) {
			dv.Flags = append(dv.Flags, flag)
		}
	}

	// Rule of reference: invalid opinions are discarded, never counted.
	ordered := make([]core.Opinion, len(opinions))
	copy(ordered, opinions)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Less(ordered[j]) })

	valid := make([]core.Opinion, 0, len(ordered))
	for _, o := range ordered {
		if reason := s.invalidReason(o, scale, evidence); reason != "" {
			dv.Events = append(dv.Events, core.PenaltyEvent{
				Rule:        core.RuleOfReference,
				Judge:       o.Judge,
				DimensionID: dim.ID,
				Reason:      reason,
			})
			continue
		}
		valid = append(valid, o)
	}
	dv.Opinions = valid
	if len(dv.Events) > 0 {
		addFlag(core.FlagRuleOfReference)
	}

	means := judgeMeans(valid)
	for _, j := range s.rubric.Judges {
		if _, ok := means[j.Name]; !ok {
			dv.AbsentJudges = append(dv.AbsentJudges, j.Name)
		}
	}

	switch {
	case len(means) == 0:
		dv.RawScore = scaleMin
		addFlag(core.FlagNoDeliberation)
	default:
		dv.RawScore = s.weightedMean(dim, means)
		if len(dv.AbsentJudges) > 0 {
			addFlag(core.FlagIncompleteDeliberation)
		}
	}

	score := dv.RawScore
	rc := ruleContext{evidence: evidence, normalized: normalized, opinions: valid}
	for _, rule := range orderedRules(dim.Rules) {
		if !rc.eval(rule.When) {
			continue
		}
		dv.RulesFired = append(dv.RulesFired, rule.ID)
		score = applyConsequence(score, rule.Then, scaleMin)
		if rule.Then.Kind == core.ConsequenceFlag {
			addFlag(rule.Then.Label)
		}
	}
	if len(dim.Levels) > 0 {
		score = snapDown(score, dim.Levels, scaleMin)
	}
	dv.Score = score

	// The loader resolves the rubric-wide default into every dimension, so an
	// explicit 0 here flags any disagreement at all.
	if spread(valid) > dim.DissentThreshold {
		addFlag(core.FlagHighVariance)
	}

	dv.RationaleSummary = summarize(s.rubric.Judges, valid)
	return dv
}

// invalidReason returns why an opinion must be discarded, or "" if it is valid.
func (s *Synthesizer) invalidReason(o core.Opinion, scale core.Scale, evidence core.EvidenceSnapshot) string {
	known := false
	for _, j := range s.rubric.Judges {
		if j.Name == o.Judge {
			known = true
			break
		}
	}
	if !known {
		return fmt.Sprintf("unknown judge %q", o.Judge)
	}
	if !scale.Contains(o.Score) {
		return fmt.Sprintf("score %d outside scale %s", o.Score, scale)
	}
	for _, id := range o.CitedEvidenceIDs {
		if !evidence.Has(id) {
			return fmt.Sprintf("cites unknown evidence %q", id)
		}
	}
	return ""
}

// weightedMean averages the present judges' means. Weights are re-normalized
// over present judges so an absent vote is not a zero.
func (s *Synthesizer) weightedMean(dim core.Dimension, means map[string]float64) float64 {
	var sum, total float64
	for _, j := range s.rubric.Judges {
		mean, ok := means[j.Name]
		if !ok {
			continue
		}
		w := 1.0
		if dim.JudgeWeights != nil {
			w = dim.JudgeWeights[j.Name]
		}
		sum += w * mean
		total += w
	}
	if total > 0 {
		return sum / total
	}

	// Every present judge carries zero weight: fall back to an equal split.
	n := 0
	for _, j := range s.rubric.Judges {
		if mean, ok := means[j.Name]; ok {
			sum += mean
			n++
		}
	}
	return sum / float64(n)
}

func judgeMeans(opinions []core.Opinion) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, o := range opinions {
		sums[o.Judge] += float64(o.Score)
		counts[o.Judge]++
	}
	means := make(map[string]float64, len(sums))
	for judge, sum := range sums {
		means[judge] = sum / float64(counts[judge])
	}
	return means
}

func orderedRules(rules []core.SynthesisRule) []core.SynthesisRule {
	out := make([]core.SynthesisRule, len(rules))
	copy(out, rules)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

func summarize(judges []core.Judge, valid []core.Opinion) string {
	if len(valid) == 0 {
		return "No valid opinions were submitted."
	}
	var parts []string
	for _, j := range judges {
		for _, o := range valid {
			if o.Judge != j.Name {
				continue
			}
			parts = append(parts, fmt.Sprintf("%s (%d): %s", o.Judge, o.Score, truncate(o.Rationale, maxRationaleRunes)))
		}
	}
	return strings.Join(parts, " | ")
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}

// remediationLine names a flagged dimension's flags and the rules behind them.
func remediationLine(dim core.Dimension, dv core.DimensionVerdict) string {
	if len(dv.Flags) == 0 {
		return ""
	}
	name := dim.Name
	if name == "" {
		name = dim.ID
	}
	line := fmt.Sprintf("%s: %s", name, strings.Join(dv.Flags, ", "))
	if len(dv.RulesFired) == 0 {
		return line
	}
	var rules []string
	for _, id := range dv.RulesFired {
		desc := ""
		for _, r := range dim.Rules {
			if r.ID == id {
				desc = r.Description
				break
			}
		}
		if desc != "" {
			rules = append(rules, fmt.Sprintf("%s (%s)", id, desc))
		} else {
			rules = append(rules, id)
		}
	}
	return line + "; triggered by " + strings.Join(rules, ", ")
}
