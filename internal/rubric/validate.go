package rubric

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sahilm/fuzzy"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
)

// weightTolerance absorbs float rounding when judge weights are summed.
const weightTolerance = 1e-6

var identPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

var docValidate *validator.Validate

func init() {
	docValidate = validator.New()
	_ = docValidate.RegisterValidation("ident", func(fl validator.FieldLevel) bool {
		return identPattern.MatchString(fl.Field().String())
	})
}

// Problem is one rubric validation finding.
type Problem struct {
	Field   string
	Message string
}

func (p Problem) String() string {
	return fmt.Sprintf("%s: %s", p.Field, p.Message)
}

// Problems collects every finding of a rubric check.
type Problems []Problem

func (p Problems) Error() string {
	msgs := make([]string, len(p))
	for i, pr := range p {
		msgs[i] = pr.String()
	}
	return strings.Join(msgs, "; ")
}

// HasProblems returns true if anything was reported.
func (p Problems) HasProblems() bool {
	return len(p) > 0
}

func (p Problems) asError() error {
	return core.ErrConfiguration("rubric", p.Error()).
		WithCause(p).
		WithDetail("problems", len(p))
}

// ProblemsOf extracts the rubric problems carried by a configuration error.
func ProblemsOf(err error) Problems {
	var p Problems
	if errors.As(err, &p) {
		return p
	}
	return nil
}

type checker struct {
	problems   Problems
	judges     []string
	categories []string
}

func newChecker() *checker {
	return &checker{}
}

func (c *checker) add(field, format string, args ...interface{}) {
	c.problems = append(c.problems, Problem{Field: field, Message: fmt.Sprintf(format, args...)})
}

// structural runs the struct-tag checks.
func (c *checker) structural(doc *Document) {
	err := docValidate.Struct(doc)
	if err == nil {
		return
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		c.add("rubric", "%v", err)
		return
	}
	for _, fe := range verrs {
		c.add(fieldPath(fe.Namespace()), "failed %q check (got: %v)", tagLabel(fe), fe.Value())
	}
}

func fieldPath(ns string) string {
	return strings.TrimPrefix(ns, "Document.")
}

func tagLabel(fe validator.FieldError) string {
	if fe.Param() != "" {
		return fe.Tag() + "=" + fe.Param()
	}
	return fe.Tag()
}

// semantic checks cross-field constraints that struct tags cannot express.
func (c *checker) semantic(doc *Document) {
	scale := core.Scale{Min: DefaultScaleMin, Max: DefaultScaleMax}
	if doc.Scale != nil {
		scale = core.Scale{Min: doc.Scale.Min, Max: doc.Scale.Max}
	}

	seenJudges := make(map[string]bool)
	for i, j := range doc.Judges {
		if seenJudges[j.Name] {
			c.add(fmt.Sprintf("judges[%d].name", i), "duplicate judge %q", j.Name)
		}
		seenJudges[j.Name] = true
		c.judges = append(c.judges, j.Name)
	}

	declared := make(map[string]bool)
	for i, cat := range doc.RequiredCategories {
		if cat == string(core.CategoryError) {
			c.add(fmt.Sprintf("required_categories[%d]", i), "%q is reserved for worker failures", cat)
		}
		declared[cat] = true
	}
	for _, d := range doc.Dimensions {
		for _, cat := range d.EvidenceCategories {
			declared[cat] = true
		}
	}
	for cat := range declared {
		c.categories = append(c.categories, cat)
	}
	sort.Strings(c.categories)

	seenDims := make(map[string]bool)
	for i, d := range doc.Dimensions {
		field := fmt.Sprintf("dimensions[%s]", d.ID)
		if seenDims[d.ID] {
			c.add(fmt.Sprintf("dimensions[%d].id", i), "duplicate dimension %q", d.ID)
		}
		seenDims[d.ID] = true

		dimScale := scale
		if d.Scale != nil {
			dimScale = core.Scale{Min: d.Scale.Min, Max: d.Scale.Max}
		}
		c.checkJudgeWeights(field, d.JudgeWeights)
		c.checkLevels(field, d.Levels, dimScale)
		c.checkRules(field, d.Rules, dimScale)
	}
}

func (c *checker) checkJudgeWeights(field string, weights map[string]float64) {
	if len(weights) == 0 {
		return
	}
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)

	sum := 0.0
	for _, name := range names {
		w := weights[name]
		if !contains(c.judges, name) {
			c.add(field+".judge_weights", "unknown judge %q%s", name, suggest(name, c.judges))
		}
		if w < 0 {
			c.add(field+".judge_weights."+name, "weight must be non-negative (got: %g)", w)
		}
		sum += w
	}
	if math.Abs(sum-1) > weightTolerance {
		c.add(field+".judge_weights", "weights must sum to 1 (got: %g)", sum)
	}
}

func (c *checker) checkLevels(field string, levels []int, scale core.Scale) {
	seen := make(map[int]bool)
	for _, l := range levels {
		if !scale.Contains(l) {
			c.add(field+".levels", "level %d outside scale %s", l, scale)
		}
		if seen[l] {
			c.add(field+".levels", "duplicate level %d", l)
		}
		seen[l] = true
	}
}

func (c *checker) checkRules(field string, rules []RuleDoc, scale core.Scale) {
	ids := make(map[string]bool)
	priorities := make(map[int]string)
	for _, r := range rules {
		rf := fmt.Sprintf("%s.rules[%s]", field, r.ID)
		if ids[r.ID] {
			c.add(rf, "duplicate rule id")
		}
		ids[r.ID] = true
		if other, ok := priorities[r.Priority]; ok {
			c.add(rf+".priority", "priority %d already used by rule %q; priorities must be unique", r.Priority, other)
		} else {
			priorities[r.Priority] = r.ID
		}
		c.checkPredicate(rf+".when", r.When)
		c.checkConsequence(rf+".then", r.Then, scale)
	}
}

func (c *checker) checkPredicate(field string, p PredicateDoc) {
	kind := core.PredicateKind(p.Kind)
	if !core.ValidPredicateKind(kind) {
		c.add(field+".kind", "unknown predicate kind %q%s", p.Kind, suggest(p.Kind, predicateKinds()))
		return
	}

	switch kind {
	case core.PredAll, core.PredAny, core.PredNot:
		if len(p.Of) == 0 {
			c.add(field+".of", "%s needs at least one operand", kind)
		}
		if kind == core.PredNot && len(p.Of) > 1 {
			c.add(field+".of", "not takes exactly one operand (got: %d)", len(p.Of))
		}
		for i, sub := range p.Of {
			c.checkPredicate(fmt.Sprintf("%s.of[%d]", field, i), sub)
		}
		return
	}

	if len(p.Of) > 0 {
		c.add(field+".of", "%s does not take operands", kind)
	}

	switch kind {
	case core.PredEvidencePresent, core.PredEvidenceMissing:
		c.checkCategory(field, p.Category)
	case core.PredConfidenceBelow:
		c.checkCategory(field, p.Category)
		if p.Value == nil || *p.Value < 0 || *p.Value > 1 {
			c.add(field+".value", "confidence_below needs a value in [0,1]")
		}
	case core.PredJudgeScoreBelow, core.PredJudgeScoreAbove:
		if !contains(c.judges, p.Judge) {
			c.add(field+".judge", "unknown judge %q%s", p.Judge, suggest(p.Judge, c.judges))
		}
		if p.Value == nil {
			c.add(field+".value", "%s needs a value", kind)
		}
	case core.PredOpinionSpreadAbove:
		if p.Value == nil || *p.Value < 0 {
			c.add(field+".value", "opinion_spread_above needs a non-negative value")
		}
	}
}

func (c *checker) checkCategory(field, category string) {
	if category == "" {
		c.add(field+".category", "category required")
		return
	}
	if category == string(core.CategoryError) {
		return
	}
	if !contains(c.categories, category) {
		c.add(field+".category", "category %q is not declared by the rubric%s", category, suggest(category, c.categories))
	}
}

func (c *checker) checkConsequence(field string, cons ConsequenceDoc, scale core.Scale) {
	switch core.ConsequenceKind(cons.Kind) {
	case core.ConsequenceCap:
		if cons.Value == nil {
			c.add(field+".value", "cap needs a value")
		} else if *cons.Value < float64(scale.Min) || *cons.Value > float64(scale.Max) {
			c.add(field+".value", "cap %g outside scale %s", *cons.Value, scale)
		}
	case core.ConsequencePenalize:
		if cons.Value == nil || *cons.Value <= 0 {
			c.add(field+".value", "penalize needs a positive value")
		}
	case core.ConsequenceFlag:
		if strings.TrimSpace(cons.Label) == "" {
			c.add(field+".label", "flag needs a label")
		}
	}
}

func predicateKinds() []string {
	return []string{
		string(core.PredEvidencePresent), string(core.PredEvidenceMissing),
		string(core.PredJudgeScoreBelow), string(core.PredJudgeScoreAbove),
		string(core.PredConfidenceBelow), string(core.PredOpinionSpreadAbove),
		string(core.PredAll), string(core.PredAny), string(core.PredNot),
	}
}

// suggest returns a " (did you mean ...?)" hint for a misspelled name.
func suggest(name string, candidates []string) string {
	if name == "" || len(candidates) == 0 {
		return ""
	}
	if matches := fuzzy.Find(name, candidates); len(matches) > 0 {
		return fmt.Sprintf(" (did you mean %q?)", matches[0].Str)
	}
	// Also try the reverse direction so truncated candidates match longer typos.
	for _, cand := range candidates {
		if m := fuzzy.Find(cand, []string{name}); len(m) > 0 {
			return fmt.Sprintf(" (did you mean %q?)", cand)
		}
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
