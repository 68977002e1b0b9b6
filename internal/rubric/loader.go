// Package rubric loads rubric documents and resolves them into validated
// core.Rubric values. Every problem is reported at load time as a
// configuration error so synthesis never sees an ill-defined rule order.
package rubric

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
)

//go:embed default.yaml
var defaultRubric []byte

// Defaults applied when the document leaves a value unset.
const (
	DefaultScaleMin              = 1
	DefaultScaleMax              = 10
	DefaultDissentThreshold      = 2.0
	DefaultCompletenessThreshold = 1.0
	DefaultFailureTolerance      = 0.5
)

// DefaultYAML returns the embedded default rubric document.
func DefaultYAML() []byte {
	out := make([]byte, len(defaultRubric))
	copy(out, defaultRubric)
	return out
}

// Default returns the resolved embedded rubric.
func Default() (*core.Rubric, error) {
	return Parse(defaultRubric)
}

// Load reads and resolves the rubric at path. An empty path loads the
// embedded default.
func Load(path string) (*core.Rubric, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, core.ErrConfiguration("rubric", fmt.Sprintf("file not found: %s", path)).WithCause(err)
		}
		return nil, core.ErrConfiguration("rubric", "reading file").WithCause(err)
	}
	return Parse(data)
}

// Parse decodes and resolves a rubric document.
func Parse(data []byte) (*core.Rubric, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, core.ErrConfiguration("rubric", "decoding YAML").WithCause(err)
	}
	return Resolve(&doc)
}

// Resolve validates the document and applies defaults. Rules are sorted by
// ascending priority; duplicate priorities within a dimension are rejected.
func Resolve(doc *Document) (*core.Rubric, error) {
	v := newChecker()
	v.structural(doc)
	if v.problems.HasProblems() {
		return nil, v.problems.asError()
	}
	v.semantic(doc)
	if v.problems.HasProblems() {
		return nil, v.problems.asError()
	}
	return build(doc), nil
}

func build(doc *Document) *core.Rubric {
	scale := core.Scale{Min: DefaultScaleMin, Max: DefaultScaleMax}
	if doc.Scale != nil {
		scale = core.Scale{Min: doc.Scale.Min, Max: doc.Scale.Max}
	}

	r := &core.Rubric{
		Name:             doc.Name,
		Version:          doc.Version,
		Scale:            scale,
		DissentThreshold: floatOr(doc.DissentThreshold, DefaultDissentThreshold),
		Gate: core.Gate{
			CompletenessThreshold: floatOr(doc.Gate.CompletenessThreshold, DefaultCompletenessThreshold),
			FailureTolerance:      floatOr(doc.Gate.FailureTolerance, DefaultFailureTolerance),
		},
	}

	for _, c := range doc.RequiredCategories {
		r.RequiredCategories = append(r.RequiredCategories, core.Category(c))
	}

	for _, j := range doc.Judges {
		persona := j.Persona
		if persona == "" {
			persona = j.Name
		}
		r.Judges = append(r.Judges, core.Judge{Name: j.Name, Persona: persona, Provider: j.Provider})
	}

	for _, d := range doc.Dimensions {
		r.Dimensions = append(r.Dimensions, buildDimension(d, r))
	}
	return r
}

func buildDimension(d DimensionDoc, r *core.Rubric) core.Dimension {
	dim := core.Dimension{
		ID:               d.ID,
		Name:             d.Name,
		Scale:            r.Scale,
		Weight:           floatOr(d.Weight, 1),
		DissentThreshold: floatOr(d.DissentThreshold, r.DissentThreshold),
		TargetArtifact:   d.TargetArtifact,
		Instruction:      d.Instruction,
	}
	if dim.Name == "" {
		dim.Name = d.ID
	}
	if d.Scale != nil {
		dim.Scale = core.Scale{Min: d.Scale.Min, Max: d.Scale.Max}
	}

	dim.JudgeWeights = make(map[string]float64, len(r.Judges))
	if len(d.JudgeWeights) == 0 {
		for _, j := range r.Judges {
			dim.JudgeWeights[j.Name] = 1 / float64(len(r.Judges))
		}
	} else {
		for _, j := range r.Judges {
			dim.JudgeWeights[j.Name] = d.JudgeWeights[j.Name]
		}
	}

	for _, c := range d.EvidenceCategories {
		dim.EvidenceCategories = append(dim.EvidenceCategories, core.Category(c))
	}

	if len(d.Levels) > 0 {
		dim.Levels = append([]int(nil), d.Levels...)
		sort.Ints(dim.Levels)
	}

	for _, rd := range d.Rules {
		dim.Rules = append(dim.Rules, core.SynthesisRule{
			ID:          rd.ID,
			Priority:    rd.Priority,
			Description: rd.Description,
			When:        buildPredicate(rd.When),
			Then:        buildConsequence(rd.Then),
		})
	}
	sort.SliceStable(dim.Rules, func(i, j int) bool {
		return dim.Rules[i].Priority < dim.Rules[j].Priority
	})
	return dim
}

func buildPredicate(p PredicateDoc) core.Predicate {
	out := core.Predicate{
		Kind:     core.PredicateKind(p.Kind),
		Category: core.Category(p.Category),
		Finding:  p.Finding,
		Judge:    p.Judge,
		Value:    floatOr(p.Value, 0),
	}
	for _, sub := range p.Of {
		out.Of = append(out.Of, buildPredicate(sub))
	}
	return out
}

func buildConsequence(c ConsequenceDoc) core.Consequence {
	switch core.ConsequenceKind(c.Kind) {
	case core.ConsequenceCap:
		return core.Cap(floatOr(c.Value, 0))
	case core.ConsequencePenalize:
		return core.Penalize(floatOr(c.Value, 0))
	default:
		return core.Flag(c.Label)
	}
}

func floatOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}
