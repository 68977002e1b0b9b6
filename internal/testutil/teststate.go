package testutil

import (
	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
)

// Judge names used by the test rubric.
const (
	JudgeProsecutor = "prosecutor"
	JudgeDefense    = "defense"
	JudgeTechLead   = "tech_lead"
)

// NewTestRubric returns a small resolved rubric with two dimensions:
// "safe_tool_engineering" (security evidence, capped at 2 and flagged when an
// unsafe call is found) and "git_forensic_analysis" (git evidence, no rules).
// Use functional options to override specific fields.
func NewTestRubric(opts ...func(*core.Rubric)) *core.Rubric {
	scale := core.Scale{Min: 1, Max: 10}
	unsafe := core.Predicate{
		Kind:     core.PredEvidencePresent,
		Category: "security",
		Finding:  "unsafe-call-detected",
	}
	r := &core.Rubric{
		Name:    "test-rubric",
		Version: "1",
		Scale:   scale,
		Judges: []core.Judge{
			{Name: JudgeProsecutor, Persona: "prosecutor"},
			{Name: JudgeDefense, Persona: "defense"},
			{Name: JudgeTechLead, Persona: "tech lead"},
		},
		RequiredCategories: []core.Category{"git", "security"},
		Gate:               core.Gate{CompletenessThreshold: 1, FailureTolerance: 0.5},
		DissentThreshold:   2,
		Dimensions: []core.Dimension{
			{
				ID:                 "safe_tool_engineering",
				Name:               "Safe Tool Engineering",
				Scale:              scale,
				Weight:             1,
				JudgeWeights:       equalWeights(),
				DissentThreshold:   2,
				EvidenceCategories: []core.Category{"security"},
				Rules: []core.SynthesisRule{
					{ID: "security-override", Priority: 10, When: unsafe, Then: core.Cap(2)},
					{ID: "security-flag", Priority: 20, When: unsafe, Then: core.Flag("security violation")},
				},
			},
			{
				ID:                 "git_forensic_analysis",
				Name:               "Git Forensic Analysis",
				Scale:              scale,
				Weight:             1,
				JudgeWeights:       equalWeights(),
				DissentThreshold:   2,
				EvidenceCategories: []core.Category{"git"},
			},
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func equalWeights() map[string]float64 {
	return map[string]float64{
		JudgeProsecutor: 1.0 / 3,
		JudgeDefense:    1.0 / 3,
		JudgeTechLead:   1.0 / 3,
	}
}

// NewTestState creates an AgentState with sensible defaults for tests.
// Use functional options to override specific fields.
func NewTestState(opts ...func(*core.AgentState)) *core.AgentState {
	s := core.NewAgentState("run-test", core.Target{RepoURL: "https://example.com/org/repo.git"})
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithEvidence adds items to the state's evidence mapping.
func WithEvidence(items ...core.Evidence) func(*core.AgentState) {
	return func(s *core.AgentState) {
		for _, e := range items {
			s.Evidence[e.Category] = append(s.Evidence[e.Category], e)
		}
	}
}

// WithOpinions adds opinions to the state's opinion mapping.
func WithOpinions(items ...core.Opinion) func(*core.AgentState) {
	return func(s *core.AgentState) {
		for _, o := range items {
			s.Opinions[o.DimensionID] = append(s.Opinions[o.DimensionID], o)
		}
	}
}

// Ev builds a found evidence item with full confidence. Its ID is "test:<finding>".
func Ev(category core.Category, finding string) core.Evidence {
	return core.Evidence{
		ID:         core.NewEvidenceID("test", finding),
		Producer:   "test",
		Category:   category,
		Finding:    finding,
		Found:      true,
		Confidence: 1,
	}
}

// Op builds an opinion citing the given evidence IDs.
func Op(judge, dimension string, score int, cites ...string) core.Opinion {
	return core.Opinion{
		Judge:            judge,
		DimensionID:      dimension,
		Score:            score,
		Rationale:        judge + " on " + dimension,
		CitedEvidenceIDs: cites,
	}
}
