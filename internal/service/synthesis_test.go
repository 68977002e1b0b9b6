package service

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
	"github.com/hugo-lorenzo-mato/tribunal/internal/testutil"
)

const (
	dimSafety = "safe_tool_engineering"
	dimGit    = "git_forensic_analysis"
)

var (
	unsafeCall = testutil.Ev("security", "unsafe-call-detected")
	commits    = testutil.Ev("git", "commit-progression")
)

func fixedClock() time.Time {
	return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
}

func synthesize(t *testing.T, rubric *core.Rubric, state *core.AgentState) *core.VerdictReport {
	t.Helper()
	report := NewSynthesizer(rubric, WithClock(fixedClock)).Synthesize(state)
	require.NotNil(t, report)
	require.Len(t, report.Dimensions, len(rubric.Dimensions))
	return report
}

func dimension(t *testing.T, report *core.VerdictReport, id string) core.DimensionVerdict {
	t.Helper()
	dv, ok := report.Dimension(id)
	require.True(t, ok, "dimension %s missing from report", id)
	return dv
}

func TestSynthesize_SecurityOverride(t *testing.T) {
	state := testutil.NewTestState(
		testutil.WithEvidence(unsafeCall, commits),
		testutil.WithOpinions(
			testutil.Op(testutil.JudgeProsecutor, dimSafety, 7, unsafeCall.ID),
			testutil.Op(testutil.JudgeDefense, dimSafety, 8, unsafeCall.ID),
			testutil.Op(testutil.JudgeTechLead, dimSafety, 6, unsafeCall.ID),
		),
	)

	dv := dimension(t, synthesize(t, testutil.NewTestRubric(), state), dimSafety)

	assert.InDelta(t, 7.0, dv.RawScore, 1e-9)
	assert.Equal(t, 2.0, dv.Score)
	assert.True(t, dv.HasFlag("security violation"), "flags = %v", dv.Flags)
	assert.Equal(t, []string{"security-override", "security-flag"}, dv.RulesFired)
	assert.False(t, dv.HasFlag(core.FlagHighVariance))
}

func TestSynthesize_SecurityOverrideNotTriggered(t *testing.T) {
	clean := testutil.Ev("security", "sandboxed-tempfile")
	state := testutil.NewTestState(
		testutil.WithEvidence(clean),
		testutil.WithOpinions(
			testutil.Op(testutil.JudgeProsecutor, dimSafety, 7),
			testutil.Op(testutil.JudgeDefense, dimSafety, 8),
			testutil.Op(testutil.JudgeTechLead, dimSafety, 6),
		),
	)

	dv := dimension(t, synthesize(t, testutil.NewTestRubric(), state), dimSafety)

	assert.InDelta(t, 7.0, dv.Score, 1e-9)
	assert.Empty(t, dv.RulesFired)
	assert.Empty(t, dv.Flags)
}

func TestSynthesize_DissentThreshold(t *testing.T) {
	tests := []struct {
		name     string
		scores   [3]int
		wantFlag bool
	}{
		{"spread 6 flagged", [3]int{9, 8, 3}, true},
		{"spread 1 not flagged", [3]int{8, 7, 8}, false},
		{"spread equal to threshold not flagged", [3]int{8, 6, 7}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := testutil.NewTestState(
				testutil.WithEvidence(commits),
				testutil.WithOpinions(
					testutil.Op(testutil.JudgeProsecutor, dimGit, tt.scores[0]),
					testutil.Op(testutil.JudgeDefense, dimGit, tt.scores[1]),
					testutil.Op(testutil.JudgeTechLead, dimGit, tt.scores[2]),
				),
			)

			dv := dimension(t, synthesize(t, testutil.NewTestRubric(), state), dimGit)
			assert.Equal(t, tt.wantFlag, dv.HasFlag(core.FlagHighVariance), "flags = %v", dv.Flags)
		})
	}
}

func TestSynthesize_ZeroDissentThreshold(t *testing.T) {
	rubric := testutil.NewTestRubric(func(r *core.Rubric) {
		r.DissentThreshold = 2
		r.Dimensions[1].DissentThreshold = 0
	})

	t.Run("any spread flagged", func(t *testing.T) {
		state := testutil.NewTestState(
			testutil.WithEvidence(commits),
			testutil.WithOpinions(
				testutil.Op(testutil.JudgeProsecutor, dimGit, 8),
				testutil.Op(testutil.JudgeDefense, dimGit, 7),
				testutil.Op(testutil.JudgeTechLead, dimGit, 8),
			),
		)
		dv := dimension(t, synthesize(t, rubric, state), dimGit)
		assert.True(t, dv.HasFlag(core.FlagHighVariance), "flags = %v", dv.Flags)
	})

	t.Run("unanimous not flagged", func(t *testing.T) {
		state := testutil.NewTestState(
			testutil.WithEvidence(commits),
			testutil.WithOpinions(
				testutil.Op(testutil.JudgeProsecutor, dimGit, 7),
				testutil.Op(testutil.JudgeDefense, dimGit, 7),
				testutil.Op(testutil.JudgeTechLead, dimGit, 7),
			),
		)
		dv := dimension(t, synthesize(t, rubric, state), dimGit)
		assert.False(t, dv.HasFlag(core.FlagHighVariance), "flags = %v", dv.Flags)
	})
}

func TestSynthesize_InvalidCitationDiscarded(t *testing.T) {
	state := testutil.NewTestState(
		testutil.WithEvidence(commits),
		testutil.WithOpinions(
			testutil.Op(testutil.JudgeProsecutor, dimGit, 9, "E-999"),
			testutil.Op(testutil.JudgeDefense, dimGit, 5, commits.ID),
			testutil.Op(testutil.JudgeTechLead, dimGit, 5, commits.ID),
		),
	)

	report := synthesize(t, testutil.NewTestRubric(), state)
	dv := dimension(t, report, dimGit)

	assert.InDelta(t, 5.0, dv.RawScore, 1e-9, "discarded opinion must not contribute")
	require.Len(t, dv.Events, 1)
	assert.Equal(t, core.RuleOfReference, dv.Events[0].Rule)
	assert.Equal(t, testutil.JudgeProsecutor, dv.Events[0].Judge)
	assert.Contains(t, dv.Events[0].Reason, "E-999")
	assert.True(t, dv.HasFlag(core.FlagRuleOfReference))
	assert.True(t, dv.HasFlag(core.FlagIncompleteDeliberation))
	assert.Equal(t, []string{testutil.JudgeProsecutor}, dv.AbsentJudges)
	assert.Len(t, report.Discarded, 1)
}

func TestSynthesize_OutOfScaleScoreDiscarded(t *testing.T) {
	state := testutil.NewTestState(
		testutil.WithEvidence(commits),
		testutil.WithOpinions(
			testutil.Op(testutil.JudgeProsecutor, dimGit, 11),
			testutil.Op(testutil.JudgeDefense, dimGit, 0),
			testutil.Op(testutil.JudgeTechLead, dimGit, 4),
		),
	)

	dv := dimension(t, synthesize(t, testutil.NewTestRubric(), state), dimGit)

	assert.InDelta(t, 4.0, dv.RawScore, 1e-9)
	assert.Len(t, dv.Events, 2)
	for _, ev := range dv.Events {
		assert.Contains(t, ev.Reason, "outside scale 1..10")
	}
	assert.Len(t, dv.Opinions, 1)
}

func TestSynthesize_UnknownJudgeDiscarded(t *testing.T) {
	state := testutil.NewTestState(
		testutil.WithEvidence(commits),
		testutil.WithOpinions(testutil.Op("bailiff", dimGit, 3)),
	)

	dv := dimension(t, synthesize(t, testutil.NewTestRubric(), state), dimGit)

	require.Len(t, dv.Events, 1)
	assert.Contains(t, dv.Events[0].Reason, "unknown judge")
	assert.True(t, dv.HasFlag(core.FlagNoDeliberation))
}

func TestSynthesize_AllAbsent(t *testing.T) {
	state := testutil.NewTestState(testutil.WithEvidence(unsafeCall, commits))

	report := synthesize(t, testutil.NewTestRubric(), state)

	for _, dv := range report.Dimensions {
		assert.Equal(t, 1.0, dv.Score, dv.DimensionID)
		assert.True(t, dv.HasFlag(core.FlagNoDeliberation), dv.DimensionID)
		assert.False(t, dv.HasFlag(core.FlagIncompleteDeliberation), dv.DimensionID)
		assert.Len(t, dv.AbsentJudges, 3)
		assert.Equal(t, "No valid opinions were submitted.", dv.RationaleSummary)
	}

	// Rules still run on the absent dimension.
	safety := dimension(t, report, dimSafety)
	assert.True(t, safety.HasFlag("security violation"))
}

func TestSynthesize_TechLeadWeighting(t *testing.T) {
	rubric := testutil.NewTestRubric(func(r *core.Rubric) {
		r.Dimensions[1].JudgeWeights = map[string]float64{
			testutil.JudgeProsecutor: 0.25,
			testutil.JudgeDefense:    0.25,
			testutil.JudgeTechLead:   0.5,
		}
		r.Dimensions[1].DissentThreshold = 10
	})

	t.Run("all present", func(t *testing.T) {
		state := testutil.NewTestState(testutil.WithOpinions(
			testutil.Op(testutil.JudgeProsecutor, dimGit, 2),
			testutil.Op(testutil.JudgeDefense, dimGit, 8),
			testutil.Op(testutil.JudgeTechLead, dimGit, 6),
		))
		dv := dimension(t, synthesize(t, rubric, state), dimGit)
		assert.InDelta(t, 5.5, dv.RawScore, 1e-9)
	})

	t.Run("tech lead absent re-normalizes", func(t *testing.T) {
		state := testutil.NewTestState(testutil.WithOpinions(
			testutil.Op(testutil.JudgeProsecutor, dimGit, 2),
			testutil.Op(testutil.JudgeDefense, dimGit, 8),
		))
		dv := dimension(t, synthesize(t, rubric, state), dimGit)
		assert.InDelta(t, 5.0, dv.RawScore, 1e-9)
		assert.True(t, dv.HasFlag(core.FlagIncompleteDeliberation))
	})
}

func TestSynthesize_RepeatedJudgeUsesMean(t *testing.T) {
	state := testutil.NewTestState(testutil.WithOpinions(
		testutil.Op(testutil.JudgeProsecutor, dimGit, 4),
		core.Opinion{Judge: testutil.JudgeProsecutor, DimensionID: dimGit, Score: 6, Rationale: "second look"},
		testutil.Op(testutil.JudgeDefense, dimGit, 5),
		testutil.Op(testutil.JudgeTechLead, dimGit, 5),
	))

	dv := dimension(t, synthesize(t, testutil.NewTestRubric(), state), dimGit)
	assert.InDelta(t, 5.0, dv.RawScore, 1e-9)
	assert.Len(t, dv.Opinions, 4)
}

func TestSynthesize_PenalizeFloorsAtScaleMin(t *testing.T) {
	rubric := testutil.NewTestRubric(func(r *core.Rubric) {
		r.Dimensions[1].Rules = []core.SynthesisRule{{
			ID:       "no-history",
			Priority: 1,
			When:     core.Predicate{Kind: core.PredEvidenceMissing, Category: "git", Finding: "commit-progression"},
			Then:     core.Penalize(5),
		}}
	})
	state := testutil.NewTestState(testutil.WithOpinions(
		testutil.Op(testutil.JudgeProsecutor, dimGit, 3),
		testutil.Op(testutil.JudgeDefense, dimGit, 3),
		testutil.Op(testutil.JudgeTechLead, dimGit, 3),
	))

	dv := dimension(t, synthesize(t, rubric, state), dimGit)
	assert.Equal(t, 1.0, dv.Score)
	assert.Equal(t, []string{"no-history"}, dv.RulesFired)
}

func TestSynthesize_RulesComposeInPriorityOrder(t *testing.T) {
	always := core.Predicate{Kind: core.PredEvidencePresent, Category: "git"}
	rubric := testutil.NewTestRubric(func(r *core.Rubric) {
		// Declared out of order on purpose.
		r.Dimensions[1].Rules = []core.SynthesisRule{
			{ID: "cap-low", Priority: 30, When: always, Then: core.Cap(4)},
			{ID: "penalize", Priority: 20, When: always, Then: core.Penalize(1)},
			{ID: "cap-high", Priority: 10, When: always, Then: core.Cap(6)},
		}
	})
	state := testutil.NewTestState(
		testutil.WithEvidence(commits),
		testutil.WithOpinions(
			testutil.Op(testutil.JudgeProsecutor, dimGit, 9),
			testutil.Op(testutil.JudgeDefense, dimGit, 9),
			testutil.Op(testutil.JudgeTechLead, dimGit, 9),
		),
	)

	dv := dimension(t, synthesize(t, rubric, state), dimGit)
	// 9 -> cap 6 -> 5 -> cap 4
	assert.Equal(t, 4.0, dv.Score)
	assert.Equal(t, []string{"cap-high", "penalize", "cap-low"}, dv.RulesFired)
}

func TestSynthesize_LevelsSnapDown(t *testing.T) {
	rubric := testutil.NewTestRubric(func(r *core.Rubric) {
		r.Dimensions[1].Levels = []int{1, 3, 5, 8, 10}
	})
	state := testutil.NewTestState(testutil.WithOpinions(
		testutil.Op(testutil.JudgeProsecutor, dimGit, 7),
		testutil.Op(testutil.JudgeDefense, dimGit, 8),
		testutil.Op(testutil.JudgeTechLead, dimGit, 7),
	))

	dv := dimension(t, synthesize(t, rubric, state), dimGit)
	assert.InDelta(t, 22.0/3, dv.RawScore, 1e-9)
	assert.Equal(t, 5.0, dv.Score)
}

func TestSynthesize_OverallScore(t *testing.T) {
	state := testutil.NewTestState(
		testutil.WithEvidence(unsafeCall, commits),
		testutil.WithOpinions(
			testutil.Op(testutil.JudgeProsecutor, dimSafety, 7),
			testutil.Op(testutil.JudgeDefense, dimSafety, 8),
			testutil.Op(testutil.JudgeTechLead, dimSafety, 6),
			testutil.Op(testutil.JudgeProsecutor, dimGit, 8),
			testutil.Op(testutil.JudgeDefense, dimGit, 8),
			testutil.Op(testutil.JudgeTechLead, dimGit, 8),
		),
	)

	report := synthesize(t, testutil.NewTestRubric(), state)

	// safety capped to 2, git stays at 8
	assert.InDelta(t, 5.0, report.OverallScore, 1e-9)
	assert.InDelta(t, 100*(1.0/9+7.0/9)/2, report.OverallPercent, 1e-9)
	require.Len(t, report.Remediation, 1)
	assert.Contains(t, report.Remediation[0], "Safe Tool Engineering")
	assert.Contains(t, report.Remediation[0], "security-override")
	assert.Equal(t, fixedClock(), report.CreatedAt)
}

func TestSynthesize_Deterministic(t *testing.T) {
	build := func(order []int) *core.AgentState {
		ops := []core.Opinion{
			testutil.Op(testutil.JudgeProsecutor, dimGit, 3, commits.ID),
			testutil.Op(testutil.JudgeDefense, dimGit, 9, commits.ID),
			testutil.Op(testutil.JudgeTechLead, dimGit, 6),
			testutil.Op(testutil.JudgeTechLead, dimSafety, 7, "E-999"),
		}
		permuted := make([]core.Opinion, 0, len(ops))
		for _, i := range order {
			permuted = append(permuted, ops[i])
		}
		return testutil.NewTestState(
			testutil.WithEvidence(unsafeCall, commits),
			testutil.WithOpinions(permuted...),
		)
	}

	a := synthesize(t, testutil.NewTestRubric(), build([]int{0, 1, 2, 3}))
	b := synthesize(t, testutil.NewTestRubric(), build([]int{3, 2, 1, 0}))

	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("synthesis depends on opinion order (-a +b):\n%s", diff)
	}
}

func TestSynthesize_Monotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	predicates := []core.Predicate{
		{Kind: core.PredEvidencePresent, Category: "git"},
		{Kind: core.PredEvidenceMissing, Category: "security"},
		{Kind: core.PredJudgeScoreAbove, Judge: testutil.JudgeDefense, Value: 5},
		{Kind: core.PredJudgeScoreBelow, Judge: testutil.JudgeProsecutor, Value: 5},
		{Kind: core.PredOpinionSpreadAbove, Value: 3},
		{Kind: core.PredConfidenceBelow, Category: "git", Value: 0.5},
	}
	consequence := func() core.Consequence {
		switch rng.Intn(3) {
		case 0:
			return core.Cap(float64(1 + rng.Intn(10)))
		case 1:
			return core.Penalize(float64(1 + rng.Intn(4)))
		default:
			return core.Flag("random")
		}
	}

	for i := 0; i < 500; i++ {
		var rules []core.SynthesisRule
		for p := 0; p < rng.Intn(5); p++ {
			rules = append(rules, core.SynthesisRule{
				ID:       "r",
				Priority: p,
				When:     predicates[rng.Intn(len(predicates))],
				Then:     consequence(),
			})
		}
		rubric := testutil.NewTestRubric(func(r *core.Rubric) {
			r.Dimensions[1].Rules = rules
		})

		var ops []core.Opinion
		for _, judge := range []string{testutil.JudgeProsecutor, testutil.JudgeDefense, testutil.JudgeTechLead} {
			if rng.Intn(4) == 0 {
				continue
			}
			ops = append(ops, testutil.Op(judge, dimGit, 1+rng.Intn(10)))
		}
		ev := testutil.Ev("git", "commit-progression")
		ev.Confidence = rng.Float64()
		state := testutil.NewTestState(testutil.WithEvidence(ev), testutil.WithOpinions(ops...))

		dv := dimension(t, synthesize(t, rubric, state), dimGit)
		require.LessOrEqual(t, dv.Score, dv.RawScore, "iteration %d rules %v", i, rules)
		require.GreaterOrEqual(t, dv.Score, 1.0, "iteration %d", i)
	}
}

func TestRuleContext_Eval(t *testing.T) {
	lowConf := core.Evidence{ID: "doc:concept-x", Category: "theory", Finding: "concept-x", Found: true, Confidence: 0.3}
	missing := core.Evidence{ID: "doc:report-present", Category: "report", Finding: "report-present", Found: false}
	errItem := core.WorkerFailure{Stage: "evidence", Worker: "vision", Reason: "boom"}.AsEvidence()

	rc := ruleContext{
		evidence: core.NewEvidenceSnapshot(map[core.Category][]core.Evidence{
			"theory":           {lowConf},
			"report":           {missing},
			core.CategoryError: {errItem},
		}),
		normalized: map[string]float64{"doc:concept-x": 0.3},
		opinions: []core.Opinion{
			{Judge: "defense", Score: 8},
			{Judge: "prosecutor", Score: 2},
		},
	}

	tests := []struct {
		name string
		p    core.Predicate
		want bool
	}{
		{"present", core.Predicate{Kind: core.PredEvidencePresent, Category: "theory"}, true},
		{"present finding mismatch", core.Predicate{Kind: core.PredEvidencePresent, Category: "theory", Finding: "concept-y"}, false},
		{"not found is not present", core.Predicate{Kind: core.PredEvidencePresent, Category: "report"}, false},
		{"error category never present", core.Predicate{Kind: core.PredEvidencePresent, Category: core.CategoryError}, false},
		{"missing", core.Predicate{Kind: core.PredEvidenceMissing, Category: "report", Finding: "report-present"}, true},
		{"confidence below", core.Predicate{Kind: core.PredConfidenceBelow, Category: "theory", Value: 0.5}, true},
		{"confidence not below", core.Predicate{Kind: core.PredConfidenceBelow, Category: "theory", Value: 0.2}, false},
		{"empty category has no confidence", core.Predicate{Kind: core.PredConfidenceBelow, Category: "diagram", Value: 0.1}, true},
		{"judge above", core.Predicate{Kind: core.PredJudgeScoreAbove, Judge: "defense", Value: 7}, true},
		{"judge below", core.Predicate{Kind: core.PredJudgeScoreBelow, Judge: "prosecutor", Value: 3}, true},
		{"absent judge never matches", core.Predicate{Kind: core.PredJudgeScoreBelow, Judge: "tech_lead", Value: 11}, false},
		{"spread above", core.Predicate{Kind: core.PredOpinionSpreadAbove, Value: 5}, true},
		{"spread not above", core.Predicate{Kind: core.PredOpinionSpreadAbove, Value: 6}, false},
		{"all", core.Predicate{Kind: core.PredAll, Of: []core.Predicate{
			{Kind: core.PredEvidencePresent, Category: "theory"},
			{Kind: core.PredJudgeScoreAbove, Judge: "defense", Value: 7},
		}}, true},
		{"any", core.Predicate{Kind: core.PredAny, Of: []core.Predicate{
			{Kind: core.PredEvidencePresent, Category: "report"},
			{Kind: core.PredEvidenceMissing, Category: "diagram"},
		}}, true},
		{"not", core.Predicate{Kind: core.PredNot, Of: []core.Predicate{
			{Kind: core.PredEvidencePresent, Category: "theory"},
		}}, false},
		{"unknown kind", core.Predicate{Kind: "bogus"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rc.eval(tt.p))
		})
	}
}

func TestApplyConsequence(t *testing.T) {
	assert.Equal(t, 2.0, applyConsequence(7, core.Cap(2), 1))
	assert.Equal(t, 5.0, applyConsequence(5, core.Cap(9), 1))
	assert.Equal(t, 4.0, applyConsequence(6, core.Penalize(2), 1))
	assert.Equal(t, 1.0, applyConsequence(2, core.Penalize(5), 1))
	assert.Equal(t, 6.0, applyConsequence(6, core.Flag("x"), 1))
}

func TestSnapDown(t *testing.T) {
	levels := []int{1, 3, 5, 8, 10}
	assert.Equal(t, 5.0, snapDown(7.9, levels, 1))
	assert.Equal(t, 8.0, snapDown(8, levels, 1))
	assert.Equal(t, 1.0, snapDown(2, []int{3, 5}, 1))
}
