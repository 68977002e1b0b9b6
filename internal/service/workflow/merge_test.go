package workflow

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
	"github.com/hugo-lorenzo-mato/tribunal/internal/testutil"
)

func evidencePartitions() []Partition[core.Evidence] {
	return []Partition[core.Evidence]{
		{Worker: "repo", Items: []core.Evidence{
			{ID: "repo:commit-count", Producer: "repo", Category: "git", Finding: "commit-count", Found: true, Confidence: 1},
			{ID: "repo:unsafe-call", Producer: "repo", Category: "security", Finding: "unsafe-call-detected", Found: true, Confidence: 0.9},
			{ID: "repo:state-model", Producer: "repo", Category: "state", Finding: "typed-state", Found: true, Confidence: 0.8},
		}},
		{Worker: "doc", Items: []core.Evidence{
			{ID: "doc:concept-fan-in", Producer: "doc", Category: "concepts", Finding: "fan-in", Found: false, Confidence: 0.4},
			{ID: "doc:paths", Producer: "doc", Category: "report", Finding: "path-hallucination", Found: true, Confidence: 0.7},
		}},
		{Worker: "vision", Items: []core.Evidence{
			{ID: "vision:diagram", Producer: "vision", Category: "diagram", Finding: "diagram-present", Found: false},
		}},
	}
}

func mergedEvidence(order []int, failures []core.WorkerFailure) *core.AgentState {
	parts := evidencePartitions()
	permuted := make([]Partition[core.Evidence], len(order))
	for i, idx := range order {
		permuted[i] = parts[idx]
	}
	state := testutil.NewTestState()
	MergeEvidence(state, permuted, failures)
	return state
}

func TestMergeEvidence_OrderIndependent(t *testing.T) {
	failures := []core.WorkerFailure{
		{Stage: StageEvidence, Worker: "clone", Reason: "network unreachable", Attempts: 2},
	}
	want := mergedEvidence([]int{0, 1, 2}, failures)

	for _, order := range [][]int{{0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}} {
		got := mergedEvidence(order, failures)
		if diff := cmp.Diff(want.Evidence, got.Evidence); diff != "" {
			t.Errorf("order %v: evidence mismatch (-want +got):\n%s", order, diff)
		}
		if diff := cmp.Diff(want.Failures, got.Failures); diff != "" {
			t.Errorf("order %v: failures mismatch (-want +got):\n%s", order, diff)
		}
	}
}

func TestMergeEvidence_Associative(t *testing.T) {
	parts := evidencePartitions()

	left := ReduceEvidence(ReduceEvidence(nil, parts[0].Items), append(append([]core.Evidence{}, parts[1].Items...), parts[2].Items...))
	right := ReduceEvidence(ReduceEvidence(ReduceEvidence(nil, parts[2].Items), parts[1].Items), parts[0].Items)

	if diff := cmp.Diff(left, right); diff != "" {
		t.Errorf("grouping changed the result (-left +right):\n%s", diff)
	}
}

func TestMergeEvidence_FailuresBecomeErrorItems(t *testing.T) {
	state := mergedEvidence([]int{0}, []core.WorkerFailure{
		{Stage: StageEvidence, Worker: "vision", Reason: "model unavailable", Attempts: 2},
	})

	errs := state.Evidence[core.CategoryError]
	require.Len(t, errs, 1)
	assert.Equal(t, "error:vision", errs[0].ID)
	assert.Equal(t, "vision", errs[0].Producer)
	assert.Equal(t, "model unavailable", errs[0].Rationale)
	assert.False(t, errs[0].Found)
	require.Len(t, state.Failures, 1)
	assert.Equal(t, 3, state.FindingCount())
}

func TestMergeEvidence_CategoriesSortedByID(t *testing.T) {
	state := testutil.NewTestState()
	MergeEvidence(state, []Partition[core.Evidence]{
		{Worker: "b", Items: []core.Evidence{{ID: "b:2", Category: "git"}, {ID: "b:1", Category: "git"}}},
		{Worker: "a", Items: []core.Evidence{{ID: "a:9", Category: "git"}}},
	}, nil)

	var ids []string
	for _, e := range state.Evidence["git"] {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"a:9", "b:1", "b:2"}, ids)
}

func TestReduceEvidence_DuplicateIDsResolveCanonically(t *testing.T) {
	low := core.Evidence{ID: "repo:x", Category: "git", Finding: "x", Confidence: 0.2}
	high := core.Evidence{ID: "repo:x", Category: "git", Finding: "x", Confidence: 0.9}

	a := ReduceEvidence(ReduceEvidence(nil, []core.Evidence{low}), []core.Evidence{high})
	b := ReduceEvidence(ReduceEvidence(nil, []core.Evidence{high}), []core.Evidence{low})

	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("duplicate resolution depends on order:\n%s", diff)
	}
	require.Len(t, a["git"], 1)
}

func TestReduceEvidence_KeepsExistingState(t *testing.T) {
	acc := map[core.Category][]core.Evidence{
		"git": {testutil.Ev("git", "commit-count")},
	}
	out := ReduceEvidence(acc, []core.Evidence{testutil.Ev("security", "unsafe-call-detected")})

	assert.Len(t, out["git"], 1)
	assert.Len(t, out["security"], 1)
}

func TestMergeOpinions_DedupesAndSorts(t *testing.T) {
	dim := "git_forensic_analysis"
	parts := []Partition[core.Opinion]{
		{Worker: testutil.JudgeTechLead, Items: []core.Opinion{testutil.Op(testutil.JudgeTechLead, dim, 6)}},
		{Worker: testutil.JudgeDefense, Items: []core.Opinion{
			testutil.Op(testutil.JudgeDefense, dim, 8),
			testutil.Op(testutil.JudgeDefense, dim, 8),
		}},
		{Worker: testutil.JudgeProsecutor, Items: []core.Opinion{testutil.Op(testutil.JudgeProsecutor, dim, 3)}},
	}
	failures := []core.WorkerFailure{{Stage: StageOpinion, Worker: "ghost", Reason: "timeout", Attempts: 2}}

	state := testutil.NewTestState()
	MergeOpinions(state, parts, failures)

	got := state.Opinions[dim]
	require.Len(t, got, 3)
	assert.Equal(t, testutil.JudgeDefense, got[0].Judge)
	assert.Equal(t, testutil.JudgeProsecutor, got[1].Judge)
	assert.Equal(t, testutil.JudgeTechLead, got[2].Judge)
	assert.Equal(t, failures, state.FailuresIn(StageOpinion))
}

func TestMergeOpinions_OrderIndependent(t *testing.T) {
	var all []core.Opinion
	for _, j := range []string{testutil.JudgeProsecutor, testutil.JudgeDefense, testutil.JudgeTechLead} {
		for _, d := range []string{"safe_tool_engineering", "git_forensic_analysis"} {
			all = append(all, testutil.Op(j, d, len(j)%10+1, "test:x"))
		}
	}
	build := func(items []core.Opinion) map[string][]core.Opinion {
		var parts []Partition[core.Opinion]
		for i := 0; i < len(items); i += 2 {
			end := i + 2
			if end > len(items) {
				end = len(items)
			}
			parts = append(parts, Partition[core.Opinion]{Items: items[i:end]})
		}
		state := testutil.NewTestState()
		MergeOpinions(state, parts, nil)
		return state.Opinions
	}

	want := build(all)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]core.Opinion{}, all...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		if diff := cmp.Diff(want, build(shuffled)); diff != "" {
			t.Fatalf("shuffle %d changed merged opinions (-want +got):\n%s", i, diff)
		}
	}
}

func TestReduceFailures_UnionSorted(t *testing.T) {
	a := core.WorkerFailure{Stage: StageOpinion, Worker: "z", Reason: "r"}
	b := core.WorkerFailure{Stage: StageEvidence, Worker: "y", Reason: "r"}

	got := ReduceFailures([]core.WorkerFailure{a}, []core.WorkerFailure{b, a})

	assert.Equal(t, []core.WorkerFailure{b, a}, got)
}
