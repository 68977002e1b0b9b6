package detective

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanPython(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, auditedRepoFiles())

	scan, err := ScanPython(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 4, scan.Files, ".venv must be skipped")

	require.Len(t, scan.TypedState, 2)
	assert.Equal(t, "src/state.py", scan.TypedState[0].File)
	assert.Contains(t, scan.TypedStateSource, "class Evidence")
	assert.Len(t, scan.Reducers, 2)

	require.Len(t, scan.StateGraphs, 1)
	assert.Equal(t, 1, scan.ConditionalEdges)
	assert.Contains(t, scan.Edges, Edge{From: "START", To: "repo_investigator"})
	assert.Contains(t, scan.Edges, Edge{From: "doc_analyst", To: "evidence_aggregator"})
	assert.True(t, scan.FanOut())
	assert.True(t, scan.FanIn())

	calls := make([]string, 0, len(scan.Unsafe))
	for _, u := range scan.Unsafe {
		calls = append(calls, u.Call)
	}
	assert.ElementsMatch(t, []string{"subprocess.run(shell=True)", "os.system"}, calls)
	assert.Equal(t, "src/tools/repo.py", scan.Unsafe[0].At.File)

	assert.NotEmpty(t, scan.Sandboxed)
	require.Len(t, scan.Structured, 1)
	assert.Equal(t, "src/nodes/judges.py", scan.Structured[0].File)
	assert.Len(t, scan.Personas, 3)
}

func TestScanPython_LinearGraph(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"graph.py": "g = StateGraph(S)\ng.add_edge(START, 'a')\ng.add_edge('a', 'b')\ng.add_edge('b', END)\n",
	})

	scan, err := ScanPython(context.Background(), dir)
	require.NoError(t, err)

	assert.Len(t, scan.Edges, 3)
	assert.False(t, scan.FanOut())
	assert.False(t, scan.FanIn())
	assert.Empty(t, scan.Unsafe)
}

func TestScanPython_Empty(t *testing.T) {
	scan, err := ScanPython(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Zero(t, scan.Files)
	assert.Empty(t, scan.TypedState)
}

func TestScanPython_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"a.py": "x = 1\n"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ScanPython(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}
