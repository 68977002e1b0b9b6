package detective

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
	"github.com/hugo-lorenzo-mato/tribunal/internal/testutil"
)

func TestMaterializer_LocalDirectory(t *testing.T) {
	dir := t.TempDir()
	rubric := testutil.NewTestRubric()

	snap, cleanup, err := NewMaterializer().Materialize(context.Background(), core.Target{RepoURL: dir}, rubric)
	require.NoError(t, err)
	cleanup()

	assert.Equal(t, dir, snap.LocalPath)
	assert.Same(t, rubric, snap.Rubric)
	_, err = os.Stat(dir)
	assert.NoError(t, err, "cleanup must not remove a local target")
}

func TestMaterializer_MissingDirectory(t *testing.T) {
	_, cleanup, err := NewMaterializer().Materialize(context.Background(), core.Target{RepoURL: "/no/such/dir"}, nil)
	require.Error(t, err)
	require.NotNil(t, cleanup)
	cleanup()
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))
}

func TestMaterializer_ClonesRemoteAndCleansUp(t *testing.T) {
	src := testutil.NewGitRepo(t)
	src.CommitFiles("one", map[string]string{"a.py": "x = 1\n"})
	scratchParent := t.TempDir()

	m := NewMaterializer(WithCloneDepth(1), WithTempDir(scratchParent))
	snap, cleanup, err := m.Materialize(context.Background(), core.Target{RepoURL: "file://" + src.Path}, nil)
	require.NoError(t, err)

	_, err = os.Stat(snap.LocalPath + "/a.py")
	require.NoError(t, err)

	cleanup()
	entries, err := os.ReadDir(scratchParent)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch checkout should be removed")
}

func TestMaterializer_FailedCloneLeavesNoScratch(t *testing.T) {
	scratchParent := t.TempDir()
	m := NewMaterializer(WithTempDir(scratchParent))

	_, cleanup, err := m.Materialize(context.Background(), core.Target{RepoURL: "file:///no/such/repo"}, nil)
	require.Error(t, err)
	cleanup()

	entries, err := os.ReadDir(scratchParent)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
