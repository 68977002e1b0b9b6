package git_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/tribunal/internal/adapters/git"
	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
	"github.com/hugo-lorenzo-mato/tribunal/internal/testutil"
)

func TestGitClient_NewClient(t *testing.T) {
	repo := testutil.NewGitRepo(t)
	repo.WriteFile("README.md", "# Test")
	repo.Commit("Initial commit")

	client, err := git.NewClient(repo.Path)
	require.NoError(t, err)
	assert.Equal(t, repo.Path, client.RepoPath())
}

func TestGitClient_NewClient_NotARepo(t *testing.T) {
	_, err := git.NewClient(t.TempDir())
	assert.Error(t, err)
}

func TestGitClient_LogAndCount(t *testing.T) {
	repo := testutil.NewGitRepo(t)
	repo.Interval = 90 * time.Minute
	repo.CommitFiles("add state", map[string]string{"src/state.py": "x = 1\n"})
	repo.CommitFiles("add graph", map[string]string{"src/graph.py": "y = 2\n"})
	repo.CommitFiles("add tools", map[string]string{"src/tools/repo.py": "z = 3\n"})

	client, err := git.NewClient(repo.Path)
	require.NoError(t, err)
	ctx := context.Background()

	commits, err := client.Log(ctx, 0)
	require.NoError(t, err)
	require.Len(t, commits, 3)
	assert.Equal(t, "add tools", commits[0].Subject)
	assert.Equal(t, "add state", commits[2].Subject)
	assert.Equal(t, "test@example.com", commits[0].AuthorEmail)
	assert.Len(t, commits[0].ShortHash(), 7)
	assert.True(t, commits[0].Date.Equal(repo.CommitDate(2)), "got %s", commits[0].Date)
	assert.True(t, commits[2].Date.Equal(repo.CommitDate(0)), "got %s", commits[2].Date)

	assert.Equal(t, 3*time.Hour, git.Span(commits))

	limited, err := client.Log(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	count, err := client.CommitCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	head, err := client.CurrentCommit(ctx)
	require.NoError(t, err)
	assert.Equal(t, commits[0].Hash, head)
}

func TestClone_LocalFileURL(t *testing.T) {
	src := testutil.NewGitRepo(t)
	src.CommitFiles("one", map[string]string{"a.txt": "1"})
	src.CommitFiles("two", map[string]string{"b.txt": "2"})
	src.CommitFiles("three", map[string]string{"c.txt": "3"})

	dest := filepath.Join(t.TempDir(), "checkout")
	client, err := git.Clone(context.Background(), "file://"+src.Path, dest, git.CloneOptions{Depth: 2})
	require.NoError(t, err)

	count, err := client.CommitCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	shallow, err := client.IsShallow(context.Background())
	require.NoError(t, err)
	assert.True(t, shallow, "depth-limited clone should be shallow")
}

func TestClone_MissingRepository(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "checkout")
	missing := "file://" + filepath.Join(t.TempDir(), "nope")

	_, err := git.Clone(context.Background(), missing, dest, git.CloneOptions{})
	require.Error(t, err)
	assert.False(t, core.IsRetryable(err), "missing repository should not be retryable: %v", err)
}

func TestValidateRemoteURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://github.com/org/repo.git", false},
		{"https://github.com/org/repo", false},
		{"git@github.com:org/repo.git", false},
		{"ssh://git@example.com/org/repo.git", false},
		{"file:///tmp/repo", false},
		{"--upload-pack=touch /tmp/pwned", true},
		{"https://github.com/org/repo; rm -rf /", true},
		{"ftp://example.com/repo", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := git.ValidateRemoteURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsRemote(t *testing.T) {
	assert.True(t, git.IsRemote("https://github.com/org/repo"))
	assert.True(t, git.IsRemote("git@github.com:org/repo.git"))
	assert.False(t, git.IsRemote("/home/me/repo"))
	assert.False(t, git.IsRemote("./repo"))
}

func TestSpan(t *testing.T) {
	at := func(h int) git.Commit { return git.Commit{Date: time.Date(2026, 1, 1, h, 0, 0, 0, time.UTC)} }
	assert.Zero(t, git.Span(nil))
	assert.Zero(t, git.Span([]git.Commit{at(3)}))
	assert.Equal(t, 5*time.Hour, git.Span([]git.Commit{at(4), at(9), at(6)}))
}
