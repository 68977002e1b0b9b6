package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"
)

// fixtureEpoch is the author date of the first commit in every fixture repo,
// so commit timelines are reproducible across runs.
var fixtureEpoch = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

// GitRepo is a throwaway repository used as an audit target in tests.
// Commits are dated fixtureEpoch, fixtureEpoch+Interval, and so on.
type GitRepo struct {
	Path     string
	Interval time.Duration

	t       testing.TB
	commits int
}

// NewGitRepo initializes an empty repository on branch main.
func NewGitRepo(t testing.TB) *GitRepo {
	t.Helper()
	r := &GitRepo{Path: t.TempDir(), Interval: time.Hour, t: t}
	r.git("init", "--quiet")
	r.git("symbolic-ref", "HEAD", "refs/heads/main")
	r.git("config", "user.email", "test@example.com")
	r.git("config", "user.name", "Test User")
	r.git("config", "commit.gpgsign", "false")
	return r
}

func (r *GitRepo) git(args ...string) string {
	r.t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = r.Path
	date := fixtureEpoch.Add(time.Duration(r.commits) * r.Interval).Format(time.RFC3339)
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_DATE="+date,
		"GIT_COMMITTER_DATE="+date,
		"GIT_CONFIG_NOSYSTEM=1",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		r.t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

// WriteFile writes name (slash separated, relative to the repo root)
// without staging it.
func (r *GitRepo) WriteFile(name, content string) {
	r.t.Helper()
	path := filepath.Join(r.Path, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		r.t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		r.t.Fatal(err)
	}
}

// Commit stages the whole tree and records a commit, returning its hash.
func (r *GitRepo) Commit(message string) string {
	r.t.Helper()
	r.git("add", "-A")
	r.git("commit", "--quiet", "--allow-empty", "-m", message)
	r.commits++
	return r.git("rev-parse", "HEAD")
}

// CommitFiles writes files in name order and commits them together.
func (r *GitRepo) CommitFiles(message string, files map[string]string) string {
	r.t.Helper()
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		r.WriteFile(name, files[name])
	}
	return r.Commit(message)
}

// CommitDate returns the author date the n-th commit (zero based) receives.
func (r *GitRepo) CommitDate(n int) time.Time {
	return fixtureEpoch.Add(time.Duration(n) * r.Interval)
}
