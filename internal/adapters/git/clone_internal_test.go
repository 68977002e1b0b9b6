package git

import (
	"errors"
	"testing"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
)

func TestClassifyCloneError(t *testing.T) {
	cause := errors.New("exit status 128")
	tests := []struct {
		name      string
		stderr    string
		category  core.ErrorCategory
		retryable bool
	}{
		{"not found", "remote: Repository not found.", core.ErrCatNotFound, false},
		{"auth", "fatal: Authentication failed for 'https://x'", core.ErrCatValidation, false},
		{"dns", "fatal: unable to access 'https://x/': Could not resolve host: x", core.ErrCatNetwork, true},
		{"other", "fatal: something odd", core.ErrCatExecution, true},
		{"local path", "fatal: '/tmp/x' does not appear to be a git repository", core.ErrCatNotFound, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyCloneError("https://x", tt.stderr, cause)
			if got := core.GetCategory(err); got != tt.category {
				t.Errorf("category = %s, want %s", got, tt.category)
			}
			if got := core.IsRetryable(err); got != tt.retryable {
				t.Errorf("retryable = %v, want %v", got, tt.retryable)
			}
			if !errors.Is(err, cause) {
				t.Error("cause should be wrapped")
			}
		})
	}
}

func TestParseLog_SkipsMalformed(t *testing.T) {
	out := "abc123\x1fAnn\x1fann@x\x1ffirst | with a pipe\x1f2026-01-02T03:04:05+00:00\x1e\n" +
		"not a commit line\x1e\n" +
		"def456\x1fBob\x1fbob@x\x1fbad date\x1fyesterday\x1e\n"
	commits := parseLog(out)
	if len(commits) != 1 {
		t.Fatalf("len = %d, want 1", len(commits))
	}
	if commits[0].Subject != "first | with a pipe" || commits[0].Date.Year() != 2026 {
		t.Errorf("commit = %+v", commits[0])
	}
}
