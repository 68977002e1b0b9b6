package git

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
)

// CloneOptions configures a clone.
type CloneOptions struct {
	// Depth limits the fetched history. Zero clones everything.
	Depth int
	// Timeout bounds the whole clone. Zero means five minutes.
	Timeout time.Duration
}

var (
	httpsRemote = regexp.MustCompile(`^https?://[A-Za-z0-9.\-]+(:[0-9]+)?/[A-Za-z0-9_.\-/~]+$`)
	sshRemote   = regexp.MustCompile(`^(ssh://)?[A-Za-z0-9_.\-]+@[A-Za-z0-9.\-]+[:/][A-Za-z0-9_.\-/~]+$`)
)

// IsRemote reports whether target looks like a remote repository URL rather
// than a local path.
func IsRemote(target string) bool {
	return strings.HasPrefix(target, "http://") ||
		strings.HasPrefix(target, "https://") ||
		strings.HasPrefix(target, "ssh://") ||
		strings.HasPrefix(target, "file://") ||
		strings.HasPrefix(target, "git@")
}

// ValidateRemoteURL rejects URLs that could be interpreted as git options or
// that carry characters outside a plain repository address.
func ValidateRemoteURL(url string) error {
	if strings.HasPrefix(url, "-") {
		return core.ErrValidation(core.CodeInvalidTarget, "repository URL must not start with '-'")
	}
	if httpsRemote.MatchString(url) || sshRemote.MatchString(url) || strings.HasPrefix(url, "file:///") {
		return nil
	}
	return core.ErrValidation(core.CodeInvalidTarget, fmt.Sprintf("unsupported repository URL %q", url))
}

// Clone clones url into dest, which must not exist or be empty. The process
// runs without a shell and with terminal prompts disabled so a private
// repository fails fast instead of hanging on credentials.
func Clone(ctx context.Context, url, dest string, opts CloneOptions) (*Client, error) {
	if err := ValidateRemoteURL(url); err != nil {
		return nil, err
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{"clone", "--quiet", "--no-tags"}
	if opts.Depth > 0 {
		args = append(args, "--depth", strconv.Itoa(opts.Depth))
	}
	args = append(args, "--", url, dest)

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, core.ErrTimeout(fmt.Sprintf("cloning %s timed out after %s", url, timeout))
		}
		return nil, classifyCloneError(url, stderr.String(), err)
	}

	client, err := NewClient(dest)
	if err != nil {
		return nil, err
	}
	return client.WithTimeout(timeout), nil
}

// classifyCloneError maps git's stderr to a domain error. Missing repositories
// and auth failures are not retryable.
func classifyCloneError(url, stderr string, cause error) error {
	lower := strings.ToLower(stderr)
	msg := strings.TrimSpace(stderr)
	if msg == "" {
		msg = cause.Error()
	}
	switch {
	case strings.Contains(lower, "repository not found"), strings.Contains(lower, "404"),
		strings.Contains(lower, "does not exist"), strings.Contains(lower, "does not appear to be a git repository"):
		return core.ErrNotFound("repository", url).WithCause(cause)
	case strings.Contains(lower, "authentication failed"), strings.Contains(lower, "permission denied"),
		strings.Contains(lower, "could not read username"):
		return core.ErrValidation(core.CodeCloneFailed, "access denied: "+msg).WithCause(cause)
	case strings.Contains(lower, "could not resolve host"), strings.Contains(lower, "connection timed out"),
		strings.Contains(lower, "connection refused"), strings.Contains(lower, "unable to access"):
		return core.ErrNetwork(msg).WithCause(cause)
	default:
		return core.ErrExecution(core.CodeCloneFailed, msg).WithCause(cause)
	}
}
