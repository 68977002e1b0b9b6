// Package git runs the git CLI to clone audit targets and read their history.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
)

// DefaultCommandTimeout bounds every git invocation of a Client.
const DefaultCommandTimeout = 30 * time.Second

// Client reads one local checkout.
type Client struct {
	dir     string
	timeout time.Duration
}

// NewClient opens the checkout at dir. It fails with a validation error when
// dir is not inside a git work tree.
func NewClient(dir string) (*Client, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	c := &Client{dir: abs, timeout: DefaultCommandTimeout}
	if _, err := c.git(context.Background(), "rev-parse", "--git-dir"); err != nil {
		return nil, core.ErrValidation("NOT_GIT_REPO", abs+" is not a git repository").WithCause(err)
	}
	return c, nil
}

// RepoPath is the absolute checkout directory.
func (c *Client) RepoPath() string { return c.dir }

// WithTimeout returns a copy whose commands are bounded by d.
func (c *Client) WithTimeout(d time.Duration) *Client {
	cp := *c
	cp.timeout = d
	return &cp
}

func (c *Client) git(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.dir
	cmd.Stdout, cmd.Stderr = &stdout, &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", core.ErrTimeout(fmt.Sprintf("git %s exceeded %s", args[0], c.timeout))
		}
		return "", fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(stderr.String()), err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// CurrentCommit returns the full hash of HEAD.
func (c *Client) CurrentCommit(ctx context.Context) (string, error) {
	return c.git(ctx, "rev-parse", "HEAD")
}

// CommitCount counts commits reachable from HEAD. In a shallow clone this is
// the fetched depth, not the real history length.
func (c *Client) CommitCount(ctx context.Context) (int, error) {
	out, err := c.git(ctx, "rev-list", "--count", "HEAD")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(out)
	if err != nil {
		return 0, fmt.Errorf("parsing commit count %q: %w", out, err)
	}
	return n, nil
}

// IsShallow reports whether the checkout has truncated history.
func (c *Client) IsShallow(ctx context.Context) (bool, error) {
	out, err := c.git(ctx, "rev-parse", "--is-shallow-repository")
	return out == "true", err
}

// Fields are separated by US (0x1f) and records by RS (0x1e) so subjects may
// contain any printable character.
const (
	fieldSep  = "\x1f"
	recordSep = "\x1e"
	logFormat = "--format=%H%x1f%an%x1f%ae%x1f%s%x1f%cI%x1e"
)

// Log returns up to n commits, newest first. n <= 0 returns all of them.
func (c *Client) Log(ctx context.Context, n int) ([]Commit, error) {
	args := []string{"log", logFormat}
	if n > 0 {
		args = append(args, "-n", strconv.Itoa(n))
	}
	out, err := c.git(ctx, args...)
	if err != nil {
		return nil, err
	}
	return parseLog(out), nil
}

// parseLog decodes Log output, skipping records that do not have every
// field or whose date does not parse.
func parseLog(out string) []Commit {
	var commits []Commit
	for _, rec := range strings.Split(out, recordSep) {
		f := strings.Split(strings.TrimSpace(rec), fieldSep)
		if len(f) != 5 {
			continue
		}
		date, err := time.Parse(time.RFC3339, f[4])
		if err != nil {
			continue
		}
		commits = append(commits, Commit{Hash: f[0], AuthorName: f[1], AuthorEmail: f[2], Subject: f[3], Date: date})
	}
	return commits
}

// Commit is one entry of the history.
type Commit struct {
	Hash        string
	AuthorName  string
	AuthorEmail string
	Subject     string
	Date        time.Time
}

// ShortHash is the 7-character abbreviation used in evidence excerpts.
func (c Commit) ShortHash() string {
	if len(c.Hash) > 7 {
		return c.Hash[:7]
	}
	return c.Hash
}

// Span returns the time between the oldest and newest of commits, in any
// order. Fewer than two commits span nothing.
func Span(commits []Commit) time.Duration {
	if len(commits) < 2 {
		return 0
	}
	first, last := commits[0].Date, commits[0].Date
	for _, c := range commits[1:] {
		if c.Date.Before(first) {
			first = c.Date
		}
		if c.Date.After(last) {
			last = c.Date
		}
	}
	return last.Sub(first)
}
