// Package detective holds the evidence producers (repository, document and
// vision) and the materializer that gives them a local checkout to read.
package detective

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hugo-lorenzo-mato/tribunal/internal/adapters/git"
	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
	"github.com/hugo-lorenzo-mato/tribunal/internal/logging"
)

// Materializer resolves a target to a local checkout. Local directories are
// used in place; remote URLs are shallow-cloned into a scratch directory that
// the returned cleanup removes.
type Materializer struct {
	depth   int
	timeout time.Duration
	tempDir string
	logger  *logging.Logger
}

// MaterializerOption configures the materializer.
type MaterializerOption func(*Materializer)

// WithCloneDepth limits the cloned history. Zero clones everything.
func WithCloneDepth(depth int) MaterializerOption {
	return func(m *Materializer) {
		m.depth = depth
	}
}

// WithCloneTimeout bounds the clone.
func WithCloneTimeout(d time.Duration) MaterializerOption {
	return func(m *Materializer) {
		m.timeout = d
	}
}

// WithTempDir sets the parent of scratch checkouts. Empty uses os.TempDir.
func WithTempDir(dir string) MaterializerOption {
	return func(m *Materializer) {
		m.tempDir = dir
	}
}

// WithMaterializerLogger sets the logger.
func WithMaterializerLogger(l *logging.Logger) MaterializerOption {
	return func(m *Materializer) {
		m.logger = l
	}
}

// NewMaterializer creates a materializer.
func NewMaterializer(opts ...MaterializerOption) *Materializer {
	m := &Materializer{
		depth:   50,
		timeout: 5 * time.Minute,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Materialize prepares the snapshot shared by every evidence producer.
func (m *Materializer) Materialize(ctx context.Context, target core.Target, rubric *core.Rubric) (core.TargetSnapshot, func(), error) {
	snap := core.TargetSnapshot{
		RepoURL:    target.RepoURL,
		ReportPath: target.ReportPath,
		Rubric:     rubric,
	}
	noop := func() {}

	if snap.ReportPath != "" {
		if abs, err := filepath.Abs(snap.ReportPath); err == nil {
			snap.ReportPath = abs
		}
	}

	if !git.IsRemote(target.RepoURL) {
		abs, err := filepath.Abs(target.RepoURL)
		if err != nil {
			return snap, noop, fmt.Errorf("resolving %s: %w", target.RepoURL, err)
		}
		info, err := os.Stat(abs)
		if err != nil || !info.IsDir() {
			return snap, noop, core.ErrValidation(core.CodeInvalidTarget, "target directory not found: "+target.RepoURL)
		}
		snap.LocalPath = abs
		return snap, noop, nil
	}

	scratch, err := os.MkdirTemp(m.tempDir, "tribunal-")
	if err != nil {
		return snap, noop, fmt.Errorf("creating scratch directory: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(scratch); err != nil {
			m.logger.Warn("removing scratch checkout", "path", scratch, "error", err)
		}
	}

	dest := filepath.Join(scratch, "repo")
	m.logger.Info("cloning target", "url", target.RepoURL, "depth", m.depth)
	if _, err := git.Clone(ctx, target.RepoURL, dest, git.CloneOptions{Depth: m.depth, Timeout: m.timeout}); err != nil {
		cleanup()
		return snap, noop, err
	}
	snap.LocalPath = dest
	return snap, cleanup, nil
}
