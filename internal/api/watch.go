package api

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
	"github.com/hugo-lorenzo-mato/tribunal/internal/logging"
)

// RubricLoader loads and validates a rubric file.
type RubricLoader func(path string) (*core.Rubric, error)

// RubricWatcher reloads the rubric when its file changes. A rubric that fails
// to load is logged and ignored, so the last good rubric stays in effect.
type RubricWatcher struct {
	path     string
	load     RubricLoader
	apply    func(*core.Rubric)
	debounce time.Duration
	logger   *logging.Logger
	watcher  *fsnotify.Watcher
}

// NewRubricWatcher watches path. apply receives every rubric that loads.
func NewRubricWatcher(path string, load RubricLoader, apply func(*core.Rubric), logger *logging.Logger) (*RubricWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	// Editors replace files by renaming, so the directory is watched.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &RubricWatcher{
		path:     abs,
		load:     load,
		apply:    apply,
		debounce: 200 * time.Millisecond,
		logger:   logger,
		watcher:  w,
	}, nil
}

// Run processes file events until ctx is done.
func (rw *RubricWatcher) Run(ctx context.Context) {
	defer rw.watcher.Close()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-rw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != rw.path || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(rw.debounce)
			fire = timer.C
		case err, ok := <-rw.watcher.Errors:
			if !ok {
				return
			}
			rw.logger.Warn("rubric watcher error", "error", err)
		case <-fire:
			fire = nil
			rw.reload()
		}
	}
}

func (rw *RubricWatcher) reload() {
	r, err := rw.load(rw.path)
	if err != nil {
		rw.logger.Error("rubric reload rejected; keeping the previous rubric", "path", rw.path, "error", err)
		return
	}
	rw.apply(r)
	rw.logger.Info("rubric reloaded", "path", rw.path, "rubric", r.Name, "dimensions", len(r.Dimensions))
}
