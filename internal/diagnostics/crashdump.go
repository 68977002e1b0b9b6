package diagnostics

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hugo-lorenzo-mato/tribunal/internal/events"
	"github.com/hugo-lorenzo-mato/tribunal/internal/fsutil"
	"github.com/hugo-lorenzo-mato/tribunal/internal/logging"
)

// DefaultMaxCrashDumps is used when the writer is created with maxFiles <= 0.
const DefaultMaxCrashDumps = 10

// CrashDump contains everything captured when an audit panics.
type CrashDump struct {
	Timestamp time.Time `json:"timestamp"`
	ProcessID int       `json:"process_id"`
	GoVersion string    `json:"go_version"`
	GOOS      string    `json:"goos"`
	GOARCH    string    `json:"goarch"`

	PanicValue string `json:"panic_value"`
	StackTrace string `json:"stack_trace,omitempty"`

	RunID   string   `json:"run_id,omitempty"`
	Target  string   `json:"target,omitempty"`
	Stage   string   `json:"stage,omitempty"`
	Args    []string `json:"args,omitempty"`
	WorkDir string   `json:"work_dir,omitempty"`

	RedactedEnv map[string]string `json:"redacted_env,omitempty"`
}

// CrashDumpWriter generates and persists crash dumps.
type CrashDumpWriter struct {
	dir        string
	maxFiles   int
	includeEnv bool
	logger     *logging.Logger

	runID  atomic.Value // string
	target atomic.Value // string
	stage  atomic.Value // string
	args   atomic.Value // []string

	// stages maps run id to its current stage for concurrent audits.
	stages sync.Map

	mu sync.Mutex
}

// NewCrashDumpWriter creates a crash dump writer. A nil logger discards
// the writer's own log lines.
func NewCrashDumpWriter(dir string, maxFiles int, includeEnv bool, logger *logging.Logger) *CrashDumpWriter {
	if maxFiles <= 0 {
		maxFiles = DefaultMaxCrashDumps
	}
	if dir == "" {
		dir = ".tribunal/crashdumps"
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	w := &CrashDumpWriter{
		dir:        dir,
		maxFiles:   maxFiles,
		includeEnv: includeEnv,
		logger:     logger,
	}
	w.runID.Store("")
	w.target.Store("")
	w.stage.Store("")
	w.args.Store([]string(nil))
	return w
}

// Dir returns the directory dumps are written to.
func (w *CrashDumpWriter) Dir() string { return w.dir }

// SetRun records the run being executed.
func (w *CrashDumpWriter) SetRun(runID, target string) {
	w.runID.Store(runID)
	w.target.Store(target)
	w.stage.Store("")
}

// SetStage records the stage being executed.
func (w *CrashDumpWriter) SetStage(stage string) {
	w.stage.Store(stage)
}

// SetArgs records the command line that started the audit.
func (w *CrashDumpWriter) SetArgs(args []string) {
	w.args.Store(append([]string(nil), args...))
}

// Track follows run and stage events on bus until ctx is done.
func (w *CrashDumpWriter) Track(ctx context.Context, bus *events.EventBus) {
	ch := bus.Subscribe(events.TypeRunStarted, events.TypeStageStarted,
		events.TypeVerdictReady, events.TypeRunAborted, events.TypeRunFailed)
	go func() {
		defer bus.Unsubscribe(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				switch e := ev.(type) {
				case events.RunStartedEvent:
					w.SetRun(e.RunID(), e.Target.RepoURL)
				case events.StageStartedEvent:
					w.SetStage(e.Stage)
					w.stages.Store(e.RunID(), e.Stage)
				default:
					if events.Terminal(ev.EventType()) {
						w.stages.Delete(ev.RunID())
					}
				}
			}
		}
	}()
}

// WriteCrashDump generates and writes a crash dump for the run last seen by
// Track, returning its path.
func (w *CrashDumpWriter) WriteCrashDump(panicValue any) (string, error) {
	runID, _ := w.runID.Load().(string)
	target, _ := w.target.Load().(string)
	stage, _ := w.stage.Load().(string)
	return w.write(panicValue, runID, target, stage)
}

// WriteRunCrashDump writes a crash dump for one of several concurrent runs.
// The stage comes from Track when it has seen the run.
func (w *CrashDumpWriter) WriteRunCrashDump(panicValue any, runID, target string) (string, error) {
	stage, _ := w.stages.Load(runID)
	w.stages.Delete(runID)
	s, _ := stage.(string)
	return w.write(panicValue, runID, target, s)
}

func (w *CrashDumpWriter) write(panicValue any, runID, target, stage string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	dump := CrashDump{
		Timestamp:  time.Now().UTC(),
		ProcessID:  os.Getpid(),
		GoVersion:  runtime.Version(),
		GOOS:       runtime.GOOS,
		GOARCH:     runtime.GOARCH,
		PanicValue: fmt.Sprintf("%v", panicValue),
		StackTrace: string(debug.Stack()),
		RunID:      runID,
		Target:     target,
		Stage:      stage,
	}
	dump.Args, _ = w.args.Load().([]string)
	if wd, err := os.Getwd(); err == nil {
		dump.WorkDir = wd
	}
	if w.includeEnv {
		dump.RedactedEnv = redactEnvironment(os.Environ())
	}

	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling crash dump: %w", err)
	}

	// Nanoseconds keep two dumps in the same second apart.
	name := fmt.Sprintf("crash-%s.json", dump.Timestamp.Format("2006-01-02T15-04-05.000000000"))
	path := filepath.Join(w.dir, name)
	if err := fsutil.WriteFileAtomic(path, data, 0o600); err != nil {
		return "", fmt.Errorf("writing crash dump: %w", err)
	}

	w.cleanupOldDumps()
	return path, nil
}

// RecoverAndReturn recovers from a panic, writes a dump and turns the panic
// into an error. Usage: defer writer.RecoverAndReturn(&err)
//
//nolint:gocritic // ptrToRefParam: errPtr must be a pointer to modify the caller's error variable
func (w *CrashDumpWriter) RecoverAndReturn(errPtr *error) {
	r := recover()
	if r == nil {
		return
	}
	path, dumpErr := w.WriteCrashDump(r)
	if dumpErr != nil {
		w.logger.Error("failed to write crash dump", "error", dumpErr, "panic", r)
		*errPtr = fmt.Errorf("audit panicked: %v", r)
		return
	}
	w.logger.Error("crash dump written after panic", "path", path, "panic", r)
	*errPtr = fmt.Errorf("audit panicked: %v (dump: %s)", r, path)
}

// cleanupOldDumps removes the oldest dumps beyond maxFiles.
func (w *CrashDumpWriter) cleanupOldDumps() {
	names, err := listDumps(w.dir)
	if err != nil {
		return
	}
	for len(names) > w.maxFiles {
		path := filepath.Join(w.dir, names[0])
		if err := os.Remove(path); err != nil {
			w.logger.Warn("failed to remove old crash dump", "path", path, "error", err)
		}
		names = names[1:]
	}
}

// listDumps returns dump file names oldest first. The timestamped names
// sort chronologically.
func listDumps(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "crash-") && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func redactEnvironment(environ []string) map[string]string {
	result := make(map[string]string, len(environ))
	for _, env := range environ {
		key, value, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}
		if logging.SensitiveKey(key) {
			value = logging.Placeholder
		}
		result[key] = value
	}
	return result
}

// LoadLatestCrashDump loads the most recent crash dump from dir.
func LoadLatestCrashDump(dir string) (*CrashDump, error) {
	names, err := listDumps(dir)
	if err != nil {
		return nil, fmt.Errorf("reading crash dump dir: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no crash dumps found in %s", dir)
	}

	data, err := fsutil.ReadFileScoped(filepath.Join(dir, names[len(names)-1]))
	if err != nil {
		return nil, fmt.Errorf("reading crash dump: %w", err)
	}
	var dump CrashDump
	if err := json.Unmarshal(data, &dump); err != nil {
		return nil, fmt.Errorf("parsing crash dump: %w", err)
	}
	return &dump, nil
}
