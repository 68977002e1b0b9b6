package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/term"
)

// Attribute keys shared by every scoped logger.
const (
	KeyRun       = "run_id"
	KeyStage     = "stage"
	KeyWorker    = "worker"
	KeyDimension = "dimension"
)

// Logger is the structured logger handed to every component. All output
// goes through a RedactHandler, and Sanitize exposes the same redaction for
// text that leaves the process by other routes (judge rationales, reports).
type Logger struct {
	*slog.Logger
	sanitizer *Sanitizer
}

// Config selects level, format and destination.
type Config struct {
	Level string
	// Format is "json", "text" or "auto". Auto picks the pretty handler on
	// a terminal and JSON otherwise.
	Format    string
	Output    io.Writer
	AddSource bool
	// Redact holds extra patterns to scrub, on top of the built-in ones.
	Redact []string
}

func DefaultConfig() Config {
	return Config{Level: "info", Format: "auto", Output: os.Stderr}
}

// New builds a logger from cfg. Redact patterns that do not compile are
// skipped; the config validator rejects them before this point.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	level := parseLevel(cfg.Level)

	sanitizer := NewSanitizer()
	for i, p := range cfg.Redact {
		_ = sanitizer.Add(fmt.Sprintf("custom-%d", i), p)
	}

	return &Logger{
		Logger:    slog.New(NewRedactHandler(baseHandler(cfg.Format, out, level, cfg.AddSource), sanitizer)),
		sanitizer: sanitizer,
	}
}

func baseHandler(format string, out io.Writer, level slog.Level, addSource bool) slog.Handler {
	opts := &slog.HandlerOptions{Level: level, AddSource: addSource}
	switch {
	case format == "text":
		return slog.NewTextHandler(out, opts)
	case format == "json", !isTerminal(out):
		return slog.NewJSONHandler(out, opts)
	default:
		return NewPrettyHandler(out, level)
	}
}

// OpenFile opens (or creates) a log file for appending. The caller closes it.
func OpenFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}

// NewNop returns a logger that discards output but still sanitizes.
func NewNop() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler), sanitizer: NewSanitizer()}
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}

type runIDKey struct{}

// ContextWithRunID attaches a run ID to ctx for WithContext.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext returns the run ID stored by ContextWithRunID.
func RunIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey{}).(string)
	return id, ok && id != ""
}

// WithContext returns a logger scoped to the run carried by ctx, if any.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if id, ok := RunIDFromContext(ctx); ok {
		return l.WithRun(id)
	}
	return l
}

// WithRun scopes the logger to one audit run.
func (l *Logger) WithRun(runID string) *Logger { return l.With(KeyRun, runID) }

// WithStage scopes the logger to a pipeline stage (evidence, opinion).
func (l *Logger) WithStage(stage string) *Logger { return l.With(KeyStage, stage) }

// WithWorker scopes the logger to one producer or judge.
func (l *Logger) WithWorker(worker string) *Logger { return l.With(KeyWorker, worker) }

// WithDimension scopes the logger to a rubric dimension.
func (l *Logger) WithDimension(dimensionID string) *Logger { return l.With(KeyDimension, dimensionID) }

func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), sanitizer: l.sanitizer}
}

// Sanitize applies the logger's redactions to text written outside the log.
func (l *Logger) Sanitize(input string) string {
	return l.sanitizer.Sanitize(input)
}
