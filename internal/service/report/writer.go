// Package report writes a run's terminal artifact to disk: verdict.json and
// verdict.md for a full verdict, partial.json and partial.md for an aborted run.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
	"github.com/hugo-lorenzo-mato/tribunal/internal/fsutil"
)

// Report formats.
const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// Config configures the report writer.
type Config struct {
	Dir     string   // default: ".tribunal/runs"
	Formats []string // default: json and markdown
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Dir:     ".tribunal/runs",
		Formats: []string{FormatJSON, FormatMarkdown},
	}
}

// Writer writes one directory per run under Config.Dir.
type Writer struct {
	config Config
}

// NewWriter creates a report writer. Empty fields take their defaults.
func NewWriter(cfg Config) *Writer {
	def := DefaultConfig()
	if cfg.Dir == "" {
		cfg.Dir = def.Dir
	}
	if len(cfg.Formats) == 0 {
		cfg.Formats = def.Formats
	}
	return &Writer{config: cfg}
}

// RunDir returns the directory a run's artifacts are written to.
func (w *Writer) RunDir(runID string) string {
	return filepath.Join(w.config.Dir, runID)
}

// WriteVerdict writes the verdict in every configured format.
func (w *Writer) WriteVerdict(ctx context.Context, v *core.VerdictReport) ([]string, error) {
	return w.write(ctx, v.RunID, "verdict", v, func() (string, error) { return RenderVerdict(v) })
}

// WritePartial writes the partial report in every configured format.
func (w *Writer) WritePartial(ctx context.Context, p *core.PartialReport) ([]string, error) {
	return w.write(ctx, p.RunID, "partial", p, func() (string, error) { return RenderPartial(p) })
}

func (w *Writer) write(ctx context.Context, runID, name string, payload interface{}, markdown func() (string, error)) ([]string, error) {
	dir := w.RunDir(runID)
	var written []string
	for _, format := range w.config.Formats {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		var (
			path string
			data []byte
		)
		switch format {
		case FormatJSON:
			path = filepath.Join(dir, name+".json")
			b, err := json.MarshalIndent(payload, "", "  ")
			if err != nil {
				return written, fmt.Errorf("encoding %s: %w", name, err)
			}
			data = append(b, '\n')
		case FormatMarkdown:
			path = filepath.Join(dir, name+".md")
			md, err := markdown()
			if err != nil {
				return written, err
			}
			data = []byte(md)
		default:
			return written, core.ErrValidation(core.CodeUnsupportedFormat, fmt.Sprintf("unknown report format %q", format))
		}
		if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
			return written, fmt.Errorf("writing %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}
