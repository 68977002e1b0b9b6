package detective

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
	"github.com/hugo-lorenzo-mato/tribunal/internal/fsutil"
)

// Evidence categories emitted by the document analyst.
const (
	CategoryReport core.Category = "report"
	CategoryTheory core.Category = "theory"
)

// Findings emitted by the document analyst.
const (
	FindingReportPresent     = "report-present"
	FindingVerifiedPaths     = "verified-paths"
	FindingPathHallucination = "path-hallucination"
	FindingConceptDepth      = "concept-depth"
)

// DefaultConcepts are the architecture concepts checked for depth.
var DefaultConcepts = []string{"Dialectical Synthesis", "Fan-In", "Metacognition", "State Synchronization"}

var reportExtensions = map[string]bool{".md": true, ".markdown": true, ".txt": true}

// maxReportBytes bounds the report read into memory.
const maxReportBytes = 8 << 20

var pathPattern = regexp.MustCompile(`(?:src|reports|audit|rubric|tools|nodes|tests|internal|cmd)/[A-Za-z0-9_\-./]+`)

// explanationMarkers distinguish an explanation from a passing mention.
var explanationMarkers = []string{
	"because", "so that", "which", "through", "ensures", "implemented", "implements",
	"when", "each", "merge", "parallel", "instead of", "by ",
}

// Confidence the analyst reports for a concept, by depth.
const (
	confidenceSubstantive = 0.85
	confidenceMentioned   = 0.3
	confidenceAbsent      = 0.1
)

// DocAnalyst reads the accompanying report, verifies the file paths it cites
// against the checkout and checks how deeply it explains key concepts.
type DocAnalyst struct {
	concepts []string
}

// DocOption configures the analyst.
type DocOption func(*DocAnalyst)

// WithConcepts replaces the concept list.
func WithConcepts(concepts ...string) DocOption {
	return func(d *DocAnalyst) {
		if len(concepts) > 0 {
			d.concepts = concepts
		}
	}
}

// NewDocAnalyst creates the document producer.
func NewDocAnalyst(opts ...DocOption) *DocAnalyst {
	d := &DocAnalyst{concepts: DefaultConcepts}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name implements core.EvidenceProducer.
func (d *DocAnalyst) Name() string { return "doc" }

// ConfidenceScale implements core.EvidenceProducer.
func (d *DocAnalyst) ConfidenceScale() core.ConfidenceScale { return core.UnitConfidence() }

// Produce implements core.EvidenceProducer.
func (d *DocAnalyst) Produce(ctx context.Context, target core.TargetSnapshot) ([]core.Evidence, error) {
	path := target.ReportPath
	if path == "" {
		path = DiscoverReport(target.LocalPath)
	}
	if path == "" {
		ev := d.item(CategoryReport, FindingReportPresent, "")
		ev.Rationale = "No report was given and none was found under reports/."
		ev.Confidence = 1.0
		return []core.Evidence{ev}, nil
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".pdf" {
		return nil, core.ErrValidation(core.CodeUnsupportedFormat,
			fmt.Sprintf("PDF reports are not supported (%s); convert it to Markdown", filepath.Base(path)))
	}
	if !reportExtensions[ext] {
		return nil, core.ErrValidation(core.CodeUnsupportedFormat, fmt.Sprintf("unsupported report format %q", ext))
	}

	data, err := fsutil.ReadFileLimited(path, maxReportBytes)
	if err != nil {
		return nil, core.ErrValidation(core.CodeInvalidTarget, "reading report: "+err.Error())
	}
	if !utf8.Valid(data) {
		return nil, core.ErrValidation(core.CodeParseFailed, "report is not valid UTF-8 text")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := string(data)

	present := d.item(CategoryReport, FindingReportPresent, "")
	present.Found = true
	present.Content = excerpt(text, 300)
	present.Locations = []string{path}
	present.Rationale = fmt.Sprintf("Read %d bytes of report text.", len(data))
	present.Confidence = 1.0

	items := []core.Evidence{present}
	items = append(items, d.crossReference(text, target.LocalPath)...)
	for _, concept := range d.concepts {
		items = append(items, d.conceptDepth(text, concept))
	}
	return items, nil
}

// DiscoverReport returns the first Markdown or text file under reports/ in
// the checkout, or "".
func DiscoverReport(repoPath string) string {
	if repoPath == "" {
		return ""
	}
	entries, err := os.ReadDir(filepath.Join(repoPath, "reports"))
	if err != nil {
		return ""
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && reportExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	return filepath.Join(repoPath, "reports", names[0])
}

// ExtractPaths returns the distinct repository paths mentioned in text.
func ExtractPaths(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range pathPattern.FindAllString(text, -1) {
		p := strings.TrimRight(m, ".,;:)")
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// CrossReferencePaths splits paths into those that exist under repoPath and
// those that do not. Paths that escape the checkout count as hallucinated.
func CrossReferencePaths(paths []string, repoPath string) (verified, hallucinated []string) {
	if repoPath == "" {
		return nil, append([]string(nil), paths...)
	}
	root, err := os.OpenRoot(repoPath)
	if err != nil {
		return nil, append([]string(nil), paths...)
	}
	defer root.Close()

	for _, p := range paths {
		if _, err := root.Stat(filepath.FromSlash(strings.TrimSuffix(p, "/"))); err == nil {
			verified = append(verified, p)
		} else {
			hallucinated = append(hallucinated, p)
		}
	}
	return verified, hallucinated
}

func (d *DocAnalyst) crossReference(text, repoPath string) []core.Evidence {
	paths := ExtractPaths(text)
	verified, hallucinated := CrossReferencePaths(paths, repoPath)

	ok := d.item(CategoryReport, FindingVerifiedPaths, "")
	ok.Found = len(verified) > 0
	ok.Content = strings.Join(verified, "\n")
	ok.Rationale = fmt.Sprintf("Cross-referenced %d cited paths against the checkout.", len(paths))
	ok.Confidence = 1.0

	bad := d.item(CategoryReport, FindingPathHallucination, "")
	bad.Found = len(hallucinated) > 0
	bad.Content = strings.Join(hallucinated, "\n")
	bad.Locations = hallucinated
	bad.Rationale = fmt.Sprintf("%d cited paths do not exist in the repository.", len(hallucinated))
	bad.Confidence = 1.0

	return []core.Evidence{ok, bad}
}

// conceptDepth reports whether the report explains a concept or only names it.
// The item's confidence carries the depth signal.
func (d *DocAnalyst) conceptDepth(text, concept string) core.Evidence {
	ev := d.item(CategoryTheory, FindingConceptDepth, concept)
	ev.Locations = []string{"report"}

	paragraphs := mentions(text, concept, 3)
	switch {
	case len(paragraphs) == 0:
		ev.Rationale = fmt.Sprintf("%q is not mentioned.", concept)
		ev.Confidence = confidenceAbsent
		return ev
	default:
		for _, p := range paragraphs {
			if substantive(p) {
				ev.Found = true
				ev.Content = excerpt(p, 200)
				ev.Rationale = fmt.Sprintf("%q is explained in context.", concept)
				ev.Confidence = confidenceSubstantive
				return ev
			}
		}
		ev.Content = excerpt(paragraphs[0], 200)
		ev.Rationale = fmt.Sprintf("%q is named without explanation.", concept)
		ev.Confidence = confidenceMentioned
		return ev
	}
}

func (d *DocAnalyst) item(cat core.Category, finding, qualifier string) core.Evidence {
	slug := finding
	if qualifier != "" {
		slug = finding + "-" + qualifier
	}
	return core.Evidence{
		ID:       core.NewEvidenceID(d.Name(), slug),
		Producer: d.Name(),
		Category: cat,
		Finding:  finding,
	}
}

// mentions returns up to limit distinct paragraphs mentioning concept.
func mentions(text, concept string, limit int) []string {
	needle := strings.ToLower(concept)
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		if strings.Contains(strings.ToLower(p), needle) {
			out = append(out, strings.TrimSpace(p))
			if len(out) == limit {
				break
			}
		}
	}
	return out
}

func substantive(paragraph string) bool {
	if len(strings.Fields(paragraph)) < 25 {
		return false
	}
	lower := strings.ToLower(paragraph)
	for _, m := range explanationMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
