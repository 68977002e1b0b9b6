package detective

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
	"github.com/hugo-lorenzo-mato/tribunal/internal/fsutil"
)

// Vision evidence.
const (
	CategoryDiagram       core.Category = "diagram"
	FindingDiagramPresent               = "diagram-present"
	ArtifactImages                      = "images"
)

// DefaultMaxImages bounds how many images are sent to the model.
const DefaultMaxImages = 2

const maxImageBytes = 4 << 20

var imageExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true}

// imageDirs are searched in order, relative to the checkout.
var imageDirs = []string{"docs", "reports", "assets", "images", "diagrams"}

// ImageRequest is one image sent for inspection.
type ImageRequest struct {
	Name        string
	MimeType    string
	Data        []byte
	Instruction string
}

// ImageFinding is a model's reading of one image. Confidence is a percentage.
type ImageFinding struct {
	Found            bool   `json:"found"`
	Description      string `json:"description"`
	ParallelPatterns string `json:"parallel_patterns"`
	Confidence       int    `json:"confidence"`
}

// ImageDescriber inspects an image against an instruction.
type ImageDescriber interface {
	DescribeImage(ctx context.Context, req ImageRequest) (ImageFinding, error)
}

// VisionInspector looks for architecture diagrams next to the report or in
// the checkout's documentation folders and asks a multimodal model whether
// they show the expected structure. Confidence is reported on a 0..100 scale.
type VisionInspector struct {
	describer ImageDescriber
	maxImages int
}

// VisionOption configures the inspector.
type VisionOption func(*VisionInspector)

// WithMaxImages caps the number of inspected images.
func WithMaxImages(n int) VisionOption {
	return func(v *VisionInspector) {
		if n > 0 {
			v.maxImages = n
		}
	}
}

// NewVisionInspector creates the vision producer. A nil describer only
// records which images exist.
func NewVisionInspector(describer ImageDescriber, opts ...VisionOption) *VisionInspector {
	v := &VisionInspector{describer: describer, maxImages: DefaultMaxImages}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Name implements core.EvidenceProducer.
func (v *VisionInspector) Name() string { return "vision" }

// ConfidenceScale implements core.EvidenceProducer.
func (v *VisionInspector) ConfidenceScale() core.ConfidenceScale {
	return core.ConfidenceScale{Min: 0, Max: 100}
}

// Produce implements core.EvidenceProducer.
func (v *VisionInspector) Produce(ctx context.Context, target core.TargetSnapshot) ([]core.Evidence, error) {
	images := FindImages(target, v.maxImages)
	if len(images) == 0 {
		ev := v.item(0)
		ev.Rationale = "No diagram images found next to the report or under docs/."
		ev.Confidence = 90
		return []core.Evidence{ev}, nil
	}

	instruction := visionInstruction(target.Rubric)
	var (
		items []core.Evidence
		errs  []error
	)
	for i, path := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ev := v.item(i)
		ev.Locations = []string{path}

		if v.describer == nil {
			ev.Found = true
			ev.Rationale = "Image present; not inspected (no vision model configured)."
			ev.Confidence = 50
			items = append(items, ev)
			continue
		}

		data, err := fsutil.ReadFileLimited(path, maxImageBytes)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		finding, err := v.describer.DescribeImage(ctx, ImageRequest{
			Name:        filepath.Base(path),
			MimeType:    http.DetectContentType(data),
			Data:        data,
			Instruction: instruction,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(path), err))
			continue
		}
		ev.Found = finding.Found
		ev.Content = excerpt(strings.TrimSpace(finding.Description+"\n"+finding.ParallelPatterns), 300)
		ev.Rationale = "Multimodal analysis of " + filepath.Base(path)
		ev.Confidence = float64(finding.Confidence)
		if finding.Confidence == 0 {
			ev.Confidence = 80
		}
		items = append(items, ev)
	}

	// Partial success is evidence; total failure is a worker failure.
	if len(items) == 0 {
		return nil, errors.Join(errs...)
	}
	return items, nil
}

func (v *VisionInspector) item(i int) core.Evidence {
	return core.Evidence{
		ID:       core.NewEvidenceID(v.Name(), fmt.Sprintf("%s-%d", FindingDiagramPresent, i)),
		Producer: v.Name(),
		Category: CategoryDiagram,
		Finding:  FindingDiagramPresent,
	}
}

// FindImages lists candidate diagram images, sorted and capped at limit.
// Images beside the report come first.
func FindImages(target core.TargetSnapshot, limit int) []string {
	var dirs []string
	if target.ReportPath != "" {
		dirs = append(dirs, filepath.Dir(target.ReportPath))
	}
	if target.LocalPath != "" {
		for _, d := range imageDirs {
			dirs = append(dirs, filepath.Join(target.LocalPath, d))
		}
	}

	seen := make(map[string]bool)
	var out []string
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		var names []string
		for _, e := range entries {
			if e.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
				continue
			}
			if info, err := e.Info(); err != nil || info.Size() > maxImageBytes {
				continue
			}
			names = append(names, e.Name())
		}
		sort.Strings(names)
		for _, n := range names {
			p := filepath.Join(dir, n)
			if seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
			if len(out) == limit {
				return out
			}
		}
	}
	return out
}

func visionInstruction(rubric *core.Rubric) string {
	if rubric == nil {
		return ""
	}
	var parts []string
	for _, d := range rubric.Dimensions {
		if d.TargetArtifact == ArtifactImages && d.Instruction != "" {
			parts = append(parts, d.Instruction)
		}
	}
	return strings.Join(parts, "\n")
}
