package service

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"
	"text/template"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
)

//go:embed prompts/*.md.tmpl
var promptsFS embed.FS

const personaPrefix = "persona-"

// PromptRenderer renders prompts from templates.
type PromptRenderer struct {
	templates map[string]*template.Template
	mu        sync.RWMutex
}

// NewPromptRenderer creates a new prompt renderer.
func NewPromptRenderer() (*PromptRenderer, error) {
	r := &PromptRenderer{
		templates: make(map[string]*template.Template),
	}

	if err := r.loadTemplates(); err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	return r, nil
}

// loadTemplates loads all templates from the embedded filesystem.
func (r *PromptRenderer) loadTemplates() error {
	return fs.WalkDir(promptsFS, "prompts", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || !strings.HasSuffix(path, ".md.tmpl") {
			return nil
		}

		content, err := promptsFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		name := strings.TrimPrefix(path, "prompts/")
		name = strings.TrimSuffix(name, ".md.tmpl")

		tmpl, err := template.New(name).Funcs(templateFuncs()).Parse(string(content))
		if err != nil {
			return fmt.Errorf("parsing template %s: %w", name, err)
		}

		r.templates[name] = tmpl
		return nil
	})
}

// templateFuncs returns custom template functions.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"join":      strings.Join,
		"indent":    indent,
		"trimSpace": strings.TrimSpace,
		"upper":     strings.ToUpper,
		"excerpt":   func(n int, s string) string { return truncate(s, n) },
		"ints":      joinInts,
	}
}

func indent(spaces int, s string) string {
	pad := strings.Repeat(" ", spaces)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = pad + line
		}
	}
	return strings.Join(lines, "\n")
}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}

// EvidenceLine is one evidence item as shown to a judge.
type EvidenceLine struct {
	ID        string
	Category  string
	Finding   string
	Found     bool
	Locations []string
	Rationale string
	Content   string
}

// DimensionPrompt is one rubric dimension as shown to a judge.
type DimensionPrompt struct {
	ID             string
	Name           string
	Instruction    string
	TargetArtifact string
	Scale          core.Scale
	Levels         []int
}

// JudgePromptParams contains parameters for the judge template.
type JudgePromptParams struct {
	Judge      string
	Persona    string
	Dimensions []DimensionPrompt
	Evidence   []EvidenceLine
}

// NewJudgePromptParams builds the judge template input from a persona and the
// evidence snapshot. Error items are listed so judges can see missing coverage.
func NewJudgePromptParams(persona core.Persona, personaText string, evidence core.EvidenceSnapshot) JudgePromptParams {
	p := JudgePromptParams{
		Judge:   persona.Judge,
		Persona: personaText,
	}
	for _, d := range persona.Dimensions {
		p.Dimensions = append(p.Dimensions, DimensionPrompt{
			ID:             d.ID,
			Name:           d.Name,
			Instruction:    d.Instruction,
			TargetArtifact: d.TargetArtifact,
			Scale:          d.Scale,
			Levels:         d.Levels,
		})
	}
	for _, e := range evidence.All() {
		p.Evidence = append(p.Evidence, EvidenceLine{
			ID:        e.ID,
			Category:  string(e.Category),
			Finding:   e.Finding,
			Found:     e.Found,
			Locations: e.Locations,
			Rationale: e.Rationale,
			Content:   e.Content,
		})
	}
	return p
}

// RenderJudge renders the deliberation prompt for one judge.
func (r *PromptRenderer) RenderJudge(params JudgePromptParams) (string, error) {
	return r.render("judge", params)
}

// PersonaText resolves a rubric persona. A persona naming a built-in template
// (e.g. "prosecutor") renders that template; anything else is used verbatim.
func (r *PromptRenderer) PersonaText(persona string) string {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(persona)), " ", "_")
	if text, err := r.render(personaPrefix+key, nil); err == nil {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(persona)
}

// VisionPromptParams contains parameters for the vision template.
type VisionPromptParams struct {
	Image       string
	Instruction string
	Concepts    []string
}

// RenderVision renders the prompt for inspecting one image.
func (r *PromptRenderer) RenderVision(params VisionPromptParams) (string, error) {
	return r.render("vision", params)
}

// render executes a template by name.
func (r *PromptRenderer) render(name string, data interface{}) (string, error) {
	r.mu.RLock()
	tmpl, ok := r.templates[name]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("template %q not found", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing template %s: %w", name, err)
	}

	return buf.String(), nil
}

// ListTemplates returns available template names, sorted.
func (r *PromptRenderer) ListTemplates() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
