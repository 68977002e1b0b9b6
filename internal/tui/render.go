package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
)

// Renderer formats run outcomes. Without colour it draws ASCII tables and
// leaves text unstyled, which keeps output stable for pipes and CI logs.
type Renderer struct {
	color bool
	width int
}

// NewRenderer creates a renderer. A non-positive width defaults to 80.
func NewRenderer(color bool, width int) *Renderer {
	if width <= 0 {
		width = 80
	}
	return &Renderer{color: color, width: width}
}

func (r *Renderer) paint(style lipgloss.Style, s string) string {
	if !r.color {
		return s
	}
	return style.Render(s)
}

func (r *Renderer) table(headers ...string) *table.Table {
	border := lipgloss.ASCIIBorder()
	if r.color {
		border = lipgloss.RoundedBorder()
	}
	t := table.New().
		Border(border).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return CellStyle.Bold(r.color)
			}
			return CellStyle
		})
	if r.color {
		t.BorderStyle(lipgloss.NewStyle().Foreground(ColorBorder))
	}
	return t
}

// Verdict renders the per-dimension score table with flags and remediation.
func (r *Renderer) Verdict(v *core.VerdictReport) string {
	var sb strings.Builder
	sb.WriteString(r.paint(HeaderStyle, fmt.Sprintf("Verdict %s", v.RunID)))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Target: %s\nRubric: %s\n\n", v.Target.RepoURL, v.Rubric)

	t := r.table("Dimension", "Score", "Flags")
	for _, d := range v.Dimensions {
		score := fmt.Sprintf("%.1f / %d", d.Score, d.Scale.Max)
		if r.color {
			score = lipgloss.NewStyle().Foreground(ScoreColor(d.Scale.Fraction(d.Score))).Render(score)
		}
		t.Row(d.Name, score, strings.Join(d.Flags, ", "))
	}
	sb.WriteString(t.Render())
	sb.WriteString("\n")

	overall := fmt.Sprintf("Overall: %.2f (%.0f%%)", v.OverallScore, v.OverallPercent)
	sb.WriteString(r.paint(VerdictStyle, overall))
	sb.WriteString("\n")

	if len(v.Remediation) > 0 {
		sb.WriteString("\nRemediation:\n")
		for _, line := range v.Remediation {
			sb.WriteString("  - " + line + "\n")
		}
	}
	return sb.String()
}

// Partial renders an aborted run's gaps and worker failures.
func (r *Renderer) Partial(p *core.PartialReport) string {
	var sb strings.Builder
	sb.WriteString(r.paint(PartialStyle, fmt.Sprintf("Run %s aborted", p.RunID)))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Reason: %s\nEvidence items: %d, coverage %.0f%%, failed workers %.0f%%\n",
		p.Reason, p.EvidenceCount, p.Coverage*100, p.FailedFraction*100)

	if len(p.Gaps) > 0 {
		t := r.table("Gap", "Subject", "Detail")
		for _, g := range p.Gaps {
			t.Row(string(g.Kind), g.Subject, g.Detail)
		}
		sb.WriteString("\n")
		sb.WriteString(t.Render())
		sb.WriteString("\n")
	}
	for _, f := range p.Failures {
		sb.WriteString(r.paint(FailedStyle, "failed: "))
		fmt.Fprintf(&sb, "%s (%d attempts): %s\n", f.Worker, f.Attempts, f.Reason)
	}
	return sb.String()
}

// History renders stored runs, newest first.
func (r *Renderer) History(records []*core.RunRecord) string {
	t := r.table("ID", "Outcome", "Score", "Target", "Created")
	for _, rec := range records {
		outcome := string(rec.Outcome)
		score := "-"
		switch rec.Outcome {
		case core.RouteDone:
			outcome = r.paint(VerdictStyle, outcome)
			score = fmt.Sprintf("%.2f", rec.OverallScore)
		case core.RouteAborted:
			outcome = r.paint(PartialStyle, outcome)
		}
		t.Row(rec.ID, outcome, score, truncate(rec.Target.RepoURL, 48), rec.CreatedAt.Local().Format(time.DateTime))
	}
	return t.Render() + "\n"
}

// Rubric renders the rubric's dimensions and their synthesis rules.
func (r *Renderer) Rubric(rb *core.Rubric) string {
	var sb strings.Builder
	sb.WriteString(r.paint(HeaderStyle, fmt.Sprintf("%s v%s", rb.Name, rb.Version)))
	sb.WriteString("\n")
	judges := make([]string, len(rb.Judges))
	for i, j := range rb.Judges {
		judges[i] = j.Name
	}
	fmt.Fprintf(&sb, "Scale %d..%d, judges: %s\n\n", rb.Scale.Min, rb.Scale.Max, strings.Join(judges, ", "))

	t := r.table("Dimension", "Weight", "Categories", "Rules")
	for _, d := range rb.Dimensions {
		cats := make([]string, len(d.EvidenceCategories))
		for i, c := range d.EvidenceCategories {
			cats[i] = string(c)
		}
		rules := make([]string, len(d.Rules))
		for i, rule := range d.Rules {
			rules[i] = fmt.Sprintf("%d %s: %s", rule.Priority, rule.When, rule.Then)
		}
		t.Row(d.ID, fmt.Sprintf("%g", d.Weight), strings.Join(cats, ", "), strings.Join(rules, "\n"))
	}
	sb.WriteString(t.Render())
	sb.WriteString("\n")
	return sb.String()
}

// Markdown renders a Markdown document for the terminal with glamour.
func (r *Renderer) Markdown(md string) (string, error) {
	style := "notty"
	if r.color {
		style = "dark"
	}
	tr, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(r.width),
	)
	if err != nil {
		return "", fmt.Errorf("creating markdown renderer: %w", err)
	}
	out, err := tr.Render(md)
	if err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
