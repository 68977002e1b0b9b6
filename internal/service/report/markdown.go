package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
)

// RenderVerdict renders a verdict as markdown with YAML frontmatter.
func RenderVerdict(v *core.VerdictReport) (string, error) {
	fm := NewFrontmatter()
	fm.Set("type", "verdict")
	fm.Set("run_id", v.RunID)
	fm.Set("target", v.Target.RepoURL)
	if v.Target.ReportPath != "" {
		fm.Set("report", v.Target.ReportPath)
	}
	fm.Set("rubric", v.Rubric)
	fm.Set("overall_score", round2(v.OverallScore))
	fm.Set("overall_percent", round2(v.OverallPercent))
	fm.Set("created_at", v.CreatedAt.Format(time.RFC3339))
	header, err := fm.Render()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(header)
	fmt.Fprintf(&sb, "# Audit verdict: %s\n\n", v.Target.RepoURL)
	fmt.Fprintf(&sb, "**Overall score:** %.2f (%.1f%%)\n\n", v.OverallScore, v.OverallPercent)

	sb.WriteString("| Dimension | Score | Raw | Flags |\n")
	sb.WriteString("|---|---|---|---|\n")
	for _, d := range v.Dimensions {
		fmt.Fprintf(&sb, "| %s | %.2f / %d | %.2f | %s |\n",
			escapeCell(displayName(d)), d.Score, d.Scale.Max, d.RawScore, escapeCell(strings.Join(d.Flags, ", ")))
	}
	sb.WriteString("\n")

	for _, d := range v.Dimensions {
		writeDimension(&sb, d)
	}

	sb.WriteString("## Remediation\n\n")
	if len(v.Remediation) == 0 {
		sb.WriteString("Nothing to remediate.\n")
	}
	for _, line := range v.Remediation {
		fmt.Fprintf(&sb, "- %s\n", line)
	}
	return sb.String(), nil
}

func writeDimension(sb *strings.Builder, d core.DimensionVerdict) {
	fmt.Fprintf(sb, "## %s\n\n", displayName(d))
	fmt.Fprintf(sb, "Score **%.2f** on %s (raw %.2f)\n\n", d.Score, d.Scale, d.RawScore)
	if len(d.Flags) > 0 {
		fmt.Fprintf(sb, "Flags: %s\n\n", strings.Join(d.Flags, ", "))
	}
	if len(d.RulesFired) > 0 {
		fmt.Fprintf(sb, "Rules fired: %s\n\n", strings.Join(d.RulesFired, ", "))
	}
	if len(d.AbsentJudges) > 0 {
		fmt.Fprintf(sb, "Absent judges: %s\n\n", strings.Join(d.AbsentJudges, ", "))
	}
	fmt.Fprintf(sb, "> %s\n\n", d.RationaleSummary)

	if len(d.Opinions) > 0 {
		sb.WriteString("| Judge | Score | Cited evidence |\n")
		sb.WriteString("|---|---|---|\n")
		for _, o := range d.Opinions {
			fmt.Fprintf(sb, "| %s | %d | %s |\n", o.Judge, o.Score, escapeCell(strings.Join(o.CitedEvidenceIDs, ", ")))
		}
		sb.WriteString("\n")
	}
	if len(d.Events) > 0 {
		sb.WriteString("Discarded opinions:\n\n")
		for _, e := range d.Events {
			fmt.Fprintf(sb, "- %s: %s\n", e.Judge, e.Reason)
		}
		sb.WriteString("\n")
	}
}

// RenderPartial renders an aborted run's partial report as markdown.
func RenderPartial(p *core.PartialReport) (string, error) {
	fm := NewFrontmatter()
	fm.Set("type", "partial")
	fm.Set("run_id", p.RunID)
	fm.Set("target", p.Target.RepoURL)
	fm.Set("coverage", round2(p.Coverage))
	fm.Set("failed_fraction", round2(p.FailedFraction))
	fm.Set("evidence_count", p.EvidenceCount)
	fm.Set("created_at", p.CreatedAt.Format(time.RFC3339))
	header, err := fm.Render()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(header)
	fmt.Fprintf(&sb, "# Audit aborted: %s\n\n", p.Target.RepoURL)
	fmt.Fprintf(&sb, "%s\n\n", p.Reason)

	sb.WriteString("## Gaps\n\n")
	for _, g := range p.Gaps {
		fmt.Fprintf(&sb, "- **%s** `%s`: %s\n", g.Kind, g.Subject, g.Detail)
	}
	if len(p.Failures) > 0 {
		sb.WriteString("\n## Worker failures\n\n")
		for _, f := range p.Failures {
			fmt.Fprintf(&sb, "- %s/%s after %d attempt(s): %s\n", f.Stage, f.Worker, f.Attempts, f.Reason)
		}
	}
	return sb.String(), nil
}

func displayName(d core.DimensionVerdict) string {
	if d.Name != "" {
		return d.Name
	}
	return d.DimensionID
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
