package report

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
)

func sampleVerdict() *core.VerdictReport {
	scale := core.Scale{Min: 1, Max: 10}
	return &core.VerdictReport{
		RunID:  "run-42",
		Target: core.Target{RepoURL: "https://example.com/org/repo.git"},
		Rubric: "week-2",
		Dimensions: []core.DimensionVerdict{
			{
				DimensionID:      "safe_tool_engineering",
				Name:             "Safe Tool Engineering",
				Score:            2,
				RawScore:         7,
				Scale:            scale,
				RationaleSummary: "prosecutor (6): os.system in tools | defense (8): sandboxed",
				Flags:            []string{"security violation"},
				RulesFired:       []string{"security-override", "security-flag"},
				Opinions: []core.Opinion{
					{Judge: "defense", DimensionID: "safe_tool_engineering", Score: 8, CitedEvidenceIDs: []string{"repo:unsafe"}},
				},
				Events: []core.PenaltyEvent{
					{Rule: core.RuleOfReference, Judge: "tech_lead", DimensionID: "safe_tool_engineering", Reason: `cites unknown evidence "E-999"`},
				},
			},
			{
				DimensionID:      "git_forensic_analysis",
				Name:             "Git Forensic Analysis",
				Score:            8,
				RawScore:         8,
				Scale:            scale,
				RationaleSummary: "No valid opinions were submitted.",
				Flags:            []string{},
			},
		},
		OverallScore:   5,
		OverallPercent: 44.44,
		Remediation:    []string{"Safe Tool Engineering: security violation; triggered by security-override"},
		CreatedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func samplePartial() *core.PartialReport {
	return &core.PartialReport{
		RunID:  "run-43",
		Target: core.Target{RepoURL: "/src/repo"},
		Reason: "evidence insufficient: missing_category security: no evidence collected for required category",
		Gaps: []core.Gap{
			{Kind: core.GapMissingCategory, Subject: "security", Detail: "no evidence collected for required category"},
		},
		Failures: []core.WorkerFailure{
			{Stage: "evidence", Worker: "vision", Reason: "model unavailable", Attempts: 2},
		},
		Coverage:  0.5,
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestWriter_WriteVerdict(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(Config{Dir: dir})

	paths, err := w.WriteVerdict(context.Background(), sampleVerdict())
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "run-42", "verdict.json"),
		filepath.Join(dir, "run-42", "verdict.md"),
	}, paths)

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Contains(t, decoded, "per_dimension")
	assert.Contains(t, decoded, "overall_score")
	assert.Contains(t, decoded, "remediation")

	dims := decoded["per_dimension"].([]interface{})
	first := dims[0].(map[string]interface{})
	assert.Equal(t, "safe_tool_engineering", first["dimension_id"])
	assert.Equal(t, []interface{}{"security violation"}, first["dissent_flags"])
}

func TestWriter_WritePartial(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(Config{Dir: dir, Formats: []string{FormatJSON}})

	paths, err := w.WritePartial(context.Background(), samplePartial())
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, "partial.json", filepath.Base(paths[0]))

	var decoded core.PartialReport
	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, samplePartial().Gaps, decoded.Gaps)

	_, err = os.Stat(filepath.Join(dir, "run-43", "verdict.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestWriter_UnknownFormat(t *testing.T) {
	w := NewWriter(Config{Dir: t.TempDir(), Formats: []string{"pdf"}})

	_, err := w.WriteVerdict(context.Background(), sampleVerdict())
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))
}

func TestWriter_Defaults(t *testing.T) {
	w := NewWriter(Config{})
	assert.Equal(t, filepath.Join(".tribunal/runs", "x"), w.RunDir("x"))
	assert.Equal(t, []string{FormatJSON, FormatMarkdown}, w.config.Formats)
}

func TestRenderVerdict(t *testing.T) {
	md, err := RenderVerdict(sampleVerdict())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(md, "---\n"))
	assert.Contains(t, md, "# Audit verdict: https://example.com/org/repo.git")
	assert.Contains(t, md, "| Safe Tool Engineering | 2.00 / 10 | 7.00 | security violation |")
	assert.Contains(t, md, "Rules fired: security-override, security-flag")
	assert.Contains(t, md, `- tech_lead: cites unknown evidence "E-999"`)
	assert.Contains(t, md, "- Safe Tool Engineering: security violation; triggered by security-override")

	parts := strings.SplitN(md, "---\n", 3)
	require.Len(t, parts, 3)
	var fm map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(parts[1]), &fm))
	assert.Equal(t, "run-42", fm["run_id"])
	assert.Equal(t, 44.44, fm["overall_percent"])
}

func TestRenderPartial(t *testing.T) {
	md, err := RenderPartial(samplePartial())
	require.NoError(t, err)

	assert.Contains(t, md, "# Audit aborted: /src/repo")
	assert.Contains(t, md, "- **missing_category** `security`")
	assert.Contains(t, md, "- evidence/vision after 2 attempt(s): model unavailable")
}

func TestFrontmatter_PreservesOrder(t *testing.T) {
	fm := NewFrontmatter()
	fm.Set("zeta", 1)
	fm.Set("alpha", "a: b")
	fm.Set("zeta", 2)

	out, err := fm.Render()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "---\nzeta: 2\nalpha: "))
	require.True(t, strings.HasSuffix(out, "---\n\n"))
	var decoded map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(strings.Trim(out, "-\n")), &decoded))
	assert.Equal(t, "a: b", decoded["alpha"])

	v, ok := fm.Get("zeta")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestFrontmatter_Empty(t *testing.T) {
	out, err := NewFrontmatter().Render()
	require.NoError(t, err)
	assert.Empty(t, out)
}
