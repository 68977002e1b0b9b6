package state

import (
	"time"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
)

func newTestRecord(id string, createdAt time.Time) *core.RunRecord {
	return &core.RunRecord{
		ID:           id,
		Target:       core.Target{RepoURL: "https://example.com/org/repo.git"},
		Outcome:      core.RouteDone,
		OverallScore: 6.5,
		Verdict: &core.VerdictReport{
			RunID:  id,
			Target: core.Target{RepoURL: "https://example.com/org/repo.git"},
			Rubric: "forensic-audit",
			Dimensions: []core.DimensionVerdict{
				{
					DimensionID: "git_forensic_analysis",
					Score:       6.5,
					RawScore:    6.5,
					Scale:       core.Scale{Min: 1, Max: 10},
					Flags:       []string{"high variance"},
				},
			},
			OverallScore:   6.5,
			OverallPercent: 61.11,
			CreatedAt:      createdAt,
		},
		CreatedAt: createdAt,
	}
}

func newTestPartialRecord(id string, createdAt time.Time) *core.RunRecord {
	return &core.RunRecord{
		ID:      id,
		Target:  core.Target{RepoURL: "/src/other", ReportPath: "/src/other/report.md"},
		Outcome: core.RouteAborted,
		Partial: &core.PartialReport{
			RunID:  id,
			Target: core.Target{RepoURL: "/src/other", ReportPath: "/src/other/report.md"},
			Reason: "evidence insufficient",
			Gaps: []core.Gap{
				{Kind: core.GapMissingCategory, Subject: "security", Detail: "no evidence"},
			},
			CreatedAt: createdAt,
		},
		CreatedAt: createdAt,
	}
}
