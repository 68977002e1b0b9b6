package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
	"github.com/hugo-lorenzo-mato/tribunal/internal/service/workflow"
	"github.com/hugo-lorenzo-mato/tribunal/internal/tui"
)

var runCmd = &cobra.Command{
	Use:   "run <repo-url|path>",
	Short: "Audit a repository",
	Long: `Audit a repository against the rubric and write the verdict.

The target is a git URL, which is shallow-cloned into a scratch directory, or
a local directory, which is read in place. The accompanying report is taken
from --report or discovered under the repository's reports/ folder.

Exit status is 0 when a verdict was produced, 2 when the evidence gate
aborted the run with a partial report, and 1 on any error.

Examples:
  tribunal run https://github.com/acme/agent.git --report ./report.md
  tribunal run . --offline --out ./audit`,
	Args: cobra.ExactArgs(1),
	RunE: runAudit,
}

var (
	runReport  string
	runRubric  string
	runOffline bool
	runOut     string
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runReport, "report", "", "report to analyze (Markdown or text)")
	runCmd.Flags().StringVar(&runRubric, "rubric", "", "rubric file (default: rubric.path or the embedded rubric)")
	runCmd.Flags().BoolVar(&runOffline, "offline", false, "use the heuristic judge and skip the vision model")
	runCmd.Flags().StringVar(&runOut, "out", "", "directory for report artifacts (default: report.dir)")
}

func runAudit(cmd *cobra.Command, args []string) (err error) {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	rubricPath := runRubric
	if rubricPath == "" {
		rubricPath = cfg.Rubric.Path
	}
	rb, err := loadRubric(rubricPath)
	if err != nil {
		return err
	}

	deps, err := InitAuditDeps(cfg, logger, AuditOptions{Offline: runOffline, ReportDir: runOut})
	if err != nil {
		return err
	}
	defer deps.Close()

	runner, err := deps.NewRunner(rb)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps.Crashes.SetArgs(os.Args[1:])
	deps.Crashes.Track(ctx, deps.Bus)
	defer deps.Crashes.RecoverAndReturn(&err)

	outcome, err := runner.Run(ctx, core.Target{RepoURL: args[0], ReportPath: runReport})
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("audit interrupted: %w", err)
		}
		return err
	}
	if err := printOutcome(outcome); err != nil {
		return err
	}
	if code := outcome.ExitCode(); code != workflow.ExitVerdict {
		return &ExitError{Code: code}
	}
	return nil
}

func printOutcome(o *workflow.Outcome) error {
	mode, renderer := outputRenderer()
	switch mode {
	case tui.ModeQuiet:
		return nil
	case tui.ModeJSON:
		if o.Verdict != nil {
			return writeJSON(os.Stdout, o.Verdict)
		}
		return writeJSON(os.Stdout, o.Partial)
	}

	if o.Verdict != nil {
		fmt.Print(renderer.Verdict(o.Verdict))
	} else if o.Partial != nil {
		fmt.Print(renderer.Partial(o.Partial))
	}
	for _, path := range o.Artifacts {
		fmt.Println("wrote", path)
	}
	return nil
}
