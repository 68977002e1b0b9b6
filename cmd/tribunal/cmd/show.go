package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/tribunal/internal/adapters/state"
	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
	"github.com/hugo-lorenzo-mato/tribunal/internal/service/report"
	"github.com/hugo-lorenzo-mato/tribunal/internal/tui"
)

var showCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print a past audit",
	Long: `Print the verdict or partial report of a past audit.

With --render the Markdown report is rendered for the terminal instead of
the summary table.`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

var showRender bool

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().BoolVar(&showRender, "render", false, "render the full Markdown report")
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := requireStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = state.CloseStore(store) }()

	rec, err := store.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	mode, renderer := outputRenderer()
	switch mode {
	case tui.ModeQuiet:
		return nil
	case tui.ModeJSON:
		return writeJSON(os.Stdout, rec)
	}

	out, err := renderRecord(renderer, rec, showRender)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

func renderRecord(r *tui.Renderer, rec *core.RunRecord, markdown bool) (string, error) {
	switch {
	case rec.Verdict != nil && markdown:
		md, err := report.RenderVerdict(rec.Verdict)
		if err != nil {
			return "", err
		}
		return r.Markdown(md)
	case rec.Verdict != nil:
		return r.Verdict(rec.Verdict), nil
	case rec.Partial != nil && markdown:
		md, err := report.RenderPartial(rec.Partial)
		if err != nil {
			return "", err
		}
		return r.Markdown(md)
	case rec.Partial != nil:
		return r.Partial(rec.Partial), nil
	default:
		return "", core.ErrNotFound("report", rec.ID)
	}
}
