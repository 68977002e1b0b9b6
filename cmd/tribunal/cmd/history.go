package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/tribunal/internal/adapters/state"
	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
	"github.com/hugo-lorenzo-mato/tribunal/internal/tui"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past audits",
	Long: `List past audits from the verdict history, newest first.

Use 'tribunal show <id>' to print one of them and --target to list the
audits of one repository.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var (
	historyLimit  int
	historyTarget string
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of runs to list")
	historyCmd.Flags().StringVar(&historyTarget, "target", "", "only list audits of this repository URL or path")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := requireStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = state.CloseStore(store) }()

	var records []*core.RunRecord
	if historyTarget != "" {
		records, err = store.ListByTarget(cmd.Context(), historyTarget, historyLimit)
	} else {
		records, err = store.List(cmd.Context(), historyLimit)
	}
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}

	mode, renderer := outputRenderer()
	switch mode {
	case tui.ModeQuiet:
		return nil
	case tui.ModeJSON:
		return writeJSON(os.Stdout, summarize(records))
	}

	if len(records) == 0 {
		fmt.Println("No audits found.")
		fmt.Println("Run 'tribunal run <repo-url|path>' to start one.")
		return nil
	}
	fmt.Print(renderer.History(records))
	return nil
}

// summarize drops the report bodies from listed records.
func summarize(records []*core.RunRecord) []*core.RunRecord {
	out := make([]*core.RunRecord, len(records))
	for i, rec := range records {
		r := *rec
		r.Verdict = nil
		r.Partial = nil
		out[i] = &r
	}
	return out
}
