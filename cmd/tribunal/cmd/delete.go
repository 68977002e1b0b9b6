package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/tribunal/internal/adapters/state"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <run-id>...",
	Short: "Remove past audits from the history",
	Long: `Remove past audits from the verdict history.

Report files under report.dir are left in place.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := requireStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = state.CloseStore(store) }()

	for _, id := range args {
		// Get first so an unknown ID is reported instead of silently ignored.
		if _, err := store.Get(cmd.Context(), id); err != nil {
			return err
		}
		if err := store.Delete(cmd.Context(), id); err != nil {
			return err
		}
		if !quiet {
			fmt.Println("deleted", id)
		}
	}
	return nil
}
