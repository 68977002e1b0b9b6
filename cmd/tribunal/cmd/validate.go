package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/tribunal/internal/rubric"
	"github.com/hugo-lorenzo-mato/tribunal/internal/tui"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a rubric and print its dimensions and rules",
	Long: `Load the rubric, check it for structural and semantic problems and print
its dimensions with their synthesis rules in priority order.

Every problem is reported at once, with the field it concerns.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

var validateRubric string

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVar(&validateRubric, "rubric", "", "rubric file (default: rubric.path or the embedded rubric)")
}

func runValidate(_ *cobra.Command, _ []string) error {
	path := validateRubric
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path = cfg.Rubric.Path
	}

	rb, err := loadRubric(path)
	if err != nil {
		if problems := rubric.ProblemsOf(err); problems.HasProblems() {
			for _, p := range problems {
				fmt.Fprintln(os.Stderr, "  "+p.String())
			}
			return fmt.Errorf("rubric has %d problems", len(problems))
		}
		return err
	}

	mode, renderer := outputRenderer()
	switch mode {
	case tui.ModeQuiet:
		return nil
	case tui.ModeJSON:
		return writeJSON(os.Stdout, rb)
	}
	if path == "" {
		path = "embedded default"
	}
	fmt.Printf("Rubric OK (%s)\n\n", path)
	fmt.Print(renderer.Rubric(rb))
	return nil
}
