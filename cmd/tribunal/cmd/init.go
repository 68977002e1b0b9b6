package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/tribunal/internal/config"
	"github.com/hugo-lorenzo-mato/tribunal/internal/fsutil"
	"github.com/hugo-lorenzo-mato/tribunal/internal/rubric"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize tribunal in the current directory",
	Long: `Create .tribunal/config.yaml with the default configuration.

With --rubric the embedded rubric is also written to .tribunal/rubric.yaml
and the configuration points at it, ready to be edited.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

var (
	initForce  bool
	initRubric bool
)

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing files")
	initCmd.Flags().BoolVar(&initRubric, "rubric", false, "Also write the default rubric for editing")
}

func runInit(_ *cobra.Command, _ []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}
	return initProject(cwd, initForce, initRubric)
}

func initProject(dir string, force, withRubric bool) error {
	configPath := filepath.Join(dir, ".tribunal", "config.yaml")
	rubricPath := filepath.Join(dir, ".tribunal", "rubric.yaml")

	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration already exists, use --force to overwrite")
	}

	content := config.DefaultConfigYAML
	if withRubric {
		if _, err := os.Stat(rubricPath); err == nil && !force {
			return fmt.Errorf("rubric already exists, use --force to overwrite")
		}
		if err := fsutil.WriteFileAtomic(rubricPath, rubric.DefaultYAML(), 0o644); err != nil {
			return fmt.Errorf("writing rubric: %w", err)
		}
		content = strings.Replace(content, `path: ""`, "path: .tribunal/rubric.yaml", 1)
	}

	if err := fsutil.WriteFileAtomic(configPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, ".tribunal", "reports"), 0o755); err != nil {
		return fmt.Errorf("creating reports directory: %w", err)
	}

	fmt.Println("Initialized tribunal in", dir)
	fmt.Println("Configuration file: .tribunal/config.yaml")
	if withRubric {
		fmt.Println("Rubric: .tribunal/rubric.yaml (check it with 'tribunal validate')")
	}
	return nil
}
