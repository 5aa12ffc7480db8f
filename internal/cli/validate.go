package cli

import (
	"fmt"
	"os"

	"github.com/reefcat/reefcat/internal/branding"
	"github.com/reefcat/reefcat/internal/config"
	"github.com/reefcat/reefcat/internal/metadata"
	"github.com/spf13/cobra"
)

var validateReposDir string

func init() {
	validateCmd.Flags().StringVar(&validateReposDir, "repos", "repos", "Directory tree holding <company>/<extension> metadata files")
	rootCmd.AddCommand(validateCmd)
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the metadata tree without contacting any registry",
	Long: `Validate walks the metadata tree and reports every file that fails the
metadata schema, without pulling tags or labels from any registry. Use it
as a fast pre-merge check for metadata changes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("repos") {
			if v := config.Get("repos"); v != "" {
				validateReposDir = v
			}
		}

		records, problems, err := metadata.Scan(validateReposDir, branding.RepoBaseURL())
		if err != nil {
			return fmt.Errorf("scanning %s: %w", validateReposDir, err)
		}

		for _, p := range problems {
			fmt.Fprintf(os.Stderr, "%s: %s: %v\n", p.Identifier, p.Path, p.Err)
		}
		if len(problems) > 0 {
			return fmt.Errorf("%d of %d extensions have malformed metadata",
				len(problems), len(records)+len(problems))
		}

		fmt.Printf("All %d extensions have valid metadata\n", len(records))
		return nil
	},
}
