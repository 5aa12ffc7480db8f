package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reefcat/reefcat/internal/branding"
	"github.com/reefcat/reefcat/internal/catalog"
	"github.com/reefcat/reefcat/internal/config"
	"github.com/spf13/cobra"
)

var consolidateOpts struct {
	reposDir       string
	output         string
	logOutput      string
	baseURL        string
	concurrency    int
	callTimeout    time.Duration
	maxAttempts    int
	budget         time.Duration
	includeEmpty   bool
	probeRateLimit bool
	strict         bool
}

func init() {
	f := consolidateCmd.Flags()
	f.StringVar(&consolidateOpts.reposDir, "repos", "repos", "Directory tree holding <company>/<extension> metadata files")
	f.StringVarP(&consolidateOpts.output, "output", "o", "manifest.json", "Path of the consolidated manifest")
	f.StringVar(&consolidateOpts.logOutput, "log-output", "manifest.log", "Path of the per-extension run log")
	f.StringVar(&consolidateOpts.baseURL, "base-url", branding.RepoBaseURL(), "Public base URL used to resolve logo paths")
	f.IntVar(&consolidateOpts.concurrency, "concurrency", 8, "Maximum number of extensions resolved in parallel")
	f.DurationVar(&consolidateOpts.callTimeout, "call-timeout", 30*time.Second, "Timeout for a single registry call")
	f.IntVar(&consolidateOpts.maxAttempts, "max-attempts", 3, "Attempts per registry call before giving up")
	f.DurationVar(&consolidateOpts.budget, "budget", 0, "Overall time budget for the run (0 disables it)")
	f.BoolVar(&consolidateOpts.includeEmpty, "include-empty", true, "Keep extensions that have no valid version in the manifest")
	f.BoolVar(&consolidateOpts.probeRateLimit, "probe-rate-limit", false, "Record the Docker Hub pull rate limit before and after the run")
	f.BoolVar(&consolidateOpts.strict, "strict", false, "Exit non-zero when the manifest was published with errors")
	rootCmd.AddCommand(consolidateCmd)
}

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Build the consolidated extension manifest",
	Long: `Consolidate scans the metadata tree, fetches every extension's tags and
image labels from its container registry, and writes the manifest plus a
per-extension run log. Problems with individual tags or extensions are
recorded in the log; the manifest is still published with whatever
resolved cleanly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Flags win over the config file; the config file wins over the
		// compiled-in defaults.
		if !cmd.Flags().Changed("repos") {
			if v := config.Get("repos"); v != "" {
				consolidateOpts.reposDir = v
			}
		}
		if !cmd.Flags().Changed("base-url") {
			if v := config.Get("base_url"); v != "" {
				consolidateOpts.baseURL = v
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c := catalog.New(catalog.Options{
			ReposDir:       consolidateOpts.reposDir,
			RepoBaseURL:    consolidateOpts.baseURL,
			Concurrency:    consolidateOpts.concurrency,
			CallTimeout:    consolidateOpts.callTimeout,
			MaxAttempts:    consolidateOpts.maxAttempts,
			Budget:         consolidateOpts.budget,
			IncludeEmpty:   consolidateOpts.includeEmpty,
			ProbeRateLimit: consolidateOpts.probeRateLimit,
		})

		entries, summary, err := c.Run(ctx)
		if err != nil {
			return fmt.Errorf("consolidating extensions: %w", err)
		}
		if err := catalog.WriteManifest(consolidateOpts.output, entries); err != nil {
			return fmt.Errorf("writing manifest: %w", err)
		}
		if err := c.Collector().WriteLog(consolidateOpts.logOutput); err != nil {
			return fmt.Errorf("writing run log: %w", err)
		}

		fmt.Printf("Consolidated %d of %d extensions into %s\n",
			len(entries), summary.ExtensionsScanned, consolidateOpts.output)
		if summary.HadErrors {
			fmt.Printf("Completed with problems: %d extensions and %d versions errored, see %s\n",
				summary.ExtensionsErrored, summary.VersionsErrored, consolidateOpts.logOutput)
			if consolidateOpts.strict {
				return fmt.Errorf("%d extensions and %d versions errored",
					summary.ExtensionsErrored, summary.VersionsErrored)
			}
		}
		return nil
	},
}
