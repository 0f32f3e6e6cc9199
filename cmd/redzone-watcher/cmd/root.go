package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/reliefops/redzone/internal/config"
	"github.com/reliefops/redzone/internal/service/watcher"
	"github.com/reliefops/redzone/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// silent disables the console bell.
	silent bool

	// rootCmd represents the base command for watching one subject.
	rootCmd = &cobra.Command{
		Use:   "redzone-watcher <subject-id>",
		Short: "Watch one subject and sound the alarm inside hazard zones.",
		Long: `Subscribes to a subject's live location and the published zone set,
sounds a console alarm while the subject is inside a hazard zone, and
resets automatically once they leave. Press Enter to acknowledge a
sounding alarm; it will re-trigger only after the subject exits and
re-enters a hazard zone.

The watcher connects to the same store as the server, so the redis
backend must be configured to observe a server in another process.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &watcher.Options{
				ConfigPath: configPath,
				SubjectID:  args[0],
				Silent:     silent,
			}

			return watcher.Run(ctx, options)
		},
	}
)

// Execute runs the redzone-watcher CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().BoolVarP(&silent, "silent", "s", false, "disable the console bell")
}
