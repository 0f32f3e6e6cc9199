package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/reliefops/redzone/internal/config"
	"github.com/reliefops/redzone/internal/service/server"
	"github.com/reliefops/redzone/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// zonesDB path of the SQLite zone database.
	zonesDB string

	// rootCmd represents the base command for running the coordination server.
	rootCmd = &cobra.Command{
		Use:   "redzone-server [listen-address]",
		Short: "Run the redzone coordination server.",
		Long: `Starts the coordination server hosting the shared live store, the zone
administration API, subject location intake, responder assignment and the
SSE streams clients subscribe to.

The server listens on the configured address unless one is given as an
argument (e.g. :9090, 0.0.0.0:8080). Zone definitions are persisted in a
local SQLite database and republished into the live store at every start.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use listen address argument if provided, otherwise rely on config.
			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			options := &server.Options{
				ConfigPath:    configPath,
				ListenAddress: listenAddress,
				ZonesDB:       zonesDB,
			}

			return server.Run(ctx, options)
		},
	}
)

// Execute runs the redzone-server CLI and exits with non-zero status on error.
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
	rootCmd.Flags().
		StringVarP(&zonesDB, "zones-db", "z", config.DefaultZonesDBFilename, "path to the zone SQLite database")
}
